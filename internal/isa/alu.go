// alu.go - pure ALU functions over 32-bit operands

package isa

// Exec computes the result of op10 (funct7<<3|funct3) applied to a and b,
// per the RV32I/M arithmetic semantics. Exec never panics and never errors:
// divide-by-zero and signed overflow are defined results (see below),
// matching the non-fatal error policy for arithmetic edge cases.
func Exec(op10 uint16, a, b int32) int32 {
	ua, ub := uint32(a), uint32(b)
	switch op10 {
	case OpADD:
		return a + b
	case OpSUB:
		return a - b
	case OpSLL:
		return a << (ub & 0x1F)
	case OpSLT:
		if a < b {
			return 1
		}
		return 0
	case OpSLTU:
		if ua < ub {
			return 1
		}
		return 0
	case OpXOR:
		return a ^ b
	case OpSRL:
		return int32(ua >> (ub & 0x1F))
	case OpSRA:
		return a >> (ub & 0x1F)
	case OpOR:
		return a | b
	case OpAND:
		return a & b
	case OpMUL:
		return a * b
	case OpMULH:
		return int32((int64(a) * int64(b)) >> 32)
	case OpMULHSU:
		return int32((int64(a) * int64(int64(ub))) >> 32)
	case OpMULHU:
		return int32((uint64(ua) * uint64(ub)) >> 32)
	case OpDIV:
		if b == 0 {
			return -1
		}
		if a == -2147483648 && b == -1 {
			return -2147483648
		}
		return a / b
	case OpDIVU:
		if ub == 0 {
			return -1
		}
		return int32(ua / ub)
	case OpREM:
		if b == 0 {
			return a
		}
		if a == -2147483648 && b == -1 {
			return 0
		}
		return a % b
	case OpREMU:
		if ub == 0 {
			return a
		}
		return int32(ua % ub)
	default:
		return 0
	}
}

// Latency returns the number of EXU cycles op10 occupies: 1 for the ADD
// family, 4 for MUL, 19 for DIV/REM, 0 for an undefined op.
func Latency(op10 uint16) uint32 {
	switch op10 {
	case OpADD, OpSUB, OpSLL, OpSLT, OpSLTU, OpXOR, OpSRL, OpSRA, OpOR, OpAND:
		return 1
	case OpMUL, OpMULH, OpMULHSU, OpMULHU:
		return 4
	case OpDIV, OpDIVU, OpREM, OpREMU:
		return 19
	default:
		return 0
	}
}

// IsDivider reports whether op10 requires divider capability, used by the
// EXU pool to route ops to capability-restricted units.
func IsDivider(op10 uint16) bool {
	switch op10 {
	case OpDIV, OpDIVU, OpREM, OpREMU:
		return true
	default:
		return false
	}
}

// Branch evaluates a B-type condition given funct3 and the two operand
// values, returning whether the branch is taken.
func Branch(funct3 uint8, a, b int32) bool {
	ua, ub := uint32(a), uint32(b)
	switch funct3 {
	case BrEQ:
		return a == b
	case BrNE:
		return a != b
	case BrLT:
		return a < b
	case BrGE:
		return a >= b
	case BrLTU:
		return ua < ub
	case BrGEU:
		return ua >= ub
	default:
		return false
	}
}
