// disasm.go - instruction word to mnemonic text

/*
A straight table-driven rendering of the decoder's output. The decoder owns
all bit-level knowledge; this package only names what it found, so an
encoding the decoder rejects prints as an .word literal rather than a guess.
*/

package disasm

import (
	"fmt"

	"github.com/intuitionamiga/rv32oo/internal/isa"
)

var aluNames = map[uint16]string{
	isa.OpADD: "add", isa.OpSUB: "sub", isa.OpSLL: "sll",
	isa.OpSLT: "slt", isa.OpSLTU: "sltu", isa.OpXOR: "xor",
	isa.OpSRL: "srl", isa.OpSRA: "sra", isa.OpOR: "or", isa.OpAND: "and",
	isa.OpMUL: "mul", isa.OpMULH: "mulh", isa.OpMULHSU: "mulhsu",
	isa.OpMULHU: "mulhu", isa.OpDIV: "div", isa.OpDIVU: "divu",
	isa.OpREM: "rem", isa.OpREMU: "remu",
}

var branchNames = map[uint8]string{
	isa.BrEQ: "beq", isa.BrNE: "bne", isa.BrLT: "blt",
	isa.BrGE: "bge", isa.BrLTU: "bltu", isa.BrGEU: "bgeu",
}

var loadNames = map[isa.MemWidth]string{
	isa.WidthByte: "lb", isa.WidthHalf: "lh", isa.WidthWord: "lw",
	isa.WidthByteUnsigned: "lbu", isa.WidthHalfUnsigned: "lhu",
}

var storeNames = map[isa.MemWidth]string{
	isa.WidthByte: "sb", isa.WidthHalf: "sh", isa.WidthWord: "sw",
}

func reg(i uint8) string { return fmt.Sprintf("x%d", i) }

// Disassemble renders the instruction word (32-bit or compressed, selected
// by its low two bits) as assembly text.
func Disassemble(word uint32) string {
	u := isa.DecodeAny(word)
	if !u.Valid {
		if u.Length == 2 {
			return fmt.Sprintf(".half 0x%04x", word&0xFFFF)
		}
		return fmt.Sprintf(".word 0x%08x", word)
	}

	switch u.Kind {
	case isa.KindALUReg:
		name, ok := aluNames[u.Op10]
		if !ok {
			return fmt.Sprintf(".word 0x%08x", word)
		}
		return fmt.Sprintf("%s %s, %s, %s", name, reg(u.Rd), reg(u.Rs1), reg(u.Rs2))

	case isa.KindALUImm:
		switch u.Funct3 {
		case 0x1, 0x5:
			name := "slli"
			if u.Op10 == isa.OpSRL {
				name = "srli"
			} else if u.Op10 == isa.OpSRA {
				name = "srai"
			}
			return fmt.Sprintf("%s %s, %s, %d", name, reg(u.Rd), reg(u.Rs1), u.Imm)
		}
		names := map[uint8]string{
			0x0: "addi", 0x2: "slti", 0x3: "sltiu",
			0x4: "xori", 0x6: "ori", 0x7: "andi",
		}
		return fmt.Sprintf("%s %s, %s, %d", names[u.Funct3], reg(u.Rd), reg(u.Rs1), u.Imm)

	case isa.KindLUI:
		return fmt.Sprintf("lui %s, 0x%x", reg(u.Rd), uint32(u.Imm)>>12)

	case isa.KindAUIPC:
		return fmt.Sprintf("auipc %s, 0x%x", reg(u.Rd), uint32(u.Imm)>>12)

	case isa.KindJAL:
		return fmt.Sprintf("jal %s, %d", reg(u.Rd), u.Imm)

	case isa.KindJALR:
		return fmt.Sprintf("jalr %s, %d(%s)", reg(u.Rd), u.Imm, reg(u.Rs1))

	case isa.KindBranch:
		name, ok := branchNames[u.Funct3]
		if !ok {
			return fmt.Sprintf(".word 0x%08x", word)
		}
		return fmt.Sprintf("%s %s, %s, %d", name, reg(u.Rs1), reg(u.Rs2), u.Imm)

	case isa.KindLoad:
		return fmt.Sprintf("%s %s, %d(%s)", loadNames[u.Width], reg(u.Rd), u.Imm, reg(u.Rs1))

	case isa.KindStore:
		return fmt.Sprintf("%s %s, %d(%s)", storeNames[u.Width], reg(u.Rs2), u.Imm, reg(u.Rs1))

	case isa.KindECall:
		return "ecall"

	case isa.KindEBreak:
		return "ebreak"

	case isa.KindFence:
		return "fence"

	default:
		return fmt.Sprintf(".word 0x%08x", word)
	}
}
