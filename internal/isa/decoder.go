// decoder.go - 32-bit instruction decode and RVC decompression

package isa

// 7-bit major opcodes (RISC-V RV32I/M, bits [6:0] of the 32-bit word).
const (
	opcLoad   = 0b0000011
	opcOpImm  = 0b0010011
	opcAuipc  = 0b0010111
	opcStore  = 0b0100011
	opcOp     = 0b0110011
	opcLui    = 0b0110111
	opcBranch = 0b1100011
	opcJalr   = 0b1100111
	opcJal    = 0b1101111
	opcSystem = 0b1110011
	opcFence  = 0b0001111
)

func signExtend(v uint32, bits int) int32 {
	shift := 32 - bits
	return int32(v<<uint(shift)) >> uint(shift)
}

// Decode decodes a 32-bit instruction word. Callers must first resolve
// compressed (16-bit) encodings with Decompress; Decode always consumes the
// full 32 bits of word (low two bits are expected to be 0b11 for a genuine
// 32-bit instruction, but Decode does not itself inspect them; that length
// selection happens in DecodeAny).
func Decode(word uint32) Uop {
	opc := word & 0x7F
	rd := uint8((word >> 7) & 0x1F)
	funct3 := uint8((word >> 12) & 0x7)
	rs1 := uint8((word >> 15) & 0x1F)
	rs2 := uint8((word >> 20) & 0x1F)
	funct7 := uint8((word >> 25) & 0x7F)

	u := Uop{Length: 4, Raw: word, Funct3: funct3, Funct7: funct7, Rd: rd, Rs1: rs1, Rs2: rs2}

	switch opc {
	case opcOp:
		u.Kind = KindALUReg
		u.Format = FormatR
		u.Op10 = Opcode10(funct7, funct3)
		u.Valid = true

	case opcOpImm:
		u.Kind = KindALUImm
		u.Format = FormatI
		shiftOp := funct3 == 0x1 || funct3 == 0x5
		if shiftOp {
			// Shift-immediates: low 5 bits of the I-immediate are shamt; the
			// SRAI flag lives in bit 30 (funct7 bit 5), preserved via funct7.
			u.Imm = int32(rs2) // shamt packed into the rs2 field position
			u.Op10 = Opcode10(funct7, funct3)
		} else {
			u.Imm = signExtend(word>>20, 12)
			u.Op10 = Opcode10(0, funct3)
		}
		u.Valid = true

	case opcLui:
		u.Kind = KindLUI
		u.Format = FormatU
		u.Imm = int32(word & 0xFFFFF000)
		u.Valid = true

	case opcAuipc:
		u.Kind = KindAUIPC
		u.Format = FormatU
		u.Imm = int32(word & 0xFFFFF000)
		u.Valid = true

	case opcJal:
		u.Kind = KindJAL
		u.Format = FormatJ
		imm20 := (word >> 31) & 0x1
		imm10_1 := (word >> 21) & 0x3FF
		imm11 := (word >> 20) & 0x1
		imm19_12 := (word >> 12) & 0xFF
		raw := imm20<<20 | imm19_12<<12 | imm11<<11 | imm10_1<<1
		u.Imm = signExtend(raw, 21)
		u.Valid = true

	case opcJalr:
		u.Kind = KindJALR
		u.Format = FormatI
		u.Imm = signExtend(word>>20, 12)
		u.Valid = funct3 == 0

	case opcBranch:
		u.Kind = KindBranch
		u.Format = FormatB
		imm12 := (word >> 31) & 0x1
		imm10_5 := (word >> 25) & 0x3F
		imm4_1 := (word >> 8) & 0xF
		imm11 := (word >> 7) & 0x1
		raw := imm12<<12 | imm11<<11 | imm10_5<<5 | imm4_1<<1
		u.Imm = signExtend(raw, 13)
		u.Valid = true

	case opcLoad:
		u.Kind = KindLoad
		u.Format = FormatI
		u.Imm = signExtend(word>>20, 12)
		u.Width = loadWidth(funct3)
		u.Valid = u.Width != WidthNone

	case opcStore:
		u.Kind = KindStore
		u.Format = FormatS
		imm11_5 := (word >> 25) & 0x7F
		imm4_0 := (word >> 7) & 0x1F
		u.Imm = signExtend(imm11_5<<5|imm4_0, 12)
		u.Width = storeWidth(funct3)
		u.Valid = u.Width != WidthNone

	case opcFence:
		u.Kind = KindFence
		u.Valid = true

	case opcSystem:
		imm12 := (word >> 20) & 0xFFF
		switch {
		case funct3 == 0 && imm12 == 0:
			u.Kind = KindECall
			u.Valid = true
		case funct3 == 0 && imm12 == 1:
			u.Kind = KindEBreak
			u.Valid = true
		default:
			u.Kind = KindInvalid
		}

	default:
		u.Kind = KindInvalid
	}

	return u
}

func loadWidth(funct3 uint8) MemWidth {
	switch funct3 {
	case MemByte:
		return WidthByte
	case MemHalf:
		return WidthHalf
	case MemWord:
		return WidthWord
	case MemByteU:
		return WidthByteUnsigned
	case MemHalfU:
		return WidthHalfUnsigned
	default:
		return WidthNone
	}
}

func storeWidth(funct3 uint8) MemWidth {
	switch funct3 {
	case MemByte:
		return WidthByte
	case MemHalf:
		return WidthHalf
	case MemWord:
		return WidthWord
	default:
		return WidthNone
	}
}

// DecodeAny inspects the low two bits of the first halfword at a fetch
// address to choose between a 4-byte RV32I/M decode and a 2-byte compressed
// decode+expansion: 0b11 selects the 32-bit path, anything else is
// compressed.
func DecodeAny(word uint32) Uop {
	if word&0x3 == 0x3 {
		return Decode(word)
	}
	expanded, ok := Decompress(uint16(word))
	if !ok {
		return Uop{Kind: KindInvalid, Length: 2, Valid: false}
	}
	u := Decode(expanded)
	u.Length = 2
	return u
}
