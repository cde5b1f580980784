// isa.go - instruction-set definitions shared by the decoder and ALU

/*
This package is the lookup/ALU library the out-of-order core is built on: bit
layouts, immediate reconstruction, and arithmetic semantics for the RV32I base
integer set, the compressed 16-bit extension (RVC), and the M (multiply/
divide) extension. Everything here is a pure function of its inputs; all
pipeline state lives in the engine.
*/

package isa

// OpKind classifies a decoded micro-op for the dispatch/issue stages.
type OpKind uint8

const (
	KindInvalid OpKind = iota
	KindNop
	KindALUReg // rd = rs1 op rs2 (R-type, OP)
	KindALUImm // rd = rs1 op imm (I-type, OP-IMM)
	KindLUI    // rd = imm
	KindAUIPC  // rd = pc + imm
	KindJAL    // rd = pc+len; pc = pc + imm
	KindJALR   // rd = pc+len; pc = (rs1+imm) & ~1
	KindBranch // pc = cond(rs1,rs2) ? pc+imm : pc+len
	KindLoad   // rd = mem[rs1+imm]
	KindStore  // mem[rs1+imm] = rs2
	KindECall  // request engine stop
	KindEBreak // trap to debugger
	KindFence  // NOP
)

// Format names the RISC-V encoding format of an instruction. It is
// informational only: the decoder switches on opcode bits and the
// disassembler on Kind.
type Format uint8

const (
	FormatR Format = iota
	FormatI
	FormatS
	FormatB
	FormatU
	FormatJ
	FormatSystem
)

// Uop is the fully decoded form of one instruction, as produced by Decode.
type Uop struct {
	Kind   OpKind
	Format Format
	Op10   uint16 // funct7<<3 | funct3, for ALU-kind ops
	Funct3 uint8
	Funct7 uint8
	Rd     uint8
	Rs1    uint8
	Rs2    uint8
	Imm    int32
	Length uint8 // 2 or 4
	Valid  bool
	Raw    uint32 // the 32-bit (expanded) encoding, for disassembly
	Width  MemWidth
}

// MemWidth mirrors memory.Width without importing the memory package, to
// keep isa dependency-free; the LSU translates between the two.
type MemWidth uint8

const (
	WidthNone MemWidth = iota
	WidthByte
	WidthHalf
	WidthWord
	WidthByteUnsigned
	WidthHalfUnsigned
)

// Opcode10 packs a 7-bit funct7 and 3-bit funct3 into the 10-bit ALU
// operation tag: funct7<<3 | funct3.
func Opcode10(funct7, funct3 uint8) uint16 {
	return uint16(funct7)<<3 | uint16(funct3)
}

// Standard RV32I/M ALU op10 tags (funct7<<3 | funct3), named for clarity.
const (
	OpADD    = 0x00<<3 | 0x0
	OpSUB    = 0x20<<3 | 0x0
	OpSLL    = 0x00<<3 | 0x1
	OpSLT    = 0x00<<3 | 0x2
	OpSLTU   = 0x00<<3 | 0x3
	OpXOR    = 0x00<<3 | 0x4
	OpSRL    = 0x00<<3 | 0x5
	OpSRA    = 0x20<<3 | 0x5
	OpOR     = 0x00<<3 | 0x6
	OpAND    = 0x00<<3 | 0x7
	OpMUL    = 0x01<<3 | 0x0
	OpMULH   = 0x01<<3 | 0x1
	OpMULHSU = 0x01<<3 | 0x2
	OpMULHU  = 0x01<<3 | 0x3
	OpDIV    = 0x01<<3 | 0x4
	OpDIVU   = 0x01<<3 | 0x5
	OpREM    = 0x01<<3 | 0x6
	OpREMU   = 0x01<<3 | 0x7
)

// Branch funct3 values (B-type).
const (
	BrEQ  = 0x0
	BrNE  = 0x1
	BrLT  = 0x4
	BrGE  = 0x5
	BrLTU = 0x6
	BrGEU = 0x7
)

// Load/store funct3 values.
const (
	MemByte  = 0x0
	MemHalf  = 0x1
	MemWord  = 0x2
	MemByteU = 0x4
	MemHalfU = 0x5
)
