// branch.go - branch-resolution station

/*
Conditional branches and JALR cannot go through the EXU pool: their
architectural result (the link value) and their control result (the next
fetch address) are two different values, and only the engine may act on the
second. The station holds each in-flight branch with its operands tracked
the same way an EXB entry tracks them, resolves the next PC once both
operands are ready, and then offers the architectural result to the CDB like
any other producer. The engine compares the resolved next PC against the
prediction it made at dispatch when the branch commits.
*/

package engine

import (
	"github.com/intuitionamiga/rv32oo/internal/isa"
	"github.com/intuitionamiga/rv32oo/internal/regfile"
)

type branchEntry struct {
	busy   bool
	kind   isa.OpKind // KindBranch or KindJALR
	funct3 uint8
	vj, vk int32
	qj, qk regfile.Tag
	rj, rk bool
	qr     regfile.Tag
	pc     uint32
	imm    int32
	length uint32
	link   int32 // pc+length, the architectural rd result for JALR

	resolved bool
	next     uint32 // resolved next fetch address
}

type branchUnit struct {
	entries []branchEntry
}

func newBranchUnit(n int) *branchUnit {
	return &branchUnit{entries: make([]branchEntry, n)}
}

func (b *branchUnit) full() bool {
	for i := range b.entries {
		if !b.entries[i].busy {
			return false
		}
	}
	return true
}

func (b *branchUnit) alloc(e branchEntry) (int, bool) {
	for i := range b.entries {
		if !b.entries[i].busy {
			e.busy = true
			e.rj = e.qj == 0
			e.rk = e.qk == 0
			b.entries[i] = e
			return i, true
		}
	}
	return 0, false
}

func (b *branchUnit) forward(q regfile.Tag, v int32) {
	if q == 0 {
		return
	}
	for i := range b.entries {
		e := &b.entries[i]
		if !e.busy {
			continue
		}
		if !e.rj && e.qj == q {
			e.vj = v
			e.rj = true
		}
		if !e.rk && e.qk == q {
			e.vk = v
			e.rk = true
		}
	}
}

type branchResolved struct {
	qr   regfile.Tag
	next uint32
}

// resolve computes the next fetch address of every entry whose operands have
// arrived, in ascending slot order, and returns the newly resolved set.
func (b *branchUnit) resolve() []branchResolved {
	var out []branchResolved
	for i := range b.entries {
		e := &b.entries[i]
		if !e.busy || e.resolved || !e.rj || !e.rk {
			continue
		}
		switch e.kind {
		case isa.KindJALR:
			e.next = uint32(e.vj+e.imm) &^ 1
		default:
			if isa.Branch(e.funct3, e.vj, e.vk) {
				e.next = e.pc + uint32(e.imm)
			} else {
				e.next = e.pc + e.length
			}
		}
		e.resolved = true
		out = append(out, branchResolved{qr: e.qr, next: e.next})
	}
	return out
}

type branchDone struct {
	index  int
	qr     regfile.Tag
	result int32
}

// done returns every resolved entry awaiting a CDB lane, ascending slot order.
func (b *branchUnit) done() []branchDone {
	var out []branchDone
	for i := range b.entries {
		e := &b.entries[i]
		if e.busy && e.resolved {
			out = append(out, branchDone{index: i, qr: e.qr, result: e.link})
		}
	}
	return out
}

func (b *branchUnit) retire(index int) {
	b.entries[index] = branchEntry{}
}

func (b *branchUnit) flush() {
	for i := range b.entries {
		b.entries[i] = branchEntry{}
	}
}
