// exb.go - execution buffer (reservation-station analogue)

/*
The EXB holds decoded ALU micro-ops between dispatch and issue: each entry
tracks its two source operands either as a ready value or as the producing
ROB tag it is still waiting on. CDB broadcasts and same-cycle commits forward
into waiting entries by tag match. Ready entries are scanned in a
deterministic, lowest-index-first order; an alternate age-ordered policy is
available behind Policy for experimentation but defaults off.
*/

package exb

import (
	"fmt"

	"github.com/intuitionamiga/rv32oo/internal/regfile"
)

type Tag = regfile.Tag

// Entry is one reservation-station slot.
type Entry struct {
	Busy  bool
	Op    uint16
	Vj    int32
	Vk    int32
	Qj    Tag
	Qk    Tag
	Rj    bool
	Rk    bool
	Qr    Tag
	Dirty bool
	age   uint64
}

// Policy selects the deterministic order ready entries are offered to issue.
type Policy int

const (
	// PolicyLowestIndex offers ready entries lowest-slot-index first.
	PolicyLowestIndex Policy = iota
	// PolicyOldestFirst offers ready entries by ascending allocation age.
	PolicyOldestFirst
)

// EXB is the fixed-size execution buffer.
type EXB struct {
	entries []Entry
	Policy  Policy
	clock   uint64
}

// New returns an empty EXB with the given capacity. size must be > 0.
func New(size int) (*EXB, error) {
	if size <= 0 {
		return nil, fmt.Errorf("exb: size must be > 0, got %d", size)
	}
	return &EXB{entries: make([]Entry, size)}, nil
}

// Size returns the EXB's slot count.
func (b *EXB) Size() int { return len(b.entries) }

// Full reports whether every slot is occupied.
func (b *EXB) Full() bool {
	for i := range b.entries {
		if !b.entries[i].Busy {
			return false
		}
	}
	return true
}

// Alloc installs a new entry in the first free slot, deriving Rj/Rk from
// whether each operand's producing tag is the reserved "none" value. qr is
// the destination ROB tag this op will write. ok is false if the EXB is
// full; the caller must stall dispatch.
func (b *EXB) Alloc(op uint16, vj int32, qj Tag, vk int32, qk Tag, qr Tag) (index int, ok bool) {
	for i := range b.entries {
		if !b.entries[i].Busy {
			b.clock++
			b.entries[i] = Entry{
				Busy: true, Op: op,
				Vj: vj, Qj: qj, Rj: qj == 0,
				Vk: vk, Qk: qk, Rk: qk == 0,
				Qr: qr, age: b.clock,
			}
			return i, true
		}
	}
	return 0, false
}

// Entry returns a copy of the entry at index, for the issue stage to read
// before clearing it.
func (b *EXB) Entry(index int) Entry {
	return b.entries[index]
}

// Release frees the entry at index, called once it has been bound to an
// EXU by the issue stage.
func (b *EXB) Release(index int) {
	b.entries[index] = Entry{}
}

// Forward applies a CDB broadcast (or a same-cycle commit forward) of
// (q, v) to every waiting entry whose Qj/Qk matches q.
func (b *EXB) Forward(q Tag, v int32) {
	if q == 0 {
		return
	}
	for i := range b.entries {
		e := &b.entries[i]
		if !e.Busy {
			continue
		}
		if !e.Rj && e.Qj == q {
			e.Vj = v
			e.Rj = true
		}
		if !e.Rk && e.Qk == q {
			e.Vk = v
			e.Rk = true
		}
	}
}

// ReadyIndices returns the indices of all busy, ready (Rj && Rk) entries in
// the order determined by Policy.
func (b *EXB) ReadyIndices() []int {
	var ready []int
	for i := range b.entries {
		e := &b.entries[i]
		if e.Busy && e.Rj && e.Rk {
			ready = append(ready, i)
		}
	}
	if b.Policy == PolicyOldestFirst {
		// Simple insertion sort by age; EXB sizes are small (tens of
		// entries), so this stays off the hot path cost-wise.
		for i := 1; i < len(ready); i++ {
			j := i
			for j > 0 && b.entries[ready[j-1]].age > b.entries[ready[j]].age {
				ready[j-1], ready[j] = ready[j], ready[j-1]
				j--
			}
		}
	}
	return ready
}

// Flush clears every entry, used on branch-misprediction recovery.
func (b *EXB) Flush() {
	for i := range b.entries {
		b.entries[i] = Entry{}
	}
}
