// exu.go - pool of execution units with per-op cycle counters

/*
Each EXU computes an ALU result once, up front, and then simply counts down
its configured latency before the result is considered available; this
mirrors a pipelined functional unit whose result is known at dispatch but
whose downstream consumers cannot observe it until the pipeline drains.
Capability bits let a subset of units (e.g. a single divider) restrict which
ops they accept, so the issue stage can model a machine with fewer dividers
than ALUs.
*/

package exu

import (
	"fmt"

	"github.com/intuitionamiga/rv32oo/internal/isa"
	"github.com/intuitionamiga/rv32oo/internal/regfile"
)

type Tag = regfile.Tag

// Capability is a bitset of operation classes a unit may accept.
type Capability uint8

const (
	CapALU Capability = 1 << iota
	CapDivider
)

// capabilityFor reports which capability bit an op10 requires.
func capabilityFor(op10 uint16) Capability {
	if isa.IsDivider(op10) {
		return CapDivider
	}
	return CapALU
}

type unit struct {
	busy      bool
	result    int32
	qr        Tag
	cycleLeft int32
	caps      Capability
}

// Pool is a fixed set of execution units.
type Pool struct {
	units []unit
}

// New returns a Pool of n uniform units, each capable of both ALU and
// divider ops. n must be > 0.
func New(n int) (*Pool, error) {
	return NewWithCapabilities(makeUniformCaps(n))
}

func makeUniformCaps(n int) []Capability {
	caps := make([]Capability, n)
	for i := range caps {
		caps[i] = CapALU | CapDivider
	}
	return caps
}

// NewWithCapabilities returns a Pool whose units carry the given per-unit
// capability bitsets, for modelling e.g. one divider-only unit among several
// plain ALUs.
func NewWithCapabilities(caps []Capability) (*Pool, error) {
	if len(caps) == 0 {
		return nil, fmt.Errorf("exu: pool must have at least one unit")
	}
	p := &Pool{units: make([]unit, len(caps))}
	for i, c := range caps {
		p.units[i].caps = c
	}
	return p, nil
}

// Size returns the number of units in the pool.
func (p *Pool) Size() int { return len(p.units) }

// FreeCapable returns the index of a free unit able to accept op10, or
// (-1, false) if none is currently available; the issue stage must stall
// that EXB entry for this cycle.
func (p *Pool) FreeCapable(op10 uint16) (int, bool) {
	need := capabilityFor(op10)
	for i := range p.units {
		if !p.units[i].busy && p.units[i].caps&need != 0 {
			return i, true
		}
	}
	return -1, false
}

// Dispatch binds a ready EXB entry to unit index: computes the ALU result
// once, sets the unit's countdown to the op's latency, and records qr so
// DoneUnits can report which ROB tag to broadcast when it finishes.
func (p *Pool) Dispatch(index int, op10 uint16, a, b int32, qr Tag) {
	u := &p.units[index]
	u.busy = true
	u.result = isa.Exec(op10, a, b)
	u.cycleLeft = int32(isa.Latency(op10))
	u.qr = qr
}

// Tick decrements every busy unit's remaining cycle count by one. Units
// already at zero (done, awaiting CDB selection) are left alone; they idle
// until the writeback stage clears them via Retire.
func (p *Pool) Tick() {
	for i := range p.units {
		u := &p.units[i]
		if u.busy && u.cycleLeft > 0 {
			u.cycleLeft--
		}
	}
}

// Done describes a unit that has finished computing its result.
type Done struct {
	Index  int
	Qr     Tag
	Result int32
}

// DoneUnits returns every busy unit whose countdown has reached zero, in
// ascending unit-index order (the deterministic order the CDB selection
// policy consumes).
func (p *Pool) DoneUnits() []Done {
	var out []Done
	for i := range p.units {
		u := &p.units[i]
		if u.busy && u.cycleLeft == 0 {
			out = append(out, Done{Index: i, Qr: u.qr, Result: u.result})
		}
	}
	return out
}

// Retire frees a unit after its result has been consumed by the CDB.
func (p *Pool) Retire(index int) {
	p.units[index] = unit{caps: p.units[index].caps}
}

// Flush clears every unit's busy state, used on branch-misprediction
// recovery.
func (p *Pool) Flush() {
	for i := range p.units {
		p.units[i] = unit{caps: p.units[i].caps}
	}
}
