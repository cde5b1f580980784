// cdb.go - common data bus: fixed broadcast lanes with deterministic arbitration

package cdb

import (
	"fmt"

	"github.com/intuitionamiga/rv32oo/internal/regfile"
)

type Tag = regfile.Tag

// Lane is one broadcast slot for a single tick.
type Lane struct {
	Valid  bool
	Qr     Tag
	Result int32
}

// Producer is a candidate result source offered to the CDB for selection,
// tagged by origin so the tie-break policy can prefer EXU lanes over LSU
// lanes deterministically.
type Producer struct {
	Qr       Tag
	Result   int32
	FromEXU  bool // false means any non-EXU producer (an LSU load or a resolved branch)
	EXUIndex int  // meaningful only when FromEXU; used for the index tie-break
}

// CDB holds a fixed number of broadcast lanes, refreshed every tick.
type CDB struct {
	lanes []Lane
}

// New returns a CDB with n lanes. n must be > 0.
func New(n int) (*CDB, error) {
	if n <= 0 {
		return nil, fmt.Errorf("cdb: lane count must be > 0, got %d", n)
	}
	return &CDB{lanes: make([]Lane, n)}, nil
}

// Lanes returns the current tick's published lanes.
func (c *CDB) Lanes() []Lane { return c.lanes }

// Arbitrate clears all lanes, then selects up to len(lanes) producers by a
// deterministic policy: lowest EXU-index first, all EXU producers before any
// non-EXU producer. It returns the producers granted a lane (published) and
// those that were NOT granted one this cycle (deferred; they remain done and
// are retried on the writeback stage's next call next tick).
func (c *CDB) Arbitrate(producers []Producer) (published []Producer, deferred []Producer) {
	for i := range c.lanes {
		c.lanes[i] = Lane{}
	}

	ordered := make([]Producer, len(producers))
	copy(ordered, producers)
	sortProducers(ordered)

	n := len(c.lanes)
	if len(ordered) < n {
		n = len(ordered)
	}
	for i := 0; i < n; i++ {
		c.lanes[i] = Lane{Valid: true, Qr: ordered[i].Qr, Result: ordered[i].Result}
	}
	return ordered[:n], ordered[n:]
}

// sortProducers orders EXU producers before LSU producers, each group
// ascending by its natural index (EXUIndex for EXU producers; submission
// order, which is already ascending, for LSU producers). A simple insertion
// sort is sufficient: producer counts never exceed the small configured
// unit/lane counts.
func sortProducers(p []Producer) {
	less := func(a, b Producer) bool {
		if a.FromEXU != b.FromEXU {
			return a.FromEXU // EXU before LSU
		}
		if a.FromEXU {
			return a.EXUIndex < b.EXUIndex
		}
		return false // preserve relative LSU order (stable)
	}
	for i := 1; i < len(p); i++ {
		j := i
		for j > 0 && less(p[j], p[j-1]) {
			p[j-1], p[j] = p[j], p[j-1]
			j--
		}
	}
}
