// params.go - engine configuration

package engine

import (
	"fmt"
	"io"

	"github.com/intuitionamiga/rv32oo/internal/exb"
	"github.com/intuitionamiga/rv32oo/internal/exu"
	"github.com/intuitionamiga/rv32oo/internal/regfile"
)

// maxROBSize bounds the ROB so every live tag fits the tag encoding with
// value 0 left over for "no producer".
const maxROBSize = 1<<16 - 2

// Parameters configures a simulation engine. The zero value is not usable;
// call Validate (or construct via New, which validates) first. Buffer sizes
// left at zero pick up the listed defaults.
type Parameters struct {
	MemSize int // bytes of simulated memory
	EXBSize int // execution-buffer slots
	ROBSize int // reorder-buffer slots
	RegSize int // architectural registers; 0 or regfile.Count
	CDBSize int // broadcast lanes
	NbUnits int // execution units

	StoreBufferSize int // store-buffer depth, default 8
	LoadBufferSize  int // load-buffer slots, default 8
	BranchSlots     int // branch-resolution slots, default 4

	ProgramPath string // optional; loaded into memory by New

	EXBPolicy exb.Policy       // ready-entry selection order
	UnitCaps  []exu.Capability // optional per-unit capabilities; nil = uniform

	// Parallel advances the EXU pool and the LSU on separate goroutines
	// within the execute stage. The two touch disjoint state, and both are
	// joined before writeback, so the per-tick read-then-write semantics are
	// unchanged.
	Parallel bool

	Trace       bool      // per-cycle stage diagnostics
	TraceWriter io.Writer // defaults to os.Stderr
}

// withDefaults fills in the defaultable fields without touching the caller's
// copy of required ones.
func (p Parameters) withDefaults() Parameters {
	if p.RegSize == 0 {
		p.RegSize = regfile.Count
	}
	if p.StoreBufferSize == 0 {
		p.StoreBufferSize = 8
	}
	if p.LoadBufferSize == 0 {
		p.LoadBufferSize = 8
	}
	if p.BranchSlots == 0 {
		p.BranchSlots = 4
	}
	return p
}

// Validate reports the first configuration error, or nil if the parameters
// describe a runnable engine. The engine refuses to start on any error here.
func (p Parameters) Validate() error {
	p = p.withDefaults()
	switch {
	case p.MemSize <= 0:
		return fmt.Errorf("engine: mem_size must be > 0, got %d", p.MemSize)
	case p.EXBSize <= 0:
		return fmt.Errorf("engine: exb_size must be > 0, got %d", p.EXBSize)
	case p.ROBSize <= 0:
		return fmt.Errorf("engine: rob_size must be > 0, got %d", p.ROBSize)
	case p.ROBSize > maxROBSize:
		return fmt.Errorf("engine: rob_size %d exceeds the tag width limit %d", p.ROBSize, maxROBSize)
	case p.RegSize != regfile.Count:
		return fmt.Errorf("engine: reg_size must be %d for RV32I, got %d", regfile.Count, p.RegSize)
	case p.CDBSize <= 0:
		return fmt.Errorf("engine: cdb_size must be > 0, got %d", p.CDBSize)
	case p.NbUnits <= 0:
		return fmt.Errorf("engine: nb_units must be > 0, got %d", p.NbUnits)
	case p.StoreBufferSize <= 0:
		return fmt.Errorf("engine: store buffer size must be > 0, got %d", p.StoreBufferSize)
	case p.LoadBufferSize <= 0:
		return fmt.Errorf("engine: load buffer size must be > 0, got %d", p.LoadBufferSize)
	case p.BranchSlots <= 0:
		return fmt.Errorf("engine: branch slots must be > 0, got %d", p.BranchSlots)
	}
	if p.UnitCaps != nil && len(p.UnitCaps) != p.NbUnits {
		return fmt.Errorf("engine: %d unit capabilities given for %d units", len(p.UnitCaps), p.NbUnits)
	}
	return nil
}
