// debug.go - the engine surface the debugger drives

package engine

import "fmt"

// stepBudget bounds how many ticks a single-step may take before it is
// reported as wedged (a program that never commits again).
const stepBudget = 100000

// State returns the engine's current run state.
func (e *Engine) State() State { return e.state }

// Pause moves a running engine into the paused (debugger) state.
func (e *Engine) Pause() {
	if e.state == StateRunning {
		e.state = StatePaused
	}
}

// Resume moves a paused engine back to running. Stopped is terminal.
func (e *Engine) Resume() {
	if e.state == StatePaused {
		e.state = StateRunning
	}
}

// PC returns the current fetch address.
func (e *Engine) PC() uint32 { return e.pc }

// SetPC redirects fetch, wrapping modulo memory size.
func (e *Engine) SetPC(pc uint32) { e.pc = e.wrapPC(pc) }

// ReadReg returns the committed architectural value of register i.
func (e *Engine) ReadReg(i uint32) int32 { return e.regs.ReadData(i) }

// WriteReg sets the committed architectural value of register i, clearing
// any pending rename; writes to x0 are ignored. Debugger use only - the
// pipeline itself writes registers exclusively through commit.
func (e *Engine) WriteReg(i uint32, v int32) { e.regs.WriteData(i, v) }

// Registers returns a snapshot of all 32 architectural register values.
func (e *Engine) Registers() [32]int32 { return e.regs.Snapshot() }

// ReadMem copies n bytes of simulated memory starting at addr.
func (e *Engine) ReadMem(addr uint32, n int) []byte { return e.mem.ReadBytes(addr, n) }

// WriteMem copies buf into simulated memory starting at addr.
func (e *Engine) WriteMem(addr uint32, buf []byte) { e.mem.WriteBytes(addr, buf) }

// ReadMemWord reads a little-endian word of simulated memory.
func (e *Engine) ReadMemWord(addr uint32) uint32 { return e.mem.ReadWord(addr) }

// InstrLength reports the encoded length, 2 or 4 bytes, of the instruction
// at addr, from the low two bits of its first halfword.
func (e *Engine) InstrLength(addr uint32) int {
	if e.mem.ReadHalf(addr)&0x3 == 0x3 {
		return 4
	}
	return 2
}

// LastCommitPC returns the address of the most recently committed
// instruction. ok is false before anything has committed. This is the
// program-order position a debugger should key breakpoints on; the fetch PC
// runs ahead of it speculatively.
func (e *Engine) LastCommitPC() (uint32, bool) {
	return e.lastCommitPC, e.hasCommitted
}

// Cycle returns the number of ticks executed so far.
func (e *Engine) Cycle() uint64 { return e.cycle }

// Stats returns a copy of the engine's event counters.
func (e *Engine) Stats() Stats { return e.stats }

// StepInstr ticks until exactly one more instruction has committed, or the
// engine stops. Works from both the running and the paused state; the run
// state is left unchanged (an EBREAK or ECALL committing mid-step still
// takes effect).
func (e *Engine) StepInstr() error {
	if e.state == StateStopped {
		return fmt.Errorf("engine: stopped, nothing to step")
	}
	start := e.stats.Committed
	for i := 0; i < stepBudget; i++ {
		e.Tick()
		if e.stats.Committed > start || e.state == StateStopped {
			return nil
		}
	}
	return fmt.Errorf("engine: no instruction committed within %d cycles", stepBudget)
}
