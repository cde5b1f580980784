// engine.go - out-of-order execution engine: five-stage tick orchestration

/*
The engine owns every component of the simulated core and advances them in
discrete ticks. Within a tick the stages run in reverse pipeline order -
commit, writeback, execute, issue, dispatch - so that every stage reads the
state its upstream neighbour produced on the previous cycle, emulating
synchronous flip-flop semantics without double-buffering any component.

Cross-component references are rename tags (ROB slot names) and small buffer
indices throughout; no component holds a pointer into another. Branches are
predicted not-taken at dispatch and verified at commit: a mispredicted branch
flushes the ROB, EXB, EXU pool, LSU and branch station in a single tick and
restarts fetch from the resolved address.
*/

package engine

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/intuitionamiga/rv32oo/internal/cdb"
	"github.com/intuitionamiga/rv32oo/internal/exb"
	"github.com/intuitionamiga/rv32oo/internal/exu"
	"github.com/intuitionamiga/rv32oo/internal/isa"
	"github.com/intuitionamiga/rv32oo/internal/loader"
	"github.com/intuitionamiga/rv32oo/internal/lsu"
	"github.com/intuitionamiga/rv32oo/internal/memory"
	"github.com/intuitionamiga/rv32oo/internal/regfile"
	"github.com/intuitionamiga/rv32oo/internal/rob"
)

// Tag re-exports the rename-tag type for engine API users.
type Tag = regfile.Tag

// State is the engine's run state.
type State int

const (
	// StateRunning means Tick advances the pipeline and Run keeps looping.
	StateRunning State = iota
	// StatePaused means the engine yielded to the debugger (EBREAK or an
	// explicit Pause); Tick still advances so the debugger can single-step.
	StatePaused
	// StateStopped is terminal, entered when an ECALL commits.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Stats counts pipeline events since engine construction.
type Stats struct {
	Cycles         uint64
	Dispatched     uint64
	Issued         uint64
	Committed      uint64
	Flushes        uint64
	DispatchStalls uint64
}

// instrMeta is the engine's sideband record for one in-flight instruction,
// keyed by its ROB tag: the control-flow facts the ROB entry itself does not
// carry. predicted is the fetch path chosen at dispatch; next is the resolved
// successor (equal to predicted until a branch resolves otherwise).
type instrMeta struct {
	kind      isa.OpKind
	pc        uint32
	predicted uint32
	next      uint32
}

// Engine aggregates all components of the simulated core.
type Engine struct {
	params Parameters

	mem  *memory.Memory
	regs *regfile.RegisterFile
	rob  *rob.ROB
	exb  *exb.EXB
	exus *exu.Pool
	bus  *cdb.CDB
	lsu  *lsu.LSU
	bru  *branchUnit

	meta map[Tag]instrMeta

	pc           uint32
	state        State
	fetchHold    bool // set between dispatching ECALL/EBREAK and its commit
	parallel     bool
	lastCommitPC uint32
	hasCommitted bool

	cycle uint64
	stats Stats

	trace  bool
	traceW io.Writer
}

// New constructs an engine from p, validating it first and loading the
// program image if p.ProgramPath is set. Any error here means the engine
// refuses to start; no partially-initialised engine is ever returned.
func New(p Parameters) (*Engine, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	p = p.withDefaults()

	mem, err := memory.New(p.MemSize)
	if err != nil {
		return nil, err
	}
	ro, err := rob.New(p.ROBSize)
	if err != nil {
		return nil, err
	}
	xb, err := exb.New(p.EXBSize)
	if err != nil {
		return nil, err
	}
	xb.Policy = p.EXBPolicy
	var pool *exu.Pool
	if p.UnitCaps != nil {
		pool, err = exu.NewWithCapabilities(p.UnitCaps)
	} else {
		pool, err = exu.New(p.NbUnits)
	}
	if err != nil {
		return nil, err
	}
	bus, err := cdb.New(p.CDBSize)
	if err != nil {
		return nil, err
	}
	ls, err := lsu.New(mem, p.StoreBufferSize, p.LoadBufferSize)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		params:   p,
		mem:      mem,
		regs:     regfile.New(),
		rob:      ro,
		exb:      xb,
		exus:     pool,
		bus:      bus,
		lsu:      ls,
		bru:      newBranchUnit(p.BranchSlots),
		meta:     make(map[Tag]instrMeta),
		state:    StateRunning,
		parallel: p.Parallel,
		trace:    p.Trace,
		traceW:   p.TraceWriter,
	}
	if e.traceW == nil {
		e.traceW = os.Stderr
	}
	if p.ProgramPath != "" {
		entry, err := loader.LoadFile(mem, p.ProgramPath)
		if err != nil {
			return nil, err
		}
		e.pc = e.wrapPC(entry)
	}
	return e, nil
}

func (e *Engine) tracef(format string, args ...any) {
	if !e.trace {
		return
	}
	fmt.Fprintf(e.traceW, format+"\n", args...)
}

func (e *Engine) wrapPC(pc uint32) uint32 {
	return pc % uint32(e.mem.Size())
}

// Tick advances the whole core by one cycle. Stages run in reverse pipeline
// order so each reads its upstream neighbour's previous-cycle outputs. A
// stopped engine does not tick; a paused one does, so the debugger can step.
func (e *Engine) Tick() {
	if e.state == StateStopped {
		return
	}
	e.cycle++
	e.stats.Cycles = e.cycle
	e.commit()
	if e.state == StateStopped {
		return
	}
	e.writeback()
	e.execute()
	e.issue()
	e.dispatch()
}

// Run ticks until the engine leaves StateRunning. maxCycles > 0 bounds the
// run; exhausting it while still running is reported as an error so a
// wedged program image cannot hang the caller.
func (e *Engine) Run(maxCycles uint64) error {
	for e.state == StateRunning {
		if maxCycles > 0 && e.cycle >= maxCycles {
			return fmt.Errorf("engine: cycle budget %d exhausted before stop", maxCycles)
		}
		e.Tick()
	}
	return nil
}

// commit retires at most one done ROB head per cycle into architectural
// state, forwarding the committed value to consumers still waiting on its
// tag. Branch misprediction is detected here, at the only point where the
// mispredicted instruction is the oldest one in flight, which makes the
// recovery a bulk flush of everything younger - that is, everything.
func (e *Engine) commit() {
	res, ok := e.rob.Commit()
	if !ok {
		return
	}
	m := e.meta[res.Tag]
	delete(e.meta, res.Tag)
	e.stats.Committed++
	e.lastCommitPC = m.pc
	e.hasCommitted = true

	switch m.kind {
	case isa.KindStore:
		e.lsu.CommitStore()
	case isa.KindECall:
		e.tracef("cycle %d: ecall, stopping", e.cycle)
		e.state = StateStopped
		return
	case isa.KindEBreak:
		e.tracef("cycle %d: ebreak, yielding to debugger", e.cycle)
		e.state = StatePaused
		e.fetchHold = false
	default:
		e.regs.CommitData(res.Rd, res.Data, res.Tag)
		e.forwardResult(res.Tag, res.Data)
	}

	if (m.kind == isa.KindBranch || m.kind == isa.KindJALR) && m.next != m.predicted {
		e.flushTo(m.next)
	}
}

// forwardResult delivers (q, v) to every consumer that may be waiting on the
// tag: EXB operands, LSU address/data halves and branch-station operands.
func (e *Engine) forwardResult(q Tag, v int32) {
	e.exb.Forward(q, v)
	e.lsu.ForwardAddr(q, v)
	e.lsu.ForwardData(q, v)
	e.bru.forward(q, v)
}

// writeback publishes completed results on the CDB and writes them into the
// ROB. Producers that lose arbitration stay done in their unit and compete
// again next cycle. Resolved stores are also marked done on the ROB here;
// they carry no broadcast value, only eligibility to commit.
func (e *Engine) writeback() {
	for _, t := range e.lsu.ReadyTags() {
		e.rob.Write(t, 0)
	}

	const (
		srcEXU = iota
		srcLSU
		srcBRU
	)
	type origin struct {
		src   int
		index int
	}
	origins := make(map[Tag]origin)
	var producers []cdb.Producer

	for _, d := range e.exus.DoneUnits() {
		producers = append(producers, cdb.Producer{Qr: d.Qr, Result: d.Result, FromEXU: true, EXUIndex: d.Index})
		origins[d.Qr] = origin{srcEXU, d.Index}
	}
	for _, d := range e.lsu.DoneLoads() {
		producers = append(producers, cdb.Producer{Qr: d.Qr, Result: d.Result})
		origins[d.Qr] = origin{srcLSU, d.Index}
	}
	for _, d := range e.bru.done() {
		producers = append(producers, cdb.Producer{Qr: d.qr, Result: d.result})
		origins[d.qr] = origin{srcBRU, d.index}
	}

	published, _ := e.bus.Arbitrate(producers)
	for _, p := range published {
		e.rob.Write(p.Qr, p.Result)
		e.forwardResult(p.Qr, p.Result)
		switch o := origins[p.Qr]; o.src {
		case srcEXU:
			e.exus.Retire(o.index)
		case srcLSU:
			e.lsu.RetireLoad(o.index)
		case srcBRU:
			e.bru.retire(o.index)
		}
	}
}

// execute advances every in-flight computation by one cycle: EXU countdowns,
// LSU load resolution, and branch-target resolution. The EXU pool and the
// LSU own disjoint state, so the parallel mode advances them on two
// goroutines and joins both before returning.
func (e *Engine) execute() {
	if e.parallel {
		var g errgroup.Group
		g.Go(func() error { e.exus.Tick(); return nil })
		g.Go(func() error { e.lsu.Tick(); return nil })
		_ = g.Wait()
	} else {
		e.exus.Tick()
		e.lsu.Tick()
	}
	for _, r := range e.bru.resolve() {
		if m, ok := e.meta[r.qr]; ok {
			m.next = e.wrapPC(r.next)
			e.meta[r.qr] = m
			e.tracef("cycle %d: branch tag=%d resolved next=%08x", e.cycle, r.qr, m.next)
		}
	}
}

// issue pairs ready EXB entries with free, capable execution units. An entry
// with no free capable unit simply stays busy and is reconsidered next
// cycle; entries behind it may still issue out of order.
func (e *Engine) issue() {
	for _, idx := range e.exb.ReadyIndices() {
		entry := e.exb.Entry(idx)
		unit, ok := e.exus.FreeCapable(entry.Op)
		if !ok {
			continue
		}
		e.exus.Dispatch(unit, entry.Op, entry.Vj, entry.Vk, entry.Qr)
		e.exb.Release(idx)
		e.stats.Issued++
		e.tracef("cycle %d: issue tag=%d exb=%d exu=%d", e.cycle, entry.Qr, idx, unit)
	}
}

// readOperand resolves a source register to either a value (q == 0) or the
// rename tag still producing it. A dirty register's value is searched on the
// current CDB lanes first, then in the ROB; only if neither holds it does
// the consumer wait.
func (e *Engine) readOperand(reg uint8) (v int32, q Tag) {
	src, dirty := e.regs.ReadSrc(uint32(reg))
	if !dirty {
		return e.regs.ReadData(uint32(reg)), 0
	}
	for _, lane := range e.bus.Lanes() {
		if lane.Valid && lane.Qr == src {
			return lane.Result, 0
		}
	}
	if val, ok := e.rob.Read(src); ok {
		return val, 0
	}
	return 0, src
}

func (e *Engine) stallDispatch(reason string) {
	e.stats.DispatchStalls++
	e.tracef("cycle %d: dispatch stall (%s) pc=%08x", e.cycle, reason, e.pc)
}

// dispatch fetches and decodes the instruction at PC, allocates its ROB slot
// and its execution resource, renames the destination register and advances
// PC. Any full buffer leaves PC and all components untouched; the same
// instruction retries next cycle.
func (e *Engine) dispatch() {
	if e.fetchHold {
		return
	}
	if e.pc&1 != 0 {
		// A misaligned PC cannot name an instruction; skip one byte to
		// realign rather than trapping, since traps are out of scope.
		e.tracef("cycle %d: misaligned pc=%08x, realigning", e.cycle, e.pc)
		e.pc = e.wrapPC(e.pc + 1)
		return
	}

	word := e.mem.ReadWord(e.pc)
	u := isa.DecodeAny(word)
	length := uint32(u.Length)
	if !u.Valid {
		e.tracef("cycle %d: illegal instruction %08x at pc=%08x, nop", e.cycle, word, e.pc)
		e.pc = e.wrapPC(e.pc + length)
		return
	}
	next := e.wrapPC(e.pc + length)

	switch u.Kind {
	case isa.KindNop, isa.KindFence:
		e.pc = next
		return

	case isa.KindECall, isa.KindEBreak:
		if e.rob.Full() {
			e.stallDispatch("rob full")
			return
		}
		q, _ := e.rob.Issue(0)
		e.rob.Write(q, 0)
		e.meta[q] = instrMeta{kind: u.Kind, pc: e.pc, predicted: next, next: next}
		e.fetchHold = true

	case isa.KindALUReg, isa.KindALUImm, isa.KindLUI, isa.KindAUIPC:
		if e.rob.Full() {
			e.stallDispatch("rob full")
			return
		}
		if e.exb.Full() {
			e.stallDispatch("exb full")
			return
		}
		var vj, vk int32
		var qj, qk Tag
		var op uint16
		switch u.Kind {
		case isa.KindALUReg:
			vj, qj = e.readOperand(u.Rs1)
			vk, qk = e.readOperand(u.Rs2)
			op = u.Op10
		case isa.KindALUImm:
			vj, qj = e.readOperand(u.Rs1)
			vk, qk = u.Imm, 0
			op = u.Op10
		case isa.KindLUI:
			vk = u.Imm
			op = isa.OpADD
		case isa.KindAUIPC:
			vj = int32(e.pc)
			vk = u.Imm
			op = isa.OpADD
		}
		q, _ := e.rob.Issue(uint32(u.Rd))
		idx, _ := e.exb.Alloc(op, vj, qj, vk, qk, q)
		e.regs.WriteSrc(uint32(u.Rd), q)
		e.meta[q] = instrMeta{kind: u.Kind, pc: e.pc, predicted: next, next: next}
		e.tracef("cycle %d: dispatch pc=%08x tag=%d exb=%d", e.cycle, e.pc, q, idx)

	case isa.KindJAL:
		if e.rob.Full() {
			e.stallDispatch("rob full")
			return
		}
		q, _ := e.rob.Issue(uint32(u.Rd))
		e.rob.Write(q, int32(e.pc+length))
		e.regs.WriteSrc(uint32(u.Rd), q)
		target := e.wrapPC(e.pc + uint32(u.Imm))
		e.meta[q] = instrMeta{kind: u.Kind, pc: e.pc, predicted: target, next: target}
		next = target

	case isa.KindJALR, isa.KindBranch:
		if e.rob.Full() {
			e.stallDispatch("rob full")
			return
		}
		if e.bru.full() {
			e.stallDispatch("branch station full")
			return
		}
		vj, qj := e.readOperand(u.Rs1)
		var vk int32
		var qk Tag
		rd := uint32(u.Rd)
		if u.Kind == isa.KindBranch {
			// B-format has no rd; those encoding bits are immediate bits.
			rd = 0
			vk, qk = e.readOperand(u.Rs2)
		}
		q, _ := e.rob.Issue(rd)
		e.bru.alloc(branchEntry{
			kind: u.Kind, funct3: u.Funct3,
			vj: vj, qj: qj, vk: vk, qk: qk,
			qr: q, pc: e.pc, imm: u.Imm, length: length,
			link: int32(e.pc + length),
		})
		e.regs.WriteSrc(rd, q)
		e.meta[q] = instrMeta{kind: u.Kind, pc: e.pc, predicted: next, next: next}
		e.tracef("cycle %d: dispatch pc=%08x tag=%d branch", e.cycle, e.pc, q)

	case isa.KindLoad:
		if e.rob.Full() {
			e.stallDispatch("rob full")
			return
		}
		if e.lsu.LoadFull() {
			e.stallDispatch("load buffer full")
			return
		}
		vj, qj := e.readOperand(u.Rs1)
		q, _ := e.rob.Issue(uint32(u.Rd))
		e.lsu.AllocLoad(u.Width, vj, qj, u.Imm, q)
		e.regs.WriteSrc(uint32(u.Rd), q)
		e.meta[q] = instrMeta{kind: u.Kind, pc: e.pc, predicted: next, next: next}

	case isa.KindStore:
		if e.rob.Full() {
			e.stallDispatch("rob full")
			return
		}
		if e.lsu.StoreFull() {
			e.stallDispatch("store buffer full")
			return
		}
		vj, qj := e.readOperand(u.Rs1)
		vk, qk := e.readOperand(u.Rs2)
		q, _ := e.rob.Issue(0)
		e.lsu.AllocStore(u.Width, vj, qj, u.Imm, vk, qk, q)
		e.meta[q] = instrMeta{kind: u.Kind, pc: e.pc, predicted: next, next: next}

	default:
		e.tracef("cycle %d: unhandled op kind %d at pc=%08x, nop", e.cycle, u.Kind, e.pc)
	}

	e.stats.Dispatched++
	e.pc = next
}

// flushTo discards all speculative state and restarts fetch at next. Called
// from commit when a branch's resolved target disagrees with the path fetch
// followed; since the branch was the ROB head, every in-flight instruction
// is younger than it and the recovery is a bulk reset: every dirty rename
// belongs to a now-discarded producer, so all of them clear.
func (e *Engine) flushTo(next uint32) {
	e.rob.Flush()
	e.exb.Flush()
	e.exus.Flush()
	e.lsu.Flush()
	e.bru.flush()
	e.regs.ClearDirtyMatching(func(Tag) bool { return true })
	e.meta = make(map[Tag]instrMeta)
	e.fetchHold = false
	e.pc = e.wrapPC(next)
	e.stats.Flushes++
	e.tracef("cycle %d: flush, redirect pc=%08x", e.cycle, e.pc)
}
