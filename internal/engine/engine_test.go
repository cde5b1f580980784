package engine

import (
	"bytes"
	"encoding/binary"
	"regexp"
	"strconv"
	"testing"
)

// RV32 instruction encoders for building test programs in place.

func encR(f7, rs2, rs1, f3, rd uint32) uint32 {
	return f7<<25 | rs2<<20 | rs1<<15 | f3<<12 | rd<<7 | 0x33
}

func encI(imm int32, rs1, f3, rd uint32) uint32 {
	return (uint32(imm)&0xFFF)<<20 | rs1<<15 | f3<<12 | rd<<7 | 0x13
}

func encLoad(imm int32, rs1, f3, rd uint32) uint32 {
	return (uint32(imm)&0xFFF)<<20 | rs1<<15 | f3<<12 | rd<<7 | 0x03
}

func encStore(imm int32, rs2, rs1, f3 uint32) uint32 {
	ui := uint32(imm) & 0xFFF
	return (ui>>5)<<25 | rs2<<20 | rs1<<15 | f3<<12 | (ui&0x1F)<<7 | 0x23
}

func encB(imm int32, rs2, rs1, f3 uint32) uint32 {
	ui := uint32(imm)
	return ((ui>>12)&1)<<31 | ((ui>>5)&0x3F)<<25 | rs2<<20 | rs1<<15 |
		f3<<12 | ((ui>>1)&0xF)<<8 | ((ui>>11)&1)<<7 | 0x63
}

func encJ(imm int32, rd uint32) uint32 {
	ui := uint32(imm)
	return ((ui>>20)&1)<<31 | ((ui>>1)&0x3FF)<<21 | ((ui>>11)&1)<<20 |
		((ui>>12)&0xFF)<<12 | rd<<7 | 0x6F
}

func encJALR(imm int32, rs1, rd uint32) uint32 {
	return (uint32(imm)&0xFFF)<<20 | rs1<<15 | rd<<7 | 0x67
}

const ecall = 0x00000073
const ebreak = 0x00100073

func defParams() Parameters {
	return Parameters{MemSize: 4096, EXBSize: 8, ROBSize: 8, CDBSize: 2, NbUnits: 2}
}

func newEngine(t *testing.T, p Parameters) *Engine {
	t.Helper()
	e, err := New(p)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func loadWords(e *Engine, words ...uint32) {
	buf := make([]byte, 4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf, w)
		e.WriteMem(uint32(i*4), buf)
	}
}

func run(t *testing.T, e *Engine) {
	t.Helper()
	if err := e.Run(100000); err != nil {
		t.Fatal(err)
	}
}

func TestSimpleAddition(t *testing.T) {
	e := newEngine(t, defParams())
	loadWords(e,
		encI(5, 0, 0, 1),    // ADDI x1, x0, 5
		encI(7, 0, 0, 2),    // ADDI x2, x0, 7
		encR(0, 2, 1, 0, 3), // ADD x3, x1, x2
		ecall,
	)
	run(t, e)
	if e.State() != StateStopped {
		t.Fatalf("state = %v, want stopped", e.State())
	}
	if x1, x2, x3 := e.ReadReg(1), e.ReadReg(2), e.ReadReg(3); x1 != 5 || x2 != 7 || x3 != 12 {
		t.Fatalf("x1=%d x2=%d x3=%d, want 5 7 12", x1, x2, x3)
	}
}

func TestRAWHazardResolvedViaForwarding(t *testing.T) {
	p := defParams()
	p.ROBSize = 4
	p.EXBSize = 2
	p.NbUnits = 1
	e := newEngine(t, p)
	loadWords(e,
		encI(10, 0, 0, 1),   // ADDI x1, x0, 10
		encR(0, 1, 1, 0, 2), // ADD x2, x1, x1
		ecall,
	)
	run(t, e)
	if got := e.ReadReg(2); got != 20 {
		t.Fatalf("x2 = %d, want 20", got)
	}
}

func TestStoreToLoadForwarding(t *testing.T) {
	e := newEngine(t, defParams())
	loadWords(e,
		encI(42, 0, 0, 1),    // ADDI x1, x0, 42
		encStore(0, 1, 0, 2), // SW x1, 0(x0)
		encLoad(0, 0, 2, 2),  // LW x2, 0(x0)
		ecall,
	)
	run(t, e)
	if got := e.ReadReg(2); got != 42 {
		t.Fatalf("x2 = %d, want 42 (store-to-load forwarding)", got)
	}
	if got := e.ReadMemWord(0); got != 42 {
		t.Fatalf("mem[0] = %d, want 42 (store drained at commit)", got)
	}
}

func TestDivideByZeroIsNonFatal(t *testing.T) {
	e := newEngine(t, defParams())
	loadWords(e,
		encI(10, 0, 0, 1),   // ADDI x1, x0, 10
		encI(0, 0, 0, 2),    // ADDI x2, x0, 0
		encR(1, 2, 1, 4, 3), // DIV x3, x1, x2
		ecall,
	)
	run(t, e)
	if e.State() != StateStopped {
		t.Fatalf("engine should stop cleanly, state = %v", e.State())
	}
	if got := e.ReadReg(3); got != -1 {
		t.Fatalf("x3 = %d, want -1 (divide-by-zero result)", got)
	}
}

func TestCompressedLoadImmediate(t *testing.T) {
	e := newEngine(t, defParams())
	// C.LI x5, 8 is the halfword 0x42A1; ECALL follows at address 2.
	loadWords(e, 0x42A1|uint32(ecall&0xFFFF)<<16, ecall>>16)
	run(t, e)
	if got := e.ReadReg(5); got != 8 {
		t.Fatalf("x5 = %d, want 8", got)
	}
}

func TestMultiCycleLatencyStallsDependent(t *testing.T) {
	var trace bytes.Buffer
	p := defParams()
	p.Trace = true
	p.TraceWriter = &trace
	e := newEngine(t, p)
	loadWords(e,
		encI(3, 0, 0, 1),    // ADDI x1, x0, 3
		encI(5, 0, 0, 2),    // ADDI x2, x0, 5
		encR(1, 2, 1, 0, 3), // MUL x3, x1, x2
		encR(0, 1, 3, 0, 4), // ADD x4, x3, x1
		ecall,
	)
	run(t, e)
	if x3, x4 := e.ReadReg(3), e.ReadReg(4); x3 != 15 || x4 != 18 {
		t.Fatalf("x3=%d x4=%d, want 15 18", x3, x4)
	}

	// The ADD (4th dispatch, tag 4) must sit in the EXB waiting for the
	// MUL's 4-cycle latency: its issue cycle is well after its dispatch.
	dispatchCycle := traceCycle(t, &trace, `cycle (\d+): dispatch pc=\S+ tag=4 exb=`)
	issueCycle := traceCycle(t, &trace, `cycle (\d+): issue tag=4 `)
	if issueCycle < dispatchCycle+2 {
		t.Fatalf("ADD issued at cycle %d after dispatch at %d; expected a multi-cycle wait", issueCycle, dispatchCycle)
	}
}

func traceCycle(t *testing.T, trace *bytes.Buffer, pattern string) uint64 {
	t.Helper()
	m := regexp.MustCompile(pattern).FindStringSubmatch(trace.String())
	if m == nil {
		t.Fatalf("trace does not match %q:\n%s", pattern, trace.String())
	}
	n, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func TestTakenBranchLoopFlushes(t *testing.T) {
	e := newEngine(t, defParams())
	loadWords(e,
		encI(3, 0, 0, 1),  // ADDI x1, x0, 3
		encI(-1, 1, 0, 1), // ADDI x1, x1, -1
		encB(-4, 0, 1, 1), // BNE x1, x0, -4
		ecall,
	)
	run(t, e)
	if got := e.ReadReg(1); got != 0 {
		t.Fatalf("x1 = %d, want 0 after the countdown loop", got)
	}
	// Not-taken prediction: each taken backward branch costs one flush.
	if got := e.Stats().Flushes; got != 2 {
		t.Fatalf("flushes = %d, want 2", got)
	}
}

func TestJALRedirectsWithoutFlush(t *testing.T) {
	e := newEngine(t, defParams())
	loadWords(e,
		encJ(8, 1),        // JAL x1, +8
		encI(99, 0, 0, 2), // ADDI x2, x0, 99 (jumped over)
		encI(7, 0, 0, 3),  // ADDI x3, x0, 7
		ecall,
	)
	run(t, e)
	if x1 := e.ReadReg(1); x1 != 4 {
		t.Fatalf("x1 = %d, want link 4", x1)
	}
	if x2 := e.ReadReg(2); x2 != 0 {
		t.Fatalf("x2 = %d, the jumped-over instruction must not commit", x2)
	}
	if x3 := e.ReadReg(3); x3 != 7 {
		t.Fatalf("x3 = %d, want 7", x3)
	}
	if got := e.Stats().Flushes; got != 0 {
		t.Fatalf("JAL resolves at dispatch, flushes = %d, want 0", got)
	}
}

func TestJALRFlushesWrongPathWork(t *testing.T) {
	e := newEngine(t, defParams())
	loadWords(e,
		encI(12, 0, 0, 1), // ADDI x1, x0, 12
		encJALR(0, 1, 2),  // JALR x2, 0(x1)
		encI(99, 0, 0, 3), // ADDI x3, x0, 99 (wrong-path, must be flushed)
		ecall,             // jump target
	)
	run(t, e)
	if x2 := e.ReadReg(2); x2 != 8 {
		t.Fatalf("x2 = %d, want link 8", x2)
	}
	if x3 := e.ReadReg(3); x3 != 0 {
		t.Fatalf("x3 = %d, wrong-path work must not commit", x3)
	}
	if got := e.Stats().Flushes; got != 1 {
		t.Fatalf("flushes = %d, want 1", got)
	}
}

func TestSubWordStoreAndSignExtendingLoads(t *testing.T) {
	e := newEngine(t, defParams())
	loadWords(e,
		encI(0x1FF, 0, 0, 1),     // ADDI x1, x0, 0x1FF
		encStore(0x100, 1, 0, 1), // SH x1, 0x100(x0)
		encLoad(0x100, 0, 0, 2),  // LB x2, 0x100(x0) -> sign-extended 0xFF
		encLoad(0x100, 0, 4, 3),  // LBU x3, 0x100(x0) -> 255
		ecall,
	)
	run(t, e)
	if x2 := e.ReadReg(2); x2 != -1 {
		t.Fatalf("x2 = %d, want -1 (LB sign-extends)", x2)
	}
	if x3 := e.ReadReg(3); x3 != 255 {
		t.Fatalf("x3 = %d, want 255 (LBU zero-extends)", x3)
	}
	if got := e.ReadMemWord(0x100) & 0xFFFF; got != 0x1FF {
		t.Fatalf("mem[0x100] = %04x, want 01ff", got)
	}
}

func TestTinyROBStallsButCompletes(t *testing.T) {
	p := defParams()
	p.ROBSize = 1
	e := newEngine(t, p)
	loadWords(e,
		encI(1, 0, 0, 1),
		encI(2, 0, 0, 2),
		encI(3, 0, 0, 3),
		ecall,
	)
	run(t, e)
	if x1, x2, x3 := e.ReadReg(1), e.ReadReg(2), e.ReadReg(3); x1 != 1 || x2 != 2 || x3 != 3 {
		t.Fatalf("x1=%d x2=%d x3=%d, want 1 2 3", x1, x2, x3)
	}
	if e.Stats().DispatchStalls == 0 {
		t.Fatal("a one-entry ROB must stall dispatch at least once")
	}
}

func TestX0StaysZeroThroughCommit(t *testing.T) {
	e := newEngine(t, defParams())
	loadWords(e,
		encI(5, 0, 0, 0), // ADDI x0, x0, 5
		ecall,
	)
	run(t, e)
	if got := e.ReadReg(0); got != 0 {
		t.Fatalf("x0 = %d, must stay 0", got)
	}
}

func TestPCWrapsModuloMemSize(t *testing.T) {
	e := newEngine(t, defParams())
	e.SetPC(uint32(defParams().MemSize) + 4)
	if got := e.PC(); got != 4 {
		t.Fatalf("pc = %d, want 4", got)
	}
}

func TestIllegalInstructionIsNopWithDiagnostic(t *testing.T) {
	var trace bytes.Buffer
	p := defParams()
	p.Trace = true
	p.TraceWriter = &trace
	e := newEngine(t, p)
	loadWords(e,
		0xFFFFFFFF, // no such encoding
		encI(9, 0, 0, 1),
		ecall,
	)
	run(t, e)
	if got := e.ReadReg(1); got != 9 {
		t.Fatalf("x1 = %d, execution must continue past an illegal instruction", got)
	}
	if !bytes.Contains(trace.Bytes(), []byte("illegal instruction")) {
		t.Fatal("expected an illegal-instruction diagnostic in the trace")
	}
}

func TestEBreakPausesAndResumes(t *testing.T) {
	e := newEngine(t, defParams())
	loadWords(e,
		encI(1, 0, 0, 1),
		ebreak,
		encI(2, 0, 0, 2),
		ecall,
	)
	run(t, e)
	if e.State() != StatePaused {
		t.Fatalf("state = %v, want paused at EBREAK", e.State())
	}
	if x1, x2 := e.ReadReg(1), e.ReadReg(2); x1 != 1 || x2 != 0 {
		t.Fatalf("x1=%d x2=%d at the pause point, want 1 0", x1, x2)
	}
	e.Resume()
	run(t, e)
	if e.State() != StateStopped {
		t.Fatalf("state = %v, want stopped after resume", e.State())
	}
	if got := e.ReadReg(2); got != 2 {
		t.Fatalf("x2 = %d, want 2", got)
	}
}

func TestStepInstrCommitsExactlyOne(t *testing.T) {
	e := newEngine(t, defParams())
	loadWords(e,
		encI(1, 0, 0, 1),
		encI(2, 0, 0, 2),
		ecall,
	)
	e.Pause()
	if err := e.StepInstr(); err != nil {
		t.Fatal(err)
	}
	if got := e.Stats().Committed; got != 1 {
		t.Fatalf("committed = %d after one step, want 1", got)
	}
	if x1, x2 := e.ReadReg(1), e.ReadReg(2); x1 != 1 || x2 != 0 {
		t.Fatalf("x1=%d x2=%d after one step, want 1 0", x1, x2)
	}
}

func TestParallelTickMatchesSerial(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		p := defParams()
		p.Parallel = parallel
		e := newEngine(t, p)
		loadWords(e,
			encI(42, 0, 0, 1),
			encStore(0, 1, 0, 2),
			encLoad(0, 0, 2, 2),
			encR(1, 2, 1, 0, 3), // MUL x3, x1, x2
			ecall,
		)
		run(t, e)
		if x2, x3 := e.ReadReg(2), e.ReadReg(3); x2 != 42 || x3 != 42*42 {
			t.Fatalf("parallel=%v: x2=%d x3=%d, want 42 %d", parallel, x2, x3, 42*42)
		}
	}
}

func TestParameterValidation(t *testing.T) {
	cases := map[string]Parameters{
		"zero mem":     {EXBSize: 1, ROBSize: 1, CDBSize: 1, NbUnits: 1},
		"zero rob":     {MemSize: 64, EXBSize: 1, CDBSize: 1, NbUnits: 1},
		"zero exb":     {MemSize: 64, ROBSize: 1, CDBSize: 1, NbUnits: 1},
		"zero cdb":     {MemSize: 64, EXBSize: 1, ROBSize: 1, NbUnits: 1},
		"zero units":   {MemSize: 64, EXBSize: 1, ROBSize: 1, CDBSize: 1},
		"rob too big":  {MemSize: 64, EXBSize: 1, ROBSize: 1 << 20, CDBSize: 1, NbUnits: 1},
		"bad reg size": {MemSize: 64, EXBSize: 1, ROBSize: 1, CDBSize: 1, NbUnits: 1, RegSize: 16},
	}
	for name, p := range cases {
		if _, err := New(p); err == nil {
			t.Errorf("%s: expected a configuration error", name)
		}
	}
}

func TestMissingProgramFileRefusesToStart(t *testing.T) {
	p := defParams()
	p.ProgramPath = "/no/such/program.txt"
	if _, err := New(p); err == nil {
		t.Fatal("expected an I/O error from init")
	}
}

func TestInstrLength(t *testing.T) {
	e := newEngine(t, defParams())
	loadWords(e, encI(5, 0, 0, 1), 0x42A1)
	if got := e.InstrLength(0); got != 4 {
		t.Fatalf("length at 0 = %d, want 4", got)
	}
	if got := e.InstrLength(4); got != 2 {
		t.Fatalf("length at 4 = %d, want 2", got)
	}
}
