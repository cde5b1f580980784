// debugger.go - interactive debugger over the engine's debug surface

/*
The debugger drives the engine exclusively through its exported debug
surface: pause state, PC and register access, memory access, instruction
lengths and single-step. Breakpoints fire on the committed-instruction
boundary (after StepInstr), so the architectural state a stopped user
inspects is always consistent.

Conditions are Lua expressions evaluated in a sandboxed interpreter state
with the machine exposed read-only: reg[0..31], pc, cycle, and mem(addr).
An address breakpoint with no condition always fires.
*/

package debugger

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/intuitionamiga/rv32oo/internal/disasm"
	"github.com/intuitionamiga/rv32oo/internal/engine"
)

// continueBudget bounds how many instructions a single continue command may
// retire before giving up, so a breakpoint that never fires cannot hang the
// session.
const continueBudget = 50_000_000

// Breakpoint is an address breakpoint with an optional Lua condition.
type Breakpoint struct {
	Addr      uint32
	Enabled   bool
	Condition string
}

// Debugger owns the breakpoint table and the Lua state used for conditions.
type Debugger struct {
	eng    *engine.Engine
	out    io.Writer
	breaks map[uint32]*Breakpoint
	ls     *lua.LState
}

// New returns a debugger attached to eng, writing command output to out.
func New(eng *engine.Engine, out io.Writer) *Debugger {
	ls := lua.NewState(lua.Options{SkipOpenLibs: true})
	d := &Debugger{
		eng:    eng,
		out:    out,
		breaks: make(map[uint32]*Breakpoint),
		ls:     ls,
	}
	ls.SetGlobal("mem", ls.NewFunction(d.luaMem))
	return d
}

// Close releases the Lua state.
func (d *Debugger) Close() {
	d.ls.Close()
}

func (d *Debugger) luaMem(l *lua.LState) int {
	addr := uint32(l.CheckInt64(1))
	l.Push(lua.LNumber(d.eng.ReadMemWord(addr)))
	return 1
}

// SetBreak installs (or replaces) a breakpoint at addr. A non-empty cond is
// compiled immediately so a typo surfaces at set time, not at fire time.
func (d *Debugger) SetBreak(addr uint32, cond string) error {
	cond = strings.TrimSpace(cond)
	if cond != "" {
		if _, err := d.ls.LoadString("return (" + cond + ")"); err != nil {
			return fmt.Errorf("debugger: bad condition %q: %w", cond, err)
		}
	}
	d.breaks[addr] = &Breakpoint{Addr: addr, Enabled: true, Condition: cond}
	return nil
}

// DeleteBreak removes the breakpoint at addr, reporting whether one existed.
func (d *Debugger) DeleteBreak(addr uint32) bool {
	if _, ok := d.breaks[addr]; !ok {
		return false
	}
	delete(d.breaks, addr)
	return true
}

// SetBreakEnabled flips a breakpoint without forgetting its condition.
func (d *Debugger) SetBreakEnabled(addr uint32, enabled bool) bool {
	bp, ok := d.breaks[addr]
	if ok {
		bp.Enabled = enabled
	}
	return ok
}

// Breakpoints lists the current breakpoints in ascending address order.
func (d *Debugger) Breakpoints() []Breakpoint {
	out := make([]Breakpoint, 0, len(d.breaks))
	for _, bp := range d.breaks {
		out = append(out, *bp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Addr < out[j].Addr })
	return out
}

// refreshLuaMachineState mirrors the engine's registers, PC and cycle into
// the Lua globals a condition reads.
func (d *Debugger) refreshLuaMachineState() {
	regs := d.ls.NewTable()
	snapshot := d.eng.Registers()
	for i, v := range snapshot {
		regs.RawSetInt(i, lua.LNumber(v))
	}
	d.ls.SetGlobal("reg", regs)
	d.ls.SetGlobal("pc", lua.LNumber(d.eng.PC()))
	d.ls.SetGlobal("cycle", lua.LNumber(d.eng.Cycle()))
}

// shouldBreak reports whether a breakpoint at addr fires given the current
// machine state. A condition that errors at evaluation fires the breakpoint
// anyway, with a diagnostic - stopping wrongly beats running through a bug.
func (d *Debugger) shouldBreak(addr uint32) bool {
	bp, ok := d.breaks[addr]
	if !ok || !bp.Enabled {
		return false
	}
	if bp.Condition == "" {
		return true
	}
	d.refreshLuaMachineState()
	if err := d.ls.DoString("return (" + bp.Condition + ")"); err != nil {
		fmt.Fprintf(d.out, "breakpoint %08x: condition error: %v\n", addr, err)
		return true
	}
	ret := d.ls.Get(-1)
	d.ls.Pop(1)
	return lua.LVAsBool(ret)
}

// Step retires one instruction.
func (d *Debugger) Step() error {
	return d.eng.StepInstr()
}

// Continue retires instructions until one at a breakpoint address commits,
// or the engine stops. Breakpoints key on the committed instruction's
// address, not the fetch PC, which runs ahead speculatively in an
// out-of-order core. Returns the address of the breakpoint hit, if any.
func (d *Debugger) Continue() (hit uint32, ok bool, err error) {
	for i := 0; i < continueBudget; i++ {
		if err := d.eng.StepInstr(); err != nil {
			return 0, false, err
		}
		if d.eng.State() == engine.StateStopped {
			return 0, false, nil
		}
		if pc, committed := d.eng.LastCommitPC(); committed && d.shouldBreak(pc) {
			return pc, true, nil
		}
	}
	return 0, false, fmt.Errorf("debugger: continue budget exhausted")
}

func parseAddr(s string) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, 32)
	if err != nil {
		return 0, fmt.Errorf("debugger: %q is not a hex address", s)
	}
	return uint32(v), nil
}

// printRegisters writes the 32-register dump plus PC.
func (d *Debugger) printRegisters() {
	regs := d.eng.Registers()
	for i := 0; i < len(regs); i += 4 {
		for j := 0; j < 4; j++ {
			fmt.Fprintf(d.out, "x%-2d=%08x  ", i+j, uint32(regs[i+j]))
		}
		fmt.Fprintln(d.out)
	}
	fmt.Fprintf(d.out, "pc =%08x  cycle=%d  state=%s\n", d.eng.PC(), d.eng.Cycle(), d.eng.State())
}

// dumpMemory writes n bytes from addr as a classic hex/ascii listing.
func (d *Debugger) dumpMemory(addr uint32, n int) {
	for off := 0; off < n; off += 16 {
		row := d.eng.ReadMem(addr+uint32(off), min(16, n-off))
		fmt.Fprintf(d.out, "%08x: ", addr+uint32(off))
		for _, b := range row {
			fmt.Fprintf(d.out, "%02x ", b)
		}
		for _, b := range row {
			if b >= 0x20 && b < 0x7F {
				fmt.Fprintf(d.out, "%c", b)
			} else {
				fmt.Fprint(d.out, ".")
			}
		}
		fmt.Fprintln(d.out)
	}
}

func (d *Debugger) disasmAt(addr uint32) string {
	return disasm.Disassemble(d.eng.ReadMemWord(addr))
}

// Exec parses and runs one debugger command line. done reports that the
// session should end (exit, or the engine stopped).
func (d *Debugger) Exec(line string) (done bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "break", "b":
		if len(args) < 1 {
			return false, fmt.Errorf("usage: break <hexaddr> [lua-condition]")
		}
		addr, err := parseAddr(args[0])
		if err != nil {
			return false, err
		}
		if err := d.SetBreak(addr, strings.Join(args[1:], " ")); err != nil {
			return false, err
		}
		fmt.Fprintf(d.out, "breakpoint set at %08x\n", addr)

	case "delete":
		addr, err := parseAddr(argOne(args))
		if err != nil {
			return false, err
		}
		if !d.DeleteBreak(addr) {
			return false, fmt.Errorf("no breakpoint at %08x", addr)
		}

	case "enable", "disable":
		addr, err := parseAddr(argOne(args))
		if err != nil {
			return false, err
		}
		if !d.SetBreakEnabled(addr, cmd == "enable") {
			return false, fmt.Errorf("no breakpoint at %08x", addr)
		}

	case "jump":
		addr, err := parseAddr(argOne(args))
		if err != nil {
			return false, err
		}
		d.eng.SetPC(addr)

	case "print", "p":
		d.printRegisters()

	case "dump":
		if len(args) < 1 {
			return false, fmt.Errorf("usage: dump <hexaddr> [bytes]")
		}
		addr, err := parseAddr(args[0])
		if err != nil {
			return false, err
		}
		n := 64
		if len(args) > 1 {
			if n, err = strconv.Atoi(args[1]); err != nil {
				return false, fmt.Errorf("debugger: %q is not a byte count", args[1])
			}
		}
		d.dumpMemory(addr, n)

	case "write":
		if len(args) != 2 {
			return false, fmt.Errorf("usage: write <hexaddr> <hexword>")
		}
		addr, err := parseAddr(args[0])
		if err != nil {
			return false, err
		}
		val, err := parseAddr(args[1])
		if err != nil {
			return false, err
		}
		d.eng.WriteMem(addr, []byte{byte(val), byte(val >> 8), byte(val >> 16), byte(val >> 24)})

	case "list", "l":
		for _, bp := range d.Breakpoints() {
			state := "enabled"
			if !bp.Enabled {
				state = "disabled"
			}
			fmt.Fprintf(d.out, "%08x %s %s\n", bp.Addr, state, bp.Condition)
		}

	case "step", "s":
		if err := d.Step(); err != nil {
			return false, err
		}
		fmt.Fprintf(d.out, "%08x: %s\n", d.eng.PC(), d.disasmAt(d.eng.PC()))
		return d.eng.State() == engine.StateStopped, nil

	case "continue", "c":
		hit, ok, err := d.Continue()
		if err != nil {
			return false, err
		}
		if ok {
			fmt.Fprintf(d.out, "breakpoint hit at %08x: %s\n", hit, d.disasmAt(hit))
			return false, nil
		}
		fmt.Fprintln(d.out, "program stopped")
		return true, nil

	case "help", "h":
		fmt.Fprint(d.out, helpText)

	case "exit", "quit", "q":
		return true, nil

	default:
		return false, fmt.Errorf("unknown command %q (try help)", cmd)
	}
	return false, nil
}

func argOne(args []string) string {
	if len(args) != 1 {
		return ""
	}
	return args[0]
}

const helpText = `commands:
  break <hexaddr> [lua-cond]  set breakpoint (cond sees reg[], pc, cycle, mem())
  delete <hexaddr>            remove breakpoint
  enable|disable <hexaddr>    toggle breakpoint
  list                        list breakpoints
  jump <hexaddr>              set PC
  print                       dump registers
  dump <hexaddr> [bytes]      dump memory
  write <hexaddr> <hexword>   write a memory word
  step                        retire one instruction
  continue                    run to next breakpoint or stop
  exit                        leave the debugger
`
