// main.go - rv32sim command-line frontend

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/intuitionamiga/rv32oo/internal/debugger"
	"github.com/intuitionamiga/rv32oo/internal/disasm"
	"github.com/intuitionamiga/rv32oo/internal/engine"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "rv32sim",
		Short: "rv32sim - out-of-order RV32IMC simulator",
	}

	var params engine.Parameters
	var maxCycles uint64
	rootCmd.PersistentFlags().IntVar(&params.MemSize, "mem", 1<<20, "memory size in bytes")
	rootCmd.PersistentFlags().IntVar(&params.ROBSize, "rob", 32, "reorder buffer slots")
	rootCmd.PersistentFlags().IntVar(&params.EXBSize, "exb", 16, "execution buffer slots")
	rootCmd.PersistentFlags().IntVar(&params.CDBSize, "cdb", 2, "data bus broadcast lanes")
	rootCmd.PersistentFlags().IntVar(&params.NbUnits, "units", 4, "execution units")
	rootCmd.PersistentFlags().BoolVar(&params.Trace, "trace", false, "write per-cycle stage diagnostics to stderr")
	rootCmd.PersistentFlags().BoolVar(&params.Parallel, "parallel", false, "advance EXU pool and LSU concurrently")
	rootCmd.PersistentFlags().Uint64Var(&maxCycles, "max-cycles", 100_000_000, "cycle budget before aborting")

	newEngine := func(program string) (*engine.Engine, error) {
		params.ProgramPath = program
		return engine.New(params)
	}

	runCmd := &cobra.Command{
		Use:   "run <program>",
		Short: "Run a program (hex text or ELF) until it exits",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := newEngine(args[0])
			if err != nil {
				return err
			}
			if err := eng.Run(maxCycles); err != nil {
				return err
			}
			if eng.State() == engine.StatePaused {
				fmt.Println("hit ebreak; entering debugger (quit to exit)")
				dbg := debugger.New(eng, os.Stdout)
				defer dbg.Close()
				return dbg.RunSession(os.Stdin)
			}
			printSummary(eng)
			return nil
		},
	}

	var stepCount int
	stepCmd := &cobra.Command{
		Use:   "step <program>",
		Short: "Retire a fixed number of instructions, then print machine state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := newEngine(args[0])
			if err != nil {
				return err
			}
			for i := 0; i < stepCount && eng.State() != engine.StateStopped; i++ {
				if err := eng.StepInstr(); err != nil {
					return err
				}
			}
			printSummary(eng)
			return nil
		},
	}
	stepCmd.Flags().IntVar(&stepCount, "count", 1, "instructions to retire")

	debugCmd := &cobra.Command{
		Use:   "debug <program>",
		Short: "Load a program and enter the interactive debugger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := newEngine(args[0])
			if err != nil {
				return err
			}
			eng.Pause()
			dbg := debugger.New(eng, os.Stdout)
			defer dbg.Close()
			return dbg.RunSession(os.Stdin)
		},
	}

	var dumpAddr, dumpLen uint32
	dumpCmd := &cobra.Command{
		Use:   "dump <program>",
		Short: "Load a program and print a disassembly listing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := newEngine(args[0])
			if err != nil {
				return err
			}
			for addr := dumpAddr; addr < dumpAddr+dumpLen; {
				word := eng.ReadMemWord(addr)
				length := eng.InstrLength(addr)
				if length == 2 {
					fmt.Printf("%08x: %04x      %s\n", addr, word&0xFFFF, disasm.Disassemble(word&0xFFFF))
				} else {
					fmt.Printf("%08x: %08x  %s\n", addr, word, disasm.Disassemble(word))
				}
				addr += uint32(length)
			}
			return nil
		},
	}
	dumpCmd.Flags().Uint32Var(&dumpAddr, "addr", 0, "start address")
	dumpCmd.Flags().Uint32Var(&dumpLen, "len", 64, "bytes to disassemble")

	rootCmd.AddCommand(runCmd, stepCmd, debugCmd, dumpCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func printSummary(eng *engine.Engine) {
	regs := eng.Registers()
	for i := 0; i < len(regs); i += 4 {
		for j := 0; j < 4; j++ {
			fmt.Printf("x%-2d=%08x  ", i+j, uint32(regs[i+j]))
		}
		fmt.Println()
	}
	s := eng.Stats()
	fmt.Printf("pc=%08x state=%s cycles=%d committed=%d flushes=%d\n",
		eng.PC(), eng.State(), s.Cycles, s.Committed, s.Flushes)
}
