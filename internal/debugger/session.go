// session.go - interactive debugger session over a terminal or a pipe

package debugger

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// RunSession drives an interactive command loop reading from in and writing
// to the debugger's output. When in is a real terminal it is switched to raw
// mode and handed to a line editor (history, kill-line, the usual); restored
// on exit. Anything else (a pipe, a script) falls back to plain line reads
// so sessions are scriptable in tests and CI.
func (d *Debugger) RunSession(in *os.File) error {
	fd := int(in.Fd())
	if term.IsTerminal(fd) {
		return d.runTerminal(in, fd)
	}
	return d.runPlain(in)
}

type termIO struct {
	io.Reader
	io.Writer
}

func (d *Debugger) runTerminal(in *os.File, fd int) error {
	old, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("debugger: %w", err)
	}
	defer term.Restore(fd, old)

	t := term.NewTerminal(termIO{Reader: in, Writer: d.out}, "(dbg) ")
	for {
		line, err := t.ReadLine()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		done, err := d.Exec(line)
		if err != nil {
			fmt.Fprintln(d.out, err)
		}
		if done {
			return nil
		}
	}
}

func (d *Debugger) runPlain(in *os.File) error {
	sc := bufio.NewScanner(in)
	fmt.Fprint(d.out, "(dbg) ")
	for sc.Scan() {
		done, err := d.Exec(sc.Text())
		if err != nil {
			fmt.Fprintln(d.out, err)
		}
		if done {
			return nil
		}
		fmt.Fprint(d.out, "(dbg) ")
	}
	return sc.Err()
}
