// loader.go - program-image loaders: hex text and ELF32

/*
Two loaders share the memory-image contract: bytes land little-endian at
increasing addresses and the caller's engine starts fetching wherever the
loader says. The hex-text form is one 32-bit word per line, written from
address 0 with entry 0. The ELF form copies each PT_LOAD segment to its
virtual address, zero-padding when memsz exceeds filesz, and reports the
header's entry point.
*/

package loader

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/intuitionamiga/rv32oo/internal/memory"
)

// LoadFile loads the program at path into mem, picking the format by
// extension: .txt is hex text, anything else is treated as ELF. Returns the
// entry-point address fetch should start from.
func LoadFile(mem *memory.Memory, path string) (uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("loader: %w", err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".txt") {
		return 0, LoadHexText(mem, f)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return 0, fmt.Errorf("loader: %w", err)
	}
	return LoadELF(mem, data)
}

// LoadHexText reads one 32-bit hex word per line from r and writes each
// little-endian at increasing offsets starting at address 0. Blank lines are
// skipped; anything else that fails to parse as a 32-bit hex value aborts
// the load.
func LoadHexText(mem *memory.Memory, r io.Reader) error {
	sc := bufio.NewScanner(r)
	var addr uint32
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		word, err := strconv.ParseUint(text, 16, 32)
		if err != nil {
			return fmt.Errorf("loader: line %d: %q is not a 32-bit hex word", line, text)
		}
		mem.WriteWord(addr, uint32(word))
		addr += 4
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("loader: %w", err)
	}
	return nil
}

// ELF32 constants, only what segment loading needs.
const (
	elfMagic0   = 0x7F
	elfClass32  = 1
	elfDataLE   = 1
	elfPTLoad   = 1
	ehdrSize    = 52
	phentMinLen = 32
)

// LoadELF copies every PT_LOAD segment of a little-endian ELF32 image into
// mem at its virtual address and returns the header's entry point. Segments
// with memsz > filesz have the remainder zeroed. No relocation is applied.
func LoadELF(mem *memory.Memory, data []byte) (uint32, error) {
	if len(data) < ehdrSize {
		return 0, fmt.Errorf("loader: elf image truncated at %d bytes", len(data))
	}
	if data[0] != elfMagic0 || data[1] != 'E' || data[2] != 'L' || data[3] != 'F' {
		return 0, fmt.Errorf("loader: not an elf image")
	}
	if data[4] != elfClass32 {
		return 0, fmt.Errorf("loader: only 32-bit elf images are supported")
	}
	if data[5] != elfDataLE {
		return 0, fmt.Errorf("loader: only little-endian elf images are supported")
	}

	le := binary.LittleEndian
	entry := le.Uint32(data[24:])
	phoff := le.Uint32(data[28:])
	phentsize := int(le.Uint16(data[42:]))
	phnum := int(le.Uint16(data[44:]))

	if phentsize < phentMinLen {
		return 0, fmt.Errorf("loader: program header entry size %d too small", phentsize)
	}
	for i := 0; i < phnum; i++ {
		off := int(phoff) + i*phentsize
		if off+phentMinLen > len(data) {
			return 0, fmt.Errorf("loader: program header %d out of bounds", i)
		}
		ph := data[off:]
		ptype := le.Uint32(ph[0:])
		if ptype != elfPTLoad {
			continue
		}
		offset := le.Uint32(ph[4:])
		vaddr := le.Uint32(ph[8:])
		filesz := le.Uint32(ph[16:])
		memsz := le.Uint32(ph[20:])

		if filesz > 0 {
			if int(offset)+int(filesz) > len(data) {
				return 0, fmt.Errorf("loader: segment %d extends past end of file", i)
			}
			mem.WriteBytes(vaddr, data[offset:offset+filesz])
		}
		for a := filesz; a < memsz; a++ {
			mem.WriteByte(vaddr+a, 0)
		}
	}
	return entry, nil
}
