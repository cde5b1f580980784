// memory.go - byte-addressable linear memory for the rv32oo core

/*
This module implements the flat, little-endian, byte-addressable memory that
backs the simulated RISC-V address space. All typed reads/writes reduce to a
little-endian byte sequence and every address wraps modulo the configured
memory size, so the LSU and the program loader never need to special-case an
out-of-range access.
*/

package memory

import (
	"encoding/binary"
	"fmt"
)

// Memory is a flat byte-addressable store with wraparound addressing.
type Memory struct {
	bytes []byte
}

// New allocates a Memory of the given size in bytes. size must be > 0.
func New(size int) (*Memory, error) {
	if size <= 0 {
		return nil, fmt.Errorf("memory: size must be > 0, got %d", size)
	}
	return &Memory{bytes: make([]byte, size)}, nil
}

// Size returns the memory's configured size in bytes.
func (m *Memory) Size() int {
	return len(m.bytes)
}

func (m *Memory) wrap(addr uint32) uint32 {
	return addr % uint32(len(m.bytes))
}

// ReadByte reads a single byte at addr, wrapping modulo memory size.
func (m *Memory) ReadByte(addr uint32) byte {
	return m.bytes[m.wrap(addr)]
}

// WriteByte writes a single byte at addr, wrapping modulo memory size.
func (m *Memory) WriteByte(addr uint32, v byte) {
	m.bytes[m.wrap(addr)] = v
}

// readN reads n bytes starting at addr into a little-endian buffer,
// wrapping each byte's address independently so a read that crosses the
// end of the address space continues at offset 0.
func (m *Memory) readN(addr uint32, n int) []byte {
	buf := make([]byte, n)
	for i := 0; i < n; i++ {
		buf[i] = m.ReadByte(addr + uint32(i))
	}
	return buf
}

func (m *Memory) writeN(addr uint32, buf []byte) {
	for i, b := range buf {
		m.WriteByte(addr+uint32(i), b)
	}
}

// ReadWord reads a little-endian 32-bit word.
func (m *Memory) ReadWord(addr uint32) uint32 {
	return binary.LittleEndian.Uint32(m.readN(addr, 4))
}

// WriteWord writes a little-endian 32-bit word.
func (m *Memory) WriteWord(addr uint32, v uint32) {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, v)
	m.writeN(addr, buf)
}

// ReadHalf reads a little-endian 16-bit halfword.
func (m *Memory) ReadHalf(addr uint32) uint16 {
	return binary.LittleEndian.Uint16(m.readN(addr, 2))
}

// WriteHalf writes a little-endian 16-bit halfword.
func (m *Memory) WriteHalf(addr uint32, v uint16) {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, v)
	m.writeN(addr, buf)
}

// Width identifies a load/store access width and sign behaviour.
type Width int

const (
	WidthByte Width = iota
	WidthHalf
	WidthWord
	WidthByteUnsigned
	WidthHalfUnsigned
)

// Bytes reports how many bytes a width spans.
func (w Width) Bytes() int {
	switch w {
	case WidthByte, WidthByteUnsigned:
		return 1
	case WidthHalf, WidthHalfUnsigned:
		return 2
	default:
		return 4
	}
}

// ReadTyped reads addr with the given width, sign- or zero-extending to a
// 32-bit value per the RISC-V load semantics (LB/LH/LW/LBU/LHU).
func (m *Memory) ReadTyped(addr uint32, w Width) int32 {
	switch w {
	case WidthByte:
		return int32(int8(m.ReadByte(addr)))
	case WidthByteUnsigned:
		return int32(m.ReadByte(addr))
	case WidthHalf:
		return int32(int16(m.ReadHalf(addr)))
	case WidthHalfUnsigned:
		return int32(m.ReadHalf(addr))
	default:
		return int32(m.ReadWord(addr))
	}
}

// WriteTyped writes the low w.Bytes() bytes of v at addr (SB/SH/SW).
func (m *Memory) WriteTyped(addr uint32, w Width, v int32) {
	switch w {
	case WidthByte, WidthByteUnsigned:
		m.WriteByte(addr, byte(v))
	case WidthHalf, WidthHalfUnsigned:
		m.WriteHalf(addr, uint16(v))
	default:
		m.WriteWord(addr, uint32(v))
	}
}

// ReadBytes copies n bytes starting at addr (used by the engine's debug
// surface for memory dumps).
func (m *Memory) ReadBytes(addr uint32, n int) []byte {
	return m.readN(addr, n)
}

// WriteBytes copies buf into memory starting at addr (used by the program
// loaders for hex-text and ELF PT_LOAD segments).
func (m *Memory) WriteBytes(addr uint32, buf []byte) {
	m.writeN(addr, buf)
}

// Reset zeroes the entire memory block.
func (m *Memory) Reset() {
	for i := range m.bytes {
		m.bytes[i] = 0
	}
}
