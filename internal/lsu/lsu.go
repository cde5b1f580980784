// lsu.go - load/store unit: ordered store buffer and speculative load buffer
// with store-to-load forwarding

/*
Two FIFO buffers, each slot a fixed-size arena entry referenced by index
rather than pointer, in keeping with the rest of the engine's tag/handle
style. A store's address and data each arrive independently (from dispatch
immediate+rs1 rename and from the CDB, respectively) and the buffer tracks
readiness of each half separately; a store may only issue to memory once
it is the oldest unresolved store and both halves are ready. A load snapshots,
at dispatch, which store-buffer slots are older than it (its store_mask) and
resolves against exactly that snapshot as those stores resolve, never against
stores allocated after it.
*/

package lsu

import (
	"fmt"

	"github.com/intuitionamiga/rv32oo/internal/isa"
	"github.com/intuitionamiga/rv32oo/internal/memory"
	"github.com/intuitionamiga/rv32oo/internal/regfile"
)

type Tag = regfile.Tag

// Width mirrors isa.MemWidth; the LSU owns the translation to memory.Width
// at the point it actually touches memory, keeping isa and memory decoupled.
type Width = isa.MemWidth

type storeEntry struct {
	busy      bool
	addrReady bool
	dataReady bool
	addr      uint32
	imm       int32 // displacement added to the base register once it resolves
	data      int32
	width     Width
	qAddr     Tag // tag producing the address base (rs1 rename), 0 if already resolved
	qData     Tag // tag producing the data (rs2 rename), 0 if already resolved
	qr        Tag // this store's own ROB tag, so the engine can mark it done
}

type loadEntry struct {
	busy        bool
	addrReady   bool
	addr        uint32
	imm         int32
	width       Width
	qAddr       Tag
	qr          Tag // ROB tag this load writes
	storeMask   []int
	speculative bool
	done        bool
	result      int32
}

// LSU owns the ordered store buffer and the load buffer.
type LSU struct {
	mem *memory.Memory

	stores     []storeEntry
	storeHead  int
	storeTail  int
	storeCount int

	loads []loadEntry
}

// New returns an LSU backed by mem, with the given store-buffer depth and
// load-buffer slot count. Both must be > 0.
func New(mem *memory.Memory, storeDepth, loadSlots int) (*LSU, error) {
	if mem == nil {
		return nil, fmt.Errorf("lsu: memory must not be nil")
	}
	if storeDepth <= 0 {
		return nil, fmt.Errorf("lsu: store buffer depth must be > 0, got %d", storeDepth)
	}
	if loadSlots <= 0 {
		return nil, fmt.Errorf("lsu: load buffer size must be > 0, got %d", loadSlots)
	}
	return &LSU{
		mem:    mem,
		stores: make([]storeEntry, storeDepth),
		loads:  make([]loadEntry, loadSlots),
	}, nil
}

// StoreFull reports whether the store buffer has no free slot.
func (l *LSU) StoreFull() bool { return l.storeCount == len(l.stores) }

// LoadFull reports whether the load buffer has no free slot.
func (l *LSU) LoadFull() bool {
	for i := range l.loads {
		if !l.loads[i].busy {
			return false
		}
	}
	return true
}

// AllocStore reserves the next store-buffer slot (FIFO tail) for a store at
// base+imm. qAddr/qData are the rename tags producing the base register and
// data value, 0 meaning already resolved (in which case base/data carry the
// resolved values and the address is computed here). qr is the store
// instruction's own ROB tag, reported back by ReadyTags once both halves
// resolve so the engine can mark that ROB entry done. Returns the slot index
// and false if the buffer is full.
func (l *LSU) AllocStore(width Width, base int32, qAddr Tag, imm int32, data int32, qData Tag, qr Tag) (int, bool) {
	if l.StoreFull() {
		return 0, false
	}
	idx := l.storeTail
	l.stores[idx] = storeEntry{
		busy: true, width: width, imm: imm,
		addr: uint32(base + imm), qAddr: qAddr, addrReady: qAddr == 0,
		data: data, qData: qData, dataReady: qData == 0,
		qr: qr,
	}
	l.storeTail = (l.storeTail + 1) % len(l.stores)
	l.storeCount++
	return idx, true
}

// ReadyTags returns the ROB tag of every busy store entry whose address and
// data have both resolved, in buffer (program) order. The engine writes
// these tags done on the ROB every cycle so a resolved store can reach the
// head and commit; the call is idempotent; calling it again before commit
// is harmless.
func (l *LSU) ReadyTags() []Tag {
	var out []Tag
	n := len(l.stores)
	for i, cur := 0, l.storeHead; i < l.storeCount; i, cur = i+1, (cur+1)%n {
		s := &l.stores[cur]
		if s.addrReady && s.dataReady {
			out = append(out, s.qr)
		}
	}
	return out
}

// olderStoreIndices returns every currently-busy store slot index older than
// upTo (exclusive), oldest first, without wrapping past storeCount entries.
func (l *LSU) olderStoreIndices(upTo int) []int {
	var out []int
	n := len(l.stores)
	for i, cur := 0, l.storeHead; i < l.storeCount; i, cur = i+1, (cur+1)%n {
		// The tail marks the slot past the youngest store; in a full buffer
		// it equals the head, so it must not end the walk there.
		if cur == upTo && upTo != l.storeTail {
			break
		}
		out = append(out, cur)
	}
	return out
}

// AllocLoad reserves a load-buffer slot for a load at base+imm, snapshotting
// the store_mask of every currently in-flight store older than this load.
// Returns the slot index and false if no load slot is free.
func (l *LSU) AllocLoad(width Width, base int32, qAddr Tag, imm int32, qr Tag) (int, bool) {
	for i := range l.loads {
		if !l.loads[i].busy {
			mask := l.olderStoreIndices(l.storeTail)
			l.loads[i] = loadEntry{
				busy: true, width: width, imm: imm,
				addr: uint32(base + imm), qAddr: qAddr, addrReady: qAddr == 0,
				qr: qr, storeMask: mask,
			}
			return i, true
		}
	}
	return 0, false
}

// ForwardAddr resolves an address-base-producing tag, computing each waiting
// entry's effective address from its own displacement. Two entries waiting on
// the same base tag can carry different displacements, which is why the
// addition happens here per entry rather than once in the engine.
func (l *LSU) ForwardAddr(q Tag, base int32) {
	if q == 0 {
		return
	}
	for i := range l.stores {
		s := &l.stores[i]
		if s.busy && !s.addrReady && s.qAddr == q {
			s.addr = uint32(base + s.imm)
			s.addrReady = true
		}
	}
	for i := range l.loads {
		ld := &l.loads[i]
		if ld.busy && !ld.addrReady && ld.qAddr == q {
			ld.addr = uint32(base + ld.imm)
			ld.addrReady = true
		}
	}
}

// ForwardData resolves a data-producing tag for a waiting store.
func (l *LSU) ForwardData(q Tag, data int32) {
	if q == 0 {
		return
	}
	for i := range l.stores {
		s := &l.stores[i]
		if s.busy && !s.dataReady && s.qData == q {
			s.data = data
			s.dataReady = true
		}
	}
}

// Tick advances the LSU by one cycle, attempting to resolve every pending
// load against its store_mask. Stores do not touch memory here: a store is
// architecturally visible only once its ROB entry commits, so the actual
// write happens in CommitStore, not on this per-cycle resolution pass. A
// store's address/data still resolve via ForwardAddr/ForwardData as
// producing tags broadcast, independent of this tick.
func (l *LSU) Tick() {
	for i := range l.loads {
		l.tryResolveLoad(i)
	}
}

// tryResolveLoad resolves load slot i if possible. The load waits until
// every older store in its mask has a known address: an unresolved address
// may alias any byte of the load. Once all addresses are known, each byte
// of the load comes from the youngest older store covering it, falling back
// to memory for bytes no masked store writes, so several partially
// overlapping stores merge correctly and a store that only covers the tail
// of the load contributes only its own bytes.
func (l *LSU) tryResolveLoad(i int) {
	ld := &l.loads[i]
	if !ld.busy || ld.done || !ld.addrReady {
		return
	}
	for _, sIdx := range ld.storeMask {
		s := &l.stores[sIdx]
		if s.busy && !s.addrReady {
			ld.speculative = true
			return
		}
	}
	n := widthBytes(ld.width)
	var raw uint32
	for b := 0; b < n; b++ {
		v, ok := l.loadByte(ld, ld.addr+uint32(b))
		if !ok {
			ld.speculative = true
			return
		}
		raw |= uint32(v) << (8 * uint(b))
	}
	ld.result = extendRaw(raw, ld.width)
	ld.speculative = false
	ld.done = true
}

// loadByte returns the byte a load observes at addr: the youngest older
// store covering addr supplies it, memory otherwise. ok is false when the
// covering store's data has not arrived yet.
func (l *LSU) loadByte(ld *loadEntry, addr uint32) (byte, bool) {
	for i := len(ld.storeMask) - 1; i >= 0; i-- {
		s := &l.stores[ld.storeMask[i]]
		if !s.busy {
			continue // already committed; its bytes are in memory
		}
		if addr < s.addr || addr >= s.addr+uint32(widthBytes(s.width)) {
			continue
		}
		if !s.dataReady {
			return 0, false
		}
		return byte(uint32(s.data) >> (8 * (addr - s.addr))), true
	}
	return l.mem.ReadByte(addr), true
}

// extendRaw sign- or zero-extends the assembled little-endian bytes to the
// 32-bit register value the load's width calls for.
func extendRaw(raw uint32, w Width) int32 {
	switch w {
	case isa.WidthByte:
		return int32(int8(raw))
	case isa.WidthByteUnsigned:
		return int32(uint8(raw))
	case isa.WidthHalf:
		return int32(int16(raw))
	case isa.WidthHalfUnsigned:
		return int32(uint16(raw))
	default:
		return int32(raw)
	}
}

func widthBytes(w Width) int {
	switch w {
	case isa.WidthByte, isa.WidthByteUnsigned:
		return 1
	case isa.WidthHalf, isa.WidthHalfUnsigned:
		return 2
	default:
		return 4
	}
}

func toMemWidth(w Width) memory.Width {
	switch w {
	case isa.WidthByte:
		return memory.WidthByte
	case isa.WidthByteUnsigned:
		return memory.WidthByteUnsigned
	case isa.WidthHalf:
		return memory.WidthHalf
	case isa.WidthHalfUnsigned:
		return memory.WidthHalfUnsigned
	default:
		return memory.WidthWord
	}
}

// Done describes a load that has finished resolving its value.
type Done struct {
	Index  int
	Qr     Tag
	Result int32
}

// DoneLoads returns every load buffer slot that has a result ready for CDB
// broadcast, in ascending slot-index order.
func (l *LSU) DoneLoads() []Done {
	var out []Done
	for i := range l.loads {
		ld := &l.loads[i]
		if ld.busy && ld.done {
			out = append(out, Done{Index: i, Qr: ld.qr, Result: ld.result})
		}
	}
	return out
}

// LoadSpeculative reports whether load slot index is currently held up by an
// older store: an unresolved address in its mask, or a covering store whose
// data is still in flight.
func (l *LSU) LoadSpeculative(index int) bool {
	return l.loads[index].busy && l.loads[index].speculative
}

// RetireLoad frees a load slot once its result has been consumed by the CDB.
func (l *LSU) RetireLoad(index int) {
	l.loads[index] = loadEntry{}
}

// CommitStore performs the architectural write for the oldest store-buffer
// entry and releases its slot, iff that store's address and data have both
// resolved. This is the single point at which a store touches memory: the
// engine calls it only after the store's ROB entry has reached the head and
// is done, so memory mutation and ROB retirement happen on the same commit,
// keeping writes in program order.
func (l *LSU) CommitStore() bool {
	if l.storeCount == 0 {
		return false
	}
	s := &l.stores[l.storeHead]
	if !s.addrReady || !s.dataReady {
		return false
	}
	l.mem.WriteTyped(s.addr, toMemWidth(s.width), s.data)
	l.stores[l.storeHead] = storeEntry{}
	l.storeHead = (l.storeHead + 1) % len(l.stores)
	l.storeCount--
	return true
}

// StoreCount returns the number of stores currently resident in the buffer.
func (l *LSU) StoreCount() int { return l.storeCount }

// Flush clears both buffers, used on branch-misprediction recovery. No
// resident store has been written to memory yet (CommitStore is the only
// writer and it always removes the slot it writes), so every entry still in
// the buffer is purely speculative and safe to discard outright.
func (l *LSU) Flush() {
	for i := range l.stores {
		l.stores[i] = storeEntry{}
	}
	l.storeHead, l.storeTail, l.storeCount = 0, 0, 0
	for i := range l.loads {
		l.loads[i] = loadEntry{}
	}
}
