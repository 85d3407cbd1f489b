package memory

import (
	"encoding/binary"
	"sort"

	"github.com/colorfulnotion/loki/common"
)

const (
	PageSize = 4096

	// AllocBase is the first address handed out by Alloc.
	AllocBase = 0x800
)

type Page struct {
	Value [PageSize]byte
	Dirty bool
}

// RAM is a sparse, byte-addressed, little-endian memory. Unwritten bytes read
// as zero. It backs the VM memory handler and the reference evaluators.
type RAM struct {
	pages    map[uint64]*Page
	heapNext uint64
}

func NewRAM() *RAM {
	return &RAM{
		pages:    make(map[uint64]*Page),
		heapNext: AllocBase,
	}
}

func (ram *RAM) getOrAllocatePage(index uint64) *Page {
	p, ok := ram.pages[index]
	if !ok {
		p = &Page{}
		ram.pages[index] = p
	}
	return p
}

// Alloc reserves size zeroed bytes and returns their address.
func (ram *RAM) Alloc(size uint64) uint64 {
	addr := ram.heapNext
	for i := uint64(0); i < size; i++ {
		ram.writeByte(addr+i, 0)
	}
	ram.heapNext += size
	return addr
}

// HeapPointer is the address the next Alloc will return.
func (ram *RAM) HeapPointer() uint64 {
	return ram.heapNext
}

func (ram *RAM) readByte(addr uint64) byte {
	p, ok := ram.pages[addr/PageSize]
	if !ok {
		return 0
	}
	return p.Value[addr%PageSize]
}

func (ram *RAM) writeByte(addr uint64, b byte) {
	p := ram.getOrAllocatePage(addr / PageSize)
	p.Value[addr%PageSize] = b
	p.Dirty = true
}

func (ram *RAM) ReadBytes(addr uint64, length uint64) []byte {
	out := make([]byte, length)
	for i := range out {
		out[i] = ram.readByte(addr + uint64(i))
	}
	return out
}

func (ram *RAM) WriteBytes(addr uint64, data []byte) {
	for i, b := range data {
		ram.writeByte(addr+uint64(i), b)
	}
}

// bytesFor rounds a bit width up to whole bytes, capped at 8.
func bytesFor(bits uint) uint64 {
	n := uint64(bits+7) / 8
	if n > 8 {
		n = 8
	}
	return n
}

// Load reads a little-endian value of the given bit width.
func (ram *RAM) Load(addr uint64, bits uint) uint64 {
	var buf [8]byte
	copy(buf[:], ram.ReadBytes(addr, bytesFor(bits)))
	v := binary.LittleEndian.Uint64(buf[:])
	if bits < 64 {
		v &= (uint64(1) << bits) - 1
	}
	return v
}

// Store writes the low bits of value little-endian.
func (ram *RAM) Store(addr uint64, bits uint, value uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], value)
	ram.WriteBytes(addr, buf[:bytesFor(bits)])
}

// DirtyPages lists the indices of pages that were written, ascending.
func (ram *RAM) DirtyPages() []uint64 {
	out := make([]uint64, 0, len(ram.pages))
	for idx, p := range ram.pages {
		if p.Dirty {
			out = append(out, idx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Digest hashes every dirty page together with its index and the heap
// pointer; two memories with equal contents have equal digests.
func (ram *RAM) Digest() common.Hash {
	parts := make([][]byte, 0, 2*len(ram.pages)+1)
	var hp [8]byte
	binary.LittleEndian.PutUint64(hp[:], ram.heapNext)
	parts = append(parts, hp[:])
	for _, idx := range ram.DirtyPages() {
		var ib [8]byte
		binary.LittleEndian.PutUint64(ib[:], idx)
		parts = append(parts, ib[:], ram.pages[idx].Value[:])
	}
	return common.Blake2HashParts(parts...)
}

func (ram *RAM) Clone() *RAM {
	c := &RAM{pages: make(map[uint64]*Page, len(ram.pages)), heapNext: ram.heapNext}
	for idx, p := range ram.pages {
		cp := *p
		c.pages[idx] = &cp
	}
	return c
}
