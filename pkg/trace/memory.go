package trace

import (
	"sort"

	"github.com/apex/log"
)

// MemoryType is the kind of backing a memory access hit
type MemoryType uint8

const (
	MemoryRAM MemoryType = iota
	MemoryROM
	// MemoryMMIO has no stable backing, accesses to it are not aggregated
	MemoryMMIO
)

func (t MemoryType) String() string {
	switch t {
	case MemoryRAM:
		return "ram"
	case MemoryROM:
		return "rom"
	case MemoryMMIO:
		return "mmio"
	}
	return "invalid"
}

// AccessType is the direction of a memory access
type AccessType uint8

const (
	AccessRead AccessType = iota
	AccessWrite
	AccessFetch
)

func (t AccessType) String() string {
	switch t {
	case AccessRead:
		return "read"
	case AccessWrite:
		return "write"
	case AccessFetch:
		return "fetch"
	}
	return "invalid"
}

// maxTrackedWrite is the widest single-register store
const maxTrackedWrite = 4

// Region is a named memory region of the emulated target
type Region struct {
	Name  string
	Start uint32
	// Data is the current content, it may be nil for MMIO
	Data []byte
	// Length is used as the size of regions without Data
	Length     uint32
	ReadOnly   bool
	Executable bool
	MMIO       bool
}

// Size returns the length of the region in bytes
func (r *Region) Size() uint32 {
	if r.Data == nil {
		return r.Length
	}
	return uint32(len(r.Data))
}

// Contains reports whether addr is inside the region
func (r *Region) Contains(addr uint32) bool {
	return r.Start <= addr && uint64(addr) < uint64(r.Start)+uint64(r.Size())
}

// MemoryMap enumerates the memory regions of the target
type MemoryMap interface {
	Regions() []Region
}

// regionIndex answers "which region holds addr" for the code fetch path
type regionIndex struct {
	regions []Region
	last    int
}

func newRegionIndex(regions []Region) *regionIndex {
	rs := make([]Region, len(regions))
	copy(rs, regions)
	sort.Slice(rs, func(i, j int) bool { return rs[i].Start < rs[j].Start })
	return &regionIndex{regions: rs, last: -1}
}

func (ri *regionIndex) find(addr uint32) *Region {
	// straight-line code stays inside one region
	if ri.last >= 0 && ri.regions[ri.last].Contains(addr) {
		return &ri.regions[ri.last]
	}
	i := sort.Search(len(ri.regions), func(i int) bool {
		return uint64(ri.regions[i].Start)+uint64(ri.regions[i].Size()) > uint64(addr)
	})
	if i < len(ri.regions) && ri.regions[i].Contains(addr) {
		ri.last = i
		return &ri.regions[i]
	}
	return nil
}

// code returns up to 4 bytes of executable memory at addr
func (ri *regionIndex) code(addr uint32) []byte {
	r := ri.find(addr)
	if r == nil || !r.Executable || r.MMIO || r.Data == nil {
		return nil
	}
	off := addr - r.Start
	end := off + 4
	if end > r.Size() {
		end = r.Size()
	}
	return r.Data[off:end]
}

// patch mirrors a store into the copy of an executable region so code written
// during the run decodes from its live bytes
func (ri *regionIndex) patch(addr uint32, value uint64, size int) {
	for i := 0; i < size && i < 8; i++ {
		a := addr + uint32(i)
		r := ri.find(a)
		if r == nil || !r.Executable || r.MMIO || r.Data == nil {
			continue
		}
		r.Data[a-r.Start] = byte(value >> (8 * uint(i)))
	}
}

// MemoryAccess is one (address, size, value) triplet
type MemoryAccess struct {
	Address uint32
	Size    int
	Value   uint64
}

// MemoryAccessSummary aggregates the writes of one instruction
type MemoryAccessSummary struct {
	Last MemoryAccess
	Min  MemoryAccess
	Max  MemoryAccess
}

type memoryStats struct{}

// update folds a qualifying write into rec. It reports false when the
// access is not tracked.
func (memoryStats) update(rec *InstructionRecord, mt MemoryType, at AccessType, addr uint32, value uint64, size int) bool {
	if at != AccessWrite || mt == MemoryMMIO || size <= 0 || size > maxTrackedWrite {
		return false
	}

	acc := MemoryAccess{Address: addr, Size: size, Value: value}
	m := rec.Memory
	if m == nil {
		rec.Memory = &MemoryAccessSummary{Last: acc, Min: acc, Max: acc}
		return true
	}

	if m.Last.Size != size {
		log.WithFields(log.Fields{
			"pc":       rec.Address,
			"addr":     addr,
			"size":     size,
			"previous": m.Last.Size,
		}).Warn("memory write size changed for instruction")
	}

	if addr <= m.Min.Address {
		m.Min.Address = addr
		m.Min.Size = size
	}
	if addr >= m.Max.Address {
		m.Max.Address = addr
		m.Max.Size = size
	}
	if value <= m.Min.Value {
		m.Min.Value = value
	}
	if value >= m.Max.Value {
		m.Max.Value = value
	}
	m.Last = acc

	return true
}
