package emu

import (
	"fmt"
	"sort"
	"strings"

	"github.com/blacktop/go-macho/types"
)

// UC_MEM_ALIGN is the granularity unicorn maps memory with
const UC_MEM_ALIGN = 0x1000

// Align returns an aligned memory addr/size to be used with unicorn MemMap
func Align(addr, size uint64) (uint64, uint64) {
	to := uint64(UC_MEM_ALIGN)
	mask := ^(to - 1)
	right := (addr + size + to - 1) & mask
	addr &= mask
	return addr, right - addr
}

// Page is one aligned range handed to unicorn
type Page struct {
	Addr uint64
	Size uint64
	Prot int
}

func (p *Page) End() uint64 {
	return p.Addr + p.Size
}

func (p *Page) Contains(addr uint64) bool {
	return p.Addr <= addr && addr < p.End()
}

func (p *Page) Overlaps(addr, size uint64) bool {
	return p.Addr < addr+size && addr < p.End()
}

// MemMap collects the aligned pages for the firmware regions. Regions sharing
// a page (e.g. neighbouring peripherals) are merged and their permissions
// combined.
type MemMap struct {
	Pages []*Page
}

func NewMemMap() *MemMap {
	return &MemMap{}
}

// Add maps addr/size with prot, merging it with every page it touches
func (m *MemMap) Add(addr, size uint64, prot int) *Page {
	addr, size = Align(addr, size)
	np := &Page{Addr: addr, Size: size, Prot: prot}

	kept := m.Pages[:0]
	for _, p := range m.Pages {
		if !p.Overlaps(np.Addr, np.Size) {
			kept = append(kept, p)
			continue
		}
		end := max(p.End(), np.End())
		np.Addr = min(p.Addr, np.Addr)
		np.Size = end - np.Addr
		np.Prot |= p.Prot
	}
	m.Pages = append(kept, np)
	sort.Slice(m.Pages, func(i, j int) bool { return m.Pages[i].Addr < m.Pages[j].Addr })

	return np
}

// Contains reports whether addr is mapped
func (m *MemMap) Contains(addr uint64) bool {
	for _, p := range m.Pages {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// NewFirmwareMemMap lays out the regions of fw
func NewFirmwareMemMap(fw *Firmware) *MemMap {
	m := NewMemMap()
	for _, r := range fw.Regions {
		m.Add(uint64(r.Base), uint64(r.Size), int(r.Prot()))
	}
	return m
}

func (m *MemMap) String() string {
	var sb strings.Builder
	for _, p := range m.Pages {
		fmt.Fprintf(&sb, "%#08x-%#08x %s\n", p.Addr, p.End(), types.VmProtection(p.Prot))
	}
	return sb.String()
}
