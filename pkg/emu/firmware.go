// Package emu runs Cortex-M firmware images in unicorn and drives a trace.Tracer
// over every instruction and memory write.
//
// The firmware layout is described by a yaml document (see Firmware), the
// emulator itself needs the unicorn build tag.
package emu

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/blacktop/fwtrace/pkg/trace"
	"github.com/blacktop/go-macho/types"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

const (
	protRead  = 1
	protWrite = 2
	protExec  = 4
)

// Region is one memory region of the target
type Region struct {
	Name string `yaml:"name"`
	Base uint32 `yaml:"base"`
	Size uint32 `yaml:"size"`
	// Perms is an "rwx" style permission string
	Perms string `yaml:"perms"`
	// MMIO regions serve reads from the fuzz input
	MMIO bool `yaml:"mmio,omitempty"`
	// File is loaded at Base when set
	File string `yaml:"file,omitempty"`
}

// End returns the first address after the region
func (r *Region) End() uint64 {
	return uint64(r.Base) + uint64(r.Size)
}

// Contains reports whether addr is inside the region
func (r *Region) Contains(addr uint32) bool {
	return r.Base <= addr && uint64(addr) < r.End()
}

// Prot returns the region permissions as VM protection bits
func (r *Region) Prot() types.VmProtection {
	var prot int32
	for _, c := range r.Perms {
		switch c {
		case 'r':
			prot |= protRead
		case 'w':
			prot |= protWrite
		case 'x':
			prot |= protExec
		}
	}
	return types.VmProtection(prot)
}

func (r *Region) readOnly() bool {
	return int32(r.Prot())&protWrite == 0
}

func (r *Region) executable() bool {
	return int32(r.Prot())&protExec != 0
}

// MemoryType classifies accesses to the region
func (r *Region) MemoryType() trace.MemoryType {
	switch {
	case r.MMIO:
		return trace.MemoryMMIO
	case r.readOnly():
		return trace.MemoryROM
	default:
		return trace.MemoryRAM
	}
}

// Firmware is the layout and boot state of an emulated target
type Firmware struct {
	// Image is the raw firmware binary loaded at Base
	Image string `yaml:"image"`
	Base  uint32 `yaml:"base"`
	// Entry and InitialSP are read from the vector table at Base when zero
	Entry     uint32 `yaml:"entry,omitempty"`
	InitialSP uint32 `yaml:"initial_sp,omitempty"`

	Regions []Region `yaml:"regions"`
	// Registers overrides boot register values (e.g. r0: 0x20000000)
	Registers map[string]any `yaml:"registers,omitempty"`

	// Exits stop the run cleanly when executed
	Exits []uint32 `yaml:"exits,omitempty"`
	// Crashes stop the run as an explicit crash when executed (e.g. HardFault_Handler)
	Crashes []uint32 `yaml:"crashes,omitempty"`
}

// ParseFirmware reads a firmware yaml file. Relative file names are resolved
// against the directory of the yaml file.
func ParseFirmware(name string) (*Firmware, error) {
	var fw Firmware

	data, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read firmware config")
	}
	if err := yaml.Unmarshal(data, &fw); err != nil {
		return nil, errors.Wrapf(err, "failed to parse firmware config %s", name)
	}

	dir := filepath.Dir(name)
	fw.Image = resolve(dir, fw.Image)
	for i := range fw.Regions {
		fw.Regions[i].File = resolve(dir, fw.Regions[i].File)
	}

	if err := fw.Verify(); err != nil {
		return nil, errors.Wrapf(err, "invalid firmware config %s", name)
	}

	return &fw, nil
}

func resolve(dir, name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(dir, name)
}

// Verify checks the layout for missing fields, bad permissions and overlapping regions
func (fw *Firmware) Verify() error {
	if fw.Image == "" {
		return errors.New("no firmware image given")
	}
	if len(fw.Regions) == 0 {
		return errors.New("no memory regions given")
	}

	regions := make([]*Region, len(fw.Regions))
	names := make(map[string]bool)
	for i := range fw.Regions {
		r := &fw.Regions[i]
		if r.Name == "" {
			return errors.Errorf("region %d at %#08x has no name", i, r.Base)
		}
		if names[r.Name] {
			return errors.Errorf("duplicate region name %q", r.Name)
		}
		names[r.Name] = true
		if r.Size == 0 {
			return errors.Errorf("region %s has zero size", r.Name)
		}
		if r.End() > 1<<32 {
			return errors.Errorf("region %s ends beyond the 32-bit address space", r.Name)
		}
		if strings.Trim(r.Perms, "rwx-") != "" {
			return errors.Errorf("region %s has invalid permissions %q", r.Name, r.Perms)
		}
		if r.MMIO && r.executable() {
			return errors.Errorf("mmio region %s must not be executable", r.Name)
		}
		regions[i] = r
	}

	sort.Slice(regions, func(i, j int) bool { return regions[i].Base < regions[j].Base })
	for i := 1; i < len(regions); i++ {
		if uint64(regions[i].Base) < regions[i-1].End() {
			return errors.Errorf("region %s overlaps %s", regions[i].Name, regions[i-1].Name)
		}
	}

	if r := fw.Region(fw.Base); r == nil || r.MMIO {
		return errors.Errorf("image base %#08x is not inside a memory region", fw.Base)
	}

	return nil
}

// Region returns the region containing addr
func (fw *Firmware) Region(addr uint32) *Region {
	for i := range fw.Regions {
		if fw.Regions[i].Contains(addr) {
			return &fw.Regions[i]
		}
	}
	return nil
}

// RegisterValues resolves the register overrides
func (fw *Firmware) RegisterValues() (map[trace.Register]uint32, error) {
	vals := make(map[trace.Register]uint32, len(fw.Registers))
	for name, v := range fw.Registers {
		reg, err := trace.RegisterByName(name)
		if err != nil {
			return nil, err
		}
		val, err := cast.ToUint32E(v)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid value for register %s", name)
		}
		vals[reg] = val
	}
	return vals, nil
}

// Boot returns the initial stack pointer and entry point. Values missing in
// the config come from the vector table at the start of image.
func (fw *Firmware) Boot(image []byte) (sp, entry uint32, err error) {
	sp, entry = fw.InitialSP, fw.Entry
	if (sp == 0 || entry == 0) && len(image) < 8 {
		return 0, 0, errors.New("image too small for a vector table")
	}
	if sp == 0 {
		sp = binary.LittleEndian.Uint32(image[0:4])
	}
	if entry == 0 {
		entry = binary.LittleEndian.Uint32(image[4:8])
	}
	// the reset vector carries the thumb bit
	return sp, entry &^ 1, nil
}

// Stops returns the configured exit and crash addresses as stop reasons
func (fw *Firmware) Stops() map[uint32]trace.StopReason {
	stops := make(map[uint32]trace.StopReason, len(fw.Exits)+len(fw.Crashes))
	for _, addr := range fw.Exits {
		stops[addr&^1] = trace.StopExit
	}
	for _, addr := range fw.Crashes {
		stops[addr&^1] = trace.StopExplicitCrash
	}
	return stops
}

// DumpYaml prints the parsed config
func (fw *Firmware) DumpYaml() error {
	data, err := yaml.Marshal(fw)
	if err != nil {
		return err
	}
	fmt.Printf("%s\n", data)
	return nil
}
