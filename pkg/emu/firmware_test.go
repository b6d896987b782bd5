package emu

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/blacktop/fwtrace/pkg/trace"
)

const firmwareYaml = `
image: fw.bin
base: 0x08000000
regions:
  - name: flash
    base: 0x08000000
    size: 0x100000
    perms: r-x
  - name: sram
    base: 0x20000000
    size: 0x20000
    perms: rw-
  - name: usart2
    base: 0x40004400
    size: 0x400
    perms: rw-
    mmio: true
registers:
  r0: 0x20000100
  fp: 0x1234
  R2: "16"
exits: [0x08000401]
crashes: [0x08000200]
`

func testFirmware() *Firmware {
	return &Firmware{
		Image: "fw.bin",
		Base:  0x08000000,
		Regions: []Region{
			{Name: "flash", Base: 0x08000000, Size: 0x100000, Perms: "r-x"},
			{Name: "sram", Base: 0x20000000, Size: 0x20000, Perms: "rw-"},
			{Name: "usart2", Base: 0x40004400, Size: 0x400, Perms: "rw-", MMIO: true},
		},
	}
}

func TestParseFirmware(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "firmware.yml")
	if err := os.WriteFile(path, []byte(firmwareYaml), 0o644); err != nil {
		t.Fatal(err)
	}

	fw, err := ParseFirmware(path)
	if err != nil {
		t.Fatalf("ParseFirmware returned error: %v", err)
	}
	if fw.Image != filepath.Join(dir, "fw.bin") {
		t.Fatalf("image path not resolved: %s", fw.Image)
	}
	if fw.Base != 0x08000000 || len(fw.Regions) != 3 {
		t.Fatalf("got base %#x with %d regions", fw.Base, len(fw.Regions))
	}
	if r := fw.Region(0x40004404); r == nil || r.Name != "usart2" || !r.MMIO {
		t.Fatalf("Region(0x40004404) = %+v", r)
	}

	regs, err := fw.RegisterValues()
	if err != nil {
		t.Fatalf("RegisterValues returned error: %v", err)
	}
	if regs[trace.R0] != 0x20000100 || regs[trace.R11] != 0x1234 || regs[trace.R2] != 16 || len(regs) != 3 {
		t.Fatalf("register overrides: got %v", regs)
	}

	stops := fw.Stops()
	if stops[0x08000400] != trace.StopExit || stops[0x08000200] != trace.StopExplicitCrash {
		t.Fatalf("stops: got %v", stops)
	}
}

func TestParseFirmwareMissingFile(t *testing.T) {
	if _, err := ParseFirmware(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Fatal("expected an error for a missing config")
	}
}

func TestFirmwareVerify(t *testing.T) {
	tests := []struct {
		name   string
		modify func(fw *Firmware)
		errStr string
	}{
		{"valid", func(fw *Firmware) {}, ""},
		{"no image", func(fw *Firmware) { fw.Image = "" }, "no firmware image"},
		{"no regions", func(fw *Firmware) { fw.Regions = nil }, "no memory regions"},
		{"unnamed", func(fw *Firmware) { fw.Regions[1].Name = "" }, "has no name"},
		{"duplicate", func(fw *Firmware) { fw.Regions[1].Name = "flash" }, "duplicate region"},
		{"zero size", func(fw *Firmware) { fw.Regions[1].Size = 0 }, "zero size"},
		{"bad perms", func(fw *Firmware) { fw.Regions[1].Perms = "rwz" }, "invalid permissions"},
		{"executable mmio", func(fw *Firmware) { fw.Regions[2].Perms = "rwx" }, "must not be executable"},
		{"overlap", func(fw *Firmware) { fw.Regions[1].Base = 0x080ff000 }, "overlaps"},
		{"wraps", func(fw *Firmware) { fw.Regions[2].Base = 0xffffff00 }, "32-bit address space"},
		{"base outside", func(fw *Firmware) { fw.Base = 0x10000000 }, "image base"},
		{"base in mmio", func(fw *Firmware) { fw.Base = 0x40004400 }, "image base"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fw := testFirmware()
			tt.modify(fw)
			err := fw.Verify()
			if tt.errStr == "" {
				if err != nil {
					t.Fatalf("Verify() returned error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errStr) {
				t.Fatalf("Verify() error = %v, want %q", err, tt.errStr)
			}
		})
	}
}

func TestRegionPermissions(t *testing.T) {
	fw := testFirmware()
	tests := []struct {
		region string
		prot   int32
		mt     trace.MemoryType
	}{
		{"flash", protRead | protExec, trace.MemoryROM},
		{"sram", protRead | protWrite, trace.MemoryRAM},
		{"usart2", protRead | protWrite, trace.MemoryMMIO},
	}
	for _, tt := range tests {
		t.Run(tt.region, func(t *testing.T) {
			var r *Region
			for i := range fw.Regions {
				if fw.Regions[i].Name == tt.region {
					r = &fw.Regions[i]
				}
			}
			if got := int32(r.Prot()); got != tt.prot {
				t.Fatalf("Prot() = %d, want %d", got, tt.prot)
			}
			if got := r.MemoryType(); got != tt.mt {
				t.Fatalf("MemoryType() = %s, want %s", got, tt.mt)
			}
		})
	}
}

func TestFirmwareBoot(t *testing.T) {
	vectors := []byte{0x00, 0x00, 0x02, 0x20, 0xc1, 0x01, 0x00, 0x08}

	fw := testFirmware()
	sp, entry, err := fw.Boot(vectors)
	if err != nil {
		t.Fatalf("Boot returned error: %v", err)
	}
	if sp != 0x20020000 || entry != 0x080001c0 {
		t.Fatalf("vector table: got sp=%#x entry=%#x", sp, entry)
	}

	fw.InitialSP, fw.Entry = 0x20001000, 0x08000301
	sp, entry, err = fw.Boot(nil)
	if err != nil {
		t.Fatalf("Boot returned error: %v", err)
	}
	if sp != 0x20001000 || entry != 0x08000300 {
		t.Fatalf("configured: got sp=%#x entry=%#x", sp, entry)
	}

	fw.Entry = 0
	if _, _, err := fw.Boot(vectors[:4]); err == nil {
		t.Fatal("expected an error for a truncated vector table")
	}
}

func TestRegisterValuesErrors(t *testing.T) {
	fw := testFirmware()
	fw.Registers = map[string]any{"r16": 1}
	if _, err := fw.RegisterValues(); err == nil {
		t.Fatal("expected an error for an unknown register")
	}
	fw.Registers = map[string]any{"r1": "lots"}
	if _, err := fw.RegisterValues(); err == nil {
		t.Fatal("expected an error for a bad value")
	}
}
