package emu

import (
	"testing"

	"github.com/blacktop/fwtrace/pkg/thumb"
	"github.com/fatih/color"
)

func TestDisassemble(t *testing.T) {
	orig := color.NoColor
	defer func() { color.NoColor = orig }()
	color.NoColor = true

	dec := thumb.NewDecoder()
	tests := []struct {
		name string
		code []byte
		want string
	}{
		{"movs", []byte{0x05, 0x20}, "0x08000100:  0520       \tmovs    r0, #0x5"},
		{"bl", []byte{0x00, 0xf0, 0x02, 0xf8}, "0x08000100:  00f002f8   \tbl      #0x8000108"},
		{"bad", []byte{0xff, 0xff}, "0x08000100:  ffff       \t(bad)  "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			insn, _ := dec.Decode(0x08000100, tt.code)
			if got := disassemble(0x08000100, tt.code, insn); got != tt.want {
				t.Fatalf("got  %q\nwant %q", got, tt.want)
			}
		})
	}
}

func TestColorOperands(t *testing.T) {
	orig := color.NoColor
	defer func() { color.NoColor = orig }()
	color.NoColor = true

	in := "r3, [sp, #0x10]"
	if got := colorOperands(in); got != in {
		t.Fatalf("colorOperands changed uncolored text: %q", got)
	}
}
