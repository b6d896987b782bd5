package emu

import (
	"strings"
	"testing"

	"github.com/blacktop/fwtrace/pkg/trace"
	"github.com/fatih/color"
)

func TestXPSR(t *testing.T) {
	tests := []struct {
		val  uint32
		want string
	}{
		{0x01000000, "[T]"},
		{0x61000000, "[Z C T]"},
		{0xf9000000, "[N Z C V Q T]"},
		{0x01000003, "[T EXC=3]"},
		// itt eq pending: firstcond 0000, mask 0100
		{0x01001000, "[T IT=0x4]"},
		{0, "[]"},
	}
	for _, tt := range tests {
		if got := xpsr(tt.val).String(); got != tt.want {
			t.Errorf("xpsr(%#x) = %s, want %s", tt.val, got, tt.want)
		}
	}
}

func TestRegisterDump(t *testing.T) {
	orig := color.NoColor
	defer func() { color.NoColor = orig }()
	color.NoColor = true

	var regs trace.Registers
	regs[trace.R0] = 0x1234
	regs[trace.SP] = 0x20020000
	regs[trace.XPSR] = 0x61000000

	out := registerDump(regs, nil)
	for _, want := range []string{"[REGISTERS]", "r0: 0x00001234", "sp: 0x20020000", "xpsr: 0x61000000 [Z C T]"} {
		if !strings.Contains(out, want) {
			t.Errorf("dump is missing %q:\n%s", want, out)
		}
	}
	if lines := strings.Count(out, "\n"); lines != 6 {
		t.Errorf("got %d lines, want 6:\n%s", lines, out)
	}
}
