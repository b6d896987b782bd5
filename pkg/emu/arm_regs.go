package emu

import (
	"fmt"
	"strings"

	"github.com/blacktop/fwtrace/pkg/trace"
	"github.com/blacktop/go-macho/types"
)

// xpsr is the combined Cortex-M program status register
type xpsr uint32

// NZCVQ
func (p xpsr) N() bool {
	return types.ExtractBits(uint64(p), 31, 1) != 0
}
func (p xpsr) Z() bool {
	return types.ExtractBits(uint64(p), 30, 1) != 0
}
func (p xpsr) C() bool {
	return types.ExtractBits(uint64(p), 29, 1) != 0
}
func (p xpsr) V() bool {
	return types.ExtractBits(uint64(p), 28, 1) != 0
}
func (p xpsr) Q() bool {
	return types.ExtractBits(uint64(p), 27, 1) != 0
}

// T is the thumb state bit, clearing it faults on the next instruction
func (p xpsr) T() bool {
	return types.ExtractBits(uint64(p), 24, 1) != 0
}

// IT returns ICI/IT[7:2]:IT[1:0]
func (p xpsr) IT() uint8 {
	return uint8(types.ExtractBits(uint64(p), 10, 6)<<2 | types.ExtractBits(uint64(p), 25, 2))
}

// Exception is the IPSR exception number, 0 in thread mode
func (p xpsr) Exception() uint32 {
	return uint32(types.ExtractBits(uint64(p), 0, 9))
}

func (p xpsr) String() string {
	var flags []string
	for _, f := range []struct {
		set  bool
		name string
	}{{p.N(), "N"}, {p.Z(), "Z"}, {p.C(), "C"}, {p.V(), "V"}, {p.Q(), "Q"}, {p.T(), "T"}} {
		if f.set {
			flags = append(flags, f.name)
		}
	}
	if it := p.IT(); it != 0 {
		flags = append(flags, fmt.Sprintf("IT=%#02x", it))
	}
	if exc := p.Exception(); exc != 0 {
		flags = append(flags, fmt.Sprintf("EXC=%d", exc))
	}
	return "[" + strings.Join(flags, " ") + "]"
}

// registerDump formats all registers, the ones that differ from prev are
// highlighted when prev is given
func registerDump(regs trace.Registers, prev *trace.Registers) string {
	var sb strings.Builder
	sb.WriteString(colorHook("[REGISTERS]\n"))
	for i := range trace.NumRegisters {
		reg := trace.Register(i)
		val := fmt.Sprintf("%#08x", regs[reg])
		if prev != nil && prev[reg] != regs[reg] {
			val = colorChanged("%s", val)
		} else {
			val = colorDetails("%s", val)
		}
		fmt.Fprintf(&sb, "%6s: %s", reg, val)
		switch {
		case reg == trace.XPSR:
			fmt.Fprintf(&sb, " %s\n", colorDetails("%s", xpsr(regs[reg])))
		case i%4 == 3:
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}
