package trace

import (
	"fmt"
	"strings"

	"github.com/blacktop/go-macho/types"
	"github.com/pkg/errors"
)

// Register is an ARMv7-M architectural register slot
type Register uint8

const (
	R0 Register = iota
	R1
	R2
	R3
	R4
	R5
	R6
	R7
	R8
	R9
	R10
	R11
	R12
	SP
	LR
	PC
	XPSR

	NumRegisters = int(XPSR) + 1
)

var registerNames = [NumRegisters]string{
	"r0", "r1", "r2", "r3", "r4", "r5", "r6", "r7",
	"r8", "r9", "r10", "r11", "r12", "sp", "lr", "pc", "xpsr",
}

func (r Register) String() string {
	if int(r) < NumRegisters {
		return registerNames[r]
	}
	return fmt.Sprintf("Register(%d)", r)
}

// RegisterByName looks up a register by its name or common alias
func RegisterByName(name string) (Register, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "r13":
		return SP, nil
	case "r14":
		return LR, nil
	case "r15":
		return PC, nil
	case "sb":
		return R9, nil
	case "sl":
		return R10, nil
	case "fp":
		return R11, nil
	case "ip":
		return R12, nil
	case "cpsr", "apsr", "psr":
		return XPSR, nil
	}
	for i, n := range registerNames {
		if n == name {
			return Register(i), nil
		}
	}
	return 0, errors.Errorf("unknown register %q", name)
}

// RegisterMask is a set of registers, bit N set means Register(N) is a member
type RegisterMask uint32

func (m RegisterMask) Has(r Register) bool {
	return m&(1<<r) != 0
}

func (m RegisterMask) With(regs ...Register) RegisterMask {
	for _, r := range regs {
		m |= 1 << r
	}
	return m
}

func (m RegisterMask) String() string {
	var regs []string
	for r := Register(0); int(r) < NumRegisters; r++ {
		if m.Has(r) {
			regs = append(regs, r.String())
		}
	}
	return "{" + strings.Join(regs, ", ") + "}"
}

// Registers is a full register file read from the emulator
type Registers [NumRegisters]uint32

// Flags returns the condition flags held in xPSR
func (r *Registers) Flags() Flags {
	return Flags(types.ExtractBits(uint64(r[XPSR]), 28, 4))
}

func (r Registers) String() string {
	var sb strings.Builder
	for i, v := range r {
		if i > 0 && i%4 == 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%5s: %#-10x ", Register(i), v)
	}
	return sb.String()
}

// RegisterValue is a register slot that may not have been observed yet
type RegisterValue struct {
	Value    uint32
	Observed bool
}

// RegisterSnapshot holds one value per architectural register
type RegisterSnapshot [NumRegisters]RegisterValue

// Sparse returns only the observed slots keyed by register name
func (s *RegisterSnapshot) Sparse() map[string]uint32 {
	m := make(map[string]uint32)
	for i, rv := range s {
		if rv.Observed {
			m[Register(i).String()] = rv.Value
		}
	}
	return m
}

// Flags is the NZCV nibble of xPSR (N is bit 3)
type Flags uint8

func (f Flags) N() bool { return f&0b1000 != 0 }
func (f Flags) Z() bool { return f&0b0100 != 0 }
func (f Flags) C() bool { return f&0b0010 != 0 }
func (f Flags) V() bool { return f&0b0001 != 0 }

func (f Flags) String() string {
	b := []byte("nzcv")
	if f.N() {
		b[0] = 'N'
	}
	if f.Z() {
		b[1] = 'Z'
	}
	if f.C() {
		b[2] = 'C'
	}
	if f.V() {
		b[3] = 'V'
	}
	return string(b)
}

// RegisterReader returns the current value of every architectural register
type RegisterReader interface {
	ReadRegisters() (Registers, error)
}
