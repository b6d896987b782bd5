package trace

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Condition is an ARM condition code field
type Condition uint8

const (
	CondEQ Condition = iota // equal
	CondNE                  // not equal
	CondCS                  // carry set (HS)
	CondCC                  // carry clear (LO)
	CondMI                  // negative
	CondPL                  // positive or zero
	CondVS                  // overflow set
	CondVC                  // overflow clear
	CondHI                  // unsigned higher
	CondLS                  // unsigned lower or same
	CondGE                  // signed greater or equal
	CondLT                  // signed less than
	CondGT                  // signed greater than
	CondLE                  // signed less or equal
	CondAL                  // always
	CondNV                  // unpredictable
)

var conditionNames = [...]string{
	"eq", "ne", "cs", "cc", "mi", "pl", "vs", "vc",
	"hi", "ls", "ge", "lt", "gt", "le", "al", "nv",
}

func (c Condition) String() string {
	if int(c) < len(conditionNames) {
		return conditionNames[c]
	}
	return fmt.Sprintf("Condition(%d)", c)
}

// ParseCondition parses a condition suffix such as "eq" or "hs"
func ParseCondition(s string) (Condition, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "hs":
		return CondCS, nil
	case "lo":
		return CondCC, nil
	case "":
		return CondAL, nil
	}
	for i, n := range conditionNames {
		if n == s {
			return Condition(i), nil
		}
	}
	return CondNV, errors.Errorf("unknown condition code %q", s)
}

// Inverse returns the opposite condition (eq <-> ne, ...)
func (c Condition) Inverse() Condition {
	if c >= CondAL {
		return c
	}
	return c ^ 1
}

// Passed evaluates the condition against the NZCV flags ("A7.3 Conditional
// execution" in the ARMv7-M reference manual)
func (c Condition) Passed(f Flags) bool {
	switch c {
	case CondEQ:
		return f.Z()
	case CondNE:
		return !f.Z()
	case CondCS:
		return f.C()
	case CondCC:
		return !f.C()
	case CondMI:
		return f.N()
	case CondPL:
		return !f.N()
	case CondVS:
		return f.V()
	case CondVC:
		return !f.V()
	case CondHI:
		return f.C() && !f.Z()
	case CondLS:
		return !f.C() || f.Z()
	case CondGE:
		return f.N() == f.V()
	case CondLT:
		return f.N() != f.V()
	case CondGT:
		return !f.Z() && f.N() == f.V()
	case CondLE:
		return f.Z() || f.N() != f.V()
	default:
		return true
	}
}
