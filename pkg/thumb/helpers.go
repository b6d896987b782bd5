package thumb

import (
	"fmt"
	"strings"

	"github.com/blacktop/fwtrace/pkg/trace"
	"github.com/pkg/errors"
)

// reg converts an encoded register field
func reg[T ~uint16 | ~uint32](n T) trace.Register {
	return trace.Register(n & 0xf)
}

// signExtend sign-extends val from the given bit width
func signExtend(val uint32, bits int) int32 {
	sign := uint32(1) << (bits - 1)
	mask := sign - 1
	if val&sign != 0 {
		return int32(val | ^mask)
	}
	return int32(val & mask)
}

// thumbExpandImm decodes a Thumb-2 modified immediate constant ("A5.3.2
// Modified immediate constants in Thumb instructions" of ARMv7-M)
func thumbExpandImm(imm12 uint32) (uint32, error) {
	if imm12&0xc00 == 0 {
		b := imm12 & 0xff
		switch (imm12 >> 8) & 3 {
		case 0b00:
			return b, nil
		case 0b01:
			if b == 0 {
				return 0, errors.Wrap(ErrUnpredictable, "zero modified immediate")
			}
			return b<<16 | b, nil
		case 0b10:
			if b == 0 {
				return 0, errors.Wrap(ErrUnpredictable, "zero modified immediate")
			}
			return b<<24 | b<<8, nil
		default:
			if b == 0 {
				return 0, errors.Wrap(ErrUnpredictable, "zero modified immediate")
			}
			return b<<24 | b<<16 | b<<8 | b, nil
		}
	}
	unrotated := uint32(0x80) | imm12&0x7f
	rot := (imm12 >> 7) & 0x1f
	return unrotated>>rot | unrotated<<(32-rot), nil
}

// pcRel returns the target of a PC-relative branch
func pcRel(addr uint32, offset int32) uint32 {
	return uint32(int64(addr) + 4 + int64(offset))
}

// literal returns the address of a PC-relative load
func literal(addr uint32, offset int32) uint32 {
	return uint32(int64(addr+4)&^3 + int64(offset))
}

func imm(v uint32) string {
	return fmt.Sprintf("#%#x", v)
}

func simm(v int32) string {
	if v < 0 {
		return fmt.Sprintf("#-%#x", -int64(v))
	}
	return fmt.Sprintf("#%#x", v)
}

func regs(rs ...trace.Register) string {
	s := make([]string, len(rs))
	for i, r := range rs {
		s[i] = r.String()
	}
	return strings.Join(s, ", ")
}

// regList converts an encoded register list (bit N = rN)
func regList(bits uint16) trace.RegisterMask {
	return trace.RegisterMask(bits)
}

func branchTo(target uint32) []trace.Operand {
	return []trace.Operand{{Kind: trace.OperandImm, Imm: int64(target)}}
}

func listOperand(list trace.RegisterMask) trace.Operand {
	return trace.Operand{Kind: trace.OperandRegList, List: list}
}

func regOperand(r trace.Register) trace.Operand {
	return trace.Operand{Kind: trace.OperandReg, Reg: r}
}

var shiftNames = [...]string{"lsl", "lsr", "asr", "ror"}

// shiftSuffix formats an immediate shift applied to the last operand
func shiftSuffix(typ, amount uint16) string {
	switch {
	case typ == 0 && amount == 0:
		return ""
	case typ == 3 && amount == 0:
		return ", rrx"
	case (typ == 1 || typ == 2) && amount == 0:
		amount = 32
	}
	return fmt.Sprintf(", %s #%d", shiftNames[typ], amount)
}

var sysRegNames = map[uint16]string{
	0:  "apsr",
	1:  "iapsr",
	2:  "eapsr",
	3:  "xpsr",
	5:  "ipsr",
	6:  "epsr",
	7:  "iepsr",
	8:  "msp",
	9:  "psp",
	16: "primask",
	17: "basepri",
	18: "basepri_max",
	19: "faultmask",
	20: "control",
}

func sysReg(sysm uint16) string {
	if n, ok := sysRegNames[sysm]; ok {
		return n
	}
	return fmt.Sprintf("sysreg%d", sysm)
}

// itPattern builds the "t"/"e" suffix of an IT mnemonic from firstcond<0> and
// the mask
func itPattern(firstCond, mask uint16) string {
	var size int
	switch {
	case mask&0b0001 != 0:
		size = 4
	case mask&0b0010 != 0:
		size = 3
	case mask&0b0100 != 0:
		size = 2
	default:
		size = 1
	}
	var sb strings.Builder
	for i := 1; i < size; i++ {
		if (mask>>(4-i))&1 == firstCond&1 {
			sb.WriteByte('t')
		} else {
			sb.WriteByte('e')
		}
	}
	return sb.String()
}
