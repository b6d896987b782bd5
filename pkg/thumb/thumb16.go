package thumb

import (
	"fmt"

	"github.com/blacktop/fwtrace/pkg/trace"
	"github.com/pkg/errors"
)

const (
	sp = trace.SP
	lr = trace.LR
	pc = trace.PC
	ps = trace.XPSR
)

// decode16 dispatches a 16-bit encoding. The masks follow the format table
// of the Thumb instruction set, checked from the most specific pattern down.
func decode16(addr uint32, op uint16) (*trace.Instruction, error) {
	switch {
	case op&0xf800 == 0xe000:
		// unconditional branch
		target := pcRel(addr, signExtend(uint32(op&0x7ff)<<1, 12))
		insn := writes(newInsn(2, "b", imm(target)), pc)
		insn.Op = trace.OpB
		insn.Operands = branchTo(target)
		return insn, nil
	case op&0xff00 == 0xdf00:
		insn := newInsn(2, "svc", imm(uint32(op&0xff)))
		insn.Op = trace.OpSVC
		insn.Operands = branchTo(uint32(op & 0xff))
		return insn, nil
	case op&0xff00 == 0xde00:
		insn := newInsn(2, "udf", imm(uint32(op&0xff)))
		insn.Op = trace.OpUDF
		return insn, nil
	case op&0xf000 == 0xd000:
		return conditionalBranch16(addr, op), nil
	case op&0xf000 == 0xc000:
		return multipleLoadStore16(op), nil
	case op&0xf000 == 0xb000:
		return misc16(addr, op)
	case op&0xf000 == 0xa000:
		rd := reg(op >> 8 & 7)
		off := uint32(op&0xff) << 2
		if op&0x0800 == 0 {
			return writes(newInsn(2, "adr", fmt.Sprintf("%s, %s", rd, imm(literal(addr, int32(off))))), rd), nil
		}
		return writes(newInsn(2, "add", fmt.Sprintf("%s, sp, %s", rd, imm(off))), rd), nil
	case op&0xf000 == 0x9000:
		rt := reg(op >> 8 & 7)
		opStr := fmt.Sprintf("%s, [sp, %s]", rt, imm(uint32(op&0xff)<<2))
		if op&0x0800 != 0 {
			return writes(newInsn(2, "ldr", opStr), rt), nil
		}
		return newInsn(2, "str", opStr), nil
	case op&0xf000 == 0x8000:
		rt, rn := reg(op&7), reg(op>>3&7)
		opStr := fmt.Sprintf("%s, [%s, %s]", rt, rn, imm(uint32(op>>6&0x1f)<<1))
		if op&0x0800 != 0 {
			return writes(newInsn(2, "ldrh", opStr), rt), nil
		}
		return newInsn(2, "strh", opStr), nil
	case op&0xe000 == 0x6000:
		return loadStoreImm16(op), nil
	case op&0xf000 == 0x5000:
		return loadStoreReg16(op), nil
	case op&0xf800 == 0x4800:
		rt := reg(op >> 8 & 7)
		opStr := fmt.Sprintf("%s, [pc, %s]", rt, imm(uint32(op&0xff)<<2))
		return writes(newInsn(2, "ldr", opStr), rt), nil
	case op&0xfc00 == 0x4400:
		return hiRegisterOps16(op), nil
	case op&0xfc00 == 0x4000:
		return aluOps16(op), nil
	case op&0xe000 == 0x2000:
		rdn := reg(op >> 8 & 7)
		val := imm(uint32(op & 0xff))
		switch op >> 11 & 3 {
		case 0:
			return writes(newInsn(2, "movs", fmt.Sprintf("%s, %s", rdn, val)), rdn, ps), nil
		case 1:
			return writes(newInsn(2, "cmp", fmt.Sprintf("%s, %s", rdn, val)), ps), nil
		case 2:
			return writes(newInsn(2, "adds", fmt.Sprintf("%s, %s", rdn, val)), rdn, ps), nil
		default:
			return writes(newInsn(2, "subs", fmt.Sprintf("%s, %s", rdn, val)), rdn, ps), nil
		}
	case op&0xf800 == 0x1800:
		rd, rn := reg(op&7), reg(op>>3&7)
		mn := "adds"
		if op&0x0200 != 0 {
			mn = "subs"
		}
		var src string
		if op&0x0400 != 0 {
			src = imm(uint32(op >> 6 & 7))
		} else {
			src = reg(op >> 6 & 7).String()
		}
		return writes(newInsn(2, mn, fmt.Sprintf("%s, %s, %s", rd, rn, src)), rd, ps), nil
	case op&0xe000 == 0x0000:
		rd, rm := reg(op&7), reg(op>>3&7)
		typ, amount := op>>11&3, op>>6&0x1f
		if typ == 0 && amount == 0 {
			return writes(newInsn(2, "movs", regs(rd, rm)), rd, ps), nil
		}
		if amount == 0 {
			amount = 32
		}
		mn := shiftNames[typ] + "s"
		return writes(newInsn(2, mn, fmt.Sprintf("%s, %s, #%d", rd, rm, amount)), rd, ps), nil
	}

	return nil, errors.Wrapf(ErrUndefined, "16-bit encoding %#04x", op)
}

func conditionalBranch16(addr uint32, op uint16) *trace.Instruction {
	cond := trace.Condition(op >> 8 & 0xf)
	target := pcRel(addr, signExtend(uint32(op&0xff)<<1, 9))
	insn := writes(newInsn(2, "b"+cond.String(), imm(target)), pc)
	insn.Op = trace.OpB
	insn.Cond = cond
	insn.Operands = branchTo(target)
	return insn
}

func multipleLoadStore16(op uint16) *trace.Instruction {
	rn := reg(op >> 8 & 7)
	list := regList(op & 0xff)

	if op&0x0800 == 0 {
		insn := writes(newInsn(2, "stm", fmt.Sprintf("%s!, %s", rn, list)), rn)
		insn.Operands = []trace.Operand{regOperand(rn), listOperand(list)}
		return insn
	}

	// writeback unless the base is loaded
	base := rn.String() + "!"
	insn := newInsn(2, "ldm", "")
	insn.Writes = list
	if list.Has(rn) {
		base = rn.String()
	} else {
		insn.Writes = insn.Writes.With(rn)
	}
	insn.OpStr = fmt.Sprintf("%s, %s", base, list)
	insn.Op = trace.OpLDM
	insn.Operands = []trace.Operand{regOperand(rn), listOperand(list)}
	return insn
}

func misc16(addr uint32, op uint16) (*trace.Instruction, error) {
	switch {
	case op&0xff80 == 0xb000:
		return writes(newInsn(2, "add", "sp, "+imm(uint32(op&0x7f)<<2)), sp), nil
	case op&0xff80 == 0xb080:
		return writes(newInsn(2, "sub", "sp, "+imm(uint32(op&0x7f)<<2)), sp), nil
	case op&0xf500 == 0xb100:
		rn := reg(op & 7)
		off := uint32(op>>9&1)<<6 | uint32(op>>3&0x1f)<<1
		target := pcRel(addr, int32(off))
		insn := newInsn(2, "cbz", fmt.Sprintf("%s, %s", rn, imm(target)))
		insn.Op = trace.OpCBZ
		if op&0x0800 != 0 {
			insn.Mnemonic = "cbnz"
			insn.Op = trace.OpCBNZ
		}
		insn.Operands = []trace.Operand{regOperand(rn), {Kind: trace.OperandImm, Imm: int64(target)}}
		return writes(insn, pc), nil
	case op&0xff00 == 0xb200:
		rd, rm := reg(op&7), reg(op>>3&7)
		mn := [...]string{"sxth", "sxtb", "uxth", "uxtb"}[op>>6&3]
		return writes(newInsn(2, mn, regs(rd, rm)), rd), nil
	case op&0xfe00 == 0xb400:
		list := regList(op & 0xff)
		if op&0x0100 != 0 {
			list = list.With(lr)
		}
		insn := writes(newInsn(2, "push", list.String()), sp)
		insn.Op = trace.OpPUSH
		insn.Operands = []trace.Operand{listOperand(list)}
		return insn, nil
	case op&0xfe00 == 0xbc00:
		list := regList(op & 0xff)
		if op&0x0100 != 0 {
			list = list.With(pc)
		}
		insn := newInsn(2, "pop", list.String())
		insn.Writes = list.With(sp)
		insn.Op = trace.OpPOP
		insn.Operands = []trace.Operand{listOperand(list)}
		return insn, nil
	case op&0xffe8 == 0xb660:
		mn := "cpsie"
		if op&0x0010 != 0 {
			mn = "cpsid"
		}
		var flags string
		if op&0x0002 != 0 {
			flags += "i"
		}
		if op&0x0001 != 0 {
			flags += "f"
		}
		return newInsn(2, mn, flags), nil
	case op&0xff00 == 0xba00:
		rd, rm := reg(op&7), reg(op>>3&7)
		var mn string
		switch op >> 6 & 3 {
		case 0:
			mn = "rev"
		case 1:
			mn = "rev16"
		case 3:
			mn = "revsh"
		default:
			return nil, errors.Wrapf(ErrUndefined, "16-bit encoding %#04x", op)
		}
		return writes(newInsn(2, mn, regs(rd, rm)), rd), nil
	case op&0xff00 == 0xbe00:
		insn := newInsn(2, "bkpt", imm(uint32(op&0xff)))
		insn.Op = trace.OpBKPT
		return insn, nil
	case op&0xff00 == 0xbf00:
		return ifThen16(op)
	}

	return nil, errors.Wrapf(ErrUndefined, "16-bit encoding %#04x", op)
}

var hints = [...]string{"nop", "yield", "wfe", "wfi", "sev"}

func ifThen16(op uint16) (*trace.Instruction, error) {
	firstCond, mask := op>>4&0xf, op&0xf
	if mask == 0 {
		if int(firstCond) < len(hints) {
			return newInsn(2, hints[firstCond], ""), nil
		}
		return newInsn(2, "nop", ""), nil
	}
	if firstCond == 0xf {
		return nil, errors.Wrapf(ErrUnpredictable, "IT with condition nv %#04x", op)
	}

	cond := trace.Condition(firstCond)
	insn := newInsn(2, "it"+itPattern(firstCond, mask), cond.String())
	insn.Op = trace.OpIT
	insn.ITState = &trace.ITState{FirstCond: cond, Mask: uint8(mask)}
	return insn, nil
}

func loadStoreImm16(op uint16) *trace.Instruction {
	rt, rn := reg(op&7), reg(op>>3&7)
	off := uint32(op >> 6 & 0x1f)
	byteAccess := op&0x1000 != 0
	load := op&0x0800 != 0

	mn := "str"
	if load {
		mn = "ldr"
	}
	if byteAccess {
		mn += "b"
	} else {
		off <<= 2
	}
	insn := newInsn(2, mn, fmt.Sprintf("%s, [%s, %s]", rt, rn, imm(off)))
	if load {
		writes(insn, rt)
	}
	return insn
}

var loadStoreRegNames = [...]string{"str", "strh", "strb", "ldrsb", "ldr", "ldrh", "ldrb", "ldrsh"}

func loadStoreReg16(op uint16) *trace.Instruction {
	rt, rn, rm := reg(op&7), reg(op>>3&7), reg(op>>6&7)
	kind := op >> 9 & 7
	insn := newInsn(2, loadStoreRegNames[kind], fmt.Sprintf("%s, [%s, %s]", rt, rn, rm))
	if kind >= 3 {
		writes(insn, rt)
	}
	return insn
}

func hiRegisterOps16(op uint16) *trace.Instruction {
	rdn := reg(op>>4&8 | op&7)
	rm := reg(op >> 3 & 0xf)

	switch op >> 8 & 3 {
	case 0:
		return writes(newInsn(2, "add", regs(rdn, rm)), rdn)
	case 1:
		return writes(newInsn(2, "cmp", regs(rdn, rm)), ps)
	case 2:
		return writes(newInsn(2, "mov", regs(rdn, rm)), rdn)
	}

	if op&0x0080 != 0 {
		insn := writes(newInsn(2, "blx", rm.String()), lr, pc)
		insn.Op = trace.OpBLX
		insn.Operands = []trace.Operand{regOperand(rm)}
		return insn
	}
	insn := writes(newInsn(2, "bx", rm.String()), pc)
	insn.Op = trace.OpBX
	insn.Operands = []trace.Operand{regOperand(rm)}
	return insn
}

var aluNames = [...]string{
	"ands", "eors", "lsls", "lsrs", "asrs", "adcs", "sbcs", "rors",
	"tst", "rsbs", "cmp", "cmn", "orrs", "muls", "bics", "mvns",
}

func aluOps16(op uint16) *trace.Instruction {
	rdn, rm := reg(op&7), reg(op>>3&7)
	kind := op >> 6 & 0xf

	switch kind {
	case 0x8, 0xa, 0xb:
		// tst, cmp, cmn
		return writes(newInsn(2, aluNames[kind], regs(rdn, rm)), ps)
	case 0x9:
		return writes(newInsn(2, aluNames[kind], fmt.Sprintf("%s, %s, #0", rdn, rm)), rdn, ps)
	case 0xd:
		return writes(newInsn(2, aluNames[kind], fmt.Sprintf("%s, %s, %s", rdn, rm, rdn)), rdn, ps)
	}
	return writes(newInsn(2, aluNames[kind], regs(rdn, rm)), rdn, ps)
}
