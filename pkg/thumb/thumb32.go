package thumb

import (
	"fmt"

	"github.com/blacktop/fwtrace/pkg/trace"
	"github.com/pkg/errors"
)

// decode32 dispatches a 32-bit Thumb-2 encoding ("A5.3 32-bit Thumb
// instruction encoding" of ARMv7-M)
func decode32(addr uint32, hi, lo uint16) (*trace.Instruction, error) {
	switch {
	case hi&0xfe40 == 0xe800:
		return loadStoreMultiple32(hi, lo)
	case hi&0xfe40 == 0xe840:
		return loadStoreDual32(hi, lo)
	case hi&0xfe00 == 0xea00:
		return dataProcessingShifted32(hi, lo)
	case hi&0xec00 == 0xec00:
		return coprocessor32(hi, lo), nil
	case hi&0xf800 == 0xf000 && lo&0x8000 != 0:
		return branchesMisc32(addr, hi, lo)
	case hi&0xfa00 == 0xf000:
		return dataProcessingModified32(hi, lo)
	case hi&0xfa00 == 0xf200:
		return dataProcessingPlain32(addr, hi, lo)
	case hi&0xfe00 == 0xf800:
		return loadStoreSingle32(hi, lo)
	case hi&0xff00 == 0xfa00:
		return dataProcessingRegister32(hi, lo)
	case hi&0xff80 == 0xfb00:
		return multiply32(hi, lo)
	case hi&0xff80 == 0xfb80:
		return longMultiply32(hi, lo)
	}

	return nil, errors.Wrapf(ErrUndefined, "32-bit encoding %04x %04x", hi, lo)
}

func loadStoreMultiple32(hi, lo uint16) (*trace.Instruction, error) {
	rn := reg(hi)
	wback := hi&0x0020 != 0
	load := hi&0x0010 != 0
	list := regList(lo)

	base := rn.String()
	if wback {
		base += "!"
	}

	var insn *trace.Instruction
	switch hi >> 7 & 3 {
	case 0b01:
		switch {
		case load && wback && rn == sp:
			insn = newInsn(4, "pop.w", list.String())
			insn.Op = trace.OpPOP
			insn.Operands = []trace.Operand{listOperand(list)}
		case load:
			insn = newInsn(4, "ldm.w", fmt.Sprintf("%s, %s", base, list))
			insn.Op = trace.OpLDM
			insn.Operands = []trace.Operand{regOperand(rn), listOperand(list)}
		default:
			insn = newInsn(4, "stm.w", fmt.Sprintf("%s, %s", base, list))
			insn.Operands = []trace.Operand{regOperand(rn), listOperand(list)}
		}
	case 0b10:
		switch {
		case !load && wback && rn == sp:
			insn = newInsn(4, "push.w", list.String())
			insn.Op = trace.OpPUSH
			insn.Operands = []trace.Operand{listOperand(list)}
		case load:
			insn = newInsn(4, "ldmdb", fmt.Sprintf("%s, %s", base, list))
			insn.Op = trace.OpLDM
			insn.Operands = []trace.Operand{regOperand(rn), listOperand(list)}
		default:
			insn = newInsn(4, "stmdb", fmt.Sprintf("%s, %s", base, list))
			insn.Op = trace.OpSTMDB
			insn.Operands = []trace.Operand{regOperand(rn), listOperand(list)}
		}
	default:
		// srs/rfe are not part of ARMv7-M
		return nil, errors.Wrapf(ErrUndefined, "32-bit encoding %04x %04x", hi, lo)
	}

	if load {
		insn.Writes = list
	}
	if wback {
		writes(insn, rn)
	}
	return insn, nil
}

func loadStoreDual32(hi, lo uint16) (*trace.Instruction, error) {
	rn := reg(hi)
	rt := reg(lo >> 12)

	switch {
	case hi&0xfff0 == 0xe8d0 && lo&0xffe0 == 0xf000:
		rm := reg(lo)
		insn := newInsn(4, "tbb", fmt.Sprintf("[%s, %s]", rn, rm))
		insn.Op = trace.OpTBB
		if lo&0x0010 != 0 {
			insn.Mnemonic = "tbh"
			insn.OpStr = fmt.Sprintf("[%s, %s, lsl #1]", rn, rm)
			insn.Op = trace.OpTBH
		}
		insn.Operands = []trace.Operand{{Kind: trace.OperandMem, Base: rn, Index: rm}}
		return writes(insn, pc), nil
	case hi&0xfff0 == 0xe840:
		rd := reg(lo >> 8)
		opStr := fmt.Sprintf("%s, %s, [%s, %s]", rd, rt, rn, imm(uint32(lo&0xff)<<2))
		return writes(newInsn(4, "strex", opStr), rd), nil
	case hi&0xfff0 == 0xe850:
		opStr := fmt.Sprintf("%s, [%s, %s]", rt, rn, imm(uint32(lo&0xff)<<2))
		return writes(newInsn(4, "ldrex", opStr), rt), nil
	case hi&0xfff0 == 0xe8c0:
		rd := reg(lo)
		mn := exclusiveName("strex", lo)
		return writes(newInsn(4, mn, fmt.Sprintf("%s, %s, [%s]", rd, rt, rn)), rd), nil
	case hi&0xfff0 == 0xe8d0:
		mn := exclusiveName("ldrex", lo)
		insn := writes(newInsn(4, mn, fmt.Sprintf("%s, [%s]", rt, rn)), rt)
		if mn == "ldrexd" {
			writes(insn, reg(lo>>8))
		}
		return insn, nil
	}

	// ldrd/strd
	rt2 := reg(lo >> 8)
	off := int32(lo&0xff) << 2
	if hi&0x0080 == 0 {
		off = -off
	}
	index, wback := hi&0x0100 != 0, hi&0x0020 != 0

	var addrStr string
	switch {
	case !index:
		addrStr = fmt.Sprintf("[%s], %s", rn, simm(off))
	case wback:
		addrStr = fmt.Sprintf("[%s, %s]!", rn, simm(off))
	default:
		addrStr = fmt.Sprintf("[%s, %s]", rn, simm(off))
	}

	mn := "strd"
	if hi&0x0010 != 0 {
		mn = "ldrd"
	}
	insn := newInsn(4, mn, fmt.Sprintf("%s, %s, %s", rt, rt2, addrStr))
	if mn == "ldrd" {
		writes(insn, rt, rt2)
	}
	if wback || !index {
		writes(insn, rn)
	}
	return insn, nil
}

func exclusiveName(base string, lo uint16) string {
	switch lo >> 4 & 0xf {
	case 0b0100:
		return base + "b"
	case 0b0101:
		return base + "h"
	case 0b0111:
		return base + "d"
	}
	return base
}

// dpOp is one row of the shared data-processing opcode table
type dpOp struct {
	name string
	// test is the flag-only form used when Rd is pc and S is set
	test string
	// move is the single-source form used when Rn is pc
	move string
}

var dpOps = map[uint16]dpOp{
	0b0000: {name: "and", test: "tst"},
	0b0001: {name: "bic"},
	0b0010: {name: "orr", move: "mov"},
	0b0011: {name: "orn", move: "mvn"},
	0b0100: {name: "eor", test: "teq"},
	0b1000: {name: "add", test: "cmn"},
	0b1010: {name: "adc"},
	0b1011: {name: "sbc"},
	0b1101: {name: "sub", test: "cmp"},
	0b1110: {name: "rsb"},
}

// dataProcessing builds a data-processing instruction given its decoded
// fields. src is the formatted second operand.
func dataProcessing(opc, rn, rd uint16, setFlags bool, src string) (*trace.Instruction, error) {
	row, ok := dpOps[opc]
	if !ok {
		return nil, errors.Wrapf(ErrUndefined, "data-processing opcode %#x", opc)
	}

	switch {
	case row.test != "" && rd == 15 && setFlags:
		return writes(newInsn(4, row.test+".w", fmt.Sprintf("%s, %s", reg(rn), src)), ps), nil
	case row.move != "" && rn == 15:
		mn := row.move
		if setFlags {
			mn += "s"
		}
		insn := writes(newInsn(4, mn+".w", fmt.Sprintf("%s, %s", reg(rd), src)), reg(rd))
		if setFlags {
			writes(insn, ps)
		}
		return insn, nil
	}

	mn := row.name
	if setFlags {
		mn += "s"
	}
	insn := writes(newInsn(4, mn+".w", fmt.Sprintf("%s, %s, %s", reg(rd), reg(rn), src)), reg(rd))
	if setFlags {
		writes(insn, ps)
	}
	return insn, nil
}

func dataProcessingShifted32(hi, lo uint16) (*trace.Instruction, error) {
	opc := hi >> 5 & 0xf
	rn, rd, rm := hi&0xf, lo>>8&0xf, lo&0xf
	setFlags := hi&0x0010 != 0
	typ := lo >> 4 & 3
	amount := (lo>>12&7)<<2 | lo>>6&3

	if opc == 0b0110 {
		mn := "pkhbt"
		if lo&0x0020 != 0 {
			mn = "pkhtb"
		}
		opStr := fmt.Sprintf("%s, %s, %s%s", reg(rd), reg(rn), reg(rm), shiftSuffix(typ, amount))
		return writes(newInsn(4, mn, opStr), reg(rd)), nil
	}

	// mov with a shift is printed as the shift itself
	if opc == 0b0010 && rn == 15 && (typ != 0 || amount != 0) {
		if typ == 3 && amount == 0 {
			mn := "rrx"
			if setFlags {
				mn += "s"
			}
			insn := writes(newInsn(4, mn+".w", regs(reg(rd), reg(rm))), reg(rd))
			if setFlags {
				writes(insn, ps)
			}
			return insn, nil
		}
		if (typ == 1 || typ == 2) && amount == 0 {
			amount = 32
		}
		mn := shiftNames[typ]
		if setFlags {
			mn += "s"
		}
		insn := writes(newInsn(4, mn+".w", fmt.Sprintf("%s, %s, #%d", reg(rd), reg(rm), amount)), reg(rd))
		if setFlags {
			writes(insn, ps)
		}
		return insn, nil
	}

	return dataProcessing(opc, rn, rd, setFlags, reg(rm).String()+shiftSuffix(typ, amount))
}

func dataProcessingModified32(hi, lo uint16) (*trace.Instruction, error) {
	opc := hi >> 5 & 0xf
	rn, rd := hi&0xf, lo>>8&0xf
	setFlags := hi&0x0010 != 0
	imm12 := uint32(hi>>10&1)<<11 | uint32(lo>>12&7)<<8 | uint32(lo&0xff)

	val, err := thumbExpandImm(imm12)
	if err != nil {
		return nil, err
	}
	return dataProcessing(opc, rn, rd, setFlags, imm(val))
}

func dataProcessingPlain32(addr uint32, hi, lo uint16) (*trace.Instruction, error) {
	rn, rd := hi&0xf, lo>>8&0xf
	imm12 := uint32(hi>>10&1)<<11 | uint32(lo>>12&7)<<8 | uint32(lo&0xff)
	lsb := lo>>12&7<<2 | lo>>6&3
	width := lo & 0x1f

	var insn *trace.Instruction
	switch hi >> 4 & 0x1f {
	case 0b00000:
		if rn == 15 {
			insn = newInsn(4, "adr.w", fmt.Sprintf("%s, %s", reg(rd), imm(literal(addr, int32(imm12)))))
		} else {
			insn = newInsn(4, "addw", fmt.Sprintf("%s, %s, %s", reg(rd), reg(rn), imm(imm12)))
		}
	case 0b01010:
		if rn == 15 {
			insn = newInsn(4, "adr.w", fmt.Sprintf("%s, %s", reg(rd), imm(literal(addr, -int32(imm12)))))
		} else {
			insn = newInsn(4, "subw", fmt.Sprintf("%s, %s, %s", reg(rd), reg(rn), imm(imm12)))
		}
	case 0b00100, 0b01100:
		imm16 := uint32(rn)<<12 | imm12
		mn := "movw"
		if hi&0x0080 != 0 {
			mn = "movt"
		}
		insn = newInsn(4, mn, fmt.Sprintf("%s, %s", reg(rd), imm(imm16)))
	case 0b10000, 0b10010:
		insn = newInsn(4, "ssat", fmt.Sprintf("%s, #%d, %s", reg(rd), width+1, reg(rn)))
		writes(insn, ps)
	case 0b11000, 0b11010:
		insn = newInsn(4, "usat", fmt.Sprintf("%s, #%d, %s", reg(rd), width, reg(rn)))
		writes(insn, ps)
	case 0b10100:
		insn = newInsn(4, "sbfx", fmt.Sprintf("%s, %s, #%d, #%d", reg(rd), reg(rn), lsb, width+1))
	case 0b11100:
		insn = newInsn(4, "ubfx", fmt.Sprintf("%s, %s, #%d, #%d", reg(rd), reg(rn), lsb, width+1))
	case 0b10110:
		if width < lsb {
			return nil, errors.Wrapf(ErrUnpredictable, "bitfield msb < lsb %04x %04x", hi, lo)
		}
		if rn == 15 {
			insn = newInsn(4, "bfc", fmt.Sprintf("%s, #%d, #%d", reg(rd), lsb, width-lsb+1))
		} else {
			insn = newInsn(4, "bfi", fmt.Sprintf("%s, %s, #%d, #%d", reg(rd), reg(rn), lsb, width-lsb+1))
		}
	default:
		return nil, errors.Wrapf(ErrUndefined, "32-bit encoding %04x %04x", hi, lo)
	}

	return writes(insn, reg(rd)), nil
}

func branchesMisc32(addr uint32, hi, lo uint16) (*trace.Instruction, error) {
	s := uint32(hi >> 10 & 1)
	j1 := uint32(lo >> 13 & 1)
	j2 := uint32(lo >> 11 & 1)

	switch lo & 0xd000 {
	case 0x8000:
		cond := trace.Condition(hi >> 6 & 0xf)
		if cond < trace.CondAL {
			// conditional branch, T3 encoding
			off := s<<20 | j2<<19 | j1<<18 | uint32(hi&0x3f)<<12 | uint32(lo&0x7ff)<<1
			target := pcRel(addr, signExtend(off, 21))
			insn := writes(newInsn(4, "b"+cond.String()+".w", imm(target)), pc)
			insn.Op = trace.OpB
			insn.Cond = cond
			insn.Operands = branchTo(target)
			return insn, nil
		}
		return miscControl32(hi, lo)
	case 0x9000, 0xd000, 0xc000:
		i1 := ^(j1 ^ s) & 1
		i2 := ^(j2 ^ s) & 1
		off := s<<24 | i1<<23 | i2<<22 | uint32(hi&0x3ff)<<12 | uint32(lo&0x7ff)<<1
		target := pcRel(addr, signExtend(off, 25))

		var insn *trace.Instruction
		switch lo & 0xd000 {
		case 0x9000:
			insn = writes(newInsn(4, "b.w", imm(target)), pc)
			insn.Op = trace.OpB
		case 0xd000:
			insn = writes(newInsn(4, "bl", imm(target)), lr, pc)
			insn.Op = trace.OpBL
		default:
			target &^= 3
			insn = writes(newInsn(4, "blx", imm(target)), lr, pc)
			insn.Op = trace.OpBLX
		}
		insn.Operands = branchTo(target)
		return insn, nil
	}

	return nil, errors.Wrapf(ErrUndefined, "32-bit encoding %04x %04x", hi, lo)
}

func miscControl32(hi, lo uint16) (*trace.Instruction, error) {
	switch {
	case hi&0xffe0 == 0xf380:
		sysm := lo & 0xff
		insn := newInsn(4, "msr", fmt.Sprintf("%s, %s", sysReg(sysm), reg(hi)))
		switch {
		case sysm <= 3:
			writes(insn, ps)
		case sysm == 8 || sysm == 9:
			writes(insn, sp)
		}
		return insn, nil
	case hi&0xfff0 == 0xf3a0:
		if h := lo & 0xff; int(h) < len(hints) {
			return newInsn(4, hints[h]+".w", ""), nil
		}
		return newInsn(4, "nop.w", ""), nil
	case hi&0xfff0 == 0xf3b0:
		switch lo >> 4 & 0xf {
		case 0b0010:
			return newInsn(4, "clrex", ""), nil
		case 0b0100:
			return newInsn(4, "dsb", "sy"), nil
		case 0b0101:
			return newInsn(4, "dmb", "sy"), nil
		case 0b0110:
			return newInsn(4, "isb", "sy"), nil
		}
	case hi&0xffe0 == 0xf3e0:
		rd := reg(lo >> 8)
		return writes(newInsn(4, "mrs", fmt.Sprintf("%s, %s", rd, sysReg(lo&0xff))), rd), nil
	case hi&0xfff0 == 0xf7f0 && lo&0xf000 == 0xa000:
		insn := newInsn(4, "udf.w", imm(uint32(hi&0xf)<<12|uint32(lo&0xfff)))
		insn.Op = trace.OpUDF
		return insn, nil
	}

	return nil, errors.Wrapf(ErrUndefined, "32-bit encoding %04x %04x", hi, lo)
}

func loadStoreSingle32(hi, lo uint16) (*trace.Instruction, error) {
	rn, rt := reg(hi), reg(lo>>12)
	size := hi >> 5 & 3
	signed := hi&0x0100 != 0
	load := hi&0x0010 != 0

	if size == 3 || (signed && !load) {
		return nil, errors.Wrapf(ErrUndefined, "32-bit encoding %04x %04x", hi, lo)
	}

	mn := "str"
	if load {
		mn = "ldr"
		if signed {
			mn += "s"
		}
	}
	mn += [...]string{"b", "h", ""}[size]

	// byte and halfword loads into pc are preload hints
	if load && rt == pc && size != 2 {
		hint := "pld"
		if signed {
			hint = "pli"
		}
		return newInsn(4, hint, fmt.Sprintf("[%s]", rn)), nil
	}

	var (
		opStr  string
		wback  bool
		unpriv bool
	)
	switch {
	case rn == pc && load:
		off := int32(lo & 0xfff)
		if hi&0x0080 == 0 {
			off = -off
		}
		opStr = fmt.Sprintf("%s, [pc, %s]", rt, simm(off))
	case hi&0x0080 != 0:
		opStr = fmt.Sprintf("%s, [%s, %s]", rt, rn, imm(uint32(lo&0xfff)))
	case lo&0x0fc0 == 0:
		rm := reg(lo)
		shift := ""
		if s := lo >> 4 & 3; s != 0 {
			shift = fmt.Sprintf(", lsl #%d", s)
		}
		opStr = fmt.Sprintf("%s, [%s, %s%s]", rt, rn, rm, shift)
	case lo&0x0800 != 0:
		index, up := lo&0x0400 != 0, lo&0x0200 != 0
		wback = lo&0x0100 != 0
		off := int32(lo & 0xff)
		if !up {
			off = -off
		}

		// single register pop/push
		if size == 2 && !signed && rn == sp {
			if load && !index && up && wback && off == 4 {
				return popPush32("pop.w", trace.OpPOP, rt, load), nil
			}
			if !load && index && !up && wback && off == -4 {
				return popPush32("push.w", trace.OpPUSH, rt, load), nil
			}
		}

		switch {
		case index && up && !wback:
			unpriv = true
			mn += "t"
			opStr = fmt.Sprintf("%s, [%s, %s]", rt, rn, imm(uint32(off)))
		case !index:
			wback = true
			opStr = fmt.Sprintf("%s, [%s], %s", rt, rn, simm(off))
		case wback:
			opStr = fmt.Sprintf("%s, [%s, %s]!", rt, rn, simm(off))
		default:
			opStr = fmt.Sprintf("%s, [%s, %s]", rt, rn, simm(off))
		}
	default:
		return nil, errors.Wrapf(ErrUndefined, "32-bit encoding %04x %04x", hi, lo)
	}

	if !unpriv {
		mn += ".w"
	}
	insn := newInsn(4, mn, opStr)
	if load {
		writes(insn, rt)
	}
	if wback {
		writes(insn, rn)
	}
	return insn, nil
}

func popPush32(mn string, op trace.Opcode, rt trace.Register, load bool) *trace.Instruction {
	list := trace.RegisterMask(0).With(rt)
	insn := writes(newInsn(4, mn, list.String()), sp)
	if load {
		writes(insn, rt)
	}
	insn.Op = op
	insn.Operands = []trace.Operand{listOperand(list)}
	return insn
}

var parallelPrefixes = map[uint16]string{0: "s", 1: "q", 2: "sh", 4: "u", 5: "uq", 6: "uh"}

var parallelOps = map[uint16]string{0: "add8", 1: "add16", 2: "asx", 4: "sub8", 5: "sub16", 6: "sax"}

func dataProcessingRegister32(hi, lo uint16) (*trace.Instruction, error) {
	rn, rd, rm := reg(hi), reg(lo>>8), reg(lo)
	setFlags := hi&0x0010 != 0

	switch {
	case hi&0xff80 == 0xfa00 && lo&0xf0f0 == 0xf000:
		mn := shiftNames[hi>>5&3]
		if setFlags {
			mn += "s"
		}
		insn := writes(newInsn(4, mn+".w", regs(rd, rn, rm)), rd)
		if setFlags {
			writes(insn, ps)
		}
		return insn, nil
	case hi&0xff80 == 0xfa00 && lo&0xf080 == 0xf080:
		names := [...]string{"sxth", "uxth", "sxtb16", "uxtb16", "sxtb", "uxtb"}
		kind := hi >> 4 & 7
		if int(kind) >= len(names) {
			break
		}
		mn, opStr := names[kind], regs(rd, rm)
		if rn != pc {
			// extend and add
			mn = mn[:1] + "xta" + mn[3:]
			opStr = regs(rd, rn, rm)
		}
		if rot := lo >> 4 & 3; rot != 0 {
			opStr += fmt.Sprintf(", ror #%d", rot*8)
		}
		return writes(newInsn(4, mn, opStr), rd), nil
	case hi&0xff80 == 0xfa80 && lo&0xf0c0 == 0xf080:
		var mn string
		switch (hi>>4&3)<<2 | lo>>4&3 {
		case 0b0100:
			mn = "rev.w"
		case 0b0101:
			mn = "rev16.w"
		case 0b0110:
			mn = "rbit"
		case 0b0111:
			mn = "revsh.w"
		case 0b1000:
			return writes(newInsn(4, "sel", regs(rd, rn, rm)), rd), nil
		case 0b1100:
			mn = "clz"
		default:
			return nil, errors.Wrapf(ErrUndefined, "32-bit encoding %04x %04x", hi, lo)
		}
		return writes(newInsn(4, mn, regs(rd, rm)), rd), nil
	case hi&0xff80 == 0xfa80 && lo&0xf080 == 0xf000:
		prefix, ok1 := parallelPrefixes[lo>>4&7]
		op, ok2 := parallelOps[hi>>4&7]
		if !ok1 || !ok2 {
			break
		}
		insn := writes(newInsn(4, prefix+op, regs(rd, rn, rm)), rd)
		if prefix == "s" || prefix == "u" {
			// GE flags
			writes(insn, ps)
		}
		return insn, nil
	}

	return nil, errors.Wrapf(ErrUndefined, "32-bit encoding %04x %04x", hi, lo)
}

func multiply32(hi, lo uint16) (*trace.Instruction, error) {
	rn, rd, rm := reg(hi), reg(lo>>8), reg(lo)
	ra := reg(lo >> 12)
	accumulate := ra != pc

	var mn string
	switch hi >> 4 & 7 {
	case 0:
		switch lo >> 4 & 3 {
		case 0:
			mn = "mul"
			if accumulate {
				mn = "mla"
			}
		case 1:
			mn = "mls"
		}
	case 1:
		xy := [...]string{"bb", "bt", "tb", "tt"}[lo>>4&3]
		mn = "smul" + xy
		if accumulate {
			mn = "smla" + xy
		}
	case 2:
		mn = "smuad"
		if accumulate {
			mn = "smlad"
		}
	case 3:
		y := [...]string{"b", "t"}[lo>>4&1]
		mn = "smulw" + y
		if accumulate {
			mn = "smlaw" + y
		}
	case 4:
		mn = "smusd"
		if accumulate {
			mn = "smlsd"
		}
	case 5:
		mn = "smmul"
		if accumulate {
			mn = "smmla"
		}
	case 6:
		mn = "smmls"
	}
	if mn == "" {
		return nil, errors.Wrapf(ErrUndefined, "32-bit encoding %04x %04x", hi, lo)
	}

	opStr := regs(rd, rn, rm)
	if accumulate && mn != "mul" {
		opStr = regs(rd, rn, rm, ra)
	}
	if mn == "mul" {
		mn = "mul.w"
	}
	return writes(newInsn(4, mn, opStr), rd), nil
}

func longMultiply32(hi, lo uint16) (*trace.Instruction, error) {
	rn, rm := reg(hi), reg(lo)
	rdLo, rdHi := reg(lo>>12), reg(lo>>8)
	op2 := lo >> 4 & 0xf

	switch hi >> 4 & 7 {
	case 0:
		return writes(newInsn(4, "smull", regs(rdLo, rdHi, rn, rm)), rdLo, rdHi), nil
	case 1:
		if op2 == 0xf {
			return writes(newInsn(4, "sdiv", regs(rdHi, rn, rm)), rdHi), nil
		}
	case 2:
		return writes(newInsn(4, "umull", regs(rdLo, rdHi, rn, rm)), rdLo, rdHi), nil
	case 3:
		if op2 == 0xf {
			return writes(newInsn(4, "udiv", regs(rdHi, rn, rm)), rdHi), nil
		}
	case 4:
		if op2 == 0 {
			return writes(newInsn(4, "smlal", regs(rdLo, rdHi, rn, rm)), rdLo, rdHi), nil
		}
	case 6:
		switch op2 {
		case 0:
			return writes(newInsn(4, "umlal", regs(rdLo, rdHi, rn, rm)), rdLo, rdHi), nil
		case 6:
			return writes(newInsn(4, "umaal", regs(rdLo, rdHi, rn, rm)), rdLo, rdHi), nil
		}
	}

	return nil, errors.Wrapf(ErrUndefined, "32-bit encoding %04x %04x", hi, lo)
}

// coprocessor32 covers the FPU (coprocessors 10 and 11) and generic
// coprocessor space. Only transfers into core registers are tracked as
// writes.
func coprocessor32(hi, lo uint16) *trace.Instruction {
	coproc := lo >> 8 & 0xf
	fp := coproc == 10 || coproc == 11
	rt, rt2, rn := reg(lo>>12), reg(hi), reg(hi)

	switch {
	case hi&0xffe0 == 0xec40:
		// 64-bit transfer between two core registers and the coprocessor
		mn := "mcrr"
		if fp {
			mn = "vmov"
		}
		if hi&0x0010 != 0 {
			if !fp {
				mn = "mrrc"
			}
			return writes(newInsn(4, mn, regs(rt, rt2)), rt, rt2)
		}
		return newInsn(4, mn, regs(rt, rt2))
	case hi&0xfe00 == 0xec00 || hi&0xfe00 == 0xed00:
		// loads and stores
		load := hi&0x0010 != 0
		var mn string
		switch {
		case fp && hi&0x0120 == 0x0100:
			mn = "vstr"
		case fp:
			mn = "vstm"
		default:
			mn = "stc"
		}
		if load {
			mn = map[string]string{"vstr": "vldr", "vstm": "vldm", "stc": "ldc"}[mn]
		}
		if fp && rn == sp && hi&0x0020 != 0 {
			if load {
				mn = "vpop"
			} else {
				mn = "vpush"
			}
		}
		insn := newInsn(4, mn, fmt.Sprintf("[%s]", rn))
		if hi&0x0020 != 0 {
			writes(insn, rn)
		}
		return insn
	case hi&0xff00 == 0xee00 || hi&0xff00 == 0xef00 || hi&0xfe00 == 0xfe00:
		if lo&0x0010 == 0 {
			return newInsn(4, "cdp", fmt.Sprintf("p%d", coproc))
		}
		// register transfer
		toCore := hi&0x0010 != 0
		switch {
		case fp && hi == 0xeef1 && lo&0x0fff == 0x0a10:
			if rt == pc {
				return writes(newInsn(4, "vmrs", "apsr_nzcv, fpscr"), ps)
			}
			return writes(newInsn(4, "vmrs", fmt.Sprintf("%s, fpscr", rt)), rt)
		case fp && hi == 0xeee1 && lo&0x0fff == 0x0a10:
			return newInsn(4, "vmsr", fmt.Sprintf("fpscr, %s", rt))
		case fp && toCore:
			return writes(newInsn(4, "vmov", rt.String()), rt)
		case fp:
			return newInsn(4, "vmov", rt.String())
		case toCore:
			return writes(newInsn(4, "mrc", fmt.Sprintf("p%d, %s", coproc, rt)), rt)
		default:
			return newInsn(4, "mcr", fmt.Sprintf("p%d, %s", coproc, rt))
		}
	}

	return newInsn(4, "cdp", fmt.Sprintf("p%d", coproc))
}
