package trace

import (
	"strings"

	"github.com/apex/log"
	"github.com/pkg/errors"
)

// ITBlock tracks Thumb IT-block predication.
//
// The condition and the then/else pattern come from the disassembled IT
// mnemonic ("itte eq") because xPSR is not reliable at the point the IT
// instruction is observed. The raw ITState, when the decoder provides it, is
// only used as a cross-check.
type ITBlock struct {
	active bool
	cond   Condition
	// expected-execute flags, next slot at the end
	slots []bool
}

// Active reports whether an IT block is open
func (b *ITBlock) Active() bool {
	return b.active
}

// Condition returns the condition of the open block
func (b *ITBlock) Condition() Condition {
	return b.cond
}

// Remaining returns the number of predicated slots left
func (b *ITBlock) Remaining() int {
	return len(b.slots)
}

// Begin opens a block for the IT instruction insn
func (b *ITBlock) Begin(insn *Instruction) error {
	if b.active {
		return errors.Wrapf(ErrNestedITBlock, "%#08x: %s", insn.Address, insn)
	}

	cond, slots, err := parseIT(insn.Mnemonic, insn.OpStr)
	if err != nil {
		return errors.Wrapf(err, "%#08x", insn.Address)
	}
	if insn.ITState != nil {
		if want, err := expandITMask(*insn.ITState); err == nil && !sameSlots(want, slots) {
			log.WithFields(log.Fields{
				"addr":     insn.Address,
				"mnemonic": insn.String(),
				"mask":     insn.ITState.Mask,
			}).Warn("IT mnemonic disagrees with encoded mask")
		}
	}

	// evaluated first slot first, so pop from the end
	for i, j := 0, len(slots)-1; i < j; i, j = i+1, j-1 {
		slots[i], slots[j] = slots[j], slots[i]
	}

	b.active = true
	b.cond = cond
	b.slots = slots
	return nil
}

// Next returns the condition guarding the next predicated slot, the inverse
// of the block condition for else slots
func (b *ITBlock) Next() (Condition, bool) {
	if !b.active {
		return CondAL, false
	}
	if b.slots[len(b.slots)-1] {
		return b.cond, true
	}
	return b.cond.Inverse(), true
}

// Step evaluates the next predicated slot against the flags. It returns true
// when the instruction in this slot is architecturally skipped.
func (b *ITBlock) Step(flags Flags) (skipped bool) {
	if !b.active {
		return false
	}

	expect := b.slots[len(b.slots)-1]
	b.slots = b.slots[:len(b.slots)-1]
	skipped = b.cond.Passed(flags) != expect
	if len(b.slots) == 0 {
		b.Reset()
	}

	return skipped
}

// Reset returns the tracker to idle
func (b *ITBlock) Reset() {
	b.active = false
	b.cond = CondAL
	b.slots = b.slots[:0]
}

// predicated returns a copy of insn as it executes in an IT slot guarded by
// cond. Decoders see no IT context, so the condition is folded in here.
// 16-bit data-processing forms do not set flags inside an IT block.
func predicated(insn *Instruction, cond Condition) *Instruction {
	p := *insn
	p.Cond = cond

	base, wide, hasWide := strings.Cut(p.Mnemonic, ".")
	flagsOnly := RegisterMask(0).With(XPSR)
	if p.Size == 2 && p.Op == OpOther && p.Writes.Has(XPSR) && p.Writes != flagsOnly {
		p.Writes &^= flagsOnly
		base = strings.TrimSuffix(base, "s")
	}
	if cond != CondAL && !strings.HasSuffix(base, cond.String()) {
		base += cond.String()
	}
	p.Mnemonic = base
	if hasWide {
		p.Mnemonic += "." + wide
	}

	return &p
}

// parseIT splits "itte" + "eq" into the condition and per-slot flags
// (true = execute when the condition holds)
func parseIT(mnemonic, opStr string) (Condition, []bool, error) {
	mnemonic = strings.ToLower(strings.TrimSpace(mnemonic))
	if !strings.HasPrefix(mnemonic, "it") {
		return CondNV, nil, errors.Errorf("not an IT instruction: %q", mnemonic)
	}
	pattern := mnemonic[2:]
	if len(pattern) > 3 {
		return CondNV, nil, errors.Errorf("IT block longer than 4 slots: %q", mnemonic)
	}

	cond, err := ParseCondition(opStr)
	if err != nil {
		return CondNV, nil, errors.Wrap(err, "failed to parse IT condition")
	}
	if cond == CondAL && strings.Contains(pattern, "e") {
		return CondNV, nil, errors.Errorf("IT AL with else slot: %q", mnemonic)
	}

	slots := make([]bool, 0, 4)
	slots = append(slots, true)
	for _, c := range pattern {
		switch c {
		case 't':
			slots = append(slots, true)
		case 'e':
			slots = append(slots, false)
		default:
			return CondNV, nil, errors.Errorf("bad IT slot %q in %q", c, mnemonic)
		}
	}

	return cond, slots, nil
}

// expandITMask turns an encoded firstcond/mask into per-slot flags
func expandITMask(st ITState) ([]bool, error) {
	if st.Mask&0xf == 0 {
		return nil, errors.New("IT mask is zero")
	}
	var size int
	switch {
	case st.Mask&0b0001 != 0:
		size = 4
	case st.Mask&0b0010 != 0:
		size = 3
	case st.Mask&0b0100 != 0:
		size = 2
	default:
		size = 1
	}
	fc0 := st.FirstCond & 1
	slots := []bool{true}
	for i := 1; i < size; i++ {
		bit := (st.Mask >> (4 - i)) & 1
		slots = append(slots, bit == uint8(fc0))
	}
	return slots, nil
}

func sameSlots(a, b []bool) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
