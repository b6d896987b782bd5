package trace

import (
	"errors"
	"testing"
)

func TestParseIT(t *testing.T) {
	tests := []struct {
		mnemonic string
		opStr    string
		cond     Condition
		slots    []bool
		wantErr  bool
	}{
		{"it", "eq", CondEQ, []bool{true}, false},
		{"itt", "ne", CondNE, []bool{true, true}, false},
		{"ite", "hs", CondCS, []bool{true, false}, false},
		{"itte", "lo", CondCC, []bool{true, true, false}, false},
		{"itete", "gt", CondGT, []bool{true, false, true, false}, false},
		{"ITTT", " LE ", CondLE, []bool{true, true, true}, false},
		{"ittte", "eq", 0, nil, true},
		{"ite", "al", 0, nil, true},
		{"itx", "eq", 0, nil, true},
		{"itt", "zz", 0, nil, true},
		{"mov", "r0, r1", 0, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.mnemonic+" "+tt.opStr, func(t *testing.T) {
			cond, slots, err := parseIT(tt.mnemonic, tt.opStr)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got cond=%s slots=%v", cond, slots)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseIT() returned error: %v", err)
			}
			if cond != tt.cond || !sameSlots(slots, tt.slots) {
				t.Fatalf("got %s %v, want %s %v", cond, slots, tt.cond, tt.slots)
			}
		})
	}
}

func TestExpandITMask(t *testing.T) {
	tests := []struct {
		st   ITState
		want []bool
	}{
		// it eq, itt eq, ite eq, itt ne, ite ne, itte eq, itete eq
		{ITState{FirstCond: CondEQ, Mask: 0b1000}, []bool{true}},
		{ITState{FirstCond: CondEQ, Mask: 0b0100}, []bool{true, true}},
		{ITState{FirstCond: CondEQ, Mask: 0b1100}, []bool{true, false}},
		{ITState{FirstCond: CondNE, Mask: 0b1100}, []bool{true, true}},
		{ITState{FirstCond: CondNE, Mask: 0b0100}, []bool{true, false}},
		{ITState{FirstCond: CondEQ, Mask: 0b0110}, []bool{true, true, false}},
		{ITState{FirstCond: CondEQ, Mask: 0b1011}, []bool{true, false, true, false}},
	}
	for _, tt := range tests {
		got, err := expandITMask(tt.st)
		if err != nil {
			t.Fatalf("expandITMask(%+v) returned error: %v", tt.st, err)
		}
		if !sameSlots(got, tt.want) {
			t.Errorf("expandITMask(%+v) = %v, want %v", tt.st, got, tt.want)
		}
	}
	if _, err := expandITMask(ITState{FirstCond: CondEQ}); err == nil {
		t.Errorf("expected error for zero mask")
	}
}

func TestITBlockStep(t *testing.T) {
	const z = Flags(0b0100)

	var b ITBlock
	if b.Step(z) {
		t.Fatalf("idle tracker skipped an instruction")
	}

	if err := b.Begin(&Instruction{Mnemonic: "itet", OpStr: "eq", Op: OpIT}); err != nil {
		t.Fatalf("Begin() returned error: %v", err)
	}
	if !b.Active() || b.Remaining() != 3 || b.Condition() != CondEQ {
		t.Fatalf("after Begin: active=%t remaining=%d cond=%s", b.Active(), b.Remaining(), b.Condition())
	}

	err := b.Begin(&Instruction{Mnemonic: "it", OpStr: "ne", Op: OpIT})
	if !errors.Is(err, ErrNestedITBlock) {
		t.Fatalf("nested Begin: got %v, want ErrNestedITBlock", err)
	}

	// Z set: then executes, else skipped, then executes
	for i, want := range []bool{false, true, false} {
		if got := b.Step(z); got != want {
			t.Fatalf("slot %d: skipped=%t, want %t", i, got, want)
		}
	}
	if b.Active() {
		t.Fatalf("block still active after last slot")
	}

	// Z clear inverts every slot
	if err := b.Begin(&Instruction{Mnemonic: "itet", OpStr: "eq", Op: OpIT}); err != nil {
		t.Fatalf("Begin() returned error: %v", err)
	}
	for i, want := range []bool{true, false, true} {
		if got := b.Step(0); got != want {
			t.Fatalf("slot %d: skipped=%t, want %t", i, got, want)
		}
	}
}

func TestITBlockNextSlotCondition(t *testing.T) {
	var b ITBlock
	if _, ok := b.Next(); ok {
		t.Fatalf("idle block reported a slot")
	}
	if err := b.Begin(&Instruction{Mnemonic: "itet", OpStr: "hi", Op: OpIT}); err != nil {
		t.Fatalf("Begin() returned error: %v", err)
	}
	for i, want := range []Condition{CondHI, CondLS, CondHI} {
		got, ok := b.Next()
		if !ok || got != want {
			t.Fatalf("slot %d: got %s (ok=%t), want %s", i, got, ok, want)
		}
		b.Step(0)
	}
}

func TestPredicated(t *testing.T) {
	tests := []struct {
		name     string
		insn     Instruction
		cond     Condition
		mnemonic string
		writes   RegisterMask
	}{
		{"branch", Instruction{Size: 2, Mnemonic: "b", Op: OpB}, CondEQ, "beq", RegisterMask(0).With(PC)},
		{"wide branch", Instruction{Size: 4, Mnemonic: "b.w", Op: OpB}, CondGE, "bge.w", RegisterMask(0).With(PC)},
		{"16-bit movs", Instruction{Size: 2, Mnemonic: "movs", Writes: RegisterMask(0).With(R1, XPSR)}, CondNE, "movne", RegisterMask(0).With(R1)},
		{"cmp", Instruction{Size: 2, Mnemonic: "cmp", Writes: RegisterMask(0).With(XPSR)}, CondNE, "cmpne", RegisterMask(0).With(XPSR)},
		{"32-bit adds", Instruction{Size: 4, Mnemonic: "adds.w", Writes: RegisterMask(0).With(R2, XPSR)}, CondCC, "addscc.w", RegisterMask(0).With(R2, XPSR)},
		{"always", Instruction{Size: 2, Mnemonic: "movs", Writes: RegisterMask(0).With(R0, XPSR)}, CondAL, "mov", RegisterMask(0).With(R0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.insn.Op == OpB {
				tt.insn.Writes = RegisterMask(0).With(PC)
			}
			got := predicated(&tt.insn, tt.cond)
			if got.Mnemonic != tt.mnemonic || got.Writes != tt.writes || got.Cond != tt.cond {
				t.Errorf("got %q writes=%s cond=%s, want %q writes=%s", got.Mnemonic, got.Writes, got.Cond, tt.mnemonic, tt.writes)
			}
			if got == &tt.insn {
				t.Errorf("predicated returned the shared instruction")
			}
		})
	}
}

func TestITBlockMaskDisagreementKeepsMnemonic(t *testing.T) {
	var b ITBlock
	insn := &Instruction{
		Mnemonic: "itt",
		OpStr:    "eq",
		Op:       OpIT,
		ITState:  &ITState{FirstCond: CondEQ, Mask: 0b1000}, // encodes "it eq"
	}
	if err := b.Begin(insn); err != nil {
		t.Fatalf("Begin() returned error: %v", err)
	}
	if b.Remaining() != 2 {
		t.Fatalf("remaining: got %d, want 2 (from mnemonic)", b.Remaining())
	}
}

func TestConditionPassed(t *testing.T) {
	const (
		n = Flags(0b1000)
		z = Flags(0b0100)
		c = Flags(0b0010)
		v = Flags(0b0001)
	)

	tests := []struct {
		cond  Condition
		flags Flags
		want  bool
	}{
		{CondEQ, z, true},
		{CondEQ, 0, false},
		{CondNE, 0, true},
		{CondCS, c, true},
		{CondCC, c, false},
		{CondMI, n, true},
		{CondPL, n, false},
		{CondVS, v, true},
		{CondVC, v, false},
		{CondHI, c, true},
		{CondHI, c | z, false},
		{CondLS, z, true},
		{CondLS, c, false},
		{CondGE, n | v, true},
		{CondGE, n, false},
		{CondLT, v, true},
		{CondLT, 0, false},
		{CondGT, 0, true},
		{CondGT, z, false},
		{CondLE, z, true},
		{CondLE, n, true},
		{CondLE, 0, false},
		{CondAL, 0, true},
		{CondAL, n | z | c | v, true},
	}
	for _, tt := range tests {
		if got := tt.cond.Passed(tt.flags); got != tt.want {
			t.Errorf("%s.Passed(%s) = %t, want %t", tt.cond, tt.flags, got, tt.want)
		}
		if tt.cond < CondAL && tt.cond.Inverse().Passed(tt.flags) == tt.want {
			t.Errorf("%s.Passed(%s) agrees with its inverse %s", tt.cond, tt.flags, tt.cond.Inverse())
		}
	}
}

func TestRegistersFlags(t *testing.T) {
	var regs Registers
	regs[XPSR] = 0x61000000 // Z, C and the Thumb bit
	f := regs.Flags()
	if f.N() || !f.Z() || !f.C() || f.V() {
		t.Fatalf("got %s, want nZCv", f)
	}
}
