package trace

import (
	"testing"

	"github.com/pkg/errors"
)

func TestClassifyEdge(t *testing.T) {
	imm := func(v int64) Operand { return Operand{Kind: OperandImm, Imm: v} }
	reg := func(r Register) Operand { return Operand{Kind: OperandReg, Reg: r} }
	list := func(regs ...Register) Operand {
		return Operand{Kind: OperandRegList, List: RegisterMask(0).With(regs...)}
	}

	tests := []struct {
		name string
		insn *Instruction
		want EdgeKind
	}{
		{"decode failure", nil, EdgeUnknown},
		{"bx lr", &Instruction{Op: OpBX, Cond: CondAL, Operands: []Operand{reg(LR)}}, EdgeReturn},
		{"bx r3", &Instruction{Op: OpBX, Cond: CondAL, Operands: []Operand{reg(R3)}}, EdgeReturn},
		{"pop with pc", &Instruction{Op: OpPOP, Cond: CondAL, Operands: []Operand{list(R4, PC)}}, EdgeReturn},
		{"pop without pc", &Instruction{Op: OpPOP, Cond: CondAL, Operands: []Operand{list(R4, R5)}}, EdgeRegular},
		{"ldm with pc", &Instruction{Op: OpLDM, Cond: CondAL, Operands: []Operand{reg(SP), list(R0, PC)}}, EdgeReturn},
		{"ldm without pc", &Instruction{Op: OpLDM, Cond: CondAL, Operands: []Operand{reg(R0), list(R1, R2)}}, EdgeRegular},
		{"b label", &Instruction{Op: OpB, Cond: CondAL, Operands: []Operand{imm(0x8000100)}}, EdgeDirect},
		{"bne label", &Instruction{Op: OpB, Cond: CondNE, Operands: []Operand{imm(0x8000100)}}, EdgeConditional},
		{"bl func", &Instruction{Op: OpBL, Cond: CondAL, Operands: []Operand{imm(0x8000400)}}, EdgeDirect},
		{"blx r3", &Instruction{Op: OpBLX, Cond: CondAL, Operands: []Operand{reg(R3)}}, EdgeIndirect},
		{"cbz r0, label", &Instruction{Op: OpCBZ, Cond: CondAL, Operands: []Operand{reg(R0), imm(0x8000010)}}, EdgeDirect},
		{"cbnz r0, label", &Instruction{Op: OpCBNZ, Cond: CondAL, Operands: []Operand{reg(R0), imm(0x8000010)}}, EdgeDirect},
		{"tbb [pc, r0]", &Instruction{Op: OpTBB, Cond: CondAL, Operands: []Operand{{Kind: OperandMem, Base: PC, Index: R0}}}, EdgeUnknown},
		{"branch without operands", &Instruction{Op: OpB, Cond: CondAL}, EdgeUnknown},
		{"svc", &Instruction{Op: OpSVC, Cond: CondAL, Operands: []Operand{imm(0)}}, EdgeSyscall},
		{"it", &Instruction{Op: OpIT, Cond: CondAL}, EdgeRegular},
		{"push", &Instruction{Op: OpPUSH, Cond: CondAL, Operands: []Operand{list(R4, LR)}}, EdgeRegular},
		{"mov", &Instruction{Op: OpOther, Cond: CondAL}, EdgeRegular},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyEdge(tt.insn); got != tt.want {
				t.Errorf("ClassifyEdge() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseEdgeKind(t *testing.T) {
	for k := EdgeRegular; k <= EdgeUnknown; k++ {
		got, err := ParseEdgeKind(k.String())
		if err != nil {
			t.Fatalf("ParseEdgeKind(%q) returned error: %v", k, err)
		}
		if got != k {
			t.Fatalf("ParseEdgeKind(%q) = %s", k, got)
		}
	}
	if _, err := ParseEdgeKind("Sideways"); err == nil {
		t.Fatalf("expected error for unknown edge kind")
	}
}

func TestStopReasonIsCrash(t *testing.T) {
	crashes := map[StopReason]bool{
		StopOther:              false,
		StopEndOfInput:         false,
		StopInstructionLimit:   false,
		StopExit:               false,
		StopTimeout:            false,
		StopInvalidRead:        true,
		StopInvalidWrite:       true,
		StopInvalidFetch:       true,
		StopNonExecutableFetch: true,
		StopProtectedWrite:     true,
		StopUnhandledException: true,
		StopExplicitCrash:      true,
	}
	for r, want := range crashes {
		if got := r.IsCrash(); got != want {
			t.Errorf("%s.IsCrash() = %t, want %t", r, got, want)
		}
		parsed, err := ParseStopReason(r.String())
		if err != nil || parsed != r {
			t.Errorf("ParseStopReason(%q) = %s, %v", r, parsed, err)
		}
	}
	if got := (BugObserved | BugStackSmash).String(); got != "bug|stack_smash" {
		t.Errorf("BugFlags.String() = %q", got)
	}
}

func TestParseErrorsCarryStack(t *testing.T) {
	type stackTracer interface {
		StackTrace() errors.StackTrace
	}
	parsers := map[string]func() error{
		"edge kind": func() error { _, err := ParseEdgeKind("Sideways"); return err },
		"condition": func() error { _, err := ParseCondition("xx"); return err },
		"register":  func() error { _, err := RegisterByName("r99"); return err },
		"stop":      func() error { _, err := ParseStopReason("melted"); return err },
	}
	for name, parse := range parsers {
		t.Run(name, func(t *testing.T) {
			err := parse()
			if err == nil {
				t.Fatal("expected an error")
			}
			if _, ok := err.(stackTracer); !ok {
				t.Errorf("error %q has no stack trace", err)
			}
		})
	}
}
