package trace

import (
	"fmt"

	"github.com/pkg/errors"
)

// EdgeKind classifies a control-flow transfer
type EdgeKind uint8

const (
	EdgeRegular EdgeKind = iota
	EdgeDirect
	EdgeIndirect
	EdgeConditional
	EdgeSyscall
	EdgeReturn
	EdgeUnknown
)

var edgeKindNames = [...]string{
	"Regular", "Direct", "Indirect", "Conditional", "Syscall", "Return", "Unknown",
}

func (k EdgeKind) String() string {
	if int(k) < len(edgeKindNames) {
		return edgeKindNames[k]
	}
	return fmt.Sprintf("EdgeKind(%d)", k)
}

// ParseEdgeKind is the inverse of EdgeKind.String
func ParseEdgeKind(s string) (EdgeKind, error) {
	for i, n := range edgeKindNames {
		if n == s {
			return EdgeKind(i), nil
		}
	}
	return EdgeUnknown, errors.Errorf("unknown edge kind %q", s)
}

// Edge is an ordered (from, to) address pair
type Edge struct {
	From uint32
	To   uint32
}

func (e Edge) String() string {
	return fmt.Sprintf("%#08x -> %#08x", e.From, e.To)
}

// EdgeRecord counts traversals of one edge. Count is 0 on first sight.
type EdgeRecord struct {
	Kind  EdgeKind
	Count uint64
}

// ClassifyEdge returns the kind of control-flow edge leaving insn. A nil
// instruction (decode failure, unmapped pc) is EdgeUnknown.
func ClassifyEdge(insn *Instruction) EdgeKind {
	if insn == nil {
		return EdgeUnknown
	}

	switch insn.Op {
	case OpBX:
		return EdgeReturn
	case OpPOP, OpLDM:
		if popsPC(insn) {
			return EdgeReturn
		}
		return EdgeRegular
	case OpBL, OpBLX, OpB, OpCBZ, OpCBNZ, OpTBB, OpTBH:
		if insn.Cond != CondAL {
			return EdgeConditional
		}
		target, ok := insn.BranchTarget()
		if !ok {
			return EdgeUnknown
		}
		switch target.Kind {
		case OperandImm:
			return EdgeDirect
		case OperandReg:
			return EdgeIndirect
		default:
			return EdgeUnknown
		}
	case OpSVC:
		return EdgeSyscall
	}

	return EdgeRegular
}

func popsPC(insn *Instruction) bool {
	for _, op := range insn.Operands {
		if op.Kind == OperandRegList && op.List.Has(PC) {
			return true
		}
	}
	return false
}
