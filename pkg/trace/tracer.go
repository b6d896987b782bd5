// Package trace records per-instruction and per-edge statistics of an
// emulated Cortex-M run and writes them out as summary and full traces for
// crash triage and root-cause analysis.
//
// A Tracer is driven synchronously by the emulator: OnInstruction for every
// instruction, OnMemoryAccess for every memory access and PostRun once the
// run stopped. It is not safe for concurrent use; give every worker its own.
package trace

import (
	"github.com/apex/log"
	"github.com/pkg/errors"
)

// Options configures a Tracer
type Options struct {
	// Output is the trace directory, no artifacts are written when empty
	Output string
	// Compress wraps the artifacts in xz
	Compress bool
	// StrictEdgeKinds fails the run when a recorded edge changes kind
	StrictEdgeKinds bool
	// ImageBase is recorded in the summary and the address map
	ImageBase uint32
}

// Step is one entry of the replay sequence
type Step struct {
	Address   uint32
	Registers Registers
}

type pendingCommit struct {
	rec    *InstructionRecord
	writes RegisterMask
	push   bool
}

// Tracer is the per-run instruction tracer
type Tracer struct {
	regs RegisterReader
	mem  MemoryMap
	dec  Decoder
	opts Options

	index *regionIndex
	it    ITBlock
	stats registerStats
	mstat memoryStats

	instructions map[uint32]*InstructionRecord
	edges        map[Edge]*EdgeRecord
	replay       []Step

	started   bool
	firstAddr uint32
	lastAddr  uint32
	prev      *InstructionRecord
	prevKind  EdgeKind
	pending   pendingCommit
	resync    bool

	runs         uint64
	label        string
	input        InputSize
	wroteAddrMap bool
}

// NewTracer creates a tracer reading registers from regs, code and the address
// map from mem and decoding with dec
func NewTracer(regs RegisterReader, mem MemoryMap, dec Decoder, opts Options) *Tracer {
	return &Tracer{
		regs:         regs,
		mem:          mem,
		dec:          dec,
		opts:         opts,
		instructions: make(map[uint32]*InstructionRecord),
		edges:        make(map[Edge]*EdgeRecord),
	}
}

// SetRunLabel names the artifacts of the current run (e.g. after the input
// file). It is cleared by PostRun.
func (t *Tracer) SetRunLabel(label string) {
	t.label = label
}

// InputSize is how much fuzz input a run was given and how much of it the
// firmware read
type InputSize struct {
	Length   uint64
	Consumed uint64
}

// SetInputSize records the input size of the current run for its summary. It
// is cleared by PostRun.
func (t *Tracer) SetInputSize(length, consumed int) {
	t.input = InputSize{Length: uint64(length), Consumed: uint64(consumed)}
}

// Runs returns the number of finished runs
func (t *Tracer) Runs() uint64 {
	return t.runs
}

// Record returns the record for addr in the current run
func (t *Tracer) Record(addr uint32) (*InstructionRecord, bool) {
	rec, ok := t.instructions[addr]
	return rec, ok
}

// EdgeRecord returns the record for the edge from -> to in the current run
func (t *Tracer) EdgeRecord(from, to uint32) (*EdgeRecord, bool) {
	er, ok := t.edges[Edge{From: from, To: to}]
	return er, ok
}

// Replay returns the replay sequence of the current run
func (t *Tracer) Replay() []Step {
	return t.replay
}

// FirstAddress returns the first address of the current run
func (t *Tracer) FirstAddress() (uint32, bool) {
	return t.firstAddr, t.started
}

// OnInstruction is called for every instruction at pc
func (t *Tracer) OnInstruction(pc uint32) error {
	regs, err := t.regs.ReadRegisters()
	if err != nil {
		return errors.Wrapf(ErrRegisterRead, "at %#08x: %v", pc, err)
	}
	if !t.started {
		t.beginRun(pc, regs)
	}

	// the previous instruction has executed, its effects are visible now
	if t.pending.rec != nil {
		t.commitPending(regs)
	} else if t.resync {
		t.stats.seed(regs)
		t.resync = false
	}

	insn := t.decode(pc)
	if cond, ok := t.it.Next(); ok && insn != nil && !insn.IsIT() {
		// decoded instructions may be shared through the cache
		insn = predicated(insn, cond)
	}
	kind := ClassifyEdge(insn)
	rec := t.record(pc, insn)

	isIT := insn != nil && insn.IsIT()
	if isIT && t.it.Active() {
		return errors.Wrapf(ErrNestedITBlock, "%#08x: %s", pc, insn)
	}
	skipped := t.it.Step(regs.Flags())
	if isIT {
		if err := t.it.Begin(insn); err != nil {
			return err
		}
	}

	if t.prev != nil {
		t.prev.Successor = pc
	}

	if skipped {
		if t.prev != nil {
			if err := t.recordEdge(t.prev.Address, pc, EdgeConditional); err != nil {
				return err
			}
		}
		t.advance(rec, regs, EdgeConditional)
		return nil
	}

	if t.prev != nil && t.prevKind != EdgeRegular {
		if err := t.recordEdge(t.prev.Address, pc, t.prevKind); err != nil {
			return err
		}
	}

	var writes RegisterMask
	if insn != nil {
		writes = insn.Writes
	}
	if kind == EdgeRegular {
		// the delta is only visible once the next instruction comes in
		t.pending = pendingCommit{rec: rec, writes: writes, push: insn != nil && insn.IsPush()}
	} else {
		rec.Count++
		t.stats.commit(rec, regs, writes)
		if kind == EdgeReturn {
			t.resync = true
		}
	}

	t.advance(rec, regs, kind)
	return nil
}

// OnMemoryAccess is called for every memory access made by the instruction
// at pc. Only writes of at most 4 bytes to RAM/ROM are aggregated. Writes to
// executable memory also update the bytes instructions are decoded from.
func (t *Tracer) OnMemoryAccess(mt MemoryType, at AccessType, pc, addr uint32, value uint64, size int) error {
	if at == AccessWrite && mt != MemoryMMIO && t.index != nil {
		t.index.patch(addr, value, size)
	}
	if at != AccessWrite || mt == MemoryMMIO || size <= 0 || size > maxTrackedWrite {
		return nil
	}
	if size < 8 {
		value &= (uint64(1) << (8 * uint(size))) - 1
	}

	rec, ok := t.instructions[pc]
	if !ok {
		rec = t.record(pc, t.decode(pc))
	}
	t.mstat.update(rec, mt, at, addr, value, size)

	return nil
}

func (t *Tracer) beginRun(pc uint32, regs Registers) {
	t.started = true
	t.firstAddr = pc
	t.stats.seed(regs)
	if t.mem != nil {
		// refreshed every run, RAM code may differ between runs
		t.index = newRegionIndex(t.mem.Regions())
	}
	log.WithFields(log.Fields{"run": t.runs, "first": pc}).Debug("trace run started")
}

func (t *Tracer) commitPending(regs Registers) {
	p := t.pending
	t.pending = pendingCommit{}

	p.rec.Count++
	if p.push {
		// stack spill, nothing meaningful changed
		t.stats.seed(regs)
		return
	}
	t.stats.commit(p.rec, regs, p.writes)
}

func (t *Tracer) advance(rec *InstructionRecord, regs Registers, kind EdgeKind) {
	t.replay = append(t.replay, Step{Address: rec.Address, Registers: regs})
	t.prev = rec
	t.prevKind = kind
	t.lastAddr = rec.Address
}

func (t *Tracer) decode(pc uint32) *Instruction {
	if t.dec == nil || t.index == nil {
		return nil
	}
	code := t.index.code(pc)
	if len(code) < 2 {
		log.Debugf("pc %#08x is outside executable memory", pc)
		return nil
	}
	insn, err := t.dec.Decode(pc, code)
	if err != nil {
		log.WithError(err).Debugf("failed to decode instruction at %#08x", pc)
		return nil
	}
	return insn
}

func (t *Tracer) record(pc uint32, insn *Instruction) *InstructionRecord {
	rec, ok := t.instructions[pc]
	if !ok {
		rec = &InstructionRecord{Address: pc, Mnemonic: "(bad)"}
		t.instructions[pc] = rec
	}
	if insn != nil && rec.Mnemonic == "(bad)" {
		rec.Mnemonic = insn.String()
	}
	return rec
}

func (t *Tracer) recordEdge(from, to uint32, kind EdgeKind) error {
	key := Edge{From: from, To: to}
	er, ok := t.edges[key]
	if !ok {
		t.edges[key] = &EdgeRecord{Kind: kind}
		return nil
	}
	if er.Kind != kind {
		if t.opts.StrictEdgeKinds {
			return errors.Wrapf(ErrEdgeKindMismatch, "%s: %s != %s", key, kind, er.Kind)
		}
		log.WithFields(log.Fields{
			"edge":     key.String(),
			"recorded": er.Kind.String(),
			"observed": kind.String(),
		}).Warn("edge kind changed, keeping first")
	}
	er.Count++
	return nil
}

// flush commits an instruction still waiting for its successor at the end of
// a run
func (t *Tracer) flush() {
	if t.pending.rec == nil {
		return
	}
	regs, err := t.regs.ReadRegisters()
	if err != nil {
		log.WithError(err).Warn("failed to read registers for final commit")
		t.pending.rec.Count++
		t.pending = pendingCommit{}
		return
	}
	t.commitPending(regs)
}

// reset drops all per-run state
func (t *Tracer) reset() {
	clear(t.instructions)
	clear(t.edges)
	t.replay = t.replay[:0]
	t.stats.reset()
	t.it.Reset()
	t.started = false
	t.firstAddr = 0
	t.lastAddr = 0
	t.prev = nil
	t.prevKind = EdgeRegular
	t.pending = pendingCommit{}
	t.resync = false
	t.label = ""
	t.input = InputSize{}
	t.runs++
}
