package trace

// InstructionRecord accumulates statistics for one instruction address
type InstructionRecord struct {
	Address   uint32
	Count     uint64
	Mnemonic  string
	Min       RegisterSnapshot
	Max       RegisterSnapshot
	Last      RegisterSnapshot
	Successor uint32
	Memory    *MemoryAccessSummary
}

// registerStats owns the run-scoped register baseline the deltas are
// measured against
type registerStats struct {
	baseline Registers
	seeded   bool
}

// seed sets the baseline without recording anything
func (rs *registerStats) seed(regs Registers) {
	rs.baseline = regs
	rs.seeded = true
}

func (rs *registerStats) reset() {
	rs.baseline = Registers{}
	rs.seeded = false
}

// commit attributes the change from the baseline to regs (plus every
// register in writes) to rec and moves the baseline forward
func (rs *registerStats) commit(rec *InstructionRecord, regs Registers, writes RegisterMask) {
	for i := 0; i < NumRegisters; i++ {
		val := regs[i]
		if val == rs.baseline[i] && !writes.Has(Register(i)) {
			continue
		}
		observe(rec, i, val)
	}
	rs.baseline = regs
}

func observe(rec *InstructionRecord, slot int, val uint32) {
	if !rec.Min[slot].Observed || val <= rec.Min[slot].Value {
		rec.Min[slot] = RegisterValue{Value: val, Observed: true}
	}
	if !rec.Max[slot].Observed || val >= rec.Max[slot].Value {
		rec.Max[slot] = RegisterValue{Value: val, Observed: true}
	}
	rec.Last[slot] = RegisterValue{Value: val, Observed: true}
}
