// Package rca ranks instructions, edges and register predicates by how well
// they separate crashing from non-crashing traces.
//
// Every candidate predicate p is scored as
//
//	score(p) = crashes where p holds / crashes - non-crashes where p holds / non-crashes
//
// so 1.0 means p holds in every crashing run and in no other run.
package rca

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"github.com/apex/log"
	"github.com/blacktop/fwtrace/pkg/trace"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// ErrNoTraces is returned when a traces directory holds no usable summaries
var ErrNoTraces = errors.New("no crashing and non-crashing traces to compare")

// Kind is the kind of a candidate predicate
type Kind uint8

const (
	// KindEdge holds when the edge was taken
	KindEdge Kind = iota
	// KindInstruction holds when the instruction was executed
	KindInstruction
	// KindRegister holds when the last value of a register at an instruction
	// is on the crashing side of a threshold
	KindRegister
)

func (k Kind) String() string {
	switch k {
	case KindEdge:
		return "edge"
	case KindInstruction:
		return "instruction"
	case KindRegister:
		return "register"
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Candidate is one ranked predicate
type Candidate struct {
	Kind     Kind
	Address  uint32
	Mnemonic string

	// edges
	To       uint32
	EdgeKind trace.EdgeKind

	// register predicates
	Register  trace.Register
	Less      bool
	Threshold uint32

	CrashHits    int
	NonCrashHits int
	Score        float64
}

func (c *Candidate) String() string {
	switch c.Kind {
	case KindEdge:
		return fmt.Sprintf("%#08x -> %#08x (%s)", c.Address, c.To, c.EdgeKind)
	case KindRegister:
		op := ">="
		if c.Less {
			op = "<="
		}
		return fmt.Sprintf("%#08x %s: %s %s %#x", c.Address, c.Mnemonic, c.Register, op, c.Threshold)
	}
	return fmt.Sprintf("%#08x %s", c.Address, c.Mnemonic)
}

// Options tunes the ranking
type Options struct {
	// Registers enables register predicates
	Registers bool
	// MinScore drops candidates scoring below it
	MinScore float64
	// Limit keeps the best Limit candidates, 0 keeps all
	Limit int
}

// Report is the ranking over a set of traces
type Report struct {
	Crashes    int
	NonCrashes int
	Candidates []Candidate
}

type counts struct {
	crash, ok int
}

type edgeKey struct {
	from, to uint32
}

type regKey struct {
	addr uint32
	reg  trace.Register
}

type regValues struct {
	crash, ok []uint32
}

// Analyze ranks the candidates found in the crashing and non-crashing summaries
func Analyze(crashes, nonCrashes []*trace.Summary, opts Options) (*Report, error) {
	if len(crashes) == 0 || len(nonCrashes) == 0 {
		return nil, errors.Wrapf(ErrNoTraces, "%d crashing, %d non-crashing", len(crashes), len(nonCrashes))
	}

	edges := make(map[edgeKey]*counts)
	edgeKinds := make(map[edgeKey]trace.EdgeKind)
	insns := make(map[uint32]*counts)
	mnemonics := make(map[uint32]string)
	regs := make(map[regKey]*regValues)

	collect := func(sums []*trace.Summary, crash bool) {
		for _, s := range sums {
			for _, e := range s.Edges {
				k := edgeKey{e.From, e.To}
				c := edges[k]
				if c == nil {
					c = &counts{}
					edges[k] = c
					edgeKinds[k] = e.Kind
				}
				c.add(crash)
			}
			for _, in := range s.Instructions {
				if _, ok := mnemonics[in.Address]; !ok {
					mnemonics[in.Address] = in.Mnemonic
				}
				if in.Count == 0 {
					// skipped IT slot
					continue
				}
				c := insns[in.Address]
				if c == nil {
					c = &counts{}
					insns[in.Address] = c
				}
				c.add(crash)
				if !opts.Registers {
					continue
				}
				for name, val := range in.Last {
					reg, err := trace.RegisterByName(name)
					if err != nil || reg == trace.PC {
						continue
					}
					k := regKey{in.Address, reg}
					rv := regs[k]
					if rv == nil {
						rv = &regValues{}
						regs[k] = rv
					}
					if crash {
						rv.crash = append(rv.crash, val)
					} else {
						rv.ok = append(rv.ok, val)
					}
				}
			}
		}
	}
	collect(crashes, true)
	collect(nonCrashes, false)

	nc, nok := len(crashes), len(nonCrashes)
	var cands []Candidate
	for k, c := range edges {
		cands = append(cands, Candidate{
			Kind:         KindEdge,
			Address:      k.from,
			To:           k.to,
			EdgeKind:     edgeKinds[k],
			Mnemonic:     mnemonics[k.from],
			CrashHits:    c.crash,
			NonCrashHits: c.ok,
			Score:        score(c.crash, nc, c.ok, nok),
		})
	}
	for addr, c := range insns {
		cands = append(cands, Candidate{
			Kind:         KindInstruction,
			Address:      addr,
			Mnemonic:     mnemonics[addr],
			CrashHits:    c.crash,
			NonCrashHits: c.ok,
			Score:        score(c.crash, nc, c.ok, nok),
		})
	}
	for k, rv := range regs {
		if best, ok := bestThreshold(rv, nc, nok); ok {
			best.Address = k.addr
			best.Register = k.reg
			best.Mnemonic = mnemonics[k.addr]
			cands = append(cands, best)
		}
	}

	filtered := cands[:0]
	for _, c := range cands {
		if c.Score >= opts.MinScore {
			filtered = append(filtered, c)
		}
	}
	cands = filtered
	sortCandidates(cands)
	if opts.Limit > 0 && len(cands) > opts.Limit {
		cands = cands[:opts.Limit]
	}

	return &Report{Crashes: nc, NonCrashes: nok, Candidates: cands}, nil
}

func (c *counts) add(crash bool) {
	if crash {
		c.crash++
	} else {
		c.ok++
	}
}

func score(crashHits, crashes, okHits, nonCrashes int) float64 {
	return float64(crashHits)/float64(crashes) - float64(okHits)/float64(nonCrashes)
}

// bestThreshold finds the register predicate "value <= t" or "value >= t"
// with the highest score. Only values observed in crashing runs are tried as
// thresholds.
func bestThreshold(rv *regValues, crashes, nonCrashes int) (Candidate, bool) {
	if len(rv.crash) == 0 {
		return Candidate{}, false
	}
	sort.Slice(rv.crash, func(i, j int) bool { return rv.crash[i] < rv.crash[j] })
	sort.Slice(rv.ok, func(i, j int) bool { return rv.ok[i] < rv.ok[j] })

	// number of values <= t and >= t in a sorted slice
	atMost := func(vals []uint32, t uint32) int {
		return sort.Search(len(vals), func(i int) bool { return vals[i] > t })
	}
	atLeast := func(vals []uint32, t uint32) int {
		return len(vals) - sort.Search(len(vals), func(i int) bool { return vals[i] >= t })
	}

	var best Candidate
	found := false
	for i, t := range rv.crash {
		if i > 0 && t == rv.crash[i-1] {
			continue
		}
		for _, less := range []bool{true, false} {
			var ch, okh int
			if less {
				ch, okh = atMost(rv.crash, t), atMost(rv.ok, t)
			} else {
				ch, okh = atLeast(rv.crash, t), atLeast(rv.ok, t)
			}
			s := score(ch, crashes, okh, nonCrashes)
			if !found || s > best.Score {
				best = Candidate{
					Kind:         KindRegister,
					Less:         less,
					Threshold:    t,
					CrashHits:    ch,
					NonCrashHits: okh,
					Score:        s,
				}
				found = true
			}
		}
	}
	return best, found
}

// sortCandidates orders by score, then by kind and address for stable output
func sortCandidates(cands []Candidate) {
	sort.Slice(cands, func(i, j int) bool {
		a, b := &cands[i], &cands[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.Address != b.Address {
			return a.Address < b.Address
		}
		if a.To != b.To {
			return a.To < b.To
		}
		return a.Register < b.Register
	})
}

// LoadSummaries reads summary traces with up to workers files in flight
func LoadSummaries(ctx context.Context, paths []string, workers int) ([]*trace.Summary, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	sums := make([]*trace.Summary, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			s, err := trace.LoadSummary(path)
			if err != nil {
				return err
			}
			sums[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sums, nil
}

// AnalyzeDir ranks the summaries below a traces directory
func AnalyzeDir(ctx context.Context, dir string, workers int, opts Options) (*Report, error) {
	crashFiles, okFiles, err := trace.SummaryFiles(dir)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"crashes":     len(crashFiles),
		"non_crashes": len(okFiles),
	}).Debugf("loading traces from %s", dir)

	crashes, err := LoadSummaries(ctx, crashFiles, workers)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load crashing traces")
	}
	nonCrashes, err := LoadSummaries(ctx, okFiles, workers)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load non-crashing traces")
	}
	return Analyze(crashes, nonCrashes, opts)
}
