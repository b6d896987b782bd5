package rca

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/blacktop/fwtrace/pkg/trace"
)

const (
	check  = 0x08000100
	okPath = 0x08000110
	bad    = 0x08000120
)

// summary builds a run through check that continues at next, r0 holds len at
// the check
func summary(next uint32, length uint32) *trace.Summary {
	return &trace.Summary{
		Version: trace.SummaryVersion,
		Instructions: []trace.SummaryInstruction{
			{Address: check, Count: 1, Mnemonic: "cmp\tr0, #0x10", Last: map[string]uint32{"r0": length, "pc": check}},
			{Address: next, Count: 1, Mnemonic: "ldr\tr1, [r2]", Last: map[string]uint32{"r1": 0}},
		},
		Edges: []trace.SummaryEdge{
			{From: check, To: next, Kind: trace.EdgeConditional},
		},
	}
}

func TestAnalyzeRanksCrashOnlyEdgeFirst(t *testing.T) {
	crashes := []*trace.Summary{summary(bad, 0x20), summary(bad, 0x40)}
	nonCrashes := []*trace.Summary{summary(okPath, 0x4), summary(okPath, 0x8), summary(okPath, 0x10)}

	rep, err := Analyze(crashes, nonCrashes, Options{})
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if rep.Crashes != 2 || rep.NonCrashes != 3 {
		t.Fatalf("got %d/%d runs", rep.Crashes, rep.NonCrashes)
	}

	top := rep.Candidates[0]
	if top.Kind != KindEdge || top.Address != check || top.To != bad || top.Score != 1 {
		t.Fatalf("top candidate: got %s (%s, score %.2f)", top.String(), top.Kind, top.Score)
	}
	if top.EdgeKind != trace.EdgeConditional || top.Mnemonic != "cmp\tr0, #0x10" {
		t.Fatalf("top candidate details: %+v", top)
	}
	// the crash-only instruction scores the same and follows the edge
	if c := rep.Candidates[1]; c.Kind != KindInstruction || c.Address != bad || c.Score != 1 {
		t.Fatalf("second candidate: got %s (%s, score %.2f)", c.String(), c.Kind, c.Score)
	}

	for _, c := range rep.Candidates {
		// executed by every run
		if c.Kind == KindInstruction && c.Address == check && c.Score != 0 {
			t.Fatalf("common instruction scored %.2f", c.Score)
		}
		// negative scores are below the default minimum
		if c.Address == okPath || c.To == okPath {
			t.Fatalf("non-crash candidate kept: %s %.2f", c.String(), c.Score)
		}
	}
}

func TestAnalyzeRegisterPredicate(t *testing.T) {
	crashes := []*trace.Summary{summary(bad, 0x20), summary(bad, 0x40)}
	nonCrashes := []*trace.Summary{summary(okPath, 0x4), summary(okPath, 0x8), summary(okPath, 0x10)}

	rep, err := Analyze(crashes, nonCrashes, Options{Registers: true, MinScore: 0.5})
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}

	var pred *Candidate
	for i := range rep.Candidates {
		c := &rep.Candidates[i]
		if c.Kind == KindRegister && c.Address == check && c.Register == trace.R0 {
			pred = c
		}
		if c.Score < 0.5 {
			t.Fatalf("candidate below the minimum score: %s %.2f", c.String(), c.Score)
		}
		if c.Kind == KindRegister && c.Register == trace.PC {
			t.Fatalf("pc predicates are not useful: %s", c.String())
		}
	}
	if pred == nil {
		t.Fatal("no r0 predicate at the length check")
	}
	if pred.Less || pred.Threshold != 0x20 || pred.Score != 1 {
		t.Fatalf("r0 predicate: got %s score %.2f", pred.String(), pred.Score)
	}
	if want := "0x08000100 cmp\tr0, #0x10: r0 >= 0x20"; pred.String() != want {
		t.Fatalf("String() = %q, want %q", pred.String(), want)
	}
}

func TestAnalyzeLimit(t *testing.T) {
	crashes := []*trace.Summary{summary(bad, 0x20)}
	nonCrashes := []*trace.Summary{summary(okPath, 0x4)}

	rep, err := Analyze(crashes, nonCrashes, Options{Limit: 2, MinScore: math.Inf(-1)})
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if len(rep.Candidates) != 2 {
		t.Fatalf("got %d candidates, want 2", len(rep.Candidates))
	}
}

func TestAnalyzeIgnoresSkippedSlots(t *testing.T) {
	const slot = 0x08000104
	withSkipped := func(s *trace.Summary, count uint64) *trace.Summary {
		s.Instructions = append(s.Instructions, trace.SummaryInstruction{
			Address: slot, Count: count, Mnemonic: "moveq\tr3, #1", Last: map[string]uint32{"r3": 1},
		})
		return s
	}
	crashes := []*trace.Summary{withSkipped(summary(bad, 0x20), 0), withSkipped(summary(bad, 0x40), 0)}
	nonCrashes := []*trace.Summary{withSkipped(summary(okPath, 0x4), 1)}

	rep, err := Analyze(crashes, nonCrashes, Options{MinScore: math.Inf(-1), Registers: true})
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	for _, c := range rep.Candidates {
		if c.Address != slot {
			continue
		}
		if c.CrashHits != 0 {
			t.Fatalf("skipped slot counted as executed by %d crashing runs: %s", c.CrashHits, c.String())
		}
	}
}

func TestAnalyzeNeedsBothSides(t *testing.T) {
	if _, err := Analyze([]*trace.Summary{summary(bad, 1)}, nil, Options{}); !errors.Is(err, ErrNoTraces) {
		t.Fatalf("got %v, want ErrNoTraces", err)
	}
}

func TestLoadSummariesMissingFile(t *testing.T) {
	if _, err := LoadSummaries(context.Background(), []string{"/nonexistent/x-summary.bin"}, 2); err == nil {
		t.Fatal("expected an error for a missing trace")
	}
}
