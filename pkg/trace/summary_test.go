package trace

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func runLoop(t *testing.T, tr *Tracer, cpu *fakeCPU) {
	t.Helper()
	a, b := uint32(flashBase+0x20), uint32(flashBase+0x30)
	for i := 0; i < 3; i++ {
		cpu.regs[R0] = uint32(i)
		step(t, tr, cpu, a)
		step(t, tr, cpu, b)
	}
}

func loopDecoder() fakeDecoder {
	a, b := uint32(flashBase+0x20), uint32(flashBase+0x30)
	return fakeDecoder{a: branchTo(b), b: branchTo(a)}
}

func TestSummaryRoundTrip(t *testing.T) {
	for _, compress := range []bool{false, true} {
		name := "plain"
		if compress {
			name = "xz"
		}
		t.Run(name, func(t *testing.T) {
			out := t.TempDir()
			tr, cpu := newTestTracer(loopDecoder(), Options{Output: out, Compress: compress, ImageBase: flashBase})
			tr.SetRunLabel("input 001")
			tr.SetInputSize(64, 12)
			runLoop(t, tr, cpu)

			want := tr.Summary(StopInvalidWrite, 0)
			steps := len(tr.Replay())
			if err := tr.PostRun(StopInvalidWrite, 0); err != nil {
				t.Fatalf("PostRun returned error: %v", err)
			}

			crashes, nonCrashes, err := SummaryFiles(out)
			if err != nil {
				t.Fatalf("SummaryFiles returned error: %v", err)
			}
			if len(crashes) != 1 || len(nonCrashes) != 0 {
				t.Fatalf("got %d crashes and %d non-crashes, want 1 and 0", len(crashes), len(nonCrashes))
			}
			if base := filepath.Base(crashes[0]); base[:len("input_001-")] != "input_001-" {
				t.Fatalf("artifact name %q does not start with the sanitized label", base)
			}

			got, err := LoadSummary(crashes[0])
			if err != nil {
				t.Fatalf("LoadSummary returned error: %v", err)
			}
			if !got.Crash || got.StopReason != StopInvalidWrite || got.ImageBase != flashBase {
				t.Fatalf("header: crash=%t reason=%s base=%#x", got.Crash, got.StopReason, got.ImageBase)
			}
			if got.Input != (InputSize{Length: 64, Consumed: 12}) {
				t.Fatalf("input size: got %+v", got.Input)
			}
			if got.Label != "input 001" || got.FirstAddress != flashBase+0x20 || got.Steps != uint64(steps) {
				t.Fatalf("header: label=%q first=%#x steps=%d", got.Label, got.FirstAddress, got.Steps)
			}
			if len(got.Instructions) != len(want.Instructions) || len(got.Edges) != len(want.Edges) {
				t.Fatalf("got %d instructions/%d edges, want %d/%d",
					len(got.Instructions), len(got.Edges), len(want.Instructions), len(want.Edges))
			}
			for i, e := range want.Edges {
				if got.Edges[i] != e {
					t.Fatalf("edge %d: got %+v, want %+v", i, got.Edges[i], e)
				}
			}
			for _, wi := range want.Instructions {
				gi, ok := got.Instruction(wi.Address)
				if !ok {
					t.Fatalf("instruction %#x missing", wi.Address)
				}
				if gi.Count != wi.Count || gi.Mnemonic != wi.Mnemonic || gi.Successor != wi.Successor {
					t.Fatalf("instruction %#x: got %+v, want %+v", wi.Address, gi, wi)
				}
				if gi.Max["r0"] != wi.Max["r0"] {
					t.Fatalf("instruction %#x: max r0 got %#x, want %#x", wi.Address, gi.Max["r0"], wi.Max["r0"])
				}
			}

			full, err := LoadFullTrace(FullTracePath(crashes[0]))
			if err != nil {
				t.Fatalf("LoadFullTrace returned error: %v", err)
			}
			if len(full.Steps) != steps {
				t.Fatalf("replay: got %d steps, want %d", len(full.Steps), steps)
			}
			if full.Steps[0].Address != flashBase+0x20 || full.Steps[1].Address != flashBase+0x30 {
				t.Fatalf("replay starts with %#x, %#x", full.Steps[0].Address, full.Steps[1].Address)
			}
		})
	}
}

func TestPostRunRouting(t *testing.T) {
	out := t.TempDir()
	tr, cpu := newTestTracer(loopDecoder(), Options{Output: out})

	runs := []struct {
		reason StopReason
		bugs   BugFlags
	}{
		{StopEndOfInput, 0},
		{StopTimeout, 0},
		{StopEndOfInput, BugStackSmash},
		{StopUnhandledException, 0},
	}
	for _, r := range runs {
		runLoop(t, tr, cpu)
		if err := tr.PostRun(r.reason, r.bugs); err != nil {
			t.Fatalf("PostRun(%s, %s) returned error: %v", r.reason, r.bugs, err)
		}
	}

	crashes, nonCrashes, err := SummaryFiles(out)
	if err != nil {
		t.Fatalf("SummaryFiles returned error: %v", err)
	}
	if len(crashes) != 2 || len(nonCrashes) != 2 {
		t.Fatalf("got %d crashes and %d non-crashes, want 2 and 2", len(crashes), len(nonCrashes))
	}
	if tr.Runs() != uint64(len(runs)) {
		t.Fatalf("run counter: got %d, want %d", tr.Runs(), len(runs))
	}
}

func TestAddressMapWrittenOnce(t *testing.T) {
	out := t.TempDir()
	tr, cpu := newTestTracer(loopDecoder(), Options{Output: out, ImageBase: flashBase})
	path := filepath.Join(out, AddressMapName)

	runLoop(t, tr, cpu)
	if err := tr.PostRun(StopEndOfInput, 0); err != nil {
		t.Fatalf("PostRun returned error: %v", err)
	}

	am, err := LoadAddressMap(path)
	if err != nil {
		t.Fatalf("LoadAddressMap returned error: %v", err)
	}
	if am.ImageBase != flashBase {
		t.Fatalf("image base: got %#x, want %#x", am.ImageBase, flashBase)
	}
	// flash is read-only and left out
	if len(am.Regions) != 2 || am.Regions[0].Name != "sram" || am.Regions[0].Length != 0x1000 || am.Regions[1].Length != 0x400 {
		t.Fatalf("regions: got %+v", am.Regions)
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	runLoop(t, tr, cpu)
	if err := tr.PostRun(StopEndOfInput, 0); err != nil {
		t.Fatalf("PostRun returned error: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("address map rewritten by the second run")
	}
}

func TestPostRunWithoutOutput(t *testing.T) {
	tr, cpu := newTestTracer(loopDecoder(), Options{})
	runLoop(t, tr, cpu)
	if err := tr.PostRun(StopExit, 0); err != nil {
		t.Fatalf("PostRun returned error: %v", err)
	}
	if tr.Runs() != 1 || len(tr.Replay()) != 0 {
		t.Fatalf("runs=%d replay=%d after PostRun", tr.Runs(), len(tr.Replay()))
	}
}

func TestPostRunResetsOnWriteFailure(t *testing.T) {
	dir := t.TempDir()
	// a file where the trace directory should be
	out := filepath.Join(dir, "traces")
	if err := os.WriteFile(out, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	tr, cpu := newTestTracer(loopDecoder(), Options{Output: out})
	runLoop(t, tr, cpu)
	if err := tr.PostRun(StopEndOfInput, 0); err == nil {
		t.Fatalf("expected PostRun to fail")
	}
	if _, ok := tr.Record(flashBase + 0x20); ok || tr.Runs() != 1 {
		t.Fatalf("tracer not reset after failed PostRun")
	}
}

func TestLoadSummaryRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bogus"+SummarySuffix)
	if err := os.WriteFile(path, []byte("not a trace"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSummary(path); !errors.Is(err, ErrBadTraceFile) {
		t.Fatalf("got %v, want ErrBadTraceFile", err)
	}
}

func TestAbortWritesNothing(t *testing.T) {
	out := t.TempDir()
	tr, cpu := newTestTracer(loopDecoder(), Options{Output: out})

	runLoop(t, tr, cpu)
	tr.Abort()

	if len(tr.Replay()) != 0 || tr.Runs() != 1 {
		t.Fatalf("abort did not reset: %d steps, %d runs", len(tr.Replay()), tr.Runs())
	}
	entries, err := os.ReadDir(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("abort wrote %d entries", len(entries))
	}
}
