package cfg

import (
	"bytes"
	"strings"
	"testing"

	"github.com/blacktop/fwtrace/pkg/trace"
)

// a loop at 0x104 that runs three times and then returns to 0x110
func loopSummary() *trace.Summary {
	return &trace.Summary{
		Version:      trace.SummaryVersion,
		Label:        "loop",
		Crash:        true,
		FirstAddress: 0x100,
		LastAddress:  0x112,
		Instructions: []trace.SummaryInstruction{
			{Address: 0x100, Count: 0, Mnemonic: "movs\tr0, #0x3", Successor: 0x102},
			{Address: 0x102, Count: 0, Mnemonic: "bl\t#0x104", Successor: 0x104},
			{Address: 0x104, Count: 2, Mnemonic: "subs\tr0, #0x1", Successor: 0x106},
			{Address: 0x106, Count: 2, Mnemonic: "bne\t#0x104", Successor: 0x108},
			{Address: 0x108, Count: 0, Mnemonic: "bx\tlr", Successor: 0x110},
			{Address: 0x110, Count: 0, Mnemonic: "nop", Successor: 0x112},
			{Address: 0x112, Count: 0, Mnemonic: "udf\t#0x0"},
		},
		Edges: []trace.SummaryEdge{
			{From: 0x102, To: 0x104, Count: 0, Kind: trace.EdgeDirect},
			{From: 0x106, To: 0x104, Count: 1, Kind: trace.EdgeConditional},
			{From: 0x106, To: 0x108, Count: 0, Kind: trace.EdgeConditional},
			{From: 0x108, To: 0x110, Count: 0, Kind: trace.EdgeIndirect},
		},
	}
}

func TestBuild(t *testing.T) {
	g, err := Build(loopSummary())
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	order, err := g.Order()
	if err != nil {
		t.Fatal(err)
	}
	if order != 7 {
		t.Fatalf("got %d vertices, want 7", order)
	}

	e, err := g.Edge(0x106, 0x104)
	if err != nil {
		t.Fatalf("missing back edge: %v", err)
	}
	if e.Properties.Weight != 2 {
		t.Fatalf("back edge weight: got %d, want 2", e.Properties.Weight)
	}
	if got := e.Properties.Attributes["label"]; got != "Conditional x2" {
		t.Fatalf("back edge label: got %q", got)
	}

	_, props, err := g.VertexWithProperties(0x112)
	if err != nil {
		t.Fatal(err)
	}
	if props.Attributes["color"] != "red" {
		t.Fatalf("crash site not highlighted: %v", props.Attributes)
	}
}

func TestPathTo(t *testing.T) {
	g, err := Build(loopSummary())
	if err != nil {
		t.Fatal(err)
	}

	path, err := g.PathTo(0x112)
	if err != nil {
		t.Fatalf("PathTo returned error: %v", err)
	}
	want := []uint32{0x100, 0x102, 0x104, 0x106, 0x108, 0x110, 0x112}
	if len(path) != len(want) {
		t.Fatalf("got path %x, want %x", path, want)
	}
	for i := range want {
		if path[i] != want[i] {
			t.Fatalf("got path %x, want %x", path, want)
		}
	}

	if _, err := g.PathTo(0xdead); err == nil {
		t.Fatal("expected an error for an address that was never executed")
	}
}

func TestReachable(t *testing.T) {
	g, err := Build(loopSummary())
	if err != nil {
		t.Fatal(err)
	}
	got, err := g.Reachable(0x108)
	if err != nil {
		t.Fatal(err)
	}
	want := []uint32{0x108, 0x110, 0x112}
	if len(got) != len(want) {
		t.Fatalf("got %x, want %x", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %x, want %x", got, want)
		}
	}
}

func TestDOT(t *testing.T) {
	g, err := Build(loopSummary())
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := g.DOT(&buf); err != nil {
		t.Fatalf("DOT returned error: %v", err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "strict digraph") && !strings.HasPrefix(out, "digraph") {
		t.Fatalf("not a digraph: %q", out[:min(len(out), 40)])
	}
	if !strings.Contains(out, `bne\t#0x104`) && !strings.Contains(out, "bne\t#0x104") {
		t.Fatalf("vertex labels missing from output:\n%s", out)
	}
}
