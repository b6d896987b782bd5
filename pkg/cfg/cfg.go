// Package cfg rebuilds the control-flow graph observed by one traced run
package cfg

import (
	"fmt"
	"io"
	"sort"

	"github.com/blacktop/fwtrace/pkg/trace"
	"github.com/dominikbraun/graph"
	"github.com/dominikbraun/graph/draw"
	"github.com/pkg/errors"
)

// Graph is the observed control-flow graph of a run, vertices are
// instruction addresses
type Graph struct {
	graph.Graph[uint32, uint32]
	sum *trace.Summary
}

// Build creates the graph from the recorded edges of sum plus the fallthrough
// successor of every instruction. Edge weights are traversal counts.
func Build(sum *trace.Summary) (*Graph, error) {
	g := graph.New(func(a uint32) uint32 { return a }, graph.Directed())

	for _, in := range sum.Instructions {
		attrs := []func(*graph.VertexProperties){
			graph.VertexAttribute("label", fmt.Sprintf("%#08x: %s", in.Address, in.Mnemonic)),
			graph.VertexAttribute("shape", "box"),
		}
		if in.Address == sum.LastAddress && sum.Crash {
			attrs = append(attrs, graph.VertexAttribute("color", "red"))
		}
		if err := g.AddVertex(in.Address, attrs...); err != nil && !errors.Is(err, graph.ErrVertexAlreadyExists) {
			return nil, err
		}
	}

	addEdge := func(from, to uint32, weight int, attrs ...func(*graph.EdgeProperties)) error {
		for _, v := range []uint32{from, to} {
			if _, err := g.Vertex(v); errors.Is(err, graph.ErrVertexNotFound) {
				if err := g.AddVertex(v, graph.VertexAttribute("label", fmt.Sprintf("%#08x", v))); err != nil {
					return err
				}
			}
		}
		attrs = append(attrs, graph.EdgeWeight(weight))
		if err := g.AddEdge(from, to, attrs...); err != nil && !errors.Is(err, graph.ErrEdgeAlreadyExists) {
			return err
		}
		return nil
	}

	for _, e := range sum.Edges {
		// the count is 0 on first traversal
		err := addEdge(e.From, e.To, int(e.Count)+1,
			graph.EdgeAttribute("label", fmt.Sprintf("%s x%d", e.Kind, e.Count+1)),
		)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to add edge %#08x -> %#08x", e.From, e.To)
		}
	}
	for _, in := range sum.Instructions {
		if in.Successor == 0 || in.Successor == in.Address {
			continue
		}
		if err := addEdge(in.Address, in.Successor, 1, graph.EdgeAttribute("style", "dashed")); err != nil {
			return nil, errors.Wrapf(err, "failed to add fallthrough %#08x -> %#08x", in.Address, in.Successor)
		}
	}

	return &Graph{Graph: g, sum: sum}, nil
}

// PathTo returns the shortest observed path from the first instruction of
// the run to addr
func (g *Graph) PathTo(addr uint32) ([]uint32, error) {
	path, err := graph.ShortestPath[uint32, uint32](g.Graph, g.sum.FirstAddress, addr)
	if err != nil {
		return nil, errors.Wrapf(err, "no path from %#08x to %#08x", g.sum.FirstAddress, addr)
	}
	return path, nil
}

// Reachable lists the instructions reachable from addr in address order
func (g *Graph) Reachable(addr uint32) ([]uint32, error) {
	var seen []uint32
	if err := graph.BFS[uint32, uint32](g.Graph, addr, func(v uint32) bool {
		seen = append(seen, v)
		return false
	}); err != nil {
		return nil, err
	}
	sort.Slice(seen, func(i, j int) bool { return seen[i] < seen[j] })
	return seen, nil
}

// DOT writes the graph in graphviz format
func (g *Graph) DOT(w io.Writer) error {
	return draw.DOT[uint32, uint32](g.Graph, w, draw.GraphAttribute("label", g.sum.Label))
}
