package plan

import (
	"fmt"
	"io"

	"github.com/go-faster/errors"
)

// DAG is a directed acyclic graph of query nodes. Edges point from
// producer to consumer. Chains built by the planner are strictly linear
// and merge only at the pipeline root, so the graph is acyclic by
// construction.
//
// DAG is not safe for concurrent use; [Pipeline] serializes mutation.
type DAG struct {
	nodes map[string]Node
	order []string
	edges []edge
}

type edge struct {
	from, to string
}

// NewDAG creates an empty graph.
func NewDAG() *DAG {
	return &DAG{nodes: map[string]Node{}}
}

// AddVertex inserts a node. Node identifiers must be unique.
func (g *DAG) AddVertex(n Node) error {
	id := n.ID()
	if _, ok := g.nodes[id]; ok {
		return errors.Errorf("duplicate node %q", id)
	}
	g.nodes[id] = n
	g.order = append(g.order, id)
	return nil
}

// AddEdge inserts a directed edge from producer to consumer. Both vertices
// must already be inserted.
func (g *DAG) AddEdge(from, to Node) error {
	if _, ok := g.nodes[from.ID()]; !ok {
		return errors.Errorf("unknown node %q", from.ID())
	}
	if _, ok := g.nodes[to.ID()]; !ok {
		return errors.Errorf("unknown node %q", to.ID())
	}
	if from.ID() == to.ID() {
		return errors.Errorf("self edge on %q", from.ID())
	}
	g.edges = append(g.edges, edge{from: from.ID(), to: to.ID()})
	return nil
}

// Node returns a node by identifier.
func (g *DAG) Node(id string) (Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Len returns the number of vertices.
func (g *DAG) Len() int {
	return len(g.order)
}

// Consumers returns identifiers of nodes fed by the given node.
func (g *DAG) Consumers(id string) []string {
	var out []string
	for _, e := range g.edges {
		if e.from == id {
			out = append(out, e.to)
		}
	}
	return out
}

// Producers returns identifiers of nodes feeding the given node.
func (g *DAG) Producers(id string) []string {
	var out []string
	for _, e := range g.edges {
		if e.to == id {
			out = append(out, e.from)
		}
	}
	return out
}

// WriteDOT renders the graph in Graphviz DOT format. Output is
// deterministic: vertices and edges appear in insertion order.
func (g *DAG) WriteDOT(w io.Writer) error {
	if _, err := fmt.Fprintln(w, "digraph pipeline {"); err != nil {
		return err
	}
	for _, id := range g.order {
		if _, err := fmt.Fprintf(w, "\t%q;\n", id); err != nil {
			return err
		}
	}
	for _, e := range g.edges {
		if _, err := fmt.Fprintf(w, "\t%q -> %q;\n", e.from, e.to); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "}")
	return err
}
