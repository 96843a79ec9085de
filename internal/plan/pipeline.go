package plan

import "sync"

// QueryMode selects how results are delivered to sinks.
type QueryMode string

const (
	// ModeSingle delivers one complete response.
	ModeSingle QueryMode = "single"
	// ModeStream delivers partial results as they become available.
	ModeStream QueryMode = "stream"
)

// QueryContext carries execution-time options. The planner threads it
// through to node factories without interpreting it beyond defaults.
type QueryContext struct {
	Mode QueryMode
}

func (c QueryContext) withDefaults() QueryContext {
	if c.Mode == "" {
		c.Mode = ModeSingle
	}
	return c
}

// Sink receives results of the executed pipeline. Execution is out of
// scope here; the planner only anchors every chain to the sink root.
type Sink interface {
	// ID returns a stable sink identifier.
	ID() string
}

// Pipeline owns the query graph, its root vertex and the result sinks.
// Every metric chain terminates with an edge into the root; the engine
// executing the graph publishes root output to the sinks.
//
// Graph mutation is serialized behind the pipeline lock so that suspended
// chain continuations may finish concurrently.
type Pipeline struct {
	mux   sync.Mutex
	graph *DAG
	root  Node
	sinks []Sink
	qctx  QueryContext
}

func newPipeline(qctx QueryContext, sinks []Sink) (*Pipeline, error) {
	p := &Pipeline{
		graph: NewDAG(),
		root:  rootNode{},
		sinks: sinks,
		qctx:  qctx.withDefaults(),
	}
	if err := p.graph.AddVertex(p.root); err != nil {
		return nil, err
	}
	return p, nil
}

// Graph returns the query graph.
func (p *Pipeline) Graph() *DAG {
	return p.graph
}

// Root returns the root vertex owned by the pipeline.
func (p *Pipeline) Root() Node {
	return p.root
}

// Sinks returns the result sinks.
func (p *Pipeline) Sinks() []Sink {
	return p.sinks
}

// Context returns the execution-time options of the query.
func (p *Pipeline) Context() QueryContext {
	return p.qctx
}

func (p *Pipeline) addVertex(n Node) error {
	p.mux.Lock()
	defer p.mux.Unlock()
	return p.graph.AddVertex(n)
}

func (p *Pipeline) addEdge(from, to Node) error {
	p.mux.Lock()
	defer p.mux.Unlock()
	return p.graph.AddEdge(from, to)
}

// connectRoot anchors the head of a finished chain to the root.
func (p *Pipeline) connectRoot(head Node) error {
	return p.addEdge(head, p.root)
}

type rootNode struct{}

func (rootNode) ID() string { return "root" }
