package graph

import (
	"errors"
	"fmt"
	"slices"
)

type edgeKind int

const (
	staticEdge edgeKind = iota + 1
	conditionalEdge
	fanOutEdge
)

func (k edgeKind) String() string {
	switch k {
	case staticEdge:
		return "static"
	case conditionalEdge:
		return "conditional"
	case fanOutEdge:
		return "fan-out"
	}
	return "unknown"
}

// edge is the single outgoing edge of a node.
type edge struct {
	kind edgeKind

	// static
	to string

	// conditional
	router  Router
	targets []string

	// fan-out
	dispatcher Dispatcher
	branches   []string
	join       string
}

// successors lists the nodes the sequential cursor can move to.
func (e *edge) successors() []string {
	switch e.kind {
	case staticEdge:
		return []string{e.to}
	case conditionalEdge:
		return e.targets
	case fanOutEdge:
		return []string{e.join}
	}
	return nil
}

// Graph is a mutable graph definition. Registration methods record problems
// instead of returning them; Compile reports everything at once.
type Graph struct {
	name       string
	specs      []ChannelSpec
	nodes      map[string]*Node
	order      []string
	edges      map[string]*edge
	edgeOrder  []string
	entryPoint string

	maxConcurrency int
	recursionLimit int

	errs []error
}

// NewGraph creates a graph with the given channel declarations.
func NewGraph(channels ...ChannelSpec) *Graph {
	return &Graph{
		name:  "graph",
		specs: slices.Clone(channels),
		nodes: make(map[string]*Node),
		edges: make(map[string]*edge),
	}
}

// SetName names the graph in events, logs and diagrams.
func (g *Graph) SetName(name string) {
	g.name = name
}

// AddChannel declares more channels.
func (g *Graph) AddChannel(channels ...ChannelSpec) {
	g.specs = append(g.specs, channels...)
}

// AddNode registers a node. Names must be unique and must not be END.
func (g *Graph) AddNode(name string, description string, fn NodeFunc, opts ...NodeOption) {
	switch {
	case name == "":
		g.errs = append(g.errs, fmt.Errorf("%w: empty node name", ErrNodeNotFound))
		return
	case name == END:
		g.errs = append(g.errs, fmt.Errorf("%w: %s", ErrReservedName, name))
		return
	case fn == nil:
		g.errs = append(g.errs, fmt.Errorf("node %s: nil function", name))
		return
	}
	if _, ok := g.nodes[name]; ok {
		g.errs = append(g.errs, fmt.Errorf("%w: %s", ErrDuplicateNode, name))
		return
	}

	node := &Node{
		Name:        name,
		Description: description,
		Function:    fn,
	}
	for _, opt := range opts {
		opt(node)
	}
	g.nodes[name] = node
	g.order = append(g.order, name)
}

// AddEdge adds a static edge from one node to another (or END).
func (g *Graph) AddEdge(from, to string) {
	g.setEdge(from, &edge{kind: staticEdge, to: to})
}

// AddConditionalEdge routes from a node to one of the declared targets, chosen by router at runtime.
func (g *Graph) AddConditionalEdge(from string, router Router, targets ...string) {
	if router == nil {
		g.errs = append(g.errs, fmt.Errorf("conditional edge from %s: nil router", from))
		return
	}
	if len(targets) == 0 {
		g.errs = append(g.errs, fmt.Errorf("conditional edge from %s: no targets declared", from))
		return
	}
	g.setEdge(from, &edge{kind: conditionalEdge, router: router, targets: slices.Clone(targets)})
}

// AddFanOut starts one branch per Send returned by dispatcher. Branch nodes must be
// listed in branches; join runs once after every branch finished.
func (g *Graph) AddFanOut(from string, dispatcher Dispatcher, join string, branches ...string) {
	if dispatcher == nil {
		g.errs = append(g.errs, fmt.Errorf("fan-out from %s: nil dispatcher", from))
		return
	}
	if len(branches) == 0 {
		g.errs = append(g.errs, fmt.Errorf("fan-out from %s: no branch nodes declared", from))
		return
	}
	g.setEdge(from, &edge{kind: fanOutEdge, dispatcher: dispatcher, join: join, branches: slices.Clone(branches)})
}

func (g *Graph) setEdge(from string, e *edge) {
	if prev, ok := g.edges[from]; ok {
		g.errs = append(g.errs, fmt.Errorf("%w: %s already has a %s edge, cannot add %s edge",
			ErrConflictingEdges, from, prev.kind, e.kind))
		return
	}
	g.edges[from] = e
	g.edgeOrder = append(g.edgeOrder, from)
}

// SetEntryPoint sets the first node of every run.
func (g *Graph) SetEntryPoint(name string) {
	g.entryPoint = name
}

// SetMaxConcurrency bounds the number of fan-out branches running at once. Zero means unbounded.
func (g *Graph) SetMaxConcurrency(n int) {
	g.maxConcurrency = n
}

// SetRecursionLimit bounds the number of sequential steps per invocation. Zero means unbounded.
func (g *Graph) SetRecursionLimit(n int) {
	g.recursionLimit = n
}

// CompiledGraph is an immutable, validated graph ready to run.
type CompiledGraph struct {
	name     string
	channels Channels
	nodes    map[string]*compiledNode
	order    []string
	entry    string

	maxConcurrency int
	recursionLimit int
}

type compiledNode struct {
	*Node
	edge *edge
	// seedChannels are the declarations a branch of this node is merged with.
	seedChannels Channels
	branch       bool
}

// Compile validates the definition and resolves names to node records.
func (g *Graph) Compile() (*CompiledGraph, error) {
	errs := slices.Clone(g.errs)

	channels, err := NewChannels(g.specs...)
	if err != nil {
		return nil, &CompileError{Err: errors.Join(append(errs, err)...)}
	}

	if g.entryPoint == "" {
		errs = append(errs, ErrEntryPointNotSet)
	} else if _, ok := g.nodes[g.entryPoint]; !ok {
		errs = append(errs, fmt.Errorf("%w: entry point %s", ErrNodeNotFound, g.entryPoint))
	}

	exists := func(name string) bool {
		_, ok := g.nodes[name]
		return ok || name == END
	}

	branchNodes := make(map[string]bool)
	for _, from := range g.edgeOrder {
		e := g.edges[from]
		if _, ok := g.nodes[from]; !ok {
			errs = append(errs, fmt.Errorf("%w: edge source %s", ErrNodeNotFound, from))
		}
		for _, to := range e.successors() {
			if !exists(to) {
				errs = append(errs, fmt.Errorf("%w: edge %s -> %s", ErrNodeNotFound, from, to))
			}
		}
		for _, b := range e.branches {
			if _, ok := g.nodes[b]; !ok {
				errs = append(errs, fmt.Errorf("%w: fan-out branch %s -> %s", ErrNodeNotFound, from, b))
				continue
			}
			branchNodes[b] = true
		}
	}

	cg := &CompiledGraph{
		name:           g.name,
		channels:       channels,
		nodes:          make(map[string]*compiledNode, len(g.nodes)),
		order:          slices.Clone(g.order),
		entry:          g.entryPoint,
		maxConcurrency: g.maxConcurrency,
		recursionLimit: g.recursionLimit,
	}

	for _, name := range g.order {
		n := *g.nodes[name]
		cn := &compiledNode{
			Node:         &n,
			edge:         g.edges[name],
			seedChannels: channels,
			branch:       branchNodes[name],
		}
		for w := range n.writes {
			if _, ok := channels[w]; !ok {
				errs = append(errs, fmt.Errorf("node %s: %w: %s", name, ErrUndeclaredChannel, w))
			}
		}
		if n.subgraph != nil {
			if err := cn.bindSubgraph(channels); err != nil {
				errs = append(errs, fmt.Errorf("subgraph node %s: %w", name, err))
			}
		}
		if cn.edge == nil && !cn.branch {
			errs = append(errs, fmt.Errorf("%w: %s", ErrNoOutgoingEdge, name))
		}
		cg.nodes[name] = cn
	}

	if len(errs) == 0 {
		errs = append(errs, cg.checkTerminal()...)
	}
	if len(errs) > 0 {
		return nil, &CompileError{Err: errors.Join(errs...)}
	}
	return cg, nil
}

// checkTerminal verifies that every node the cursor can visit has a path to END.
func (g *CompiledGraph) checkTerminal() []error {
	reachable := map[string]bool{g.entry: true}
	queue := []string{g.entry}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		cn := g.nodes[name]
		if cn.edge == nil {
			continue
		}
		for _, next := range cn.edge.successors() {
			if next == END || reachable[next] {
				continue
			}
			reachable[next] = true
			queue = append(queue, next)
		}
	}

	// Walk backwards from END.
	predecessors := make(map[string][]string)
	for _, name := range g.order {
		if e := g.nodes[name].edge; e != nil {
			for _, next := range e.successors() {
				predecessors[next] = append(predecessors[next], name)
			}
		}
	}
	finishes := make(map[string]bool)
	queue = []string{END}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		for _, prev := range predecessors[name] {
			if !finishes[prev] {
				finishes[prev] = true
				queue = append(queue, prev)
			}
		}
	}

	var errs []error
	for _, name := range g.order {
		if !reachable[name] {
			continue
		}
		if g.nodes[name].edge == nil {
			errs = append(errs, fmt.Errorf("%w: %s is reached but has no outgoing edge", ErrNoOutgoingEdge, name))
			continue
		}
		if !finishes[name] {
			errs = append(errs, fmt.Errorf("%w: from %s", ErrUnreachableTerminal, name))
		}
	}
	return errs
}

// Name returns the graph name.
func (g *CompiledGraph) Name() string { return g.name }

// Entry returns the entry point node name.
func (g *CompiledGraph) Entry() string { return g.entry }

// Channels returns the channel declarations.
func (g *CompiledGraph) Channels() Channels { return g.channels }

// Nodes returns the node names in registration order.
func (g *CompiledGraph) Nodes() []string { return slices.Clone(g.order) }

// HasNode reports whether name is a registered node.
func (g *CompiledGraph) HasNode(name string) bool {
	_, ok := g.nodes[name]
	return ok
}
