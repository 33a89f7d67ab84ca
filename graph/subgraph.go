package graph

import (
	"context"
	"fmt"
	"slices"
)

type subgraphSpec struct {
	graph   *CompiledGraph
	outputs []string
	input   func(State) State
}

// SubgraphOption configures how a sub-graph node exchanges state with its parent.
type SubgraphOption func(*subgraphSpec)

// SubgraphOutputs selects the channels whose sub-run updates flow back to the parent.
// By default every channel declared by both graphs flows back.
func SubgraphOutputs(channels ...string) SubgraphOption {
	return func(s *subgraphSpec) {
		s.outputs = slices.Clone(channels)
	}
}

// SubgraphInput maps the parent state to the sub-graph input. By default the parent
// state is filtered to the channels the sub-graph declares.
func SubgraphInput(fn func(State) State) SubgraphOption {
	return func(s *subgraphSpec) {
		s.input = fn
	}
}

// AddSubgraph registers a compiled graph as a node. The sub-run ignores interrupts
// and persistence; only the updates it made to the output channels are returned.
func (g *Graph) AddSubgraph(name string, description string, sub *CompiledGraph, opts ...SubgraphOption) {
	if sub == nil {
		g.errs = append(g.errs, fmt.Errorf("subgraph node %s: nil graph", name))
		return
	}
	spec := &subgraphSpec{graph: sub}
	for _, opt := range opts {
		opt(spec)
	}
	if description == "" {
		description = "Subgraph: " + sub.name
	}
	// The function is bound at compile time once the parent channels are known.
	g.AddNode(name, description, Passthrough)
	if n, ok := g.nodes[name]; ok && n.subgraph == nil {
		n.subgraph = spec
	}
}

func (cn *compiledNode) bindSubgraph(parent Channels) error {
	spec := cn.subgraph
	sub := spec.graph

	outputs := spec.outputs
	if outputs == nil {
		for _, name := range sub.channels.Names() {
			if _, ok := parent[name]; ok {
				outputs = append(outputs, name)
			}
		}
	}
	for _, name := range outputs {
		if _, ok := parent[name]; !ok {
			return fmt.Errorf("output %w in parent: %s", ErrUndeclaredChannel, name)
		}
		if _, ok := sub.channels[name]; !ok {
			return fmt.Errorf("output %w in subgraph: %s", ErrUndeclaredChannel, name)
		}
	}

	// Branches targeting this node may seed the sub-graph's own channels.
	seeds, err := parent.union(sub.channels)
	if err != nil {
		return err
	}
	cn.seedChannels = seeds

	cn.Function = func(ctx context.Context, state State) (State, error) {
		var in State
		if spec.input != nil {
			in = spec.input(state)
		} else {
			in = make(State)
			for k, v := range state {
				if _, ok := sub.channels[k]; ok {
					in[k] = v
				}
			}
		}

		_, delta, err := sub.invoke(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("subgraph %s: %w", sub.name, err)
		}

		out := make(State, len(outputs))
		for _, name := range outputs {
			if v, ok := delta[name]; ok {
				out[name] = v
			}
		}
		return out, nil
	}
	return nil
}
