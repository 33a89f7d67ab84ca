package graph

import (
	"context"
	"fmt"
	"maps"

	"github.com/tiendc/go-deepcopy"
)

// END is the reserved terminal marker. Edges pointing at END finish the run.
const END = "END"

// State maps channel names to values.
type State map[string]any

// Clone returns a deep copy of the state. Branches receive clones so concurrent
// nodes never share mutable values.
func (s State) Clone() (State, error) {
	if s == nil {
		return State{}, nil
	}
	var out State
	if err := deepcopy.Copy(&out, s); err != nil {
		return nil, fmt.Errorf("copy state: %w", err)
	}
	return out, nil
}

// Get returns the value stored under key as T, or the zero value.
func Get[T any](s State, key string) T {
	v, _ := s[key].(T)
	return v
}

// Lookup is like Get but reports whether the key held a T.
func Lookup[T any](s State, key string) (T, bool) {
	v, ok := s[key].(T)
	return v, ok
}

// NodeFunc is the body of a node. It receives a copy of the current state and
// returns a partial update; nil means no change.
type NodeFunc func(ctx context.Context, state State) (State, error)

// Passthrough is a node that changes nothing. Useful as an interrupt point or a join.
func Passthrough(context.Context, State) (State, error) {
	return nil, nil
}

// Router picks exactly one successor for a conditional edge.
type Router func(ctx context.Context, state State) (string, error)

// Send is one fan-out branch: the node to run and the seed merged over the
// branch's inherited state.
type Send struct {
	Node string
	Seed State
}

// Dispatcher emits the branches of a fan-out edge.
type Dispatcher func(ctx context.Context, state State) ([]Send, error)

// Node is a registered node.
type Node struct {
	Name        string
	Description string
	Function    NodeFunc

	writes   map[string]bool
	subgraph *subgraphSpec
}

// NodeOption configures a node at registration.
type NodeOption func(*Node)

// Writes restricts the channels a node may update.
func Writes(channels ...string) NodeOption {
	return func(n *Node) {
		if n.writes == nil {
			n.writes = make(map[string]bool, len(channels))
		}
		for _, c := range channels {
			n.writes[c] = true
		}
	}
}

func copyState(s State) State {
	if s == nil {
		return State{}
	}
	return maps.Clone(s)
}
