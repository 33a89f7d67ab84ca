package graph

import "context"

type runIDKey struct{}

type branchKey struct{}

type listenersKey struct{}

// Branch identifies the fan-out branch a node is executing in.
type Branch struct {
	// Source is the node whose dispatcher created the branch.
	Source string
	// Index is the dispatch position of the branch.
	Index int
	// Node is the branch target.
	Node string
}

// WithRunID attaches a run id to the context.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFromContext returns the id of the run executing the current node, if any.
func RunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

func withBranch(ctx context.Context, b Branch) context.Context {
	return context.WithValue(ctx, branchKey{}, b)
}

// BranchFromContext reports the fan-out branch the current node runs in. It is meant
// for logging and debugging; results must not depend on it.
func BranchFromContext(ctx context.Context) (Branch, bool) {
	b, ok := ctx.Value(branchKey{}).(Branch)
	return b, ok
}

// WithListeners attaches listeners that receive the node events of every graph,
// including nested sub-graphs, executed with the returned context.
func WithListeners(ctx context.Context, listeners ...Listener) context.Context {
	if len(listeners) == 0 {
		return ctx
	}
	existing := listenersFromContext(ctx)
	all := make([]Listener, 0, len(existing)+len(listeners))
	all = append(all, existing...)
	all = append(all, listeners...)
	return context.WithValue(ctx, listenersKey{}, all)
}

func listenersFromContext(ctx context.Context) []Listener {
	l, _ := ctx.Value(listenersKey{}).([]Listener)
	return l
}
