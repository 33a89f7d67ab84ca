package graph

import (
	"context"
	"fmt"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"
)

// runState is the mutable cursor of one invocation.
type runState struct {
	State  State
	Cursor string
	// ResumedAt suppresses the interrupt at this cursor exactly once.
	ResumedAt string
	Steps     int
	// delta accumulates every update made during the invocation.
	delta State
}

type hooks struct {
	interruptBefore map[string]bool
	afterStep       func(ctx context.Context, rs *runState) error
}

// Invoke runs the graph from its entry point to END. No interrupts are honored and
// nothing is persisted; use a Runner for checkpointed runs.
func (g *CompiledGraph) Invoke(ctx context.Context, input State) (State, error) {
	final, _, err := g.invoke(ctx, input)
	return final, err
}

func (g *CompiledGraph) invoke(ctx context.Context, input State) (State, State, error) {
	state, err := g.channels.Merge(State{}, input)
	if err != nil {
		return nil, nil, err
	}
	rs := &runState{State: state, Cursor: g.entry, delta: State{}}
	if _, err := g.execute(ctx, rs, hooks{}); err != nil {
		return nil, nil, err
	}
	return rs.State, rs.delta, nil
}

// execute advances rs until END, a suspension or an error. On error rs still holds
// the state and cursor of the last completed step.
func (g *CompiledGraph) execute(ctx context.Context, rs *runState, h hooks) (bool, error) {
	for rs.Cursor != END {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if h.interruptBefore[rs.Cursor] && rs.ResumedAt != rs.Cursor {
			return true, nil
		}
		if g.recursionLimit > 0 && rs.Steps >= g.recursionLimit {
			return false, fmt.Errorf("%w: %d steps in %s without reaching %s", ErrRecursionLimit, rs.Steps, g.name, END)
		}

		next, state, delta, err := g.step(ctx, rs.Cursor, rs.State)
		if err != nil {
			return false, err
		}
		if rs.delta != nil {
			if rs.delta, err = g.channels.Merge(rs.delta, delta); err != nil {
				return false, err
			}
		}

		rs.State = state
		rs.Cursor = next
		rs.ResumedAt = ""
		rs.Steps++

		if h.afterStep != nil {
			if err := h.afterStep(ctx, rs); err != nil {
				return false, err
			}
		}
	}
	return false, nil
}

// step runs one node, merges its update and resolves the outgoing edge.
func (g *CompiledGraph) step(ctx context.Context, name string, state State) (string, State, State, error) {
	cn, ok := g.nodes[name]
	if !ok {
		return "", nil, nil, fmt.Errorf("%w: %s", ErrNodeNotFound, name)
	}

	partial, err := g.runNode(ctx, cn, state)
	if err != nil {
		return "", nil, nil, err
	}

	merged, err := g.channels.Merge(state, partial)
	if err != nil {
		return "", nil, nil, g.fail(ctx, name, &NodeError{Node: name, Err: err})
	}
	delta, err := g.channels.Merge(State{}, partial)
	if err != nil {
		return "", nil, nil, g.fail(ctx, name, &NodeError{Node: name, Err: err})
	}

	e := cn.edge
	if e == nil {
		return "", nil, nil, fmt.Errorf("%w: %s", ErrNoOutgoingEdge, name)
	}

	switch e.kind {
	case staticEdge:
		return e.to, merged, delta, nil

	case conditionalEdge:
		target, err := e.router(ctx, copyState(merged))
		if err != nil {
			return "", nil, nil, g.fail(ctx, name, &RoutingError{Node: name, Err: err})
		}
		if !slices.Contains(e.targets, target) {
			return "", nil, nil, g.fail(ctx, name, &RoutingError{Node: name, Target: target, Err: ErrUndeclaredTarget})
		}
		return target, merged, delta, nil

	case fanOutEdge:
		contributions, err := g.fanOut(ctx, cn, merged)
		if err != nil {
			return "", nil, nil, g.fail(ctx, name, err)
		}
		for i, c := range contributions {
			if merged, err = g.channels.Merge(merged, c.update); err != nil {
				return "", nil, nil, g.fail(ctx, name, &BranchError{Source: name, Node: c.node, Index: i, Err: err})
			}
			if delta, err = g.channels.Merge(delta, c.update); err != nil {
				return "", nil, nil, g.fail(ctx, name, &BranchError{Source: name, Node: c.node, Index: i, Err: err})
			}
		}
		return e.join, merged, delta, nil
	}
	return "", nil, nil, fmt.Errorf("node %s: unknown edge kind %d", name, e.kind)
}

func (g *CompiledGraph) fail(ctx context.Context, node string, err error) error {
	g.emit(ctx, NodeEvent{Type: EventNodeError, Node: node, Err: err})
	return err
}

// runNode calls the node function on a copy of state and checks write permissions.
func (g *CompiledGraph) runNode(ctx context.Context, cn *compiledNode, state State) (partial State, err error) {
	start := time.Now()
	g.emit(ctx, NodeEvent{Type: EventNodeStart, Node: cn.Name})

	defer func() {
		if r := recover(); r != nil {
			partial = nil
			err = &NodeError{Node: cn.Name, Err: fmt.Errorf("%w: %v", ErrNodePanic, r)}
		}
		if err != nil {
			g.emit(ctx, NodeEvent{Type: EventNodeError, Node: cn.Name, Err: err, Duration: time.Since(start)})
			return
		}
		g.emit(ctx, NodeEvent{Type: EventNodeEnd, Node: cn.Name, Duration: time.Since(start)})
	}()

	partial, err = cn.Function(ctx, copyState(state))
	if err != nil {
		return nil, &NodeError{Node: cn.Name, Err: err}
	}
	if cn.writes != nil {
		for k := range partial {
			if !cn.writes[k] {
				return nil, &NodeError{Node: cn.Name, Err: fmt.Errorf("%w: %s", ErrWriteNotAllowed, k)}
			}
		}
	}
	return partial, nil
}

type branchResult struct {
	node   string
	update State
}

// fanOut runs every dispatched branch concurrently and returns their updates in
// dispatch order. The first failing branch cancels the others; the call still
// waits for all of them and then discards every result.
func (g *CompiledGraph) fanOut(ctx context.Context, source *compiledNode, state State) ([]branchResult, error) {
	e := source.edge
	sends, err := e.dispatcher(ctx, copyState(state))
	if err != nil {
		return nil, &RoutingError{Node: source.Name, Err: err}
	}
	for _, s := range sends {
		if !slices.Contains(e.branches, s.Node) {
			return nil, &RoutingError{Node: source.Name, Target: s.Node, Err: ErrUndeclaredTarget}
		}
	}

	start := time.Now()
	g.emit(ctx, NodeEvent{Type: EventFanOutStart, Node: source.Name, Branches: len(sends)})

	base := g.channels.inheritable(state)
	results := make([]branchResult, len(sends))

	eg, egCtx := errgroup.WithContext(ctx)
	if g.maxConcurrency > 0 {
		eg.SetLimit(g.maxConcurrency)
	}
	for i, send := range sends {
		eg.Go(func() error {
			b := Branch{Source: source.Name, Index: i, Node: send.Node}
			partial, err := g.runBranch(withBranch(egCtx, b), g.nodes[send.Node], base, send.Seed)
			if err != nil {
				return &BranchError{Source: source.Name, Node: send.Node, Index: i, Err: err}
			}
			results[i] = branchResult{node: send.Node, update: partial}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	g.emit(ctx, NodeEvent{Type: EventFanOutEnd, Node: source.Name, Branches: len(sends), Duration: time.Since(start)})
	return results, nil
}

func (g *CompiledGraph) runBranch(ctx context.Context, cn *compiledNode, base, seed State) (partial State, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrNodePanic, r)
		}
	}()

	snapshot, err := base.Clone()
	if err != nil {
		return nil, err
	}
	seedCopy, err := seed.Clone()
	if err != nil {
		return nil, err
	}
	seeded, err := cn.seedChannels.Merge(snapshot, seedCopy)
	if err != nil {
		return nil, err
	}
	return g.runNode(ctx, cn, seeded)
}
