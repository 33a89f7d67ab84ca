package graph

import (
	"errors"
	"fmt"
)

var (
	// ErrEntryPointNotSet is returned when the entry point of the graph is not set.
	ErrEntryPointNotSet = errors.New("entry point not set")

	// ErrNodeNotFound is returned when a node is not found in the graph.
	ErrNodeNotFound = errors.New("node not found")

	// ErrDuplicateNode is returned when a node name is registered twice.
	ErrDuplicateNode = errors.New("duplicate node")

	// ErrReservedName is returned when a node is registered under the END marker.
	ErrReservedName = errors.New("reserved node name")

	// ErrNoOutgoingEdge is returned when a non-branch node has no outgoing edge.
	ErrNoOutgoingEdge = errors.New("no outgoing edge found for node")

	// ErrConflictingEdges is returned when a node has more than one outgoing edge kind.
	ErrConflictingEdges = errors.New("node has conflicting outgoing edges")

	// ErrUnreachableTerminal is returned when a node can never reach END.
	ErrUnreachableTerminal = errors.New("terminal not reachable")

	// ErrUndeclaredChannel is returned when a state key has no channel declaration.
	ErrUndeclaredChannel = errors.New("undeclared channel")

	// ErrChannelType is returned when a value does not match its channel's declared type.
	ErrChannelType = errors.New("channel type mismatch")

	// ErrInvalidChannel is returned for malformed channel declarations.
	ErrInvalidChannel = errors.New("invalid channel declaration")

	// ErrUndeclaredTarget is returned when a router or dispatcher picks a target that was not declared.
	ErrUndeclaredTarget = errors.New("undeclared routing target")

	// ErrWriteNotAllowed is returned when a node writes a channel outside its Writes set.
	ErrWriteNotAllowed = errors.New("write to channel not allowed")

	// ErrNodePanic wraps a recovered panic from a node function.
	ErrNodePanic = errors.New("node panicked")

	// ErrRecursionLimit is returned when a run exceeds the configured step limit.
	ErrRecursionLimit = errors.New("recursion limit reached")

	// ErrRunNotFound is returned when resuming or inspecting an unknown run id.
	ErrRunNotFound = errors.New("run not found")

	// ErrRunInProgress is returned when a run id is already being executed by the same runner.
	ErrRunInProgress = errors.New("run already in progress")
)

// CompileError reports why a graph definition was rejected.
type CompileError struct {
	Err error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile graph: %v", e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

// StateError is raised by merges that violate the channel declarations.
type StateError struct {
	Channel string
	Err     error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("channel %q: %v", e.Channel, e.Err)
}

func (e *StateError) Unwrap() error { return e.Err }

// NodeError wraps a failure raised by a node function or by merging its output.
type NodeError struct {
	Node string
	Err  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s: %v", e.Node, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

// RoutingError is returned when a router or dispatcher fails or picks an undeclared target.
type RoutingError struct {
	Node   string
	Target string
	Err    error
}

func (e *RoutingError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("routing from %s to %q: %v", e.Node, e.Target, e.Err)
	}
	return fmt.Sprintf("routing from %s: %v", e.Node, e.Err)
}

func (e *RoutingError) Unwrap() error { return e.Err }

// BranchError reports the first failed fan-out branch. Index is the dispatch position.
type BranchError struct {
	Source string
	Node   string
	Index  int
	Err    error
}

func (e *BranchError) Error() string {
	return fmt.Sprintf("fan-out from %s: branch %d (%s): %v", e.Source, e.Index, e.Node, e.Err)
}

func (e *BranchError) Unwrap() error { return e.Err }

// CheckpointError wraps failures of the checkpoint store so callers can tell
// persistence problems apart from node failures.
type CheckpointError struct {
	Op    string
	RunID string
	Err   error
}

func (e *CheckpointError) Error() string {
	return fmt.Sprintf("checkpoint %s for run %s: %v", e.Op, e.RunID, e.Err)
}

func (e *CheckpointError) Unwrap() error { return e.Err }
