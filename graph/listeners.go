package graph

import (
	"context"
	"strconv"
	"time"

	"github.com/smallnest/researchgraph/log"
)

// EventType identifies a node event.
type EventType string

const (
	// EventNodeStart indicates a node has started execution
	EventNodeStart EventType = "node_start"

	// EventNodeEnd indicates a node has completed successfully
	EventNodeEnd EventType = "node_end"

	// EventNodeError indicates a node, its merge or its routing failed
	EventNodeError EventType = "node_error"

	// EventFanOutStart indicates a dispatcher emitted its branches
	EventFanOutStart EventType = "fanout_start"

	// EventFanOutEnd indicates every branch finished and the results were merged
	EventFanOutEnd EventType = "fanout_end"

	// EventInterrupt indicates the run suspended before a node
	EventInterrupt EventType = "interrupt"

	// EventRunEnd indicates a top-level run completed or failed
	EventRunEnd EventType = "run_end"
)

// NodeEvent describes something that happened during execution.
type NodeEvent struct {
	Type      EventType
	RunID     string
	Graph     string
	Node      string
	Branch    *Branch
	Branches  int
	Err       error
	Duration  time.Duration
	Timestamp time.Time
}

// Listener receives node events. Listeners are called synchronously from the
// goroutine that produced the event and must be safe for concurrent use, since
// fan-out branches report from their own goroutines.
type Listener interface {
	OnNodeEvent(ctx context.Context, event NodeEvent)
}

// ListenerFunc is a function adapter for Listener.
type ListenerFunc func(ctx context.Context, event NodeEvent)

// OnNodeEvent implements the Listener interface
func (f ListenerFunc) OnNodeEvent(ctx context.Context, event NodeEvent) {
	f(ctx, event)
}

func (g *CompiledGraph) emit(ctx context.Context, event NodeEvent) {
	listeners := listenersFromContext(ctx)
	if len(listeners) == 0 {
		return
	}
	event.Graph = g.name
	event.RunID = RunIDFromContext(ctx)
	event.Timestamp = time.Now()
	if b, ok := BranchFromContext(ctx); ok && event.Branch == nil {
		event.Branch = &b
	}
	for _, l := range listeners {
		notify(ctx, l, event)
	}
}

func notify(ctx context.Context, l Listener, event NodeEvent) {
	defer func() {
		// A broken listener must not take the run down.
		if r := recover(); r != nil {
			log.Warn("listener panicked on %s event for %s: %v", event.Type, event.Node, r)
		}
	}()
	l.OnNodeEvent(ctx, event)
}

// LogListener logs every event through logger, or the package logger when nil.
func LogListener(logger log.Logger) Listener {
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	return ListenerFunc(func(_ context.Context, e NodeEvent) {
		where := e.Graph + "/" + e.Node
		if e.Branch != nil {
			where += "#" + strconv.Itoa(e.Branch.Index)
		}
		switch e.Type {
		case EventNodeStart:
			logger.Debug("run %s: %s started", e.RunID, where)
		case EventNodeEnd:
			logger.Debug("run %s: %s done in %v", e.RunID, where, e.Duration)
		case EventNodeError:
			logger.Error("run %s: %s failed: %v", e.RunID, where, e.Err)
		case EventFanOutStart:
			logger.Info("run %s: %s dispatched %d branches", e.RunID, where, e.Branches)
		case EventFanOutEnd:
			logger.Info("run %s: %s joined %d branches in %v", e.RunID, where, e.Branches, e.Duration)
		case EventInterrupt:
			logger.Info("run %s: suspended before %s", e.RunID, where)
		case EventRunEnd:
			if e.Err != nil {
				logger.Error("run %s: %s failed: %v", e.RunID, e.Graph, e.Err)
			} else {
				logger.Info("run %s: %s finished in %v", e.RunID, e.Graph, e.Duration)
			}
		}
	})
}
