// Package natsevents publishes graph node events to NATS so that other processes
// can follow a run as it executes.
//
// Events are JSON encoded and published on
//
//	<prefix>.<run id>.<event type>
//
// for example researchgraph.runs.7f9c.node_end. Subscribe to
// researchgraph.runs.<run id>.> to follow a single run.
package natsevents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/smallnest/researchgraph/graph"
	"github.com/smallnest/researchgraph/log"
)

// DefaultPrefix is the subject prefix used when none is configured.
const DefaultPrefix = "researchgraph.runs"

// Publisher is the part of *nats.Conn the listener needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

var _ Publisher = (*nats.Conn)(nil)

// Event is the wire form of a graph.NodeEvent.
type Event struct {
	Type       graph.EventType `json:"type"`
	RunID      string          `json:"run_id,omitempty"`
	Graph      string          `json:"graph"`
	Node       string          `json:"node,omitempty"`
	Branch     *graph.Branch   `json:"branch,omitempty"`
	Branches   int             `json:"branches,omitempty"`
	Error      string          `json:"error,omitempty"`
	DurationMS int64           `json:"duration_ms,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

// FromNodeEvent converts a node event to its wire form.
func FromNodeEvent(e graph.NodeEvent) Event {
	out := Event{
		Type:       e.Type,
		RunID:      e.RunID,
		Graph:      e.Graph,
		Node:       e.Node,
		Branch:     e.Branch,
		Branches:   e.Branches,
		DurationMS: e.Duration.Milliseconds(),
		Timestamp:  e.Timestamp,
	}
	if e.Err != nil {
		out.Error = e.Err.Error()
	}
	return out
}

// Decode parses a published message.
func Decode(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return e, nil
}

// Listener is a graph.Listener that publishes every event.
type Listener struct {
	pub    Publisher
	prefix string
	types  map[graph.EventType]bool
	logger log.Logger
}

var _ graph.Listener = (*Listener)(nil)

// Option configures a Listener.
type Option func(*Listener)

// WithPrefix sets the subject prefix.
func WithPrefix(prefix string) Option {
	return func(l *Listener) {
		l.prefix = strings.TrimSuffix(prefix, ".")
	}
}

// WithEventTypes restricts publishing to the given event types.
func WithEventTypes(types ...graph.EventType) Option {
	return func(l *Listener) {
		l.types = make(map[graph.EventType]bool, len(types))
		for _, t := range types {
			l.types[t] = true
		}
	}
}

// WithLogger sets the logger used to report publish failures.
func WithLogger(logger log.Logger) Option {
	return func(l *Listener) {
		l.logger = logger
	}
}

// NewListener returns a listener publishing through pub, typically a *nats.Conn.
func NewListener(pub Publisher, opts ...Option) *Listener {
	l := &Listener{pub: pub, prefix: DefaultPrefix, logger: log.GetDefaultLogger()}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = log.WithPrefix(l.logger, "natsevents: ")
	return l
}

// Subject returns the subject an event of type t in run runID is published on.
func (l *Listener) Subject(runID string, t graph.EventType) string {
	if runID == "" {
		runID = "_"
	}
	return l.prefix + "." + runID + "." + string(t)
}

// RunSubject is the wildcard subject matching every event of runID.
func (l *Listener) RunSubject(runID string) string {
	return l.prefix + "." + runID + ".>"
}

// OnNodeEvent implements graph.Listener. Publish failures are logged and never
// interrupt the run.
func (l *Listener) OnNodeEvent(_ context.Context, e graph.NodeEvent) {
	if l.types != nil && !l.types[e.Type] {
		return
	}
	data, err := json.Marshal(FromNodeEvent(e))
	if err != nil {
		l.logger.Warn("encode %s event: %v", e.Type, err)
		return
	}
	if err := l.pub.Publish(l.Subject(e.RunID, e.Type), data); err != nil {
		l.logger.Warn("publish %s event for run %s: %v", e.Type, e.RunID, err)
	}
}

// Subscribe delivers the decoded events of runID to fn until the subscription is
// drained or unsubscribed.
func Subscribe(nc *nats.Conn, prefix, runID string, fn func(Event)) (*nats.Subscription, error) {
	l := NewListener(nc, WithPrefix(prefix))
	return nc.Subscribe(l.RunSubject(runID), func(msg *nats.Msg) {
		e, err := Decode(msg.Data)
		if err != nil {
			l.logger.Warn("%v", err)
			return
		}
		fn(e)
	})
}

// Connect dials url with a client name, retrying the initial connection.
func Connect(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", url, err)
	}
	return nc, nil
}
