// Package memory provides an in-process checkpoint store. Checkpoints are deep
// copied on the way in and out, so callers can keep mutating their values.
package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/alphadose/haxmap"
	"github.com/smallnest/researchgraph/store"
	"github.com/tiendc/go-deepcopy"
)

type entry struct {
	checkpoint *store.Checkpoint
	expiresAt  time.Time
}

// MemoryCheckpointStore keeps checkpoints in a concurrent hash map.
type MemoryCheckpointStore struct {
	entries *haxmap.Map[string, *entry]
	ttl     time.Duration
	now     func() time.Time
}

var (
	_ store.CheckpointStore = (*MemoryCheckpointStore)(nil)
	_ store.Pruner          = (*MemoryCheckpointStore)(nil)
)

// Option configures a MemoryCheckpointStore.
type Option func(*MemoryCheckpointStore)

// WithTTL expires checkpoints that were not saved for d. Zero keeps them forever.
func WithTTL(d time.Duration) Option {
	return func(s *MemoryCheckpointStore) {
		s.ttl = d
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryCheckpointStore) {
		s.now = now
	}
}

// NewMemoryCheckpointStore creates an empty store.
func NewMemoryCheckpointStore(opts ...Option) *MemoryCheckpointStore {
	s := &MemoryCheckpointStore{
		entries: haxmap.New[string, *entry](),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save stores a copy of the checkpoint
func (s *MemoryCheckpointStore) Save(_ context.Context, checkpoint *store.Checkpoint) error {
	if checkpoint == nil || checkpoint.RunID == "" {
		return fmt.Errorf("memory store: checkpoint without run id")
	}
	cp, err := clone(checkpoint)
	if err != nil {
		return err
	}
	e := &entry{checkpoint: cp}
	if s.ttl > 0 {
		e.expiresAt = s.now().Add(s.ttl)
	}
	s.entries.Set(checkpoint.RunID, e)
	return nil
}

// Load returns a copy of the stored checkpoint
func (s *MemoryCheckpointStore) Load(_ context.Context, runID string) (*store.Checkpoint, error) {
	e, ok := s.entries.Get(runID)
	if !ok || s.expired(e) {
		if ok {
			s.entries.Del(runID)
		}
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, runID)
	}
	return clone(e.checkpoint)
}

// List returns copies of all live checkpoints, newest first
func (s *MemoryCheckpointStore) List(_ context.Context) ([]*store.Checkpoint, error) {
	var (
		out     []*store.Checkpoint
		expired []string
		err     error
	)
	s.entries.ForEach(func(id string, e *entry) bool {
		if s.expired(e) {
			expired = append(expired, id)
			return true
		}
		var cp *store.Checkpoint
		if cp, err = clone(e.checkpoint); err != nil {
			return false
		}
		out = append(out, cp)
		return true
	})
	if err != nil {
		return nil, err
	}
	if len(expired) > 0 {
		s.entries.Del(expired...)
	}
	store.SortNewestFirst(out)
	return out, nil
}

// Delete removes a checkpoint
func (s *MemoryCheckpointStore) Delete(_ context.Context, runID string) error {
	s.entries.Del(runID)
	return nil
}

// DeleteOlderThan drops checkpoints last saved before cutoff.
func (s *MemoryCheckpointStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	var stale []string
	s.entries.ForEach(func(id string, e *entry) bool {
		if e.checkpoint.UpdatedAt.Before(cutoff) || s.expired(e) {
			stale = append(stale, id)
		}
		return true
	})
	if len(stale) > 0 {
		s.entries.Del(stale...)
	}
	return len(stale), nil
}

// Len reports the number of stored checkpoints, including expired ones not yet swept.
func (s *MemoryCheckpointStore) Len() int {
	return int(s.entries.Len())
}

func (s *MemoryCheckpointStore) expired(e *entry) bool {
	return !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt)
}

func clone(cp *store.Checkpoint) (*store.Checkpoint, error) {
	out := *cp
	out.State = nil
	out.Metadata = nil
	if err := deepcopy.Copy(&out.State, cp.State); err != nil {
		return nil, fmt.Errorf("memory store: copy state of %s: %w", cp.RunID, err)
	}
	if err := deepcopy.Copy(&out.Metadata, cp.Metadata); err != nil {
		return nil, fmt.Errorf("memory store: copy metadata of %s: %w", cp.RunID, err)
	}
	return &out, nil
}
