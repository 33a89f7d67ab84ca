// Package store defines checkpoint persistence for graph runs. Backends live in
// sub-packages: memory, file, redis, postgres and sqlite.
package store

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"time"
)

// ErrNotFound is returned by Load when no checkpoint exists for a run id.
var ErrNotFound = errors.New("checkpoint not found")

// RunStatus is the lifecycle state of a run as recorded in its checkpoint.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusSuspended RunStatus = "suspended"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// Checkpoint is the durable (state, cursor) pair of a run. There is one
// checkpoint per run; each save replaces the previous one and bumps Version.
type Checkpoint struct {
	RunID string `json:"run_id"`
	// Cursor is the next node to execute, or END once the run completed.
	Cursor string         `json:"cursor"`
	State  map[string]any `json:"state"`
	Status RunStatus      `json:"status"`
	// ResumedAt is the cursor at which a resumed run skips its interrupt once.
	ResumedAt string         `json:"resumed_at,omitempty"`
	Error     string         `json:"error,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Version   int            `json:"version"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// CheckpointStore defines the interface for checkpoint persistence.
// Implementations must be safe for concurrent use across distinct run ids.
type CheckpointStore interface {
	// Save stores the checkpoint, replacing any previous one for the same run
	Save(ctx context.Context, checkpoint *Checkpoint) error

	// Load retrieves the checkpoint of a run, or ErrNotFound
	Load(ctx context.Context, runID string) (*Checkpoint, error)

	// List returns the checkpoints of all stored runs, most recently updated first
	List(ctx context.Context) ([]*Checkpoint, error)

	// Delete removes the checkpoint of a run. Deleting an unknown run is not an error
	Delete(ctx context.Context, runID string) error
}

// Pruner is implemented by stores that can drop checkpoints not updated since a cutoff.
type Pruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// SortNewestFirst orders checkpoints by UpdatedAt, newest first, breaking ties by run id.
func SortNewestFirst(cps []*Checkpoint) {
	slices.SortFunc(cps, func(a, b *Checkpoint) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.RunID, b.RunID)
	})
}
