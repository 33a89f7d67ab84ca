// Package file stores each run's checkpoint as a JSON document in a directory.
// It lets a suspended run be resumed by a later process on the same machine.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/smallnest/researchgraph/store"
)

const ext = ".json"

// FileCheckpointStore implements store.CheckpointStore on the local file system.
type FileCheckpointStore struct {
	dir string
	mu  sync.RWMutex
}

var (
	_ store.CheckpointStore = (*FileCheckpointStore)(nil)
	_ store.Pruner          = (*FileCheckpointStore)(nil)
)

// NewFileCheckpointStore creates the directory if needed.
func NewFileCheckpointStore(dir string) (*FileCheckpointStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint directory: %w", err)
	}
	return &FileCheckpointStore{dir: dir}, nil
}

func (s *FileCheckpointStore) path(runID string) (string, error) {
	if runID == "" || strings.ContainsAny(runID, `/\`) || runID == "." || runID == ".." {
		return "", fmt.Errorf("invalid run id %q", runID)
	}
	return filepath.Join(s.dir, runID+ext), nil
}

// Save writes the checkpoint atomically
func (s *FileCheckpointStore) Save(_ context.Context, checkpoint *store.Checkpoint) error {
	p, err := s.path(checkpoint.RunID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(checkpoint, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, "."+checkpoint.RunID+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("failed to move checkpoint into place: %w", err)
	}
	return nil
}

// Load reads the checkpoint of a run
func (s *FileCheckpointStore) Load(_ context.Context, runID string) (*store.Checkpoint, error) {
	p, err := s.path(runID)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return readCheckpoint(p, runID)
}

func readCheckpoint(p, runID string) (*store.Checkpoint, error) {
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	var cp store.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint %s: %w", runID, err)
	}
	return &cp, nil
}

// List reads every checkpoint in the directory
func (s *FileCheckpointStore) List(_ context.Context) ([]*store.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	var out []*store.Checkpoint
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ext) {
			continue
		}
		cp, err := readCheckpoint(filepath.Join(s.dir, name), strings.TrimSuffix(name, ext))
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	store.SortNewestFirst(out)
	return out, nil
}

// Delete removes the checkpoint file of a run
func (s *FileCheckpointStore) Delete(_ context.Context, runID string) error {
	p, err := s.path(runID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// DeleteOlderThan removes checkpoints last updated before cutoff.
func (s *FileCheckpointStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	cps, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, cp := range cps {
		if cp.UpdatedAt.Before(cutoff) {
			if err := s.Delete(ctx, cp.RunID); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}
