// Package redis stores run checkpoints in Redis, one key per run plus an index set.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/smallnest/researchgraph/store"
)

// RedisCheckpointStore implements store.CheckpointStore using Redis
type RedisCheckpointStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ store.CheckpointStore = (*RedisCheckpointStore)(nil)

// RedisOptions configuration for Redis connection
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string        // Key prefix, default "researchgraph:"
	TTL      time.Duration // Expiration for checkpoints, default 0 (no expiration)
}

// NewRedisCheckpointStore creates a new Redis checkpoint store
func NewRedisCheckpointStore(opts RedisOptions) *RedisCheckpointStore {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return NewRedisCheckpointStoreWithClient(client, opts.Prefix, opts.TTL)
}

// NewRedisCheckpointStoreWithClient wraps an existing client.
func NewRedisCheckpointStoreWithClient(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisCheckpointStore {
	if prefix == "" {
		prefix = "researchgraph:"
	}
	return &RedisCheckpointStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *RedisCheckpointStore) runKey(id string) string {
	return fmt.Sprintf("%srun:%s", s.prefix, id)
}

func (s *RedisCheckpointStore) indexKey() string {
	return s.prefix + "runs"
}

// Save stores a checkpoint
func (s *RedisCheckpointStore) Save(ctx context.Context, checkpoint *store.Checkpoint) error {
	if checkpoint.RunID == "" {
		return errors.New("redis store: checkpoint without run id")
	}
	data, err := json.Marshal(checkpoint)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.runKey(checkpoint.RunID), data, s.ttl)
	pipe.SAdd(ctx, s.indexKey(), checkpoint.RunID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save checkpoint to redis: %w", err)
	}
	return nil
}

// Load retrieves the checkpoint of a run
func (s *RedisCheckpointStore) Load(ctx context.Context, runID string) (*store.Checkpoint, error) {
	data, err := s.client.Get(ctx, s.runKey(runID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", store.ErrNotFound, runID)
		}
		return nil, fmt.Errorf("failed to load checkpoint from redis: %w", err)
	}

	var checkpoint store.Checkpoint
	if err := json.Unmarshal(data, &checkpoint); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &checkpoint, nil
}

// List returns all indexed checkpoints. Index entries whose key expired are pruned.
func (s *RedisCheckpointStore) List(ctx context.Context) ([]*store.Checkpoint, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	if len(ids) == 0 {
		return []*store.Checkpoint{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.runKey(id)
	}
	// MGet returns nil for missing keys, which happens once a TTL expired.
	results, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch checkpoints: %w", err)
	}

	var (
		checkpoints []*store.Checkpoint
		stale       []any
	)
	for i, result := range results {
		raw, ok := result.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var checkpoint store.Checkpoint
		if err := json.Unmarshal([]byte(raw), &checkpoint); err != nil {
			return nil, fmt.Errorf("failed to unmarshal checkpoint %s: %w", ids[i], err)
		}
		checkpoints = append(checkpoints, &checkpoint)
	}
	if len(stale) > 0 {
		if err := s.client.SRem(ctx, s.indexKey(), stale...).Err(); err != nil {
			return nil, fmt.Errorf("failed to prune run index: %w", err)
		}
	}

	store.SortNewestFirst(checkpoints)
	return checkpoints, nil
}

// Delete removes the checkpoint of a run
func (s *RedisCheckpointStore) Delete(ctx context.Context, runID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.runKey(runID))
	pipe.SRem(ctx, s.indexKey(), runID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// Close closes the underlying client
func (s *RedisCheckpointStore) Close() error {
	return s.client.Close()
}
