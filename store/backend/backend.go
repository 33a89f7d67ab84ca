// Package backend opens a checkpoint store by name, so binaries can pick the
// persistence layer from configuration.
package backend

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/smallnest/researchgraph/store"
	"github.com/smallnest/researchgraph/store/file"
	"github.com/smallnest/researchgraph/store/memory"
	"github.com/smallnest/researchgraph/store/postgres"
	"github.com/smallnest/researchgraph/store/redis"
	"github.com/smallnest/researchgraph/store/sqlite"
)

// Config selects and configures a backend.
type Config struct {
	// Kind is one of memory, file, redis, postgres or sqlite.
	Kind string
	// DSN is the directory (file), address (redis), connection string (postgres) or path (sqlite).
	DSN string
	// Password for redis.
	Password string
	// Table for postgres and sqlite; prefix for redis.
	Table string
	// TTL expires checkpoints in memory and redis.
	TTL time.Duration
}

// Open creates the store. The returned close function releases its resources.
func Open(ctx context.Context, cfg Config) (store.CheckpointStore, func() error, error) {
	noop := func() error { return nil }

	switch strings.ToLower(cfg.Kind) {
	case "", "memory":
		return memory.NewMemoryCheckpointStore(memory.WithTTL(cfg.TTL)), noop, nil

	case "file":
		dir := cfg.DSN
		if dir == "" {
			dir = ".checkpoints"
		}
		s, err := file.NewFileCheckpointStore(dir)
		if err != nil {
			return nil, nil, err
		}
		return s, noop, nil

	case "redis":
		s := redis.NewRedisCheckpointStore(redis.RedisOptions{
			Addr:     cfg.DSN,
			Password: cfg.Password,
			Prefix:   cfg.Table,
			TTL:      cfg.TTL,
		})
		return s, s.Close, nil

	case "postgres":
		s, err := postgres.NewPostgresCheckpointStore(ctx, postgres.PostgresOptions{
			ConnString: cfg.DSN,
			TableName:  cfg.Table,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := s.InitSchema(ctx); err != nil {
			s.Close()
			return nil, nil, err
		}
		return s, func() error { s.Close(); return nil }, nil

	case "sqlite":
		s, err := sqlite.NewSqliteCheckpointStore(sqlite.SqliteOptions{
			Path:      cfg.DSN,
			TableName: cfg.Table,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown checkpoint backend %q", cfg.Kind)
}
