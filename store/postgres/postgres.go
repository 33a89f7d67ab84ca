// Package postgres stores run checkpoints in a PostgreSQL table with JSONB state.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/smallnest/researchgraph/store"
)

// DBPool defines the interface for database connection pool
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresCheckpointStore implements store.CheckpointStore using PostgreSQL
type PostgresCheckpointStore struct {
	pool      DBPool
	tableName string
}

var (
	_ store.CheckpointStore = (*PostgresCheckpointStore)(nil)
	_ store.Pruner          = (*PostgresCheckpointStore)(nil)
)

// PostgresOptions configuration for Postgres connection
type PostgresOptions struct {
	ConnString string
	TableName  string // Default "checkpoints"
}

// NewPostgresCheckpointStore creates a new Postgres checkpoint store
func NewPostgresCheckpointStore(ctx context.Context, opts PostgresOptions) (*PostgresCheckpointStore, error) {
	pool, err := pgxpool.New(ctx, opts.ConnString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	return NewPostgresCheckpointStoreWithPool(pool, opts.TableName), nil
}

// NewPostgresCheckpointStoreWithPool creates a new Postgres checkpoint store with an existing pool
// Useful for testing with mocks
func NewPostgresCheckpointStoreWithPool(pool DBPool, tableName string) *PostgresCheckpointStore {
	if tableName == "" {
		tableName = "checkpoints"
	}
	return &PostgresCheckpointStore{
		pool:      pool,
		tableName: tableName,
	}
}

// InitSchema creates the necessary table if it doesn't exist
func (s *PostgresCheckpointStore) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			run_id TEXT PRIMARY KEY,
			next_node TEXT NOT NULL,
			state JSONB NOT NULL,
			status TEXT NOT NULL,
			resumed_at TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			metadata JSONB,
			version INTEGER NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%s_updated_at ON %s (updated_at);`,
		s.tableName, s.tableName, s.tableName)

	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the connection pool
func (s *PostgresCheckpointStore) Close() {
	s.pool.Close()
}

// Save upserts the checkpoint of a run
func (s *PostgresCheckpointStore) Save(ctx context.Context, checkpoint *store.Checkpoint) error {
	stateJSON, err := json.Marshal(checkpoint.State)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	metadataJSON, err := json.Marshal(checkpoint.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := fmt.Sprintf(`INSERT INTO %s (run_id, next_node, state, status, resumed_at, error, metadata, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (run_id) DO UPDATE SET
			next_node = EXCLUDED.next_node,
			state = EXCLUDED.state,
			status = EXCLUDED.status,
			resumed_at = EXCLUDED.resumed_at,
			error = EXCLUDED.error,
			metadata = EXCLUDED.metadata,
			version = EXCLUDED.version,
			updated_at = EXCLUDED.updated_at`, s.tableName)

	_, err = s.pool.Exec(ctx, query,
		checkpoint.RunID,
		checkpoint.Cursor,
		stateJSON,
		string(checkpoint.Status),
		checkpoint.ResumedAt,
		checkpoint.Error,
		metadataJSON,
		checkpoint.Version,
		checkpoint.CreatedAt,
		checkpoint.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

const selectColumns = "run_id, next_node, state, status, resumed_at, error, metadata, version, created_at, updated_at"

func scanCheckpoint(row pgx.Row) (*store.Checkpoint, error) {
	var (
		cp           store.Checkpoint
		status       string
		stateJSON    []byte
		metadataJSON []byte
	)
	err := row.Scan(
		&cp.RunID,
		&cp.Cursor,
		&stateJSON,
		&status,
		&cp.ResumedAt,
		&cp.Error,
		&metadataJSON,
		&cp.Version,
		&cp.CreatedAt,
		&cp.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	cp.Status = store.RunStatus(status)

	if err := json.Unmarshal(stateJSON, &cp.State); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &cp.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &cp, nil
}

// Load retrieves the checkpoint of a run
func (s *PostgresCheckpointStore) Load(ctx context.Context, runID string) (*store.Checkpoint, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE run_id = $1", selectColumns, s.tableName)

	cp, err := scanCheckpoint(s.pool.QueryRow(ctx, query, runID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrNotFound, runID)
		}
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return cp, nil
}

// List returns all checkpoints, most recently updated first
func (s *PostgresCheckpointStore) List(ctx context.Context) ([]*store.Checkpoint, error) {
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY updated_at DESC, run_id ASC", selectColumns, s.tableName)

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	var checkpoints []*store.Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint row: %w", err)
		}
		checkpoints = append(checkpoints, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating checkpoint rows: %w", err)
	}
	return checkpoints, nil
}

// Delete removes the checkpoint of a run
func (s *PostgresCheckpointStore) Delete(ctx context.Context, runID string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE run_id = $1", s.tableName)
	if _, err := s.pool.Exec(ctx, query, runID); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// DeleteOlderThan removes checkpoints last updated before cutoff
func (s *PostgresCheckpointStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE updated_at < $1", s.tableName)
	tag, err := s.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune checkpoints: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
