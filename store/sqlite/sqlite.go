// Package sqlite stores run checkpoints in a SQLite database file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/smallnest/researchgraph/store"
)

// SqliteCheckpointStore implements store.CheckpointStore using SQLite
type SqliteCheckpointStore struct {
	db        *sql.DB
	tableName string
}

var (
	_ store.CheckpointStore = (*SqliteCheckpointStore)(nil)
	_ store.Pruner          = (*SqliteCheckpointStore)(nil)
)

// SqliteOptions configuration for SQLite connection
type SqliteOptions struct {
	Path      string
	TableName string // Default "checkpoints"
}

// NewSqliteCheckpointStore opens the database and creates the table if needed
func NewSqliteCheckpointStore(opts SqliteOptions) (*SqliteCheckpointStore, error) {
	db, err := sql.Open("sqlite3", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	tableName := opts.TableName
	if tableName == "" {
		tableName = "checkpoints"
	}

	s := &SqliteCheckpointStore{
		db:        db,
		tableName: tableName,
	}

	if err := s.InitSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// InitSchema creates the necessary table if it doesn't exist
func (s *SqliteCheckpointStore) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			run_id TEXT PRIMARY KEY,
			next_node TEXT NOT NULL,
			state TEXT NOT NULL,
			status TEXT NOT NULL,
			resumed_at TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			metadata TEXT,
			version INTEGER NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%s_updated_at ON %s (updated_at);
	`, s.tableName, s.tableName, s.tableName)

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SqliteCheckpointStore) Close() error {
	return s.db.Close()
}

// Save upserts the checkpoint of a run
func (s *SqliteCheckpointStore) Save(ctx context.Context, checkpoint *store.Checkpoint) error {
	stateJSON, err := json.Marshal(checkpoint.State)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	metadataJSON, err := json.Marshal(checkpoint.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (run_id, next_node, state, status, resumed_at, error, metadata, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			next_node = excluded.next_node,
			state = excluded.state,
			status = excluded.status,
			resumed_at = excluded.resumed_at,
			error = excluded.error,
			metadata = excluded.metadata,
			version = excluded.version,
			updated_at = excluded.updated_at
	`, s.tableName)

	_, err = s.db.ExecContext(ctx, query,
		checkpoint.RunID,
		checkpoint.Cursor,
		string(stateJSON),
		string(checkpoint.Status),
		checkpoint.ResumedAt,
		checkpoint.Error,
		string(metadataJSON),
		checkpoint.Version,
		checkpoint.CreatedAt.UTC(),
		checkpoint.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(row scanner) (*store.Checkpoint, error) {
	var (
		cp           store.Checkpoint
		status       string
		stateJSON    string
		metadataJSON sql.NullString
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

	if err := json.Unmarshal([]byte(stateJSON), &cp.State); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &cp.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &cp, nil
}

// Load retrieves the checkpoint of a run
func (s *SqliteCheckpointStore) Load(ctx context.Context, runID string) (*store.Checkpoint, error) {
	query := fmt.Sprintf(`
		SELECT run_id, next_node, state, status, resumed_at, error, metadata, version, created_at, updated_at
		FROM %s
		WHERE run_id = ?
	`, s.tableName)

	cp, err := scanCheckpoint(s.db.QueryRowContext(ctx, query, runID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrNotFound, runID)
		}
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return cp, nil
}

// List returns all checkpoints, most recently updated first
func (s *SqliteCheckpointStore) List(ctx context.Context) ([]*store.Checkpoint, error) {
	query := fmt.Sprintf(`
		SELECT run_id, next_node, state, status, resumed_at, error, metadata, version, created_at, updated_at
		FROM %s
		ORDER BY updated_at DESC, run_id ASC
	`, s.tableName)

	rows, err := s.db.QueryContext(ctx, query)
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
func (s *SqliteCheckpointStore) Delete(ctx context.Context, runID string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE run_id = ?", s.tableName)
	if _, err := s.db.ExecContext(ctx, query, runID); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// DeleteOlderThan removes checkpoints last updated before cutoff
func (s *SqliteCheckpointStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE updated_at < ?", s.tableName)
	res, err := s.db.ExecContext(ctx, query, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune checkpoints: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
