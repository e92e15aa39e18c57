package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore persists thread checkpoints to SQLite. It is suitable for
// single-process production use.
//
// The compare-and-swap in Save is a single conditional UPDATE (or a
// guarded INSERT for version 0), so concurrent writers to the same
// thread serialize at the database and the loser sees ErrVersionConflict.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore creates a new SQLite thread store. The path should be
// a file path (e.g. "./threads.db") or ":memory:" for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL mode keeps readers unblocked during commits
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS threads (
			thread_id TEXT PRIMARY KEY,
			version INTEGER NOT NULL,
			snapshot BLOB NOT NULL,
			pending_stage TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context, threadID string) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	var cp Checkpoint
	var updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT thread_id, version, snapshot, pending_stage, updated_at
		FROM threads
		WHERE thread_id = ?
	`, threadID).Scan(&cp.ThreadID, &cp.Version, &cp.Snapshot, &cp.PendingStage, &updatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	cp.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &cp, nil
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, threadID string, snapshot []byte, pendingStage string, expectedVersion int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	next := expectedVersion + 1

	var res sql.Result
	var err error
	if expectedVersion == 0 {
		// New thread: the primary key rejects a concurrent first writer.
		res, err = s.db.ExecContext(ctx, `
			INSERT INTO threads (thread_id, version, snapshot, pending_stage, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(thread_id) DO NOTHING
		`, threadID, next, snapshot, pendingStage, now)
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE threads
			SET version = ?, snapshot = ?, pending_stage = ?, updated_at = ?
			WHERE thread_id = ? AND version = ?
		`, next, snapshot, pendingStage, now, threadID, expectedVersion)
	}
	if err != nil {
		return 0, fmt.Errorf("save checkpoint: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("save checkpoint: %w", err)
	}
	if affected == 0 {
		return 0, ErrVersionConflict
	}
	return next, nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context) ([]Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT thread_id, version, pending_stage, updated_at, LENGTH(snapshot)
		FROM threads
		ORDER BY thread_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	infos := []Info{}
	for rows.Next() {
		var info Info
		var updatedAt string
		if err := rows.Scan(&info.ThreadID, &info.Version, &info.PendingStage, &updatedAt, &info.Size); err != nil {
			return nil, fmt.Errorf("scan checkpoint info: %w", err)
		}
		info.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkpoints: %w", err)
	}
	return infos, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM threads WHERE thread_id = ?`, threadID); err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
