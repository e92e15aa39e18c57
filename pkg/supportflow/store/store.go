// Package store provides durable, versioned storage of per-thread
// conversation state for crash recovery and concurrency control.
package store

import (
	"context"
	"errors"
	"time"
)

// Store persists thread checkpoints. Implementations must be safe for
// concurrent use and must serialize concurrent writers to the same
// thread via optimistic versioning.
type Store interface {
	// Load retrieves the latest checkpoint for a thread.
	// Returns ErrNotFound if the thread has never been saved.
	Load(ctx context.Context, threadID string) (*Checkpoint, error)

	// Save atomically writes a new checkpoint if the stored version
	// still equals expectedVersion (0 for a new thread). On success
	// it returns the new version (expectedVersion+1); if another
	// writer got there first it returns ErrVersionConflict and the
	// store is unchanged.
	Save(ctx context.Context, threadID string, snapshot []byte, pendingStage string, expectedVersion int64) (int64, error)

	// List returns checkpoint metadata for all stored threads.
	// Returns an empty slice (not an error) for an empty store.
	List(ctx context.Context) ([]Info, error)

	// Delete removes a thread's checkpoint.
	// Returns nil if the thread doesn't exist.
	Delete(ctx context.Context, threadID string) error

	// Close releases any resources (connections, files).
	Close() error
}

// Checkpoint is the persisted snapshot of a thread plus the pending
// stage pointer. Snapshot is the JSON-serialized thread state; the
// store treats it as opaque.
type Checkpoint struct {
	ThreadID     string    `json:"thread_id"`
	Version      int64     `json:"version"`
	Snapshot     []byte    `json:"snapshot"`
	PendingStage string    `json:"pending_stage,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Info provides checkpoint metadata without loading the snapshot.
type Info struct {
	ThreadID     string
	Version      int64
	PendingStage string
	UpdatedAt    time.Time
	Size         int64
}

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates the thread has no checkpoint.
	ErrNotFound = errors.New("thread checkpoint not found")

	// ErrVersionConflict indicates a concurrent writer committed first.
	ErrVersionConflict = errors.New("checkpoint version conflict")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("store closed")
)
