// Package storage provides the durable key-value layer for the coop server.
// This package implements the repository pattern to keep the domain pure.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by stores used after Close.
var ErrClosed = errors.New("storage: store is closed")

// Store is the durable key -> text mapping persistent fields are bound to.
// A missing key is reported as ok == false with a nil error.
type Store interface {
	GetText(ctx context.Context, key string) (value string, ok bool, err error)
	SetText(ctx context.Context, key, value string) error
}

// Batch groups writes so that external readers observe all of them or none.
// A failed SetText does not poison the batch; the caller may keep writing
// other keys and still Commit.
type Batch interface {
	SetText(ctx context.Context, key, value string) error
	Commit() error
	Rollback() error
}

// Batcher is implemented by stores that can commit a flush pass atomically.
type Batcher interface {
	Begin(ctx context.Context, tick uint64) (Batch, error)
}

// CommitRecord describes one committed flush pass.
type CommitRecord struct {
	ID          string    `json:"id" db:"id"`
	Tick        uint64    `json:"tick" db:"tick"`
	Keys        int       `json:"keys" db:"keys"`
	CommittedAt time.Time `json:"committed_at" db:"committed_at"`
}

// EventRecord mirrors the journal event structure for persistence.
// The events package should NOT import this; the adapter lives in the CLI.
type EventRecord struct {
	ID        string    `json:"id" db:"id"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
	Type      string    `json:"type" db:"type"`
	Tick      uint64    `json:"tick" db:"tick"`
	Payload   string    `json:"payload" db:"payload"`
}
