package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SQLiteStore implements Store and Batcher on top of InitSQLite's schema.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an initialized database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// OpenSQLite initializes the database at path and wraps it.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := InitSQLite(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) GetText(ctx context.Context, key string) (string, bool, error) {
	if s.db == nil {
		return "", false, ErrClosed
	}

	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %q: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLiteStore) SetText(ctx context.Context, key, value string) error {
	if s.db == nil {
		return ErrClosed
	}
	if _, err := s.db.ExecContext(ctx, upsertKV, key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

const upsertKV = `
	INSERT INTO kv (key, value, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		value=excluded.value,
		updated_at=excluded.updated_at
`

// All returns every stored key and value.
func (s *SQLiteStore) All(ctx context.Context) (map[string]string, error) {
	if s.db == nil {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM kv ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list kv: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("list kv: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

// Begin opens a transaction for one flush pass.
func (s *SQLiteStore) Begin(ctx context.Context, tick uint64) (Batch, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin flush: %w", err)
	}
	return &sqliteBatch{tx: tx, tick: tick}, nil
}

// sqliteBatch writes into one transaction. A failed statement does not abort
// an SQLite transaction, so the remaining keys can still commit.
type sqliteBatch struct {
	tx   *sql.Tx
	tick uint64
	keys int
}

func (b *sqliteBatch) SetText(ctx context.Context, key, value string) error {
	if _, err := b.tx.ExecContext(ctx, upsertKV, key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	b.keys++
	return nil
}

func (b *sqliteBatch) Commit() error {
	_, err := b.tx.Exec(
		`INSERT INTO commits (id, tick, keys, committed_at) VALUES (?, ?, ?, ?)`,
		uuid.NewString(), int64(b.tick), b.keys, time.Now().UTC(),
	)
	if err != nil {
		_ = b.tx.Rollback()
		return fmt.Errorf("record commit: %w", err)
	}
	if err := b.tx.Commit(); err != nil {
		return fmt.Errorf("commit flush: %w", err)
	}
	return nil
}

func (b *sqliteBatch) Rollback() error {
	return b.tx.Rollback()
}

// RecentCommits returns the newest commit records first.
func (s *SQLiteStore) RecentCommits(ctx context.Context, limit int) ([]CommitRecord, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tick, keys, committed_at FROM commits ORDER BY committed_at DESC, tick DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list commits: %w", err)
	}
	defer rows.Close()

	var records []CommitRecord
	for rows.Next() {
		var rec CommitRecord
		var tick int64
		if err := rows.Scan(&rec.ID, &tick, &rec.Keys, &rec.CommittedAt); err != nil {
			return nil, fmt.Errorf("list commits: %w", err)
		}
		rec.Tick = uint64(tick)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// AppendEvent writes one journal event.
func (s *SQLiteStore) AppendEvent(ctx context.Context, rec EventRecord) error {
	if s.db == nil {
		return ErrClosed
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (id, timestamp, type, tick, payload) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		rec.ID, rec.Timestamp, rec.Type, int64(rec.Tick), rec.Payload,
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// EventsByType returns journal events of one type in insertion order.
func (s *SQLiteStore) EventsByType(ctx context.Context, eventType string) ([]EventRecord, error) {
	if s.db == nil {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, timestamp, type, tick, payload FROM events WHERE type = ? ORDER BY tick ASC, timestamp ASC`, eventType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var rec EventRecord
		var tick int64
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.Type, &tick, &rec.Payload); err != nil {
			return nil, err
		}
		rec.Tick = uint64(tick)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// EventsSince returns journal events at or after tick, oldest first.
func (s *SQLiteStore) EventsSince(ctx context.Context, tick uint64) ([]EventRecord, error) {
	if s.db == nil {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, timestamp, type, tick, payload FROM events WHERE tick >= ? ORDER BY tick ASC, timestamp ASC`, int64(tick))
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var rec EventRecord
		var t int64
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.Type, &t, &rec.Payload); err != nil {
			return nil, fmt.Errorf("list events: %w", err)
		}
		rec.Tick = uint64(t)
		out = append(out, rec)
	}
	return out, rows.Err()
}
