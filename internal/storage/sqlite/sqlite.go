// Package sqlite provides a SQLite-backed implementation of the storage.Store interface.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/mmynk/settlex/internal/storage"
)

// Ensure SQLiteStore implements storage.Store and storage.Purger
var (
	_ storage.Store  = (*SQLiteStore)(nil)
	_ storage.Purger = (*SQLiteStore)(nil)
)

// SQLiteStore implements storage.Store using SQLite.
type SQLiteStore struct {
	db           *sql.DB
	now          func() time.Time
	minRetention time.Duration
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithClock overrides the time source used for expiration.
func WithClock(now func() time.Time) Option {
	return func(s *SQLiteStore) { s.now = now }
}

// WithMinRetention sets the lifetime of newly created slots.
func WithMinRetention(d time.Duration) Option {
	return func(s *SQLiteStore) { s.minRetention = d }
}

// New creates a new SQLiteStore with the given database path.
// It creates the parent directories and runs migrations automatically.
//
// Write transactions begin with BEGIN IMMEDIATE so that concurrent writers
// are serialized for their whole duration.
func New(dbPath string, opts ...Option) (*SQLiteStore, error) {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := dbPath + "?_txlock=immediate&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	s := &SQLiteStore{
		db:           db,
		now:          time.Now,
		minRetention: storage.DefaultMinRetention,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Update runs fn inside a single database transaction.
func (s *SQLiteStore) Update(ctx context.Context, fn func(tx storage.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&txn{store: s, q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// View runs fn against the database without opening a write transaction.
func (s *SQLiteStore) View(ctx context.Context, fn func(tx storage.Tx) error) error {
	return fn(&txn{store: s, q: s.db, readOnly: true})
}

// Purge deletes all expired slots.
func (s *SQLiteStore) Purge(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM slots WHERE expires_at <= ?",
		s.now().UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired slots: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count purged slots: %w", err)
	}
	return n, nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txn struct {
	store    *SQLiteStore
	q        querier
	readOnly bool
}

func (t *txn) Has(ctx context.Context, key storage.Key) (bool, error) {
	var exists int
	err := t.q.QueryRowContext(ctx,
		"SELECT 1 FROM slots WHERE key = ? AND expires_at > ?",
		key.String(), t.store.now().UnixNano(),
	).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check slot %s: %w", key, err)
	}
	return true, nil
}

func (t *txn) Get(ctx context.Context, key storage.Key) ([]byte, bool, error) {
	var value []byte
	err := t.q.QueryRowContext(ctx,
		"SELECT value FROM slots WHERE key = ? AND expires_at > ?",
		key.String(), t.store.now().UnixNano(),
	).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get slot %s: %w", key, err)
	}
	return value, true, nil
}

func (t *txn) Set(ctx context.Context, key storage.Key, value []byte) error {
	if t.readOnly {
		return storage.ErrReadOnly
	}
	now := t.store.now()
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO slots (key, kind, value, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
		     value = excluded.value,
		     expires_at = CASE WHEN slots.expires_at > ? THEN slots.expires_at ELSE excluded.expires_at END`,
		key.String(), int(key.Kind), value, now.Add(t.store.minRetention).UnixNano(), now.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to set slot %s: %w", key, err)
	}
	return nil
}

func (t *txn) InsertIfAbsent(ctx context.Context, key storage.Key, value []byte) (bool, error) {
	if t.readOnly {
		return false, storage.ErrReadOnly
	}
	now := t.store.now()
	// The upsert only overwrites an expired row, so zero affected rows means
	// a live slot already exists.
	res, err := t.q.ExecContext(ctx,
		`INSERT INTO slots (key, kind, value, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
		     value = excluded.value,
		     expires_at = excluded.expires_at
		 WHERE slots.expires_at <= ?`,
		key.String(), int(key.Kind), value, now.Add(t.store.minRetention).UnixNano(), now.UnixNano(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert slot %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to count inserted slot %s: %w", key, err)
	}
	return n > 0, nil
}

func (t *txn) ExtendRetention(ctx context.Context, key storage.Key, threshold, extendTo time.Duration) error {
	if t.readOnly {
		return storage.ErrReadOnly
	}
	now := t.store.now().UnixNano()
	_, err := t.q.ExecContext(ctx,
		`UPDATE slots SET expires_at = ?
		 WHERE key = ? AND expires_at > ? AND expires_at - ? < ?`,
		now+int64(extendTo), key.String(), now, now, int64(threshold),
	)
	if err != nil {
		return fmt.Errorf("failed to extend retention of %s: %w", key, err)
	}
	return nil
}
