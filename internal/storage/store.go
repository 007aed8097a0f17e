// Package storage provides abstractions for the durable key-value store
// backing the payment ledger.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrTxConflict is returned when a transaction lost a race with a concurrent
// writer and could not be retried.
var ErrTxConflict = errors.New("transaction conflict")

// DefaultMinRetention is how long a newly created slot lives before it
// becomes eligible for expiration, unless its retention is extended.
const DefaultMinRetention = 24 * time.Hour

// Tx is a view of the store inside a single transaction.
// Expired slots are indistinguishable from absent ones.
type Tx interface {
	// Has reports whether a live slot exists for key.
	Has(ctx context.Context, key Key) (bool, error)

	// Get returns the value stored at key and whether it was present.
	Get(ctx context.Context, key Key) ([]byte, bool, error)

	// Set replaces the value at key wholesale. A new slot starts with the
	// store's minimum retention; an existing slot keeps its expiration.
	Set(ctx context.Context, key Key, value []byte) error

	// InsertIfAbsent stores value at key only if no live slot exists.
	// It reports whether the insert happened.
	InsertIfAbsent(ctx context.Context, key Key, value []byte) (bool, error)

	// ExtendRetention pushes the slot's expiration out to extendTo from now
	// when its remaining lifetime is below threshold. Absent keys are ignored.
	ExtendRetention(ctx context.Context, key Key, threshold, extendTo time.Duration) error
}

// Store defines the transactional key-value operations the ledger needs.
// This abstraction allows swapping storage backends (memory, SQLite, Redis)
// without changing the ledger.
type Store interface {
	// Update runs fn in a serializable read-write transaction. If fn returns
	// an error nothing it wrote becomes visible.
	Update(ctx context.Context, fn func(tx Tx) error) error

	// View runs fn in a read-only transaction. Writes through tx fail.
	View(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any resources held by the store.
	Close() error
}

// Purger is implemented by stores that need explicit removal of expired
// slots. Stores with native expiration do not implement it.
type Purger interface {
	// Purge deletes expired slots and returns how many were removed.
	Purge(ctx context.Context) (int64, error)
}

// ErrReadOnly is returned by writes attempted inside View.
var ErrReadOnly = errors.New("write in read-only transaction")
