// Package memory provides an in-process implementation of storage.Store.
// It is used by tests and by `settlex serve --store memory`.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/mmynk/settlex/internal/storage"
)

// Ensure Store implements storage.Store and storage.Purger
var (
	_ storage.Store  = (*Store)(nil)
	_ storage.Purger = (*Store)(nil)
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Store keeps slots in a map. One transaction runs at a time.
type Store struct {
	mu           sync.Mutex
	data         map[string]entry
	now          func() time.Time
	minRetention time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for expiration.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithMinRetention sets the lifetime of newly created slots.
func WithMinRetention(d time.Duration) Option {
	return func(s *Store) { s.minRetention = d }
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		data:         make(map[string]entry),
		now:          time.Now,
		minRetention: storage.DefaultMinRetention,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Update runs fn with staged writes that are applied only if fn succeeds.
func (s *Store) Update(ctx context.Context, fn func(tx storage.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &tx{store: s, staged: make(map[string]entry)}
	if err := fn(t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for k, e := range t.staged {
		s.data[k] = e
	}
	return nil
}

// View runs fn against the committed state.
func (s *Store) View(ctx context.Context, fn func(tx storage.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return fn(&tx{store: s, readOnly: true})
}

// Purge removes expired slots.
func (s *Store) Purge(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var n int64
	for k, e := range s.data {
		if !now.Before(e.expiresAt) {
			delete(s.data, k)
			n++
		}
	}
	return n, nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

// ExpiresAt returns the expiration of a live slot.
func (s *Store) ExpiresAt(key storage.Key) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[key.String()]
	if !ok || !s.now().Before(e.expiresAt) {
		return time.Time{}, false
	}
	return e.expiresAt, true
}

type tx struct {
	store    *Store
	staged   map[string]entry
	readOnly bool
}

// lookup returns the live entry for k, preferring staged writes.
func (t *tx) lookup(k string) (entry, bool) {
	e, ok := t.staged[k]
	if !ok {
		e, ok = t.store.data[k]
	}
	if !ok || !t.store.now().Before(e.expiresAt) {
		return entry{}, false
	}
	return e, true
}

func (t *tx) Has(ctx context.Context, key storage.Key) (bool, error) {
	_, ok := t.lookup(key.String())
	return ok, nil
}

func (t *tx) Get(ctx context.Context, key storage.Key) ([]byte, bool, error) {
	e, ok := t.lookup(key.String())
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true, nil
}

func (t *tx) Set(ctx context.Context, key storage.Key, value []byte) error {
	if t.readOnly {
		return storage.ErrReadOnly
	}
	k := key.String()
	e, ok := t.lookup(k)
	if !ok {
		e.expiresAt = t.store.now().Add(t.store.minRetention)
	}
	e.value = append([]byte(nil), value...)
	t.staged[k] = e
	return nil
}

func (t *tx) InsertIfAbsent(ctx context.Context, key storage.Key, value []byte) (bool, error) {
	if t.readOnly {
		return false, storage.ErrReadOnly
	}
	if _, ok := t.lookup(key.String()); ok {
		return false, nil
	}
	return true, t.Set(ctx, key, value)
}

func (t *tx) ExtendRetention(ctx context.Context, key storage.Key, threshold, extendTo time.Duration) error {
	if t.readOnly {
		return storage.ErrReadOnly
	}
	k := key.String()
	e, ok := t.lookup(k)
	if !ok {
		return nil
	}
	now := t.store.now()
	if e.expiresAt.Sub(now) < threshold {
		e.expiresAt = now.Add(extendTo)
		t.staged[k] = e
	}
	return nil
}
