// Package storagetest holds a conformance suite run against every
// storage.Store implementation.
package storagetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/settlex/internal/storage"
)

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a Clock starting at a fixed instant.
func NewClock() *Clock {
	return &Clock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Harness is a fresh store plus a way to move its notion of time forward.
// The store must use storage.DefaultMinRetention for new slots.
type Harness struct {
	Store   storage.Store
	Advance func(time.Duration)
}

const day = 24 * time.Hour

var errBoom = errors.New("boom")

// Run exercises the storage.Store contract.
func Run(t *testing.T, newHarness func(t *testing.T) Harness) {
	ctx := context.Background()
	key := storage.TripPayments("trip-1")
	marker := storage.ExpensePaid("exp-1", "GMEMBER")

	get := func(t *testing.T, s storage.Store, k storage.Key) ([]byte, bool) {
		t.Helper()
		var (
			val []byte
			ok  bool
		)
		err := s.View(ctx, func(tx storage.Tx) error {
			var err error
			val, ok, err = tx.Get(ctx, k)
			return err
		})
		require.NoError(t, err)
		return val, ok
	}

	set := func(t *testing.T, s storage.Store, k storage.Key, v string) {
		t.Helper()
		require.NoError(t, s.Update(ctx, func(tx storage.Tx) error {
			return tx.Set(ctx, k, []byte(v))
		}))
	}

	t.Run("absent key reads as missing", func(t *testing.T) {
		h := newHarness(t)
		_, ok := get(t, h.Store, key)
		assert.False(t, ok)

		err := h.Store.View(ctx, func(tx storage.Tx) error {
			has, err := tx.Has(ctx, marker)
			assert.False(t, has)
			return err
		})
		require.NoError(t, err)
	})

	t.Run("committed write is visible", func(t *testing.T) {
		h := newHarness(t)
		set(t, h.Store, key, "v1")

		val, ok := get(t, h.Store, key)
		require.True(t, ok)
		assert.Equal(t, "v1", string(val))
	})

	t.Run("set replaces the whole value", func(t *testing.T) {
		h := newHarness(t)
		set(t, h.Store, key, "first-and-longer")
		set(t, h.Store, key, "second")

		val, _ := get(t, h.Store, key)
		assert.Equal(t, "second", string(val))
	})

	t.Run("failed update leaves no trace", func(t *testing.T) {
		h := newHarness(t)
		err := h.Store.Update(ctx, func(tx storage.Tx) error {
			if err := tx.Set(ctx, key, []byte("v")); err != nil {
				return err
			}
			if _, err := tx.InsertIfAbsent(ctx, marker, []byte{1}); err != nil {
				return err
			}
			return errBoom
		})
		require.ErrorIs(t, err, errBoom)

		_, ok := get(t, h.Store, key)
		assert.False(t, ok)
		_, ok = get(t, h.Store, marker)
		assert.False(t, ok)
	})

	t.Run("writes are visible inside the same transaction", func(t *testing.T) {
		h := newHarness(t)
		err := h.Store.Update(ctx, func(tx storage.Tx) error {
			if err := tx.Set(ctx, key, []byte("staged")); err != nil {
				return err
			}
			val, ok, err := tx.Get(ctx, key)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "staged", string(val))
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("insert if absent claims a slot once", func(t *testing.T) {
		h := newHarness(t)
		claim := func() bool {
			var inserted bool
			require.NoError(t, h.Store.Update(ctx, func(tx storage.Tx) error {
				var err error
				inserted, err = tx.InsertIfAbsent(ctx, marker, []byte{1})
				return err
			}))
			return inserted
		}
		assert.True(t, claim())
		assert.False(t, claim())

		require.NoError(t, h.Store.Update(ctx, func(tx storage.Tx) error {
			inserted, err := tx.InsertIfAbsent(ctx, storage.ExpensePaid("exp-2", "GMEMBER"), []byte{1})
			assert.True(t, inserted)
			if err != nil {
				return err
			}
			inserted, err = tx.InsertIfAbsent(ctx, storage.ExpensePaid("exp-2", "GMEMBER"), []byte{1})
			assert.False(t, inserted)
			return err
		}))
	})

	t.Run("expired slot reads as absent and can be recreated", func(t *testing.T) {
		h := newHarness(t)
		set(t, h.Store, key, "old")
		require.NoError(t, h.Store.Update(ctx, func(tx storage.Tx) error {
			_, err := tx.InsertIfAbsent(ctx, marker, []byte{1})
			return err
		}))

		h.Advance(storage.DefaultMinRetention + time.Minute)

		_, ok := get(t, h.Store, key)
		assert.False(t, ok)

		var inserted bool
		require.NoError(t, h.Store.Update(ctx, func(tx storage.Tx) error {
			var err error
			inserted, err = tx.InsertIfAbsent(ctx, marker, []byte{1})
			return err
		}))
		assert.True(t, inserted)
	})

	t.Run("extend retention keeps the slot alive", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.Store.Update(ctx, func(tx storage.Tx) error {
			if err := tx.Set(ctx, key, []byte("v")); err != nil {
				return err
			}
			return tx.ExtendRetention(ctx, key, 30*day, 365*day)
		}))

		h.Advance(200 * day)
		_, ok := get(t, h.Store, key)
		assert.True(t, ok, "slot should survive past its initial retention")

		// A rewrite keeps the extended expiration.
		set(t, h.Store, key, "v2")
		h.Advance(100 * day)
		val, ok := get(t, h.Store, key)
		assert.True(t, ok)
		assert.Equal(t, "v2", string(val))

		h.Advance(100 * day)
		_, ok = get(t, h.Store, key)
		assert.False(t, ok, "slot should expire once the extension lapses")
	})

	t.Run("extend retention above threshold is a no-op", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.Store.Update(ctx, func(tx storage.Tx) error {
			if err := tx.Set(ctx, key, []byte("v")); err != nil {
				return err
			}
			return tx.ExtendRetention(ctx, key, 30*day, 40*day)
		}))
		// 40 days remaining is above a 10 day threshold, so nothing changes.
		require.NoError(t, h.Store.Update(ctx, func(tx storage.Tx) error {
			return tx.ExtendRetention(ctx, key, 10*day, 365*day)
		}))

		h.Advance(41 * day)
		_, ok := get(t, h.Store, key)
		assert.False(t, ok)
	})

	t.Run("extend retention ignores absent keys", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.Store.Update(ctx, func(tx storage.Tx) error {
			return tx.ExtendRetention(ctx, key, 30*day, 365*day)
		}))
		_, ok := get(t, h.Store, key)
		assert.False(t, ok)
	})

	t.Run("view rejects writes", func(t *testing.T) {
		h := newHarness(t)
		err := h.Store.View(ctx, func(tx storage.Tx) error {
			return tx.Set(ctx, key, []byte("v"))
		})
		assert.ErrorIs(t, err, storage.ErrReadOnly)
	})
}
