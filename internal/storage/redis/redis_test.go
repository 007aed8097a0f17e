package redis

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/settlex/internal/storage"
	"github.com/mmynk/settlex/internal/storage/storagetest"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	s := NewWithClient(client)
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func TestRedisStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storagetest.Harness {
		s, mr := newTestStore(t)
		return storagetest.Harness{
			Store:   s,
			Advance: mr.FastForward,
		}
	})
}

func TestNewParsesURL(t *testing.T) {
	mr := miniredis.RunT(t)

	s, err := New(context.Background(), "redis://"+mr.Addr()+"/0", WithPrefix("test:"))
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Update(ctx, func(tx storage.Tx) error {
		return tx.Set(ctx, storage.TripPayments("trip-1"), []byte("v"))
	}))
	assert.True(t, mr.Exists("test:trip_payments/trip-1"))
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := New(context.Background(), "not a url")
	assert.Error(t, err)
}

func TestConcurrentInsertIfAbsentClaimsOnce(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	key := storage.ExpensePaid("exp-1", "GMEMBER")

	const workers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var inserted bool
			err := s.Update(ctx, func(tx storage.Tx) error {
				var err error
				inserted, err = tx.InsertIfAbsent(ctx, key, []byte{1})
				return err
			})
			if err != nil {
				return
			}
			if inserted {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}
