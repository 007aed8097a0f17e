package ledger

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/settlex/internal/models"
	"github.com/mmynk/settlex/internal/storage"
	"github.com/mmynk/settlex/internal/storage/memory"
	redisstore "github.com/mmynk/settlex/internal/storage/redis"
	"github.com/mmynk/settlex/internal/storage/sqlite"
)

const concurrentCallers = 16

// openAuth authorizes everyone and is safe for concurrent use.
type openAuth struct{}

func (openAuth) RequireAuthorization(context.Context, models.Principal) error { return nil }

func newRedisStore(t *testing.T, opts ...redisstore.Option) storage.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	s := redisstore.NewWithClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}), opts...)
	t.Cleanup(func() { s.Close() })
	return s
}

// backends returns a fresh store of every kind. The redis store may retry
// generously so that every contended write eventually lands.
func backends() map[string]func(t *testing.T) storage.Store {
	return map[string]func(t *testing.T) storage.Store{
		"memory": func(t *testing.T) storage.Store {
			return memory.New()
		},
		"sqlite": func(t *testing.T) storage.Store {
			s, err := sqlite.New(filepath.Join(t.TempDir(), "ledger.db"))
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
		"redis": func(t *testing.T) storage.Store {
			return newRedisStore(t, redisstore.WithMaxRetries(1000))
		},
	}
}

// recordConcurrently runs one RecordPayment per submission at the same time
// and returns the errors in submission order.
func recordConcurrently(l *Ledger, subs []models.PaymentSubmission) []error {
	errs := make([]error, len(subs))
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i, sub := range subs {
		wg.Add(1)
		go func(i int, sub models.PaymentSubmission) {
			defer wg.Done()
			<-start
			errs[i] = l.RecordPayment(context.Background(), sub)
		}(i, sub)
	}
	close(start)
	wg.Wait()
	return errs
}

func TestConcurrentMembersAllAppended(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			l := New(open(t), openAuth{})

			subs := make([]models.PaymentSubmission, concurrentCallers)
			for i := range subs {
				subs[i] = submission("trip-busy", "exp-1", models.Principal(fmt.Sprintf("GM%02d", i)), int64(i+1), "h")
			}
			for i, err := range recordConcurrently(l, subs) {
				require.NoError(t, err, "caller %d", i)
			}

			records, err := l.GetPayments(context.Background(), "trip-busy")
			require.NoError(t, err)
			require.Len(t, records, concurrentCallers)

			seen := make(map[models.Principal]bool)
			for i, r := range records {
				seen[r.Member] = true
				if i > 0 {
					assert.GreaterOrEqual(t, r.Timestamp, records[i-1].Timestamp, "timestamps follow history order")
				}
			}
			assert.Len(t, seen, concurrentCallers)
		})
	}
}

func TestConcurrentDuplicatesClaimOnce(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			l := New(open(t), openAuth{})

			subs := make([]models.PaymentSubmission, concurrentCallers)
			for i := range subs {
				subs[i] = submission("trip-dup", "exp-dup", member, int64(i+1), fmt.Sprintf("h%d", i))
			}

			succeeded := 0
			for i, err := range recordConcurrently(l, subs) {
				if err == nil {
					succeeded++
					continue
				}
				assert.ErrorIs(t, err, ErrAlreadyPaid, "caller %d", i)
			}
			assert.Equal(t, 1, succeeded)

			records, err := l.GetPayments(context.Background(), "trip-dup")
			require.NoError(t, err)
			assert.Len(t, records, 1)
		})
	}
}

func TestRedisContentionIsRetryable(t *testing.T) {
	// Few retries against many writers: some calls run out of attempts.
	l := New(newRedisStore(t, redisstore.WithMaxRetries(1)), openAuth{})

	subs := make([]models.PaymentSubmission, concurrentCallers)
	for i := range subs {
		subs[i] = submission("trip-hot", "exp-hot", models.Principal(fmt.Sprintf("GM%02d", i)), 1, "h")
	}

	succeeded := 0
	for i, err := range recordConcurrently(l, subs) {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, storage.ErrTxConflict), "caller %d: %v", i, err)
		assert.Equal(t, KindConflict, Kind(err))
	}

	records, err := l.GetPayments(context.Background(), "trip-hot")
	require.NoError(t, err)
	assert.Len(t, records, succeeded, "only successful calls leave a record")

	// A call that lost the race left no marker behind and can be resent.
	for i, sub := range subs {
		paid, err := l.IsPaid(context.Background(), sub.ExpenseID, sub.Member)
		require.NoError(t, err)
		if !paid {
			require.NoError(t, l.RecordPayment(context.Background(), sub), "resend %d", i)
		}
	}
	records, err = l.GetPayments(context.Background(), "trip-hot")
	require.NoError(t, err)
	assert.Len(t, records, concurrentCallers)
}
