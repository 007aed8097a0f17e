// Package redis provides a Redis-backed implementation of storage.Store.
//
// Slot retention maps onto native key TTLs, so no purging is needed.
// Transactions are optimistic: every key touched is WATCHed and all writes
// are applied in one MULTI/EXEC. A transaction that loses a race is retried.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	goredis "github.com/redis/go-redis/v9"

	"github.com/mmynk/settlex/internal/storage"
)

// Ensure RedisStore implements storage.Store
var _ storage.Store = (*RedisStore)(nil)

const (
	defaultMaxRetries = 10

	retryInitialInterval = 5 * time.Millisecond
	retryMaxInterval     = 250 * time.Millisecond
)

// RedisStore implements storage.Store using Redis.
type RedisStore struct {
	client       *goredis.Client
	prefix       string
	minRetention time.Duration
	maxRetries   int
}

// Option configures a RedisStore.
type Option func(*RedisStore)

// WithPrefix namespaces every key written by the store.
func WithPrefix(prefix string) Option {
	return func(s *RedisStore) { s.prefix = prefix }
}

// WithMinRetention sets the TTL of newly created slots.
func WithMinRetention(d time.Duration) Option {
	return func(s *RedisStore) { s.minRetention = d }
}

// WithMaxRetries bounds how often a conflicting transaction is retried.
func WithMaxRetries(n int) Option {
	return func(s *RedisStore) { s.maxRetries = n }
}

// New connects to the Redis server at redisURL (redis://host:port/db).
func New(ctx context.Context, redisURL string, opts ...Option) (*RedisStore, error) {
	options, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := goredis.NewClient(options)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewWithClient(client, opts...), nil
}

// NewWithClient wraps an existing client. The store takes ownership of it.
func NewWithClient(client *goredis.Client, opts ...Option) *RedisStore {
	s := &RedisStore{
		client:       client,
		prefix:       "settlex:",
		minRetention: storage.DefaultMinRetention,
		maxRetries:   defaultMaxRetries,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Update runs fn under WATCH and commits its writes with MULTI/EXEC. A
// transaction aborted by a concurrent write is rerun after a jittered
// exponential backoff, at most maxRetries times, before ErrTxConflict.
func (s *RedisStore) Update(ctx context.Context, fn func(tx storage.Tx) error) error {
	attempt := func() error {
		err := s.client.Watch(ctx, func(rtx *goredis.Tx) error {
			t := &txn{store: s, r: rtx, watcher: rtx, staged: make(map[string]*pending)}
			if err := fn(t); err != nil {
				return err
			}
			return t.commit(ctx, rtx)
		})
		if err != nil && !errors.Is(err, goredis.TxFailedErr) {
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.Retry(attempt, backoff.WithContext(s.newBackOff(), ctx))
	if errors.Is(err, goredis.TxFailedErr) {
		return fmt.Errorf("%w after %d retries", storage.ErrTxConflict, s.maxRetries)
	}
	return err
}

func (s *RedisStore) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitialInterval
	b.MaxInterval = retryMaxInterval
	b.MaxElapsedTime = 0
	return backoff.WithMaxRetries(b, uint64(s.maxRetries))
}

// View runs fn with direct reads and no WATCH.
func (s *RedisStore) View(ctx context.Context, fn func(tx storage.Tx) error) error {
	return fn(&txn{store: s, r: s.client, readOnly: true})
}

func (s *RedisStore) key(k storage.Key) string {
	return s.prefix + k.String()
}

// reader is satisfied by both *goredis.Client and *goredis.Tx.
type reader interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	PTTL(ctx context.Context, key string) *goredis.DurationCmd
}

// pending is a staged write. A zero ttl keeps the key's current TTL.
type pending struct {
	value    []byte
	hasValue bool
	ttl      time.Duration
}

type txn struct {
	store    *RedisStore
	r        reader
	watcher  *goredis.Tx
	readOnly bool
	staged   map[string]*pending
	watched  map[string]bool
}

func (t *txn) watch(ctx context.Context, k string) error {
	if t.watcher == nil || t.watched[k] {
		return nil
	}
	if t.watched == nil {
		t.watched = make(map[string]bool)
	}
	if err := t.watcher.Watch(ctx, k).Err(); err != nil {
		return fmt.Errorf("failed to watch %s: %w", k, err)
	}
	t.watched[k] = true
	return nil
}

// lookup returns the live value of k and its remaining TTL (negative when the
// key never expires).
func (t *txn) lookup(ctx context.Context, k string) ([]byte, time.Duration, bool, error) {
	if err := t.watch(ctx, k); err != nil {
		return nil, 0, false, err
	}

	p := t.staged[k]
	if p != nil && p.hasValue && p.ttl > 0 {
		return p.value, p.ttl, true, nil
	}

	value, err := t.r.Get(ctx, k).Bytes()
	if errors.Is(err, goredis.Nil) {
		if p != nil && p.hasValue {
			return p.value, p.ttl, true, nil
		}
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to get %s: %w", k, err)
	}

	ttl, err := t.r.PTTL(ctx, k).Result()
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to read ttl of %s: %w", k, err)
	}
	if p != nil {
		if p.hasValue {
			value = p.value
		}
		if p.ttl > 0 {
			ttl = p.ttl
		}
	}
	return value, ttl, true, nil
}

func (t *txn) stage(k string) *pending {
	p, ok := t.staged[k]
	if !ok {
		p = &pending{}
		t.staged[k] = p
	}
	return p
}

func (t *txn) Has(ctx context.Context, key storage.Key) (bool, error) {
	_, _, ok, err := t.lookup(ctx, t.store.key(key))
	return ok, err
}

func (t *txn) Get(ctx context.Context, key storage.Key) ([]byte, bool, error) {
	value, _, ok, err := t.lookup(ctx, t.store.key(key))
	return value, ok, err
}

func (t *txn) Set(ctx context.Context, key storage.Key, value []byte) error {
	if t.readOnly {
		return storage.ErrReadOnly
	}
	k := t.store.key(key)
	_, _, ok, err := t.lookup(ctx, k)
	if err != nil {
		return err
	}
	p := t.stage(k)
	p.value = append([]byte(nil), value...)
	p.hasValue = true
	if !ok {
		p.ttl = t.store.minRetention
	}
	return nil
}

func (t *txn) InsertIfAbsent(ctx context.Context, key storage.Key, value []byte) (bool, error) {
	if t.readOnly {
		return false, storage.ErrReadOnly
	}
	_, _, ok, err := t.lookup(ctx, t.store.key(key))
	if err != nil || ok {
		return false, err
	}
	return true, t.Set(ctx, key, value)
}

func (t *txn) ExtendRetention(ctx context.Context, key storage.Key, threshold, extendTo time.Duration) error {
	if t.readOnly {
		return storage.ErrReadOnly
	}
	k := t.store.key(key)
	_, ttl, ok, err := t.lookup(ctx, k)
	if err != nil || !ok {
		return err
	}
	if ttl >= 0 && ttl < threshold {
		t.stage(k).ttl = extendTo
	}
	return nil
}

func (t *txn) commit(ctx context.Context, rtx *goredis.Tx) error {
	if len(t.staged) == 0 {
		return nil
	}
	_, err := rtx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for k, p := range t.staged {
			switch {
			case p.hasValue && p.ttl > 0:
				pipe.Set(ctx, k, p.value, p.ttl)
			case p.hasValue:
				pipe.Set(ctx, k, p.value, goredis.KeepTTL)
			case p.ttl > 0:
				pipe.PExpire(ctx, k, p.ttl)
			}
		}
		return nil
	})
	return err
}
