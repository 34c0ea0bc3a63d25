// Package redis implements the object store on Redis, guarded by a circuit
// breaker so a Redis outage never stalls the trading loop.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"phasetrader/internal/model"
	"phasetrader/internal/store"
)

const (
	defaultMaxFailures  = 5
	defaultResetTimeout = 10 * time.Second
	defaultMaxPending   = 1000
)

// KVConfig configures the Redis object store.
type KVConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
	Prefix   string // prepended to every key, e.g. "phasetrader:"
}

// client is the subset of the go-redis API the KV uses.
type client interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.StatusCmd
	Exists(ctx context.Context, keys ...string) *goredis.IntCmd
	Ping(ctx context.Context) *goredis.StatusCmd
	Close() error
}

// KV is a model.ObjectStore on Redis strings.
//
// While the circuit is open, saves are buffered in memory (last write per
// key wins) and flushed after the next successful call. Reads of buffered
// keys are answered from the buffer.
type KV struct {
	client client
	prefix string
	cb     *CircuitBreaker

	mu         sync.Mutex
	pending    map[string]string
	maxPending int

	// Callbacks (optional)
	OnBuffer func(key string)
	OnFlush  func(count int)
}

var _ model.ObjectStore = (*KV)(nil)

// NewKV connects to Redis and pings the server.
func NewKV(cfg KVConfig) (*KV, error) {
	c := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		c.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis-kv] connected to %s (prefix %q)", cfg.Addr, cfg.Prefix)
	return newKV(c, cfg.Prefix, NewCircuitBreaker(defaultMaxFailures, defaultResetTimeout)), nil
}

func newKV(c client, prefix string, cb *CircuitBreaker) *KV {
	cb.IsFailure = func(err error) bool { return !errors.Is(err, goredis.Nil) }
	return &KV{
		client:     c,
		prefix:     prefix,
		cb:         cb,
		pending:    make(map[string]string),
		maxPending: defaultMaxPending,
	}
}

// Breaker exposes the circuit breaker for health reporting.
func (k *KV) Breaker() *CircuitBreaker { return k.cb }

func (k *KV) ContainsKey(ctx context.Context, key string) (bool, error) {
	if _, ok := k.buffered(key); ok {
		return true, nil
	}
	var n int64
	err := k.do(ctx, func() error {
		var err error
		n, err = k.client.Exists(ctx, k.prefix+key).Result()
		return err
	})
	if err != nil {
		return false, fmt.Errorf("redis exists %s: %w", key, err)
	}
	return n > 0, nil
}

func (k *KV) Read(ctx context.Context, key string) (string, error) {
	if v, ok := k.buffered(key); ok {
		return v, nil
	}
	var v string
	err := k.do(ctx, func() error {
		var err error
		v, err = k.client.Get(ctx, k.prefix+key).Result()
		return err
	})
	if errors.Is(err, goredis.Nil) {
		return "", fmt.Errorf("redis %s: %w", key, store.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, nil
}

// Save writes key without expiry. If the circuit is open the write is
// buffered and nil is returned.
// A buffered value for the same key is superseded, so a flush triggered by
// this call cannot write it over value.
func (k *KV) Save(ctx context.Context, key, value string) error {
	k.mu.Lock()
	older, hadOlder := k.pending[key]
	delete(k.pending, key)
	k.mu.Unlock()

	err := k.do(ctx, func() error {
		return k.client.Set(ctx, k.prefix+key, value, 0).Err()
	})
	if errors.Is(err, ErrCircuitOpen) {
		return k.buffer(key, value)
	}
	if err != nil {
		if hadOlder {
			k.mu.Lock()
			if _, newer := k.pending[key]; !newer {
				k.pending[key] = older
			}
			k.mu.Unlock()
		}
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Pending returns the number of buffered saves.
func (k *KV) Pending() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.pending)
}

// Ping checks the server through the breaker.
func (k *KV) Ping(ctx context.Context) error {
	return k.do(ctx, func() error { return k.client.Ping(ctx).Err() })
}

// Close releases the client. Buffered saves that were never flushed are lost.
func (k *KV) Close() error {
	if n := k.Pending(); n > 0 {
		log.Printf("[redis-kv] closing with %d unflushed saves", n)
	}
	return k.client.Close()
}

// do runs fn through the breaker and flushes buffered saves after a success.
func (k *KV) do(ctx context.Context, fn func() error) error {
	err := k.cb.Execute(fn)
	if err == nil || errors.Is(err, goredis.Nil) {
		k.flush(ctx)
	}
	return err
}

func (k *KV) buffered(key string) (string, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	v, ok := k.pending[key]
	return v, ok
}

func (k *KV) buffer(key, value string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.pending[key]; !ok && len(k.pending) >= k.maxPending {
		return fmt.Errorf("redis set %s: buffer full: %w", key, ErrCircuitOpen)
	}
	k.pending[key] = value
	if k.OnBuffer != nil {
		k.OnBuffer(key)
	}
	log.Printf("[redis-kv] circuit open, buffered save of %s", key)
	return nil
}

func (k *KV) flush(ctx context.Context) {
	k.mu.Lock()
	if len(k.pending) == 0 {
		k.mu.Unlock()
		return
	}
	batch := k.pending
	k.pending = make(map[string]string)
	k.mu.Unlock()

	flushed := 0
	for key, value := range batch {
		if err := k.client.Set(ctx, k.prefix+key, value, 0).Err(); err != nil {
			log.Printf("[redis-kv] flush of %s failed: %v", key, err)
			k.mu.Lock()
			if _, newer := k.pending[key]; !newer {
				k.pending[key] = value
			}
			k.mu.Unlock()
			continue
		}
		flushed++
	}
	if flushed > 0 {
		log.Printf("[redis-kv] flushed %d buffered saves", flushed)
		if k.OnFlush != nil {
			k.OnFlush(flushed)
		}
	}
}
