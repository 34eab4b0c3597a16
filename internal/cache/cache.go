// Package cache provides a single-slot, time-bounded cache for payloads
// fetched from external services.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultTTL is how long a cached payload stays valid
const DefaultTTL = time.Hour

// ErrNotFound is returned by a Store that holds no entry
var ErrNotFound = errors.New("cache: entry not found")

// Store persists the encoded cache entry
type Store interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
}

// Observer is notified of every lookup
type Observer interface {
	CacheHit()
	CacheMiss()
}

type entry[T any] struct {
	Timestamp time.Time `json:"timestamp"`
	Payload   T         `json:"payload"`
}

// Cache holds at most one payload together with the time it was stored
type Cache[T any] struct {
	mu     sync.Mutex
	store  Store
	ttl    time.Duration
	now    func() time.Time
	obs    Observer
	logger *slog.Logger
}

// Option configures a Cache
type Option func(*settings)

type settings struct {
	ttl    time.Duration
	now    func() time.Time
	obs    Observer
	logger *slog.Logger
}

// WithTTL sets the validity window
func WithTTL(ttl time.Duration) Option {
	return func(s *settings) { s.ttl = ttl }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

// WithObserver reports hits and misses to obs
func WithObserver(obs Observer) Option {
	return func(s *settings) { s.obs = obs }
}

// WithLogger sets the logger used for degraded reads and failed writes
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// New creates a cache over store
func New[T any](store Store, opts ...Option) *Cache[T] {
	s := settings{ttl: DefaultTTL, now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(&s)
	}
	if s.ttl <= 0 {
		s.ttl = DefaultTTL
	}
	return &Cache[T]{store: store, ttl: s.ttl, now: s.now, obs: s.obs, logger: s.logger}
}

// TTL returns the validity window
func (c *Cache[T]) TTL() time.Duration {
	return c.ttl
}

// Get returns the payload if it was stored less than TTL ago. A missing,
// unreadable or corrupt entry is reported as a miss. Stale entries are not
// removed; the next Put overwrites them.
func (c *Cache[T]) Get(ctx context.Context) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	payload, ok := c.get(ctx)
	if c.obs != nil {
		if ok {
			c.obs.CacheHit()
		} else {
			c.obs.CacheMiss()
		}
	}
	return payload, ok
}

func (c *Cache[T]) get(ctx context.Context) (T, bool) {
	var zero T

	data, err := c.store.Load(ctx)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			c.logger.Warn("cache_load_failed", "error", err)
		}
		return zero, false
	}

	var e entry[T]
	if err := json.Unmarshal(data, &e); err != nil {
		c.logger.Warn("cache_entry_corrupt", "error", err)
		return zero, false
	}
	if e.Timestamp.IsZero() {
		c.logger.Warn("cache_entry_corrupt", "error", "missing timestamp")
		return zero, false
	}

	if c.now().Sub(e.Timestamp) >= c.ttl {
		return zero, false
	}
	return e.Payload, true
}

// Put stores payload, replacing any previous entry
func (c *Cache[T]) Put(ctx context.Context, payload T) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.Marshal(entry[T]{Timestamp: c.now(), Payload: payload})
	if err != nil {
		return err
	}
	return c.store.Save(ctx, data)
}

// FetchWithCache returns the cached payload when valid. Otherwise it
// calls fetch; a successful result is cached and returned, a failure is
// logged and fallback is returned without touching the cache.
func (c *Cache[T]) FetchWithCache(ctx context.Context, fetch func(context.Context) (T, error), fallback T) T {
	if payload, ok := c.Get(ctx); ok {
		return payload
	}

	payload, err := fetch(ctx)
	if err != nil {
		c.logger.Warn("cache_fetch_failed", "error", err)
		return fallback
	}

	if err := c.Put(ctx, payload); err != nil {
		c.logger.Warn("cache_store_failed", "error", err)
	}
	return payload
}
