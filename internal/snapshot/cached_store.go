package snapshot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/wonny/optionsdash/internal/contracts"
	"github.com/wonny/optionsdash/pkg/logger"
	"github.com/wonny/optionsdash/pkg/redis"
)

// CachedStore wraps a Store with a TTL cache.
// Concurrent loads of one key collapse into a single backend read.
// Snapshots are immutable so entries are only ever expired, except latest/dates on save.
type CachedStore struct {
	inner  Store
	ttl    time.Duration
	now    func() time.Time
	l2     *redis.Cache
	logger *logger.Logger

	mu      sync.RWMutex
	entries map[string]cacheEntry
	group   singleflight.Group
}

type cacheEntry struct {
	value   interface{}
	expires time.Time
}

// CacheOption configures a CachedStore
type CacheOption func(*CachedStore)

// WithClock injects the time source used for expiry
func WithClock(now func() time.Time) CacheOption {
	return func(c *CachedStore) { c.now = now }
}

// WithRedis adds a shared second-level cache for immutable entries
func WithRedis(cache *redis.Cache) CacheOption {
	return func(c *CachedStore) { c.l2 = cache }
}

// NewCachedStore creates a caching wrapper around inner
func NewCachedStore(inner Store, ttl time.Duration, log *logger.Logger, opts ...CacheOption) *CachedStore {
	if ttl <= 0 {
		ttl = time.Minute
	}
	c := &CachedStore{
		inner:   inner,
		ttl:     ttl,
		now:     time.Now,
		logger:  log.Module("snapshot_cache"),
		entries: make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CachedStore) lookup(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || !c.now().Before(e.expires) {
		return nil, false
	}
	return e.value, true
}

func (c *CachedStore) store(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{value: value, expires: c.now().Add(c.ttl)}
}

// load returns a cached value or runs fn once for all concurrent callers of key. Errors are never cached.
func (c *CachedStore) load(key string, fn func() (interface{}, error)) (interface{}, error) {
	if v, ok := c.lookup(key); ok {
		return v, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if v, ok := c.lookup(key); ok {
			return v, nil
		}
		v, err := fn()
		if err != nil {
			return nil, err
		}
		c.store(key, v)
		return v, nil
	})
	return v, err
}

// GetSnapshot implements Store
func (c *CachedStore) GetSnapshot(ctx context.Context, symbol string, date time.Time) (*contracts.Snapshot, error) {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	dateKey := contracts.Day(date).Format(contracts.DateLayout)
	l2Key := redis.SnapshotKey(sym, dateKey)

	v, err := c.load("snap:"+sym+":"+dateKey, func() (interface{}, error) {
		var cached contracts.Snapshot
		if found, err := c.l2.Get(ctx, l2Key, &cached); err == nil && found {
			if Validate(&cached) == nil {
				return &cached, nil
			}
		} else if err != nil {
			c.logger.WithError(err).Warn("Redis snapshot lookup failed")
		}

		snap, err := c.inner.GetSnapshot(ctx, sym, date)
		if err != nil {
			return nil, err
		}
		if err := c.l2.Set(ctx, l2Key, snap, redis.TTLDaily); err != nil {
			c.logger.WithError(err).Warn("Redis snapshot store failed")
		}
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*contracts.Snapshot), nil
}

// LatestSnapshot implements Store
func (c *CachedStore) LatestSnapshot(ctx context.Context, symbol string) (*contracts.Snapshot, error) {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}

	v, err := c.load("latest:"+sym, func() (interface{}, error) {
		return c.inner.LatestSnapshot(ctx, sym)
	})
	if err != nil {
		return nil, err
	}
	return v.(*contracts.Snapshot), nil
}

// Range implements Store
func (c *CachedStore) Range(ctx context.Context, symbol string, start, end time.Time) ([]*contracts.Snapshot, error) {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("range:%s:%s:%s", sym,
		contracts.Day(start).Format(contracts.DateLayout), contracts.Day(end).Format(contracts.DateLayout))

	v, err := c.load(key, func() (interface{}, error) {
		return c.inner.Range(ctx, sym, start, end)
	})
	if err != nil {
		return nil, err
	}
	return v.([]*contracts.Snapshot), nil
}

// UnusualActivity implements Store
func (c *CachedStore) UnusualActivity(ctx context.Context, symbol string, date time.Time) ([]contracts.UnusualActivityRecord, error) {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	dateKey := contracts.Day(date).Format(contracts.DateLayout)
	l2Key := redis.UnusualKey(sym, dateKey)

	v, err := c.load("unusual:"+sym+":"+dateKey, func() (interface{}, error) {
		var cached []contracts.UnusualActivityRecord
		if found, err := c.l2.Get(ctx, l2Key, &cached); err == nil && found {
			return cached, nil
		}

		records, err := c.inner.UnusualActivity(ctx, sym, date)
		if err != nil {
			return nil, err
		}
		if err := c.l2.Set(ctx, l2Key, records, redis.TTLDaily); err != nil {
			c.logger.WithError(err).Warn("Redis unusual activity store failed")
		}
		return records, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]contracts.UnusualActivityRecord), nil
}

// AvailableDates implements Store
func (c *CachedStore) AvailableDates(ctx context.Context, symbol string) ([]time.Time, error) {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}

	v, err := c.load("dates:"+sym, func() (interface{}, error) {
		return c.inner.AvailableDates(ctx, sym)
	})
	if err != nil {
		return nil, err
	}
	return v.([]time.Time), nil
}

// SaveSnapshot delegates to the wrapped store when it is writable
func (c *CachedStore) SaveSnapshot(ctx context.Context, snap *contracts.Snapshot) error {
	w, ok := c.inner.(Writer)
	if !ok {
		return fmt.Errorf("snapshot store %T is read-only", c.inner)
	}
	if err := w.SaveSnapshot(ctx, snap); err != nil {
		return err
	}

	sym, _ := NormalizeSymbol(snap.Symbol)
	c.mu.Lock()
	delete(c.entries, "latest:"+sym)
	delete(c.entries, "dates:"+sym)
	for key := range c.entries {
		if strings.HasPrefix(key, "range:"+sym+":") {
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()
	return nil
}

// Prune drops expired entries and returns how many were removed
func (c *CachedStore) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of cached entries, expired ones included
func (c *CachedStore) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
