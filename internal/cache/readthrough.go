package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dyike/CortexQuant/internal/metrics"
)

type entry[V any] struct {
	v   V
	exp time.Time
}

// ReadThrough is a TTL cache that fills misses from a loader. Concurrent
// misses on one key share a single load; failed loads are not stored.
type ReadThrough[V any] struct {
	name    string
	ttl     time.Duration
	mu      sync.RWMutex
	m       map[string]entry[V]
	group   singleflight.Group
	now     func() time.Time
	metrics *metrics.Recorder
}

func NewReadThrough[V any](name string, ttl time.Duration, rec *metrics.Recorder) *ReadThrough[V] {
	return &ReadThrough[V]{
		name:    name,
		ttl:     ttl,
		m:       make(map[string]entry[V]),
		now:     time.Now,
		metrics: rec,
	}
}

// Peek returns the cached value while its age is under the TTL. Expired
// entries are evicted.
func (c *ReadThrough[V]) Peek(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.m[key]
	c.mu.RUnlock()
	if !ok {
		var zero V
		return zero, false
	}
	if !c.now().Before(e.exp) {
		c.mu.Lock()
		if cur, ok := c.m[key]; ok && cur.exp.Equal(e.exp) {
			delete(c.m, key)
		}
		c.mu.Unlock()
		var zero V
		return zero, false
	}
	return e.v, true
}

func (c *ReadThrough[V]) set(key string, v V) {
	c.mu.Lock()
	c.m[key] = entry[V]{v: v, exp: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

// Get returns the fresh cached value for key or loads it. The load runs
// detached from any single caller's cancellation, since other callers may
// be waiting on it; each caller still returns early when its own ctx ends.
func (c *ReadThrough[V]) Get(ctx context.Context, key string, load func(context.Context) (V, error)) (V, error) {
	if v, ok := c.Peek(key); ok {
		c.metrics.RecordCacheLookup(c.name, "hit")
		return v, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		// A load that finished between Peek and DoChan has already filled the slot.
		if v, ok := c.Peek(key); ok {
			return v, nil
		}
		c.metrics.RecordCacheLookup(c.name, "miss")
		v, err := load(context.WithoutCancel(ctx))
		if err != nil {
			return v, err
		}
		c.set(key, v)
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			c.metrics.RecordCacheLookup(c.name, "shared")
		}
		if res.Err != nil {
			var zero V
			return zero, res.Err
		}
		return res.Val.(V), nil
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// Len reports the number of stored entries, fresh or not.
func (c *ReadThrough[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}
