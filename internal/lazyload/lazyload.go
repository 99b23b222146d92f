// Package lazyload caches expensive, read-only values (models, encoders)
// that are loaded on first use. Concurrent first uses of a key share one
// load, and every load is bounded by a timeout.
package lazyload

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrTimeout is returned when a load does not finish within the timeout.
var ErrTimeout = errors.New("load timed out")

// LoadFunc loads the value for key. The context carries the load timeout.
type LoadFunc[T any] func(ctx context.Context, key string) (T, error)

// Cache holds loaded values by key. Values are never replaced once loaded,
// only evicted.
type Cache[T any] struct {
	load    LoadFunc[T]
	release func(T)
	timeout time.Duration

	mu     sync.RWMutex
	values map[string]T
	gen    uint64
	group  singleflight.Group
}

// New creates a Cache. release, when set, is called for values that are
// evicted or that lost a race to an already installed value.
func New[T any](load LoadFunc[T], timeout time.Duration, release func(T)) *Cache[T] {
	return &Cache[T]{
		load:    load,
		release: release,
		timeout: timeout,
		values:  make(map[string]T),
	}
}

// Get returns the value for key, loading it if needed. A failed or timed-out
// load is not cached; the next Get tries again. ctx only bounds how long
// this caller waits, not the shared load.
func (c *Cache[T]) Get(ctx context.Context, key string) (T, error) {
	if v, ok := c.lookup(key); ok {
		return v, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		if v, ok := c.lookup(key); ok {
			return v, nil
		}
		return c.loadBounded(key)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			var zero T
			return zero, res.Err
		}
		return res.Val.(T), nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Evict drops key so the next Get reloads it. A load already in flight for
// key will not install its result.
func (c *Cache[T]) Evict(key string) {
	c.mu.Lock()
	v, ok := c.values[key]
	delete(c.values, key)
	c.gen++
	c.mu.Unlock()
	c.group.Forget(key)

	if ok && c.release != nil {
		c.release(v)
	}
}

// EvictAll drops every value.
func (c *Cache[T]) EvictAll() {
	c.mu.Lock()
	old := c.values
	c.values = make(map[string]T)
	c.gen++
	c.mu.Unlock()

	for key, v := range old {
		c.group.Forget(key)
		if c.release != nil {
			c.release(v)
		}
	}
}

// Peek returns the value for key without loading it.
func (c *Cache[T]) Peek(key string) (T, bool) {
	return c.lookup(key)
}

// Len reports how many values are loaded.
func (c *Cache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.values)
}

func (c *Cache[T]) lookup(key string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

type result[T any] struct {
	val T
	err error
}

func (c *Cache[T]) loadBounded(key string) (T, error) {
	c.mu.RLock()
	gen := c.gen
	c.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	done := make(chan result[T], 1)
	go func() {
		v, err := c.load(ctx, key)
		done <- result[T]{val: v, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			var zero T
			return zero, r.err
		}
		return c.install(key, gen, r.val), nil
	case <-ctx.Done():
		// A loader that ignores its context may still finish; keep the
		// result rather than paying for the load again.
		go func() {
			if r := <-done; r.err == nil {
				c.install(key, gen, r.val)
			}
		}()
		var zero T
		return zero, fmt.Errorf("%w after %s", ErrTimeout, c.timeout)
	}
}

// install stores v unless the key was evicted since the load started or a
// value is already present; the returned value is the one callers must use.
func (c *Cache[T]) install(key string, gen uint64, v T) T {
	c.mu.Lock()
	if existing, ok := c.values[key]; ok {
		c.mu.Unlock()
		c.discard(v)
		return existing
	}
	if gen != c.gen {
		c.mu.Unlock()
		return v
	}
	c.values[key] = v
	c.mu.Unlock()
	return v
}

func (c *Cache[T]) discard(v T) {
	if c.release != nil {
		c.release(v)
	}
}
