package lazyload_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Manonp59/prbmg/internal/lazyload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counter struct {
	calls atomic.Int32
}

func (c *counter) load(delay time.Duration, err error) lazyload.LoadFunc[string] {
	return func(ctx context.Context, key string) (string, error) {
		n := c.calls.Add(1)
		time.Sleep(delay)
		if err != nil {
			return "", err
		}
		return key + "#" + string(rune('0'+n)), nil
	}
}

func TestGet_LoadsOnce(t *testing.T) {
	var c counter
	cache := lazyload.New(c.load(0, nil), time.Second, nil)
	ctx := context.Background()

	v1, err := cache.Get(ctx, "a")
	require.NoError(t, err)
	v2, err := cache.Get(ctx, "a")
	require.NoError(t, err)

	assert.Equal(t, "a#1", v1)
	assert.Equal(t, v1, v2)
	assert.Equal(t, int32(1), c.calls.Load())
	assert.Equal(t, 1, cache.Len())
}

func TestGet_ConcurrentFirstUseSharesLoad(t *testing.T) {
	var c counter
	cache := lazyload.New(c.load(100*time.Millisecond, nil), time.Second, nil)

	var wg sync.WaitGroup
	got := make([]string, 20)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := cache.Get(context.Background(), "model")
			assert.NoError(t, err)
			got[i] = v
		}(i)
	}
	wg.Wait()

	for _, v := range got {
		assert.Equal(t, "model#1", v)
	}
	assert.Equal(t, int32(1), c.calls.Load())
}

func TestGet_KeysAreIndependent(t *testing.T) {
	var c counter
	cache := lazyload.New(c.load(0, nil), time.Second, nil)

	a, err := cache.Get(context.Background(), "a")
	require.NoError(t, err)
	b, err := cache.Get(context.Background(), "b")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, cache.Len())
}

func TestGet_FailureIsRetried(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	cache := lazyload.New(func(ctx context.Context, key string) (string, error) {
		if fail.Load() {
			return "", errors.New("artifact missing")
		}
		return "ok", nil
	}, time.Second, nil)

	_, err := cache.Get(context.Background(), "a")
	require.EqualError(t, err, "artifact missing")
	assert.Equal(t, 0, cache.Len())

	fail.Store(false)
	v, err := cache.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestGet_Timeout(t *testing.T) {
	cache := lazyload.New(func(ctx context.Context, key string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}, 50*time.Millisecond, nil)

	start := time.Now()
	_, err := cache.Get(context.Background(), "slow")
	assert.ErrorIs(t, err, lazyload.ErrTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestGet_LateResultIsKept(t *testing.T) {
	var c counter
	cache := lazyload.New(c.load(150*time.Millisecond, nil), 50*time.Millisecond, nil)

	_, err := cache.Get(context.Background(), "slow")
	require.ErrorIs(t, err, lazyload.ErrTimeout)

	assert.Eventually(t, func() bool { return cache.Len() == 1 }, time.Second, 10*time.Millisecond)

	v, err := cache.Get(context.Background(), "slow")
	require.NoError(t, err)
	assert.Equal(t, "slow#1", v)
	assert.Equal(t, int32(1), c.calls.Load())
}

func TestGet_CallerContextCancelled(t *testing.T) {
	var c counter
	cache := lazyload.New(c.load(200*time.Millisecond, nil), time.Second, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := cache.Get(ctx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The shared load still completes for later callers.
	v, err := cache.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "a#1", v)
}

func TestEvict(t *testing.T) {
	var c counter
	var released []string
	var mu sync.Mutex
	cache := lazyload.New(c.load(0, nil), time.Second, func(v string) {
		mu.Lock()
		released = append(released, v)
		mu.Unlock()
	})
	ctx := context.Background()

	_, err := cache.Get(ctx, "a")
	require.NoError(t, err)
	_, err = cache.Get(ctx, "b")
	require.NoError(t, err)

	cache.Evict("a")
	v, err := cache.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "a#3", v)

	cache.EvictAll()
	assert.Equal(t, 0, cache.Len())

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"a#1", "b#2", "a#3"}, released)
}

func TestPeek(t *testing.T) {
	var c counter
	cache := lazyload.New(c.load(0, nil), time.Second, nil)

	_, ok := cache.Peek("a")
	assert.False(t, ok)
	assert.Equal(t, int32(0), c.calls.Load())

	_, err := cache.Get(context.Background(), "a")
	require.NoError(t, err)

	v, ok := cache.Peek("a")
	assert.True(t, ok)
	assert.Equal(t, "a#1", v)
}
