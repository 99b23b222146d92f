package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Manonp59/prbmg/internal/cache"
	"github.com/Manonp59/prbmg/internal/metrics"
	"github.com/Manonp59/prbmg/pkg/models"
	"golang.org/x/sync/singleflight"
)

// SharedCache is the subset of the Redis cache used to share resolutions
// between replicas.
type SharedCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeleteMatching(ctx context.Context, pattern string) (int, error)
}

// Registry caches resolutions for one epoch of ttl. Within an epoch a name
// always resolves to the same value; concurrent misses share a single
// backend query. Invalidate and InvalidateAll end the epoch early.
type Registry struct {
	backend Backend
	ttl     time.Duration
	shared  SharedCache
	metrics *metrics.Metrics
	now     func() time.Time

	mu      sync.RWMutex
	entries map[string]entry
	gen     uint64
	group   singleflight.Group
}

type entry struct {
	model   models.ResolvedModel
	expires time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithSharedCache adds a second cache level shared by all replicas.
func WithSharedCache(c SharedCache) Option {
	return func(r *Registry) { r.shared = c }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

func New(backend Backend, ttl time.Duration, opts ...Option) *Registry {
	r := &Registry{
		backend: backend,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the artifact of the best run recorded for name. Every
// failure wraps models.ErrConfiguration.
func (r *Registry) Resolve(ctx context.Context, name string) (models.ResolvedModel, error) {
	if !ValidName(name) {
		return models.ResolvedModel{}, fmt.Errorf("%w: invalid model name %q", models.ErrConfiguration, name)
	}

	if m, ok := r.cached(name); ok {
		r.metrics.RegistryLookup("hit")
		return m, nil
	}

	// The shared query must not fail for every waiter because the first
	// caller went away.
	detached := context.WithoutCancel(ctx)
	v, err, _ := r.group.Do(name, func() (any, error) {
		if m, ok := r.cached(name); ok {
			return m, nil
		}
		gen := r.generation()
		if m, ok := r.fromShared(detached, name); ok {
			r.metrics.RegistryLookup("shared")
			r.store(name, gen, m)
			return m, nil
		}

		m, err := r.resolve(detached, name)
		if err != nil {
			r.metrics.RegistryLookup("error")
			return nil, err
		}
		r.metrics.RegistryLookup("miss")
		if r.store(name, gen, m) {
			r.toShared(detached, name, gen, m)
		}
		slog.Info("model resolved",
			"model", name,
			"backend", r.backend.Name(),
			"run_id", m.RunID,
			"locator", m.Locator,
			"score", m.Score,
		)
		return m, nil
	})
	if err != nil {
		return models.ResolvedModel{}, err
	}
	return v.(models.ResolvedModel), nil
}

func (r *Registry) resolve(ctx context.Context, name string) (models.ResolvedModel, error) {
	runs, err := r.backend.SearchRuns(ctx, name)
	if err != nil {
		return models.ResolvedModel{}, fmt.Errorf("%w: search runs for %q on %s: %v",
			models.ErrConfiguration, name, r.backend.Name(), err)
	}

	run, ok := Select(runs)
	if !ok {
		return models.ResolvedModel{}, fmt.Errorf("%w: no run recorded for model %q", models.ErrConfiguration, name)
	}

	locator, err := Locator(run)
	if err != nil {
		return models.ResolvedModel{}, err
	}

	return models.ResolvedModel{
		Name:       name,
		RunID:      run.RunID,
		Locator:    locator,
		Score:      run.Score,
		RecordedAt: run.StartTime,
	}, nil
}

// Invalidate drops the cached resolution of name from both levels.
func (r *Registry) Invalidate(ctx context.Context, name string) {
	r.mu.Lock()
	delete(r.entries, name)
	r.gen++
	r.mu.Unlock()
	r.group.Forget(name)

	if r.shared != nil {
		if err := r.shared.Delete(ctx, cache.ModelResolutionKey(name)); err != nil {
			slog.Warn("shared resolution cache delete failed", "model", name, "error", err)
		}
	}
}

// InvalidateAll drops every cached resolution, including shared ones written
// by other replicas.
func (r *Registry) InvalidateAll(ctx context.Context) {
	r.mu.Lock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	r.entries = make(map[string]entry)
	r.gen++
	r.mu.Unlock()

	for _, name := range names {
		r.group.Forget(name)
	}
	if r.shared == nil {
		return
	}
	n, err := r.shared.DeleteMatching(ctx, cache.ModelResolutionPattern())
	if err != nil {
		slog.Warn("shared resolution cache delete failed", "error", err)
		return
	}
	slog.Info("model resolutions invalidated", "local", len(names), "shared", n)
}

func (r *Registry) cached(name string) (models.ResolvedModel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok || !r.now().Before(e.expires) {
		return models.ResolvedModel{}, false
	}
	return e.model, true
}

func (r *Registry) generation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.gen
}

// store caches m unless an invalidation happened since gen was read; a query
// that started before Invalidate must not bring its answer back.
func (r *Registry) store(name string, gen uint64, m models.ResolvedModel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.gen {
		return false
	}
	r.entries[name] = entry{model: m, expires: r.now().Add(r.ttl)}
	return true
}

// fromShared reads the replica-shared resolution. Redis trouble is logged
// and treated as a miss.
func (r *Registry) fromShared(ctx context.Context, name string) (models.ResolvedModel, bool) {
	if r.shared == nil {
		return models.ResolvedModel{}, false
	}
	data, found, err := r.shared.Get(ctx, cache.ModelResolutionKey(name))
	if err != nil {
		slog.Warn("shared resolution cache read failed", "model", name, "error", err)
		return models.ResolvedModel{}, false
	}
	if !found {
		return models.ResolvedModel{}, false
	}
	var m models.ResolvedModel
	if err := json.Unmarshal(data, &m); err != nil || m.Locator == "" {
		slog.Warn("discarding malformed shared resolution", "model", name)
		return models.ResolvedModel{}, false
	}
	return m, true
}

// toShared publishes m to the other replicas. If an invalidation lands while
// the write is in flight the key is dropped again; a miss is always safe.
func (r *Registry) toShared(ctx context.Context, name string, gen uint64, m models.ResolvedModel) {
	if r.shared == nil {
		return
	}
	data, err := json.Marshal(m)
	if err != nil {
		return
	}
	key := cache.ModelResolutionKey(name)
	if err := r.shared.Set(ctx, key, data, r.ttl); err != nil {
		slog.Warn("shared resolution cache write failed", "model", name, "error", err)
		return
	}
	if r.generation() != gen {
		_ = r.shared.Delete(ctx, key)
	}
}
