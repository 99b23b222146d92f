// Package title maps cluster numbers to human-readable problem titles.
package title

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Manonp59/prbmg/internal/metrics"
	"github.com/Manonp59/prbmg/pkg/models"
	"golang.org/x/sync/singleflight"
)

// Source loads the title table of a model.
type Source interface {
	ClusterTitles(ctx context.Context, modelName string) (models.ClusterTitleTable, error)
}

// Fallback is the title used for clusters absent from the table.
func Fallback(cluster int) string {
	return fmt.Sprintf("No problem title found for cluster %d", cluster)
}

// Resolver serves titles from an in-memory copy of the table, reloaded once
// it is older than ttl. A failed reload keeps the previous table.
type Resolver struct {
	source  Source
	model   string
	ttl     time.Duration
	metrics *metrics.Metrics
	now     func() time.Time

	mu       sync.RWMutex
	table    models.ClusterTitleTable
	loadedAt time.Time
	group    singleflight.Group
}

// NewResolver creates a Resolver for the titles of model.
func NewResolver(source Source, model string, ttl time.Duration, m *metrics.Metrics) *Resolver {
	return &Resolver{
		source:  source,
		model:   model,
		ttl:     ttl,
		metrics: m,
		now:     time.Now,
	}
}

// Resolve never fails: a cluster with no known title gets Fallback.
func (r *Resolver) Resolve(ctx context.Context, cluster int) string {
	if r.stale() {
		_ = r.refresh(ctx, false)
	}

	r.mu.RLock()
	t, ok := r.table[cluster]
	r.mu.RUnlock()
	if ok {
		return t
	}

	r.metrics.TitleFallback()
	slog.Debug("no title for cluster", "model", r.model, "cluster", cluster)
	return Fallback(cluster)
}

// Reload fetches the table now. Concurrent reloads share one query.
func (r *Resolver) Reload(ctx context.Context) error {
	return r.refresh(ctx, true)
}

func (r *Resolver) refresh(ctx context.Context, force bool) error {
	detached := context.WithoutCancel(ctx)
	_, err, _ := r.group.Do("titles", func() (any, error) {
		if !force && !r.stale() {
			return nil, nil
		}
		table, err := r.source.ClusterTitles(detached, r.model)
		r.mu.Lock()
		defer r.mu.Unlock()
		if err != nil {
			if r.table != nil {
				// Serve the previous table for another ttl.
				r.loadedAt = r.now()
			}
			slog.Warn("cluster title reload failed", "model", r.model, "keeping_previous", r.table != nil, "error", err)
			return nil, err
		}
		r.table = table
		r.loadedAt = r.now()
		slog.Info("cluster titles loaded", "model", r.model, "titles", len(table))
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("reload titles for %s: %w", r.model, err)
	}
	return nil
}

// Len reports how many titles are loaded.
func (r *Resolver) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.table)
}

func (r *Resolver) stale() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.table == nil || r.now().Sub(r.loadedAt) >= r.ttl
}
