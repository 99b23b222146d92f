package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Manonp59/prbmg/internal/lazyload"
	"github.com/Manonp59/prbmg/internal/metrics"
	"github.com/Manonp59/prbmg/pkg/models"
)

// LoadFunc loads the model a locator points at.
type LoadFunc func(ctx context.Context, locator string) (*Model, error)

// Predictor caches loaded models by locator and assigns vectors to clusters.
// A given locator is loaded at most once at a time.
type Predictor struct {
	models  *lazyload.Cache[*Model]
	metrics *metrics.Metrics
}

// Option configures a Predictor.
type Option func(*config)

type config struct {
	load    LoadFunc
	metrics *metrics.Metrics
}

// WithLoader replaces the artifact loader.
func WithLoader(load LoadFunc) Option {
	return func(c *config) { c.load = load }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *config) { c.metrics = m }
}

// NewPredictor creates a Predictor whose loads give up after loadTimeout.
func NewPredictor(loadTimeout time.Duration, opts ...Option) *Predictor {
	cfg := config{
		load: func(_ context.Context, locator string) (*Model, error) {
			return LoadArtifact(locator)
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	m := cfg.metrics
	load := cfg.load
	return &Predictor{
		metrics: m,
		models: lazyload.New(func(ctx context.Context, locator string) (*Model, error) {
			start := time.Now()
			model, err := load(ctx, locator)
			m.ModelLoad("cluster", err)
			if err == nil {
				slog.Info("cluster model loaded",
					"locator", locator,
					"clusters", model.NClusters,
					"dim", model.Dim,
					"duration_ms", time.Since(start).Milliseconds(),
				)
			}
			return model, err
		}, loadTimeout, nil),
	}
}

// Predict returns the cluster number for vec under the resolved model.
func (p *Predictor) Predict(ctx context.Context, vec []float32, resolved models.ResolvedModel) (int, error) {
	model, err := p.models.Get(ctx, resolved.Locator)
	if err != nil {
		if ctx.Err() != nil {
			return 0, err
		}
		return 0, fmt.Errorf("%w: load cluster model %s (%s): %v",
			models.ErrConfiguration, resolved.Name, resolved.Locator, unwrapConfig(err))
	}
	return model.Assign(vec)
}

// Evict drops the cached model for locator.
func (p *Predictor) Evict(locator string) {
	p.models.Evict(locator)
}

// EvictAll drops every cached model.
func (p *Predictor) EvictAll() {
	p.models.EvictAll()
}

// Loaded reports how many models are cached.
func (p *Predictor) Loaded() int {
	return p.models.Len()
}

// unwrapConfig avoids repeating the "configuration error" prefix when the
// loader already classified the failure.
func unwrapConfig(err error) string {
	return strings.TrimPrefix(err.Error(), models.ErrConfiguration.Error()+": ")
}
