// Package embedding turns a normalized incident document into a fixed-length
// vector with a local sentence-embedding model. Output is deterministic for a
// given model file and input.
package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/Manonp59/prbmg/internal/lazyload"
	"github.com/Manonp59/prbmg/internal/metrics"
	"github.com/Manonp59/prbmg/pkg/models"
)

// Encoder produces embeddings. Implementations must be safe for concurrent use.
type Encoder interface {
	Encode(ctx context.Context, doc string) ([]float32, error)
	Dim() int
	Model() string
	Close() error
}

// LoadFunc builds the underlying encoder. It is called at most once at a
// time and only until it succeeds.
type LoadFunc func(ctx context.Context) (Encoder, error)

const lazyKey = "encoder"

// Lazy defers loading the encoder to the first Encode call so that the
// server starts quickly, and shares that load between concurrent callers.
type Lazy struct {
	cache   *lazyload.Cache[Encoder]
	metrics *metrics.Metrics
}

// NewLazy wraps load. A load that fails or exceeds timeout surfaces as
// models.ErrConfiguration and is retried on the next call.
func NewLazy(load LoadFunc, timeout time.Duration, m *metrics.Metrics) *Lazy {
	l := &Lazy{metrics: m}
	l.cache = lazyload.New(func(ctx context.Context, _ string) (Encoder, error) {
		enc, err := load(ctx)
		m.ModelLoad("embedding", err)
		return enc, err
	}, timeout, func(enc Encoder) { _ = enc.Close() })
	return l
}

func (l *Lazy) encoder(ctx context.Context) (Encoder, error) {
	enc, err := l.cache.Get(ctx, lazyKey)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: load embedding model: %v", models.ErrConfiguration, err)
	}
	return enc, nil
}

// Warm loads the encoder without encoding anything.
func (l *Lazy) Warm(ctx context.Context) error {
	_, err := l.encoder(ctx)
	return err
}

func (l *Lazy) Encode(ctx context.Context, doc string) ([]float32, error) {
	enc, err := l.encoder(ctx)
	if err != nil {
		return nil, err
	}
	return enc.Encode(ctx, doc)
}

// Dim is 0 until the encoder has been loaded.
func (l *Lazy) Dim() int {
	if enc, ok := l.loaded(); ok {
		return enc.Dim()
	}
	return 0
}

func (l *Lazy) Model() string {
	if enc, ok := l.loaded(); ok {
		return enc.Model()
	}
	return ""
}

// Loaded reports whether the encoder is in memory.
func (l *Lazy) Loaded() bool {
	_, ok := l.loaded()
	return ok
}

func (l *Lazy) loaded() (Encoder, bool) {
	return l.cache.Peek(lazyKey)
}

// Close releases the encoder if it was loaded.
func (l *Lazy) Close() error {
	l.cache.EvictAll()
	return nil
}
