// Package main is the entrypoint for the prbmg prediction server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Manonp59/prbmg/internal/api"
	"github.com/Manonp59/prbmg/internal/api/handler"
	mw "github.com/Manonp59/prbmg/internal/api/middleware"
	"github.com/Manonp59/prbmg/internal/auth"
	"github.com/Manonp59/prbmg/internal/cache"
	"github.com/Manonp59/prbmg/internal/cluster"
	"github.com/Manonp59/prbmg/internal/config"
	"github.com/Manonp59/prbmg/internal/embedding"
	"github.com/Manonp59/prbmg/internal/metrics"
	"github.com/Manonp59/prbmg/internal/prediction"
	"github.com/Manonp59/prbmg/internal/registry"
	"github.com/Manonp59/prbmg/internal/store"
	"github.com/Manonp59/prbmg/internal/textnorm"
	"github.com/Manonp59/prbmg/internal/title"
	"github.com/Manonp59/prbmg/pkg/models"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"env", cfg.Server.Env,
		"model", cfg.Model.Name,
		"registry_backend", cfg.Registry.Backend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsDir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	m := metrics.New()
	pgStore := store.NewPostgresStore(pool)

	// 5. Model registry
	backend, err := newBackend(cfg.Registry)
	if err != nil {
		return fmt.Errorf("create registry backend: %w", err)
	}
	if mb, ok := backend.(*registry.MLflowBackend); ok {
		if err := mb.Ready(ctx); err != nil {
			// Resolution is lazy; predictions report the failure until the server comes up.
			slog.Warn("tracking server not reachable", "uri", cfg.Registry.TrackingURI, "error", err)
		}
	}
	reg := registry.New(backend, cfg.Registry.CacheTTL,
		registry.WithSharedCache(redisCache),
		registry.WithMetrics(m),
	)
	slog.Info("model registry initialized", "backend", backend.Name())

	// 6. Prediction pipeline. Models load on first use unless warmed here.
	encoder := embedding.NewLazy(onnxLoader(cfg.Embedding), cfg.Model.LoadTimeout, m)
	defer encoder.Close()

	normalizer := textnorm.Default()
	predictor := cluster.NewPredictor(cfg.Model.LoadTimeout, cluster.WithMetrics(m))
	titles := title.NewResolver(pgStore, cfg.Model.Name, cfg.Model.TitleCacheTTL, m)

	svc := prediction.NewService(prediction.Deps{
		Registry:   reg,
		Normalizer: normalizer,
		Encoder:    encoder,
		Predictor:  predictor,
		Titles:     titles,
		Store:      pgStore,
		Metrics:    m,
	}, cfg.Model.Name, cfg.Server.BatchConcurrency)
	slog.Info("prediction pipeline ready",
		"model", cfg.Model.Name,
		"field_order", fieldOrder(normalizer),
	)

	if cfg.Embedding.WarmOnStart {
		go warmEncoder(ctx, encoder)
	}

	if lb, ok := backend.(*registry.LocalBackend); ok {
		watcher, err := registry.WatchManifest(lb.ManifestPath(), onManifestChange(svc))
		if err != nil {
			return fmt.Errorf("watch run manifest: %w", err)
		}
		defer watcher.Close()
		slog.Info("watching run manifest", "path", lb.ManifestPath())
	}

	// 7. Build router with dependencies
	tokens := auth.NewTokenAuth([]byte(cfg.Auth.TokenSecret), cfg.Auth.TokenTTL, cfg.Auth.AllowedSubjects)
	keys := auth.NewKeyAuth(cfg.Auth.APIKey, api.PublicPaths...)

	deps := api.Dependencies{
		Auth:      mw.NewAuth(keys, tokens, m),
		RateLimit: mw.NewRateLimit(redisCache, cfg.Server.RateLimitPerMin),
		Metrics:   m,

		HealthHandler:       handler.NewHealthHandler(pgStore, redisCache, pipelineStatus(encoder, predictor, titles)),
		MetricsHandler:      m.Handler(),
		OpenAPIHandler:      handler.NewOpenAPIHandler(),
		DocsHandler:         handler.NewDocsHandler(),
		PredictHandler:      handler.NewPredictHandler(svc),
		PredictBatch:        handler.NewPredictBatchHandler(svc),
		PredictIncident:     handler.NewPredictIncidentHandler(svc),
		RefreshHandler:      handler.NewRefreshHandler(svc),
		TokenHandler:        handler.NewTokenHandler(auth.NewLogin(pgStore, tokens)),
		IsAuthorizedHandler: handler.NewIsAuthorizedHandler(),
	}

	router := api.NewRouter(deps)

	// 8. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Model.LoadTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// newBackend selects the run registry backend named in the configuration.
func newBackend(cfg config.RegistryConfig) (registry.Backend, error) {
	switch cfg.Backend {
	case "mlflow":
		return registry.NewMLflowBackend(cfg.TrackingURI, cfg.ExperimentName, cfg.QualityMetric,
			cfg.Username, cfg.Password, cfg.Timeout), nil
	case "local":
		return registry.NewLocalBackend(cfg.LocalDir), nil
	default:
		return nil, fmt.Errorf("unknown registry backend %q", cfg.Backend)
	}
}

// warmEncoder loads the embedding model in the background so the first
// prediction does not pay for it. Failure is not fatal: the next Encode retries.
func warmEncoder(ctx context.Context, enc *embedding.Lazy) {
	if err := enc.Warm(ctx); err != nil {
		slog.Warn("embedding model warm-up failed", "error", err)
		return
	}
	slog.Info("embedding model warmed", "model", enc.Model(), "dim", enc.Dim())
}

// pipelineStatus reports the in-memory model state on /health.
func pipelineStatus(enc *embedding.Lazy, predictor *cluster.Predictor, titles *title.Resolver) handler.ModelStatus {
	return func() map[string]any {
		return map[string]any{
			"encoder_loaded": enc.Loaded(),
			"encoder_model":  enc.Model(),
			"embedding_dim":  enc.Dim(),
			"cluster_models": predictor.Loaded(),
			"titles":         titles.Len(),
		}
	}
}

func fieldOrder(n *textnorm.Normalizer) []string {
	order := n.Order()
	names := make([]string, len(order))
	for i, f := range order {
		names[i] = f.String()
	}
	return names
}

type modelRefresher interface {
	RefreshAll(ctx context.Context) (models.ResolvedModel, error)
}

// onManifestChange drops every resolution, on all replicas, and re-resolves
// the served model so the next prediction uses the new run.
func onManifestChange(svc modelRefresher) func() {
	return func() {
		if _, err := svc.RefreshAll(context.Background()); err != nil {
			slog.Error("refresh after manifest change failed", "error", err)
		}
	}
}

func onnxLoader(cfg config.EmbeddingConfig) embedding.LoadFunc {
	return func(ctx context.Context) (embedding.Encoder, error) {
		start := time.Now()
		enc, err := embedding.NewONNXEncoder(embedding.ONNXConfig{
			ModelPath:      cfg.ModelPath,
			VocabPath:      cfg.VocabPath,
			ProjectionPath: cfg.ProjectionPath,
			LibraryPath:    cfg.LibraryPath,
			Threads:        cfg.Threads,
		})
		if err != nil {
			return nil, err
		}
		slog.Info("embedding model loaded",
			"model", enc.Model(),
			"dim", enc.Dim(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return enc, nil
	}
}
