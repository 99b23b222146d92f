// Package prediction runs the incident clustering pipeline: resolve the
// model, normalize the incident, embed it, assign a cluster, look up the
// title and persist the outcome.
package prediction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Manonp59/prbmg/internal/metrics"
	"github.com/Manonp59/prbmg/pkg/models"
	"golang.org/x/sync/errgroup"
)

// ModelResolver resolves a logical model name to its artifact.
type ModelResolver interface {
	Resolve(ctx context.Context, name string) (models.ResolvedModel, error)
	Invalidate(ctx context.Context, name string)
	InvalidateAll(ctx context.Context)
}

type Normalizer interface {
	Normalize(req models.PredictionRequest) string
}

type Encoder interface {
	Encode(ctx context.Context, doc string) ([]float32, error)
}

type ClusterPredictor interface {
	Predict(ctx context.Context, vec []float32, resolved models.ResolvedModel) (int, error)
	Evict(locator string)
}

type TitleResolver interface {
	Resolve(ctx context.Context, cluster int) string
	Reload(ctx context.Context) error
}

// Store is the subset of the data store the pipeline needs.
type Store interface {
	UpsertPrediction(ctx context.Context, rec *models.PredictionRecord) (*models.PredictionRecord, error)
	GetIncident(ctx context.Context, incidentNumber string) (*models.Incident, error)
	GetCILocation(ctx context.Context, ciName string) (*models.CILocation, error)
}

// Deps are the collaborators of a Service.
type Deps struct {
	Registry   ModelResolver
	Normalizer Normalizer
	Encoder    Encoder
	Predictor  ClusterPredictor
	Titles     TitleResolver
	Store      Store
	Metrics    *metrics.Metrics
}

// Result is the outcome of one prediction.
type Result struct {
	PredictionID   string
	IncidentNumber string
	ClusterNumber  int
	ProblemTitle   string
	Embedding      []float32
	Model          models.ResolvedModel
}

// Service serves predictions for a single configured model name.
type Service struct {
	deps             Deps
	modelName        string
	batchConcurrency int
}

// NewService creates a Service. batchConcurrency bounds PredictBatch.
func NewService(deps Deps, modelName string, batchConcurrency int) *Service {
	if batchConcurrency <= 0 {
		batchConcurrency = 1
	}
	return &Service{deps: deps, modelName: modelName, batchConcurrency: batchConcurrency}
}

// ModelName is the logical model name predictions are made with.
func (s *Service) ModelName() string {
	return s.modelName
}

// Predict clusters one incident and upserts its prediction record.
// Predicting the same incident again updates the existing record.
func (s *Service) Predict(ctx context.Context, req models.PredictionRequest) (*Result, error) {
	res, err := s.predict(ctx, req)
	s.deps.Metrics.Prediction(s.modelName, err)
	if err != nil {
		slog.Error("prediction failed",
			"incident_number", req.IncidentNumber,
			"model", s.modelName,
			"error", err,
		)
		return nil, err
	}
	slog.Info("prediction stored",
		"incident_number", res.IncidentNumber,
		"model", s.modelName,
		"run_id", res.Model.RunID,
		"cluster_number", res.ClusterNumber,
	)
	return res, nil
}

func (s *Service) predict(ctx context.Context, req models.PredictionRequest) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	resolved, err := s.deps.Registry.Resolve(ctx, s.modelName)
	s.deps.Metrics.ObserveStage("resolve", start)
	if err != nil {
		return nil, err
	}

	doc := s.deps.Normalizer.Normalize(req)

	start = time.Now()
	vec, err := s.deps.Encoder.Encode(ctx, doc)
	s.deps.Metrics.ObserveStage("encode", start)
	if err != nil {
		return nil, fmt.Errorf("encode incident: %w", err)
	}

	start = time.Now()
	cluster, err := s.deps.Predictor.Predict(ctx, vec, resolved)
	s.deps.Metrics.ObserveStage("cluster", start)
	if err != nil {
		return nil, err
	}

	title := s.deps.Titles.Resolve(ctx, cluster)

	start = time.Now()
	rec, err := s.deps.Store.UpsertPrediction(ctx, &models.PredictionRecord{
		IncidentNumber: req.IncidentNumber,
		CreationDate:   req.CreationDate,
		Description:    req.Description,
		CategoryFull:   req.CategoryFull,
		CIName:         req.CIName,
		LocationFull:   req.LocationFull,
		Embedding:      vec,
		ClusterNumber:  cluster,
		ProblemTitle:   title,
		ModelName:      resolved.Name,
	})
	s.deps.Metrics.ObserveStage("store", start)
	if err != nil {
		return nil, fmt.Errorf("store prediction: %w", err)
	}

	return &Result{
		PredictionID:   rec.PredictionID,
		IncidentNumber: req.IncidentNumber,
		ClusterNumber:  cluster,
		ProblemTitle:   title,
		Embedding:      vec,
		Model:          resolved,
	}, nil
}

// PredictIncident predicts a stored incident. A blank location is filled
// from the configuration item's known location.
func (s *Service) PredictIncident(ctx context.Context, incidentNumber string) (*Result, error) {
	inc, err := s.deps.Store.GetIncident(ctx, incidentNumber)
	if err != nil {
		return nil, fmt.Errorf("get incident %s: %w", incidentNumber, err)
	}

	req := inc.PredictionRequest()
	if strings.TrimSpace(req.LocationFull) == "" && strings.TrimSpace(req.CIName) != "" {
		loc, err := s.deps.Store.GetCILocation(ctx, req.CIName)
		switch {
		case err == nil:
			req.LocationFull = loc.LocationFull
		case errors.Is(err, models.ErrNotFound):
			// Left blank; validation reports it.
		default:
			return nil, fmt.Errorf("get location of %s: %w", req.CIName, err)
		}
	}
	return s.Predict(ctx, req)
}

// BatchItem is the outcome of one request of a batch. Exactly one of
// Result and Err is set.
type BatchItem struct {
	IncidentNumber string
	Result         *Result
	Err            error
}

// PredictBatch predicts every request with bounded concurrency. Items are
// returned in input order and one failing item does not stop the others.
// Once ctx is done, remaining items fail with the context error.
func (s *Service) PredictBatch(ctx context.Context, reqs []models.PredictionRequest) []BatchItem {
	items := make([]BatchItem, len(reqs))

	var g errgroup.Group
	g.SetLimit(s.batchConcurrency)
	for i, req := range reqs {
		items[i].IncidentNumber = req.IncidentNumber
		if err := ctx.Err(); err != nil {
			items[i].Err = err
			continue
		}
		g.Go(func() error {
			res, err := s.Predict(ctx, req)
			items[i].Result, items[i].Err = res, err
			return nil
		})
	}
	_ = g.Wait()

	return items
}

// Refresh drops the cached resolution and cluster model, reloads the title
// table and resolves the model again.
func (s *Service) Refresh(ctx context.Context) (models.ResolvedModel, error) {
	return s.refresh(ctx, func(ctx context.Context) {
		s.deps.Registry.Invalidate(ctx, s.modelName)
	})
}

// RefreshAll is Refresh after a change that may affect every model name: all
// resolutions are dropped, including those other replicas share.
func (s *Service) RefreshAll(ctx context.Context) (models.ResolvedModel, error) {
	return s.refresh(ctx, s.deps.Registry.InvalidateAll)
}

func (s *Service) refresh(ctx context.Context, invalidate func(context.Context)) (models.ResolvedModel, error) {
	previous, prevErr := s.deps.Registry.Resolve(ctx, s.modelName)
	invalidate(ctx)
	if prevErr == nil {
		s.deps.Predictor.Evict(previous.Locator)
	}

	if err := s.deps.Titles.Reload(ctx); err != nil {
		slog.Warn("title reload during refresh failed", "model", s.modelName, "error", err)
	}

	resolved, err := s.deps.Registry.Resolve(ctx, s.modelName)
	if err != nil {
		return models.ResolvedModel{}, err
	}
	slog.Info("model refreshed",
		"model", s.modelName,
		"run_id", resolved.RunID,
		"locator", resolved.Locator,
	)
	return resolved, nil
}
