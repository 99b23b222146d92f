package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/Manonp59/prbmg/internal/api/response"
	"github.com/Manonp59/prbmg/internal/prediction"
	"github.com/Manonp59/prbmg/pkg/models"
	"github.com/go-chi/chi/v5"
)

const (
	maxBodyBytes = 1 << 20
	// MaxBatchSize bounds the number of incidents in one batch request.
	MaxBatchSize = 500
)

// Predictor defines the interface the prediction handlers depend on.
type Predictor interface {
	Predict(ctx context.Context, req models.PredictionRequest) (*prediction.Result, error)
	PredictIncident(ctx context.Context, incidentNumber string) (*prediction.Result, error)
	PredictBatch(ctx context.Context, reqs []models.PredictionRequest) []prediction.BatchItem
	Refresh(ctx context.Context) (models.ResolvedModel, error)
	ModelName() string
}

type predictResponse struct {
	ClusterNumber      int         `json:"cluster_number"`
	ProblemTitle       string      `json:"problem_title"`
	ResultedEmbeddings [][]float32 `json:"resulted_embeddings,omitempty"`
}

func newPredictResponse(res *prediction.Result, withEmbeddings bool) predictResponse {
	out := predictResponse{ClusterNumber: res.ClusterNumber, ProblemTitle: res.ProblemTitle}
	if withEmbeddings {
		out.ResultedEmbeddings = [][]float32{res.Embedding}
	}
	return out
}

func includeEmbeddings(r *http.Request) (bool, error) {
	v := r.URL.Query().Get("include_embeddings")
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}

// NewPredictHandler returns an http.HandlerFunc for POST /predict.
func NewPredictHandler(svc Predictor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		withEmbeddings, err := includeEmbeddings(r)
		if err != nil {
			response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest,
				"include_embeddings must be a boolean", nil)
			return
		}

		var req models.PredictionRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			writeDecodeError(w, err)
			return
		}

		res, err := svc.Predict(r.Context(), req)
		if err != nil {
			writeError(w, r, err, req.IncidentNumber, svc.ModelName())
			return
		}

		response.Bare(w, http.StatusOK, newPredictResponse(res, withEmbeddings))
	}
}

// NewPredictIncidentHandler returns an http.HandlerFunc for
// POST /predict/incidents/{incidentNumber}, which predicts a stored incident.
func NewPredictIncidentHandler(svc Predictor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		incidentNumber := chi.URLParam(r, "incidentNumber")
		withEmbeddings, err := includeEmbeddings(r)
		if err != nil {
			response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest,
				"include_embeddings must be a boolean", nil)
			return
		}

		res, err := svc.PredictIncident(r.Context(), incidentNumber)
		if err != nil {
			writeError(w, r, err, incidentNumber, svc.ModelName())
			return
		}

		response.Bare(w, http.StatusOK, newPredictResponse(res, withEmbeddings))
	}
}

type batchRequest struct {
	Incidents []models.PredictionRequest `json:"incidents"`
}

type batchResult struct {
	IncidentNumber string    `json:"incident_number"`
	ClusterNumber  *int      `json:"cluster_number,omitempty"`
	ProblemTitle   string    `json:"problem_title,omitempty"`
	Error          *apiError `json:"error,omitempty"`
}

// NewPredictBatchHandler returns an http.HandlerFunc for POST /predict/batch.
// Item failures are reported per item; the response is 200 unless the
// request itself is malformed.
func NewPredictBatchHandler(svc Predictor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req batchRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16*maxBodyBytes)).Decode(&req); err != nil {
			writeDecodeError(w, err)
			return
		}
		if len(req.Incidents) == 0 {
			response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "incidents must not be empty", nil)
			return
		}
		if len(req.Incidents) > MaxBatchSize {
			response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest,
				fmt.Sprintf("at most %d incidents per batch", MaxBatchSize), nil)
			return
		}

		items := svc.PredictBatch(r.Context(), req.Incidents)
		results := make([]batchResult, len(items))
		for i, item := range items {
			results[i].IncidentNumber = item.IncidentNumber
			if item.Err != nil {
				e := classify(item.Err, item.IncidentNumber, svc.ModelName())
				results[i].Error = &e
				continue
			}
			cluster := item.Result.ClusterNumber
			results[i].ClusterNumber = &cluster
			results[i].ProblemTitle = item.Result.ProblemTitle
		}

		response.Bare(w, http.StatusOK, map[string]any{"results": results})
	}
}

// NewRefreshHandler returns an http.HandlerFunc for POST /admin/models/refresh.
func NewRefreshHandler(svc Predictor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resolved, err := svc.Refresh(r.Context())
		if err != nil {
			writeError(w, r, err, "", svc.ModelName())
			return
		}
		response.JSON(w, map[string]any{
			"model":   resolved.Name,
			"run_id":  resolved.RunID,
			"locator": resolved.Locator,
			"score":   resolved.Score,
		})
	}
}
