package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Manonp59/prbmg/pkg/models"
)

const (
	runNameTag       = "mlflow.runName"
	searchPageSize   = 1000
	maxSearchPages   = 50
	mlflowAPIVersion = "/api/2.0/mlflow"
)

// MLflowBackend queries an MLflow tracking server over its REST API.
type MLflowBackend struct {
	baseURL    string
	experiment string
	metric     string
	username   string
	password   string
	client     *http.Client

	mu           sync.Mutex
	experimentID string
}

// NewMLflowBackend creates a backend for the runs of one experiment. The
// quality score of a run is the value of metric.
func NewMLflowBackend(baseURL, experiment, metric, username, password string, timeout time.Duration) *MLflowBackend {
	return &MLflowBackend{
		baseURL:    strings.TrimRight(baseURL, "/"),
		experiment: experiment,
		metric:     metric,
		username:   username,
		password:   password,
		client:     &http.Client{Timeout: timeout},
	}
}

func (b *MLflowBackend) Name() string { return "mlflow" }

// SearchRuns returns every active run of the experiment whose run name is name.
func (b *MLflowBackend) SearchRuns(ctx context.Context, name string) ([]models.Run, error) {
	expID, err := b.lookupExperiment(ctx)
	if err != nil {
		return nil, err
	}

	search := mlflowSearchRequest{
		ExperimentIDs: []string{expID},
		Filter:        fmt.Sprintf("tags.`%s` = '%s'", runNameTag, name),
		MaxResults:    searchPageSize,
	}

	var runs []models.Run
	for page := 0; page < maxSearchPages; page++ {
		var resp mlflowSearchResponse
		if err := b.post(ctx, "/runs/search", search, &resp); err != nil {
			return nil, err
		}
		for _, r := range resp.Runs {
			run := r.toRun(b.metric)
			if run.Name == name {
				runs = append(runs, run)
			}
		}
		if resp.NextPageToken == "" {
			return runs, nil
		}
		search.PageToken = resp.NextPageToken
	}
	return nil, fmt.Errorf("%w: more than %d result pages for %q", ErrRegistryQuery, maxSearchPages, name)
}

// Ready checks that the tracking server answers its health endpoint.
func (b *MLflowBackend) Ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	b.setHeaders(req)

	resp, err := b.client.Do(req)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: tracking server not ready (status %d)", ErrRegistryUnreachable, resp.StatusCode)
	}
	return nil
}

// lookupExperiment resolves the experiment name once; the id is stable.
func (b *MLflowBackend) lookupExperiment(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.experimentID != "" {
		return b.experimentID, nil
	}

	u := fmt.Sprintf("%s%s/experiments/get-by-name?%s", b.baseURL, mlflowAPIVersion,
		url.Values{"experiment_name": {b.experiment}}.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	b.setHeaders(req)

	resp, err := b.client.Do(req)
	if err != nil {
		return "", classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("%w: experiment %q not found", ErrRegistryQuery, b.experiment)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrRegistryQuery, resp.StatusCode)
	}

	var body mlflowExperimentResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: decoding experiment: %v", ErrRegistryQuery, err)
	}
	if body.Experiment.ExperimentID == "" {
		return "", fmt.Errorf("%w: experiment %q has no id", ErrRegistryQuery, b.experiment)
	}

	b.experimentID = body.Experiment.ExperimentID
	return b.experimentID, nil
}

func (b *MLflowBackend) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+mlflowAPIVersion+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	b.setHeaders(req)

	resp, err := b.client.Do(req)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s status %d", ErrRegistryQuery, path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding %s: %v", ErrRegistryQuery, path, err)
	}
	return nil
}

func (b *MLflowBackend) setHeaders(req *http.Request) {
	if b.username != "" && b.password != "" {
		req.SetBasicAuth(b.username, b.password)
	}
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrRegistryTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrRegistryTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrRegistryUnreachable, err)
}

// --- wire types ---

type mlflowExperimentResponse struct {
	Experiment struct {
		ExperimentID string `json:"experiment_id"`
		Name         string `json:"name"`
	} `json:"experiment"`
}

type mlflowSearchRequest struct {
	ExperimentIDs []string `json:"experiment_ids"`
	Filter        string   `json:"filter"`
	MaxResults    int      `json:"max_results"`
	PageToken     string   `json:"page_token,omitempty"`
}

type mlflowSearchResponse struct {
	Runs          []mlflowRun `json:"runs"`
	NextPageToken string      `json:"next_page_token"`
}

type mlflowRun struct {
	Info struct {
		RunID       string      `json:"run_id"`
		RunName     string      `json:"run_name"`
		ArtifactURI string      `json:"artifact_uri"`
		StartTime   mlflowInt64 `json:"start_time"`
	} `json:"info"`
	Data struct {
		Metrics []struct {
			Key   string  `json:"key"`
			Value float64 `json:"value"`
		} `json:"metrics"`
		Tags []struct {
			Key   string `json:"key"`
			Value string `json:"value"`
		} `json:"tags"`
	} `json:"data"`
}

func (r mlflowRun) toRun(metric string) models.Run {
	run := models.Run{
		RunID:       r.Info.RunID,
		Name:        r.Info.RunName,
		ArtifactURI: r.Info.ArtifactURI,
	}
	if r.Info.StartTime > 0 {
		run.StartTime = time.UnixMilli(int64(r.Info.StartTime)).UTC()
	}
	for _, tag := range r.Data.Tags {
		if tag.Key == runNameTag && run.Name == "" {
			run.Name = tag.Value
		}
	}
	for _, m := range r.Data.Metrics {
		if m.Key == metric {
			run.Score = m.Value
			run.HasScore = true
		}
	}
	return run
}

// mlflowInt64 accepts millisecond timestamps encoded either as JSON numbers
// or as strings, both of which tracking servers emit.
type mlflowInt64 int64

func (v *mlflowInt64) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*v = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid int64 %s: %w", data, err)
	}
	*v = mlflowInt64(n)
	return nil
}
