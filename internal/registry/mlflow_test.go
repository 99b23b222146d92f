package registry_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Manonp59/prbmg/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const searchPage1 = `{
  "runs": [
    {"info": {"run_id": "r1", "run_name": "kmeans_40", "artifact_uri": "file:///mlruns/1/r1/artifacts", "start_time": 1709287200000},
     "data": {"metrics": [{"key": "silhouette score", "value": 0.41}, {"key": "inertia", "value": 900}]}},
    {"info": {"run_id": "r9", "run_name": "kmeans_400", "artifact_uri": "file:///mlruns/1/r9/artifacts", "start_time": 1709287200000},
     "data": {"metrics": [{"key": "silhouette score", "value": 0.99}]}}
  ],
  "next_page_token": "p2"
}`

const searchPage2 = `{
  "runs": [
    {"info": {"run_id": "r2", "artifact_uri": "file:///mlruns/1/r2/artifacts", "start_time": "1709290800000"},
     "data": {"tags": [{"key": "mlflow.runName", "value": "kmeans_40"}]}}
  ]
}`

func newMLflowServer(t *testing.T) (*httptest.Server, *[]map[string]any) {
	t.Helper()
	var searches []map[string]any

	mux := http.NewServeMux()
	mux.HandleFunc("/api/2.0/mlflow/experiments/get-by-name", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("experiment_name") != "incidents_clustering" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error_code":"RESOURCE_DOES_NOT_EXIST"}`))
			return
		}
		_, _ = w.Write([]byte(`{"experiment":{"experiment_id":"1","name":"incidents_clustering"}}`))
	})
	mux.HandleFunc("/api/2.0/mlflow/runs/search", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		searches = append(searches, body)

		if body["page_token"] == "p2" {
			_, _ = w.Write([]byte(searchPage2))
			return
		}
		_, _ = w.Write([]byte(searchPage1))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &searches
}

func TestMLflowBackend_SearchRuns(t *testing.T) {
	srv, searches := newMLflowServer(t)
	b := registry.NewMLflowBackend(srv.URL, "incidents_clustering", "silhouette score", "", "", 5*time.Second)

	runs, err := b.SearchRuns(context.Background(), "kmeans_40")
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, "r1", runs[0].RunID)
	assert.True(t, runs[0].HasScore)
	assert.InDelta(t, 0.41, runs[0].Score, 1e-9)
	assert.Equal(t, time.UnixMilli(1709287200000).UTC(), runs[0].StartTime)

	assert.Equal(t, "r2", runs[1].RunID)
	assert.Equal(t, "kmeans_40", runs[1].Name)
	assert.False(t, runs[1].HasScore)
	assert.Equal(t, time.UnixMilli(1709290800000).UTC(), runs[1].StartTime)

	require.Len(t, *searches, 2)
	first := (*searches)[0]
	assert.Equal(t, []any{"1"}, first["experiment_ids"])
	assert.Contains(t, first["filter"], "'kmeans_40'")
}

func TestMLflowBackend_ExperimentNotFound(t *testing.T) {
	srv, _ := newMLflowServer(t)
	b := registry.NewMLflowBackend(srv.URL, "missing", "silhouette score", "", "", 5*time.Second)

	_, err := b.SearchRuns(context.Background(), "kmeans_40")
	assert.ErrorIs(t, err, registry.ErrRegistryQuery)
}

func TestMLflowBackend_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	b := registry.NewMLflowBackend(srv.URL, "incidents_clustering", "silhouette score", "", "", 5*time.Second)

	_, err := b.SearchRuns(context.Background(), "kmeans_40")
	assert.ErrorIs(t, err, registry.ErrRegistryQuery)
}

func TestMLflowBackend_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"experiment":`))
	}))
	defer srv.Close()
	b := registry.NewMLflowBackend(srv.URL, "incidents_clustering", "silhouette score", "", "", 5*time.Second)

	_, err := b.SearchRuns(context.Background(), "kmeans_40")
	assert.ErrorIs(t, err, registry.ErrRegistryQuery)
}

func TestMLflowBackend_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	b := registry.NewMLflowBackend(url, "incidents_clustering", "silhouette score", "", "", time.Second)
	_, err := b.SearchRuns(context.Background(), "kmeans_40")
	assert.ErrorIs(t, err, registry.ErrRegistryUnreachable)
}

func TestMLflowBackend_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	b := registry.NewMLflowBackend(srv.URL, "incidents_clustering", "silhouette score", "", "", 50*time.Millisecond)
	_, err := b.SearchRuns(context.Background(), "kmeans_40")
	assert.ErrorIs(t, err, registry.ErrRegistryTimeout)
}

func TestMLflowBackend_BasicAuth(t *testing.T) {
	var user, pass string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, _ = r.BasicAuth()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	b := registry.NewMLflowBackend(srv.URL, "incidents_clustering", "silhouette score", "ops", "pw", time.Second)
	require.NoError(t, b.Ready(context.Background()))
	assert.Equal(t, "ops", user)
	assert.Equal(t, "pw", pass)
}
