package metrics_test

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Manonp59/prbmg/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.Prediction("kmeans_40", nil)
		m.ObserveStage("encode", time.Now())
		m.RegistryLookup("hit")
		m.ModelLoad("embedding", errors.New("boom"))
		m.TitleFallback()
		m.AuthRejected("bearer")
		m.HTTPRequest("/predict", "200")
	})
	assert.Nil(t, m.Registry())
}

func TestCounters(t *testing.T) {
	m := metrics.New()

	m.Prediction("kmeans_40", nil)
	m.Prediction("kmeans_40", nil)
	m.Prediction("kmeans_40", errors.New("boom"))
	m.TitleFallback()

	mfs, err := m.Registry().Gather()
	require.NoError(t, err)

	var names []string
	for _, mf := range mfs {
		names = append(names, mf.GetName())
	}
	assert.Contains(t, names, "prbmg_predictions_total")
	assert.Contains(t, names, "prbmg_title_fallbacks_total")

	n, err := testutil.GatherAndCount(m.Registry(), "prbmg_predictions_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestHandler(t *testing.T) {
	m := metrics.New()
	m.RegistryLookup("miss")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `prbmg_registry_lookups_total{result="miss"} 1`)
}
