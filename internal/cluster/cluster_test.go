package cluster_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Manonp59/prbmg/internal/cluster"
	"github.com/Manonp59/prbmg/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeModel(t *testing.T, v any) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "kmeans_40")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	data, err := json.Marshal(v)
	require.NoError(t, err)
	path := filepath.Join(dir, "model.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return "file://" + path
}

func threeClusters() map[string]any {
	return map[string]any{
		"algorithm":  "kmeans",
		"n_clusters": 3,
		"dim":        2,
		"centroids":  [][]float32{{0, 0}, {10, 0}, {0, 10}},
	}
}

func TestLoadArtifact(t *testing.T) {
	m, err := cluster.LoadArtifact(writeModel(t, threeClusters()))
	require.NoError(t, err)
	assert.Equal(t, 3, m.NClusters)
	assert.Equal(t, 2, m.Dim)
}

func TestLoadArtifact_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(m map[string]any)
	}{
		{"wrong algorithm", func(m map[string]any) { m["algorithm"] = "dbscan" }},
		{"n_clusters mismatch", func(m map[string]any) { m["n_clusters"] = 4 }},
		{"zero dim", func(m map[string]any) { m["dim"] = 0 }},
		{"ragged centroid", func(m map[string]any) { m["centroids"] = [][]float32{{0, 0}, {1}, {2, 2}} }},
		{"no centroids", func(m map[string]any) { m["centroids"] = [][]float32{}; m["n_clusters"] = 0 }},
		{"labels length", func(m map[string]any) { m["labels"] = []int{1, 2} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := threeClusters()
			tt.mutate(m)
			_, err := cluster.LoadArtifact(writeModel(t, m))
			assert.ErrorIs(t, err, models.ErrConfiguration)
		})
	}
}

func TestLoadArtifact_MissingAndCorrupt(t *testing.T) {
	_, err := cluster.LoadArtifact("file://" + filepath.Join(t.TempDir(), "nope", "model.json"))
	assert.ErrorIs(t, err, models.ErrConfiguration)

	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err = cluster.LoadArtifact("file://" + path)
	assert.ErrorIs(t, err, models.ErrConfiguration)

	_, err = cluster.LoadArtifact("s3://bucket/model.json")
	assert.ErrorIs(t, err, models.ErrConfiguration)
}

func TestAssign(t *testing.T) {
	m, err := cluster.LoadArtifact(writeModel(t, threeClusters()))
	require.NoError(t, err)

	tests := []struct {
		vec  []float32
		want int
	}{
		{[]float32{1, 1}, 0},
		{[]float32{9, 1}, 1},
		{[]float32{1, 9}, 2},
		{[]float32{5, 0}, 0}, // equidistant from 0 and 1
	}
	for _, tt := range tests {
		got, err := m.Assign(tt.vec)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "vec %v", tt.vec)
	}
}

func TestAssign_Labels(t *testing.T) {
	artifact := threeClusters()
	artifact["labels"] = []int{7, 2, 5}
	m, err := cluster.LoadArtifact(writeModel(t, artifact))
	require.NoError(t, err)

	got, err := m.Assign([]float32{9, 1})
	require.NoError(t, err)
	assert.Equal(t, 2, got)
}

func TestAssign_DimensionMismatch(t *testing.T) {
	m, err := cluster.LoadArtifact(writeModel(t, threeClusters()))
	require.NoError(t, err)

	_, err = m.Assign([]float32{1, 2, 3})
	assert.ErrorIs(t, err, models.ErrConfiguration)
}

func resolvedAt(locator string) models.ResolvedModel {
	return models.ResolvedModel{Name: "kmeans_40", RunID: "run-1", Locator: locator}
}

func TestPredictor_Predict(t *testing.T) {
	locator := writeModel(t, threeClusters())
	p := cluster.NewPredictor(time.Second)

	got, err := p.Predict(context.Background(), []float32{9, 1}, resolvedAt(locator))
	require.NoError(t, err)
	assert.Equal(t, 1, got)
	assert.Equal(t, 1, p.Loaded())

	again, err := p.Predict(context.Background(), []float32{9, 1}, resolvedAt(locator))
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestPredictor_LoadsOncePerLocator(t *testing.T) {
	var loads atomic.Int32
	p := cluster.NewPredictor(time.Second, cluster.WithLoader(func(ctx context.Context, locator string) (*cluster.Model, error) {
		loads.Add(1)
		time.Sleep(50 * time.Millisecond)
		return &cluster.Model{NClusters: 1, Dim: 2, Centroids: [][]float32{{0, 0}}}, nil
	}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Predict(context.Background(), []float32{1, 1}, resolvedAt("file:///m/a/model.json"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), loads.Load())

	_, err := p.Predict(context.Background(), []float32{1, 1}, resolvedAt("file:///m/b/model.json"))
	require.NoError(t, err)
	assert.Equal(t, int32(2), loads.Load())
}

func TestPredictor_LoadErrors(t *testing.T) {
	p := cluster.NewPredictor(30*time.Millisecond, cluster.WithLoader(func(ctx context.Context, locator string) (*cluster.Model, error) {
		if locator == "file:///slow/model.json" {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return nil, errors.New("disk on fire")
	}))

	_, err := p.Predict(context.Background(), []float32{1}, resolvedAt("file:///broken/model.json"))
	assert.ErrorIs(t, err, models.ErrConfiguration)
	assert.Contains(t, err.Error(), "disk on fire")
	assert.Contains(t, err.Error(), "kmeans_40")

	_, err = p.Predict(context.Background(), []float32{1}, resolvedAt("file:///slow/model.json"))
	assert.ErrorIs(t, err, models.ErrConfiguration)
	assert.Equal(t, 0, p.Loaded())
}

func TestPredictor_Evict(t *testing.T) {
	var loads atomic.Int32
	p := cluster.NewPredictor(time.Second, cluster.WithLoader(func(ctx context.Context, locator string) (*cluster.Model, error) {
		loads.Add(1)
		return &cluster.Model{NClusters: 1, Dim: 1, Centroids: [][]float32{{0}}}, nil
	}))
	locator := "file:///m/model.json"

	_, err := p.Predict(context.Background(), []float32{1}, resolvedAt(locator))
	require.NoError(t, err)
	p.Evict(locator)
	_, err = p.Predict(context.Background(), []float32{1}, resolvedAt(locator))
	require.NoError(t, err)
	p.EvictAll()
	assert.Equal(t, 0, p.Loaded())
	assert.Equal(t, int32(2), loads.Load())
}
