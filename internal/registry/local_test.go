package registry_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Manonp59/prbmg/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const manifest = `runs:
  - run_id: r1
    name: kmeans_40
    artifact_uri: file:///var/lib/prbmg/artifacts/r1
    score: 0.41
    start_time: 2024-03-01T10:00:00Z
  - run_id: r2
    name: kmeans_40
    artifact_uri: file:///var/lib/prbmg/artifacts/r2
    start_time: 2024-03-02T10:00:00Z
  - run_id: r3
    name: kmeans_10
    artifact_uri: file:///var/lib/prbmg/artifacts/r3
    score: 0.9
    start_time: 2024-03-02T10:00:00Z
`

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, registry.ManifestFile), []byte(content), 0o644))
}

func TestLocalBackend_SearchRuns(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, manifest)
	b := registry.NewLocalBackend(dir)

	runs, err := b.SearchRuns(context.Background(), "kmeans_40")
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, "r1", runs[0].RunID)
	assert.True(t, runs[0].HasScore)
	assert.InDelta(t, 0.41, runs[0].Score, 1e-9)
	assert.False(t, runs[1].HasScore)

	best, ok := registry.Select(runs)
	require.True(t, ok)
	assert.Equal(t, "r1", best.RunID)
}

func TestLocalBackend_NoMatch(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, manifest)

	runs, err := registry.NewLocalBackend(dir).SearchRuns(context.Background(), "hdbscan")
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestLocalBackend_MissingManifest(t *testing.T) {
	_, err := registry.NewLocalBackend(t.TempDir()).SearchRuns(context.Background(), "kmeans_40")
	assert.ErrorIs(t, err, registry.ErrRegistryQuery)
}

func TestLocalBackend_MalformedManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "runs: [unterminated")

	_, err := registry.NewLocalBackend(dir).SearchRuns(context.Background(), "kmeans_40")
	assert.ErrorIs(t, err, registry.ErrRegistryQuery)
}
