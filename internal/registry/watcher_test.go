package registry_test

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Manonp59/prbmg/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManifestWatcher_FiresOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, registry.ManifestFile)
	require.NoError(t, os.WriteFile(path, []byte("runs: []\n"), 0o644))

	var fired atomic.Int32
	w, err := registry.WatchManifest(path, func() { fired.Add(1) })
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte(manifest), 0o644))

	assert.Eventually(t, func() bool { return fired.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
}

func TestManifestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, registry.ManifestFile)

	var fired atomic.Int32
	w, err := registry.WatchManifest(path, func() { fired.Add(1) })
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestManifestWatcher_CloseIsIdempotent(t *testing.T) {
	w, err := registry.WatchManifest(filepath.Join(t.TempDir(), registry.ManifestFile), func() {})
	require.NoError(t, err)
	assert.NoError(t, w.Close())
	assert.NoError(t, w.Close())
}
