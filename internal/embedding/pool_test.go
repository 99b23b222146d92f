package embedding

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeanPool(t *testing.T) {
	// seqLen 3, dim 2; the last position is masked out.
	hidden := []float32{1, 2, 3, 4, 100, 100}
	mask := []int64{1, 1, 0}

	assert.Equal(t, []float32{2, 3}, meanPool(hidden, mask, 2))
}

func TestMeanPool_NoTokens(t *testing.T) {
	assert.Equal(t, []float32{0, 0}, meanPool([]float32{1, 2}, []int64{0}, 2))
}

func TestL2Normalize(t *testing.T) {
	v := l2Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	assert.Equal(t, []float32{0, 0}, l2Normalize([]float32{0, 0}))
}

// writeSafetensors writes a single F32 tensor named name with the given shape.
func writeSafetensors(t *testing.T, name string, shape []int, values []float32) string {
	t.Helper()
	header := map[string]any{
		name: map[string]any{
			"dtype":        "F32",
			"shape":        shape,
			"data_offsets": []int{0, len(values) * 4},
		},
	}
	hdr, err := json.Marshal(header)
	require.NoError(t, err)

	buf := make([]byte, 8, 8+len(hdr)+len(values)*4)
	binary.LittleEndian.PutUint64(buf, uint64(len(hdr)))
	buf = append(buf, hdr...)
	for _, v := range values {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
	}

	path := filepath.Join(t.TempDir(), "projection.safetensors")
	require.NoError(t, os.WriteFile(path, buf, 0o644))
	return path
}

func TestLoadProjection(t *testing.T) {
	// 2x3 matrix: out=2, in=3.
	path := writeSafetensors(t, projectionTensor, []int{2, 3}, []float32{1, 0, 0, 0, 1, 1})

	p, err := loadProjection(path)
	require.NoError(t, err)
	assert.Equal(t, 3, p.in)
	assert.Equal(t, 2, p.out)
	assert.Equal(t, []float32{1, 5}, p.apply([]float32{1, 2, 3}))
}

func TestLoadProjection_Errors(t *testing.T) {
	_, err := loadProjection(writeSafetensors(t, "other.weight", []int{1, 1}, []float32{1}))
	assert.ErrorContains(t, err, projectionTensor)

	_, err = loadProjection(writeSafetensors(t, projectionTensor, []int{3}, []float32{1, 2, 3}))
	assert.Error(t, err)

	short := filepath.Join(t.TempDir(), "short.safetensors")
	require.NoError(t, os.WriteFile(short, []byte{1, 2}, 0o644))
	_, err = loadProjection(short)
	assert.Error(t, err)
}
