// Package cluster assigns embeddings to clusters of a trained k-means model.
package cluster

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Manonp59/prbmg/internal/registry"
	"github.com/Manonp59/prbmg/pkg/models"
)

// Model is a loaded clustering artifact. It is read-only once loaded.
type Model struct {
	Algorithm string      `json:"algorithm"`
	NClusters int         `json:"n_clusters"`
	Dim       int         `json:"dim"`
	Centroids [][]float32 `json:"centroids"`
	// Labels maps a centroid index to the cluster number reported to
	// callers. When absent the index is the cluster number.
	Labels []int `json:"labels,omitempty"`
}

// LoadArtifact reads and validates the model.json a locator points at.
func LoadArtifact(locator string) (*Model, error) {
	path, err := registry.ArtifactPath(locator)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read cluster model: %v", models.ErrConfiguration, err)
	}

	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: parse cluster model %s: %v", models.ErrConfiguration, path, err)
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("%w: cluster model %s: %v", models.ErrConfiguration, path, err)
	}
	return &m, nil
}

func (m *Model) validate() error {
	if m.Algorithm != "" && m.Algorithm != "kmeans" {
		return fmt.Errorf("unsupported algorithm %q", m.Algorithm)
	}
	if len(m.Centroids) == 0 {
		return fmt.Errorf("no centroids")
	}
	if m.NClusters != len(m.Centroids) {
		return fmt.Errorf("n_clusters is %d but %d centroids are present", m.NClusters, len(m.Centroids))
	}
	if m.Dim <= 0 {
		return fmt.Errorf("dim must be positive, got %d", m.Dim)
	}
	for i, c := range m.Centroids {
		if len(c) != m.Dim {
			return fmt.Errorf("centroid %d has %d values, want %d", i, len(c), m.Dim)
		}
	}
	if m.Labels != nil && len(m.Labels) != len(m.Centroids) {
		return fmt.Errorf("%d labels for %d centroids", len(m.Labels), len(m.Centroids))
	}
	return nil
}

// Assign returns the cluster number of the centroid nearest to vec by
// squared euclidean distance. Ties go to the lowest centroid index.
func (m *Model) Assign(vec []float32) (int, error) {
	if len(vec) != m.Dim {
		return 0, fmt.Errorf("%w: embedding has %d dimensions, cluster model expects %d",
			models.ErrConfiguration, len(vec), m.Dim)
	}

	best, bestDist := 0, squaredDistance(vec, m.Centroids[0])
	for i, c := range m.Centroids[1:] {
		if d := squaredDistance(vec, c); d < bestDist {
			best, bestDist = i+1, d
		}
	}
	if m.Labels != nil {
		return m.Labels[best], nil
	}
	return best, nil
}

func squaredDistance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}
