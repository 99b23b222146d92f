package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Manonp59/prbmg/pkg/models"
	"gopkg.in/yaml.v3"
)

// ManifestFile is the run manifest a LocalBackend reads from its directory.
const ManifestFile = "runs.yaml"

// LocalBackend serves runs from a manifest on the local filesystem, for
// deployments without a tracking server. The manifest is read on every
// search; caching is the Registry's job.
type LocalBackend struct {
	dir string
}

func NewLocalBackend(dir string) *LocalBackend {
	return &LocalBackend{dir: dir}
}

func (b *LocalBackend) Name() string { return "local" }

// ManifestPath is the file watched for changes.
func (b *LocalBackend) ManifestPath() string {
	return filepath.Join(b.dir, ManifestFile)
}

type localManifest struct {
	Runs []localRun `yaml:"runs"`
}

type localRun struct {
	RunID       string    `yaml:"run_id"`
	Name        string    `yaml:"name"`
	ArtifactURI string    `yaml:"artifact_uri"`
	Score       *float64  `yaml:"score"`
	StartTime   time.Time `yaml:"start_time"`
}

func (b *LocalBackend) SearchRuns(ctx context.Context, name string) ([]models.Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(b.ManifestPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: manifest %s does not exist", ErrRegistryQuery, b.ManifestPath())
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRegistryUnreachable, err)
	}

	var manifest localManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", ErrRegistryQuery, b.ManifestPath(), err)
	}

	var runs []models.Run
	for _, r := range manifest.Runs {
		if r.Name != name {
			continue
		}
		run := models.Run{
			RunID:       r.RunID,
			Name:        r.Name,
			ArtifactURI: r.ArtifactURI,
			StartTime:   r.StartTime,
		}
		if r.Score != nil {
			run.Score = *r.Score
			run.HasScore = true
		}
		runs = append(runs, run)
	}
	return runs, nil
}
