package registry

import (
	"fmt"
	"path"
	"strings"

	"github.com/Manonp59/prbmg/pkg/models"
)

const (
	artifactScheme = "file://"
	artifactFile   = "model.json"
)

// Select picks the run to serve: the highest quality score wins, runs without
// a score rank below every scored run, equal scores go to the most recently
// started run and then to the lowest run id.
func Select(runs []models.Run) (models.Run, bool) {
	if len(runs) == 0 {
		return models.Run{}, false
	}
	best := runs[0]
	for _, r := range runs[1:] {
		if better(r, best) {
			best = r
		}
	}
	return best, true
}

func better(a, b models.Run) bool {
	if a.HasScore != b.HasScore {
		return a.HasScore
	}
	if a.HasScore && a.Score != b.Score {
		return a.Score > b.Score
	}
	if !a.StartTime.Equal(b.StartTime) {
		return a.StartTime.After(b.StartTime)
	}
	return a.RunID < b.RunID
}

// Locator builds the artifact locator for run: the model.json exported
// under the run's artifact directory, in a sub-directory named after the run.
func Locator(run models.Run) (string, error) {
	if !strings.HasPrefix(run.ArtifactURI, artifactScheme) {
		return "", fmt.Errorf("%w: run %s artifact uri %q does not use %s",
			models.ErrConfiguration, run.RunID, run.ArtifactURI, artifactScheme)
	}
	dir := strings.TrimPrefix(run.ArtifactURI, artifactScheme)
	if !path.IsAbs(dir) {
		return "", fmt.Errorf("%w: run %s artifact path %q is not absolute",
			models.ErrConfiguration, run.RunID, dir)
	}
	if run.Name == "" {
		return "", fmt.Errorf("%w: run %s has no name", models.ErrConfiguration, run.RunID)
	}
	return artifactScheme + path.Join(dir, run.Name, artifactFile), nil
}

// ArtifactPath returns the filesystem path a locator points at.
func ArtifactPath(locator string) (string, error) {
	if !strings.HasPrefix(locator, artifactScheme) {
		return "", fmt.Errorf("%w: locator %q does not use %s", models.ErrConfiguration, locator, artifactScheme)
	}
	return strings.TrimPrefix(locator, artifactScheme), nil
}
