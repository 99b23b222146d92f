// Package registry resolves a logical model name to the artifact of its
// best-scoring trained run.
package registry

import (
	"context"
	"errors"
	"regexp"

	"github.com/Manonp59/prbmg/pkg/models"
)

// Sentinel errors for run registry failures.
var (
	ErrRegistryUnreachable = errors.New("run registry unreachable")
	ErrRegistryQuery       = errors.New("run registry query error")
	ErrRegistryTimeout     = errors.New("run registry timeout")
)

// Backend lists the recorded runs for a model name.
type Backend interface {
	SearchRuns(ctx context.Context, name string) ([]models.Run, error)
	Name() string
}

var modelNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,127}$`)

// ValidName reports whether name can be used as a model name. Names are
// embedded in registry filter expressions, so quoting characters are refused.
func ValidName(name string) bool {
	return modelNamePattern.MatchString(name)
}
