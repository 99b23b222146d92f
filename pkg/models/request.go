// Package models contains shared data models used across the prbmg codebase.
package models

import (
	"strings"
	"time"
)

// PredictionRequest is one incident submitted for clustering.
type PredictionRequest struct {
	IncidentNumber string `json:"incident_number"`
	CreationDate   string `json:"creation_date"`
	Description    string `json:"description"`
	CategoryFull   string `json:"category_full"`
	CIName         string `json:"ci_name"`
	LocationFull   string `json:"location_full"`
}

// Validate checks that every required field is present.
// creation_date is optional.
func (r PredictionRequest) Validate() error {
	fields := map[string]string{}
	required := []struct {
		name  string
		value string
	}{
		{"incident_number", r.IncidentNumber},
		{"description", r.Description},
		{"category_full", r.CategoryFull},
		{"ci_name", r.CIName},
		{"location_full", r.LocationFull},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			fields[f.name] = "is required"
		}
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// ResolvedModel identifies the concrete clustering artifact chosen for a
// logical model name. Values are never mutated after resolution.
type ResolvedModel struct {
	Name       string    `json:"name"`
	RunID      string    `json:"run_id"`
	Locator    string    `json:"locator"`
	Score      float64   `json:"score"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Run is one trained-model run as recorded by the run registry.
type Run struct {
	RunID       string    `json:"run_id"       yaml:"run_id"`
	Name        string    `json:"name"         yaml:"name"`
	ArtifactURI string    `json:"artifact_uri" yaml:"artifact_uri"`
	Score       float64   `json:"score"        yaml:"score"`
	HasScore    bool      `json:"has_score"    yaml:"-"`
	StartTime   time.Time `json:"start_time"   yaml:"start_time"`
}
