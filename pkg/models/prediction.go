package models

import "time"

// PredictionIDLength is the length of a generated prediction_id.
const PredictionIDLength = 14

// PredictionRecord is the persisted outcome of a prediction. There is exactly
// one record per incident number; re-predicting updates it in place.
type PredictionRecord struct {
	PredictionID   string    `db:"prediction_id"       json:"prediction_id"`
	IncidentNumber string    `db:"incident_number"     json:"incident_number"`
	CreationDate   string    `db:"creation_date"       json:"creation_date"`
	Description    string    `db:"description"         json:"description"`
	CategoryFull   string    `db:"category_full"       json:"category_full"`
	CIName         string    `db:"ci_name"             json:"ci_name"`
	LocationFull   string    `db:"location_full"       json:"location_full"`
	Embedding      []float32 `db:"resulted_embeddings" json:"resulted_embeddings"`
	ClusterNumber  int       `db:"cluster_number"      json:"cluster_number"`
	ProblemTitle   string    `db:"problem_title"       json:"problem_title"`
	ModelName      string    `db:"model"               json:"model"`
	CreatedAt      time.Time `db:"created_at"          json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"          json:"updated_at"`
}

// ClusterTitleTable maps a cluster number to its human-readable problem title.
type ClusterTitleTable map[int]string
