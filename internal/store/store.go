package store

import (
	"context"
	"errors"

	"github.com/Manonp59/prbmg/pkg/models"
)

// ErrNotFound is the models sentinel so callers outside the store can match it.
var ErrNotFound = models.ErrNotFound
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	UpsertPrediction(ctx context.Context, rec *models.PredictionRecord) (*models.PredictionRecord, error)
	GetPrediction(ctx context.Context, incidentNumber string) (*models.PredictionRecord, error)
	CountPredictions(ctx context.Context, incidentNumber string) (int, error)

	ClusterTitles(ctx context.Context, modelName string) (models.ClusterTitleTable, error)
	GetIncident(ctx context.Context, incidentNumber string) (*models.Incident, error)
	GetCILocation(ctx context.Context, ciName string) (*models.CILocation, error)

	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
}
