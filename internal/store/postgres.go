package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/Manonp59/prbmg/pkg/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// maxIDAttempts bounds how often a colliding prediction_id is regenerated.
const maxIDAttempts = 3

const predictionColumns = `prediction_id, incident_number, creation_date, description, category_full, ci_name,
	location_full, resulted_embeddings, cluster_number, problem_title, model, created_at, updated_at`

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool  *pgxpool.Pool
	newID func() (string, error)
}

// Option configures a PostgresStore.
type Option func(*PostgresStore)

// WithIDGenerator replaces the prediction_id generator.
func WithIDGenerator(fn func() (string, error)) Option {
	return func(s *PostgresStore) { s.newID = fn }
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...Option) *PostgresStore {
	s := &PostgresStore{pool: pool, newID: NewPredictionID}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Predictions ---

// UpsertPrediction writes rec keyed by incident number. The existence check
// and the write are one statement: a conflict on incident_number updates the
// stored row in place and keeps its prediction_id. Concurrent writers for the
// same incident resolve to last write wins.
func (s *PostgresStore) UpsertPrediction(ctx context.Context, rec *models.PredictionRecord) (*models.PredictionRecord, error) {
	var lastErr error
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id, err := s.newID()
		if err != nil {
			return nil, err
		}

		result, err := s.upsertPrediction(ctx, id, rec)
		if err == nil {
			return result, nil
		}
		if !isPrimaryKeyCollision(err) {
			return nil, fmt.Errorf("upsert prediction %s: %w", rec.IncidentNumber, err)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("upsert prediction %s: prediction id collided %d times: %w",
		rec.IncidentNumber, maxIDAttempts, lastErr)
}

func (s *PostgresStore) upsertPrediction(ctx context.Context, id string, rec *models.PredictionRecord) (*models.PredictionRecord, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO predictions (prediction_id, incident_number, creation_date, description, category_full, ci_name,
		   location_full, resulted_embeddings, cluster_number, problem_title, model, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
		 ON CONFLICT (incident_number) DO UPDATE SET
		   creation_date = EXCLUDED.creation_date,
		   description = EXCLUDED.description,
		   category_full = EXCLUDED.category_full,
		   ci_name = EXCLUDED.ci_name,
		   location_full = EXCLUDED.location_full,
		   resulted_embeddings = EXCLUDED.resulted_embeddings,
		   cluster_number = EXCLUDED.cluster_number,
		   problem_title = EXCLUDED.problem_title,
		   model = EXCLUDED.model,
		   updated_at = NOW()
		 RETURNING `+predictionColumns,
		id, rec.IncidentNumber, rec.CreationDate, rec.Description, rec.CategoryFull, rec.CIName,
		rec.LocationFull, rec.Embedding, rec.ClusterNumber, rec.ProblemTitle, rec.ModelName,
	)
	return scanPrediction(row)
}

func (s *PostgresStore) GetPrediction(ctx context.Context, incidentNumber string) (*models.PredictionRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+predictionColumns+` FROM predictions WHERE incident_number = $1`, incidentNumber)
	rec, err := scanPrediction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get prediction: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) CountPredictions(ctx context.Context, incidentNumber string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM predictions WHERE incident_number = $1`, incidentNumber).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count predictions: %w", err)
	}
	return n, nil
}

func scanPrediction(row pgx.Row) (*models.PredictionRecord, error) {
	var r models.PredictionRecord
	err := row.Scan(&r.PredictionID, &r.IncidentNumber, &r.CreationDate, &r.Description, &r.CategoryFull,
		&r.CIName, &r.LocationFull, &r.Embedding, &r.ClusterNumber, &r.ProblemTitle, &r.ModelName,
		&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// --- Collaborator tables ---

// ClusterTitles loads the title table written by the offline naming job for modelName.
func (s *PostgresStore) ClusterTitles(ctx context.Context, modelName string) (models.ClusterTitleTable, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT cluster_number, problem_title FROM cluster_titles WHERE model_name = $1`, modelName)
	if err != nil {
		return nil, fmt.Errorf("list cluster titles: %w", err)
	}
	defer rows.Close()

	titles := models.ClusterTitleTable{}
	for rows.Next() {
		var (
			cluster int
			title   string
		)
		if err := rows.Scan(&cluster, &title); err != nil {
			return nil, fmt.Errorf("scan cluster title: %w", err)
		}
		titles[cluster] = title
	}
	return titles, rows.Err()
}

func (s *PostgresStore) GetIncident(ctx context.Context, incidentNumber string) (*models.Incident, error) {
	var i models.Incident
	err := s.pool.QueryRow(ctx,
		`SELECT incident_number, creation_date, description, category_full, ci_name, location_full
		 FROM incidents WHERE incident_number = $1`, incidentNumber,
	).Scan(&i.IncidentNumber, &i.CreationDate, &i.Description, &i.CategoryFull, &i.CIName, &i.LocationFull)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get incident: %w", err)
	}
	return &i, nil
}

func (s *PostgresStore) GetCILocation(ctx context.Context, ciName string) (*models.CILocation, error) {
	var l models.CILocation
	err := s.pool.QueryRow(ctx,
		`SELECT ci_name, location_full FROM ci_location WHERE ci_name = $1`, ciName,
	).Scan(&l.CIName, &l.LocationFull)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get ci location: %w", err)
	}
	return &l, nil
}

// --- Users ---

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, email, full_name, hashed_password, created_at FROM users WHERE username = $1`, username,
	).Scan(&u.ID, &u.Username, &u.Email, &u.FullName, &u.HashedPassword, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, user *models.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, username, email, full_name, hashed_password, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID, user.Username, user.Email, user.FullName, user.HashedPassword, user.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

// isPrimaryKeyCollision reports a unique violation on the generated prediction_id.
func isPrimaryKeyCollision(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == "predictions_pkey"
	}
	return false
}
