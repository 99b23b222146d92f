package models

import (
	"time"

	"github.com/google/uuid"
)

// Incident is a stored incident as exposed by the incident storage API.
type Incident struct {
	IncidentNumber string `db:"incident_number" json:"incident_number"`
	CreationDate   string `db:"creation_date"   json:"creation_date"`
	Description    string `db:"description"     json:"description"`
	CategoryFull   string `db:"category_full"   json:"category_full"`
	CIName         string `db:"ci_name"         json:"ci_name"`
	LocationFull   string `db:"location_full"   json:"location_full"`
}

// PredictionRequest converts the incident into a prediction input.
func (i Incident) PredictionRequest() PredictionRequest {
	return PredictionRequest{
		IncidentNumber: i.IncidentNumber,
		CreationDate:   i.CreationDate,
		Description:    i.Description,
		CategoryFull:   i.CategoryFull,
		CIName:         i.CIName,
		LocationFull:   i.LocationFull,
	}
}

// CILocation maps a configuration item to its location.
type CILocation struct {
	CIName       string `db:"ci_name"       json:"ci_name"`
	LocationFull string `db:"location_full" json:"location_full"`
}

// User is an account allowed to request bearer tokens.
// Only the bcrypt hash of the password is stored.
type User struct {
	ID             uuid.UUID `db:"id"              json:"id"`
	Username       string    `db:"username"        json:"username"`
	Email          string    `db:"email"           json:"email"`
	FullName       string    `db:"full_name"       json:"full_name"`
	HashedPassword string    `db:"hashed_password" json:"-"`
	CreatedAt      time.Time `db:"created_at"      json:"created_at"`
}
