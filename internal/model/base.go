package model

import (
	"time"

	"github.com/google/uuid"
)

// Base contains common fields for all models
type Base struct {
	ID        uuid.UUID `json:"id" db:"id"`
	TenantID  uuid.UUID `json:"tenant_id" db:"tenant_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// DateOnly is the wire and storage format for schedule dates.
const DateOnly = "2006-01-02"

// TimeOfDay is the wire and storage format for slot times.
const TimeOfDay = "15:04"

// JSONMap represents a generic JSON object
type JSONMap map[string]interface{}
