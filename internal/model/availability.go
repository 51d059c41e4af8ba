package model

import (
	"time"

	"github.com/google/uuid"
)

// AvailabilityTemplate is a recurring weekly consultation window. Versioned
// for optimistic concurrency: administrators edit these concurrently.
type AvailabilityTemplate struct {
	Base
	PractitionerID uuid.UUID    `db:"practitioner_id" json:"practitioner_id"`
	DepartmentID   uuid.UUID    `db:"department_id" json:"department_id"`
	DayOfWeek      time.Weekday `db:"day_of_week" json:"day_of_week"`
	StartTime      string       `db:"start_time" json:"start_time"`
	EndTime        string       `db:"end_time" json:"end_time"`
	SlotMinutes    int          `db:"slot_minutes" json:"slot_minutes"`
	Version        int          `db:"version" json:"version"`
	Active         bool         `db:"active" json:"active"`
}

// Slot is a computed candidate appointment time. Never persisted.
type Slot struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Available bool      `json:"available"`
	Reason    string    `json:"reason,omitempty"`
}

// Slot unavailability reasons.
const (
	SlotReasonBooked          = "booked"
	SlotReasonPractitioner    = "practitioner_unavailable"
	SlotReasonOtherDepartment = "department_mismatch"
)

type AvailabilityWindow struct {
	StartTime   string `json:"start_time" validate:"required,datetime=15:04"`
	EndTime     string `json:"end_time" validate:"required,datetime=15:04"`
	SlotMinutes int    `json:"slot_minutes" validate:"required,min=5,max=120"`
}

type BulkAvailabilityRequest struct {
	PractitionerID uuid.UUID          `json:"practitioner_id" validate:"required"`
	DepartmentID   uuid.UUID          `json:"department_id" validate:"required"`
	DaysOfWeek     []time.Weekday     `json:"days_of_week" validate:"required,min=1,max=7,dive,min=0,max=6"`
	Window         AvailabilityWindow `json:"window" validate:"required"`
}
