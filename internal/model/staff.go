package model

import (
	"github.com/google/uuid"
)

type PractitionerStatus string

const (
	PractitionerActive   PractitionerStatus = "ACTIVE"
	PractitionerOnLeave  PractitionerStatus = "ON_LEAVE"
	PractitionerInactive PractitionerStatus = "INACTIVE"
)

// Practitioner is read-only master data owned by an external service.
type Practitioner struct {
	Base
	Name         string             `db:"name" json:"name"`
	DepartmentID uuid.UUID          `db:"department_id" json:"department_id"`
	Status       PractitionerStatus `db:"status" json:"status"`
}

// Department is an organizational unit scoping staff access.
type Department struct {
	Base
	Name   string `db:"name" json:"name"`
	Active bool   `db:"active" json:"active"`
}

// DepartmentAssignment links a staff user to a department they may act in.
type DepartmentAssignment struct {
	UserID       uuid.UUID `db:"user_id" json:"user_id"`
	DepartmentID uuid.UUID `db:"department_id" json:"department_id"`
	TenantID     uuid.UUID `db:"tenant_id" json:"tenant_id"`
}

// Patient is a read-only row from the patient directory, just enough for
// queue display.
type Patient struct {
	Base
	Name string `db:"name" json:"name"`
	MRN  string `db:"mrn" json:"mrn"`
}
