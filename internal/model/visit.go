package model

import (
	"time"

	"github.com/google/uuid"
)

type VisitType string

const (
	VisitTypeOPD       VisitType = "OPD"
	VisitTypeIPD       VisitType = "IPD"
	VisitTypeEmergency VisitType = "EMERGENCY"
)

type VisitStatus string

const (
	VisitStatusWaiting    VisitStatus = "WAITING"
	VisitStatusInProgress VisitStatus = "IN_PROGRESS"
	VisitStatusCompleted  VisitStatus = "COMPLETED"
	VisitStatusCancelled  VisitStatus = "CANCELLED"
)

func (s VisitStatus) Terminal() bool {
	return s == VisitStatusCompleted || s == VisitStatusCancelled
}

// VisitPriority orders the queue. Higher ranks sort first.
type VisitPriority string

const (
	PriorityEmergency VisitPriority = "EMERGENCY"
	PriorityUrgent    VisitPriority = "URGENT"
	PriorityNormal    VisitPriority = "NORMAL"
	PriorityLow       VisitPriority = "LOW"
)

var priorityRank = map[VisitPriority]int{
	PriorityEmergency: 4,
	PriorityUrgent:    3,
	PriorityNormal:    2,
	PriorityLow:       1,
}

// Rank returns the numeric sort weight of the priority, 0 for unknown values.
func (p VisitPriority) Rank() int {
	return priorityRank[p]
}

func (p VisitPriority) Valid() bool {
	_, ok := priorityRank[p]
	return ok
}

// Visit is the operational record of a patient's presence. The queue
// snapshot is derived from it and never outlives it.
type Visit struct {
	Base
	PatientID      uuid.UUID     `db:"patient_id" json:"patient_id"`
	PractitionerID uuid.UUID     `db:"practitioner_id" json:"practitioner_id"`
	DepartmentID   uuid.UUID     `db:"department_id" json:"department_id"`
	VisitType      VisitType     `db:"visit_type" json:"visit_type"`
	Status         VisitStatus   `db:"status" json:"status"`
	Priority       VisitPriority `db:"priority" json:"priority"`
	TokenNumber    int           `db:"token_number" json:"token_number"`
	CheckInTime    time.Time     `db:"check_in_time" json:"check_in_time"`
	AppointmentID  *uuid.UUID    `db:"appointment_id" json:"appointment_id,omitempty"`
}

// QueueActive reports whether the visit must have a queue snapshot entry.
// The snapshot invariant: an entry exists iff this returns true.
func (v *Visit) QueueActive() bool {
	return v.VisitType == VisitTypeOPD &&
		(v.Status == VisitStatusWaiting || v.Status == VisitStatusInProgress)
}
