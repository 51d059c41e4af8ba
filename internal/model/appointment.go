package model

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	AppointmentStatusBooked      AppointmentStatus = "BOOKED"
	AppointmentStatusConfirmed   AppointmentStatus = "CONFIRMED"
	AppointmentStatusCheckedIn   AppointmentStatus = "CHECKED_IN"
	AppointmentStatusInProgress  AppointmentStatus = "IN_PROGRESS"
	AppointmentStatusCompleted   AppointmentStatus = "COMPLETED"
	AppointmentStatusCancelled   AppointmentStatus = "CANCELLED"
	AppointmentStatusNoShow      AppointmentStatus = "NO_SHOW"
	AppointmentStatusRescheduled AppointmentStatus = "RESCHEDULED"
)

// Terminal reports whether no further transition is allowed from the status.
func (s AppointmentStatus) Terminal() bool {
	switch s {
	case AppointmentStatusCompleted, AppointmentStatusCancelled,
		AppointmentStatusNoShow, AppointmentStatusRescheduled:
		return true
	}
	return false
}

type BookingSource string

const (
	BookingSourceReception BookingSource = "reception"
	BookingSourcePhone     BookingSource = "phone"
	BookingSourceOnline    BookingSource = "online"
	BookingSourceWalkIn    BookingSource = "walk_in"
)

type Appointment struct {
	Base
	PatientID      uuid.UUID         `db:"patient_id" json:"patient_id"`
	PractitionerID uuid.UUID         `db:"practitioner_id" json:"practitioner_id"`
	DepartmentID   uuid.UUID         `db:"department_id" json:"department_id"`
	ScheduledDate  string            `db:"scheduled_date" json:"scheduled_date"`
	StartTime      string            `db:"start_time" json:"start_time"`
	EndTime        *string           `db:"end_time" json:"end_time,omitempty"`
	Status         AppointmentStatus `db:"status" json:"status"`
	Source         BookingSource     `db:"source" json:"source"`
	Priority       VisitPriority     `db:"priority" json:"priority"`
	TokenNumber    int               `db:"token_number" json:"token_number"`
	CancelReason   *string           `db:"cancel_reason" json:"cancel_reason,omitempty"`
	VisitID        *uuid.UUID        `db:"visit_id" json:"visit_id,omitempty"`
	RescheduledTo  *uuid.UUID        `db:"rescheduled_to" json:"rescheduled_to,omitempty"`
	Version        int               `db:"version" json:"version"`
}

// StartDateTime combines the date-only and time-of-day columns.
func (a *Appointment) StartDateTime() (time.Time, error) {
	return time.Parse(DateOnly+" "+TimeOfDay, a.ScheduledDate+" "+a.StartTime)
}

type CreateAppointmentRequest struct {
	PatientID      uuid.UUID     `json:"patient_id" validate:"required"`
	PractitionerID uuid.UUID     `json:"practitioner_id" validate:"required"`
	DepartmentID   uuid.UUID     `json:"department_id" validate:"required"`
	ScheduledDate  string        `json:"scheduled_date" validate:"required,datetime=2006-01-02"`
	StartTime      string        `json:"start_time" validate:"required,datetime=15:04"`
	EndTime        *string       `json:"end_time,omitempty" validate:"omitempty,datetime=15:04"`
	Priority       VisitPriority `json:"priority" validate:"omitempty,oneof=EMERGENCY URGENT NORMAL LOW"`
	Source         BookingSource `json:"source" validate:"required,oneof=reception phone online walk_in"`
}

type RescheduleAppointmentRequest struct {
	NewDate           string     `json:"new_date" validate:"required,datetime=2006-01-02"`
	NewTime           string     `json:"new_time" validate:"required,datetime=15:04"`
	NewPractitionerID *uuid.UUID `json:"new_practitioner_id,omitempty"`
}

type CancelAppointmentRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type AppointmentFilters struct {
	DepartmentIDs  []uuid.UUID
	PractitionerID uuid.UUID
	PatientID      uuid.UUID
	Status         AppointmentStatus
	DateFrom       string
	DateTo         string
}
