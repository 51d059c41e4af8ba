package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/medicore/opd-api/internal/model"
	"github.com/medicore/opd-api/pkg/pagination"
)

// All repository interfaces in one file
type (
	// AppointmentRepository owns the appointment rows and the storage-level
	// conflict protocol: Create and Reschedule surface SLOT_CONFLICT when the
	// (practitioner, date, time) uniqueness constraint rejects the insert.
	AppointmentRepository interface {
		Create(ctx context.Context, apt *model.Appointment) error
		Get(ctx context.Context, tenantID, id uuid.UUID) (*model.Appointment, error)
		// Update persists a state transition with an optimistic version check.
		Update(ctx context.Context, apt *model.Appointment) error
		// Reschedule inserts the successor and terminates the old appointment
		// in one transaction.
		Reschedule(ctx context.Context, old *model.Appointment, successor *model.Appointment) error
		List(ctx context.Context, tenantID uuid.UUID, filters *model.AppointmentFilters) ([]*model.Appointment, error)
		ListForPractitionerDay(ctx context.Context, practitionerID uuid.UUID, date string) ([]*model.Appointment, error)
		// NextTokenNumber atomically increments the per (tenant, department,
		// date) token counter.
		NextTokenNumber(ctx context.Context, tenantID, departmentID uuid.UUID, date string) (int, error)
	}

	VisitRepository interface {
		Create(ctx context.Context, visit *model.Visit) error
		Get(ctx context.Context, tenantID, id uuid.UUID) (*model.Visit, error)
		UpdateStatus(ctx context.Context, tenantID, id uuid.UUID, status model.VisitStatus) error
		// StartConsultation transitions the visit to IN_PROGRESS while holding
		// a row lock on the practitioner's in-progress visit, so two
		// concurrent starts cannot both pass the single-in-progress guard.
		StartConsultation(ctx context.Context, tenantID, id uuid.UUID, force bool) (*model.Visit, error)
		ListActiveOPDIDs(ctx context.Context, tenantID uuid.UUID) ([]uuid.UUID, error)
	}

	// QueueRepository stores the denormalized snapshot. Only the queue
	// service writes through it.
	QueueRepository interface {
		Upsert(ctx context.Context, entry *model.QueueEntry) error
		Delete(ctx context.Context, visitID uuid.UUID) error
		Get(ctx context.Context, visitID uuid.UUID) (*model.QueueEntry, error)
		// List fetches up to limit rows in queue order; callers pass limit+1
		// for the has-more protocol.
		List(ctx context.Context, tenantID uuid.UUID, filters *model.QueueFilters, limit int, cursor *pagination.Cursor) ([]*model.QueueEntry, error)
		DeleteStale(ctx context.Context, tenantID uuid.UUID, cutoff time.Time) (int64, error)
	}

	AvailabilityRepository interface {
		CreateBatch(ctx context.Context, templates []*model.AvailabilityTemplate) error
		Update(ctx context.Context, tpl *model.AvailabilityTemplate) error
		ListForPractitioner(ctx context.Context, practitionerID uuid.UUID) ([]*model.AvailabilityTemplate, error)
		ListForPractitionerDay(ctx context.Context, practitionerID uuid.UUID, day time.Weekday) ([]*model.AvailabilityTemplate, error)
	}

	// Master-data repositories are read-only views over externally owned
	// reference tables.
	PractitionerRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.Practitioner, error)
	}

	DepartmentRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.Department, error)
		ListAssignments(ctx context.Context, tenantID, userID uuid.UUID) ([]uuid.UUID, error)
		ListTenantIDs(ctx context.Context) ([]uuid.UUID, error)
	}

	PatientRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.Patient, error)
	}

	AuditRepository interface {
		Create(ctx context.Context, log *model.AuditLog) error
		Cleanup(ctx context.Context, before time.Time) (int64, error)
	}
)
