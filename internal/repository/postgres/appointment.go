package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/medicore/opd-api/internal/model"
	"github.com/medicore/opd-api/pkg/errors"
)

// appointmentsSlotConstraint is the partial unique index on
// (practitioner_id, scheduled_date, start_time) WHERE status is active.
// Losing a concurrent insert race surfaces here as 23505, never as a
// silently overwritten row.
const appointmentsSlotConstraint = "appointments_active_slot_key"

const appointmentColumns = `
	id, tenant_id, patient_id, practitioner_id, department_id,
	scheduled_date, start_time, end_time, status, source, priority,
	token_number, cancel_reason, visit_id, rescheduled_to, version,
	created_at, updated_at
`

func (r *appointmentRepository) Create(ctx context.Context, apt *model.Appointment) error {
	query := `
		INSERT INTO appointments (` + appointmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	now := time.Now()
	if apt.ID == uuid.Nil {
		apt.ID = uuid.New()
	}
	apt.CreatedAt = now
	apt.UpdatedAt = now
	apt.Version = 1

	_, err := r.db.ExecContext(ctx, query,
		apt.ID,
		apt.TenantID,
		apt.PatientID,
		apt.PractitionerID,
		apt.DepartmentID,
		apt.ScheduledDate,
		apt.StartTime,
		apt.EndTime,
		apt.Status,
		apt.Source,
		apt.Priority,
		apt.TokenNumber,
		apt.CancelReason,
		apt.VisitID,
		apt.RescheduledTo,
		apt.Version,
		apt.CreatedAt,
		apt.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, appointmentsSlotConstraint) {
			return errors.SlotConflict(apt.PractitionerID, apt.ScheduledDate, apt.StartTime)
		}
		return fmt.Errorf("failed to create appointment: %w", err)
	}
	return nil
}

func (r *appointmentRepository) Get(ctx context.Context, tenantID, id uuid.UUID) (*model.Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE id = $1 AND tenant_id = $2
	`
	var apt model.Appointment
	err := r.db.GetContext(ctx, &apt, query, id, tenantID)
	if err != nil {
		if isNoRows(err) {
			return nil, errors.NotFound("appointment", err)
		}
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return &apt, nil
}

func (r *appointmentRepository) Update(ctx context.Context, apt *model.Appointment) error {
	query := `
		UPDATE appointments
		SET status = $1, cancel_reason = $2, visit_id = $3, rescheduled_to = $4,
		    version = version + 1, updated_at = $5
		WHERE id = $6 AND tenant_id = $7 AND version = $8
	`
	apt.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, query,
		apt.Status,
		apt.CancelReason,
		apt.VisitID,
		apt.RescheduledTo,
		apt.UpdatedAt,
		apt.ID,
		apt.TenantID,
		apt.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update appointment: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		// Either gone or a stale version; distinguish for the caller.
		if _, getErr := r.Get(ctx, apt.TenantID, apt.ID); getErr != nil {
			return getErr
		}
		return errors.VersionConflict("appointment")
	}

	apt.Version++
	return nil
}

func (r *appointmentRepository) Reschedule(ctx context.Context, old *model.Appointment, successor *model.Appointment) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		now := time.Now()
		if successor.ID == uuid.Nil {
			successor.ID = uuid.New()
		}
		successor.CreatedAt = now
		successor.UpdatedAt = now
		successor.Version = 1

		insert := `
			INSERT INTO appointments (` + appointmentColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		`
		_, err := tx.ExecContext(ctx, insert,
			successor.ID,
			successor.TenantID,
			successor.PatientID,
			successor.PractitionerID,
			successor.DepartmentID,
			successor.ScheduledDate,
			successor.StartTime,
			successor.EndTime,
			successor.Status,
			successor.Source,
			successor.Priority,
			successor.TokenNumber,
			successor.CancelReason,
			successor.VisitID,
			successor.RescheduledTo,
			successor.Version,
			successor.CreatedAt,
			successor.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err, appointmentsSlotConstraint) {
				return errors.SlotConflict(successor.PractitionerID, successor.ScheduledDate, successor.StartTime)
			}
			return fmt.Errorf("failed to insert successor appointment: %w", err)
		}

		update := `
			UPDATE appointments
			SET status = $1, rescheduled_to = $2, version = version + 1, updated_at = $3
			WHERE id = $4 AND tenant_id = $5 AND version = $6
		`
		result, err := tx.ExecContext(ctx, update,
			model.AppointmentStatusRescheduled,
			successor.ID,
			now,
			old.ID,
			old.TenantID,
			old.Version,
		)
		if err != nil {
			return fmt.Errorf("failed to terminate old appointment: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return errors.VersionConflict("appointment")
		}
		return nil
	})
}

func (r *appointmentRepository) List(ctx context.Context, tenantID uuid.UUID, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE tenant_id = $1
	`
	args := []interface{}{tenantID}
	argCount := 2

	if filters != nil {
		if len(filters.DepartmentIDs) > 0 {
			query += fmt.Sprintf(" AND department_id = ANY($%d)", argCount)
			args = append(args, pq.Array(filters.DepartmentIDs))
			argCount++
		}
		if filters.PractitionerID != uuid.Nil {
			query += fmt.Sprintf(" AND practitioner_id = $%d", argCount)
			args = append(args, filters.PractitionerID)
			argCount++
		}
		if filters.PatientID != uuid.Nil {
			query += fmt.Sprintf(" AND patient_id = $%d", argCount)
			args = append(args, filters.PatientID)
			argCount++
		}
		if filters.Status != "" {
			query += fmt.Sprintf(" AND status = $%d", argCount)
			args = append(args, filters.Status)
			argCount++
		}
		if filters.DateFrom != "" {
			query += fmt.Sprintf(" AND scheduled_date >= $%d", argCount)
			args = append(args, filters.DateFrom)
			argCount++
		}
		if filters.DateTo != "" {
			query += fmt.Sprintf(" AND scheduled_date <= $%d", argCount)
			args = append(args, filters.DateTo)
			argCount++
		}
	}

	query += " ORDER BY scheduled_date ASC, start_time ASC, id ASC"

	var appointments []*model.Appointment
	if err := r.db.SelectContext(ctx, &appointments, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	return appointments, nil
}

func (r *appointmentRepository) ListForPractitionerDay(ctx context.Context, practitionerID uuid.UUID, date string) ([]*model.Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE practitioner_id = $1
		AND scheduled_date = $2
		AND status NOT IN ('CANCELLED', 'RESCHEDULED', 'NO_SHOW')
		ORDER BY start_time ASC
	`
	var appointments []*model.Appointment
	if err := r.db.SelectContext(ctx, &appointments, query, practitionerID, date); err != nil {
		return nil, fmt.Errorf("failed to list practitioner day appointments: %w", err)
	}
	return appointments, nil
}

// NextTokenNumber serializes token assignment per (tenant, department, date)
// through a counter row upsert. Concurrent creates queue on the row lock, so
// tokens come out unique and strictly increasing.
func (r *appointmentRepository) NextTokenNumber(ctx context.Context, tenantID, departmentID uuid.UUID, date string) (int, error) {
	query := `
		INSERT INTO token_counters (tenant_id, department_id, counter_date, value)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (tenant_id, department_id, counter_date)
		DO UPDATE SET value = token_counters.value + 1
		RETURNING value
	`
	var token int
	if err := r.db.GetContext(ctx, &token, query, tenantID, departmentID, date); err != nil {
		return 0, fmt.Errorf("failed to assign token number: %w", err)
	}
	return token, nil
}
