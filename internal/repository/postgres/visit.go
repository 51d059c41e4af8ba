package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/medicore/opd-api/internal/model"
	"github.com/medicore/opd-api/pkg/errors"
)

const visitColumns = `
	id, tenant_id, patient_id, practitioner_id, department_id,
	visit_type, status, priority, token_number, check_in_time,
	appointment_id, created_at, updated_at
`

func (r *visitRepository) Create(ctx context.Context, visit *model.Visit) error {
	query := `
		INSERT INTO visits (` + visitColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	now := time.Now()
	if visit.ID == uuid.Nil {
		visit.ID = uuid.New()
	}
	visit.CreatedAt = now
	visit.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		visit.ID,
		visit.TenantID,
		visit.PatientID,
		visit.PractitionerID,
		visit.DepartmentID,
		visit.VisitType,
		visit.Status,
		visit.Priority,
		visit.TokenNumber,
		visit.CheckInTime,
		visit.AppointmentID,
		visit.CreatedAt,
		visit.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create visit: %w", err)
	}
	return nil
}

func (r *visitRepository) Get(ctx context.Context, tenantID, id uuid.UUID) (*model.Visit, error) {
	query := `
		SELECT ` + visitColumns + `
		FROM visits
		WHERE id = $1 AND tenant_id = $2
	`
	var visit model.Visit
	err := r.db.GetContext(ctx, &visit, query, id, tenantID)
	if err != nil {
		if isNoRows(err) {
			return nil, errors.NotFound("visit", err)
		}
		return nil, fmt.Errorf("failed to get visit: %w", err)
	}
	return &visit, nil
}

func (r *visitRepository) UpdateStatus(ctx context.Context, tenantID, id uuid.UUID, status model.VisitStatus) error {
	query := `
		UPDATE visits
		SET status = $1, updated_at = $2
		WHERE id = $3 AND tenant_id = $4
	`
	result, err := r.db.ExecContext(ctx, query, status, time.Now(), id, tenantID)
	if err != nil {
		return fmt.Errorf("failed to update visit status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return errors.NotFound("visit", nil)
	}
	return nil
}

// StartConsultation moves the visit to IN_PROGRESS under a transaction that
// row-locks the target visit and then the practitioner row. The practitioner
// lock is what serializes concurrent starts: locking only the in-progress
// visit would lock nothing at all when the practitioner has none yet, and
// two starts could both pass the guard. With the lock held, exactly one
// passes; the loser gets HAS_IN_PROGRESS with the winner's id.
func (r *visitRepository) StartConsultation(ctx context.Context, tenantID, id uuid.UUID, force bool) (*model.Visit, error) {
	var started *model.Visit

	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		var visit model.Visit
		err := tx.GetContext(ctx, &visit, `
			SELECT `+visitColumns+`
			FROM visits
			WHERE id = $1 AND tenant_id = $2
			FOR UPDATE
		`, id, tenantID)
		if err != nil {
			if isNoRows(err) {
				return errors.NotFound("visit", err)
			}
			return fmt.Errorf("failed to lock visit: %w", err)
		}

		if visit.Status != model.VisitStatusWaiting {
			return errors.Validation(
				fmt.Sprintf("cannot start consultation from status %s", visit.Status), nil)
		}

		var practitionerLock uuid.UUID
		err = tx.GetContext(ctx, &practitionerLock, `
			SELECT id FROM practitioners
			WHERE id = $1 AND tenant_id = $2
			FOR UPDATE
		`, visit.PractitionerID, tenantID)
		if err != nil {
			if isNoRows(err) {
				return errors.NotFound("practitioner", err)
			}
			return fmt.Errorf("failed to lock practitioner: %w", err)
		}

		var conflicting uuid.UUID
		err = tx.GetContext(ctx, &conflicting, `
			SELECT id FROM visits
			WHERE tenant_id = $1
			AND practitioner_id = $2
			AND status = $3
			AND id <> $4
			FOR UPDATE
		`, tenantID, visit.PractitionerID, model.VisitStatusInProgress, id)
		if err != nil && !isNoRows(err) {
			return fmt.Errorf("failed to check in-progress visits: %w", err)
		}
		if err == nil && !force {
			return errors.HasInProgress(conflicting)
		}

		now := time.Now()
		if _, err := tx.ExecContext(ctx, `
			UPDATE visits SET status = $1, updated_at = $2 WHERE id = $3
		`, model.VisitStatusInProgress, now, id); err != nil {
			return fmt.Errorf("failed to start consultation: %w", err)
		}

		visit.Status = model.VisitStatusInProgress
		visit.UpdatedAt = now
		started = &visit
		return nil
	})
	if err != nil {
		return nil, err
	}
	return started, nil
}

func (r *visitRepository) ListActiveOPDIDs(ctx context.Context, tenantID uuid.UUID) ([]uuid.UUID, error) {
	query := `
		SELECT id FROM visits
		WHERE tenant_id = $1
		AND visit_type = $2
		AND status IN ($3, $4)
		ORDER BY check_in_time ASC
	`
	var ids []uuid.UUID
	err := r.db.SelectContext(ctx, &ids, query,
		tenantID, model.VisitTypeOPD, model.VisitStatusWaiting, model.VisitStatusInProgress)
	if err != nil {
		return nil, fmt.Errorf("failed to list active OPD visits: %w", err)
	}
	return ids, nil
}
