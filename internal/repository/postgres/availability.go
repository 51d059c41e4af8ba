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

const availabilityColumns = `
	id, tenant_id, practitioner_id, department_id, day_of_week,
	start_time, end_time, slot_minutes, version, active,
	created_at, updated_at
`

func (r *availabilityRepository) CreateBatch(ctx context.Context, templates []*model.AvailabilityTemplate) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO availability_templates (` + availabilityColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`
		now := time.Now()
		for _, tpl := range templates {
			if tpl.ID == uuid.Nil {
				tpl.ID = uuid.New()
			}
			tpl.CreatedAt = now
			tpl.UpdatedAt = now
			tpl.Version = 1

			_, err := tx.ExecContext(ctx, query,
				tpl.ID,
				tpl.TenantID,
				tpl.PractitionerID,
				tpl.DepartmentID,
				tpl.DayOfWeek,
				tpl.StartTime,
				tpl.EndTime,
				tpl.SlotMinutes,
				tpl.Version,
				tpl.Active,
				tpl.CreatedAt,
				tpl.UpdatedAt,
			)
			if err != nil {
				return fmt.Errorf("failed to create availability template: %w", err)
			}
		}
		return nil
	})
}

func (r *availabilityRepository) Update(ctx context.Context, tpl *model.AvailabilityTemplate) error {
	query := `
		UPDATE availability_templates
		SET start_time = $1, end_time = $2, slot_minutes = $3, active = $4,
		    version = version + 1, updated_at = $5
		WHERE id = $6 AND tenant_id = $7 AND version = $8
	`
	tpl.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, query,
		tpl.StartTime,
		tpl.EndTime,
		tpl.SlotMinutes,
		tpl.Active,
		tpl.UpdatedAt,
		tpl.ID,
		tpl.TenantID,
		tpl.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update availability template: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return errors.VersionConflict("availability template")
	}

	tpl.Version++
	return nil
}

func (r *availabilityRepository) ListForPractitioner(ctx context.Context, practitionerID uuid.UUID) ([]*model.AvailabilityTemplate, error) {
	query := `
		SELECT ` + availabilityColumns + `
		FROM availability_templates
		WHERE practitioner_id = $1 AND active = true
		ORDER BY day_of_week ASC, start_time ASC
	`
	var templates []*model.AvailabilityTemplate
	if err := r.db.SelectContext(ctx, &templates, query, practitionerID); err != nil {
		return nil, fmt.Errorf("failed to list availability templates: %w", err)
	}
	return templates, nil
}

func (r *availabilityRepository) ListForPractitionerDay(ctx context.Context, practitionerID uuid.UUID, day time.Weekday) ([]*model.AvailabilityTemplate, error) {
	query := `
		SELECT ` + availabilityColumns + `
		FROM availability_templates
		WHERE practitioner_id = $1 AND day_of_week = $2 AND active = true
		ORDER BY start_time ASC
	`
	var templates []*model.AvailabilityTemplate
	if err := r.db.SelectContext(ctx, &templates, query, practitionerID, day); err != nil {
		return nil, fmt.Errorf("failed to list day availability templates: %w", err)
	}
	return templates, nil
}
