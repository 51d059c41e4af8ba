package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/medicore/opd-api/internal/model"
	"github.com/medicore/opd-api/pkg/errors"
	"github.com/medicore/opd-api/pkg/pagination"
)

const queueColumns = `
	visit_id, tenant_id, department_id, department_name,
	practitioner_id, practitioner_name, patient_id, patient_name, patient_mrn,
	priority, priority_rank, status, token_number, check_in_time, synced_at
`

// Upsert writes the snapshot row keyed by visit id. synced_at moves on every
// call but the payload columns stay byte-identical for an unchanged visit,
// which is what makes SyncSnapshot idempotent.
func (r *queueRepository) Upsert(ctx context.Context, entry *model.QueueEntry) error {
	query := `
		INSERT INTO queue_entries (` + queueColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (visit_id) DO UPDATE SET
			department_id = EXCLUDED.department_id,
			department_name = EXCLUDED.department_name,
			practitioner_id = EXCLUDED.practitioner_id,
			practitioner_name = EXCLUDED.practitioner_name,
			patient_name = EXCLUDED.patient_name,
			patient_mrn = EXCLUDED.patient_mrn,
			priority = EXCLUDED.priority,
			priority_rank = EXCLUDED.priority_rank,
			status = EXCLUDED.status,
			token_number = EXCLUDED.token_number,
			check_in_time = EXCLUDED.check_in_time,
			synced_at = EXCLUDED.synced_at
	`
	entry.SyncedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		entry.VisitID,
		entry.TenantID,
		entry.DepartmentID,
		entry.DepartmentName,
		entry.PractitionerID,
		entry.PractitionerName,
		entry.PatientID,
		entry.PatientName,
		entry.PatientMRN,
		entry.Priority,
		entry.PriorityRank,
		entry.Status,
		entry.TokenNumber,
		entry.CheckInTime,
		entry.SyncedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert queue entry: %w", err)
	}
	return nil
}

func (r *queueRepository) Delete(ctx context.Context, visitID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM queue_entries WHERE visit_id = $1`, visitID)
	if err != nil {
		return fmt.Errorf("failed to delete queue entry: %w", err)
	}
	return nil
}

func (r *queueRepository) Get(ctx context.Context, visitID uuid.UUID) (*model.QueueEntry, error) {
	query := `SELECT ` + queueColumns + ` FROM queue_entries WHERE visit_id = $1`
	var entry model.QueueEntry
	err := r.db.GetContext(ctx, &entry, query, visitID)
	if err != nil {
		if isNoRows(err) {
			return nil, errors.NotFound("queue entry", err)
		}
		return nil, fmt.Errorf("failed to get queue entry: %w", err)
	}
	return &entry, nil
}

// List reads snapshot rows in queue order: priority rank descending, then
// check-in time ascending, then visit id as the stability tie-break. The
// cursor predicate mirrors the same three keys so pages never skip or repeat
// rows as entries come and go between fetches.
func (r *queueRepository) List(ctx context.Context, tenantID uuid.UUID, filters *model.QueueFilters, limit int, cursor *pagination.Cursor) ([]*model.QueueEntry, error) {
	query := `
		SELECT ` + queueColumns + `
		FROM queue_entries
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
		if len(filters.Statuses) > 0 {
			statuses := make([]string, len(filters.Statuses))
			for i, s := range filters.Statuses {
				statuses[i] = string(s)
			}
			query += fmt.Sprintf(" AND status = ANY($%d)", argCount)
			args = append(args, pq.Array(statuses))
			argCount++
		}
	}

	if cursor != nil {
		rank, checkIn, err := model.ParseQueueSortValue(cursor.SortValue)
		if err != nil {
			return nil, errors.Validation("invalid cursor", err)
		}
		query += fmt.Sprintf(`
			AND (priority_rank < $%d
				OR (priority_rank = $%d AND check_in_time > $%d)
				OR (priority_rank = $%d AND check_in_time = $%d AND visit_id > $%d))
		`, argCount, argCount, argCount+1, argCount, argCount+1, argCount+2)
		args = append(args, rank, checkIn, cursor.ID)
		argCount += 3
	}

	query += fmt.Sprintf(" ORDER BY priority_rank DESC, check_in_time ASC, visit_id ASC LIMIT $%d", argCount)
	args = append(args, limit)

	var entries []*model.QueueEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list queue entries: %w", err)
	}
	return entries, nil
}

// DeleteStale removes rows whose visit reached a terminal status before the
// cutoff, plus orphans whose visit disappeared. Housekeeping for drift; the
// synchronizer keeps the invariant in the normal path.
func (r *queueRepository) DeleteStale(ctx context.Context, tenantID uuid.UUID, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM queue_entries q
		WHERE q.tenant_id = $1
		AND (
			EXISTS (
				SELECT 1 FROM visits v
				WHERE v.id = q.visit_id
				AND v.status IN ($2, $3)
				AND v.updated_at < $4
			)
			OR NOT EXISTS (SELECT 1 FROM visits v WHERE v.id = q.visit_id)
		)
	`
	result, err := r.db.ExecContext(ctx, query,
		tenantID, model.VisitStatusCompleted, model.VisitStatusCancelled, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup queue entries: %w", err)
	}
	return result.RowsAffected()
}
