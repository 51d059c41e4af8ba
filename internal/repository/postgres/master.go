package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/medicore/opd-api/internal/model"
	"github.com/medicore/opd-api/pkg/errors"
)

// Read-only views over externally owned master data.

func (r *practitionerRepository) Get(ctx context.Context, id uuid.UUID) (*model.Practitioner, error) {
	query := `
		SELECT id, tenant_id, name, department_id, status, created_at, updated_at
		FROM practitioners
		WHERE id = $1
	`
	var p model.Practitioner
	if err := r.db.GetContext(ctx, &p, query, id); err != nil {
		if isNoRows(err) {
			return nil, errors.NotFound("practitioner", err)
		}
		return nil, fmt.Errorf("failed to get practitioner: %w", err)
	}
	return &p, nil
}

func (r *departmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Department, error) {
	query := `
		SELECT id, tenant_id, name, active, created_at, updated_at
		FROM departments
		WHERE id = $1
	`
	var d model.Department
	if err := r.db.GetContext(ctx, &d, query, id); err != nil {
		if isNoRows(err) {
			return nil, errors.NotFound("department", err)
		}
		return nil, fmt.Errorf("failed to get department: %w", err)
	}
	return &d, nil
}

func (r *departmentRepository) ListAssignments(ctx context.Context, tenantID, userID uuid.UUID) ([]uuid.UUID, error) {
	query := `
		SELECT department_id FROM department_assignments
		WHERE tenant_id = $1 AND user_id = $2
	`
	var ids []uuid.UUID
	if err := r.db.SelectContext(ctx, &ids, query, tenantID, userID); err != nil {
		return nil, fmt.Errorf("failed to list department assignments: %w", err)
	}
	return ids, nil
}

func (r *departmentRepository) ListTenantIDs(ctx context.Context) ([]uuid.UUID, error) {
	query := `SELECT DISTINCT tenant_id FROM departments WHERE active = true`
	var ids []uuid.UUID
	if err := r.db.SelectContext(ctx, &ids, query); err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	return ids, nil
}

func (r *patientRepository) Get(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	query := `
		SELECT id, tenant_id, name, mrn, created_at, updated_at
		FROM patients
		WHERE id = $1
	`
	var p model.Patient
	if err := r.db.GetContext(ctx, &p, query, id); err != nil {
		if isNoRows(err) {
			return nil, errors.NotFound("patient", err)
		}
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}
	return &p, nil
}
