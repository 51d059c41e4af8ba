//go:build integration

package postgres

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medicore/opd-api/internal/model"
	"github.com/medicore/opd-api/pkg/errors"
)

func integrationDB(t *testing.T) *sqlx.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	schema, err := os.ReadFile("../../../migrations/001_init.sql")
	require.NoError(t, err)
	db.MustExec(string(schema))
	return db
}

// Two simultaneous starts for different waiting visits of the same
// practitioner must not both succeed: the repository serializes them on
// the practitioner row, so one wins and the other gets HAS_IN_PROGRESS.
func TestStartConsultationSerializesPerPractitioner(t *testing.T) {
	db := integrationDB(t)
	ctx := context.Background()
	repo := NewVisitRepository(db)

	tenantID := uuid.New()
	departmentID := uuid.New()
	practitionerID := uuid.New()

	db.MustExec(`INSERT INTO departments (id, tenant_id, name) VALUES ($1, $2, $3)`,
		departmentID, tenantID, "General Medicine")
	db.MustExec(`INSERT INTO practitioners (id, tenant_id, name, department_id) VALUES ($1, $2, $3, $4)`,
		practitionerID, tenantID, "Dr. Rao", departmentID)

	newWaiting := func(token int) *model.Visit {
		v := &model.Visit{
			Base:           model.Base{ID: uuid.New(), TenantID: tenantID},
			PatientID:      uuid.New(),
			PractitionerID: practitionerID,
			DepartmentID:   departmentID,
			VisitType:      model.VisitTypeOPD,
			Status:         model.VisitStatusWaiting,
			Priority:       model.PriorityNormal,
			TokenNumber:    token,
			CheckInTime:    time.Now(),
		}
		require.NoError(t, repo.Create(ctx, v))
		return v
	}

	for i := 0; i < 10; i++ {
		a := newWaiting(2*i + 1)
		b := newWaiting(2*i + 2)

		results := make([]error, 2)
		var wg sync.WaitGroup
		for j, id := range []uuid.UUID{a.ID, b.ID} {
			wg.Add(1)
			go func(slot int, visitID uuid.UUID) {
				defer wg.Done()
				_, results[slot] = repo.StartConsultation(ctx, tenantID, visitID, false)
			}(j, id)
		}
		wg.Wait()

		var wins int
		for _, err := range results {
			if err == nil {
				wins++
			} else {
				assert.True(t, errors.IsCode(err, errors.ErrHasInProgress))
			}
		}
		assert.Equal(t, 1, wins)

		var inProgress int
		require.NoError(t, db.Get(&inProgress, `
			SELECT count(*) FROM visits
			WHERE practitioner_id = $1 AND status = $2
		`, practitionerID, model.VisitStatusInProgress))
		assert.Equal(t, 1, inProgress)

		db.MustExec(`UPDATE visits SET status = $1 WHERE practitioner_id = $2`,
			model.VisitStatusCompleted, practitionerID)
	}
}
