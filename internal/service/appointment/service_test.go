package appointment

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medicore/opd-api/internal/model"
	"github.com/medicore/opd-api/internal/repository"
	"github.com/medicore/opd-api/internal/repository/memory"
	"github.com/medicore/opd-api/internal/service/access"
	"github.com/medicore/opd-api/internal/service/audit"
	"github.com/medicore/opd-api/internal/service/queue"
	"github.com/medicore/opd-api/pkg/errors"
	"github.com/medicore/opd-api/pkg/logger"
)

type fixture struct {
	svc       *Service
	appts     *memory.AppointmentRepository
	visits    *memory.VisitRepository
	queueRepo *memory.QueueRepository
	master    *memory.MasterRepository
	auditRepo *memory.AuditRepository

	tenantID       uuid.UUID
	departmentID   uuid.UUID
	practitionerID uuid.UUID
	patientID      uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	visits := memory.NewVisitRepository()
	f := &fixture{
		appts:     memory.NewAppointmentRepository(),
		visits:    visits,
		queueRepo: memory.NewQueueRepository(visits),
		master:    memory.NewMasterRepository(),
		auditRepo: memory.NewAuditRepository(),

		tenantID:       uuid.New(),
		departmentID:   uuid.New(),
		practitionerID: uuid.New(),
		patientID:      uuid.New(),
	}

	f.master.Departments[f.departmentID] = &model.Department{
		Base:   model.Base{ID: f.departmentID, TenantID: f.tenantID},
		Name:   "General Medicine",
		Active: true,
	}
	f.master.Practitioners[f.practitionerID] = &model.Practitioner{
		Base:         model.Base{ID: f.practitionerID, TenantID: f.tenantID},
		Name:         "Dr. Rao",
		DepartmentID: f.departmentID,
		Status:       model.PractitionerActive,
	}
	f.master.Patients[f.patientID] = &model.Patient{
		Base: model.Base{ID: f.patientID, TenantID: f.tenantID},
		Name: "Asha Verma",
		MRN:  "MRN-1001",
	}

	log := logger.New(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard})
	guard := access.NewService(f.master.DepartmentView())
	auditor := audit.NewService(f.auditRepo, log)
	queueSvc := queue.NewService(
		f.queueRepo, f.visits, f.master, f.master.DepartmentView(),
		f.master.PatientView(), guard, log, nil)

	f.svc = NewService(f.appts, f.visits, f.master, guard, queueSvc, auditor, nil)
	// Pin the clock so "not in the past" checks are deterministic.
	f.svc.now = func() time.Time {
		return time.Date(2026, 3, 2, 9, 0, 0, 0, time.Local)
	}
	return f
}

func (f *fixture) session() *model.SessionContext {
	return &model.SessionContext{
		TenantID:      f.tenantID,
		UserID:        uuid.New(),
		DepartmentIDs: []uuid.UUID{f.departmentID},
		Capabilities: []model.Capability{
			model.CapAppointmentRead,
			model.CapAppointmentWrite,
			model.CapQueueRead,
		},
	}
}

func (f *fixture) createRequest() *model.CreateAppointmentRequest {
	return &model.CreateAppointmentRequest{
		PatientID:      f.patientID,
		PractitionerID: f.practitionerID,
		DepartmentID:   f.departmentID,
		ScheduledDate:  "2026-03-02",
		StartTime:      "10:00",
		Source:         model.BookingSourceReception,
	}
}

func TestCreateAppointment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.session()

	apt, err := f.svc.Create(ctx, sess, f.createRequest())
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusBooked, apt.Status)
	assert.Equal(t, model.PriorityNormal, apt.Priority)
	assert.Equal(t, 1, apt.TokenNumber)
	assert.Nil(t, apt.VisitID)
	assert.NotEmpty(t, f.auditRepo.Logs)
}

func TestCreateAppointmentTokensAreSequentialPerDepartmentDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.session()

	times := []string{"10:00", "10:30", "11:00"}
	for i, startTime := range times {
		req := f.createRequest()
		req.StartTime = startTime
		apt, err := f.svc.Create(ctx, sess, req)
		require.NoError(t, err)
		assert.Equal(t, i+1, apt.TokenNumber)
	}

	// A different day starts its own sequence.
	req := f.createRequest()
	req.ScheduledDate = "2026-03-03"
	apt, err := f.svc.Create(ctx, sess, req)
	require.NoError(t, err)
	assert.Equal(t, 1, apt.TokenNumber)
}

func TestCreateAppointmentSlotConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.session()

	_, err := f.svc.Create(ctx, sess, f.createRequest())
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, sess, f.createRequest())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrSlotConflict))
}

func TestCancelledSlotCanBeRebooked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.session()

	apt, err := f.svc.Create(ctx, sess, f.createRequest())
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, sess, apt.ID, "patient request")
	require.NoError(t, err)

	rebooked, err := f.svc.Create(ctx, sess, f.createRequest())
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusBooked, rebooked.Status)
}

func TestConcurrentBookingOnlyOneWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.session()

	const attempts = 8
	results := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Create(ctx, sess, f.createRequest())
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var won, lost int
	for err := range results {
		if err == nil {
			won++
		} else {
			require.True(t, errors.IsCode(err, errors.ErrSlotConflict))
			lost++
		}
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, attempts-1, lost)
}

func TestCreateAppointmentRejectsPastSchedule(t *testing.T) {
	f := newFixture(t)
	sess := f.session()

	req := f.createRequest()
	req.ScheduledDate = "2026-03-01"
	_, err := f.svc.Create(context.Background(), sess, req)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrValidation))
}

func TestCreateAppointmentPractitionerChecks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.session()

	t.Run("wrong department", func(t *testing.T) {
		other := uuid.New()
		f.master.Departments[other] = &model.Department{
			Base:   model.Base{ID: other, TenantID: f.tenantID},
			Name:   "Cardiology",
			Active: true,
		}
		sess := f.session()
		sess.DepartmentIDs = append(sess.DepartmentIDs, other)

		req := f.createRequest()
		req.DepartmentID = other
		_, err := f.svc.Create(ctx, sess, req)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrValidation))
	})

	t.Run("cross tenant", func(t *testing.T) {
		foreign := uuid.New()
		f.master.Practitioners[foreign] = &model.Practitioner{
			Base:         model.Base{ID: foreign, TenantID: uuid.New()},
			Name:         "Dr. Elsewhere",
			DepartmentID: f.departmentID,
			Status:       model.PractitionerActive,
		}
		req := f.createRequest()
		req.PractitionerID = foreign
		_, err := f.svc.Create(ctx, sess, req)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrCrossTenantAccess))
	})
}

func TestCreateWalkInEntersQueueImmediately(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.session()

	req := f.createRequest()
	req.Source = model.BookingSourceWalkIn
	apt, err := f.svc.Create(ctx, sess, req)
	require.NoError(t, err)
	require.NotNil(t, apt.VisitID)

	visit, err := f.visits.Get(ctx, f.tenantID, *apt.VisitID)
	require.NoError(t, err)
	assert.Equal(t, model.VisitStatusWaiting, visit.Status)
	assert.Equal(t, apt.TokenNumber, visit.TokenNumber)

	entry, err := f.queueRepo.Get(ctx, *apt.VisitID)
	require.NoError(t, err)
	assert.Equal(t, model.VisitStatusWaiting, entry.Status)
}

// flakyVisitRepo fails Create on demand, delegating everything else.
type flakyVisitRepo struct {
	repository.VisitRepository
	fail bool
}

func (r *flakyVisitRepo) Create(ctx context.Context, visit *model.Visit) error {
	if r.fail {
		return errors.Internal(fmt.Errorf("visit store unavailable"))
	}
	return r.VisitRepository.Create(ctx, visit)
}

func TestWalkInReleasesSlotWhenVisitCreateFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.session()

	flaky := &flakyVisitRepo{VisitRepository: f.visits, fail: true}
	f.svc.visitRepo = flaky

	req := f.createRequest()
	req.Source = model.BookingSourceWalkIn
	_, err := f.svc.Create(ctx, sess, req)
	require.Error(t, err)
	assert.Equal(t, 0, f.queueRepo.Len())

	// The failed booking must not keep the slot reserved against a retry.
	flaky.fail = false
	apt, err := f.svc.Create(ctx, sess, req)
	require.NoError(t, err)
	require.NotNil(t, apt.VisitID)
	assert.Equal(t, 1, f.queueRepo.Len())
}

func TestAppointmentLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.session()

	apt, err := f.svc.Create(ctx, sess, f.createRequest())
	require.NoError(t, err)

	apt, err = f.svc.Confirm(ctx, sess, apt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusConfirmed, apt.Status)

	apt, err = f.svc.CheckIn(ctx, sess, apt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCheckedIn, apt.Status)
	require.NotNil(t, apt.VisitID)
	visitID := *apt.VisitID

	entry, err := f.queueRepo.Get(ctx, visitID)
	require.NoError(t, err)
	assert.Equal(t, model.VisitStatusWaiting, entry.Status)

	visit, err := f.svc.StartConsultation(ctx, sess, visitID, false)
	require.NoError(t, err)
	assert.Equal(t, model.VisitStatusInProgress, visit.Status)

	got, err := f.svc.Get(ctx, sess, apt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusInProgress, got.Status)

	visit, err = f.svc.Complete(ctx, sess, visitID)
	require.NoError(t, err)
	assert.Equal(t, model.VisitStatusCompleted, visit.Status)

	got, err = f.svc.Get(ctx, sess, apt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCompleted, got.Status)

	// Completing the visit must evict its queue entry.
	_, err = f.queueRepo.Get(ctx, visitID)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrNotFound))
}

func TestInvalidTransitionsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.session()

	apt, err := f.svc.Create(ctx, sess, f.createRequest())
	require.NoError(t, err)

	apt, err = f.svc.CheckIn(ctx, sess, apt.ID)
	require.NoError(t, err)

	_, err = f.svc.Confirm(ctx, sess, apt.ID)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrValidation))

	_, err = f.svc.MarkNoShow(ctx, sess, apt.ID)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrValidation))
}

func TestCancelCheckedInAppointmentRemovesQueueEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.session()

	apt, err := f.svc.Create(ctx, sess, f.createRequest())
	require.NoError(t, err)
	apt, err = f.svc.CheckIn(ctx, sess, apt.ID)
	require.NoError(t, err)
	require.NotNil(t, apt.VisitID)

	apt, err = f.svc.Cancel(ctx, sess, apt.ID, "left without notice")
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCancelled, apt.Status)
	require.NotNil(t, apt.CancelReason)
	assert.Equal(t, "left without notice", *apt.CancelReason)

	visit, err := f.visits.Get(ctx, f.tenantID, *apt.VisitID)
	require.NoError(t, err)
	assert.Equal(t, model.VisitStatusCancelled, visit.Status)

	_, err = f.queueRepo.Get(ctx, *apt.VisitID)
	assert.True(t, errors.IsCode(err, errors.ErrNotFound))
}

func TestCancelTerminalAppointmentRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.session()

	apt, err := f.svc.Create(ctx, sess, f.createRequest())
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, sess, apt.ID, "first")
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, sess, apt.ID, "second")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrValidation))
}

func TestReschedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.session()

	apt, err := f.svc.Create(ctx, sess, f.createRequest())
	require.NoError(t, err)

	successor, err := f.svc.Reschedule(ctx, sess, apt.ID, &model.RescheduleAppointmentRequest{
		NewDate: "2026-03-04",
		NewTime: "11:30",
	})
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusBooked, successor.Status)
	assert.Equal(t, "2026-03-04", successor.ScheduledDate)
	assert.Equal(t, "11:30", successor.StartTime)
	assert.Equal(t, 1, successor.TokenNumber, "token issued for the new day")

	old, err := f.svc.Get(ctx, sess, apt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusRescheduled, old.Status)
	require.NotNil(t, old.RescheduledTo)
	assert.Equal(t, successor.ID, *old.RescheduledTo)
}

func TestRescheduleCheckedInAppointmentCancelsVisit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.session()

	apt, err := f.svc.Create(ctx, sess, f.createRequest())
	require.NoError(t, err)
	apt, err = f.svc.CheckIn(ctx, sess, apt.ID)
	require.NoError(t, err)
	require.NotNil(t, apt.VisitID)
	require.Equal(t, 1, f.queueRepo.Len())

	_, err = f.svc.Reschedule(ctx, sess, apt.ID, &model.RescheduleAppointmentRequest{
		NewDate: "2026-03-04",
		NewTime: "11:30",
	})
	require.NoError(t, err)

	// The old visit must not linger in the live queue.
	visit, err := f.visits.Get(ctx, f.tenantID, *apt.VisitID)
	require.NoError(t, err)
	assert.Equal(t, model.VisitStatusCancelled, visit.Status)
	assert.Equal(t, 0, f.queueRepo.Len())
}

func TestRescheduleIntoTakenSlotLeavesOriginalUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.session()

	blocker := f.createRequest()
	blocker.StartTime = "12:00"
	_, err := f.svc.Create(ctx, sess, blocker)
	require.NoError(t, err)

	apt, err := f.svc.Create(ctx, sess, f.createRequest())
	require.NoError(t, err)

	_, err = f.svc.Reschedule(ctx, sess, apt.ID, &model.RescheduleAppointmentRequest{
		NewDate: "2026-03-02",
		NewTime: "12:00",
	})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrSlotConflict))

	// The failed reschedule must not have terminated the original.
	got, err := f.svc.Get(ctx, sess, apt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusBooked, got.Status)
	assert.Nil(t, got.RescheduledTo)
}

func TestRescheduleTerminalAppointmentRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.session()

	apt, err := f.svc.Create(ctx, sess, f.createRequest())
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, sess, apt.ID, "gone")
	require.NoError(t, err)

	_, err = f.svc.Reschedule(ctx, sess, apt.ID, &model.RescheduleAppointmentRequest{
		NewDate: "2026-03-04",
		NewTime: "11:30",
	})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrValidation))
}

func TestStartConsultationSingleInProgressGuard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.session()

	first := f.createRequest()
	first.Source = model.BookingSourceWalkIn
	aptA, err := f.svc.Create(ctx, sess, first)
	require.NoError(t, err)

	second := f.createRequest()
	second.Source = model.BookingSourceWalkIn
	second.StartTime = "10:30"
	aptB, err := f.svc.Create(ctx, sess, second)
	require.NoError(t, err)

	_, err = f.svc.StartConsultation(ctx, sess, *aptA.VisitID, false)
	require.NoError(t, err)

	_, err = f.svc.StartConsultation(ctx, sess, *aptB.VisitID, false)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrHasInProgress))

	var inProgress *errors.HasInProgressError
	require.ErrorAs(t, err, &inProgress)
	assert.Equal(t, *aptA.VisitID, inProgress.ConflictingVisitID)

	// Force overrides the guard explicitly.
	visit, err := f.svc.StartConsultation(ctx, sess, *aptB.VisitID, true)
	require.NoError(t, err)
	assert.Equal(t, model.VisitStatusInProgress, visit.Status)
}

func TestCompleteRequiresInProgress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.session()

	req := f.createRequest()
	req.Source = model.BookingSourceWalkIn
	apt, err := f.svc.Create(ctx, sess, req)
	require.NoError(t, err)

	_, err = f.svc.Complete(ctx, sess, *apt.VisitID)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrValidation))
}

func TestListScopesToAssignedDepartments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.session()

	otherDept := uuid.New()
	otherPract := uuid.New()
	f.master.Departments[otherDept] = &model.Department{
		Base:   model.Base{ID: otherDept, TenantID: f.tenantID},
		Name:   "Cardiology",
		Active: true,
	}
	f.master.Practitioners[otherPract] = &model.Practitioner{
		Base:         model.Base{ID: otherPract, TenantID: f.tenantID},
		Name:         "Dr. Iyer",
		DepartmentID: otherDept,
		Status:       model.PractitionerActive,
	}

	admin := f.session()
	admin.SuperAdmin = true
	_, err := f.svc.Create(ctx, admin, f.createRequest())
	require.NoError(t, err)
	otherReq := f.createRequest()
	otherReq.DepartmentID = otherDept
	otherReq.PractitionerID = otherPract
	_, err = f.svc.Create(ctx, admin, otherReq)
	require.NoError(t, err)

	// Default scope collapses to the assigned set.
	list, err := f.svc.List(ctx, sess, nil)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, f.departmentID, list[0].DepartmentID)

	// Requesting an unassigned department is an access error, not a filter.
	_, err = f.svc.List(ctx, sess, &model.AppointmentFilters{
		DepartmentIDs: []uuid.UUID{otherDept},
	})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrDeptAccessDenied))

	// Super-admin sees everything in the tenant.
	all, err := f.svc.List(ctx, admin, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestWriteOperationsRequireCapability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess := f.session()
	sess.Capabilities = []model.Capability{model.CapAppointmentRead}

	_, err := f.svc.Create(ctx, sess, f.createRequest())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrPermissionDenied))
}

func TestWriteOutsideAssignedDepartmentDenied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess := f.session()
	sess.DepartmentIDs = nil

	_, err := f.svc.Create(ctx, sess, f.createRequest())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrDeptAccessDenied))
}
