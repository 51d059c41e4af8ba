package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/medicore/opd-api/internal/model"
	"github.com/medicore/opd-api/internal/repository"
	"github.com/medicore/opd-api/internal/service/access"
	"github.com/medicore/opd-api/internal/service/audit"
	"github.com/medicore/opd-api/internal/service/queue"
	"github.com/medicore/opd-api/pkg/errors"
	"github.com/medicore/opd-api/pkg/metrics"
)

// Service is the appointment lifecycle state machine. Slot conflicts are
// resolved by the storage layer's uniqueness constraint, not by a
// check-then-insert read, so the guarantee holds across service instances.
type Service struct {
	repo      repository.AppointmentRepository
	visitRepo repository.VisitRepository
	practRepo repository.PractitionerRepository
	guard     *access.Service
	queueSvc  *queue.Service
	auditor   *audit.Service
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewService(
	repo repository.AppointmentRepository,
	visitRepo repository.VisitRepository,
	practRepo repository.PractitionerRepository,
	guard *access.Service,
	queueSvc *queue.Service,
	auditor *audit.Service,
	m *metrics.Metrics,
) *Service {
	return &Service{
		repo:      repo,
		visitRepo: visitRepo,
		practRepo: practRepo,
		guard:     guard,
		queueSvc:  queueSvc,
		auditor:   auditor,
		metrics:   m,
		now:       time.Now,
	}
}

func (s *Service) validateSchedule(date, startTime string) error {
	scheduled, err := time.ParseInLocation(model.DateOnly+" "+model.TimeOfDay, date+" "+startTime, time.Local)
	if err != nil {
		return errors.Validation("malformed date or time", err)
	}
	if scheduled.Before(s.now()) {
		return errors.Validation("appointment cannot be scheduled in the past", nil)
	}
	return nil
}

// resolvePractitioner loads the practitioner and verifies tenant and
// department membership.
func (s *Service) resolvePractitioner(ctx context.Context, sess *model.SessionContext, practitionerID, departmentID uuid.UUID) (*model.Practitioner, error) {
	practitioner, err := s.practRepo.Get(ctx, practitionerID)
	if err != nil {
		return nil, err
	}
	if practitioner.TenantID != sess.TenantID {
		return nil, errors.CrossTenantAccess()
	}
	if practitioner.DepartmentID != departmentID {
		return nil, errors.Validation(
			fmt.Sprintf("practitioner %s does not belong to department %s", practitionerID, departmentID), nil)
	}
	return practitioner, nil
}

// Create books an appointment. Token assignment and the slot reservation
// are each atomic; a losing concurrent writer gets SLOT_CONFLICT back.
func (s *Service) Create(ctx context.Context, sess *model.SessionContext, req *model.CreateAppointmentRequest) (*model.Appointment, error) {
	if err := s.guard.Authorize(sess, model.CapAppointmentWrite); err != nil {
		return nil, err
	}
	if err := s.guard.VerifyRecordAccess(sess, sess.TenantID, req.DepartmentID); err != nil {
		return nil, err
	}
	if err := s.validateSchedule(req.ScheduledDate, req.StartTime); err != nil {
		return nil, err
	}

	priority := req.Priority
	if priority == "" {
		priority = model.PriorityNormal
	}
	if !priority.Valid() {
		return nil, errors.Validation("unknown priority", nil)
	}

	if _, err := s.resolvePractitioner(ctx, sess, req.PractitionerID, req.DepartmentID); err != nil {
		return nil, err
	}

	token, err := s.repo.NextTokenNumber(ctx, sess.TenantID, req.DepartmentID, req.ScheduledDate)
	if err != nil {
		return nil, err
	}

	apt := &model.Appointment{
		Base: model.Base{
			ID:       uuid.New(),
			TenantID: sess.TenantID,
		},
		PatientID:      req.PatientID,
		PractitionerID: req.PractitionerID,
		DepartmentID:   req.DepartmentID,
		ScheduledDate:  req.ScheduledDate,
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
		Status:         model.AppointmentStatusBooked,
		Source:         req.Source,
		Priority:       priority,
		TokenNumber:    token,
	}

	if err := s.repo.Create(ctx, apt); err != nil {
		if errors.IsCode(err, errors.ErrSlotConflict) && s.metrics != nil {
			s.metrics.SlotConflicts.Inc()
		}
		return nil, err
	}

	// Walk-ins are already present, so they enter the queue immediately.
	if req.Source == model.BookingSourceWalkIn {
		if _, err := s.attachVisit(ctx, apt); err != nil {
			s.releaseSlot(ctx, apt)
			return nil, err
		}
	}

	if s.metrics != nil {
		s.metrics.BookingsCreated.Inc()
	}
	s.auditor.Log(ctx, sess, "create", "appointment", apt.ID, &audit.LogOptions{Changes: apt})
	return apt, nil
}

// releaseSlot cancels an appointment whose follow-up write failed, so a
// half-created booking cannot keep its slot reserved against retries.
func (s *Service) releaseSlot(ctx context.Context, apt *model.Appointment) {
	reason := "booking incomplete"
	apt.Status = model.AppointmentStatusCancelled
	apt.CancelReason = &reason
	if err := s.repo.Update(ctx, apt); err != nil {
		log.Warn().Err(err).
			Str("appointment_id", apt.ID.String()).
			Msg("failed to release slot for incomplete booking")
	}
	if apt.VisitID != nil {
		if err := s.visitRepo.UpdateStatus(ctx, apt.TenantID, *apt.VisitID, model.VisitStatusCancelled); err != nil {
			log.Warn().Err(err).
				Str("visit_id", apt.VisitID.String()).
				Msg("failed to cancel visit for incomplete booking")
		}
	}
}

// attachVisit creates the operational Visit for an appointment and links it.
func (s *Service) attachVisit(ctx context.Context, apt *model.Appointment) (*model.Visit, error) {
	visit := &model.Visit{
		Base: model.Base{
			ID:       uuid.New(),
			TenantID: apt.TenantID,
		},
		PatientID:      apt.PatientID,
		PractitionerID: apt.PractitionerID,
		DepartmentID:   apt.DepartmentID,
		VisitType:      model.VisitTypeOPD,
		Status:         model.VisitStatusWaiting,
		Priority:       apt.Priority,
		TokenNumber:    apt.TokenNumber,
		CheckInTime:    s.now(),
		AppointmentID:  &apt.ID,
	}
	if err := s.visitRepo.Create(ctx, visit); err != nil {
		return nil, err
	}

	apt.VisitID = &visit.ID
	if err := s.repo.Update(ctx, apt); err != nil {
		return nil, err
	}

	s.queueSvc.SyncAfterWrite(ctx, apt.TenantID, visit.ID)
	return visit, nil
}

// Reschedule terminates the appointment and books its successor as one
// logical operation: either both happen or neither does.
func (s *Service) Reschedule(ctx context.Context, sess *model.SessionContext, appointmentID uuid.UUID, req *model.RescheduleAppointmentRequest) (*model.Appointment, error) {
	if err := s.guard.Authorize(sess, model.CapAppointmentWrite); err != nil {
		return nil, err
	}

	apt, err := s.repo.Get(ctx, sess.TenantID, appointmentID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.VerifyRecordAccess(sess, apt.TenantID, apt.DepartmentID); err != nil {
		return nil, err
	}
	if apt.Status.Terminal() {
		return nil, errors.Validation(
			fmt.Sprintf("cannot reschedule appointment in status %s", apt.Status), nil)
	}
	if err := s.validateSchedule(req.NewDate, req.NewTime); err != nil {
		return nil, err
	}

	practitionerID := apt.PractitionerID
	if req.NewPractitionerID != nil {
		practitionerID = *req.NewPractitionerID
		if _, err := s.resolvePractitioner(ctx, sess, practitionerID, apt.DepartmentID); err != nil {
			return nil, err
		}
	}

	token, err := s.repo.NextTokenNumber(ctx, sess.TenantID, apt.DepartmentID, req.NewDate)
	if err != nil {
		return nil, err
	}

	successor := &model.Appointment{
		Base: model.Base{
			ID:       uuid.New(),
			TenantID: apt.TenantID,
		},
		PatientID:      apt.PatientID,
		PractitionerID: practitionerID,
		DepartmentID:   apt.DepartmentID,
		ScheduledDate:  req.NewDate,
		StartTime:      req.NewTime,
		EndTime:        apt.EndTime,
		Status:         model.AppointmentStatusBooked,
		Source:         apt.Source,
		Priority:       apt.Priority,
		TokenNumber:    token,
	}

	if err := s.repo.Reschedule(ctx, apt, successor); err != nil {
		if errors.IsCode(err, errors.ErrSlotConflict) && s.metrics != nil {
			s.metrics.SlotConflicts.Inc()
		}
		return nil, err
	}

	// A checked-in visit follows its appointment out: it must not stay in
	// the live queue pointing at a rescheduled booking.
	if apt.VisitID != nil {
		if err := s.visitRepo.UpdateStatus(ctx, apt.TenantID, *apt.VisitID, model.VisitStatusCancelled); err != nil {
			return nil, err
		}
		s.queueSvc.SyncAfterWrite(ctx, apt.TenantID, *apt.VisitID)
	}

	s.auditor.Log(ctx, sess, "reschedule", "appointment", apt.ID, &audit.LogOptions{
		Changes: map[string]interface{}{
			"successor_id": successor.ID,
			"new_date":     req.NewDate,
			"new_time":     req.NewTime,
		},
	})
	return successor, nil
}

// transition performs a guarded status change and persists it.
func (s *Service) transition(ctx context.Context, apt *model.Appointment, to model.AppointmentStatus) error {
	if !ValidTransition(apt.Status, to) {
		return errors.Validation(
			fmt.Sprintf("invalid transition %s -> %s", apt.Status, to), nil)
	}
	apt.Status = to
	if err := s.repo.Update(ctx, apt); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.Transitions.WithLabelValues(string(to)).Inc()
	}
	return nil
}

func (s *Service) Confirm(ctx context.Context, sess *model.SessionContext, appointmentID uuid.UUID) (*model.Appointment, error) {
	apt, err := s.loadForWrite(ctx, sess, appointmentID)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, apt, model.AppointmentStatusConfirmed); err != nil {
		return nil, err
	}
	s.auditor.Log(ctx, sess, "confirm", "appointment", apt.ID, nil)
	return apt, nil
}

// Cancel is allowed from any non-terminal state. A linked visit is
// cancelled with it, which removes its queue entry on sync.
func (s *Service) Cancel(ctx context.Context, sess *model.SessionContext, appointmentID uuid.UUID, reason string) (*model.Appointment, error) {
	apt, err := s.loadForWrite(ctx, sess, appointmentID)
	if err != nil {
		return nil, err
	}

	apt.CancelReason = &reason
	if err := s.transition(ctx, apt, model.AppointmentStatusCancelled); err != nil {
		return nil, err
	}

	if apt.VisitID != nil {
		if err := s.visitRepo.UpdateStatus(ctx, apt.TenantID, *apt.VisitID, model.VisitStatusCancelled); err != nil {
			return nil, err
		}
		s.queueSvc.SyncAfterWrite(ctx, apt.TenantID, *apt.VisitID)
	}

	s.auditor.Log(ctx, sess, "cancel", "appointment", apt.ID, &audit.LogOptions{
		Changes: map[string]interface{}{"reason": reason},
	})
	return apt, nil
}

func (s *Service) MarkNoShow(ctx context.Context, sess *model.SessionContext, appointmentID uuid.UUID) (*model.Appointment, error) {
	apt, err := s.loadForWrite(ctx, sess, appointmentID)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, apt, model.AppointmentStatusNoShow); err != nil {
		return nil, err
	}
	s.auditor.Log(ctx, sess, "no_show", "appointment", apt.ID, nil)
	return apt, nil
}

// CheckIn marks the patient as arrived: the appointment moves to CHECKED_IN
// and its visit enters the waiting queue.
func (s *Service) CheckIn(ctx context.Context, sess *model.SessionContext, appointmentID uuid.UUID) (*model.Appointment, error) {
	apt, err := s.loadForWrite(ctx, sess, appointmentID)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, apt, model.AppointmentStatusCheckedIn); err != nil {
		return nil, err
	}

	if apt.VisitID == nil {
		if _, err := s.attachVisit(ctx, apt); err != nil {
			return nil, err
		}
	} else {
		s.queueSvc.SyncAfterWrite(ctx, apt.TenantID, *apt.VisitID)
	}

	s.auditor.Log(ctx, sess, "check_in", "appointment", apt.ID, nil)
	return apt, nil
}

// StartConsultation begins the consultation for a waiting visit. The
// single-in-progress-per-practitioner invariant is enforced under a row
// lock in the repository; force overrides it explicitly.
func (s *Service) StartConsultation(ctx context.Context, sess *model.SessionContext, visitID uuid.UUID, force bool) (*model.Visit, error) {
	if err := s.guard.Authorize(sess, model.CapAppointmentWrite); err != nil {
		return nil, err
	}

	visit, err := s.visitRepo.Get(ctx, sess.TenantID, visitID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.VerifyRecordAccess(sess, visit.TenantID, visit.DepartmentID); err != nil {
		return nil, err
	}

	started, err := s.visitRepo.StartConsultation(ctx, sess.TenantID, visitID, force)
	if err != nil {
		return nil, err
	}

	if started.AppointmentID != nil {
		apt, err := s.repo.Get(ctx, sess.TenantID, *started.AppointmentID)
		if err != nil {
			return nil, err
		}
		if err := s.transition(ctx, apt, model.AppointmentStatusInProgress); err != nil {
			return nil, err
		}
	}

	s.queueSvc.SyncAfterWrite(ctx, sess.TenantID, visitID)
	s.auditor.Log(ctx, sess, "start_consultation", "visit", visitID, nil)
	return started, nil
}

// Complete finishes an in-progress consultation. The visit leaves the
// active queue on the sync that follows.
func (s *Service) Complete(ctx context.Context, sess *model.SessionContext, visitID uuid.UUID) (*model.Visit, error) {
	if err := s.guard.Authorize(sess, model.CapAppointmentWrite); err != nil {
		return nil, err
	}

	visit, err := s.visitRepo.Get(ctx, sess.TenantID, visitID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.VerifyRecordAccess(sess, visit.TenantID, visit.DepartmentID); err != nil {
		return nil, err
	}
	if visit.Status != model.VisitStatusInProgress {
		return nil, errors.Validation(
			fmt.Sprintf("cannot complete visit in status %s", visit.Status), nil)
	}

	if err := s.visitRepo.UpdateStatus(ctx, sess.TenantID, visitID, model.VisitStatusCompleted); err != nil {
		return nil, err
	}
	visit.Status = model.VisitStatusCompleted

	if visit.AppointmentID != nil {
		apt, err := s.repo.Get(ctx, sess.TenantID, *visit.AppointmentID)
		if err != nil {
			return nil, err
		}
		if err := s.transition(ctx, apt, model.AppointmentStatusCompleted); err != nil {
			return nil, err
		}
	}

	s.queueSvc.SyncAfterWrite(ctx, sess.TenantID, visitID)
	s.auditor.Log(ctx, sess, "complete", "visit", visitID, nil)
	return visit, nil
}

func (s *Service) Get(ctx context.Context, sess *model.SessionContext, appointmentID uuid.UUID) (*model.Appointment, error) {
	if err := s.guard.Authorize(sess, model.CapAppointmentRead); err != nil {
		return nil, err
	}
	apt, err := s.repo.Get(ctx, sess.TenantID, appointmentID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.VerifyRecordAccess(sess, apt.TenantID, apt.DepartmentID); err != nil {
		return nil, err
	}
	return apt, nil
}

func (s *Service) List(ctx context.Context, sess *model.SessionContext, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	if err := s.guard.Authorize(sess, model.CapAppointmentRead); err != nil {
		return nil, err
	}
	if filters == nil {
		filters = &model.AppointmentFilters{}
	}
	scoped, err := s.guard.ScopeDepartments(sess, filters.DepartmentIDs)
	if err != nil {
		return nil, err
	}
	filters.DepartmentIDs = scoped
	return s.repo.List(ctx, sess.TenantID, filters)
}

func (s *Service) loadForWrite(ctx context.Context, sess *model.SessionContext, appointmentID uuid.UUID) (*model.Appointment, error) {
	if err := s.guard.Authorize(sess, model.CapAppointmentWrite); err != nil {
		return nil, err
	}
	apt, err := s.repo.Get(ctx, sess.TenantID, appointmentID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.VerifyRecordAccess(sess, apt.TenantID, apt.DepartmentID); err != nil {
		return nil, err
	}
	return apt, nil
}
