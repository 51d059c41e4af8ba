package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/medicore/opd-api/internal/model"
	"github.com/medicore/opd-api/internal/repository"
	"github.com/medicore/opd-api/internal/service/access"
	"github.com/medicore/opd-api/pkg/errors"
)

// Master-data rows change rarely; a short TTL keeps lookups off the hot path
// without meaningful staleness.
const (
	masterCacheTTL     = 5 * time.Minute
	masterCacheCleanup = 10 * time.Minute
)

type Service struct {
	repo        repository.AvailabilityRepository
	apptRepo    repository.AppointmentRepository
	practRepo   repository.PractitionerRepository
	deptRepo    repository.DepartmentRepository
	guard       *access.Service
	masterCache *gocache.Cache
}

func NewService(
	repo repository.AvailabilityRepository,
	apptRepo repository.AppointmentRepository,
	practRepo repository.PractitionerRepository,
	deptRepo repository.DepartmentRepository,
	guard *access.Service,
) *Service {
	return &Service{
		repo:        repo,
		apptRepo:    apptRepo,
		practRepo:   practRepo,
		deptRepo:    deptRepo,
		guard:       guard,
		masterCache: gocache.New(masterCacheTTL, masterCacheCleanup),
	}
}

// GetPractitioner resolves a practitioner through the master-data cache.
func (s *Service) GetPractitioner(ctx context.Context, id uuid.UUID) (*model.Practitioner, error) {
	key := "practitioner:" + id.String()
	if cached, ok := s.masterCache.Get(key); ok {
		return cached.(*model.Practitioner), nil
	}
	p, err := s.practRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.masterCache.SetDefault(key, p)
	return p, nil
}

// GetDepartment resolves a department through the master-data cache.
func (s *Service) GetDepartment(ctx context.Context, id uuid.UUID) (*model.Department, error) {
	key := "department:" + id.String()
	if cached, ok := s.masterCache.Get(key); ok {
		return cached.(*model.Department), nil
	}
	d, err := s.deptRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.masterCache.SetDefault(key, d)
	return d, nil
}

// GetDoctorDaySlots computes the candidate slot sequence for a practitioner
// and date. It is a pure read-time projection: templates are subdivided into
// fixed-duration slots and each slot carries an availability flag instead of
// being filtered out, so callers can render full schedules.
func (s *Service) GetDoctorDaySlots(ctx context.Context, sess *model.SessionContext, practitionerID uuid.UUID, date time.Time) ([]model.Slot, error) {
	if err := s.guard.Authorize(sess, model.CapAvailabilityRead); err != nil {
		return nil, err
	}

	practitioner, err := s.GetPractitioner(ctx, practitionerID)
	if err != nil {
		return nil, err
	}
	if practitioner.TenantID != sess.TenantID {
		return nil, errors.CrossTenantAccess()
	}

	templates, err := s.repo.ListForPractitionerDay(ctx, practitionerID, date.Weekday())
	if err != nil {
		return nil, err
	}
	if len(templates) == 0 {
		return nil, nil
	}

	appointments, err := s.apptRepo.ListForPractitionerDay(ctx, practitionerID, date.Format(model.DateOnly))
	if err != nil {
		return nil, err
	}

	blockReason := ""
	if practitioner.Status != model.PractitionerActive {
		blockReason = model.SlotReasonPractitioner
	} else if !s.guard.VerifyDepartmentAccess(sess, practitioner.DepartmentID) {
		blockReason = model.SlotReasonOtherDepartment
	}

	var slots []model.Slot
	for _, tpl := range templates {
		windowSlots, err := subdivide(tpl, date)
		if err != nil {
			return nil, err
		}
		for _, slot := range windowSlots {
			if blockReason != "" {
				slot.Available = false
				slot.Reason = blockReason
			} else {
				booked, err := overlapsAny(slot, appointments, tpl.SlotMinutes)
				if err != nil {
					return nil, err
				}
				if booked {
					slot.Available = false
					slot.Reason = model.SlotReasonBooked
				}
			}
			slots = append(slots, slot)
		}
	}
	return slots, nil
}

func subdivide(tpl *model.AvailabilityTemplate, date time.Time) ([]model.Slot, error) {
	start, err := atTimeOfDay(date, tpl.StartTime)
	if err != nil {
		return nil, errors.Validation("malformed template start time", err)
	}
	end, err := atTimeOfDay(date, tpl.EndTime)
	if err != nil {
		return nil, errors.Validation("malformed template end time", err)
	}

	step := time.Duration(tpl.SlotMinutes) * time.Minute
	var slots []model.Slot
	for t := start; t.Add(step).Before(end) || t.Add(step).Equal(end); t = t.Add(step) {
		slots = append(slots, model.Slot{
			Start:     t,
			End:       t.Add(step),
			Available: true,
		})
	}
	return slots, nil
}

// overlapsAny reports whether any booked appointment covers the slot. An
// unreadable schedule is an error, not a free slot: dropping the row here
// would double-book it.
func overlapsAny(slot model.Slot, appointments []*model.Appointment, defaultMinutes int) (bool, error) {
	for _, apt := range appointments {
		aptStart, err := apt.StartDateTime()
		if err != nil {
			return false, errors.Internal(
				fmt.Errorf("appointment %s has an unreadable schedule: %w", apt.ID, err))
		}
		aptEnd := aptStart.Add(time.Duration(defaultMinutes) * time.Minute)
		if apt.EndTime != nil {
			if parsed, err := atTimeOfDay(aptStart, *apt.EndTime); err == nil {
				aptEnd = parsed
			}
		}
		if slot.Start.Before(aptEnd) && aptStart.Before(slot.End) {
			return true, nil
		}
	}
	return false, nil
}

func atTimeOfDay(date time.Time, hhmm string) (time.Time, error) {
	t, err := time.Parse(model.TimeOfDay, hhmm)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(date.Year(), date.Month(), date.Day(),
		t.Hour(), t.Minute(), 0, 0, date.Location()), nil
}

// BulkCreateAvailability creates one template row per requested weekday.
// Windows for the same practitioner and day must not overlap, existing or
// within the request itself.
func (s *Service) BulkCreateAvailability(ctx context.Context, sess *model.SessionContext, req *model.BulkAvailabilityRequest) ([]*model.AvailabilityTemplate, error) {
	if err := s.guard.Authorize(sess, model.CapAvailabilityWrite); err != nil {
		return nil, err
	}
	if err := s.guard.VerifyRecordAccess(sess, sess.TenantID, req.DepartmentID); err != nil {
		return nil, err
	}
	if req.Window.StartTime >= req.Window.EndTime {
		return nil, errors.Validation("window start must be before end", nil)
	}

	practitioner, err := s.GetPractitioner(ctx, req.PractitionerID)
	if err != nil {
		return nil, err
	}
	if practitioner.TenantID != sess.TenantID {
		return nil, errors.CrossTenantAccess()
	}

	existing, err := s.repo.ListForPractitioner(ctx, req.PractitionerID)
	if err != nil {
		return nil, err
	}

	seen := map[time.Weekday]bool{}
	templates := make([]*model.AvailabilityTemplate, 0, len(req.DaysOfWeek))
	for _, day := range req.DaysOfWeek {
		if seen[day] {
			continue
		}
		seen[day] = true

		for _, tpl := range existing {
			if tpl.DayOfWeek != day {
				continue
			}
			// Zero-padded HH:MM strings order lexicographically.
			if req.Window.StartTime < tpl.EndTime && tpl.StartTime < req.Window.EndTime {
				return nil, errors.Validation(fmt.Sprintf(
					"window overlaps existing availability %s-%s on %s",
					tpl.StartTime, tpl.EndTime, day), nil)
			}
		}

		templates = append(templates, &model.AvailabilityTemplate{
			Base: model.Base{
				ID:       uuid.New(),
				TenantID: sess.TenantID,
			},
			PractitionerID: req.PractitionerID,
			DepartmentID:   req.DepartmentID,
			DayOfWeek:      day,
			StartTime:      req.Window.StartTime,
			EndTime:        req.Window.EndTime,
			SlotMinutes:    req.Window.SlotMinutes,
			Active:         true,
		})
	}

	if err := s.repo.CreateBatch(ctx, templates); err != nil {
		return nil, err
	}
	return templates, nil
}

// UpdateTemplate persists an edited template under its optimistic version.
func (s *Service) UpdateTemplate(ctx context.Context, sess *model.SessionContext, tpl *model.AvailabilityTemplate) error {
	if err := s.guard.Authorize(sess, model.CapAvailabilityWrite); err != nil {
		return err
	}
	if err := s.guard.VerifyRecordAccess(sess, tpl.TenantID, tpl.DepartmentID); err != nil {
		return err
	}
	if tpl.StartTime >= tpl.EndTime {
		return errors.Validation("window start must be before end", nil)
	}
	return s.repo.Update(ctx, tpl)
}
