// Package memory holds in-memory repository implementations used by service
// tests. They honor the same contracts as the postgres repositories: the
// active-slot uniqueness constraint, per-key token counters, version checks
// and the in-progress guard all behave identically, just under a mutex
// instead of row locks.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medicore/opd-api/internal/model"
	"github.com/medicore/opd-api/pkg/errors"
	"github.com/medicore/opd-api/pkg/pagination"
)

type AppointmentRepository struct {
	mu       sync.Mutex
	rows     map[uuid.UUID]*model.Appointment
	counters map[string]int
}

func NewAppointmentRepository() *AppointmentRepository {
	return &AppointmentRepository{
		rows:     make(map[uuid.UUID]*model.Appointment),
		counters: make(map[string]int),
	}
}

func cloneAppointment(a *model.Appointment) *model.Appointment {
	c := *a
	return &c
}

func slotTaken(rows map[uuid.UUID]*model.Appointment, apt *model.Appointment) bool {
	for _, existing := range rows {
		if existing.ID == apt.ID {
			continue
		}
		if existing.PractitionerID == apt.PractitionerID &&
			existing.ScheduledDate == apt.ScheduledDate &&
			existing.StartTime == apt.StartTime &&
			existing.Status != model.AppointmentStatusCancelled &&
			existing.Status != model.AppointmentStatusRescheduled &&
			existing.Status != model.AppointmentStatusNoShow {
			return true
		}
	}
	return false
}

func (r *AppointmentRepository) Create(ctx context.Context, apt *model.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if slotTaken(r.rows, apt) {
		return errors.SlotConflict(apt.PractitionerID, apt.ScheduledDate, apt.StartTime)
	}

	now := time.Now()
	if apt.ID == uuid.Nil {
		apt.ID = uuid.New()
	}
	apt.CreatedAt = now
	apt.UpdatedAt = now
	apt.Version = 1
	r.rows[apt.ID] = cloneAppointment(apt)
	return nil
}

func (r *AppointmentRepository) Get(ctx context.Context, tenantID, id uuid.UUID) (*model.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	apt, ok := r.rows[id]
	if !ok || apt.TenantID != tenantID {
		return nil, errors.NotFound("appointment", nil)
	}
	return cloneAppointment(apt), nil
}

func (r *AppointmentRepository) Update(ctx context.Context, apt *model.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.rows[apt.ID]
	if !ok || current.TenantID != apt.TenantID {
		return errors.NotFound("appointment", nil)
	}
	if current.Version != apt.Version {
		return errors.VersionConflict("appointment")
	}

	apt.Version++
	apt.UpdatedAt = time.Now()
	r.rows[apt.ID] = cloneAppointment(apt)
	return nil
}

func (r *AppointmentRepository) Reschedule(ctx context.Context, old *model.Appointment, successor *model.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.rows[old.ID]
	if !ok {
		return errors.NotFound("appointment", nil)
	}
	if current.Version != old.Version {
		return errors.VersionConflict("appointment")
	}
	if slotTaken(r.rows, successor) {
		return errors.SlotConflict(successor.PractitionerID, successor.ScheduledDate, successor.StartTime)
	}

	now := time.Now()
	if successor.ID == uuid.Nil {
		successor.ID = uuid.New()
	}
	successor.CreatedAt = now
	successor.UpdatedAt = now
	successor.Version = 1
	r.rows[successor.ID] = cloneAppointment(successor)

	terminated := cloneAppointment(current)
	terminated.Status = model.AppointmentStatusRescheduled
	terminated.RescheduledTo = &successor.ID
	terminated.Version++
	terminated.UpdatedAt = now
	r.rows[old.ID] = terminated
	return nil
}

func (r *AppointmentRepository) List(ctx context.Context, tenantID uuid.UUID, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*model.Appointment
	for _, apt := range r.rows {
		if apt.TenantID != tenantID {
			continue
		}
		if filters != nil {
			if len(filters.DepartmentIDs) > 0 && !containsID(filters.DepartmentIDs, apt.DepartmentID) {
				continue
			}
			if filters.PractitionerID != uuid.Nil && apt.PractitionerID != filters.PractitionerID {
				continue
			}
			if filters.PatientID != uuid.Nil && apt.PatientID != filters.PatientID {
				continue
			}
			if filters.Status != "" && apt.Status != filters.Status {
				continue
			}
			if filters.DateFrom != "" && apt.ScheduledDate < filters.DateFrom {
				continue
			}
			if filters.DateTo != "" && apt.ScheduledDate > filters.DateTo {
				continue
			}
		}
		out = append(out, cloneAppointment(apt))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ScheduledDate != out[j].ScheduledDate {
			return out[i].ScheduledDate < out[j].ScheduledDate
		}
		if out[i].StartTime != out[j].StartTime {
			return out[i].StartTime < out[j].StartTime
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (r *AppointmentRepository) ListForPractitionerDay(ctx context.Context, practitionerID uuid.UUID, date string) ([]*model.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*model.Appointment
	for _, apt := range r.rows {
		if apt.PractitionerID != practitionerID || apt.ScheduledDate != date {
			continue
		}
		switch apt.Status {
		case model.AppointmentStatusCancelled, model.AppointmentStatusRescheduled, model.AppointmentStatusNoShow:
			continue
		}
		out = append(out, cloneAppointment(apt))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out, nil
}

func (r *AppointmentRepository) NextTokenNumber(ctx context.Context, tenantID, departmentID uuid.UUID, date string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.Join([]string{tenantID.String(), departmentID.String(), date}, "|")
	r.counters[key]++
	return r.counters[key], nil
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, got := range ids {
		if got == id {
			return true
		}
	}
	return false
}

type VisitRepository struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*model.Visit
}

func NewVisitRepository() *VisitRepository {
	return &VisitRepository{rows: make(map[uuid.UUID]*model.Visit)}
}

func cloneVisit(v *model.Visit) *model.Visit {
	c := *v
	return &c
}

func (r *VisitRepository) Create(ctx context.Context, visit *model.Visit) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if visit.ID == uuid.Nil {
		visit.ID = uuid.New()
	}
	visit.CreatedAt = now
	visit.UpdatedAt = now
	r.rows[visit.ID] = cloneVisit(visit)
	return nil
}

func (r *VisitRepository) Get(ctx context.Context, tenantID, id uuid.UUID) (*model.Visit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	visit, ok := r.rows[id]
	if !ok || visit.TenantID != tenantID {
		return nil, errors.NotFound("visit", nil)
	}
	return cloneVisit(visit), nil
}

func (r *VisitRepository) UpdateStatus(ctx context.Context, tenantID, id uuid.UUID, status model.VisitStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	visit, ok := r.rows[id]
	if !ok || visit.TenantID != tenantID {
		return errors.NotFound("visit", nil)
	}
	visit.Status = status
	visit.UpdatedAt = time.Now()
	return nil
}

func (r *VisitRepository) StartConsultation(ctx context.Context, tenantID, id uuid.UUID, force bool) (*model.Visit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	visit, ok := r.rows[id]
	if !ok || visit.TenantID != tenantID {
		return nil, errors.NotFound("visit", nil)
	}
	if visit.Status != model.VisitStatusWaiting {
		return nil, errors.Validation(
			fmt.Sprintf("cannot start consultation from status %s", visit.Status), nil)
	}

	for _, other := range r.rows {
		if other.ID == id {
			continue
		}
		if other.TenantID == tenantID &&
			other.PractitionerID == visit.PractitionerID &&
			other.Status == model.VisitStatusInProgress {
			if !force {
				return nil, errors.HasInProgress(other.ID)
			}
			break
		}
	}

	visit.Status = model.VisitStatusInProgress
	visit.UpdatedAt = time.Now()
	return cloneVisit(visit), nil
}

// snapshot is a lookup helper for sibling repositories.
func (r *VisitRepository) snapshot(id uuid.UUID) (*model.Visit, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	visit, ok := r.rows[id]
	if !ok {
		return nil, false
	}
	return cloneVisit(visit), true
}

func (r *VisitRepository) ListActiveOPDIDs(ctx context.Context, tenantID uuid.UUID) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var active []*model.Visit
	for _, visit := range r.rows {
		if visit.TenantID == tenantID && visit.QueueActive() {
			active = append(active, visit)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].CheckInTime.Before(active[j].CheckInTime)
	})
	ids := make([]uuid.UUID, len(active))
	for i, visit := range active {
		ids[i] = visit.ID
	}
	return ids, nil
}

type QueueRepository struct {
	mu     sync.Mutex
	rows   map[uuid.UUID]*model.QueueEntry
	visits *VisitRepository
}

func NewQueueRepository(visits *VisitRepository) *QueueRepository {
	return &QueueRepository{
		rows:   make(map[uuid.UUID]*model.QueueEntry),
		visits: visits,
	}
}

func cloneEntry(e *model.QueueEntry) *model.QueueEntry {
	c := *e
	return &c
}

func (r *QueueRepository) Upsert(ctx context.Context, entry *model.QueueEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry.SyncedAt = time.Now()
	r.rows[entry.VisitID] = cloneEntry(entry)
	return nil
}

func (r *QueueRepository) Delete(ctx context.Context, visitID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.rows, visitID)
	return nil
}

func (r *QueueRepository) Get(ctx context.Context, visitID uuid.UUID) (*model.QueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.rows[visitID]
	if !ok {
		return nil, errors.NotFound("queue entry", nil)
	}
	return cloneEntry(entry), nil
}

// Len reports the number of snapshot rows; test helper.
func (r *QueueRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

func queueLess(a, b *model.QueueEntry) bool {
	if a.PriorityRank != b.PriorityRank {
		return a.PriorityRank > b.PriorityRank
	}
	if !a.CheckInTime.Equal(b.CheckInTime) {
		return a.CheckInTime.Before(b.CheckInTime)
	}
	return a.VisitID.String() < b.VisitID.String()
}

func (r *QueueRepository) List(ctx context.Context, tenantID uuid.UUID, filters *model.QueueFilters, limit int, cursor *pagination.Cursor) ([]*model.QueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*model.QueueEntry
	for _, entry := range r.rows {
		if entry.TenantID != tenantID {
			continue
		}
		if filters != nil {
			if len(filters.DepartmentIDs) > 0 && !containsID(filters.DepartmentIDs, entry.DepartmentID) {
				continue
			}
			if filters.PractitionerID != uuid.Nil && entry.PractitionerID != filters.PractitionerID {
				continue
			}
			if len(filters.Statuses) > 0 && !containsStatus(filters.Statuses, entry.Status) {
				continue
			}
		}
		out = append(out, cloneEntry(entry))
	}
	sort.Slice(out, func(i, j int) bool { return queueLess(out[i], out[j]) })

	if cursor != nil {
		rank, checkIn, err := model.ParseQueueSortValue(cursor.SortValue)
		if err != nil {
			return nil, errors.Validation("invalid cursor", err)
		}
		after := &model.QueueEntry{PriorityRank: rank, CheckInTime: checkIn, VisitID: cursor.ID}
		filtered := out[:0]
		for _, entry := range out {
			if queueLess(after, entry) {
				filtered = append(filtered, entry)
			}
		}
		out = filtered
	}

	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func containsStatus(statuses []model.VisitStatus, s model.VisitStatus) bool {
	for _, got := range statuses {
		if got == s {
			return true
		}
	}
	return false
}

// DeleteStale mirrors the postgres contract: only entries whose visit went
// terminal before the cutoff, or whose visit no longer exists, are removed.
// Active entries survive regardless of the cutoff.
func (r *QueueRepository) DeleteStale(ctx context.Context, tenantID uuid.UUID, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed int64
	for id, entry := range r.rows {
		if entry.TenantID != tenantID {
			continue
		}
		visit, ok := r.visits.snapshot(entry.VisitID)
		if !ok {
			delete(r.rows, id)
			removed++
			continue
		}
		terminal := visit.Status == model.VisitStatusCompleted || visit.Status == model.VisitStatusCancelled
		if terminal && visit.UpdatedAt.Before(cutoff) {
			delete(r.rows, id)
			removed++
		}
	}
	return removed, nil
}

type MasterRepository struct {
	mu            sync.Mutex
	Practitioners map[uuid.UUID]*model.Practitioner
	Departments   map[uuid.UUID]*model.Department
	Patients      map[uuid.UUID]*model.Patient
	Assignments   map[uuid.UUID][]uuid.UUID
}

func NewMasterRepository() *MasterRepository {
	return &MasterRepository{
		Practitioners: make(map[uuid.UUID]*model.Practitioner),
		Departments:   make(map[uuid.UUID]*model.Department),
		Patients:      make(map[uuid.UUID]*model.Patient),
		Assignments:   make(map[uuid.UUID][]uuid.UUID),
	}
}

func (r *MasterRepository) Get(ctx context.Context, id uuid.UUID) (*model.Practitioner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.Practitioners[id]
	if !ok {
		return nil, errors.NotFound("practitioner", nil)
	}
	c := *p
	return &c, nil
}

// Departments returns a DepartmentRepository view over the same data.
func (r *MasterRepository) DepartmentView() *DepartmentRepository {
	return &DepartmentRepository{master: r}
}

// PatientView returns a PatientRepository view over the same data.
func (r *MasterRepository) PatientView() *PatientRepository {
	return &PatientRepository{master: r}
}

type DepartmentRepository struct {
	master *MasterRepository
}

func (r *DepartmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Department, error) {
	r.master.mu.Lock()
	defer r.master.mu.Unlock()

	d, ok := r.master.Departments[id]
	if !ok {
		return nil, errors.NotFound("department", nil)
	}
	c := *d
	return &c, nil
}

func (r *DepartmentRepository) ListAssignments(ctx context.Context, tenantID, userID uuid.UUID) ([]uuid.UUID, error) {
	r.master.mu.Lock()
	defer r.master.mu.Unlock()
	return append([]uuid.UUID(nil), r.master.Assignments[userID]...), nil
}

func (r *DepartmentRepository) ListTenantIDs(ctx context.Context) ([]uuid.UUID, error) {
	r.master.mu.Lock()
	defer r.master.mu.Unlock()

	seen := make(map[uuid.UUID]bool)
	var ids []uuid.UUID
	for _, d := range r.master.Departments {
		if !seen[d.TenantID] {
			seen[d.TenantID] = true
			ids = append(ids, d.TenantID)
		}
	}
	return ids, nil
}

type PatientRepository struct {
	master *MasterRepository
}

func (r *PatientRepository) Get(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	r.master.mu.Lock()
	defer r.master.mu.Unlock()

	p, ok := r.master.Patients[id]
	if !ok {
		return nil, errors.NotFound("patient", nil)
	}
	c := *p
	return &c, nil
}

type AvailabilityRepository struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*model.AvailabilityTemplate
}

func NewAvailabilityRepository() *AvailabilityRepository {
	return &AvailabilityRepository{rows: make(map[uuid.UUID]*model.AvailabilityTemplate)}
}

func cloneTemplate(t *model.AvailabilityTemplate) *model.AvailabilityTemplate {
	c := *t
	return &c
}

func (r *AvailabilityRepository) CreateBatch(ctx context.Context, templates []*model.AvailabilityTemplate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for _, tpl := range templates {
		if tpl.ID == uuid.Nil {
			tpl.ID = uuid.New()
		}
		tpl.CreatedAt = now
		tpl.UpdatedAt = now
		tpl.Version = 1
		r.rows[tpl.ID] = cloneTemplate(tpl)
	}
	return nil
}

func (r *AvailabilityRepository) Update(ctx context.Context, tpl *model.AvailabilityTemplate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.rows[tpl.ID]
	if !ok || current.Version != tpl.Version {
		return errors.VersionConflict("availability template")
	}
	tpl.Version++
	tpl.UpdatedAt = time.Now()
	r.rows[tpl.ID] = cloneTemplate(tpl)
	return nil
}

func (r *AvailabilityRepository) ListForPractitioner(ctx context.Context, practitionerID uuid.UUID) ([]*model.AvailabilityTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*model.AvailabilityTemplate
	for _, tpl := range r.rows {
		if tpl.PractitionerID == practitionerID && tpl.Active {
			out = append(out, cloneTemplate(tpl))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DayOfWeek != out[j].DayOfWeek {
			return out[i].DayOfWeek < out[j].DayOfWeek
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out, nil
}

func (r *AvailabilityRepository) ListForPractitionerDay(ctx context.Context, practitionerID uuid.UUID, day time.Weekday) ([]*model.AvailabilityTemplate, error) {
	all, err := r.ListForPractitioner(ctx, practitionerID)
	if err != nil {
		return nil, err
	}
	var out []*model.AvailabilityTemplate
	for _, tpl := range all {
		if tpl.DayOfWeek == day {
			out = append(out, tpl)
		}
	}
	return out, nil
}

type AuditRepository struct {
	mu   sync.Mutex
	Logs []*model.AuditLog
}

func NewAuditRepository() *AuditRepository {
	return &AuditRepository{}
}

func (r *AuditRepository) Create(ctx context.Context, log *model.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Logs = append(r.Logs, log)
	return nil
}

func (r *AuditRepository) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var kept []*model.AuditLog
	var removed int64
	for _, log := range r.Logs {
		if log.CreatedAt.Before(before) {
			removed++
			continue
		}
		kept = append(kept, log)
	}
	r.Logs = kept
	return removed, nil
}
