package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/medicore/opd-api/internal/model"
	"github.com/medicore/opd-api/internal/repository"
	"github.com/medicore/opd-api/internal/service/access"
	"github.com/medicore/opd-api/pkg/errors"
	"github.com/medicore/opd-api/pkg/logger"
	"github.com/medicore/opd-api/pkg/metrics"
	"github.com/medicore/opd-api/pkg/pagination"
)

// Service maintains the denormalized queue snapshot and serves queue reads.
// The snapshot's lifetime is entirely derived from Visit state: nothing else
// writes it.
type Service struct {
	queueRepo   repository.QueueRepository
	visitRepo   repository.VisitRepository
	practRepo   repository.PractitionerRepository
	deptRepo    repository.DepartmentRepository
	patientRepo repository.PatientRepository
	guard       *access.Service
	logger      *logger.Logger
	metrics     *metrics.Metrics
	masterCache *gocache.Cache
}

func NewService(
	queueRepo repository.QueueRepository,
	visitRepo repository.VisitRepository,
	practRepo repository.PractitionerRepository,
	deptRepo repository.DepartmentRepository,
	patientRepo repository.PatientRepository,
	guard *access.Service,
	log *logger.Logger,
	m *metrics.Metrics,
) *Service {
	return &Service{
		queueRepo:   queueRepo,
		visitRepo:   visitRepo,
		practRepo:   practRepo,
		deptRepo:    deptRepo,
		patientRepo: patientRepo,
		guard:       guard,
		logger:      log,
		metrics:     m,
		masterCache: gocache.New(5*time.Minute, 10*time.Minute),
	}
}

// SyncSnapshot reconciles the snapshot row for one visit: upsert while the
// visit is an active OPD visit, delete otherwise. Idempotent: re-running it
// against an unchanged visit leaves the snapshot identical.
func (s *Service) SyncSnapshot(ctx context.Context, tenantID, visitID uuid.UUID) error {
	var timer *prometheus.Timer
	if s.metrics != nil {
		timer = prometheus.NewTimer(s.metrics.QueueSyncLatency)
		defer timer.ObserveDuration()
	}

	visit, err := s.visitRepo.Get(ctx, tenantID, visitID)
	if err != nil {
		if errors.IsCode(err, errors.ErrNotFound) {
			// Visit gone: the derived row must go with it.
			return s.queueRepo.Delete(ctx, visitID)
		}
		return err
	}

	if !visit.QueueActive() {
		return s.queueRepo.Delete(ctx, visitID)
	}

	entry, err := s.buildEntry(ctx, visit)
	if err != nil {
		return err
	}
	return s.queueRepo.Upsert(ctx, entry)
}

// SyncAfterWrite runs SyncSnapshot outside the originating transaction and
// absorbs any failure. A broken read model must never fail or roll back a
// clinical operation; drift is repaired by the reconciliation worker.
func (s *Service) SyncAfterWrite(ctx context.Context, tenantID, visitID uuid.UUID) {
	err := s.SyncSnapshot(ctx, tenantID, visitID)
	if s.metrics != nil {
		result := "ok"
		if err != nil {
			result = "error"
		}
		s.metrics.QueueSyncs.WithLabelValues(result).Inc()
	}
	if err != nil {
		s.logger.Error(err, "queue snapshot sync failed",
			"visit_id", visitID.String(), "tenant_id", tenantID.String())
	}
}

func (s *Service) buildEntry(ctx context.Context, visit *model.Visit) (*model.QueueEntry, error) {
	practitioner, err := s.getPractitioner(ctx, visit.PractitionerID)
	if err != nil {
		return nil, err
	}
	department, err := s.getDepartment(ctx, visit.DepartmentID)
	if err != nil {
		return nil, err
	}
	patient, err := s.patientRepo.Get(ctx, visit.PatientID)
	if err != nil {
		return nil, err
	}

	return &model.QueueEntry{
		VisitID:          visit.ID,
		TenantID:         visit.TenantID,
		DepartmentID:     department.ID,
		DepartmentName:   department.Name,
		PractitionerID:   practitioner.ID,
		PractitionerName: practitioner.Name,
		PatientID:        patient.ID,
		PatientName:      patient.Name,
		PatientMRN:       patient.MRN,
		Priority:         visit.Priority,
		PriorityRank:     visit.Priority.Rank(),
		Status:           visit.Status,
		TokenNumber:      visit.TokenNumber,
		CheckInTime:      visit.CheckInTime,
	}, nil
}

func (s *Service) getPractitioner(ctx context.Context, id uuid.UUID) (*model.Practitioner, error) {
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

func (s *Service) getDepartment(ctx context.Context, id uuid.UUID) (*model.Department, error) {
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

// GetQueue serves the live queue from the snapshot alone: no joins against
// appointments or visits at read time.
func (s *Service) GetQueue(ctx context.Context, sess *model.SessionContext, filters *model.QueueFilters, page pagination.Page) (*model.QueuePage, error) {
	if err := s.guard.Authorize(sess, model.CapQueueRead); err != nil {
		return nil, err
	}

	if filters == nil {
		filters = &model.QueueFilters{}
	}
	scoped, err := s.guard.ScopeDepartments(sess, filters.DepartmentIDs)
	if err != nil {
		return nil, err
	}
	filters.DepartmentIDs = scoped

	limit, cursor, err := page.Normalize()
	if err != nil {
		return nil, err
	}

	rows, err := s.queueRepo.List(ctx, sess.TenantID, filters, limit+1, cursor)
	if err != nil {
		return nil, err
	}

	items, nextCursor, hasMore := pagination.Trim(rows, limit, func(e *model.QueueEntry) (string, uuid.UUID) {
		return e.SortValue(), e.VisitID
	})

	return &model.QueuePage{
		Items:      items,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// RebuildForTenant re-derives the snapshot row of every active OPD visit.
// Recovery path for detected drift; safe to run at any time.
func (s *Service) RebuildForTenant(ctx context.Context, tenantID uuid.UUID) error {
	ids, err := s.visitRepo.ListActiveOPDIDs(ctx, tenantID)
	if err != nil {
		return err
	}

	for _, id := range ids {
		if err := s.SyncSnapshot(ctx, tenantID, id); err != nil {
			s.logger.Error(err, "rebuild: snapshot sync failed", "visit_id", id.String())
		}
	}

	if s.metrics != nil {
		s.metrics.QueueRebuilds.Inc()
	}
	return nil
}

// Cleanup drops snapshot rows whose visit has been terminal longer than the
// retention window.
func (s *Service) Cleanup(ctx context.Context, tenantID uuid.UUID, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	return s.queueRepo.DeleteStale(ctx, tenantID, cutoff)
}
