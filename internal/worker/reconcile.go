package worker

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/medicore/opd-api/internal/repository"
	"github.com/medicore/opd-api/internal/service/queue"
	"github.com/medicore/opd-api/pkg/logger"
)

// Reconciler periodically re-derives the queue snapshot of every tenant and
// purges stale rows. It is the repair path for snapshot drift: a sync that
// failed after a write is picked up here on the next pass, so drift is
// bounded by the interval. Tenant scans are paced to keep a large tenant
// list from saturating the database.
type Reconciler struct {
	queueSvc       *queue.Service
	deptRepo       repository.DepartmentRepository
	auditRepo      repository.AuditRepository
	logger         *logger.Logger
	limiter        *rate.Limiter
	interval       time.Duration
	queueRetention time.Duration
	auditRetention time.Duration
}

type ReconcilerConfig struct {
	Interval         time.Duration
	QueueRetention   time.Duration
	AuditRetention   time.Duration
	TenantsPerSecond float64
}

func NewReconciler(
	queueSvc *queue.Service,
	deptRepo repository.DepartmentRepository,
	auditRepo repository.AuditRepository,
	log *logger.Logger,
	cfg ReconcilerConfig,
) *Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.QueueRetention <= 0 {
		cfg.QueueRetention = 24 * time.Hour
	}
	if cfg.AuditRetention <= 0 {
		cfg.AuditRetention = 90 * 24 * time.Hour
	}
	if cfg.TenantsPerSecond <= 0 {
		cfg.TenantsPerSecond = 5
	}

	return &Reconciler{
		queueSvc:       queueSvc,
		deptRepo:       deptRepo,
		auditRepo:      auditRepo,
		logger:         log,
		limiter:        rate.NewLimiter(rate.Limit(cfg.TenantsPerSecond), 1),
		interval:       cfg.Interval,
		queueRetention: cfg.QueueRetention,
		auditRetention: cfg.AuditRetention,
	}
}

// Start runs the reconciliation loop until the context is cancelled.
func (w *Reconciler) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// One pass at startup so a restart repairs drift immediately.
	w.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *Reconciler) runOnce(ctx context.Context) {
	start := time.Now()

	tenants, err := w.deptRepo.ListTenantIDs(ctx)
	if err != nil {
		w.logger.Error(err, "reconcile: failed to list tenants")
		return
	}

	var rebuilt, failed int
	for _, tenantID := range tenants {
		if err := w.limiter.Wait(ctx); err != nil {
			return
		}

		if err := w.queueSvc.RebuildForTenant(ctx, tenantID); err != nil {
			failed++
			w.logger.Error(err, "reconcile: rebuild failed", "tenant_id", tenantID.String())
			continue
		}
		rebuilt++

		removed, err := w.queueSvc.Cleanup(ctx, tenantID, w.queueRetention)
		if err != nil {
			w.logger.Error(err, "reconcile: cleanup failed", "tenant_id", tenantID.String())
		} else if removed > 0 {
			w.logger.Info("reconcile: removed stale queue entries",
				"tenant_id", tenantID.String(), "removed", removed)
		}
	}

	if removed, err := w.auditRepo.Cleanup(ctx, time.Now().Add(-w.auditRetention)); err != nil {
		w.logger.Error(err, "reconcile: audit cleanup failed")
	} else if removed > 0 {
		w.logger.Info("reconcile: removed expired audit logs", "removed", removed)
	}

	w.logger.Info("reconcile pass complete",
		"tenants", len(tenants),
		"rebuilt", rebuilt,
		"failed", failed,
		"took", time.Since(start).String())
}
