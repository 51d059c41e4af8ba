package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/medicore/opd-api/internal/config"
	"github.com/medicore/opd-api/internal/repository/postgres"
	"github.com/medicore/opd-api/internal/service/access"
	queueService "github.com/medicore/opd-api/internal/service/queue"
	"github.com/medicore/opd-api/internal/worker"
	"github.com/medicore/opd-api/pkg/logger"
	"github.com/medicore/opd-api/pkg/metrics"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	appLogger := logger.New(&logger.Config{
		Level:  level,
		Pretty: cfg.Logging.Pretty,
	})

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	m := metrics.New("opd_worker")

	queueRepo := postgres.NewQueueRepository(db)
	visitRepo := postgres.NewVisitRepository(db)
	practitionerRepo := postgres.NewPractitionerRepository(db)
	departmentRepo := postgres.NewDepartmentRepository(db)
	patientRepo := postgres.NewPatientRepository(db)
	auditRepo := postgres.NewAuditRepository(db)

	guard := access.NewService(departmentRepo)
	queueSvc := queueService.NewService(
		queueRepo, visitRepo, practitionerRepo, departmentRepo, patientRepo,
		guard, appLogger, m)

	reconciler := worker.NewReconciler(queueSvc, departmentRepo, auditRepo, appLogger,
		worker.ReconcilerConfig{
			Interval:         cfg.Worker.ReconcileInterval,
			QueueRetention:   cfg.Worker.QueueRetention,
			TenantsPerSecond: cfg.Worker.TenantsPerSecond,
		})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go reconciler.Start(ctx)

	// Metrics endpoint for the scrape target.
	metricsSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Worker.MetricsPort),
		Handler: promhttp.Handler(),
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server stopped")
		}
	}()

	log.Info().
		Dur("interval", cfg.Worker.ReconcileInterval).
		Msg("reconciliation worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down worker...")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = metricsSrv.Shutdown(shutdownCtx)

	log.Info().Msg("worker exited properly")
}
