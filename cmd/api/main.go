package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/medicore/opd-api/internal/config"
	appointmentHandler "github.com/medicore/opd-api/internal/handler/appointment"
	availabilityHandler "github.com/medicore/opd-api/internal/handler/availability"
	queueHandler "github.com/medicore/opd-api/internal/handler/queue"
	"github.com/medicore/opd-api/internal/handler"
	"github.com/medicore/opd-api/internal/middleware"
	"github.com/medicore/opd-api/internal/repository/postgres"
	"github.com/medicore/opd-api/internal/router"
	"github.com/medicore/opd-api/internal/service/access"
	appointmentService "github.com/medicore/opd-api/internal/service/appointment"
	auditService "github.com/medicore/opd-api/internal/service/audit"
	availabilityService "github.com/medicore/opd-api/internal/service/availability"
	queueService "github.com/medicore/opd-api/internal/service/queue"
	"github.com/medicore/opd-api/pkg/auth"
	"github.com/medicore/opd-api/pkg/counter"
	"github.com/medicore/opd-api/pkg/logger"
	"github.com/medicore/opd-api/pkg/metrics"
	"github.com/medicore/opd-api/pkg/validator"
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

	redisClient, err := counter.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()

	m := metrics.New("opd")
	v := validator.New()

	appointmentRepo := postgres.NewAppointmentRepository(db)
	visitRepo := postgres.NewVisitRepository(db)
	queueRepo := postgres.NewQueueRepository(db)
	availabilityRepo := postgres.NewAvailabilityRepository(db)
	practitionerRepo := postgres.NewPractitionerRepository(db)
	departmentRepo := postgres.NewDepartmentRepository(db)
	patientRepo := postgres.NewPatientRepository(db)
	auditRepo := postgres.NewAuditRepository(db)

	guard := access.NewService(departmentRepo)
	auditor := auditService.NewService(auditRepo, appLogger)
	queueSvc := queueService.NewService(
		queueRepo, visitRepo, practitionerRepo, departmentRepo, patientRepo,
		guard, appLogger, m)
	appointmentSvc := appointmentService.NewService(
		appointmentRepo, visitRepo, practitionerRepo,
		guard, queueSvc, auditor, m)
	availabilitySvc := availabilityService.NewService(
		availabilityRepo, appointmentRepo, practitionerRepo, departmentRepo, guard)

	authMiddleware := middleware.NewAuthMiddleware(auth.NewVerifier(cfg.JWT.Secret))
	var rateLimiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		rateLimiter = middleware.NewRateLimiter(
			counter.NewRedisCounter(redisClient), cfg.RateLimit.RequestsPerMinute)
	}

	r := router.NewRouter(
		authMiddleware,
		rateLimiter,
		appointmentHandler.NewHandler(appointmentSvc, v),
		availabilityHandler.NewHandler(availabilitySvc, v),
		queueHandler.NewHandler(queueSvc),
		handler.NewHandler(db, redisClient),
	)
	r.Setup()

	srv := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        r.Engine(),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited properly")
}
