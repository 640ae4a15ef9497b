package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/lab-api/internal/config"
	"github.com/jwalitptl/lab-api/internal/handler/health"
	prometheusHandler "github.com/jwalitptl/lab-api/internal/handler/prometheus"
	"github.com/jwalitptl/lab-api/internal/repository/postgres"
	dashboardService "github.com/jwalitptl/lab-api/internal/service/dashboard"
	labtechnicianService "github.com/jwalitptl/lab-api/internal/service/labtechnician"
	"github.com/jwalitptl/lab-api/internal/worker"
	"github.com/jwalitptl/lab-api/pkg/logger"
	"github.com/jwalitptl/lab-api/pkg/messaging/redis"
	"github.com/jwalitptl/lab-api/pkg/metrics"
	pkgworker "github.com/jwalitptl/lab-api/pkg/worker"
)

type runner interface {
	Start(ctx context.Context)
}

func main() {
	configPath := flag.String("config", "", "path to the config file")
	flag.Parse()

	// Load config
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	// Initialize logger
	appLogger := logger.NewLogger(&logger.Config{
		Level:   logger.ParseLevel(cfg.Logging.Level),
		Console: cfg.Logging.Console,
	}).WithFields(map[string]interface{}{"component": "worker"})
	log.Logger = appLogger.ZL

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		appLogger.Fatal(err, "Failed to connect to database")
	}
	defer db.Close()

	if err := postgres.CreateSchema(ctx, db); err != nil {
		appLogger.Fatal(err, "Failed to apply schema")
	}

	// Initialize Redis broker
	broker, err := redis.NewRedisBroker(cfg.Redis.ToBrokerConfig(), appLogger.ZL)
	if err != nil {
		appLogger.Fatal(err, "Failed to create Redis broker")
	}
	defer broker.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics("lab", registry)

	// Initialize repositories
	base := postgres.NewBaseRepository(db)
	tx := postgres.NewTransactor(db)
	technicianRepo := postgres.NewLabTechnicianRepository(base)
	requestRepo := postgres.NewLabTestRequestRepository(base)
	dashboardRepo := postgres.NewLabDashboardRepository(base)
	outboxRepo := postgres.NewOutboxRepository(base)

	technicianSvc := labtechnicianService.NewService(technicianRepo, cfg.Lab.DefaultMaxConcurrentTests, appLogger, m)
	dashboardSvc := dashboardService.NewService(tx, technicianRepo, requestRepo, dashboardRepo,
		dashboardService.Options{SLA: cfg.Lab.SLAs(), Location: cfg.Lab.Location()}, appLogger, m)

	runners := []runner{
		pkgworker.NewOutboxProcessor(tx, outboxRepo, broker, cfg.Outbox.ToWorkerConfig(cfg.Redis.Channel), appLogger, m),
		worker.NewOutboxCleanupWorker(outboxRepo, cfg.Outbox.Retention, cfg.Outbox.CleanupInterval, appLogger),
		worker.NewDashboardRefreshWorker(dashboardSvc, cfg.Lab.DashboardRefreshInterval, appLogger),
		worker.NewWorkloadReconcileWorker(technicianSvc, cfg.Lab.WorkloadReconcileInterval, appLogger),
	}

	srv := healthServer(cfg, map[string]health.Pinger{
		"database": db,
		"broker":   health.PingFunc(broker.Ping),
	}, registry, m)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error(err, "Health check server failed")
			stop()
		}
	}()

	var wg sync.WaitGroup
	for _, r := range runners {
		wg.Add(1)
		go func(r runner) {
			defer wg.Done()
			r.Start(ctx)
		}(r)
	}
	appLogger.Info("Worker started", "channel", cfg.Redis.Channel)

	<-ctx.Done()
	appLogger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(err, "Health check server forced to shutdown")
	}
	wg.Wait()
	appLogger.Info("Worker exited")
}

// healthServer exposes liveness, readiness and metrics for the worker.
func healthServer(cfg *config.Config, checks map[string]health.Pinger, registry *prometheus.Registry, m *metrics.Metrics) *http.Server {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())

	prom := prometheusHandler.New(registry, m)
	engine.GET("/metrics", prom.Handler())
	health.NewHandler(checks).RegisterRoutes(engine.Group(""))

	return &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.WorkerPort),
		Handler: engine,
	}
}
