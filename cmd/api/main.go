package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/lab-api/internal/config"
	"github.com/jwalitptl/lab-api/internal/email"
	"github.com/jwalitptl/lab-api/internal/handler/health"
	labrequestHandler "github.com/jwalitptl/lab-api/internal/handler/labrequest"
	labtechnicianHandler "github.com/jwalitptl/lab-api/internal/handler/labtechnician"
	labtestHandler "github.com/jwalitptl/lab-api/internal/handler/labtest"
	prometheusHandler "github.com/jwalitptl/lab-api/internal/handler/prometheus"
	"github.com/jwalitptl/lab-api/internal/middleware"
	"github.com/jwalitptl/lab-api/internal/repository/postgres"
	"github.com/jwalitptl/lab-api/internal/router"
	dashboardService "github.com/jwalitptl/lab-api/internal/service/dashboard"
	eventService "github.com/jwalitptl/lab-api/internal/service/event"
	labrequestService "github.com/jwalitptl/lab-api/internal/service/labrequest"
	labtechnicianService "github.com/jwalitptl/lab-api/internal/service/labtechnician"
	labtestService "github.com/jwalitptl/lab-api/internal/service/labtest"
	notificationService "github.com/jwalitptl/lab-api/internal/service/notification"
	"github.com/jwalitptl/lab-api/pkg/auth"
	"github.com/jwalitptl/lab-api/pkg/logger"
	"github.com/jwalitptl/lab-api/pkg/metrics"
	"github.com/jwalitptl/lab-api/pkg/validator"
)

func main() {
	configPath := flag.String("config", "", "path to the config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(&logger.Config{
		Level:   logger.ParseLevel(cfg.Logging.Level),
		Console: cfg.Logging.Console,
	})
	log.Logger = appLogger.ZL

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		appLogger.Fatal(err, "failed to connect to database")
	}
	defer db.Close()

	if err := postgres.CreateSchema(ctx, db); err != nil {
		appLogger.Fatal(err, "failed to apply schema")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics("lab", registry)

	// Initialize repositories
	base := postgres.NewBaseRepository(db)
	tx := postgres.NewTransactor(db)
	labTestRepo := postgres.NewLabTestRepository(base)
	technicianRepo := postgres.NewLabTechnicianRepository(base)
	requestRepo := postgres.NewLabTestRequestRepository(base)
	dashboardRepo := postgres.NewLabDashboardRepository(base)
	outboxRepo := postgres.NewOutboxRepository(base)

	// Initialize services
	labTestSvc := labtestService.NewService(labTestRepo, cfg.Lab.CatalogCacheTTL, appLogger)
	technicianSvc := labtechnicianService.NewService(technicianRepo, cfg.Lab.DefaultMaxConcurrentTests, appLogger, m)
	dashboardSvc := dashboardService.NewService(tx, technicianRepo, requestRepo, dashboardRepo,
		dashboardService.Options{SLA: cfg.Lab.SLAs(), Location: cfg.Lab.Location()}, appLogger, m)
	notifier := notificationService.NewService(email.NewService(cfg.Email), cfg.Lab.CriticalAlertRecipients, appLogger, m)
	requestSvc := labrequestService.NewService(tx, requestRepo, technicianRepo, labTestSvc,
		eventService.NewEventService(outboxRepo), notifier,
		labrequestService.Options{SLA: cfg.Lab.SLAs()}, appLogger, m)

	// Initialize middleware and handlers
	validator.UseJSONFieldNames()
	authMiddleware := middleware.NewAuthMiddleware(auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TokenTTL))

	r := router.NewRouter(
		authMiddleware,
		health.NewHandler(map[string]health.Pinger{"database": db}),
		labtestHandler.NewHandler(labTestSvc, authMiddleware),
		labtechnicianHandler.NewHandler(technicianSvc, dashboardSvc, authMiddleware),
		labrequestHandler.NewHandler(requestSvc, authMiddleware),
		prometheusHandler.New(registry, m),
		router.RouterConfig{
			Release:        cfg.IsProduction(),
			RequestTimeout: cfg.Server.RequestTimeout,
			CORSConfig:     middleware.DefaultCORSConfig(cfg.Server.AllowedOrigins...),
			RateLimit:      cfg.Server.RateLimit.Enabled,
			RateLimitRPS:   rate.Limit(cfg.Server.RateLimit.RequestsPerSecond),
			RateBurst:      cfg.Server.RateLimit.Burst,
		},
	)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		appLogger.Info("Starting server", "port", cfg.Server.Port, "environment", cfg.Server.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal(err, "failed to start server")
		}
	}()

	<-ctx.Done()
	appLogger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(err, "server forced to shutdown")
	}

	appLogger.Info("Server exited")
}
