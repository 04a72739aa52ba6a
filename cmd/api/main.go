package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/siemhub/orchestrator/internal/api"
	"github.com/siemhub/orchestrator/internal/api/handler"
	"github.com/siemhub/orchestrator/internal/api/middleware"
	"github.com/siemhub/orchestrator/internal/config"
	"github.com/siemhub/orchestrator/internal/logger"
	"github.com/siemhub/orchestrator/internal/repository"
	"github.com/siemhub/orchestrator/internal/service"
)

func main() {
	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	appLogger := logger.NewFromEnv(nil)
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	// Initialize repositories
	taskRepo := repository.NewTaskRepository(db)
	runRepo := repository.NewTaskRunRepository(db)
	integrationRepo := repository.NewIntegrationRepository(db)
	auditRepo := repository.NewRequestLogRepository(db)

	// Initialize services
	schemaService := service.NewSchemaService(appLogger, cfg.Sync.InferSampleSize)
	syncService := service.NewSyncService(taskRepo, runRepo, integrationRepo, schemaService, appLogger,
		service.SyncConfig{
			PageSize:         cfg.Sync.PageSize,
			DefaultRowLimit:  cfg.Sync.DefaultRowLimit,
			SearchTimeout:    cfg.Sync.SearchTimeout,
			StaleRunTimeout:  cfg.Scheduler.StaleRunTimeout,
			DestDDLTimeout:   cfg.Sync.DestDDLTimeout,
			DestQueryTimeout: cfg.Sync.DestQueryTimeout,
		})
	scheduler := service.NewScheduler(taskRepo, syncService, appLogger,
		service.SchedulerConfig{
			TickInterval: cfg.Scheduler.TickInterval,
			Workers:      cfg.Scheduler.Workers,
			QueueSize:    cfg.Scheduler.QueueSize,
		})

	// Start the scheduler alongside the API
	schedulerCtx, stopScheduler := context.WithCancel(context.Background())
	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		scheduler.Start(schedulerCtx)
	}()

	// Setup router
	router := api.SetupRouter(api.Handlers{
		Health:      handler.NewHealthHandler(),
		Task:        handler.NewTaskHandler(taskRepo, integrationRepo, auditRepo, syncService, scheduler),
		TaskRun:     handler.NewTaskRunHandler(runRepo, auditRepo),
		Integration: handler.NewIntegrationHandler(integrationRepo, taskRepo, schemaService, handler.IntegrationOptions{
			SearchTimeout:  cfg.Sync.SearchTimeout,
			ConnectTimeout: cfg.Sync.ConnectionTimeout,
			PreviewDialect: cfg.Sync.DestType,
		}),
	}, appLogger, cfg.Server.Mode, middleware.CORSConfig{
		AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
		AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// Stop the scheduler first so no new runs start during shutdown
	stopScheduler()
	select {
	case <-schedulerDone:
	case <-time.After(10 * time.Second):
		appLogger.Warn("Scheduler did not stop in time")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Fatal("Server forced to shutdown")
	}

	appLogger.Info("Server exited")
}
