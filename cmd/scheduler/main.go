package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/siemhub/orchestrator/internal/config"
	"github.com/siemhub/orchestrator/internal/logger"
	"github.com/siemhub/orchestrator/internal/repository"
	"github.com/siemhub/orchestrator/internal/service"
)

// Standalone scheduler process, for deployments that separate the management
// API from task execution.
func main() {
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger := logger.NewFromEnv(nil)
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	taskRepo := repository.NewTaskRepository(db)
	runRepo := repository.NewTaskRunRepository(db)
	integrationRepo := repository.NewIntegrationRepository(db)

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

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		appLogger.Info("Shutting down scheduler...")
		cancel()
	}()

	scheduler.Start(ctx)
	appLogger.Info("Scheduler exited")
}
