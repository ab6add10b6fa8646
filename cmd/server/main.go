package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jafarshop/tablepos/internal/api"
	"github.com/jafarshop/tablepos/internal/config"
	"github.com/jafarshop/tablepos/internal/connectivity"
	"github.com/jafarshop/tablepos/internal/offline"
	"github.com/jafarshop/tablepos/internal/promotion"
	"github.com/jafarshop/tablepos/internal/repository/postgres"
	"github.com/jafarshop/tablepos/internal/service"
	"github.com/jafarshop/tablepos/internal/verification"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := newLogger(cfg)
	defer logger.Sync()

	logger.Info("Starting table POS server",
		zap.String("port", cfg.Port),
		zap.String("environment", cfg.Environment),
		zap.String("queue_backend", cfg.Queue.Backend),
		zap.Strings("verification_providers", cfg.Verification.Providers),
	)

	db, err := postgres.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := postgres.RunMigrations(db); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	repos := postgres.NewRepositories(db, logger)

	notifier := service.NewNotifierFromConfig(cfg.Notification, logger)
	notifier.Start()
	defer notifier.Close()

	orderService := service.NewOrderService(repos, promotion.NewEngine(repos.Promotion, logger), notifier, logger)

	storage, storageCloser, err := offline.OpenStorage(cfg.Queue)
	if err != nil {
		logger.Fatal("Failed to open offline queue", zap.Error(err))
	}
	defer storageCloser.Close()

	coordinator := offline.NewCoordinator(offline.NewQueue(storage, logger), orderService, logger,
		offline.WithIdempotencyKeys(repos.IdempotencyKey),
	)

	probe := connectivity.DatabaseProbe(db)
	if cfg.Connectivity.ProbeURL != "" {
		probe = connectivity.HTTPProbe(cfg.Connectivity.ProbeURL)
	}
	monitor := connectivity.NewMonitor(probe, cfg.Connectivity.ProbeInterval, logger)
	coordinator.Attach(monitor)

	chain := verification.NewChainFromConfig(cfg.Verification, logger)

	router := api.NewRouter(cfg, api.Dependencies{
		Submitter:       coordinator,
		Orders:          orderService,
		Verifier:        chain,
		Sync:            coordinator,
		Connectivity:    monitor,
		IdempotencyKeys: repos.IdempotencyKey,
	}, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	bgCtx, stopBackground := context.WithCancel(context.Background())
	go monitor.Run(bgCtx)
	go coordinator.RunSizePoller(bgCtx, cfg.Connectivity.QueuePollInterval)

	// replay anything left over from a previous run
	go func() {
		report, err := coordinator.DrainAndSync(bgCtx)
		if err != nil {
			logger.Error("Startup sync failed", zap.Error(err))
			return
		}
		logger.Info("Startup sync finished",
			zap.Int("succeeded", report.Succeeded),
			zap.Int("failed", report.Failed),
			zap.Int("remaining", report.Remaining),
		)
	}()

	logger.Info("Server started successfully", zap.String("address", srv.Addr))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	stopBackground()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	coordinator.Wait()

	logger.Info("Server exited")
}

func newLogger(cfg *config.Config) *zap.Logger {
	zcfg := zap.NewDevelopmentConfig()
	if cfg.Environment == "production" {
		zcfg = zap.NewProductionConfig()
	}
	if level, err := zapcore.ParseLevel(cfg.LogLevel); err == nil {
		zcfg.Level = zap.NewAtomicLevelAt(level)
	}
	logger, err := zcfg.Build()
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	return logger
}
