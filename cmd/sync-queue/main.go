package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/jafarshop/tablepos/internal/config"
	"github.com/jafarshop/tablepos/internal/offline"
	"github.com/jafarshop/tablepos/internal/promotion"
	"github.com/jafarshop/tablepos/internal/repository/postgres"
	"github.com/jafarshop/tablepos/internal/service"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	db, err := postgres.NewConnection(cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	storage, closer, err := offline.OpenStorage(cfg.Queue)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open offline queue: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	repos := postgres.NewRepositories(db, logger)
	notifier := service.NewNotifierFromConfig(cfg.Notification, logger)
	notifier.Start()
	defer notifier.Close()

	svc := service.NewOrderService(repos, promotion.NewEngine(repos.Promotion, logger), notifier, logger)
	coordinator := offline.NewCoordinator(offline.NewQueue(storage, logger), svc, logger,
		offline.WithIdempotencyKeys(repos.IdempotencyKey),
		offline.WithProgress(func(p offline.SyncProgress) {
			status := "ok"
			if p.Err != nil {
				status = p.Err.Error()
			}
			fmt.Printf("[%d/%d] %s: %s\n", p.Done, p.Total, p.QueueID, status)
		}),
	)

	report, err := coordinator.DrainAndSync(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Sync failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Succeeded: %d, Failed: %d, Remaining: %d\n", report.Succeeded, report.Failed, report.Remaining)
	if report.Failed > 0 {
		os.Exit(2)
	}
}
