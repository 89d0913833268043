// cmd/historian/main.go drains the round event queue from redis into postgres.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jason-s-yu/bingo/internal/cache"
	"github.com/jason-s-yu/bingo/internal/config"
	"github.com/jason-s-yu/bingo/internal/database"
	"github.com/jason-s-yu/bingo/internal/historian"
)

func main() {
	cfg := config.Load()
	logger := cfg.NewLogger()
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.ConnectDB(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("database: %v", err)
	}
	defer pool.Close()

	store := database.NewStore(pool, cfg.WelcomeBonus)
	if err := store.Migrate(ctx); err != nil {
		logger.Fatalf("database: %v", err)
	}

	rdb, err := cache.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		logger.Fatalf("redis: %v", err)
	}
	defer rdb.Close()

	svc := historian.New(cache.NewQueue(rdb, cfg.RoundQueueName), store, historian.Config{
		BatchSize:  cfg.HistorianBatchSize,
		FlushDelay: cfg.HistorianFlushDelay,
		Inactivity: cfg.RoundInactivityTimeout,
	}, logger)

	if err := svc.Run(ctx); err != nil {
		logger.WithError(err).Error("historian exited")
	}
}
