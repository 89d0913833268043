// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/bingo/internal/auth"
	"github.com/jason-s-yu/bingo/internal/bingo"
	"github.com/jason-s-yu/bingo/internal/cache"
	"github.com/jason-s-yu/bingo/internal/config"
	"github.com/jason-s-yu/bingo/internal/database"
	"github.com/jason-s-yu/bingo/internal/game"
	"github.com/jason-s-yu/bingo/internal/handlers"
	"github.com/jason-s-yu/bingo/internal/middleware"
	"github.com/sirupsen/logrus"
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

	// the audit trail is best effort; the game runs without redis
	var publisher game.EventPublisher
	rdb, err := cache.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		logger.WithError(err).Warn("round events will not be published")
	} else {
		defer rdb.Close()
		publisher = cache.NewPublisher(rdb, cfg.RoundQueueName)
	}

	issuer, err := auth.NewIssuer(cfg.JWTSecret, cfg.TokenExpireTime)
	if err != nil {
		logger.Fatalf("auth: %v", err)
	}
	if cfg.JWTSecret == "" {
		logger.Warn("JWT_SECRET is not set; session tokens will not survive a restart")
	}

	catalog, err := loadCatalog(cfg)
	if err != nil {
		logger.Fatalf("card catalog: %v", err)
	}

	lastRound, err := store.LatestRoundID(ctx)
	if err != nil {
		lastRound = time.Now().Unix()
		logger.WithError(err).Warnf("could not read last round id, numbering from %d", lastRound)
	}

	machine := game.NewMachine(cfg.Rules(), catalog, nil, lastRound)
	runner := game.NewRunner(machine, store, issuer, publisher, logger)

	runnerDone := make(chan struct{})
	go func() {
		defer close(runnerDone)
		if err := runner.Run(ctx); err != nil {
			logger.WithError(err).Error("round engine exited")
		}
	}()

	logged := middleware.LogMiddleware(logger)
	mux := http.NewServeMux()
	mux.Handle("GET /ws", logged(handlers.GameWSHandler(logger, runner, cfg.AllowedOrigins)))
	handlers.NewAPIServer(store, runner, logger, cfg.AdminToken).Register(mux, logged)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.WithFields(logrus.Fields{
			"addr":     srv.Addr,
			"cards":    catalog.Len(),
			"round":    lastRound + 1,
			"stake":    cfg.StakeAmount.String(),
			"houseCut": cfg.HouseCut.String(),
		}).Info("bingo server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("server exited")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("http shutdown")
	}
	<-runnerDone
}

func loadCatalog(cfg config.Config) (*bingo.Catalog, error) {
	if cfg.CardsFile != "" {
		return bingo.LoadCatalog(cfg.CardsFile)
	}
	return bingo.GenerateCatalog(cfg.CardCount), nil
}
