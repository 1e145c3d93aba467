// cmd/historian/main.go drains match results published by the server and
// persists them to Postgres in batches.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jason-s-yu/cardclash/internal/cache"
	"github.com/jason-s-yu/cardclash/internal/config"
	"github.com/jason-s-yu/cardclash/internal/database"
	"github.com/jason-s-yu/cardclash/internal/historian"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("failed to load config")
	}
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}
	if cfg.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cache.ConnectRedis(cfg.RedisAddr, cfg.RedisDB); err != nil {
		logger.WithError(err).Fatal("redis unavailable")
	}
	if err := database.ConnectDB(ctx, cfg.DatabaseURL); err != nil {
		logger.WithError(err).Fatal("database unavailable")
	}
	defer database.DB.Close()
	if err := database.Migrate(ctx, database.DB); err != nil {
		logger.WithError(err).Fatal("failed to migrate")
	}

	queue := cache.NewResultPublisher(cache.Rdb, cfg.ResultsQueue).Queue()
	svc := historian.NewService(cache.Rdb, database.NewLedger(database.DB, cfg.Fees()), historian.Config{
		Queue:      queue,
		BatchSize:  cfg.HistorianBatch,
		FlushDelay: cfg.HistorianFlush,
	}, logger)

	if err := svc.Run(ctx); err != nil {
		logger.WithError(err).Error("historian exited")
	}
	logger.WithField("flushed", svc.Flushed()).Info("historian stopped")
}
