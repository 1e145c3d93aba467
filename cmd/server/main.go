// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jason-s-yu/cardclash/internal/auth"
	"github.com/jason-s-yu/cardclash/internal/cache"
	"github.com/jason-s-yu/cardclash/internal/config"
	"github.com/jason-s-yu/cardclash/internal/database"
	"github.com/jason-s-yu/cardclash/internal/handlers"
	"github.com/jason-s-yu/cardclash/internal/store"
	"github.com/jason-s-yu/cardclash/internal/sweeper"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

// ledger is what the server needs from a settlement backend.
type ledger interface {
	handlers.Ledger
	handlers.ResultRecorder
}

func main() {
	logger := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("failed to load config")
	}
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}
	if err := auth.Init(cfg.TokenTTL); err != nil {
		logger.WithError(err).Fatal("failed to init auth")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	limits, fees := cfg.Limits(), cfg.Fees()

	// room store
	var rooms store.Store
	switch cfg.Store {
	case "memory":
		logger.Warn("using in-memory room store; state is lost on restart")
		rooms = store.NewMemoryStore(store.WithLimits(limits))
	case "redis":
		if err := cache.ConnectRedis(cfg.RedisAddr, cfg.RedisDB); err != nil {
			logger.WithError(err).Fatal("redis unavailable")
		}
		rooms = cache.NewRoomStore(cache.Rdb, cache.WithLimits(limits))
	default:
		logger.Fatalf("unknown ROOM_STORE %q", cfg.Store)
	}

	// settlement
	var settlement ledger
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set; using in-memory ledger")
		settlement = database.NewMemoryLedger(fees)
	} else {
		if err := database.ConnectDB(ctx, cfg.DatabaseURL); err != nil {
			logger.WithError(err).Fatal("database unavailable")
		}
		defer database.DB.Close()
		if err := database.Migrate(ctx, database.DB); err != nil {
			logger.WithError(err).Fatal("failed to migrate")
		}
		settlement = database.NewLedger(database.DB, fees)
	}

	var recorder handlers.ResultRecorder = settlement
	if cfg.ResultsAsync {
		if cache.Rdb == nil {
			logger.Fatal("RESULTS_ASYNC requires ROOM_STORE=redis")
		}
		pub := cache.NewResultPublisher(cache.Rdb, cfg.ResultsQueue)
		recorder = handlers.RecorderFunc(pub.PublishMatchResult)
		logger.WithField("queue", pub.Queue()).Info("match results go through the historian")
	}

	srv := handlers.NewAPIServer(rooms, settlement, recorder, logger)
	srv.AdminToken = cfg.AdminToken

	sw, err := sweeper.New(rooms, cfg.SweepInterval, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to build sweeper")
	}
	if err := sw.Start(); err != nil {
		logger.WithError(err).Fatal("failed to start sweeper")
	}
	defer func() {
		if err := sw.Stop(); err != nil {
			logger.WithError(err).Warn("sweeper shutdown")
		}
	}()

	httpSrv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	logger.Infof("Running on %s", httpSrv.Addr)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Error("server exited")
	}
}
