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
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/mcclellann/laborledger/pkg/archive"
	"github.com/mcclellann/laborledger/pkg/clock"
	"github.com/mcclellann/laborledger/pkg/config"
	"github.com/mcclellann/laborledger/pkg/ledger"
	"github.com/mcclellann/laborledger/pkg/logger"
	"github.com/mcclellann/laborledger/pkg/models"
	"github.com/mcclellann/laborledger/pkg/planning"
	"github.com/mcclellann/laborledger/pkg/scheduler"
	"github.com/mcclellann/laborledger/pkg/store"
)

// ensureSocialAccounting returns the economy's social accounting, creating it on
// first start.
func ensureSocialAccounting(ctx context.Context, s store.Storage) (*models.SocialAccounting, error) {
	social, err := s.GetSocialAccounting(ctx)
	if err == nil {
		return social, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	social, err = s.CreateSocialAccounting(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create social accounting: %w", err)
	}
	return social, nil
}

func main() {
	envFile := flag.String("env", "", "path to an env file")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New(logger.Options{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Service: "laborledger",
	}))
	defer func() { _ = baseLogger.Sync() }()

	zap.ReplaceGlobals(baseLogger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	storage, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		baseLogger.Fatal("failed to open store", zap.String("driver", cfg.Database.Driver), zap.Error(err))
	}
	defer storage.Close()

	social, err := ensureSocialAccounting(ctx, storage)
	if err != nil {
		baseLogger.Fatal("failed to load social accounting", zap.Error(err))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	clk := clock.NewSystem(cfg.Location())
	led := ledger.New(storage, storage, baseLogger.Named("ledger"))
	updater := planning.NewPlanUpdater(storage, led, *social, clk, planning.NewMetrics(registry), baseLogger.Named("planning.updater"))

	var reports archive.Repository
	if cfg.MongoDB.URI != "" {
		mongoRepo, err := archive.NewMongoDBRepository(ctx, cfg.MongoDB.URI, cfg.MongoDB.DBName)
		if err != nil {
			baseLogger.Fatal("failed to init mongodb repository", zap.Error(err))
		}
		defer func() {
			if err := mongoRepo.Close(context.Background()); err != nil {
				baseLogger.Error("failed to close mongodb connection", zap.Error(err))
			}
		}()
		reports = mongoRepo
	} else {
		baseLogger.Warn("MONGODB_URI not set, run reports will not be archived")
	}

	sched := scheduler.NewScheduler(scheduler.Config{
		CronSchedule: cfg.Scheduler.CronSchedule,
		Location:     cfg.Location(),
		RunTimeout:   cfg.Scheduler.RunTimeout,
	}, updater, reports, baseLogger.Named("scheduler"))
	if err := sched.Start(); err != nil {
		baseLogger.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	server := NewServer(storage, led, sched, registry, cfg.Scheduler.RunTimeout, baseLogger.Named("api"))
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      server.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Scheduler.RunTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		baseLogger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	baseLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}
}
