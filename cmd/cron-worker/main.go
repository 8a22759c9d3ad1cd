package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/daybook-backend/internal/cron"
	"github.com/angelmondragon/daybook-backend/internal/recordings"
	"github.com/angelmondragon/daybook-backend/pkg/config"
	"github.com/angelmondragon/daybook-backend/pkg/db"
	"github.com/angelmondragon/daybook-backend/pkg/instance"
	"github.com/angelmondragon/daybook-backend/pkg/logger"
	"github.com/angelmondragon/daybook-backend/pkg/metrics"
	"github.com/angelmondragon/daybook-backend/pkg/migrate"
	"github.com/angelmondragon/daybook-backend/pkg/redis"
	"github.com/angelmondragon/daybook-backend/pkg/storage/backend"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	blobs, _, err := backend.Open(context.Background(), cfg, dbClient.DB(), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap blob store", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron:"+envName(cfg.App.Env)), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	orphanJob, err := cron.NewOrphanBlobCleanupJob(cron.OrphanBlobCleanupJobParams{
		Logger:     logg,
		Blobs:      blobs,
		Recordings: recordings.NewRepository(dbClient.DB()),
		Grace:      cfg.Cron.OrphanBlobGrace,
		BatchSize:  cfg.Cron.OrphanBatchSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create orphan blob job", err)
		os.Exit(1)
	}
	tempJob, err := cron.NewTranscriptionTempCleanupJob(cron.TranscriptionTempCleanupJobParams{
		Logger:    logg,
		TempDir:   cfg.Transcription.TempDir,
		Retention: cfg.Transcription.TempRetention,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create temp cleanup job", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(orphanJob, tempJob),
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.ID(),
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func envName(env string) string {
	if env == "" {
		return "local"
	}
	return env
}
