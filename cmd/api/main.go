package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/daybook-backend/api/controllers"
	"github.com/angelmondragon/daybook-backend/api/routes"
	"github.com/angelmondragon/daybook-backend/internal/access"
	"github.com/angelmondragon/daybook-backend/internal/days"
	"github.com/angelmondragon/daybook-backend/internal/recordings"
	"github.com/angelmondragon/daybook-backend/internal/transcription"
	"github.com/angelmondragon/daybook-backend/pkg/config"
	"github.com/angelmondragon/daybook-backend/pkg/db"
	"github.com/angelmondragon/daybook-backend/pkg/instance"
	"github.com/angelmondragon/daybook-backend/pkg/logger"
	"github.com/angelmondragon/daybook-backend/pkg/metrics"
	"github.com/angelmondragon/daybook-backend/pkg/migrate"
	"github.com/angelmondragon/daybook-backend/pkg/storage/backend"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	txMetrics := metrics.NewTranscriptionMetrics(registry)

	blobs, blobPinger, err := backend.Open(context.Background(), cfg, dbClient.DB(), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap blob store", err)
		os.Exit(1)
	}

	dayRepo := days.NewRepository(dbClient.DB())
	dayLock := days.NewLock(dbClient.DB(), cfg.Transcription.StaleAfter)
	recordingRepo := recordings.NewRepository(dbClient.DB())

	authz, err := access.NewAuthorizer(dayRepo)
	requireComponent(logg, "authorizer", err)

	recordingService, err := recordings.NewService(recordings.ServiceParams{
		Repo:  recordingRepo,
		Blobs: blobs,
		Authz: authz,
		Lock:  dayLock,
		Limits: recordings.Limits{
			MaxBytes:      cfg.Media.MaxUploadBytes(),
			MaxDurationMS: cfg.Media.MaxRecordingMS,
		},
		Logger: logg,
	})
	requireComponent(logg, "recording service", err)

	extractor, err := newExtractor(cfg.Transcription)
	requireComponent(logg, "extractor", err)

	pipeline, err := transcription.NewPipeline(transcription.PipelineParams{
		Blobs:      blobs,
		Recordings: recordingRepo,
		Normalizer: transcription.NewFFmpegNormalizer(cfg.Transcription.FFmpegPath, cfg.Transcription.SampleRate),
		Extractor:  extractor,
		TempDir:    cfg.Transcription.TempDir,
		Timeouts: transcription.Timeouts{
			Fetch:     cfg.Transcription.FetchTimeout,
			Normalize: cfg.Transcription.NormalizeTimeout,
			Extract:   cfg.Transcription.ExtractTimeout,
		},
	})
	requireComponent(logg, "pipeline", err)

	queue := transcription.NewQueue(txMetrics)
	worker, err := transcription.NewWorker(transcription.WorkerParams{
		Queue:      queue,
		Lock:       dayLock,
		Recordings: recordingRepo,
		Pipeline:   pipeline,
		Logger:     logg,
		Metrics:    txMetrics,
	})
	requireComponent(logg, "transcription worker", err)

	transcriptionService, err := transcription.NewService(transcription.ServiceParams{
		Authz:   authz,
		Lock:    dayLock,
		Days:    dayRepo,
		Queue:   queue,
		Logger:  logg,
		Metrics: txMetrics,
	})
	requireComponent(logg, "transcription service", err)

	checks := []controllers.ReadinessCheck{{Name: "database", Pinger: dbClient}}
	if blobPinger != nil {
		checks = append(checks, controllers.ReadinessCheck{Name: "object_store", Pinger: blobPinger})
	}
	handler, err := routes.NewRouter(routes.RouterParams{
		Config:        cfg,
		Logger:        logg,
		Gatherer:      registry,
		Transcription: transcriptionService,
		Recordings:    recordingService,
		Checks:        checks,
	})
	requireComponent(logg, "router", err)

	service, err := NewService(ServiceParams{
		Config:   cfg,
		Logger:   logg,
		Handler:  handler,
		Worker:   worker,
		Recovery: transcriptionService,
		Checks:   checks,
	})
	requireComponent(logg, "api service", err)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"instance": instance.ID(),
		"storage":  cfg.Storage.Backend,
	})

	if err := service.Run(ctx); err != nil {
		logg.Error(ctx, "api stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api shut down gracefully")
}

func newExtractor(cfg config.TranscriptionConfig) (transcription.Extractor, error) {
	if cfg.UsesHTTPExtractor() {
		return transcription.NewHTTPExtractor(cfg.ExtractorURL, cfg.ExtractorToken, cfg.ExtractTimeout)
	}
	return transcription.NewCommandExtractor(cfg.ExtractorCommand)
}

func requireComponent(logg *logger.Logger, name string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), "failed to create "+name, err)
	os.Exit(1)
}
