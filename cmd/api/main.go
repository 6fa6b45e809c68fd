// Command api runs the Backburner HTTP service: resurfacing candidate
// reads, on-demand note evaluation, and operator-triggered job runs.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"backburner/internal/api/handlers"
	"backburner/internal/config"
	"backburner/internal/db"
	"backburner/internal/external"
	"backburner/internal/notifications"
	"backburner/internal/resurfacing"
	"backburner/internal/scheduler"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Database.RunMigrations {
		if err := db.RunMigrations(cfg.Database.URL.Reveal(), logger); err != nil {
			logger.Error("migrations failed", "error", err)
			os.Exit(1)
		}
	}

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	store := db.NewResurfacingStore(pool)
	svc := resurfacing.NewService(store, logger)
	job := buildResurfacingJob(ctx, cfg, store, svc, logger)

	router := handlers.NewRouter(handlers.RouterDeps{
		Notes:  handlers.NewNotesHandler(svc, cfg.Resurfacing.CandidateLimit),
		Jobs:   handlers.NewJobsHandler(job),
		Health: handlers.NewHealthHandler(pool),
		Logger: logger,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api listening", "port", cfg.Server.Port, "environment", cfg.Environment)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
		}
	}

	logger.Info("api stopped")
}

// buildResurfacingJob assembles the batch job with the configured push
// dispatcher and optional metrics export.
func buildResurfacingJob(
	ctx context.Context,
	cfg *config.Config,
	store *db.ResurfacingStore,
	svc *resurfacing.Service,
	logger *slog.Logger,
) *scheduler.ResurfacingJob {
	var dispatcher scheduler.PushDispatcher = notifications.Disabled{}
	if cfg.Push.Enabled {
		client := external.NewClient(
			&http.Client{Timeout: cfg.Push.Timeout},
			"push-provider",
			external.DefaultRetryPolicy(),
			cfg.Service+"/1.0",
		)
		provider := notifications.NewExpoProvider(client, cfg.Push.ProviderURL, cfg.Push.AccessToken)
		dispatcher = notifications.NewPushService(
			store.DeviceTokens(), provider, logger, cfg.Push.Title, cfg.Push.MaxConcurrency)
	}

	var metrics scheduler.RunMetrics
	if cfg.Metrics.Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Metrics.Region))
		if err != nil {
			logger.Warn("failed to load AWS config, metrics disabled", "error", err)
		} else {
			metrics = scheduler.NewCloudWatchRunMetrics(
				cloudwatch.NewFromConfig(awsCfg), cfg.Metrics.Namespace, logger)
		}
	}

	return scheduler.NewResurfacingJob(scheduler.ResurfacingJobConfig{
		Users:          store.Users(),
		Selector:       svc,
		Events:         resurfacing.NewEventRecorder(store, logger),
		Push:           dispatcher,
		Metrics:        metrics,
		Logger:         logger,
		CandidateLimit: cfg.Resurfacing.CandidateLimit,
		UserTimeout:    cfg.Resurfacing.UserTimeout,
	})
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})).
		With("service", cfg.Service, "environment", cfg.Environment)
}
