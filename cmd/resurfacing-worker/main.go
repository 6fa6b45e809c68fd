// Command resurfacing-worker runs the batch jobs. It has three modes:
//
//   - Lambda: when AWS_LAMBDA_FUNCTION_NAME is set, each invocation runs
//     one job, selected by the event's "job" field.
//   - One-shot: with -once, the selected job runs once and the process
//     exits. Used by cron-less deployments and smoke tests.
//   - Daemon: otherwise, the resurfacing and retention jobs run on their
//     configured cron schedules until the process receives a signal.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/robfig/cron/v3"

	"backburner/internal/config"
	"backburner/internal/db"
	"backburner/internal/external"
	"backburner/internal/notifications"
	"backburner/internal/resurfacing"
	"backburner/internal/scheduler"
)

const (
	jobResurfacing = "resurfacing"
	jobRetention   = "retention"
)

// workerEvent selects the job for a Lambda invocation.
type workerEvent struct {
	Job string `json:"job"`
}

type worker struct {
	cfg         *config.Config
	logger      *slog.Logger
	resurfacing *scheduler.ResurfacingJob
	retention   *scheduler.RetentionJob
}

func main() {
	once := flag.Bool("once", false, "run the selected job once and exit")
	jobName := flag.String("job", jobResurfacing, "job to run in -once mode (resurfacing|retention)")
	flag.Parse()

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

	w := newWorker(ctx, cfg, db.NewResurfacingStore(pool), logger)

	switch {
	case os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "":
		lambda.Start(w.handleInvocation)
	case *once:
		if err := w.runOnce(ctx, *jobName); err != nil {
			logger.Error("job failed", "job", *jobName, "error", err)
			os.Exit(1)
		}
	default:
		if err := w.runDaemon(ctx); err != nil {
			logger.Error("worker failed", "error", err)
			os.Exit(1)
		}
	}
}

func newWorker(ctx context.Context, cfg *config.Config, store *db.ResurfacingStore, logger *slog.Logger) *worker {
	svc := resurfacing.NewService(store, logger)

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

	return &worker{
		cfg:    cfg,
		logger: logger,
		resurfacing: scheduler.NewResurfacingJob(scheduler.ResurfacingJobConfig{
			Users:          store.Users(),
			Selector:       svc,
			Events:         resurfacing.NewEventRecorder(store, logger),
			Push:           dispatcher,
			Metrics:        metrics,
			Logger:         logger,
			CandidateLimit: cfg.Resurfacing.CandidateLimit,
			UserTimeout:    cfg.Resurfacing.UserTimeout,
		}),
		retention: scheduler.NewRetentionJob(scheduler.RetentionJobConfig{
			Store:      store.Events(),
			Logger:     logger,
			MaxAge:     time.Duration(cfg.Retention.MaxAgeDays) * 24 * time.Hour,
			ArchiveDir: cfg.Retention.ArchiveDir,
			BatchSize:  cfg.Retention.BatchSize,
		}),
	}
}

// handleInvocation is the Lambda entrypoint. An empty job selects the
// resurfacing run.
func (w *worker) handleInvocation(ctx context.Context, event workerEvent) (any, error) {
	job := event.Job
	if job == "" {
		job = jobResurfacing
	}

	switch job {
	case jobResurfacing:
		return w.resurfacing.Run(ctx, time.Now().UTC())
	case jobRetention:
		return w.retention.Run(ctx, time.Now().UTC())
	default:
		return nil, fmt.Errorf("unknown job %q", job)
	}
}

func (w *worker) runOnce(ctx context.Context, job string) error {
	_, err := w.handleInvocation(ctx, workerEvent{Job: job})
	return err
}

// runDaemon schedules the jobs with cron and blocks until the context is
// cancelled.
func (w *worker) runDaemon(ctx context.Context) error {
	c := cron.New()

	if _, err := c.AddFunc(w.cfg.Resurfacing.Schedule, func() {
		if _, err := w.resurfacing.Run(ctx, time.Now().UTC()); err != nil {
			w.logger.Error("scheduled resurfacing run failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("scheduling resurfacing job: %w", err)
	}

	if w.cfg.Retention.Enabled {
		if _, err := c.AddFunc(w.cfg.Retention.Schedule, func() {
			if _, err := w.retention.Run(ctx, time.Now().UTC()); err != nil {
				w.logger.Error("scheduled retention run failed", "error", err)
			}
		}); err != nil {
			return fmt.Errorf("scheduling retention job: %w", err)
		}
	}

	w.logger.Info("worker started",
		"resurfacing_schedule", w.cfg.Resurfacing.Schedule,
		"retention_enabled", w.cfg.Retention.Enabled,
	)

	c.Start()
	<-ctx.Done()

	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(30 * time.Second):
		w.logger.Warn("timed out waiting for running jobs to finish")
	}

	w.logger.Info("worker stopped")
	return nil
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
