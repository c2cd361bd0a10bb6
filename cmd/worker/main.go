package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"document-backend/internal/bootstrap"
	"document-backend/internal/queue"
	"document-backend/internal/shared/config"
	"document-backend/internal/shared/telemetry"
	"document-backend/internal/workerproc"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := telemetry.Init(telemetry.Options{Level: cfg.LogLevel, Encoding: cfg.LogEncoding, File: cfg.LogFile})
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer telemetry.Sync()

	if !cfg.RedisEnabled() {
		telemetry.Error("worker.redis_required", map[string]any{"reason": "REDIS_ADDR not set"})
		os.Exit(1)
	}
	if !cfg.SharedRepo() {
		telemetry.Error("worker.shared_repo_required", map[string]any{"repo_backend": cfg.RepoBackend})
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The worker analyzes but never enqueues.
	cfg.AutoAnalyze = false
	app, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		telemetry.Error("bootstrap.failed", map[string]any{"error": err})
		os.Exit(1)
	}
	defer app.Close()

	srv := asynq.NewServer(bootstrap.RedisOpt(cfg), asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		Queues:      map[string]int{queue.DefaultQueue: 1},
		Logger:      logger.Sugar(),
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			telemetry.Warn("worker.task_failed", map[string]any{
				"task_type": task.Type(),
				"retry":     retried,
				"max_retry": maxRetry,
				"error":     err,
			})
		}),
	})

	mux := asynq.NewServeMux()
	workerproc.NewHandler(app.Service).Register(mux)

	telemetry.Info("worker.starting", map[string]any{"concurrency": cfg.WorkerConcurrency, "queue": queue.DefaultQueue})
	if err := srv.Start(mux); err != nil {
		telemetry.Error("worker.start_failed", map[string]any{"error": err})
		os.Exit(1)
	}

	<-ctx.Done()
	telemetry.Info("worker.shutting_down", nil)
	srv.Shutdown()
}
