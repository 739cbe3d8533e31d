package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/DikoMolly/chekins/internal/assets"
	"github.com/DikoMolly/chekins/internal/config"
	"github.com/DikoMolly/chekins/internal/logger"
	"github.com/DikoMolly/chekins/internal/media"
	"github.com/DikoMolly/chekins/internal/metrics"
	"github.com/DikoMolly/chekins/internal/notify"
	"github.com/DikoMolly/chekins/internal/postmedia"
	"github.com/DikoMolly/chekins/internal/queue"
	"github.com/DikoMolly/chekins/internal/worker"
)

const version = "0.3.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "worker failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	logger.Init(cfg.LogLevel)
	log := logger.Default()
	log.Info("starting media worker", "version", version, "environment", cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redis
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	log.Info("connected to redis")

	// Postgres
	pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("create postgres pool: %w", err)
	}
	defer pgPool.Close()
	if err := pgPool.Ping(ctx); err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	log.Info("connected to postgres")

	postStore := postmedia.NewPostgresStore(pgPool)
	if err := postStore.EnsureSchema(ctx); err != nil {
		return err
	}

	// Object storage
	assetStore, err := assets.NewMinIOStore(assets.Config{
		Endpoint:  cfg.MinIOEndpoint,
		AccessKey: cfg.MinIOAccessKey,
		SecretKey: cfg.MinIOSecretKey,
		Bucket:    cfg.MinIOBucket,
		UseSSL:    cfg.MinIOUseSSL,
		Region:    cfg.MinIORegion,
	})
	if err != nil {
		return err
	}
	if err := assetStore.EnsureBucket(ctx); err != nil {
		return err
	}
	log.Info("object storage ready", "bucket", cfg.MinIOBucket)

	videoTool := media.NewVideoTool(cfg.FFmpegPath, cfg.FFprobePath)
	if !videoTool.Available() {
		log.Warn("ffmpeg not found, video jobs will produce placeholder assets")
	}
	mediaService := media.NewService(assetStore, videoTool)

	var alerter notify.Alerter
	if cfg.SMTPHost != "" {
		alerter = notify.NewEmailAlerter(notify.EmailConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFromAddress,
			To:       cfg.AdminEmail,
		})
	} else {
		log.Warn("SMTP not configured, admin alerts will only be logged")
		alerter = notify.NewLogAlerter(log)
	}

	deps := &worker.Dependencies{
		Posts:  postStore,
		Media:  mediaService,
		Alerts: alerter,
	}

	queueLog := zerolog.New(os.Stdout).With().Timestamp().Str("component", "queue").Logger()
	manager := queue.NewManager(queue.NewRedisStore(redisClient),
		queue.WithManagerLogger(queueLog),
		queue.WithManagerMetrics(metrics.NewCollector()),
	)
	manager.CreateQueue(worker.QueueName,
		queue.WithMaxAttempts(cfg.MaxRetries),
		queue.WithBackoff(cfg.RetryBackoff),
	)
	manager.OnFinalFailure(worker.QueueName, worker.FinalFailureHandler(deps))

	registry := queue.NewRegistry()
	registry.Use(
		queue.RecoveryMiddleware(queueLog),
		queue.LoggingMiddleware(queueLog),
		queue.TimeoutMiddleware(cfg.JobTimeout),
	)
	if err := registry.Register(worker.JobTypeProcessMedia, worker.ProcessMediaHandler(deps)); err != nil {
		return err
	}

	pool := manager.CreateWorker(worker.QueueName, registry,
		queue.WithConcurrency(cfg.WorkerConcurrency),
	)

	metrics.SetAppInfo(version, cfg.Environment, "worker")
	metrics.SetWorkerPoolSize(cfg.WorkerConcurrency)

	// Metrics and health endpoints.
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := redisClient.Ping(r.Context()).Err(); err != nil {
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	metricsSrv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.MetricsPort), Handler: mux}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", "error", err)
		}
	}()
	log.Info("metrics server listening", "addr", metricsSrv.Addr)

	if err := pool.Start(ctx); err != nil {
		log.Error("worker pool error", "error", err)
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("metrics server shutdown failed", "error", err)
	}
	if err := manager.Close(shutdownCtx); err != nil {
		log.Warn("queue manager shutdown failed", "error", err)
	}
	log.Info("worker stopped")
	return nil
}
