package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/dunamismax/staffcut/internal/config"
	"github.com/dunamismax/staffcut/internal/logging"
	"github.com/dunamismax/staffcut/internal/pipeline"
	"github.com/dunamismax/staffcut/internal/storage"
	"github.com/dunamismax/staffcut/internal/store"
	"github.com/dunamismax/staffcut/internal/telemetry"
	"github.com/dunamismax/staffcut/internal/webhook"
	"github.com/dunamismax/staffcut/internal/worker"
)

func main() {
	flags := pflag.NewFlagSet("staffcut-worker", pflag.ExitOnError)
	flags.String("config", "", "optional YAML config file")
	flags.String("log-level", "info", "debug, info, warn or error")
	flags.String("log-mode", logging.ModeProduction, "development or production")
	flags.String("strategy", string(pipeline.StrategyConcurrent), "sequential or concurrent")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(flags)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	logger = logger.Named("worker")
	defer func() { _ = logger.Sync() }()

	if err := pipeline.Startup(); err != nil {
		logger.Fatal("pipeline runtime startup failed", zap.Error(err))
	}
	defer pipeline.Shutdown()

	ctx := context.Background()
	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  "staffcut-worker",
		Exporter:     cfg.Tracing.Exporter,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		OTLPInsecure: cfg.Tracing.OTLPInsecure,
	}, logger)
	if err != nil {
		logger.Fatal("tracing setup failed", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	var storageClient *storage.Client
	if strings.TrimSpace(cfg.Storage.Endpoint) != "" {
		storageClient, err = storage.NewClient(storage.Config{
			Endpoint: cfg.Storage.Endpoint,
			Access:   cfg.Storage.AccessKey,
			Secret:   cfg.Storage.SecretKey,
			Bucket:   cfg.Storage.Bucket,
			UseSSL:   cfg.Storage.UseSSL,
		})
		if err != nil {
			logger.Fatal("storage client setup failed", zap.Error(err))
		}
	}

	batchStore, closeStore, err := openStore(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("batch store setup failed", zap.Error(err))
	}
	defer closeStore()

	webhookClient := webhook.NewClient(webhook.Config{
		SigningSecret:  cfg.Webhook.SigningSecret,
		Timeout:        cfg.Webhook.Timeout,
		MaxAttempts:    cfg.Webhook.MaxAttempts,
		InitialBackoff: cfg.Webhook.InitialBackoff,
		MaxBackoff:     cfg.Webhook.MaxBackoff,
	}, logger.Named("webhook"))

	srv, err := worker.NewServer(logger, cfg.Queue, cfg.Worker, cfg.Pipeline, storageClient, webhookClient, batchStore)
	if err != nil {
		logger.Fatal("worker setup failed", zap.Error(err))
	}

	metricsServer := &http.Server{
		Addr:              cfg.Worker.MetricsAddr,
		Handler:           srv.MetricsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics listening", zap.String("addr", cfg.Worker.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("starting worker",
		zap.Int("concurrency", cfg.Worker.Concurrency),
		zap.Int("max_active_batches", cfg.Worker.MaxActiveBatches),
		zap.String("queue", cfg.Queue.Name),
		zap.String("redis", cfg.Queue.RedisAddr),
		zap.String("strategy", cfg.Pipeline.Strategy),
	)

	if err := srv.Run(); err != nil {
		logger.Error("worker failed", zap.Error(err))
	}
}

func openStore(ctx context.Context, cfg config.DatabaseConfig) (store.BatchStore, func(), error) {
	if strings.EqualFold(strings.TrimSpace(cfg.Driver), "postgres") {
		pg, err := store.NewPostgresBatchStore(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return pg, func() { _ = pg.Close() }, nil
	}
	return store.NewMemoryBatchStore(), func() {}, nil
}
