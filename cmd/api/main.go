package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/dunamismax/staffcut/internal/api"
	"github.com/dunamismax/staffcut/internal/config"
	"github.com/dunamismax/staffcut/internal/logging"
	"github.com/dunamismax/staffcut/internal/queue"
	"github.com/dunamismax/staffcut/internal/ratelimit"
	"github.com/dunamismax/staffcut/internal/store"
	"github.com/dunamismax/staffcut/internal/telemetry"
)

func main() {
	flags := pflag.NewFlagSet("staffcut-api", pflag.ExitOnError)
	flags.String("config", "", "optional YAML config file")
	flags.String("addr", ":8080", "listen address")
	flags.String("log-level", "info", "debug, info, warn or error")
	flags.String("log-mode", logging.ModeProduction, "development or production")
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
	logger = logger.Named("api")
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  "staffcut-api",
		Exporter:     cfg.Tracing.Exporter,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		OTLPInsecure: cfg.Tracing.OTLPInsecure,
	}, logger)
	if err != nil {
		logger.Fatal("tracing setup failed", zap.Error(err))
	}

	queueClient := queue.NewClient(cfg.Queue.RedisClientOpt(), cfg.Queue.Name, cfg.Queue.TaskTimeout)
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Warn("queue client close error", zap.Error(err))
		}
	}()

	var batchStore store.BatchStore = store.NewMemoryBatchStore()
	if strings.EqualFold(strings.TrimSpace(cfg.Database.Driver), "postgres") {
		pg, err := store.NewPostgresBatchStore(ctx, cfg.Database.DSN)
		if err != nil {
			logger.Fatal("batch store setup failed", zap.Error(err))
		}
		defer pg.Close()
		batchStore = pg
	}

	opts := api.Options{UserIDHeader: cfg.API.UserIDHeader}
	if cfg.API.RateLimit > 0 {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Queue.RedisAddr,
			Password: cfg.Queue.RedisPassword,
			DB:       cfg.Queue.RedisDB,
		})
		defer redisClient.Close()

		limiter, err := ratelimit.NewPageBucket(redisClient, cfg.API.RateLimit, cfg.API.RateLimitWindow, "")
		if err != nil {
			logger.Fatal("rate limiter setup failed", zap.Error(err))
		}
		opts.RateLimiter = limiter
	}

	app := api.NewServer(logger, queueClient, batchStore, opts)

	httpServer := &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      app.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("listening", zap.String("addr", cfg.API.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown failed", zap.Error(err))
	}
}
