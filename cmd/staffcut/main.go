package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/dunamismax/staffcut/internal/config"
	"github.com/dunamismax/staffcut/internal/domain"
	"github.com/dunamismax/staffcut/internal/id"
	"github.com/dunamismax/staffcut/internal/logging"
	"github.com/dunamismax/staffcut/internal/pipeline"
	"github.com/dunamismax/staffcut/internal/telemetry"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	flags := pflag.NewFlagSet("staffcut", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.Usage = func() {
		fmt.Fprintf(stderr, "Usage: staffcut -i INPUT_DIRECTORY -o OUTPUT_DIRECTORY [options]\n\n")
		fmt.Fprintf(stderr, "Crops every staff system page to one shared size, makes it transparent\nand writes a rounded background to put behind it.\n\n")
		flags.PrintDefaults()
	}

	input := flags.StringP("input-directory", "i", "", "directory holding the page images (required)")
	output := flags.StringP("output-directory", "o", "", "existing directory the cutouts are written to (required)")
	background := flags.StringP("background", "b", domain.DefaultBackground, "background color: a CSS name, #rrggbb[aa] or rgb()/rgba()")
	radius := flags.Float64P("radius", "r", domain.DefaultRadius, "corner radius of the background in pixels")
	extension := flags.StringP("extension", "e", domain.DefaultExtension, "file extension of the images to process")
	flags.String("strategy", string(pipeline.StrategyConcurrent), "sequential or concurrent")
	flags.Int("concurrency", 0, "worker goroutines for the concurrent strategy (0 = one per CPU)")
	flags.String("metrics-textfile", "", "write Prometheus metrics for this run to this file")
	flags.String("log-level", "info", "debug, info, warn or error (also LOGLEVEL)")
	flags.String("config", "", "optional YAML config file (also "+config.EnvConfigFile+")")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if strings.TrimSpace(*input) == "" || strings.TrimSpace(*output) == "" {
		fmt.Fprintln(stderr, "error: --input-directory and --output-directory are required")
		flags.Usage()
		return exitUsage
	}

	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitError
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "error: invalid configuration: %v\n", err)
		return exitUsage
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Mode)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitError
	}
	defer func() { _ = logger.Sync() }()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  "staffcut",
		Exporter:     cfg.Tracing.Exporter,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		OTLPInsecure: cfg.Tracing.OTLPInsecure,
		Writer:       stderr,
	}, logger)
	if err != nil {
		logger.Error("tracing setup failed", zap.Error(err))
		return exitError
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	if err := pipeline.Startup(); err != nil {
		logger.Error("pipeline runtime startup failed", zap.Error(err))
		return exitError
	}
	defer pipeline.Shutdown()

	strategy, err := pipeline.ParseStrategy(cfg.Pipeline.Strategy)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitUsage
	}
	var (
		registry *prometheus.Registry
		metrics  *pipeline.Metrics
	)
	if cfg.Pipeline.MetricsTextfile != "" {
		registry = prometheus.NewRegistry()
		metrics = pipeline.NewMetrics(registry)
	}

	processor, err := pipeline.NewLocalProcessor(logger, pipeline.Config{
		Strategy:    strategy,
		Concurrency: cfg.Pipeline.Concurrency,
		Metrics:     metrics,
	})
	if err != nil {
		logger.Error("pipeline setup failed", zap.Error(err))
		return exitError
	}

	result, err := processor.Process(ctx, pipeline.Request{
		BatchID: id.New(),
		Input:   *input,
		Output:  *output,
		Options: domain.Options{
			Background: *background,
			Radius:     *radius,
			Extension:  *extension,
		},
	})

	if registry != nil {
		if werr := prometheus.WriteToTextfile(cfg.Pipeline.MetricsTextfile, registry); werr != nil {
			logger.Warn("metrics textfile write failed", zap.String("path", cfg.Pipeline.MetricsTextfile), zap.Error(werr))
		}
	}

	switch {
	case errors.Is(err, pipeline.ErrNoImages):
		fmt.Fprintf(stderr, "No images found with extension %q in directory %s\n", *extension, *input)
		return exitError
	case err != nil:
		logger.Error("batch failed", zap.Error(err))
		return exitError
	}

	fmt.Fprintf(stdout, "Wrote %d images and %s to %s (%s)\n", len(result.Outputs), pipeline.BackgroundName, *output, result.Extent)
	return exitOK
}
