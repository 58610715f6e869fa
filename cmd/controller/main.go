// Package main is the entry point for the reviewplane controller.
// The controller accepts review batches over HTTP and drives their runs on the workflow engine.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"reviewplane/internal/config"
	"reviewplane/internal/controller"
	"reviewplane/internal/controller/handlers"
	"reviewplane/internal/engine/temporal"
	"reviewplane/internal/jobs"
	"reviewplane/internal/logger"
	"reviewplane/internal/observability"
	"reviewplane/internal/store/postgres"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "controller: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Parse flags
	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	configPath := flag.String("config", "", "Path to config file (default: reviewplane.yaml in current directory)")
	flag.Parse()

	// Load Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}
	log := logger.NewWithWriter(os.Stdout, logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to Postgres (the job record store)
	store, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to DB: %w", err)
	}
	defer store.Close()

	// Run migrations if requested
	if *migrateFlag {
		log.Info("running database migrations")
		if err := postgres.Migrate(store.DB()); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		log.Info("migrations completed")
	}

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, observability.ServiceController, cfg.OTELEndpoint)
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Warn("failed to shutdown tracer", "error", err)
		}
	}()

	// Metrics
	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		return fmt.Errorf("failed to init metrics: %w", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			log.Warn("failed to shutdown metrics", "error", err)
		}
	}()

	// Use an Observable Gauge (Async) that queries the DB only when scraped.
	meter := otel.Meter(observability.ServiceController)
	_, err = meter.Int64ObservableGauge("reviewplane.jobs.recorded",
		metric.WithDescription("Number of submitted batches in the job record store"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			count, err := store.CountJobs(ctx)
			if err != nil {
				log.Warn("failed to count job records", "error", err)
				return nil // Don't crash metrics scrape on DB error
			}
			obs.Observe(count)
			return nil
		}),
	)
	if err != nil {
		log.Warn("failed to register job record gauge", "error", err)
	}

	// Workflow engine
	engineClient, err := temporal.Dial(cfg.TemporalHostPort, cfg.TemporalNamespace, log)
	if err != nil {
		return fmt.Errorf("failed to connect to workflow engine: %w", err)
	}
	defer engineClient.Close()

	driver := temporal.NewDriver(engineClient, temporal.Options{
		Namespace: cfg.TemporalNamespace,
		TaskQueue: cfg.TaskQueue,
		Template:  cfg.WorkflowTemplate,
		Terminate: cfg.CancelMode == config.CancelModeTerminate,
	}, log)

	retry := jobs.DefaultRetryPolicy()
	retry.Attempts = cfg.EngineRetryAttempts
	svc := jobs.NewService(driver, store, jobs.Options{
		Template: cfg.WorkflowTemplate,
		Policy: jobs.Policy{
			DefaultWaitMinutes: cfg.DefaultWaitMinutes,
			MaxWaitMinutes:     cfg.MaxWaitMinutes,
			DefaultMaxResults:  cfg.DefaultMaxResults,
			MaxResultsCap:      cfg.MaxResultsCap,
			StartTimeTolerance: cfg.StartTimeTolerance,
		},
		Retry: retry,
		IDs:   jobs.NewIDGenerator(cfg.JobIDPrefix, cfg.JobIDSuffix),
	}, log)

	// Start Server
	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	srv := controller.New(addr, handlers.New(svc, driver, store, log), controller.Options{
		RateLimit:         cfg.APIRateLimit,
		RateBurst:         cfg.APIRateBurst,
		TrustForwardedFor: cfg.APITrustForwardedFor,
		CORSOrigins:       cfg.CORSAllowedOrigins,
		Metrics:           metricsHandler,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("controller starting", "addr", addr, "task_queue", cfg.TaskQueue)
		return srv.Run(gctx)
	})

	err = g.Wait()
	log.Info("controller stopped")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
