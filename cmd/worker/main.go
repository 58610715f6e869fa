// Package main is the entry point for the reviewplane worker.
// The worker hosts the review workflow and its collaborator activities on the engine's task queue.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"reviewplane/internal/collaborator"
	"reviewplane/internal/config"
	"reviewplane/internal/engine/temporal"
	"reviewplane/internal/logger"
	"reviewplane/internal/observability"
	"reviewplane/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Parse flags
	configPath := flag.String("config", "", "Path to config file (default: reviewplane.yaml in current directory)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := logger.NewWithWriter(os.Stdout, logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, observability.ServiceWorker, cfg.OTELEndpoint)
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

	engineClient, err := temporal.Dial(cfg.TemporalHostPort, cfg.TemporalNamespace, log)
	if err != nil {
		return fmt.Errorf("failed to connect to workflow engine: %w", err)
	}
	defer engineClient.Close()

	searcher := collaborator.NewSearchClient(cfg.SearchURL, cfg.SearchTimeout,
		collaborator.WithRateLimit(cfg.SearchRateLimit),
		collaborator.WithLogger(log))
	aggregator := collaborator.NewAggregationClient(cfg.AggregationURL, cfg.AggregationTimeout,
		collaborator.WithLogger(log))

	wf := worker.NewWorkflow(worker.WorkflowConfig{
		QuerySuffix:       cfg.SearchQuerySuffix,
		SearchConcurrency: cfg.SearchConcurrency,
		AggregationMode:   cfg.AggregationMode,
		FailOnSearchError: cfg.FailOnSearchError,
		ActivityTimeout:   cfg.ActivityTimeout,
		MaxAttempts:       int32(cfg.ActivityMaxAttempts),
	})
	acts := worker.NewActivities(searcher, aggregator, log)

	agent := worker.New(engineClient, wf, acts, worker.AgentConfig{
		TaskQueue:        cfg.TaskQueue,
		Concurrency:      cfg.WorkerConcurrency,
		ShutdownDeadline: cfg.WorkerShutdownDeadline,
	}, log)

	// Start a dedicated metrics server
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metricsHandler)
	metricsSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WorkerMetricsPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return agent.Run(gctx)
	})
	g.Go(func() error {
		log.Info("worker metrics listening", "addr", metricsSrv.Addr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsSrv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	<-agent.Done()
	log.Info("worker stopped")
	return err
}
