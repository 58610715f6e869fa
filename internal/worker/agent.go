package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.temporal.io/sdk/client"
	sdkworker "go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
)

// Registrar is the registration surface shared by engine workers and test environments.
type Registrar interface {
	RegisterWorkflowWithOptions(w interface{}, options workflow.RegisterOptions)
	RegisterActivity(a interface{})
}

// Register binds the workflow under its template id and the activities under their method names.
func Register(r Registrar, wf *Workflow, acts *Activities) {
	r.RegisterWorkflowWithOptions(wf.Run, workflow.RegisterOptions{Name: WorkflowName})
	r.RegisterActivity(acts)
}

// engineWorker is the part of sdkworker.Worker the agent drives.
type engineWorker interface {
	Registrar
	Start() error
	Stop()
}

// AgentConfig holds configuration for the worker agent.
type AgentConfig struct {
	TaskQueue        string
	Concurrency      int           // Max concurrent activity executions (default: 1)
	ShutdownDeadline time.Duration // How long in-flight activities get on shutdown (default: 30s)
}

// Agent hosts the review workflow and its activities on a task queue.
type Agent struct {
	config    AgentConfig
	wf        *Workflow
	acts      *Activities
	newWorker func(AgentConfig) engineWorker
	logger    *slog.Logger
	done      chan struct{}
}

// New creates a worker agent polling the task queue through c.
func New(c client.Client, wf *Workflow, acts *Activities, config AgentConfig, logger *slog.Logger) *Agent {
	a := newAgent(wf, acts, config, logger)
	a.newWorker = func(cfg AgentConfig) engineWorker {
		return sdkworker.New(c, cfg.TaskQueue, sdkworker.Options{
			MaxConcurrentActivityExecutionSize: cfg.Concurrency,
			WorkerStopTimeout:                  cfg.ShutdownDeadline,
		})
	}
	return a
}

func newAgent(wf *Workflow, acts *Activities, config AgentConfig, logger *slog.Logger) *Agent {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if config.ShutdownDeadline <= 0 {
		config.ShutdownDeadline = 30 * time.Second
	}
	return &Agent{
		config: config,
		wf:     wf,
		acts:   acts,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Run starts polling and blocks until ctx is cancelled. On shutdown the
// engine worker stops taking new tasks and waits for in-flight activities
// up to the shutdown deadline.
func (a *Agent) Run(ctx context.Context) error {
	defer close(a.done)

	w := a.newWorker(a.config)
	Register(w, a.wf, a.acts)

	if err := w.Start(); err != nil {
		return fmt.Errorf("failed to start worker on %s: %w", a.config.TaskQueue, err)
	}
	a.logger.Info("worker started", "task_queue", a.config.TaskQueue, "concurrency", a.config.Concurrency)

	<-ctx.Done()

	a.logger.Info("worker stopping", "task_queue", a.config.TaskQueue)
	w.Stop()
	a.logger.Info("worker stopped")
	return nil
}

// Done returns a channel that is closed when Run returns.
func (a *Agent) Done() <-chan struct{} {
	return a.done
}
