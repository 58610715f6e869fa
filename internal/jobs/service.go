// Package jobs accepts batch submissions and tracks the resulting jobs
// through the workflow engine, which holds their authoritative state.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"reviewplane/internal/engine"
	"reviewplane/internal/logger"
	"reviewplane/internal/store"
)

// List bounds.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
	MaxListOffset    = 10000
)

// listConcurrency bounds the engine lookups a store-backed listing runs at once.
const listConcurrency = 8

// Submission is the answer to an accepted batch.
type Submission struct {
	JobID         string
	Status        Status
	Message       string
	ScheduledTime time.Time
	ItemCount     int
}

// Job is the normalized view of one job.
type Job struct {
	JobID     string
	Status    Status
	State     string
	StartDate *time.Time
	EndDate   *time.Time
	Message   string
	Items     []BatchItem
}

// Options configure a Service.
type Options struct {
	Template string
	Policy   Policy
	Retry    RetryPolicy
	IDs      *IDGenerator
}

// Service implements submission, status, listing and cancellation.
type Service struct {
	driver    engine.Driver
	store     store.JobStore
	template  string
	validator *batchValidator
	ids       *IDGenerator
	retry     RetryPolicy
	logger    *slog.Logger
	now       func() time.Time

	// pendingCancels holds cancellations the store could not record, keyed by job id.
	pendingCancels sync.Map

	submitted    metric.Int64Counter
	cancelled    metric.Int64Counter
	engineErrors metric.Int64Counter
}

// NewService wires the service. The store is a best-effort cache and may be nil.
func NewService(driver engine.Driver, st store.JobStore, opts Options, log *slog.Logger) *Service {
	if opts.IDs == nil {
		opts.IDs = NewIDGenerator("shoe_review", true)
	}
	s := &Service{
		driver:    driver,
		store:     st,
		template:  opts.Template,
		validator: newBatchValidator(opts.Policy),
		ids:       opts.IDs,
		retry:     opts.Retry,
		logger:    log,
		now:       time.Now,
	}

	meter := otel.Meter("reviewplane-jobs")
	var err error
	if s.submitted, err = meter.Int64Counter("reviewplane.jobs.submitted",
		metric.WithDescription("Batches accepted and handed to the engine")); err != nil {
		log.Warn("failed to create metric", "metric", "reviewplane.jobs.submitted", "error", err)
	}
	if s.cancelled, err = meter.Int64Counter("reviewplane.jobs.cancelled",
		metric.WithDescription("Cancellations sent to the engine")); err != nil {
		log.Warn("failed to create metric", "metric", "reviewplane.jobs.cancelled", "error", err)
	}
	if s.engineErrors, err = meter.Int64Counter("reviewplane.engine.errors",
		metric.WithDescription("Failed engine calls, including retried ones")); err != nil {
		log.Warn("failed to create metric", "metric", "reviewplane.engine.errors", "error", err)
	}
	return s
}

// Submit validates a batch and creates one engine run for it.
func (s *Service) Submit(ctx context.Context, req BatchRequest) (*Submission, error) {
	now := s.now().UTC()
	batch, err := s.validator.check(req, now)
	if err != nil {
		return nil, err
	}

	jobID := s.ids.Next()
	ctx = logger.WithJobID(ctx, jobID)
	log := logger.FromContext(ctx, s.logger)

	params := RunParams{JobID: jobID, Items: batch.items, WaitMinutes: batch.waitMinutes}
	runReq := engine.RunRequest{RunID: jobID, Template: s.template, Params: params, StartAt: batch.startAt}

	err = s.withEngineRetry(ctx, "create_run", func(attempt int) error {
		_, err := s.driver.CreateRun(ctx, runReq)
		// A duplicate on a retry means an earlier attempt reached the engine.
		if attempt > 1 && errors.Is(err, engine.ErrRunExists) {
			return nil
		}
		return err
	})
	if err != nil {
		s.engineErrors.Add(ctx, 1)
		log.Error("failed to create run", "error", err)
		return nil, mapEngineError(err)
	}

	scheduled := now
	if batch.startAt != nil {
		scheduled = *batch.startAt
	}

	if s.store != nil {
		rec := &store.JobRecord{
			JobID:         jobID,
			Items:         toStoreItems(batch.items),
			WaitMinutes:   batch.waitMinutes,
			StartTime:     batch.startAt,
			ScheduledTime: scheduled,
			CreatedAt:     now,
		}
		if err := s.store.CreateJob(ctx, rec); err != nil {
			log.Warn("failed to record job", "error", err)
		}
	}

	s.submitted.Add(ctx, 1, metric.WithAttributes(attribute.Int("items", len(batch.items))))
	log.Info("job scheduled", "items", len(batch.items), "wait_minutes", batch.waitMinutes, "scheduled_time", scheduled)

	return &Submission{
		JobID:         jobID,
		Status:        StatusScheduled,
		Message:       "Job scheduled successfully",
		ScheduledTime: scheduled,
		ItemCount:     len(batch.items),
	}, nil
}

// Status re-derives the job's status from the engine.
func (s *Service) Status(ctx context.Context, jobID string) (*Job, error) {
	var run *engine.Run
	err := s.withEngineRetry(ctx, "get_run", func(int) error {
		var err error
		run, err = s.driver.GetRun(ctx, jobID)
		return err
	})
	if err != nil {
		return nil, mapEngineError(err)
	}

	job := toJob(run)
	if s.store != nil {
		rec, err := s.store.GetJob(ctx, jobID)
		switch {
		case err == nil:
			job.Items = fromStoreItems(rec.Items)
			applyCancelRequest(job, rec)
		case !errors.Is(err, store.ErrNotFound):
			logger.FromContext(ctx, s.logger).Warn("failed to load job record", "job_id", jobID, "error", err)
		}
	}
	s.applyPendingCancel(job)
	return job, nil
}

// List returns up to limit jobs, most recent first, after skipping offset.
// With a record store the page is cut from the records in creation order and
// each job is resolved on the engine. Without one, engine visibility order is used.
func (s *Service) List(ctx context.Context, limit, offset int) ([]Job, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	if offset > MaxListOffset {
		return nil, invalid(ReasonInvalidPage, "offset must be at most %d", MaxListOffset)
	}

	if s.store != nil {
		recs, err := s.store.ListJobs(ctx, limit, offset)
		if err == nil {
			return s.resolveRecords(ctx, recs)
		}
		logger.FromContext(ctx, s.logger).Warn("failed to page job records, using engine order", "error", err)
	}
	return s.listRuns(ctx, limit, offset)
}

// resolveRecords looks up each recorded job on the engine, keeping record order.
func (s *Service) resolveRecords(ctx context.Context, recs []*store.JobRecord) ([]Job, error) {
	out := make([]Job, len(recs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(listConcurrency)
	for i, rec := range recs {
		g.Go(func() error {
			run, err := s.driver.GetRun(gctx, rec.JobID)
			switch {
			case errors.Is(err, engine.ErrRunNotFound):
				// Retention removed the run; the record still proves the job existed.
				run = &engine.Run{RunID: rec.JobID}
			case err != nil:
				return err
			}
			job := toJob(run)
			job.Items = fromStoreItems(rec.Items)
			applyCancelRequest(job, rec)
			s.applyPendingCancel(job)
			out[i] = *job
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.engineErrors.Add(ctx, 1)
		return nil, mapEngineError(err)
	}
	return out, nil
}

func (s *Service) listRuns(ctx context.Context, limit, offset int) ([]Job, error) {
	var runs []engine.Run
	err := s.withEngineRetry(ctx, "list_runs", func(int) error {
		var err error
		runs, err = s.driver.ListRuns(ctx, limit, offset)
		return err
	})
	if err != nil {
		return nil, mapEngineError(err)
	}
	if len(runs) > limit {
		runs = runs[:limit]
	}

	out := make([]Job, 0, len(runs))
	ids := make([]string, 0, len(runs))
	for i := range runs {
		out = append(out, *toJob(&runs[i]))
		ids = append(ids, runs[i].RunID)
	}

	var recs map[string]*store.JobRecord
	if s.store != nil && len(ids) > 0 {
		var err error
		recs, err = s.store.GetJobsByIDs(ctx, ids)
		if err != nil {
			logger.FromContext(ctx, s.logger).Warn("failed to load job records", "error", err)
		}
	}
	for i := range out {
		if rec, ok := recs[out[i].JobID]; ok {
			out[i].Items = fromStoreItems(rec.Items)
			applyCancelRequest(&out[i], rec)
		}
		s.applyPendingCancel(&out[i])
	}
	return out, nil
}

// Cancel stops a job that has not reached a terminal status.
func (s *Service) Cancel(ctx context.Context, jobID string) (*Job, error) {
	job, err := s.Status(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: job %s is %s", ErrAlreadyTerminal, jobID, job.Status)
	}

	ctx = logger.WithJobID(ctx, jobID)
	log := logger.FromContext(ctx, s.logger)

	err = s.withEngineRetry(ctx, "terminate_run", func(int) error {
		return s.driver.TerminateRun(ctx, jobID, "cancelled by user request")
	})
	if err != nil {
		// The run closed between the status check and the request.
		if errors.Is(err, engine.ErrRunNotFound) {
			return nil, fmt.Errorf("%w: job %s", ErrAlreadyTerminal, jobID)
		}
		return nil, mapEngineError(err)
	}

	now := s.now().UTC()
	recorded := false
	if s.store != nil {
		err := s.store.MarkCancelRequested(ctx, jobID, now)
		switch {
		case err == nil:
			recorded = true
		case !errors.Is(err, store.ErrNotFound):
			log.Warn("failed to record cancellation", "error", err)
		}
	}
	if !recorded {
		s.pendingCancels.Store(jobID, now)
	}

	s.cancelled.Add(ctx, 1)
	log.Info("job cancelled", "previous_status", job.Status)

	job.Status = StatusCancelled
	job.State = string(engine.StateTerminated)
	job.EndDate = &now
	job.Message = "Job cancelled by user request"
	return job, nil
}

// Ping reports engine reachability.
func (s *Service) Ping(ctx context.Context) error {
	return s.driver.Ping(ctx)
}

func toJob(run *engine.Run) *Job {
	status := NormalizeState(run.State)
	msg := run.Message
	if msg == "" {
		msg = defaultMessage(status)
	}
	return &Job{
		JobID:     run.RunID,
		Status:    status,
		State:     string(run.State),
		StartDate: run.StartedAt,
		EndDate:   run.EndedAt,
		Message:   msg,
	}
}

// applyCancelRequest reports a job whose cancellation was accepted as cancelled
// while the engine is still unwinding the run.
func applyCancelRequest(job *Job, rec *store.JobRecord) {
	if rec.CancelRequestedAt == nil || job.Status.IsTerminal() {
		return
	}
	job.Status = StatusCancelled
	job.EndDate = rec.CancelRequestedAt
	job.Message = "Job cancelled by user request"
}

// applyPendingCancel is applyCancelRequest for cancellations held in memory.
// Entries are dropped once the engine reports the run terminal.
func (s *Service) applyPendingCancel(job *Job) {
	v, ok := s.pendingCancels.Load(job.JobID)
	if !ok {
		return
	}
	if job.Status.IsTerminal() {
		s.pendingCancels.Delete(job.JobID)
		return
	}
	at := v.(time.Time)
	job.Status = StatusCancelled
	job.EndDate = &at
	job.Message = "Job cancelled by user request"
}

func toStoreItems(items []BatchItem) []store.Item {
	out := make([]store.Item, len(items))
	for i, it := range items {
		out[i] = store.Item{Name: it.Name, MaxResults: it.MaxResults}
	}
	return out
}

func fromStoreItems(items []store.Item) []BatchItem {
	out := make([]BatchItem, len(items))
	for i, it := range items {
		out[i] = BatchItem{Name: it.Name, MaxResults: it.MaxResults}
	}
	return out
}
