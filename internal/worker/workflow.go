// Package worker runs the per-batch review workflow on the workflow engine.
package worker

import (
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"reviewplane/internal/jobs"
)

// WorkflowName is the template id runs are created from.
const WorkflowName = "shoe_review_automation"

// QueryProgress is the query type answering with the run's Progress.
const QueryProgress = "progress"

// Workflow phases reported through the progress query.
const (
	PhaseSearching   = "searching"
	PhaseWaiting     = "waiting"
	PhaseAggregating = "aggregating"
	PhaseCompleted   = "completed"
)

// Aggregation modes.
const (
	AggregatePerKey = "per_key"
	AggregateGlobal = "global"
)

// WorkflowConfig is fixed for the lifetime of a worker process.
type WorkflowConfig struct {
	QuerySuffix       string
	SearchConcurrency int
	AggregationMode   string
	FailOnSearchError bool
	ActivityTimeout   time.Duration
	MaxAttempts       int32
}

// DefaultWorkflowConfig mirrors the configuration defaults.
func DefaultWorkflowConfig() WorkflowConfig {
	return WorkflowConfig{
		QuerySuffix:       " review",
		SearchConcurrency: 2,
		AggregationMode:   AggregatePerKey,
		ActivityTimeout:   2 * time.Minute,
		MaxAttempts:       3,
	}
}

// Progress is what the progress query answers.
type Progress struct {
	Phase          string `json:"phase"`
	Message        string `json:"message"`
	SearchesOK     int    `json:"searches_ok"`
	SearchesFailed int    `json:"searches_failed"`
	AggregationsOK int    `json:"aggregations_ok"`
}

// SearchOutcome records one item's search step.
type SearchOutcome struct {
	Name       string `json:"name"`
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
	OK         bool   `json:"ok"`
	Error      string `json:"error,omitempty"`
}

// AggregationOutcome records one grouping key's aggregation step.
type AggregationOutcome struct {
	Key     string `json:"key"`
	OK      bool   `json:"ok"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// BatchResult is the result of a successful run.
type BatchResult struct {
	JobID        string               `json:"job_id"`
	Searches     []SearchOutcome      `json:"searches"`
	Aggregations []AggregationOutcome `json:"aggregations"`
	Message      string               `json:"message"`
}

// Workflow holds the per-worker policy of the review workflow.
type Workflow struct {
	cfg WorkflowConfig
}

// NewWorkflow creates the workflow with cfg, filling unset fields from the defaults.
func NewWorkflow(cfg WorkflowConfig) *Workflow {
	def := DefaultWorkflowConfig()
	if cfg.SearchConcurrency < 1 {
		cfg.SearchConcurrency = def.SearchConcurrency
	}
	if cfg.AggregationMode == "" {
		cfg.AggregationMode = def.AggregationMode
	}
	if cfg.ActivityTimeout <= 0 {
		cfg.ActivityTimeout = def.ActivityTimeout
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	return &Workflow{cfg: cfg}
}

// Run searches every item, sleeps for the batch's wait, then aggregates every
// distinct grouping key. Search failures are tolerated unless FailOnSearchError
// is set; an aggregation failure fails the run.
func (w *Workflow) Run(ctx workflow.Context, params jobs.RunParams) (*BatchResult, error) {
	logger := workflow.GetLogger(ctx)

	progress := &Progress{Phase: PhaseSearching, Message: fmt.Sprintf("searching %d items", len(params.Items))}
	if err := workflow.SetQueryHandler(ctx, QueryProgress, func() (Progress, error) {
		return *progress, nil
	}); err != nil {
		return nil, fmt.Errorf("register query handler: %w", err)
	}

	actCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: w.cfg.ActivityTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        2 * time.Second,
			BackoffCoefficient:     2.0,
			MaximumInterval:        1 * time.Minute,
			MaximumAttempts:        w.cfg.MaxAttempts,
			NonRetryableErrorTypes: []string{ErrTypeCollaboratorRejected},
		},
	})

	result := &BatchResult{JobID: params.JobID}

	// Step 1: search fan-out.
	result.Searches = w.searchAll(ctx, actCtx, params, progress)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	failed := progress.SearchesFailed
	logger.Info("search step finished", "ok", progress.SearchesOK, "failed", failed)

	if failed > 0 && w.cfg.FailOnSearchError {
		return nil, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("search failed for %d of %d items", failed, len(params.Items)),
			ErrTypeSearchFailed, nil, result.Searches)
	}

	// Step 2: durable wait.
	if params.WaitMinutes > 0 {
		progress.Phase = PhaseWaiting
		progress.Message = fmt.Sprintf("waiting %d minutes before aggregation", params.WaitMinutes)
		if err := workflow.Sleep(ctx, time.Duration(params.WaitMinutes)*time.Minute); err != nil {
			logger.Info("wait interrupted", "error", err)
			return nil, err
		}
	}

	// Step 3: aggregation per grouping key.
	keys := []string{""}
	if w.cfg.AggregationMode != AggregateGlobal {
		keys = w.groupingKeys(params.Items)
	}
	progress.Phase = PhaseAggregating
	progress.Message = fmt.Sprintf("aggregating %d keys", len(keys))

	result.Aggregations = w.aggregateAll(ctx, actCtx, params.JobID, keys, progress)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Step 4: outcome.
	var aggFailed []string
	for _, a := range result.Aggregations {
		if !a.OK {
			aggFailed = append(aggFailed, fmt.Sprintf("%q: %s", a.Key, a.Error))
		}
	}
	if len(aggFailed) > 0 {
		return nil, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("aggregation failed for %d of %d keys: %s", len(aggFailed), len(keys), strings.Join(aggFailed, "; ")),
			ErrTypeAggregationFailed, nil, result)
	}

	result.Message = fmt.Sprintf("%d of %d searches succeeded, %d aggregations completed",
		progress.SearchesOK, len(params.Items), progress.AggregationsOK)
	progress.Phase = PhaseCompleted
	progress.Message = result.Message
	logger.Info("workflow completed", "message", result.Message)
	return result, nil
}

// searchAll runs one search activity per item, at most SearchConcurrency at a time.
func (w *Workflow) searchAll(ctx, actCtx workflow.Context, params jobs.RunParams, progress *Progress) []SearchOutcome {
	var a *Activities
	outcomes := make([]SearchOutcome, len(params.Items))
	selector := workflow.NewSelector(ctx)
	inFlight, next := 0, 0

	launch := func(i int) {
		item := params.Items[i]
		query := item.Name + w.cfg.QuerySuffix
		outcomes[i] = SearchOutcome{Name: item.Name, Query: query, MaxResults: item.MaxResults}

		fut := workflow.ExecuteActivity(actCtx, a.TriggerSearch, SearchInput{
			JobID: params.JobID, Query: query, MaxResults: item.MaxResults,
		})
		inFlight++
		selector.AddFuture(fut, func(f workflow.Future) {
			inFlight--
			var out SearchOutput
			if err := f.Get(ctx, &out); err != nil {
				outcomes[i].Error = err.Error()
				progress.SearchesFailed++
				workflow.GetLogger(ctx).Warn("search failed, continuing", "query", query, "error", err)
				return
			}
			outcomes[i].OK = true
			progress.SearchesOK++
		})
	}

	for ; next < len(params.Items) && inFlight < w.cfg.SearchConcurrency; next++ {
		launch(next)
	}
	for inFlight > 0 {
		selector.Select(ctx)
		if ctx.Err() != nil {
			continue
		}
		for ; next < len(params.Items) && inFlight < w.cfg.SearchConcurrency; next++ {
			launch(next)
		}
	}
	return outcomes
}

// aggregateAll triggers aggregation for every key in parallel.
func (w *Workflow) aggregateAll(ctx, actCtx workflow.Context, jobID string, keys []string, progress *Progress) []AggregationOutcome {
	var a *Activities
	futures := make([]workflow.Future, len(keys))
	for i, key := range keys {
		futures[i] = workflow.ExecuteActivity(actCtx, a.TriggerAggregation, AggregateInput{JobID: jobID, Key: key})
	}

	outcomes := make([]AggregationOutcome, len(keys))
	for i, fut := range futures {
		outcomes[i] = AggregationOutcome{Key: keys[i]}
		var out AggregateOutput
		if err := fut.Get(ctx, &out); err != nil {
			outcomes[i].Error = err.Error()
			continue
		}
		outcomes[i].OK = true
		outcomes[i].Status = out.Status
		outcomes[i].Message = out.Message
		progress.AggregationsOK++
	}
	return outcomes
}

// groupingKeys returns the distinct search queries of items in first-seen order.
func (w *Workflow) groupingKeys(items []jobs.BatchItem) []string {
	seen := make(map[string]bool, len(items))
	keys := make([]string, 0, len(items))
	for _, item := range items {
		key := strings.TrimSpace(item.Name) + w.cfg.QuerySuffix
		if seen[key] {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
	}
	return keys
}
