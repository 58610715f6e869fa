// Package temporal implements engine.Driver on top of a Temporal cluster.
package temporal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	workflowpb "go.temporal.io/api/workflow/v1"
	"go.temporal.io/api/workflowservice/v1"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/converter"
	sdklog "go.temporal.io/sdk/log"

	"reviewplane/internal/engine"
)

// ProgressQuery is the query type running workflows answer with their current progress.
const ProgressQuery = "progress"

const (
	// maxPageSize bounds a single visibility request.
	maxPageSize = 1000
	// messageTimeout bounds the query or result fetch that fills Run.Message.
	messageTimeout = 3 * time.Second
)

// Client is the subset of client.Client the driver uses.
type Client interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
	GetWorkflow(ctx context.Context, workflowID string, runID string) client.WorkflowRun
	DescribeWorkflowExecution(ctx context.Context, workflowID, runID string) (*workflowservice.DescribeWorkflowExecutionResponse, error)
	ListWorkflow(ctx context.Context, request *workflowservice.ListWorkflowExecutionsRequest) (*workflowservice.ListWorkflowExecutionsResponse, error)
	QueryWorkflow(ctx context.Context, workflowID string, runID string, queryType string, args ...interface{}) (converter.EncodedValue, error)
	CancelWorkflow(ctx context.Context, workflowID string, runID string) error
	TerminateWorkflow(ctx context.Context, workflowID string, runID string, reason string, details ...interface{}) error
	CheckHealth(ctx context.Context, request *client.CheckHealthRequest) (*client.CheckHealthResponse, error)
}

// Options configure the driver.
type Options struct {
	Namespace string
	TaskQueue string
	// Template is the workflow type every run is created from.
	Template string
	// Terminate hard-stops runs instead of requesting graceful cancellation.
	Terminate bool
}

// Driver is the Temporal engine.Driver.
type Driver struct {
	client Client
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

var _ engine.Driver = (*Driver)(nil)

// Dial connects to the Temporal frontend. The SDK logs through logger.
func Dial(hostPort, namespace string, logger *slog.Logger) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  hostPort,
		Namespace: namespace,
		Logger:    sdklog.NewStructuredLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to temporal at %s: %w", hostPort, err)
	}
	return c, nil
}

// NewDriver creates a driver over an already connected client.
func NewDriver(c Client, opts Options, logger *slog.Logger) *Driver {
	return &Driver{client: c, opts: opts, logger: logger, now: time.Now}
}

// CreateRun starts a workflow whose id is the run id. A future StartAt becomes a start delay.
func (d *Driver) CreateRun(ctx context.Context, req engine.RunRequest) (*engine.Run, error) {
	template := req.Template
	if template == "" {
		template = d.opts.Template
	}

	now := d.now()
	opts := client.StartWorkflowOptions{
		ID:                                       req.RunID,
		TaskQueue:                                d.opts.TaskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}
	state := engine.StateQueued
	if req.StartAt != nil && req.StartAt.After(now) {
		opts.StartDelay = req.StartAt.Sub(now)
		state = engine.StateScheduled
	}

	if _, err := d.client.ExecuteWorkflow(ctx, opts, template, req.Params); err != nil {
		return nil, mapError(err)
	}

	d.logger.Debug("workflow started", "workflow_id", req.RunID, "template", template, "start_delay", opts.StartDelay)
	return &engine.Run{RunID: req.RunID, State: state, CreatedAt: now}, nil
}

// GetRun describes the latest execution of the workflow and fills in a message.
func (d *Driver) GetRun(ctx context.Context, runID string) (*engine.Run, error) {
	resp, err := d.client.DescribeWorkflowExecution(ctx, runID, "")
	if err != nil {
		return nil, mapError(err)
	}
	info := resp.GetWorkflowExecutionInfo()
	if info == nil {
		return nil, engine.ErrRunNotFound
	}

	run := d.toRun(info)
	run.Message = d.message(ctx, runID, info.GetStatus(), run.State)
	return &run, nil
}

// ListRuns pages through visibility until offset+limit runs are collected.
// Visibility returns closed runs by close time, so the collected window is
// re-sorted newest start first. Callers needing a stable creation order
// across pages should page their own job records instead.
func (d *Driver) ListRuns(ctx context.Context, limit, offset int) ([]engine.Run, error) {
	if limit <= 0 {
		return []engine.Run{}, nil
	}
	if offset < 0 {
		offset = 0
	}

	want := offset + limit
	var infos []*workflowpb.WorkflowExecutionInfo
	var token []byte
	for len(infos) < want {
		resp, err := d.client.ListWorkflow(ctx, &workflowservice.ListWorkflowExecutionsRequest{
			Namespace:     d.opts.Namespace,
			PageSize:      int32(min(want-len(infos), maxPageSize)),
			NextPageToken: token,
			Query:         fmt.Sprintf("WorkflowType = '%s'", d.opts.Template),
		})
		if err != nil {
			return nil, mapError(err)
		}
		infos = append(infos, resp.GetExecutions()...)
		token = resp.GetNextPageToken()
		if len(token) == 0 {
			break
		}
	}

	if offset >= len(infos) {
		return []engine.Run{}, nil
	}
	sort.SliceStable(infos, func(i, j int) bool {
		return infos[i].GetStartTime().AsTime().After(infos[j].GetStartTime().AsTime())
	})
	infos = infos[offset:]
	if len(infos) > limit {
		infos = infos[:limit]
	}

	runs := make([]engine.Run, 0, len(infos))
	for _, info := range infos {
		runs = append(runs, d.toRun(info))
	}
	return runs, nil
}

// TerminateRun cancels the workflow, or terminates it when configured to.
func (d *Driver) TerminateRun(ctx context.Context, runID, reason string) error {
	var err error
	if d.opts.Terminate {
		err = d.client.TerminateWorkflow(ctx, runID, "", reason)
	} else {
		err = d.client.CancelWorkflow(ctx, runID, "")
	}
	if err != nil {
		return mapError(err)
	}
	return nil
}

// Ping checks the frontend health endpoint.
func (d *Driver) Ping(ctx context.Context) error {
	if _, err := d.client.CheckHealth(ctx, &client.CheckHealthRequest{}); err != nil {
		return fmt.Errorf("%w: %v", engine.ErrUnavailable, err)
	}
	return nil
}

func (d *Driver) toRun(info *workflowpb.WorkflowExecutionInfo) engine.Run {
	run := engine.Run{
		RunID: info.GetExecution().GetWorkflowId(),
		State: d.state(info),
	}
	if ts := info.GetStartTime(); ts != nil {
		run.CreatedAt = ts.AsTime()
	}
	if ts := info.GetExecutionTime(); ts != nil && !ts.AsTime().After(d.now()) {
		t := ts.AsTime()
		run.StartedAt = &t
	}
	if ts := info.GetCloseTime(); ts != nil && info.GetStatus() != enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING {
		t := ts.AsTime()
		run.EndedAt = &t
	}
	return run
}

// state maps a Temporal execution status to the engine-native state.
// A running workflow is scheduled while its start delay has not elapsed and
// queued until a worker has processed its first workflow task.
func (d *Driver) state(info *workflowpb.WorkflowExecutionInfo) engine.RunState {
	switch status := info.GetStatus(); status {
	case enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING:
		if ts := info.GetExecutionTime(); ts != nil && ts.AsTime().After(d.now()) {
			return engine.StateScheduled
		}
		if info.GetHistoryLength() <= 2 {
			return engine.StateQueued
		}
		return engine.StateRunning
	case enumspb.WORKFLOW_EXECUTION_STATUS_COMPLETED:
		return engine.StateSuccess
	case enumspb.WORKFLOW_EXECUTION_STATUS_FAILED:
		return engine.StateFailed
	case enumspb.WORKFLOW_EXECUTION_STATUS_TIMED_OUT:
		return engine.StateError
	case enumspb.WORKFLOW_EXECUTION_STATUS_CANCELED, enumspb.WORKFLOW_EXECUTION_STATUS_TERMINATED:
		return engine.StateTerminated
	case enumspb.WORKFLOW_EXECUTION_STATUS_CONTINUED_AS_NEW:
		return engine.StateRunning
	default:
		return engine.RunState(strings.ToLower(status.String()))
	}
}

// progress mirrors the fields of the workflow's progress query answer the driver reads.
type progress struct {
	Phase   string `json:"phase"`
	Message string `json:"message"`
}

// outcome mirrors the message field of a completed workflow's result.
type outcome struct {
	Message string `json:"message"`
}

// message is best-effort: a failed lookup yields an empty message, never an error.
// Queued and scheduled runs have no worker to answer the progress query, so
// they are not queried at all.
func (d *Driver) message(ctx context.Context, runID string, status enumspb.WorkflowExecutionStatus, state engine.RunState) string {
	ctx, cancel := context.WithTimeout(ctx, messageTimeout)
	defer cancel()

	switch status {
	case enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING:
		if state != engine.StateRunning {
			return ""
		}
		val, err := d.client.QueryWorkflow(ctx, runID, "", ProgressQuery)
		if err != nil {
			d.logger.Debug("progress query failed", "workflow_id", runID, "error", err)
			return ""
		}
		var p progress
		if !val.HasValue() || val.Get(&p) != nil {
			return ""
		}
		return p.Message
	case enumspb.WORKFLOW_EXECUTION_STATUS_COMPLETED:
		var out outcome
		if err := d.client.GetWorkflow(ctx, runID, "").Get(ctx, &out); err != nil {
			return ""
		}
		return out.Message
	case enumspb.WORKFLOW_EXECUTION_STATUS_FAILED, enumspb.WORKFLOW_EXECUTION_STATUS_TIMED_OUT:
		err := d.client.GetWorkflow(ctx, runID, "").Get(ctx, nil)
		if err == nil {
			return ""
		}
		return rootCause(err).Error()
	default:
		return ""
	}
}

// rootCause unwraps workflow execution errors down to the application failure.
func rootCause(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

func mapError(err error) error {
	var notFound *serviceerror.NotFound
	if errors.As(err, &notFound) {
		return fmt.Errorf("%w: %v", engine.ErrRunNotFound, err)
	}
	var started *serviceerror.WorkflowExecutionAlreadyStarted
	if errors.As(err, &started) {
		return fmt.Errorf("%w: %v", engine.ErrRunExists, err)
	}
	return fmt.Errorf("%w: %v", engine.ErrUnavailable, err)
}
