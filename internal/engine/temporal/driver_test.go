package temporal

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	commonpb "go.temporal.io/api/common/v1"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	workflowpb "go.temporal.io/api/workflow/v1"
	"go.temporal.io/api/workflowservice/v1"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/converter"
	"google.golang.org/protobuf/types/known/timestamppb"

	"reviewplane/internal/engine"
)

// fakeValue is a converter.EncodedValue backed by a Go value.
type fakeValue struct{ v any }

func (f fakeValue) HasValue() bool { return f.v != nil }
func (f fakeValue) Get(ptr interface{}) error {
	b, err := json.Marshal(f.v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, ptr)
}

// fakeRun is a client.WorkflowRun with a fixed result.
type fakeRun struct {
	id     string
	result any
	err    error
}

func (r fakeRun) GetID() string    { return r.id }
func (r fakeRun) GetRunID() string { return "run-" + r.id }
func (r fakeRun) Get(_ context.Context, ptr interface{}) error {
	if r.err != nil {
		return r.err
	}
	if ptr == nil || r.result == nil {
		return nil
	}
	return fakeValue{r.result}.Get(ptr)
}
func (r fakeRun) GetWithOptions(ctx context.Context, ptr interface{}, _ client.WorkflowRunGetOptions) error {
	return r.Get(ctx, ptr)
}

type fakeClient struct {
	started    []client.StartWorkflowOptions
	startArgs  []interface{}
	executeErr error

	describe    map[string]*workflowpb.WorkflowExecutionInfo
	describeErr error
	query       any
	queryErr    error
	queryCalls  int
	queryHasTTL bool
	result      fakeRun

	pages     [][]*workflowpb.WorkflowExecutionInfo
	listCalls []*workflowservice.ListWorkflowExecutionsRequest

	cancelled  []string
	terminated []string
	cancelErr  error
	healthErr  error
}

func (f *fakeClient) ExecuteWorkflow(_ context.Context, options client.StartWorkflowOptions, _ interface{}, args ...interface{}) (client.WorkflowRun, error) {
	if f.executeErr != nil {
		return nil, f.executeErr
	}
	f.started = append(f.started, options)
	f.startArgs = append(f.startArgs, args...)
	return fakeRun{id: options.ID}, nil
}

func (f *fakeClient) GetWorkflow(_ context.Context, workflowID string, _ string) client.WorkflowRun {
	r := f.result
	r.id = workflowID
	return r
}

func (f *fakeClient) DescribeWorkflowExecution(_ context.Context, workflowID, _ string) (*workflowservice.DescribeWorkflowExecutionResponse, error) {
	if f.describeErr != nil {
		return nil, f.describeErr
	}
	info, ok := f.describe[workflowID]
	if !ok {
		return nil, serviceerror.NewNotFound("workflow not found")
	}
	return &workflowservice.DescribeWorkflowExecutionResponse{WorkflowExecutionInfo: info}, nil
}

func (f *fakeClient) ListWorkflow(_ context.Context, req *workflowservice.ListWorkflowExecutionsRequest) (*workflowservice.ListWorkflowExecutionsResponse, error) {
	f.listCalls = append(f.listCalls, req)
	page := len(f.listCalls) - 1
	if page >= len(f.pages) {
		return &workflowservice.ListWorkflowExecutionsResponse{}, nil
	}
	resp := &workflowservice.ListWorkflowExecutionsResponse{Executions: f.pages[page]}
	if page < len(f.pages)-1 {
		resp.NextPageToken = []byte{byte(page + 1)}
	}
	return resp, nil
}

func (f *fakeClient) QueryWorkflow(ctx context.Context, _ string, _ string, _ string, _ ...interface{}) (converter.EncodedValue, error) {
	f.queryCalls++
	_, f.queryHasTTL = ctx.Deadline()
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return fakeValue{f.query}, nil
}

func (f *fakeClient) CancelWorkflow(_ context.Context, workflowID string, _ string) error {
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelled = append(f.cancelled, workflowID)
	return nil
}

func (f *fakeClient) TerminateWorkflow(_ context.Context, workflowID string, _ string, _ string, _ ...interface{}) error {
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.terminated = append(f.terminated, workflowID)
	return nil
}

func (f *fakeClient) CheckHealth(_ context.Context, _ *client.CheckHealthRequest) (*client.CheckHealthResponse, error) {
	if f.healthErr != nil {
		return nil, f.healthErr
	}
	return &client.CheckHealthResponse{}, nil
}

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestDriver(c *fakeClient, terminate bool) *Driver {
	d := NewDriver(c, Options{
		Namespace: "default",
		TaskQueue: "shoe-review",
		Template:  "shoe_review_automation",
		Terminate: terminate,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	d.now = func() time.Time { return now }
	return d
}

func execInfo(id string, status enumspb.WorkflowExecutionStatus, execTime time.Time, history int64) *workflowpb.WorkflowExecutionInfo {
	return &workflowpb.WorkflowExecutionInfo{
		Execution:     &commonpb.WorkflowExecution{WorkflowId: id, RunId: "r-" + id},
		Status:        status,
		StartTime:     timestamppb.New(now.Add(-time.Hour)),
		ExecutionTime: timestamppb.New(execTime),
		HistoryLength: history,
	}
}

func TestCreateRun_Immediate(t *testing.T) {
	fc := &fakeClient{}
	d := newTestDriver(fc, false)

	run, err := d.CreateRun(context.Background(), engine.RunRequest{RunID: "job-1", Params: map[string]string{"k": "v"}})
	if err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}
	if run.State != engine.StateQueued {
		t.Errorf("State = %s, want queued", run.State)
	}
	if len(fc.started) != 1 {
		t.Fatalf("expected 1 workflow start, got %d", len(fc.started))
	}
	opts := fc.started[0]
	if opts.ID != "job-1" || opts.TaskQueue != "shoe-review" {
		t.Errorf("unexpected start options: %+v", opts)
	}
	if opts.StartDelay != 0 {
		t.Errorf("StartDelay = %v, want 0", opts.StartDelay)
	}
	if opts.WorkflowIDReusePolicy != enumspb.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE {
		t.Errorf("WorkflowIDReusePolicy = %v", opts.WorkflowIDReusePolicy)
	}
	if !opts.WorkflowExecutionErrorWhenAlreadyStarted {
		t.Error("expected WorkflowExecutionErrorWhenAlreadyStarted")
	}
}

func TestCreateRun_FutureStartBecomesDelay(t *testing.T) {
	fc := &fakeClient{}
	d := newTestDriver(fc, false)
	start := now.Add(90 * time.Minute)

	run, err := d.CreateRun(context.Background(), engine.RunRequest{RunID: "job-2", StartAt: &start})
	if err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}
	if run.State != engine.StateScheduled {
		t.Errorf("State = %s, want scheduled", run.State)
	}
	if fc.started[0].StartDelay != 90*time.Minute {
		t.Errorf("StartDelay = %v, want 90m", fc.started[0].StartDelay)
	}
}

func TestCreateRun_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"duplicate", serviceerror.NewWorkflowExecutionAlreadyStarted("exists", "", ""), engine.ErrRunExists},
		{"unavailable", serviceerror.NewUnavailable("down"), engine.ErrUnavailable},
		{"plain", errors.New("connection refused"), engine.ErrUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDriver(&fakeClient{executeErr: tt.err}, false)
			_, err := d.CreateRun(context.Background(), engine.RunRequest{RunID: "job"})
			if !errors.Is(err, tt.want) {
				t.Errorf("CreateRun() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestGetRun_StateMapping(t *testing.T) {
	tests := []struct {
		name string
		info *workflowpb.WorkflowExecutionInfo
		want engine.RunState
	}{
		{"delayed start", execInfo("j", enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING, now.Add(time.Hour), 2), engine.StateScheduled},
		{"not picked up", execInfo("j", enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING, now.Add(-time.Minute), 2), engine.StateQueued},
		{"running", execInfo("j", enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING, now.Add(-time.Minute), 12), engine.StateRunning},
		{"completed", execInfo("j", enumspb.WORKFLOW_EXECUTION_STATUS_COMPLETED, now.Add(-time.Minute), 30), engine.StateSuccess},
		{"failed", execInfo("j", enumspb.WORKFLOW_EXECUTION_STATUS_FAILED, now.Add(-time.Minute), 30), engine.StateFailed},
		{"timed out", execInfo("j", enumspb.WORKFLOW_EXECUTION_STATUS_TIMED_OUT, now.Add(-time.Minute), 30), engine.StateError},
		{"canceled", execInfo("j", enumspb.WORKFLOW_EXECUTION_STATUS_CANCELED, now.Add(-time.Minute), 30), engine.StateTerminated},
		{"terminated", execInfo("j", enumspb.WORKFLOW_EXECUTION_STATUS_TERMINATED, now.Add(-time.Minute), 30), engine.StateTerminated},
		{"continued", execInfo("j", enumspb.WORKFLOW_EXECUTION_STATUS_CONTINUED_AS_NEW, now.Add(-time.Minute), 30), engine.StateRunning},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := &fakeClient{
				describe: map[string]*workflowpb.WorkflowExecutionInfo{"j": tt.info},
				queryErr: errors.New("no poller"),
			}
			run, err := newTestDriver(fc, false).GetRun(context.Background(), "j")
			if err != nil {
				t.Fatalf("GetRun() error = %v", err)
			}
			if run.State != tt.want {
				t.Errorf("State = %s, want %s", run.State, tt.want)
			}
		})
	}
}

func TestGetRun_Dates(t *testing.T) {
	info := execInfo("j", enumspb.WORKFLOW_EXECUTION_STATUS_COMPLETED, now.Add(-50*time.Minute), 30)
	info.CloseTime = timestamppb.New(now.Add(-10 * time.Minute))
	fc := &fakeClient{
		describe: map[string]*workflowpb.WorkflowExecutionInfo{"j": info},
		result:   fakeRun{result: map[string]string{"message": "2 searches, 2 summaries"}},
	}

	run, err := newTestDriver(fc, false).GetRun(context.Background(), "j")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.StartedAt == nil || !run.StartedAt.Equal(now.Add(-50*time.Minute)) {
		t.Errorf("StartedAt = %v", run.StartedAt)
	}
	if run.EndedAt == nil || !run.EndedAt.Equal(now.Add(-10*time.Minute)) {
		t.Errorf("EndedAt = %v", run.EndedAt)
	}
	if run.Message != "2 searches, 2 summaries" {
		t.Errorf("Message = %q", run.Message)
	}
}

func TestGetRun_ScheduledHasNoStartDate(t *testing.T) {
	fc := &fakeClient{describe: map[string]*workflowpb.WorkflowExecutionInfo{
		"j": execInfo("j", enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING, now.Add(time.Hour), 2),
	}}
	run, err := newTestDriver(fc, false).GetRun(context.Background(), "j")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.StartedAt != nil || run.EndedAt != nil {
		t.Errorf("expected no dates, got start=%v end=%v", run.StartedAt, run.EndedAt)
	}
}

func TestGetRun_ProgressMessage(t *testing.T) {
	fc := &fakeClient{
		describe: map[string]*workflowpb.WorkflowExecutionInfo{
			"j": execInfo("j", enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING, now.Add(-time.Minute), 9),
		},
		query: map[string]string{"phase": "waiting", "message": "waiting 10 minutes before aggregation"},
	}
	run, err := newTestDriver(fc, false).GetRun(context.Background(), "j")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.Message != "waiting 10 minutes before aggregation" {
		t.Errorf("Message = %q", run.Message)
	}
}

func TestGetRun_ProgressQueryHasDeadline(t *testing.T) {
	fc := &fakeClient{
		describe: map[string]*workflowpb.WorkflowExecutionInfo{
			"j": execInfo("j", enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING, now.Add(-time.Minute), 9),
		},
		query: map[string]string{"message": "searching"},
	}
	if _, err := newTestDriver(fc, false).GetRun(context.Background(), "j"); err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if fc.queryCalls != 1 {
		t.Fatalf("expected 1 query, got %d", fc.queryCalls)
	}
	if !fc.queryHasTTL {
		t.Error("expected the progress query to carry a deadline")
	}
}

func TestGetRun_NoProgressQueryBeforePickup(t *testing.T) {
	tests := []struct {
		name string
		info *workflowpb.WorkflowExecutionInfo
		want engine.RunState
	}{
		{"scheduled", execInfo("j", enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING, now.Add(time.Hour), 2), engine.StateScheduled},
		{"queued", execInfo("j", enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING, now.Add(-time.Minute), 2), engine.StateQueued},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := &fakeClient{
				describe: map[string]*workflowpb.WorkflowExecutionInfo{"j": tt.info},
				query:    map[string]string{"message": "should not be asked"},
			}
			run, err := newTestDriver(fc, false).GetRun(context.Background(), "j")
			if err != nil {
				t.Fatalf("GetRun() error = %v", err)
			}
			if run.State != tt.want {
				t.Errorf("State = %s, want %s", run.State, tt.want)
			}
			if fc.queryCalls != 0 {
				t.Errorf("expected no progress query, got %d", fc.queryCalls)
			}
			if run.Message != "" {
				t.Errorf("Message = %q, want empty", run.Message)
			}
		})
	}
}

func TestGetRun_FailureMessage(t *testing.T) {
	fc := &fakeClient{
		describe: map[string]*workflowpb.WorkflowExecutionInfo{
			"j": execInfo("j", enumspb.WORKFLOW_EXECUTION_STATUS_FAILED, now.Add(-time.Minute), 20),
		},
		result: fakeRun{err: errors.New("aggregation failed for 1 of 1 keys")},
	}
	run, err := newTestDriver(fc, false).GetRun(context.Background(), "j")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.Message != "aggregation failed for 1 of 1 keys" {
		t.Errorf("Message = %q", run.Message)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	d := newTestDriver(&fakeClient{}, false)
	_, err := d.GetRun(context.Background(), "missing")
	if !errors.Is(err, engine.ErrRunNotFound) {
		t.Errorf("GetRun() error = %v, want ErrRunNotFound", err)
	}
}

func TestListRuns_PagingAndOffset(t *testing.T) {
	mk := func(id string) *workflowpb.WorkflowExecutionInfo {
		return execInfo(id, enumspb.WORKFLOW_EXECUTION_STATUS_COMPLETED, now.Add(-time.Hour), 30)
	}
	fc := &fakeClient{pages: [][]*workflowpb.WorkflowExecutionInfo{
		{mk("a"), mk("b")},
		{mk("c"), mk("d")},
		{mk("e")},
	}}
	d := newTestDriver(fc, false)

	runs, err := d.ListRuns(context.Background(), 2, 1)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 2 || runs[0].RunID != "b" || runs[1].RunID != "c" {
		t.Errorf("unexpected runs: %+v", runs)
	}
	if len(fc.listCalls) != 2 {
		t.Errorf("expected 2 list calls, got %d", len(fc.listCalls))
	}
	if fc.listCalls[0].Query != "WorkflowType = 'shoe_review_automation'" {
		t.Errorf("Query = %q", fc.listCalls[0].Query)
	}
	if fc.listCalls[0].Namespace != "default" {
		t.Errorf("Namespace = %q", fc.listCalls[0].Namespace)
	}
}

func TestListRuns_NewestStartFirst(t *testing.T) {
	mk := func(id string, started time.Time) *workflowpb.WorkflowExecutionInfo {
		info := execInfo(id, enumspb.WORKFLOW_EXECUTION_STATUS_COMPLETED, started, 30)
		info.StartTime = timestamppb.New(started)
		return info
	}
	// Close-time order: the oldest job finished last.
	fc := &fakeClient{pages: [][]*workflowpb.WorkflowExecutionInfo{
		{mk("old", now.Add(-3*time.Hour)), mk("new", now.Add(-time.Hour)), mk("mid", now.Add(-2*time.Hour))},
	}}
	runs, err := newTestDriver(fc, false).ListRuns(context.Background(), 3, 0)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	got := []string{runs[0].RunID, runs[1].RunID, runs[2].RunID}
	want := []string{"new", "mid", "old"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestListRuns_PageSizeIsBounded(t *testing.T) {
	fc := &fakeClient{}
	if _, err := newTestDriver(fc, false).ListRuns(context.Background(), 100, 1<<40); err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(fc.listCalls) == 0 {
		t.Fatal("expected a list call")
	}
	if size := fc.listCalls[0].PageSize; size <= 0 || size > maxPageSize {
		t.Errorf("PageSize = %d, want within (0, %d]", size, maxPageSize)
	}
}

func TestListRuns_Empty(t *testing.T) {
	d := newTestDriver(&fakeClient{}, false)
	runs, err := d.ListRuns(context.Background(), 20, 0)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if runs == nil || len(runs) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", runs)
	}
}

func TestListRuns_OffsetPastEnd(t *testing.T) {
	fc := &fakeClient{pages: [][]*workflowpb.WorkflowExecutionInfo{
		{execInfo("a", enumspb.WORKFLOW_EXECUTION_STATUS_COMPLETED, now, 30)},
	}}
	runs, err := newTestDriver(fc, false).ListRuns(context.Background(), 5, 10)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected no runs, got %d", len(runs))
	}
}

func TestTerminateRun_Modes(t *testing.T) {
	fc := &fakeClient{}
	if err := newTestDriver(fc, false).TerminateRun(context.Background(), "j", "user request"); err != nil {
		t.Fatalf("TerminateRun() error = %v", err)
	}
	if len(fc.cancelled) != 1 || len(fc.terminated) != 0 {
		t.Errorf("cancel mode: cancelled=%v terminated=%v", fc.cancelled, fc.terminated)
	}

	fc = &fakeClient{}
	if err := newTestDriver(fc, true).TerminateRun(context.Background(), "j", "user request"); err != nil {
		t.Fatalf("TerminateRun() error = %v", err)
	}
	if len(fc.terminated) != 1 || len(fc.cancelled) != 0 {
		t.Errorf("terminate mode: cancelled=%v terminated=%v", fc.cancelled, fc.terminated)
	}
}

func TestTerminateRun_NotFound(t *testing.T) {
	fc := &fakeClient{cancelErr: serviceerror.NewNotFound("workflow execution already completed")}
	err := newTestDriver(fc, false).TerminateRun(context.Background(), "j", "")
	if !errors.Is(err, engine.ErrRunNotFound) {
		t.Errorf("TerminateRun() error = %v, want ErrRunNotFound", err)
	}
}

func TestPing(t *testing.T) {
	if err := newTestDriver(&fakeClient{}, false).Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
	err := newTestDriver(&fakeClient{healthErr: errors.New("dial tcp: refused")}, false).Ping(context.Background())
	if !errors.Is(err, engine.ErrUnavailable) {
		t.Errorf("Ping() error = %v, want ErrUnavailable", err)
	}
}
