package worker

import (
	"context"
	"log/slog"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"reviewplane/internal/collaborator"
)

// Application error types set on workflow and activity failures.
const (
	ErrTypeCollaboratorRejected = "CollaboratorRejected"
	ErrTypeSearchFailed         = "SearchFailed"
	ErrTypeAggregationFailed    = "AggregationFailed"
)

// Searcher triggers one search.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) (*collaborator.SearchResult, error)
}

// Aggregator triggers aggregation for one grouping key, or all pending keys when key is empty.
type Aggregator interface {
	Aggregate(ctx context.Context, key string) (*collaborator.AggregationResult, error)
}

// SearchInput is the input of TriggerSearch.
type SearchInput struct {
	JobID      string `json:"job_id"`
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

// SearchOutput is the collaborator's acknowledgment.
type SearchOutput struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	RawFilePath string `json:"raw_file_path,omitempty"`
}

// AggregateInput is the input of TriggerAggregation. An empty Key means global aggregation.
type AggregateInput struct {
	JobID string `json:"job_id"`
	Key   string `json:"key,omitempty"`
}

// AggregateOutput is the collaborator's answer.
type AggregateOutput struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Activities calls the collaborators on behalf of workflow runs.
type Activities struct {
	searcher   Searcher
	aggregator Aggregator
	logger     *slog.Logger
}

// NewActivities creates the activity set.
func NewActivities(s Searcher, a Aggregator, logger *slog.Logger) *Activities {
	return &Activities{searcher: s, aggregator: a, logger: logger}
}

// TriggerSearch asks the search collaborator to search for one item.
func (a *Activities) TriggerSearch(ctx context.Context, in SearchInput) (*SearchOutput, error) {
	info := activity.GetInfo(ctx)
	res, err := a.searcher.Search(ctx, in.Query, in.MaxResults)
	if err != nil {
		a.logger.Warn("search trigger failed",
			"job_id", in.JobID, "query", in.Query, "attempt", info.Attempt, "error", err)
		return nil, classify(err)
	}
	a.logger.Info("search triggered", "job_id", in.JobID, "query", in.Query, "status", res.Status)
	return &SearchOutput{Status: res.Status, Message: res.Message, RawFilePath: res.RawFilePath}, nil
}

// TriggerAggregation asks the aggregation collaborator to summarize one key.
func (a *Activities) TriggerAggregation(ctx context.Context, in AggregateInput) (*AggregateOutput, error) {
	info := activity.GetInfo(ctx)
	res, err := a.aggregator.Aggregate(ctx, in.Key)
	if err != nil {
		a.logger.Warn("aggregation trigger failed",
			"job_id", in.JobID, "key", in.Key, "attempt", info.Attempt, "error", err)
		return nil, classify(err)
	}
	a.logger.Info("aggregation triggered", "job_id", in.JobID, "key", in.Key, "status", res.Status)
	return &AggregateOutput{Status: res.Status, Message: res.Message}, nil
}

// classify stops the engine from retrying collaborator rejections.
func classify(err error) error {
	if collaborator.IsRetryable(err) {
		return err
	}
	return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeCollaboratorRejected, err)
}
