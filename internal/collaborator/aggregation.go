package collaborator

import (
	"context"
	"strings"
	"time"
)

// AggregationResult is the aggregation-trigger answer.
type AggregationResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
}

type summaryRequest struct {
	SearchQuery string `json:"search_query"`
}

// AggregationClient triggers summary generation.
type AggregationClient struct {
	base
}

// NewAggregationClient creates a client for the service rooted at baseURL.
func NewAggregationClient(baseURL string, timeout time.Duration, opts ...Option) *AggregationClient {
	return &AggregationClient{base: newBase("aggregation", strings.TrimRight(baseURL, "/"), timeout, opts)}
}

// Aggregate generates the summary for one grouping key. An empty key asks the
// service to process every query it has pending.
func (c *AggregationClient) Aggregate(ctx context.Context, key string) (*AggregationResult, error) {
	var out AggregationResult
	var err error
	if key == "" {
		err = c.postJSON(ctx, c.baseURL+"/auto-process", nil, &out)
	} else {
		err = c.postJSON(ctx, c.baseURL+"/generate-summary", summaryRequest{SearchQuery: key}, &out)
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}
