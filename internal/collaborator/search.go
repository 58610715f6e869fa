package collaborator

import (
	"context"
	"time"
)

// SearchResult is the search-trigger acknowledgment.
type SearchResult struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	RawFilePath string `json:"raw_file_path"`
	Timestamp   string `json:"timestamp"`
}

type searchRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

// SearchClient triggers searches for a query.
type SearchClient struct {
	base
}

// NewSearchClient creates a client posting to url, the full search endpoint.
func NewSearchClient(url string, timeout time.Duration, opts ...Option) *SearchClient {
	return &SearchClient{base: newBase("search", url, timeout, opts)}
}

// Search asks the collaborator to search for query, keeping at most maxResults.
func (c *SearchClient) Search(ctx context.Context, query string, maxResults int) (*SearchResult, error) {
	var out SearchResult
	if err := c.postJSON(ctx, c.baseURL, searchRequest{Query: query, MaxResults: maxResults}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
