// Package store contains the database layer for reviewplane.
// The workflow engine is authoritative for run state; the store only
// caches what a batch was submitted with.
package store

import "time"

// Item is one submitted work item as persisted.
type Item struct {
	Name       string `json:"name"`
	MaxResults int    `json:"max_results"`
}

// JobRecord holds the submission parameters of a job.
type JobRecord struct {
	JobID             string
	Items             []Item
	WaitMinutes       int
	StartTime         *time.Time
	ScheduledTime     time.Time
	CreatedAt         time.Time
	CancelRequestedAt *time.Time
}
