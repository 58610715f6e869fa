package jobs

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// JobIDLayout is the timestamp part of a job id.
const JobIDLayout = "20060102_150405"

// FormatJobID returns "{prefix}_{YYYYMMDD}_{HHMMSS}" for now in UTC.
func FormatJobID(prefix string, now time.Time) string {
	return fmt.Sprintf("%s_%s", prefix, now.UTC().Format(JobIDLayout))
}

// IDGenerator produces job ids. With Suffix set, 8 hex characters from a random
// UUID are appended so that submissions within the same second do not collide.
type IDGenerator struct {
	Prefix string
	Suffix bool
	Now    func() time.Time
}

// NewIDGenerator returns a generator using the wall clock.
func NewIDGenerator(prefix string, suffix bool) *IDGenerator {
	return &IDGenerator{Prefix: prefix, Suffix: suffix, Now: time.Now}
}

// Next returns a fresh job id.
func (g *IDGenerator) Next() string {
	id := FormatJobID(g.Prefix, g.Now())
	if !g.Suffix {
		return id
	}
	return id + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
