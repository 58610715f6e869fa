package jobs

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// ItemInput is one submitted work item before defaults are applied.
type ItemInput struct {
	Name       string
	MaxResults *int
}

// BatchRequest is a submitted batch before validation.
type BatchRequest struct {
	Items       []ItemInput
	WaitMinutes *int
	StartTime   *time.Time
}

// BatchItem is a validated work item.
type BatchItem struct {
	Name       string `json:"name" validate:"required"`
	MaxResults int    `json:"max_results" validate:"gte=1"`
}

// RunParams is the payload every workflow run receives.
type RunParams struct {
	JobID       string      `json:"job_id"`
	Items       []BatchItem `json:"items"`
	WaitMinutes int         `json:"wait_minutes"`
}

// Policy holds the validation bounds and defaults.
type Policy struct {
	DefaultWaitMinutes int
	MaxWaitMinutes     int
	DefaultMaxResults  int
	MaxResultsCap      int
	// StartTimeTolerance is how far in the past a start_time may be and still start immediately.
	StartTimeTolerance time.Duration
}

// DefaultPolicy mirrors the configuration defaults.
func DefaultPolicy() Policy {
	return Policy{
		DefaultWaitMinutes: 10,
		MaxWaitMinutes:     1440,
		DefaultMaxResults:  5,
		MaxResultsCap:      50,
		StartTimeTolerance: 5 * time.Minute,
	}
}

// validatedBatch is a BatchRequest after defaults and checks.
type validatedBatch struct {
	items       []BatchItem
	waitMinutes int
	startAt     *time.Time
}

type batchValidator struct {
	policy   Policy
	validate *validator.Validate
}

func newBatchValidator(p Policy) *batchValidator {
	return &batchValidator{policy: p, validate: validator.New(validator.WithRequiredStructEnabled())}
}

// check applies defaults and validates req against the policy at instant now.
func (v *batchValidator) check(req BatchRequest, now time.Time) (*validatedBatch, error) {
	if len(req.Items) == 0 {
		return nil, &ValidationError{Reason: ReasonEmptyBatch}
	}

	items := make([]BatchItem, 0, len(req.Items))
	for i, in := range req.Items {
		item := BatchItem{Name: strings.TrimSpace(in.Name), MaxResults: v.policy.DefaultMaxResults}
		if in.MaxResults != nil {
			item.MaxResults = *in.MaxResults
		}
		if err := v.validate.Struct(item); err != nil {
			return nil, invalid(ReasonInvalidItem, "shoes[%d]: %s", i, fieldErrors(err))
		}
		if item.MaxResults > v.policy.MaxResultsCap {
			return nil, invalid(ReasonInvalidItem, "shoes[%d]: max_results must be within [1, %d]", i, v.policy.MaxResultsCap)
		}
		items = append(items, item)
	}

	wait := v.policy.DefaultWaitMinutes
	if req.WaitMinutes != nil {
		wait = *req.WaitMinutes
	}
	if wait < 0 || wait > v.policy.MaxWaitMinutes {
		return nil, invalid(ReasonInvalidWait, "wait_minutes must be within [0, %d]", v.policy.MaxWaitMinutes)
	}

	var startAt *time.Time
	if req.StartTime != nil {
		st := req.StartTime.UTC()
		if now.Sub(st) > v.policy.StartTimeTolerance {
			return nil, invalid(ReasonPastStart, "%s is more than %s before now", st.Format(time.RFC3339), v.policy.StartTimeTolerance)
		}
		if st.After(now) {
			startAt = &st
		}
	}

	return &validatedBatch{items: items, waitMinutes: wait, startAt: startAt}, nil
}

func fieldErrors(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Field() {
		case "Name":
			msgs = append(msgs, "name must not be blank")
		case "MaxResults":
			msgs = append(msgs, "max_results must be at least 1")
		default:
			msgs = append(msgs, fe.Error())
		}
	}
	return strings.Join(msgs, ", ")
}
