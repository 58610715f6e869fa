package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"reviewplane/internal/engine"
)

// RetryPolicy bounds retries of engine calls.
type RetryPolicy struct {
	Attempts        int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy retries three times starting at 200ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, InitialInterval: 200 * time.Millisecond, MaxInterval: 2 * time.Second}
}

// withEngineRetry runs fn until it succeeds, fails permanently, or the attempts run out.
// Not-found and duplicate answers are definitive and are not retried.
func (s *Service) withEngineRetry(ctx context.Context, op string, fn func(attempt int) error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.retry.InitialInterval
	eb.MaxInterval = s.retry.MaxInterval

	attempt := 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(s.retry.Attempts)), ctx)
	return backoff.RetryNotify(func() error {
		attempt++
		err := fn(attempt)
		if err == nil {
			return nil
		}
		if errors.Is(err, engine.ErrRunNotFound) || errors.Is(err, engine.ErrRunExists) {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, wait time.Duration) {
		s.engineErrors.Add(ctx, 1)
		s.logger.Warn("engine call failed, retrying", "op", op, "attempt", attempt, "retry_in", wait, "error", err)
	})
}

// mapEngineError turns driver errors into the job error taxonomy.
func mapEngineError(err error) error {
	switch {
	case errors.Is(err, engine.ErrRunNotFound):
		return ErrNotFound
	case errors.Is(err, engine.ErrRunExists):
		return ErrDuplicateJob
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return errors.Join(ErrEngineUnavailable, err)
	}
}
