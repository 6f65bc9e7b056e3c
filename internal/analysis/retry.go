package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// RetryPolicy bounds how often and how patiently a failed request is retried.
type RetryPolicy struct {
	MaxRetries int           // retries after the first attempt
	BaseDelay  time.Duration // delay before the first retry; doubles each time
}

// DefaultRetryPolicy waits 1s, 2s and 4s between four attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, BaseDelay: time.Second}
}

// Validate rejects negative retry counts and non-positive delays.
func (p RetryPolicy) Validate() error {
	if p.MaxRetries < 0 {
		return fmt.Errorf("retry policy: max retries must be >= 0, got %d", p.MaxRetries)
	}
	if p.BaseDelay <= 0 {
		return fmt.Errorf("retry policy: base delay must be > 0, got %s", p.BaseDelay)
	}
	return nil
}

// Delay is the wait after the failed attempt with zero-based index attempt.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	return p.BaseDelay * time.Duration(1<<uint(attempt))
}

// Sleeper waits for d or until ctx ends, returning ctx's error in the latter case.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the real-timer Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryWithBackoff runs op up to policy.MaxRetries+1 times. Client and
// Cancelled failures stop immediately; any other failure is retried after
// policy.Delay(attempt). Attempts never overlap. When ctx ends during a
// backoff the pending retry is skipped and a Cancelled error returned.
func RetryWithBackoff[T any](ctx context.Context, policy RetryPolicy, sleep Sleeper, op func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := policy.Validate(); err != nil {
		return zero, &Error{Kind: KindClient, Message: err.Error(), Err: err}
	}
	if sleep == nil {
		sleep = SleepContext
	}

	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return zero, err
		}
		if attempt == policy.MaxRetries {
			break
		}

		delay := policy.Delay(attempt)
		log.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Int("max_attempts", policy.MaxRetries+1).
			Str("kind", KindOf(err).String()).
			Dur("backoff", delay).
			Msg("Analysis request failed, retrying")

		if err := sleep(ctx, delay); err != nil || ctx.Err() != nil {
			return zero, cancelledError(ctx)
		}
	}

	return zero, lastErr
}
