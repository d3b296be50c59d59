package object

import (
	"context"
	"time"

	"github.com/fwauto/fwauto/pkg/util"
)

// RetryPolicy bounds retries of a single device call. Only errors accepted
// by Retryable are retried, at a fixed Interval.
type RetryPolicy struct {
	MaxAttempts int
	Interval    time.Duration
	Retryable   func(error) bool
}

// DefaultRetryPolicy retries connectivity failures three times, two
// seconds apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Interval:    2 * time.Second,
		Retryable:   util.IsRetryable,
	}
}

// NoRetry makes every call a single attempt.
func NoRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 1}
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p RetryPolicy) retryable(err error) bool {
	if p.Retryable == nil {
		return util.IsRetryable(err)
	}
	return p.Retryable(err)
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
