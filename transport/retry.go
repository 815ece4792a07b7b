package transport

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/stockflow_backend/utils"
)

// RetryPolicy bounds the remote attempts for one operation. MaxAttempts
// counts the initial attempt; Timeout applies per attempt.
type RetryPolicy struct {
	MaxAttempts int
	Timeout     time.Duration
	IsRetryable func(utils.ErrorCategory) bool
}

// ExportRetryPolicy allows one initial attempt plus two retries, and only
// timeout-class failures are retried.
func ExportRetryPolicy(timeout time.Duration) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Timeout:     timeout,
		IsRetryable: utils.IsRetryable,
	}
}

// FetchRetryPolicy allows a single attempt; the fetch path prefers to
// fall through to cached data over stalling the caller.
func FetchRetryPolicy(timeout time.Duration) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 1,
		Timeout:     timeout,
		IsRetryable: func(utils.ErrorCategory) bool { return false },
	}
}

// Do runs attempt under the per-attempt timeout until it succeeds, fails
// terminally, or the attempt budget runs out. The last error is returned.
func (p RetryPolicy) Do(ctx context.Context, attempt func(ctx context.Context) error) error {
	var lastErr error
	for i := 0; i < p.MaxAttempts; i++ {
		attemptCtx, cancel := context.WithTimeout(ctx, p.Timeout)
		err := attempt(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if p.IsRetryable == nil || !p.IsRetryable(utils.CategoryOf(err)) {
			return err
		}
	}
	return lastErr
}
