package transport

import (
	"context"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/stockflow_backend/utils"
)

func TestRetryPolicy_RetriesTimeoutsOnly(t *testing.T) {
	timeoutErr := utils.NewCategorizedError(utils.ErrorCategoryRemoteTimeout, "timed out", nil)
	validationErr := utils.NewCategorizedError(utils.ErrorCategoryRemoteValidation, "bad field", nil)

	cases := []struct {
		name     string
		err      error
		attempts int
	}{
		{"timeouts exhaust the budget", timeoutErr, 3},
		{"validation is terminal", validationErr, 1},
	}
	for _, tc := range cases {
		calls := 0
		policy := ExportRetryPolicy(50 * time.Millisecond)
		err := policy.Do(context.Background(), func(ctx context.Context) error {
			calls++
			return tc.err
		})
		if err == nil {
			t.Fatalf("%s: expected an error", tc.name)
		}
		if calls != tc.attempts {
			t.Fatalf("%s: expected %d attempts, got %d", tc.name, tc.attempts, calls)
		}
	}
}

func TestRetryPolicy_SucceedsMidBudget(t *testing.T) {
	calls := 0
	policy := ExportRetryPolicy(50 * time.Millisecond)
	err := policy.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 2 {
			return utils.NewCategorizedError(utils.ErrorCategoryRemoteTimeout, "timed out", nil)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
}

func TestRetryPolicy_AppliesPerAttemptTimeout(t *testing.T) {
	policy := ExportRetryPolicy(20 * time.Millisecond)
	calls := 0
	err := policy.Do(context.Background(), func(ctx context.Context) error {
		calls++
		select {
		case <-ctx.Done():
			return utils.NewCategorizedError(utils.ErrorCategoryRemoteTimeout, "timed out", ctx.Err())
		case <-time.After(200 * time.Millisecond):
			return nil
		}
	})
	if err == nil {
		t.Fatal("expected the attempts to time out")
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	if utils.CategoryOf(err) != utils.ErrorCategoryRemoteTimeout {
		t.Fatalf("expected RemoteTimeout, got %s", utils.CategoryOf(err))
	}
}

func TestFetchRetryPolicy_SingleAttempt(t *testing.T) {
	calls := 0
	policy := FetchRetryPolicy(50 * time.Millisecond)
	_ = policy.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return utils.NewCategorizedError(utils.ErrorCategoryRemoteTimeout, "timed out", nil)
	})
	if calls != 1 {
		t.Fatalf("fetch path must not retry, got %d attempts", calls)
	}
}
