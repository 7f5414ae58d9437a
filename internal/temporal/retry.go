package temporal

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/rendis/temporal-mcp/pkg/schema"
)

// RetryPolicy controls how failed upstream requests are retried.
type RetryPolicy struct {
	// MaxRetries is the number of attempts after the first one.
	MaxRetries int
	// Backoff is one of none, constant, linear or exponential.
	Backoff  string
	Delay    time.Duration
	MaxDelay time.Duration
}

// DefaultRetryPolicy retries three times with exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		Backoff:    "exponential",
		Delay:      200 * time.Millisecond,
		MaxDelay:   5 * time.Second,
	}
}

// IsRetryableError classifies whether an upstream error should be retried.
// Structured errors decide for themselves. Context cancellation is never
// retried.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) {
		return false
	}
	// A per-request timeout fired; the caller's context is checked separately.
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var sErr *schema.Error
	if errors.As(err, &sErr) {
		return sErr.IsRetryable()
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"eof",
		"temporary failure",
		"i/o timeout",
		"service unavailable",
		"bad gateway",
		"gateway timeout",
		"too many requests",
	}
	for _, p := range retryablePatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	// Default: retryable; MaxRetries bounds the attempts.
	return true
}

// ComputeBackoff calculates the delay before retry number attempt (0-based).
func ComputeBackoff(policy RetryPolicy, attempt int) time.Duration {
	if policy.Delay <= 0 {
		return 0
	}

	var delay time.Duration
	switch policy.Backoff {
	case "exponential":
		delay = policy.Delay << uint(attempt)
		if delay <= 0 {
			delay = policy.MaxDelay
		}
	case "linear":
		delay = policy.Delay * time.Duration(attempt+1)
	default:
		delay = policy.Delay
	}

	if policy.MaxDelay > 0 && delay > policy.MaxDelay {
		delay = policy.MaxDelay
	}
	return delay
}

// WaitForBackoff sleeps for delay or returns early if the context is done.
func WaitForBackoff(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
