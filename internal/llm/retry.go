package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
)

// retryPolicy spaces out attempts after rate limits and server errors
type retryPolicy struct {
	rateLimitWaits []time.Duration
	serverWaits    []time.Duration
}

func defaultRetryPolicy() retryPolicy {
	return retryPolicy{
		rateLimitWaits: []time.Duration{20 * time.Second, 40 * time.Second},
		serverWaits:    []time.Duration{2 * time.Second, 10 * time.Second},
	}
}

// callWithRetry runs call until it succeeds, fails permanently or the waits run out
func callWithRetry[T any](ctx context.Context, policy retryPolicy, call func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := 1 + max(len(policy.rateLimitWaits), len(policy.serverWaits))

	for attempt := 0; attempt < attempts; attempt++ {
		result, err := call(ctx)
		if err == nil {
			return result, nil
		}

		var waits []time.Duration
		switch {
		case isRateLimitError(err):
			waits = policy.rateLimitWaits
		case isServerError(err):
			waits = policy.serverWaits
		default:
			return zero, err
		}
		if attempt >= len(waits) {
			return zero, err
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(waits[attempt]):
		}
	}
	return zero, fmt.Errorf("failed after %d attempts", attempts)
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests")
}

func isServerError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= http.StatusInternalServerError
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "internal server error") ||
		strings.Contains(errStr, "server_error")
}
