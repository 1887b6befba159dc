package resilience

import (
	"context"
	"time"
)

// Policy combines retries with a circuit breaker for one upstream service.
// The breaker sees every attempt, so a flapping upstream opens it without
// waiting for whole retry sequences to fail.
type Policy struct {
	Retry   RetryConfig
	Breaker *CircuitBreaker
}

// NewPolicy builds a Policy from plain config values. Zero values fall back
// to defaults.
func NewPolicy(service string, maxAttempts, initialBackoffMs, failureThreshold, cooldownSecs int) *Policy {
	retry := DefaultRetryConfig()
	if maxAttempts > 0 {
		retry.MaxAttempts = maxAttempts
	}
	if initialBackoffMs > 0 {
		retry.InitialBackoff = time.Duration(initialBackoffMs) * time.Millisecond
	}
	retry.OnRetry = RetryLogger(service, "request")
	return &Policy{
		Retry:   retry,
		Breaker: NewCircuitBreaker(service, failureThreshold, time.Duration(cooldownSecs)*time.Second),
	}
}

// Call runs fn under p. A nil policy calls fn once.
func Call[T any](ctx context.Context, p *Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	if p == nil {
		return fn(ctx)
	}
	return DoVal(ctx, p.Retry, func(ctx context.Context) (T, error) {
		if p.Breaker == nil {
			return fn(ctx)
		}
		return ExecuteVal(ctx, p.Breaker, fn)
	})
}
