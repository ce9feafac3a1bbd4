package backend

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// RetryPolicy configures the optional retry wrapper. Retrying is safe
// for read-only lookups; wrapping a generative backend may change output
// content between attempts, which callers must account for.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryPolicy returns the policy used when fields are zero.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
	}
}

type retrier struct {
	inner  Invoker
	policy RetryPolicy
	logger zerolog.Logger
}

// WithRetry wraps an Invoker with exponential backoff on retryable
// failures. Permanent failures (auth, not-found) return immediately.
func WithRetry(inner Invoker, policy RetryPolicy, logger zerolog.Logger) Invoker {
	def := DefaultRetryPolicy()
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = def.MaxAttempts
	}
	if policy.InitialBackoff <= 0 {
		policy.InitialBackoff = def.InitialBackoff
	}
	if policy.MaxBackoff <= 0 {
		policy.MaxBackoff = def.MaxBackoff
	}
	return &retrier{inner: inner, policy: policy, logger: logger}
}

func (r *retrier) Name() string {
	return r.inner.Name()
}

func (r *retrier) Invoke(ctx context.Context, req Request) (Result, error) {
	var lastErr error
	delay := r.policy.InitialBackoff

	for attempt := 0; attempt < r.policy.MaxAttempts; attempt++ {
		result, err := r.inner.Invoke(ctx, req)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return Result{}, err
		}
		if attempt == r.policy.MaxAttempts-1 {
			break
		}

		r.logger.Info().
			Str("backend", r.inner.Name()).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Err(err).
			Msg("Retrying backend call")

		select {
		case <-ctx.Done():
			return Result{}, WrapTransport(r.inner.Name(), ctx.Err())
		case <-time.After(delay):
		}

		delay *= 2
		if delay > r.policy.MaxBackoff {
			delay = r.policy.MaxBackoff
		}
	}

	return Result{}, lastErr
}
