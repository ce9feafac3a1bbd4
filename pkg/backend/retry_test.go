package backend

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedInvoker returns its errors in order, then succeeds.
type scriptedInvoker struct {
	errs  []error
	calls int
}

func (s *scriptedInvoker) Name() string { return "scripted" }

func (s *scriptedInvoker) Invoke(_ context.Context, _ Request) (Result, error) {
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return Result{}, err
		}
	}
	return Result{Text: "ok"}, nil
}

func fastPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     4 * time.Millisecond,
	}
}

func TestWithRetry(t *testing.T) {
	t.Run("passes through success", func(t *testing.T) {
		inner := &scriptedInvoker{}
		r := WithRetry(inner, fastPolicy(), zerolog.Nop())

		result, err := r.Invoke(context.Background(), Request{Query: "q"})
		require.NoError(t, err)
		assert.Equal(t, "ok", result.Text)
		assert.Equal(t, 1, inner.calls)
	})

	t.Run("retries retryable failures", func(t *testing.T) {
		inner := &scriptedInvoker{errs: []error{
			NewError(KindNetwork, "scripted", nil),
			NewError(KindTimeout, "scripted", nil),
		}}
		r := WithRetry(inner, fastPolicy(), zerolog.Nop())

		result, err := r.Invoke(context.Background(), Request{Query: "q"})
		require.NoError(t, err)
		assert.Equal(t, "ok", result.Text)
		assert.Equal(t, 3, inner.calls)
	})

	t.Run("permanent failures return immediately", func(t *testing.T) {
		inner := &scriptedInvoker{errs: []error{
			NewError(KindAuth, "scripted", nil),
		}}
		r := WithRetry(inner, fastPolicy(), zerolog.Nop())

		_, err := r.Invoke(context.Background(), Request{Query: "q"})
		require.Error(t, err)
		assert.Equal(t, KindAuth, KindOf(err))
		assert.Equal(t, 1, inner.calls)
	})

	t.Run("exhausts attempts and returns last error", func(t *testing.T) {
		inner := &scriptedInvoker{errs: []error{
			NewError(KindNetwork, "scripted", nil),
			NewError(KindNetwork, "scripted", nil),
			NewError(KindRateLimited, "scripted", nil),
		}}
		r := WithRetry(inner, fastPolicy(), zerolog.Nop())

		_, err := r.Invoke(context.Background(), Request{Query: "q"})
		require.Error(t, err)
		assert.Equal(t, KindRateLimited, KindOf(err))
		assert.Equal(t, 3, inner.calls)
	})

	t.Run("cancelled context stops the backoff wait", func(t *testing.T) {
		inner := &scriptedInvoker{errs: []error{
			NewError(KindNetwork, "scripted", nil),
			NewError(KindNetwork, "scripted", nil),
		}}
		policy := fastPolicy()
		policy.InitialBackoff = time.Minute

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()

		r := WithRetry(inner, policy, zerolog.Nop())
		_, err := r.Invoke(ctx, Request{Query: "q"})
		require.Error(t, err)
		assert.Equal(t, KindTimeout, KindOf(err))
		assert.Equal(t, 1, inner.calls)
	})

	t.Run("keeps the inner name", func(t *testing.T) {
		r := WithRetry(&scriptedInvoker{}, fastPolicy(), zerolog.Nop())
		assert.Equal(t, "scripted", r.Name())
	})
}
