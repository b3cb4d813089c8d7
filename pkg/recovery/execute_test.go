package recovery_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/arcana/pkg/recovery"
	"github.com/dmitrymomot/arcana/pkg/subscription"
)

func failing(kind subscription.ErrorKind, failures int, calls *atomic.Int32) func(context.Context) (int, error) {
	return func(context.Context) (int, error) {
		n := int(calls.Add(1))
		if n <= failures {
			return 0, subscription.NewError(kind, "op", "", nil)
		}
		return 42, nil
	}
}

func TestExecute(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("first try", func(t *testing.T) {
		t.Parallel()
		h, _ := newHandler()
		var calls atomic.Int32
		res := recovery.Execute(ctx, h, "op", failing(subscription.KindNetwork, 0, &calls), nil)

		assert.True(t, res.Success)
		assert.Equal(t, 42, res.Data)
		assert.Zero(t, res.RetryCount)
		assert.NoError(t, res.Err)
	})

	t.Run("retries transient errors", func(t *testing.T) {
		t.Parallel()
		h, _ := newHandler()
		var calls atomic.Int32
		res := recovery.Execute(ctx, h, "op", failing(subscription.KindServer, 2, &calls), nil)

		assert.True(t, res.Success)
		assert.Equal(t, 2, res.RetryCount)
		assert.EqualValues(t, 3, calls.Load())
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		t.Parallel()
		h, _ := newHandler()
		var calls atomic.Int32
		res := recovery.Execute(ctx, h, "op", failing(subscription.KindPlatform, 100, &calls), nil)

		assert.False(t, res.Success)
		assert.Equal(t, subscription.KindPlatform, subscription.KindOf(res.Err))
		assert.EqualValues(t, 4, calls.Load())
		assert.Equal(t, 3, res.RetryCount)
	})

	t.Run("does not retry terminal kinds", func(t *testing.T) {
		t.Parallel()
		h, _ := newHandler()
		var calls atomic.Int32
		res := recovery.Execute(ctx, h, "op", failing(subscription.KindPaymentFailed, 100, &calls), nil)

		assert.False(t, res.Success)
		assert.EqualValues(t, 1, calls.Load())
	})

	t.Run("without retry makes exactly one attempt", func(t *testing.T) {
		t.Parallel()
		h, _ := newHandler()
		var calls atomic.Int32
		res := recovery.Execute(ctx, h, "purchase", failing(subscription.KindNetwork, 100, &calls), nil, recovery.WithoutRetry())

		assert.False(t, res.Success)
		assert.EqualValues(t, 1, calls.Load())
		assert.Zero(t, res.RetryCount)
	})

	t.Run("fallback after exhaustion", func(t *testing.T) {
		t.Parallel()
		h, _ := newHandler()
		var calls atomic.Int32
		res := recovery.Execute(ctx, h, "op", failing(subscription.KindNetwork, 100, &calls),
			func() (int, bool) { return 7, true })

		assert.True(t, res.Success)
		assert.True(t, res.FallbackUsed)
		assert.Equal(t, 7, res.Data)
		assert.Error(t, res.Err)
	})

	t.Run("fallback without value keeps failure", func(t *testing.T) {
		t.Parallel()
		h, _ := newHandler()
		var calls atomic.Int32
		res := recovery.Execute(ctx, h, "op", failing(subscription.KindNetwork, 100, &calls),
			func() (int, bool) { return 0, false })

		assert.False(t, res.Success)
		assert.False(t, res.FallbackUsed)
	})

	t.Run("untyped errors are not retried", func(t *testing.T) {
		t.Parallel()
		h, _ := newHandler()
		var calls atomic.Int32
		boom := errors.New("boom")
		res := recovery.Execute(ctx, h, "op", func(context.Context) (int, error) {
			calls.Add(1)
			return 0, boom
		}, nil)

		assert.ErrorIs(t, res.Err, boom)
		assert.EqualValues(t, 1, calls.Load())
	})

	t.Run("slow attempt times out as network error", func(t *testing.T) {
		t.Parallel()
		cfg := fastConfig()
		cfg.OperationTimeout = 10 * time.Millisecond
		cfg.MaxRetries = 1
		h := recovery.NewHandler(cfg)

		var calls atomic.Int32
		res := recovery.Execute(ctx, h, "status", func(ctx context.Context) (int, error) {
			calls.Add(1)
			<-ctx.Done()
			return 0, ctx.Err()
		}, nil)

		assert.False(t, res.Success)
		assert.Equal(t, subscription.KindNetwork, subscription.KindOf(res.Err))
		assert.EqualValues(t, 2, calls.Load())
	})

	t.Run("cancelled context stops retrying", func(t *testing.T) {
		t.Parallel()
		cfg := fastConfig()
		cfg.BaseDelay = time.Hour
		cfg.MaxDelay = time.Hour
		h := recovery.NewHandler(cfg)

		cctx, cancel := context.WithCancel(ctx)
		var calls atomic.Int32
		go func() {
			for calls.Load() == 0 {
				time.Sleep(time.Millisecond)
			}
			cancel()
		}()

		res := recovery.Execute(cctx, h, "op", failing(subscription.KindNetwork, 100, &calls), nil)
		require.False(t, res.Success)
		assert.ErrorIs(t, res.Err, context.Canceled)
		assert.EqualValues(t, 1, calls.Load())
	})
}
