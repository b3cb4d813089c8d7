package recovery

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dmitrymomot/arcana/pkg/logger"
	"github.com/dmitrymomot/arcana/pkg/subscription"
)

// Result reports how an operation ended.
type Result[T any] struct {
	Success bool
	Data    T
	// Err is the last failure. It stays set when a fallback supplied Data.
	Err          error
	FallbackUsed bool
	RetryCount   int
}

type execOptions struct {
	noRetry bool
}

// ExecOption tunes a single Execute call.
type ExecOption func(*execOptions)

// WithoutRetry allows exactly one attempt.
func WithoutRetry() ExecOption {
	return func(o *execOptions) { o.noRetry = true }
}

// Execute runs op under h's retry policy. Each attempt is bounded by
// OperationTimeout; an attempt that hits it counts as a network failure.
// When all attempts fail and fallback returns ok, the result is a success
// carrying the fallback value. fallback may be nil.
func Execute[T any](
	ctx context.Context,
	h *Handler,
	name string,
	op func(context.Context) (T, error),
	fallback func() (T, bool),
	opts ...ExecOption,
) Result[T] {
	var o execOptions
	for _, opt := range opts {
		opt(&o)
	}

	cfg := h.cfg
	if o.noRetry {
		cfg.MaxRetries = 0
	}

	attempts := 0
	started := h.clock.Now()
	data, err := retry.DoValue(ctx, cfg.Backoff(), func(ctx context.Context) (T, error) {
		attempts++
		v, err := attempt(ctx, cfg.OperationTimeout, name, op)
		if err == nil {
			return v, nil
		}

		h.logger.WarnContext(ctx, "operation attempt failed",
			logger.Operation(name),
			logger.Attempt(attempts),
			logger.ErrorKind(subscription.KindOf(err)),
			logger.Error(err))

		if subscription.IsRetryable(err) {
			return v, retry.RetryableError(err)
		}
		return v, err
	})
	retries := max(attempts-1, 0)

	if err == nil {
		if retries > 0 {
			h.logger.InfoContext(ctx, "operation recovered",
				logger.Operation(name),
				logger.RetryCount(retries),
				logger.Duration(h.clock.Now().Sub(started)))
		}
		return Result[T]{Success: true, Data: data, RetryCount: retries}
	}

	if fallback != nil {
		if v, ok := fallback(); ok {
			h.logger.WarnContext(ctx, "operation failed, using fallback",
				logger.Operation(name),
				logger.RetryCount(retries),
				logger.Error(err))
			return Result[T]{Success: true, Data: v, Err: err, FallbackUsed: true, RetryCount: retries}
		}
	}

	h.logger.ErrorContext(ctx, "operation failed",
		logger.Operation(name),
		logger.RetryCount(retries),
		logger.Error(err))
	return Result[T]{Err: err, RetryCount: retries}
}

// attempt runs op once under the per-attempt timeout.
func attempt[T any](ctx context.Context, timeout time.Duration, name string, op func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return op(ctx)
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	v, err := op(actx)
	if err != nil && ctx.Err() == nil && errors.Is(actx.Err(), context.DeadlineExceeded) {
		var zero T
		return zero, subscription.NewError(subscription.KindNetwork, name, "operation timed out", err)
	}
	return v, err
}
