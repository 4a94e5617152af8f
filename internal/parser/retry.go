package parser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"invoicex/internal/domain"
)

// RetryPolicy bounds the rate-limit retry loop.
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
	Logger     *slog.Logger
}

// Retry invokes fn and re-invokes it after policy.Delay while it fails with a
// rate-limit error, up to policy.MaxRetries extra attempts. Any other error is
// returned immediately. When every attempt was rate limited the returned error
// wraps both domain.ErrRetriesExhausted and the last failure.
func Retry[T any](ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	logger := policy.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxRetries := policy.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	for attempt := 0; ; attempt++ {
		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		if !IsRateLimited(err) {
			return zero, err
		}
		if attempt >= maxRetries {
			logger.Error("retry.exhausted", "attempts", attempt+1, "error", err)
			return zero, fmt.Errorf("%w: %w", domain.ErrRetriesExhausted, err)
		}

		logger.Warn("retry.rate_limited",
			"attempt", attempt+1,
			"max_retries", maxRetries,
			"delay_ms", policy.Delay.Milliseconds(),
		)
		if err := sleep(ctx, policy.Delay); err != nil {
			return zero, err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
