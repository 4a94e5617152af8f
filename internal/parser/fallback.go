package parser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"invoicex/internal/port"
)

// FallbackExtractor tries extractors in order and returns the first success.
// It implements port.InvoiceExtractor.
type FallbackExtractor struct {
	extractors []port.InvoiceExtractor
	names      []string
}

// NewFallbackExtractor creates a FallbackExtractor from an ordered list of extractors and their names.
func NewFallbackExtractor(extractors []port.InvoiceExtractor, names []string) *FallbackExtractor {
	return &FallbackExtractor{
		extractors: extractors,
		names:      names,
	}
}

// Extract returns a RateLimitError for provider "all" when every extractor
// was rate limited, carrying the shortest RetryAfter seen.
func (f *FallbackExtractor) Extract(ctx context.Context, input port.ExtractInput) (*port.ExtractOutput, error) {
	var lastErr error
	allRateLimited := true
	var retryAfter time.Duration

	for i, ex := range f.extractors {
		out, err := ex.Extract(ctx, input)
		if err == nil {
			return out, nil
		}

		slog.Warn("parser.fallback.failed", "provider", f.names[i], "error", err)
		lastErr = err

		var rlErr *RateLimitError
		if errors.As(err, &rlErr) {
			if retryAfter == 0 || rlErr.RetryAfter < retryAfter {
				retryAfter = rlErr.RetryAfter
			}
		} else {
			allRateLimited = false
		}
	}

	if lastErr == nil {
		return nil, fmt.Errorf("no providers configured")
	}
	if allRateLimited {
		return nil, NewRateLimitError("all", fmt.Errorf("all providers rate limited: %w", lastErr), int(retryAfter.Seconds()))
	}
	return nil, fmt.Errorf("all providers failed: %w", lastErr)
}

// RetryingExtractor wraps an extractor with the rate-limit retry policy.
type RetryingExtractor struct {
	next   port.InvoiceExtractor
	policy RetryPolicy
}

// NewRetryingExtractor wraps next with Retry under policy.
func NewRetryingExtractor(next port.InvoiceExtractor, policy RetryPolicy) *RetryingExtractor {
	return &RetryingExtractor{next: next, policy: policy}
}

func (r *RetryingExtractor) Extract(ctx context.Context, input port.ExtractInput) (*port.ExtractOutput, error) {
	return Retry(ctx, r.policy, func(ctx context.Context) (*port.ExtractOutput, error) {
		return r.next.Extract(ctx, input)
	})
}
