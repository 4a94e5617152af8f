package parser

import (
	"errors"
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"

	"invoicex/internal/domain"
)

// RateLimitCode is the error code providers report when a caller exceeds its request volume.
const RateLimitCode = 429

// RateLimitError indicates a provider rejected a call with the rate-limit code.
type RateLimitError struct {
	Err        error
	RetryAfter time.Duration
	Provider   string
	Code       int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s rate limited (retry after %s): %v", e.Provider, e.RetryAfter, e.Err)
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, domain.ErrRateLimited) match any RateLimitError.
func (e *RateLimitError) Is(target error) bool {
	return target == domain.ErrRateLimited
}

// NewRateLimitError creates a RateLimitError. If retryAfterSecs is 0, defaults to 60s.
func NewRateLimitError(provider string, err error, retryAfterSecs int) *RateLimitError {
	if retryAfterSecs <= 0 {
		retryAfterSecs = 60
	}
	return &RateLimitError{
		Err:        err,
		RetryAfter: time.Duration(retryAfterSecs) * time.Second,
		Provider:   provider,
		Code:       RateLimitCode,
	}
}

// ParseRetryAfterHeader parses a Retry-After header value into seconds.
// Returns 0 if the value is empty or not a valid integer.
func ParseRetryAfterHeader(val string) int {
	if val == "" {
		return 0
	}
	secs, err := strconv.Atoi(val)
	if err != nil {
		return 0
	}
	return secs
}

// codedError is satisfied by errors that expose a provider error code.
type codedError interface {
	ErrorCode() int
}

// IsRateLimited reports whether err carries the rate-limit code anywhere in its chain.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var rlErr *RateLimitError
	if errors.As(err, &rlErr) {
		return true
	}
	var coded codedError
	if errors.As(err, &coded) {
		return coded.ErrorCode() == RateLimitCode
	}
	return errors.Is(err, domain.ErrRateLimited)
}

// ResponseParseError is returned when the model reply is not valid invoice JSON.
// Raw holds the reply exactly as received.
type ResponseParseError struct {
	Raw string
	Err error
}

func (e *ResponseParseError) Error() string {
	return fmt.Sprintf("failed to parse JSON response: %v (raw: %s)", e.Err, truncate(e.Raw, 500))
}

func (e *ResponseParseError) Unwrap() error {
	return e.Err
}

// truncate cuts s to at most maxLen bytes without splitting a rune.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
