package domain

import "errors"

var (
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrFileNotFound        = errors.New("file not found")
	ErrFileTooLarge        = errors.New("file exceeds maximum allowed size")
	ErrEmptyPDFText        = errors.New("PDF appears to be empty or contains only images")
	ErrMissingAPIKey       = errors.New("API key is not set")
	ErrRateLimited         = errors.New("rate limited by provider")
	ErrRetriesExhausted    = errors.New("request failed after retries due to rate limit")
	ErrUploadFailed        = errors.New("output upload to storage failed")
)
