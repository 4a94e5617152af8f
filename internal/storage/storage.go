// Package storage builds the optional object store that mirrors output files.
package storage

import (
	"context"
	"fmt"

	"invoicex/internal/config"
	"invoicex/internal/port"
	"invoicex/internal/storage/minio"
	"invoicex/internal/storage/s3"
)

// Provider names accepted in config.StorageConfig.Provider.
const (
	ProviderNone  = "none"
	ProviderS3    = "s3"
	ProviderMinIO = "minio"
)

// New returns the object store selected by cfg, or nil when uploads are disabled.
func New(ctx context.Context, cfg *config.StorageConfig) (port.ObjectStorage, error) {
	switch cfg.Provider {
	case "", ProviderNone:
		return nil, nil
	case ProviderS3:
		return s3.NewS3Client(ctx, &cfg.S3)
	case ProviderMinIO:
		return minio.NewMinIOClient(ctx, &cfg.MinIO)
	default:
		return nil, fmt.Errorf("unknown storage provider: %s", cfg.Provider)
	}
}
