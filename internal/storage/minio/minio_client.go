package minio

import (
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"invoicex/internal/config"
	"invoicex/internal/port"
)

// minioClient implements port.ObjectStorage against an S3-compatible MinIO server.
type minioClient struct {
	client *minio.Client
	bucket string
}

// NewMinIOClient creates a MinIO-backed ObjectStorage and makes sure the bucket exists.
func NewMinIOClient(ctx context.Context, cfg *config.MinIOConfig) (port.ObjectStorage, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("minio credentials are required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("minio bucket is required")
	}

	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	exists, err := cli.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	return &minioClient{client: cli, bucket: cfg.Bucket}, nil
}

func (m *minioClient) Upload(ctx context.Context, input port.UploadInput) (*port.UploadOutput, error) {
	size := input.Size
	if size <= 0 {
		size = -1
	}
	info, err := m.client.PutObject(ctx, m.bucket, input.Key, input.Body, size, minio.PutObjectOptions{
		ContentType: input.ContentType,
	})
	if err != nil {
		return nil, fmt.Errorf("minio upload: %w", err)
	}

	return &port.UploadOutput{
		Location: fmt.Sprintf("%s/%s/%s", m.client.EndpointURL().String(), m.bucket, input.Key),
		ETag:     info.ETag,
	}, nil
}
