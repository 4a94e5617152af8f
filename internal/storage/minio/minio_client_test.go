package minio_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoicex/internal/config"
	"invoicex/internal/port"
	"invoicex/internal/storage/minio"
)

// fakeS3 answers the handful of calls the MinIO client makes for a bucket check and a put.
type fakeS3 struct {
	mu      sync.Mutex
	puts    map[string]string
	buckets map[string]bool
}

func newFakeS3(buckets ...string) *fakeS3 {
	f := &fakeS3{puts: map[string]string{}, buckets: map[string]bool{}}
	for _, b := range buckets {
		f.buckets[b] = true
	}
	return f
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/")
	bucket, key, _ := strings.Cut(path, "/")

	switch {
	case r.Method == http.MethodGet && r.URL.Query().Has("location"):
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><LocationConstraint xmlns="http://s3.amazonaws.com/doc/2006-03-01/">us-east-1</LocationConstraint>`))
	case r.Method == http.MethodHead && key == "":
		if !f.buckets[bucket] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut && key == "":
		f.buckets[bucket] = true
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.puts[bucket+"/"+key] = string(body)
		w.Header().Set("ETag", `"etag-1"`)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

func minioConfig(serverURL, bucket string) *config.MinIOConfig {
	return &config.MinIOConfig{
		Endpoint:  strings.TrimPrefix(serverURL, "http://"),
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Bucket:    bucket,
	}
}

func TestMinIOClient_Upload(t *testing.T) {
	fake := newFakeS3("invoices")
	server := httptest.NewServer(fake)
	defer server.Close()

	client, err := minio.NewMinIOClient(context.Background(), minioConfig(server.URL, "invoices"))
	require.NoError(t, err)

	body := `{"invoice_number":"A1"}`
	out, err := client.Upload(context.Background(), port.UploadInput{
		Key:         "out/invoice-A1-1.json",
		Body:        strings.NewReader(body),
		ContentType: "application/json",
		Size:        int64(len(body)),
	})

	require.NoError(t, err)
	assert.Equal(t, "etag-1", out.ETag)
	assert.Equal(t, server.URL+"/invoices/out/invoice-A1-1.json", out.Location)
	assert.Contains(t, fake.puts["invoices/out/invoice-A1-1.json"], `"invoice_number":"A1"`)
}

func TestNewMinIOClient_CreatesMissingBucket(t *testing.T) {
	fake := newFakeS3()
	server := httptest.NewServer(fake)
	defer server.Close()

	_, err := minio.NewMinIOClient(context.Background(), minioConfig(server.URL, "fresh"))

	require.NoError(t, err)
	assert.True(t, fake.buckets["fresh"])
}

func TestNewMinIOClient_RequiresSettings(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.MinIOConfig
		wantErr string
	}{
		{"no endpoint", config.MinIOConfig{AccessKey: "a", SecretKey: "b", Bucket: "c"}, "endpoint is required"},
		{"no credentials", config.MinIOConfig{Endpoint: "localhost:9000", Bucket: "c"}, "credentials are required"},
		{"no bucket", config.MinIOConfig{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "b"}, "bucket is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := minio.NewMinIOClient(context.Background(), &tt.cfg)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
