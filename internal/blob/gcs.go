package blob

import (
	"context"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
)

// GCSProvider archives attachments to a Google Cloud Storage bucket.
type GCSProvider struct {
	client *storage.Client
	bucket string
}

// NewGCSProvider creates a GCS-backed provider.
func NewGCSProvider(client *storage.Client, bucket string) (*GCSProvider, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &GCSProvider{client: client, bucket: bucket}, nil
}

// Put uploads data to the configured bucket and returns a gs:// URI.
func (p *GCSProvider) Put(ctx context.Context, path string, contentType string, r io.Reader) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}
	writer := p.client.Bucket(p.bucket).Object(path).NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	if _, err := io.Copy(writer, r); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", p.bucket, path), nil
}

// Close releases the underlying storage client.
func (p *GCSProvider) Close() error {
	return p.client.Close()
}
