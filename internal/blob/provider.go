// Package blob provides storage providers for archiving uploaded
// vehicle attachments.
package blob

import (
	"context"
	"io"
)

// Provider writes an uploaded attachment to durable storage and
// returns a URI for the stored object.
type Provider interface {
	Put(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// NoOpProvider discards attachments. It is used when archiving is not
// configured.
type NoOpProvider struct{}

// Put drains the reader and reports an empty URI.
func (NoOpProvider) Put(_ context.Context, _ string, _ string, r io.Reader) (string, error) {
	_, err := io.Copy(io.Discard, r)
	return "", err
}
