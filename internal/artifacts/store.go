// Package artifacts writes and reads the JSON and HTML artifacts produced by
// filesearch actions. Destinations are local paths or s3://bucket/key URIs.
package artifacts

import (
	"context"
	"io"
	"path"
	"strings"
)

// PutOptions describes an artifact being stored.
type PutOptions struct {
	MimeType string
	Metadata map[string]string
}

// Store persists artifacts under keys.
type Store interface {
	// Put stores data under key and returns a reference URI.
	Put(ctx context.Context, key string, data io.Reader, opts PutOptions) (string, error)
	// Get opens the artifact stored under key.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)
	// Close releases resources.
	Close() error
}

// MimeForPath guesses a content type from an artifact name.
func MimeForPath(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".json":
		return "application/json"
	case ".html", ".htm":
		return "text/html; charset=utf-8"
	case ".prom", ".txt":
		return "text/plain; charset=utf-8"
	case ".pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}
