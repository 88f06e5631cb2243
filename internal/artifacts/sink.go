package artifacts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/haasonsaas/filesearch/internal/config"
)

// Location is a parsed artifact destination.
type Location struct {
	Bucket string // empty for local paths
	Key    string
}

// IsS3 reports whether the location names an S3 object.
func (l Location) IsS3() bool { return l.Bucket != "" }

func (l Location) String() string {
	if l.IsS3() {
		return "s3://" + l.Bucket + "/" + l.Key
	}
	return l.Key
}

// ParseLocation splits an s3://bucket/key URI. Anything else is a local path.
func ParseLocation(dest string) (Location, error) {
	dest = strings.TrimSpace(dest)
	if dest == "" {
		return Location{}, fmt.Errorf("artifact destination is empty")
	}
	rest, ok := strings.CutPrefix(dest, "s3://")
	if !ok {
		return Location{Key: dest}, nil
	}
	bucket, key, _ := strings.Cut(rest, "/")
	key = strings.Trim(key, "/")
	if bucket == "" || key == "" {
		return Location{}, fmt.Errorf("invalid s3 location %q: want s3://bucket/key", dest)
	}
	return Location{Bucket: bucket, Key: key}, nil
}

// Sink routes artifact reads and writes to the local filesystem or S3.
type Sink struct {
	s3cfg config.S3Config
	local Store

	mu      sync.Mutex
	buckets map[string]Store

	// newS3 is swapped in tests.
	newS3 func(ctx context.Context, bucket string) (Store, error)
}

// NewSink creates a sink. S3 clients are created lazily per bucket.
func NewSink(cfg config.S3Config) *Sink {
	s := &Sink{
		s3cfg:   cfg,
		local:   NewLocalStore(""),
		buckets: make(map[string]Store),
	}
	s.newS3 = s.openS3
	return s
}

func (s *Sink) openS3(ctx context.Context, bucket string) (Store, error) {
	st, err := newS3Store(ctx, s.s3cfg, bucket)
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (s *Sink) storeFor(ctx context.Context, loc Location) (Store, error) {
	if !loc.IsS3() {
		return s.local, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.buckets[loc.Bucket]; ok {
		return st, nil
	}
	st, err := s.newS3(ctx, loc.Bucket)
	if err != nil {
		return nil, err
	}
	s.buckets[loc.Bucket] = st
	return st, nil
}

// WriteFile stores data at dest and returns the resolved reference.
func (s *Sink) WriteFile(ctx context.Context, dest string, data []byte, mimeType string) (string, error) {
	loc, err := ParseLocation(dest)
	if err != nil {
		return "", err
	}
	st, err := s.storeFor(ctx, loc)
	if err != nil {
		return "", err
	}
	if mimeType == "" {
		mimeType = MimeForPath(loc.Key)
	}
	ref, err := st.Put(ctx, loc.Key, bytes.NewReader(data), PutOptions{MimeType: mimeType})
	if err != nil {
		return "", fmt.Errorf("write %s: %w", loc, err)
	}
	return ref, nil
}

// WriteJSON writes v as indented JSON.
func (s *Sink) WriteJSON(ctx context.Context, dest string, v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", dest, err)
	}
	return s.WriteFile(ctx, dest, append(data, '\n'), "application/json")
}

// ReadFile reads the artifact at src.
func (s *Sink) ReadFile(ctx context.Context, src string) ([]byte, error) {
	loc, err := ParseLocation(src)
	if err != nil {
		return nil, err
	}
	st, err := s.storeFor(ctx, loc)
	if err != nil {
		return nil, err
	}
	rc, err := st.Get(ctx, loc.Key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", loc, err)
	}
	return data, nil
}

// Exists reports whether an artifact is present at src.
func (s *Sink) Exists(ctx context.Context, src string) (bool, error) {
	loc, err := ParseLocation(src)
	if err != nil {
		return false, err
	}
	st, err := s.storeFor(ctx, loc)
	if err != nil {
		return false, err
	}
	return st.Exists(ctx, loc.Key)
}

// Close releases every opened store.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for _, st := range s.buckets {
		if err := st.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
