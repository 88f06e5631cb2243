package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalStore stores artifacts on the local filesystem. Keys are paths relative
// to basePath, or absolute paths.
type LocalStore struct {
	basePath string
}

// NewLocalStore creates a local disk store rooted at basePath ("" is the
// working directory).
func NewLocalStore(basePath string) *LocalStore {
	return &LocalStore{basePath: basePath}
}

func (s *LocalStore) path(key string) string {
	if filepath.IsAbs(key) || s.basePath == "" {
		return filepath.Clean(key)
	}
	return filepath.Join(s.basePath, key)
}

// Put writes data to a temp file next to the destination, then renames it
// into place so readers never observe a partial artifact.
func (s *LocalStore) Put(ctx context.Context, key string, data io.Reader, opts PutOptions) (string, error) {
	filePath := s.path(key)
	if dir := filepath.Dir(filePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create artifact dir: %w", err)
		}
	}

	f, err := os.CreateTemp(filepath.Dir(filePath), "."+filepath.Base(filePath)+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := f.Name()

	if _, err := io.Copy(f, data); err != nil {
		f.Close()
		os.Remove(tmpPath) //nolint:errcheck
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return "", fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return "", fmt.Errorf("chmod artifact: %w", err)
	}
	if err := os.Rename(tmpPath, filePath); err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return "", fmt.Errorf("rename artifact: %w", err)
	}

	abs, err := filepath.Abs(filePath)
	if err != nil {
		abs = filePath
	}
	return "file://" + abs, nil
}

// Get opens the artifact stored under key.
func (s *LocalStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(s.path(key))
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	return f, nil
}

// Exists checks if an artifact exists.
func (s *LocalStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := os.Stat(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

// Close releases resources.
func (s *LocalStore) Close() error {
	return nil
}
