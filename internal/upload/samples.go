package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// DefaultSampleDir is where fetched sample PDFs land.
const DefaultSampleDir = "SearchOnThis"

// SampleResult reports what FetchSamples did with each source.
type SampleResult struct {
	Fetched []string `json:"fetched"`
	Skipped []string `json:"skipped"`
	Failed  []string `json:"failed"`
}

// Fetcher copies local PDFs and downloads remote ones into a directory.
type Fetcher struct {
	client *http.Client
	logger *slog.Logger
}

// NewFetcher creates a Fetcher. A nil client uses http.DefaultClient.
func NewFetcher(client *http.Client, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{client: client, logger: logger}
}

// Fetch copies every local path and downloads every URL into targetDir.
// Files already present are left alone. Individual failures are recorded
// and do not stop the remaining sources.
func (f *Fetcher) Fetch(ctx context.Context, targetDir string, localPaths, urls []string) (*SampleResult, error) {
	if targetDir == "" {
		targetDir = DefaultSampleDir
	}
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", targetDir, err)
	}

	res := &SampleResult{}
	record := func(src, dest string, err error) {
		switch {
		case errors.Is(err, fs.ErrExist):
			f.logger.Info("sample already present", "file", dest)
			res.Skipped = append(res.Skipped, dest)
		case err != nil:
			f.logger.Warn("sample fetch failed", "source", src, "error", err)
			res.Failed = append(res.Failed, src)
		default:
			res.Fetched = append(res.Fetched, dest)
		}
	}

	for _, src := range localPaths {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		dest := filepath.Join(targetDir, filepath.Base(src))
		record(src, dest, copyFile(src, dest))
	}
	for _, raw := range urls {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		name, err := fileNameFromURL(raw)
		if err != nil {
			record(raw, "", err)
			continue
		}
		dest := filepath.Join(targetDir, name)
		record(raw, dest, f.download(ctx, raw, dest))
	}
	return res, nil
}

func fileNameFromURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	name := path.Base(u.Path)
	if name == "" || name == "/" || name == "." {
		return "", fmt.Errorf("url %s has no file name", raw)
	}
	if !strings.EqualFold(path.Ext(name), ".pdf") {
		name += ".pdf"
	}
	return name, nil
}

func (f *Fetcher) download(ctx context.Context, rawURL, dest string) error {
	if _, err := os.Stat(dest); err == nil {
		return fs.ErrExist
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", rawURL, resp.StatusCode)
	}
	return writeAtomic(dest, resp.Body)
}

func copyFile(src, dest string) error {
	if _, err := os.Stat(dest); err == nil {
		return fs.ErrExist
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	return writeAtomic(dest, in)
}

func writeAtomic(dest string, r io.Reader) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".sample-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}
