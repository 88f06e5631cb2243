// Package upload submits a directory of PDFs to a vector store with a fixed
// number of concurrent workers.
package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/filesearch/pkg/models"
)

// DefaultWorkers is the worker count used when none is configured.
const DefaultWorkers = 10

// ErrNoPDFs is returned when the directory holds no PDF files.
var ErrNoPDFs = errors.New("no PDF files found")

// Uploader uploads a single file to a store. A failed upload returns a record
// with status failed alongside the error.
type Uploader interface {
	UploadFile(ctx context.Context, storeID, path string) (models.UploadRecord, error)
}

// FindPDFs lists the *.pdf files (case-insensitive) directly inside dir,
// sorted by name.
func FindPDFs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// Batch uploads files concurrently.
type Batch struct {
	uploader Uploader
	workers  int
	logger   *slog.Logger
	progress *Progress
}

// Option configures a Batch.
type Option func(*Batch)

// WithWorkers sets the number of concurrent uploads.
func WithWorkers(n int) Option {
	return func(b *Batch) {
		if n > 0 {
			b.workers = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Batch) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithProgress reports each finished upload.
func WithProgress(p *Progress) Option {
	return func(b *Batch) { b.progress = p }
}

// NewBatch creates a batch uploader.
func NewBatch(uploader Uploader, opts ...Option) *Batch {
	b := &Batch{
		uploader: uploader,
		workers:  DefaultWorkers,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// UploadDir uploads every PDF in dir. See Upload.
func (b *Batch) UploadDir(ctx context.Context, storeID, dir string) (*models.UploadStats, error) {
	paths, err := FindPDFs(dir)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoPDFs, dir)
	}
	return b.Upload(ctx, storeID, paths)
}

// Upload submits every path once. Each file yields exactly one record in
// input order; failures are recorded and never abort the batch.
func (b *Batch) Upload(ctx context.Context, storeID string, paths []string) (*models.UploadStats, error) {
	start := time.Now()
	stats := &models.UploadStats{
		StoreID:    storeID,
		TotalFiles: len(paths),
		Files:      make([]models.UploadRecord, len(paths)),
		Errors:     []string{},
	}
	if len(paths) == 0 {
		return stats, nil
	}

	workers := b.workers
	if workers > len(paths) {
		workers = len(paths)
	}
	b.logger.Info("uploading files",
		"store_id", storeID,
		"files", len(paths),
		"workers", workers)
	b.progress.Start(len(paths))

	var mu sync.Mutex
	collect := func(idx int, rec models.UploadRecord, err error) {
		mu.Lock()
		defer mu.Unlock()
		stats.Files[idx] = rec
		if rec.Status == models.UploadSucceeded {
			stats.SuccessfulUploads++
		} else {
			stats.FailedUploads++
			stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %s", filepath.Base(rec.Path), rec.Error))
		}
		b.progress.Done(rec)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				rec, err := b.uploadOne(ctx, storeID, paths[idx])
				collect(idx, rec, err)
			}
		}()
	}
	for idx := range paths {
		jobs <- idx
	}
	close(jobs)
	wg.Wait()

	stats.ElapsedSeconds = time.Since(start).Seconds()
	b.progress.Finish()
	b.logger.Info("upload finished",
		"store_id", storeID,
		"successful", stats.SuccessfulUploads,
		"failed", stats.FailedUploads,
		"elapsed_seconds", stats.ElapsedSeconds)
	return stats, nil
}

func (b *Batch) uploadOne(ctx context.Context, storeID, path string) (models.UploadRecord, error) {
	if err := ctx.Err(); err != nil {
		return models.UploadRecord{Path: path, Status: models.UploadFailed, Error: err.Error()}, err
	}
	start := time.Now()
	rec, err := b.uploader.UploadFile(ctx, storeID, path)
	rec.Path = path
	if err != nil {
		rec.Status = models.UploadFailed
		if rec.Error == "" {
			rec.Error = err.Error()
		}
		b.logger.Warn("upload failed", "file", filepath.Base(path), "error", err)
	} else if rec.Status == "" {
		rec.Status = models.UploadSucceeded
	}
	if rec.ElapsedSeconds == 0 {
		rec.ElapsedSeconds = time.Since(start).Seconds()
	}
	return rec, err
}
