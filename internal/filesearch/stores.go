package filesearch

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/haasonsaas/filesearch/internal/retry"
	"github.com/haasonsaas/filesearch/pkg/models"
	openai "github.com/sashabaranov/go-openai"
)

const listPageSize = 100

// CreateStore creates a new vector store.
func (c *Client) CreateStore(ctx context.Context, name string) (*models.VectorStore, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("store name is required")
	}
	var vs openai.VectorStore
	err := c.call(ctx, "vector_stores.create", "", c.retry, func(ctx context.Context) error {
		var err error
		vs, err = c.api.CreateVectorStore(ctx, openai.VectorStoreRequest{Name: name})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create vector store %q: %w", name, err)
	}
	c.logger.Info("vector store created", "store_id", vs.ID, "name", vs.Name)
	return storeFromAPI(vs), nil
}

// GetStore retrieves a vector store with its file counts.
func (c *Client) GetStore(ctx context.Context, storeID string) (*models.VectorStore, error) {
	if storeID == "" {
		return nil, ErrStoreIDRequired
	}
	var vs openai.VectorStore
	err := c.call(ctx, "vector_stores.retrieve", storeID, c.retry, func(ctx context.Context) error {
		var err error
		vs, err = c.api.RetrieveVectorStore(ctx, storeID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("retrieve vector store %s: %w", storeID, err)
	}
	return storeFromAPI(vs), nil
}

func storeFromAPI(vs openai.VectorStore) *models.VectorStore {
	return &models.VectorStore{
		ID:         vs.ID,
		Name:       vs.Name,
		CreatedAt:  vs.CreatedAt,
		FileCount:  vs.FileCounts.Completed,
		Status:     vs.Status,
		UsageBytes: int64(vs.UsageBytes),
		FileCounts: &models.FileCounts{
			InProgress: vs.FileCounts.InProgress,
			Completed:  vs.FileCounts.Completed,
			Failed:     vs.FileCounts.Failed,
			Cancelled:  vs.FileCounts.Cancelled,
			Total:      vs.FileCounts.Total,
		},
	}
}

// UploadFile uploads a local file and attaches it to the store. The upload
// is attempted once; failures are reported in the returned record and error.
func (c *Client) UploadFile(ctx context.Context, storeID, path string) (models.UploadRecord, error) {
	start := time.Now()
	rec := models.UploadRecord{Path: path, Status: models.UploadFailed}
	finish := func(err error) (models.UploadRecord, error) {
		rec.ElapsedSeconds = time.Since(start).Seconds()
		if err != nil {
			rec.Error = err.Error()
			c.metrics.RecordUpload(string(models.UploadFailed), time.Since(start))
			return rec, err
		}
		rec.Status = models.UploadSucceeded
		c.metrics.RecordUpload(string(models.UploadSucceeded), time.Since(start))
		return rec, nil
	}

	if storeID == "" {
		return finish(ErrStoreIDRequired)
	}
	if _, err := os.Stat(path); err != nil {
		return finish(fmt.Errorf("stat %s: %w", path, err))
	}

	var file openai.File
	err := c.call(ctx, "files.create", storeID, retry.NoRetry(), func(ctx context.Context) error {
		var err error
		file, err = c.api.CreateFile(ctx, openai.FileRequest{
			FileName: filepath.Base(path),
			FilePath: path,
			Purpose:  string(openai.PurposeAssistants),
		})
		return err
	})
	if err != nil {
		return finish(fmt.Errorf("upload %s: %w", filepath.Base(path), err))
	}
	rec.FileID = file.ID

	err = c.call(ctx, "vector_stores.files.create", storeID, retry.NoRetry(), func(ctx context.Context) error {
		_, err := c.api.CreateVectorStoreFile(ctx, storeID, openai.VectorStoreFileRequest{FileID: file.ID})
		return err
	})
	if err != nil {
		return finish(fmt.Errorf("attach %s to %s: %w", file.ID, storeID, err))
	}
	return finish(nil)
}

// ListFiles lists every file attached to the store, resolving filenames
// through the files API.
func (c *Client) ListFiles(ctx context.Context, storeID string) ([]models.StoreFile, error) {
	if storeID == "" {
		return nil, ErrStoreIDRequired
	}

	var files []models.StoreFile
	var after *string
	for {
		limit := listPageSize
		var page openai.VectorStoreFilesList
		err := c.call(ctx, "vector_stores.files.list", storeID, c.retry, func(ctx context.Context) error {
			var err error
			page, err = c.api.ListVectorStoreFiles(ctx, storeID, openai.Pagination{Limit: &limit, After: after})
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("list files of %s: %w", storeID, err)
		}
		for _, f := range page.VectorStoreFiles {
			files = append(files, models.StoreFile{
				ID:         f.ID,
				Status:     f.Status,
				CreatedAt:  f.CreatedAt,
				UsageBytes: f.UsageBytes,
			})
		}
		if !page.HasMore || len(page.VectorStoreFiles) == 0 {
			break
		}
		last := page.VectorStoreFiles[len(page.VectorStoreFiles)-1].ID
		if page.LastID != nil && *page.LastID != "" {
			last = *page.LastID
		}
		after = &last
	}

	for i := range files {
		name, err := c.fileName(ctx, files[i].ID)
		if err != nil {
			c.logger.Warn("could not resolve filename", "file_id", files[i].ID, "error", err)
			files[i].Filename = files[i].ID
			continue
		}
		files[i].Filename = name
	}
	return files, nil
}

func (c *Client) fileName(ctx context.Context, fileID string) (string, error) {
	var f openai.File
	err := c.call(ctx, "files.retrieve", "", c.retry, func(ctx context.Context) error {
		var err error
		f, err = c.api.GetFile(ctx, fileID)
		return err
	})
	if err != nil {
		return "", err
	}
	return f.FileName, nil
}

type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func joinText(parts []contentPart) string {
	texts := make([]string, 0, len(parts))
	for _, p := range parts {
		if p.Type == "" || p.Type == "text" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// FileContent returns the parsed text chunks the store holds for a file.
func (c *Client) FileContent(ctx context.Context, storeID, fileID string) ([]string, error) {
	if storeID == "" {
		return nil, ErrStoreIDRequired
	}
	path := fmt.Sprintf("/vector_stores/%s/files/%s/content", url.PathEscape(storeID), url.PathEscape(fileID))
	var out struct {
		Data    []contentPart `json:"data"`
		Content []contentPart `json:"content"`
	}
	err := c.call(ctx, "vector_stores.files.content", storeID, c.retry, func(ctx context.Context) error {
		return c.doJSON(ctx, "vector_stores.files.content", "GET", path, nil, &out)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch content of %s: %w", fileID, err)
	}
	parts := out.Data
	if len(parts) == 0 {
		parts = out.Content
	}
	chunks := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p.Text); t != "" {
			chunks = append(chunks, t)
		}
	}
	return chunks, nil
}
