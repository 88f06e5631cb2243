package visualize

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/haasonsaas/filesearch/internal/embeddings"
	"github.com/haasonsaas/filesearch/internal/rag/chunker"
	"github.com/haasonsaas/filesearch/pkg/models"
)

// DefaultMaxResults caps the number of plotted chunks.
const DefaultMaxResults = 1000

// StoreReader lists store files and their stored text.
type StoreReader interface {
	ListFiles(ctx context.Context, storeID string) ([]models.StoreFile, error)
	FileContent(ctx context.Context, storeID, fileID string) ([]string, error)
}

// Source collects embeddable items from a vector store. The hosted store
// does not expose its vectors, so stored text is re-chunked and embedded
// with the configured provider.
type Source struct {
	reader     StoreReader
	embedder   embeddings.Provider
	chunker    chunker.Chunker
	maxResults int
	batchSize  int
	logger     *slog.Logger
}

// SourceOption configures a Source.
type SourceOption func(*Source)

// WithMaxResults caps the number of items.
func WithMaxResults(n int) SourceOption {
	return func(s *Source) {
		if n > 0 {
			s.maxResults = n
		}
	}
}

// WithBatchSize sets the embedding batch size.
func WithBatchSize(n int) SourceOption {
	return func(s *Source) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithChunker replaces the default splitter.
func WithChunker(c chunker.Chunker) SourceOption {
	return func(s *Source) {
		if c != nil {
			s.chunker = c
		}
	}
}

// WithSourceLogger sets the logger.
func WithSourceLogger(l *slog.Logger) SourceOption {
	return func(s *Source) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSource creates a Source.
func NewSource(reader StoreReader, embedder embeddings.Provider, opts ...SourceOption) *Source {
	s := &Source{
		reader:     reader,
		embedder:   embedder,
		chunker:    chunker.NewRecursive(chunker.DefaultConfig()),
		maxResults: DefaultMaxResults,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Collect returns up to maxResults embedded items. Files whose content
// cannot be read are skipped. ErrEmptyStore is returned when nothing
// remains.
func (s *Source) Collect(ctx context.Context, storeID string) ([]Item, error) {
	files, err := s.reader.ListFiles(ctx, storeID)
	if err != nil {
		return nil, fmt.Errorf("list store files: %w", err)
	}
	if len(files) == 0 {
		return nil, ErrEmptyStore
	}

	var items []Item
	for _, f := range files {
		if len(items) >= s.maxResults {
			break
		}
		parts, err := s.reader.FileContent(ctx, storeID, f.ID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn("skipping file without readable content", "file_id", f.ID, "filename", f.Filename, "error", err)
			continue
		}
		for _, c := range s.chunker.SplitParts(parts) {
			if len(items) >= s.maxResults {
				break
			}
			items = append(items, Item{
				ID:       fmt.Sprintf("%s-%d", f.ID, c.Index),
				FileID:   f.ID,
				Filename: f.Filename,
				Text:     c.Text,
				Metadata: map[string]any{
					"chunk_index": c.Index,
					"part":        c.Part,
					"tokens":      c.Tokens,
				},
			})
		}
	}
	if len(items) == 0 {
		return nil, ErrEmptyStore
	}

	texts := make([]string, len(items))
	for i, it := range items {
		texts[i] = it.Text
	}
	vecs, err := embeddings.EmbedAll(ctx, s.embedder, texts, s.batchSize)
	if err != nil {
		return nil, fmt.Errorf("embed store content: %w", err)
	}
	for i := range items {
		items[i].Vector = vecs[i]
	}
	s.logger.Info("collected embeddings", "store_id", storeID, "files", len(files), "items", len(items), "model", s.embedder.Model())
	return items, nil
}
