// Package embeddings provides interfaces and implementations for embedding providers.
package embeddings

import (
	"context"
	"fmt"
)

// Provider defines the interface for embedding providers.
type Provider interface {
	// EmbedBatch generates embeddings for multiple texts, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Name returns the provider name.
	Name() string

	// Model returns the embedding model identifier. Cached vectors are keyed by it.
	Model() string

	// MaxBatchSize returns the maximum number of texts per batch.
	MaxBatchSize() int
}

// EmbedAll embeds texts in batches no larger than batchSize or the
// provider's limit, whichever is smaller.
func EmbedAll(ctx context.Context, p Provider, texts []string, batchSize int) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	limit := p.MaxBatchSize()
	if batchSize <= 0 || (limit > 0 && batchSize > limit) {
		batchSize = limit
	}
	if batchSize <= 0 {
		batchSize = len(texts)
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))
		vecs, err := p.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("%s returned %d embeddings for %d texts", p.Name(), len(vecs), end-start)
		}
		out = append(out, vecs...)
	}
	return out, nil
}
