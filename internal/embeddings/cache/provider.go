package cache

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/haasonsaas/filesearch/internal/embeddings"
	"github.com/haasonsaas/filesearch/internal/observability"
)

// Provider serves embeddings from the cache and delegates misses.
type Provider struct {
	inner   embeddings.Provider
	cache   *Cache
	metrics *observability.Metrics
	logger  *slog.Logger
}

var _ embeddings.Provider = (*Provider)(nil)

// Wrap returns a caching provider. Cache read and write failures are logged
// and fall through to the inner provider.
func Wrap(inner embeddings.Provider, c *Cache, metrics *observability.Metrics, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{inner: inner, cache: c, metrics: metrics, logger: logger}
}

func (p *Provider) Name() string      { return p.inner.Name() }
func (p *Provider) Model() string     { return p.inner.Model() }
func (p *Provider) MaxBatchSize() int { return p.inner.MaxBatchSize() }

// EmbedBatch returns embeddings in input order.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	model := p.inner.Model()
	hashes := make([]string, len(texts))
	for i, t := range texts {
		hashes[i] = Hash(t)
	}

	cached, err := p.cache.Get(ctx, model, hashes)
	if err != nil {
		p.logger.Warn("embedding cache lookup failed", "error", err)
		cached = map[string][]float32{}
	}

	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string
	for i, h := range hashes {
		if vec, ok := cached[h]; ok {
			out[i] = vec
			p.metrics.RecordCacheLookup(true)
			continue
		}
		p.metrics.RecordCacheLookup(false)
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, texts[i])
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := p.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, fmt.Errorf("%s returned %d embeddings for %d texts", p.inner.Name(), len(vecs), len(missTexts))
	}
	fresh := make(map[string][]float32, len(vecs))
	for j, i := range missIdx {
		out[i] = vecs[j]
		fresh[hashes[i]] = vecs[j]
	}
	if err := p.cache.Put(ctx, model, fresh); err != nil {
		p.logger.Warn("embedding cache write failed", "error", err)
	}
	p.logger.Debug("embedded texts", "cached", len(texts)-len(missTexts), "embedded", len(missTexts))
	return out, nil
}
