// Package openai embeds text with the OpenAI embeddings endpoint. Vector
// stores do not expose their vectors, so the visualizer re-embeds chunk text
// with the same model family the store indexed with.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/filesearch/internal/embeddings"
)

const (
	// DefaultModel matches the model file_search indexes with.
	DefaultModel = "text-embedding-3-small"

	maxInputs = 2048
)

var errNoAPIKey = errors.New("openai embeddings: API key is required")

// Config selects the model and endpoint. Dimensions truncates vectors on
// the server for text-embedding-3 models; 0 keeps the native size.
type Config struct {
	APIKey       string
	BaseURL      string
	Organization string
	Model        string
	Dimensions   int
	HTTPClient   *http.Client
}

// Embedder implements embeddings.Provider on go-openai.
type Embedder struct {
	api        *openai.Client
	model      string
	dimensions int
}

var _ embeddings.Provider = (*Embedder)(nil)

func New(cfg Config) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, errNoAPIKey
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	oc.OrgID = cfg.Organization
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &Embedder{
		api:        openai.NewClientWithConfig(oc),
		model:      model,
		dimensions: cfg.Dimensions,
	}, nil
}

func (e *Embedder) Name() string      { return "openai" }
func (e *Embedder) MaxBatchSize() int { return maxInputs }

// Model identifies the vectors this embedder produces, so truncated
// vectors are cached apart from full-size ones.
func (e *Embedder) Model() string {
	if e.dimensions > 0 {
		return fmt.Sprintf("%s/%d", e.model, e.dimensions)
	}
	return e.model
}

// EmbedBatch returns one vector per text. The response may list vectors in
// any order; they are placed by index.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := e.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(e.model),
		Dimensions: e.dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings (%s): %w", e.model, err)
	}

	vecs := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vecs) {
			return nil, fmt.Errorf("openai embeddings: index %d out of range for %d inputs", d.Index, len(texts))
		}
		vecs[d.Index] = d.Embedding
	}
	for i := range vecs {
		if vecs[i] == nil {
			return nil, fmt.Errorf("openai embeddings: missing vector for input %d", i)
		}
	}
	return vecs, nil
}
