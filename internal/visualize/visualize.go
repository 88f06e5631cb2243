// Package visualize renders the contents of a vector store as a 3D scatter
// plot. Stored text is embedded, standardized, projected to three
// dimensions with a neighbor-graph layout and clustered with HDBSCAN.
package visualize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/haasonsaas/filesearch/internal/observability"
)

// ErrEmptyStore is returned when the store yields no embeddable content.
var ErrEmptyStore = errors.New("vector store has no embeddings to visualize")

// DefaultTitle is the heading of rendered plots.
const DefaultTitle = "Vector Store Embeddings Visualization"

const previewChars = 100

// Options tunes projection and clustering.
type Options struct {
	Neighbors      int
	MinDist        float64
	Metric         string
	Epochs         int
	Seed           int64
	MinClusterSize int
	MinSamples     int
	ClusterEpsilon float64
}

// DefaultOptions returns the projection and clustering defaults.
func DefaultOptions() Options {
	return Options{
		Neighbors:      15,
		MinDist:        0.1,
		Metric:         MetricCosine,
		Epochs:         200,
		Seed:           42,
		MinClusterSize: 5,
		MinSamples:     5,
		ClusterEpsilon: 0.5,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Neighbors <= 0 {
		o.Neighbors = d.Neighbors
	}
	if o.MinDist < 0 {
		o.MinDist = d.MinDist
	}
	if o.Metric == "" {
		o.Metric = d.Metric
	}
	if o.Epochs <= 0 {
		o.Epochs = d.Epochs
	}
	if o.MinClusterSize < 2 {
		o.MinClusterSize = d.MinClusterSize
	}
	if o.MinSamples <= 0 {
		o.MinSamples = o.MinClusterSize
	}
	return o
}

// Item is one embedded chunk of store content.
type Item struct {
	ID       string
	FileID   string
	Filename string
	Text     string
	Metadata map[string]any
	Vector   []float32
}

// Point is a projected, clustered item.
type Point struct {
	ID          string         `json:"id"`
	X           float64        `json:"x"`
	Y           float64        `json:"y"`
	Z           float64        `json:"z"`
	Filename    string         `json:"filename"`
	FileID      string         `json:"file_id"`
	Cluster     int            `json:"cluster"`
	TextPreview string         `json:"text_preview"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Plot is the renderable result.
type Plot struct {
	Title    string  `json:"title"`
	StoreID  string  `json:"store_id,omitempty"`
	Points   []Point `json:"points"`
	Clusters int     `json:"clusters"`
	Noise    int     `json:"noise"`
}

// Build standardizes, projects and clusters items.
func Build(ctx context.Context, items []Item, opts Options, logger *slog.Logger) (*Plot, error) {
	if len(items) == 0 {
		return nil, ErrEmptyStore
	}
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.withDefaults()

	data, err := toMatrix(items)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	Standardize(data)
	coords, err := Project(ctx, data, opts)
	if err != nil {
		return nil, fmt.Errorf("project embeddings: %w", err)
	}
	logger.Debug("projected embeddings", "points", len(items), "elapsed", time.Since(start))

	labels := Cluster(coords, opts.MinClusterSize, opts.MinSamples, opts.ClusterEpsilon)

	plot := &Plot{Title: DefaultTitle, Points: make([]Point, len(items))}
	seen := map[int]bool{}
	for i, it := range items {
		label := labels[i]
		if label < 0 {
			plot.Noise++
		} else {
			seen[label] = true
		}
		plot.Points[i] = Point{
			ID:          it.ID,
			X:           coords.At(i, 0),
			Y:           coords.At(i, 1),
			Z:           coords.At(i, 2),
			Filename:    it.Filename,
			FileID:      it.FileID,
			Cluster:     label,
			TextPreview: Preview(it.Text),
			Metadata:    it.Metadata,
		}
	}
	plot.Clusters = len(seen)
	return plot, nil
}

// Preview returns the first 100 characters of text followed by "...", or
// "" for empty text.
func Preview(text string) string {
	if text == "" {
		return ""
	}
	if utf8.RuneCountInString(text) > previewChars {
		text = string([]rune(text)[:previewChars])
	}
	return text + "..."
}

// Record publishes plot size metrics.
func (p *Plot) Record(m *observability.Metrics) {
	if p == nil {
		return
	}
	m.SetVisualization(len(p.Points), p.Clusters)
}
