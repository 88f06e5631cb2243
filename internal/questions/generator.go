// Package questions generates evaluation questions from PDFs with a chat
// model and persists them as questions.json.
package questions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/haasonsaas/filesearch/internal/observability"
	"github.com/haasonsaas/filesearch/internal/rag/parser"
	"github.com/haasonsaas/filesearch/internal/upload"
	"github.com/haasonsaas/filesearch/pkg/models"
)

// Defaults for a Generator.
const (
	DefaultModel       = "gpt-4o"
	DefaultPerDocument = 1
	DefaultMaxChars    = 100000
)

// Completer sends a single prompt to a chat model.
type Completer interface {
	Complete(ctx context.Context, model, prompt string) (string, error)
}

// Skipped is a document that produced no questions.
type Skipped struct {
	Filename string `json:"filename"`
	Reason   string `json:"reason"`
}

// Result is the outcome of generating questions for a directory.
type Result struct {
	Questions []models.Question `json:"questions"`
	Skipped   []Skipped         `json:"skipped,omitempty"`
}

// Generator asks a model for questions answerable only from one document.
type Generator struct {
	completer   Completer
	registry    *parser.Registry
	model       string
	perDocument int
	maxChars    int
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// Option configures a Generator.
type Option func(*Generator)

// WithModel sets the chat model.
func WithModel(model string) Option {
	return func(g *Generator) {
		if model != "" {
			g.model = model
		}
	}
}

// WithPerDocument sets the number of questions requested per document.
func WithPerDocument(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.perDocument = n
		}
	}
}

// WithMaxChars sets the character budget for extracted text.
func WithMaxChars(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxChars = n
		}
	}
}

// WithRegistry sets the parser registry. Without it no format is supported
// and every document is skipped.
func WithRegistry(r *parser.Registry) Option {
	return func(g *Generator) {
		if r != nil {
			g.registry = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithMetrics counts generated questions and skipped documents.
func WithMetrics(m *observability.Metrics) Option {
	return func(g *Generator) { g.metrics = m }
}

// NewGenerator creates a question generator.
func NewGenerator(completer Completer, opts ...Option) *Generator {
	g := &Generator{
		completer:   completer,
		registry:    parser.NewRegistry(),
		model:       DefaultModel,
		perDocument: DefaultPerDocument,
		maxChars:    DefaultMaxChars,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// GenerateForDir generates questions for every PDF in dir, in filename order.
// Documents without extractable text are skipped with a warning.
func (g *Generator) GenerateForDir(ctx context.Context, dir string) (*Result, error) {
	paths, err := upload.FindPDFs(dir)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w in %s", upload.ErrNoPDFs, dir)
	}
	return g.GenerateForFiles(ctx, paths)
}

// GenerateForFiles generates questions for each path. A document that fails
// extraction or generation is skipped; only cancellation stops the batch.
func (g *Generator) GenerateForFiles(ctx context.Context, paths []string) (*Result, error) {
	res := &Result{Questions: []models.Question{}}
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		qs, err := g.GenerateForFile(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			name := filepath.Base(path)
			if errors.Is(err, parser.ErrNoText) {
				g.metrics.RecordExtractionFailure()
			}
			g.logger.Warn("skipping document", "filename", name, "error", err)
			res.Skipped = append(res.Skipped, Skipped{Filename: name, Reason: err.Error()})
			continue
		}
		res.Questions = append(res.Questions, qs...)
	}
	return res, nil
}

// GenerateForFile extracts the document text, truncated to the character
// budget, and requests exactly the configured number of questions.
func (g *Generator) GenerateForFile(ctx context.Context, path string) ([]models.Question, error) {
	doc, err := g.registry.ParseFile(ctx, path, g.maxChars)
	if err != nil {
		return nil, err
	}
	name := filepath.Base(path)
	if doc.Metadata != nil && doc.Metadata.Truncated {
		g.logger.Debug("document text truncated", "filename", name, "max_chars", g.maxChars)
	}

	reply, err := g.completer.Complete(ctx, g.model, buildPrompt(doc.Content, g.perDocument))
	if err != nil {
		return nil, fmt.Errorf("generate questions for %s: %w", name, err)
	}
	texts := parseQuestions(reply, g.perDocument)
	if len(texts) == 0 {
		return nil, fmt.Errorf("generate questions for %s: model returned no questions", name)
	}
	if len(texts) < g.perDocument {
		g.logger.Warn("model returned fewer questions than requested",
			"filename", name,
			"requested", g.perDocument,
			"returned", len(texts))
	}

	out := make([]models.Question, 0, len(texts))
	for _, q := range texts {
		out = append(out, models.Question{Question: q, Filename: name})
	}
	g.metrics.RecordQuestions(len(out))
	g.logger.Info("generated questions", "filename", name, "count", len(out))
	return out, nil
}

func buildPrompt(text string, n int) string {
	if n <= 1 {
		return "Can you generate a question that can only be answered from this document?:\n" + text + "\n\n"
	}
	return fmt.Sprintf("Can you generate %d different questions that can only be answered from this document? "+
		"Reply with a numbered list, one question per line, and nothing else:\n%s\n\n", n, text)
}

var listMarker = regexp.MustCompile(`^\s*(?:\d+[.):]|[-*•]|Q\d*[.:)])\s*`)

// parseQuestions extracts at most n questions from a model reply. A single
// question may span the whole reply; lists are split by line.
func parseQuestions(reply string, n int) []string {
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return nil
	}
	if n <= 1 {
		lines := nonEmptyLines(reply)
		if len(lines) > 1 {
			for _, l := range lines {
				if strings.HasSuffix(l, "?") {
					return []string{l}
				}
			}
		}
		return []string{strings.TrimSpace(listMarker.ReplaceAllString(reply, ""))}
	}

	// Prefer list items and question lines over any preamble.
	var items, all []string
	for _, line := range strings.Split(reply, "\n") {
		marked := listMarker.MatchString(line)
		line = cleanLine(line)
		if line == "" {
			continue
		}
		all = append(all, line)
		if marked || strings.HasSuffix(line, "?") {
			items = append(items, line)
		}
	}
	if len(items) == 0 {
		items = all
	}
	if len(items) > n {
		items = items[:n]
	}
	return items
}

func nonEmptyLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line = cleanLine(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func cleanLine(line string) string {
	line = strings.TrimSpace(listMarker.ReplaceAllString(line, ""))
	return strings.TrimSpace(strings.Trim(line, `"`))
}
