// Package parser extracts plain text from local documents. Format packages
// (see parser/pdf) register into a Registry.
package parser

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/haasonsaas/filesearch/pkg/models"
)

// ErrNoText is returned when a document yields no extractable text, for
// example a scanned PDF without a text layer.
var ErrNoText = errors.New("no text extracted")

// Parser turns one document format into text.
type Parser interface {
	Name() string
	// Extensions lists file extensions with the leading dot.
	Extensions() []string
	MIMETypes() []string
	// Parse reads the document. Metadata found in it is merged into meta
	// without overwriting fields already set.
	Parse(ctx context.Context, r io.Reader, meta *models.DocumentMetadata) (*ParseResult, error)
}

type ParseResult struct {
	Content  string
	Metadata *models.DocumentMetadata
	// Pages holds the text of each non-empty page for paginated formats.
	Pages []Page
}

// Page is a span of Content. Start and End are byte offsets.
type Page struct {
	Number int
	Text   string
	Start  int
	End    int
}

// Registry maps extensions and MIME types to parsers.
type Registry struct {
	mu    sync.RWMutex
	byKey map[string]Parser
}

func NewRegistry() *Registry {
	return &Registry{byKey: make(map[string]Parser)}
}

func extKey(ext string) string {
	return "." + strings.ToLower(strings.TrimPrefix(ext, "."))
}

func mimeKey(contentType string) string {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		return mt
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

// Register installs p for its extensions and MIME types. A later
// registration for the same key replaces the earlier one.
func (r *Registry) Register(p Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ext := range p.Extensions() {
		r.byKey[extKey(ext)] = p
	}
	for _, mt := range p.MIMETypes() {
		r.byKey[mimeKey(mt)] = p
	}
}

// Lookup finds a parser by content type first, then by extension.
func (r *Registry) Lookup(contentType, ext string) (Parser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if contentType != "" {
		if p, ok := r.byKey[mimeKey(contentType)]; ok {
			return p, nil
		}
	}
	if ext != "" {
		if p, ok := r.byKey[extKey(ext)]; ok {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no parser found for content type %q, extension %q", contentType, ext)
}

// ParseFile parses the file at path and truncates its content to maxChars
// runes (0 means no limit). The title defaults to the file's base name.
func (r *Registry) ParseFile(ctx context.Context, path string, maxChars int) (*ParseResult, error) {
	name := filepath.Base(path)
	p, err := r.Lookup("", filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	meta := &models.DocumentMetadata{Title: strings.TrimSuffix(name, filepath.Ext(name))}
	res, err := p.Parse(ctx, f, meta)
	if err != nil {
		return nil, fmt.Errorf("%s: parse %s: %w", p.Name(), name, err)
	}
	if res.Metadata == nil {
		res.Metadata = meta
	}
	if res.Content = strings.TrimSpace(res.Content); res.Content == "" {
		return nil, fmt.Errorf("%s: %w", name, ErrNoText)
	}
	res.Content, res.Metadata.Truncated = Truncate(res.Content, maxChars)
	return res, nil
}

// Truncate cuts s to at most maxChars runes and reports whether it cut.
// maxChars <= 0 disables the limit.
func Truncate(s string, maxChars int) (string, bool) {
	if maxChars <= 0 || utf8.RuneCountInString(s) <= maxChars {
		return s, false
	}
	n := 0
	for i := range s {
		if n == maxChars {
			return s[:i], true
		}
		n++
	}
	return s, false
}

// MergeMeta returns base with its empty fields filled from extracted.
// Neither argument is modified.
func MergeMeta(base, extracted *models.DocumentMetadata) *models.DocumentMetadata {
	out := models.DocumentMetadata{}
	if base != nil {
		out = *base
	}
	if extracted == nil {
		return &out
	}
	out.Title = cmp.Or(out.Title, extracted.Title)
	out.Author = cmp.Or(out.Author, extracted.Author)
	if out.Pages == 0 {
		out.Pages = extracted.Pages
	}
	if len(extracted.Custom) > 0 {
		custom := make(map[string]any, len(out.Custom)+len(extracted.Custom))
		for k, v := range extracted.Custom {
			custom[k] = v
		}
		for k, v := range out.Custom {
			custom[k] = v
		}
		out.Custom = custom
	}
	return &out
}
