package parser

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/haasonsaas/filesearch/pkg/models"
)

type fakeParser struct {
	name       string
	types      []string
	extensions []string
	parseFunc  func(ctx context.Context, reader io.Reader, docMeta *models.DocumentMetadata) (*ParseResult, error)
}

func (m *fakeParser) Name() string         { return m.name }
func (m *fakeParser) MIMETypes() []string  { return m.types }
func (m *fakeParser) Extensions() []string { return m.extensions }

func (m *fakeParser) Parse(ctx context.Context, reader io.Reader, docMeta *models.DocumentMetadata) (*ParseResult, error) {
	if m.parseFunc != nil {
		return m.parseFunc(ctx, reader, docMeta)
	}
	return &ParseResult{Content: "mock content"}, nil
}

func TestRegistryLookupNormalizesKeys(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeParser{
		name:       "pdf",
		types:      []string{"APPLICATION/PDF"},
		extensions: []string{".PDF"},
	})

	tests := []struct {
		contentType, ext string
		found            bool
	}{
		{contentType: "application/pdf", found: true},
		{contentType: "application/pdf; charset=binary", found: true},
		{ext: "pdf", found: true},
		{ext: ".Pdf", found: true},
		{ext: ".txt"},
	}
	for _, tt := range tests {
		p, err := r.Lookup(tt.contentType, tt.ext)
		if tt.found && (err != nil || p.Name() != "pdf") {
			t.Errorf("Lookup(%q, %q) = %v, %v", tt.contentType, tt.ext, p, err)
		}
		if !tt.found && err == nil {
			t.Errorf("Lookup(%q, %q) should fail", tt.contentType, tt.ext)
		}
	}
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeParser{name: "pdf", types: []string{"application/pdf"}, extensions: []string{".pdf"}})
	r.Register(&fakeParser{name: "text", types: []string{"text/plain"}, extensions: []string{".txt"}})

	tests := []struct {
		name        string
		contentType string
		ext         string
		wantName    string
		wantErr     bool
	}{
		{name: "match by content type", contentType: "application/pdf", wantName: "pdf"},
		{name: "match by extension", ext: ".pdf", wantName: "pdf"},
		{name: "content type takes precedence", contentType: "application/pdf", ext: ".txt", wantName: "pdf"},
		{name: "fallback to extension", contentType: "unknown/type", ext: ".txt", wantName: "text"},
		{name: "no match", contentType: "unknown/type", ext: ".docx", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := r.Lookup(tt.contentType, tt.ext)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Lookup() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !strings.Contains(err.Error(), "no parser found") {
					t.Errorf("unexpected error %v", err)
				}
				return
			}
			if p.Name() != tt.wantName {
				t.Errorf("Lookup() = %q, want %q", p.Name(), tt.wantName)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		max       int
		want      string
		truncated bool
	}{
		{name: "no limit", in: "abcdef", max: 0, want: "abcdef"},
		{name: "under limit", in: "abc", max: 5, want: "abc"},
		{name: "exact", in: "abcde", max: 5, want: "abcde"},
		{name: "cut", in: "abcdef", max: 4, want: "abcd", truncated: true},
		{name: "multibyte", in: "héllo wörld", max: 7, want: "héllo w", truncated: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, truncated := Truncate(tt.in, tt.max)
			if got != tt.want || truncated != tt.truncated {
				t.Fatalf("Truncate(%q, %d) = %q, %v; want %q, %v", tt.in, tt.max, got, truncated, tt.want, tt.truncated)
			}
		})
	}
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.pdf")
	if err := os.WriteFile(path, []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewRegistry()
	r.Register(&fakeParser{
		name:       "pdf",
		extensions: []string{".pdf"},
		parseFunc: func(ctx context.Context, reader io.Reader, meta *models.DocumentMetadata) (*ParseResult, error) {
			return &ParseResult{Content: "  0123456789  ", Metadata: MergeMeta(meta, &models.DocumentMetadata{Pages: 2})}, nil
		},
	})

	res, err := r.ParseFile(context.Background(), path, 4)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if res.Content != "0123" || !res.Metadata.Truncated {
		t.Fatalf("unexpected result %q truncated=%v", res.Content, res.Metadata.Truncated)
	}
	if res.Metadata.Title != "report" || res.Metadata.Pages != 2 {
		t.Fatalf("unexpected metadata %+v", res.Metadata)
	}
}

func TestParseFileEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scan.pdf")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	r := NewRegistry()
	r.Register(&fakeParser{
		name:       "pdf",
		extensions: []string{".pdf"},
		parseFunc: func(context.Context, io.Reader, *models.DocumentMetadata) (*ParseResult, error) {
			return &ParseResult{Content: " \n\t "}, nil
		},
	})
	if _, err := r.ParseFile(context.Background(), path, 100); !errors.Is(err, ErrNoText) {
		t.Fatalf("expected ErrNoText, got %v", err)
	}
}

func TestMergeMeta(t *testing.T) {
	base := &models.DocumentMetadata{Title: "Base", Custom: map[string]any{"a": 1}}
	extracted := &models.DocumentMetadata{Title: "Extracted", Author: "Author", Pages: 3, Custom: map[string]any{"a": 9, "b": 2}}

	got := MergeMeta(base, extracted)
	if got.Title != "Base" || got.Author != "Author" || got.Pages != 3 {
		t.Fatalf("unexpected merge %+v", got)
	}
	if got.Custom["a"] != 1 || got.Custom["b"] != 2 {
		t.Fatalf("unexpected custom %v", got.Custom)
	}
	if base.Author != "" || base.Custom["b"] != nil {
		t.Fatalf("base modified: %+v", base)
	}
	if MergeMeta(nil, nil) == nil {
		t.Fatal("nil inputs should produce empty metadata")
	}
}
