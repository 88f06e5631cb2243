package pdf

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/haasonsaas/filesearch/internal/rag/parser"
	"github.com/haasonsaas/filesearch/pkg/models"
)

func TestRegister(t *testing.T) {
	reg := parser.NewRegistry()
	Register(reg)
	p, err := reg.Lookup("", ".PDF")
	if err != nil || p.Name() != "pdf" {
		t.Fatalf("pdf parser should be registered for .pdf: %v", err)
	}
	if _, err := reg.Lookup("application/pdf", ""); err != nil {
		t.Fatalf("pdf parser should be registered for application/pdf: %v", err)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "ligatures", in: "eﬃcient ﬁle", want: "efficient file"},
		{name: "whitespace", in: "  a   b \t c  ", want: "a b c"},
		{name: "blank lines", in: "one\n\n\n\ntwo\r\nthree", want: "one\n\ntwo\nthree"},
		{name: "control chars", in: "a\x00b\x07c", want: "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalize(tt.in); got != tt.want {
				t.Fatalf("normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseFallsBackToPrintableText(t *testing.T) {
	data := []byte("not a pdf\x00\x01 but Readable text\n")
	res, err := New().Parse(context.Background(), bytes.NewReader(data), &models.DocumentMetadata{Title: "doc"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !strings.Contains(res.Content, "Readable text") {
		t.Fatalf("fallback content = %q", res.Content)
	}
	if res.Metadata.Title != "doc" {
		t.Fatalf("title = %q", res.Metadata.Title)
	}
}

func TestParseEmpty(t *testing.T) {
	res, err := New().Parse(context.Background(), bytes.NewReader(nil), nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if res.Content != "" {
		t.Fatalf("expected empty content, got %q", res.Content)
	}
}

func TestPrintableText(t *testing.T) {
	got := string(printableText([]byte{'a', 0x01, 'b', 0xff, '\n', 'c'}))
	if got != "ab\nc" {
		t.Fatalf("printableText = %q", got)
	}
}
