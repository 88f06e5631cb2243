// Package pdf extracts plain text from PDF documents.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/haasonsaas/filesearch/internal/rag/parser"
	"github.com/haasonsaas/filesearch/pkg/models"
	"github.com/ledongthuc/pdf"
	"golang.org/x/text/unicode/norm"
)

// Parser parses PDF documents page by page.
type Parser struct{}

func New() *Parser { return &Parser{} }

// Register adds the PDF parser to r.
func Register(r *parser.Registry) {
	r.Register(New())
}

func (p *Parser) Name() string         { return "pdf" }
func (p *Parser) Extensions() []string { return []string{".pdf"} }
func (p *Parser) MIMETypes() []string  { return []string{"application/pdf", "application/x-pdf"} }

// Parse extracts the text of every page. Documents the PDF reader cannot
// decode fall back to their printable bytes.
func (p *Parser) Parse(ctx context.Context, reader io.Reader, docMeta *models.DocumentMetadata) (*parser.ParseResult, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return &parser.ParseResult{Metadata: parser.MergeMeta(docMeta, nil)}, nil
	}

	pages, extracted, err := extractPages(ctx, data)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		pages = nil
	}

	var content strings.Builder
	var spans []parser.Page
	for i, page := range pages {
		page = normalize(page)
		if page == "" {
			continue
		}
		if content.Len() > 0 {
			content.WriteString("\n\n")
		}
		start := content.Len()
		content.WriteString(page)
		spans = append(spans, parser.Page{Number: i + 1, Text: page, Start: start, End: content.Len()})
	}

	text := content.String()
	if text == "" {
		text = normalize(string(printableText(data)))
		spans = nil
	}

	if extracted == nil {
		extracted = &models.DocumentMetadata{}
	}
	extracted.Pages = len(pages)
	return &parser.ParseResult{
		Content:  text,
		Metadata: parser.MergeMeta(docMeta, extracted),
		Pages:    spans,
	}, nil
}

// extractPages returns the plain text of each page. The PDF library panics
// on some malformed inputs; those are reported as errors.
func extractPages(ctx context.Context, data []byte) (pages []string, meta *models.DocumentMetadata, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages, meta, err = nil, nil, fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, nil, err
	}

	meta = &models.DocumentMetadata{}
	info := r.Trailer().Key("Info")
	if !info.IsNull() {
		meta.Title = strings.TrimSpace(info.Key("Title").Text())
		meta.Author = strings.TrimSpace(info.Key("Author").Text())
	}

	n := r.NumPage()
	pages = make([]string, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			pages = append(pages, "")
			continue
		}
		pages = append(pages, text)
	}
	return pages, meta, nil
}

// normalize folds ligatures and compatibility forms (NFKC), drops control
// characters and collapses runs of blank lines.
func normalize(s string) string {
	s = norm.NFKC.String(s)
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case r == '\r':
			return '\n'
		case unicode.IsControl(r), r == utf8.RuneError:
			return -1
		default:
			return r
		}
	}, s)

	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// printableText keeps printable runes of data, used when the document cannot
// be decoded as a PDF.
func printableText(in []byte) []byte {
	var out bytes.Buffer
	for len(in) > 0 {
		r, size := utf8.DecodeRune(in)
		if r == utf8.RuneError && size == 1 {
			if b := in[0]; b == '\n' || b == '\t' || (b >= 32 && b < 127) {
				out.WriteByte(b)
			}
			in = in[1:]
			continue
		}
		in = in[size:]
		if r == '\n' || r == '\t' || unicode.IsPrint(r) {
			out.WriteRune(r)
		}
	}
	return out.Bytes()
}
