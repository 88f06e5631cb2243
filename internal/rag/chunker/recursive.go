package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultSeparators go from the largest unit to the smallest. Text with
// none of them is cut at rune boundaries.
var DefaultSeparators = []string{"\n\n", "\n", ". ", "? ", "! ", "; ", ": ", ", ", " "}

// Recursive splits on the largest separator present, recursing into pieces
// that are still too long, then packs the pieces into windows of at most
// Size bytes. Consecutive windows share up to Overlap bytes, starting at a
// word boundary when one exists.
type Recursive struct {
	cfg        Config
	separators []string
}

var _ Chunker = (*Recursive)(nil)

func NewRecursive(cfg Config, separators ...string) *Recursive {
	def := DefaultConfig()
	if cfg.Size <= 0 {
		cfg.Size = def.Size
	}
	if cfg.Overlap < 0 {
		cfg.Overlap = 0
	}
	if cfg.Overlap >= cfg.Size {
		cfg.Overlap = cfg.Size / 5
	}
	if cfg.MinSize < 0 {
		cfg.MinSize = 0
	}
	if cfg.MinSize > cfg.Size {
		cfg.MinSize = cfg.Size / 2
	}
	if len(separators) == 0 {
		separators = DefaultSeparators
	}
	return &Recursive{cfg: cfg, separators: separators}
}

type span struct{ start, end int }

func (r *Recursive) Split(text string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var chunks []Chunk
	for _, w := range r.pack(text, r.pieces(text, 0, r.separators)) {
		if c, ok := trimmed(text, w); ok && len(c.Text) >= r.cfg.MinSize {
			chunks = append(chunks, c)
		}
	}
	if len(chunks) == 0 {
		c, _ := trimmed(text, span{0, len(text)})
		chunks = []Chunk{c}
	}
	for i := range chunks {
		chunks[i].Index = i
		chunks[i].Tokens = EstimateTokens(chunks[i].Text)
	}
	return chunks
}

func (r *Recursive) SplitParts(parts []string) []Chunk {
	var out []Chunk
	for p, text := range parts {
		for _, c := range r.Split(text) {
			c.Part = p
			c.Index = len(out)
			out = append(out, c)
		}
	}
	return out
}

// pieces cuts text into spans no longer than Size. Separators stay attached
// to the piece they end.
func (r *Recursive) pieces(text string, base int, seps []string) []span {
	if len(text) <= r.cfg.Size {
		return []span{{base, base + len(text)}}
	}
	sep, rest := "", []string(nil)
	for i, s := range seps {
		if s != "" && strings.Contains(text, s) {
			sep, rest = s, seps[i+1:]
			break
		}
	}
	if sep == "" {
		return hardSplit(text, base, r.cfg.Size)
	}

	var out []span
	for off := 0; off < len(text); {
		end := len(text)
		if n := strings.Index(text[off:], sep); n >= 0 {
			end = off + n + len(sep)
		}
		if end-off > r.cfg.Size {
			out = append(out, r.pieces(text[off:end], base+off, rest)...)
		} else {
			out = append(out, span{base + off, base + end})
		}
		off = end
	}
	return out
}

func hardSplit(text string, base, size int) []span {
	var out []span
	for start := 0; start < len(text); {
		end := start + size
		if end >= len(text) {
			end = len(text)
		} else {
			for end > start+1 && !utf8.RuneStart(text[end]) {
				end--
			}
		}
		out = append(out, span{base + start, base + end})
		start = end
	}
	return out
}

// pack merges contiguous pieces into windows.
func (r *Recursive) pack(text string, pieces []span) []span {
	if len(pieces) == 0 {
		return nil
	}
	var out []span
	cur := pieces[0]
	for _, p := range pieces[1:] {
		if p.end-cur.start <= r.cfg.Size {
			cur.end = p.end
			continue
		}
		out = append(out, cur)
		cur = span{r.overlapStart(text, cur, p), p.end}
	}
	return append(out, cur)
}

// overlapStart picks where the window holding next begins so that it
// repeats the tail of prev without exceeding Size.
func (r *Recursive) overlapStart(text string, prev, next span) int {
	start := max(prev.end-r.cfg.Overlap, prev.start, next.end-r.cfg.Size)
	if start >= next.start {
		return next.start
	}
	if i := strings.IndexFunc(text[start:next.start], unicode.IsSpace); i >= 0 {
		_, size := utf8.DecodeRuneInString(text[start+i:])
		return start + i + size
	}
	for start < next.start && !utf8.RuneStart(text[start]) {
		start++
	}
	return start
}

func trimmed(text string, w span) (Chunk, bool) {
	raw := text[w.start:w.end]
	lead := len(raw) - len(strings.TrimLeftFunc(raw, unicode.IsSpace))
	body := strings.TrimRightFunc(raw[lead:], unicode.IsSpace)
	if body == "" {
		return Chunk{}, false
	}
	start := w.start + lead
	return Chunk{Text: body, Start: start, End: start + len(body)}, true
}
