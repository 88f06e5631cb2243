// Package chunker splits document text into overlapping pieces sized for
// embedding.
package chunker

import "unicode/utf8"

// Config sizes are in bytes.
type Config struct {
	Size    int `yaml:"chunk_size"`
	Overlap int `yaml:"chunk_overlap"`
	// MinSize drops trimmed chunks shorter than this. A part that would
	// lose every chunk is kept whole instead.
	MinSize int `yaml:"min_chunk_size"`
}

func DefaultConfig() Config {
	return Config{Size: 1000, Overlap: 200, MinSize: 100}
}

// Chunk is a whitespace-trimmed slice of the input. Start and End are byte
// offsets into the part it came from.
type Chunk struct {
	Index  int
	Part   int
	Text   string
	Start  int
	End    int
	Tokens int
}

type Chunker interface {
	Split(text string) []Chunk
	// SplitParts splits each part on its own and numbers the chunks
	// across all parts.
	SplitParts(parts []string) []Chunk
}

// EstimateTokens approximates the token count at four runes per token.
func EstimateTokens(text string) int {
	return (utf8.RuneCountInString(text) + 3) / 4
}
