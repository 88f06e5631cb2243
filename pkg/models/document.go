// Package models defines the core data types shared across filesearch packages.
package models

// DocumentMetadata holds information extracted from a local document.
type DocumentMetadata struct {
	// Title is the document title when the format carries one.
	Title string `json:"title,omitempty"`

	// Author is the document author when available.
	Author string `json:"author,omitempty"`

	// Pages is the number of pages for paginated formats such as PDF.
	Pages int `json:"pages,omitempty"`

	// Truncated reports whether the extracted text was cut to a character budget.
	Truncated bool `json:"truncated,omitempty"`

	// Custom holds parser specific fields.
	Custom map[string]any `json:"custom,omitempty"`
}

// Question is an evaluation question tied to the document it was generated from.
// It is the only entity persisted across runs (questions.json).
type Question struct {
	Question string `json:"question"`
	Filename string `json:"filename"`
}

// EvaluationResult holds the retrieval outcome for a single question.
type EvaluationResult struct {
	Question         string   `json:"question"`
	ExpectedFilename string   `json:"expected_filename"`
	RetrievedFiles   []string `json:"retrieved_files"`

	// Rank is the 1-based position of the first match within the top k, 0 when not found.
	Rank int `json:"rank"`

	Recall           float64 `json:"recall"`
	Precision        float64 `json:"precision"`
	ReciprocalRank   float64 `json:"reciprocal_rank"`
	AveragePrecision float64 `json:"average_precision"`

	// Error is set when the search for this question failed; the question then scores zero.
	Error string `json:"error,omitempty"`

	QueryTimeMs int64 `json:"query_time_ms"`
}

// Found reports whether the expected document appeared in the top k.
func (r EvaluationResult) Found() bool {
	return r.Rank > 0
}
