// Package eval measures retrieval quality of a vector store against
// generated questions whose source document is known.
//
// Every question has exactly one relevant document. Recall@k is 1 when the
// document is in the top k, precision@k is 1/k when found, and average
// precision equals the reciprocal rank. Questions whose search fails score
// zero and still count in every mean.
package eval

import (
	"context"
	"fmt"
	"strings"

	"github.com/haasonsaas/filesearch/pkg/models"
)

// Mode selects how documents are retrieved for a question.
type Mode string

const (
	// ModeSearch ranks files by raw similarity search.
	ModeSearch Mode = "search"
	// ModeLLM ranks files by the citations of a search-augmented answer.
	ModeLLM Mode = "llm"
)

// ParseMode validates a mode name. Empty means ModeSearch.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeSearch:
		return ModeSearch, nil
	case ModeLLM:
		return ModeLLM, nil
	default:
		return "", fmt.Errorf("unknown evaluation mode %q (want search or llm)", s)
	}
}

// Searcher runs a similarity search.
type Searcher interface {
	Search(ctx context.Context, storeID, query string, k int) ([]models.SearchResult, error)
}

// Answerer runs a search-augmented generation request.
type Answerer interface {
	AnswerWithSearch(ctx context.Context, storeID, query, model string, k int) (*models.Answer, error)
}

// Options controls evaluation behavior.
type Options struct {
	StoreID string
	K       int
	Mode    Mode
	// Model is the answering model in ModeLLM.
	Model string
}
