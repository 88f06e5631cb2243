package eval

import (
	"math"
	"strings"
)

// Scores are the per-question metrics for a single relevant document.
type Scores struct {
	Rank             int
	Recall           float64
	Precision        float64
	ReciprocalRank   float64
	AveragePrecision float64
	NDCG             float64
}

// RankOf returns the 1-based position of expected within the first k
// entries of retrieved, or 0 when absent.
func RankOf(retrieved []string, expected string, k int) int {
	expected = strings.TrimSpace(expected)
	if expected == "" {
		return 0
	}
	for i, name := range retrieved {
		if k > 0 && i >= k {
			break
		}
		if strings.TrimSpace(name) == expected {
			return i + 1
		}
	}
	return 0
}

// Score computes every metric for one question.
func Score(retrieved []string, expected string, k int) Scores {
	rank := RankOf(retrieved, expected, k)
	return Scores{
		Rank:             rank,
		Recall:           RecallAtK(rank),
		Precision:        PrecisionAtK(rank, k),
		ReciprocalRank:   ReciprocalRank(rank),
		AveragePrecision: AveragePrecision(rank),
		NDCG:             NDCG(rank),
	}
}

// RecallAtK is 1 when the relevant document was found.
func RecallAtK(rank int) float64 {
	if rank > 0 {
		return 1
	}
	return 0
}

// PrecisionAtK is 1/k when the relevant document was found.
func PrecisionAtK(rank, k int) float64 {
	if rank <= 0 || k <= 0 {
		return 0
	}
	return 1 / float64(k)
}

// ReciprocalRank is 1/rank when found.
func ReciprocalRank(rank int) float64 {
	if rank <= 0 {
		return 0
	}
	return 1 / float64(rank)
}

// AveragePrecision equals the reciprocal rank when only one document is
// relevant.
func AveragePrecision(rank int) float64 {
	return ReciprocalRank(rank)
}

// NDCG for binary relevance with a single relevant document; the ideal DCG
// is 1.
func NDCG(rank int) float64 {
	if rank <= 0 {
		return 0
	}
	return 1 / math.Log2(float64(rank+1))
}

// topK returns the first k filenames, trimmed. Repeated files keep their
// positions so rank counts every returned result.
func topK(names []string, k int) []string {
	if k > 0 && len(names) > k {
		names = names[:k]
	}
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = strings.TrimSpace(n)
	}
	return out
}
