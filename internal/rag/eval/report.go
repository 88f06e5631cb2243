package eval

import (
	"fmt"
	"io"
	"time"

	"github.com/haasonsaas/filesearch/pkg/models"
)

// Report captures evaluation results and aggregated metrics.
type Report struct {
	GeneratedAt time.Time                 `json:"generated_at"`
	StoreID     string                    `json:"store_id"`
	Mode        Mode                      `json:"mode"`
	Model       string                    `json:"model,omitempty"`
	Summary     Summary                   `json:"summary"`
	Results     []models.EvaluationResult `json:"results"`
}

// Summary aggregates metrics across all questions.
type Summary struct {
	TotalQuestions int     `json:"total_questions"`
	K              int     `json:"k"`
	RecallAtK      float64 `json:"recall_at_k"`
	PrecisionAtK   float64 `json:"precision_at_k"`
	MRR            float64 `json:"mrr"`
	MAP            float64 `json:"map"`
	NDCG           float64 `json:"ndcg"`
	Found          int     `json:"found"`
	Missed         int     `json:"missed"`
	Errors         int     `json:"errors"`
	AvgQueryTimeMs float64 `json:"avg_query_time_ms"`
}

// summarize averages over every result, so failed and unmatched questions
// pull the means down instead of being excluded.
func summarize(results []models.EvaluationResult, ndcg []float64, k int) Summary {
	s := Summary{TotalQuestions: len(results), K: k}
	if len(results) == 0 {
		return s
	}
	var queryMs float64
	for i, r := range results {
		s.RecallAtK += r.Recall
		s.PrecisionAtK += r.Precision
		s.MRR += r.ReciprocalRank
		s.MAP += r.AveragePrecision
		if i < len(ndcg) {
			s.NDCG += ndcg[i]
		}
		queryMs += float64(r.QueryTimeMs)
		switch {
		case r.Error != "":
			s.Errors++
		case r.Found():
			s.Found++
		default:
			s.Missed++
		}
	}
	count := float64(len(results))
	s.RecallAtK /= count
	s.PrecisionAtK /= count
	s.MRR /= count
	s.MAP /= count
	s.NDCG /= count
	s.AvgQueryTimeMs = queryMs / count
	return s
}

// WriteText prints the summary for humans.
func (r *Report) WriteText(w io.Writer) {
	s := r.Summary
	fmt.Fprintf(w, "Retrieval Evaluation (%s mode, store %s)\n", r.Mode, r.StoreID)
	fmt.Fprintf(w, "Questions: %d (found %d, missed %d, errors %d)\n", s.TotalQuestions, s.Found, s.Missed, s.Errors)
	fmt.Fprintf(w, "Recall@%d: %.4f\n", s.K, s.RecallAtK)
	fmt.Fprintf(w, "Precision@%d: %.4f\n", s.K, s.PrecisionAtK)
	fmt.Fprintf(w, "MRR: %.4f\n", s.MRR)
	fmt.Fprintf(w, "MAP: %.4f\n", s.MAP)
	fmt.Fprintf(w, "NDCG: %.4f\n", s.NDCG)
}
