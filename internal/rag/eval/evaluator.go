package eval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/haasonsaas/filesearch/internal/observability"
	"github.com/haasonsaas/filesearch/pkg/models"
)

// ErrNoQuestions is returned when there is nothing to evaluate.
var ErrNoQuestions = errors.New("no questions to evaluate")

// Evaluator runs one retrieval per question, sequentially.
type Evaluator struct {
	searcher Searcher
	answerer Answerer
	options  Options
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewEvaluator creates an evaluator. answerer may be nil unless opts.Mode is
// ModeLLM.
func NewEvaluator(searcher Searcher, answerer Answerer, opts Options) *Evaluator {
	if opts.K <= 0 {
		opts.K = 5
	}
	if opts.Mode == "" {
		opts.Mode = ModeSearch
	}
	return &Evaluator{
		searcher: searcher,
		answerer: answerer,
		options:  opts,
		logger:   slog.Default(),
	}
}

// WithLogger sets the logger.
func (e *Evaluator) WithLogger(l *slog.Logger) *Evaluator {
	if l != nil {
		e.logger = l
	}
	return e
}

// WithMetrics publishes per-question outcomes and the final scores.
func (e *Evaluator) WithMetrics(m *observability.Metrics) *Evaluator {
	e.metrics = m
	return e
}

// Evaluate scores every question. A failed retrieval is recorded on the
// question and scores zero; only cancellation aborts the run.
func (e *Evaluator) Evaluate(ctx context.Context, qs []models.Question) (*Report, error) {
	if e.options.StoreID == "" {
		return nil, fmt.Errorf("store ID is required for evaluation")
	}
	if len(qs) == 0 {
		return nil, ErrNoQuestions
	}
	switch e.options.Mode {
	case ModeSearch:
		if e.searcher == nil {
			return nil, fmt.Errorf("search mode requires a searcher")
		}
	case ModeLLM:
		if e.answerer == nil {
			return nil, fmt.Errorf("llm mode requires an answerer")
		}
	default:
		return nil, fmt.Errorf("unknown evaluation mode %q", e.options.Mode)
	}

	results := make([]models.EvaluationResult, 0, len(qs))
	ndcg := make([]float64, 0, len(qs))
	for i, q := range qs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, scores := e.evaluateQuestion(ctx, q)
		results = append(results, res)
		ndcg = append(ndcg, scores.NDCG)

		outcome := "missed"
		switch {
		case res.Error != "":
			outcome = "error"
		case res.Found():
			outcome = "found"
		}
		e.metrics.RecordEvaluationQuestion(outcome)
		e.logger.Debug("evaluated question",
			"index", i+1,
			"total", len(qs),
			"outcome", outcome,
			"rank", res.Rank)
	}

	report := &Report{
		GeneratedAt: time.Now().UTC(),
		StoreID:     e.options.StoreID,
		Mode:        e.options.Mode,
		Results:     results,
	}
	if e.options.Mode == ModeLLM {
		report.Model = e.options.Model
	}
	report.Summary = summarize(results, ndcg, e.options.K)
	e.metrics.SetEvaluationScores(report.Summary.RecallAtK, report.Summary.PrecisionAtK, report.Summary.MRR, report.Summary.MAP)
	return report, nil
}

func (e *Evaluator) evaluateQuestion(ctx context.Context, q models.Question) (models.EvaluationResult, Scores) {
	k := e.options.K
	res := models.EvaluationResult{
		Question:         q.Question,
		ExpectedFilename: q.Filename,
		RetrievedFiles:   []string{},
	}

	start := time.Now()
	files, err := e.retrieve(ctx, q.Question)
	res.QueryTimeMs = time.Since(start).Milliseconds()
	if err != nil {
		res.Error = err.Error()
		e.logger.Warn("retrieval failed; scoring question as a miss",
			"question", q.Question,
			"error", err)
		return res, Scores{}
	}

	files = topK(files, k)
	res.RetrievedFiles = files
	scores := Score(files, q.Filename, k)
	res.Rank = scores.Rank
	res.Recall = scores.Recall
	res.Precision = scores.Precision
	res.ReciprocalRank = scores.ReciprocalRank
	res.AveragePrecision = scores.AveragePrecision

	if !res.Found() {
		first := ""
		if len(files) > 0 {
			first = files[0]
		}
		e.logger.Info("expected file not retrieved",
			"question", q.Question,
			"expected", q.Filename,
			"top_file", first)
	}
	return res, scores
}

// retrieve returns the filenames of the results for query, in rank order.
func (e *Evaluator) retrieve(ctx context.Context, query string) ([]string, error) {
	k := e.options.K
	switch e.options.Mode {
	case ModeLLM:
		answer, err := e.answerer.AnswerWithSearch(ctx, e.options.StoreID, query, e.options.Model, k)
		if err != nil {
			return nil, err
		}
		return answer.FilesUsed, nil
	default:
		results, err := e.searcher.Search(ctx, e.options.StoreID, query, k)
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(results))
		for _, r := range results {
			names = append(names, r.Filename)
		}
		return names, nil
	}
}
