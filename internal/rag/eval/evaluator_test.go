package eval

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/haasonsaas/filesearch/pkg/models"
)

type fakeSearcher struct {
	results map[string][]models.SearchResult
	errs    map[string]error
	calls   int
}

func (f *fakeSearcher) Search(_ context.Context, _ string, query string, _ int) ([]models.SearchResult, error) {
	f.calls++
	if err := f.errs[query]; err != nil {
		return nil, err
	}
	return f.results[query], nil
}

type fakeAnswerer struct {
	files map[string][]string
}

func (f *fakeAnswerer) AnswerWithSearch(_ context.Context, _ string, query, model string, _ int) (*models.Answer, error) {
	return &models.Answer{Query: query, Model: model, FilesUsed: f.files[query]}, nil
}

func hits(names ...string) []models.SearchResult {
	out := make([]models.SearchResult, 0, len(names))
	for _, n := range names {
		out = append(out, models.SearchResult{Filename: n})
	}
	return out
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestEvaluateAllFirst(t *testing.T) {
	s := &fakeSearcher{results: map[string][]models.SearchResult{
		"q1": hits("a.pdf", "b.pdf"),
		"q2": hits("b.pdf", "a.pdf"),
	}}
	qs := []models.Question{{Question: "q1", Filename: "a.pdf"}, {Question: "q2", Filename: "b.pdf"}}
	report, err := NewEvaluator(s, nil, Options{StoreID: "vs_1", K: 5}).Evaluate(context.Background(), qs)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	sum := report.Summary
	if !near(sum.MRR, 1) || !near(sum.RecallAtK, 1) || !near(sum.MAP, 1) {
		t.Errorf("summary = %+v", sum)
	}
	if !near(sum.PrecisionAtK, 0.2) {
		t.Errorf("precision = %v", sum.PrecisionAtK)
	}
	if sum.Found != 2 || sum.TotalQuestions != 2 {
		t.Errorf("counts = %+v", sum)
	}
}

func TestEvaluateNoneFound(t *testing.T) {
	s := &fakeSearcher{results: map[string][]models.SearchResult{"q1": hits("x.pdf")}}
	qs := []models.Question{{Question: "q1", Filename: "a.pdf"}, {Question: "q2", Filename: "b.pdf"}}
	report, err := NewEvaluator(s, nil, Options{StoreID: "vs_1", K: 3}).Evaluate(context.Background(), qs)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	sum := report.Summary
	if sum.RecallAtK != 0 || sum.PrecisionAtK != 0 || sum.MRR != 0 || sum.MAP != 0 {
		t.Errorf("summary = %+v", sum)
	}
	if sum.Missed != 2 {
		t.Errorf("missed = %d", sum.Missed)
	}
}

func TestEvaluateErrorsCountInDenominator(t *testing.T) {
	s := &fakeSearcher{
		results: map[string][]models.SearchResult{"q1": hits("a.pdf")},
		errs:    map[string]error{"q2": errors.New("boom")},
	}
	qs := []models.Question{{Question: "q1", Filename: "a.pdf"}, {Question: "q2", Filename: "b.pdf"}}
	report, err := NewEvaluator(s, nil, Options{StoreID: "vs_1", K: 1}).Evaluate(context.Background(), qs)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	sum := report.Summary
	if !near(sum.RecallAtK, 0.5) || !near(sum.MRR, 0.5) {
		t.Errorf("summary = %+v", sum)
	}
	if sum.Errors != 1 || sum.Found != 1 {
		t.Errorf("counts = %+v", sum)
	}
	if report.Results[1].Error != "boom" {
		t.Errorf("error not recorded: %+v", report.Results[1])
	}
	if sum.RecallAtK < 0 || sum.RecallAtK > 1 {
		t.Errorf("recall out of range: %v", sum.RecallAtK)
	}
}

func TestEvaluateCountsRepeatedFiles(t *testing.T) {
	tests := []struct {
		name     string
		k        int
		wantRank int
		wantRR   float64
	}{
		{name: "found after repeat", k: 3, wantRank: 3, wantRR: 1.0 / 3},
		{name: "pushed past k by repeat", k: 2, wantRank: 0, wantRR: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &fakeSearcher{results: map[string][]models.SearchResult{
				"q1": hits("a.pdf", "a.pdf", "b.pdf"),
			}}
			qs := []models.Question{{Question: "q1", Filename: "b.pdf"}}
			report, err := NewEvaluator(s, nil, Options{StoreID: "vs_1", K: tt.k}).Evaluate(context.Background(), qs)
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			got := report.Results[0]
			if got.Rank != tt.wantRank || !near(got.ReciprocalRank, tt.wantRR) {
				t.Errorf("rank = %d rr = %v, want %d and %v", got.Rank, got.ReciprocalRank, tt.wantRank, tt.wantRR)
			}
			if len(got.RetrievedFiles) != tt.k {
				t.Errorf("retrieved = %v, want %d entries", got.RetrievedFiles, tt.k)
			}
		})
	}
}

func TestEvaluateLLMCitationsCutToK(t *testing.T) {
	a := &fakeAnswerer{files: map[string][]string{"q1": {"x.pdf", "y.pdf", "z.pdf"}}}
	qs := []models.Question{{Question: "q1", Filename: "z.pdf"}}
	report, err := NewEvaluator(nil, a, Options{StoreID: "vs_1", K: 2, Mode: ModeLLM}).
		Evaluate(context.Background(), qs)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if report.Results[0].Found() {
		t.Errorf("citation beyond k counted as found: %+v", report.Results[0])
	}
}

func TestEvaluateLLMMode(t *testing.T) {
	a := &fakeAnswerer{files: map[string][]string{"q1": {"b.pdf", "a.pdf"}}}
	qs := []models.Question{{Question: "q1", Filename: "a.pdf"}}
	report, err := NewEvaluator(nil, a, Options{StoreID: "vs_1", K: 5, Mode: ModeLLM, Model: "gpt-4o"}).
		Evaluate(context.Background(), qs)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if report.Model != "gpt-4o" || report.Results[0].Rank != 2 {
		t.Errorf("report = %+v", report)
	}
}

func TestEvaluateValidation(t *testing.T) {
	s := &fakeSearcher{}
	if _, err := NewEvaluator(s, nil, Options{K: 5}).Evaluate(context.Background(), []models.Question{{Question: "q"}}); err == nil {
		t.Error("expected error without store ID")
	}
	if _, err := NewEvaluator(s, nil, Options{StoreID: "vs"}).Evaluate(context.Background(), nil); !errors.Is(err, ErrNoQuestions) {
		t.Errorf("err = %v, want ErrNoQuestions", err)
	}
	if _, err := NewEvaluator(s, nil, Options{StoreID: "vs", Mode: ModeLLM}).Evaluate(context.Background(), []models.Question{{Question: "q"}}); err == nil {
		t.Error("expected error for llm mode without answerer")
	}
}

func TestEvaluateCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &fakeSearcher{}
	_, err := NewEvaluator(s, nil, Options{StoreID: "vs"}).Evaluate(ctx, []models.Question{{Question: "q"}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if s.calls != 0 {
		t.Errorf("searcher called %d times", s.calls)
	}
}

func TestReportWriteText(t *testing.T) {
	r := &Report{StoreID: "vs_1", Mode: ModeSearch, Summary: Summary{TotalQuestions: 2, K: 5, RecallAtK: 0.5}}
	var buf bytes.Buffer
	r.WriteText(&buf)
	out := buf.String()
	for _, want := range []string{"vs_1", "Recall@5: 0.5000", "MRR:"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
