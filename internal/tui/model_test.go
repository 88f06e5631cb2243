package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/haasonsaas/filesearch/pkg/models"
)

type stubSearcher struct {
	results []models.SearchResult
	err     error
	gotK    int
}

func (s *stubSearcher) Search(_ context.Context, _, _ string, k int) ([]models.SearchResult, error) {
	s.gotK = k
	return s.results, s.err
}

func typeQuery(m Model, q string) Model {
	for _, r := range q {
		next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
		m = next.(Model)
	}
	return m
}

// submit presses enter and delivers the search result message.
func submit(t *testing.T, m Model) Model {
	t.Helper()
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	if !m.searching {
		t.Fatal("expected search in flight")
	}
	done := m.search(strings.TrimSpace(m.input.Value()))()
	next, _ = m.Update(done)
	return next.(Model)
}

func ready(m Model) Model {
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return next.(Model)
}

func TestSearchFlow(t *testing.T) {
	s := &stubSearcher{results: []models.SearchResult{
		{Filename: "a.pdf", Score: 0.9, Text: "Vectors are useful. Cats are not."},
		{Filename: "b.pdf", Score: 0.5, Text: "Other text."},
	}}
	m := ready(New(context.Background(), s, "vs_1", 3))
	m = typeQuery(m, "vectors")
	m = submit(t, m)

	if s.gotK != 3 {
		t.Errorf("k = %d", s.gotK)
	}
	if len(m.results) != 2 || m.cursor != 0 {
		t.Fatalf("results = %d cursor = %d", len(m.results), m.cursor)
	}
	if !strings.Contains(m.renderCurrentResult(), "a.pdf") {
		t.Errorf("view missing first result: %s", m.renderCurrentResult())
	}

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = next.(Model)
	if m.cursor != 1 {
		t.Errorf("cursor = %d after down", m.cursor)
	}
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = next.(Model)
	if m.cursor != 0 {
		t.Errorf("cursor = %d after wrap", m.cursor)
	}
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyUp})
	m = next.(Model)
	if m.cursor != 1 {
		t.Errorf("cursor = %d after up", m.cursor)
	}
}

func TestSearchError(t *testing.T) {
	s := &stubSearcher{err: errors.New("rate limited")}
	m := ready(New(context.Background(), s, "vs_1", 0))
	m = submit(t, typeQuery(m, "q"))
	if !strings.Contains(m.status, "rate limited") {
		t.Errorf("status = %q", m.status)
	}
	if s.gotK != 5 {
		t.Errorf("default k = %d", s.gotK)
	}
}

func TestEmptyQueryIgnored(t *testing.T) {
	m := ready(New(context.Background(), &stubSearcher{}, "vs", 5))
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if next.(Model).searching || cmd != nil {
		t.Error("empty query should not search")
	}
}

func TestQuitKeys(t *testing.T) {
	m := New(context.Background(), &stubSearcher{}, "vs", 5)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("ctrl+c should quit")
	}
}

func TestViewBeforeReady(t *testing.T) {
	if v := New(context.Background(), &stubSearcher{}, "vs", 5).View(); v != "Loading..." {
		t.Errorf("View() = %q", v)
	}
}

func TestHighlightBestSentence(t *testing.T) {
	out := highlightBestSentence("First line here. Vector stores rank text. Last.", "vector text")
	if !strings.Contains(out, "Vector stores rank text.") || !strings.Contains(out, "First line here.") {
		t.Errorf("highlight = %q", out)
	}
	if got := highlightBestSentence("", "q"); got != "" {
		t.Errorf("empty = %q", got)
	}
}
