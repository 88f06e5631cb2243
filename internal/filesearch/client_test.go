package filesearch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/haasonsaas/filesearch/internal/backoff"
	"github.com/haasonsaas/filesearch/internal/config"
	"github.com/haasonsaas/filesearch/internal/observability"
	"github.com/haasonsaas/filesearch/internal/retry"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestClient(t *testing.T, mux *http.ServeMux, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	client, err := New(config.OpenAIConfig{
		APIKey:  "sk-test",
		BaseURL: srv.URL,
		Retry: retry.Config{
			MaxAttempts: 3,
			Policy:      backoff.BackoffPolicy{InitialMs: 1, MaxMs: 5, Factor: 2},
		},
	}, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(config.OpenAIConfig{})
	if !errors.Is(err, config.ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestCreateStore(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /vector_stores", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		var body struct {
			Name string `json:"name"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		writeJSON(w, http.StatusOK, map[string]any{
			"id":         "vs_123",
			"name":       body.Name,
			"created_at": 1700000000,
			"status":     "completed",
			"file_counts": map[string]int{
				"completed": 0,
			},
		})
	})
	client := newTestClient(t, mux)

	store, err := client.CreateStore(context.Background(), "papers")
	if err != nil {
		t.Fatalf("CreateStore: %v", err)
	}
	if store.ID != "vs_123" || store.Name != "papers" || store.CreatedAt != 1700000000 {
		t.Fatalf("unexpected store %+v", store)
	}
	if store.FileCount != 0 {
		t.Fatalf("FileCount = %d", store.FileCount)
	}
}

func TestSearchParsesResults(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /vector_stores/{id}/search", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "vs_1" {
			t.Errorf("store id = %q", r.PathValue("id"))
		}
		var req searchRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.MaxNumResults != 2 {
			t.Errorf("max_num_results = %d, want 2", req.MaxNumResults)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"data": []map[string]any{
				{"file_id": "f1", "filename": "a.pdf", "score": 0.9, "content": []map[string]string{{"type": "text", "text": "alpha"}, {"type": "text", "text": "beta"}}},
				{"file_id": "f2", "filename": "b.pdf", "score": 0.5, "content": []map[string]string{{"type": "text", "text": "gamma"}}},
				{"file_id": "f3", "filename": "c.pdf", "score": 0.1},
			},
		})
	})
	client := newTestClient(t, mux)

	results, err := client.Search(context.Background(), "vs_1", "what is alpha", 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Filename != "a.pdf" || results[0].Text != "alpha\nbeta" || results[0].Score != 0.9 {
		t.Fatalf("unexpected first result %+v", results[0])
	}
}

func TestSearchValidation(t *testing.T) {
	client := newTestClient(t, http.NewServeMux())
	if _, err := client.Search(context.Background(), "", "q", 5); !errors.Is(err, ErrStoreIDRequired) {
		t.Fatalf("expected ErrStoreIDRequired, got %v", err)
	}
	if _, err := client.Search(context.Background(), "vs_1", "  ", 5); err == nil {
		t.Fatal("expected error for empty query")
	}
}

func TestSearchRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /vector_stores/{id}/search", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.Header().Set("Retry-After", "0")
			writeJSON(w, http.StatusTooManyRequests, map[string]any{
				"error": map[string]string{"message": "slow down", "type": "rate_limit_error"},
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": []any{}})
	})
	metrics := observability.NewMetrics(nil)
	client := newTestClient(t, mux, WithMetrics(metrics))

	if _, err := client.Search(context.Background(), "vs_1", "q", 3); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 calls, got %d", calls.Load())
	}
	if got := testutil.ToFloat64(metrics.APIRetryCounter.WithLabelValues("vector_stores.search")); got != 2 {
		t.Fatalf("retries = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.APIRequestCounter.WithLabelValues("vector_stores.search", "ok")); got != 1 {
		t.Fatalf("ok requests = %v, want 1", got)
	}
}

func TestSearchDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /vector_stores/{id}/search", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusNotFound, map[string]any{
			"error": map[string]string{"message": "No vector store found", "type": "invalid_request_error"},
		})
	})
	client := newTestClient(t, mux)

	_, err := client.Search(context.Background(), "vs_missing", "q", 3)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Reason != ReasonNotFound {
		t.Fatalf("unexpected error %+v", apiErr)
	}
	if apiErr.Message != "No vector store found" {
		t.Fatalf("message = %q", apiErr.Message)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected 1 call, got %d", calls.Load())
	}
}

func TestAnswerWithSearch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /responses", func(w http.ResponseWriter, r *http.Request) {
		var req responsesRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req.Tools) != 1 || req.Tools[0].Type != "file_search" || req.Tools[0].VectorStoreIDs[0] != "vs_1" {
			t.Errorf("unexpected tools %+v", req.Tools)
		}
		if req.ToolChoice != "required" || req.Tools[0].MaxNumResults != 4 {
			t.Errorf("unexpected request %+v", req)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"output": []map[string]any{
				{"type": "file_search_call", "results": []map[string]any{
					{"file_id": "f1", "filename": "a.pdf", "score": 0.8, "text": "alpha"},
				}},
				{"type": "message", "content": []map[string]any{{
					"type": "output_text",
					"text": "Alpha is the first letter.",
					"annotations": []map[string]string{
						{"type": "file_citation", "file_id": "f2", "filename": "b.pdf"},
						{"type": "file_citation", "file_id": "f1", "filename": "a.pdf"},
						{"type": "file_citation", "file_id": "f2", "filename": "b.pdf"},
					},
				}}},
			},
		})
	})
	client := newTestClient(t, mux)

	answer, err := client.AnswerWithSearch(context.Background(), "vs_1", "what is alpha", "gpt-4o-mini", 4)
	if err != nil {
		t.Fatalf("AnswerWithSearch: %v", err)
	}
	if answer.Text != "Alpha is the first letter." {
		t.Fatalf("text = %q", answer.Text)
	}
	want := []string{"b.pdf", "a.pdf"}
	if len(answer.FilesUsed) != len(want) || answer.FilesUsed[0] != want[0] || answer.FilesUsed[1] != want[1] {
		t.Fatalf("files used = %v, want %v", answer.FilesUsed, want)
	}
	if len(answer.Results) != 1 || answer.Results[0].Filename != "a.pdf" {
		t.Fatalf("results = %+v", answer.Results)
	}
}

func TestListFilesPaginates(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /vector_stores/{id}/files", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("after") == "" {
			writeJSON(w, http.StatusOK, map[string]any{
				"data":     []map[string]any{{"id": "f1", "status": "completed"}, {"id": "f2", "status": "completed"}},
				"has_more": true,
				"last_id":  "f2",
			})
			return
		}
		if got := r.URL.Query().Get("after"); got != "f2" {
			t.Errorf("after = %q", got)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"data":     []map[string]any{{"id": "f3", "status": "failed"}},
			"has_more": false,
		})
	})
	mux.HandleFunc("GET /files/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if id == "f3" {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": map[string]string{"message": "gone"}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "filename": id + ".pdf"})
	})
	client := newTestClient(t, mux)

	files, err := client.ListFiles(context.Background(), "vs_1")
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("expected 3 files, got %d", len(files))
	}
	if files[0].Filename != "f1.pdf" || files[1].Filename != "f2.pdf" {
		t.Fatalf("unexpected names %+v", files)
	}
	if files[2].Filename != "f3" {
		t.Fatalf("unresolved file should fall back to its ID, got %q", files[2].Filename)
	}
}

func TestFileContent(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /vector_stores/{id}/files/{file}/content", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"data": []map[string]string{{"type": "text", "text": "chunk one"}, {"type": "text", "text": "  "}, {"type": "text", "text": "chunk two"}},
		})
	})
	client := newTestClient(t, mux)

	chunks, err := client.FileContent(context.Background(), "vs_1", "f1")
	if err != nil {
		t.Fatalf("FileContent: %v", err)
	}
	if len(chunks) != 2 || chunks[0] != "chunk one" || chunks[1] != "chunk two" {
		t.Fatalf("chunks = %q", chunks)
	}
}

func TestUploadFileIsNotRetried(t *testing.T) {
	var fileCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /files", func(w http.ResponseWriter, r *http.Request) {
		fileCalls.Add(1)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": map[string]string{"message": "boom"}})
	})
	metrics := observability.NewMetrics(nil)
	client := newTestClient(t, mux, WithMetrics(metrics))

	path := filepath.Join(t.TempDir(), "doc.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4"), 0o644); err != nil {
		t.Fatal(err)
	}
	rec, err := client.UploadFile(context.Background(), "vs_1", path)
	if err == nil {
		t.Fatal("expected upload error")
	}
	if rec.Status != "failed" || rec.Error == "" || rec.Path != path {
		t.Fatalf("unexpected record %+v", rec)
	}
	if fileCalls.Load() != 1 {
		t.Fatalf("upload attempted %d times, want 1", fileCalls.Load())
	}
	if got := testutil.ToFloat64(metrics.UploadCounter.WithLabelValues("failed")); got != 1 {
		t.Fatalf("failed uploads = %v", got)
	}
}

func TestUploadFileAttachesToStore(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /files", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"id": "file-abc", "filename": "doc.pdf", "purpose": "assistants"})
	})
	mux.HandleFunc("POST /vector_stores/{id}/files", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			FileID string `json:"file_id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.FileID != "file-abc" {
			t.Errorf("file_id = %q", body.FileID)
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": body.FileID, "vector_store_id": r.PathValue("id"), "status": "in_progress"})
	})
	client := newTestClient(t, mux)

	path := filepath.Join(t.TempDir(), "doc.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4"), 0o644); err != nil {
		t.Fatal(err)
	}
	rec, err := client.UploadFile(context.Background(), "vs_1", path)
	if err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	if rec.Status != "success" || rec.FileID != "file-abc" {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestComplete(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat/completions", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"id":      "chatcmpl-1",
			"choices": []map[string]any{{"index": 0, "message": map[string]string{"role": "assistant", "content": "  What is alpha?  "}}},
		})
	})
	client := newTestClient(t, mux)

	out, err := client.Complete(context.Background(), "gpt-4o", "generate")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "What is alpha?" {
		t.Fatalf("out = %q", out)
	}
}
