package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/haasonsaas/filesearch/internal/config"
	"github.com/haasonsaas/filesearch/internal/filesearch"
	"github.com/haasonsaas/filesearch/internal/visualize"
)

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	required := []string{
		"create_store", "upload", "search", "llm_search", "generate_questions",
		"evaluate", "visualize", "create-and-visualize", "store-info", "fetch-samples",
	}
	for _, name := range required {
		if !names[name] {
			t.Fatalf("expected subcommand %q to be registered", name)
		}
	}
}

func TestNormalizeArgs(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"subcommand untouched", []string{"search", "--query", "x"}, []string{"search", "--query", "x"}},
		{"action flag", []string{"--action", "evaluate", "--k", "3"}, []string{"evaluate", "--k", "3"}},
		{"action equals", []string{"--store_id", "vs", "--action=upload"}, []string{"upload", "--store_id", "vs"}},
		{"dangling action", []string{"--action"}, []string{"--action"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeArgs(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("normalizeArgs(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestFlagNamesAcceptDashes(t *testing.T) {
	cmd := buildRootCmd()
	sub, _, err := cmd.Find([]string{"evaluate"})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if err := sub.ParseFlags([]string{"--store-id", "vs_1"}); err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}
	if got := sub.Flags().Lookup("store_id").Value.String(); got != "vs_1" {
		t.Fatalf("store_id = %q", got)
	}
}

// execute runs the CLI in a clean environment and returns stdout.
func execute(t *testing.T, env map[string]string, args ...string) (string, error) {
	t.Helper()
	globals = globalFlags{}
	t.Chdir(t.TempDir())
	for _, key := range []string{"OPENAI_API_KEY", "OPENAI_BASE_URL", "VECTOR_STORE_ID", "FILESEARCH_CONFIG", "OTEL_EXPORTER_OTLP_ENDPOINT"} {
		t.Setenv(key, env[key])
	}

	cmd := buildRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(normalizeArgs(args))
	err := cmd.Execute()
	return out.String(), err
}

func TestEvaluateRequiresStoreID(t *testing.T) {
	_, err := execute(t, nil, "--action", "evaluate", "--api_key", "sk-test")
	if !errors.Is(err, filesearch.ErrStoreIDRequired) {
		t.Fatalf("expected ErrStoreIDRequired, got %v", err)
	}
}

func TestEvaluateChecksAPIKeyBeforeReadingQuestions(t *testing.T) {
	_, err := execute(t, map[string]string{"VECTOR_STORE_ID": "vs_1"},
		"evaluate", "--questions", "s3://bucket/questions.json")
	if !errors.Is(err, config.ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestCreateAndVisualizeStopsWhenNothingUploaded(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.Method+" "+r.URL.Path)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/vector_stores":
			_ = json.NewEncoder(w).Encode(map[string]any{"id": "vs_empty", "name": "papers", "created_at": 1700000000})
		case r.Method == http.MethodPost && r.URL.Path == "/files":
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{"message": "invalid file", "type": "invalid_request_error"},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	pdfDir := t.TempDir()
	for _, name := range []string{"a.pdf", "b.pdf"} {
		if err := os.WriteFile(filepath.Join(pdfDir, name), []byte("%PDF-1.4"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	output := filepath.Join(t.TempDir(), "plot.html")

	out, err := execute(t, map[string]string{
		"OPENAI_API_KEY":  "sk-test",
		"OPENAI_BASE_URL": srv.URL,
	}, "create-and-visualize", "--store_name", "papers", "--pdf_dir", pdfDir, "--output", output)
	if !errors.Is(err, visualize.ErrEmptyStore) {
		t.Fatalf("expected ErrEmptyStore, got %v", err)
	}
	if !strings.Contains(out, "vs_empty") {
		t.Errorf("stdout = %q", out)
	}
	if _, statErr := os.Stat(output); !os.IsNotExist(statErr) {
		t.Errorf("plot written despite empty store: %v", statErr)
	}
	for _, p := range paths {
		if strings.Contains(p, "/vector_stores/vs_empty/files") {
			t.Errorf("unexpected request %s", p)
		}
	}
}

func TestCreateStoreWritesDetails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/vector_stores" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":         "vs_cli",
			"name":       "papers",
			"created_at": 1700000000,
			"status":     "completed",
		})
	}))
	defer srv.Close()

	output := filepath.Join(t.TempDir(), "store.json")
	out, err := execute(t, map[string]string{
		"OPENAI_API_KEY":  "sk-test",
		"OPENAI_BASE_URL": srv.URL,
	}, "create-store", "--store-name", "papers", "--output", output)
	if err != nil {
		t.Fatalf("create_store: %v", err)
	}
	if !strings.Contains(out, `"id": "vs_cli"`) {
		t.Fatalf("stdout = %s", out)
	}
	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil || got["id"] != "vs_cli" {
		t.Fatalf("store details = %s (%v)", data, err)
	}
}

func TestFetchSamplesCopiesLocalPDFs(t *testing.T) {
	src := filepath.Join(t.TempDir(), "a.pdf")
	if err := os.WriteFile(src, []byte("%PDF-1.4"), 0o644); err != nil {
		t.Fatal(err)
	}
	target := filepath.Join(t.TempDir(), "samples")

	out, err := execute(t, nil, "fetch-samples", "--target_dir", target, "--local_pdfs", src)
	if err != nil {
		t.Fatalf("fetch-samples: %v", err)
	}
	if !strings.Contains(out, "Fetched 1") {
		t.Fatalf("stdout = %q", out)
	}
	if _, err := os.Stat(filepath.Join(target, "a.pdf")); err != nil {
		t.Fatalf("sample not copied: %v", err)
	}
}
