package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvAPIKey, EnvBaseURL, EnvModel, EnvStoreID, EnvK, EnvLogLevel, EnvConfig, EnvOTLPEndpoint} {
		t.Setenv(key, "")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.OpenAI.Model != "gpt-4o-mini" {
		t.Errorf("model = %q", cfg.OpenAI.Model)
	}
	if cfg.Search.K != 5 || cfg.Evaluation.K != 5 {
		t.Errorf("k = %d/%d", cfg.Search.K, cfg.Evaluation.K)
	}
	if cfg.Upload.Workers != 10 {
		t.Errorf("workers = %d", cfg.Upload.Workers)
	}
	if cfg.Questions.Model != "gpt-4o" || cfg.Questions.MaxChars != 100000 {
		t.Errorf("questions = %+v", cfg.Questions)
	}
	v := cfg.Visualize
	if v.MaxResults != 1000 || v.Neighbors != 15 || v.MinDist != 0.1 || v.Seed != 42 || v.MinClusterSize != 5 || v.ClusterEpsilon != 0.5 {
		t.Errorf("visualize = %+v", v)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "filesearch.yaml", `
openai:
  model: gpt-4o
  extra: true
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestLoadValidates(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "negative k", body: "search:\n  k: -1\n", wantErr: "search.k"},
		{name: "bad mode", body: "evaluation:\n  mode: judge\n", wantErr: "evaluation.mode"},
		{name: "bad metric", body: "visualize:\n  metric: manhattan\n", wantErr: "visualize.metric"},
		{name: "bad provider", body: "visualize:\n  embeddings:\n    provider: gemini\n", wantErr: "visualize.embeddings.provider"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "filesearch.yaml", tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Load() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadExpandsEnvAndDurations(t *testing.T) {
	t.Setenv("TEST_STORE", "vs_abc")
	path := writeConfig(t, "filesearch.yaml", `
store:
  id: ${TEST_STORE}
openai:
  timeout: 30s
  retry:
    max_attempts: 5
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Store.ID != "vs_abc" {
		t.Errorf("store id = %q", cfg.Store.ID)
	}
	if cfg.OpenAI.Timeout != 30*time.Second {
		t.Errorf("timeout = %v", cfg.OpenAI.Timeout)
	}
	if cfg.OpenAI.Retry.MaxAttempts != 5 || cfg.OpenAI.Retry.Policy.InitialMs == 0 {
		t.Errorf("retry = %+v", cfg.OpenAI.Retry)
	}
}

func TestLoadIncludeJSON5(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.json5")
	if err := os.WriteFile(base, []byte(`{
  // shared defaults
  search: { k: 7 },
  upload: { workers: 3 },
}`), 0o600); err != nil {
		t.Fatal(err)
	}
	main := filepath.Join(dir, "filesearch.yaml")
	if err := os.WriteFile(main, []byte("$include: base.json5\nupload:\n  workers: 4\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(main)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Search.K != 7 {
		t.Errorf("k = %d, want 7 from include", cfg.Search.K)
	}
	if cfg.Upload.Workers != 4 {
		t.Errorf("workers = %d, want local override 4", cfg.Upload.Workers)
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("FS_SET", "value")
	t.Setenv("FS_EMPTY", "")
	tests := []struct {
		in   string
		want string
	}{
		{"id: $FS_SET", "id: value"},
		{"id: ${FS_SET:-other}", "id: value"},
		{"id: ${FS_EMPTY:-fallback}", "id: fallback"},
		{"id: ${FS_UNSET_VAR}", "id: "},
		{"$include: base.yaml", "$include: base.yaml"},
	}
	for _, tt := range tests {
		if got := expandEnv(tt.in); got != tt.want {
			t.Errorf("expandEnv(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoadIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.yaml")
	b := filepath.Join(dir, "b.yaml")
	_ = os.WriteFile(a, []byte("$include: b.yaml\n"), 0o600)
	_ = os.WriteFile(b, []byte("$include: a.yaml\n"), 0o600)
	if _, err := Load(a); err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Fatalf("expected cycle error, got %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvAPIKey, "sk-test")
	t.Setenv(EnvStoreID, "vs_env")
	t.Setenv(EnvModel, "gpt-4.1")
	t.Setenv(EnvK, "9")

	cfg := &Config{}
	if err := ApplyEnv(cfg); err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}
	applyDefaults(cfg)
	if cfg.OpenAI.APIKey != "sk-test" || cfg.Store.ID != "vs_env" {
		t.Errorf("env not applied: %+v", cfg.OpenAI)
	}
	if cfg.OpenAI.Model != "gpt-4.1" || cfg.Evaluation.Model != "gpt-4.1" {
		t.Errorf("model = %q/%q", cfg.OpenAI.Model, cfg.Evaluation.Model)
	}
	if cfg.Search.K != 9 || cfg.Evaluation.K != 9 {
		t.Errorf("k = %d/%d", cfg.Search.K, cfg.Evaluation.K)
	}

	t.Setenv(EnvK, "many")
	if err := ApplyEnv(&Config{}); err == nil {
		t.Fatal("expected error for non-integer k")
	}
}

func TestRequireAPIKey(t *testing.T) {
	cfg := Default()
	if err := cfg.RequireAPIKey(); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("RequireAPIKey() = %v", err)
	}
	cfg.OpenAI.APIKey = "sk-x"
	if err := cfg.RequireAPIKey(); err != nil {
		t.Fatalf("RequireAPIKey() = %v", err)
	}
}

func TestResolveWithEnvFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	if err := os.WriteFile(envFile, []byte("OPENAI_API_KEY=sk-from-file\nVECTOR_STORE_ID=vs_file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	// godotenv does not override variables that are already set, so unset
	// the cleared ones first.
	os.Unsetenv(EnvAPIKey)
	os.Unsetenv(EnvStoreID)

	cfg, err := Resolve(Options{EnvFile: envFile, ConfigPath: writeConfig(t, "filesearch.yaml", "search:\n  k: 3\n")})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if cfg.OpenAI.APIKey != "sk-from-file" || cfg.Store.ID != "vs_file" {
		t.Errorf("env file not applied: key=%q store=%q", cfg.OpenAI.APIKey, cfg.Store.ID)
	}
	if cfg.Search.K != 3 {
		t.Errorf("k = %d", cfg.Search.K)
	}
}

func TestResolveMissingFiles(t *testing.T) {
	clearEnv(t)
	if _, err := Resolve(Options{EnvFile: filepath.Join(t.TempDir(), "missing.env")}); err == nil {
		t.Fatal("explicit missing env file should fail")
	}
	if _, err := Resolve(Options{ConfigPath: filepath.Join(t.TempDir(), "missing.yaml")}); err == nil {
		t.Fatal("explicit missing config should fail")
	}
	t.Chdir(t.TempDir())
	cfg, err := Resolve(Options{})
	if err != nil {
		t.Fatalf("implicit missing files should be fine: %v", err)
	}
	if cfg.Search.K != 5 {
		t.Errorf("k = %d", cfg.Search.K)
	}
}
