// Package config loads filesearch configuration from an optional YAML/JSON5
// file, a .env file and the process environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/haasonsaas/filesearch/internal/ratelimit"
	"github.com/haasonsaas/filesearch/internal/retry"
)

// Environment variables read by ApplyEnv.
const (
	EnvAPIKey       = "OPENAI_API_KEY"
	EnvBaseURL      = "OPENAI_BASE_URL"
	EnvModel        = "OPENAI_MODEL"
	EnvStoreID      = "VECTOR_STORE_ID"
	EnvK            = "FILESEARCH_K"
	EnvLogLevel     = "FILESEARCH_LOG_LEVEL"
	EnvConfig       = "FILESEARCH_CONFIG"
	EnvOTLPEndpoint = "OTEL_EXPORTER_OTLP_ENDPOINT"
)

// DefaultConfigFile is picked up from the working directory when present.
const DefaultConfigFile = "filesearch.yaml"

// ErrMissingAPIKey is returned when no API credential is configured.
var ErrMissingAPIKey = errors.New("OpenAI API key is required: set " + EnvAPIKey + " or openai.api_key")

// Config is the main configuration structure for filesearch.
type Config struct {
	OpenAI        OpenAIConfig        `yaml:"openai"`
	Store         StoreConfig         `yaml:"store"`
	Search        SearchConfig        `yaml:"search"`
	Upload        UploadConfig        `yaml:"upload"`
	Questions     QuestionsConfig     `yaml:"questions"`
	Evaluation    EvaluationConfig    `yaml:"evaluation"`
	Visualize     VisualizeConfig     `yaml:"visualize"`
	Artifacts     ArtifactsConfig     `yaml:"artifacts"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type OpenAIConfig struct {
	APIKey       string           `yaml:"api_key"`
	BaseURL      string           `yaml:"base_url"`
	Organization string           `yaml:"organization"`
	Model        string           `yaml:"model"`
	Timeout      time.Duration    `yaml:"timeout"`
	Retry        retry.Config     `yaml:"retry"`
	RateLimit    ratelimit.Config `yaml:"rate_limit"`
}

type StoreConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type SearchConfig struct {
	K int `yaml:"k"`
}

type UploadConfig struct {
	Workers int `yaml:"workers"`
}

type QuestionsConfig struct {
	Model       string `yaml:"model"`
	PerDocument int    `yaml:"per_document"`
	MaxChars    int    `yaml:"max_chars"`
	Output      string `yaml:"output"`
}

type EvaluationConfig struct {
	K     int    `yaml:"k"`
	Model string `yaml:"model"`
	// Mode is "search" (similarity search) or "llm" (search-augmented generation).
	Mode string `yaml:"mode"`
}

type VisualizeConfig struct {
	MaxResults     int              `yaml:"max_results"`
	Output         string           `yaml:"output"`
	Addr           string           `yaml:"addr"`
	Neighbors      int              `yaml:"n_neighbors"`
	MinDist        float64          `yaml:"min_dist"`
	Metric         string           `yaml:"metric"`
	Epochs         int              `yaml:"epochs"`
	Seed           int64            `yaml:"seed"`
	MinClusterSize int              `yaml:"min_cluster_size"`
	MinSamples     int              `yaml:"min_samples"`
	ClusterEpsilon float64          `yaml:"cluster_selection_epsilon"`
	ChunkSize      int              `yaml:"chunk_size"`
	ChunkOverlap   int              `yaml:"chunk_overlap"`
	Embeddings     EmbeddingsConfig `yaml:"embeddings"`
}

type EmbeddingsConfig struct {
	Provider   string `yaml:"provider"` // openai, ollama
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"` // openai text-embedding-3 only; 0 keeps the native size
	OllamaURL  string `yaml:"ollama_url"`
	CachePath  string `yaml:"cache_path"`
	BatchSize  int    `yaml:"batch_size"`
}

type ArtifactsConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type ObservabilityConfig struct {
	Tracing     TracingConfig `yaml:"tracing"`
	MetricsFile string        `yaml:"metrics_file"`
}

type TracingConfig struct {
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Insecure     bool    `yaml:"insecure"`
	Environment  string  `yaml:"environment"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads a configuration file, resolving $include directives, and
// applies defaults and validation. Environment overrides are not applied.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays environment variables onto cfg. Values already set by
// the config file are overridden only by non-empty variables.
func ApplyEnv(cfg *Config) error {
	if v := strings.TrimSpace(os.Getenv(EnvAPIKey)); v != "" {
		cfg.OpenAI.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvBaseURL)); v != "" {
		cfg.OpenAI.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvModel)); v != "" {
		cfg.OpenAI.Model = v
		cfg.Evaluation.Model = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvStoreID)); v != "" {
		cfg.Store.ID = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvK)); v != "" {
		k, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s must be an integer: %w", EnvK, err)
		}
		cfg.Search.K = k
		cfg.Evaluation.K = k
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvOTLPEndpoint)); v != "" {
		cfg.Observability.Tracing.Endpoint = v
	}
	return nil
}

// RequireAPIKey fails before any network call when no credential is set.
func (c *Config) RequireAPIKey() error {
	if strings.TrimSpace(c.OpenAI.APIKey) == "" {
		return ErrMissingAPIKey
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.OpenAI.BaseURL == "" {
		cfg.OpenAI.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.OpenAI.Model == "" {
		cfg.OpenAI.Model = "gpt-4o-mini"
	}
	if cfg.OpenAI.Timeout == 0 {
		cfg.OpenAI.Timeout = 120 * time.Second
	}
	if cfg.OpenAI.Retry.MaxAttempts == 0 {
		cfg.OpenAI.Retry = retry.DefaultConfig()
	}
	cfg.OpenAI.Retry.Policy = cfg.OpenAI.Retry.Policy.Normalize()
	if cfg.OpenAI.RateLimit.RequestsPerSecond == 0 {
		cfg.OpenAI.RateLimit = ratelimit.DefaultConfig()
	}
	if cfg.Search.K == 0 {
		cfg.Search.K = 5
	}
	if cfg.Upload.Workers == 0 {
		cfg.Upload.Workers = 10
	}
	if cfg.Questions.Model == "" {
		cfg.Questions.Model = "gpt-4o"
	}
	if cfg.Questions.PerDocument == 0 {
		cfg.Questions.PerDocument = 1
	}
	if cfg.Questions.MaxChars == 0 {
		cfg.Questions.MaxChars = 100000
	}
	if cfg.Questions.Output == "" {
		cfg.Questions.Output = "questions.json"
	}
	if cfg.Evaluation.K == 0 {
		cfg.Evaluation.K = cfg.Search.K
	}
	if cfg.Evaluation.Model == "" {
		cfg.Evaluation.Model = cfg.OpenAI.Model
	}
	if cfg.Evaluation.Mode == "" {
		cfg.Evaluation.Mode = "search"
	}
	applyVisualizeDefaults(&cfg.Visualize)
	if cfg.Artifacts.S3.Region == "" {
		cfg.Artifacts.S3.Region = "us-east-1"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyVisualizeDefaults(v *VisualizeConfig) {
	if v.MaxResults == 0 {
		v.MaxResults = 1000
	}
	if v.Output == "" {
		v.Output = "vector_store_visualization.html"
	}
	if v.Addr == "" {
		v.Addr = "127.0.0.1:8050"
	}
	if v.Neighbors == 0 {
		v.Neighbors = 15
	}
	if v.MinDist == 0 {
		v.MinDist = 0.1
	}
	if v.Metric == "" {
		v.Metric = "cosine"
	}
	if v.Epochs == 0 {
		v.Epochs = 200
	}
	if v.Seed == 0 {
		v.Seed = 42
	}
	if v.MinClusterSize == 0 {
		v.MinClusterSize = 5
	}
	if v.MinSamples == 0 {
		v.MinSamples = v.MinClusterSize
	}
	if v.ClusterEpsilon == 0 {
		v.ClusterEpsilon = 0.5
	}
	if v.ChunkSize == 0 {
		v.ChunkSize = 800
	}
	if v.ChunkOverlap == 0 {
		v.ChunkOverlap = 100
	}
	if v.Embeddings.Provider == "" {
		v.Embeddings.Provider = "openai"
	}
	if v.Embeddings.Model == "" {
		switch v.Embeddings.Provider {
		case "ollama":
			v.Embeddings.Model = "nomic-embed-text"
		default:
			v.Embeddings.Model = "text-embedding-3-small"
		}
	}
	if v.Embeddings.OllamaURL == "" {
		v.Embeddings.OllamaURL = "http://localhost:11434"
	}
	if v.Embeddings.CachePath == "" {
		v.Embeddings.CachePath = ".filesearch/embeddings.db"
	}
	if v.Embeddings.BatchSize == 0 {
		v.Embeddings.BatchSize = 100
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	var errs []string
	if c.Search.K < 1 {
		errs = append(errs, "search.k must be >= 1")
	}
	if c.Evaluation.K < 1 {
		errs = append(errs, "evaluation.k must be >= 1")
	}
	switch c.Evaluation.Mode {
	case "search", "llm":
	default:
		errs = append(errs, fmt.Sprintf("evaluation.mode must be search or llm, got %q", c.Evaluation.Mode))
	}
	if c.Upload.Workers < 1 {
		errs = append(errs, "upload.workers must be >= 1")
	}
	if c.Questions.PerDocument < 1 {
		errs = append(errs, "questions.per_document must be >= 1")
	}
	if c.Questions.MaxChars < 1 {
		errs = append(errs, "questions.max_chars must be >= 1")
	}
	v := c.Visualize
	if v.MaxResults < 1 {
		errs = append(errs, "visualize.max_results must be >= 1")
	}
	if v.Neighbors < 2 {
		errs = append(errs, "visualize.n_neighbors must be >= 2")
	}
	if v.MinDist < 0 || v.MinDist > 1 {
		errs = append(errs, "visualize.min_dist must be within [0, 1]")
	}
	switch v.Metric {
	case "cosine", "euclidean":
	default:
		errs = append(errs, fmt.Sprintf("visualize.metric must be cosine or euclidean, got %q", v.Metric))
	}
	if v.MinClusterSize < 2 {
		errs = append(errs, "visualize.min_cluster_size must be >= 2")
	}
	if v.ClusterEpsilon < 0 {
		errs = append(errs, "visualize.cluster_selection_epsilon must be >= 0")
	}
	switch v.Embeddings.Provider {
	case "openai", "ollama":
	default:
		errs = append(errs, fmt.Sprintf("visualize.embeddings.provider must be openai or ollama, got %q", v.Embeddings.Provider))
	}
	if v.Embeddings.Dimensions < 0 {
		errs = append(errs, "visualize.embeddings.dimensions must be >= 0")
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(errs, "; "))
	}
	return nil
}
