// Package filesearch is a client for OpenAI vector stores: store creation,
// file upload, similarity search and search-augmented answers.
//
// Endpoints covered by go-openai use the SDK. The search, responses and file
// content endpoints are called directly over HTTP with the same
// authentication, retry, rate limiting, tracing and metrics.
package filesearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/haasonsaas/filesearch/internal/config"
	"github.com/haasonsaas/filesearch/internal/observability"
	"github.com/haasonsaas/filesearch/internal/ratelimit"
	"github.com/haasonsaas/filesearch/internal/retry"
	openai "github.com/sashabaranov/go-openai"
)

// DefaultBaseURL is the public OpenAI API.
const DefaultBaseURL = "https://api.openai.com/v1"

// Client wraps the OpenAI API. It is safe for concurrent use.
type Client struct {
	api     *openai.Client
	http    *http.Client
	baseURL string
	apiKey  string
	org     string

	retry   retry.Config
	limiter *ratelimit.Limiter
	metrics *observability.Metrics
	tracer  *observability.Tracer
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithMetrics records request counts and latencies.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithTracer wraps every call in a client span.
func WithTracer(t *observability.Tracer) Option {
	return func(c *Client) { c.tracer = t }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a client from OpenAI settings. The API key is required.
func New(cfg config.OpenAIConfig, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, config.ErrMissingAPIKey
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	retryCfg := cfg.Retry
	if retryCfg.MaxAttempts <= 0 {
		retryCfg = retry.DefaultConfig()
	}

	c := &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		org:     cfg.Organization,
		retry:   retryCfg,
		limiter: ratelimit.NewLimiter(cfg.RateLimit),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	oaCfg := openai.DefaultConfig(cfg.APIKey)
	oaCfg.BaseURL = baseURL
	oaCfg.OrgID = cfg.Organization
	oaCfg.HTTPClient = c.http
	c.api = openai.NewClientWithConfig(oaCfg)
	return c, nil
}

// call runs op with rate limiting, retries, tracing and metrics.
func (c *Client) call(ctx context.Context, endpoint, storeID string, cfg retry.Config, op func(ctx context.Context) error) error {
	ctx, span := c.tracer.TraceAPIRequest(ctx, endpoint, storeID)
	defer span.End()

	start := time.Now()
	res := retry.Do(ctx, cfg, func(attempt int) error {
		if err := c.limiter.Wait(ctx, endpoint); err != nil {
			return retry.Permanent(err)
		}
		err := classify(endpoint, op(ctx))
		if err != nil && !retry.IsPermanent(err) && attempt < cfg.MaxAttempts {
			c.logger.Warn("retrying OpenAI request",
				"endpoint", endpoint,
				"attempt", attempt,
				"error", err)
		}
		return err
	})

	err := res.Err
	c.metrics.RecordRetries(endpoint, res.Attempts)
	c.tracer.SetAttributes(span, "openai.attempts", res.Attempts)
	c.metrics.RecordAPIRequest(endpoint, StatusLabel(err), time.Since(start))
	if err != nil {
		c.tracer.RecordError(span, err)
		return err
	}
	return nil
}

// doJSON sends a JSON request to path (relative to the base URL) and decodes
// the response into out.
func (c *Client) doJSON(ctx context.Context, endpoint, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return retry.Permanent(fmt.Errorf("marshal %s request: %w", endpoint, err))
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return retry.Permanent(fmt.Errorf("build %s request: %w", endpoint, err))
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("OpenAI-Beta", "assistants=v2")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.org != "" {
		req.Header.Set("OpenAI-Organization", c.org)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", endpoint, err)
	}
	if resp.StatusCode >= 300 {
		return decodeAPIError(endpoint, resp, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return retry.Permanent(fmt.Errorf("decode %s response: %w", endpoint, err))
	}
	return nil
}

func decodeAPIError(endpoint string, resp *http.Response, body []byte) *APIError {
	apiErr := &APIError{
		Endpoint:       endpoint,
		StatusCode:     resp.StatusCode,
		RetryAfterHint: parseRetryAfter(resp.Header),
	}
	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    any    `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Message = envelope.Error.Message
		apiErr.Type = envelope.Error.Type
		if code, ok := envelope.Error.Code.(string); ok {
			apiErr.Code = code
		}
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
		if len(apiErr.Message) > 200 {
			apiErr.Message = apiErr.Message[:200]
		}
	}
	apiErr.Reason = classifyStatusCode(resp.StatusCode)
	return apiErr
}
