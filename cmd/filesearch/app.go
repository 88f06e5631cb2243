package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/haasonsaas/filesearch/internal/artifacts"
	"github.com/haasonsaas/filesearch/internal/config"
	"github.com/haasonsaas/filesearch/internal/embeddings"
	"github.com/haasonsaas/filesearch/internal/embeddings/cache"
	"github.com/haasonsaas/filesearch/internal/embeddings/ollama"
	openaiemb "github.com/haasonsaas/filesearch/internal/embeddings/openai"
	"github.com/haasonsaas/filesearch/internal/filesearch"
	"github.com/haasonsaas/filesearch/internal/observability"
)

// app carries the per-invocation runtime shared by every handler.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer
	sink    *artifacts.Sink

	span          trace.Span
	shutdownTrace func(context.Context) error
	closers       []func() error
}

// newApp resolves configuration and builds logging, metrics and tracing for
// one action. The returned context carries the request ID and action span.
func newApp(cmd *cobra.Command, action string) (context.Context, *app, error) {
	cfg, err := config.Resolve(config.Options{
		ConfigPath: globals.configPath,
		EnvFile:    globals.envFile,
	})
	if err != nil {
		return nil, nil, err
	}
	if v := strings.TrimSpace(globals.apiKey); v != "" {
		cfg.OpenAI.APIKey = v
	}
	if v := strings.TrimSpace(globals.logLevel); v != "" {
		cfg.Logging.Level = v
	}
	if v := strings.TrimSpace(globals.metricsFile); v != "" {
		cfg.Observability.MetricsFile = v
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cmd.ErrOrStderr(),
	}).Slog()
	slog.SetDefault(logger)

	tracer, shutdown := observability.NewTracer(observability.TraceConfig{
		ServiceName:    "filesearch",
		ServiceVersion: version,
		Environment:    cfg.Observability.Tracing.Environment,
		Endpoint:       cfg.Observability.Tracing.Endpoint,
		SamplingRate:   cfg.Observability.Tracing.SamplingRate,
		EnableInsecure: cfg.Observability.Tracing.Insecure,
	})

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = observability.AddRequestID(ctx, uuid.NewString())
	ctx = observability.AddAction(ctx, action)
	ctx, span := tracer.TraceAction(ctx, action)
	tracer.SetAttributes(span, "filesearch.request_id", observability.GetRequestID(ctx))
	if id := observability.TraceID(ctx); id != "" {
		logger = logger.With("trace_id", id)
	}

	a := &app{
		cfg:           cfg,
		logger:        logger,
		metrics:       observability.NewMetrics(prometheus.NewRegistry()),
		tracer:        tracer,
		sink:          artifacts.NewSink(cfg.Artifacts.S3),
		span:          span,
		shutdownTrace: shutdown,
	}
	return ctx, a, nil
}

// close ends the action span, writes the metrics file and releases resources.
func (a *app) close(err error) {
	if err != nil {
		a.tracer.RecordError(a.span, err)
	}
	a.span.End()

	if path := a.cfg.Observability.MetricsFile; path != "" {
		if werr := a.metrics.WriteTextfile(path); werr != nil {
			a.logger.Warn("failed to write metrics file", "path", path, "error", werr)
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if cerr := a.closers[i](); cerr != nil {
			a.logger.Warn("close failed", "error", cerr)
		}
	}
	if cerr := a.sink.Close(); cerr != nil {
		a.logger.Warn("close artifact sink", "error", cerr)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := a.shutdownTrace(ctx); serr != nil {
		a.logger.Warn("tracer shutdown", "error", serr)
	}
}

// client builds the vector store client. The API key is checked first so
// no request is attempted without a credential.
func (a *app) client() (*filesearch.Client, error) {
	if err := a.cfg.RequireAPIKey(); err != nil {
		return nil, err
	}
	return filesearch.New(a.cfg.OpenAI,
		filesearch.WithMetrics(a.metrics),
		filesearch.WithTracer(a.tracer),
		filesearch.WithLogger(a.logger),
	)
}

// storeID resolves the store from the flag, then config and environment.
func (a *app) storeID(cmd *cobra.Command, flagValue string) (string, error) {
	if id := strings.TrimSpace(flagValue); id != "" {
		return id, nil
	}
	if id := strings.TrimSpace(a.cfg.Store.ID); id != "" {
		return id, nil
	}
	_ = cmd.Usage()
	return "", fmt.Errorf("%w: pass --store_id or set %s", filesearch.ErrStoreIDRequired, config.EnvStoreID)
}

// embedder builds the configured embedding provider behind the sqlite cache.
// A cache that cannot be opened is logged and skipped.
func (a *app) embedder(ctx context.Context) (embeddings.Provider, error) {
	ec := a.cfg.Visualize.Embeddings
	var inner embeddings.Provider
	switch strings.ToLower(ec.Provider) {
	case "", "openai":
		if err := a.cfg.RequireAPIKey(); err != nil {
			return nil, err
		}
		p, err := openaiemb.New(openaiemb.Config{
			APIKey:       a.cfg.OpenAI.APIKey,
			BaseURL:      a.cfg.OpenAI.BaseURL,
			Organization: a.cfg.OpenAI.Organization,
			Model:        ec.Model,
			Dimensions:   ec.Dimensions,
		})
		if err != nil {
			return nil, err
		}
		inner = p
	case "ollama":
		p, err := ollama.New(ollama.Config{BaseURL: ec.OllamaURL, Model: ec.Model})
		if err != nil {
			return nil, err
		}
		inner = p
	default:
		return nil, fmt.Errorf("unknown embeddings provider %q", ec.Provider)
	}

	if ec.CachePath == "" {
		return inner, nil
	}
	c, err := cache.Open(ec.CachePath)
	if err != nil {
		a.logger.Warn("embedding cache disabled", "path", ec.CachePath, "error", err)
		return inner, nil
	}
	a.closers = append(a.closers, c.Close)
	if n, err := c.Count(ctx, inner.Model()); err == nil {
		a.logger.DebugContext(ctx, "embedding cache opened", "path", ec.CachePath, "model", inner.Model(), "cached", n)
	}
	return cache.Wrap(inner, c, a.metrics, a.logger), nil
}

// writeArtifact stores v as JSON at dest and logs where it went.
func (a *app) writeArtifact(ctx context.Context, dest string, v any) error {
	if dest == "" {
		return nil
	}
	ref, err := a.sink.WriteJSON(ctx, dest, v)
	if err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "wrote artifact", "path", ref)
	return nil
}
