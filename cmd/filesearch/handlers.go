package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/filesearch/internal/filesearch"
	"github.com/haasonsaas/filesearch/internal/observability"
	"github.com/haasonsaas/filesearch/internal/questions"
	"github.com/haasonsaas/filesearch/internal/rag/chunker"
	"github.com/haasonsaas/filesearch/internal/rag/eval"
	"github.com/haasonsaas/filesearch/internal/rag/parser"
	"github.com/haasonsaas/filesearch/internal/rag/parser/pdf"
	"github.com/haasonsaas/filesearch/internal/tui"
	"github.com/haasonsaas/filesearch/internal/upload"
	"github.com/haasonsaas/filesearch/internal/visualize"
	"github.com/haasonsaas/filesearch/pkg/models"
)

type uploadOptions struct {
	storeID string
	pdfDir  string
	workers int
	output  string
}

type searchOptions struct {
	storeID     string
	query       string
	k           int
	model       string
	output      string
	interactive bool
}

type generateOptions struct {
	pdfDir      string
	perDocument int
	maxChars    int
	model       string
	output      string
}

type evaluateOptions struct {
	storeID   string
	questions string
	mode      string
	k         int
	model     string
	output    string
}

type visualizeOptions struct {
	storeID    string
	maxResults int
	output     string
	serve      bool
	addr       string
}

// =============================================================================
// Store Handlers
// =============================================================================

func runCreateStore(cmd *cobra.Command, name, output string) (err error) {
	ctx, a, err := newApp(cmd, "create_store")
	if err != nil {
		return err
	}
	defer func() { a.close(err) }()

	client, err := a.client()
	if err != nil {
		return err
	}
	store, err := client.CreateStore(ctx, name)
	if err != nil {
		return err
	}
	if err := printJSON(cmd.OutOrStdout(), store); err != nil {
		return err
	}
	return a.writeArtifact(ctx, output, store)
}

func runStoreInfo(cmd *cobra.Command, storeID string) (err error) {
	ctx, a, err := newApp(cmd, "store_info")
	if err != nil {
		return err
	}
	defer func() { a.close(err) }()

	if storeID, err = a.storeID(cmd, storeID); err != nil {
		return err
	}
	ctx = observability.AddStoreID(ctx, storeID)
	client, err := a.client()
	if err != nil {
		return err
	}
	store, err := client.GetStore(ctx, storeID)
	if err != nil {
		return err
	}
	files, err := client.ListFiles(ctx, storeID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ID:       %s\n", store.ID)
	fmt.Fprintf(out, "Name:     %s\n", store.Name)
	fmt.Fprintf(out, "Created:  %s\n", store.CreatedTime().Format("2006-01-02 15:04:05 MST"))
	if store.Status != "" {
		fmt.Fprintf(out, "Status:   %s\n", store.Status)
	}
	fmt.Fprintf(out, "Usage:    %d bytes\n", store.UsageBytes)
	if fc := store.FileCounts; fc != nil {
		fmt.Fprintf(out, "Files:    %d total, %d completed, %d in progress, %d failed\n",
			fc.Total, fc.Completed, fc.InProgress, fc.Failed)
	}
	if len(files) == 0 {
		return nil
	}
	fmt.Fprintln(out)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE ID\tFILENAME\tSTATUS\tBYTES")
	for _, f := range files {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", f.ID, f.Filename, f.Status, f.UsageBytes)
	}
	return tw.Flush()
}

func runUpload(cmd *cobra.Command, opts uploadOptions) (err error) {
	ctx, a, err := newApp(cmd, "upload")
	if err != nil {
		return err
	}
	defer func() { a.close(err) }()

	storeID, err := a.storeID(cmd, opts.storeID)
	if err != nil {
		return err
	}
	ctx = observability.AddStoreID(ctx, storeID)
	client, err := a.client()
	if err != nil {
		return err
	}
	workers := opts.workers
	if workers <= 0 {
		workers = a.cfg.Upload.Workers
	}
	stats, err := uploadDir(ctx, a, client, cmd.ErrOrStderr(), storeID, opts.pdfDir, workers)
	if err != nil {
		return err
	}
	printUploadSummary(cmd.OutOrStdout(), stats)
	return a.writeArtifact(ctx, opts.output, stats)
}

func uploadDir(ctx context.Context, a *app, client *filesearch.Client, progressOut io.Writer, storeID, dir string, workers int) (*models.UploadStats, error) {
	return upload.NewBatch(client,
		upload.WithWorkers(workers),
		upload.WithLogger(a.logger),
		upload.WithProgress(upload.NewProgress(progressOut)),
	).UploadDir(ctx, storeID, dir)
}

func printUploadSummary(w io.Writer, stats *models.UploadStats) {
	fmt.Fprintf(w, "Uploaded %d/%d files to %s in %.1fs\n",
		stats.SuccessfulUploads, stats.TotalFiles, stats.StoreID, stats.ElapsedSeconds)
	for _, e := range stats.Errors {
		fmt.Fprintf(w, "  failed: %s\n", e)
	}
}

// =============================================================================
// Query Handlers
// =============================================================================

func runSearch(cmd *cobra.Command, opts searchOptions) (err error) {
	ctx, a, err := newApp(cmd, "search")
	if err != nil {
		return err
	}
	defer func() { a.close(err) }()

	storeID, err := a.storeID(cmd, opts.storeID)
	if err != nil {
		return err
	}
	ctx = observability.AddStoreID(ctx, storeID)
	if !opts.interactive && strings.TrimSpace(opts.query) == "" {
		_ = cmd.Usage()
		return errors.New("--query is required unless --interactive is set")
	}
	client, err := a.client()
	if err != nil {
		return err
	}
	k := opts.k
	if k <= 0 {
		k = a.cfg.Search.K
	}
	if opts.interactive {
		return tui.Run(ctx, client, storeID, k)
	}

	results, err := client.Search(ctx, storeID, opts.query, k)
	if err != nil {
		return err
	}
	printSearchResults(cmd.OutOrStdout(), opts.query, results)
	return a.writeArtifact(ctx, opts.output, map[string]any{
		"query":   opts.query,
		"k":       k,
		"results": results,
	})
}

func printSearchResults(w io.Writer, query string, results []models.SearchResult) {
	fmt.Fprintf(w, "Results for %q:\n", query)
	if len(results) == 0 {
		fmt.Fprintln(w, "  (no results)")
		return
	}
	for i, r := range results {
		fmt.Fprintf(w, "%d. %s (score %.4f)\n", i+1, r.Filename, r.Score)
		if text := strings.TrimSpace(r.Text); text != "" {
			fmt.Fprintf(w, "   %s\n", visualize.Preview(strings.Join(strings.Fields(text), " ")))
		}
	}
}

func runLLMSearch(cmd *cobra.Command, opts searchOptions) (err error) {
	ctx, a, err := newApp(cmd, "llm_search")
	if err != nil {
		return err
	}
	defer func() { a.close(err) }()

	storeID, err := a.storeID(cmd, opts.storeID)
	if err != nil {
		return err
	}
	ctx = observability.AddStoreID(ctx, storeID)
	client, err := a.client()
	if err != nil {
		return err
	}
	k := opts.k
	if k <= 0 {
		k = a.cfg.Search.K
	}
	model := opts.model
	if model == "" {
		model = a.cfg.OpenAI.Model
	}

	answer, err := client.AnswerWithSearch(ctx, storeID, opts.query, model, k)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, answer.Text)
	if len(answer.FilesUsed) > 0 {
		fmt.Fprintf(out, "\nSources: %s\n", strings.Join(answer.FilesUsed, ", "))
	}
	return a.writeArtifact(ctx, opts.output, answer)
}

// =============================================================================
// Evaluation Handlers
// =============================================================================

func runGenerateQuestions(cmd *cobra.Command, opts generateOptions) (err error) {
	ctx, a, err := newApp(cmd, "generate_questions")
	if err != nil {
		return err
	}
	defer func() { a.close(err) }()

	client, err := a.client()
	if err != nil {
		return err
	}
	parsers := parser.NewRegistry()
	pdf.Register(parsers)

	qc := a.cfg.Questions
	if opts.model != "" {
		qc.Model = opts.model
	}
	if opts.perDocument > 0 {
		qc.PerDocument = opts.perDocument
	}
	if opts.maxChars > 0 {
		qc.MaxChars = opts.maxChars
	}
	if opts.output != "" {
		qc.Output = opts.output
	}

	gen := questions.NewGenerator(client,
		questions.WithRegistry(parsers),
		questions.WithModel(qc.Model),
		questions.WithPerDocument(qc.PerDocument),
		questions.WithMaxChars(qc.MaxChars),
		questions.WithLogger(a.logger),
		questions.WithMetrics(a.metrics),
	)
	res, err := gen.GenerateForDir(ctx, opts.pdfDir)
	if err != nil {
		return err
	}

	data, err := questions.Encode(res.Questions)
	if err != nil {
		return err
	}
	ref, err := a.sink.WriteFile(ctx, qc.Output, data, "application/json")
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Generated %d questions, saved to %s\n", len(res.Questions), ref)
	for _, s := range res.Skipped {
		fmt.Fprintf(out, "  skipped %s: %s\n", s.Filename, s.Reason)
	}
	return nil
}

func runEvaluate(cmd *cobra.Command, opts evaluateOptions) (err error) {
	ctx, a, err := newApp(cmd, "evaluate")
	if err != nil {
		return err
	}
	defer func() { a.close(err) }()

	storeID, err := a.storeID(cmd, opts.storeID)
	if err != nil {
		return err
	}
	ctx = observability.AddStoreID(ctx, storeID)

	modeName := opts.mode
	if modeName == "" {
		modeName = a.cfg.Evaluation.Mode
	}
	mode, err := eval.ParseMode(modeName)
	if err != nil {
		return err
	}
	k := opts.k
	if k <= 0 {
		k = a.cfg.Evaluation.K
	}
	model := opts.model
	if model == "" {
		model = a.cfg.Evaluation.Model
	}
	path := opts.questions
	if path == "" {
		path = a.cfg.Questions.Output
	}

	client, err := a.client()
	if err != nil {
		return err
	}
	data, err := a.sink.ReadFile(ctx, path)
	if err != nil {
		return fmt.Errorf("read questions: %w", err)
	}
	qs, err := questions.Decode(data)
	if err != nil {
		return err
	}

	report, err := eval.NewEvaluator(client, client, eval.Options{
		StoreID: storeID,
		K:       k,
		Mode:    mode,
		Model:   model,
	}).WithLogger(a.logger).WithMetrics(a.metrics).Evaluate(ctx, qs)
	if err != nil {
		return err
	}
	report.WriteText(cmd.OutOrStdout())
	return a.writeArtifact(ctx, opts.output, report)
}

// =============================================================================
// Visualization Handlers
// =============================================================================

func runVisualize(cmd *cobra.Command, opts visualizeOptions) (err error) {
	ctx, a, err := newApp(cmd, "visualize")
	if err != nil {
		return err
	}
	defer func() { a.close(err) }()

	storeID, err := a.storeID(cmd, opts.storeID)
	if err != nil {
		return err
	}
	ctx = observability.AddStoreID(ctx, storeID)
	client, err := a.client()
	if err != nil {
		return err
	}
	return visualizeStore(ctx, cmd, a, client, storeID, opts)
}

func runCreateAndVisualize(cmd *cobra.Command, name, pdfDir, uploadStats string, opts visualizeOptions) (err error) {
	ctx, a, err := newApp(cmd, "create_and_visualize")
	if err != nil {
		return err
	}
	defer func() { a.close(err) }()

	client, err := a.client()
	if err != nil {
		return err
	}
	store, err := client.CreateStore(ctx, name)
	if err != nil {
		return err
	}
	ctx = observability.AddStoreID(ctx, store.ID)
	fmt.Fprintf(cmd.OutOrStdout(), "Created vector store %s (%s)\n", store.Name, store.ID)

	stats, err := uploadDir(ctx, a, client, cmd.ErrOrStderr(), store.ID, pdfDir, a.cfg.Upload.Workers)
	if err != nil {
		return err
	}
	printUploadSummary(cmd.OutOrStdout(), stats)
	if err := a.writeArtifact(ctx, uploadStats, stats); err != nil {
		return err
	}
	if stats.SuccessfulUploads == 0 {
		return fmt.Errorf("no files uploaded to %s: %w", store.ID, visualize.ErrEmptyStore)
	}
	return visualizeStore(ctx, cmd, a, client, store.ID, opts)
}

// visualizeStore builds the plot for a store, then writes the static page
// and/or serves the dashboard. A static file is written unless only the
// dashboard was requested.
func visualizeStore(ctx context.Context, cmd *cobra.Command, a *app, client *filesearch.Client, storeID string, opts visualizeOptions) error {
	vc := a.cfg.Visualize
	if opts.maxResults > 0 {
		vc.MaxResults = opts.maxResults
	}
	if opts.addr != "" {
		vc.Addr = opts.addr
	}

	emb, err := a.embedder(ctx)
	if err != nil {
		return err
	}
	chunkCfg := chunker.DefaultConfig()
	chunkCfg.Size = vc.ChunkSize
	chunkCfg.Overlap = vc.ChunkOverlap
	source := visualize.NewSource(client, emb,
		visualize.WithMaxResults(vc.MaxResults),
		visualize.WithBatchSize(vc.Embeddings.BatchSize),
		visualize.WithChunker(chunker.NewRecursive(chunkCfg)),
		visualize.WithSourceLogger(a.logger),
	)
	items, err := source.Collect(ctx, storeID)
	if err != nil {
		return err
	}

	plot, err := visualize.Build(ctx, items, visualize.Options{
		Neighbors:      vc.Neighbors,
		MinDist:        vc.MinDist,
		Metric:         vc.Metric,
		Epochs:         vc.Epochs,
		Seed:           vc.Seed,
		MinClusterSize: vc.MinClusterSize,
		MinSamples:     vc.MinSamples,
		ClusterEpsilon: vc.ClusterEpsilon,
	}, a.logger)
	if err != nil {
		return err
	}
	plot.StoreID = storeID
	plot.Record(a.metrics)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Plotted %d chunks in %d clusters (%d noise)\n", len(plot.Points), plot.Clusters, plot.Noise)

	if !opts.serve || opts.output != "" {
		dest := opts.output
		if dest == "" {
			dest = vc.Output
		}
		page, err := visualize.HTML(plot)
		if err != nil {
			return err
		}
		ref, err := a.sink.WriteFile(ctx, dest, page, "text/html")
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Visualization saved to %s\n", ref)
	}
	if !opts.serve {
		return nil
	}

	srv, err := visualize.NewServer(plot, a.metrics, a.logger)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Dashboard running at http://%s (Ctrl+C to stop)\n", vc.Addr)
	return srv.ListenAndServe(ctx, vc.Addr)
}

// =============================================================================
// Utility Handlers
// =============================================================================

func runFetchSamples(cmd *cobra.Command, targetDir string, sources, urls []string) (err error) {
	ctx, a, err := newApp(cmd, "fetch_samples")
	if err != nil {
		return err
	}
	defer func() { a.close(err) }()

	if len(sources) == 0 && len(urls) == 0 {
		_ = cmd.Usage()
		return errors.New("pass at least one --local_pdfs path or --url")
	}
	res, err := upload.NewFetcher(nil, a.logger).Fetch(ctx, targetDir, sources, urls)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Fetched %d, skipped %d, failed %d into %s\n",
		len(res.Fetched), len(res.Skipped), len(res.Failed), targetDir)
	if len(res.Fetched)+len(res.Skipped) == 0 {
		return fmt.Errorf("no sample PDFs available in %s", targetDir)
	}
	return nil
}

// =============================================================================
// Output helpers
// =============================================================================

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
