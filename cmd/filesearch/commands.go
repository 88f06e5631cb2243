package main

import (
	"github.com/haasonsaas/filesearch/internal/upload"
	"github.com/spf13/cobra"
)

// =============================================================================
// Store Commands
// =============================================================================

func buildCreateStoreCmd() *cobra.Command {
	var name, output string
	cmd := &cobra.Command{
		Use:     "create_store",
		Aliases: []string{"create-store"},
		Short:   "Create a vector store and write its details",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreateStore(cmd, name, output)
		},
	}
	cmd.Flags().StringVar(&name, "store_name", "", "Name for the vector store")
	cmd.Flags().StringVar(&output, "output", "store_details.json", "Write store details to this path (local or s3://)")
	cobra.CheckErr(cmd.MarkFlagRequired("store_name"))
	return cmd
}

func buildStoreInfoCmd() *cobra.Command {
	var storeID string
	cmd := &cobra.Command{
		Use:     "store-info",
		Aliases: []string{"store_info"},
		Short:   "Show a vector store and its files",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStoreInfo(cmd, storeID)
		},
	}
	cmd.Flags().StringVar(&storeID, "store_id", "", "Vector store ID (or set VECTOR_STORE_ID)")
	return cmd
}

func buildUploadCmd() *cobra.Command {
	var opts uploadOptions
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload every PDF in a directory to a vector store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpload(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.storeID, "store_id", "", "Vector store ID (or set VECTOR_STORE_ID)")
	cmd.Flags().StringVar(&opts.pdfDir, "pdf_dir", "", "Directory containing PDF files")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "Concurrent uploads (default from config, 10)")
	cmd.Flags().StringVar(&opts.output, "output", "", "Write upload stats to this path")
	cmd.Flags().StringVar(&opts.output, "upload_stats", "", "Alias of --output")
	cobra.CheckErr(cmd.MarkFlagRequired("pdf_dir"))
	return cmd
}

// =============================================================================
// Query Commands
// =============================================================================

func buildSearchCmd() *cobra.Command {
	var opts searchOptions
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Run a similarity search against a vector store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.storeID, "store_id", "", "Vector store ID (or set VECTOR_STORE_ID)")
	cmd.Flags().StringVar(&opts.query, "query", "", "Search query")
	cmd.Flags().IntVar(&opts.k, "k", 0, "Number of results (default from FILESEARCH_K, 5)")
	cmd.Flags().StringVar(&opts.output, "output", "", "Write results as JSON to this path")
	cmd.Flags().BoolVarP(&opts.interactive, "interactive", "i", false, "Open the terminal search UI")
	return cmd
}

func buildLLMSearchCmd() *cobra.Command {
	var opts searchOptions
	cmd := &cobra.Command{
		Use:     "llm_search",
		Aliases: []string{"llm-search"},
		Short:   "Answer a query with a model grounded on file search",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLLMSearch(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.storeID, "store_id", "", "Vector store ID (or set VECTOR_STORE_ID)")
	cmd.Flags().StringVar(&opts.query, "query", "", "Search query")
	cmd.Flags().IntVar(&opts.k, "k", 0, "Number of search results given to the model")
	cmd.Flags().StringVar(&opts.model, "model", "", "Model name (default from OPENAI_MODEL, gpt-4o-mini)")
	cmd.Flags().StringVar(&opts.output, "output", "", "Write the answer as JSON to this path")
	cobra.CheckErr(cmd.MarkFlagRequired("query"))
	return cmd
}

// =============================================================================
// Evaluation Commands
// =============================================================================

func buildGenerateQuestionsCmd() *cobra.Command {
	var opts generateOptions
	cmd := &cobra.Command{
		Use:     "generate_questions",
		Aliases: []string{"generate-questions"},
		Short:   "Generate document-specific questions for every PDF in a directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerateQuestions(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.pdfDir, "pdf_dir", "", "Directory containing PDF files")
	cmd.Flags().IntVar(&opts.perDocument, "questions_per_pdf", 0, "Questions per document (default 1)")
	cmd.Flags().IntVar(&opts.maxChars, "max_chars", 0, "Character budget of extracted text per document")
	cmd.Flags().StringVar(&opts.model, "model", "", "Model name (default gpt-4o)")
	cmd.Flags().StringVar(&opts.output, "output", "", "Questions file (default questions.json)")
	cobra.CheckErr(cmd.MarkFlagRequired("pdf_dir"))
	return cmd
}

func buildEvaluateCmd() *cobra.Command {
	var opts evaluateOptions
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Measure retrieval quality against a questions file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluate(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.storeID, "store_id", "", "Vector store ID (or set VECTOR_STORE_ID)")
	cmd.Flags().StringVar(&opts.questions, "questions", "", "Questions file (default questions.json)")
	cmd.Flags().StringVar(&opts.mode, "mode", "", "Retrieval mode: search or llm")
	cmd.Flags().IntVar(&opts.k, "k", 0, "Results considered per question")
	cmd.Flags().StringVar(&opts.model, "model", "", "Model for llm mode")
	cmd.Flags().StringVar(&opts.output, "output", "", "Write the JSON report to this path")
	return cmd
}

// =============================================================================
// Visualization Commands
// =============================================================================

func addVisualizeFlags(cmd *cobra.Command, opts *visualizeOptions) {
	cmd.Flags().IntVar(&opts.maxResults, "max_results", 0, "Maximum number of embeddings to plot (default 1000)")
	cmd.Flags().StringVar(&opts.output, "output", "", "Output HTML path (default vector_store_visualization.html)")
	cmd.Flags().BoolVar(&opts.serve, "run_dash", false, "Serve the interactive dashboard")
	cmd.Flags().BoolVar(&opts.serve, "serve", false, "Alias of --run_dash")
	cmd.Flags().StringVar(&opts.addr, "addr", "", "Dashboard listen address (default 127.0.0.1:8050)")
}

func buildVisualizeCmd() *cobra.Command {
	var opts visualizeOptions
	cmd := &cobra.Command{
		Use:   "visualize",
		Short: "Render a 3D cluster map of a vector store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVisualize(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.storeID, "store_id", "", "Vector store ID (or set VECTOR_STORE_ID)")
	addVisualizeFlags(cmd, &opts)
	return cmd
}

func buildCreateAndVisualizeCmd() *cobra.Command {
	var (
		opts        visualizeOptions
		name        string
		pdfDir      string
		uploadStats string
	)
	cmd := &cobra.Command{
		Use:     "create-and-visualize",
		Aliases: []string{"create_and_visualize"},
		Short:   "Create a store, upload a PDF directory and visualize it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreateAndVisualize(cmd, name, pdfDir, uploadStats, opts)
		},
	}
	cmd.Flags().StringVar(&name, "store_name", "", "Name for the vector store")
	cmd.Flags().StringVar(&pdfDir, "pdf_dir", "", "Directory containing PDF files")
	cmd.Flags().StringVar(&uploadStats, "upload_stats", "", "Write upload stats to this path")
	addVisualizeFlags(cmd, &opts)
	cobra.CheckErr(cmd.MarkFlagRequired("store_name"))
	cobra.CheckErr(cmd.MarkFlagRequired("pdf_dir"))
	return cmd
}

// =============================================================================
// Utility Commands
// =============================================================================

func buildFetchSamplesCmd() *cobra.Command {
	var (
		targetDir string
		sources   []string
		urls      []string
	)
	cmd := &cobra.Command{
		Use:     "fetch-samples",
		Aliases: []string{"fetch_samples"},
		Short:   "Collect sample PDFs into a directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetchSamples(cmd, targetDir, sources, urls)
		},
	}
	cmd.Flags().StringVar(&targetDir, "target_dir", upload.DefaultSampleDir, "Target directory for PDFs")
	cmd.Flags().StringSliceVar(&sources, "local_pdfs", nil, "Local PDF paths to copy")
	cmd.Flags().StringSliceVar(&urls, "url", nil, "PDF URLs to download")
	return cmd
}
