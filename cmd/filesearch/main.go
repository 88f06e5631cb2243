// Package main provides the filesearch CLI: vector store creation, batch PDF
// upload, similarity and search-augmented queries, question generation,
// retrieval evaluation and 3D embedding visualization.
//
// # Basic Usage
//
//	filesearch create_store --store_name papers
//	filesearch upload --store_id vs_123 --pdf_dir ./pdfs --workers 10
//	filesearch search --store_id vs_123 --query "what is attention?"
//	filesearch generate_questions --pdf_dir ./pdfs --output questions.json
//	filesearch evaluate --store_id vs_123 --questions questions.json --k 5
//	filesearch visualize --store_id vs_123 --run_dash
//
// The legacy form "--action <name>" is accepted in place of the subcommand.
//
// # Environment Variables
//
//   - OPENAI_API_KEY: required by every command that calls the API
//   - VECTOR_STORE_ID: default store ID
//   - OPENAI_MODEL: default model for llm_search and evaluation
//   - FILESEARCH_K: default number of results
//   - FILESEARCH_CONFIG: path to a YAML or JSON5 config file
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := buildRootCmd()
	rootCmd.SetArgs(normalizeArgs(os.Args[1:]))
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("command execution failed", "error", err)
		stop()
		os.Exit(1)
	}
}

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	configPath  string
	envFile     string
	apiKey      string
	logLevel    string
	metricsFile string
}

var globals globalFlags

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "filesearch",
		Short: "Manage, query and evaluate OpenAI vector stores",
		Long: `filesearch creates OpenAI vector stores, uploads PDFs into them, runs
similarity and search-augmented queries, generates evaluation questions,
measures retrieval quality and renders 3D maps of the stored embeddings.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&globals.configPath, "config", "c", "", "Path to YAML or JSON5 configuration file (or set FILESEARCH_CONFIG)")
	pf.StringVar(&globals.envFile, "env_file", "", "Path to a .env file (default ./.env when present)")
	pf.StringVar(&globals.apiKey, "api_key", "", "OpenAI API key (overrides OPENAI_API_KEY)")
	pf.StringVar(&globals.logLevel, "log_level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&globals.metricsFile, "metrics_file", "", "Write Prometheus metrics to this file on exit")

	rootCmd.AddCommand(
		buildCreateStoreCmd(),
		buildStoreInfoCmd(),
		buildUploadCmd(),
		buildSearchCmd(),
		buildLLMSearchCmd(),
		buildGenerateQuestionsCmd(),
		buildEvaluateCmd(),
		buildVisualizeCmd(),
		buildCreateAndVisualizeCmd(),
		buildFetchSamplesCmd(),
	)
	rootCmd.SetGlobalNormalizationFunc(underscoreFlags)
	return rootCmd
}

// underscoreFlags lets --store-id and --store_id name the same flag.
func underscoreFlags(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "-", "_"))
}

// normalizeArgs rewrites "--action name" into a leading subcommand.
func normalizeArgs(args []string) []string {
	var action string
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "--action" && i+1 < len(args):
			action = args[i+1]
			i++
		case strings.HasPrefix(a, "--action="):
			action = strings.TrimPrefix(a, "--action=")
		default:
			out = append(out, a)
		}
	}
	if action == "" {
		return out
	}
	return append([]string{action}, out...)
}
