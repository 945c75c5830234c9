package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/coderag/internal/mcp"
	"github.com/Aman-CERP/coderag/internal/search"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	repo        string
	limit       int
	expansions  int
	format      string // "text", "json"
	lexicalOnly bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <question>",
		Short: "Retrieve ranked code locations without generating an answer",
		Long: `Search routes the question to a repo, expands it into variants, runs
dense and lexical retrieval for each, fuses and reranks the union.

Examples:
  coderag search "where are outbound faxes queued"
  coderag search "web: theme provider" --limit 5
  coderag search "retry policy" --expansions 1 --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.repo, "repo", "r", "", "Repo to search when routing finds none")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (default retrieval.final_k)")
	cmd.Flags().IntVarP(&opts.expansions, "expansions", "m", 0, "Query variants (default retrieval.expansions)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.lexicalOnly, "lexical-only", false, "Skip dense retrieval")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, question string, opts searchOptions) error {
	if opts.format != "text" && opts.format != "json" {
		return fmt.Errorf("invalid format %q (use text or json)", opts.format)
	}
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	p := newPipeline(cfg, pipelineOptions{lexicalOnly: opts.lexicalOnly, telemetry: true})
	defer func() { _ = p.Close() }()

	finalK := opts.limit
	if finalK <= 0 {
		finalK = cfg.Retrieval.FinalK
	}
	m := opts.expansions
	if m <= 0 {
		m = cfg.Retrieval.Expansions
	}

	slog.Info("search_started", slog.String("question", question), slog.Int("final_k", finalK), slog.Int("variants", m))
	start := time.Now()
	ret, err := p.orch.SearchMulti(ctx, question, opts.repo, m, finalK)
	if err != nil {
		return err
	}
	if p.metrics != nil {
		p.metrics.RecordSearch(ret.Repo, question, len(ret.Candidates), ret.Degraded, time.Since(start))
	}
	slog.Info("search_complete", slog.String("repo", ret.Repo), slog.Int("results", len(ret.Candidates)))

	return writeSearchResults(cmd, ret, opts.format)
}

func writeSearchResults(cmd *cobra.Command, ret search.Retrieval, format string) error {
	out := &mcp.RagSearchOutput{Repo: ret.Repo, Degraded: ret.Degraded}
	for _, c := range ret.Candidates {
		out.Results = append(out.Results, mcp.ToSearchResultOutput(ret.Repo, c))
	}
	out.Count = len(out.Results)

	if format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	_, err := fmt.Fprint(cmd.OutOrStdout(), mcp.FormatSearchResults(ret.Question, out))
	return err
}
