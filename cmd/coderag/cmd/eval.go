package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/coderag/internal/eval"
)

// evalOptions holds CLI flags for eval.
type evalOptions struct {
	repo         string
	finalK       int
	expansions   int
	concurrency  int
	saveBaseline string
	compare      string
	jsonOutput   bool
	verbose      bool
	lexicalOnly  bool
}

func newEvalCmd() *cobra.Command {
	var opts evalOptions

	cmd := &cobra.Command{
		Use:   "eval <golden.yaml|golden.json>",
		Short: "Measure retrieval accuracy against a golden question set",
		Long: `Eval runs each golden question through retrieval and reports how often
an expected file is ranked first and within the top k. A case is
{q, repo, expect_paths}; a path matches when it contains an expected
substring.

--save-baseline stores the report; --compare fails when accuracy drops by
more than 5 points or any question loses its top-1 hit.`,
		Example: `  coderag eval eval/golden.yaml -v
  coderag eval eval/golden.yaml --save-baseline eval/baseline.json
  coderag eval eval/golden.yaml --compare eval/baseline.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(cmd.Context(), cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.repo, "repo", "r", "", "Repo for cases that name none")
	cmd.Flags().IntVarP(&opts.finalK, "top-k", "k", 0, "Results per question (default retrieval.final_k)")
	cmd.Flags().IntVarP(&opts.expansions, "expansions", "m", -1, "Query variants; 0 uses single-variant search (default retrieval.expansions)")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 4, "Questions evaluated in parallel")
	cmd.Flags().StringVar(&opts.saveBaseline, "save-baseline", "", "Write the report to this path")
	cmd.Flags().StringVar(&opts.compare, "compare", "", "Compare against a saved baseline")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output the report as JSON")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "List every miss")
	cmd.Flags().BoolVar(&opts.lexicalOnly, "lexical-only", false, "Skip dense retrieval")

	return cmd
}

var errRegression = errors.New("retrieval regressed against baseline")

func runEval(ctx context.Context, cmd *cobra.Command, goldenPath string, opts evalOptions) error {
	cases, err := eval.LoadGolden(goldenPath)
	if err != nil {
		return err
	}
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	p := newPipeline(cfg, pipelineOptions{lexicalOnly: opts.lexicalOnly})
	defer func() { _ = p.Close() }()

	expansions := opts.expansions
	if expansions < 0 {
		expansions = cfg.Retrieval.Expansions
	}
	finalK := opts.finalK
	if finalK <= 0 {
		finalK = cfg.Retrieval.FinalK
	}
	runner := eval.NewRunner(p.orch, eval.Options{
		DefaultRepo: resolveRepo(cfg, opts.repo),
		FinalK:      finalK,
		Expansions:  expansions,
		Concurrency: opts.concurrency,
	})
	rep, err := runner.Run(ctx, cases)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			return err
		}
	} else {
		eval.WriteReport(out, rep, opts.verbose)
	}

	if opts.saveBaseline != "" {
		if err := eval.SaveBaseline(opts.saveBaseline, rep); err != nil {
			return fmt.Errorf("save baseline: %w", err)
		}
		if !opts.jsonOutput {
			_, _ = fmt.Fprintf(out, "\nBaseline saved to %s\n", opts.saveBaseline)
		}
	}

	if opts.compare != "" {
		baseline, err := eval.LoadBaseline(opts.compare)
		if err != nil {
			return fmt.Errorf("load baseline: %w", err)
		}
		cmp := eval.Compare(rep, baseline)
		if !opts.jsonOutput {
			_, _ = fmt.Fprintln(out)
			eval.WriteComparison(out, cmp)
		}
		if !cmp.Passed() {
			return errRegression
		}
	}
	return nil
}
