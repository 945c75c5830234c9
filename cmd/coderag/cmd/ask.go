package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/coderag/internal/answer"
	"github.com/Aman-CERP/coderag/internal/mcp"
	"github.com/Aman-CERP/coderag/internal/ui"
)

func newAskCmd() *cobra.Command {
	var (
		repo       string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from the indexed code with citations",
		Long: `Ask runs one answer turn: retrieve, check confidence, rewrite the
question and retry while confidence is low, then answer from the best
context found. A fixed fallback message is returned when nothing relevant
is found.`,
		Example: `  coderag ask "how does the api send a fax?"
  coderag ask "web: where is the theme defined?" --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			p := newPipeline(cfg, pipelineOptions{telemetry: true})
			defer func() { _ = p.Close() }()

			loop, err := p.loop()
			if err != nil {
				return fmt.Errorf("generator unavailable: %w", err)
			}
			turn, err := loop.Run(cmd.Context(), strings.Join(args, " "), repo)
			if err != nil {
				return err
			}
			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(answerOutput(turn))
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), ui.FormatTurn(turn, ui.GetStyles(noColor())))
			return err
		},
	}

	cmd.Flags().StringVarP(&repo, "repo", "r", "", "Repo to ask when routing finds none")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

// answerOutput is the same shape rag_answer returns.
func answerOutput(t answer.Turn) mcp.RagAnswerOutput {
	return mcp.RagAnswerOutput{
		Answer:       t.Answer,
		Citations:    t.Citations,
		Repo:         t.Repo,
		Confidence:   t.Confidence,
		Outcome:      string(t.Outcome),
		Iterations:   t.Iterations,
		Supplemented: t.Supplemented,
		Degraded:     t.Degraded,
	}
}
