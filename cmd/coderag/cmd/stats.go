package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/coderag/internal/telemetry"
	"github.com/Aman-CERP/coderag/internal/ui"
)

func newStatsCmd() *cobra.Command {
	var (
		jsonOutput bool
		days       int
		top        int
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show usage telemetry",
		Long: `Display recorded search and answer turns: outcomes, repos, latency
distribution, mean confidence and iterations, top question terms and
questions that returned nothing.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if _, err := os.Stat(cfg.Telemetry.Path); os.IsNotExist(err) {
				_, err := fmt.Fprintln(out, "No telemetry recorded yet. Run 'coderag ask' or 'coderag serve' first.")
				return err
			}

			db, err := telemetry.Open(cfg.Telemetry.Path)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			from, to := telemetry.LastDays(time.Now(), days)
			sum, err := db.Summarize(from, to, top)
			if err != nil {
				return err
			}
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(sum)
			}
			ui.NewStatusRenderer(out, noColor()).RenderSummary(sum)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().IntVar(&days, "days", 7, "Number of days to include")
	cmd.Flags().IntVar(&top, "top", 10, "Number of top terms to show")

	return cmd
}
