package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/coderag/internal/store"
	"github.com/Aman-CERP/coderag/internal/ui"
)

// repoStatusJSON is the JSON form of one repo's status.
type repoStatusJSON struct {
	Name        string          `json:"name"`
	DataDir     string          `json:"data_dir"`
	Collection  string          `json:"collection"`
	HasSnippets bool            `json:"has_snippets"`
	Locked      bool            `json:"locked"`
	Manifest    *store.Manifest `json:"manifest,omitempty"`
	Error       string          `json:"error,omitempty"`
}

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index status for each repo",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			statuses := ui.CollectRepoStatus(cfg)
			if jsonOutput {
				rows := make([]repoStatusJSON, 0, len(statuses))
				for _, st := range statuses {
					row := repoStatusJSON{
						Name:        st.Name,
						DataDir:     st.DataDir,
						Collection:  st.Collection,
						HasSnippets: st.HasSnippets,
						Locked:      st.Locked,
						Manifest:    st.Manifest,
					}
					if st.Err != nil {
						row.Error = st.Err.Error()
					}
					rows = append(rows, row)
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}
			ui.NewStatusRenderer(cmd.OutOrStdout(), noColor()).RenderRepos(statuses, cfg.FallbackRepo())
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}
