package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/coderag/internal/ui"
)

func newChatCmd() *cobra.Command {
	var (
		repo    string
		saveDir string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive question answering",
		Long: `Chat keeps a conversation against one repo. Commands:
  /repo <name>   switch repo
  /save [path]   write the conversation as markdown
  /clear         forget the conversation
  /help          list commands
  /exit          quit

A full-screen interface is used on a terminal, line mode otherwise.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, root, err := loadConfig()
			if err != nil {
				return err
			}
			p := newPipeline(cfg, pipelineOptions{telemetry: true})
			defer func() { _ = p.Close() }()

			loop, err := p.loop()
			if err != nil {
				return fmt.Errorf("generator unavailable: %w", err)
			}
			if saveDir == "" {
				saveDir = root
			}
			session := ui.NewChatSession(loop, repoNames(cfg), resolveRepo(cfg, repo), saveDir)
			return ui.RunChat(cmd.Context(), session, cmd.InOrStdin(), cmd.OutOrStdout(), noColor())
		},
	}

	cmd.Flags().StringVarP(&repo, "repo", "r", "", "Starting repo (default: default_repo)")
	cmd.Flags().StringVar(&saveDir, "save-dir", "", "Directory for /save transcripts (default: project root)")

	return cmd
}
