// Package cmd provides the CLI commands for coderag.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/coderag/internal/config"
	cerrors "github.com/Aman-CERP/coderag/internal/errors"
	"github.com/Aman-CERP/coderag/internal/logging"
	"github.com/Aman-CERP/coderag/internal/ui"
	"github.com/Aman-CERP/coderag/pkg/version"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	project string
	debug   bool
	noColor bool
}

var (
	globals        globalOptions
	loggingCleanup func()
)

// NewRootCmd creates the root command for the coderag CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "coderag",
		Short: "Hybrid code search and answers over local indexes",
		Long: `coderag answers developer questions about a codebase.

Questions are routed to a repo, expanded into variants, searched with
dense and lexical retrieval, fused and reranked. Answers cite the
snippets they were built from, and low-confidence retrievals are retried
with rewritten questions before falling back.

Run 'coderag index' after exporting chunks.jsonl for a repo, then
'coderag ask', 'coderag chat' or 'coderag serve' for MCP clients.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("coderag version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&globals.project, "project", "C", ".", "Project directory holding .coderag.yaml")
	cmd.PersistentFlags().BoolVar(&globals.debug, "debug", false, "Enable debug logging (also written to stderr)")
	cmd.PersistentFlags().BoolVar(&globals.noColor, "no-color", false, "Disable colored output")

	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newAskCmd())
	cmd.AddCommand(newChatCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newEvalCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startLogging routes slog to the rotating log file. serve configures its
// own file-only logger because stdout carries the MCP protocol.
func startLogging(cmd *cobra.Command, _ []string) error {
	if cmd.Name() == "serve" {
		return nil
	}
	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	if globals.debug {
		logCfg = logging.DebugConfig()
	}
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Debug("command_started", slog.String("command", cmd.CommandPath()), slog.String("version", version.Version))
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		// post-run hooks are skipped on error, so the log file is still open
		if loggingCleanup != nil {
			slog.Error("command_failed", cerrors.LogAttrs(err)...)
			_ = stopLogging(nil, nil)
		}
		_, _ = fmt.Fprint(os.Stderr, cerrors.FormatForCLI(err))
	}
	return err
}

// loadConfig resolves the project root from --project and loads its config.
func loadConfig() (*config.Config, string, error) {
	root, err := config.FindProjectRoot(globals.project)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(root)
	if err != nil {
		return nil, "", err
	}
	return cfg, root, nil
}

// noColor reports whether styling should be disabled.
func noColor() bool {
	return globals.noColor || ui.DetectNoColor()
}

// resolveRepo returns flag when set, else the configured fallback.
func resolveRepo(cfg *config.Config, flag string) string {
	if flag != "" {
		return flag
	}
	return cfg.FallbackRepo()
}

// repoNames lists configured repos, or the fallback repo when none are.
func repoNames(cfg *config.Config) []string {
	if names := cfg.RepoNames(); len(names) > 0 {
		return names
	}
	return []string{cfg.FallbackRepo()}
}
