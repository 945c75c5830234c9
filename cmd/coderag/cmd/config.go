package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/coderag/configs"
	"github.com/Aman-CERP/coderag/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage coderag configuration.

Configuration precedence (lowest to highest):
  1. Built-in defaults
  2. User config (~/.config/coderag/config.yaml)
  3. Project config (.coderag.yaml)
  4. Project .env file
  5. Environment variables (CODERAG_*, REPO, OPENAI_API_KEY, ANTHROPIC_API_KEY)`,
		Example: `  # Create .coderag.yaml from the template
  coderag config init

  # Create the user config instead
  coderag config init --user

  # Show effective configuration
  coderag config show`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force, user bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file from the template",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := config.GetUserConfigPath()
			if !user {
				root, err := config.FindProjectRoot(globals.project)
				if err != nil {
					return err
				}
				path = filepath.Join(root, ".coderag.yaml")
			}
			return writeConfigTemplate(cmd, path, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	cmd.Flags().BoolVar(&user, "user", false, "Write the user config instead of the project config")

	return cmd
}

func writeConfigTemplate(cmd *cobra.Command, path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(configs.ProjectConfigTemplate), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", path)
	return err
}

func newConfigShowCmd() *cobra.Command {
	var (
		jsonOutput bool
		defaults   bool
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Long: `Show the configuration after merging every source. API keys are never
printed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.NewConfig()
			if !defaults {
				loaded, _, err := loadConfig()
				if err != nil {
					return err
				}
				cfg = loaded
			}
			cfg = redacted(cfg)
			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(cfg)
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("marshal config: %w", err)
			}
			_, err = out.Write(data)
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&defaults, "defaults", false, "Show built-in defaults only")

	return cmd
}

// redacted returns a copy of cfg without credentials.
func redacted(cfg *config.Config) *config.Config {
	c := *cfg
	c.Embeddings.APIKey = ""
	c.Generation.APIKey = ""
	c.Qdrant.APIKey = ""
	return &c
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print configuration file paths",
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, err := config.FindProjectRoot(globals.project)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "user:    %s\n", config.GetUserConfigPath())
			_, err = fmt.Fprintf(out, "project: %s\n", filepath.Join(root, ".coderag.yaml"))
			return err
		},
	}
}
