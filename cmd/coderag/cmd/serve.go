package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/coderag/internal/logging"
	"github.com/Aman-CERP/coderag/internal/mcp"
	"github.com/Aman-CERP/coderag/internal/watcher"
)

func newServeCmd() *cobra.Command {
	var (
		transport string
		noWatch   bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server",
		Long: `Serve exposes rag_search and rag_answer to MCP clients over stdio.

Index directories are watched; when 'coderag index' rebuilds a repo the
server reopens its lexical readers and vectors without restarting.
Logs go to ~/.coderag/logs/coderag.log only, because stdout carries the
protocol.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), transport, noWatch)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "", "Transport (default server.transport; only stdio is supported)")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "Do not reload indexes when they are rebuilt")

	return cmd
}

func runServe(ctx context.Context, transport string, noWatch bool) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	level := cfg.Server.LogLevel
	if globals.debug {
		level = "debug"
	}
	logger, cleanup, err := logging.Setup(logging.ServeConfig(level))
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer cleanup()
	slog.SetDefault(logger)

	if transport == "" {
		transport = cfg.Server.Transport
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := newPipeline(cfg, pipelineOptions{telemetry: true})
	defer func() {
		if err := p.Close(); err != nil {
			slog.Warn("pipeline_close_failed", slog.String("error", err.Error()))
		}
	}()

	// A missing generator still serves rag_search; rag_answer reports it.
	var answerer mcp.Answerer
	if loop, err := p.loop(); err == nil {
		answerer = loop
	}
	srv, err := mcp.NewServer(p.orch, answerer, cfg)
	if err != nil {
		return err
	}
	if p.metrics != nil {
		srv.SetMetrics(p.metrics)
	}

	if !noWatch {
		dirs := make(map[string]string)
		for _, repo := range repoNames(cfg) {
			dirs[repo] = cfg.DataDirFor(repo)
		}
		w, err := watcher.New(dirs, watcher.DefaultOptions())
		if err != nil {
			return fmt.Errorf("create watcher: %w", err)
		}
		if err := w.Start(ctx); err != nil {
			return fmt.Errorf("start watcher: %w", err)
		}
		defer func() { _ = w.Stop() }()
		go watcher.Run(ctx, w, p)
		slog.Info("watching_indexes", slog.Int("repos", len(dirs)), slog.String("mode", w.Type()))
	}

	err = srv.Serve(ctx, transport)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
