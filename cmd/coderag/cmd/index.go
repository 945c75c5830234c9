package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/coderag/internal/chunk"
	"github.com/Aman-CERP/coderag/internal/config"
	"github.com/Aman-CERP/coderag/internal/embed"
	"github.com/Aman-CERP/coderag/internal/generate"
	"github.com/Aman-CERP/coderag/internal/index"
	"github.com/Aman-CERP/coderag/internal/search"
	"github.com/Aman-CERP/coderag/internal/store"
	"github.com/Aman-CERP/coderag/internal/ui"
)

// indexOptions holds CLI flags for index.
type indexOptions struct {
	all     bool
	check   bool
	plain   bool
	noDense bool
	cards   string
}

func newIndexCmd() *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index [repo...]",
		Short: "Build search indexes from exported snippets",
		Long: `Index reads <data_root>/<repo>/chunks.jsonl (and cards.jsonl when
present) and writes the lexical index with its position map, the cards
index, and the dense vectors. The manifest is written last; a running
'coderag serve' reloads the repo once it appears.

With no arguments the default repo is indexed.`,
		Example: `  coderag index
  coderag index api web
  coderag index --all --cards pattern
  coderag index --check`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd.Context(), cmd, args, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.all, "all", false, "Index every configured repo")
	cmd.Flags().BoolVar(&opts.check, "check", false, "Verify built indexes against their snippets instead of building")
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "Plain progress output")
	cmd.Flags().BoolVar(&opts.noDense, "no-dense", false, "Skip embeddings")
	cmd.Flags().StringVar(&opts.cards, "cards", "", "Card source: existing, pattern, llm (default index.cards)")

	return cmd
}

func indexTargets(cfg *config.Config, args []string, all bool) []string {
	switch {
	case all:
		return repoNames(cfg)
	case len(args) > 0:
		return args
	default:
		return []string{cfg.FallbackRepo()}
	}
}

func runIndex(ctx context.Context, cmd *cobra.Command, args []string, opts indexOptions) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if opts.cards != "" {
		cfg.Index.Cards = opts.cards
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	repos := indexTargets(cfg, args, opts.all)
	out := cmd.OutOrStdout()

	var vectors store.VectorIndex
	if !opts.noDense {
		v, err := search.OpenVectorIndex(cfg)
		if err != nil {
			slog.Warn("vector_index_unavailable", slog.String("error", err.Error()))
		} else {
			vectors = v
			defer func() { _ = v.Close() }()
		}
	}

	if opts.check {
		return runIndexCheck(ctx, out, cfg, vectors, repos)
	}

	deps := index.BuilderDependencies{Config: cfg}
	if vectors != nil {
		e, err := embed.NewFromConfig(cfg.Embeddings)
		if err != nil {
			return err
		}
		defer func() { _ = e.Close() }()
		deps.Embedder = e
		deps.Vectors = vectors
	}
	if cfg.Index.Enrich {
		ex := chunk.NewExtractor()
		defer ex.Close()
		deps.Extractor = ex
	}
	switch cfg.Index.Cards {
	case "llm":
		gen, err := generate.NewGuardedFromConfig(cfg.Generation)
		if err != nil {
			return err
		}
		defer func() { _ = gen.Close() }()
		deps.Cards = index.NewHybridCards(index.NewLLMCards(gen))
	case "pattern":
		deps.Cards = index.NewPatternCards()
	}

	for _, repo := range repos {
		if err := buildRepo(ctx, out, deps, repo, opts.plain); err != nil {
			return fmt.Errorf("index %s: %w", repo, err)
		}
	}
	return nil
}

func buildRepo(ctx context.Context, out io.Writer, deps index.BuilderDependencies, repo string, plain bool) error {
	renderer := ui.NewRenderer(ui.NewConfig(out,
		ui.WithForcePlain(plain),
		ui.WithNoColor(noColor()),
		ui.WithTitle("Indexing "+repo),
	))
	if err := renderer.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = renderer.Stop() }()

	deps.Renderer = renderer
	b, err := index.NewBuilder(deps)
	if err != nil {
		return err
	}
	_, err = b.Build(ctx, repo)
	return err
}

func runIndexCheck(ctx context.Context, out io.Writer, cfg *config.Config, vectors store.VectorIndex, repos []string) error {
	checker := index.NewConsistencyChecker(cfg, vectors)
	bad := 0
	for _, repo := range repos {
		res, err := checker.Check(ctx, repo)
		if err != nil {
			return fmt.Errorf("check %s: %w", repo, err)
		}
		if res.Consistent() {
			_, _ = fmt.Fprintf(out, "%s: ok (%d snippets)\n", repo, res.Checked)
			continue
		}
		bad++
		_, _ = fmt.Fprintf(out, "%s: %d issue(s) in %d snippets\n", repo, len(res.Inconsistencies), res.Checked)
		for i, inc := range res.Inconsistencies {
			if i == 20 {
				_, _ = fmt.Fprintf(out, "  ... %d more\n", len(res.Inconsistencies)-i)
				break
			}
			if inc.SnippetID != "" {
				_, _ = fmt.Fprintf(out, "  %s %s: %s\n", inc.Type, inc.SnippetID, inc.Details)
			} else {
				_, _ = fmt.Fprintf(out, "  %s: %s\n", inc.Type, inc.Details)
			}
		}
	}
	if bad > 0 {
		return fmt.Errorf("%d repo(s) need 'coderag index'", bad)
	}
	return nil
}
