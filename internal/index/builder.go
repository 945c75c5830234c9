// Package index builds the on-disk indexes a repo is searched with: the
// lexical index and its position map, the cards index, and the dense
// vectors. A build holds the repo's index lock and writes the manifest last,
// so readers and the watcher only see a repo as rebuilt once it is whole.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Aman-CERP/coderag/internal/chunk"
	"github.com/Aman-CERP/coderag/internal/config"
	"github.com/Aman-CERP/coderag/internal/embed"
	cerrors "github.com/Aman-CERP/coderag/internal/errors"
	"github.com/Aman-CERP/coderag/internal/store"
	"github.com/Aman-CERP/coderag/internal/ui"
	"github.com/Aman-CERP/coderag/pkg/version"
)

const maxEmbedChars = 6000

// BuilderDependencies contains the injected dependencies for Builder.
type BuilderDependencies struct {
	// Renderer for progress display (required).
	Renderer ui.Renderer

	// Config is the loaded configuration (required).
	Config *config.Config

	// Embedder and Vectors enable the dense stage. Either nil skips it.
	Embedder embed.Embedder
	Vectors  store.VectorIndex

	// Extractor fills missing symbols and imports when index.enrich is set.
	Extractor *chunk.Extractor

	// Cards generates missing cards when index.cards is not "existing".
	Cards CardGenerator
}

// Builder runs index builds for configured repos.
type Builder struct {
	renderer  ui.Renderer
	cfg       *config.Config
	embedder  embed.Embedder
	vectors   store.VectorIndex
	extractor *chunk.Extractor
	cards     CardGenerator
	now       func() time.Time
}

// NewBuilder creates a Builder with injected dependencies.
func NewBuilder(deps BuilderDependencies) (*Builder, error) {
	if deps.Renderer == nil {
		return nil, fmt.Errorf("renderer is required")
	}
	if deps.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cards := deps.Cards
	if cards == nil {
		cards = NewPatternCards()
	}
	return &Builder{
		renderer:  deps.Renderer,
		cfg:       deps.Config,
		embedder:  deps.Embedder,
		vectors:   deps.Vectors,
		extractor: deps.Extractor,
		cards:     cards,
		now:       time.Now,
	}, nil
}

// BuildResult is the outcome of one build.
type BuildResult struct {
	Manifest store.Manifest
	Duration time.Duration
	Errors   int
	Warnings int
	Enriched int
}

// stageTiming tracks duration for each build stage.
type stageTiming struct {
	load   time.Duration
	sparse time.Duration
	cards  time.Duration
	embed  time.Duration
}

// build carries the per-run state.
type build struct {
	repo     string
	dir      string
	errors   int
	warnings int
}

func (b *Builder) warn(run *build, snippet string, err error) {
	run.warnings++
	b.renderer.AddError(ui.ErrorEvent{Snippet: snippet, Err: err, IsWarn: true})
}

func (b *Builder) fail(run *build, snippet string, err error) {
	run.errors++
	b.renderer.AddError(ui.ErrorEvent{Snippet: snippet, Err: err})
}

// Build indexes repo from the snippets in its data directory.
func (b *Builder) Build(ctx context.Context, repo string) (*BuildResult, error) {
	start := b.now()
	run := &build{repo: repo, dir: b.cfg.DataDirFor(repo)}
	var timing stageTiming

	lock := store.NewIndexLock(run.dir)
	acquired, err := lock.TryLock()
	if err != nil {
		return nil, cerrors.Wrap(cerrors.ErrCodeIndexLocked, err)
	}
	if !acquired {
		return nil, cerrors.New(cerrors.ErrCodeIndexLocked, "index build already running for "+repo, nil).
			WithDetail("lock", lock.Path()).
			WithSuggestion("wait for the other build to finish")
	}
	defer func() { _ = lock.Unlock() }()

	slog.Info("index_started", slog.String("repo", repo), slog.String("dir", run.dir))

	// Stage 1: load and enrich snippets
	stageStart := b.now()
	snippets, enriched, err := b.loadSnippets(ctx, run)
	if err != nil {
		return nil, err
	}
	timing.load = b.now().Sub(stageStart)

	// Stage 2: lexical index
	stageStart = b.now()
	if err := b.buildSparse(ctx, run, snippets); err != nil {
		return nil, err
	}
	timing.sparse = b.now().Sub(stageStart)

	// Stage 3: cards
	stageStart = b.now()
	cardCount, err := b.buildCards(ctx, run, snippets)
	if err != nil {
		return nil, err
	}
	timing.cards = b.now().Sub(stageStart)

	// Stage 4: dense vectors
	stageStart = b.now()
	vectors, dense := b.buildDense(ctx, run, snippets)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	timing.embed = b.now().Sub(stageStart)

	manifest := store.Manifest{
		Repo:     repo,
		BuiltAt:  b.now().UTC(),
		Snippets: len(snippets),
		Cards:    cardCount,
		Vectors:  vectors,
		Sparse:   b.cfg.Retrieval.SparseBackend,
		Dense:    dense,
		Version:  version.Version,
	}
	if b.embedder != nil && dense != "none" {
		manifest.Embedder = b.cfg.Embeddings.Provider
		manifest.Model = b.embedder.ModelName()
		manifest.Dimensions = b.embedder.Dimensions()
	}
	if err := store.WriteManifest(run.dir, manifest); err != nil {
		return nil, cerrors.New(cerrors.ErrCodeInternal, "write manifest", err)
	}

	duration := b.now().Sub(start)
	b.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageComplete})
	b.renderer.Complete(ui.CompletionStats{
		Repo:     repo,
		Snippets: len(snippets),
		Cards:    cardCount,
		Vectors:  vectors,
		Duration: duration,
		Errors:   run.errors,
		Warnings: run.warnings,
		Sparse:   manifest.Sparse,
		Dense:    dense,
		Embedder: manifest.Embedder,
	})

	slog.Info("index_complete",
		slog.String("repo", repo),
		slog.Int("snippets", len(snippets)),
		slog.Int("cards", cardCount),
		slog.Int("vectors", vectors),
		slog.Int("enriched", enriched),
		slog.Int64("duration_total_ms", duration.Milliseconds()),
		slog.Int64("duration_load_ms", timing.load.Milliseconds()),
		slog.Int64("duration_sparse_ms", timing.sparse.Milliseconds()),
		slog.Int64("duration_cards_ms", timing.cards.Milliseconds()),
		slog.Int64("duration_embed_ms", timing.embed.Milliseconds()),
		slog.String("sparse_backend", manifest.Sparse),
		slog.String("dense_backend", dense))

	return &BuildResult{
		Manifest: manifest,
		Duration: duration,
		Errors:   run.errors,
		Warnings: run.warnings,
		Enriched: enriched,
	}, nil
}

// loadSnippets reads chunks.jsonl and fills missing symbols. Enriched
// snippets are written back so hydration and the lexical index agree.
func (b *Builder) loadSnippets(ctx context.Context, run *build) ([]store.Snippet, int, error) {
	path := filepath.Join(run.dir, store.SnippetsFile)
	b.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageLoad, Message: "Reading " + path})

	snippets, err := store.LoadSnippets(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, 0, cerrors.New(cerrors.ErrCodeSnippetsMissing, "no snippets at "+path, err).
			WithSuggestion("export chunks.jsonl for this repo first")
	}
	if err != nil {
		return nil, 0, cerrors.New(cerrors.ErrCodeIndexCorrupt, "read "+path, err)
	}
	if len(snippets) == 0 {
		return nil, 0, cerrors.New(cerrors.ErrCodeSnippetsMissing, path+" is empty", nil)
	}

	if !b.cfg.Index.Enrich || b.extractor == nil {
		return snippets, 0, nil
	}
	enriched := 0
	for i := range snippets {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		changed, err := b.extractor.Enrich(ctx, &snippets[i])
		if err != nil {
			b.warn(run, snippets[i].ID, fmt.Errorf("extract symbols: %w", err))
			continue
		}
		if changed {
			enriched++
		}
		b.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageLoad, Current: i + 1, Total: len(snippets)})
	}
	if enriched > 0 {
		if err := writeSnippets(path, snippets); err != nil {
			return nil, 0, cerrors.New(cerrors.ErrCodeInternal, "rewrite "+path, err)
		}
	}
	return snippets, enriched, nil
}

func writeSnippets(path string, snippets []store.Snippet) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := store.WriteSnippets(f, snippets); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// buildSparse writes the lexical index next to a position map whose i-th id
// is the snippet indexed at position i.
func (b *Builder) buildSparse(ctx context.Context, run *build, snippets []store.Snippet) error {
	docs := make([]store.LexicalDoc, len(snippets))
	ids := make([]string, len(snippets))
	for i, s := range snippets {
		docs[i] = store.LexicalDoc{Position: i, Text: store.LexicalText(s)}
		ids[i] = s.ID
	}

	name, open := store.SparseDir, func(p string) (store.LexicalIndex, error) { return store.OpenBleveIndex(p) }
	if b.cfg.Retrieval.SparseBackend == "sqlite" {
		name, open = store.SparseDB, func(p string) (store.LexicalIndex, error) { return store.OpenSQLiteIndex(p) }
	}
	if err := b.writeLexical(ctx, ui.StageSparse, filepath.Join(run.dir, name), open, docs); err != nil {
		return cerrors.New(cerrors.ErrCodeSparseUnavailable, "build lexical index", err)
	}
	if err := store.NewPositionMap(ids).Save(filepath.Join(run.dir, store.PositionsFile)); err != nil {
		return cerrors.New(cerrors.ErrCodeInternal, "write position map", err)
	}
	return nil
}

// writeLexical builds into a sibling path and swaps it into place.
func (b *Builder) writeLexical(ctx context.Context, stage ui.Stage, final string, open func(string) (store.LexicalIndex, error), docs []store.LexicalDoc) error {
	tmp := final + ".building"
	removeIndex(tmp)
	idx, err := open(tmp)
	if err != nil {
		return err
	}

	batch := b.cfg.Index.BatchSize * 8
	for i := 0; i < len(docs); i += batch {
		end := min(i+batch, len(docs))
		if err := idx.Index(ctx, docs[i:end]); err != nil {
			_ = idx.Close()
			removeIndex(tmp)
			return err
		}
		b.renderer.UpdateProgress(ui.ProgressEvent{Stage: stage, Current: end, Total: len(docs)})
	}
	if err := idx.Close(); err != nil {
		removeIndex(tmp)
		return err
	}

	removeIndex(final)
	return os.Rename(tmp, final)
}

// removeIndex deletes a bleve directory or a SQLite file with its journals.
func removeIndex(path string) {
	_ = os.RemoveAll(path)
	_ = os.Remove(path + "-wal")
	_ = os.Remove(path + "-shm")
}

// buildCards indexes cards.jsonl, first generating missing cards unless
// index.cards is "existing". A repo without cards has its stale cards
// index removed.
func (b *Builder) buildCards(ctx context.Context, run *build, snippets []store.Snippet) (int, error) {
	if !b.cfg.Retrieval.CardsEnabled {
		return 0, nil
	}
	path := filepath.Join(run.dir, store.CardsFile)
	cards, err := store.LoadCards(path)
	if err != nil {
		b.warn(run, "", fmt.Errorf("read cards: %w", err))
		cards = nil
	}

	if b.cfg.Index.Cards != "existing" {
		before := len(cards)
		cards, err = FillCards(ctx, b.cards, snippets, cards, b.cfg.Index.CardsMax, func(done, total int) {
			b.renderer.UpdateProgress(ui.ProgressEvent{
				Stage: ui.StageCards, Current: done, Total: total,
				Message: fmt.Sprintf("Generating cards with %s", b.cards.Name()),
			})
		})
		if err != nil {
			return 0, err
		}
		if len(cards) > before {
			if err := store.WriteCards(path, cards); err != nil {
				return 0, cerrors.New(cerrors.ErrCodeInternal, "write cards", err)
			}
		}
	}

	cardsDir := filepath.Join(run.dir, store.CardsDir)
	positions := filepath.Join(run.dir, store.CardPositionsFile)
	if len(cards) == 0 {
		removeIndex(cardsDir)
		_ = os.Remove(positions)
		b.warn(run, "", fmt.Errorf("no cards for %s; card bonus disabled", run.repo))
		return 0, nil
	}

	docs := make([]store.LexicalDoc, len(cards))
	ids := make([]string, len(cards))
	for i, c := range cards {
		docs[i] = store.LexicalDoc{Position: i, Text: c.Text()}
		ids[i] = c.ID
	}
	open := func(p string) (store.LexicalIndex, error) { return store.OpenBleveIndex(p) }
	if err := b.writeLexical(ctx, ui.StageCards, cardsDir, open, docs); err != nil {
		b.fail(run, "", fmt.Errorf("cards index: %w", err))
		return 0, nil
	}
	if err := store.NewPositionMap(ids).Save(positions); err != nil {
		return 0, cerrors.New(cerrors.ErrCodeInternal, "write card positions", err)
	}
	return len(cards), nil
}

// buildDense embeds every snippet into the repo collection. A failing batch
// stops the stage; the build still completes with lexical retrieval. It
// returns the number of vectors written and the dense backend name.
func (b *Builder) buildDense(ctx context.Context, run *build, snippets []store.Snippet) (int, string) {
	if b.embedder == nil || b.vectors == nil {
		b.warn(run, "", fmt.Errorf("no embedder or vector store; dense retrieval disabled"))
		return 0, "none"
	}
	backend := b.cfg.Retrieval.DenseBackend
	collection := b.cfg.CollectionFor(run.repo)

	if r, ok := b.vectors.(interface{ Reset(string) }); ok {
		r.Reset(collection)
	}
	if e, ok := b.vectors.(interface {
		EnsureCollection(context.Context, string, int) error
	}); ok {
		if err := e.EnsureCollection(ctx, collection, b.embedder.Dimensions()); err != nil {
			b.fail(run, "", cerrors.New(cerrors.ErrCodeDenseUnavailable, "ensure collection "+collection, err))
			return 0, "none"
		}
	}

	written := 0
	batch := b.cfg.Index.BatchSize
	b.renderer.UpdateProgress(ui.ProgressEvent{
		Stage: ui.StageEmbed, Total: len(snippets),
		Message: fmt.Sprintf("Embedding with %s into %s", b.embedder.ModelName(), collection),
	})
	for i := 0; i < len(snippets); i += batch {
		end := min(i+batch, len(snippets))
		part := snippets[i:end]

		texts := make([]string, len(part))
		for j, s := range part {
			texts[j] = embedText(s)
		}
		vecs, err := b.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			b.fail(run, part[0].ID, cerrors.New(cerrors.ErrCodeEmbedderUnavailable, "embed batch", err))
			break
		}
		points := make([]store.VectorPoint, len(part))
		for j, s := range part {
			points[j] = store.VectorPoint{ID: s.ID, Vector: vecs[j], Meta: s}
		}
		if err := b.vectors.Upsert(ctx, collection, points); err != nil {
			b.fail(run, part[0].ID, cerrors.New(cerrors.ErrCodeDenseUnavailable, "upsert batch", err))
			break
		}
		written += len(points)
		b.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageEmbed, Current: end, Total: len(snippets)})
	}

	if s, ok := b.vectors.(interface{ Save() error }); ok {
		if err := s.Save(); err != nil {
			b.fail(run, "", fmt.Errorf("save vectors: %w", err))
		}
	}
	return written, backend
}

// embedText is the text embedded for a snippet: its path, then the body.
func embedText(s store.Snippet) string {
	text := s.FilePath + "\n" + s.Code
	if len(text) > maxEmbedChars {
		text = text[:maxEmbedChars]
	}
	return text
}
