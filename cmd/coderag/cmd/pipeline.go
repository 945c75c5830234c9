package cmd

import (
	"errors"
	"log/slog"

	"github.com/Aman-CERP/coderag/internal/answer"
	"github.com/Aman-CERP/coderag/internal/config"
	"github.com/Aman-CERP/coderag/internal/embed"
	"github.com/Aman-CERP/coderag/internal/generate"
	"github.com/Aman-CERP/coderag/internal/search"
	"github.com/Aman-CERP/coderag/internal/store"
	"github.com/Aman-CERP/coderag/internal/telemetry"
)

// pipelineOptions selects the optional parts of a pipeline.
type pipelineOptions struct {
	// lexicalOnly skips the embedder and vector store.
	lexicalOnly bool
	// telemetry records turns when telemetry.enabled is also set.
	telemetry bool
}

// pipeline is the retrieval and answering stack shared by search, ask,
// chat, eval and serve.
type pipeline struct {
	cfg      *config.Config
	repos    *search.RepoSet
	vectors  store.VectorIndex
	embedder embed.Embedder
	gen      *generate.Guarded
	genErr   error
	orch     *search.Orchestrator
	metrics  *telemetry.Metrics
	stats    *telemetry.SQLiteStore
}

// newPipeline wires the stack. Missing backends degrade retrieval instead of
// failing: no vectors means lexical-only search and no generator means no
// query expansion.
func newPipeline(cfg *config.Config, opts pipelineOptions) *pipeline {
	p := &pipeline{cfg: cfg, repos: search.NewRepoSet(cfg)}

	if !opts.lexicalOnly {
		if e, err := embed.NewFromConfig(cfg.Embeddings); err != nil {
			slog.Warn("embedder_unavailable", slog.String("error", err.Error()))
		} else {
			p.embedder = e
		}
		if v, err := search.OpenVectorIndex(cfg); err != nil {
			slog.Warn("vector_index_unavailable", slog.String("error", err.Error()))
		} else {
			p.vectors = v
		}
	}

	if g, err := generate.NewGuardedFromConfig(cfg.Generation); err != nil {
		slog.Warn("generator_unavailable", slog.String("error", err.Error()))
		p.genErr = err
	} else {
		p.gen = g
	}

	var dense *search.DenseChannel
	if p.embedder != nil && p.vectors != nil {
		dense = search.NewDenseChannel(p.vectors, p.embedder, cfg.Retrieval.ChannelTimeout)
	}
	var expandGen search.Generator
	if p.gen != nil {
		expandGen = p.gen
	}

	rules := search.NewScoringRules(cfg)
	reranker := search.NewReranker(search.NewCrossEncoderFromConfig(cfg.Rerank), rules, cfg.Rerank)
	engine := search.NewEngine(cfg.Retrieval, p.repos, dense, reranker)
	p.orch = search.NewOrchestrator(search.NewRouter(cfg), search.NewExpander(expandGen, 0), engine, reranker, rules, cfg.Retrieval)

	if opts.telemetry && cfg.Telemetry.Enabled {
		if s, err := telemetry.Open(cfg.Telemetry.Path); err != nil {
			slog.Warn("telemetry_unavailable", slog.String("error", err.Error()))
		} else {
			p.stats = s
			p.metrics = telemetry.NewMetrics(s, telemetry.DefaultConfig())
		}
	}
	return p
}

// loop builds the answer loop. It fails only when no generator could be
// created.
func (p *pipeline) loop() (*answer.Loop, error) {
	if p.gen == nil {
		return nil, p.genErr
	}
	l := answer.NewLoop(p.orch, p.gen, generate.NewBudget(p.cfg.Answer.Tokenizer), p.cfg.Answer, p.cfg.Retrieval)
	if p.metrics != nil {
		l.WithRecorder(p.metrics)
	}
	return l, nil
}

// Reload implements watcher.Reloader: reopen lexical readers and drop the
// in-memory vector graph so both follow a rebuild.
func (p *pipeline) Reload(repo string) {
	p.repos.Reload(repo)
	if f, ok := p.vectors.(interface{ Forget(string) }); ok {
		f.Forget(p.cfg.CollectionFor(repo))
	}
}

func (p *pipeline) Close() error {
	var errs []error
	if p.metrics != nil {
		errs = append(errs, p.metrics.Close())
	}
	if p.stats != nil {
		errs = append(errs, p.stats.Close())
	}
	errs = append(errs, p.repos.Close())
	if p.vectors != nil {
		errs = append(errs, p.vectors.Close())
	}
	if p.embedder != nil {
		errs = append(errs, p.embedder.Close())
	}
	if p.gen != nil {
		errs = append(errs, p.gen.Close())
	}
	return errors.Join(errs...)
}
