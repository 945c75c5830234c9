package search

import (
	"context"
	"log/slog"
	"path"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/coderag/internal/config"
	cerrors "github.com/Aman-CERP/coderag/internal/errors"
	"github.com/Aman-CERP/coderag/internal/store"
)

// Retrieval is the outcome of one multi-variant search.
type Retrieval struct {
	Repo       string
	Question   string
	Variants   []string
	Candidates []ScoredCandidate
	// Degraded is set when any variant lost a channel.
	Degraded bool
}

// Orchestrator routes a question, expands it, runs each variant through the
// Engine concurrently, merges and deduplicates, and reranks the union
// against the original question.
type Orchestrator struct {
	router   *Router
	expander *Expander
	engine   *Engine
	reranker *Reranker
	cfg      config.RetrievalConfig
	rules    *ScoringRules
}

// NewOrchestrator wires the pieces.
func NewOrchestrator(router *Router, expander *Expander, engine *Engine, reranker *Reranker, rules *ScoringRules, cfg config.RetrievalConfig) *Orchestrator {
	return &Orchestrator{
		router:   router,
		expander: expander,
		engine:   engine,
		reranker: reranker,
		cfg:      cfg,
		rules:    rules,
	}
}

// Resolve strips a recognised repo prefix from question and routes it.
func (o *Orchestrator) Resolve(question, repo string) (q, routed string) {
	return strings.TrimSpace(o.router.Strip(question)), o.router.Route(question, repo)
}

// SearchMulti routes question and returns its top finalK candidates using m
// variants. Only an empty question or a cancelled ctx produce an error.
func (o *Orchestrator) SearchMulti(ctx context.Context, question, repo string, m, finalK int) (Retrieval, error) {
	q, routed := o.Resolve(question, repo)
	return o.SearchRouted(ctx, q, routed, m, finalK)
}

// SearchRouted searches an already routed repo. Results are merged in
// variant order, so the output does not depend on which variant finishes first.
func (o *Orchestrator) SearchRouted(ctx context.Context, question, repo string, m, finalK int) (Retrieval, error) {
	start := time.Now()
	routed := repo
	q := strings.TrimSpace(question)
	out := Retrieval{Repo: routed, Question: q}
	if q == "" {
		return out, cerrors.New(cerrors.ErrCodeQueryEmpty, "question is empty", nil)
	}
	if finalK <= 0 {
		finalK = o.cfg.FinalK
	}

	out.Variants = o.expander.Expand(ctx, q, m)

	results := make([][]ScoredCandidate, len(out.Variants))
	degraded := make([]bool, len(out.Variants))
	g, gctx := errgroup.WithContext(ctx)
	if o.cfg.MaxParallelVariants > 0 {
		g.SetLimit(o.cfg.MaxParallelVariants)
	}
	for i, v := range out.Variants {
		g.Go(func() error {
			res, err := o.engine.Search(gctx, v, routed, finalK)
			if err != nil {
				return err
			}
			results[i] = res.Value
			degraded[i] = !res.IsOK()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}

	for _, d := range degraded {
		out.Degraded = out.Degraded || d
	}
	union := MergeCandidates(results...)

	final := o.reranker.Rerank(ctx, q, routed, union, 0)
	if o.cfg.FilenameBoosts {
		basename, pathPart := o.rules.FilenameFactors()
		ApplyFilenameBoosts(q, final, basename, pathPart)
	}
	if len(final) > finalK {
		final = final[:finalK]
	}
	out.Candidates = final

	slog.Info("search_multi",
		slog.String("repo", routed),
		slog.Int("variants", len(out.Variants)),
		slog.Int("union", len(union)),
		slog.Int("returned", len(final)),
		slog.Bool("degraded", out.Degraded),
		slog.Duration("took", time.Since(start)))
	return out, nil
}

// MergeCandidates concatenates lists in order, keeping the first candidate
// seen for each file span.
func MergeCandidates(lists ...[]ScoredCandidate) []ScoredCandidate {
	n := 0
	for _, l := range lists {
		n += len(l)
	}
	out := make([]ScoredCandidate, 0, n)
	seen := make(map[store.Span]bool, n)
	for _, l := range lists {
		for _, c := range l {
			span := c.Snippet.Span()
			if seen[span] {
				continue
			}
			seen[span] = true
			out = append(out, c)
		}
	}
	return out
}

// ApplyFilenameBoosts multiplies Final by basename when a question term
// appears in a candidate's file name, else by pathPart when it appears in a
// directory segment, then resorts. Only positive scores are boosted.
func ApplyFilenameBoosts(question string, cands []ScoredCandidate, basename, pathPart float64) {
	terms := filenameTerms(question)
	if len(terms) == 0 {
		return
	}
	for i := range cands {
		if cands[i].Final <= 0 {
			continue
		}
		fp := strings.ToLower(cands[i].Snippet.FilePath)
		base := path.Base(fp)
		dirs := strings.Split(path.Dir(fp), "/")
		switch {
		case containsAny(base, terms):
			cands[i].Final *= basename
		case anyContainsAny(dirs, terms):
			cands[i].Final *= pathPart
		}
	}
	SortByFinal(cands)
}

func filenameTerms(question string) []string {
	q := strings.NewReplacer("/", " ", "-", " ").Replace(strings.ToLower(question))
	var out []string
	for _, f := range strings.Fields(q) {
		f = strings.Trim(f, "?!.,;:'\"`()[]{}")
		if len(f) < 3 || store.IsStopWord(f) {
			continue
		}
		out = append(out, f)
	}
	return out
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

func anyContainsAny(parts, terms []string) bool {
	for _, p := range parts {
		if p != "." && containsAny(p, terms) {
			return true
		}
	}
	return false
}
