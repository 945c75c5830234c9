package answer

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/Aman-CERP/coderag/internal/config"
	cerrors "github.com/Aman-CERP/coderag/internal/errors"
	"github.com/Aman-CERP/coderag/internal/generate"
	"github.com/Aman-CERP/coderag/internal/search"
)

// Retriever resolves and searches questions. *search.Orchestrator implements it.
type Retriever interface {
	Resolve(question, repo string) (q, routed string)
	SearchRouted(ctx context.Context, question, repo string, m, finalK int) (search.Retrieval, error)
}

// Generator is a guarded completion call. *generate.Guarded implements it.
type Generator interface {
	Call(ctx context.Context, system, prompt string) cerrors.Result[string]
}

// Recorder receives every finished turn.
type Recorder interface {
	RecordTurn(ctx context.Context, turn Turn)
}

// Loop runs the answer control loop.
type Loop struct {
	retriever  Retriever
	gen        Generator
	docs       contextBuilder
	cfg        config.AnswerConfig
	expansions int
	finalK     int
	recorder   Recorder
}

// NewLoop wires a loop. budget may be nil for the character estimate.
func NewLoop(retriever Retriever, gen Generator, budget *generate.Budget, cfg config.AnswerConfig, retrieval config.RetrievalConfig) *Loop {
	if budget == nil {
		budget = generate.NewBudget(cfg.Tokenizer)
	}
	if cfg.RetryCap <= 0 {
		cfg.RetryCap = 3
	}
	if cfg.CitationCount <= 0 {
		cfg.CitationCount = 5
	}
	return &Loop{
		retriever:  retriever,
		gen:        gen,
		docs:       contextBuilder{budget: budget, maxDocs: cfg.ContextDocs, maxTokens: cfg.ContextTokens},
		cfg:        cfg,
		expansions: max(retrieval.Expansions, 1),
		finalK:     retrieval.FinalK,
	}
}

// WithRecorder attaches a turn recorder.
func (l *Loop) WithRecorder(r Recorder) *Loop {
	l.recorder = r
	return l
}

// Run answers question against repo (empty or unknown repos are routed).
// It returns an error only for an empty question or a cancelled ctx; every
// backend failure degrades inside the loop.
func (l *Loop) Run(ctx context.Context, question, repo string) (Turn, error) {
	start := time.Now()
	q, routed := l.retriever.Resolve(question, repo)
	if q == "" {
		return Turn{}, cerrors.New(cerrors.ErrCodeQueryEmpty, "question is empty", nil)
	}

	st := &RetrievalState{Original: q, Question: q, Repo: routed}
	turn := Turn{Question: q, Repo: routed}

	state := StateRetrieve
	for state != StateEnd {
		if err := ctx.Err(); err != nil {
			slog.Debug("answer_abandoned", slog.String("state", state.String()), slog.Int("iteration", st.Iteration))
			return Turn{}, err
		}
		var (
			next State
			err  error
		)
		switch state {
		case StateRetrieve:
			next, err = l.retrieve(ctx, st)
		case StateDecide:
			next = l.decide(st)
			turn.Steps = append(turn.Steps, Step{
				Iteration:  st.Iteration,
				Question:   st.Question,
				Top1:       topScore(st.Candidates),
				Top5Mean:   meanTop(st.Candidates, 5),
				Confidence: st.Confidence,
				Candidates: len(st.Candidates),
				Next:       next,
			})
		case StateRewrite:
			next, err = l.rewrite(ctx, st, &turn)
		case StateGenerate:
			next, err = l.generate(ctx, st, &turn)
		case StateFallback:
			next = l.fallback(st, &turn)
		}
		if err != nil {
			return Turn{}, err
		}
		slog.Debug("answer_transition",
			slog.String("from", state.String()),
			slog.String("to", next.String()),
			slog.Int("iteration", st.Iteration),
			slog.Float64("confidence", st.Confidence))
		state = next
	}

	turn.Answer = st.Answer
	turn.Confidence = st.Confidence
	turn.Iterations = st.Iteration
	turn.Degraded = turn.Degraded || st.Degraded
	turn.Candidates = st.Candidates
	turn.Took = time.Since(start)

	slog.Info("answer_turn",
		slog.String("repo", turn.Repo),
		slog.String("outcome", string(turn.Outcome)),
		slog.Int("iterations", turn.Iterations),
		slog.Float64("confidence", turn.Confidence),
		slog.Bool("supplemented", turn.Supplemented),
		slog.Duration("took", turn.Took))

	if l.recorder != nil {
		l.recorder.RecordTurn(ctx, turn)
	}
	return turn, nil
}

// retrieve runs the orchestrator for the working question. A retrieval
// error other than cancellation counts as an empty result.
func (l *Loop) retrieve(ctx context.Context, st *RetrievalState) (State, error) {
	st.Iteration++
	res, err := l.retriever.SearchRouted(ctx, st.Question, st.Repo, l.expansions, l.finalK)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return StateEnd, ctxErr
		}
		slog.Warn("answer_retrieval_failed", slog.String("repo", st.Repo), slog.String("error", err.Error()))
		res.Candidates = nil
		res.Degraded = true
	}
	st.Candidates = res.Candidates
	st.Degraded = st.Degraded || res.Degraded
	st.Confidence = confidence(st.Candidates)
	return StateDecide, nil
}

func (l *Loop) decide(st *RetrievalState) State {
	switch {
	case topScore(st.Candidates) > l.cfg.TopScoreThreshold,
		meanTop(st.Candidates, 5) > l.cfg.Top5MeanThreshold,
		st.Confidence > l.cfg.ConfidenceFloor:
		return StateGenerate
	case st.Iteration >= l.cfg.RetryCap:
		return StateFallback
	default:
		return StateRewrite
	}
}

// rewrite asks the generator for a more searchable question. A failed or
// empty rewrite keeps the current question.
func (l *Loop) rewrite(ctx context.Context, st *RetrievalState, turn *Turn) (State, error) {
	res := l.gen.Call(ctx, rewriteSystemPrompt, st.Question)
	if res.Status == cerrors.StatusFailed {
		return StateEnd, res.Err
	}
	if res.IsOK() {
		if q := firstLine(res.Value); q != "" {
			st.Question = q
		}
	} else {
		st.Degraded = true
	}
	turn.Rewrites = append(turn.Rewrites, st.Question)
	return StateRetrieve, nil
}

// generate answers from the current candidates. Below the supplement
// threshold it runs one wider retrieval, merges, and regenerates once.
func (l *Loop) generate(ctx context.Context, st *RetrievalState, turn *Turn) (State, error) {
	res := l.gen.Call(ctx, answerSystemPrompt, answerPrompt(st.Question, l.docs.build(st.Candidates)))
	if res.Status == cerrors.StatusFailed {
		return StateEnd, res.Err
	}
	if !res.IsOK() {
		st.Degraded = true
		turn.Outcome = OutcomeUnavailable
		turn.Citations = citations(st.Candidates, l.cfg.CitationCount)
		st.Answer = unavailableAnswer(turn.Citations)
		return StateEnd, nil
	}
	st.Answer = res.Value

	if st.Confidence < l.cfg.SupplementThreshold {
		if err := l.supplement(ctx, st, turn); err != nil {
			return StateEnd, err
		}
	}

	turn.Outcome = OutcomeAnswered
	turn.Citations = citations(st.Candidates, l.cfg.CitationCount)
	return StateEnd, nil
}

func (l *Loop) supplement(ctx context.Context, st *RetrievalState, turn *Turn) error {
	finalK := l.finalK * 2
	if finalK <= 0 {
		finalK = 20
	}
	extra, err := l.retriever.SearchRouted(ctx, st.Question, st.Repo, l.expansions+l.cfg.SupplementVariants, finalK)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		slog.Warn("answer_supplement_failed", slog.String("error", err.Error()))
		return nil
	}
	turn.Supplemented = true
	st.Degraded = st.Degraded || extra.Degraded

	merged := search.MergeCandidates(st.Candidates, extra.Candidates)
	search.SortByFinal(merged)
	if len(merged) > finalK {
		merged = merged[:finalK]
	}
	st.Candidates = merged
	st.Confidence = confidence(merged)

	res := l.gen.Call(ctx, answerSystemPrompt, answerPrompt(st.Question, l.docs.build(merged)))
	if res.Status == cerrors.StatusFailed {
		return res.Err
	}
	if res.IsOK() && strings.TrimSpace(res.Value) != "" {
		st.Answer = res.Value
	}
	return nil
}

// fallback ends the turn with the configured message and no generator call.
func (l *Loop) fallback(st *RetrievalState, turn *Turn) State {
	st.Answer = l.cfg.FallbackMessage
	turn.Outcome = OutcomeFallback
	turn.Citations = []string{}
	return StateEnd
}
