package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/coderag/internal/config"
	cerrors "github.com/Aman-CERP/coderag/internal/errors"
	"github.com/Aman-CERP/coderag/internal/generate"
	"github.com/Aman-CERP/coderag/internal/search"
	"github.com/Aman-CERP/coderag/internal/store"
)

type searchCall struct {
	question string
	repo     string
	m        int
	finalK   int
}

// scriptedRetriever returns results[i] for the i-th call, repeating the last.
type scriptedRetriever struct {
	mu      sync.Mutex
	results [][]float64
	err     error
	calls   []searchCall
}

func (r *scriptedRetriever) Resolve(question, repo string) (string, string) {
	if repo == "" {
		repo = "project"
	}
	return strings.TrimSpace(question), repo
}

func (r *scriptedRetriever) SearchRouted(_ context.Context, question, repo string, m, finalK int) (search.Retrieval, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := len(r.calls)
	r.calls = append(r.calls, searchCall{question, repo, m, finalK})
	if r.err != nil {
		return search.Retrieval{}, r.err
	}
	scores := r.results[min(i, len(r.results)-1)]
	return search.Retrieval{Repo: repo, Question: question, Candidates: scored(i, scores...)}, nil
}

// scored builds candidates with distinct spans per call.
func scored(call int, finals ...float64) []search.ScoredCandidate {
	out := make([]search.ScoredCandidate, len(finals))
	for i, f := range finals {
		out[i] = search.ScoredCandidate{
			Snippet: store.Snippet{
				ID:        fmt.Sprintf("c%d-%d", call, i),
				FilePath:  fmt.Sprintf("pkg/file%d.go", i),
				StartLine: call*100 + 1,
				EndLine:   call*100 + 10,
				Language:  "go",
				Code:      "func f() {}",
			},
			Final: f,
		}
	}
	return out
}

// scriptedGenerator answers rewrite and answer prompts separately.
type scriptedGenerator struct {
	mu            sync.Mutex
	rewriteCalls  int
	answerCalls   int
	rewrite       func(q string) cerrors.Result[string]
	answer        func(n int) cerrors.Result[string]
	answerPrompts []string
}

func (g *scriptedGenerator) Call(_ context.Context, system, prompt string) cerrors.Result[string] {
	g.mu.Lock()
	defer g.mu.Unlock()
	if system == rewriteSystemPrompt {
		g.rewriteCalls++
		if g.rewrite == nil {
			return cerrors.Ok(prompt + " rewritten")
		}
		return g.rewrite(prompt)
	}
	g.answerCalls++
	g.answerPrompts = append(g.answerPrompts, prompt)
	if g.answer == nil {
		return cerrors.Ok(fmt.Sprintf("answer %d", g.answerCalls))
	}
	return g.answer(g.answerCalls)
}

type turnRecorder struct{ turns []Turn }

func (r *turnRecorder) RecordTurn(_ context.Context, t Turn) { r.turns = append(r.turns, t) }

func testLoop(r Retriever, g Generator) *Loop {
	cfg := config.NewConfig()
	cfg.Answer.Tokenizer = generate.EstimateEncoding
	cfg.Retrieval.Expansions = 3
	cfg.Retrieval.FinalK = 10
	return NewLoop(r, g, nil, cfg.Answer, cfg.Retrieval)
}

func TestRun_LowConfidenceFallsBackWithoutAnswering(t *testing.T) {
	// Given: every retrieval stays below all three thresholds
	r := &scriptedRetriever{results: [][]float64{{0.3, 0.2, 0.1}}}
	g := &scriptedGenerator{}
	rec := &turnRecorder{}
	loop := testLoop(r, g).WithRecorder(rec)

	// When: running the turn
	turn, err := loop.Run(context.Background(), "where is the fax retry policy", "")

	// Then: three retrievals, two rewrites, the fixed message and no answer call
	require.NoError(t, err)
	assert.Equal(t, OutcomeFallback, turn.Outcome)
	assert.Equal(t, config.NewConfig().Answer.FallbackMessage, turn.Answer)
	assert.Equal(t, 3, turn.Iterations)
	assert.Len(t, r.calls, 3)
	assert.Equal(t, 2, g.rewriteCalls)
	assert.Zero(t, g.answerCalls)
	assert.Empty(t, turn.Citations)
	require.Len(t, rec.turns, 1)
	assert.Equal(t, OutcomeFallback, rec.turns[0].Outcome)
	require.Len(t, turn.Steps, 3)
	assert.Equal(t, StateFallback, turn.Steps[2].Next)
}

func TestRun_HighTopScoreAnswersWithCitations(t *testing.T) {
	r := &scriptedRetriever{results: [][]float64{{0.9, 0.8, 0.7, 0.6, 0.6, 0.5}}}
	g := &scriptedGenerator{}

	turn, err := testLoop(r, g).Run(context.Background(), "how is auth done", "webapp")

	require.NoError(t, err)
	assert.Equal(t, OutcomeAnswered, turn.Outcome)
	assert.Equal(t, "answer 1", turn.Answer)
	assert.Equal(t, "webapp", turn.Repo)
	assert.Equal(t, 1, turn.Iterations)
	assert.False(t, turn.Supplemented)
	assert.Equal(t, []string{
		"pkg/file0.go:1-10", "pkg/file1.go:1-10", "pkg/file2.go:1-10", "pkg/file3.go:1-10", "pkg/file4.go:1-10",
	}, turn.Citations)
	assert.Equal(t, 1, g.answerCalls)
	assert.Contains(t, g.answerPrompts[0], "### pkg/file0.go:1-10")
	assert.Contains(t, g.answerPrompts[0], "Question: how is auth done")
}

func TestDecide_Triggers(t *testing.T) {
	tests := []struct {
		name      string
		finals    []float64
		iteration int
		want      State
	}{
		{"single excellent match", []float64{0.7, 0, 0, 0, 0, 0, 0, 0}, 1, StateGenerate},
		{"good top five", []float64{0.6, 0.6, 0.6, 0.6, 0.6, 0, 0, 0, 0, 0}, 1, StateGenerate},
		{"confidence floor", []float64{0.56}, 1, StateGenerate},
		{"weak before cap", []float64{0.3, 0.2}, 2, StateRewrite},
		{"weak at cap", []float64{0.3, 0.2}, 3, StateFallback},
		{"empty at cap", nil, 3, StateFallback},
	}
	loop := testLoop(&scriptedRetriever{}, &scriptedGenerator{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cands := scored(0, tt.finals...)
			st := &RetrievalState{Candidates: cands, Iteration: tt.iteration, Confidence: confidence(cands)}
			assert.Equal(t, tt.want, loop.decide(st))
		})
	}
}

func TestRun_RewriteFeedsNextRetrieval(t *testing.T) {
	// Given: a weak first pass and a strong second pass
	r := &scriptedRetriever{results: [][]float64{{0.2}, {0.9, 0.8, 0.8, 0.8, 0.8}}}
	g := &scriptedGenerator{rewrite: func(string) cerrors.Result[string] {
		return cerrors.Ok("\n  \"Where is OAuthTokenValidator defined\"\nextra line")
	}}

	// When: running the turn
	turn, err := testLoop(r, g).Run(context.Background(), "oauth validate?", "")

	// Then: the second retrieval used the rewritten question
	require.NoError(t, err)
	require.Len(t, r.calls, 2)
	assert.Equal(t, "oauth validate?", r.calls[0].question)
	assert.Equal(t, "Where is OAuthTokenValidator defined", r.calls[1].question)
	assert.Equal(t, []string{"Where is OAuthTokenValidator defined"}, turn.Rewrites)
	assert.Equal(t, OutcomeAnswered, turn.Outcome)
	assert.Equal(t, 2, turn.Iterations)
}

func TestRun_FailedRewriteKeepsQuestion(t *testing.T) {
	r := &scriptedRetriever{results: [][]float64{{0.1}}}
	g := &scriptedGenerator{rewrite: func(string) cerrors.Result[string] {
		return cerrors.Degraded("", errors.New("down"))
	}}

	turn, err := testLoop(r, g).Run(context.Background(), "q", "")

	require.NoError(t, err)
	for _, c := range r.calls {
		assert.Equal(t, "q", c.question)
	}
	assert.True(t, turn.Degraded)
	assert.Equal(t, OutcomeFallback, turn.Outcome)
}

func TestRun_LowConfidenceAnswerIsSupplementedOnce(t *testing.T) {
	// Given: one strong match among weak ones, so confidence stays low
	r := &scriptedRetriever{results: [][]float64{{0.7, 0.1, 0.1}, {0.8, 0.5}}}
	g := &scriptedGenerator{}

	// When: running the turn
	turn, err := testLoop(r, g).Run(context.Background(), "how are faxes retried", "")

	// Then: one wider retrieval with two extra variants and double final_k, then one regeneration
	require.NoError(t, err)
	require.Len(t, r.calls, 2)
	assert.Equal(t, 3, r.calls[0].m)
	assert.Equal(t, 10, r.calls[0].finalK)
	assert.Equal(t, 5, r.calls[1].m)
	assert.Equal(t, 20, r.calls[1].finalK)
	assert.True(t, turn.Supplemented)
	assert.Equal(t, 2, g.answerCalls)
	assert.Equal(t, "answer 2", turn.Answer)
	assert.Len(t, turn.Candidates, 5)
	assert.InDelta(t, 0.8, turn.Candidates[0].Final, 1e-9)
	assert.Equal(t, 1, turn.Iterations)
}

func TestRun_FailedRegenerationKeepsFirstAnswer(t *testing.T) {
	r := &scriptedRetriever{results: [][]float64{{0.7, 0.1}}}
	g := &scriptedGenerator{answer: func(n int) cerrors.Result[string] {
		if n == 1 {
			return cerrors.Ok("first")
		}
		return cerrors.Degraded("", errors.New("down"))
	}}

	turn, err := testLoop(r, g).Run(context.Background(), "q", "")

	require.NoError(t, err)
	assert.Equal(t, "first", turn.Answer)
	assert.Equal(t, OutcomeAnswered, turn.Outcome)
}

func TestRun_GeneratorDownListsMatches(t *testing.T) {
	r := &scriptedRetriever{results: [][]float64{{0.9, 0.8, 0.8, 0.8, 0.8}}}
	g := &scriptedGenerator{answer: func(int) cerrors.Result[string] {
		return cerrors.Degraded("", errors.New("down"))
	}}

	turn, err := testLoop(r, g).Run(context.Background(), "q", "")

	require.NoError(t, err)
	assert.Equal(t, OutcomeUnavailable, turn.Outcome)
	assert.True(t, turn.Degraded)
	assert.Contains(t, turn.Answer, "pkg/file0.go:1-10")
	assert.Len(t, turn.Citations, 5)
}

func TestRun_RetrievalErrorsDegradeToFallback(t *testing.T) {
	r := &scriptedRetriever{err: errors.New("index gone")}
	g := &scriptedGenerator{}

	turn, err := testLoop(r, g).Run(context.Background(), "q", "")

	require.NoError(t, err)
	assert.Equal(t, OutcomeFallback, turn.Outcome)
	assert.True(t, turn.Degraded)
	assert.Zero(t, turn.Confidence)
}

func TestRun_EmptyQuestion(t *testing.T) {
	_, err := testLoop(&scriptedRetriever{}, &scriptedGenerator{}).Run(context.Background(), "  ", "")

	assert.Equal(t, cerrors.ErrCodeQueryEmpty, cerrors.Code(err))
}

func TestRun_CancelledContextAbandonsTurn(t *testing.T) {
	r := &scriptedRetriever{results: [][]float64{{0.9}}}
	g := &scriptedGenerator{}
	rec := &turnRecorder{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testLoop(r, g).WithRecorder(rec).Run(ctx, "q", "")

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, r.calls)
	assert.Empty(t, rec.turns)
}

func TestContextBuilder_RespectsTokenBudget(t *testing.T) {
	// Given: three 400-character bodies and room for about one and a half
	b := contextBuilder{budget: generate.NewBudget(generate.EstimateEncoding), maxDocs: 8, maxTokens: 160}
	cands := scored(0, 0.9, 0.8, 0.7)
	for i := range cands {
		cands[i].Snippet.Code = strings.Repeat("x", 400)
	}

	// When: building the context
	out := b.build(cands)

	// Then: the first document is whole, the third is absent
	assert.Contains(t, out, "### pkg/file0.go:1-10")
	assert.NotContains(t, out, "### pkg/file2.go:1-10")
	assert.LessOrEqual(t, len(out), 160*4+8)
}

func TestContextBuilder_MaxDocs(t *testing.T) {
	b := contextBuilder{budget: generate.NewBudget(""), maxDocs: 2}

	out := b.build(scored(0, 0.9, 0.8, 0.7))

	assert.Equal(t, 2, strings.Count(out, "### "))
}

func TestCitations_SkipsRepeats(t *testing.T) {
	cands := append(scored(0, 0.9, 0.8), scored(0, 0.7)...)

	assert.Equal(t, []string{"pkg/file0.go:1-10", "pkg/file1.go:1-10"}, citations(cands, 5))
}
