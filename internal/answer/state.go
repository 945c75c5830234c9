// Package answer implements the bounded control loop that turns a question
// into either a cited answer or a low-confidence fallback.
//
// The loop moves through Retrieve, Decide, Rewrite, Generate and Fallback
// until End. Iteration only grows and the retry cap is finite, so every
// turn terminates; Generate and Fallback both lead straight to End.
package answer

import (
	"time"

	"github.com/Aman-CERP/coderag/internal/search"
)

// State is a node of the control loop.
type State int

const (
	StateRetrieve State = iota
	StateDecide
	StateRewrite
	StateGenerate
	StateFallback
	StateEnd
)

func (s State) String() string {
	switch s {
	case StateRetrieve:
		return "retrieve"
	case StateDecide:
		return "decide"
	case StateRewrite:
		return "rewrite"
	case StateGenerate:
		return "generate"
	case StateFallback:
		return "fallback"
	case StateEnd:
		return "end"
	default:
		return "unknown"
	}
}

// Outcome is how a turn ended.
type Outcome string

const (
	OutcomeAnswered Outcome = "answered"
	OutcomeFallback Outcome = "fallback"
	// OutcomeUnavailable means retrieval was confident but the generator
	// failed; the answer lists the best matches instead.
	OutcomeUnavailable Outcome = "generator_unavailable"
)

// RetrievalState is the working state of one turn. Only the loop mutates it.
type RetrievalState struct {
	Original   string
	Question   string
	Repo       string
	Candidates []search.ScoredCandidate
	Iteration  int
	Confidence float64
	Answer     string
	Degraded   bool
}

// Step records one retrieval pass for tracing.
type Step struct {
	Iteration  int
	Question   string
	Top1       float64
	Top5Mean   float64
	Confidence float64
	Candidates int
	Next       State
}

// Turn is the result of a completed control loop.
type Turn struct {
	Question     string
	Repo         string
	Answer       string
	Citations    []string
	Confidence   float64
	Iterations   int
	Outcome      Outcome
	Supplemented bool
	Degraded     bool
	Rewrites     []string
	Steps        []Step
	Candidates   []search.ScoredCandidate
	Took         time.Duration
}
