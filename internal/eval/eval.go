// Package eval measures retrieval quality against a golden question set.
//
// A golden case names the files a good answer must cite. A run reports how
// often an expected file is the top hit (top-1) or anywhere in the final
// list (top-k). Reports can be saved as a baseline and later compared to
// catch per-question regressions.
package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/coderag/internal/search"
)

// Case is one golden question.
type Case struct {
	Question    string   `json:"q" yaml:"q"`
	Repo        string   `json:"repo,omitempty" yaml:"repo,omitempty"`
	ExpectPaths []string `json:"expect_paths" yaml:"expect_paths"`
}

// LoadGolden reads a golden set. Files ending in .yaml or .yml are YAML,
// anything else is a JSON array.
func LoadGolden(path string) ([]Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read golden set: %w", err)
	}
	var cases []Case
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cases)
	default:
		err = json.Unmarshal(data, &cases)
	}
	if err != nil {
		return nil, fmt.Errorf("parse golden set %s: %w", path, err)
	}
	for i, c := range cases {
		if strings.TrimSpace(c.Question) == "" {
			return nil, fmt.Errorf("golden case %d: empty question", i+1)
		}
	}
	return cases, nil
}

// Searcher runs the retrieval pipeline.
type Searcher interface {
	SearchMulti(ctx context.Context, question, repo string, m, finalK int) (search.Retrieval, error)
	SearchRouted(ctx context.Context, question, repo string, m, finalK int) (search.Retrieval, error)
}

// Options controls a run.
type Options struct {
	// DefaultRepo is used for cases that name no repo.
	DefaultRepo string
	FinalK      int
	// Expansions is the number of query variants; zero or less uses the
	// single-variant path.
	Expansions  int
	Concurrency int
}

// Result is the outcome of one case.
type Result struct {
	Question    string   `json:"question"`
	Repo        string   `json:"repo"`
	ExpectPaths []string `json:"expect_paths"`
	Top1Path    string   `json:"top1_path,omitempty"`
	Top1Hit     bool     `json:"top1_hit"`
	TopKHit     bool     `json:"topk_hit"`
	// MatchedAt is the rank of the first expected file, or -1.
	MatchedAt   int      `json:"matched_at"`
	TopPaths    []string `json:"top_paths"`
	Degraded    bool     `json:"degraded,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// Report summarizes a run.
type Report struct {
	Total        int       `json:"total"`
	Top1Hits     int       `json:"top1_hits"`
	TopKHits     int       `json:"topk_hits"`
	Top1Accuracy float64   `json:"top1_accuracy"`
	TopKAccuracy float64   `json:"topk_accuracy"`
	FinalK       int       `json:"final_k"`
	UseMulti     bool      `json:"use_multi"`
	DurationSecs float64   `json:"duration_secs"`
	Timestamp    time.Time `json:"timestamp"`
	Results      []Result  `json:"results"`
}

// Failures returns the cases with no expected file in the top-k.
func (r *Report) Failures() []Result {
	var out []Result
	for _, res := range r.Results {
		if !res.TopKHit {
			out = append(out, res)
		}
	}
	return out
}

// Runner evaluates golden cases against a Searcher.
type Runner struct {
	searcher Searcher
	opts     Options
	now      func() time.Time
}

// NewRunner creates a Runner.
func NewRunner(s Searcher, opts Options) *Runner {
	if opts.FinalK <= 0 {
		opts.FinalK = 10
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &Runner{searcher: s, opts: opts, now: time.Now}
}

// Run evaluates every case. Search errors are recorded per case and count as
// misses; only context cancellation aborts the run.
func (r *Runner) Run(ctx context.Context, cases []Case) (*Report, error) {
	start := r.now()
	results := make([]Result, len(cases))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)
	for i, c := range cases {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = r.runCase(gctx, c)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rep := &Report{
		Total:     len(cases),
		FinalK:    r.opts.FinalK,
		UseMulti:  r.opts.Expansions > 0,
		Timestamp: start,
		Results:   results,
	}
	for _, res := range results {
		if res.Top1Hit {
			rep.Top1Hits++
		}
		if res.TopKHit {
			rep.TopKHits++
		}
	}
	rep.Top1Accuracy = accuracy(rep.Top1Hits, rep.Total)
	rep.TopKAccuracy = accuracy(rep.TopKHits, rep.Total)
	rep.DurationSecs = r.now().Sub(start).Seconds()
	return rep, nil
}

func (r *Runner) runCase(ctx context.Context, c Case) Result {
	repo := c.Repo
	if repo == "" {
		repo = r.opts.DefaultRepo
	}
	res := Result{Question: c.Question, Repo: repo, ExpectPaths: c.ExpectPaths, MatchedAt: -1}

	var (
		ret search.Retrieval
		err error
	)
	if r.opts.Expansions > 0 {
		ret, err = r.searcher.SearchMulti(ctx, c.Question, repo, r.opts.Expansions, r.opts.FinalK)
	} else {
		ret, err = r.searcher.SearchRouted(ctx, c.Question, repo, 0, r.opts.FinalK)
	}
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Degraded = ret.Degraded

	paths := make([]string, 0, len(ret.Candidates))
	for _, cand := range ret.Candidates {
		paths = append(paths, cand.Snippet.FilePath)
	}
	if len(paths) > r.opts.FinalK {
		paths = paths[:r.opts.FinalK]
	}
	res.TopPaths = paths
	if len(paths) > 0 {
		res.Top1Path = paths[0]
	}

	res.MatchedAt = MatchRank(paths, c.ExpectPaths)
	res.Top1Hit = res.MatchedAt == 0
	res.TopKHit = res.MatchedAt >= 0
	return res
}

// MatchRank returns the index of the first path containing any expected
// path, or -1.
func MatchRank(paths, expected []string) int {
	for i, p := range paths {
		for _, exp := range expected {
			if exp != "" && strings.Contains(p, exp) {
				return i
			}
		}
	}
	return -1
}

func accuracy(hits, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
