package eval

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// RegressionTolerance is the accuracy drop a comparison accepts.
const RegressionTolerance = 0.05

// SaveBaseline writes rep as JSON.
func SaveBaseline(path string, rep *Report) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// LoadBaseline reads a report written by SaveBaseline.
func LoadBaseline(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rep Report
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("parse baseline %s: %w", path, err)
	}
	return &rep, nil
}

// Change is a case whose top-1 outcome flipped against the baseline.
type Change struct {
	Index    int
	Question string
	Repo     string
}

// Comparison is the difference between a run and a baseline.
type Comparison struct {
	BaselineTop1 float64
	CurrentTop1  float64
	BaselineTopK float64
	CurrentTopK  float64
	Regressions  []Change
	Improvements []Change
}

// DeltaTop1 is the top-1 accuracy change.
func (c Comparison) DeltaTop1() float64 { return c.CurrentTop1 - c.BaselineTop1 }

// DeltaTopK is the top-k accuracy change.
func (c Comparison) DeltaTopK() float64 { return c.CurrentTopK - c.BaselineTopK }

// Passed reports no per-question regressions and no accuracy drop beyond
// RegressionTolerance.
func (c Comparison) Passed() bool {
	return len(c.Regressions) == 0 &&
		c.DeltaTop1() >= -RegressionTolerance &&
		c.DeltaTopK() >= -RegressionTolerance
}

// Compare diffs current against baseline. Cases are paired by position and
// skipped when their questions differ.
func Compare(current, baseline *Report) Comparison {
	cmp := Comparison{
		BaselineTop1: baseline.Top1Accuracy,
		CurrentTop1:  current.Top1Accuracy,
		BaselineTopK: baseline.TopKAccuracy,
		CurrentTopK:  current.TopKAccuracy,
	}
	n := min(len(current.Results), len(baseline.Results))
	for i := range n {
		cur, base := current.Results[i], baseline.Results[i]
		if cur.Question != base.Question {
			continue
		}
		ch := Change{Index: i + 1, Question: cur.Question, Repo: cur.Repo}
		switch {
		case base.Top1Hit && !cur.Top1Hit:
			cmp.Regressions = append(cmp.Regressions, ch)
		case !base.Top1Hit && cur.Top1Hit:
			cmp.Improvements = append(cmp.Improvements, ch)
		}
	}
	return cmp
}
