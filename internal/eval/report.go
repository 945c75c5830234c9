package eval

import (
	"fmt"
	"io"
)

// WriteReport prints accuracy and, when verbose, every top-k miss.
func WriteReport(w io.Writer, rep *Report, verbose bool) {
	_, _ = fmt.Fprintf(w, "Top-1 accuracy:  %.1f%% (%d/%d)\n", rep.Top1Accuracy*100, rep.Top1Hits, rep.Total)
	_, _ = fmt.Fprintf(w, "Top-%d accuracy: %.1f%% (%d/%d)\n", rep.FinalK, rep.TopKAccuracy*100, rep.TopKHits, rep.Total)
	_, _ = fmt.Fprintf(w, "Duration:        %.2fs\n", rep.DurationSecs)

	failures := rep.Failures()
	if !verbose || len(failures) == 0 {
		return
	}
	_, _ = fmt.Fprintf(w, "\nMisses (%d):\n", len(failures))
	for _, f := range failures {
		_, _ = fmt.Fprintf(w, "  [%s] %s\n", f.Repo, f.Question)
		_, _ = fmt.Fprintf(w, "    Expected: %v\n", f.ExpectPaths)
		if f.Error != "" {
			_, _ = fmt.Fprintf(w, "    Error:    %s\n", f.Error)
			continue
		}
		top := f.TopPaths
		if len(top) > 3 {
			top = top[:3]
		}
		_, _ = fmt.Fprintf(w, "    Got:      %v\n", top)
	}
}

// WriteComparison prints deltas and flipped cases.
func WriteComparison(w io.Writer, c Comparison) {
	mark := func(d float64) string {
		if d >= 0 {
			return "✓"
		}
		return "✗"
	}
	_, _ = fmt.Fprintf(w, "Top-1: baseline %.3f, current %.3f, delta %+.3f %s\n",
		c.BaselineTop1, c.CurrentTop1, c.DeltaTop1(), mark(c.DeltaTop1()))
	_, _ = fmt.Fprintf(w, "Top-k: baseline %.3f, current %.3f, delta %+.3f %s\n",
		c.BaselineTopK, c.CurrentTopK, c.DeltaTopK(), mark(c.DeltaTopK()))

	if len(c.Regressions) > 0 {
		_, _ = fmt.Fprintf(w, "\nRegressions (%d):\n", len(c.Regressions))
		for _, ch := range c.Regressions {
			_, _ = fmt.Fprintf(w, "  [%d] %s: %s\n", ch.Index, ch.Repo, ch.Question)
		}
	}
	if len(c.Improvements) > 0 {
		_, _ = fmt.Fprintf(w, "\nImprovements (%d):\n", len(c.Improvements))
		for _, ch := range c.Improvements {
			_, _ = fmt.Fprintf(w, "  [%d] %s: %s\n", ch.Index, ch.Repo, ch.Question)
		}
	}
	if c.Passed() {
		_, _ = fmt.Fprintln(w, "\nNo significant regressions.")
	} else {
		_, _ = fmt.Fprintln(w, "\nRegressions detected.")
	}
}
