package ui

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Aman-CERP/coderag/internal/config"
	"github.com/Aman-CERP/coderag/internal/store"
	"github.com/Aman-CERP/coderag/internal/telemetry"
)

// RepoStatus is the on-disk state of one repo's index.
type RepoStatus struct {
	Name        string
	DataDir     string
	Collection  string
	HasSnippets bool
	Locked      bool
	Manifest    *store.Manifest
	Err         error
}

// Built reports whether a build completed for the repo.
func (s RepoStatus) Built() bool {
	return s.Manifest != nil
}

// CollectRepoStatus inspects the data dir of every configured repo.
func CollectRepoStatus(cfg *config.Config) []RepoStatus {
	names := cfg.RepoNames()
	out := make([]RepoStatus, 0, len(names))
	for _, name := range names {
		dir := cfg.DataDirFor(name)
		st := RepoStatus{
			Name:        name,
			DataDir:     dir,
			Collection:  cfg.CollectionFor(name),
			HasSnippets: fileExists(filepath.Join(dir, store.SnippetsFile)),
			Locked:      store.IndexLocked(dir),
		}
		m, err := store.ReadManifest(dir)
		switch {
		case err == nil:
			st.Manifest = &m
		case !errors.Is(err, os.ErrNotExist):
			st.Err = err
		}
		out = append(out, st)
	}
	return out
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// StatusRenderer prints repo status and usage summaries.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
	now    func() time.Time
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{out: out, styles: GetStyles(noColor), now: time.Now}
}

// RenderRepos prints one block per repo.
func (r *StatusRenderer) RenderRepos(statuses []RepoStatus, defaultRepo string) {
	_, _ = fmt.Fprintln(r.out, r.styles.Header.Render("Repositories"))
	if len(statuses) == 0 {
		_, _ = fmt.Fprintln(r.out, r.styles.Dim.Render("  none configured; run `coderag config init`"))
		return
	}
	for _, st := range statuses {
		name := st.Name
		if name == defaultRepo {
			name += " (default)"
		}
		_, _ = fmt.Fprintf(r.out, "\n  %s %s\n", r.statusIcon(st), r.styles.Active.Render(name))
		r.row("Data dir", st.DataDir)
		r.row("Collection", st.Collection)
		switch {
		case st.Err != nil:
			r.row("Manifest", r.styles.Error.Render(st.Err.Error()))
		case st.Manifest != nil:
			m := st.Manifest
			r.row("Snippets", fmt.Sprintf("%d", m.Snippets))
			r.row("Cards", fmt.Sprintf("%d", m.Cards))
			r.row("Vectors", fmt.Sprintf("%d", m.Vectors))
			r.row("Backends", fmt.Sprintf("sparse=%s dense=%s", m.Sparse, m.Dense))
			if m.Embedder != "" {
				r.row("Embedder", strings.TrimSuffix(m.Embedder+" "+m.Model, " "))
			}
			r.row("Last indexed", formatAgo(r.now().Sub(m.BuiltAt)))
		case st.HasSnippets:
			r.row("Index", r.styles.Warning.Render("snippets present, not built"))
		default:
			r.row("Index", r.styles.Dim.Render("no snippets"))
		}
		if st.Locked {
			r.row("Lock", r.styles.Warning.Render("build in progress"))
		}
	}
}

func (r *StatusRenderer) statusIcon(st RepoStatus) string {
	switch {
	case st.Err != nil:
		return r.styles.Error.Render("✗")
	case st.Built():
		return r.styles.Success.Render("●")
	case st.HasSnippets:
		return r.styles.Warning.Render("◐")
	default:
		return r.styles.Dim.Render("○")
	}
}

func (r *StatusRenderer) row(label, value string) {
	_, _ = fmt.Fprintf(r.out, "    %s %s\n", r.styles.Label.Render(fmt.Sprintf("%-13s", label+":")), value)
}

// RenderSummary prints a usage summary read from the telemetry store.
func (r *StatusRenderer) RenderSummary(sum *telemetry.Summary) {
	_, _ = fmt.Fprintln(r.out, r.styles.Header.Render(fmt.Sprintf("Usage %s to %s", sum.From, sum.To)))
	if sum.TotalTurns == 0 {
		_, _ = fmt.Fprintln(r.out, r.styles.Dim.Render("  no recorded turns"))
		return
	}
	r.row("Turns", fmt.Sprintf("%d (search %d, answer %d)",
		sum.TotalTurns, sum.KindCounts[telemetry.KindSearch], sum.KindCounts[telemetry.KindAnswer]))
	r.row("Degraded", fmt.Sprintf("%d", sum.DegradedCount))
	r.row("Supplemented", fmt.Sprintf("%d", sum.SupplementedCount))
	if sum.KindCounts[telemetry.KindAnswer] > 0 {
		r.row("Confidence", fmt.Sprintf("%.3f mean", sum.MeanConfidence))
		r.row("Iterations", fmt.Sprintf("%.2f mean", sum.MeanIterations))
	}
	if len(sum.OutcomeCounts) > 0 {
		r.row("Outcomes", formatCounts(sum.OutcomeCounts))
	}
	if len(sum.RepoCounts) > 0 {
		r.row("Repos", formatCounts(sum.RepoCounts))
	}

	var lat []string
	for _, b := range []telemetry.LatencyBucket{
		telemetry.BucketLT100ms, telemetry.BucketLT500ms, telemetry.BucketLT2s,
		telemetry.BucketLT10s, telemetry.BucketGE10s,
	} {
		if n := sum.Latency[b]; n > 0 {
			lat = append(lat, fmt.Sprintf("%s=%d", b, n))
		}
	}
	if len(lat) > 0 {
		r.row("Latency", strings.Join(lat, " "))
	}

	if len(sum.TopTerms) > 0 {
		terms := make([]string, 0, len(sum.TopTerms))
		for _, tc := range sum.TopTerms {
			terms = append(terms, fmt.Sprintf("%s(%d)", tc.Term, tc.Count))
		}
		r.row("Top terms", strings.Join(terms, " "))
	}
	if len(sum.ZeroResults) > 0 {
		_, _ = fmt.Fprintf(r.out, "\n  %s\n", r.styles.Warning.Render("Questions with no results"))
		for _, q := range sum.ZeroResults {
			_, _ = fmt.Fprintf(r.out, "    - %s\n", q)
		}
	}
}

// formatCounts renders a count map as "k=v" pairs, largest first.
func formatCounts(m map[string]int64) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if m[keys[i]] != m[keys[j]] {
			return m[keys[i]] > m[keys[j]]
		}
		return keys[i] < keys[j]
	})
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, m[k]))
	}
	return strings.Join(parts, " ")
}

// formatAgo formats a duration as a human-friendly "ago" string.
func formatAgo(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%d min ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%d hours ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%d days ago", int(d.Hours()/24))
	}
}
