package search

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/Aman-CERP/coderag/internal/config"
	"github.com/Aman-CERP/coderag/internal/store"
)

const (
	defaultRepoBoostWeight = 0.06
	defaultRepoBoostCap    = 0.18

	providerScanChars = 1000
	featureScanChars  = 800
)

// repoBoost is a per-repo path boost, applied only when that repo is routed.
type repoBoost struct {
	paths  []string
	weight float64
	cap    float64
}

// pathBonus is one path-substring entry, lowercased.
type pathBonus struct {
	sub   string
	bonus float64
}

// ScoringRules is the single declarative bonus table the reranker reads.
// It is built once from configuration and never mutated.
type ScoringRules struct {
	scoring    config.ScoringConfig
	vendorMode string
	// paths is sorted by substring so sums add in a fixed order.
	paths      []pathBonus
	repoBoosts map[string]repoBoost
}

// NewScoringRules builds the table from cfg.
func NewScoringRules(cfg *config.Config) *ScoringRules {
	r := &ScoringRules{
		scoring:    cfg.Scoring,
		vendorMode: cfg.VendorMode,
		repoBoosts: make(map[string]repoBoost),
	}
	for sub, bonus := range cfg.Scoring.PathBonuses {
		r.paths = append(r.paths, pathBonus{sub: strings.ToLower(sub), bonus: bonus})
	}
	sort.Slice(r.paths, func(i, j int) bool { return r.paths[i].sub < r.paths[j].sub })
	for _, repo := range cfg.Repos {
		if len(repo.PathBoosts) == 0 {
			continue
		}
		b := repoBoost{weight: repo.PathBoostWeight, cap: repo.PathBoostCap}
		if b.weight <= 0 {
			b.weight = defaultRepoBoostWeight
		}
		if b.cap <= 0 {
			b.cap = defaultRepoBoostCap
		}
		for _, p := range repo.PathBoosts {
			b.paths = append(b.paths, strings.ToLower(p))
		}
		r.repoBoosts[repo.Name] = b
	}
	return r
}

// BonusBreakdown lists each additive signal for one candidate.
type BonusBreakdown struct {
	Path     float64
	RepoPath float64
	Layer    float64
	Provider float64
	Feature  float64
	Card     float64
	Origin   float64
}

// Total sums the signals.
func (b BonusBreakdown) Total() float64 {
	return b.Path + b.RepoPath + b.Layer + b.Provider + b.Feature + b.Card + b.Origin
}

// Bonus computes every heuristic signal for c against the question's terms
// and intent, with repo as the routed repository.
func (r *ScoringRules) Bonus(question termSet, intent, repo string, c ScoredCandidate) BonusBreakdown {
	s := c.Snippet
	fp := strings.ToLower(s.FilePath)
	var b BonusBreakdown

	for _, p := range r.paths {
		if strings.Contains(fp, p.sub) {
			b.Path += p.bonus
		}
	}

	if boost, ok := r.repoBoosts[repo]; ok {
		for _, p := range boost.paths {
			if strings.Contains(fp, p) {
				b.RepoPath += boost.weight
			}
		}
		if b.RepoPath > boost.cap {
			b.RepoPath = boost.cap
		}
	}

	if layers, ok := r.scoring.LayerBonuses[intent]; ok {
		b.Layer = layers[strings.ToLower(s.Layer)]
	}

	head := strings.ToLower(prefix(s.Code, providerScanChars))
	for _, term := range r.scoring.ProviderTerms {
		term = strings.ToLower(term)
		if strings.Contains(fp, term) || strings.Contains(head, term) {
			b.Provider = r.scoring.ProviderBonus
			break
		}
	}

	if question.hasAny(r.scoring.FeatureQueryTerms) && featureSnippet(fp, strings.ToLower(prefix(s.Code, featureScanChars))) {
		b.Feature = r.scoring.FeatureBonus
	}

	if c.FromCards {
		b.Card = r.scoring.CardBonus
	}

	b.Origin = r.originBonus(s.Origin)
	return b
}

func featureSnippet(fp, head string) bool {
	if strings.Contains(fp, "diagnostic") || strings.Contains(head, "diagnostic") {
		return true
	}
	return strings.Contains(fp, "event") && strings.Contains(fp, "log")
}

func (r *ScoringRules) originBonus(origin string) float64 {
	vendor := strings.EqualFold(origin, store.OriginVendor)
	switch r.vendorMode {
	case config.VendorModePreferFirstParty:
		if vendor {
			return -r.scoring.VendorPenalty
		}
		return r.scoring.FirstPartyBonus
	case config.VendorModePreferVendor:
		if vendor {
			return r.scoring.VendorBonus
		}
	}
	return 0
}

// FilenameFactors returns the basename and path-segment multipliers.
func (r *ScoringRules) FilenameFactors() (basename, pathPart float64) {
	return r.scoring.BasenameFactor, r.scoring.PathPartFactor
}

// prefix returns at most n bytes of s, cut back to a rune boundary.
func prefix(s string, n int) string {
	if n < 0 {
		n = 0
	}
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
