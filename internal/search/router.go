package search

import (
	"regexp"
	"strings"

	"github.com/Aman-CERP/coderag/internal/config"
)

var repoPrefix = regexp.MustCompile(`^\s*([A-Za-z0-9_.\-]+)\s*:\s*`)

// Router picks the repository a question targets. It holds no mutable
// state; the chosen repo is threaded explicitly through every call.
type Router struct {
	repos  []config.RepoConfig
	global string
}

// NewRouter builds a router from the configured repos.
func NewRouter(cfg *config.Config) *Router {
	return &Router{repos: cfg.Repos, global: cfg.FallbackRepo()}
}

// Route resolves, in order: a "name:" prefix naming a known repo, a unique
// keyword-vote winner, fallback if it names a known repo, then the global
// default. It never fails.
func (r *Router) Route(question, fallback string) string {
	if name, ok := r.prefixRepo(question); ok {
		return name
	}
	if name, ok := r.vote(question); ok {
		return name
	}
	if name, ok := r.known(fallback); ok {
		return name
	}
	return r.global
}

// Strip removes a recognised "name:" prefix from question.
func (r *Router) Strip(question string) string {
	if _, ok := r.prefixRepo(question); ok {
		return strings.TrimSpace(question[len(repoPrefix.FindString(question)):])
	}
	return question
}

// Known reports whether name is a configured repo.
func (r *Router) Known(name string) bool {
	_, ok := r.known(name)
	return ok
}

func (r *Router) prefixRepo(question string) (string, bool) {
	m := repoPrefix.FindStringSubmatch(question)
	if m == nil {
		return "", false
	}
	return r.known(m[1])
}

func (r *Router) known(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false
	}
	for _, repo := range r.repos {
		if strings.EqualFold(repo.Name, name) {
			return repo.Name, true
		}
	}
	if strings.EqualFold(name, r.global) {
		return r.global, true
	}
	return "", false
}

// vote counts keyword hits per repo; a tie for the top count falls through.
func (r *Router) vote(question string) (string, bool) {
	ts := newTermSet(question)
	best, bestVotes, tied := "", 0, false
	for _, repo := range r.repos {
		votes := ts.count(repo.Keywords)
		switch {
		case votes == 0:
		case votes > bestVotes:
			best, bestVotes, tied = repo.Name, votes, false
		case votes == bestVotes:
			tied = true
		}
	}
	if bestVotes == 0 || tied {
		return "", false
	}
	return best, true
}
