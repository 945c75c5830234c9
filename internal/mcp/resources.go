package mcp

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	reposURI     = "coderag://repos"
	telemetryURI = "coderag://telemetry"
)

// RepoOutput describes one configured repo for the repos resource.
type RepoOutput struct {
	Name       string   `json:"name"`
	Collection string   `json:"collection"`
	DataDir    string   `json:"data_dir"`
	Keywords   []string `json:"keywords,omitempty"`
	Default    bool     `json:"default,omitempty"`
}

// TelemetryOutput is the JSON structure for the telemetry resource.
type TelemetryOutput struct {
	TotalTurns          int64            `json:"total_turns"`
	TimePeriod          string           `json:"time_period"`
	ZeroResultPct       float64          `json:"zero_result_pct"`
	MeanConfidence      float64          `json:"mean_confidence"`
	MeanIterations      float64          `json:"mean_iterations"`
	OutcomeCounts       map[string]int64 `json:"outcome_counts"`
	RepoCounts          map[string]int64 `json:"repo_counts"`
	LatencyDistribution map[string]int64 `json:"latency_distribution"`
	TopTerms            []TermOutput     `json:"top_terms"`
	ZeroResultQuestions []string         `json:"zero_result_questions"`
}

// TermOutput represents a term and its frequency.
type TermOutput struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

func (s *Server) registerReposResource() {
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        "repos",
			URI:         reposURI,
			Description: "Configured repositories and their routing keywords",
			MIMEType:    "application/json",
		},
		func(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			return s.readRepos(ctx)
		},
	)
}

func (s *Server) readRepos(_ context.Context) (*mcp.ReadResourceResult, error) {
	repos := make([]RepoOutput, 0, len(s.config.Repos))
	for _, r := range s.config.Repos {
		repos = append(repos, RepoOutput{
			Name:       r.Name,
			Collection: s.config.CollectionFor(r.Name),
			DataDir:    s.config.DataDirFor(r.Name),
			Keywords:   r.Keywords,
			Default:    r.Name == s.config.DefaultRepo,
		})
	}
	return jsonResource(reposURI, repos)
}

func (s *Server) registerTelemetryResource() {
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        "telemetry",
			URI:         telemetryURI,
			Description: "Answer and search telemetry for this session",
			MIMEType:    "application/json",
		},
		func(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			return s.readTelemetry(ctx)
		},
	)
}

func (s *Server) readTelemetry(_ context.Context) (*mcp.ReadResourceResult, error) {
	s.mu.RLock()
	metrics := s.metrics
	s.mu.RUnlock()

	if metrics == nil {
		return nil, NewResourceNotFoundError(telemetryURI)
	}

	snap := metrics.Snapshot()
	out := TelemetryOutput{
		TotalTurns:          snap.TotalTurns,
		TimePeriod:          "session",
		ZeroResultPct:       snap.ZeroResultPercentage(),
		MeanConfidence:      snap.MeanConfidence,
		MeanIterations:      snap.MeanIterations,
		OutcomeCounts:       snap.OutcomeCounts,
		RepoCounts:          snap.RepoCounts,
		LatencyDistribution: make(map[string]int64, len(snap.LatencyDistribution)),
		TopTerms:            make([]TermOutput, 0, len(snap.TopTerms)),
		ZeroResultQuestions: snap.ZeroResultQuestions,
	}
	for bucket, count := range snap.LatencyDistribution {
		out.LatencyDistribution[string(bucket)] = count
	}
	for _, tc := range snap.TopTerms {
		out.TopTerms = append(out.TopTerms, TermOutput{Term: tc.Term, Count: tc.Count})
	}
	return jsonResource(telemetryURI, out)
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	content, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, MapError(err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      uri,
				MIMEType: "application/json",
				Text:     string(content),
			},
		},
	}, nil
}
