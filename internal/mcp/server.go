package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/coderag/internal/answer"
	"github.com/Aman-CERP/coderag/internal/config"
	"github.com/Aman-CERP/coderag/internal/search"
	"github.com/Aman-CERP/coderag/internal/telemetry"
	"github.com/Aman-CERP/coderag/pkg/version"
)

const serverName = "coderag"

const (
	toolSearch = "rag_search"
	toolAnswer = "rag_answer"

	searchDescription = "Retrieval-only search. Returns ranked code locations (file, lines, score) for a question without generating an answer. Use it to inspect what the answer tool would see."
	answerDescription = "Answer a developer question from the indexed code with citations. Retrieval is retried with rewritten questions when confidence is low; a fixed fallback message is returned when nothing relevant is found."
)

// Searcher runs routed multi-variant retrieval.
type Searcher interface {
	SearchMulti(ctx context.Context, question, repo string, m, finalK int) (search.Retrieval, error)
}

// Answerer runs one answer turn.
type Answerer interface {
	Run(ctx context.Context, question, repo string) (answer.Turn, error)
}

// Server bridges MCP clients with the retrieval pipeline.
type Server struct {
	mcp      *mcp.Server
	searcher Searcher
	answerer Answerer
	config   *config.Config
	logger   *slog.Logger

	// Optional, set via SetMetrics
	metrics *telemetry.Metrics

	mu sync.RWMutex
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

// NewServer creates a new MCP server. answerer may be nil, in which case
// rag_answer reports the generator as unavailable.
func NewServer(searcher Searcher, answerer Answerer, cfg *config.Config) (*Server, error) {
	if searcher == nil {
		return nil, errors.New("searcher is required")
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}

	s := &Server{
		searcher: searcher,
		answerer: answerer,
		config:   cfg,
		logger:   slog.Default(),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    serverName,
			Version: version.Version,
		},
		nil,
	)

	s.registerTools()
	s.registerReposResource()
	return s, nil
}

// SetMetrics sets the telemetry collector. When set, searches are recorded
// and a telemetry resource is registered.
func (s *Server) SetMetrics(m *telemetry.Metrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = m

	if m != nil {
		s.registerTelemetryResource()
	}
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return serverName, version.Version
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	return []ToolInfo{
		{Name: toolAnswer, Description: answerDescription},
		{Name: toolSearch, Description: searchDescription},
	}
}

// CallTool invokes a tool by name with JSON-decoded arguments.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case toolSearch, "rag.search":
		in := RagSearchInput{
			Repo:     stringArg(args, "repo"),
			Question: stringArg(args, "question"),
		}
		if k, ok := args["top_k"].(float64); ok {
			in.TopK = int(k)
		}
		return s.handleSearch(ctx, in)
	case toolAnswer, "rag.answer":
		return s.handleAnswer(ctx, RagAnswerInput{
			Repo:     stringArg(args, "repo"),
			Question: stringArg(args, "question"),
		})
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func (s *Server) handleSearch(ctx context.Context, in RagSearchInput) (*RagSearchOutput, error) {
	if strings.TrimSpace(in.Question) == "" {
		return nil, NewInvalidParamsError("question parameter is required and must be a non-empty string")
	}

	start := time.Now()
	requestID := generateRequestID()
	topK := clampLimit(in.TopK, 10, 1, 50)

	s.logger.Info("rag_search started",
		slog.String("request_id", requestID),
		slog.String("repo", in.Repo),
		slog.Int("top_k", topK))

	ret, err := s.searcher.SearchMulti(ctx, in.Question, in.Repo, s.config.Retrieval.Expansions, topK)
	duration := time.Since(start)
	if err != nil {
		s.logger.Error("rag_search failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}

	s.mu.RLock()
	metrics := s.metrics
	s.mu.RUnlock()
	if metrics != nil {
		metrics.RecordSearch(ret.Repo, in.Question, len(ret.Candidates), ret.Degraded, duration)
	}

	s.logger.Info("rag_search completed",
		slog.String("request_id", requestID),
		slog.String("repo", ret.Repo),
		slog.Duration("duration", duration),
		slog.Int("result_count", len(ret.Candidates)),
		slog.Bool("degraded", ret.Degraded))

	out := &RagSearchOutput{
		Results:  make([]SearchResultOutput, 0, len(ret.Candidates)),
		Repo:     ret.Repo,
		Degraded: ret.Degraded,
	}
	for _, c := range ret.Candidates {
		out.Results = append(out.Results, ToSearchResultOutput(ret.Repo, c))
	}
	out.Count = len(out.Results)
	return out, nil
}

func (s *Server) handleAnswer(ctx context.Context, in RagAnswerInput) (*RagAnswerOutput, error) {
	if strings.TrimSpace(in.Question) == "" {
		return nil, NewInvalidParamsError("question parameter is required and must be a non-empty string")
	}
	if s.answerer == nil {
		return nil, &MCPError{Code: ErrCodeBackendUnavailable, Message: "Answering is not configured. Use rag_search instead."}
	}

	start := time.Now()
	requestID := generateRequestID()
	s.logger.Info("rag_answer started",
		slog.String("request_id", requestID),
		slog.String("repo", in.Repo))

	turn, err := s.answerer.Run(ctx, in.Question, in.Repo)
	if err != nil {
		s.logger.Error("rag_answer failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}

	s.logger.Info("rag_answer completed",
		slog.String("request_id", requestID),
		slog.String("repo", turn.Repo),
		slog.String("outcome", string(turn.Outcome)),
		slog.Int("iterations", turn.Iterations),
		slog.Duration("duration", time.Since(start)))

	citations := turn.Citations
	if citations == nil {
		citations = []string{}
	}
	return &RagAnswerOutput{
		Answer:       turn.Answer,
		Citations:    citations,
		Repo:         turn.Repo,
		Confidence:   turn.Confidence,
		Outcome:      string(turn.Outcome),
		Iterations:   turn.Iterations,
		Supplemented: turn.Supplemented,
		Degraded:     turn.Degraded,
	}, nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{Name: toolAnswer, Description: answerDescription}, s.mcpAnswerHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: toolSearch, Description: searchDescription}, s.mcpSearchHandler)
	s.logger.Debug("MCP tools registered", slog.Int("count", 2))
}

func (s *Server) mcpSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, input RagSearchInput) (
	*mcp.CallToolResult,
	RagSearchOutput,
	error,
) {
	out, err := s.handleSearch(ctx, input)
	if err != nil {
		return nil, RagSearchOutput{}, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: FormatSearchResults(input.Question, out)}},
	}, *out, nil
}

func (s *Server) mcpAnswerHandler(ctx context.Context, _ *mcp.CallToolRequest, input RagAnswerInput) (
	*mcp.CallToolResult,
	RagAnswerOutput,
	error,
) {
	out, err := s.handleAnswer(ctx, input)
	if err != nil {
		return nil, RagAnswerOutput{}, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: FormatAnswer(out)}},
	}, *out, nil
}

// Serve runs the server on the given transport until ctx is done.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("Starting MCP server", slog.String("transport", transport))

	switch transport {
	case "stdio", "":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		} else {
			s.logger.Info("MCP server stopped gracefully")
		}
		return err
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
