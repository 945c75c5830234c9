package mcp

// RagSearchInput defines the input schema for the rag_search tool.
type RagSearchInput struct {
	Repo     string `json:"repo,omitempty" jsonschema:"repository name; omitted means route by question"`
	Question string `json:"question" jsonschema:"search query for code retrieval"`
	TopK     int    `json:"top_k,omitempty" jsonschema:"number of results to return, default 10"`
}

// RagSearchOutput defines the output schema for the rag_search tool.
type RagSearchOutput struct {
	Results  []SearchResultOutput `json:"results" jsonschema:"code locations, best first"`
	Repo     string               `json:"repo" jsonschema:"repo the question was routed to"`
	Count    int                  `json:"count"`
	Degraded bool                 `json:"degraded,omitempty" jsonschema:"true if a retrieval channel was unavailable"`
}

// SearchResultOutput is one slim result. Code bodies are not returned.
type SearchResultOutput struct {
	FilePath    string  `json:"file_path"`
	StartLine   int     `json:"start_line"`
	EndLine     int     `json:"end_line"`
	Language    string  `json:"language,omitempty"`
	RerankScore float64 `json:"rerank_score" jsonschema:"final score after reranking and boosts"`
	Repo        string  `json:"repo"`
	Citation    string  `json:"citation" jsonschema:"path:start-end"`
	MatchReason string  `json:"match_reason,omitempty" jsonschema:"which channels and signals ranked this result"`
}

// RagAnswerInput defines the input schema for the rag_answer tool.
type RagAnswerInput struct {
	Repo     string `json:"repo,omitempty" jsonschema:"repository name; omitted means route by question"`
	Question string `json:"question" jsonschema:"developer question to answer from the codebase"`
}

// RagAnswerOutput defines the output schema for the rag_answer tool.
type RagAnswerOutput struct {
	Answer       string   `json:"answer"`
	Citations    []string `json:"citations" jsonschema:"path:start-end locations backing the answer"`
	Repo         string   `json:"repo"`
	Confidence   float64  `json:"confidence"`
	Outcome      string   `json:"outcome" jsonschema:"answered, fallback or generator_unavailable"`
	Iterations   int      `json:"iterations"`
	Supplemented bool     `json:"supplemented,omitempty"`
	Degraded     bool     `json:"degraded,omitempty"`
}
