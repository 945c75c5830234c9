// Package config loads coderag configuration.
//
// Precedence, lowest first: built-in defaults, the user file
// (~/.config/coderag/config.yaml), the project file (.coderag.yaml or
// .coderag.yml), a project .env file, and CODERAG_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Vendor preference modes for the origin bonus.
const (
	VendorModeNone             = ""
	VendorModePreferFirstParty = "prefer_first_party"
	VendorModePreferVendor     = "prefer_vendor"
)

// GlobalDefaultRepo is used when nothing else names a repository.
const GlobalDefaultRepo = "project"

// Config is the full coderag configuration.
type Config struct {
	Version     int    `yaml:"version"`
	DefaultRepo string `yaml:"default_repo"`
	// DataRoot holds one directory per repo unless RepoConfig.DataDir overrides it.
	DataRoot   string       `yaml:"data_root"`
	VendorMode string       `yaml:"vendor_mode"`
	Repos      []RepoConfig `yaml:"repos"`

	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Rerank     RerankConfig     `yaml:"rerank"`
	Scoring    ScoringConfig    `yaml:"scoring"`
	Answer     AnswerConfig     `yaml:"answer"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Generation GenerationConfig `yaml:"generation"`
	Qdrant     QdrantConfig     `yaml:"qdrant"`
	Hydration  HydrationConfig  `yaml:"hydration"`
	Index      IndexConfig      `yaml:"index"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Server     ServerConfig     `yaml:"server"`
}

// RepoConfig describes one indexed repository.
type RepoConfig struct {
	Name string `yaml:"name"`
	// Collection defaults to "code_chunks_<name>".
	Collection string   `yaml:"collection,omitempty"`
	DataDir    string   `yaml:"data_dir,omitempty"`
	Keywords   []string `yaml:"keywords,omitempty"`
	// PathBoosts are path substrings rewarded when this repo is the routed one.
	PathBoosts      []string `yaml:"path_boosts,omitempty"`
	PathBoostWeight float64  `yaml:"path_boost_weight,omitempty"`
	PathBoostCap    float64  `yaml:"path_boost_cap,omitempty"`
}

// RetrievalConfig controls the per-variant pipeline and the orchestrator.
type RetrievalConfig struct {
	TopKDense      int           `yaml:"topk_dense"`
	TopKSparse     int           `yaml:"topk_sparse"`
	FinalK         int           `yaml:"final_k"`
	RRFConstant    int           `yaml:"rrf_constant"`
	Expansions     int           `yaml:"expansions"`
	ChannelTimeout time.Duration `yaml:"channel_timeout"`
	// DenseBackend is "qdrant" or "hnsw".
	DenseBackend string `yaml:"dense_backend"`
	// SparseBackend is "bleve" or "sqlite".
	SparseBackend  string `yaml:"sparse_backend"`
	CardsEnabled   bool   `yaml:"cards_enabled"`
	CardsTopK      int    `yaml:"cards_topk"`
	FilenameBoosts bool   `yaml:"filename_boosts"`
	// MaxParallelVariants bounds concurrent variant retrievals.
	MaxParallelVariants int `yaml:"max_parallel_variants"`
}

// RerankConfig selects the cross-encoder backend.
type RerankConfig struct {
	// Backend is "http" or "none".
	Backend      string        `yaml:"backend"`
	Endpoint     string        `yaml:"endpoint"`
	Model        string        `yaml:"model"`
	SnippetChars int           `yaml:"snippet_chars"`
	Timeout      time.Duration `yaml:"timeout"`
}

// IntentRule maps a query intent to the keywords that select it.
// Rules are tried in order; the first match wins.
type IntentRule struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// ScoringConfig is the declarative bonus table used by the reranker.
type ScoringConfig struct {
	Intents       []IntentRule                  `yaml:"intents"`
	DefaultIntent string                        `yaml:"default_intent"`
	LayerBonuses  map[string]map[string]float64 `yaml:"layer_bonuses"`
	PathBonuses   map[string]float64            `yaml:"path_bonuses"`

	ProviderTerms []string `yaml:"provider_terms"`
	ProviderBonus float64  `yaml:"provider_bonus"`

	FeatureQueryTerms []string `yaml:"feature_query_terms"`
	FeatureBonus      float64  `yaml:"feature_bonus"`

	CardBonus float64 `yaml:"card_bonus"`

	FirstPartyBonus float64 `yaml:"first_party_bonus"`
	VendorPenalty   float64 `yaml:"vendor_penalty"`
	VendorBonus     float64 `yaml:"vendor_bonus"`

	BasenameFactor float64 `yaml:"basename_factor"`
	PathPartFactor float64 `yaml:"path_part_factor"`
}

// AnswerConfig holds control-loop thresholds.
type AnswerConfig struct {
	TopScoreThreshold   float64 `yaml:"top_score_threshold"`
	Top5MeanThreshold   float64 `yaml:"top5_mean_threshold"`
	ConfidenceFloor     float64 `yaml:"confidence_floor"`
	RetryCap            int     `yaml:"retry_cap"`
	SupplementThreshold float64 `yaml:"supplement_threshold"`
	SupplementVariants  int     `yaml:"supplement_extra_variants"`
	ContextDocs         int     `yaml:"context_docs"`
	ContextTokens       int     `yaml:"context_tokens"`
	CitationCount       int     `yaml:"citation_count"`
	FallbackMessage     string  `yaml:"fallback_message"`
	// Tokenizer is a tiktoken encoding name, or "estimate" for 4 chars per token.
	Tokenizer string `yaml:"tokenizer"`
}

// EmbeddingsConfig selects the query embedder.
type EmbeddingsConfig struct {
	// Provider is "ollama" or "openai".
	Provider   string        `yaml:"provider"`
	Model      string        `yaml:"model"`
	OllamaHost string        `yaml:"ollama_host"`
	BaseURL    string        `yaml:"base_url,omitempty"`
	Dimensions int           `yaml:"dimensions"`
	CacheSize  int           `yaml:"cache_size"`
	Timeout    time.Duration `yaml:"timeout"`
	APIKey     string        `yaml:"-"`
}

// GenerationConfig selects the text generator.
type GenerationConfig struct {
	// Provider is "ollama", "openai" or "anthropic".
	Provider    string        `yaml:"provider"`
	Model       string        `yaml:"model"`
	OllamaHost  string        `yaml:"ollama_host"`
	BaseURL     string        `yaml:"base_url,omitempty"`
	Temperature float64       `yaml:"temperature"`
	NumCtx      int           `yaml:"num_ctx"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"max_retries"`
	APIKey      string        `yaml:"-"`
}

// QdrantConfig addresses the vector service (gRPC port).
type QdrantConfig struct {
	Addr             string `yaml:"addr"`
	CollectionPrefix string `yaml:"collection_prefix"`
	APIKey           string `yaml:"-"`
}

// HydrationConfig controls lazy loading of snippet bodies.
type HydrationConfig struct {
	// Mode is "lazy" or "none".
	Mode      string `yaml:"mode"`
	MaxChars  int    `yaml:"max_chars"`
	CacheSize int    `yaml:"cache_size"`
}

// IndexConfig controls `coderag index`.
type IndexConfig struct {
	BatchSize int `yaml:"batch_size"`
	// Cards is "existing" to index cards.jsonl as-is, "pattern" to derive
	// missing cards from snippet metadata, or "llm" to ask the generator.
	Cards    string `yaml:"cards"`
	CardsMax int    `yaml:"cards_max"`
	// Enrich fills empty snippet symbols and imports with tree-sitter.
	Enrich bool `yaml:"enrich"`
}

// TelemetryConfig controls per-turn metrics.
type TelemetryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// ServerConfig controls the MCP server.
type ServerConfig struct {
	Transport string `yaml:"transport"`
	LogLevel  string `yaml:"log_level"`
}

// NewConfig returns the built-in defaults.
func NewConfig() *Config {
	return &Config{
		Version:  1,
		DataRoot: ".coderag",
		Retrieval: RetrievalConfig{
			TopKDense:           75,
			TopKSparse:          75,
			FinalK:              10,
			RRFConstant:         60,
			Expansions:          4,
			ChannelTimeout:      5 * time.Second,
			DenseBackend:        "qdrant",
			SparseBackend:       "bleve",
			CardsEnabled:        true,
			CardsTopK:           30,
			FilenameBoosts:      true,
			MaxParallelVariants: 4,
		},
		Rerank: RerankConfig{
			Backend:      "http",
			Endpoint:     "http://127.0.0.1:9659",
			Model:        "BAAI/bge-reranker-v2-m3",
			SnippetChars: 600,
			Timeout:      10 * time.Second,
		},
		Scoring: DefaultScoring(),
		Answer: AnswerConfig{
			TopScoreThreshold:   0.62,
			Top5MeanThreshold:   0.55,
			ConfidenceFloor:     0.55,
			RetryCap:            3,
			SupplementThreshold: 0.55,
			SupplementVariants:  2,
			ContextDocs:         8,
			ContextTokens:       6000,
			CitationCount:       5,
			FallbackMessage:     "I don't have high confidence from local code. Try refining the question or specifying the repo.",
			Tokenizer:           "cl100k_base",
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "ollama",
			Model:      "nomic-embed-text",
			OllamaHost: "http://localhost:11434",
			Dimensions: 768,
			CacheSize:  1000,
			Timeout:    30 * time.Second,
		},
		Generation: GenerationConfig{
			Provider:    "ollama",
			Model:       "llama3.1:8b",
			OllamaHost:  "http://localhost:11434",
			Temperature: 0.2,
			NumCtx:      8192,
			MaxTokens:   1024,
			Timeout:     90 * time.Second,
			MaxRetries:  1,
		},
		Qdrant: QdrantConfig{
			Addr:             "localhost:6334",
			CollectionPrefix: "code_chunks_",
		},
		Hydration: HydrationConfig{
			Mode:      "lazy",
			MaxChars:  2000,
			CacheSize: 4096,
		},
		Index: IndexConfig{
			BatchSize: 64,
			Cards:     "existing",
			Enrich:    true,
		},
		Telemetry: TelemetryConfig{
			Enabled: true,
			Path:    defaultTelemetryPath(),
		},
		Server: ServerConfig{
			Transport: "stdio",
			LogLevel:  "info",
		},
	}
}

// DefaultScoring returns the stock bonus table.
func DefaultScoring() ScoringConfig {
	return ScoringConfig{
		Intents: []IntentRule{
			{Name: "ui", Keywords: []string{"ui", "react", "component", "tsx", "page", "frontend", "render", "css"}},
			{Name: "integration", Keywords: []string{"notification", "pushover", "apprise", "hubspot", "provider", "integration", "adapter", "webhook"}},
			{Name: "server", Keywords: []string{"diagnostic", "health", "event log", "phi", "mask", "hipaa", "middleware", "auth", "token", "oauth", "hmac"}},
			{Name: "sdk", Keywords: []string{"sdk", "client library", "python sdk", "node sdk"}},
			{Name: "infra", Keywords: []string{"infra", "asterisk", "sip", "t.38", "ami", "freeswitch", "egress", "cloudflared"}},
		},
		DefaultIntent: "server",
		LayerBonuses: map[string]map[string]float64{
			"server":      {"server": 0.10, "kernel": 0.10, "integration": 0.06, "plugin": 0.04, "infra": 0.02, "docs": 0.02},
			"integration": {"provider": 0.12, "integration": 0.12, "traits": 0.10, "server": 0.06, "kernel": 0.04, "infra": 0.02},
			"ui":          {"ui": 0.12, "docs": 0.06, "server": 0.02, "kernel": 0.02, "plugin": 0.02},
			"sdk":         {"sdk": 0.12, "server": 0.04, "kernel": 0.04, "docs": 0.02},
			"infra":       {"infra": 0.12, "server": 0.04, "kernel": 0.04, "provider": 0.04},
		},
		PathBonuses: map[string]float64{
			"/identity/": 0.12,
			"/auth/":     0.12,
			"/server":    0.10,
			"/backend":   0.10,
			"/api/":      0.08,
		},
		ProviderTerms:     []string{"provider", "providers", "integration", "adapter", "webhook", "pushover", "apprise", "hubspot"},
		ProviderBonus:     0.06,
		FeatureQueryTerms: []string{"diagnostic", "health", "event log", "phi", "hipaa"},
		FeatureBonus:      0.06,
		CardBonus:         0.08,
		FirstPartyBonus:   0.06,
		VendorPenalty:     0.08,
		VendorBonus:       0.06,
		BasenameFactor:    1.5,
		PathPartFactor:    1.2,
	}
}

func defaultTelemetryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".coderag", "telemetry.db")
	}
	return filepath.Join(home, ".coderag", "telemetry.db")
}

// GetUserConfigPath follows XDG: $XDG_CONFIG_HOME/coderag/config.yaml,
// else ~/.config/coderag/config.yaml.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "coderag", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "coderag", "config.yaml")
	}
	return filepath.Join(home, ".config", "coderag", "config.yaml")
}

// Load resolves the configuration for the project rooted at dir.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userPath := GetUserConfigPath(); fileExists(userPath) {
		if err := cfg.loadYAML(userPath); err != nil {
			return nil, fmt.Errorf("load user config: %w", err)
		}
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	// .env never overrides variables already set in the process.
	if envPath := filepath.Join(dir, ".env"); fileExists(envPath) {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("load %s: %w", envPath, err)
		}
	}

	cfg.applyEnvOverrides()

	if cfg.DataRoot != "" && !filepath.IsAbs(cfg.DataRoot) {
		cfg.DataRoot = filepath.Join(dir, cfg.DataRoot)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFromFile(dir string) error {
	for _, name := range []string{".coderag.yaml", ".coderag.yml"} {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			return c.loadYAML(path)
		}
	}
	return nil
}

// loadYAML decodes path over c. Keys absent from the file keep their
// current values; lists and nested tables present in the file replace them.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
				*dst = n
			}
		}
	}

	// REPO is honoured for compatibility with existing shell setups.
	setString("REPO", &c.DefaultRepo)
	setString("CODERAG_DEFAULT_REPO", &c.DefaultRepo)
	setString("CODERAG_DATA_ROOT", &c.DataRoot)
	setString("CODERAG_VENDOR_MODE", &c.VendorMode)

	setInt("CODERAG_TOPK_DENSE", &c.Retrieval.TopKDense)
	setInt("CODERAG_TOPK_SPARSE", &c.Retrieval.TopKSparse)
	setInt("CODERAG_FINAL_K", &c.Retrieval.FinalK)
	setInt("CODERAG_RRF_CONSTANT", &c.Retrieval.RRFConstant)
	setInt("CODERAG_EXPANSIONS", &c.Retrieval.Expansions)
	setString("CODERAG_DENSE_BACKEND", &c.Retrieval.DenseBackend)
	setString("CODERAG_SPARSE_BACKEND", &c.Retrieval.SparseBackend)

	setString("CODERAG_RERANK_BACKEND", &c.Rerank.Backend)
	setString("CODERAG_RERANK_ENDPOINT", &c.Rerank.Endpoint)
	setString("CODERAG_RERANK_MODEL", &c.Rerank.Model)

	setString("CODERAG_EMBEDDINGS_PROVIDER", &c.Embeddings.Provider)
	setString("CODERAG_EMBEDDINGS_MODEL", &c.Embeddings.Model)
	setString("CODERAG_OLLAMA_HOST", &c.Embeddings.OllamaHost)
	setString("CODERAG_OLLAMA_HOST", &c.Generation.OllamaHost)
	setString("OPENAI_API_KEY", &c.Embeddings.APIKey)

	setString("CODERAG_GENERATION_PROVIDER", &c.Generation.Provider)
	setString("CODERAG_GENERATION_MODEL", &c.Generation.Model)
	switch c.Generation.Provider {
	case "anthropic":
		setString("ANTHROPIC_API_KEY", &c.Generation.APIKey)
	case "openai":
		setString("OPENAI_API_KEY", &c.Generation.APIKey)
	}

	setString("CODERAG_TOKENIZER", &c.Answer.Tokenizer)

	setString("CODERAG_QDRANT_ADDR", &c.Qdrant.Addr)
	setString("QDRANT_API_KEY", &c.Qdrant.APIKey)

	setString("CODERAG_HYDRATION_MODE", &c.Hydration.Mode)
	setInt("CODERAG_HYDRATION_MAX_CHARS", &c.Hydration.MaxChars)

	setInt("CODERAG_INDEX_BATCH_SIZE", &c.Index.BatchSize)
	setString("CODERAG_CARDS", &c.Index.Cards)
	setInt("CARDS_MAX", &c.Index.CardsMax)

	setString("CODERAG_LOG_LEVEL", &c.Server.LogLevel)
	if v := os.Getenv("CODERAG_TELEMETRY"); v != "" {
		c.Telemetry.Enabled = v == "1" || strings.EqualFold(v, "true")
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	r := c.Retrieval
	if r.TopKDense <= 0 || r.TopKSparse <= 0 || r.FinalK <= 0 {
		return fmt.Errorf("retrieval top-k values must be positive")
	}
	if r.RRFConstant <= 0 {
		return fmt.Errorf("retrieval.rrf_constant must be positive, got %d", r.RRFConstant)
	}
	if !oneOf(r.DenseBackend, "qdrant", "hnsw") {
		return fmt.Errorf("retrieval.dense_backend must be 'qdrant' or 'hnsw', got %s", r.DenseBackend)
	}
	if !oneOf(r.SparseBackend, "bleve", "sqlite") {
		return fmt.Errorf("retrieval.sparse_backend must be 'bleve' or 'sqlite', got %s", r.SparseBackend)
	}
	if !oneOf(c.Rerank.Backend, "http", "none", "off", "disabled") {
		return fmt.Errorf("rerank.backend must be 'http' or 'none', got %s", c.Rerank.Backend)
	}
	if !oneOf(c.VendorMode, VendorModeNone, VendorModePreferFirstParty, VendorModePreferVendor) {
		return fmt.Errorf("vendor_mode must be empty, %q or %q, got %s",
			VendorModePreferFirstParty, VendorModePreferVendor, c.VendorMode)
	}
	if !oneOf(c.Embeddings.Provider, "ollama", "openai") {
		return fmt.Errorf("embeddings.provider must be 'ollama' or 'openai', got %s", c.Embeddings.Provider)
	}
	if !oneOf(c.Generation.Provider, "ollama", "openai", "anthropic") {
		return fmt.Errorf("generation.provider must be 'ollama', 'openai' or 'anthropic', got %s", c.Generation.Provider)
	}
	if !oneOf(c.Hydration.Mode, "lazy", "none") {
		return fmt.Errorf("hydration.mode must be 'lazy' or 'none', got %s", c.Hydration.Mode)
	}
	if !oneOf(c.Index.Cards, "existing", "pattern", "llm") {
		return fmt.Errorf("index.cards must be 'existing', 'pattern' or 'llm', got %s", c.Index.Cards)
	}
	if c.Index.BatchSize <= 0 {
		return fmt.Errorf("index.batch_size must be positive, got %d", c.Index.BatchSize)
	}

	a := c.Answer
	for name, v := range map[string]float64{
		"answer.top_score_threshold":  a.TopScoreThreshold,
		"answer.top5_mean_threshold":  a.Top5MeanThreshold,
		"answer.confidence_floor":     a.ConfidenceFloor,
		"answer.supplement_threshold": a.SupplementThreshold,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be between 0 and 1, got %f", name, v)
		}
	}
	if a.RetryCap <= 0 {
		return fmt.Errorf("answer.retry_cap must be positive, got %d", a.RetryCap)
	}

	seen := make(map[string]bool, len(c.Repos))
	for i, repo := range c.Repos {
		if strings.TrimSpace(repo.Name) == "" {
			return fmt.Errorf("repos[%d].name is required", i)
		}
		if seen[repo.Name] {
			return fmt.Errorf("repo %q is configured twice", repo.Name)
		}
		seen[repo.Name] = true
	}

	if !oneOf(strings.ToLower(c.Server.LogLevel), "debug", "info", "warn", "error") {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}
	return nil
}

// Repo returns the named repo config. Unknown names get a zero-value entry
// carrying only the name, so every repo has a usable collection and data dir.
func (c *Config) Repo(name string) RepoConfig {
	for _, r := range c.Repos {
		if r.Name == name {
			return r
		}
	}
	return RepoConfig{Name: name}
}

// HasRepo reports whether name is explicitly configured.
func (c *Config) HasRepo(name string) bool {
	for _, r := range c.Repos {
		if r.Name == name {
			return true
		}
	}
	return false
}

// RepoNames lists configured repos in file order.
func (c *Config) RepoNames() []string {
	names := make([]string, 0, len(c.Repos))
	for _, r := range c.Repos {
		names = append(names, r.Name)
	}
	return names
}

// CollectionFor returns the vector collection for repo.
func (c *Config) CollectionFor(repo string) string {
	if rc := c.Repo(repo); rc.Collection != "" {
		return rc.Collection
	}
	return c.Qdrant.CollectionPrefix + repo
}

// DataDirFor returns where repo's snippets and indexes live.
func (c *Config) DataDirFor(repo string) string {
	if rc := c.Repo(repo); rc.DataDir != "" {
		return rc.DataDir
	}
	return filepath.Join(c.DataRoot, repo)
}

// FallbackRepo is the configured default, or GlobalDefaultRepo.
func (c *Config) FallbackRepo() string {
	if c.DefaultRepo != "" {
		return c.DefaultRepo
	}
	return GlobalDefaultRepo
}

// WriteYAML writes c to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// FindProjectRoot walks up from startDir to the first directory holding
// .git or a coderag config file, falling back to startDir.
func FindProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", startDir, err)
	}
	for cur := dir; ; {
		if dirExists(filepath.Join(cur, ".git")) ||
			fileExists(filepath.Join(cur, ".coderag.yaml")) ||
			fileExists(filepath.Join(cur, ".coderag.yml")) {
			return cur, nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return dir, nil
		}
		cur = parent
	}
}

func oneOf(v string, options ...string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
