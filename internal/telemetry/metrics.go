// Package telemetry records per-turn retrieval and answer metrics locally.
// Nothing is reported externally.
package telemetry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Aman-CERP/coderag/internal/answer"
	"github.com/Aman-CERP/coderag/internal/store"
)

// TurnKind separates plain searches from answer turns.
type TurnKind string

const (
	KindSearch TurnKind = "search"
	KindAnswer TurnKind = "answer"
)

// Outcome of a search turn; answer turns use answer.Outcome values.
const (
	OutcomeResults   = "results"
	OutcomeNoResults = "no_results"
)

// LatencyBucket is a latency histogram bucket sized for model round trips.
type LatencyBucket string

const (
	BucketLT100ms LatencyBucket = "lt100ms"
	BucketLT500ms LatencyBucket = "lt500ms"
	BucketLT2s    LatencyBucket = "lt2s"
	BucketLT10s   LatencyBucket = "lt10s"
	BucketGE10s   LatencyBucket = "ge10s"
)

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	switch {
	case d < 100*time.Millisecond:
		return BucketLT100ms
	case d < 500*time.Millisecond:
		return BucketLT500ms
	case d < 2*time.Second:
		return BucketLT2s
	case d < 10*time.Second:
		return BucketLT10s
	default:
		return BucketGE10s
	}
}

// TurnEvent is one finished search or answer turn.
type TurnEvent struct {
	Kind         TurnKind
	Repo         string
	Question     string
	Outcome      string
	Results      int
	Iterations   int
	Confidence   float64
	Degraded     bool
	Supplemented bool
	Latency      time.Duration
	Timestamp    time.Time
}

// IsZeroResult reports whether the turn retrieved nothing.
func (e TurnEvent) IsZeroResult() bool {
	return e.Results == 0
}

// CircularBuffer is a fixed-capacity FIFO buffer.
type CircularBuffer[T any] struct {
	items    []T
	head     int
	size     int
	capacity int
	mu       sync.RWMutex
}

// NewCircularBuffer creates a buffer; non-positive capacity means 100.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &CircularBuffer[T]{items: make([]T, capacity), capacity: capacity}
}

// Add appends item, evicting the oldest when full.
func (b *CircularBuffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items[b.head] = item
	b.head = (b.head + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
}

// Items returns the contents oldest first.
func (b *CircularBuffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()
	result := make([]T, b.size)
	if b.size < b.capacity {
		copy(result, b.items[:b.size])
	} else {
		copy(result, b.items[b.head:])
		copy(result[b.capacity-b.head:], b.items[:b.head])
	}
	return result
}

// Size returns the number of items held.
func (b *CircularBuffer[T]) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// ExtractTerms lowercases question and keeps words of three or more
// characters that the code analyzer would not drop.
func ExtractTerms(question string) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(question)) {
		w = strings.Trim(w, "?!.,;:'\"`()[]{}")
		if len(w) < 3 || store.IsStopWord(w) {
			continue
		}
		terms = append(terms, w)
	}
	return terms
}

// TermCount is a term and its frequency.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// Snapshot is a point-in-time copy of the in-memory metrics.
type Snapshot struct {
	KindCounts          map[TurnKind]int64      `json:"kind_counts"`
	OutcomeCounts       map[string]int64        `json:"outcome_counts"`
	RepoCounts          map[string]int64        `json:"repo_counts"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	TopTerms            []TermCount             `json:"top_terms"`
	ZeroResultQuestions []string                `json:"zero_result_questions"`
	TotalTurns          int64                   `json:"total_turns"`
	ZeroResultCount     int64                   `json:"zero_result_count"`
	DegradedCount       int64                   `json:"degraded_count"`
	SupplementedCount   int64                   `json:"supplemented_count"`
	MeanConfidence      float64                 `json:"mean_confidence"`
	MeanIterations      float64                 `json:"mean_iterations"`
	ExactRepeatCount    int64                   `json:"exact_repeat_count"`
	Since               time.Time               `json:"since"`
}

// ZeroResultPercentage returns the share of turns that retrieved nothing.
func (s *Snapshot) ZeroResultPercentage() float64 {
	if s.TotalTurns == 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(s.TotalTurns) * 100
}

// Config configures a Metrics collector.
type Config struct {
	TopTermsCapacity      int
	ZeroResultsCapacity   int
	RecentQueriesCapacity int
	// FlushInterval of 0 disables background flushing.
	FlushInterval time.Duration
}

// DefaultConfig returns the stock capacities and a one minute flush.
func DefaultConfig() Config {
	return Config{
		TopTermsCapacity:      100,
		ZeroResultsCapacity:   100,
		RecentQueriesCapacity: 500,
		FlushInterval:         60 * time.Second,
	}
}

// Metrics aggregates turns in memory and flushes them to a Store.
// Safe for concurrent use.
type Metrics struct {
	mu sync.Mutex

	kinds           map[TurnKind]int64
	outcomes        map[string]int64
	repos           map[string]int64
	latencies       map[LatencyBucket]int64
	topTerms        *lru.Cache[string, int64]
	zeroResults     *CircularBuffer[string]
	recent          *lru.Cache[string, struct{}]
	total           int64
	zeroResultCount int64
	degraded        int64
	supplemented    int64
	answerTurns     int64
	confidenceSum   float64
	iterationSum    int64
	exactRepeats    int64
	startTime       time.Time

	// pending holds events not yet written to the store.
	pending []TurnEvent

	store  *SQLiteStore
	ticker *time.Ticker
	stopCh chan struct{}
	closed bool
}

// NewMetrics creates a collector. A nil store keeps metrics in memory only.
func NewMetrics(s *SQLiteStore, cfg Config) *Metrics {
	def := DefaultConfig()
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = def.TopTermsCapacity
	}
	if cfg.ZeroResultsCapacity <= 0 {
		cfg.ZeroResultsCapacity = def.ZeroResultsCapacity
	}
	if cfg.RecentQueriesCapacity <= 0 {
		cfg.RecentQueriesCapacity = def.RecentQueriesCapacity
	}
	topTerms, _ := lru.New[string, int64](cfg.TopTermsCapacity)
	recent, _ := lru.New[string, struct{}](cfg.RecentQueriesCapacity)

	m := &Metrics{
		kinds:       make(map[TurnKind]int64),
		outcomes:    make(map[string]int64),
		repos:       make(map[string]int64),
		latencies:   make(map[LatencyBucket]int64),
		topTerms:    topTerms,
		zeroResults: NewCircularBuffer[string](cfg.ZeroResultsCapacity),
		recent:      recent,
		startTime:   time.Now(),
		store:       s,
		stopCh:      make(chan struct{}),
	}
	if cfg.FlushInterval > 0 && s != nil {
		m.ticker = time.NewTicker(cfg.FlushInterval)
		go m.flushLoop()
	}
	return m
}

func (m *Metrics) flushLoop() {
	for {
		select {
		case <-m.ticker.C:
			if err := m.Flush(); err != nil {
				slog.Warn("telemetry_flush_failed", slog.String("error", err.Error()))
			}
		case <-m.stopCh:
			return
		}
	}
}

// Record adds one event.
func (m *Metrics) Record(e TurnEvent) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}

	m.total++
	m.kinds[e.Kind]++
	m.outcomes[e.Outcome]++
	m.repos[e.Repo]++
	m.latencies[LatencyToBucket(e.Latency)]++
	if e.Degraded {
		m.degraded++
	}
	if e.Supplemented {
		m.supplemented++
	}
	if e.Kind == KindAnswer {
		m.answerTurns++
		m.confidenceSum += e.Confidence
		m.iterationSum += int64(e.Iterations)
	}
	for _, term := range ExtractTerms(e.Question) {
		count, _ := m.topTerms.Get(term)
		m.topTerms.Add(term, count+1)
	}
	if e.IsZeroResult() {
		m.zeroResults.Add(e.Question)
		m.zeroResultCount++
	}
	key := hashQuestion(e.Question)
	if _, ok := m.recent.Get(key); ok {
		m.exactRepeats++
	}
	m.recent.Add(key, struct{}{})

	if m.store != nil {
		m.pending = append(m.pending, e)
	}
}

// RecordTurn records a finished answer turn.
func (m *Metrics) RecordTurn(_ context.Context, t answer.Turn) {
	m.Record(TurnEvent{
		Kind:         KindAnswer,
		Repo:         t.Repo,
		Question:     t.Question,
		Outcome:      string(t.Outcome),
		Results:      len(t.Candidates),
		Iterations:   t.Iterations,
		Confidence:   t.Confidence,
		Degraded:     t.Degraded,
		Supplemented: t.Supplemented,
		Latency:      t.Took,
	})
}

// RecordSearch records a plain search.
func (m *Metrics) RecordSearch(repo, question string, results int, degraded bool, latency time.Duration) {
	outcome := OutcomeResults
	if results == 0 {
		outcome = OutcomeNoResults
	}
	m.Record(TurnEvent{
		Kind:     KindSearch,
		Repo:     repo,
		Question: question,
		Outcome:  outcome,
		Results:  results,
		Degraded: degraded,
		Latency:  latency,
	})
}

func hashQuestion(q string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.Join(strings.Fields(q), " "))))
	return hex.EncodeToString(sum[:16])
}

// Snapshot returns a copy of the current aggregates.
func (m *Metrics) Snapshot() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := &Snapshot{
		KindCounts:          make(map[TurnKind]int64, len(m.kinds)),
		OutcomeCounts:       make(map[string]int64, len(m.outcomes)),
		RepoCounts:          make(map[string]int64, len(m.repos)),
		LatencyDistribution: make(map[LatencyBucket]int64, len(m.latencies)),
		ZeroResultQuestions: m.zeroResults.Items(),
		TotalTurns:          m.total,
		ZeroResultCount:     m.zeroResultCount,
		DegradedCount:       m.degraded,
		SupplementedCount:   m.supplemented,
		ExactRepeatCount:    m.exactRepeats,
		Since:               m.startTime,
	}
	for k, v := range m.kinds {
		s.KindCounts[k] = v
	}
	for k, v := range m.outcomes {
		s.OutcomeCounts[k] = v
	}
	for k, v := range m.repos {
		s.RepoCounts[k] = v
	}
	for k, v := range m.latencies {
		s.LatencyDistribution[k] = v
	}
	for _, key := range m.topTerms.Keys() {
		if count, ok := m.topTerms.Peek(key); ok {
			s.TopTerms = append(s.TopTerms, TermCount{Term: key, Count: count})
		}
	}
	sort.SliceStable(s.TopTerms, func(i, j int) bool {
		if s.TopTerms[i].Count != s.TopTerms[j].Count {
			return s.TopTerms[i].Count > s.TopTerms[j].Count
		}
		return s.TopTerms[i].Term < s.TopTerms[j].Term
	})
	if m.answerTurns > 0 {
		s.MeanConfidence = m.confidenceSum / float64(m.answerTurns)
		s.MeanIterations = float64(m.iterationSum) / float64(m.answerTurns)
	}
	return s
}

// Flush writes pending events to the store. Safe without a store.
func (m *Metrics) Flush() error {
	m.mu.Lock()
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()

	if m.store == nil || len(pending) == 0 {
		return nil
	}
	if err := m.store.SaveEvents(pending); err != nil {
		m.mu.Lock()
		m.pending = append(pending, m.pending...)
		m.mu.Unlock()
		return err
	}
	return nil
}

// Close stops background flushing and writes what is pending.
func (m *Metrics) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	if m.ticker != nil {
		m.ticker.Stop()
		close(m.stopCh)
	}
	return m.Flush()
}
