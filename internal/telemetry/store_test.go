package telemetry

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})

	s, err := NewSQLiteStore(db)
	require.NoError(t, err)
	return s
}

var day = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func TestSQLiteStore_RequiresDB(t *testing.T) {
	_, err := NewSQLiteStore(nil)
	assert.Error(t, err)
}

func TestSQLiteStore_SaveEventsAndSummarize(t *testing.T) {
	// Given: a store and a mix of answer and search turns on one day
	s := setupTestStore(t)
	events := []TurnEvent{
		{Kind: KindAnswer, Repo: "faxbot", Question: "inbound fax webhook", Outcome: "answered",
			Results: 8, Iterations: 1, Confidence: 0.8, Latency: 3 * time.Second, Timestamp: day},
		{Kind: KindAnswer, Repo: "faxbot", Question: "t38 negotiation", Outcome: "fallback",
			Results: 0, Iterations: 3, Confidence: 0.2, Degraded: true, Latency: 12 * time.Second, Timestamp: day},
		{Kind: KindSearch, Repo: "webapp", Question: "login button", Outcome: OutcomeResults,
			Results: 10, Latency: 50 * time.Millisecond, Timestamp: day},
	}

	// When: saving and summarizing that day
	require.NoError(t, s.SaveEvents(events))
	sum, err := s.Summarize("2026-03-14", "2026-03-14", 10)
	require.NoError(t, err)

	// Then: every aggregate reflects the events
	assert.Equal(t, int64(3), sum.TotalTurns)
	assert.Equal(t, int64(2), sum.KindCounts[KindAnswer])
	assert.Equal(t, int64(1), sum.KindCounts[KindSearch])
	assert.Equal(t, int64(1), sum.OutcomeCounts["answered"])
	assert.Equal(t, int64(1), sum.OutcomeCounts["fallback"])
	assert.Equal(t, int64(2), sum.RepoCounts["faxbot"])
	assert.Equal(t, int64(1), sum.DegradedCount)
	assert.InDelta(t, 0.5, sum.MeanConfidence, 1e-9)
	assert.InDelta(t, 2.0, sum.MeanIterations, 1e-9)
	assert.Equal(t, int64(1), sum.Latency[BucketLT100ms])
	assert.Equal(t, int64(1), sum.Latency[BucketLT10s])
	assert.Equal(t, int64(1), sum.Latency[BucketGE10s])
	assert.Equal(t, []string{"t38 negotiation"}, sum.ZeroResults)
}

func TestSQLiteStore_SaveEventsIsIncremental(t *testing.T) {
	s := setupTestStore(t)
	e := TurnEvent{Kind: KindSearch, Repo: "webapp", Question: "login", Outcome: OutcomeResults, Results: 1, Timestamp: day}

	require.NoError(t, s.SaveEvents([]TurnEvent{e}))
	require.NoError(t, s.SaveEvents([]TurnEvent{e, e}))

	sum, err := s.Summarize("2026-03-14", "2026-03-14", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(3), sum.TotalTurns)
	assert.Equal(t, int64(3), sum.RepoCounts["webapp"])
}

func TestSQLiteStore_SummarizeRespectsDateRange(t *testing.T) {
	s := setupTestStore(t)
	require.NoError(t, s.SaveEvents([]TurnEvent{
		{Kind: KindSearch, Repo: "a", Question: "x", Outcome: OutcomeResults, Results: 1, Timestamp: day},
		{Kind: KindSearch, Repo: "a", Question: "y", Outcome: OutcomeResults, Results: 1, Timestamp: day.AddDate(0, 0, -10)},
	}))

	sum, err := s.Summarize("2026-03-10", "2026-03-14", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.TotalTurns)
}

func TestSQLiteStore_TopTerms(t *testing.T) {
	// Given: terms repeated across questions
	s := setupTestStore(t)
	require.NoError(t, s.SaveEvents([]TurnEvent{
		{Kind: KindAnswer, Repo: "r", Question: "How does the webhook retry?", Results: 1, Timestamp: day},
		{Kind: KindAnswer, Repo: "r", Question: "webhook signature", Results: 1, Timestamp: day},
	}))

	// When: reading the top terms
	terms, err := s.TopTerms(2)
	require.NoError(t, err)

	// Then: the most frequent term is first and stop words are absent
	require.Len(t, terms, 2)
	assert.Equal(t, TermCount{Term: "webhook", Count: 2}, terms[0])
	for _, tc := range terms {
		assert.NotEqual(t, "how", tc.Term)
	}
}

func TestSQLiteStore_ZeroResultQuestionsCapped(t *testing.T) {
	// Given: more zero-result turns than the table keeps
	s := setupTestStore(t)
	var events []TurnEvent
	for i := 0; i < maxZeroResultRows+20; i++ {
		events = append(events, TurnEvent{Kind: KindSearch, Repo: "r", Question: "q", Timestamp: day})
	}
	events[len(events)-1].Question = "newest"

	// When: saving them
	require.NoError(t, s.SaveEvents(events))
	got, err := s.ZeroResultQuestions(1000)
	require.NoError(t, err)

	// Then: only the newest rows remain, newest first
	assert.Len(t, got, maxZeroResultRows)
	assert.Equal(t, "newest", got[0])
}

func TestSQLiteStore_SaveEventsEmpty(t *testing.T) {
	s := setupTestStore(t)
	assert.NoError(t, s.SaveEvents(nil))
}

func TestOpen_CreatesDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "telemetry.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveEvents([]TurnEvent{{Kind: KindSearch, Repo: "r", Question: "q", Results: 1, Timestamp: day}}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	sum, err := s.Summarize("2026-03-14", "2026-03-14", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.TotalTurns)
}

func TestLastDays(t *testing.T) {
	from, to := LastDays(day, 7)
	assert.Equal(t, "2026-03-08", from)
	assert.Equal(t, "2026-03-14", to)

	from, to = LastDays(day, 0)
	assert.Equal(t, from, to)
}
