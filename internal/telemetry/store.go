package telemetry

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const (
	maxZeroResultRows = 100
	dateLayout        = "2006-01-02"
)

// SQLiteStore persists aggregated turn metrics.
type SQLiteStore struct {
	db     *sql.DB
	ownsDB bool
}

// Open opens (creating if needed) the telemetry database at path.
func Open(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create telemetry dir: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open telemetry db: %w", err)
	}
	db.SetMaxOpenConns(1)
	s, err := NewSQLiteStore(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

// NewSQLiteStore wraps an open database and creates the schema.
// The caller keeps ownership of db.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if err := InitSchema(db); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// InitSchema creates the telemetry tables if they don't exist.
func InitSchema(db *sql.DB) error {
	schema := `
	-- Turns per day by kind and outcome
	CREATE TABLE IF NOT EXISTS turn_stats (
		date TEXT NOT NULL,
		kind TEXT NOT NULL,
		outcome TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		degraded INTEGER NOT NULL DEFAULT 0,
		supplemented INTEGER NOT NULL DEFAULT 0,
		confidence_sum REAL NOT NULL DEFAULT 0,
		iteration_sum INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (date, kind, outcome)
	);

	CREATE TABLE IF NOT EXISTS repo_stats (
		date TEXT NOT NULL,
		repo TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (date, repo)
	);

	CREATE TABLE IF NOT EXISTS question_terms (
		term TEXT PRIMARY KEY,
		count INTEGER NOT NULL DEFAULT 1,
		last_seen TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_question_terms_count ON question_terms(count DESC);

	-- Most recent questions that retrieved nothing
	CREATE TABLE IF NOT EXISTS zero_result_questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		repo TEXT NOT NULL,
		question TEXT NOT NULL,
		timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS latency_stats (
		date TEXT NOT NULL,
		kind TEXT NOT NULL,
		bucket TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (date, kind, bucket)
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create telemetry schema: %w", err)
	}
	return nil
}

// SaveEvents folds events into the daily aggregates in one transaction.
func (s *SQLiteStore) SaveEvents(events []TurnEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, e := range events {
		date := e.Timestamp.UTC().Format(dateLayout)
		degraded, supplemented := boolInt(e.Degraded), boolInt(e.Supplemented)

		if _, err := tx.Exec(`
			INSERT INTO turn_stats (date, kind, outcome, count, degraded, supplemented, confidence_sum, iteration_sum)
			VALUES (?, ?, ?, 1, ?, ?, ?, ?)
			ON CONFLICT(date, kind, outcome) DO UPDATE SET
				count = count + 1,
				degraded = degraded + excluded.degraded,
				supplemented = supplemented + excluded.supplemented,
				confidence_sum = confidence_sum + excluded.confidence_sum,
				iteration_sum = iteration_sum + excluded.iteration_sum
		`, date, string(e.Kind), e.Outcome, degraded, supplemented, e.Confidence, e.Iterations); err != nil {
			return fmt.Errorf("upsert turn stats: %w", err)
		}

		if _, err := tx.Exec(`
			INSERT INTO repo_stats (date, repo, count) VALUES (?, ?, 1)
			ON CONFLICT(date, repo) DO UPDATE SET count = count + 1
		`, date, e.Repo); err != nil {
			return fmt.Errorf("upsert repo stats: %w", err)
		}

		if _, err := tx.Exec(`
			INSERT INTO latency_stats (date, kind, bucket, count) VALUES (?, ?, ?, 1)
			ON CONFLICT(date, kind, bucket) DO UPDATE SET count = count + 1
		`, date, string(e.Kind), string(LatencyToBucket(e.Latency))); err != nil {
			return fmt.Errorf("upsert latency stats: %w", err)
		}

		for _, term := range ExtractTerms(e.Question) {
			if _, err := tx.Exec(`
				INSERT INTO question_terms (term, count, last_seen) VALUES (?, 1, CURRENT_TIMESTAMP)
				ON CONFLICT(term) DO UPDATE SET count = count + 1, last_seen = CURRENT_TIMESTAMP
			`, term); err != nil {
				return fmt.Errorf("upsert term count: %w", err)
			}
		}

		if e.IsZeroResult() {
			if _, err := tx.Exec(`
				INSERT INTO zero_result_questions (repo, question, timestamp) VALUES (?, ?, ?)
			`, e.Repo, e.Question, e.Timestamp.UTC()); err != nil {
				return fmt.Errorf("insert zero-result question: %w", err)
			}
		}
	}

	if _, err := tx.Exec(`
		DELETE FROM zero_result_questions
		WHERE id NOT IN (
			SELECT id FROM zero_result_questions ORDER BY id DESC LIMIT ?
		)
	`, maxZeroResultRows); err != nil {
		return fmt.Errorf("trim zero-result questions: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Summary is the persisted aggregate over a date range.
type Summary struct {
	From              string                  `json:"from"`
	To                string                  `json:"to"`
	TotalTurns        int64                   `json:"total_turns"`
	KindCounts        map[TurnKind]int64      `json:"kind_counts"`
	OutcomeCounts     map[string]int64        `json:"outcome_counts"`
	RepoCounts        map[string]int64        `json:"repo_counts"`
	Latency           map[LatencyBucket]int64 `json:"latency"`
	DegradedCount     int64                   `json:"degraded_count"`
	SupplementedCount int64                   `json:"supplemented_count"`
	MeanConfidence    float64                 `json:"mean_confidence"`
	MeanIterations    float64                 `json:"mean_iterations"`
	TopTerms          []TermCount             `json:"top_terms"`
	ZeroResults       []string                `json:"zero_result_questions"`
}

// Summarize aggregates the inclusive date range [from, to] (YYYY-MM-DD).
func (s *SQLiteStore) Summarize(from, to string, topN int) (*Summary, error) {
	sum := &Summary{
		From:          from,
		To:            to,
		KindCounts:    make(map[TurnKind]int64),
		OutcomeCounts: make(map[string]int64),
		RepoCounts:    make(map[string]int64),
		Latency:       make(map[LatencyBucket]int64),
	}

	rows, err := s.db.Query(`
		SELECT kind, outcome, SUM(count), SUM(degraded), SUM(supplemented), SUM(confidence_sum), SUM(iteration_sum)
		FROM turn_stats
		WHERE date >= ? AND date <= ?
		GROUP BY kind, outcome
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query turn stats: %w", err)
	}
	var answerTurns int64
	var confSum float64
	var iterSum int64
	for rows.Next() {
		var kind, outcome string
		var count, degraded, supplemented, iterations int64
		var confidence float64
		if err := rows.Scan(&kind, &outcome, &count, &degraded, &supplemented, &confidence, &iterations); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan row: %w", err)
		}
		sum.TotalTurns += count
		sum.KindCounts[TurnKind(kind)] += count
		sum.OutcomeCounts[outcome] += count
		sum.DegradedCount += degraded
		sum.SupplementedCount += supplemented
		if TurnKind(kind) == KindAnswer {
			answerTurns += count
			confSum += confidence
			iterSum += iterations
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if answerTurns > 0 {
		sum.MeanConfidence = confSum / float64(answerTurns)
		sum.MeanIterations = float64(iterSum) / float64(answerTurns)
	}

	if err := s.scanCounts(`
		SELECT repo, SUM(count) FROM repo_stats
		WHERE date >= ? AND date <= ? GROUP BY repo
	`, from, to, func(k string, n int64) { sum.RepoCounts[k] = n }); err != nil {
		return nil, err
	}
	if err := s.scanCounts(`
		SELECT bucket, SUM(count) FROM latency_stats
		WHERE date >= ? AND date <= ? GROUP BY bucket
	`, from, to, func(k string, n int64) { sum.Latency[LatencyBucket(k)] = n }); err != nil {
		return nil, err
	}

	if sum.TopTerms, err = s.TopTerms(topN); err != nil {
		return nil, err
	}
	if sum.ZeroResults, err = s.ZeroResultQuestions(maxZeroResultRows); err != nil {
		return nil, err
	}
	return sum, nil
}

func (s *SQLiteStore) scanCounts(query, from, to string, fn func(string, int64)) error {
	rows, err := s.db.Query(query, from, to)
	if err != nil {
		return fmt.Errorf("query counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			return fmt.Errorf("scan row: %w", err)
		}
		fn(key, count)
	}
	return rows.Err()
}

// TopTerms returns the most frequent question terms.
func (s *SQLiteStore) TopTerms(limit int) ([]TermCount, error) {
	rows, err := s.db.Query(`
		SELECT term, count FROM question_terms
		ORDER BY count DESC, term ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query top terms: %w", err)
	}
	defer rows.Close()

	var terms []TermCount
	for rows.Next() {
		var tc TermCount
		if err := rows.Scan(&tc.Term, &tc.Count); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		terms = append(terms, tc)
	}
	return terms, rows.Err()
}

// ZeroResultQuestions returns recent questions that retrieved nothing,
// newest first.
func (s *SQLiteStore) ZeroResultQuestions(limit int) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT question FROM zero_result_questions
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query zero-result questions: %w", err)
	}
	defer rows.Close()

	var questions []string
	for rows.Next() {
		var q string
		if err := rows.Scan(&q); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// LastDays returns the inclusive date range covering the last n days.
func LastDays(now time.Time, n int) (from, to string) {
	if n < 1 {
		n = 1
	}
	now = now.UTC()
	return now.AddDate(0, 0, -(n - 1)).Format(dateLayout), now.Format(dateLayout)
}

// Close closes the database if Open created it.
func (s *SQLiteStore) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}
