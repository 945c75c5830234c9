package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteIndex is a LexicalIndex over SQLite FTS5. Text is analyzed in Go
// with Analyze before insertion, so FTS5 only splits on whitespace.
type SQLiteIndex struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

// OpenSQLiteIndex opens or creates the FTS5 database at path. An empty path
// gives an in-memory database.
func OpenSQLiteIndex(path string) (*SQLiteIndex, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create index directory: %w", err)
		}
		if verr := checkSQLiteIntegrity(path); verr != nil {
			slog.Warn("lexical_index_corrupted", slog.String("path", path), slog.String("error", verr.Error()))
			_ = os.Remove(path)
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	_, err = db.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS lexical USING fts5(
			position UNINDEXED,
			terms,
			tokenize='unicode61'
		);
	`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create fts table: %w", err)
	}
	return &SQLiteIndex{db: db}, nil
}

func checkSQLiteIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return err
	}
	defer db.Close()
	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return err
	}
	if result != "ok" {
		return fmt.Errorf("integrity check: %s", result)
	}
	return nil
}

func (s *SQLiteIndex) Index(ctx context.Context, docs []LexicalDoc) error {
	if len(docs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("index is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	del, err := tx.PrepareContext(ctx, `DELETE FROM lexical WHERE position = ?`)
	if err != nil {
		return fmt.Errorf("prepare delete: %w", err)
	}
	defer del.Close()
	ins, err := tx.PrepareContext(ctx, `INSERT INTO lexical(position, terms) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer ins.Close()

	for _, d := range docs {
		if _, err := del.ExecContext(ctx, d.Position); err != nil {
			return fmt.Errorf("replace position %d: %w", d.Position, err)
		}
		if _, err := ins.ExecContext(ctx, d.Position, strings.Join(Analyze(d.Text), " ")); err != nil {
			return fmt.Errorf("index position %d: %w", d.Position, err)
		}
	}
	return tx.Commit()
}

// Search ORs the analyzed query terms and ranks by bm25(), negated so
// higher is better.
func (s *SQLiteIndex) Search(ctx context.Context, query string, k int) ([]LexicalHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("index is closed")
	}

	terms := Analyze(query)
	if len(terms) == 0 || k <= 0 {
		return []LexicalHit{}, nil
	}
	quoted := make([]string, 0, len(terms))
	seen := make(map[string]bool, len(terms))
	for _, t := range terms {
		if seen[t] {
			continue
		}
		seen[t] = true
		quoted = append(quoted, `"`+strings.ReplaceAll(t, `"`, `""`)+`"`)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT position, bm25(lexical) AS score
		FROM lexical
		WHERE lexical MATCH ?
		ORDER BY score
		LIMIT ?
	`, strings.Join(quoted, " OR "), k)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	defer rows.Close()

	var hits []LexicalHit
	for rows.Next() {
		var pos int
		var score float64
		if err := rows.Scan(&pos, &score); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		hits = append(hits, LexicalHit{Position: pos, Score: -score})
	}
	if hits == nil {
		hits = []LexicalHit{}
	}
	return hits, rows.Err()
}

func (s *SQLiteIndex) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0
	}
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM lexical`).Scan(&n); err != nil {
		return 0
	}
	return n
}

func (s *SQLiteIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

var _ LexicalIndex = (*SQLiteIndex)(nil)
