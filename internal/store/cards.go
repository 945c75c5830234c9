package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Card is a short natural-language summary of one snippet. Cards feed a
// second, coarser lexical index whose hits earn a bonus in reranking.
type Card struct {
	ID       string   `json:"id"`
	FilePath string   `json:"file_path"`
	Symbols  []string `json:"symbols"`
	Purpose  string   `json:"purpose"`
	Routes   []string `json:"routes"`
}

// Text is the indexed form of the card.
func (c Card) Text() string {
	parts := []string{strings.Join(c.Symbols, " "), c.Purpose, strings.Join(c.Routes, " "), c.FilePath}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// LoadCards reads cards.jsonl. A missing file yields no cards.
func LoadCards(path string) ([]Card, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cards []Card
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var c Card
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		cards = append(cards, c)
	}
	return cards, sc.Err()
}

// WriteCards writes cards as JSON lines to path atomically.
func WriteCards(path string, cards []Card) error {
	return writeAtomic(path, func(f *os.File) error {
		w := bufio.NewWriter(f)
		enc := json.NewEncoder(w)
		for _, c := range cards {
			if err := enc.Encode(c); err != nil {
				return err
			}
		}
		return w.Flush()
	})
}
