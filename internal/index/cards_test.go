package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/coderag/internal/store"
)

type replyGenerator struct {
	reply   string
	prompts []string
}

func (g *replyGenerator) Generate(_ context.Context, _, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	return g.reply, nil
}
func (g *replyGenerator) Model() string { return "qwen" }
func (g *replyGenerator) Close() error  { return nil }

func TestDocSentence(t *testing.T) {
	tests := []struct {
		name string
		code string
		want string
	}{
		{"python docstring", "def send_fax(to):\n    \"\"\"Queue an outbound fax job.\"\"\"\n", "Queue an outbound fax job"},
		{"multiline docstring", "def f():\n    \"\"\"\n    Store inbound faxes. Then notify.\n    \"\"\"\n", "Store inbound faxes"},
		{"line comment", "// Send delivers a fax. It retries.\nfunc Send() {}", "Send delivers a fax"},
		{"shebang skipped", "#!/usr/bin/env python\n# Tool entry point\n", "Tool entry point"},
		{"block comment", "/**\n * Renders the theme picker.\n */", "Renders the theme picker"},
		{"no comment", "x = 1\n", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, docSentence(tt.code))
		})
	}
}

func TestFirstSentence_Truncates(t *testing.T) {
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'a'
	}
	assert.Len(t, firstSentence(string(long)), 160)
}

func TestExtractRoutes_Deduplicates(t *testing.T) {
	code := "@app.get(\"/faxes\")\ndef list(): ...\n@app.get(\"/faxes\")\nrouter.post('/send', h)\nmux.HandleFunc(\"/health\", h)\n"
	assert.Equal(t, []string{"/faxes", "/send", "/health"}, extractRoutes(code))
	assert.Empty(t, extractRoutes("print('no routes')"))
}

func TestPatternCards_Card(t *testing.T) {
	// Given: one snippet with a docstring and one without
	gen := NewPatternCards()
	snips := testSnippets()

	// When
	withDoc, err := gen.Card(context.Background(), snips[0])
	require.NoError(t, err)
	withoutDoc, err := gen.Card(context.Background(), snips[1])
	require.NoError(t, err)

	// Then
	assert.Equal(t, "s1", withDoc.ID)
	assert.Equal(t, "api/app/outbound.py", withDoc.FilePath)
	assert.Equal(t, []string{"send_fax"}, withDoc.Symbols)
	assert.Equal(t, "Queue an outbound fax job", withDoc.Purpose)
	assert.Equal(t, "frontend Theme in web/src", withoutDoc.Purpose)
	assert.Equal(t, "pattern", gen.Name())
}

func TestDescribe_FallsBackToLanguageAndPath(t *testing.T) {
	assert.Equal(t, "go in cmd/main.go", describe(store.Snippet{FilePath: "cmd/main.go", Language: "go"}))
	assert.Equal(t, "code in README", describe(store.Snippet{FilePath: "README"}))
}

func TestParseCard(t *testing.T) {
	card, err := parseCard("Here you go:\n```json\n{\"symbols\":[\"send_fax\"],\"purpose\":\"Queue a fax\",\"routes\":[\"/send\"]}\n```")
	require.NoError(t, err)
	assert.Equal(t, []string{"send_fax"}, card.Symbols)
	assert.Equal(t, "Queue a fax", card.Purpose)
	assert.Equal(t, []string{"/send"}, card.Routes)

	_, err = parseCard("I cannot help with that")
	assert.Error(t, err)

	_, err = parseCard("{not json}")
	assert.Error(t, err)
}

func TestLLMCards_SetsIdentityAndTruncatesCode(t *testing.T) {
	// Given
	gen := &replyGenerator{reply: `{"symbols":["x"],"purpose":"does x","routes":[]}`}
	cards := NewLLMCards(gen)
	s := store.Snippet{ID: "big", FilePath: "x.py", Code: string(make([]byte, cardCodeChars*3))}

	// When
	card, err := cards.Card(context.Background(), s)

	// Then
	require.NoError(t, err)
	assert.Equal(t, "big", card.ID)
	assert.Equal(t, "x.py", card.FilePath)
	assert.Equal(t, "does x", card.Purpose)
	require.Len(t, gen.prompts, 1)
	assert.Len(t, gen.prompts[0], len(cardPrompt)+cardCodeChars)
	assert.Equal(t, "llm:qwen", cards.Name())
}

func TestHybridCards_FallsBackToPattern(t *testing.T) {
	gen := NewHybridCards(failingCards{})

	card, err := gen.Card(context.Background(), testSnippets()[0])

	require.NoError(t, err)
	assert.Equal(t, "Queue an outbound fax job", card.Purpose)
	assert.Equal(t, "llm:offline+pattern", gen.Name())
	assert.Equal(t, "pattern", NewHybridCards(nil).Name())
}

func TestHybridCards_CanceledContextIsNotMasked(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewHybridCards(failingCards{}).Card(ctx, testSnippets()[0])

	assert.ErrorIs(t, err, context.Canceled)
}

func TestFillCards_KeepsExistingAndHonorsLimit(t *testing.T) {
	// Given: s1 already has a card, two snippets lack one, limit 1
	snips := append(testSnippets(), store.Snippet{ID: "s3", FilePath: "c.go", Language: "go"})
	existing := []store.Card{{ID: "s1", Purpose: "hand written"}}
	var progress [][2]int

	// When
	cards, err := FillCards(context.Background(), NewPatternCards(), snips, existing, 1, func(done, total int) {
		progress = append(progress, [2]int{done, total})
	})

	// Then
	require.NoError(t, err)
	require.Len(t, cards, 2)
	assert.Equal(t, "hand written", cards[0].Purpose)
	assert.Equal(t, "s2", cards[1].ID)
	assert.Equal(t, [][2]int{{1, 1}}, progress)
}

func TestFillCards_GeneratorErrorNamesSnippet(t *testing.T) {
	_, err := FillCards(context.Background(), failingCards{}, testSnippets(), nil, 0, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "card for s1")
}
