package ui

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/coderag/internal/answer"
)

type fakeAsker struct {
	calls []string
	err   error
}

func (f *fakeAsker) Run(_ context.Context, question, repo string) (answer.Turn, error) {
	f.calls = append(f.calls, repo+":"+question)
	if f.err != nil {
		return answer.Turn{}, f.err
	}
	return answer.Turn{
		Question:   question,
		Repo:       repo,
		Answer:     "Webhooks are verified in api/app/phaxio.py.",
		Citations:  []string{"api/app/phaxio.py:10-40"},
		Confidence: 0.71,
		Iterations: 1,
		Outcome:    answer.OutcomeAnswered,
	}, nil
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line string
		cmd  Command
		arg  string
	}{
		{"", CmdEmpty, ""},
		{"   ", CmdEmpty, ""},
		{"how are faxes sent?", CmdAsk, "how are faxes sent?"},
		{"/repo vivified", CmdRepo, "vivified"},
		{"/REPO  faxbot ", CmdRepo, "faxbot"},
		{"/save out.md", CmdSave, "out.md"},
		{"/clear", CmdClear, ""},
		{"/help", CmdHelp, ""},
		{"/exit", CmdExit, ""},
		{"/quit", CmdExit, ""},
		{"/bogus arg", CmdUnknown, "/bogus"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			cmd, arg := parseCommand(tt.line)
			assert.Equal(t, tt.cmd, cmd)
			assert.Equal(t, tt.arg, arg)
		})
	}
}

func TestChatSession_RepoSwitchIsValidated(t *testing.T) {
	// Given
	asker := &fakeAsker{}
	s := NewChatSession(asker, []string{"faxbot", "vivified"}, "faxbot", t.TempDir())

	// When: switching to an unknown repo
	reply := s.Handle(context.Background(), "/repo nope")

	// Then
	require.Error(t, reply.Err)
	assert.Contains(t, reply.Err.Error(), "faxbot, vivified")
	assert.Equal(t, "faxbot", s.Repo())

	// When: switching to a configured repo and asking
	reply = s.Handle(context.Background(), "/repo vivified")
	require.NoError(t, reply.Err)
	reply = s.Handle(context.Background(), "where are webhooks verified?")

	// Then
	require.NotNil(t, reply.Turn)
	assert.Equal(t, []string{"vivified:where are webhooks verified?"}, asker.calls)
	assert.Len(t, s.History(), 1)
}

func TestChatSession_ClearHelpExitUnknown(t *testing.T) {
	// Given
	s := NewChatSession(&fakeAsker{}, nil, "faxbot", t.TempDir())
	s.Handle(context.Background(), "q1")
	require.Len(t, s.History(), 1)

	// When/Then
	assert.Equal(t, "Conversation cleared.", s.Handle(context.Background(), "/clear").Text)
	assert.Empty(t, s.History())
	assert.Contains(t, s.Handle(context.Background(), "/help").Text, "/repo <name>")
	assert.True(t, s.Handle(context.Background(), "/exit").Quit)
	assert.Error(t, s.Handle(context.Background(), "/nope").Err)
	assert.Equal(t, Reply{}, s.Handle(context.Background(), ""))
}

func TestChatSession_AskerErrorIsRecorded(t *testing.T) {
	// Given
	s := NewChatSession(&fakeAsker{err: errors.New("boom")}, nil, "faxbot", t.TempDir())

	// When
	reply := s.Handle(context.Background(), "why?")

	// Then
	require.Error(t, reply.Err)
	require.Len(t, s.History(), 1)
	assert.Error(t, s.History()[0].Err)
}

func TestChatSession_Save(t *testing.T) {
	// Given
	dir := t.TempDir()
	s := NewChatSession(&fakeAsker{}, nil, "faxbot", dir)
	s.now = func() time.Time { return time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC) }

	// When: nothing to save yet
	assert.Error(t, s.Handle(context.Background(), "/save").Err)

	// When
	s.Handle(context.Background(), "where are webhooks verified?")
	reply := s.Handle(context.Background(), "/save")

	// Then
	require.NoError(t, reply.Err)
	path := filepath.Join(dir, "chat-20260301-093000.md")
	assert.Contains(t, reply.Text, path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "## where are webhooks verified?")
	assert.Contains(t, string(data), "- `api/app/phaxio.py:10-40`")
}

func TestFormatTurn(t *testing.T) {
	// Given
	turn := answer.Turn{
		Repo: "faxbot", Answer: "It retries.\n", Citations: []string{"a.py:1-2"},
		Confidence: 0.2, Iterations: 3, Outcome: answer.OutcomeFallback, Supplemented: true,
	}

	// When
	out := FormatTurn(turn, NoColorStyles())

	// Then
	assert.True(t, strings.HasPrefix(out, "It retries.\n"))
	assert.Contains(t, out, "Sources:\n  a.py:1-2\n")
	assert.Contains(t, out, "confidence 0.20 · 3 iteration(s) · supplemented · fallback")
}

func TestRunLineChat(t *testing.T) {
	// Given
	asker := &fakeAsker{}
	s := NewChatSession(asker, []string{"faxbot"}, "faxbot", t.TempDir())
	in := strings.NewReader("where are webhooks verified?\n/help\n/exit\nnever asked\n")
	var out bytes.Buffer

	// When
	err := RunLineChat(context.Background(), s, in, &out, true)

	// Then
	require.NoError(t, err)
	assert.Len(t, asker.calls, 1)
	assert.Contains(t, out.String(), "api/app/phaxio.py:10-40")
	assert.Contains(t, out.String(), "Commands:")
	assert.Contains(t, out.String(), "Goodbye.")
}

func TestRunChat_FallsBackToLineModeWhenNotInteractive(t *testing.T) {
	// Given
	s := NewChatSession(&fakeAsker{}, nil, "faxbot", t.TempDir())
	var out bytes.Buffer

	// When: EOF ends the session
	err := RunChat(context.Background(), s, strings.NewReader("hello\n"), &out, true)

	// Then
	require.NoError(t, err)
	assert.Contains(t, out.String(), "coderag chat (repo: faxbot)")
}
