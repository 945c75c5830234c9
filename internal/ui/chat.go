package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Aman-CERP/coderag/internal/answer"
)

// Asker answers one question against one repo.
type Asker interface {
	Run(ctx context.Context, question, repo string) (answer.Turn, error)
}

// Command is a chat slash command.
type Command int

const (
	CmdAsk Command = iota
	CmdRepo
	CmdSave
	CmdClear
	CmdHelp
	CmdExit
	CmdUnknown
	CmdEmpty
)

// parseCommand classifies a line of chat input.
func parseCommand(line string) (Command, string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return CmdEmpty, ""
	}
	if !strings.HasPrefix(line, "/") {
		return CmdAsk, line
	}
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch strings.ToLower(name) {
	case "/repo":
		return CmdRepo, arg
	case "/save":
		return CmdSave, arg
	case "/clear":
		return CmdClear, ""
	case "/help":
		return CmdHelp, ""
	case "/exit", "/quit":
		return CmdExit, ""
	default:
		return CmdUnknown, name
	}
}

// Exchange is one question and its answer in a chat session.
type Exchange struct {
	Question string
	Turn     answer.Turn
	Err      error
}

// Reply is what a chat session returns for one line of input.
type Reply struct {
	Text string
	Turn *answer.Turn
	Err  error
	Quit bool
}

// ChatSession holds the state shared by the terminal and line-mode chats.
type ChatSession struct {
	asker   Asker
	repos   []string
	repo    string
	saveDir string
	history []Exchange
	now     func() time.Time
}

// NewChatSession starts a session on repo. An empty repos list allows any
// repo name.
func NewChatSession(asker Asker, repos []string, repo, saveDir string) *ChatSession {
	return &ChatSession{asker: asker, repos: repos, repo: repo, saveDir: saveDir, now: time.Now}
}

// Repo is the active repository.
func (s *ChatSession) Repo() string { return s.repo }

// History returns the exchanges since the last clear.
func (s *ChatSession) History() []Exchange { return s.history }

// IsAsk reports whether line would be sent to the answering loop.
func IsAsk(line string) bool {
	cmd, _ := parseCommand(line)
	return cmd == CmdAsk
}

// Handle processes one line of input.
func (s *ChatSession) Handle(ctx context.Context, line string) Reply {
	cmd, arg := parseCommand(line)
	switch cmd {
	case CmdEmpty:
		return Reply{}
	case CmdExit:
		return Reply{Text: "Goodbye.", Quit: true}
	case CmdHelp:
		return Reply{Text: s.helpText()}
	case CmdClear:
		s.history = nil
		return Reply{Text: "Conversation cleared."}
	case CmdRepo:
		if arg == "" || (len(s.repos) > 0 && !slices.Contains(s.repos, arg)) {
			return Reply{Err: fmt.Errorf("usage: /repo <one of: %s>", strings.Join(s.repos, ", "))}
		}
		s.repo = arg
		return Reply{Text: "Switched to repo: " + arg}
	case CmdSave:
		path, err := s.save(arg)
		if err != nil {
			return Reply{Err: err}
		}
		return Reply{Text: "Saved conversation to " + path}
	case CmdUnknown:
		return Reply{Err: fmt.Errorf("unknown command %s; type /help for commands", arg)}
	}

	turn, err := s.asker.Run(ctx, arg, s.repo)
	s.history = append(s.history, Exchange{Question: arg, Turn: turn, Err: err})
	if err != nil {
		return Reply{Err: err}
	}
	return Reply{Turn: &turn}
}

func (s *ChatSession) helpText() string {
	repos := "any"
	if len(s.repos) > 0 {
		repos = strings.Join(s.repos, ", ")
	}
	return strings.Join([]string{
		"Commands:",
		"  /repo <name>   switch repository (" + repos + ")",
		"  /save [path]   save the conversation as markdown",
		"  /clear         clear conversation history",
		"  /help          show this help",
		"  /exit, /quit   leave the chat",
	}, "\n")
}

// save writes the history as markdown and returns the path written.
func (s *ChatSession) save(path string) (string, error) {
	if len(s.history) == 0 {
		return "", fmt.Errorf("nothing to save")
	}
	if path == "" {
		path = filepath.Join(s.saveDir, "chat-"+s.now().Format("20060102-150405")+".md")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", err
		}
	}

	var b strings.Builder
	for _, ex := range s.history {
		fmt.Fprintf(&b, "## %s\n\n", ex.Question)
		if ex.Err != nil {
			fmt.Fprintf(&b, "_error: %v_\n\n", ex.Err)
			continue
		}
		fmt.Fprintf(&b, "%s\n\n", ex.Turn.Answer)
		for _, c := range ex.Turn.Citations {
			fmt.Fprintf(&b, "- `%s`\n", c)
		}
		fmt.Fprintf(&b, "\n_repo %s, confidence %.2f_\n\n", ex.Turn.Repo, ex.Turn.Confidence)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// FormatTurn renders an answer with its citations and confidence.
func FormatTurn(t answer.Turn, styles Styles) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(t.Answer))
	b.WriteString("\n")
	if len(t.Citations) > 0 {
		b.WriteString("\n" + styles.Label.Render("Sources:") + "\n")
		for _, c := range t.Citations {
			b.WriteString("  " + styles.Citation.Render(c) + "\n")
		}
	}
	meta := fmt.Sprintf("repo %s · confidence %.2f · %d iteration(s)", t.Repo, t.Confidence, t.Iterations)
	if t.Supplemented {
		meta += " · supplemented"
	}
	if t.Degraded {
		meta += " · degraded"
	}
	if t.Outcome != answer.OutcomeAnswered {
		meta += " · " + string(t.Outcome)
	}
	b.WriteString("\n" + styles.Dim.Render(meta) + "\n")
	return b.String()
}

// RunChat starts the terminal chat when in and out are terminals, otherwise
// a line-by-line chat.
func RunChat(ctx context.Context, s *ChatSession, in io.Reader, out io.Writer, noColor bool) error {
	if !IsInteractive(in, out) {
		return RunLineChat(ctx, s, in, out, noColor)
	}
	m := newChatModel(ctx, s, GetStyles(noColor))
	_, err := tea.NewProgram(m, tea.WithContext(ctx), tea.WithInput(in), tea.WithOutput(out), tea.WithAltScreen()).Run()
	return err
}

// RunLineChat reads questions from in until EOF or /exit.
func RunLineChat(ctx context.Context, s *ChatSession, in io.Reader, out io.Writer, noColor bool) error {
	styles := GetStyles(noColor)
	_, _ = fmt.Fprintf(out, "coderag chat (repo: %s). Type /help for commands.\n", s.Repo())

	sc := bufio.NewScanner(in)
	for {
		_, _ = fmt.Fprintf(out, "%s ", styles.Prompt.Render(s.Repo()+">"))
		if !sc.Scan() {
			_, _ = fmt.Fprintln(out)
			return sc.Err()
		}
		reply := s.Handle(ctx, sc.Text())
		switch {
		case reply.Err != nil:
			_, _ = fmt.Fprintln(out, styles.Error.Render("Error: "+reply.Err.Error()))
		case reply.Turn != nil:
			_, _ = fmt.Fprintln(out, FormatTurn(*reply.Turn, styles))
		case reply.Text != "":
			_, _ = fmt.Fprintln(out, reply.Text)
		}
		if reply.Quit {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

type replyMsg Reply

// chatModel is the bubbletea chat model.
type chatModel struct {
	ctx        context.Context
	session    *ChatSession
	styles     Styles
	input      textinput.Model
	viewport   viewport.Model
	spinner    spinner.Model
	transcript []string
	busy       bool
}

func newChatModel(ctx context.Context, s *ChatSession, styles Styles) *chatModel {
	ti := textinput.New()
	ti.Placeholder = "Ask about the code, or /help"
	ti.Prompt = "› "
	ti.CharLimit = 2000
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccent))

	return &chatModel{
		ctx:        ctx,
		session:    s,
		styles:     styles,
		input:      ti,
		spinner:    sp,
		viewport:   viewport.New(80, 20),
		transcript: []string{styles.Dim.Render("Type your question or /help for commands.")},
	}
}

// Init implements tea.Model.
func (m *chatModel) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m *chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width
		m.viewport.Height = max(3, msg.Height-4)
		m.input.Width = max(10, msg.Width-4)
		m.refresh()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit
		case tea.KeyEnter:
			if m.busy {
				return m, nil
			}
			line := strings.TrimSpace(m.input.Value())
			m.input.SetValue("")
			if line == "" {
				return m, nil
			}
			if !IsAsk(line) {
				reply := m.session.Handle(m.ctx, line)
				if reply.Quit {
					return m, tea.Quit
				}
				if cmd, _ := parseCommand(line); cmd == CmdClear {
					m.transcript = nil
				}
				m.appendReply(reply)
				return m, nil
			}
			m.busy = true
			m.transcript = append(m.transcript, m.styles.Question.Render("› "+line))
			m.refresh()
			return m, tea.Batch(m.spinner.Tick, m.ask(line))
		}

	case replyMsg:
		m.busy = false
		m.appendReply(Reply(msg))
		return m, nil

	case spinner.TickMsg:
		if m.busy {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *chatModel) ask(line string) tea.Cmd {
	return func() tea.Msg {
		return replyMsg(m.session.Handle(m.ctx, line))
	}
}

func (m *chatModel) appendReply(r Reply) {
	switch {
	case r.Err != nil:
		m.transcript = append(m.transcript, m.styles.Error.Render("Error: "+r.Err.Error()))
	case r.Turn != nil:
		m.transcript = append(m.transcript, FormatTurn(*r.Turn, m.styles))
	case r.Text != "":
		m.transcript = append(m.transcript, r.Text)
	}
	m.refresh()
}

func (m *chatModel) refresh() {
	m.viewport.SetContent(strings.Join(m.transcript, "\n\n"))
	m.viewport.GotoBottom()
}

// View implements tea.Model.
func (m *chatModel) View() string {
	header := m.styles.Header.Render("coderag") + m.styles.Dim.Render(" · repo "+m.session.Repo())
	status := ""
	if m.busy {
		status = m.spinner.View() + " thinking…"
	}
	return strings.Join([]string{header, m.viewport.View(), status, m.input.View()}, "\n")
}
