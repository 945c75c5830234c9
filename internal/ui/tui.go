package ui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TUIRenderer shows index progress with bubbletea.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	program *tea.Program
	model   *buildModel
	started bool
	done    chan struct{}
}

// NewTUIRenderer fails when the output is not a terminal.
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, fmt.Errorf("output is not a TTY")
	}
	return &TUIRenderer{
		cfg:   cfg,
		model: newBuildModel(cfg.Title, GetStyles(cfg.NoColor)),
		done:  make(chan struct{}),
	}, nil
}

// Start implements Renderer.
func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}

	var opts []tea.ProgramOption
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}
	opts = append(opts, tea.WithContext(ctx), tea.WithInput(nil))
	r.program = tea.NewProgram(r.model, opts...)
	r.started = true

	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()
	return nil
}

func (r *TUIRenderer) send(msg tea.Msg) {
	r.mu.Lock()
	p := r.program
	r.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

// UpdateProgress implements Renderer.
func (r *TUIRenderer) UpdateProgress(event ProgressEvent) { r.send(progressMsg(event)) }

// AddError implements Renderer.
func (r *TUIRenderer) AddError(event ErrorEvent) { r.send(errorMsg(event)) }

// Complete implements Renderer.
func (r *TUIRenderer) Complete(stats CompletionStats) { r.send(completeMsg(stats)) }

// Stop implements Renderer.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	p := r.program
	r.mu.Unlock()
	if p == nil {
		return nil
	}
	p.Quit()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
	}
	return nil
}

type progressMsg ProgressEvent
type errorMsg ErrorEvent
type completeMsg CompletionStats

// buildModel is the bubbletea model for index progress.
type buildModel struct {
	title    string
	styles   Styles
	spinner  spinner.Model
	bar      progress.Model
	event    ProgressEvent
	errors   int
	warnings int
	complete bool
	stats    CompletionStats
	started  time.Time
}

func newBuildModel(title string, styles Styles) *buildModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccent))
	return &buildModel{
		title:   title,
		styles:  styles,
		spinner: s,
		bar: progress.New(
			progress.WithSolidFill(ColorAccent),
			progress.WithWidth(40),
			progress.WithoutPercentage(),
		),
		started: time.Now(),
	}
}

// Init implements tea.Model.
func (m *buildModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m *buildModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.bar.Width = max(20, msg.Width-30)
	case progressMsg:
		m.event = ProgressEvent(msg)
	case errorMsg:
		if msg.IsWarn {
			m.warnings++
		} else {
			m.errors++
		}
	case completeMsg:
		m.complete = true
		m.stats = CompletionStats(msg)
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m *buildModel) View() string {
	if m.complete {
		return m.renderComplete()
	}

	var lines []string
	if m.title != "" {
		lines = append(lines, m.styles.Header.Render(m.title))
	}
	lines = append(lines, m.renderStages())

	e := m.event
	if e.Total > 0 {
		pct := float64(e.Current) / float64(e.Total)
		lines = append(lines, fmt.Sprintf("%s  %s", m.bar.ViewAs(pct),
			m.styles.Label.Render(fmt.Sprintf("%d / %d", e.Current, e.Total))))
	} else {
		lines = append(lines, fmt.Sprintf("%s %s", m.spinner.View(), e.Stage))
	}
	if e.Message != "" {
		lines = append(lines, m.styles.Dim.Render(e.Message))
	}
	if m.errors > 0 || m.warnings > 0 {
		lines = append(lines, m.styles.Warning.Render(fmt.Sprintf("%d errors, %d warnings", m.errors, m.warnings)))
	}
	return strings.Join(lines, "\n") + "\n"
}

func (m *buildModel) renderStages() string {
	var parts []string
	for _, s := range []Stage{StageLoad, StageSparse, StageCards, StageEmbed} {
		switch {
		case s < m.event.Stage:
			parts = append(parts, m.styles.Success.Render("● "+s.String()))
		case s == m.event.Stage:
			parts = append(parts, m.styles.Active.Render(m.spinner.View()+" "+s.String()))
		default:
			parts = append(parts, m.styles.Dim.Render("○ "+s.String()))
		}
	}
	return strings.Join(parts, m.styles.Dim.Render(" → "))
}

func (m *buildModel) renderComplete() string {
	st := m.stats
	lines := []string{
		m.styles.Success.Render("✓ Index built: " + st.Repo),
		fmt.Sprintf("%s %d", m.styles.Label.Render("Snippets:"), st.Snippets),
		fmt.Sprintf("%s %d", m.styles.Label.Render("Cards:   "), st.Cards),
		fmt.Sprintf("%s %d", m.styles.Label.Render("Vectors: "), st.Vectors),
		fmt.Sprintf("%s %s", m.styles.Label.Render("Duration:"), formatDuration(st.Duration)),
	}
	if st.Errors > 0 {
		lines = append(lines, m.styles.Error.Render(fmt.Sprintf("✗ %d errors", st.Errors)))
	}
	if st.Warnings > 0 {
		lines = append(lines, m.styles.Warning.Render(fmt.Sprintf("⚠ %d warnings", st.Warnings)))
	}
	return m.styles.Panel.Render(strings.Join(lines, "\n")) + "\n"
}

// formatDuration formats a duration in a human-friendly way.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		if s == 0 {
			return fmt.Sprintf("%dm", m)
		}
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

var _ Renderer = (*TUIRenderer)(nil)
var _ Renderer = (*PlainRenderer)(nil)
