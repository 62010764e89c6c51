package ui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/scrobblex/internal/tasks"
)

const (
	historySize = 4
	barWidth    = 40
)

// Work is the operation shown by a [ProgressModel]. It must return once ctx is cancelled.
type Work func(ctx context.Context, progress chan<- tasks.ProgressUpdate) error

type updateMsg tasks.ProgressUpdate

type doneMsg struct {
	err error
}

type keyMap struct {
	quit key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "stop"),
		),
	}
}

func (k keyMap) ShortHelp() []key.Binding  { return []key.Binding{k.quit} }
func (k keyMap) FullHelp() [][]key.Binding { return [][]key.Binding{{k.quit}} }

// ProgressModel shows the progress of one [Work] until it returns.
type ProgressModel struct {
	ctx    context.Context
	cancel context.CancelFunc
	title  string
	work   Work

	updates chan tasks.ProgressUpdate
	once    sync.Once
	started bool
	workErr error // written before updates is closed

	spinner spinner.Model
	bar     progress.Model
	help    help.Model
	keys    keyMap

	current  tasks.ProgressUpdate
	history  []string
	stopping bool
	finished bool
	err      error
}

// NewProgressModel creates the view for work. The work starts with the program.
func NewProgressModel(ctx context.Context, title string, work Work) *ProgressModel {
	ctx, cancel := context.WithCancel(ctx)

	return &ProgressModel{
		ctx:     ctx,
		cancel:  cancel,
		title:   title,
		work:    work,
		updates: make(chan tasks.ProgressUpdate, 50),
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(styles.accent)),
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(barWidth)),
		help:    help.New(),
		keys:    newKeyMap(),
	}
}

// Init starts the work and the spinner.
func (m *ProgressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.start())
}

func (m *ProgressModel) start() tea.Cmd {
	m.once.Do(func() {
		m.started = true
		go func() {
			m.workErr = m.work(m.ctx, m.updates)
			close(m.updates)
		}()
	})
	return m.waitForProgress()
}

func (m *ProgressModel) waitForProgress() tea.Cmd {
	return func() tea.Msg {
		update, ok := <-m.updates
		if !ok {
			return doneMsg{err: m.workErr}
		}
		return updateMsg(update)
	}
}

// Update handles incoming messages and updates the model state.
func (m *ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, m.keys.quit) && !m.stopping {
			m.stopping = true
			m.cancel()
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.bar.Width = min(barWidth, max(msg.Width-4, 10))
		return m, nil

	case updateMsg:
		update := tasks.ProgressUpdate(msg)
		phaseChanged := update.Phase != m.current.Phase || len(m.history) == 0
		m.current = update
		if phaseChanged || update.Step == update.Total {
			m.remember(update.Message)
		}

		cmds := []tea.Cmd{m.waitForProgress()}
		if update.Total > 0 {
			cmds = append(cmds, m.bar.SetPercent(float64(update.Step)/float64(update.Total)))
		}
		return m, tea.Batch(cmds...)

	case doneMsg:
		m.finished = true
		m.err = msg.err
		m.cancel()
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		bar, cmd := m.bar.Update(msg)
		if b, ok := bar.(progress.Model); ok {
			m.bar = b
		}
		return m, cmd
	}

	return m, nil
}

func (m *ProgressModel) remember(line string) {
	if line == "" {
		return
	}
	m.history = append(m.history, line)
	if len(m.history) > historySize {
		m.history = m.history[len(m.history)-historySize:]
	}
}

// View renders the title, the current phase, the bar and the latest phase messages.
// A finished model renders nothing so the caller's summary follows directly.
func (m *ProgressModel) View() string {
	if m.finished {
		return ""
	}

	var b strings.Builder
	b.WriteString(styles.title.Render(m.title))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s %s\n", m.spinner.View(), phaseLabel(m.current))

	if isDelivery(m.current.Phase) && m.current.Total > 0 {
		b.WriteString(m.bar.View())
		b.WriteString("\n")
	}

	for _, line := range m.history {
		b.WriteString(styles.muted.Render("  " + line))
		b.WriteString("\n")
	}

	if m.stopping {
		b.WriteString(styles.warn.Render("Stopping, committing delivered events..."))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

// Err returns the error the work returned once the model has finished.
func (m *ProgressModel) Err() error { return m.err }

// Stopped reports whether the user asked to stop the work.
func (m *ProgressModel) Stopped() bool { return m.stopping }

func isDelivery(p tasks.Phase) bool {
	switch p {
	case tasks.DeliverReads, tasks.DeliverRatings, tasks.DeliverReviews, tasks.DeliverWantToRead, tasks.Backfill:
		return true
	default:
		return false
	}
}

func phaseLabel(u tasks.ProgressUpdate) string {
	switch u.Phase {
	case tasks.Assemble:
		return "Assembling pending events"
	case tasks.Prefetch:
		return "Resolving user quotas"
	case tasks.DeliverReads:
		return fmt.Sprintf("Delivering reads (%d/%d)", u.Step, u.Total)
	case tasks.DeliverRatings:
		return fmt.Sprintf("Delivering ratings (%d/%d)", u.Step, u.Total)
	case tasks.DeliverReviews:
		return fmt.Sprintf("Delivering reviews (%d/%d)", u.Step, u.Total)
	case tasks.DeliverWantToRead:
		return fmt.Sprintf("Delivering want-to-read changes (%d/%d)", u.Step, u.Total)
	case tasks.Commit:
		return "Committing progress"
	case tasks.Cleanup:
		return "Cleaning up"
	case tasks.Backfill:
		return fmt.Sprintf("Backfilling users (%d/%d)", u.Step, u.Total)
	default:
		return "Working..."
	}
}

// Run shows the progress view on w until work returns and returns the work's error.
//
// When the terminal program itself fails the work is cancelled and awaited before the program error is returned.
func Run(ctx context.Context, w io.Writer, title string, work Work) error {
	m := NewProgressModel(ctx, title, work)
	defer m.cancel()

	p := tea.NewProgram(m, tea.WithOutput(w), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		m.cancel()
		if m.started && !m.finished {
			for range m.updates {
			}
			if m.workErr != nil {
				return m.workErr
			}
		}
		return fmt.Errorf("progress view failed: %w", err)
	}

	return m.err
}
