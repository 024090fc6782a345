package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/storesync/internal/formatter"
	"github.com/desertthunder/storesync/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	ConfirmView ViewState = iota
	RunView
	ResultView
)

// Model represents the TUI application state.
type Model struct {
	ctx    context.Context
	view   ViewState
	engine *tasks.MigrationEngine
	job    tasks.Job

	width  int
	height int

	spinner  spinner.Model
	progress progress.Model
	help     help.Model
	keys     keyMap

	progressChan chan tasks.ProgressUpdate
	update       tasks.ProgressUpdate
	entityLines  []string
	stats        *tasks.JobStats
	err          error
}

type progressUpdateMsg tasks.ProgressUpdate

type progressClosedMsg struct{}

type runCompleteMsg struct {
	stats *tasks.JobStats
	err   error
}

// NewModel creates a new TUI model with the provided dependencies.
func NewModel(ctx context.Context, engine *tasks.MigrationEngine, job tasks.Job) *Model {
	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	return &Model{
		ctx:          ctx,
		view:         ConfirmView,
		engine:       engine,
		job:          job,
		spinner:      sp,
		progress:     progress.New(progress.WithDefaultGradient()),
		help:         help.New(),
		keys:         newKeyMap(),
		progressChan: make(chan tasks.ProgressUpdate, 100),
	}
}

// Init starts the spinner; the run itself waits for confirmation.
func (m *Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = msg.Width - 8
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case ConfirmView:
			switch {
			case key.Matches(msg, m.keys.yes):
				m.view = RunView
				return m, tea.Batch(m.startRun(), m.waitForProgress())
			case key.Matches(msg, m.keys.no), key.Matches(msg, m.keys.quit):
				return m, tea.Quit
			}
		case RunView:
			if key.Matches(msg, m.keys.quit) {
				// The engine has no mid-run abort; quitting kills the process.
				return m, tea.Quit
			}
		case ResultView:
			if key.Matches(msg, m.keys.quit) {
				return m, tea.Quit
			}
		}
		return m, nil

	case progressUpdateMsg:
		m.update = tasks.ProgressUpdate(msg)
		if m.update.Phase == tasks.EntityCompleted {
			m.entityLines = append(m.entityLines, m.update.Message)
		}
		return m, m.waitForProgress()

	case progressClosedMsg:
		return m, nil

	case runCompleteMsg:
		m.stats = msg.stats
		m.err = msg.err
		m.view = ResultView
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the current view state.
func (m *Model) View() string {
	switch m.view {
	case ConfirmView:
		return m.viewConfirm()
	case RunView:
		return m.viewRun()
	case ResultView:
		return m.viewResult()
	}
	return ""
}

func (m *Model) viewConfirm() string {
	var b strings.Builder
	b.WriteString(styles.title.Render("storesync") + "\n")
	b.WriteString("Start migration with:\n")
	b.WriteString(fmt.Sprintf("  dry run: %v\n", m.job.DryRun))
	b.WriteString(fmt.Sprintf("  quick:   %v\n", m.job.Quick))
	b.WriteString(fmt.Sprintf("  storage: skip=%v only=%v\n\n", m.job.SkipStorage, m.job.StorageOnly))
	b.WriteString(styles.help.Render("y to start, n to cancel") + "\n")
	return b.String()
}

func (m *Model) viewRun() string {
	var b strings.Builder
	b.WriteString(styles.title.Render("Migrating...") + "\n")

	for _, line := range m.entityLines {
		b.WriteString(styles.ok.Render("✓") + " " + line + "\n")
	}

	if m.update.Message != "" {
		b.WriteString(m.spinner.View() + " " + m.update.Message + "\n")
	}
	if m.update.Total > 0 {
		b.WriteString(m.progress.ViewAs(float64(m.update.Step)/float64(m.update.Total)) + "\n")
	}

	b.WriteString("\n" + m.help.View(m.keys))
	return b.String()
}

func (m *Model) viewResult() string {
	var b strings.Builder
	if m.err != nil {
		b.WriteString(styles.err.Render("Migration failed") + "\n")
		b.WriteString(m.err.Error() + "\n")
	} else {
		b.WriteString(styles.ok.Render("Migration complete") + "\n\n")
		b.WriteString(formatter.SummaryTable(m.stats) + "\n")
		b.WriteString(formatter.SummaryText(m.stats))
	}
	b.WriteString("\n" + styles.help.Render("q to quit") + "\n")
	return b.String()
}

// startRun launches the engine in the background and reports completion.
func (m *Model) startRun() tea.Cmd {
	return func() tea.Msg {
		stats, err := m.engine.Run(m.ctx, m.job, m.progressChan)
		close(m.progressChan)
		return runCompleteMsg{stats: stats, err: err}
	}
}

// waitForProgress forwards one engine progress update into the Elm loop.
func (m *Model) waitForProgress() tea.Cmd {
	return func() tea.Msg {
		update, ok := <-m.progressChan
		if !ok {
			return progressClosedMsg{}
		}
		return progressUpdateMsg(update)
	}
}
