package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-pipeline-harness/internal/stats"
)

// =============================================================================
// Messages
// =============================================================================

// TickMsg is sent periodically to update the display.
type TickMsg time.Time

// ScenarioStartedMsg marks a scenario as running.
type ScenarioStartedMsg struct {
	Name string
	At   time.Time
}

// ScenarioFinishedMsg carries a scenario's verdict ("passed", "failed",
// "skipped").
type ScenarioFinishedMsg struct {
	Name    string
	Outcome string
	Reason  string
	Elapsed time.Duration
}

// PipelineStartedMsg announces a pipeline process about to be launched.
type PipelineStartedMsg struct {
	Scenario string
	Pipeline string
	Planned  time.Duration
	At       time.Time
}

// ChildStateMsg carries a pipeline process state change.
type ChildStateMsg struct {
	Pipeline string
	State    string
}

// FPSMsg carries one live FPS reading.
type FPSMsg struct {
	Pipeline string
	FPS      float64
}

// DoneMsg signals that every scenario has finished. The TUI exits.
type DoneMsg struct{}

// QuitMsg signals the TUI should exit without the run being finished.
type QuitMsg struct{}

// =============================================================================
// Model
// =============================================================================

type scenarioStatus int

const (
	statusPending scenarioStatus = iota
	statusRunning
	statusPassed
	statusFailed
	statusSkipped
)

func (s scenarioStatus) String() string {
	switch s {
	case statusPending:
		return "pending"
	case statusRunning:
		return "running"
	case statusPassed:
		return "passed"
	case statusFailed:
		return "failed"
	case statusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

func parseOutcome(outcome string) scenarioStatus {
	switch outcome {
	case "passed":
		return statusPassed
	case "skipped":
		return statusSkipped
	default:
		return statusFailed
	}
}

type scenarioRow struct {
	name      string
	status    scenarioStatus
	reason    string
	startedAt time.Time
	elapsed   time.Duration
}

// stateReaped mirrors harness.StateReaped.String().
const stateReaped = "reaped"

type pipelineRow struct {
	scenario  string
	name      string
	state     string
	planned   time.Duration
	startedAt time.Time
	fps       *stats.FPSTracker
}

// Model represents the TUI state.
type Model struct {
	// Configuration
	runID       string
	version     string
	minFPS      float64
	metricsAddr string

	scenarios []scenarioRow
	pipelines []*pipelineRow // launch order; last is current

	startTime    time.Time
	lastUpdate   time.Time
	detailedView bool

	// Display options
	width  int
	height int

	done     bool
	quitting bool
}

// Config holds TUI configuration.
type Config struct {
	RunID       string
	Version     string
	Scenarios   []string // planned, in run order
	MinFPS      float64
	MetricsAddr string
}

// New creates a new TUI model.
func New(cfg Config) Model {
	rows := make([]scenarioRow, len(cfg.Scenarios))
	for i, name := range cfg.Scenarios {
		rows[i] = scenarioRow{name: name}
	}
	return Model{
		runID:       cfg.RunID,
		version:     cfg.Version,
		minFPS:      cfg.MinFPS,
		metricsAddr: cfg.MetricsAddr,
		scenarios:   rows,
		startTime:   time.Now(),
		lastUpdate:  time.Now(),
		width:       80,
		height:      24,
	}
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "d":
			m.detailedView = !m.detailedView
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		m.lastUpdate = time.Time(msg)
		return m, tickCmd()

	case ScenarioStartedMsg:
		row := m.scenario(msg.Name)
		row.status = statusRunning
		row.startedAt = msg.At
		return m, nil

	case ScenarioFinishedMsg:
		row := m.scenario(msg.Name)
		row.status = parseOutcome(msg.Outcome)
		row.reason = msg.Reason
		row.elapsed = msg.Elapsed
		return m, nil

	case PipelineStartedMsg:
		m.pipelines = append(m.pipelines, &pipelineRow{
			scenario:  msg.Scenario,
			name:      msg.Pipeline,
			state:     "starting",
			planned:   msg.Planned,
			startedAt: msg.At,
			fps:       stats.NewFPSTracker(),
		})
		return m, nil

	case ChildStateMsg:
		if p := m.current(msg.Pipeline); p != nil {
			p.state = msg.State
		}
		return m, nil

	case FPSMsg:
		if p := m.current(msg.Pipeline); p != nil {
			p.fps.Add(msg.FPS)
		}
		return m, nil

	case DoneMsg:
		m.done = true
		return m, tea.Quit

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting || m.done {
		return ""
	}
	return m.renderDashboard()
}

// scenario returns the row for name, appending one for unplanned scenarios.
// The pointer is valid until the next append.
func (m *Model) scenario(name string) *scenarioRow {
	for i := range m.scenarios {
		if m.scenarios[i].name == name {
			return &m.scenarios[i]
		}
	}
	m.scenarios = append(m.scenarios, scenarioRow{name: name})
	return &m.scenarios[len(m.scenarios)-1]
}

// current returns the most recent launch of pipeline, or nil.
func (m Model) current(pipeline string) *pipelineRow {
	for i := len(m.pipelines) - 1; i >= 0; i-- {
		if m.pipelines[i].name == pipeline {
			return m.pipelines[i]
		}
	}
	return nil
}

// =============================================================================
// Commands
// =============================================================================

// tickCmd returns a command that sends a tick after 500ms.
func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// =============================================================================
// Accessors
// =============================================================================

// Elapsed returns the time since the run started.
func (m Model) Elapsed() time.Duration {
	return time.Since(m.startTime)
}

// Done reports whether the run finished while the TUI was up.
func (m Model) Done() bool {
	return m.done
}

// UserQuit reports whether the user asked to leave before the run finished.
func (m Model) UserQuit() bool {
	return m.quitting && !m.done
}

// Finished returns how many scenarios have a verdict.
func (m Model) Finished() int {
	n := 0
	for _, s := range m.scenarios {
		if s.status >= statusPassed {
			n++
		}
	}
	return n
}

// Failed returns how many scenarios failed.
func (m Model) Failed() int {
	n := 0
	for _, s := range m.scenarios {
		if s.status == statusFailed {
			n++
		}
	}
	return n
}

// Progress returns the finished fraction of planned scenarios, 0..1.
func (m Model) Progress() float64 {
	if len(m.scenarios) == 0 {
		return 0
	}
	return float64(m.Finished()) / float64(len(m.scenarios))
}

// =============================================================================
// Formatting Helpers
// =============================================================================

// formatDuration formats a duration as HH:MM:SS.
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// formatFPS formats a frame rate, or "-" when there is none yet.
func formatFPS(fps float64, ok bool) string {
	if !ok {
		return "-"
	}
	return fmt.Sprintf("%.1f", fps)
}

// shortID returns the first segment of a UUID.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
