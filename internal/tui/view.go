package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// =============================================================================
// Main View Rendering
// =============================================================================

// renderDashboard renders the full dashboard.
func (m Model) renderDashboard() string {
	sections := []string{
		m.renderHeader(),
		m.renderScenarios(),
	}

	if p := m.active(); p != nil {
		sections = append(sections, m.renderCurrentPipeline(p))
	}

	if m.detailedView && len(m.pipelines) > 0 {
		sections = append(sections, m.renderPipelineTable())
	}

	sections = append(sections, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// active returns the latest pipeline if it has not been reaped yet.
func (m Model) active() *pipelineRow {
	if len(m.pipelines) == 0 {
		return nil
	}
	p := m.pipelines[len(m.pipelines)-1]
	if p.state == stateReaped {
		return nil
	}
	return p
}

// =============================================================================
// Header
// =============================================================================

func (m Model) renderHeader() string {
	failed := ""
	if n := m.Failed(); n > 0 {
		failed = fmt.Sprintf(" (%d failed)", n)
	}

	header := fmt.Sprintf(
		" pipeline-harness %s │ run %s │ Scenarios: %d/%d%s │ Elapsed: %s ",
		m.version,
		shortID(m.runID),
		m.Finished(),
		len(m.scenarios),
		failed,
		formatDuration(m.Elapsed()),
	)

	return headerStyle.Width(m.width).Render(header)
}

// =============================================================================
// Scenario Progress
// =============================================================================

func (m Model) renderScenarios() string {
	barWidth := max(m.width-30, 20)

	rows := []string{
		sectionHeaderStyle.Render("Scenarios"),
		RenderProgressBar(m.Progress(), barWidth),
	}
	for _, s := range m.scenarios {
		rows = append(rows, m.renderScenarioRow(s))
	}

	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (m Model) renderScenarioRow(s scenarioRow) string {
	var detail string
	switch s.status {
	case statusRunning:
		detail = formatDuration(time.Since(s.startedAt))
	case statusPassed, statusFailed, statusSkipped:
		detail = formatDuration(s.elapsed)
		if s.reason != "" {
			detail += "  " + truncate(s.reason, max(m.width-50, 20))
		}
	}

	return lipgloss.JoinHorizontal(lipgloss.Left,
		statusIcon(s.status), " ",
		boldStyle.Width(18).Render(s.name),
		statusStyle(s.status).Width(9).Render(s.status.String()),
		mutedStyle.Render(detail),
	)
}

// =============================================================================
// Current Pipeline
// =============================================================================

func (m Model) renderCurrentPipeline(p *pipelineRow) string {
	elapsed := time.Since(p.startedAt)
	progress := 0.0
	if p.planned > 0 {
		progress = float64(elapsed) / float64(p.planned)
	}

	last, ok := p.fps.Last()
	sum := p.fps.Summary()

	rows := []string{
		sectionHeaderStyle.Render("Pipeline: " + p.name),
		RenderKeyValue("Scenario", p.scenario),
		RenderKeyValue("State", p.state),
		RenderProgressBar(progress, max(m.width-30, 20)),
		lipgloss.JoinHorizontal(lipgloss.Left,
			labelStyle.Render("FPS:"),
			GetFPSLabel(last, m.minFPS, ok),
			mutedStyle.Render("  avg "),
			GetFPSLabel(sum.Mean, m.minFPS, !sum.Empty()),
			mutedStyle.Render("  p5 "),
			GetFPSLabel(sum.P5, m.minFPS, !sum.Empty()),
			mutedStyle.Render(fmt.Sprintf("  (%d samples, min %.1f)", sum.Count, m.minFPS)),
		),
	}

	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// =============================================================================
// Pipeline Table
// =============================================================================

func (m Model) renderPipelineTable() string {
	header := tableHeaderStyle.Render(fmt.Sprintf("%-18s %-26s %-9s %8s %8s %8s",
		"Scenario", "Pipeline", "State", "Samples", "Avg FPS", "Last"))

	rows := []string{sectionHeaderStyle.Render("Pipelines"), header}
	for _, p := range m.pipelines {
		last, ok := p.fps.Last()
		sum := p.fps.Summary()
		rows = append(rows, fmt.Sprintf("%-18s %-26s %-9s %8d %8s %8s",
			truncate(p.scenario, 18),
			truncate(p.name, 26),
			p.state,
			sum.Count,
			formatFPS(sum.Mean, !sum.Empty()),
			formatFPS(last, ok),
		))
	}

	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// =============================================================================
// Footer
// =============================================================================

func (m Model) renderFooter() string {
	shortcuts := []string{
		"q: quit",
		"d: toggle pipelines",
	}

	left := dimStyle.Render(strings.Join(shortcuts, " │ "))
	right := ""
	if m.metricsAddr != "" {
		right = dimStyle.Render("Metrics: " + m.metricsAddr)
	}

	padding := max(m.width-lipgloss.Width(left)-lipgloss.Width(right)-2, 1)

	return footerStyle.Render(
		lipgloss.JoinHorizontal(lipgloss.Left,
			left,
			strings.Repeat(" ", padding),
			right,
		),
	)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
