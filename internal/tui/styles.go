// Package tui provides a live terminal dashboard for a pipeline harness run.
//
// The TUI uses Bubble Tea for the application framework and Lipgloss for
// styling. It shows scenario progress, the pipeline currently running with
// its live FPS, and every pipeline launched so far.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// =============================================================================
// Color Palette
// =============================================================================

var (
	colorPrimary   = lipgloss.Color("#7C3AED") // Purple
	colorSecondary = lipgloss.Color("#06B6D4") // Cyan

	colorSuccess = lipgloss.Color("#10B981") // Green
	colorWarning = lipgloss.Color("#F59E0B") // Amber
	colorError   = lipgloss.Color("#EF4444") // Red
	colorInfo    = lipgloss.Color("#3B82F6") // Blue

	colorText      = lipgloss.Color("#E5E7EB") // Light gray
	colorTextMuted = lipgloss.Color("#9CA3AF") // Medium gray
	colorTextDim   = lipgloss.Color("#6B7280") // Dark gray
	colorBorder    = lipgloss.Color("#374151") // Border gray
)

// =============================================================================
// Base Styles
// =============================================================================

var (
	mutedStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorTextDim)

	boldStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Bold(true)
)

// =============================================================================
// Status Indicator Styles
// =============================================================================

var (
	statusOK = lipgloss.NewStyle().
			Foreground(colorSuccess).
			Bold(true)

	statusWarning = lipgloss.NewStyle().
			Foreground(colorWarning).
			Bold(true)

	statusError = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)

	statusInfo = lipgloss.NewStyle().
			Foreground(colorInfo).
			Bold(true)
)

// =============================================================================
// Layout Styles
// =============================================================================

var (
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Background(colorPrimary).
			Bold(true).
			Padding(0, 1).
			MarginBottom(1)

	sectionHeaderStyle = lipgloss.NewStyle().
				Foreground(colorSecondary).
				Bold(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderBottom(true).
				BorderForeground(colorBorder)

	footerStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted).
			MarginTop(1)
)

// =============================================================================
// Value Styles
// =============================================================================

var (
	valueStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Bold(true)

	valueGoodStyle = lipgloss.NewStyle().
			Foreground(colorSuccess).
			Bold(true)

	valueBadStyle = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)

	valueWarnStyle = lipgloss.NewStyle().
			Foreground(colorWarning).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted).
			Width(16)

	tableHeaderStyle = lipgloss.NewStyle().
				Foreground(colorSecondary).
				Bold(true)
)

// =============================================================================
// Progress Bar Styles
// =============================================================================

var (
	progressBarStyle = lipgloss.NewStyle().
				Foreground(colorPrimary)

	progressBarEmptyStyle = lipgloss.NewStyle().
				Foreground(colorBorder)

	progressPercentStyle = lipgloss.NewStyle().
				Foreground(colorText).
				Bold(true)
)

// =============================================================================
// Scenario Status Indicator
// =============================================================================

// statusIcon returns the styled marker for a scenario status.
func statusIcon(s scenarioStatus) string {
	switch s {
	case statusRunning:
		return statusInfo.Render("▶")
	case statusPassed:
		return statusOK.Render("✓")
	case statusFailed:
		return statusError.Render("✗")
	case statusSkipped:
		return statusWarning.Render("⚠")
	default:
		return dimStyle.Render("·")
	}
}

// statusStyle returns the style for a scenario status label.
func statusStyle(s scenarioStatus) lipgloss.Style {
	switch s {
	case statusRunning:
		return statusInfo
	case statusPassed:
		return statusOK
	case statusFailed:
		return statusError
	case statusSkipped:
		return statusWarning
	default:
		return dimStyle
	}
}

// =============================================================================
// FPS Indicator
// =============================================================================

// fpsMargin is how far above the minimum a reading must be to render green.
const fpsMargin = 1.2

// GetFPSStyle returns a style for fps relative to the pass threshold: red at
// or below it, amber within 20% above it, green beyond.
func GetFPSStyle(fps, minFPS float64) lipgloss.Style {
	switch {
	case minFPS <= 0:
		return valueStyle
	case fps <= minFPS:
		return valueBadStyle
	case fps < minFPS*fpsMargin:
		return valueWarnStyle
	default:
		return valueGoodStyle
	}
}

// GetFPSLabel returns a styled FPS value.
func GetFPSLabel(fps, minFPS float64, ok bool) string {
	if !ok {
		return dimStyle.Render(formatFPS(0, false))
	}
	return GetFPSStyle(fps, minFPS).Render(formatFPS(fps, true))
}

// =============================================================================
// Helper Functions
// =============================================================================

// RenderKeyValue renders a label-value pair.
func RenderKeyValue(label string, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Left,
		labelStyle.Render(label+":"),
		valueStyle.Render(value),
	)
}

// RenderProgressBar renders a progress bar.
func RenderProgressBar(progress float64, width int) string {
	width = max(width, 10)
	progress = min(max(progress, 0), 1)
	filled := int(progress * float64(width))

	bar := progressBarStyle.Render(strings.Repeat("█", filled)) +
		progressBarEmptyStyle.Render(strings.Repeat("░", width-filled))

	percent := progressPercentStyle.Render(fmt.Sprintf(" %3.0f%%", progress*100))

	return bar + percent
}
