// Package tui provides a live terminal dashboard for the exporter.
//
// The TUI uses Bubble Tea for the application framework and Lipgloss for
// styling. It shows whether the Emby server is answering, how long polls
// take, how many series each metric publishes and the latest warnings.
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
	colorPrimary   = lipgloss.Color("#52B54B") // Emby green
	colorSecondary = lipgloss.Color("#06B6D4") // Cyan

	colorSuccess = lipgloss.Color("#10B981") // Green
	colorWarning = lipgloss.Color("#F59E0B") // Amber
	colorError   = lipgloss.Color("#EF4444") // Red

	colorText      = lipgloss.Color("#E5E7EB") // Light gray
	colorTextMuted = lipgloss.Color("#9CA3AF") // Medium gray
	colorTextDim   = lipgloss.Color("#6B7280") // Dark gray
	colorBorder    = lipgloss.Color("#374151") // Border gray
)

// =============================================================================
// Styles
// =============================================================================

var (
	dimStyle = lipgloss.NewStyle().
			Foreground(colorTextDim)

	statusOK = lipgloss.NewStyle().
			Foreground(colorSuccess).
			Bold(true)

	statusWarning = lipgloss.NewStyle().
			Foreground(colorWarning).
			Bold(true)

	statusError = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)

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

	valueStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted).
			Width(20)

	progressBarStyle = lipgloss.NewStyle().
				Foreground(colorPrimary)

	progressBarEmptyStyle = lipgloss.NewStyle().
				Foreground(colorBorder)

	tableHeaderStyle = lipgloss.NewStyle().
				Foreground(colorSecondary).
				Bold(true)

	tableRowEvenStyle = lipgloss.NewStyle().
				Foreground(colorText)

	tableRowOddStyle = lipgloss.NewStyle().
				Foreground(colorTextMuted)
)

// =============================================================================
// Upstream Status Indicator
// =============================================================================

// UpstreamStatus summarizes the health of the poll loop.
type UpstreamStatus int

const (
	UpstreamWaiting UpstreamStatus = iota // no poll finished yet
	UpstreamUp
	UpstreamFlaky // last poll succeeded, earlier ones failed
	UpstreamDown
)

// GetUpstreamStatus classifies the poll history.
func GetUpstreamStatus(polls, failures int64, lastError string) UpstreamStatus {
	switch {
	case polls == 0:
		return UpstreamWaiting
	case lastError != "":
		return UpstreamDown
	case failures > 0:
		return UpstreamFlaky
	default:
		return UpstreamUp
	}
}

// GetUpstreamLabel returns a styled label for the status.
func GetUpstreamLabel(s UpstreamStatus) string {
	switch s {
	case UpstreamUp:
		return statusOK.Render("● Emby up")
	case UpstreamFlaky:
		return statusWarning.Render("● Emby up (had failures)")
	case UpstreamDown:
		return statusError.Render("● Emby down")
	default:
		return dimStyle.Render("○ waiting for first poll")
	}
}

// GetFailureRateStyle returns a style based on the failed poll ratio.
func GetFailureRateStyle(rate float64) lipgloss.Style {
	switch {
	case rate == 0:
		return statusOK
	case rate < 0.1:
		return statusWarning
	default:
		return statusError
	}
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
	if width < 10 {
		width = 10
	}

	filled := int(progress * float64(width))
	filled = max(0, min(filled, width))

	return progressBarStyle.Render(strings.Repeat("█", filled)) +
		progressBarEmptyStyle.Render(strings.Repeat("░", width-filled)) +
		valueStyle.Render(fmt.Sprintf(" %3.0f%%", progress*100))
}
