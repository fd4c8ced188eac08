package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// maxEvents is the number of recent warnings shown.
const maxEvents = 6

// =============================================================================
// Main View Rendering
// =============================================================================

// renderSummaryView renders the main dashboard.
func (m Model) renderSummaryView() string {
	now := time.Now()
	sections := []string{
		m.renderHeader(),
		m.renderPollStatus(now),
	}

	if m.status != nil && m.status.Polls > 0 {
		sections = append(sections, m.renderDurations())
		sections = append(sections, m.renderSeriesSummary())
	}

	if len(m.events) > 0 {
		sections = append(sections, m.renderEvents())
	}

	sections = append(sections, m.renderFooter())
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// renderDetailedView renders the per-metric table.
func (m Model) renderDetailedView() string {
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.renderMetricTable(),
		m.renderFooter(),
	)
}

// =============================================================================
// Header
// =============================================================================

func (m Model) renderHeader() string {
	var polls, failures int64
	var lastError string
	if m.status != nil {
		polls, failures, lastError = m.status.Polls, m.status.Failures, m.status.LastError
	}

	header := fmt.Sprintf(
		" emby-exporter %s │ %s │ Uptime: %s ",
		m.version,
		GetUpstreamLabel(GetUpstreamStatus(polls, failures, lastError)),
		formatDuration(m.Elapsed()),
	)

	return headerStyle.Width(m.width).Render(header)
}

// =============================================================================
// Poll Status
// =============================================================================

func (m Model) renderPollStatus(now time.Time) string {
	rows := []string{
		sectionHeaderStyle.Render("Poll Status"),
		RenderKeyValue("Emby server", m.upstream),
		RenderKeyValue("Metrics endpoint", "http://"+m.metricsAddr+"/metrics"),
	}

	if m.extended {
		rows = append(rows, RenderKeyValue("Categories", "extended (episodes, songs)"))
	}

	if m.status == nil {
		rows = append(rows, dimStyle.Render("waiting for status..."))
		return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
	}

	s := m.status
	rate := m.FailureRate()
	rows = append(rows,
		RenderKeyValue("Polls", formatNumberWithCommas(s.Polls)),
		lipgloss.JoinHorizontal(lipgloss.Left,
			labelStyle.Render("Failures:"),
			GetFailureRateStyle(rate).Render(fmt.Sprintf("%s (%s)", formatNumberWithCommas(s.Failures), formatPercent(rate))),
		),
		RenderKeyValue("Last success", formatAgo(s.LastSuccess, now)),
	)

	if s.LastError != "" {
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Left,
			labelStyle.Render("Last error:"),
			statusError.Render(truncate(s.LastError, m.width-26)),
		))
	}

	if !s.NextPoll.IsZero() {
		barWidth := max(m.width-40, 20)
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Left,
			labelStyle.Render("Next poll:"),
			RenderProgressBar(m.NextPollProgress(now), barWidth),
		))
	}

	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// =============================================================================
// Durations
// =============================================================================

func (m Model) renderDurations() string {
	s := m.status
	content := lipgloss.JoinVertical(lipgloss.Left,
		sectionHeaderStyle.Render("Poll Duration"),
		RenderKeyValue("Last", formatMs(s.LastDuration)),
		RenderKeyValue("P50", formatMs(s.DurationP50)),
		RenderKeyValue("P95", formatMs(s.DurationP95)),
	)
	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Series
// =============================================================================

func (m Model) renderSeriesSummary() string {
	var zeroed int
	var malformed int64
	for _, ms := range m.status.Metrics {
		zeroed += ms.Zeroed
		malformed += ms.Malformed
	}

	rows := []string{
		sectionHeaderStyle.Render("Series"),
		RenderKeyValue("Metrics", fmt.Sprintf("%d", len(m.status.Metrics))),
		RenderKeyValue("Published", formatNumberWithCommas(int64(m.TotalSeries()))),
		RenderKeyValue("Zeroed last poll", formatNumberWithCommas(int64(zeroed))),
	}
	if malformed > 0 {
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Left,
			labelStyle.Render("Rejected snapshots:"),
			statusWarning.Render(formatNumberWithCommas(malformed)),
		))
	}
	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// renderMetricTable lists every metric with its series counts.
func (m Model) renderMetricTable() string {
	header := tableHeaderStyle.Render(fmt.Sprintf("%-24s %10s %10s %10s", "Metric", "Series", "Zeroed", "Rejected"))
	rows := []string{sectionHeaderStyle.Render("Metrics"), header}

	for i, ms := range m.status.Metrics {
		line := fmt.Sprintf("%-24s %10s %10s %10s",
			ms.Name,
			formatNumberWithCommas(int64(ms.Series)),
			formatNumberWithCommas(int64(ms.Zeroed)),
			formatNumberWithCommas(ms.Malformed),
		)
		style := tableRowEvenStyle
		if i%2 == 1 {
			style = tableRowOddStyle
		}
		rows = append(rows, style.Render(line))
	}

	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// =============================================================================
// Events
// =============================================================================

func (m Model) renderEvents() string {
	rows := []string{sectionHeaderStyle.Render("Recent Warnings")}
	for _, line := range m.events {
		rows = append(rows, statusWarning.Render(truncate(line, m.width-6)))
	}
	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// =============================================================================
// Footer
// =============================================================================

func (m Model) renderFooter() string {
	view := "d: metrics table"
	if m.detailedView {
		view = "d: summary"
	}
	return footerStyle.Render(strings.Join([]string{"q: quit", view, "r: refresh"}, " │ "))
}

// truncate shortens s to n runes, marking the cut.
func truncate(s string, n int) string {
	if n < 4 {
		n = 4
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
