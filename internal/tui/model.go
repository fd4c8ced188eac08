package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/emby-exporter/internal/poller"
)

// =============================================================================
// Messages
// =============================================================================

// TickMsg is sent periodically to update the display.
type TickMsg time.Time

// StatusMsg carries an updated poll status.
type StatusMsg struct {
	Status poller.Status
}

// QuitMsg signals the TUI should exit.
type QuitMsg struct{}

// =============================================================================
// Model
// =============================================================================

// StatusSource provides the poll loop status. Implemented by *poller.Poller.
type StatusSource interface {
	Status() poller.Status
}

// EventSource provides recent warnings. Implemented by
// *logging.RecentHandler.
type EventSource interface {
	RecentLines(n int) []string
}

// Config holds TUI configuration.
type Config struct {
	Version      string
	Upstream     string
	MetricsAddr  string
	Extended     bool
	StatusSource StatusSource
	EventSource  EventSource // optional
}

// Model represents the TUI state.
type Model struct {
	// Configuration
	version     string
	upstream    string
	metricsAddr string
	extended    bool

	// Current state
	status       *poller.Status
	events       []string
	startTime    time.Time
	lastUpdate   time.Time
	detailedView bool

	// Display options
	width  int
	height int

	// Sources
	statusSource StatusSource
	eventSource  EventSource

	// Quit flag
	quitting bool
}

// New creates a new TUI model.
func New(cfg Config) Model {
	return Model{
		version:      cfg.Version,
		upstream:     cfg.Upstream,
		metricsAddr:  cfg.MetricsAddr,
		extended:     cfg.Extended,
		statusSource: cfg.StatusSource,
		eventSource:  cfg.EventSource,
		startTime:    time.Now(),
		lastUpdate:   time.Now(),
		width:        80,
		height:       24,
	}
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	// tea.WithAltScreen() is passed when creating the program.
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
		case "r":
			m.refresh()
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		m.refresh()
		return m, tickCmd()

	case StatusMsg:
		s := msg.Status
		m.status = &s
		m.lastUpdate = time.Now()
		return m, nil

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// refresh pulls the latest state from the sources.
func (m *Model) refresh() {
	if m.statusSource != nil {
		s := m.statusSource.Status()
		m.status = &s
	}
	if m.eventSource != nil {
		m.events = m.eventSource.RecentLines(maxEvents)
	}
	m.lastUpdate = time.Now()
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	if m.detailedView && m.status != nil && len(m.status.Metrics) > 0 {
		return m.renderDetailedView()
	}
	return m.renderSummaryView()
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

// Elapsed returns the time since the dashboard started.
func (m Model) Elapsed() time.Duration {
	return time.Since(m.startTime)
}

// Up reports whether the last poll succeeded.
func (m Model) Up() bool {
	return m.status != nil && m.status.Polls > 0 && m.status.LastError == ""
}

// FailureRate returns failed polls over all polls.
func (m Model) FailureRate() float64 {
	if m.status == nil || m.status.Polls == 0 {
		return 0
	}
	return float64(m.status.Failures) / float64(m.status.Polls)
}

// TotalSeries returns the number of series published across metrics.
func (m Model) TotalSeries() int {
	if m.status == nil {
		return 0
	}
	total := 0
	for _, ms := range m.status.Metrics {
		total += ms.Series
	}
	return total
}

// NextPollProgress returns how far the wait for the next poll has come
// (0.0 to 1.0).
func (m Model) NextPollProgress(now time.Time) float64 {
	if m.status == nil || m.status.Interval <= 0 || m.status.NextPoll.IsZero() {
		return 0
	}
	remaining := m.status.NextPoll.Sub(now)
	p := 1 - float64(remaining)/float64(m.status.Interval)
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}

// =============================================================================
// Helper for external use
// =============================================================================

// SendStatus sends a status update to the TUI.
func SendStatus(p *tea.Program, status poller.Status) {
	if p != nil {
		p.Send(StatusMsg{Status: status})
	}
}

// SendQuit sends a quit message to the TUI.
func SendQuit(p *tea.Program) {
	if p != nil {
		p.Send(QuitMsg{})
	}
}

// =============================================================================
// Formatting Helpers (used by view.go)
// =============================================================================

// formatDuration formats a duration as HH:MM:SS.
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// formatMs formats a duration as milliseconds.
func formatMs(d time.Duration) string {
	ms := d.Milliseconds()
	if ms == 0 && d > 0 {
		return fmt.Sprintf("%d µs", d.Microseconds())
	}
	return fmt.Sprintf("%d ms", ms)
}

// formatAgo formats the time since t, or "never".
func formatAgo(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := now.Sub(t).Round(time.Second)
	if d < time.Second {
		return "just now"
	}
	return d.String() + " ago"
}

// formatPercent formats a ratio as a percentage.
func formatPercent(value float64) string {
	return fmt.Sprintf("%.1f%%", value*100)
}

// formatNumberWithCommas formats a number with thousand separators.
func formatNumberWithCommas(n int64) string {
	if n < 0 {
		return "0" // Handle negative as 0 for display
	}
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}

	// Add commas every 3 digits from right to left
	str := fmt.Sprintf("%d", n)
	result := make([]byte, 0, len(str)+len(str)/3)
	for i := range len(str) {
		if i > 0 && (len(str)-i)%3 == 0 {
			result = append(result, ',')
		}
		result = append(result, str[i])
	}
	return string(result)
}
