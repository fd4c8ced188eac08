package logging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

const (
	// MaxLineLength is the maximum length of a remembered line before truncation.
	MaxLineLength = 512

	// MaxRecentLines is the number of lines a RecentHandler keeps.
	MaxRecentLines = 50
)

// RecentHandler wraps a handler and remembers the last warnings and errors
// as one-line summaries, for the dashboard and the exit summary.
type RecentHandler struct {
	next     slog.Handler
	minLevel slog.Level
	ring     *ring
	attrs    []slog.Attr
}

// ring is a fixed-size circular buffer shared by a handler and its children.
type ring struct {
	mu     sync.Mutex
	buffer []string
	idx    int
	counts map[string]int // message -> occurrences
}

// NewRecentHandler wraps next. Records at or above minLevel are remembered;
// every record is passed on to next unchanged.
func NewRecentHandler(next slog.Handler, minLevel slog.Level) *RecentHandler {
	return &RecentHandler{
		next:     next,
		minLevel: minLevel,
		ring: &ring{
			buffer: make([]string, MaxRecentLines),
			counts: make(map[string]int),
		},
	}
}

// Enabled reports whether next handles level, or level must be remembered.
func (h *RecentHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.minLevel || h.next.Enabled(ctx, level)
}

// Handle remembers r if it is severe enough and passes it on.
func (h *RecentHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= h.minLevel {
		h.ring.add(r.Message, formatLine(r, h.attrs))
	}
	if !h.next.Enabled(ctx, r.Level) {
		return nil
	}
	return h.next.Handle(ctx, r)
}

// WithAttrs returns a handler sharing the same buffer.
func (h *RecentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &RecentHandler{
		next:     h.next.WithAttrs(attrs),
		minLevel: h.minLevel,
		ring:     h.ring,
		attrs:    append(append([]slog.Attr(nil), h.attrs...), attrs...),
	}
}

// WithGroup returns a handler sharing the same buffer.
func (h *RecentHandler) WithGroup(name string) slog.Handler {
	return &RecentHandler{
		next:     h.next.WithGroup(name),
		minLevel: h.minLevel,
		ring:     h.ring,
		attrs:    h.attrs,
	}
}

// RecentLines returns up to n remembered lines, oldest first.
func (h *RecentHandler) RecentLines(n int) []string {
	return h.ring.recent(n)
}

// Counts returns how often each remembered message was seen.
func (h *RecentHandler) Counts() map[string]int {
	h.ring.mu.Lock()
	defer h.ring.mu.Unlock()

	out := make(map[string]int, len(h.ring.counts))
	for k, v := range h.ring.counts {
		out[k] = v
	}
	return out
}

func (r *ring) add(msg, line string) {
	// Truncate if too long
	if len(line) > MaxLineLength {
		cut := MaxLineLength
		for cut > 0 && !utf8.RuneStart(line[cut]) {
			cut--
		}
		line = line[:cut] + "...(truncated)"
	}

	r.mu.Lock()
	r.buffer[r.idx] = line
	r.idx = (r.idx + 1) % MaxRecentLines
	r.counts[msg]++
	r.mu.Unlock()
}

func (r *ring) recent(n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n > MaxRecentLines {
		n = MaxRecentLines
	}

	lines := make([]string, 0, n)

	// Read from circular buffer in order
	for i := 0; i < n; i++ {
		idx := (r.idx - n + i + MaxRecentLines) % MaxRecentLines
		if r.buffer[idx] != "" {
			lines = append(lines, r.buffer[idx])
		}
	}

	return lines
}

// formatLine renders "15:04:05 WARN msg key=value ...".
func formatLine(r slog.Record, attrs []slog.Attr) string {
	var b strings.Builder
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	fmt.Fprintf(&b, "%s %s %s", ts.Format("15:04:05"), r.Level, r.Message)
	for _, a := range attrs {
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value)
		return true
	})
	return b.String()
}
