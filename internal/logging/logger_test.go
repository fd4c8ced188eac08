package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"trace", slog.LevelInfo},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			if got := parseLevel(tc.input); got != tc.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tc.input, got, tc.expected)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	for _, format := range []string{"json", "text", "", "invalid"} {
		t.Run(format, func(t *testing.T) {
			if NewLogger(format, "info", false) == nil {
				t.Error("NewLogger returned nil")
			}
		})
	}
}

func TestNewHandler_Formats(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		slog.New(NewHandler(&buf, "json", "info", false)).Info("poll_cycle_complete", "metric", "emby_genres")

		var rec map[string]any
		if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
			t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
		}
		if rec["msg"] != "poll_cycle_complete" || rec["metric"] != "emby_genres" {
			t.Errorf("record = %v", rec)
		}
	})

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		slog.New(NewHandler(&buf, "text", "info", false)).Info("poll_cycle_complete", "metric", "emby_genres")

		if !strings.Contains(buf.String(), "metric=emby_genres") {
			t.Errorf("output = %q", buf.String())
		}
	})

	t.Run("unknown defaults to json", func(t *testing.T) {
		var buf bytes.Buffer
		slog.New(NewHandler(&buf, "xml", "info", false)).Info("x")

		if !strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
			t.Errorf("output = %q", buf.String())
		}
	})
}

func TestNewHandler_VerboseOverridesLevel(t *testing.T) {
	var buf bytes.Buffer
	slog.New(NewHandler(&buf, "text", "error", true)).Debug("debug message")

	out := buf.String()
	if !strings.Contains(out, "debug message") {
		t.Error("verbose should enable debug")
	}
	if !strings.Contains(out, "source=") {
		t.Error("debug level should add source locations")
	}
}

func TestNewLoggerWithWriter_LevelFiltering(t *testing.T) {
	testCases := []struct {
		level   string
		logged  []string
		dropped []string
	}{
		{"debug", []string{"debug msg", "info msg", "warn msg", "error msg"}, nil},
		{"info", []string{"info msg", "warn msg"}, []string{"debug msg"}},
		{"warn", []string{"warn msg", "error msg"}, []string{"info msg"}},
		{"error", []string{"error msg"}, []string{"warn msg"}},
	}

	for _, tc := range testCases {
		t.Run(tc.level, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLoggerWithWriter(&buf, "text", tc.level)
			logger.Debug("debug msg")
			logger.Info("info msg")
			logger.Warn("warn msg")
			logger.Error("error msg")

			out := buf.String()
			for _, m := range tc.logged {
				if !strings.Contains(out, m) {
					t.Errorf("%s level should log %q", tc.level, m)
				}
			}
			for _, m := range tc.dropped {
				if strings.Contains(out, m) {
					t.Errorf("%s level should drop %q", tc.level, m)
				}
			}
		})
	}
}

func TestNewLoggerWithWriter_DefaultFormatIsText(t *testing.T) {
	var buf bytes.Buffer
	NewLoggerWithWriter(&buf, "invalid", "info").Info("test message")

	if strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Error("default format should be text, not JSON")
	}
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	logger.Error("nobody hears this")

	if logger.Enabled(context.Background(), slog.LevelError) {
		t.Error("Discard should not enable any level")
	}
}

func TestSetDefault(t *testing.T) {
	originalDefault := slog.Default()
	defer slog.SetDefault(originalDefault)

	var buf bytes.Buffer
	SetDefault(NewLoggerWithWriter(&buf, "text", "info"))

	slog.Info("from default logger")
	if !strings.Contains(buf.String(), "from default logger") {
		t.Error("SetDefault did not set the default logger")
	}
}
