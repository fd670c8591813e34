package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestLoggerWritesComponentAndPairs(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter("Cascade", &buf)

	l.With("job_id", "j-1").Warn("vision output rejected", "page", 3)

	out := buf.String()
	for _, want := range []string{"level=WARN", "component=Cascade", "job_id=j-1", "page=3", "vision output rejected"} {
		if !strings.Contains(out, want) {
			t.Errorf("log line %q missing %q", out, want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
