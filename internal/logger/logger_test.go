package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelInfo)
	log.Info("hello", "key", "value")

	output := buf.String()
	if !strings.Contains(output, "hello") {
		t.Fatalf("expected 'hello' in output, got: %s", output)
	}
	if !strings.Contains(output, `"key":"value"`) {
		t.Fatalf("expected key=value in JSON output, got: %s", output)
	}
}

func TestTextLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := Text(&buf, slog.LevelWarn)
	log.Info("should not appear")
	log.Debug("also should not appear")

	if buf.Len() > 0 {
		t.Fatalf("expected no output for info/debug at warn level, got: %s", buf.String())
	}

	log.Warn("centroid data unavailable", "scan", 7)
	if !strings.Contains(buf.String(), "scan=7") {
		t.Fatalf("expected warn attrs in output, got: %s", buf.String())
	}
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	log := Text(&buf, slog.LevelInfo).With("export_id", "abc")
	log.Info("started")
	if !strings.Contains(buf.String(), "export_id=abc") {
		t.Fatalf("expected inherited attrs, got: %s", buf.String())
	}
}

func TestForFormat(t *testing.T) {
	var buf bytes.Buffer
	ForFormat(&buf, "JSON", slog.LevelInfo).Info("x")
	if !strings.HasPrefix(buf.String(), "{") {
		t.Fatalf("expected JSON output, got: %s", buf.String())
	}
	buf.Reset()
	ForFormat(&buf, "bogus", slog.LevelInfo).Info("x")
	if !strings.Contains(buf.String(), "msg=x") {
		t.Fatalf("expected text output, got: %s", buf.String())
	}
}

func TestDiscard(t *testing.T) {
	// must not panic
	Discard().Error("dropped")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"nonsense", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
