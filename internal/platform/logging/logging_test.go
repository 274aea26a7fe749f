package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewWritesToFile(t *testing.T) {
	dir := t.TempDir()
	logger, err := New(Config{Level: "debug", Dir: dir, Filename: "test.log"})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	defer logger.Close()

	logger.InfoTag("PIPELINE", "record %s finalised", "abc")

	data, err := os.ReadFile(filepath.Join(dir, "test.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "[PIPELINE] record abc finalised") {
		t.Errorf("log file missing tagged message, got: %s", data)
	}
	if strings.Contains(string(data), "\x1b[") {
		t.Errorf("log file should not contain colour escapes")
	}
}

func TestColorizeTagUnknownTagUntouched(t *testing.T) {
	msg := "[NOPE] something"
	if got := colorizeTag(msg); got != msg {
		t.Errorf("unknown tag should pass through, got %q", got)
	}
}
