package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog/log"
)

// Init mutates process-wide loggers, so these tests do not run in parallel.

func decodeLines(t *testing.T, b []byte) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(b)), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("line %q is not JSON: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestInitSharesFormatWithSlog(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	if err := Init(Options{Level: "info", Stdout: &buf}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	log.Info().Str("component", "server").Msg("zerolog line")
	slog.Info("pagepick: slog line", "url", "https://x/y.jpg")
	slog.Debug("pagepick: dropped at info level")

	lines := decodeLines(t, buf.Bytes())
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %s", len(lines), buf.String())
	}
	for _, l := range lines {
		if l["level"] != "info" {
			t.Errorf("level = %v, want info", l["level"])
		}
		if _, ok := l["time"]; !ok {
			t.Errorf("line %v has no time", l)
		}
	}
	if lines[0]["message"] != "zerolog line" || lines[1]["message"] != "pagepick: slog line" {
		t.Errorf("messages = %v / %v", lines[0]["message"], lines[1]["message"])
	}
	if lines[1]["url"] != "https://x/y.jpg" {
		t.Errorf("slog attrs lost: %v", lines[1])
	}
}

func TestInitWritesRotatingFile(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	path := filepath.Join(t.TempDir(), "logs", "pagepick.log")
	var buf bytes.Buffer
	if err := Init(Options{Level: "debug", File: path, MaxSizeMB: 1, Stdout: &buf}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	slog.Warn("pagepick: to file")
	Close()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	lines := decodeLines(t, b)
	if len(lines) != 1 || lines[0]["level"] != "warn" {
		t.Errorf("file lines = %v", lines)
	}
	if !bytes.Equal(bytes.TrimSpace(b), bytes.TrimSpace(buf.Bytes())) {
		t.Error("file and console should receive the same line")
	}
}

func TestInitBadLevelFallsBackToInfo(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	if err := Init(Options{Level: "chatty", Stdout: &buf}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if Get().GetLevel().String() != "info" {
		t.Errorf("level = %s, want info", Get().GetLevel())
	}
}
