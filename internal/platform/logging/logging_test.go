package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"WARN":    zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"verbose": zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q): expected %v, got %v", in, want, got)
		}
	}
}

func TestNew_JSONOutsideDevelopment(t *testing.T) {
	var buf bytes.Buffer
	logger := newWithStdout(Options{Env: "production", Level: "info"}, &buf)
	logger.Info().Str("session_id", "abc").Msg("scheduled")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if entry["service"] != "caseload" {
		t.Errorf("expected service=caseload, got %v", entry["service"])
	}
	if entry["session_id"] != "abc" {
		t.Errorf("expected session_id=abc, got %v", entry["session_id"])
	}
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := newWithStdout(Options{Env: "production", Level: "warn"}, &buf)
	logger.Info().Msg("hidden")
	if buf.Len() != 0 {
		t.Errorf("expected info to be filtered at warn level, got %q", buf.String())
	}
}

func TestNew_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "caseload.log")
	var buf bytes.Buffer
	logger := newWithStdout(Options{Env: "production", File: path, MaxSizeMB: 1}, &buf)
	logger.Info().Msg("to file")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Errorf("expected message in log file, got %q", string(data))
	}
}
