package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{"debug", slog.LevelDebug},
		{"Trace", LevelTrace},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestNewLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		level      string
		logAtDebug bool
		logAtInfo  bool
	}{
		{"warn", false, false},
		{"info", false, true},
		{"debug", true, true},
		{"trace", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(tt.level, &buf)

			logger.Debug("debug message")
			if got := strings.Contains(buf.String(), "debug message"); got != tt.logAtDebug {
				t.Errorf("debug visible = %v, want %v", got, tt.logAtDebug)
			}

			buf.Reset()
			logger.Info("info message")
			if got := strings.Contains(buf.String(), "info message"); got != tt.logAtInfo {
				t.Errorf("info visible = %v, want %v", got, tt.logAtInfo)
			}
		})
	}
}

func TestNew_TraceLabelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New("trace", "json", &buf)
	logger.Log(context.Background(), LevelTrace, "step", "t", 3)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("json handler output not JSON: %v (%q)", err, buf.String())
	}
	if rec["level"] != "TRACE" {
		t.Errorf("level = %v, want TRACE", rec["level"])
	}
	if rec["t"] != float64(3) {
		t.Errorf("t = %v, want 3", rec["t"])
	}

	buf.Reset()
	New("info", "text", &buf).Info("hello")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("text handler output = %q", buf.String())
	}
}

func TestNewStepLogger_InfoLevelIsNil(t *testing.T) {
	dir := t.TempDir()
	sl := NewStepLogger(dir, "info", "run-1")
	if sl != nil {
		t.Fatal("expected nil StepLogger at info level")
	}

	sl.Log(map[string]any{"step": 0})
	if sl.Count() != 0 {
		t.Error("nil logger Count() != 0")
	}
	if err := sl.Close(); err != nil {
		t.Errorf("nil Close() = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, StepFile)); err == nil {
		t.Error("steps.jsonl should not exist at info level")
	}
}

func TestStepLogger_WritesLines(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")
	sl := NewStepLogger(dir, "debug", "run-42")
	if sl == nil {
		t.Fatal("expected StepLogger at debug level")
	}
	defer sl.Close()

	event := map[string]any{"step": 0, "num_firing": 100}
	sl.Log(event)
	sl.Log(map[string]any{"step": 1, "num_firing": 0})

	if _, ok := event["time"]; ok {
		t.Error("Log() mutated caller's map")
	}
	if sl.Count() != 2 {
		t.Errorf("Count() = %d, want 2", sl.Count())
	}

	data, err := os.ReadFile(filepath.Join(dir, StepFile))
	if err != nil {
		t.Fatalf("read steps.jsonl: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}

	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("parse line: %v", err)
	}
	if first["run_id"] != "run-42" {
		t.Errorf("run_id = %v, want run-42", first["run_id"])
	}
	if first["num_firing"] != float64(100) {
		t.Errorf("num_firing = %v, want 100", first["num_firing"])
	}
	if _, ok := first["time"]; !ok {
		t.Error("missing time field")
	}

	info, err := os.Stat(filepath.Join(dir, StepFile))
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("permissions = %o, want 0600", perm)
	}
}

func TestStepLogger_LogAfterClose(t *testing.T) {
	sl := NewStepLogger(t.TempDir(), "trace", "")
	sl.Log(map[string]any{"step": 0})
	if err := sl.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	sl.Log(map[string]any{"step": 1})
	if sl.Count() != 1 {
		t.Errorf("Count() = %d, want 1", sl.Count())
	}
}
