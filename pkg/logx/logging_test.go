package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func decodeLine(t *testing.T, b []byte) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(b), &m); err != nil {
		t.Fatalf("not a JSON line: %q: %v", b, err)
	}
	return m
}

func TestWriterLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("comp", "test"))
	log.Warn("hello", Int("n", 3), Err(errors.New("boom")), Err(nil))

	m := decodeLine(t, buf.Bytes())
	if m["level"] != "warn" || m["message"] != "hello" {
		t.Fatalf("unexpected line: %v", m)
	}
	if m["comp"] != "test" || m["n"] != float64(3) || m["err"] != "boom" {
		t.Fatalf("missing fields: %v", m)
	}
	if c, _ := m["caller"].(string); !strings.HasPrefix(c, "logging_test.go:") {
		t.Fatalf("caller = %q", c)
	}
}

func TestWriterLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "warn")
	log.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level: %s", buf.String())
	}
	if log.Enabled(LevelInfo) || !log.Enabled(LevelError) {
		t.Fatal("Enabled disagrees with level")
	}
}

func TestZeroAndNopLoggers(t *testing.T) {
	var zero Logger
	if !zero.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	zero.Error("ignored")
	if Nop().IsZero() {
		t.Fatal("Nop logger is not the zero value")
	}
	Nop().With(String("a", "b")).Error("ignored")
}

func TestValidLevel(t *testing.T) {
	for _, s := range []string{"", "trace", "DEBUG", " info ", "warning", "error"} {
		if !ValidLevel(s) {
			t.Errorf("ValidLevel(%q) = false", s)
		}
	}
	if ValidLevel("verbose") {
		t.Error("ValidLevel(verbose) = true")
	}
}

func TestServiceFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	svc, log := New(Config{Level: "info", File: FileConfig{Enabled: true, Path: path}})
	log.Info("to file", String("k", "v"))

	// Apply keeps existing loggers live.
	svc.Apply(Config{Level: "error", File: FileConfig{Enabled: true, Path: path}})
	log.Info("filtered")
	if err := svc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), b)
	}
	if m := decodeLine(t, []byte(lines[0])); m["k"] != "v" {
		t.Fatalf("unexpected line: %v", m)
	}
}

func TestServiceConsoleJSON(t *testing.T) {
	var buf bytes.Buffer
	svc, log := New(Config{Level: "debug", Console: true, Format: "json"}, WithConsole(&buf))
	defer svc.Close()

	log.With(String("comp", "svc")).Debug("hello")
	m := decodeLine(t, buf.Bytes())
	if m["comp"] != "svc" || m["level"] != "debug" {
		t.Fatalf("unexpected line: %v", m)
	}

	buf.Reset()
	svc.Apply(Config{Level: "warn", Console: true, Format: "json"})
	log.Info("filtered")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered after Apply: %s", buf.String())
	}
}

func TestServiceFallsBackToConsole(t *testing.T) {
	var buf bytes.Buffer
	missing := filepath.Join(t.TempDir(), "no", "such", "dir", "out.log")
	svc, log := New(Config{Format: "json", File: FileConfig{Enabled: true, Path: missing}}, WithConsole(&buf))
	defer svc.Close()

	if !strings.Contains(buf.String(), "log file unavailable") {
		t.Fatalf("expected open failure to be reported, got %q", buf.String())
	}
	buf.Reset()
	log.Info("still logging")
	if !strings.Contains(buf.String(), "still logging") {
		t.Fatalf("console fallback not used: %q", buf.String())
	}
}
