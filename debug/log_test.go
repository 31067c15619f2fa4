package debug

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLogDisabledWritesNothing(t *testing.T) {
	var buf bytes.Buffer
	EnableWriter(&buf)
	Disable()
	Log("driver", "tick %d", 1)
	if buf.Len() != 0 {
		t.Fatalf("unexpected output %q", buf.String())
	}
	if Enabled() {
		t.Fatal("Enabled() = true after Disable")
	}
}

func TestLogFormat(t *testing.T) {
	var buf bytes.Buffer
	EnableWriter(&buf)
	defer Disable()

	Log("driver", "tick %d levels=%d", 3, 2)
	line := buf.String()
	if !strings.Contains(line, "driver") || !strings.Contains(line, "tick 3 levels=2") {
		t.Fatalf("log line = %q", line)
	}
	if !strings.HasPrefix(line, "[") || !strings.HasSuffix(line, "\n") {
		t.Fatalf("log line = %q, want [timestamp] prefix and newline", line)
	}
}

func TestLogEvery(t *testing.T) {
	var buf bytes.Buffer
	EnableWriter(&buf)
	defer Disable()

	for range 10 {
		LogEvery(5, "midi", "send")
	}
	if n := strings.Count(buf.String(), "\n"); n != 2 {
		t.Fatalf("LogEvery wrote %d lines, want 2", n)
	}
}

func TestEnableFile(t *testing.T) {
	Disable()
	path := filepath.Join(t.TempDir(), "nested", "debug.log")
	if err := EnableFile(path); err != nil {
		t.Fatalf("EnableFile() error = %v", err)
	}
	Log("config", "loaded")
	Disable()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), "Debug logging started") || !strings.Contains(string(data), "loaded") {
		t.Fatalf("log file = %q", data)
	}
}
