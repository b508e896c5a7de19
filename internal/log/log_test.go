// ABOUTME: Tests for the logging package
// ABOUTME: Validates level filtering, output redirection, and payload previews

package log

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

// captureOutput swaps the log writer and level for the duration of a test.
func captureOutput(t *testing.T, l slog.Level) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prevOut := SetOutput(&buf)
	prevLevel := GetLevel()
	SetLevel(l)
	t.Cleanup(func() {
		SetOutput(prevOut)
		SetLevel(prevLevel)
	})
	return &buf
}

func TestSetLevel(t *testing.T) {
	saved := GetLevel()
	defer SetLevel(saved)

	SetLevel(LevelDebug)
	if GetLevel() != LevelDebug {
		t.Errorf("expected LevelDebug, got %v", GetLevel())
	}

	SetLevel(LevelError)
	if GetLevel() != LevelError {
		t.Errorf("expected LevelError, got %v", GetLevel())
	}
}

func TestDebugSuppressedAtInfoLevel(t *testing.T) {
	buf := captureOutput(t, LevelInfo)

	Debug("hidden %s", "value")
	if buf.Len() != 0 {
		t.Errorf("debug output at info level: %q", buf.String())
	}
}

func TestAllLevelsAtDebug(t *testing.T) {
	buf := captureOutput(t, LevelDebug)

	Debug("debug: %d", 1)
	Info("info: %d", 2)
	Warn("warn: %d", 3)
	Error("error: %d", 4)

	got := buf.String()
	for _, want := range []string{"[DEBUG] debug: 1\n", "[INFO] info: 2\n", "[WARN] warn: 3\n", "[ERROR] error: 4\n"} {
		if !strings.Contains(got, want) {
			t.Errorf("output %q missing %q", got, want)
		}
	}
}

func TestErrorAlwaysEmitted(t *testing.T) {
	buf := captureOutput(t, slog.Level(100))

	Warn("dropped")
	Error("kept")

	if got := buf.String(); got != "[ERROR] kept\n" {
		t.Errorf("output = %q, want only the error line", got)
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want slog.Level
		ok   bool
	}{
		{"debug", LevelDebug, true},
		{"INFO", LevelInfo, true},
		{" warn ", LevelWarn, true},
		{"error", LevelError, true},
		{"loud", LevelInfo, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, ok := ParseLevel(tt.in)
			if got != tt.want || ok != tt.ok {
				t.Errorf("ParseLevel(%q) = (%v, %v), want (%v, %v)", tt.in, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestPreview(t *testing.T) {
	t.Parallel()

	if got := Preview("a\x00b\nc"); got != "a·b c" {
		t.Errorf("Preview = %q, want %q", got, "a·b c")
	}

	long := strings.Repeat("x", 200)
	got := PreviewWidth(long, 10)
	if got != strings.Repeat("x", 9)+"…" {
		t.Errorf("PreviewWidth = %q", got)
	}
}
