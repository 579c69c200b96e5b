package logger

import (
	"bytes"
	"log"
	"strings"
	"testing"
)

func TestStdLogger(t *testing.T) {
	var buf bytes.Buffer
	l := &StdLogger{
		logger: log.New(&buf, "", 0),
		debug:  true,
	}

	tests := []struct {
		name     string
		fn       func()
		expected string
	}{
		{
			name:     "Info",
			fn:       func() { l.Info("reading store") },
			expected: "[INFO] reading store",
		},
		{
			name:     "Warn",
			fn:       func() { l.Warn("store unavailable") },
			expected: "[WARN] store unavailable",
		},
		{
			name:     "Error",
			fn:       func() { l.Error("backup failed") },
			expected: "[ERROR] backup failed",
		},
		{
			name:     "Debug",
			fn:       func() { l.Debug("field read") },
			expected: "[DEBUG] field read",
		},
		{
			name:     "Info with args",
			fn:       func() { l.Info("wrote %s=%d", "fields", 7) },
			expected: "[INFO] wrote fields=7",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			tt.fn()
			got := strings.TrimSpace(buf.String())
			if got != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestDebugSuppressed(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, false)

	l.Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}

	l.Info("shown")
	if !strings.Contains(buf.String(), "[INFO] shown") {
		t.Errorf("info line missing: %q", buf.String())
	}
}

func TestNop(t *testing.T) {
	if Nop == nil {
		t.Error("Nop logger should not be nil")
	}

	Nop.Info("test")
}
