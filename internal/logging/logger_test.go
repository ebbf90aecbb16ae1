package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestFromVerbosity(t *testing.T) {
	cases := map[int]Level{0: LevelError, 1: LevelWarn, 2: LevelInfo, 3: LevelDebug, 99: LevelDebug}
	for v, want := range cases {
		if got := FromVerbosity(v); got != want {
			t.Fatalf("FromVerbosity(%d) = %v, want %v", v, got, want)
		}
	}
}

func TestLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelWarn)

	l.Debug("debug line")
	l.Info("info line")
	if buf.Len() != 0 {
		t.Fatalf("expected Debug/Info to be filtered at Warn level, got %q", buf.String())
	}

	l.Warn("warn line")
	if !strings.Contains(buf.String(), "warn line") {
		t.Fatalf("expected Warn to be logged, got %q", buf.String())
	}
}

func TestLoggerRedactsSignature(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelDebug)

	l.Error("request failed: Signature=abcdef1234567890 status=403")
	out := buf.String()
	if strings.Contains(out, "abcdef1234567890") {
		t.Fatalf("expected signature to be redacted, got %q", out)
	}
	if !strings.Contains(out, "[REDACTED]") {
		t.Fatalf("expected a redaction marker in the output, got %q", out)
	}
}

func TestLoggerRedactsAccessKey(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelDebug)

	l.Info("GET ?AWSAccessKeyId=AKIDEXAMPLE&Expires=123")
	out := buf.String()
	if strings.Contains(out, "AKIDEXAMPLE") {
		t.Fatalf("expected access key id to be redacted, got %q", out)
	}
}
