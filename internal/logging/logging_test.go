package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestInitSwitchesFormat(t *testing.T) {
	var buf bytes.Buffer
	Init("json", "debug", &buf)
	defer Init("text", "info", nil)

	L("test").Info("hello", "key", "value")

	out := buf.String()
	if !strings.Contains(out, `"msg":"hello"`) {
		t.Fatalf("expected JSON-formatted output, got %q", out)
	}
	if !strings.Contains(out, `"component":"test"`) {
		t.Fatalf("expected component field in output, got %q", out)
	}
}

func TestInitRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	Init("text", "warn", &buf)
	defer Init("text", "info", nil)

	L("test").Debug("should not appear")
	L("test").Warn("should appear")

	out := buf.String()
	if strings.Contains(out, "should not appear") {
		t.Fatalf("expected debug line to be filtered at warn level, got %q", out)
	}
	if !strings.Contains(out, "should appear") {
		t.Fatalf("expected warn line to be logged, got %q", out)
	}
}

func TestLoggerCreatedBeforeInitPicksUpNewHandler(t *testing.T) {
	early := L("early")

	var buf bytes.Buffer
	Init("json", "info", &buf)
	defer Init("text", "info", nil)

	early.Info("after init")
	if !strings.Contains(buf.String(), `"msg":"after init"`) {
		t.Fatalf("expected logger created before Init to use the post-Init handler, got %q", buf.String())
	}
}

func TestContextRoundTrip(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	ctx := NewContext(t.Context(), logger)
	if FromContext(ctx) != logger {
		t.Fatal("expected FromContext to return the logger stored by NewContext")
	}
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	if FromContext(t.Context()) == nil {
		t.Fatal("expected a non-nil default logger")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for input, want := range cases {
		if got := parseLevel(input); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}
