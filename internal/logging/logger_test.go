package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
)

func withDefault(t *testing.T, l *slog.Logger) {
	t.Helper()
	prev := slog.Default()
	slog.SetDefault(l)
	t.Cleanup(func() { slog.SetDefault(prev) })
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "warn", "json").Info("hidden")
	New(&buf, "warn", "json").Warn("shown", "k", "v")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["msg"] != "shown" || entry["k"] != "v" {
		t.Errorf("entry = %v", entry)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	withDefault(t, New(&buf, "info", "text"))

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-1")
	ctx = ContextWithRunID(ctx, "run-7")

	WithFields(ctx, "stage", "load").Info("done")

	out := buf.String()
	for _, want := range []string{"request_id=req-1", "run_id=run-7", "stage=load", "msg=done"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q: %s", want, out)
		}
	}
	if strings.Contains(out, "trace_id") {
		t.Errorf("trace_id logged without a span: %s", out)
	}
}

func TestRunID_Absent(t *testing.T) {
	if got := RunID(context.Background()); got != "" {
		t.Errorf("RunID() = %q, want empty", got)
	}
}
