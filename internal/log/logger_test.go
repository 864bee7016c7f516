package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLoggerTagsComponentOnce(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Output: &buf, Level: slog.LevelDebug}).WithComponent(ComponentTally)
	l.Info("hello", FieldDate, "2024-01-01")

	out := buf.String()
	if strings.Count(out, "component=") != 1 || !strings.Contains(out, "component=tally") {
		t.Fatalf("expected a single tally component tag, got %q", out)
	}
	if !strings.Contains(out, "date=2024-01-01") {
		t.Fatalf("missing field in %q", out)
	}
}

func TestStructuredLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Output: &buf}))

	sl.LogTallyChange(context.Background(), OpIncrement, "2024-01-01", 3, 3, 2.5, 2, nil)
	if !strings.Contains(buf.String(), "level=INFO") || !strings.Contains(buf.String(), "persisted=true") {
		t.Fatalf("unexpected committed log: %q", buf.String())
	}

	buf.Reset()
	sl.LogTallyChange(context.Background(), OpUpsert, "2024-01-01", 3, 3, 2.5, 2, errors.New("read-only file system"))
	out := buf.String()
	for _, want := range []string{"level=ERROR", "persisted=false", "error_type=storage_error", `error="read-only file system"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("unpersisted change log missing %q: %q", want, out)
		}
	}

	buf.Reset()
	sl.LogError(context.Background(), "write failed", errors.New("disk full"), ComponentStorage, OpUpsert, nil)
	out = buf.String()
	if !strings.Contains(out, "level=ERROR") || !strings.Contains(out, "component=storage") || !strings.Contains(out, `error="disk full"`) {
		t.Fatalf("unexpected error log: %q", out)
	}
}

func TestMiddlewareAndRequestID(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Output: &buf}).WithComponent(ComponentHTTP)

	h := Middleware(base)(RequestIDMiddleware(func(*http.Request) string { return "req_1" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			FromContext(r.Context()).InfoContext(r.Context(), "inside")
		})))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !strings.Contains(buf.String(), "request_id=req_1") || !strings.Contains(buf.String(), "component=http") {
		t.Fatalf("context logger not enriched: %q", buf.String())
	}
}

func TestFromContextFallsBack(t *testing.T) {
	if l := FromContext(context.Background()); l == nil || l.Component() != "unknown" {
		t.Fatalf("expected fallback logger, got %+v", l)
	}
}

func TestFieldsKeepOrder(t *testing.T) {
	f := NewFields().
		WithOperation(OpUpsert).
		WithDay("2024-01-01", 2).
		WithRequestID("").
		WithError(nil).
		With(FieldPersisted, true)

	want := []any{FieldOperation, OpUpsert, FieldDate, "2024-01-01", FieldCount, 2.0, FieldPersisted, true}
	if len(f) != len(want) {
		t.Fatalf("fields = %v, want %v", f, want)
	}
	for i := range want {
		if f[i] != want[i] {
			t.Errorf("fields[%d] = %v, want %v", i, f[i], want[i])
		}
	}
}

func TestWithComponentReplacesTag(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Output: &buf}).With(FieldStorageKey, "k").WithComponent(ComponentHTTP).WithComponent(ComponentWorker)
	l.Info("switched")

	out := buf.String()
	if strings.Count(out, "component=") != 1 || !strings.Contains(out, "component=worker") {
		t.Fatalf("expected only the worker component, got %q", out)
	}
	if !strings.Contains(out, "storage_key=k") {
		t.Fatalf("attributes lost when switching component: %q", out)
	}
}
