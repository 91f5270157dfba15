package logctx

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func decodeEntry(t *testing.T, line string) map[string]any {
	t.Helper()

	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("failed to parse JSON log output %q: %v", line, err)
	}

	return entry
}

func TestContextHandler_NoSpanNoBatch(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewContextHandler(slog.NewJSONHandler(&buf, nil)))

	logger.InfoContext(context.Background(), "plain message", "key", "value")

	entry := decodeEntry(t, buf.String())

	for _, field := range []string{"trace_id", "span_id", "batch_id"} {
		if _, exists := entry[field]; exists {
			t.Errorf("%s should not be present, got: %v", field, entry[field])
		}
	}

	if entry["msg"] != "plain message" {
		t.Errorf("expected msg='plain message', got: %v", entry["msg"])
	}
	if entry["key"] != "value" {
		t.Errorf("expected key='value', got: %v", entry["key"])
	}
}

func TestContextHandler_WithValidSpan(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewContextHandler(slog.NewJSONHandler(&buf, nil)))

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})
	ctx := trace.ContextWithSpanContext(context.Background(), spanCtx)

	logger.InfoContext(ctx, "with span")

	entry := decodeEntry(t, buf.String())

	if entry["trace_id"] != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("unexpected trace_id: %v", entry["trace_id"])
	}
	if entry["span_id"] != "00f067aa0ba902b7" {
		t.Errorf("unexpected span_id: %v", entry["span_id"])
	}
}

func TestContextHandler_WithBatchID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewContextHandler(slog.NewJSONHandler(&buf, nil)))

	ctx := WithBatchID(context.Background(), "batch-42")
	logger.With("component", "downloader").WithGroup("task").ErrorContext(ctx, "failed", "record_id", "7")

	entry := decodeEntry(t, buf.String())

	if entry["component"] != "downloader" {
		t.Errorf("expected component attr to survive WithAttrs, got: %v", entry["component"])
	}

	group, ok := entry["task"].(map[string]any)
	if !ok {
		t.Fatalf("expected task group, got: %v", entry["task"])
	}
	if group["record_id"] != "7" {
		t.Errorf("expected record_id in group, got: %v", group["record_id"])
	}
	if group["batch_id"] != "batch-42" {
		t.Errorf("expected batch_id in group, got: %v", group["batch_id"])
	}
}

func TestNewContextHandler_NilPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for nil handler")
		}
	}()

	NewContextHandler(nil)
}

func TestLoggerFromContext_Default(t *testing.T) {
	if LoggerFromContext(context.Background()) != slog.Default() {
		t.Error("expected slog.Default() when no logger is stored")
	}

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	if LoggerFromContext(WithLogger(context.Background(), logger)) != logger {
		t.Error("expected stored logger")
	}
}

func TestNewLogger_FailureLogReceivesOnlyErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "download.log")

	f, err := OpenFailureLog(path)
	if err != nil {
		t.Fatalf("OpenFailureLog: %v", err)
	}

	var console bytes.Buffer
	logger := NewLogger(&console, slog.LevelDebug, f)

	ctx := WithBatchID(context.Background(), "b1")
	logger.InfoContext(ctx, "progress")
	logger.ErrorContext(ctx, "download failed", "record_id", "1", "kind", "bad_status")

	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if got := strings.Count(console.String(), "\n"); got != 2 {
		t.Errorf("expected 2 console lines, got %d", got)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failure log: %v", err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))

	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	if len(lines) != 1 {
		t.Fatalf("expected 1 failure log line, got %d: %q", len(lines), data)
	}

	entry := decodeEntry(t, lines[0])
	if entry["level"] != "ERROR" || entry["record_id"] != "1" || entry["batch_id"] != "b1" {
		t.Errorf("unexpected failure entry: %v", entry)
	}
}

func TestOpenFailureLog_Appends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "download.log")

	for _, line := range []string{"first\n", "second\n"} {
		f, err := OpenFailureLog(path)
		if err != nil {
			t.Fatalf("OpenFailureLog: %v", err)
		}

		if _, err := f.WriteString(line); err != nil {
			t.Fatalf("write: %v", err)
		}

		f.Close()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	if string(data) != "first\nsecond\n" {
		t.Errorf("expected appended content, got %q", data)
	}
}
