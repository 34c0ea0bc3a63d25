package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestInit(t *testing.T) {
	var buf bytes.Buffer
	logger := Init("test-service", Options{Level: slog.LevelInfo, Output: &buf})
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
	defer slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	logger.Info("phase transition", "to", "ReadyToBuy")
	logger.Debug("dropped below level")

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("expected one JSON record, got %q: %v", buf.String(), err)
	}
	if rec["service"] != "test-service" {
		t.Errorf("expected service attr, got %v", rec["service"])
	}
	if rec["to"] != "ReadyToBuy" {
		t.Errorf("expected to=ReadyToBuy, got %v", rec["to"])
	}
}

func TestInit_StdlibLogRoutesThroughHandler(t *testing.T) {
	var buf bytes.Buffer
	Init("test-service", Options{Level: slog.LevelInfo, Output: &buf})
	defer slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	log.Printf("[sqlite] committed %d bars", 3)
	if !strings.Contains(buf.String(), `"msg":"[sqlite] committed 3 bars"`) {
		t.Errorf("expected log.Printf in JSON output, got %q", buf.String())
	}
}

func TestInit_RotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "trader.log")
	var buf bytes.Buffer
	logger := Init("test-service", Options{Level: slog.LevelInfo, Output: &buf, File: path, MaxSizeMB: 1})
	defer slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	logger.Info("order emitted")
	if err := Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "order emitted") {
		t.Errorf("expected record in file, got %q", data)
	}
	if !strings.Contains(buf.String(), "order emitted") {
		t.Errorf("expected record on stdout writer too")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		" warn ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestTraceID_RoundTrip(t *testing.T) {
	ctx := context.Background()

	if tid := TraceID(ctx); tid != "" {
		t.Errorf("expected empty trace id, got %q", tid)
	}

	ctx = WithTraceID(ctx, "test-trace-123")
	if tid := TraceID(ctx); tid != "test-trace-123" {
		t.Errorf("expected 'test-trace-123', got %q", tid)
	}
}

func TestGenerateTraceID(t *testing.T) {
	ts := time.Date(2024, 1, 15, 10, 30, 0, 123456789, time.UTC)
	tid := GenerateTraceID("ETHEUR", ts)

	if !strings.HasPrefix(tid, "ETHEUR-") {
		t.Errorf("expected trace id to start with 'ETHEUR-', got %s", tid)
	}
	if !strings.Contains(tid, "123456789") {
		t.Errorf("expected trace id to contain nanoseconds, got %s", tid)
	}
}

func TestLogWithTrace(t *testing.T) {
	ctx := context.Background()

	if attrs := LogWithTrace(ctx); attrs != nil {
		t.Errorf("expected nil attrs when no trace id, got %v", attrs)
	}

	ctx = WithTraceID(ctx, "abc-123")
	if attrs := LogWithTrace(ctx); len(attrs) != 1 {
		t.Fatalf("expected one attr with trace id set, got %v", attrs)
	}
}
