package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestNewJSONLoggerToWritesEventRecords(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLoggerTo(&buf, "dviz-api", "warn")

	logger.Info("turn_completed")
	logger.Warn("rerank_fallback", "items", 3)

	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &record); err != nil {
		t.Fatalf("expected exactly one JSON record, got %q: %v", buf.String(), err)
	}
	if record["event"] != "rerank_fallback" || record["service"] != "dviz-api" {
		t.Fatalf("unexpected record %v", record)
	}
	if _, ok := record["msg"]; ok {
		t.Fatalf("msg key should be renamed: %v", record)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
