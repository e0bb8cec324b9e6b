package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestFromConfig(t *testing.T) {
	cfg := FromConfig("debug", "", "development")
	if cfg.Level != slog.LevelDebug || cfg.Format != "text" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if FromConfig("info", "text", "production").Format != "json" {
		t.Fatal("production must force json")
	}
	if FromConfig("nonsense", "", "").Level != slog.LevelInfo {
		t.Fatal("unknown level should default to info")
	}
}

func TestJSONLoggerWithComponent(t *testing.T) {
	var buf bytes.Buffer
	log := WithComponent(New(Config{Level: slog.LevelInfo, Format: "json", Output: &buf}), "store")
	log.Info("opened", "path", "x.db")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("invalid json line %q: %v", buf.String(), err)
	}
	if line["component"] != "store" || line["path"] != "x.db" {
		t.Fatalf("unexpected line %v", line)
	}
}

func TestTextLoggerFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: slog.LevelWarn, Format: "text", Output: &buf})
	log.Info("hidden")
	log.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestRequestID(t *testing.T) {
	id := GenerateRequestID()
	ctx := WithRequestID(context.Background(), id)
	if RequestID(ctx) != id {
		t.Fatal("request id not stored")
	}
	if RequestID(context.Background()) != "" {
		t.Fatal("expected empty request id")
	}
}
