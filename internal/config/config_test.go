package config

import (
	"os"
	"path/filepath"
	"testing"
)

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
}

func TestDefaults(t *testing.T) {
	isolate(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.HTTPPort != defaultPort || cfg.WorkerCount != defaultWorkerCount || cfg.SweepSchedule != defaultSweepSchedule {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.DBPath != filepath.Join(defaultWorkDir, defaultDBFile) {
		t.Fatalf("unexpected db path %s", cfg.DBPath)
	}
}

func TestBackfillLimitClamp(t *testing.T) {
	isolate(t)
	t.Setenv("BACKFILL_LIMIT", "2000")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.BackfillLimit != maxBackfillLimit {
		t.Fatalf("expected backfill limit %d, got %d", maxBackfillLimit, cfg.BackfillLimit)
	}
}

func TestQueueSizeDefaultsRespectWorkers(t *testing.T) {
	isolate(t)
	t.Setenv("WORKER_COUNT", "8")
	t.Setenv("JOB_QUEUE_SIZE", "4")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.WorkerCount != 8 {
		t.Fatalf("expected worker count 8, got %d", cfg.WorkerCount)
	}
	if cfg.JobQueueSize < cfg.WorkerCount {
		t.Fatalf("queue size should be at least workers, got %d", cfg.JobQueueSize)
	}
}

func TestHTTPPortDefaultFormatting(t *testing.T) {
	isolate(t)
	t.Setenv("HTTP_PORT", "9000")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.HTTPPort != ":9000" {
		t.Fatalf("expected HTTP_PORT to include colon, got %s", cfg.HTTPPort)
	}
}

func TestFileThenEnvLayering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "inbox_dir: /data/inbox\nworker_count: 2\nsweep_schedule: \"\"\nnotify:\n  webhook_url: https://hooks.example.com/a\n  per_minute: 5\ncors_origins: [\"https://pos.example.com\"]\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("WORKER_COUNT", "6")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.InboxDir != "/data/inbox" {
		t.Fatalf("expected inbox from file, got %s", cfg.InboxDir)
	}
	if cfg.WorkerCount != 6 {
		t.Fatalf("env should override file, got %d", cfg.WorkerCount)
	}
	if cfg.SweepSchedule != "" {
		t.Fatalf("empty schedule in file should disable sweep, got %q", cfg.SweepSchedule)
	}
	if cfg.WebhookURL != "https://hooks.example.com/a" || cfg.NotifyPerMinute != 5 {
		t.Fatalf("unexpected notify settings %+v", cfg)
	}
	if len(cfg.CORSOrigins) != 1 {
		t.Fatalf("unexpected cors origins %v", cfg.CORSOrigins)
	}
}

func TestStrictConfigRejectsBadInt(t *testing.T) {
	isolate(t)
	t.Setenv("STRICT_CONFIG", "true")
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"inbox_dir":"in"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("JOB_TIMEOUT_SEC", "soon")
	if _, err := Load(); err == nil {
		t.Fatal("expected strict mode to reject JOB_TIMEOUT_SEC")
	}
}

func TestStrictConfigMissingFile(t *testing.T) {
	isolate(t)
	t.Setenv("STRICT_CONFIG", "1")
	if _, err := Load(); err == nil {
		t.Fatal("expected strict mode to fail on missing file")
	}
}

func TestCORSOriginsFromEnv(t *testing.T) {
	isolate(t)
	t.Setenv("CORS_ORIGINS", "https://a.example.com, https://b.example.com,")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example.com" {
		t.Fatalf("unexpected origins %v", cfg.CORSOrigins)
	}
}
