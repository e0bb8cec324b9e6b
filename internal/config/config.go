// Package config layers defaults, an optional YAML/JSON file and the
// environment into one Config.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds service configuration.
type Config struct {
	HTTPPort        string
	InboxDir        string
	WorkDir         string
	DBPath          string
	WorkerCount     int
	JobQueueSize    int
	JobTimeoutSec   int
	EnableWatcher   bool
	BackfillLimit   int
	SweepSchedule   string
	WebhookURL      string
	NotifyPerMinute int
	NATSURL         string
	NATSSubject     string
	CORSOrigins     []string
	LogLevel        string
	LogFormat       string
	Environment     string
	ConfigPath      string
	StrictConfig    bool
}

type fileConfig struct {
	HTTPPort      string           `json:"http_port" yaml:"http_port"`
	InboxDir      string           `json:"inbox_dir" yaml:"inbox_dir"`
	WorkDir       string           `json:"work_dir" yaml:"work_dir"`
	DBPath        string           `json:"db_path" yaml:"db_path"`
	WorkerCount   *int             `json:"worker_count" yaml:"worker_count"`
	JobQueueSize  *int             `json:"job_queue_size" yaml:"job_queue_size"`
	JobTimeoutSec *int             `json:"job_timeout_sec" yaml:"job_timeout_sec"`
	EnableWatcher *bool            `json:"enable_watcher" yaml:"enable_watcher"`
	BackfillLimit *int             `json:"backfill_limit" yaml:"backfill_limit"`
	SweepSchedule *string          `json:"sweep_schedule" yaml:"sweep_schedule"`
	Notify        notifyFileConfig `json:"notify" yaml:"notify"`
	CORSOrigins   []string         `json:"cors_origins" yaml:"cors_origins"`
}

type notifyFileConfig struct {
	WebhookURL  string `json:"webhook_url" yaml:"webhook_url"`
	PerMinute   *int   `json:"per_minute" yaml:"per_minute"`
	NATSURL     string `json:"nats_url" yaml:"nats_url"`
	NATSSubject string `json:"nats_subject" yaml:"nats_subject"`
}

const (
	defaultPort            = ":8080"
	defaultInboxDir        = "runtime/inbox"
	defaultWorkDir         = "runtime/work"
	defaultDBFile          = "repairdesk.db"
	minQueueSize           = 1
	defaultQueueSize       = 100
	maxQueueSize           = 1024
	defaultWorkerCount     = 4
	defaultJobTimeoutSec   = 60
	defaultBackfillLimit   = 50
	maxBackfillLimit       = 500
	defaultSweepSchedule   = "@every 6h"
	defaultNotifyPerMinute = 30
	defaultNATSSubject     = "repairdesk.repeat_risk"
)

// Load reads configuration from .env, the config file and the environment.
func Load() (Config, error) {
	// .env never overrides variables that are already set.
	_ = godotenv.Load()

	cfg := Config{
		WorkerCount:     defaultWorkerCount,
		JobQueueSize:    defaultQueueSize,
		JobTimeoutSec:   defaultJobTimeoutSec,
		EnableWatcher:   true,
		BackfillLimit:   defaultBackfillLimit,
		SweepSchedule:   defaultSweepSchedule,
		NotifyPerMinute: defaultNotifyPerMinute,
		NATSSubject:     defaultNATSSubject,
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       strings.ToLower(getEnv("LOG_FORMAT", "text")),
		Environment:     getEnv("APP_ENV", "development"),
		StrictConfig:    parseBoolEnv("STRICT_CONFIG"),
	}

	cfg.ConfigPath = getEnv("CONFIG_PATH", filepath.Join("config", "config.yaml"))
	fileCfg, fileErr := loadFileConfig(cfg.ConfigPath)
	if fileErr != nil {
		if cfg.StrictConfig {
			return cfg, fmt.Errorf("config load failed (%s): %w", cfg.ConfigPath, fileErr)
		}
		if !errors.Is(fileErr, os.ErrNotExist) {
			slog.Warn("config load failed, using defaults", "path", cfg.ConfigPath, "err", fileErr)
		}
	}
	applyFileOverrides(&cfg, fileCfg)

	cfg.InboxDir = firstNonEmpty(os.Getenv("INBOX_DIR"), fileCfg.InboxDir, defaultInboxDir)
	cfg.WorkDir = firstNonEmpty(os.Getenv("WORK_DIR"), fileCfg.WorkDir, defaultWorkDir)
	cfg.DBPath = firstNonEmpty(os.Getenv("DB_PATH"), fileCfg.DBPath, filepath.Join(cfg.WorkDir, defaultDBFile))

	cfg.HTTPPort = firstNonEmpty(os.Getenv("HTTP_PORT"), os.Getenv("PORT"), fileCfg.HTTPPort, defaultPort)
	if !strings.HasPrefix(cfg.HTTPPort, ":") && !strings.Contains(cfg.HTTPPort, ":") {
		cfg.HTTPPort = ":" + cfg.HTTPPort
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"WORKER_COUNT", &cfg.WorkerCount},
		{"JOB_QUEUE_SIZE", &cfg.JobQueueSize},
		{"JOB_TIMEOUT_SEC", &cfg.JobTimeoutSec},
		{"BACKFILL_LIMIT", &cfg.BackfillLimit},
		{"NOTIFY_PER_MINUTE", &cfg.NotifyPerMinute},
	}
	for _, it := range ints {
		v, ok, err := parseIntEnv(it.key)
		if err != nil {
			if cfg.StrictConfig {
				return cfg, fmt.Errorf("invalid %s: %w", it.key, err)
			}
			slog.Warn("invalid integer setting, using default", "key", it.key, "err", err)
			continue
		}
		if ok {
			*it.dst = v
		}
	}

	if v := strings.TrimSpace(os.Getenv("ENABLE_WATCHER")); v != "" {
		cfg.EnableWatcher = parseBoolEnv("ENABLE_WATCHER")
	}
	if v, ok := os.LookupEnv("SWEEP_SCHEDULE"); ok {
		cfg.SweepSchedule = strings.TrimSpace(v)
	}
	cfg.WebhookURL = firstNonEmpty(os.Getenv("WEBHOOK_URL"), fileCfg.Notify.WebhookURL)
	cfg.NATSURL = firstNonEmpty(os.Getenv("NATS_URL"), fileCfg.Notify.NATSURL)
	cfg.NATSSubject = firstNonEmpty(os.Getenv("NATS_SUBJECT"), fileCfg.Notify.NATSSubject, cfg.NATSSubject)
	if v := os.Getenv("CORS_ORIGINS"); strings.TrimSpace(v) != "" {
		cfg.CORSOrigins = splitList(v)
	}

	normalize(&cfg)

	if err := validateConfig(cfg); err != nil {
		if cfg.StrictConfig {
			return cfg, err
		}
		slog.Warn("config validation failed, continuing", "err", err)
	}
	return cfg, nil
}

// JobTimeout returns the per-job timeout as a duration.
func (c Config) JobTimeout() time.Duration {
	return time.Duration(c.JobTimeoutSec) * time.Second
}

// ProcessedDir is where imported ledger files are moved.
func (c Config) ProcessedDir() string {
	return filepath.Join(c.WorkDir, "processed")
}

func applyFileOverrides(cfg *Config, f fileConfig) {
	if f.WorkerCount != nil {
		cfg.WorkerCount = *f.WorkerCount
	}
	if f.JobQueueSize != nil {
		cfg.JobQueueSize = *f.JobQueueSize
	}
	if f.JobTimeoutSec != nil && *f.JobTimeoutSec > 0 {
		cfg.JobTimeoutSec = *f.JobTimeoutSec
	}
	if f.EnableWatcher != nil {
		cfg.EnableWatcher = *f.EnableWatcher
	}
	if f.BackfillLimit != nil {
		cfg.BackfillLimit = *f.BackfillLimit
	}
	if f.SweepSchedule != nil {
		cfg.SweepSchedule = strings.TrimSpace(*f.SweepSchedule)
	}
	if f.Notify.PerMinute != nil {
		cfg.NotifyPerMinute = *f.Notify.PerMinute
	}
	if len(f.CORSOrigins) > 0 {
		cfg.CORSOrigins = f.CORSOrigins
	}
}

// normalize clamps numeric settings into their supported ranges.
func normalize(cfg *Config) {
	if cfg.WorkerCount <= 0 {
		slog.Warn("WORKER_COUNT must be positive, using default", "value", cfg.WorkerCount, "default", defaultWorkerCount)
		cfg.WorkerCount = defaultWorkerCount
	}
	if cfg.JobQueueSize < minQueueSize {
		cfg.JobQueueSize = minQueueSize
	}
	if cfg.JobQueueSize > maxQueueSize {
		slog.Warn("JOB_QUEUE_SIZE capped", "value", cfg.JobQueueSize, "max", maxQueueSize)
		cfg.JobQueueSize = maxQueueSize
	}
	if cfg.JobQueueSize < cfg.WorkerCount {
		slog.Warn("JOB_QUEUE_SIZE must be >= WORKER_COUNT", "queue", cfg.JobQueueSize, "workers", cfg.WorkerCount)
		cfg.JobQueueSize = max(defaultQueueSize, cfg.WorkerCount)
	}
	if cfg.JobTimeoutSec <= 0 {
		cfg.JobTimeoutSec = defaultJobTimeoutSec
	}
	if cfg.BackfillLimit < 0 {
		cfg.BackfillLimit = 0
	}
	if cfg.BackfillLimit > maxBackfillLimit {
		cfg.BackfillLimit = maxBackfillLimit
	}
	if cfg.NotifyPerMinute <= 0 {
		cfg.NotifyPerMinute = defaultNotifyPerMinute
	}
}

func loadFileConfig(path string) (fileConfig, error) {
	var cfg fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if len(data) == 0 {
		return cfg, errors.New("empty config file")
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

func validateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.InboxDir) == "" {
		return errors.New("INBOX_DIR is required")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return errors.New("DB_PATH is required")
	}
	if cfg.WebhookURL != "" && !strings.HasPrefix(cfg.WebhookURL, "http://") && !strings.HasPrefix(cfg.WebhookURL, "https://") {
		return fmt.Errorf("WEBHOOK_URL must be http(s), got %q", cfg.WebhookURL)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, val := range values {
		if strings.TrimSpace(val) != "" {
			return strings.TrimSpace(val)
		}
	}
	return ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBoolEnv(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseIntEnv(key string) (int, bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0, false, nil
	}
	val, err := strconv.Atoi(raw)
	return val, true, err
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Now returns utc time helper for deterministic timestamps.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}
