package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Worker layouts supported by the orchestrator.
const (
	LayoutInline = "inline"
	LayoutStaged = "staged"
)

// Job store backends.
const (
	BackendRedis = "redis"
	BackendBolt  = "bolt"
)

// Config holds all runtime settings for the certmint worker. Values are
// resolved in order: defaults, YAML file, then CERTMINT_* environment
// variables. The environment always wins.
type Config struct {
	// Bus settings
	BusURL  string `yaml:"bus_url"`
	BusName string `yaml:"bus_name"`

	// Job store settings
	StoreBackend   string `yaml:"store_backend"`
	StoreAddr      string `yaml:"store_addr"`
	StorePassword  string `yaml:"store_password"`
	StoreDB        int    `yaml:"store_db"`
	StoreNamespace string `yaml:"store_namespace"`
	BoltPath       string `yaml:"bolt_path"`

	// Job and template lifetimes
	JobTTLSeconds    int           `yaml:"job_ttl_seconds"`
	TemplateCacheTTL time.Duration `yaml:"template_cache_ttl"`

	// Filesystem layout
	CacheDir   string `yaml:"cache_dir"`
	ScratchDir string `yaml:"scratch_dir"`

	// Template cache sweep
	CacheSweepInterval time.Duration `yaml:"cache_sweep_interval"`

	// Orchestration
	WorkerLayout        string `yaml:"worker_layout"`
	ConcurrencyPerBatch int    `yaml:"concurrency_per_batch"`
	QueueWorkers        int    `yaml:"queue_workers"`

	// File gateway
	GatewayURL       string        `yaml:"gateway_url"`
	GatewayAccessKey string        `yaml:"gateway_access_key"`
	GatewaySecretKey string        `yaml:"gateway_secret_key"`
	GatewayProjectID string        `yaml:"gateway_project_id"`
	DownloadTimeout  time.Duration `yaml:"download_timeout"`
	UploadTimeout    time.Duration `yaml:"upload_timeout"`

	// Observability
	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`
	OpsAddr  string `yaml:"ops_addr"`
}

// Default returns a Config populated with working defaults. The result is
// usable as-is against local NATS and Redis instances.
func Default() *Config {
	return &Config{
		BusURL:              "nats://127.0.0.1:4222",
		BusName:             "certmint",
		StoreBackend:        BackendRedis,
		StoreAddr:           "127.0.0.1:6379",
		StoreDB:             0,
		StoreNamespace:      "certmint",
		BoltPath:            filepath.Join(os.TempDir(), "certmint", "jobs.db"),
		JobTTLSeconds:       3600,
		TemplateCacheTTL:    24 * time.Hour,
		CacheDir:            filepath.Join(os.TempDir(), "certmint", "templates"),
		ScratchDir:          filepath.Join(os.TempDir(), "certmint", "scratch"),
		CacheSweepInterval:  time.Hour,
		WorkerLayout:        LayoutInline,
		ConcurrencyPerBatch: 4,
		QueueWorkers:        4,
		GatewayURL:          "http://127.0.0.1:8081",
		DownloadTimeout:     30 * time.Second,
		UploadTimeout:       60 * time.Second,
		LogLevel:            "info",
		LogJSON:             true,
		OpsAddr:             ":9464",
	}
}

// Load resolves configuration from the given YAML file path and the
// environment. An empty path skips the file step. A .env file in the
// working directory is honored when present.
func Load(path string) (*Config, error) {
	// Populate the process environment from .env before reading overrides.
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides fields from CERTMINT_* environment variables.
func (c *Config) applyEnv() {
	envString("CERTMINT_BUS_URL", &c.BusURL)
	envString("CERTMINT_BUS_NAME", &c.BusName)

	envString("CERTMINT_STORE_BACKEND", &c.StoreBackend)
	envString("CERTMINT_STORE_ADDR", &c.StoreAddr)
	envString("CERTMINT_STORE_PASSWORD", &c.StorePassword)
	envInt("CERTMINT_STORE_DB", &c.StoreDB)
	envString("CERTMINT_STORE_NAMESPACE", &c.StoreNamespace)
	envString("CERTMINT_BOLT_PATH", &c.BoltPath)

	envInt("CERTMINT_JOB_TTL_SECONDS", &c.JobTTLSeconds)
	envDuration("CERTMINT_TEMPLATE_CACHE_TTL", &c.TemplateCacheTTL)

	envString("CERTMINT_CACHE_DIR", &c.CacheDir)
	envString("CERTMINT_SCRATCH_DIR", &c.ScratchDir)
	envDuration("CERTMINT_CACHE_SWEEP_INTERVAL", &c.CacheSweepInterval)

	envString("CERTMINT_WORKER_LAYOUT", &c.WorkerLayout)
	envInt("CERTMINT_CONCURRENCY_PER_BATCH", &c.ConcurrencyPerBatch)
	envInt("CERTMINT_QUEUE_WORKERS", &c.QueueWorkers)

	envString("CERTMINT_GATEWAY_URL", &c.GatewayURL)
	envString("CERTMINT_GATEWAY_ACCESS_KEY", &c.GatewayAccessKey)
	envString("CERTMINT_GATEWAY_SECRET_KEY", &c.GatewaySecretKey)
	envString("CERTMINT_GATEWAY_PROJECT_ID", &c.GatewayProjectID)
	envDuration("CERTMINT_DOWNLOAD_TIMEOUT", &c.DownloadTimeout)
	envDuration("CERTMINT_UPLOAD_TIMEOUT", &c.UploadTimeout)

	envString("CERTMINT_LOG_LEVEL", &c.LogLevel)
	envBool("CERTMINT_LOG_JSON", &c.LogJSON)
	envString("CERTMINT_OPS_ADDR", &c.OpsAddr)
}

// Validate checks the configuration for values the worker cannot run with.
func (c *Config) Validate() error {
	if c.BusURL == "" {
		return fmt.Errorf("bus_url is required")
	}
	switch c.StoreBackend {
	case BackendRedis:
		if c.StoreAddr == "" {
			return fmt.Errorf("store_addr is required for the redis backend")
		}
	case BackendBolt:
		if c.BoltPath == "" {
			return fmt.Errorf("bolt_path is required for the bolt backend")
		}
	default:
		return fmt.Errorf("unknown store_backend %q (want %q or %q)", c.StoreBackend, BackendRedis, BackendBolt)
	}
	if c.StoreNamespace == "" {
		return fmt.Errorf("store_namespace is required")
	}
	if c.JobTTLSeconds < 60 {
		return fmt.Errorf("job_ttl_seconds must be at least 60, got %d", c.JobTTLSeconds)
	}
	if c.TemplateCacheTTL <= 0 {
		return fmt.Errorf("template_cache_ttl must be positive, got %s", c.TemplateCacheTTL)
	}
	switch c.WorkerLayout {
	case LayoutInline, LayoutStaged:
	default:
		return fmt.Errorf("unknown worker_layout %q (want %q or %q)", c.WorkerLayout, LayoutInline, LayoutStaged)
	}
	if c.ConcurrencyPerBatch < 1 {
		return fmt.Errorf("concurrency_per_batch must be at least 1, got %d", c.ConcurrencyPerBatch)
	}
	if c.QueueWorkers < 1 {
		return fmt.Errorf("queue_workers must be at least 1, got %d", c.QueueWorkers)
	}
	if c.GatewayURL == "" {
		return fmt.Errorf("gateway_url is required")
	}
	if c.DownloadTimeout <= 0 || c.UploadTimeout <= 0 {
		return fmt.Errorf("download_timeout and upload_timeout must be positive")
	}
	return nil
}

// JobTTL returns the job record lifetime as a duration.
func (c *Config) JobTTL() time.Duration {
	return time.Duration(c.JobTTLSeconds) * time.Second
}

func envString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			*dst = true
		case "0", "false", "no", "off":
			*dst = false
		}
	}
}

// envDuration accepts Go duration strings ("90s", "1h") and falls back to
// bare integers interpreted as seconds.
func envDuration(key string, dst *time.Duration) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(n) * time.Second
	}
}
