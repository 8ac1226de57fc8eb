package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "nats://127.0.0.1:4222", cfg.BusURL)
	assert.Equal(t, BackendRedis, cfg.StoreBackend)
	assert.Equal(t, "certmint", cfg.StoreNamespace)
	assert.Equal(t, 3600, cfg.JobTTLSeconds)
	assert.Equal(t, 24*time.Hour, cfg.TemplateCacheTTL)
	assert.Equal(t, LayoutInline, cfg.WorkerLayout)
	assert.Equal(t, 4, cfg.ConcurrencyPerBatch)
	assert.Equal(t, 30*time.Second, cfg.DownloadTimeout)
	assert.Equal(t, 60*time.Second, cfg.UploadTimeout)
	assert.Equal(t, ":9464", cfg.OpsAddr)
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "certmint.yaml")
	content := `
bus_url: nats://bus.internal:4222
store_backend: bolt
bolt_path: /var/lib/certmint/jobs.db
job_ttl_seconds: 7200
template_cache_ttl: 2h
worker_layout: staged
queue_workers: 8
gateway_url: https://files.internal
log_level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "nats://bus.internal:4222", cfg.BusURL)
	assert.Equal(t, BackendBolt, cfg.StoreBackend)
	assert.Equal(t, "/var/lib/certmint/jobs.db", cfg.BoltPath)
	assert.Equal(t, 7200, cfg.JobTTLSeconds)
	assert.Equal(t, 2*time.Hour, cfg.TemplateCacheTTL)
	assert.Equal(t, LayoutStaged, cfg.WorkerLayout)
	assert.Equal(t, 8, cfg.QueueWorkers)
	assert.Equal(t, "https://files.internal", cfg.GatewayURL)
	assert.Equal(t, "debug", cfg.LogLevel)

	// Values the file does not set keep their defaults.
	assert.Equal(t, 4, cfg.ConcurrencyPerBatch)
	assert.Equal(t, "certmint", cfg.StoreNamespace)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/certmint.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "certmint.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store_addr: file.redis:6379\n"), 0o644))

	t.Setenv("CERTMINT_STORE_ADDR", "env.redis:6379")
	t.Setenv("CERTMINT_JOB_TTL_SECONDS", "600")
	t.Setenv("CERTMINT_TEMPLATE_CACHE_TTL", "300")
	t.Setenv("CERTMINT_DOWNLOAD_TIMEOUT", "45s")
	t.Setenv("CERTMINT_LOG_JSON", "false")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env.redis:6379", cfg.StoreAddr)
	assert.Equal(t, 600, cfg.JobTTLSeconds)
	assert.Equal(t, 300*time.Second, cfg.TemplateCacheTTL)
	assert.Equal(t, 45*time.Second, cfg.DownloadTimeout)
	assert.False(t, cfg.LogJSON)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "valid default",
			mutate:  func(c *Config) {},
			wantErr: "",
		},
		{
			name:    "missing bus url",
			mutate:  func(c *Config) { c.BusURL = "" },
			wantErr: "bus_url is required",
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.StoreBackend = "dynamo" },
			wantErr: "unknown store_backend",
		},
		{
			name: "redis backend without addr",
			mutate: func(c *Config) {
				c.StoreBackend = BackendRedis
				c.StoreAddr = ""
			},
			wantErr: "store_addr is required",
		},
		{
			name: "bolt backend without path",
			mutate: func(c *Config) {
				c.StoreBackend = BackendBolt
				c.BoltPath = ""
			},
			wantErr: "bolt_path is required",
		},
		{
			name:    "ttl below floor",
			mutate:  func(c *Config) { c.JobTTLSeconds = 59 },
			wantErr: "job_ttl_seconds must be at least 60",
		},
		{
			name:    "ttl at floor",
			mutate:  func(c *Config) { c.JobTTLSeconds = 60 },
			wantErr: "",
		},
		{
			name:    "unknown layout",
			mutate:  func(c *Config) { c.WorkerLayout = "threaded" },
			wantErr: "unknown worker_layout",
		},
		{
			name:    "zero concurrency",
			mutate:  func(c *Config) { c.ConcurrencyPerBatch = 0 },
			wantErr: "concurrency_per_batch must be at least 1",
		},
		{
			name:    "zero queue workers",
			mutate:  func(c *Config) { c.QueueWorkers = 0 },
			wantErr: "queue_workers must be at least 1",
		},
		{
			name:    "missing gateway url",
			mutate:  func(c *Config) { c.GatewayURL = "" },
			wantErr: "gateway_url is required",
		},
		{
			name:    "zero upload timeout",
			mutate:  func(c *Config) { c.UploadTimeout = 0 },
			wantErr: "must be positive",
		},
		{
			name:    "empty namespace",
			mutate:  func(c *Config) { c.StoreNamespace = "" },
			wantErr: "store_namespace is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestJobTTL(t *testing.T) {
	cfg := Default()
	cfg.JobTTLSeconds = 90
	assert.Equal(t, 90*time.Second, cfg.JobTTL())
}

func TestEnvDurationBareSeconds(t *testing.T) {
	t.Setenv("CERTMINT_CACHE_SWEEP_INTERVAL", "120")
	cfg := Default()
	cfg.applyEnv()
	assert.Equal(t, 120*time.Second, cfg.CacheSweepInterval)
}
