package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsAndFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
detect:
  concurrency: 2
  request_delay: 250ms
dispatch:
  batch_size: 10
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Detect.Concurrency)
	assert.Equal(t, 250*time.Millisecond, cfg.Detect.RequestDelay)
	assert.Equal(t, 30*time.Second, cfg.Detect.Timeout)
	assert.Equal(t, 10, cfg.Dispatch.BatchSize)
	assert.Equal(t, 5, cfg.Dispatch.MaxAttempts)
	assert.Equal(t, "database", cfg.Dispatch.LockBackend)
	assert.Equal(t, "openai", cfg.Extraction.Provider)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("DETECT_SOURCE", "upsc")
	t.Setenv("DRAIN_SECRET", "s3cret")
	t.Setenv("DETECT_CONCURRENCY", "1")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "upsc", cfg.Detect.SourceID)
	assert.Equal(t, "s3cret", cfg.Dispatch.Secret)
	assert.Equal(t, 1, cfg.Detect.Concurrency)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "unknown provider", mutate: func(c *Config) { c.Extraction.Provider = "bard" }, wantErr: true},
		{name: "redis lock without address", mutate: func(c *Config) { c.Dispatch.LockBackend = "redis" }, wantErr: true},
		{name: "redis lock with address", mutate: func(c *Config) {
			c.Dispatch.LockBackend = "redis"
			c.Redis.Address = "localhost:6379"
		}},
		{name: "zero attempts", mutate: func(c *Config) { c.Dispatch.MaxAttempts = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Detect:     DetectConfig{Concurrency: 3},
				Extraction: ExtractionConfig{Provider: "anthropic"},
				Dispatch:   DispatchConfig{LockBackend: "database", MaxAttempts: 3},
			}
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDatabaseDSN(t *testing.T) {
	sqlite := &DatabaseConfig{Driver: "sqlite", Path: "/tmp/x.db"}
	assert.Equal(t, "/tmp/x.db", sqlite.DSN())

	pg := &DatabaseConfig{Driver: "postgres", Host: "db", User: "u", Password: "p", DBName: "exams"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=exams sslmode=disable", pg.DSN())

	pg.URL = "postgres://u:p@db/exams"
	assert.Equal(t, "postgres://u:p@db/exams", pg.DSN())
}
