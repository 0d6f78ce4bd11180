package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "ledger.db", cfg.Storage.SQLite.Path)
	assert.Equal(t, 5*time.Minute, cfg.Queue.VisibilityTimeout)
	assert.False(t, cfg.AI.Enabled)
	assert.Equal(t, 0.5, cfg.AI.MinConfidence)
	assert.Equal(t, "BEDROCK", cfg.AI.Tagger)
	assert.Equal(t, "stream", cfg.Categorize.Mode)
	assert.Equal(t, "GLOBAL", cfg.Rules.DefaultTenant)
	assert.Equal(t, 25, cfg.Store.ChunkSize)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  driver: sqlite
  sqlite:
    path: /var/lib/ledger/ledger.db
ai:
  enabled: true
  min_confidence: 0.6
categorize:
  mode: direct
`), 0o600))

	t.Setenv("LEDGER_AI_MODEL", "gemini-2.0-flash")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/ledger/ledger.db", cfg.Storage.SQLite.Path)
	assert.True(t, cfg.AI.Enabled)
	assert.Equal(t, 0.6, cfg.AI.MinConfidence)
	assert.Equal(t, "gemini-2.0-flash", cfg.AI.Model)
	assert.Equal(t, "direct", cfg.Categorize.Mode)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Storage:    StorageConfig{Driver: "sqlite", SQLite: SQLiteConfig{Path: "x.db"}},
			Queue:      QueueConfig{Driver: "memory"},
			Categorize: CategorizeConfig{Mode: "stream"},
			AI:         AIConfig{MinConfidence: 0.5},
			Rules:      RulesConfig{DefaultTenant: "GLOBAL"},
			Store:      StoreConfig{ChunkSize: 25},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"bigquery without project", func(c *Config) { c.Storage.Driver = "bigquery" }, true},
		{"bigquery with project", func(c *Config) {
			c.Storage.Driver = "bigquery"
			c.Storage.BigQuery.Project = "p"
		}, false},
		{"unknown storage", func(c *Config) { c.Storage.Driver = "mongo" }, true},
		{"unknown queue", func(c *Config) { c.Queue.Driver = "sqs" }, true},
		{"unknown mode", func(c *Config) { c.Categorize.Mode = "batch" }, true},
		{"confidence out of range", func(c *Config) { c.AI.MinConfidence = 1.5 }, true},
		{"zero chunk size", func(c *Config) { c.Store.ChunkSize = 0 }, true},
		{"no default tenant", func(c *Config) { c.Rules.DefaultTenant = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
