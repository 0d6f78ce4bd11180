// Package config loads runtime configuration from an optional YAML file and
// LEDGER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. LEDGER_AI_ENABLED.
const EnvPrefix = "LEDGER"

// Config is the fully resolved configuration.
type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Blob       BlobConfig       `mapstructure:"blob"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Stream     StreamConfig     `mapstructure:"stream"`
	AI         AIConfig         `mapstructure:"ai"`
	Categorize CategorizeConfig `mapstructure:"categorize"`
	Rules      RulesConfig      `mapstructure:"rules"`
	Store      StoreConfig      `mapstructure:"store"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type StorageConfig struct {
	Driver   string         `mapstructure:"driver"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	BigQuery BigQueryConfig `mapstructure:"bigquery"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type BigQueryConfig struct {
	Project string `mapstructure:"project"`
	Dataset string `mapstructure:"dataset"`
}

type BlobConfig struct {
	Bucket string `mapstructure:"bucket"`
}

type QueueConfig struct {
	Driver            string        `mapstructure:"driver"`
	VisibilityTimeout time.Duration `mapstructure:"visibility_timeout"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	BatchSize         int           `mapstructure:"batch_size"`
}

type StreamConfig struct {
	BatchSize    int           `mapstructure:"batch_size"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// AIConfig controls the inference fallback used when no rule matches.
type AIConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Model         string        `mapstructure:"model"`
	EmbedModel    string        `mapstructure:"embed_model"`
	Embeddings    bool          `mapstructure:"embeddings"`
	MinConfidence float64       `mapstructure:"min_confidence"`
	Timeout       time.Duration `mapstructure:"timeout"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
	Tagger        string        `mapstructure:"tagger"`
}

type CategorizeConfig struct {
	// Mode is "stream" (change feed drives categorization) or "direct"
	// (the file worker categorizes right after saving).
	Mode string `mapstructure:"mode"`
}

type RulesConfig struct {
	DefaultTenant string `mapstructure:"default_tenant"`
}

type StoreConfig struct {
	ChunkSize int `mapstructure:"chunk_size"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.sqlite.path", "ledger.db")
	v.SetDefault("storage.bigquery.project", "")
	v.SetDefault("storage.bigquery.dataset", "ledger")

	v.SetDefault("blob.bucket", "")

	v.SetDefault("queue.driver", "sqlite")
	v.SetDefault("queue.visibility_timeout", 5*time.Minute)
	v.SetDefault("queue.poll_interval", 2*time.Second)
	v.SetDefault("queue.batch_size", 1)

	v.SetDefault("stream.batch_size", 25)
	v.SetDefault("stream.poll_interval", time.Second)

	v.SetDefault("ai.enabled", false)
	v.SetDefault("ai.model", "gemini-2.5-flash")
	v.SetDefault("ai.embed_model", "text-embedding-004")
	v.SetDefault("ai.embeddings", false)
	v.SetDefault("ai.min_confidence", 0.5)
	v.SetDefault("ai.timeout", 20*time.Second)
	v.SetDefault("ai.cache_ttl", 15*time.Minute)
	v.SetDefault("ai.tagger", "BEDROCK")

	v.SetDefault("categorize.mode", "stream")
	v.SetDefault("rules.default_tenant", "GLOBAL")
	v.SetDefault("store.chunk_size", 25)
}

// Load reads configuration from path (optional) and the environment.
// An empty path searches ./ledger.yaml and $HOME/.config/ledger/ledger.yaml.
func Load(path string) (*Config, error) {
	return LoadWith(viper.New(), path)
}

// LoadWith is Load on a caller-supplied viper instance, which lets command
// line flags bound to v take precedence.
func LoadWith(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("ledger")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/ledger")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read %q: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the binaries cannot run with.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.SQLite.Path == "" {
			return fmt.Errorf("config: storage.sqlite.path is required")
		}
	case "bigquery":
		if c.Storage.BigQuery.Project == "" {
			return fmt.Errorf("config: storage.bigquery.project is required for the bigquery driver")
		}
	default:
		return fmt.Errorf("config: unknown storage.driver %q", c.Storage.Driver)
	}

	switch c.Queue.Driver {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("config: unknown queue.driver %q", c.Queue.Driver)
	}

	switch c.Categorize.Mode {
	case "stream", "direct":
	default:
		return fmt.Errorf("config: unknown categorize.mode %q", c.Categorize.Mode)
	}

	if c.AI.MinConfidence < 0 || c.AI.MinConfidence > 1 {
		return fmt.Errorf("config: ai.min_confidence must be within [0,1], got %v", c.AI.MinConfidence)
	}
	if c.Store.ChunkSize <= 0 {
		return fmt.Errorf("config: store.chunk_size must be positive")
	}
	if c.Rules.DefaultTenant == "" {
		return fmt.Errorf("config: rules.default_tenant is required")
	}
	return nil
}
