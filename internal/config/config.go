// Package config loads pipeline configuration from a YAML file with
// environment-variable overrides for secrets and deployment-specific
// values, mirroring the teacher's two-layer configuration split.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration object for fxtickd.
type Config struct {
	Lake     LakeConfig     `yaml:"lake"`
	Postgres PostgresConfig `yaml:"postgres"`
	Batcher  BatcherConfig  `yaml:"batcher"`
	Importer ImporterConfig `yaml:"importer"`
	Venues   []VenueConfig  `yaml:"venues"`
	LogLevel string         `yaml:"log_level"`
}

// LakeConfig describes the object-store data lake.
type LakeConfig struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`        // non-empty for S3-compatible (non-AWS) endpoints
	AccessKeyID     string `yaml:"-"`                // env-only: LAKE_ACCESS_KEY_ID
	SecretAccessKey string `yaml:"-"`                // env-only: LAKE_SECRET_ACCESS_KEY
}

// PostgresConfig describes the relational candle store.
type PostgresConfig struct {
	DSN             string        `yaml:"-"` // env-only: PG_DSN
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`
}

// BatcherConfig mirrors spec.md §4.C's enumerated tunables.
type BatcherConfig struct {
	MaxBatchSize  int           `yaml:"max_batch_size"`
	MaxBatchAge   time.Duration `yaml:"max_batch_age"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// ImporterConfig mirrors spec.md §4.D's chunking and pacing tunables.
type ImporterConfig struct {
	DefaultChunkHours int           `yaml:"default_chunk_hours"`
	BetweenChunkDelay time.Duration `yaml:"between_chunk_delay"`
	TransientRetries  int           `yaml:"transient_retries"`
	DailyRequestLimit int64         `yaml:"daily_request_limit"`
	ProviderBaseURL   string        `yaml:"provider_base_url"`
	ProviderRPS       float64       `yaml:"provider_rps"`
	ProviderBurst     int           `yaml:"provider_burst"`
	ProviderAPIKey    string        `yaml:"-"` // env-only: HISTORICAL_PROVIDER_API_KEY
}

// VenueConfig names one upstream broker venue and its session kind.
type VenueConfig struct {
	Name       string `yaml:"name"`
	Kind       string `yaml:"kind"`        // "ws" | "http-stream" | "mock"
	AssetClass string `yaml:"asset_class"` // "forex" | "crypto", used by the router's subscribe heuristic
	Endpoint   string `yaml:"endpoint"`
	APIKey     string `yaml:"-"` // env-only: <NAME>_API_KEY
	AccountID  string `yaml:"-"` // env-only: <NAME>_ACCOUNT_ID
}

// Default returns the baseline configuration, matching spec.md §4.C/§4.D
// defaults (1000 ticks / 5m / 1m sweep; 24h chunk / 10s pacing / 1 retry).
func Default() *Config {
	return &Config{
		Lake: LakeConfig{
			Bucket: "fx-ticks",
			Region: "us-east-1",
		},
		Postgres: PostgresConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: time.Hour,
			QueryTimeout:    10 * time.Second,
		},
		Batcher: BatcherConfig{
			MaxBatchSize:  1000,
			MaxBatchAge:   5 * time.Minute,
			SweepInterval: time.Minute,
		},
		Importer: ImporterConfig{
			DefaultChunkHours: 24,
			BetweenChunkDelay: 10 * time.Second,
			TransientRetries:  1,
			DailyRequestLimit: 10000,
			ProviderRPS:       5,
			ProviderBurst:     5,
		},
		LogLevel: "info",
	}
}

// Load reads path as YAML (if it exists) over the default configuration,
// then applies environment-variable overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PG_DSN"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("PG_MAX_OPEN_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.MaxOpenConns = n
		}
	}
	if v := os.Getenv("LAKE_BUCKET"); v != "" {
		cfg.Lake.Bucket = v
	}
	if v := os.Getenv("LAKE_ENDPOINT"); v != "" {
		cfg.Lake.Endpoint = v
	}
	if v := os.Getenv("LAKE_ACCESS_KEY_ID"); v != "" {
		cfg.Lake.AccessKeyID = v
	}
	if v := os.Getenv("LAKE_SECRET_ACCESS_KEY"); v != "" {
		cfg.Lake.SecretAccessKey = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("HISTORICAL_PROVIDER_API_KEY"); v != "" {
		cfg.Importer.ProviderAPIKey = v
	}
	if v := os.Getenv("HISTORICAL_PROVIDER_BASE_URL"); v != "" {
		cfg.Importer.ProviderBaseURL = v
	}

	for i := range cfg.Venues {
		venue := &cfg.Venues[i]
		envPrefix := envSafe(venue.Name)
		if v := os.Getenv(envPrefix + "_API_KEY"); v != "" {
			venue.APIKey = v
		}
		if v := os.Getenv(envPrefix + "_ACCOUNT_ID"); v != "" {
			venue.AccountID = v
		}
	}
}

func envSafe(name string) string {
	out := make([]byte, 0, len(name))
	for _, r := range name {
		if r >= 'a' && r <= 'z' {
			r -= 'a' - 'A'
		}
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, byte(r))
		} else {
			out = append(out, '_')
		}
	}
	return string(out)
}

// Validate checks the structural invariants Load relies on.
func (c *Config) Validate() error {
	if c.Batcher.MaxBatchSize <= 0 {
		return fmt.Errorf("config: batcher.max_batch_size must be positive")
	}
	if c.Batcher.MaxBatchAge <= 0 {
		return fmt.Errorf("config: batcher.max_batch_age must be positive")
	}
	if c.Importer.DefaultChunkHours <= 0 {
		return fmt.Errorf("config: importer.default_chunk_hours must be positive")
	}
	if c.Importer.BetweenChunkDelay < 0 {
		return fmt.Errorf("config: importer.between_chunk_delay must be non-negative")
	}
	return nil
}
