package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Brave     BraveConfig     `yaml:"brave" mapstructure:"brave"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Worker    WorkerConfig    `yaml:"worker" mapstructure:"worker"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures where job documents live.
type StoreConfig struct {
	Driver      string   `yaml:"driver" mapstructure:"driver"`
	Dir         string   `yaml:"dir" mapstructure:"dir"`
	DatabaseURL string   `yaml:"database_url" mapstructure:"database_url"`
	S3          S3Config `yaml:"s3" mapstructure:"s3"`
}

// S3Config locates the object bucket for the s3 driver and for uploads.
type S3Config struct {
	Bucket string `yaml:"bucket" mapstructure:"bucket"`
	Region string `yaml:"region" mapstructure:"region"`
	Prefix string `yaml:"prefix" mapstructure:"prefix"`
}

// CacheConfig configures the read cache in front of the store.
type CacheConfig struct {
	Backend           string `yaml:"backend" mapstructure:"backend"`
	RedisAddr         string `yaml:"redis_addr" mapstructure:"redis_addr"`
	ProcessingTTLSecs int    `yaml:"processing_ttl_secs" mapstructure:"processing_ttl_secs"`
	CompleteTTLSecs   int    `yaml:"complete_ttl_secs" mapstructure:"complete_ttl_secs"`
	ErrorTTLSecs      int    `yaml:"error_ttl_secs" mapstructure:"error_ttl_secs"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// BraveConfig holds Brave Search API settings.
type BraveConfig struct {
	Key             string  `yaml:"key" mapstructure:"key"`
	BaseURL         string  `yaml:"base_url" mapstructure:"base_url"`
	ResultsPerQuery int     `yaml:"results_per_query" mapstructure:"results_per_query"`
	RatePerSec      float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	RetryAttempts   int     `yaml:"retry_attempts" mapstructure:"retry_attempts"`
}

// PipelineConfig configures the analysis run.
type PipelineConfig struct {
	StaleAfterMins int    `yaml:"stale_after_mins" mapstructure:"stale_after_mins"`
	RunTimeoutMins int    `yaml:"run_timeout_mins" mapstructure:"run_timeout_mins"`
	Triage         bool   `yaml:"triage" mapstructure:"triage"`
	QualityReview  bool   `yaml:"quality_review" mapstructure:"quality_review"`
	PersonasFile   string `yaml:"personas_file" mapstructure:"personas_file"`
	MaxInputChars  int    `yaml:"max_input_chars" mapstructure:"max_input_chars"`
	SummaryChars   int    `yaml:"summary_chars" mapstructure:"summary_chars"`
	AutoStart      bool   `yaml:"auto_start" mapstructure:"auto_start"`
}

// StaleAfter is the age after which a processing run counts as abandoned.
func (c PipelineConfig) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterMins) * time.Minute
}

// RunTimeout bounds a single pipeline run.
func (c PipelineConfig) RunTimeout() time.Duration {
	return time.Duration(c.RunTimeoutMins) * time.Minute
}

// WorkerConfig configures background execution of runs.
type WorkerConfig struct {
	Backend     string         `yaml:"backend" mapstructure:"backend"`
	Concurrency int            `yaml:"concurrency" mapstructure:"concurrency"`
	QueueSize   int            `yaml:"queue_size" mapstructure:"queue_size"`
	Temporal    TemporalConfig `yaml:"temporal" mapstructure:"temporal"`
}

// TemporalConfig locates the Temporal frontend.
type TemporalConfig struct {
	HostPort  string `yaml:"host_port" mapstructure:"host_port"`
	Namespace string `yaml:"namespace" mapstructure:"namespace"`
	TaskQueue string `yaml:"task_queue" mapstructure:"task_queue"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port               int      `yaml:"port" mapstructure:"port"`
	CORSOrigins        []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	RequestTimeoutSecs int      `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// envAliases maps conventional provider variables onto config keys.
var envAliases = map[string]string{
	"anthropic.key": "ANTHROPIC_API_KEY",
	"brave.key":     "BRAVE_API_KEY",
}

// Load reads configuration from .env, file and environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ANALYST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envAliases {
		if err := v.BindEnv(key, "ANALYST_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, eris.Wrapf(err, "config: bind %s", key)
		}
	}

	// Defaults
	v.SetDefault("store.driver", "local")
	v.SetDefault("store.dir", "./data")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.s3.bucket", "")
	v.SetDefault("store.s3.region", "us-east-1")
	v.SetDefault("store.s3.prefix", "")
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.processing_ttl_secs", 2)
	v.SetDefault("cache.complete_ttl_secs", 300)
	v.SetDefault("cache.error_ttl_secs", 30)
	v.SetDefault("anthropic.model", "claude-sonnet-4-20250514")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("brave.base_url", "https://api.search.brave.com/res/v1")
	v.SetDefault("brave.results_per_query", 3)
	v.SetDefault("brave.rate_per_sec", 1.0)
	v.SetDefault("brave.retry_attempts", 2)
	v.SetDefault("pipeline.stale_after_mins", 8)
	v.SetDefault("pipeline.run_timeout_mins", 7)
	v.SetDefault("pipeline.triage", true)
	v.SetDefault("pipeline.quality_review", true)
	v.SetDefault("pipeline.personas_file", "")
	v.SetDefault("pipeline.max_input_chars", 50000)
	v.SetDefault("pipeline.summary_chars", 200)
	v.SetDefault("pipeline.auto_start", false)
	v.SetDefault("worker.backend", "pool")
	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.queue_size", 64)
	v.SetDefault("worker.temporal.host_port", "localhost:7233")
	v.SetDefault("worker.temporal.namespace", "default")
	v.SetDefault("worker.temporal.task_queue", "analyst")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.request_timeout_secs", 600)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	cfg.Anthropic.Key = strings.TrimSpace(cfg.Anthropic.Key)
	cfg.Brave.Key = strings.TrimSpace(cfg.Brave.Key)

	return &cfg, nil
}

// Validate checks the settings a mode depends on. Missing API keys are never
// an error: the collaborators fall back to placeholder behavior.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "serve", "worker", "cli":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "memory":
		if mode == "worker" {
			errs = append(errs, "store.driver memory cannot be shared with a separate worker")
		}
	case "local":
		if c.Store.Dir == "" {
			errs = append(errs, "store.dir is required for the local driver")
		}
	case "s3":
		if c.Store.S3.Bucket == "" {
			errs = append(errs, "store.s3.bucket is required for the s3 driver")
		}
	case "sqlite", "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, fmt.Sprintf("store.database_url is required for the %s driver", c.Store.Driver))
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not one of memory, local, s3, sqlite, postgres", c.Store.Driver))
	}

	switch c.Cache.Backend {
	case "memory", "none", "":
	case "redis":
		if c.Cache.RedisAddr == "" {
			errs = append(errs, "cache.redis_addr is required for the redis backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("cache.backend %q is not one of memory, redis, none", c.Cache.Backend))
	}

	if c.Pipeline.StaleAfterMins < 1 {
		errs = append(errs, "pipeline.stale_after_mins must be >= 1")
	}
	if c.Pipeline.RunTimeoutMins < 1 || c.Pipeline.RunTimeoutMins >= c.Pipeline.StaleAfterMins {
		errs = append(errs, "pipeline.run_timeout_mins must be >= 1 and below stale_after_mins")
	}
	if c.Pipeline.MaxInputChars < 1 {
		errs = append(errs, "pipeline.max_input_chars must be > 0")
	}

	switch c.Worker.Backend {
	case "pool":
		if c.Worker.Concurrency < 1 || c.Worker.Concurrency > 64 {
			errs = append(errs, "worker.concurrency must be between 1 and 64")
		}
	case "temporal":
		if c.Worker.Temporal.HostPort == "" || c.Worker.Temporal.TaskQueue == "" {
			errs = append(errs, "worker.temporal.host_port and worker.temporal.task_queue are required")
		}
	default:
		errs = append(errs, fmt.Sprintf("worker.backend %q is not one of pool, temporal", c.Worker.Backend))
	}
	if mode == "worker" && c.Worker.Backend != "temporal" {
		errs = append(errs, "the worker command requires worker.backend temporal")
	}

	if mode == "serve" && c.Server.Port <= 0 {
		errs = append(errs, "server.port must be > 0")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
