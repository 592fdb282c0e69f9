// Package config loads the scraper settings file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/Sternrassler/fx-rate-scraper/pkg/logging"
	"github.com/Sternrassler/fx-rate-scraper/pkg/scheduler"
)

const (
	defaultOutputDir         = "output"
	defaultBaseURL           = "https://srh.bankofchina.com/search/whpj/searchen.jsp"
	defaultUserAgent         = "fx-rate-scraper/1.0"
	defaultLookbackDays      = 2
	defaultEntityConcurrency = 50
	defaultPageConcurrency   = 2
	defaultRequestTimeout    = 60 * time.Second
	defaultRetryBackoff      = 100 * time.Millisecond
	defaultRedisTTL          = 10 * time.Minute
	defaultPostgresTable     = "fx_rates"
)

// Config describes runtime configuration for the scraper.
type Config struct {
	OutputDirPath      string `yaml:"output_dir"`
	CreateDirIfMissing *bool  `yaml:"create_dir_if_missing"`

	BaseURL   string `yaml:"base_url"`
	UserAgent string `yaml:"user_agent"`

	// Pointers so that an explicit 0 survives the default merge. Read them
	// through Lookback, Entities and Pages.
	LookbackDays      *int   `yaml:"lookback_days"`
	EntityConcurrency *int   `yaml:"entity_concurrency"`
	PageConcurrency   *int   `yaml:"page_concurrency"`
	SchedulerMode     string `yaml:"scheduler_mode"`

	RequestTimeout time.Duration `yaml:"request_timeout"`
	RetryBackoff   time.Duration `yaml:"retry_backoff"`

	// MaxAttempts of 0 retries until success.
	MaxAttempts int `yaml:"max_attempts"`

	Log         LogConfig      `yaml:"log"`
	MetricsAddr string         `yaml:"metrics_addr"`
	Redis       RedisConfig    `yaml:"redis"`
	Postgres    PostgresConfig `yaml:"postgres"`
}

// LogConfig configures the global logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// RedisConfig enables the document cache when Addr is set.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// PostgresConfig enables the Postgres sink when DSN is set.
type PostgresConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

// ConfigError reports an unusable configuration. It is fatal before any
// request is made.
type ConfigError struct {
	Field string
	Msg   string
	Err   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config %s: %s: %v", e.Field, e.Msg, e.Err)
	}
	return fmt.Sprintf("config %s: %s", e.Field, e.Msg)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Default returns the built-in settings.
func Default() Config {
	createDir := true
	lookback, entities, pages := defaultLookbackDays, defaultEntityConcurrency, defaultPageConcurrency
	return Config{
		OutputDirPath:      defaultOutputDir,
		CreateDirIfMissing: &createDir,
		BaseURL:            defaultBaseURL,
		UserAgent:          defaultUserAgent,
		LookbackDays:       &lookback,
		EntityConcurrency:  &entities,
		PageConcurrency:    &pages,
		SchedulerMode:      string(scheduler.ModeDrain),
		RequestTimeout:     defaultRequestTimeout,
		RetryBackoff:       defaultRetryBackoff,
		Log: LogConfig{
			Level: string(logging.LevelInfo),
		},
		Redis: RedisConfig{
			TTL: defaultRedisTTL,
		},
		Postgres: PostgresConfig{
			Table: defaultPostgresTable,
		},
	}
}

// Load reads YAML config from the provided path. If the file does not exist
// or is empty, defaults are returned with no error. Keys absent from the file
// keep their default values; keys present keep the file's value, including
// an explicit false or 0 for pointer fields.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), errors.New("empty config path")
	}

	fileData, err := os.ReadFile(path) //nolint:gosec // config path is chosen by the operator
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return Default(), fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if len(fileData) > 0 {
		if err := yaml.Unmarshal(fileData, &cfg); err != nil {
			return Default(), fmt.Errorf("parse yaml: %w", err)
		}
	}

	if err := mergo.Merge(&cfg, Default(), mergo.WithoutDereference); err != nil {
		return Default(), fmt.Errorf("merge defaults: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks values the default merge cannot repair.
func (c Config) Validate() error {
	if n := c.Entities(); n < 1 {
		return &ConfigError{Field: "entity_concurrency", Msg: fmt.Sprintf("must be >= 1 (got %d)", n)}
	}
	if n := c.Pages(); n < 1 {
		return &ConfigError{Field: "page_concurrency", Msg: fmt.Sprintf("must be >= 1 (got %d)", n)}
	}
	if n := c.Lookback(); n < 0 {
		return &ConfigError{Field: "lookback_days", Msg: fmt.Sprintf("must be >= 0 (got %d)", n)}
	}
	if c.MaxAttempts < 0 {
		return &ConfigError{Field: "max_attempts", Msg: fmt.Sprintf("must be >= 0 (got %d)", c.MaxAttempts)}
	}
	if c.RequestTimeout < 0 {
		return &ConfigError{Field: "request_timeout", Msg: "must not be negative"}
	}
	if c.RetryBackoff < 0 {
		return &ConfigError{Field: "retry_backoff", Msg: "must not be negative"}
	}
	switch scheduler.Mode(strings.ToLower(c.SchedulerMode)) {
	case scheduler.ModeDrain, scheduler.ModeSliding:
	default:
		return &ConfigError{Field: "scheduler_mode", Msg: fmt.Sprintf("unknown mode %q", c.SchedulerMode)}
	}
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return &ConfigError{Field: "base_url", Msg: fmt.Sprintf("not an http(s) url: %q", c.BaseURL)}
	}
	return nil
}

// OutputDir returns the configured output directory.
func (c Config) OutputDir() string {
	return c.OutputDirPath
}

// Lookback returns the number of days before today the date range starts at.
func (c Config) Lookback() int {
	return intOr(c.LookbackDays, defaultLookbackDays)
}

// Entities returns the number of currencies scraped at once.
func (c Config) Entities() int {
	return intOr(c.EntityConcurrency, defaultEntityConcurrency)
}

// Pages returns the number of pages fetched at once per currency.
func (c Config) Pages() int {
	return intOr(c.PageConcurrency, defaultPageConcurrency)
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

// Mode returns the configured scheduler mode.
func (c Config) Mode() scheduler.Mode {
	return scheduler.ParseMode(strings.ToLower(c.SchedulerMode))
}

// EnsureOutputDir makes sure the output directory exists, creating it when
// allowed. The returned error is always a *ConfigError.
func (c Config) EnsureOutputDir() error {
	dir := c.OutputDir()
	if dir == "" {
		return &ConfigError{Field: "output_dir", Msg: "empty path"}
	}

	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return &ConfigError{Field: "output_dir", Msg: fmt.Sprintf("%s is not a directory", dir)}
		}
		return nil
	}
	if !os.IsNotExist(err) {
		return &ConfigError{Field: "output_dir", Msg: "stat failed", Err: err}
	}

	if c.CreateDirIfMissing == nil || !*c.CreateDirIfMissing {
		return &ConfigError{Field: "output_dir", Msg: fmt.Sprintf("directory %s does not exist and create_dir_if_missing is false", dir)}
	}

	if err := os.MkdirAll(filepath.Clean(dir), 0o755); err != nil {
		return &ConfigError{Field: "output_dir", Msg: "create directory", Err: err}
	}
	return nil
}

// LoggingConfig converts the log section for logging.Setup.
func (c Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.Log.Level)
	cfg.Pretty = c.Log.Pretty
	return cfg
}
