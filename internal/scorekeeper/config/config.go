// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the scorekeeper service configuration. Values are
// layered: built-in defaults, then an optional YAML file, then SCOREKEEPER_*
// environment variables, then command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// RequestTimeout bounds every store call made on behalf of a request.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// RedisConfig holds Redis connection settings shared by the store and the
// snapshot cache.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
	Trace     bool   `yaml:"trace"`
}

// StoreConfig selects and configures the persistence backend
type StoreConfig struct {
	Driver   string         `yaml:"driver"`
	Redis    RedisConfig    `yaml:"redis"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig holds the embedded database location
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgresConfig holds the shared database connection string
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// MirrorConfig holds mirror lifecycle configuration
type MirrorConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	ReapInterval  time.Duration `yaml:"reap_interval"`
	ReapTimeout   time.Duration `yaml:"reap_timeout"`
	InitOnStartup bool          `yaml:"init_on_startup"`
}

// AuditConfig holds audit log configuration
type AuditConfig struct {
	// Timezone names the location used for hour bucket keys ("Local" by default).
	Timezone string `yaml:"timezone"`
	// FilePath, when set, tees every appended record into a JSONL file.
	FilePath string `yaml:"file_path"`
}

// PollConfig holds polling endpoint configuration
type PollConfig struct {
	SnapshotCache     string              `yaml:"snapshot_cache"`
	SnapshotKeyPrefix string              `yaml:"snapshot_key_prefix"`
	Groups            map[string][]string `yaml:"groups"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	// Addr, when set, serves /metrics on a dedicated listener.
	Addr            string        `yaml:"addr"`
	SummaryInterval time.Duration `yaml:"summary_interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AuthConfig holds the optional admin token guarding privileged operations
type AuthConfig struct {
	AdminToken string `yaml:"admin_token"`
}

// Config represents the complete configuration for the service
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	Mirror  MirrorConfig  `yaml:"mirror"`
	Audit   AuditConfig   `yaml:"audit"`
	Poll    PollConfig    `yaml:"poll"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
	Auth    AuthConfig    `yaml:"auth"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

// LoadFile reads a YAML file over the defaults and validates the result.
func LoadFile(filePath string) (*Config, error) {
	cfg := Default()
	if err := cfg.mergeFile(filePath); err != nil {
		return nil, err
	}
	setDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Load builds the configuration from args (without the program name) and the
// environment. The file named by --config, if any, is read first; environment
// variables override it and flags override both.
func Load(args []string, getenv func(string) string) (*Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	cfg := Default()

	if path := configPath(args, getenv); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	if err := applyEnvironmentOverrides(cfg, getenv); err != nil {
		return nil, err
	}

	fs := pflag.NewFlagSet("scorekeeper", pflag.ContinueOnError)
	fs.StringP("config", "c", "", "Path to a YAML configuration file (env SCOREKEEPER_CONFIG)")
	cfg.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	setDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// configPath finds --config/-c ahead of the full flag parse.
func configPath(args []string, getenv func(string) string) string {
	boot := pflag.NewFlagSet("boot", pflag.ContinueOnError)
	boot.ParseErrorsWhitelist.UnknownFlags = true
	boot.Usage = func() {}
	boot.SetOutput(discard{})
	path := boot.StringP("config", "c", "", "")
	_ = boot.Parse(args)
	if *path != "" {
		return *path
	}
	return getenv("SCOREKEEPER_CONFIG")
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func (c *Config) mergeFile(filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// RegisterFlags binds command-line flags to c, using c's current values as
// the flag defaults.
func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Server.Addr, "http-addr", c.Server.Addr, "HTTP listen address")
	fs.DurationVar(&c.Server.RequestTimeout, "request-timeout", c.Server.RequestTimeout, "Deadline for store calls made on behalf of one request")
	fs.DurationVar(&c.Server.ShutdownTimeout, "shutdown-timeout", c.Server.ShutdownTimeout, "Graceful shutdown timeout")

	fs.StringVar(&c.Store.Driver, "store", c.Store.Driver, "Store driver: memory|redis|sqlite|postgres")
	fs.StringVar(&c.Store.Redis.Addr, "redis-addr", c.Store.Redis.Addr, "Redis address (host:port)")
	fs.IntVar(&c.Store.Redis.DB, "redis-db", c.Store.Redis.DB, "Redis database number")
	fs.StringVar(&c.Store.Redis.KeyPrefix, "redis-key-prefix", c.Store.Redis.KeyPrefix, "Prefix for every Redis key")
	fs.BoolVar(&c.Store.Redis.Trace, "redis-trace", c.Store.Redis.Trace, "Log every Redis EVAL at debug level")
	fs.StringVar(&c.Store.SQLite.Path, "sqlite-path", c.Store.SQLite.Path, "SQLite database file")
	fs.StringVar(&c.Store.Postgres.DSN, "postgres-dsn", c.Store.Postgres.DSN, "Postgres connection string")

	fs.DurationVar(&c.Mirror.TTL, "mirror-ttl", c.Mirror.TTL, "Mirror staleness threshold")
	fs.DurationVar(&c.Mirror.ReapInterval, "reap-interval", c.Mirror.ReapInterval, "How often the mirror TTL reaper runs")
	fs.BoolVar(&c.Mirror.InitOnStartup, "init-mirror", c.Mirror.InitOnStartup, "Initialize the mirror at startup if needed")

	fs.StringVar(&c.Audit.Timezone, "audit-timezone", c.Audit.Timezone, "IANA timezone for audit hour buckets")
	fs.StringVar(&c.Audit.FilePath, "audit-file", c.Audit.FilePath, "If set, also append audit records to this JSONL file")

	fs.StringVar(&c.Poll.SnapshotCache, "snapshot-cache", c.Poll.SnapshotCache, "Poll snapshot cache: memory|redis")

	fs.StringVar(&c.Metrics.Addr, "metrics-addr", c.Metrics.Addr, "If non-empty, expose Prometheus /metrics on this address (e.g., :9090)")
	fs.DurationVar(&c.Metrics.SummaryInterval, "summary-interval", c.Metrics.SummaryInterval, "If > 0, periodically log a pipeline summary. 0 disables.")

	fs.StringVar(&c.Logging.Level, "log-level", c.Logging.Level, "Log level: debug|info|warn|error")
	fs.StringVar(&c.Logging.Format, "log-format", c.Logging.Format, "Log format: json|console")

	fs.StringVar(&c.Auth.AdminToken, "admin-token", c.Auth.AdminToken, "Bearer token required for restore/init calls (empty disables)")
}

// applyEnvironmentOverrides applies SCOREKEEPER_* variables to cfg
func applyEnvironmentOverrides(cfg *Config, getenv func(string) string) error {
	str := func(name string, dst *string) {
		if v := getenv(name); v != "" {
			*dst = v
		}
	}
	str("SCOREKEEPER_HTTP_ADDR", &cfg.Server.Addr)
	str("SCOREKEEPER_STORE_DRIVER", &cfg.Store.Driver)
	str("SCOREKEEPER_REDIS_ADDR", &cfg.Store.Redis.Addr)
	str("SCOREKEEPER_REDIS_PASSWORD", &cfg.Store.Redis.Password)
	str("SCOREKEEPER_REDIS_KEY_PREFIX", &cfg.Store.Redis.KeyPrefix)
	str("SCOREKEEPER_SQLITE_PATH", &cfg.Store.SQLite.Path)
	str("SCOREKEEPER_POSTGRES_DSN", &cfg.Store.Postgres.DSN)
	str("SCOREKEEPER_AUDIT_TIMEZONE", &cfg.Audit.Timezone)
	str("SCOREKEEPER_AUDIT_FILE", &cfg.Audit.FilePath)
	str("SCOREKEEPER_SNAPSHOT_CACHE", &cfg.Poll.SnapshotCache)
	str("SCOREKEEPER_METRICS_ADDR", &cfg.Metrics.Addr)
	str("SCOREKEEPER_LOG_LEVEL", &cfg.Logging.Level)
	str("SCOREKEEPER_LOG_FORMAT", &cfg.Logging.Format)
	str("SCOREKEEPER_ADMIN_TOKEN", &cfg.Auth.AdminToken)

	if v := getenv("SCOREKEEPER_REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SCOREKEEPER_REDIS_DB: %w", err)
		}
		cfg.Store.Redis.DB = n
	}
	if v := getenv("SCOREKEEPER_MIRROR_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SCOREKEEPER_MIRROR_TTL: %w", err)
		}
		cfg.Mirror.TTL = d
	}
	if v := getenv("SCOREKEEPER_REAP_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SCOREKEEPER_REAP_INTERVAL: %w", err)
		}
		cfg.Mirror.ReapInterval = d
	}
	return nil
}

// setDefaults sets default values for unspecified configuration
func setDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 5 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 10 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 5 * time.Second
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 10 * time.Second
	}

	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "memory"
	}
	if cfg.Store.Redis.KeyPrefix == "" {
		cfg.Store.Redis.KeyPrefix = "scorekeeper:"
	}
	if cfg.Store.SQLite.Path == "" {
		cfg.Store.SQLite.Path = "scorekeeper.db"
	}

	if cfg.Mirror.TTL == 0 {
		cfg.Mirror.TTL = 48 * time.Hour
	}
	if cfg.Mirror.ReapInterval == 0 {
		cfg.Mirror.ReapInterval = 6 * time.Hour
	}
	if cfg.Mirror.ReapTimeout == 0 {
		cfg.Mirror.ReapTimeout = time.Minute
	}

	if cfg.Audit.Timezone == "" {
		cfg.Audit.Timezone = "Local"
	}

	if cfg.Poll.SnapshotCache == "" {
		cfg.Poll.SnapshotCache = "memory"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case "memory", "sqlite":
	case "redis":
		if c.Store.Redis.Addr == "" {
			errs = append(errs, errors.New("store.redis.addr is required for the redis driver"))
		}
	case "postgres":
		if c.Store.Postgres.DSN == "" {
			errs = append(errs, errors.New("store.postgres.dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}

	switch c.Poll.SnapshotCache {
	case "memory":
	case "redis":
		if c.Store.Redis.Addr == "" {
			errs = append(errs, errors.New("store.redis.addr is required for the redis snapshot cache"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown poll.snapshot_cache %q", c.Poll.SnapshotCache))
	}

	if c.Mirror.TTL <= 0 {
		errs = append(errs, errors.New("mirror.ttl must be positive"))
	}
	if c.Mirror.ReapInterval <= 0 {
		errs = append(errs, errors.New("mirror.reap_interval must be positive"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("unknown logging.format %q", c.Logging.Format))
	}
	return errors.Join(errs...)
}

// SnapshotPrefix is the Redis key prefix for poll snapshots.
func (c *Config) SnapshotPrefix() string {
	if c.Poll.SnapshotKeyPrefix != "" {
		return c.Poll.SnapshotKeyPrefix
	}
	return c.Store.Redis.KeyPrefix + "poll_snapshot:"
}

// Location resolves the audit bucket timezone.
func (c *Config) Location() (*time.Location, error) {
	switch c.Audit.Timezone {
	case "", "Local":
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Audit.Timezone)
	if err != nil {
		return nil, fmt.Errorf("audit.timezone: %w", err)
	}
	return loc, nil
}
