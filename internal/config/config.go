// internal/config/config.go

// Package config loads server settings from defaults, an optional YAML file and
// the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP      HTTP      `yaml:"http"`
	Backend   Backend   `yaml:"backend"`
	Loans     Loans     `yaml:"loans"`
	Auth      Auth      `yaml:"auth"`
	RateLimit RateLimit `yaml:"rate_limit"`
	Telemetry Telemetry `yaml:"telemetry"`
	Audit     Audit     `yaml:"audit"`
	Log       Log       `yaml:"log"`
}

type HTTP struct {
	Addr string `yaml:"addr"`
}

type Backend struct {
	Kind        string `yaml:"kind"` // memory or postgres
	DatabaseURL string `yaml:"database_url"`
	Schema      string `yaml:"schema"`
	// BreakerFailures consecutive failures open the circuit for BreakerTimeout.
	// 0 disables the breaker.
	BreakerFailures int           `yaml:"breaker_failures"`
	BreakerTimeout  time.Duration `yaml:"breaker_timeout"`
}

type Loans struct {
	GraceDays int     `yaml:"grace_days"`
	FeePerDay float64 `yaml:"fee_per_day"`
}

// Auth holds the HMAC secret of the external identity provider. Empty disables
// token checks.
type Auth struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// RateLimit throttles mutating requests. PerMinute 0 disables it.
type RateLimit struct {
	PerMinute int `yaml:"per_minute"`
	Burst     int `yaml:"burst"`
}

type Telemetry struct {
	ServiceName  string `yaml:"service_name"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// Audit controls the periodic consistency audit. Interval 0 disables it.
type Audit struct {
	Interval time.Duration `yaml:"interval"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// Default returns the settings used when nothing else is configured.
func Default() *Config {
	return &Config{
		HTTP:      HTTP{Addr: ":8080"},
		Backend:   Backend{Kind: BackendMemory, Schema: "public", BreakerFailures: 5, BreakerTimeout: 30 * time.Second},
		Loans:     Loans{GraceDays: 14, FeePerDay: 1.0},
		RateLimit: RateLimit{PerMinute: 120, Burst: 20},
		Telemetry: Telemetry{ServiceName: "libradesk"},
		Audit:     Audit{Interval: time.Minute},
		Log:       Log{Level: "info", Format: "text"},
	}
}

// Load builds the configuration. path may be empty; a named file that does not
// exist is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(content, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if port, ok := os.LookupEnv("PORT"); ok {
		c.HTTP.Addr = ":" + port
	}
	c.HTTP.Addr = getEnv("LIBRADESK_HTTP_ADDR", c.HTTP.Addr)

	c.Backend.Kind = getEnv("LIBRADESK_BACKEND", c.Backend.Kind)
	c.Backend.DatabaseURL = getEnv("DATABASE_URL", c.Backend.DatabaseURL)
	c.Backend.Schema = getEnv("LIBRADESK_SCHEMA", c.Backend.Schema)

	c.Auth.JWTSecret = getEnv("LIBRADESK_JWT_SECRET", c.Auth.JWTSecret)
	c.Telemetry.ServiceName = getEnv("OTEL_SERVICE_NAME", c.Telemetry.ServiceName)
	c.Telemetry.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", c.Telemetry.OTLPEndpoint)
	c.Log.Level = getEnv("LIBRADESK_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LIBRADESK_LOG_FORMAT", c.Log.Format)

	var errs []error
	if v, ok := os.LookupEnv("LIBRADESK_GRACE_DAYS"); ok {
		n, err := strconv.Atoi(v)
		errs = append(errs, envError("LIBRADESK_GRACE_DAYS", err))
		c.Loans.GraceDays = n
	}
	if v, ok := os.LookupEnv("LIBRADESK_FEE_PER_DAY"); ok {
		f, err := strconv.ParseFloat(v, 64)
		errs = append(errs, envError("LIBRADESK_FEE_PER_DAY", err))
		c.Loans.FeePerDay = f
	}
	if v, ok := os.LookupEnv("LIBRADESK_RATE_LIMIT_PER_MINUTE"); ok {
		n, err := strconv.Atoi(v)
		errs = append(errs, envError("LIBRADESK_RATE_LIMIT_PER_MINUTE", err))
		c.RateLimit.PerMinute = n
	}
	if v, ok := os.LookupEnv("LIBRADESK_RATE_LIMIT_BURST"); ok {
		n, err := strconv.Atoi(v)
		errs = append(errs, envError("LIBRADESK_RATE_LIMIT_BURST", err))
		c.RateLimit.Burst = n
	}
	if v, ok := os.LookupEnv("LIBRADESK_BREAKER_FAILURES"); ok {
		n, err := strconv.Atoi(v)
		errs = append(errs, envError("LIBRADESK_BREAKER_FAILURES", err))
		c.Backend.BreakerFailures = n
	}
	if v, ok := os.LookupEnv("LIBRADESK_AUDIT_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		errs = append(errs, envError("LIBRADESK_AUDIT_INTERVAL", err))
		c.Audit.Interval = d
	}
	return errors.Join(errs...)
}

func envError(key string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("invalid %s: %w", key, err)
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	switch c.Backend.Kind {
	case BackendMemory:
	case BackendPostgres:
		if c.Backend.DatabaseURL == "" {
			errs = append(errs, errors.New("backend.database_url is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend.kind %q", c.Backend.Kind))
	}
	if c.Backend.BreakerFailures < 0 {
		errs = append(errs, errors.New("backend.breaker_failures must not be negative"))
	}
	if c.Backend.BreakerFailures > 0 && c.Backend.BreakerTimeout <= 0 {
		errs = append(errs, errors.New("backend.breaker_timeout must be positive"))
	}
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	if c.Loans.GraceDays < 0 {
		errs = append(errs, errors.New("loans.grace_days must not be negative"))
	}
	if c.Loans.FeePerDay < 0 {
		errs = append(errs, errors.New("loans.fee_per_day must not be negative"))
	}
	if c.RateLimit.PerMinute < 0 {
		errs = append(errs, errors.New("rate_limit.per_minute must not be negative"))
	}
	if c.RateLimit.PerMinute > 0 && c.RateLimit.Burst < 1 {
		errs = append(errs, errors.New("rate_limit.burst must be at least 1"))
	}
	if c.Audit.Interval < 0 {
		errs = append(errs, errors.New("audit.interval must not be negative"))
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// SlogLevel parses Level (debug, info, warn, error).
func (l Log) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("invalid log.level %q: %w", l.Level, err)
	}
	return level, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
