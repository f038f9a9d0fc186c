// Package config loads and validates app config from env and an optional
// .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Store backends selectable via STORE_BACKEND.
const (
	StoreMemory   = "memory"
	StoreBBolt    = "bbolt"
	StorePostgres = "postgres"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// StoreBackend selects the session store: memory, bbolt, or postgres.
	StoreBackend string `mapstructure:"STORE_BACKEND"`
	// DatabaseURL is the Postgres DSN; required when StoreBackend is postgres.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// BBoltPath is the database file path; required when StoreBackend is bbolt.
	BBoltPath string `mapstructure:"BBOLT_PATH"`
	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or a path to it.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or a path to it.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim set on access tokens.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim set on access tokens.
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// RefreshTTLRaw is the refresh token lifetime (e.g. "720h" for 30 days).
	RefreshTTLRaw string `mapstructure:"REFRESH_TTL"`
	// RedisAddr is the Redis address for session event publishing; empty
	// disables publishing.
	RedisAddr string `mapstructure:"REDIS_ADDR"`
	// OTLPEndpoint is the OpenTelemetry collector endpoint; empty disables
	// export.
	OTLPEndpoint string `mapstructure:"OTLP_ENDPOINT"`
	// GCIntervalRaw is how often the worker sweeps expired records (e.g. "1h").
	GCIntervalRaw string `mapstructure:"GC_INTERVAL"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the
// environment via Viper. Missing .env is ignored (e.g. in CI). Env vars
// override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("STORE_BACKEND", StoreMemory)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("BBOLT_PATH", "")
	v.SetDefault("JWT_ISSUER", "sessiongate")
	v.SetDefault("JWT_AUDIENCE", "sessiongate-api")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("REFRESH_TTL", "720h") // 30d
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("OTLP_ENDPOINT", "")
	v.SetDefault("GC_INTERVAL", "1h")
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	switch cfg.StoreBackend {
	case StoreMemory:
		if cfg.Env == "production" {
			return nil, errors.New("config: STORE_BACKEND=memory must not be used when APP_ENV=production")
		}
	case StoreBBolt:
		if cfg.BBoltPath == "" {
			return nil, errors.New("config: BBOLT_PATH must be set when STORE_BACKEND=bbolt")
		}
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("config: DATABASE_URL must be set when STORE_BACKEND=postgres")
		}
	default:
		return nil, fmt.Errorf("config: unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	return &cfg, nil
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or
// invalid.
func (c *Config) AccessTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTAccessTTL)
	if err != nil || d <= 0 {
		return 15 * time.Minute
	}
	return d
}

// RefreshTTL parses RefreshTTLRaw as a time.Duration. Returns 720h if unset
// or invalid.
func (c *Config) RefreshTTL() time.Duration {
	d, err := time.ParseDuration(c.RefreshTTLRaw)
	if err != nil || d <= 0 {
		return 720 * time.Hour
	}
	return d
}

// GCInterval parses GCIntervalRaw as a time.Duration. Returns 1h if unset or
// invalid.
func (c *Config) GCInterval() time.Duration {
	d, err := time.ParseDuration(c.GCIntervalRaw)
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}
