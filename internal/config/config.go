// Package config provides application configuration loaded from environment variables.
// Use the package-level Get() function to obtain the singleton Config instance.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ──────────────────────────────────────────────────────────────────────────────
// Sub-config structs
// ──────────────────────────────────────────────────────────────────────────────

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string        // e.g. "8080"
	Env          string        // "development" | "production"
	ReadTimeout  time.Duration // default 10s
	WriteTimeout time.Duration // default 10s
	TrustedProxy string        // comma-separated CIDRs/IPs; "" = trust none
	CORSOrigins  string        // comma-separated allowed origins in production
}

// DBConfig holds PostgreSQL connection settings.
type DBConfig struct {
	DSN             string        // full postgres DSN
	MaxOpenConns    int           // default 10 (spec §5: "typ. 10 connections")
	MaxIdleConns    int           // default 10
	ConnMaxLifetime time.Duration // default 5m
}

// RedisConfig holds the durable queue + pub/sub connection settings.
type RedisConfig struct {
	Addr         string        // host:port
	Password     string        // optional
	DB           int           // logical db index
	PayoutQueue  string        // list key the worker BRPOPs from
	OddsChannel  string        // pub/sub channel name for odds
	DialTimeout  time.Duration // default 5s
	PopTimeout   time.Duration // BRPOP block timeout, default 5s
}

// AuthConfig holds JWT, secret-rotation, and admin bootstrap settings.
type AuthConfig struct {
	PrimarySecret       string        // mandatory, must not be a sentinel value
	AccessTTL           time.Duration // default 15m
	RefreshTTL          time.Duration // default 720h (30d); opaque token, not a JWT
	SecretCacheTTL      time.Duration // default 60s (§4.2)
	PermissionCacheTTL  time.Duration // default 30s (§3, §4.2)
	PayoutMaxAttempts   int           // default 5
	BootstrapAdminEmail string        // env-driven super-admin assignment
	BootstrapAdminID    string        // alternative to email
}

// sentinelSecrets are placeholder values that must never reach production;
// Validate rejects them explicitly per §6's "must not be a sentinel like change-me".
var sentinelSecrets = map[string]bool{
	"change-me":  true,
	"changeme":   true,
	"secret":     true,
	"":           true,
}

// ──────────────────────────────────────────────────────────────────────────────
// Top-level Config
// ──────────────────────────────────────────────────────────────────────────────

// Config is the root configuration object for the entire application. It is
// constructed once at startup and threaded explicitly into every component
// (§9 design note: no module-scope state).
type Config struct {
	Server ServerConfig
	DB     DBConfig
	Redis  RedisConfig
	Auth   AuthConfig
}

// IsProd returns true when running in the production environment.
func (c *Config) IsProd() bool {
	return c.Server.Env == "production"
}

// Validate checks that all required configuration values are present and valid.
func (c *Config) Validate() error {
	var errs []error

	if sentinelSecrets[strings.ToLower(c.Auth.PrimarySecret)] {
		errs = append(errs, errors.New("AUTH_PRIMARY_SECRET must be set to a real, non-placeholder value"))
	}

	if c.IsProd() && c.DB.DSN == "" {
		errs = append(errs, errors.New("DATABASE_DSN must be set in production"))
	}

	if c.Redis.PayoutQueue == "" {
		errs = append(errs, errors.New("REDIS_PAYOUT_QUEUE must be set"))
	}
	if c.Redis.OddsChannel == "" {
		errs = append(errs, errors.New("REDIS_ODDS_CHANNEL must be set"))
	}

	if c.Auth.PayoutMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("PAYOUT_MAX_ATTEMPTS must be >= 1, got %d", c.Auth.PayoutMaxAttempts))
	}

	if c.Auth.BootstrapAdminEmail == "" && c.Auth.BootstrapAdminID == "" {
		errs = append(errs, errors.New("one of ADMIN_BOOTSTRAP_EMAIL or ADMIN_BOOTSTRAP_USER_ID must be set"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Singleton
// ──────────────────────────────────────────────────────────────────────────────

var (
	instance *Config
	once     sync.Once
	loadErr  error
)

// Get returns the singleton Config, loading it once from environment variables.
// Panics if loading fails — call this early in main() to catch misconfigurations
// at startup.
func Get() *Config {
	once.Do(func() {
		instance, loadErr = load()
	})
	if loadErr != nil {
		panic(fmt.Sprintf("config: failed to load: %v", loadErr))
	}
	return instance
}

// MustLoad loads and validates configuration. Intended for use in main().
// Panics on any error so misconfiguration is caught immediately at boot.
func MustLoad() *Config {
	cfg := Get()
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("config: validation failed: %v", err))
	}
	return cfg
}

// ──────────────────────────────────────────────────────────────────────────────
// Internal loader
// ──────────────────────────────────────────────────────────────────────────────

func load() (*Config, error) {
	cfg := &Config{}

	cfg.Server = ServerConfig{
		Port:         getEnv("SERVER_PORT", "8080"),
		Env:          getEnv("ENVIRONMENT", "development"),
		ReadTimeout:  getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
		WriteTimeout: getDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
		TrustedProxy: getEnv("TRUSTED_PROXY", ""),
		CORSOrigins:  getEnv("CORS_ORIGINS", ""),
	}

	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		dsn = fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			getEnv("DB_HOST", "localhost"),
			getEnv("DB_PORT", "5432"),
			getEnv("DB_USER", "postgres"),
			getEnv("DB_PASSWORD", ""),
			getEnv("DB_NAME", "points_core"),
			getEnv("DB_SSLMODE", "disable"),
		)
	}

	maxOpen, err := getInt("DB_MAX_OPEN_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("DB_MAX_OPEN_CONNS: %w", err)
	}
	maxIdle, err := getInt("DB_MAX_IDLE_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("DB_MAX_IDLE_CONNS: %w", err)
	}

	cfg.DB = DBConfig{
		DSN:             dsn,
		MaxOpenConns:    maxOpen,
		MaxIdleConns:    maxIdle,
		ConnMaxLifetime: getDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}

	redisDB, err := getInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("REDIS_DB: %w", err)
	}

	cfg.Redis = RedisConfig{
		Addr:        getEnv("REDIS_ADDR", "localhost:6379"),
		Password:    getEnv("REDIS_PASSWORD", ""),
		DB:          redisDB,
		PayoutQueue: getEnv("REDIS_PAYOUT_QUEUE", "payout_jobs"),
		OddsChannel: getEnv("REDIS_ODDS_CHANNEL", "odds"),
		DialTimeout: getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		PopTimeout:  getDuration("REDIS_POP_TIMEOUT", 5*time.Second),
	}

	payoutMaxAttempts, err := getInt("PAYOUT_MAX_ATTEMPTS", 5)
	if err != nil {
		return nil, fmt.Errorf("PAYOUT_MAX_ATTEMPTS: %w", err)
	}

	cfg.Auth = AuthConfig{
		PrimarySecret:       getEnv("AUTH_PRIMARY_SECRET", ""),
		AccessTTL:           getDuration("AUTH_ACCESS_TTL", 15*time.Minute),
		RefreshTTL:          getDuration("AUTH_REFRESH_TTL", 720*time.Hour),
		SecretCacheTTL:      getDuration("AUTH_SECRET_CACHE_TTL", 60*time.Second),
		PermissionCacheTTL:  getDuration("AUTH_PERMISSION_CACHE_TTL", 30*time.Second),
		PayoutMaxAttempts:   payoutMaxAttempts,
		BootstrapAdminEmail: getEnv("ADMIN_BOOTSTRAP_EMAIL", ""),
		BootstrapAdminID:    getEnv("ADMIN_BOOTSTRAP_USER_ID", ""),
	}

	return cfg, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Helper functions
// ──────────────────────────────────────────────────────────────────────────────

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", v)
	}
	return n, nil
}

// getDuration parses an env var as a Go duration string (e.g. "15m", "2s").
// Falls back to defaultVal if the variable is unset or empty.
func getDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
