package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Lock backends selectable through LOCK_BACKEND.
const (
	LockBackendLocal    = "local"
	LockBackendRedis    = "redis"
	LockBackendPostgres = "postgres"
)

// Config holds all application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// Storage. An empty DatabaseURL runs against in-memory stores, with
	// doctors and patients read from DirectorySeedFile.
	DatabaseURL       string
	DirectorySeedFile string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Per-doctor lock
	LockBackend       string
	LockTTL           time.Duration
	LockRetryInterval time.Duration
	// Zero waits as long as the request does.
	LockWaitTimeout time.Duration
	// Size of the dedicated pool the postgres lock backend holds
	LockPoolMaxConns int

	// Zero disables the Redis schedule cache.
	ScheduleCacheTTL time.Duration

	// IANA zone used to interpret HH:mm input and render slots. Empty means
	// the process-local zone.
	LocalTimezone string

	CORSAllowedOrigins []string
	RateLimitPerMinute int

	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		DirectorySeedFile:  getEnv("DIRECTORY_SEED_FILE", ""),
		RedisAddr:          getEnv("REDIS_ADDR", ""),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisTLS:           getEnvAsBool("REDIS_TLS", false),
		LockBackend:        strings.ToLower(strings.TrimSpace(getEnv("LOCK_BACKEND", LockBackendLocal))),
		LockTTL:            getEnvAsDuration("LOCK_TTL", 10*time.Second),
		LockRetryInterval:  getEnvAsDuration("LOCK_RETRY_INTERVAL", 25*time.Millisecond),
		LockWaitTimeout:    getEnvAsDuration("LOCK_WAIT_TIMEOUT", 5*time.Second),
		LockPoolMaxConns:   getEnvAsInt("LOCK_POOL_MAX_CONNS", 4),
		ScheduleCacheTTL:   getEnvAsDuration("SCHEDULE_CACHE_TTL", 5*time.Minute),
		LocalTimezone:      getEnv("LOCAL_TIMEZONE", ""),
		CORSAllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS"),
		RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 600),
		ShutdownTimeout:    getEnvAsDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
	}
}

// Validate reports settings that would make the service misbehave at runtime.
func (c *Config) Validate() error {
	switch c.LockBackend {
	case LockBackendLocal:
	case LockBackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("config: LOCK_BACKEND=redis requires REDIS_ADDR")
		}
	case LockBackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: LOCK_BACKEND=postgres requires DATABASE_URL")
		}
		if c.LockPoolMaxConns <= 0 {
			return fmt.Errorf("config: LOCK_POOL_MAX_CONNS must be positive")
		}
	default:
		return fmt.Errorf("config: unknown LOCK_BACKEND %q", c.LockBackend)
	}
	if c.LockTTL <= 0 {
		return fmt.Errorf("config: LOCK_TTL must be positive")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves LocalTimezone.
func (c *Config) Location() (*time.Location, error) {
	if c.LocalTimezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.LocalTimezone)
	if err != nil {
		return nil, fmt.Errorf("config: LOCAL_TIMEZONE %q: %w", c.LocalTimezone, err)
	}
	return loc, nil
}

// IsProduction reports whether ENV names a production deployment.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsSlice(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
