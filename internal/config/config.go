package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the application.
type Config struct {
	Server      ServerConfig
	DB          DBConfig
	Log         LogConfig
	Redis       RedisConfig
	Retry       RetryConfig
	Reservation ReservationConfig
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Port            string `envconfig:"SERVER_PORT" default:"3000"`
	ShutdownTimeout int    `envconfig:"SHUTDOWN_TIMEOUT" default:"30"` // seconds
}

// DBConfig holds database-related configuration.
// WARNING: Default password is for local development only.
// In production, always set DB_PASSWORD via environment variable.
// In production, set DB_SSLMODE to "require" or "verify-full".
type DBConfig struct {
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     int    `envconfig:"DB_PORT" default:"5432"`
	User     string `envconfig:"DB_USER" default:"postgres"`
	Password string `envconfig:"DB_PASSWORD" default:"postgres"` // CHANGE IN PRODUCTION
	Name     string `envconfig:"DB_NAME" default:"reservation_db"`
	SSLMode  string `envconfig:"DB_SSLMODE" default:"disable"` // Use "require" in production
	MaxConns int    `envconfig:"DB_MAX_CONNS" default:"25"`
	MinConns int    `envconfig:"DB_MIN_CONNS" default:"5"`
}

// DSN returns the PostgreSQL connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s&pool_max_conns=%d&pool_min_conns=%d",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode, c.MaxConns, c.MinConns)
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Pretty bool   `envconfig:"LOG_PRETTY" default:"false"`
}

// RedisConfig holds the coordination-node substrate configuration for the
// locking and atomic-stock layer.
type RedisConfig struct {
	// Nodes is a comma-separated list of host:port coordination nodes.
	// When UseQuorum is set, Validate requires at least 3 nodes; a single
	// node is only accepted with UseQuorum off.
	Nodes string `envconfig:"REDIS_NODES" default:"localhost:6379"`
	// UseQuorum selects the Redlock quorum strategy over the single-node lock.
	UseQuorum bool `envconfig:"REDIS_USE_QUORUM" default:"false"`
	// LockTTL is the time-to-live granted to every lock acquisition.
	LockTTLMillis int `envconfig:"LOCK_TTL_MS" default:"10000"`
	// NodeTimeout bounds every per-node RPC; must satisfy NodeTimeout <= LockTTL/10.
	NodeTimeoutMillis int `envconfig:"NODE_TIMEOUT_MS" default:"500"`
	// DriftFactor is the fractional clock-drift compensation applied to validity.
	DriftFactor float64 `envconfig:"DRIFT_FACTOR" default:"0.01"`
	// DriftFloorMillis is the minimum drift compensation applied regardless of TTL.
	DriftFloorMillis int `envconfig:"DRIFT_FLOOR_MS" default:"2"`
}

// NodeList splits Nodes on commas and trims whitespace around each entry.
func (c RedisConfig) NodeList() []string {
	raw := strings.Split(c.Nodes, ",")
	nodes := make([]string, 0, len(raw))
	for _, n := range raw {
		n = strings.TrimSpace(n)
		if n != "" {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

// LockTTL returns the configured lock TTL as a time.Duration.
func (c RedisConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLMillis) * time.Millisecond
}

// NodeTimeout returns the configured per-node RPC timeout as a time.Duration.
func (c RedisConfig) NodeTimeout() time.Duration {
	return time.Duration(c.NodeTimeoutMillis) * time.Millisecond
}

// DriftFloor returns the configured drift floor as a time.Duration.
func (c RedisConfig) DriftFloor() time.Duration {
	return time.Duration(c.DriftFloorMillis) * time.Millisecond
}

// RetryConfig governs the lock-acquisition retry/backoff policy used by the
// reservation coordinator.
type RetryConfig struct {
	MaxRetries     int `envconfig:"LOCK_MAX_RETRIES" default:"5"`
	BaseDelayMicro int `envconfig:"LOCK_BASE_DELAY_MS" default:"20"`
	MaxDelayMicro  int `envconfig:"LOCK_MAX_DELAY_MS" default:"500"`
}

// BaseDelay returns the configured minimum retry backoff.
func (c RetryConfig) BaseDelay() time.Duration {
	return time.Duration(c.BaseDelayMicro) * time.Millisecond
}

// MaxDelay returns the configured maximum retry backoff ceiling.
func (c RetryConfig) MaxDelay() time.Duration {
	return time.Duration(c.MaxDelayMicro) * time.Millisecond
}

// ReservationConfig governs the reservation coordinator's deadline handling.
type ReservationConfig struct {
	// SafetyMarginMillis is the minimum remaining lock validity required for
	// the coordinator to proceed past lock acquisition.
	SafetyMarginMillis int `envconfig:"RESERVATION_SAFETY_MARGIN_MS" default:"50"`
}

// SafetyMargin returns the configured safety margin as a time.Duration.
func (c ReservationConfig) SafetyMargin() time.Duration {
	return time.Duration(c.SafetyMarginMillis) * time.Millisecond
}

// Load parses environment variables into the Config struct and validates them.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks that all configuration values are valid.
func (c *Config) Validate() error {
	// Validate server port
	port, err := strconv.Atoi(c.Server.Port)
	if err != nil {
		return fmt.Errorf("SERVER_PORT must be a valid number: %w", err)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", port)
	}

	// Validate shutdown timeout
	if c.Server.ShutdownTimeout < 1 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be at least 1 second, got %d", c.Server.ShutdownTimeout)
	}
	if c.Server.ShutdownTimeout > 300 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must not exceed 300 seconds, got %d", c.Server.ShutdownTimeout)
	}

	// Validate DB connection fields
	if strings.TrimSpace(c.DB.Host) == "" {
		return fmt.Errorf("DB_HOST cannot be empty")
	}
	if strings.TrimSpace(c.DB.User) == "" {
		return fmt.Errorf("DB_USER cannot be empty")
	}
	if strings.TrimSpace(c.DB.Name) == "" {
		return fmt.Errorf("DB_NAME cannot be empty")
	}

	// Validate DB port
	if c.DB.Port < 1 || c.DB.Port > 65535 {
		return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.DB.Port)
	}

	// Validate connection pool sizes
	if c.DB.MaxConns < 1 {
		return fmt.Errorf("DB_MAX_CONNS must be at least 1, got %d", c.DB.MaxConns)
	}
	if c.DB.MinConns < 0 {
		return fmt.Errorf("DB_MIN_CONNS must be at least 0, got %d", c.DB.MinConns)
	}
	if c.DB.MinConns > c.DB.MaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) cannot exceed DB_MAX_CONNS (%d)", c.DB.MinConns, c.DB.MaxConns)
	}

	// Validate SSL mode
	validSSLModes := map[string]bool{
		"disable": true, "allow": true, "prefer": true,
		"require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[c.DB.SSLMode] {
		return fmt.Errorf("DB_SSLMODE must be one of: disable, allow, prefer, require, verify-ca, verify-full; got %q", c.DB.SSLMode)
	}

	// Validate Redis coordination nodes
	if len(c.Redis.NodeList()) == 0 {
		return fmt.Errorf("REDIS_NODES must list at least one coordination node")
	}
	if c.Redis.UseQuorum && len(c.Redis.NodeList()) < 3 {
		return fmt.Errorf("REDIS_USE_QUORUM requires at least 3 coordination nodes for a meaningful majority, got %d", len(c.Redis.NodeList()))
	}
	if c.Redis.LockTTLMillis < 1 {
		return fmt.Errorf("LOCK_TTL_MS must be at least 1, got %d", c.Redis.LockTTLMillis)
	}
	if c.Redis.NodeTimeoutMillis < 1 {
		return fmt.Errorf("NODE_TIMEOUT_MS must be at least 1, got %d", c.Redis.NodeTimeoutMillis)
	}
	if c.Redis.NodeTimeoutMillis*10 > c.Redis.LockTTLMillis {
		return fmt.Errorf("NODE_TIMEOUT_MS (%d) must be at most LOCK_TTL_MS/10 (%d)", c.Redis.NodeTimeoutMillis, c.Redis.LockTTLMillis/10)
	}
	if c.Redis.DriftFactor < 0 {
		return fmt.Errorf("DRIFT_FACTOR must be non-negative, got %f", c.Redis.DriftFactor)
	}

	// Validate retry policy
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("LOCK_MAX_RETRIES must be non-negative, got %d", c.Retry.MaxRetries)
	}
	if c.Retry.BaseDelayMicro < 1 {
		return fmt.Errorf("LOCK_BASE_DELAY_MS must be at least 1, got %d", c.Retry.BaseDelayMicro)
	}
	if c.Retry.MaxDelayMicro < c.Retry.BaseDelayMicro {
		return fmt.Errorf("LOCK_MAX_DELAY_MS (%d) must be at least LOCK_BASE_DELAY_MS (%d)", c.Retry.MaxDelayMicro, c.Retry.BaseDelayMicro)
	}
	// maxRetries * maxDelay must stay well under a client-facing timeout; the
	// 30s Fiber ReadTimeout in cmd/api is the relevant ceiling.
	worstCaseRetryMillis := c.Retry.MaxRetries * c.Retry.MaxDelayMicro
	if worstCaseRetryMillis > 20000 {
		return fmt.Errorf("LOCK_MAX_RETRIES * LOCK_MAX_DELAY_MS (%dms) must stay well under the request timeout", worstCaseRetryMillis)
	}

	if c.Reservation.SafetyMarginMillis < 0 {
		return fmt.Errorf("RESERVATION_SAFETY_MARGIN_MS must be non-negative, got %d", c.Reservation.SafetyMarginMillis)
	}
	if c.Reservation.SafetyMarginMillis >= c.Redis.LockTTLMillis {
		return fmt.Errorf("RESERVATION_SAFETY_MARGIN_MS (%d) must be less than LOCK_TTL_MS (%d)", c.Reservation.SafetyMarginMillis, c.Redis.LockTTLMillis)
	}

	return nil
}

// WarnIfDefaultCredentials returns human-readable warnings for any
// production-unsafe defaults still in effect. Intended to be logged once at
// startup, not to block boot.
func (c *Config) WarnIfDefaultCredentials() []string {
	var warnings []string
	if c.DB.Password == "postgres" {
		warnings = append(warnings, "DB_PASSWORD is set to the insecure default; set a strong password in production")
	}
	if c.DB.User == "postgres" {
		warnings = append(warnings, "DB_USER is set to the default superuser name; prefer a dedicated application user")
	}
	if c.DB.SSLMode == "disable" {
		warnings = append(warnings, "DB_SSLMODE is disabled; use require or verify-full in production")
	}
	return warnings
}
