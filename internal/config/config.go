// Package config provides configuration management for the Pergamon server.
// Configuration can be loaded from YAML files and environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Lending   LendingConfig   `mapstructure:"lending"`
	Sweep     SweepConfig     `mapstructure:"sweep"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the listen address in host:port format.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds database connection settings.
// Supports both PostgreSQL and SQLite backends.
type DatabaseConfig struct {
	// Driver specifies the database driver: "postgres" or "sqlite".
	Driver string `mapstructure:"driver"`

	// PostgreSQL settings (used when Driver is "postgres")
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`

	// SQLite settings (used when Driver is "sqlite")
	Path            string `mapstructure:"path"`             // Path to SQLite database file
	JournalMode     string `mapstructure:"journal_mode"`     // WAL, DELETE, TRUNCATE, etc.
	BusyTimeout     int    `mapstructure:"busy_timeout"`     // Milliseconds to wait for locks
	CacheSize       int    `mapstructure:"cache_size"`       // Page cache size (negative = KB)
	SynchronousMode string `mapstructure:"synchronous_mode"` // NORMAL, FULL, OFF
}

// DSN returns the PostgreSQL connection string.
// Only valid when Driver is "postgres".
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// IsEmbedded returns true if using an embedded database (SQLite).
func (c DatabaseConfig) IsEmbedded() bool {
	return c.Driver == "sqlite"
}

// RedisConfig holds Redis connection settings.
// Redis only coordinates the reservation expiry sweep across instances;
// the service runs fine with it disabled.
type RedisConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	PoolSize    int           `mapstructure:"pool_size"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	Enabled     bool          `mapstructure:"enabled"`
}

// Addr returns the Redis address in host:port format.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AuthConfig holds token authentication settings.
type AuthConfig struct {
	// JWTSecret is the symmetric key used to sign and verify tokens.
	// Must be set; there is no default.
	JWTSecret string `mapstructure:"jwt_secret"`

	// TokenTTL is how long an issued token stays valid. Tokens are not
	// revocable before expiry; deactivating a user only takes effect via
	// the per-request identity re-resolution.
	TokenTTL time.Duration `mapstructure:"token_ttl"`

	// Issuer is the token issuer claim.
	Issuer string `mapstructure:"issuer"`
}

// LendingConfig holds circulation policy settings.
type LendingConfig struct {
	// LoanPeriod is the default length of a new loan.
	LoanPeriod time.Duration `mapstructure:"loan_period"`

	// Extension is how far a renewal pushes the due date, counted from
	// the renewal time rather than from the previous due date.
	Extension time.Duration `mapstructure:"extension"`

	// ReservationHold is how long a reservation stays active before
	// expiring unfulfilled.
	ReservationHold time.Duration `mapstructure:"reservation_hold"`
}

// SweepConfig holds reservation expiry sweep settings.
type SweepConfig struct {
	// Enabled determines if the background sweep runs in this process.
	Enabled bool `mapstructure:"enabled"`

	// Interval is how often to run the sweep.
	Interval time.Duration `mapstructure:"interval"`

	// LockTTL is how long the sweep lock is held at most.
	LockTTL time.Duration `mapstructure:"lock_ttl"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	// Enabled determines if metrics collection is active.
	Enabled bool `mapstructure:"enabled"`

	// Path is the URL path for the metrics endpoint.
	Path string `mapstructure:"path"`
}

// RateLimitConfig holds login rate limiting settings.
type RateLimitConfig struct {
	// Enabled determines if login rate limiting is active.
	Enabled bool `mapstructure:"enabled"`

	// RequestsPerSecond is the rate of token refill per client IP.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`

	// BurstSize is the maximum number of tokens (burst capacity).
	BurstSize int `mapstructure:"burst_size"`
}

// Load reads configuration from the specified file and environment variables.
// Environment variables take precedence over file values.
// Environment variables are prefixed with PERGAMON_ and use _ as separator.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Environment variable configuration
	v.SetEnvPrefix("PERGAMON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file configuration
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/pergamon")
	}

	// Read config file (optional - environment variables can be used instead)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is acceptable - use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "pergamon")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "pergamon")
	v.SetDefault("database.ssl_mode", "prefer")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.conn_max_idle_time", 5*time.Minute)
	// SQLite defaults
	v.SetDefault("database.path", "./data/pergamon.db")
	v.SetDefault("database.journal_mode", "WAL")
	v.SetDefault("database.busy_timeout", 5000)
	v.SetDefault("database.cache_size", -2000)
	v.SetDefault("database.synchronous_mode", "NORMAL")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.enabled", false)

	// Auth defaults
	v.SetDefault("auth.jwt_secret", "") // Must be provided
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("auth.issuer", "pergamon")

	// Lending policy defaults
	v.SetDefault("lending.loan_period", 14*24*time.Hour)
	v.SetDefault("lending.extension", 14*24*time.Hour)
	v.SetDefault("lending.reservation_hold", 72*time.Hour)

	// Sweep defaults
	v.SetDefault("sweep.enabled", true)
	v.SetDefault("sweep.interval", 5*time.Minute)
	v.SetDefault("sweep.lock_ttl", 1*time.Minute)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// Rate limiting defaults (login endpoint)
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 1)
	v.SetDefault("rate_limit.burst_size", 5)
}

// Validate checks the configuration for required values and valid ranges.
func (c *Config) Validate() error {
	// Validate server configuration
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	// Validate database configuration
	validDrivers := map[string]bool{"postgres": true, "sqlite": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be 'postgres' or 'sqlite'")
	}

	if c.Database.Driver == "postgres" {
		if c.Database.Host == "" {
			return fmt.Errorf("database.host is required for postgres driver")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database.user is required for postgres driver")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database.database is required for postgres driver")
		}
	} else if c.Database.Driver == "sqlite" {
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite driver")
		}
	}

	// Validate auth configuration
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 characters")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}

	// Validate lending policy
	if c.Lending.LoanPeriod <= 0 {
		return fmt.Errorf("lending.loan_period must be positive")
	}
	if c.Lending.Extension <= 0 {
		return fmt.Errorf("lending.extension must be positive")
	}
	if c.Lending.ReservationHold <= 0 {
		return fmt.Errorf("lending.reservation_hold must be positive")
	}

	// Validate logging configuration
	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be one of: trace, debug, info, warn, error, fatal, panic")
	}

	return nil
}

// MustLoad loads configuration or panics on error.
// Useful for main function initialization.
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}
