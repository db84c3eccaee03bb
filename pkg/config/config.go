package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service configuration, loaded from PERIMETER_*
// environment variables.
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Authz         AuthzConfig
	Audit         AuditConfig
	Allowlist     AllowlistConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server settings. The health port is separate
// so probes keep working while the API port is saturated.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	HealthPort      string
	MaxBodyBytes    int64
}

// DatabaseConfig holds the PostgreSQL connection settings.
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration
}

// RedisConfig holds the optional redis cache settings.
type RedisConfig struct {
	Enabled  bool
	URL      string
	Password string
	DB       int
	PoolSize int
}

// AuthzConfig holds permission resolution settings.
type AuthzConfig struct {
	CacheTTL time.Duration
}

// AuditConfig holds the security event pipeline settings.
type AuditConfig struct {
	RetentionDays    int
	RetentionCron    string
	QueryLimit       int
	WebhookURL       string
	WebhookTimeout   time.Duration
	ArchiveEnabled   bool
	ArchiveBucket    string
	ArchiveRegion    string
	ArchiveEndpoint  string
	ArchiveAccessKey string
	ArchiveSecretKey string
}

// AllowlistConfig holds IP allowlist settings.
type AllowlistConfig struct {
	OverrideToken string
	CacheTTL      time.Duration
}

// ObservabilityConfig holds logging, metrics and tracing settings.
type ObservabilityConfig struct {
	LogLevel           string
	MetricsEnabled     bool
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// LoadConfig reads the environment and validates the result.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Authz:         loadAuthzConfig(),
		Audit:         loadAuditConfig(),
		Allowlist:     loadAllowlistConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("PERIMETER_HOST", "0.0.0.0"),
		Port:            getEnv("PERIMETER_PORT", "8080"),
		ReadTimeout:     getEnvDuration("PERIMETER_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("PERIMETER_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("PERIMETER_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("PERIMETER_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("PERIMETER_HEALTH_PORT", "9090"),
		MaxBodyBytes:    getEnvInt64("PERIMETER_MAX_BODY_BYTES", 1<<20),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:          getEnv("PERIMETER_POSTGRES_URL", ""),
		MaxOpenConns: getEnvInt("PERIMETER_POSTGRES_MAX_CONNS", 25),
		MaxIdleConns: getEnvInt("PERIMETER_POSTGRES_IDLE_CONNS", 5),
		ConnLifetime: getEnvDuration("PERIMETER_POSTGRES_CONN_LIFETIME", 5*time.Minute),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:  getEnvBool("PERIMETER_REDIS_ENABLED", false),
		URL:      getEnv("PERIMETER_REDIS_URL", "localhost:6379"),
		Password: getEnv("PERIMETER_REDIS_PASSWORD", ""),
		DB:       getEnvInt("PERIMETER_REDIS_DB", 0),
		PoolSize: getEnvInt("PERIMETER_REDIS_POOL_SIZE", 10),
	}
}

func loadAuthzConfig() AuthzConfig {
	return AuthzConfig{
		CacheTTL: getEnvDuration("PERIMETER_AUTHZ_CACHE_TTL", 5*time.Minute),
	}
}

func loadAuditConfig() AuditConfig {
	return AuditConfig{
		RetentionDays:    getEnvInt("PERIMETER_AUDIT_RETENTION_DAYS", 90),
		RetentionCron:    getEnv("PERIMETER_AUDIT_RETENTION_CRON", "0 3 * * *"),
		QueryLimit:       getEnvInt("PERIMETER_AUDIT_QUERY_LIMIT", 100),
		WebhookURL:       getEnv("PERIMETER_ALERT_WEBHOOK_URL", ""),
		WebhookTimeout:   getEnvDuration("PERIMETER_ALERT_WEBHOOK_TIMEOUT", 5*time.Second),
		ArchiveEnabled:   getEnvBool("PERIMETER_AUDIT_ARCHIVE_ENABLED", false),
		ArchiveBucket:    getEnv("PERIMETER_AUDIT_ARCHIVE_BUCKET", ""),
		ArchiveRegion:    getEnv("PERIMETER_AUDIT_ARCHIVE_REGION", "us-east-1"),
		ArchiveEndpoint:  getEnv("PERIMETER_AUDIT_ARCHIVE_ENDPOINT", ""),
		ArchiveAccessKey: getEnv("PERIMETER_AUDIT_ARCHIVE_ACCESS_KEY", ""),
		ArchiveSecretKey: getEnv("PERIMETER_AUDIT_ARCHIVE_SECRET_KEY", ""),
	}
}

func loadAllowlistConfig() AllowlistConfig {
	return AllowlistConfig{
		OverrideToken: getEnv("PERIMETER_IP_OVERRIDE_TOKEN", ""),
		CacheTTL:      getEnvDuration("PERIMETER_ALLOWLIST_CACHE_TTL", time.Minute),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           getEnv("PERIMETER_LOG_LEVEL", "info"),
		MetricsEnabled:     getEnvBool("PERIMETER_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("PERIMETER_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("PERIMETER_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("PERIMETER_OTEL_SERVICE_NAME", "perimeter"),
		OTelServiceVersion: getEnv("PERIMETER_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("PERIMETER_OTEL_INSECURE", true),
	}
}

// Validate checks invariants that would otherwise only fail at runtime.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	if c.Authz.CacheTTL <= 0 {
		return fmt.Errorf("authz cache TTL must be positive")
	}

	if c.Audit.RetentionDays <= 0 {
		return fmt.Errorf("audit retention days must be positive")
	}
	if c.Audit.QueryLimit <= 0 {
		return fmt.Errorf("audit query limit must be positive")
	}
	if c.Audit.ArchiveEnabled && c.Audit.ArchiveBucket == "" {
		return fmt.Errorf("archive bucket is required when archiving is enabled")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
