package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/trialsite/siteaccess/pkg/hierarchy"
	"github.com/trialsite/siteaccess/pkg/middleware"
	"github.com/trialsite/siteaccess/pkg/observability"
	"github.com/trialsite/siteaccess/pkg/signatures"
	"github.com/trialsite/siteaccess/pkg/storage"
)

const envPrefix = "TRIALSITE_"

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Storage       storage.Config
	Redis         RedisConfig
	Auth          AuthConfig
	Cache         hierarchy.CacheConfig
	RateLimit     middleware.RateLimitConfig
	Signatures    SignatureConfig
	Audit         AuditConfig
	Observability ObservabilityConfig
	FixturePath   string // optional YAML fixture seeded at startup
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
	CORSOrigins     []string

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// RedisConfig configures the rate-limit backend. An empty URL disables
// Redis and the limiter runs in memory.
type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

// AuthConfig configures bearer token verification
type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

// SignatureConfig configures the signature workflow
type SignatureConfig struct {
	TTL           time.Duration
	SweepSchedule string
	WebhookSecret string
}

// AuditConfig configures the audit trail. An empty Dir logs audit
// events through the service logger only.
type AuditConfig struct {
	Dir         string // directory for rotated JSON-lines files
	MaxFileSize int64
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
	OTelSampleRatio    float64
}

// LoadConfig loads configuration from the environment. A .env file in the
// working directory is read first when present; real environment variables
// take precedence over it.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return loadFromEnv()
}

// LoadConfigFile is LoadConfig with an explicit env file
func LoadConfigFile(path string) (*Config, error) {
	if err := godotenv.Load(path); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return loadFromEnv()
}

func loadFromEnv() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Redis:         loadRedisConfig(),
		Auth:          loadAuthConfig(),
		Cache:         loadCacheConfig(),
		RateLimit:     loadRateLimitConfig(),
		Signatures:    loadSignatureConfig(),
		Audit:         loadAuditConfig(),
		Observability: loadObservabilityConfig(),
		FixturePath:   getEnv("FIXTURE", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("HOST", "0.0.0.0"),
		Port:            getEnv("PORT", "8080"),
		ReadTimeout:     getEnvDuration("READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		MaxBodyBytes:    getEnvInt64("MAX_BODY_BYTES", 1<<20),
		CORSOrigins:     getEnvList("CORS_ORIGINS", []string{"http://localhost:3000"}),
		HealthPort:      getEnv("HEALTH_PORT", "9090"),
	}
}

func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	if driver := getEnv("STORAGE_DRIVER", ""); driver != "" {
		cfg.Driver = strings.ToLower(driver)
		if cfg.Driver == "sqlite" {
			cfg.Driver = storage.DriverSQLite
		}
	}
	cfg.DSN = getEnv("DATABASE_URL", cfg.DSN)
	if maxOpen := getEnvInt("DB_MAX_OPEN_CONNS", 0); maxOpen > 0 {
		cfg.MaxOpenConns = maxOpen
	}
	if maxIdle := getEnvInt("DB_MAX_IDLE_CONNS", 0); maxIdle > 0 {
		cfg.MaxIdleConns = maxIdle
	}
	cfg.ConnMaxLifetime = getEnvDuration("DB_CONN_MAX_LIFETIME", cfg.ConnMaxLifetime)
	cfg.PingTimeout = getEnvDuration("DB_PING_TIMEOUT", cfg.PingTimeout)

	return cfg
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:      getEnv("REDIS_URL", ""),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       getEnvInt("REDIS_DB", 0),
		PoolSize: getEnvInt("REDIS_POOL_SIZE", 10),
	}
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		JWTSecret: getEnv("JWT_SECRET", ""),
		Issuer:    getEnv("JWT_ISSUER", "trialsite-identity"),
	}
}

func loadCacheConfig() hierarchy.CacheConfig {
	cfg := hierarchy.DefaultCacheConfig()
	if size := getEnvInt("HIERARCHY_CACHE_SIZE", -1); size >= 0 {
		cfg.Size = size
	}
	cfg.TTL = getEnvDuration("HIERARCHY_CACHE_TTL", cfg.TTL)
	return cfg
}

func loadRateLimitConfig() middleware.RateLimitConfig {
	cfg := *middleware.PerUserRateLimitConfig()
	if n := getEnvInt("RATE_LIMIT_REQUESTS", 0); n > 0 {
		cfg.RequestsPerWindow = n
	}
	cfg.WindowDuration = getEnvDuration("RATE_LIMIT_WINDOW", cfg.WindowDuration)
	if burst := getEnvInt("RATE_LIMIT_BURST", 0); burst > 0 {
		cfg.BurstSize = burst
	}
	return cfg
}

func loadSignatureConfig() SignatureConfig {
	return SignatureConfig{
		TTL:           getEnvDuration("SIGNATURE_TTL", signatures.DefaultTTL),
		SweepSchedule: getEnv("SIGNATURE_SWEEP_SCHEDULE", signatures.DefaultSweepSchedule),
		WebhookSecret: getEnv("SIGNATURE_WEBHOOK_SECRET", ""),
	}
}

func loadAuditConfig() AuditConfig {
	return AuditConfig{
		Dir:         getEnv("AUDIT_DIR", ""),
		MaxFileSize: getEnvInt64("AUDIT_MAX_FILE_SIZE", 100<<20),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("OTEL_SERVICE_NAME", "trialsite-access"),
		OTelServiceVersion: getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("OTEL_SAMPLE_RATIO", 1),
	}
}

// Validate checks if the configuration is valid
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

	switch c.Storage.Driver {
	case storage.DriverMemory:
	case storage.DriverPostgres, storage.DriverSQLite:
		if c.Storage.DSN == "" {
			return fmt.Errorf("%sDATABASE_URL is required for %s storage", envPrefix, c.Storage.Driver)
		}
	default:
		return fmt.Errorf("invalid storage driver: %s (must be memory, postgres, or sqlite)", c.Storage.Driver)
	}

	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("%sJWT_SECRET must be at least 32 bytes", envPrefix)
	}

	if c.RateLimit.WindowDuration <= 0 {
		return fmt.Errorf("rate limit window must be positive")
	}

	if c.Signatures.TTL < 0 {
		return fmt.Errorf("signature TTL must not be negative")
	}
	if _, err := cron.ParseStandard(c.Signatures.SweepSchedule); err != nil {
		return fmt.Errorf("invalid signature sweep schedule %q: %w", c.Signatures.SweepSchedule, err)
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

// getEnv returns a TRIALSITE_ environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(envPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := getEnv(key, ""); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := getEnv(key, ""); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := getEnv(key, ""); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := getEnv(key, ""); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := getEnv(key, ""); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList returns a comma-separated environment variable or a default
func getEnvList(key string, defaultValue []string) []string {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
