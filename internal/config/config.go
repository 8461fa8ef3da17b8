// Package config handles configuration loading for the gateway.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the gateway.
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Redis     RedisConfig
	Logging   LoggingConfig
	Resources ResourceConfig
}

// ServerConfig controls the transport and HTTP listener.
type ServerConfig struct {
	Transport       string // "stdio" or "http"
	Port            string
	Env             string
	EnableHTTPS     bool
	SSLCertPath     string
	SSLKeyPath      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// StorageConfig locates the embedded catalog and master key files.
type StorageConfig struct {
	CatalogPath   string
	MasterKeyPath string
}

// AuthConfig controls JWT issuance and the static bootstrap auth token.
type AuthConfig struct {
	JWTSecret     string
	JWTExpiresIn  time.Duration
	StaticAuthToken string
}

// RateLimitConfig controls the REST/MCP request limiter.
type RateLimitConfig struct {
	Enabled     bool
	WindowMS    int
	MaxRequests int
}

// RedisConfig points the rate limiter at an optional Redis backend; a
// blank URL disables Redis and the limiter fails open.
type RedisConfig struct {
	URL string
}

// LoggingConfig controls zerolog's level and encoding.
type LoggingConfig struct {
	Level  string
	Format string // json or console
}

// ResourceConfig caps concurrent database activations and MySQL pools.
type ResourceConfig struct {
	MaxActiveDatabases   int
	MaxActiveConnections int
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Transport:       getEnv("TRANSPORT", "stdio"),
			Port:            getEnv("HTTP_PORT", "8080"),
			Env:             getEnv("ENV", "development"),
			EnableHTTPS:     getBoolEnv("ENABLE_HTTPS", false),
			SSLCertPath:     getEnv("SSL_CERT_PATH", ""),
			SSLKeyPath:      getEnv("SSL_KEY_PATH", ""),
			ReadTimeout:     getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     getDurationEnv("SERVER_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getDurationEnv("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Storage: StorageConfig{
			CatalogPath:   getEnv("CATALOG_PATH", "./data/catalog.db"),
			MasterKeyPath: getEnv("MASTER_KEY_PATH", "./data/master.key"),
		},
		Auth: AuthConfig{
			JWTSecret:       getEnv("JWT_SECRET", ""),
			JWTExpiresIn:    getDurationEnv("JWT_EXPIRES_IN", 24*time.Hour),
			StaticAuthToken: getEnv("AUTH_TOKEN", ""),
		},
		RateLimit: RateLimitConfig{
			Enabled:     getBoolEnv("RATE_LIMIT_ENABLED", true),
			WindowMS:    getIntEnv("RATE_LIMIT_WINDOW_MS", 60000),
			MaxRequests: getIntEnv("RATE_LIMIT_MAX_REQUESTS", 1000),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Resources: ResourceConfig{
			MaxActiveDatabases:   getIntEnv("MAX_ACTIVE_DATABASES", 10),
			MaxActiveConnections: getIntEnv("MAX_ACTIVE_CONNECTIONS", 5),
		},
	}

	return cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}
