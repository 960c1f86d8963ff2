package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `yaml:"server"`

	// Profile data store configuration
	DataStore DataStoreConfig `yaml:"dataStore"`

	// Identity backend configuration
	Identity IdentityConfig `yaml:"identity"`

	// Email verification polling
	Verification VerificationConfig `yaml:"verification"`

	// JWT configuration
	JWT JWTConfig `yaml:"jwt"`

	// Rate limiting configuration
	RateLimit RateLimitConfig `yaml:"rateLimit"`

	// WebSocket configuration
	WebSocket WebSocketConfig `yaml:"websocket"`

	// CORS configuration
	CORS CORSConfig `yaml:"cors"`

	// Metrics configuration
	Metrics MetricsConfig `yaml:"metrics"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging"`

	// Application metadata
	App AppConfig `yaml:"app"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// DataStoreConfig selects and configures the profile store.
// The URL scheme picks the implementation.
type DataStoreConfig struct {
	URL             string `yaml:"url"`
	UsersCollection string `yaml:"usersCollection"`
	AutoMigrate     bool   `yaml:"autoMigrate"`
}

// IdentityConfig selects and configures the identity backend.
type IdentityConfig struct {
	Backend        string        `yaml:"backend"` // firebase, memory
	FirebaseAPIKey string        `yaml:"firebaseApiKey"`
	IdentityURL    string        `yaml:"identityUrl"`
	TokenURL       string        `yaml:"tokenUrl"`
	HTTPTimeout    time.Duration `yaml:"httpTimeout"`
}

// VerificationConfig bounds the email verification poll.
type VerificationConfig struct {
	PollInterval time.Duration `yaml:"pollInterval"`
	MaxAttempts  int           `yaml:"maxAttempts"`
	Timeout      time.Duration `yaml:"timeout"`
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret         string        `yaml:"secret"`
	AccessTokenTTL time.Duration `yaml:"accessTokenTTL"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	BurstSize         int     `yaml:"burstSize"`
	AuthRPS           float64 `yaml:"authRps"` // Stricter limit for auth endpoints
	AuthBurst         int     `yaml:"authBurst"`
}

// WebSocketConfig holds WebSocket configuration
type WebSocketConfig struct {
	AllowedOrigins  []string      `yaml:"allowedOrigins"`
	ReadBufferSize  int           `yaml:"readBufferSize"`
	WriteBufferSize int           `yaml:"writeBufferSize"`
	PingInterval    time.Duration `yaml:"pingInterval"`
	PongWait        time.Duration `yaml:"pongWait"`
}

// CORSConfig holds cross-origin settings for the HTTP API
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowedOrigins"`
	MaxAge         int      `yaml:"maxAge"`
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text, console
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		DataStore: DataStoreConfig{
			UsersCollection: "users",
			AutoMigrate:     true,
		},
		Identity: IdentityConfig{
			Backend:     "firebase",
			HTTPTimeout: 15 * time.Second,
		},
		Verification: VerificationConfig{
			PollInterval: time.Second,
			Timeout:      15 * time.Minute,
		},
		JWT: JWTConfig{
			AccessTokenTTL: 1 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 10,
			BurstSize:         20,
			AuthRPS:           1,
			AuthBurst:         5,
		},
		WebSocket: WebSocketConfig{
			AllowedOrigins:  []string{},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			PingInterval:    54 * time.Second,
			PongWait:        60 * time.Second,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
			MaxAge:         300,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		App: AppConfig{
			Name:        "accounts",
			Version:     "dev",
			Environment: "development",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file named by
// CONFIG_FILE, and environment variables, in that order of precedence.
func Load() (*Config, error) {
	return load((*Config).Validate)
}

// LoadClient is Load for tools that only talk to the backends. Server-only
// settings such as JWT_SECRET are not required.
func LoadClient() (*Config, error) {
	return load((*Config).ValidateBackends)
}

func load(validate func(*Config) error) (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.ApplyEnvOverrides()

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFile overlays the YAML document at path. Keys absent from the file
// keep their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// ApplyEnvOverrides replaces values for which an environment variable is set.
func (c *Config) ApplyEnvOverrides() {
	c.Server.Port = getEnvOrDefault("SERVER_PORT", c.Server.Port)
	c.Server.ReadTimeout = getDurationOrDefault("SERVER_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getDurationOrDefault("SERVER_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getDurationOrDefault("SERVER_IDLE_TIMEOUT", c.Server.IdleTimeout)
	c.Server.ShutdownTimeout = getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	c.DataStore.URL = getEnvOrDefault("DATA_STORE_URL", c.DataStore.URL)
	c.DataStore.UsersCollection = getEnvOrDefault("DATA_STORE_USERS_COLLECTION", c.DataStore.UsersCollection)
	c.DataStore.AutoMigrate = getBoolOrDefault("DATA_STORE_AUTO_MIGRATE", c.DataStore.AutoMigrate)

	c.Identity.Backend = getEnvOrDefault("IDENTITY_BACKEND", c.Identity.Backend)
	c.Identity.FirebaseAPIKey = getEnvOrDefault("FIREBASE_API_KEY", c.Identity.FirebaseAPIKey)
	c.Identity.IdentityURL = getEnvOrDefault("FIREBASE_IDENTITY_URL", c.Identity.IdentityURL)
	c.Identity.TokenURL = getEnvOrDefault("FIREBASE_TOKEN_URL", c.Identity.TokenURL)
	c.Identity.HTTPTimeout = getDurationOrDefault("IDENTITY_HTTP_TIMEOUT", c.Identity.HTTPTimeout)

	c.Verification.PollInterval = getDurationOrDefault("VERIFICATION_POLL_INTERVAL", c.Verification.PollInterval)
	c.Verification.MaxAttempts = getIntOrDefault("VERIFICATION_MAX_ATTEMPTS", c.Verification.MaxAttempts)
	c.Verification.Timeout = getDurationOrDefault("VERIFICATION_TIMEOUT", c.Verification.Timeout)

	c.JWT.Secret = getEnvOrDefault("JWT_SECRET", c.JWT.Secret)
	c.JWT.AccessTokenTTL = getDurationOrDefault("JWT_ACCESS_TOKEN_TTL", c.JWT.AccessTokenTTL)

	c.RateLimit.Enabled = getBoolOrDefault("RATE_LIMIT_ENABLED", c.RateLimit.Enabled)
	c.RateLimit.RequestsPerSecond = getFloatOrDefault("RATE_LIMIT_RPS", c.RateLimit.RequestsPerSecond)
	c.RateLimit.BurstSize = getIntOrDefault("RATE_LIMIT_BURST", c.RateLimit.BurstSize)
	c.RateLimit.AuthRPS = getFloatOrDefault("RATE_LIMIT_AUTH_RPS", c.RateLimit.AuthRPS)
	c.RateLimit.AuthBurst = getIntOrDefault("RATE_LIMIT_AUTH_BURST", c.RateLimit.AuthBurst)

	c.WebSocket.AllowedOrigins = getStringSliceOrDefault("WS_ALLOWED_ORIGINS", c.WebSocket.AllowedOrigins)
	c.WebSocket.ReadBufferSize = getIntOrDefault("WS_READ_BUFFER_SIZE", c.WebSocket.ReadBufferSize)
	c.WebSocket.WriteBufferSize = getIntOrDefault("WS_WRITE_BUFFER_SIZE", c.WebSocket.WriteBufferSize)
	c.WebSocket.PingInterval = getDurationOrDefault("WS_PING_INTERVAL", c.WebSocket.PingInterval)
	c.WebSocket.PongWait = getDurationOrDefault("WS_PONG_WAIT", c.WebSocket.PongWait)

	c.CORS.AllowedOrigins = getStringSliceOrDefault("CORS_ALLOWED_ORIGINS", c.CORS.AllowedOrigins)
	c.CORS.MaxAge = getIntOrDefault("CORS_MAX_AGE", c.CORS.MaxAge)

	c.Metrics.Enabled = getBoolOrDefault("METRICS_ENABLED", c.Metrics.Enabled)
	c.Metrics.Path = getEnvOrDefault("METRICS_PATH", c.Metrics.Path)

	c.Logging.Level = getEnvOrDefault("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnvOrDefault("LOG_FORMAT", c.Logging.Format)

	c.App.Name = getEnvOrDefault("APP_NAME", c.App.Name)
	c.App.Version = getEnvOrDefault("APP_VERSION", c.App.Version)
	c.App.Environment = getEnvOrDefault("APP_ENV", c.App.Environment)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	errs := c.backendErrors()

	if c.JWT.Secret == "" {
		errs = append(errs, "JWT_SECRET is required")
	}

	// Security validations
	if c.App.Environment == "production" {
		if len(c.JWT.Secret) < 32 {
			errs = append(errs, "JWT_SECRET must be at least 32 characters in production")
		}

		if len(c.WebSocket.AllowedOrigins) == 0 {
			errs = append(errs, "WS_ALLOWED_ORIGINS must be set in production")
		}
	}

	return joinErrors(errs)
}

// ValidateBackends checks only the identity, data store and verification settings.
func (c *Config) ValidateBackends() error {
	return joinErrors(c.backendErrors())
}

func joinErrors(errs []string) error {
	if len(errs) > 0 {
		return errors.New("configuration errors:\n  - " + strings.Join(errs, "\n  - "))
	}
	return nil
}

func (c *Config) backendErrors() []string {
	var errs []string

	// Required fields
	if c.DataStore.URL == "" {
		errs = append(errs, "DATA_STORE_URL is required")
	} else if u, err := url.Parse(c.DataStore.URL); err != nil || u.Scheme == "" {
		errs = append(errs, "DATA_STORE_URL must be an absolute URL")
	}

	switch c.Identity.Backend {
	case "firebase":
		if c.Identity.FirebaseAPIKey == "" {
			errs = append(errs, "FIREBASE_API_KEY is required for the firebase identity backend")
		}
	case "memory":
	default:
		errs = append(errs, fmt.Sprintf("IDENTITY_BACKEND %q is not supported", c.Identity.Backend))
	}

	if c.App.Environment == "production" && c.Identity.Backend == "memory" {
		errs = append(errs, "IDENTITY_BACKEND=memory is not allowed in production")
	}

	// Logical validations
	if c.Verification.PollInterval <= 0 {
		errs = append(errs, "VERIFICATION_POLL_INTERVAL must be positive")
	}
	if c.Verification.MaxAttempts < 0 {
		errs = append(errs, "VERIFICATION_MAX_ATTEMPTS cannot be negative")
	}

	return errs
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// Helper functions

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

// String returns a redacted string representation of the config (safe for logging)
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Server: %s, DataStore: %s, Identity: %s, JWT: [REDACTED], RateLimit: %v, Environment: %s}",
		c.Server.Port,
		redactURL(c.DataStore.URL),
		c.Identity.Backend,
		c.RateLimit.Enabled,
		c.App.Environment,
	)
}

// redactURL hides credentials embedded in a store URL
func redactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "[REDACTED]"
	}

	q := u.Query()
	sensitiveQuery := q.Has("auth") || q.Has("password")
	if u.User == nil && !sensitiveQuery {
		return raw
	}

	if u.User != nil {
		u.User = url.User("REDACTED")
	}
	if sensitiveQuery {
		u.RawQuery = ""
	}
	return u.String()
}
