package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := Default()
	cfg.DataStore.URL = "mem://"
	cfg.JWT.Secret = "test-secret"
	cfg.Identity.Backend = "memory"
	return cfg
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, ":8080", cfg.Server.Port)
	assert.Equal(t, "users", cfg.DataStore.UsersCollection)
	assert.Equal(t, time.Second, cfg.Verification.PollInterval)
	assert.Equal(t, 15*time.Minute, cfg.Verification.Timeout)
	assert.Equal(t, "firebase", cfg.Identity.Backend)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing store url", func(c *Config) { c.DataStore.URL = "" }, "DATA_STORE_URL is required"},
		{"relative store url", func(c *Config) { c.DataStore.URL = "users" }, "DATA_STORE_URL must be an absolute URL"},
		{"missing jwt secret", func(c *Config) { c.JWT.Secret = "" }, "JWT_SECRET is required"},
		{"firebase without key", func(c *Config) { c.Identity.Backend = "firebase" }, "FIREBASE_API_KEY is required"},
		{"unknown identity backend", func(c *Config) { c.Identity.Backend = "ldap" }, `IDENTITY_BACKEND "ldap" is not supported`},
		{"bad poll interval", func(c *Config) { c.Verification.PollInterval = 0 }, "VERIFICATION_POLL_INTERVAL must be positive"},
		{"negative attempts", func(c *Config) { c.Verification.MaxAttempts = -1 }, "VERIFICATION_MAX_ATTEMPTS cannot be negative"},
		{"production short secret", func(c *Config) { c.App.Environment = "production" }, "JWT_SECRET must be at least 32 characters"},
		{"production memory identity", func(c *Config) { c.App.Environment = "production" }, "IDENTITY_BACKEND=memory is not allowed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
dataStore:
  url: postgres://user:pw@localhost:5432/accounts
identity:
  backend: memory
verification:
  pollInterval: 250ms
  maxAttempts: 40
logging:
  format: console
`), 0o600))

	cfg := Default()
	require.NoError(t, cfg.LoadFile(path))

	assert.Equal(t, "postgres://user:pw@localhost:5432/accounts", cfg.DataStore.URL)
	assert.Equal(t, "memory", cfg.Identity.Backend)
	assert.Equal(t, 250*time.Millisecond, cfg.Verification.PollInterval)
	assert.Equal(t, 40, cfg.Verification.MaxAttempts)
	assert.Equal(t, "console", cfg.Logging.Format)
	// untouched keys keep their defaults
	assert.Equal(t, 15*time.Minute, cfg.Verification.Timeout)
	assert.Equal(t, "users", cfg.DataStore.UsersCollection)
}

func TestLoadFile_Errors(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.LoadFile(filepath.Join(t.TempDir(), "missing.yaml")))

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o600))
	assert.Error(t, cfg.LoadFile(path))
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("DATA_STORE_URL", "redis://localhost:6379/0")
	t.Setenv("VERIFICATION_TIMEOUT", "2m")
	t.Setenv("VERIFICATION_MAX_ATTEMPTS", "not-a-number")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.test, https://b.test")
	t.Setenv("RATE_LIMIT_ENABLED", "false")

	cfg := Default()
	cfg.Verification.MaxAttempts = 7
	cfg.ApplyEnvOverrides()

	assert.Equal(t, "redis://localhost:6379/0", cfg.DataStore.URL)
	assert.Equal(t, 2*time.Minute, cfg.Verification.Timeout)
	assert.Equal(t, 7, cfg.Verification.MaxAttempts)
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.CORS.AllowedOrigins)
	assert.False(t, cfg.RateLimit.Enabled)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("identity:\n  backend: memory\n"), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("DATA_STORE_URL", "mem://")
	t.Setenv("JWT_SECRET", "from-env")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Identity.Backend)
	assert.Equal(t, "mem://", cfg.DataStore.URL)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())
}

func TestString_RedactsSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.DataStore.URL = "postgres://user:hunter2@db:5432/accounts"

	s := cfg.String()
	assert.NotContains(t, s, "hunter2")
	assert.NotContains(t, s, "test-secret")
	assert.Contains(t, s, "db:5432")

	assert.Equal(t, "mem://", redactURL("mem://"))
	assert.NotContains(t, redactURL("https://x.firebaseio.com/?auth=tok"), "tok")
}

func TestLoadClient_NoServerSettings(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("IDENTITY_BACKEND", "memory")
	t.Setenv("DATA_STORE_URL", "mem://")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET is required")

	cfg, err := LoadClient()
	require.NoError(t, err)
	assert.Equal(t, "mem://", cfg.DataStore.URL)
}

func TestValidateBackends(t *testing.T) {
	cfg := validConfig()
	cfg.JWT.Secret = ""
	assert.NoError(t, cfg.ValidateBackends())

	cfg.Verification.PollInterval = 0
	err := cfg.ValidateBackends()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VERIFICATION_POLL_INTERVAL must be positive")
}
