package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outfitter/internal/models"
)

func TestLoad_WithValidConfigFile(t *testing.T) {
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, "test_config.yaml")

	configContent := `
server:
  port: 8080
  host: "localhost"
  read_timeout: 30s
  write_timeout: 120s
  idle_timeout: 60s
  tls_enabled: false
  cors:
    enabled: true
    allowed_origins: ["*"]
    allowed_methods: ["GET", "POST"]
    allowed_headers: ["Content-Type"]
    max_age: 3600

storage:
  type: "sqlite"
  database:
    dsn: "./data/board.db"

security:
  require_device_id: true
  rate_limit:
    enabled: true
    requests_per_minute: 100
    burst_size: 10
    cleanup_interval: 300s

suggest:
  ai:
    api_key: "sk-test"
    model: "gpt-4o"
    max_tokens: 2048
    timeout: 45s
  limits:
    initial_wait: 300s
    max_wait: 3600s
    window: 3600s
    max_per_window: 50
    max_concurrent: 10
    max_queue: 20

board:
  max_posts_per_hour: 5
  max_post_length: 200

logging:
  level: "debug"
  format: "json"
  output: "stdout"

metrics:
  enabled: true
  path: "/metrics"
  port: 9090
`

	err := os.WriteFile(configFile, []byte(configContent), 0644)
	require.NoError(t, err)

	config, err := Load(configFile)
	require.NoError(t, err)

	// Verify server config
	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, "localhost", config.Server.Host)
	assert.Equal(t, 30*time.Second, config.Server.ReadTimeout)
	assert.Equal(t, 120*time.Second, config.Server.WriteTimeout)
	assert.False(t, config.Server.TLSEnabled)

	// Verify CORS config
	assert.True(t, config.Server.CORS.Enabled)
	assert.Equal(t, []string{"*"}, config.Server.CORS.AllowedOrigins)
	assert.Equal(t, 3600, config.Server.CORS.MaxAge)

	// Verify storage config
	assert.Equal(t, models.StorageTypeSQLite, config.Storage.Type)
	assert.Equal(t, "./data/board.db", config.Storage.Database.DSN)

	// Verify security config
	assert.True(t, config.Security.RequireDeviceID)
	assert.True(t, config.Security.RateLimit.Enabled)
	assert.Equal(t, 100, config.Security.RateLimit.RequestsPerMinute)

	// Verify suggest config
	assert.Equal(t, "sk-test", config.Suggest.AI.APIKey)
	assert.Equal(t, "gpt-4o", config.Suggest.AI.Model)
	assert.Equal(t, 45*time.Second, config.Suggest.AI.Timeout)
	assert.Equal(t, 300*time.Second, config.Suggest.Limits.InitialWait)
	assert.Equal(t, 50, config.Suggest.Limits.MaxPerWindow)
	assert.Equal(t, 10, config.Suggest.Limits.MaxConcurrent)
	assert.Equal(t, 20, config.Suggest.Limits.MaxQueue)

	// Verify board overrides with remaining defaults
	assert.Equal(t, 5, config.Board.MaxPostsPerHour)
	assert.Equal(t, 200, config.Board.MaxPostLength)
	assert.Equal(t, 72*time.Hour, config.Board.Retention)

	// Verify logging config
	assert.Equal(t, "debug", config.Logging.Level)

	// Verify metrics config
	assert.True(t, config.Metrics.Enabled)
	assert.Equal(t, 9090, config.Metrics.Port)
}

func TestLoad_WithDefaults(t *testing.T) {
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, "minimal_config.yaml")

	configContent := `
server:
  port: 3000
`

	err := os.WriteFile(configFile, []byte(configContent), 0644)
	require.NoError(t, err)

	config, err := Load(configFile)
	require.NoError(t, err)

	// Verify defaults are applied
	assert.Equal(t, 3000, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)              // Default
	assert.Equal(t, 30*time.Second, config.Server.ReadTimeout)  // Default
	assert.Equal(t, models.StorageTypeMemory, config.Storage.Type)

	// Limiter defaults
	assert.Equal(t, 300*time.Second, config.Suggest.Limits.InitialWait)
	assert.Equal(t, 3600*time.Second, config.Suggest.Limits.MaxWait)
	assert.Equal(t, 50, config.Suggest.Limits.MaxPerWindow)
	assert.Equal(t, 10, config.Suggest.Limits.MaxConcurrent)
	assert.Equal(t, 20, config.Suggest.Limits.MaxQueue)

	// Board defaults
	assert.Equal(t, 10, config.Board.MaxPostsPerHour)
	assert.Equal(t, 300, config.Board.MaxPostLength)
	assert.Equal(t, 100, config.Board.MaxPosts)

	// Logging defaults
	assert.Equal(t, "info", config.Logging.Level)
	assert.Equal(t, "json", config.Logging.Format)
	assert.Equal(t, "stdout", config.Logging.Output)
}

func TestLoad_WithEnvironmentVariables(t *testing.T) {
	t.Setenv("OUTFITTER_PORT", "9999")
	t.Setenv("OUTFITTER_HOST", "127.0.0.1")
	t.Setenv("OUTFITTER_STORAGE_TYPE", "memory")
	t.Setenv("OUTFITTER_AI_API_KEY", "sk-from-env")
	t.Setenv("OUTFITTER_MAX_CONCURRENT", "4")
	t.Setenv("OUTFITTER_REQUIRE_DEVICE_ID", "true")
	t.Setenv("OUTFITTER_LOG_LEVEL", "warn")

	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, "env_config.yaml")

	// Config file with different values (should be overridden by env vars)
	configContent := `
server:
  port: 8080
  host: "localhost"

security:
  require_device_id: false

logging:
  level: "info"
`

	err := os.WriteFile(configFile, []byte(configContent), 0644)
	require.NoError(t, err)

	config, err := Load(configFile)
	require.NoError(t, err)

	// Environment variables should override config file values
	assert.Equal(t, 9999, config.Server.Port)
	assert.Equal(t, "127.0.0.1", config.Server.Host)
	assert.Equal(t, models.StorageTypeMemory, config.Storage.Type)
	assert.Equal(t, "sk-from-env", config.Suggest.AI.APIKey)
	assert.Equal(t, 4, config.Suggest.Limits.MaxConcurrent)
	assert.True(t, config.Security.RequireDeviceID)
	assert.Equal(t, "warn", config.Logging.Level)
}

func TestLoad_NonExistentFile(t *testing.T) {
	_, err := Load("/non/existent/path.yaml")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestLoad_InvalidYAML(t *testing.T) {
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, "invalid.yaml")

	invalidContent := `
server:
  port: 8080
  invalid: [unclosed array
`

	err := os.WriteFile(configFile, []byte(invalidContent), 0644)
	require.NoError(t, err)

	_, err = Load(configFile)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML config")
}

func TestLoad_EmptyConfigFile(t *testing.T) {
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, "empty.yaml")

	err := os.WriteFile(configFile, []byte(""), 0644)
	require.NoError(t, err)

	config, err := Load(configFile)
	require.NoError(t, err)

	// Should have all defaults applied
	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
	assert.Equal(t, models.StorageTypeMemory, config.Storage.Type)
}

func TestLoad_InvalidConfigRejected(t *testing.T) {
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, "bad.yaml")

	// Database storage without a DSN fails validation.
	configContent := `
storage:
  type: "postgres"
`

	err := os.WriteFile(configFile, []byte(configContent), 0644)
	require.NoError(t, err)

	_, err = Load(configFile)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestLoad_WithTLSConfig(t *testing.T) {
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, "tls_config.yaml")

	configContent := `
server:
  port: 8443
  tls_enabled: true
  tls_cert_file: "/path/to/cert.pem"
  tls_key_file: "/path/to/key.pem"
`

	err := os.WriteFile(configFile, []byte(configContent), 0644)
	require.NoError(t, err)

	config, err := Load(configFile)
	require.NoError(t, err)

	assert.Equal(t, 8443, config.Server.Port)
	assert.True(t, config.Server.TLSEnabled)
	assert.Equal(t, "/path/to/cert.pem", config.Server.TLSCertFile)
	assert.Equal(t, "/path/to/key.pem", config.Server.TLSKeyFile)
}

func TestSaveExample(t *testing.T) {
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, "example", "config.yaml")

	require.NoError(t, SaveExample(configFile))

	// The example round-trips through Load.
	config, err := Load(configFile)
	require.NoError(t, err)
	assert.Equal(t, "sk-your-api-key-here", config.Suggest.AI.APIKey)
}

func TestValidate_InvalidPort(t *testing.T) {
	config := models.NewDefaultConfig()
	config.Server.Port = 0

	err := config.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "port must be between 1 and 65535")
}

func TestValidate_LimitsOrdering(t *testing.T) {
	config := models.NewDefaultConfig()
	config.Suggest.Limits.MaxWait = config.Suggest.Limits.InitialWait - time.Second

	err := config.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "max wait cannot be below initial wait")
}

func TestValidate_TLSEnabledWithoutCerts(t *testing.T) {
	config := models.NewDefaultConfig()
	config.Server.TLSEnabled = true

	err := config.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "TLS cert file is required when TLS is enabled")
}
