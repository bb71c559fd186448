package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"outfitter/internal/models"
)

// Load loads configuration from file and environment variables
func Load(configPath string) (*models.Config, error) {
	// Start with default configuration
	config := models.NewDefaultConfig()

	// Load from file if provided and exists
	if configPath != "" {
		if err := loadFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// Override with environment variables
	loadFromEnvironment(config)

	// Validate the final configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(config *models.Config, filePath string) error {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", filePath)
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return nil
}

// loadFromEnvironment loads configuration from environment variables.
// Secrets (the AI API key, the backup token) are expected to arrive this way
// rather than through the config file.
func loadFromEnvironment(config *models.Config) {
	// Server configuration
	if port := os.Getenv("OUTFITTER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if host := os.Getenv("OUTFITTER_HOST"); host != "" {
		config.Server.Host = host
	}

	if timeout := os.Getenv("OUTFITTER_READ_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Server.ReadTimeout = d
		}
	}

	if timeout := os.Getenv("OUTFITTER_WRITE_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Server.WriteTimeout = d
		}
	}

	if timeout := os.Getenv("OUTFITTER_IDLE_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Server.IdleTimeout = d
		}
	}

	if tls := os.Getenv("OUTFITTER_TLS_ENABLED"); tls != "" {
		config.Server.TLSEnabled = strings.ToLower(tls) == "true"
	}

	if certFile := os.Getenv("OUTFITTER_TLS_CERT_FILE"); certFile != "" {
		config.Server.TLSCertFile = certFile
	}

	if keyFile := os.Getenv("OUTFITTER_TLS_KEY_FILE"); keyFile != "" {
		config.Server.TLSKeyFile = keyFile
	}

	// Storage configuration
	if storageType := os.Getenv("OUTFITTER_STORAGE_TYPE"); storageType != "" {
		config.Storage.Type = storageType
	}

	if dsn := os.Getenv("OUTFITTER_DATABASE_DSN"); dsn != "" {
		config.Storage.Database.DSN = dsn
	}

	if maxOpen := os.Getenv("OUTFITTER_DATABASE_MAX_OPEN_CONNS"); maxOpen != "" {
		if conns, err := strconv.Atoi(maxOpen); err == nil {
			config.Storage.Database.MaxOpenConns = conns
		}
	}

	// Security configuration
	if required := os.Getenv("OUTFITTER_REQUIRE_DEVICE_ID"); required != "" {
		config.Security.RequireDeviceID = strings.ToLower(required) == "true"
	}

	if enabled := os.Getenv("OUTFITTER_RATE_LIMIT_ENABLED"); enabled != "" {
		config.Security.RateLimit.Enabled = strings.ToLower(enabled) == "true"
	}

	if rpm := os.Getenv("OUTFITTER_RATE_LIMIT_RPM"); rpm != "" {
		if n, err := strconv.Atoi(rpm); err == nil {
			config.Security.RateLimit.RequestsPerMinute = n
		}
	}

	// AI configuration
	if key := os.Getenv("OUTFITTER_AI_API_KEY"); key != "" {
		config.Suggest.AI.APIKey = key
	}

	if baseURL := os.Getenv("OUTFITTER_AI_BASE_URL"); baseURL != "" {
		config.Suggest.AI.BaseURL = baseURL
	}

	if model := os.Getenv("OUTFITTER_AI_MODEL"); model != "" {
		config.Suggest.AI.Model = model
	}

	if timeout := os.Getenv("OUTFITTER_AI_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Suggest.AI.Timeout = d
		}
	}

	// Admission and cooldown limits
	if wait := os.Getenv("OUTFITTER_INITIAL_WAIT"); wait != "" {
		if d, err := time.ParseDuration(wait); err == nil {
			config.Suggest.Limits.InitialWait = d
		}
	}

	if wait := os.Getenv("OUTFITTER_MAX_WAIT"); wait != "" {
		if d, err := time.ParseDuration(wait); err == nil {
			config.Suggest.Limits.MaxWait = d
		}
	}

	if max := os.Getenv("OUTFITTER_MAX_PER_HOUR"); max != "" {
		if n, err := strconv.Atoi(max); err == nil {
			config.Suggest.Limits.MaxPerWindow = n
		}
	}

	if max := os.Getenv("OUTFITTER_MAX_CONCURRENT"); max != "" {
		if n, err := strconv.Atoi(max); err == nil {
			config.Suggest.Limits.MaxConcurrent = n
		}
	}

	if max := os.Getenv("OUTFITTER_MAX_QUEUE"); max != "" {
		if n, err := strconv.Atoi(max); err == nil {
			config.Suggest.Limits.MaxQueue = n
		}
	}

	// Backup configuration
	if enabled := os.Getenv("OUTFITTER_BACKUP_ENABLED"); enabled != "" {
		config.Backup.Enabled = strings.ToLower(enabled) == "true"
	}

	if token := os.Getenv("OUTFITTER_BACKUP_TOKEN"); token != "" {
		config.Backup.Token = token
	}

	if repo := os.Getenv("OUTFITTER_BACKUP_REPO"); repo != "" {
		config.Backup.Repo = repo
	}

	if interval := os.Getenv("OUTFITTER_BACKUP_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			config.Backup.Interval = d
		}
	}

	// Logging configuration
	if level := os.Getenv("OUTFITTER_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if format := os.Getenv("OUTFITTER_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}

	if output := os.Getenv("OUTFITTER_LOG_OUTPUT"); output != "" {
		config.Logging.Output = output
	}

	if filePath := os.Getenv("OUTFITTER_LOG_FILE_PATH"); filePath != "" {
		config.Logging.FilePath = filePath
	}

	// Metrics configuration
	if metrics := os.Getenv("OUTFITTER_METRICS_ENABLED"); metrics != "" {
		config.Metrics.Enabled = strings.ToLower(metrics) == "true"
	}

	if path := os.Getenv("OUTFITTER_METRICS_PATH"); path != "" {
		config.Metrics.Path = path
	}

	if port := os.Getenv("OUTFITTER_METRICS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Metrics.Port = p
		}
	}

	// Tracing configuration
	if enabled := os.Getenv("OUTFITTER_TRACING_ENABLED"); enabled != "" {
		config.Observability.Tracing.Enabled = strings.ToLower(enabled) == "true"
	}

	if exporter := os.Getenv("OUTFITTER_TRACING_EXPORTER"); exporter != "" {
		config.Observability.Tracing.Exporter = exporter
	}

	if endpoint := os.Getenv("OUTFITTER_OTLP_ENDPOINT"); endpoint != "" {
		config.Observability.Tracing.OTLPEndpoint = endpoint
	}
}

// SaveExample saves an example configuration file
func SaveExample(filePath string) error {
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	config := models.NewDefaultConfig()

	// Placeholders operators are expected to replace.
	config.Suggest.AI.APIKey = "sk-your-api-key-here"
	config.Backup.Repo = "your-org/board-backup"

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
