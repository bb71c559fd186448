// Package models - Service configuration and operational settings.
// This file defines the configuration structures for all service components.
//
// Configuration Philosophy:
// - Hierarchical configuration with logical grouping (server, suggest, board, etc.)
// - Environment-friendly defaults that work out of the box
// - Comprehensive validation to catch misconfigurations early
// - All limiter constants live here so they are injected at construction,
//   never scattered as literals through the limiter code
package models

import (
	"errors"
	"fmt"
	"time"
)

// Storage type constants
const (
	StorageTypeMemory   = "memory"
	StorageTypePostgres = "postgres"
	StorageTypeSQLite   = "sqlite"
)

// Config is the root configuration structure containing all service settings.
type Config struct {
	Server        ServerConfig        `yaml:"server" json:"server"`               // HTTP server configuration
	Storage       StorageConfig       `yaml:"storage" json:"storage"`             // Board persistence settings
	Security      SecurityConfig      `yaml:"security" json:"security"`           // Transport rate limiting and identity
	Suggest       SuggestConfig       `yaml:"suggest" json:"suggest"`             // AI suggestion pipeline
	Board         BoardConfig         `yaml:"board" json:"board"`                 // Message board behavior
	Backup        BackupConfig        `yaml:"backup" json:"backup"`               // GitHub board backup
	Logging       LoggingConfig       `yaml:"logging" json:"logging"`             // Logging and output configuration
	Metrics       MetricsConfig       `yaml:"metrics" json:"metrics"`             // Monitoring and metrics
	Observability ObservabilityConfig `yaml:"observability" json:"observability"` // Tracing configuration
}

type ServerConfig struct {
	Port         int           `yaml:"port" json:"port"`
	Host         string        `yaml:"host" json:"host"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	TLSEnabled   bool          `yaml:"tls_enabled" json:"tls_enabled"`
	TLSCertFile  string        `yaml:"tls_cert_file" json:"tls_cert_file"`
	TLSKeyFile   string        `yaml:"tls_key_file" json:"tls_key_file"`
	CORS         CORSConfig    `yaml:"cors" json:"cors"`
}

type CORSConfig struct {
	Enabled        bool     `yaml:"enabled" json:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" json:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" json:"allowed_headers"`
	MaxAge         int      `yaml:"max_age" json:"max_age"`
}

type StorageConfig struct {
	Type     string         `yaml:"type" json:"type"`
	Database DatabaseConfig `yaml:"database" json:"database"`
}

type DatabaseConfig struct {
	DSN             string        `yaml:"dsn" json:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
}

type SecurityConfig struct {
	RateLimit       RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
	RequireDeviceID bool            `yaml:"require_device_id" json:"require_device_id"`
}

// RateLimitConfig controls the transport-level token bucket that fronts the
// whole API. The AI cooldown limiter is configured separately in SuggestConfig.
type RateLimitConfig struct {
	Enabled           bool          `yaml:"enabled" json:"enabled"`
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute"`
	BurstSize         int           `yaml:"burst_size" json:"burst_size"`
	CleanupInterval   time.Duration `yaml:"cleanup_interval" json:"cleanup_interval"`
}

type SuggestConfig struct {
	AI     AIConfig     `yaml:"ai" json:"ai"`
	Limits LimitsConfig `yaml:"limits" json:"limits"`
}

type AIConfig struct {
	APIKey    string        `yaml:"api_key" json:"api_key"`
	BaseURL   string        `yaml:"base_url" json:"base_url"`
	Model     string        `yaml:"model" json:"model"`
	MaxTokens int           `yaml:"max_tokens" json:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
}

// LimitsConfig holds every admission-control and cooldown constant for the
// suggestion endpoint in one immutable value.
type LimitsConfig struct {
	InitialWait   time.Duration `yaml:"initial_wait" json:"initial_wait"`     // cooldown after first success
	MaxWait       time.Duration `yaml:"max_wait" json:"max_wait"`             // cooldown cap
	Window        time.Duration `yaml:"window" json:"window"`                 // hourly quota window
	MaxPerWindow  int           `yaml:"max_per_window" json:"max_per_window"` // calls per window, success or failure
	MaxConcurrent int           `yaml:"max_concurrent" json:"max_concurrent"` // parallel AI calls
	MaxQueue      int           `yaml:"max_queue" json:"max_queue"`           // waiting line size
	WaitTimeout   time.Duration `yaml:"wait_timeout" json:"wait_timeout"`     // max time in the waiting line, 0 = unbounded
	SweepInterval time.Duration `yaml:"sweep_interval" json:"sweep_interval"` // idle identity eviction cadence
}

type BoardConfig struct {
	MaxPostsPerHour   int           `yaml:"max_posts_per_hour" json:"max_posts_per_hour"`
	MaxPostLength     int           `yaml:"max_post_length" json:"max_post_length"`
	MaxUsernameLength int           `yaml:"max_username_length" json:"max_username_length"`
	MaxPosts          int           `yaml:"max_posts" json:"max_posts"`
	Retention         time.Duration `yaml:"retention" json:"retention"`
	BanDuration       time.Duration `yaml:"ban_duration" json:"ban_duration"`
	HideThreshold     int           `yaml:"hide_threshold" json:"hide_threshold"`
}

type BackupConfig struct {
	Enabled  bool          `yaml:"enabled" json:"enabled"`
	Token    string        `yaml:"token" json:"token"`
	Repo     string        `yaml:"repo" json:"repo"`
	Branch   string        `yaml:"branch" json:"branch"`
	Path     string        `yaml:"path" json:"path"`
	Interval time.Duration `yaml:"interval" json:"interval"`
}

type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	Format   string `yaml:"format" json:"format"`
	Output   string `yaml:"output" json:"output"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
	Port    int    `yaml:"port" json:"port"`
}

type ObservabilityConfig struct {
	ServiceName string        `yaml:"service_name" json:"service_name"`
	Tracing     TracingConfig `yaml:"tracing" json:"tracing"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	Exporter     string  `yaml:"exporter" json:"exporter"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" json:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate" json:"sample_rate"`
}

// NewDefaultConfig creates a configuration with production-ready defaults.
// The limiter defaults mirror the values the service has always shipped with:
// 300s initial cooldown doubling to a 3600s cap, 50 calls per trailing hour,
// 10 concurrent AI calls with a 20-deep waiting line.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  60 * time.Second,
			TLSEnabled:   false,
			CORS: CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders: []string{"*"},
				MaxAge:         86400,
			},
		},
		Storage: StorageConfig{
			Type: StorageTypeMemory,
			Database: DatabaseConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		Security: SecurityConfig{
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 120,
				BurstSize:         30,
				CleanupInterval:   5 * time.Minute,
			},
			RequireDeviceID: false,
		},
		Suggest: SuggestConfig{
			AI: AIConfig{
				Model:     "gpt-4o-mini",
				MaxTokens: 1024,
				Timeout:   60 * time.Second,
			},
			Limits: LimitsConfig{
				InitialWait:   300 * time.Second,
				MaxWait:       3600 * time.Second,
				Window:        3600 * time.Second,
				MaxPerWindow:  50,
				MaxConcurrent: 10,
				MaxQueue:      20,
				WaitTimeout:   0,
				SweepInterval: 10 * time.Minute,
			},
		},
		Board: BoardConfig{
			MaxPostsPerHour:   10,
			MaxPostLength:     300,
			MaxUsernameLength: 20,
			MaxPosts:          100,
			Retention:         72 * time.Hour,
			BanDuration:       24 * time.Hour,
			HideThreshold:     3,
		},
		Backup: BackupConfig{
			Enabled:  false,
			Branch:   "main",
			Path:     "board_data",
			Interval: 15 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9090,
		},
		Observability: ObservabilityConfig{
			ServiceName: "outfitter",
			Tracing: TracingConfig{
				Enabled:    false,
				Exporter:   "stdout",
				SampleRate: 1.0,
			},
		},
	}
}

func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("invalid storage config: %w", err)
	}

	if err := c.Security.Validate(); err != nil {
		return fmt.Errorf("invalid security config: %w", err)
	}

	if err := c.Suggest.Validate(); err != nil {
		return fmt.Errorf("invalid suggest config: %w", err)
	}

	if err := c.Board.Validate(); err != nil {
		return fmt.Errorf("invalid board config: %w", err)
	}

	if err := c.Backup.Validate(); err != nil {
		return fmt.Errorf("invalid backup config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("invalid metrics config: %w", err)
	}

	return nil
}

func (sc *ServerConfig) Validate() error {
	if sc.Port <= 0 || sc.Port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}

	if sc.Host == "" {
		return errors.New("host cannot be empty")
	}

	if sc.ReadTimeout < 0 {
		return errors.New("read timeout cannot be negative")
	}

	if sc.WriteTimeout < 0 {
		return errors.New("write timeout cannot be negative")
	}

	if sc.IdleTimeout < 0 {
		return errors.New("idle timeout cannot be negative")
	}

	if sc.TLSEnabled {
		if sc.TLSCertFile == "" {
			return errors.New("TLS cert file is required when TLS is enabled")
		}
		if sc.TLSKeyFile == "" {
			return errors.New("TLS key file is required when TLS is enabled")
		}
	}

	return nil
}

func (stc *StorageConfig) Validate() error {
	switch stc.Type {
	case StorageTypeMemory:
		return nil
	case StorageTypeSQLite, StorageTypePostgres:
		if stc.Database.DSN == "" {
			return errors.New("database DSN is required for database storage")
		}
		return nil
	default:
		return fmt.Errorf("invalid storage type: %s", stc.Type)
	}
}

func (sec *SecurityConfig) Validate() error {
	if sec.RateLimit.Enabled {
		if sec.RateLimit.RequestsPerMinute <= 0 {
			return errors.New("requests per minute must be positive")
		}
		if sec.RateLimit.BurstSize <= 0 {
			return errors.New("burst size must be positive")
		}
	}
	return nil
}

func (sg *SuggestConfig) Validate() error {
	if sg.AI.Model == "" {
		return errors.New("AI model cannot be empty")
	}

	if sg.AI.MaxTokens <= 0 {
		return errors.New("AI max tokens must be positive")
	}

	l := sg.Limits
	if l.InitialWait <= 0 {
		return errors.New("initial wait must be positive")
	}
	if l.MaxWait < l.InitialWait {
		return errors.New("max wait cannot be below initial wait")
	}
	if l.Window <= 0 {
		return errors.New("window must be positive")
	}
	if l.MaxPerWindow <= 0 {
		return errors.New("max per window must be positive")
	}
	if l.MaxConcurrent <= 0 {
		return errors.New("max concurrent must be positive")
	}
	if l.MaxQueue < 0 {
		return errors.New("max queue cannot be negative")
	}
	if l.WaitTimeout < 0 {
		return errors.New("wait timeout cannot be negative")
	}

	return nil
}

func (bc *BoardConfig) Validate() error {
	if bc.MaxPostsPerHour <= 0 {
		return errors.New("max posts per hour must be positive")
	}
	if bc.MaxPostLength <= 0 {
		return errors.New("max post length must be positive")
	}
	if bc.MaxUsernameLength <= 0 {
		return errors.New("max username length must be positive")
	}
	if bc.MaxPosts <= 0 {
		return errors.New("max posts must be positive")
	}
	if bc.Retention <= 0 {
		return errors.New("retention must be positive")
	}
	if bc.BanDuration <= 0 {
		return errors.New("ban duration must be positive")
	}
	if bc.HideThreshold <= 0 {
		return errors.New("hide threshold must be positive")
	}
	return nil
}

func (bk *BackupConfig) Validate() error {
	if !bk.Enabled {
		return nil
	}
	if bk.Token == "" {
		return errors.New("token is required when backup is enabled")
	}
	if bk.Repo == "" {
		return errors.New("repo is required when backup is enabled")
	}
	if bk.Interval <= 0 {
		return errors.New("interval must be positive when backup is enabled")
	}
	return nil
}

func (lc *LoggingConfig) Validate() error {
	validLevels := []string{"debug", "info", "warn", "error"}
	found := false
	for _, vl := range validLevels {
		if lc.Level == vl {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("invalid log level: %s", lc.Level)
	}

	validFormats := []string{"json", "text"}
	found = false
	for _, vf := range validFormats {
		if lc.Format == vf {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("invalid log format: %s", lc.Format)
	}

	validOutputs := []string{"stdout", "stderr", "file"}
	found = false
	for _, vo := range validOutputs {
		if lc.Output == vo {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("invalid log output: %s", lc.Output)
	}

	if lc.Output == "file" && lc.FilePath == "" {
		return errors.New("file path is required when output is file")
	}

	return nil
}

func (mc *MetricsConfig) Validate() error {
	if !mc.Enabled {
		return nil
	}

	if mc.Path == "" {
		return errors.New("metrics path cannot be empty")
	}

	if mc.Port <= 0 || mc.Port > 65535 {
		return errors.New("metrics port must be between 1 and 65535")
	}

	return nil
}
