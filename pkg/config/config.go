package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config represents the MODAQ uploader configuration.
//
// The user-facing settings (AWS profile, region, bucket, folders) live at the
// top level of the settings file so they stay editable both by hand and
// through the settings API. Service sections (logging, api, metrics, uploads,
// cache) tune the daemon itself.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (MODAQ_*)
//  2. Settings file (JSON)
//  3. Default values (lowest priority)
type Config struct {
	// Settings holds the user-editable upload settings. The fields are
	// flattened into the top level of the settings file, so the on-disk
	// format stays a flat JSON document with keys like "aws_profile".
	Settings `mapstructure:",squash"`

	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" json:"logging"`

	// API contains the HTTP API server configuration
	API APIConfig `mapstructure:"api" json:"api"`

	// Metrics contains Prometheus metrics server configuration
	Metrics MetricsConfig `mapstructure:"metrics" json:"metrics"`

	// Uploads tunes the analysis and transfer worker pools
	Uploads UploadConfig `mapstructure:"uploads" json:"uploads"`

	// Cache configures the local S3 path cache database
	Cache CacheConfig `mapstructure:"cache" json:"cache"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" json:"shutdown_timeout" validate:"required,gt=0"`
}

// Settings holds the upload settings the settings API is allowed to change.
//
// Each field can be overridden by an environment variable with the MODAQ_
// prefix, for example MODAQ_AWS_PROFILE or MODAQ_S3_BUCKET. Environment
// overrides win over the settings file but are not written back to it.
type Settings struct {
	// AWSProfile is the name of the AWS shared-config profile used for S3
	// Default: "default"
	AWSProfile string `mapstructure:"aws_profile" json:"aws_profile" validate:"required"`

	// AWSRegion is the AWS region of the target bucket
	// Default: "us-west-2"
	AWSRegion string `mapstructure:"aws_region" json:"aws_region" validate:"required"`

	// S3Bucket is the destination bucket for recordings.
	// No default; uploads fail with a configuration error until set.
	S3Bucket string `mapstructure:"s3_bucket" json:"s3_bucket"`

	// DefaultUploadFolder is the folder the UI offers for bulk scans (optional)
	DefaultUploadFolder string `mapstructure:"default_upload_folder" json:"default_upload_folder"`

	// DisplayName is a friendly station name shown by clients (optional)
	DisplayName string `mapstructure:"display_name" json:"display_name"`

	// LogDirectory is the root directory for audit logs (JSONL and CSV)
	// Default: "logs"
	LogDirectory string `mapstructure:"log_directory" json:"log_directory"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" json:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" json:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" json:"output" validate:"required"`
}

// APIConfig configures the HTTP API server.
//
// There is intentionally no write timeout: progress endpoints stream
// server-sent events for the life of a job, which can run for hours.
type APIConfig struct {
	// Host is the interface the API listens on
	// Default: "127.0.0.1"
	Host string `mapstructure:"host" json:"host"`

	// Port is the HTTP port for the API
	// Default: 5000
	Port int `mapstructure:"port" json:"port" validate:"required,min=1,max=65535"`

	// ReadHeaderTimeout bounds how long the server waits for request headers
	// Default: 10s
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" json:"read_header_timeout"`

	// IdleTimeout is the keep-alive timeout for idle connections
	// Default: 60s
	IdleTimeout time.Duration `mapstructure:"idle_timeout" json:"idle_timeout"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
// When Enabled is false, no metrics are collected (zero overhead).
type MetricsConfig struct {
	// Enabled controls whether metrics collection and HTTP server are enabled
	Enabled bool `mapstructure:"enabled" json:"enabled"`

	// Port is the HTTP port for the metrics endpoint
	// Default: 9090
	Port int `mapstructure:"port" json:"port" validate:"omitempty,min=1,max=65535"`
}

// UploadConfig tunes the worker pools used during analysis and transfer.
type UploadConfig struct {
	// AnalysisWorkers is the number of workers parsing recordings in parallel.
	// Zero means automatic: one less than the number of CPUs, minimum one.
	AnalysisWorkers int `mapstructure:"analysis_workers" json:"analysis_workers" validate:"omitempty,min=1"`

	// IOWorkers is the number of workers for S3 existence checks, hashing
	// and verification. These are I/O bound, so a small fixed pool suffices.
	// Default: 4
	IOWorkers int `mapstructure:"io_workers" json:"io_workers" validate:"omitempty,min=1"`

	// JobMaxAge is how long finished jobs are kept in memory before the
	// janitor evicts them.
	// Default: 1h
	JobMaxAge time.Duration `mapstructure:"job_max_age" json:"job_max_age" validate:"omitempty,gt=0"`
}

// CacheConfig configures the local SQLite cache of known S3 object paths.
type CacheConfig struct {
	// Path is the SQLite database file for the S3 path cache
	// Default: $XDG_DATA_HOME/modaq/modaq_upload_cache.db
	Path string `mapstructure:"path" json:"path" validate:"required"`

	// PathTTL is how long a cached existence answer stays fresh.
	// Entries older than this are re-checked against S3.
	// Default: 1h
	PathTTL time.Duration `mapstructure:"path_ttl" json:"path_ttl" validate:"omitempty,gt=0"`

	// BusyTimeout is the SQLite busy timeout for concurrent access
	// Default: 30s
	BusyTimeout time.Duration `mapstructure:"busy_timeout" json:"busy_timeout" validate:"omitempty,gt=0"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (MODAQ_*)
//  2. Settings file
//  3. Default values
//
// A missing settings file is not an error; defaults and environment
// variables still apply.
//
// Parameters:
//   - configPath: Path to settings file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Configure viper
	setupViper(v, configPath)

	// Register every key so environment overrides apply even when the
	// settings file is missing or sparse.
	setViperDefaults(v)

	// Read configuration file if it exists
	if _, err := readConfigFile(v); err != nil {
		return nil, err
	}

	// Unmarshal into config struct with custom decode hooks
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Apply defaults for any missing values
	ApplyDefaults(&cfg)

	// Validate configuration
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration, creating the settings file with defaults
// when it does not exist yet. First runs therefore work without any setup;
// users can edit the generated file or drive everything through MODAQ_*
// environment variables.
//
// Parameters:
//   - configPath: Path to settings file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - string: The resolved settings file path
//   - error: Configuration loading or validation error
func MustLoad(configPath string) (*Config, string, error) {
	path, _, err := EnsureConfigFile(configPath)
	if err != nil {
		return nil, path, fmt.Errorf("failed to initialize settings file: %w", err)
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, path, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, path, nil
}

// EnsureConfigFile makes sure a settings file exists, writing one with
// default values when missing.
//
// Parameters:
//   - configPath: Path to settings file (empty string uses default location)
//
// Returns:
//   - string: The resolved settings file path
//   - bool: true when a new file was created
//   - error: Filesystem error while checking or creating the file
func EnsureConfigFile(configPath string) (string, bool, error) {
	if configPath == "" {
		configPath = GetDefaultConfigPath()
	}

	if _, err := os.Stat(configPath); err == nil {
		return configPath, false, nil
	} else if !os.IsNotExist(err) {
		return configPath, false, fmt.Errorf("failed to stat settings file: %w", err)
	}

	if err := SaveConfig(GetDefaultConfig(), configPath); err != nil {
		return configPath, false, err
	}

	return configPath, true, nil
}

// SaveConfig saves the configuration to the specified file path.
// The file is written as indented JSON so it stays hand-editable.
func SaveConfig(cfg *Config, path string) error {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	data = append(data, '\n')

	// Write with restricted permissions (0600 = owner read/write only).
	// Settings may reveal bucket names and folder layouts.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Set up environment variable support
	// Environment variables use MODAQ_ prefix and underscores
	// Example: MODAQ_AWS_PROFILE=robotics, MODAQ_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("MODAQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Configure config file search
	if configPath != "" {
		// Use explicitly specified settings file
		v.SetConfigFile(configPath)
		v.SetConfigType("json")
	} else {
		// Use default location: $XDG_CONFIG_HOME/modaq/settings.json
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("settings")
		v.SetConfigType("json")
	}
}

// setViperDefaults registers a default for every configuration key.
// Viper only consults the environment for keys it knows about, so each key
// must be registered for MODAQ_* overrides to reach Unmarshal.
func setViperDefaults(v *viper.Viper) {
	v.SetDefault("aws_profile", "default")
	v.SetDefault("aws_region", "us-west-2")
	v.SetDefault("s3_bucket", "")
	v.SetDefault("default_upload_folder", "")
	v.SetDefault("display_name", "")
	v.SetDefault("log_directory", "logs")

	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("api.host", "127.0.0.1")
	v.SetDefault("api.port", 5000)
	v.SetDefault("api.read_header_timeout", "10s")
	v.SetDefault("api.idle_timeout", "60s")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.port", 0)

	v.SetDefault("uploads.analysis_workers", 0)
	v.SetDefault("uploads.io_workers", 4)
	v.SetDefault("uploads.job_max_age", "1h")

	v.SetDefault("cache.path", "")
	v.SetDefault("cache.path_ttl", "1h")
	v.SetDefault("cache.busy_timeout", "30s")

	v.SetDefault("shutdown_timeout", "30s")
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error) where fileFound indicates if a config file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		// Check if error is "config file not found"
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found is acceptable - use defaults
			return false, nil
		}
		// Also check for os.PathError when explicit config file doesn't exist
		if os.IsNotExist(err) {
			// Config file not found is acceptable - use defaults
			return false, nil
		}
		// Other errors are problems
		return false, fmt.Errorf("failed to read settings file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
	)
}

// durationDecodeHook returns a mapstructure decode hook that converts strings
// to time.Duration. This enables config files to use human-readable durations
// like "30s", "5m", "1h".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		// Only handle conversion to time.Duration
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			// Parse duration string like "30s", "5m", "1h"
			return time.ParseDuration(v)
		case int:
			// Assume nanoseconds for raw integers
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			// JSON deserializes numbers as float64
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	// Check XDG_CONFIG_HOME
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "modaq")
	}

	// Fall back to ~/.config
	home, err := os.UserHomeDir()
	if err != nil {
		// If we can't get home dir, use current directory as last resort
		return "."
	}

	return filepath.Join(home, ".config", "modaq")
}

// getDataDir returns the data directory path for files the service owns,
// like the S3 path cache database.
//
// Uses XDG_DATA_HOME if set, otherwise ~/.local/share, or falls back to
// current directory (.) if home directory cannot be determined.
func getDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "modaq")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".local", "share", "modaq")
}

// GetDefaultConfigPath returns the default settings file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "settings.json")
}

// GetDefaultCachePath returns the default S3 path cache database location.
func GetDefaultCachePath() string {
	return filepath.Join(getDataDir(), "modaq_upload_cache.db")
}

// DefaultConfigExists checks if a settings file exists at the default location.
func DefaultConfigExists() bool {
	path := GetDefaultConfigPath()
	_, err := os.Stat(path)
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for the CLI).
func GetConfigDir() string {
	return getConfigDir()
}
