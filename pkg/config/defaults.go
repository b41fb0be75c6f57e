package config

import (
	"strings"
	"time"
)

// DefaultAPIPort is the API server port used when none is configured.
// The CLI falls back to it when the settings file cannot be read.
const DefaultAPIPort = 5000

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
func ApplyDefaults(cfg *Config) {
	applySettingsDefaults(&cfg.Settings)
	applyLoggingDefaults(&cfg.Logging)
	applyAPIDefaults(&cfg.API)
	applyMetricsDefaults(&cfg.Metrics)
	applyUploadDefaults(&cfg.Uploads)
	applyCacheDefaults(&cfg.Cache)
	applyShutdownTimeoutDefaults(cfg)
}

// applySettingsDefaults sets defaults for the user-editable upload settings.
func applySettingsDefaults(cfg *Settings) {
	if cfg.AWSProfile == "" {
		cfg.AWSProfile = "default"
	}
	if cfg.AWSRegion == "" {
		cfg.AWSRegion = "us-west-2"
	}
	if cfg.LogDirectory == "" {
		cfg.LogDirectory = "logs"
	}
	// S3Bucket, DefaultUploadFolder and DisplayName have no defaults. An
	// empty bucket is reported as a configuration error when a job starts.
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyAPIDefaults sets API server defaults.
func applyAPIDefaults(cfg *APIConfig) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultAPIPort
	}
	if cfg.ReadHeaderTimeout == 0 {
		cfg.ReadHeaderTimeout = 10 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	// Enabled defaults to false (opt-in for metrics)
	// Port defaults to 9090 if metrics are enabled
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// applyUploadDefaults sets worker pool defaults.
func applyUploadDefaults(cfg *UploadConfig) {
	// AnalysisWorkers stays zero by default, meaning one worker per CPU
	// minus one. The engine resolves the actual count at start.
	if cfg.IOWorkers == 0 {
		cfg.IOWorkers = 4
	}
	if cfg.JobMaxAge == 0 {
		cfg.JobMaxAge = time.Hour
	}
}

// applyCacheDefaults sets S3 path cache defaults.
func applyCacheDefaults(cfg *CacheConfig) {
	if cfg.Path == "" {
		cfg.Path = GetDefaultCachePath()
	}
	if cfg.PathTTL == 0 {
		cfg.PathTTL = time.Hour
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 30 * time.Second
	}
}

// applyShutdownTimeoutDefaults sets shutdown timeout defaults.
func applyShutdownTimeoutDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating the initial settings file
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
