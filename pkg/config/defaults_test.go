package config

import (
	"testing"
	"time"
)

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.AWSProfile != "default" {
		t.Errorf("Expected default aws_profile 'default', got %q", cfg.AWSProfile)
	}
	if cfg.AWSRegion != "us-west-2" {
		t.Errorf("Expected default aws_region 'us-west-2', got %q", cfg.AWSRegion)
	}
	if cfg.S3Bucket != "" {
		t.Errorf("Expected empty default s3_bucket, got %q", cfg.S3Bucket)
	}
	if cfg.LogDirectory != "logs" {
		t.Errorf("Expected default log_directory 'logs', got %q", cfg.LogDirectory)
	}
	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default log level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default log format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.API.Host != "127.0.0.1" {
		t.Errorf("Expected default API host '127.0.0.1', got %q", cfg.API.Host)
	}
	if cfg.API.Port != 5000 {
		t.Errorf("Expected default API port 5000, got %d", cfg.API.Port)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown timeout 30s, got %v", cfg.ShutdownTimeout)
	}
	if cfg.Uploads.AnalysisWorkers != 0 {
		t.Errorf("Expected automatic analysis_workers (0), got %d", cfg.Uploads.AnalysisWorkers)
	}
	if cfg.Uploads.IOWorkers != 4 {
		t.Errorf("Expected default io_workers 4, got %d", cfg.Uploads.IOWorkers)
	}
	if cfg.Uploads.JobMaxAge != time.Hour {
		t.Errorf("Expected default job_max_age 1h, got %v", cfg.Uploads.JobMaxAge)
	}
	if cfg.Cache.Path == "" {
		t.Error("Expected default cache path to be set")
	}
	if cfg.Cache.PathTTL != time.Hour {
		t.Errorf("Expected default path_ttl 1h, got %v", cfg.Cache.PathTTL)
	}
	if cfg.Cache.BusyTimeout != 30*time.Second {
		t.Errorf("Expected default busy_timeout 30s, got %v", cfg.Cache.BusyTimeout)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.AWSProfile = "wec"
	cfg.Logging.Level = "debug"
	cfg.API.Port = 8123
	cfg.Uploads.IOWorkers = 2

	ApplyDefaults(cfg)

	if cfg.AWSProfile != "wec" {
		t.Errorf("Expected explicit aws_profile to survive, got %q", cfg.AWSProfile)
	}
	if cfg.API.Port != 8123 {
		t.Errorf("Expected explicit port to survive, got %d", cfg.API.Port)
	}
	if cfg.Uploads.IOWorkers != 2 {
		t.Errorf("Expected explicit io_workers to survive, got %d", cfg.Uploads.IOWorkers)
	}

	// Log level is normalized to uppercase
	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected normalized level 'DEBUG', got %q", cfg.Logging.Level)
	}
}

func TestApplyDefaults_MetricsPortOnlyWhenEnabled(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Metrics.Port != 0 {
		t.Errorf("Expected no metrics port when disabled, got %d", cfg.Metrics.Port)
	}

	cfg = &Config{}
	cfg.Metrics.Enabled = true
	ApplyDefaults(cfg)
	if cfg.Metrics.Port != 9090 {
		t.Errorf("Expected metrics port 9090 when enabled, got %d", cfg.Metrics.Port)
	}
}
