package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_SettingsFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "settings.json")

	configContent := `{
    "aws_profile": "robotics",
    "aws_region": "us-east-1",
    "s3_bucket": "wec-recordings",
    "logging": {
        "level": "DEBUG"
    },
    "api": {
        "port": 5100
    }
}`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write settings file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Verify file values were read
	if cfg.AWSProfile != "robotics" {
		t.Errorf("Expected aws_profile 'robotics', got %q", cfg.AWSProfile)
	}
	if cfg.AWSRegion != "us-east-1" {
		t.Errorf("Expected aws_region 'us-east-1', got %q", cfg.AWSRegion)
	}
	if cfg.S3Bucket != "wec-recordings" {
		t.Errorf("Expected s3_bucket 'wec-recordings', got %q", cfg.S3Bucket)
	}
	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected log level 'DEBUG', got %q", cfg.Logging.Level)
	}
	if cfg.API.Port != 5100 {
		t.Errorf("Expected API port 5100, got %d", cfg.API.Port)
	}

	// Verify defaults were applied for missing values
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default output 'stdout', got %q", cfg.Logging.Output)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown_timeout 30s, got %v", cfg.ShutdownTimeout)
	}
	if cfg.Uploads.IOWorkers != 4 {
		t.Errorf("Expected default io_workers 4, got %d", cfg.Uploads.IOWorkers)
	}
	if cfg.Cache.PathTTL != time.Hour {
		t.Errorf("Expected default path_ttl 1h, got %v", cfg.Cache.PathTTL)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	// Loading with no settings file returns a valid default config.
	// This allows first runs and pure environment-variable operation.
	tmpDir := t.TempDir()
	nonExistentPath := filepath.Join(tmpDir, "nonexistent.json")

	cfg, err := Load(nonExistentPath)
	if err != nil {
		t.Fatalf("Expected no error when loading default config, got: %v", err)
	}
	if cfg == nil {
		t.Fatal("Expected default config to be returned")
	}

	if cfg.AWSProfile != "default" {
		t.Errorf("Expected default aws_profile 'default', got %q", cfg.AWSProfile)
	}
	if cfg.AWSRegion != "us-west-2" {
		t.Errorf("Expected default aws_region 'us-west-2', got %q", cfg.AWSRegion)
	}
	if cfg.API.Port != 5000 {
		t.Errorf("Expected default API port 5000, got %d", cfg.API.Port)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.json")

	configContent := `{"aws_profile": "default", nope}`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write settings file: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Expected error with invalid JSON, got nil")
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	// Set environment variables
	_ = os.Setenv("MODAQ_AWS_PROFILE", "station-7")
	_ = os.Setenv("MODAQ_LOGGING_LEVEL", "ERROR")
	_ = os.Setenv("MODAQ_API_PORT", "5200")
	defer func() {
		_ = os.Unsetenv("MODAQ_AWS_PROFILE")
		_ = os.Unsetenv("MODAQ_LOGGING_LEVEL")
		_ = os.Unsetenv("MODAQ_API_PORT")
	}()

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "settings.json")

	configContent := `{
    "aws_profile": "from-file",
    "logging": {
        "level": "INFO"
    }
}`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write settings file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Verify environment variables override the settings file
	if cfg.AWSProfile != "station-7" {
		t.Errorf("Expected aws_profile 'station-7' from env var, got %q", cfg.AWSProfile)
	}
	if cfg.Logging.Level != "ERROR" {
		t.Errorf("Expected level 'ERROR' from env var, got %q", cfg.Logging.Level)
	}
	if cfg.API.Port != 5200 {
		t.Errorf("Expected port 5200 from env var, got %d", cfg.API.Port)
	}
}

func TestLoad_EnvironmentWithoutFile(t *testing.T) {
	// Environment variables apply even when no settings file exists.
	_ = os.Setenv("MODAQ_S3_BUCKET", "env-bucket")
	defer func() {
		_ = os.Unsetenv("MODAQ_S3_BUCKET")
	}()

	tmpDir := t.TempDir()
	cfg, err := Load(filepath.Join(tmpDir, "nonexistent.json"))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.S3Bucket != "env-bucket" {
		t.Errorf("Expected s3_bucket 'env-bucket' from env var, got %q", cfg.S3Bucket)
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "settings.json")

	cfg := GetDefaultConfig()
	cfg.S3Bucket = "round-trip-bucket"
	cfg.DisplayName = "Test Station"
	cfg.Uploads.JobMaxAge = 2 * time.Hour

	if err := SaveConfig(cfg, configPath); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	loaded, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to reload config: %v", err)
	}

	if loaded.S3Bucket != "round-trip-bucket" {
		t.Errorf("Expected s3_bucket 'round-trip-bucket', got %q", loaded.S3Bucket)
	}
	if loaded.DisplayName != "Test Station" {
		t.Errorf("Expected display_name 'Test Station', got %q", loaded.DisplayName)
	}
	if loaded.Uploads.JobMaxAge != 2*time.Hour {
		t.Errorf("Expected job_max_age 2h, got %v", loaded.Uploads.JobMaxAge)
	}
}

func TestEnsureConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "settings.json")

	path, created, err := EnsureConfigFile(configPath)
	if err != nil {
		t.Fatalf("Failed to ensure config file: %v", err)
	}
	if !created {
		t.Error("Expected file to be created on first call")
	}
	if path != configPath {
		t.Errorf("Expected resolved path %q, got %q", configPath, path)
	}

	// Second call finds the existing file
	_, created, err = EnsureConfigFile(configPath)
	if err != nil {
		t.Fatalf("Failed on second ensure: %v", err)
	}
	if created {
		t.Error("Expected file not to be recreated")
	}

	// The generated file loads with defaults intact
	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load generated config: %v", err)
	}
	if cfg.AWSProfile != "default" {
		t.Errorf("Expected aws_profile 'default', got %q", cfg.AWSProfile)
	}
}

func TestMustLoad_CreatesSettingsFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "settings.json")

	cfg, path, err := MustLoad(configPath)
	if err != nil {
		t.Fatalf("MustLoad failed: %v", err)
	}
	if path != configPath {
		t.Errorf("Expected path %q, got %q", configPath, path)
	}
	if cfg.AWSRegion != "us-west-2" {
		t.Errorf("Expected default aws_region, got %q", cfg.AWSRegion)
	}

	if _, err := os.Stat(configPath); err != nil {
		t.Errorf("Expected settings file to exist after MustLoad: %v", err)
	}
}

func TestGetDefaultConfigPath(t *testing.T) {
	path := GetDefaultConfigPath()

	if filepath.Base(path) != "settings.json" {
		t.Errorf("Expected filename 'settings.json', got %q", filepath.Base(path))
	}
}

func TestGetConfigDir(t *testing.T) {
	dir := GetConfigDir()

	if filepath.Base(dir) != "modaq" {
		t.Errorf("Expected directory name 'modaq', got %q", filepath.Base(dir))
	}
}

func TestGetDefaultCachePath(t *testing.T) {
	path := GetDefaultCachePath()

	if filepath.Base(path) != "modaq_upload_cache.db" {
		t.Errorf("Expected filename 'modaq_upload_cache.db', got %q", filepath.Base(path))
	}
}
