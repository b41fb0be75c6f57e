package config

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.json")
	cfg := GetDefaultConfig()
	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("Failed to seed settings file: %v", err)
	}
	return NewStore(cfg, path)
}

func TestStore_UpdateSettings(t *testing.T) {
	store := newTestStore(t)

	updated, changed, err := store.UpdateSettings(map[string]string{
		"s3_bucket":   "wec-data",
		"aws_profile": "field-laptop",
	})
	if err != nil {
		t.Fatalf("UpdateSettings failed: %v", err)
	}

	if updated.S3Bucket != "wec-data" {
		t.Errorf("Expected s3_bucket 'wec-data', got %q", updated.S3Bucket)
	}
	if updated.AWSProfile != "field-laptop" {
		t.Errorf("Expected aws_profile 'field-laptop', got %q", updated.AWSProfile)
	}
	if !reflect.DeepEqual(changed, []string{"aws_profile", "s3_bucket"}) {
		t.Errorf("Expected sorted changed keys, got %v", changed)
	}

	// The store serves the new values
	if got := store.Settings().S3Bucket; got != "wec-data" {
		t.Errorf("Expected live settings to update, got bucket %q", got)
	}

	// The change was persisted
	reloaded, err := Load(store.Path())
	if err != nil {
		t.Fatalf("Failed to reload settings file: %v", err)
	}
	if reloaded.S3Bucket != "wec-data" {
		t.Errorf("Expected persisted s3_bucket 'wec-data', got %q", reloaded.S3Bucket)
	}
	if reloaded.AWSRegion != "us-west-2" {
		t.Errorf("Expected untouched aws_region to persist, got %q", reloaded.AWSRegion)
	}
}

func TestStore_UpdateSettings_DropsUnknownKeys(t *testing.T) {
	store := newTestStore(t)

	updated, changed, err := store.UpdateSettings(map[string]string{
		"s3_bucket":     "kept",
		"totally_bogus": "dropped",
	})
	if err != nil {
		t.Fatalf("UpdateSettings failed: %v", err)
	}

	if updated.S3Bucket != "kept" {
		t.Errorf("Expected s3_bucket 'kept', got %q", updated.S3Bucket)
	}
	if !reflect.DeepEqual(changed, []string{"s3_bucket"}) {
		t.Errorf("Expected only the allowed key to apply, got %v", changed)
	}
}

func TestStore_UpdateSettings_NoValidKeys(t *testing.T) {
	store := newTestStore(t)

	_, _, err := store.UpdateSettings(map[string]string{"nope": "x"})
	if !errors.Is(err, ErrNoValidSettings) {
		t.Fatalf("Expected ErrNoValidSettings, got: %v", err)
	}

	_, _, err = store.UpdateSettings(nil)
	if !errors.Is(err, ErrNoValidSettings) {
		t.Fatalf("Expected ErrNoValidSettings for empty patch, got: %v", err)
	}
}

func TestStore_UpdateSettings_RejectsInvalidValue(t *testing.T) {
	store := newTestStore(t)
	before := store.Settings()

	_, _, err := store.UpdateSettings(map[string]string{"aws_profile": ""})
	if err == nil {
		t.Fatal("Expected validation error for empty aws_profile")
	}

	// Failed updates leave the previous settings in effect
	if got := store.Settings(); got != before {
		t.Errorf("Expected settings unchanged after failed update, got %+v", got)
	}
}

func TestAllowedSettingKeys(t *testing.T) {
	keys := AllowedSettingKeys()

	want := []string{
		"aws_profile", "aws_region", "default_upload_folder",
		"display_name", "log_directory", "s3_bucket",
	}
	if !reflect.DeepEqual(keys, want) {
		t.Errorf("Expected allowed keys %v, got %v", want, keys)
	}
}
