package config

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNoValidSettings is returned by UpdateSettings when a patch contains
// none of the allowed setting keys.
var ErrNoValidSettings = errors.New("no valid settings provided")

// allowedSettingKeys enumerates the settings the API may change. Keys
// outside this set are silently dropped from patches, matching the
// behavior users expect from partial updates.
var allowedSettingKeys = map[string]struct{}{
	"aws_profile":           {},
	"aws_region":            {},
	"s3_bucket":             {},
	"default_upload_folder": {},
	"display_name":          {},
	"log_directory":         {},
}

// AllowedSettingKeys returns the setting keys the API may change, sorted.
func AllowedSettingKeys() []string {
	keys := make([]string, 0, len(allowedSettingKeys))
	for k := range allowedSettingKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Store serializes access to the live configuration and persists settings
// changes back to the settings file.
//
// Engines read the current settings through the store on every operation,
// so a settings change applies to the next job without a restart.
type Store struct {
	mu   sync.RWMutex
	cfg  Config
	path string
}

// NewStore wraps a loaded configuration.
//
// Parameters:
//   - cfg: Configuration to serve (copied; later mutations of cfg are not seen)
//   - path: Settings file path used to persist updates
func NewStore(cfg *Config, path string) *Store {
	return &Store{cfg: *cfg, path: path}
}

// Config returns a copy of the current configuration.
func (s *Store) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Settings returns a copy of the current upload settings.
func (s *Store) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Settings
}

// Path returns the settings file path backing this store.
func (s *Store) Path() string {
	return s.path
}

// UpdateSettings applies the allowed subset of a settings patch, persists
// the result, and installs it as the live configuration.
//
// Unknown keys are dropped. The update is atomic: on validation or write
// failure the previous configuration stays in effect.
//
// Parameters:
//   - patch: Setting keys to new values
//
// Returns:
//   - Settings: The settings after the update
//   - []string: The keys that were actually applied, sorted
//   - error: ErrNoValidSettings, a validation error, or a write error
func (s *Store) UpdateSettings(patch map[string]string) (Settings, []string, error) {
	changed := make([]string, 0, len(patch))
	for k := range patch {
		if _, ok := allowedSettingKeys[k]; ok {
			changed = append(changed, k)
		}
	}
	if len(changed) == 0 {
		return Settings{}, nil, ErrNoValidSettings
	}
	sort.Strings(changed)

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cfg
	for _, k := range changed {
		applySetting(&next.Settings, k, patch[k])
	}

	if err := Validate(&next); err != nil {
		return Settings{}, nil, err
	}
	if err := SaveConfig(&next, s.path); err != nil {
		return Settings{}, nil, fmt.Errorf("failed to persist settings: %w", err)
	}

	s.cfg = next
	return next.Settings, changed, nil
}

// applySetting writes a single allowed setting value.
func applySetting(settings *Settings, key, value string) {
	switch key {
	case "aws_profile":
		settings.AWSProfile = value
	case "aws_region":
		settings.AWSRegion = value
	case "s3_bucket":
		settings.S3Bucket = value
	case "default_upload_folder":
		settings.DefaultUploadFolder = value
	case "display_name":
		settings.DisplayName = value
	case "log_directory":
		settings.LogDirectory = value
	}
}
