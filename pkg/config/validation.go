package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validate checks a configuration against the validation rules declared on
// its struct tags.
//
// Parameters:
//   - cfg: Configuration to validate
//
// Returns:
//   - error: Description of the first set of failed rules, or nil
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
