// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC timezone to prevent drift bugs in day-based scoring.
//  2. Load a .env file via godotenv (non-fatal if absent).
//  3. Process envconfig struct tags to populate the Config struct.
//  4. Validate the struct using go-playground/validator.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// LoadConfig loads and validates the Backburner configuration from the
// environment. It is called once per process at startup; any error is fatal.
func LoadConfig() (*Config, error) {
	// The resurfacing score's age component counts whole days between
	// timestamps. Pinning the process to UTC keeps that arithmetic and the
	// recency window consistent across deployments.
	time.Local = time.UTC

	// godotenv.Load silently succeeds if no .env file exists and never
	// overrides variables already present in the environment.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("processing environment config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validate runs struct-tag validation over the loaded config and wraps the
// first failure with the offending field path for a useful startup error.
func validate(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if ok := asValidationErrors(err, &verrs); ok && len(verrs) > 0 {
			first := verrs[0]
			return fmt.Errorf("invalid configuration: field %s failed rule %q", first.Namespace(), first.Tag())
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// asValidationErrors unwraps validator.ValidationErrors without panicking on
// other error kinds (e.g. InvalidValidationError).
func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return false
	}
	*target = verrs
	return true
}
