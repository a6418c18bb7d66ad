package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// structValidator checks the validate tags on Config and its nested
// sections.
var structValidator = validator.New()

// Validate checks the configuration for errors.
//
// Struct tags cover field-level rules (required values, enums, ranges).
// Cross-field rules that tags cannot express are checked explicitly:
//   - telemetry requires an endpoint when enabled
//   - profiling requires an endpoint when enabled
//   - the badger replay store requires a path
//   - database settings must be coherent for the selected backend
//
// Validation does not mutate the configuration; normalization happens
// in ApplyDefaults.
func Validate(cfg *Config) error {
	if err := structValidator.Struct(cfg); err != nil {
		return err
	}

	if cfg.Telemetry.Enabled && cfg.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry is enabled but no endpoint is configured")
	}
	if cfg.Telemetry.Profiling.Enabled && cfg.Telemetry.Profiling.Endpoint == "" {
		return fmt.Errorf("profiling is enabled but no endpoint is configured")
	}

	if cfg.Idempotency.Backend == "badger" && cfg.Idempotency.Path == "" {
		return fmt.Errorf("idempotency backend %q requires a path", cfg.Idempotency.Backend)
	}
	if cfg.Idempotency.Backend == "redis" && cfg.Idempotency.Redis.Addr == "" {
		return fmt.Errorf("idempotency backend %q requires a redis address", cfg.Idempotency.Backend)
	}

	if err := cfg.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	return nil
}
