package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// Struct tags cover field ranges and enumerations. Custom rules cover what
// spans fields: adapter dependencies, port collisions, the per-adapter
// invariants and the type-specific bus and store sections.
//
// Log level normalization is handled in ApplyDefaults; validation accepts
// both cases.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	a := &cfg.Adapters

	if !a.VXI11.Enabled && !a.Prologix.Enabled {
		return errors.New("adapters: at least one of vxi11 or prologix must be enabled")
	}

	// the port mapper only ever answers for the VXI-11 channel
	if a.Portmap.Enabled && !a.VXI11.Enabled {
		return errors.New("adapters.portmap: requires adapters.vxi11 to be enabled")
	}

	if a.VXI11.Enabled {
		if err := a.VXI11.Validate(); err != nil {
			return fmt.Errorf("adapters.vxi11: %w", err)
		}
	}
	if a.Portmap.Enabled {
		if err := a.Portmap.Validate(); err != nil {
			return fmt.Errorf("adapters.portmap: %w", err)
		}
	}
	if a.Prologix.Enabled {
		if err := a.Prologix.Validate(); err != nil {
			return fmt.Errorf("adapters.prologix: %w", err)
		}
	}

	if err := validatePorts(cfg); err != nil {
		return err
	}

	if _, err := decodeBusConfig(&cfg.Bus); err != nil {
		return fmt.Errorf("bus.%s: %w", cfg.Bus.Type, err)
	}
	if _, err := decodeSettingsConfig(&cfg.Settings); err != nil {
		return fmt.Errorf("settings.%s: %w", cfg.Settings.Type, err)
	}

	return nil
}

// validatePorts rejects two enabled listeners on the same port.
func validatePorts(cfg *Config) error {
	used := make(map[int]string)
	claim := func(name string, enabled bool, port int) error {
		if !enabled || port == 0 {
			return nil
		}
		if other, ok := used[port]; ok {
			return fmt.Errorf("%s: port %d already used by %s", name, port, other)
		}
		used[port] = name
		return nil
	}

	a := &cfg.Adapters
	if err := claim("adapters.vxi11", a.VXI11.Enabled, a.VXI11.Port); err != nil {
		return err
	}
	if err := claim("adapters.portmap", a.Portmap.Enabled, a.Portmap.Port); err != nil {
		return err
	}
	if err := claim("adapters.prologix", a.Prologix.Enabled, a.Prologix.Port); err != nil {
		return err
	}
	return claim("server.metrics", cfg.Server.Metrics.Enabled, cfg.Server.Metrics.Port)
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
