package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/gpibgate/pkg/adapter/portmap"
	"github.com/marmos91/gpibgate/pkg/adapter/prologix"
	"github.com/marmos91/gpibgate/pkg/adapter/vxi11"
	"github.com/spf13/viper"
)

// Config represents the complete gateway configuration.
//
// This structure captures all configurable aspects of the gateway:
//   - Logging configuration
//   - Server-wide settings (shutdown, metrics endpoint)
//   - The identity answered for bus address 0
//   - Bus controller selection and configuration (type-specific)
//   - Settings store selection and configuration (type-specific)
//   - Protocol adapter configurations
//
// Configuration sources (in order of precedence):
//  1. Environment variables (GPIBGATE_*)
//  2. Configuration file (YAML or TOML)
//  3. Default values
//
// Type-specific sections follow the same pattern for the bus and the
// settings store: a Type field selects the implementation and only the
// map named after it is decoded, by the implementation's own Config type.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Server contains server-wide settings
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Identity is the *IDN? style string returned for reads from address 0
	Identity string `mapstructure:"identity" yaml:"identity" validate:"required"`

	// Bus selects and configures the GPIB controller
	Bus BusConfig `mapstructure:"bus" yaml:"bus"`

	// Settings selects and configures the line server settings store
	Settings SettingsConfig `mapstructure:"settings" yaml:"settings"`

	// Adapters contains protocol adapter configurations
	Adapters AdaptersConfig `mapstructure:"adapters" yaml:"adapters"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// ServerConfig contains server-wide settings.
type ServerConfig struct {
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"required,gt=0"`

	// Metrics configures the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// MetricsConfig configures the metrics HTTP server.
type MetricsConfig struct {
	// Enabled turns on metrics collection and the /metrics endpoint
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port of the metrics server
	Port int `mapstructure:"port" yaml:"port" validate:"min=0,max=65535"`
}

// BusConfig specifies the GPIB controller.
//
// The Type field determines which gate implementation is used.
// Only the corresponding type-specific configuration section is used.
type BusConfig struct {
	// Type specifies which gate implementation to use
	// Valid values: sim, prologix
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=sim prologix"`

	// MaxClaims bounds the links committed to the bus across all adapters.
	// 0 leaves the limit to each adapter's link table.
	MaxClaims int `mapstructure:"max_claims" yaml:"max_claims" validate:"min=0"`

	// Sim contains simulator configuration
	// Only used when Type = "sim"
	Sim map[string]any `mapstructure:"sim" yaml:"sim"`

	// Prologix contains Prologix GPIB-Ethernet controller configuration
	// Only used when Type = "prologix"
	Prologix map[string]any `mapstructure:"prologix" yaml:"prologix"`
}

// SettingsConfig specifies the settings store used by the line server.
type SettingsConfig struct {
	// Type specifies which store implementation to use
	// Valid values: memory, badger
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=memory badger"`

	// Memory contains memory-specific configuration
	// Only used when Type = "memory"
	Memory map[string]any `mapstructure:"memory" yaml:"memory"`

	// Badger contains BadgerDB-specific configuration
	// Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger" yaml:"badger"`
}

// AdaptersConfig contains all protocol adapter configurations.
// The adapter config types are used directly to avoid duplication.
type AdaptersConfig struct {
	// VXI11 is the VXI-11 core channel
	VXI11 vxi11.Config `mapstructure:"vxi11" yaml:"vxi11"`

	// Portmap is the registration port server VXI-11 clients query first
	Portmap portmap.Config `mapstructure:"portmap" yaml:"portmap"`

	// Prologix is the alternate line protocol server
	Prologix prologix.Config `mapstructure:"prologix" yaml:"prologix"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (GPIBGATE_*)
//  2. Configuration file
//  3. Default values
//
// An empty configPath searches the default location. A missing file is
// not an error: the defaults describe a working simulated gateway.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// envKeys are bound explicitly so that environment variables apply even
// when the config file does not mention the key.
var envKeys = []string{
	"logging.level",
	"logging.format",
	"logging.output",
	"server.shutdown_timeout",
	"server.metrics.enabled",
	"server.metrics.port",
	"identity",
	"bus.type",
	"bus.max_claims",
	"settings.type",
	"adapters.vxi11.enabled",
	"adapters.vxi11.port",
	"adapters.vxi11.max_links",
	"adapters.portmap.enabled",
	"adapters.portmap.port",
	"adapters.portmap.rate_limit",
	"adapters.prologix.enabled",
	"adapters.prologix.port",
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: GPIBGATE_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("GPIBGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// $XDG_CONFIG_HOME/gpibgate/config.{yaml,toml}
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to the
// current directory if the home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "gpibgate")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "gpibgate")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
