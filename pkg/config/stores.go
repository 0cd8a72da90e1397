package config

import (
	"context"
	"fmt"

	"github.com/marmos91/gpibgate/pkg/store/settings"
	settingsbadger "github.com/marmos91/gpibgate/pkg/store/settings/badger"
	settingsmemory "github.com/marmos91/gpibgate/pkg/store/settings/memory"
)

// memorySettingsConfig has no options.
type memorySettingsConfig struct{}

// decodeSettingsConfig decodes the section selected by cfg.Type.
func decodeSettingsConfig(cfg *SettingsConfig) (any, error) {
	switch cfg.Type {
	case "memory":
		var memCfg memorySettingsConfig
		if err := decodeSection(cfg.Memory, &memCfg); err != nil {
			return nil, fmt.Errorf("invalid memory config: %w", err)
		}
		return memCfg, nil

	case "badger":
		var badgerCfg settingsbadger.Config
		if err := decodeSection(cfg.Badger, &badgerCfg); err != nil {
			return nil, fmt.Errorf("invalid badger config: %w", err)
		}
		if badgerCfg.DBPath == "" && !badgerCfg.InMemory {
			return nil, fmt.Errorf("db_path is required")
		}
		return badgerCfg, nil

	default:
		return nil, fmt.Errorf("unknown settings store type: %q", cfg.Type)
	}
}

// CreateSettingsStore creates the settings store selected by the
// configuration.
//
// Supported types:
//   - "memory": settings live for the process lifetime
//   - "badger": settings persist in a BadgerDB directory
func CreateSettingsStore(ctx context.Context, cfg *SettingsConfig) (settings.Store, error) {
	decoded, err := decodeSettingsConfig(cfg)
	if err != nil {
		return nil, err
	}

	switch c := decoded.(type) {
	case memorySettingsConfig:
		return settingsmemory.New(), nil
	case settingsbadger.Config:
		store, err := settingsbadger.New(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("failed to open badger settings store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown settings store type: %q", cfg.Type)
	}
}
