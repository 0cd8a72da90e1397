package config

import (
	"fmt"

	"github.com/marmos91/gpibgate/internal/logger"
	"github.com/marmos91/gpibgate/pkg/bridge"
	"github.com/marmos91/gpibgate/pkg/bus"
	busprologix "github.com/marmos91/gpibgate/pkg/bus/prologix"
	"github.com/marmos91/gpibgate/pkg/bus/sim"
	"github.com/marmos91/gpibgate/pkg/metrics"
	"github.com/mitchellh/mapstructure"
)

// decodeSection decodes a type-specific map into out.
//
// Values from YAML and environment variables arrive as strings or generic
// numbers, so decoding is weakly typed and durations may be written as
// "3s".
func decodeSection(section map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(section)
}

// decodeBusConfig decodes and validates the section selected by cfg.Type.
// It returns a sim.Config or a prologix.Config.
func decodeBusConfig(cfg *BusConfig) (any, error) {
	switch cfg.Type {
	case "sim":
		var simCfg sim.Config
		if err := decodeSection(cfg.Sim, &simCfg); err != nil {
			return nil, fmt.Errorf("failed to decode sim bus config: %w", err)
		}
		for addr := range simCfg.Instruments {
			if err := bus.ValidateAddress(addr); err != nil {
				return nil, fmt.Errorf("simulated instrument: %w", err)
			}
		}
		return simCfg, nil

	case "prologix":
		var plxCfg busprologix.Config
		if err := decodeSection(cfg.Prologix, &plxCfg); err != nil {
			return nil, fmt.Errorf("failed to decode prologix bus config: %w", err)
		}
		if err := validate.Struct(&plxCfg); err != nil {
			return nil, formatValidationError(err)
		}
		return plxCfg, nil

	default:
		return nil, fmt.Errorf("unknown bus type: %q", cfg.Type)
	}
}

// CreateBusGate creates the bus gate selected by the configuration.
//
// Supported types:
//   - "sim": in-process simulated instruments (pkg/bus/sim)
//   - "prologix": a Prologix GPIB-Ethernet controller (pkg/bus/prologix)
func CreateBusGate(cfg *BusConfig) (bus.Gate, error) {
	decoded, err := decodeBusConfig(cfg)
	if err != nil {
		return nil, err
	}

	switch c := decoded.(type) {
	case sim.Config:
		logger.Info("Simulated bus with %d instrument(s)", len(c.Instruments))
		return sim.New(c), nil
	case busprologix.Config:
		logger.Info("Prologix controller at %s", c.Address)
		return busprologix.New(c), nil
	default:
		return nil, fmt.Errorf("unknown bus type: %q", cfg.Type)
	}
}

// CreateBridge creates the instrument bridge shared by all adapters.
// A nil busMetrics uses the no-op implementation.
func CreateBridge(cfg *Config, gate bus.Gate, busMetrics metrics.BusMetrics) *bridge.GPIB {
	return bridge.New(gate, bridge.Config{
		Identity:  cfg.Identity,
		MaxClaims: cfg.Bus.MaxClaims,
	}, busMetrics)
}
