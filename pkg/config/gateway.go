package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/gpibgate/internal/logger"
	"github.com/marmos91/gpibgate/pkg/bridge"
	"github.com/marmos91/gpibgate/pkg/server"
	"github.com/marmos91/gpibgate/pkg/store/settings"
)

// Gateway is a fully assembled gateway: bus, bridge, settings store and a
// server with every enabled adapter registered.
type Gateway struct {
	Server   *server.GatewayServer
	Bridge   *bridge.GPIB
	Settings settings.Store
	Metrics  *MetricsResult
}

// InitializeGateway builds a Gateway from the provided configuration.
//
// This function orchestrates the complete initialization process:
//  1. Creates the metrics components (no-op when disabled)
//  2. Creates the bus gate and the bridge over it
//  3. Opens the settings store when the line server is enabled
//  4. Creates the adapters and registers them on a new GatewayServer
//
// On failure everything opened so far is closed again.
//
// Example:
//
//	cfg, _ := config.Load("config.yaml")
//	gw, err := config.InitializeGateway(ctx, cfg)
//	if err != nil {
//	    log.Fatalf("Failed to initialize gateway: %v", err)
//	}
//	defer gw.Close()
//	err = gw.Server.Serve(ctx)
func InitializeGateway(ctx context.Context, cfg *Config) (gw *Gateway, err error) {
	if cfg == nil {
		return nil, errors.New("configuration is nil")
	}
	logger.Debug("Initializing gateway from configuration")

	gw = &Gateway{}
	defer func() {
		if err != nil {
			_ = gw.Close()
			gw = nil
		}
	}()

	gw.Metrics = InitializeMetrics(cfg, func() error {
		if gw.Bridge == nil {
			return bridge.ErrClosed
		}
		return gw.Bridge.Ready()
	})

	gate, err := CreateBusGate(&cfg.Bus)
	if err != nil {
		return gw, fmt.Errorf("failed to create bus: %w", err)
	}
	gw.Bridge = CreateBridge(cfg, gate, gw.Metrics.Bus)

	if cfg.Adapters.Prologix.Enabled {
		gw.Settings, err = CreateSettingsStore(ctx, &cfg.Settings)
		if err != nil {
			return gw, fmt.Errorf("failed to create settings store: %w", err)
		}
		logger.Debug("Settings store %q opened", cfg.Settings.Type)
	}

	adapters, err := CreateAdapters(cfg, gw.Settings, gw.Metrics)
	if err != nil {
		return gw, err
	}

	gw.Server = server.New(gw.Bridge)
	gw.Server.SetStopTimeout(cfg.Server.ShutdownTimeout)
	gw.Server.SetMetricsServer(gw.Metrics.Server)

	for _, a := range adapters {
		if err := gw.Server.AddAdapter(a); err != nil {
			return gw, fmt.Errorf("failed to register %s adapter: %w", a.Protocol(), err)
		}
	}

	return gw, nil
}

// Close releases the bridge and the settings store.
func (g *Gateway) Close() error {
	var errs []error
	if g.Bridge != nil {
		if err := g.Bridge.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close bridge: %w", err))
		}
	}
	if g.Settings != nil {
		if err := g.Settings.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close settings store: %w", err))
		}
	}
	return errors.Join(errs...)
}
