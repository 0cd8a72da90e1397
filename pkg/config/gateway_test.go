package config

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeGateway(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Adapters.Prologix.Enabled = true
	cfg.Settings.Type = "badger"
	cfg.Settings.Badger = map[string]any{"in_memory": true}

	gw, err := InitializeGateway(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { assert.NoError(t, gw.Close()) }()

	require.NotNil(t, gw.Server)
	require.NotNil(t, gw.Bridge)
	require.NotNil(t, gw.Settings)
	assert.Nil(t, gw.Metrics.Server)

	var protocols []string
	for _, a := range gw.Server.Adapters() {
		protocols = append(protocols, a.Protocol())
	}
	assert.Equal(t, []string{"VXI-11", "portmap", "Prologix"}, protocols)
}

func TestInitializeGateway_NoSettingsStoreWithoutLineServer(t *testing.T) {
	gw, err := InitializeGateway(context.Background(), GetDefaultConfig())
	require.NoError(t, err)
	defer gw.Close()

	assert.Nil(t, gw.Settings)
	assert.Len(t, gw.Server.Adapters(), 2)
}

func TestInitializeGateway_Failure(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Adapters.Prologix.Enabled = true
	cfg.Settings.Type = "badger"
	cfg.Settings.Badger = map[string]any{}

	gw, err := InitializeGateway(context.Background(), cfg)
	assert.Error(t, err)
	assert.Nil(t, gw)

	_, err = InitializeGateway(context.Background(), nil)
	assert.Error(t, err)
}
