package config

import (
	"context"
	"testing"

	"github.com/marmos91/gpibgate/pkg/adapter/portmap"
	"github.com/marmos91/gpibgate/pkg/adapter/prologix"
	"github.com/marmos91/gpibgate/pkg/adapter/vxi11"
	busprologix "github.com/marmos91/gpibgate/pkg/bus/prologix"
	"github.com/marmos91/gpibgate/pkg/bus/sim"
	"github.com/marmos91/gpibgate/pkg/store/settings"
	settingsbadger "github.com/marmos91/gpibgate/pkg/store/settings/badger"
	settingsmemory "github.com/marmos91/gpibgate/pkg/store/settings/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateBusGate_Sim(t *testing.T) {
	gate, err := CreateBusGate(&BusConfig{
		Type: "sim",
		Sim: map[string]any{
			"instruments": map[string]any{"5": "ACME,DMM,1,1"},
		},
	})
	require.NoError(t, err)
	require.IsType(t, &sim.Gate{}, gate)

	ctx := context.Background()
	require.NoError(t, gate.Claim(ctx))
	defer gate.Release()
	require.NoError(t, gate.Write(ctx, 5, []byte("*IDN?\n")))
	out, err := gate.Read(ctx, 5, 64)
	require.NoError(t, err)
	assert.Equal(t, "ACME,DMM,1,1\n", string(out))
}

func TestCreateBusGate_Prologix(t *testing.T) {
	gate, err := CreateBusGate(&BusConfig{
		Type:     "prologix",
		Prologix: map[string]any{"address": "127.0.0.1:1234", "dial_timeout": "1s"},
	})
	require.NoError(t, err)
	assert.IsType(t, &busprologix.Gate{}, gate)
	require.NoError(t, gate.Close())
}

func TestCreateBusGate_Errors(t *testing.T) {
	_, err := CreateBusGate(&BusConfig{Type: "gpib-usb"})
	assert.Error(t, err)

	_, err = CreateBusGate(&BusConfig{Type: "prologix", Prologix: map[string]any{}})
	assert.Error(t, err)

	_, err = CreateBusGate(&BusConfig{
		Type:     "prologix",
		Prologix: map[string]any{"address": "10.0.0.1:1234", "io_timeout": "soon"},
	})
	assert.Error(t, err)
}

func TestCreateBridge(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Identity = "ACME,Gateway,7,1.0"

	gate, err := CreateBusGate(&cfg.Bus)
	require.NoError(t, err)
	br := CreateBridge(cfg, gate, nil)
	defer br.Close()

	out, err := br.Read(context.Background(), 0, 128)
	require.NoError(t, err)
	assert.Equal(t, "ACME,Gateway,7,1.0\n", string(out))
}

func TestCreateSettingsStore(t *testing.T) {
	ctx := context.Background()

	store, err := CreateSettingsStore(ctx, &SettingsConfig{Type: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &settingsmemory.Store{}, store)
	require.NoError(t, store.Close())

	store, err = CreateSettingsStore(ctx, &SettingsConfig{
		Type:   "badger",
		Badger: map[string]any{"db_path": t.TempDir()},
	})
	require.NoError(t, err)
	assert.IsType(t, &settingsbadger.Store{}, store)

	require.NoError(t, store.Put(ctx, "default", settings.BusSettings{Address: 3, EOS: settings.EOSCRLF}))
	got, err := store.Get(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Address)
	require.NoError(t, store.Close())

	_, err = CreateSettingsStore(ctx, &SettingsConfig{Type: "badger", Badger: map[string]any{}})
	assert.Error(t, err)
	_, err = CreateSettingsStore(ctx, &SettingsConfig{Type: "sqlite"})
	assert.Error(t, err)
}

func TestCreateAdapters(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Adapters.Prologix.Enabled = true

	adapters, err := CreateAdapters(cfg, settingsmemory.New(), nil)
	require.NoError(t, err)
	require.Len(t, adapters, 3)

	assert.IsType(t, &vxi11.Adapter{}, adapters[0])
	assert.IsType(t, &portmap.Adapter{}, adapters[1])
	assert.IsType(t, &prologix.Adapter{}, adapters[2])
}

func TestCreateAdapters_Errors(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Adapters.Prologix.Enabled = true
	_, err := CreateAdapters(cfg, nil, nil)
	assert.Error(t, err, "line server without store")

	cfg = GetDefaultConfig()
	cfg.Adapters.VXI11.Enabled = false
	_, err = CreateAdapters(cfg, nil, nil)
	assert.Error(t, err, "portmap without vxi11")

	cfg.Adapters.Portmap.Enabled = false
	_, err = CreateAdapters(cfg, nil, nil)
	assert.Error(t, err, "nothing enabled")
}
