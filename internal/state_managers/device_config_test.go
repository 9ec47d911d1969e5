package state_managers_test

import (
	"encoding/json"
	"errors"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/benmeehan/killswitch/internal/mocks"
	"github.com/benmeehan/killswitch/internal/state_managers"
	"github.com/benmeehan/killswitch/pkg/file"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newConfigManager(t *testing.T, maxSize int64) (*state_managers.DeviceConfigManager, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	return state_managers.NewDeviceConfigManager(path, maxSize, "CYLENCE_abc123", file.NewFileService(), zerolog.Nop()), path
}

func writeDoc(t *testing.T, path string, doc map[string]any) {
	t.Helper()
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))
}

func TestDeviceConfigManager_Defaults(t *testing.T) {
	m, _ := newConfigManager(t, 0)

	cfg := m.Defaults()

	assert.Equal(t, "CYLENCE_abc123", cfg.Hostname)
	assert.False(t, cfg.UseDHCP)
	assert.Equal(t, netip.MustParseAddr("192.168.0.238"), cfg.IP)
	assert.Equal(t, netip.MustParseAddr("192.168.0.1"), cfg.Gateway)
	assert.Equal(t, netip.MustParseAddr("255.255.255.0"), cfg.SubnetMask)
	assert.Equal(t, netip.MustParseAddr("192.168.0.1"), cfg.DNS)
	assert.Equal(t, 8883, cfg.MQTTPort)
	assert.Equal(t, "cylence/control", cfg.MQTTTopicControl)
	assert.Equal(t, "cylence/status", cfg.MQTTTopicStatus)
	assert.Equal(t, "redqueen/config", cfg.MQTTTopicDiscovery)
	assert.Equal(t, -4, cfg.ClockTimezone)
	assert.Equal(t, 8266, cfg.OTAPort)
}

func TestDeviceConfigManager_LoadAbsentWritesDefaults(t *testing.T) {
	// Setup
	m, path := newConfigManager(t, 0)
	require.False(t, m.Exists())

	// Execute
	cfg, result := m.Load()

	// Assert
	assert.Equal(t, state_managers.LoadCreated, result.Status)
	assert.NoError(t, result.Err)
	assert.Equal(t, m.Defaults(), cfg)
	assert.True(t, m.Exists())

	var doc map[string]any
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "192.168.0.238", doc["ip"])
	assert.Equal(t, false, doc["useDhcp"])
}

func TestDeviceConfigManager_SaveLoadRoundTrip(t *testing.T) {
	m, _ := newConfigManager(t, 0)

	cfg := m.Defaults()
	cfg.Hostname = "newhost"
	cfg.UseDHCP = true
	cfg.IP = netip.MustParseAddr("10.0.0.5")
	cfg.MQTTBroker = "broker.local"
	cfg.MQTTPort = 1883
	cfg.MQTTUsername = "user"
	cfg.MQTTPassword = "secret"
	require.NoError(t, m.Save(cfg))

	loaded, result := m.Load()

	assert.Equal(t, state_managers.LoadOK, result.Status)
	assert.Empty(t, result.Fallbacks)
	assert.Equal(t, cfg, loaded)
}

func TestDeviceConfigManager_MissingFieldsFallBack(t *testing.T) {
	// Setup
	m, path := newConfigManager(t, 0)
	writeDoc(t, path, map[string]any{
		"hostname":   "stored",
		"gateway":    "10.1.1.1",
		"mqttBroker": "mq.example",
	})

	// Execute
	cfg, result := m.Load()

	// Assert
	defaults := m.Defaults()
	assert.Equal(t, state_managers.LoadOK, result.Status)
	assert.Equal(t, "stored", cfg.Hostname)
	assert.Equal(t, netip.MustParseAddr("10.1.1.1"), cfg.Gateway)
	assert.Equal(t, "mq.example", cfg.MQTTBroker)

	assert.Equal(t, defaults.IP, cfg.IP)
	assert.Equal(t, defaults.SubnetMask, cfg.SubnetMask)
	assert.Equal(t, defaults.DNS, cfg.DNS)
	assert.Equal(t, defaults.MQTTPort, cfg.MQTTPort)
	assert.Equal(t, defaults.SSID, cfg.SSID)
	assert.Equal(t, defaults.UseDHCP, cfg.UseDHCP)
	assert.Contains(t, result.Fallbacks, "ip")
	assert.NotContains(t, result.Fallbacks, "hostname")
	assert.Len(t, result.Fallbacks, 15)
}

func TestDeviceConfigManager_MalformedFieldsFallBack(t *testing.T) {
	m, path := newConfigManager(t, 0)
	writeDoc(t, path, map[string]any{
		"hostname":  "stored",
		"ip":        "300.1.2.3",
		"dnsServer": "not-an-ip",
		"mqttPort":  "8883",
		"otaPort":   70000,
		"useDhcp":   "yes",
		"timezone":  2,
	})

	cfg, result := m.Load()

	defaults := m.Defaults()
	assert.Equal(t, "stored", cfg.Hostname)
	assert.Equal(t, 2, cfg.ClockTimezone)
	assert.Equal(t, defaults.IP, cfg.IP)
	assert.Equal(t, defaults.DNS, cfg.DNS)
	assert.Equal(t, defaults.MQTTPort, cfg.MQTTPort)
	assert.Equal(t, defaults.OTAPort, cfg.OTAPort)
	assert.Equal(t, defaults.UseDHCP, cfg.UseDHCP)
	for _, key := range []string{"ip", "dnsServer", "mqttPort", "otaPort", "useDhcp"} {
		assert.Contains(t, result.Fallbacks, key)
	}
}

func TestDeviceConfigManager_TooLargeKeepsDefaults(t *testing.T) {
	m, path := newConfigManager(t, 64)
	writeDoc(t, path, map[string]any{
		"hostname": "stored",
		"padding":  strings.Repeat("x", 128),
	})

	cfg, result := m.Load()

	assert.Equal(t, state_managers.LoadTooLarge, result.Status)
	assert.Error(t, result.Err)
	assert.Equal(t, m.Defaults(), cfg)
}

func TestDeviceConfigManager_UnparseableKeepsDefaults(t *testing.T) {
	m, path := newConfigManager(t, 0)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	cfg, result := m.Load()

	assert.Equal(t, state_managers.LoadUnparseable, result.Status)
	assert.Equal(t, m.Defaults(), cfg)
}

func TestDeviceConfigManager_Remove(t *testing.T) {
	m, _ := newConfigManager(t, 0)
	require.NoError(t, m.Save(m.Defaults()))
	require.True(t, m.Exists())

	require.NoError(t, m.Remove())
	assert.False(t, m.Exists())

	// Removing twice is fine
	assert.NoError(t, m.Remove())
}

func TestDeviceConfigManager_SaveError(t *testing.T) {
	// Setup
	fileOps := new(mocks.MockFileOperations)
	fileOps.On("WriteJsonFile", "/cfg.json", mock.Anything).Return(errors.New("disk full"))
	m := state_managers.NewDeviceConfigManager("/cfg.json", 0, "host", fileOps, zerolog.Nop())

	// Execute
	err := m.Save(m.Defaults())

	// Assert
	assert.ErrorContains(t, err, "disk full")
	fileOps.AssertExpectations(t)
}
