package state_managers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"sync"

	"github.com/benmeehan/killswitch/internal/constants"
	"github.com/benmeehan/killswitch/internal/models"
	"github.com/benmeehan/killswitch/pkg/file"
	"github.com/rs/zerolog"
)

// Persisted keys of the device configuration document.
const (
	keyHostname       = "hostname"
	keyUseDHCP        = "useDhcp"
	keyIP             = "ip"
	keyGateway        = "gateway"
	keySubnetMask     = "subnetmask"
	keyDNS            = "dnsServer"
	keySSID           = "wifiSSID"
	keyWiFiPassword   = "wifiPassword"
	keyTimezone       = "timezone"
	keyMQTTBroker     = "mqttBroker"
	keyMQTTPort       = "mqttPort"
	keyControlTopic   = "mqttControlTopic"
	keyStatusTopic    = "mqttStatusTopic"
	keyDiscoveryTopic = "mqttDiscoveryTopic"
	keyMQTTUsername   = "mqttUsername"
	keyMQTTPassword   = "mqttPassword"
	keyOTAPort        = "otaPort"
	keyOTAPassword    = "otaPassword"
)

// LoadStatus tells how a load ended.
type LoadStatus int

const (
	// LoadOK means the stored document was read. Individual fields may still
	// have fallen back to defaults.
	LoadOK LoadStatus = iota
	// LoadCreated means no document existed and the defaults were written.
	LoadCreated
	// LoadTooLarge means the document exceeded the size limit and was ignored.
	LoadTooLarge
	// LoadUnparseable means the document was not a JSON object.
	LoadUnparseable
	// LoadFailed means the document could not be read.
	LoadFailed
)

func (s LoadStatus) String() string {
	switch s {
	case LoadOK:
		return "ok"
	case LoadCreated:
		return "created"
	case LoadTooLarge:
		return "too_large"
	case LoadUnparseable:
		return "unparseable"
	case LoadFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// LoadResult reports what Load did. The returned config is always usable.
type LoadResult struct {
	Status LoadStatus
	// Fallbacks lists the keys that were missing or malformed and kept their default.
	Fallbacks []string
	Err       error
}

// DeviceConfigManager persists the DeviceConfig as a JSON document.
type DeviceConfigManager struct {
	filePath        string
	maxSize         int64
	defaultHostname string
	fileClient      file.FileOperations
	logger          zerolog.Logger
	mu              sync.Mutex
}

// NewDeviceConfigManager creates a manager for the document at filePath.
// Documents larger than maxSize bytes are never loaded.
func NewDeviceConfigManager(filePath string, maxSize int64, defaultHostname string,
	fileClient file.FileOperations, logger zerolog.Logger) *DeviceConfigManager {

	if maxSize <= 0 {
		maxSize = constants.DefaultMaxConfigSize
	}

	return &DeviceConfigManager{
		filePath:        filePath,
		maxSize:         maxSize,
		defaultHostname: defaultHostname,
		fileClient:      fileClient,
		logger:          logger.With().Str("component", "config_store").Logger(),
	}
}

// Defaults returns the factory configuration.
func (m *DeviceConfigManager) Defaults() models.DeviceConfig {
	return models.DeviceConfig{
		Hostname:           m.defaultHostname,
		SSID:               constants.DefaultSSID,
		WiFiPassword:       constants.DefaultWiFiPassword,
		UseDHCP:            constants.DefaultUseDHCP,
		IP:                 netip.MustParseAddr(constants.DefaultIP),
		Gateway:            netip.MustParseAddr(constants.DefaultGateway),
		SubnetMask:         netip.MustParseAddr(constants.DefaultSubnetMask),
		DNS:                netip.MustParseAddr(constants.DefaultDNS),
		ClockTimezone:      constants.DefaultTimezone,
		MQTTBroker:         constants.DefaultMQTTBroker,
		MQTTPort:           constants.DefaultMQTTPort,
		MQTTTopicControl:   constants.DefaultMQTTTopicControl,
		MQTTTopicStatus:    constants.DefaultMQTTTopicStatus,
		MQTTTopicDiscovery: constants.DefaultMQTTTopicDiscovery,
		OTAPort:            constants.DefaultOTAPort,
		OTAPassword:        constants.DefaultOTAPassword,
	}
}

// Exists reports whether a stored document is present.
func (m *DeviceConfigManager) Exists() bool {
	exists, err := m.fileClient.IsFileExists(m.filePath)
	if err != nil {
		m.logger.Warn().Err(err).Str("path", m.filePath).Msg("Failed to stat config file")
	}
	return exists
}

// Load reads the stored configuration field by field. A missing or malformed
// field keeps its default; the load itself never fails. When no document
// exists the defaults are written.
func (m *DeviceConfigManager) Load() (models.DeviceConfig, LoadResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg := m.Defaults()

	exists, err := m.fileClient.IsFileExists(m.filePath)
	if err != nil {
		m.logger.Error().Err(err).Str("path", m.filePath).Msg("Failed to stat config file, using defaults")
		return cfg, LoadResult{Status: LoadFailed, Err: err}
	}
	if !exists {
		m.logger.Warn().Str("path", m.filePath).Msg("Config file not found, writing defaults")
		if err := m.save(cfg); err != nil {
			m.logger.Error().Err(err).Msg("Failed to write default config")
			return cfg, LoadResult{Status: LoadCreated, Err: err}
		}
		return cfg, LoadResult{Status: LoadCreated}
	}

	size, err := m.fileClient.FileSize(m.filePath)
	if err != nil {
		m.logger.Error().Err(err).Msg("Failed to stat config file, using defaults")
		return cfg, LoadResult{Status: LoadFailed, Err: err}
	}
	if size > m.maxSize {
		err := fmt.Errorf("config file is %d bytes, limit is %d", size, m.maxSize)
		m.logger.Error().Err(err).Msg("Config file too large, using defaults")
		return cfg, LoadResult{Status: LoadTooLarge, Err: err}
	}

	data, err := m.fileClient.ReadFileRaw(m.filePath)
	if err != nil {
		m.logger.Error().Err(err).Msg("Failed to read config file, using defaults")
		return cfg, LoadResult{Status: LoadFailed, Err: err}
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		m.logger.Error().Err(err).Msg("Failed to parse config file, using defaults")
		return cfg, LoadResult{Status: LoadUnparseable, Err: err}
	}

	result := LoadResult{Status: LoadOK}
	for _, f := range m.fields(&cfg) {
		raw, ok := doc[f.key]
		if !ok {
			m.logger.Warn().Str("key", f.key).Msg("Config key missing, using default")
			result.Fallbacks = append(result.Fallbacks, f.key)
			continue
		}
		if err := f.decode(raw); err != nil {
			m.logger.Warn().Err(err).Str("key", f.key).Msg("Config key malformed, using default")
			result.Fallbacks = append(result.Fallbacks, f.key)
		}
	}

	m.logger.Info().
		Str("path", m.filePath).
		Int("fallbacks", len(result.Fallbacks)).
		Msg("Configuration loaded")
	return cfg, result
}

// Save writes cfg to durable storage.
func (m *DeviceConfigManager) Save(cfg models.DeviceConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.save(cfg); err != nil {
		m.logger.Error().Err(err).Msg("Failed to save config")
		return err
	}
	m.logger.Info().Str("path", m.filePath).Msg("Configuration saved")
	return nil
}

// Remove deletes the stored document. Removing an absent document is not an error.
func (m *DeviceConfigManager) Remove() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fileClient.RemoveFile(m.filePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		m.logger.Error().Err(err).Msg("Failed to remove config")
		return fmt.Errorf("failed to remove config: %w", err)
	}
	m.logger.Warn().Str("path", m.filePath).Msg("Configuration removed")
	return nil
}

func (m *DeviceConfigManager) save(cfg models.DeviceConfig) error {
	doc := map[string]any{
		keyHostname:       cfg.Hostname,
		keyUseDHCP:        cfg.UseDHCP,
		keyIP:             addrString(cfg.IP),
		keyGateway:        addrString(cfg.Gateway),
		keySubnetMask:     addrString(cfg.SubnetMask),
		keyDNS:            addrString(cfg.DNS),
		keySSID:           cfg.SSID,
		keyWiFiPassword:   cfg.WiFiPassword,
		keyTimezone:       cfg.ClockTimezone,
		keyMQTTBroker:     cfg.MQTTBroker,
		keyMQTTPort:       cfg.MQTTPort,
		keyControlTopic:   cfg.MQTTTopicControl,
		keyStatusTopic:    cfg.MQTTTopicStatus,
		keyDiscoveryTopic: cfg.MQTTTopicDiscovery,
		keyMQTTUsername:   cfg.MQTTUsername,
		keyMQTTPassword:   cfg.MQTTPassword,
		keyOTAPort:        cfg.OTAPort,
		keyOTAPassword:    cfg.OTAPassword,
	}
	if err := m.fileClient.WriteJsonFile(m.filePath, doc); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

type configField struct {
	key    string
	decode func(raw json.RawMessage) error
}

func (m *DeviceConfigManager) fields(cfg *models.DeviceConfig) []configField {
	return []configField{
		{keyHostname, nonEmptyField(&cfg.Hostname)},
		{keyUseDHCP, boolField(&cfg.UseDHCP)},
		{keyIP, addrField(&cfg.IP)},
		{keyGateway, addrField(&cfg.Gateway)},
		{keySubnetMask, addrField(&cfg.SubnetMask)},
		{keyDNS, addrField(&cfg.DNS)},
		{keySSID, stringField(&cfg.SSID)},
		{keyWiFiPassword, stringField(&cfg.WiFiPassword)},
		{keyTimezone, rangeField(&cfg.ClockTimezone, -12, 14)},
		{keyMQTTBroker, nonEmptyField(&cfg.MQTTBroker)},
		{keyMQTTPort, rangeField(&cfg.MQTTPort, 1, 65535)},
		{keyControlTopic, nonEmptyField(&cfg.MQTTTopicControl)},
		{keyStatusTopic, nonEmptyField(&cfg.MQTTTopicStatus)},
		{keyDiscoveryTopic, nonEmptyField(&cfg.MQTTTopicDiscovery)},
		{keyMQTTUsername, stringField(&cfg.MQTTUsername)},
		{keyMQTTPassword, stringField(&cfg.MQTTPassword)},
		{keyOTAPort, rangeField(&cfg.OTAPort, 1, 65535)},
		{keyOTAPassword, stringField(&cfg.OTAPassword)},
	}
}

func stringField(dst *string) func(json.RawMessage) error {
	return func(raw json.RawMessage) error {
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		*dst = v
		return nil
	}
}

func nonEmptyField(dst *string) func(json.RawMessage) error {
	return func(raw json.RawMessage) error {
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		if v == "" {
			return errors.New("empty value")
		}
		*dst = v
		return nil
	}
}

func boolField(dst *bool) func(json.RawMessage) error {
	return func(raw json.RawMessage) error {
		var v bool
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		*dst = v
		return nil
	}
}

func rangeField(dst *int, min, max int) func(json.RawMessage) error {
	return func(raw json.RawMessage) error {
		var v int
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		if v < min || v > max {
			return fmt.Errorf("value %d outside [%d, %d]", v, min, max)
		}
		*dst = v
		return nil
	}
}

func addrField(dst *netip.Addr) func(json.RawMessage) error {
	return func(raw json.RawMessage) error {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		addr, err := netip.ParseAddr(s)
		if err != nil {
			return err
		}
		if !addr.Is4() {
			return fmt.Errorf("%q is not an IPv4 address", s)
		}
		*dst = addr
		return nil
	}
}

func addrString(addr netip.Addr) string {
	if !addr.IsValid() {
		return netip.IPv4Unspecified().String()
	}
	return addr.String()
}
