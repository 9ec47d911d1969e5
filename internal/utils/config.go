package utils

import (
	"time"

	"github.com/benmeehan/killswitch/internal/constants"
	"github.com/benmeehan/killswitch/pkg/file"
)

// Config represents the structure of the agent configuration file.
type Config struct {
	Device struct {
		Name  string `yaml:"name"`  // Prefix of the factory hostname
		Class string `yaml:"class"` // Device class announced in discovery packets
	} `yaml:"device"`

	Storage struct {
		ConfigFile    string `yaml:"config_file"`     // Path to the persisted device configuration
		MaxConfigSize int64  `yaml:"max_config_size"` // Largest config file accepted on load (bytes)
		IdentityFile  string `yaml:"identity_file"`   // Path to the device identity file
	} `yaml:"storage"`

	MQTT struct {
		CACertificate  string        `yaml:"ca_certificate"`  // Path to the CA certificate; empty for plain TCP
		ConnectTimeout time.Duration `yaml:"connect_timeout"` // Per-attempt connect and publish timeout
	} `yaml:"mqtt"`

	Network struct {
		Interface      string        `yaml:"interface"`       // Wireless interface, e.g. wlan0
		Profile        string        `yaml:"profile"`         // NetworkManager connection profile owned by the agent
		CheckInterval  time.Duration `yaml:"check_interval"`  // Transport health check interval
		MaxTries       int           `yaml:"max_tries"`       // Link polls per reconnect attempt
		RetryDelay     time.Duration `yaml:"retry_delay"`     // Delay between link polls
		CommandTimeout time.Duration `yaml:"command_timeout"` // Timeout for a single nmcli call
	} `yaml:"network"`

	Session struct {
		CheckInterval time.Duration `yaml:"check_interval"` // Session health check interval
	} `yaml:"session"`

	Clock struct {
		SyncInterval time.Duration `yaml:"sync_interval"` // Clock sync check interval
	} `yaml:"clock"`

	Console struct {
		Device string `yaml:"device"` // Serial device; empty uses the local terminal
		Baud   int    `yaml:"baud"`   // Serial baud rate
	} `yaml:"console"`

	GPIO struct {
		Chip         string `yaml:"chip"`           // GPIO chip; empty runs without hardware
		RelayPin     int    `yaml:"relay_pin"`      // Killswitch relay line
		ActiveLEDPin int    `yaml:"active_led_pin"` // Activation indicator line
		NetLEDPin    int    `yaml:"net_led_pin"`    // Network activity indicator line
	} `yaml:"gpio"`

	OTA struct {
		StagedVersionFile string `yaml:"staged_version_file"` // Written by the flasher before it signals an update
	} `yaml:"ota"`

	Logging struct {
		Level  string `yaml:"level"`  // zerolog level name
		Pretty bool   `yaml:"pretty"` // Human readable console output instead of JSON
	} `yaml:"logging"`
}

// DefaultConfig returns the configuration used for every key the file omits.
func DefaultConfig() *Config {
	var config Config

	config.Device.Name = constants.DeviceName
	config.Device.Class = constants.DeviceClass

	config.Storage.ConfigFile = constants.DefaultConfigFile
	config.Storage.MaxConfigSize = constants.DefaultMaxConfigSize
	config.Storage.IdentityFile = constants.DefaultIdentityFile

	config.MQTT.ConnectTimeout = constants.DefaultMQTTConnectTimeout

	config.Network.Interface = constants.DefaultInterface
	config.Network.Profile = "killswitch"
	config.Network.CheckInterval = constants.DefaultWiFiCheckInterval
	config.Network.MaxTries = constants.TransportMaxTries
	config.Network.RetryDelay = constants.TransportRetryDelay
	config.Network.CommandTimeout = constants.CommandTimeout

	config.Session.CheckInterval = constants.DefaultMQTTCheckInterval
	config.Clock.SyncInterval = constants.DefaultClockSyncInterval

	config.Console.Baud = constants.DefaultConsoleBaud

	config.GPIO.Chip = "gpiochip0"
	config.GPIO.RelayPin = 14
	config.GPIO.ActiveLEDPin = 12
	config.GPIO.NetLEDPin = 15

	config.OTA.StagedVersionFile = "/var/lib/killswitch/staged-version"

	config.Logging.Level = "info"

	return &config
}

// LoadConfig loads the YAML configuration from the specified file on top of
// DefaultConfig. On error the defaults are still returned.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	config := DefaultConfig()
	if err := fileClient.ReadYamlFile(filename, config); err != nil {
		return DefaultConfig(), err
	}
	return config, nil
}
