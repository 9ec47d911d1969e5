package constants

import "time"

// Device identity
const (
	DeviceName  = "CYLENCE"
	DeviceClass = "cylence"

	// HostnameIDLength is how many characters of the device ID are appended to
	// DeviceName to build the default hostname.
	HostnameIDLength = 6
)

// Factory defaults for the persisted device configuration.
const (
	DefaultSSID         = "your_ssid_here"
	DefaultWiFiPassword = "your_wifi_password"
	DefaultIP           = "192.168.0.238"
	DefaultGateway      = "192.168.0.1"
	DefaultSubnetMask   = "255.255.255.0"
	DefaultDNS          = "192.168.0.1"
	DefaultUseDHCP      = false
	DefaultTimezone     = -4

	DefaultMQTTBroker         = "your_mqtt_broker_ip"
	DefaultMQTTPort           = 8883
	DefaultMQTTTopicStatus    = "cylence/status"
	DefaultMQTTTopicControl   = "cylence/control"
	DefaultMQTTTopicDiscovery = "redqueen/config"

	DefaultOTAPort     = 8266
	DefaultOTAPassword = "your_ota_password_here"
)

// Storage
const (
	DefaultConfigFile    = "/var/lib/killswitch/config.json"
	DefaultIdentityFile  = "/var/lib/killswitch/device.json"
	DefaultMaxConfigSize = 4096
)

// Scheduling
const (
	DefaultWiFiCheckInterval = 30 * time.Second
	DefaultMQTTCheckInterval = 5 * time.Minute
	DefaultClockSyncInterval = 1 * time.Hour

	// Initial delays applied when the scheduler is first armed at boot.
	WiFiCheckInitialDelay = 30 * time.Second
	MQTTCheckInitialDelay = 1 * time.Second

	// LoopIdle is how long the main loop sleeps between scheduler rounds.
	LoopIdle = 10 * time.Millisecond

	// WatchdogNotifyInterval rate limits liveness notifications to systemd.
	WatchdogNotifyInterval = 5 * time.Second
)
