package models

import (
	"net/netip"

	"github.com/benmeehan/killswitch/pkg/network"
)

// DeviceConfig holds the network, MQTT and OTA settings of the device.
type DeviceConfig struct {
	// Network
	Hostname     string
	SSID         string
	WiFiPassword string
	UseDHCP      bool
	IP           netip.Addr
	Gateway      netip.Addr
	SubnetMask   netip.Addr
	DNS          netip.Addr

	// ClockTimezone is the offset from UTC in hours.
	ClockTimezone int

	// MQTT
	MQTTBroker         string
	MQTTPort           int
	MQTTUsername       string
	MQTTPassword       string
	MQTTTopicControl   string
	MQTTTopicStatus    string
	MQTTTopicDiscovery string

	// OTA
	OTAPort     int
	OTAPassword string
}

// StaticAddressing is the set of addresses used when DHCP is off.
type StaticAddressing = network.Addressing

// NetworkSettings returns the parameters needed to bring the transport up.
func (c *DeviceConfig) NetworkSettings() network.Settings {
	return network.Settings{
		Hostname: c.Hostname,
		SSID:     c.SSID,
		Password: c.WiFiPassword,
		UseDHCP:  c.UseDHCP,
		Static: StaticAddressing{
			IP:         c.IP,
			Gateway:    c.Gateway,
			SubnetMask: c.SubnetMask,
			DNS:        c.DNS,
		},
	}
}

// SetStatic stores a new static addressing block.
func (c *DeviceConfig) SetStatic(addr StaticAddressing) {
	c.IP = addr.IP
	c.Gateway = addr.Gateway
	c.SubnetMask = addr.SubnetMask
	c.DNS = addr.DNS
}

// MQTTSettings returns the session parameters.
func (c *DeviceConfig) MQTTSettings() MQTTSettings {
	return MQTTSettings{
		Broker:       c.MQTTBroker,
		Port:         c.MQTTPort,
		Username:     c.MQTTUsername,
		Password:     c.MQTTPassword,
		ControlTopic: c.MQTTTopicControl,
		StatusTopic:  c.MQTTTopicStatus,
	}
}

// ApplyMQTT copies operator-editable MQTT settings into the config.
func (c *DeviceConfig) ApplyMQTT(s MQTTSettings) {
	c.MQTTBroker = s.Broker
	c.MQTTPort = s.Port
	c.MQTTUsername = s.Username
	c.MQTTPassword = s.Password
	c.MQTTTopicControl = s.ControlTopic
	c.MQTTTopicStatus = s.StatusTopic
}

// MQTTSettings are the operator-editable session parameters.
type MQTTSettings struct {
	Broker       string
	Port         int
	Username     string
	Password     string
	ControlTopic string
	StatusTopic  string
}

// HasCredentials reports whether both a username and a password are set.
func (s MQTTSettings) HasCredentials() bool {
	return s.Username != "" && s.Password != ""
}
