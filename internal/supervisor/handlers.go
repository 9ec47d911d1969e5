package supervisor

import (
	"strings"

	"github.com/benmeehan/killswitch/internal/console"
	"github.com/benmeehan/killswitch/internal/models"
	"github.com/benmeehan/killswitch/pkg/network"
)

var _ console.Handlers = (*Supervisor)(nil)

// Interrupt switches to failsafe mode and hands the console to the operator
// until they leave the menu.
func (s *Supervisor) Interrupt() {
	if err := s.machine.EnterFailsafe(); err != nil {
		s.logger.Error().Err(err).Msg("Failed to enter failsafe mode")
	}
	s.publishStatus()
	s.sched.DisableAll()
	s.netLED.On()
	s.println("ERROR: Entering failsafe (config) mode...")

	reason := s.console.EnterMenu()
	if reason == console.ExitInputClosed {
		s.Resume()
	}
}

// Reboot restarts the device. It serves both the REBOOT command and the console.
func (s *Supervisor) Reboot() error {
	s.println("INFO: Rebooting...")
	return s.system.Reboot()
}

// ScanNetworks lists the visible wireless networks on the console.
func (s *Supervisor) ScanNetworks() {
	s.println("INFO: Beginning network scan...")
	aps, err := s.transport.Scan()
	if err != nil {
		s.logger.Error().Err(err).Msg("Network scan failed")
		s.println("ERROR: Network scan failed: %v", err)
		return
	}

	s.println("INFO: Scan complete.")
	s.println("INFO: %d networks found.", len(aps))
	for i, ap := range aps {
		s.println("ID: %d\tNetwork name: %s\tSignal strength: %d%%", i, ap.SSID, ap.Signal)
	}
	s.println(strings.Repeat("-", 40))
}

// HostnameChanged stores a new hostname and announces it.
func (s *Supervisor) HostnameChanged(hostname string) {
	if hostname == s.config.Hostname {
		return
	}
	s.config.Hostname = hostname
	s.console.SetHostname(hostname)
	s.connectivity.AnnounceHostname()
}

// SwitchToDHCP enables DHCP addressing and reapplies it.
func (s *Supervisor) SwitchToDHCP() {
	if s.config.UseDHCP {
		s.println("INFO: DHCP mode already set. Skipping...")
		return
	}

	s.config.UseDHCP = true
	s.println("INFO: Set DHCP mode.")
	if err := s.connectivity.ApplyAddressing(); err != nil {
		s.println("ERROR: Failed to apply network settings: %v", err)
	}
}

// SwitchToStatic stores a static addressing block and reapplies it.
func (s *Supervisor) SwitchToStatic(addr network.Addressing) {
	s.config.SetStatic(addr)
	s.config.UseDHCP = false
	s.println("INFO: Set static network config.")
	if err := s.connectivity.ApplyAddressing(); err != nil {
		s.println("ERROR: Failed to apply network settings: %v", err)
	}
}

// Reconnect retries the transport. On success normal operation resumes.
func (s *Supervisor) Reconnect() bool {
	s.println("INFO: Attempting to reconnect...")
	if !s.connectivity.ReconnectNow() {
		return false
	}
	s.PrintNetworkInfo()
	s.Resume()
	return true
}

// WiFiConfigured stores new Wi-Fi credentials and reconnects if they changed.
func (s *Supervisor) WiFiConfigured(ssid, password string) {
	if ssid == s.config.SSID && password == s.config.WiFiPassword {
		s.println("INFO: WiFi settings unchanged.")
		return
	}

	s.config.SSID = ssid
	s.config.WiFiPassword = password
	s.println("INFO: Connecting to SSID: %s...", ssid)
	if s.connectivity.Connect() {
		s.PrintNetworkInfo()
		return
	}
	s.println("ERROR: Failed to connect to WiFi!")
}

// Resume leaves failsafe mode.
func (s *Supervisor) Resume() {
	s.println("INFO: Resuming normal operation...")
	s.sched.EnableAll()
	s.netLED.Off()
	if err := s.machine.Resume(); err != nil {
		s.logger.Error().Err(err).Msg("Failed to resume normal operation")
	}
	s.publishStatus()
}

// PrintNetworkInfo writes the addresses of the managed interface to the console.
func (s *Supervisor) PrintNetworkInfo() {
	info, err := s.transport.Info()
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to read network info")
		s.println("ERROR: Failed to read network info: %v", err)
		return
	}

	s.println("")
	s.println("INFO: Network info:")
	s.println("Host name: %s", s.config.Hostname)
	s.println("Interface: %s", info.Name)
	s.println("MAC address: %s", info.MACAddress)
	for _, addr := range info.Addresses {
		s.println("IP address: %s", addr)
	}
	s.println("Gateway: %s", info.Gateway)
	for _, dns := range info.DNS {
		s.println("DNS: %s", dns)
	}
	s.println("DHCP: %t", s.config.UseDHCP)
	s.println("")
}

// SaveConfig persists the configuration, then drops and re-checks the
// transport so the stored settings are the ones in use.
func (s *Supervisor) SaveConfig() {
	s.println("INFO: Saving config...")
	if err := s.store.Save(s.config); err != nil {
		s.logger.Error().Err(err).Msg("Failed to save config")
		s.println("ERROR: Failed to save config: %v", err)
		return
	}
	s.println("INFO: Config saved.")

	if !s.connectivity.ResetTransport() {
		s.println("ERROR: Failed to reconnect to WiFi!")
	}
}

// MQTTConfigured applies new session settings. If anything changed the
// control subscription is moved and the session is re-established.
func (s *Supervisor) MQTTConfigured(settings models.MQTTSettings) {
	if settings == s.config.MQTTSettings() {
		s.println("INFO: MQTT settings unchanged.")
		return
	}

	if err := s.control.Stop(); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to stop control subscription")
	}
	s.config.ApplyMQTT(settings)
	s.console.SetMQTTSettings(settings)
	if err := s.control.Start(); err != nil {
		s.logger.Error().Err(err).Msg("Failed to restart control subscription")
	}

	s.println("INFO: Reconnecting to MQTT broker...")
	if !s.connectivity.ResetSession() {
		s.println("ERROR: Failed to connect to MQTT broker.")
	}
}

// FactoryRestore erases the stored configuration and reboots.
func (s *Supervisor) FactoryRestore() error {
	return s.system.FactoryRestore(s.store, s.out)
}
