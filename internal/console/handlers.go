package console

import (
	"errors"

	"github.com/benmeehan/killswitch/internal/models"
	"github.com/benmeehan/killswitch/pkg/network"
)

// Handlers receives the operator's commands. The interpreter never touches
// device state directly.
type Handlers interface {
	// Interrupt is called when the interrupt key arrives during normal operation.
	Interrupt()
	// Reboot restarts the device. An error means the device keeps running and
	// the menu stays active.
	Reboot() error
	ScanNetworks()
	HostnameChanged(hostname string)
	SwitchToDHCP()
	SwitchToStatic(addr network.Addressing)
	// Reconnect retries the transport and reports whether it came up. On
	// success the handler has already resumed normal operation.
	Reconnect() bool
	WiFiConfigured(ssid, password string)
	Resume()
	PrintNetworkInfo()
	SaveConfig()
	MQTTConfigured(settings models.MQTTSettings)
	// FactoryRestore erases the stored configuration and reboots. It is only
	// called after the operator confirmed.
	FactoryRestore() error
}

// ErrNotHandled is returned by NopHandlers for commands that must not be
// reported as done when nothing ran.
var ErrNotHandled = errors.New("command not handled")

// NopHandlers ignores every command; Reboot and FactoryRestore report
// ErrNotHandled. Embed it to implement a subset of Handlers.
type NopHandlers struct{}

func (NopHandlers) Interrupt()                         {}
func (NopHandlers) Reboot() error                      { return ErrNotHandled }
func (NopHandlers) ScanNetworks()                      {}
func (NopHandlers) HostnameChanged(string)             {}
func (NopHandlers) SwitchToDHCP()                      {}
func (NopHandlers) SwitchToStatic(network.Addressing)  {}
func (NopHandlers) Reconnect() bool                    { return false }
func (NopHandlers) WiFiConfigured(string, string)      {}
func (NopHandlers) Resume()                            {}
func (NopHandlers) PrintNetworkInfo()                  {}
func (NopHandlers) SaveConfig()                        {}
func (NopHandlers) MQTTConfigured(models.MQTTSettings) {}
func (NopHandlers) FactoryRestore() error              { return ErrNotHandled }
