package constants

import "time"

// Transport reconnection policy
const (
	// TransportMaxTries is how many times the link state is polled after a
	// connect request before the check cycle gives up.
	TransportMaxTries = 20

	// TransportRetryDelay separates two polls of the link state.
	TransportRetryDelay = 500 * time.Millisecond

	// TransportSettleDelay is waited after dropping the old association and
	// before requesting a new one.
	TransportSettleDelay = 1 * time.Second

	// DefaultInterface is the wireless interface managed by the agent.
	DefaultInterface = "wlan0"

	// CommandTimeout bounds a single call into NetworkManager.
	CommandTimeout = 15 * time.Second
)

// Session
const (
	DefaultMQTTConnectTimeout = 10 * time.Second
	DefaultDisconnectQuiesce  = 250
)

// Console
const (
	// InterruptKey switches the device into failsafe (config) mode.
	InterruptKey = 'i'

	// InputPollInterval is how often a blocked console read asserts liveness.
	InputPollInterval = 5 * time.Millisecond

	DefaultConsoleBaud = 115200
)
