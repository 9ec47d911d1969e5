package constants

import "time"

// Control message handling
const (
	// ControlQOS is the QoS used for the control subscription.
	ControlQOS = 0

	// StatusQOS is the QoS used for status and discovery publishes.
	StatusQOS = 0

	// MaxControlPayload bounds the size of an inbound control message in bytes.
	MaxControlPayload = 100

	// PublishTimeout bounds how long a single publish may wait for the broker.
	PublishTimeout = 5 * time.Second
)

// Side effect delays
const (
	// RebootDelay gives pending log lines time to flush before a soft reset.
	RebootDelay = 1 * time.Second

	// FactoryRestoreCountdown is the number of seconds counted down before a
	// factory restore reboots the device.
	FactoryRestoreCountdown = 5
)
