package services

import "github.com/benmeehan/killswitch/internal/models"

// Indicator is a status LED.
type Indicator interface {
	On()
	Off()
	Toggle()
}

// StatusPublisher reports the device status to the control plane.
type StatusPublisher interface {
	PublishStatus() error
	PublishDiscovery() error
}

// JobSubmitter hands work to the main loop.
type JobSubmitter interface {
	Submit(task func()) bool
}

// StateReader exposes the current system state.
type StateReader interface {
	State() models.SystemState
}

// RelayState exposes the relay contacts.
type RelayState interface {
	IsClosed() bool
}
