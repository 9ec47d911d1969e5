package mocks

import "github.com/stretchr/testify/mock"

// MockEffects is a mock implementation of the state machine Effects interface
type MockEffects struct {
	mock.Mock
}

func (m *MockEffects) Reboot() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockEffects) ToggleRelay() {
	m.Called()
}

// MockWatchdog counts liveness signals.
type MockWatchdog struct {
	Count int
}

func (m *MockWatchdog) Alive() {
	m.Count++
}
