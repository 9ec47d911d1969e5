package mocks

import (
	"github.com/benmeehan/killswitch/pkg/network"
	"github.com/stretchr/testify/mock"
)

// MockTransport is a mock implementation of the network Transport interface
type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) IsConnected() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockTransport) Connect(settings network.Settings) error {
	args := m.Called(settings)
	return args.Error(0)
}

func (m *MockTransport) Disconnect() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockTransport) Apply(settings network.Settings) error {
	args := m.Called(settings)
	return args.Error(0)
}

func (m *MockTransport) Scan() ([]network.AccessPoint, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]network.AccessPoint), args.Error(1)
}

func (m *MockTransport) Info() (network.Info, error) {
	args := m.Called()
	return args.Get(0).(network.Info), args.Error(1)
}

func (m *MockTransport) SetHostname(name string) error {
	args := m.Called(name)
	return args.Error(0)
}
