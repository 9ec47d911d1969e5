package mocks

import (
	pkgmqtt "github.com/benmeehan/killswitch/pkg/mqtt"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/mock"
)

// MockMQTTClient is a mock implementation of the MQTTClient interface
type MockMQTTClient struct {
	mock.Mock
}

func (m *MockMQTTClient) Connect() mqtt.Token {
	args := m.Called()
	return args.Get(0).(mqtt.Token)
}

func (m *MockMQTTClient) IsConnected() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockMQTTClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	args := m.Called(topic, qos, retained, payload)
	return args.Get(0).(mqtt.Token)
}

func (m *MockMQTTClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	args := m.Called(topic, qos, callback)
	return args.Get(0).(mqtt.Token)
}

func (m *MockMQTTClient) Unsubscribe(topics ...string) mqtt.Token {
	args := m.Called(topics)
	return args.Get(0).(mqtt.Token)
}

func (m *MockMQTTClient) Disconnect(quiesce uint) {
	m.Called(quiesce)
}

// MockSession is a mock implementation of the mqtt Session interface
type MockSession struct {
	mock.Mock
}

func (m *MockSession) Configure(cfg pkgmqtt.SessionConfig) error {
	args := m.Called(cfg)
	return args.Error(0)
}

func (m *MockSession) Connect() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockSession) IsConnected() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockSession) Publish(topic string, qos byte, retained bool, payload interface{}) error {
	args := m.Called(topic, qos, retained, payload)
	return args.Error(0)
}

func (m *MockSession) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) error {
	args := m.Called(topic, qos, callback)
	return args.Error(0)
}

func (m *MockSession) Unsubscribe(topics ...string) error {
	args := m.Called(topics)
	return args.Error(0)
}

func (m *MockSession) Resubscribe() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockSession) Disconnect(quiesce uint) {
	m.Called(quiesce)
}
