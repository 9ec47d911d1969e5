package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"time"

	"github.com/benmeehan/killswitch/pkg/file"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"
)

const defaultTimeout = 10 * time.Second

var (
	// ErrNotConfigured is returned when the session is used before Configure.
	ErrNotConfigured = errors.New("mqtt session is not configured")

	// ErrNotConnected is returned when publishing over a closed session.
	ErrNotConnected = errors.New("mqtt session is not connected")

	// ErrTimeout is returned when the broker does not acknowledge in time.
	ErrTimeout = errors.New("mqtt operation timed out")
)

// MQTTClient defines the subset of the paho client used by the session.
type MQTTClient interface {
	Connect() mqtt.Token
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
	Disconnect(quiesce uint)
}

// Session is the publish/subscribe connection used for remote control and
// status reporting.
type Session interface {
	Configure(cfg SessionConfig) error
	Connect() error
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) error
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) error
	Unsubscribe(topics ...string) error
	Resubscribe() error
	Disconnect(quiesce uint)
}

// SessionConfig identifies the broker and the credentials of the session.
type SessionConfig struct {
	Broker   string
	Port     int
	ClientID string
	Username string
	Password string
}

// ClientFactory builds a paho client from options. Replaced in tests.
type ClientFactory func(opts *mqtt.ClientOptions) MQTTClient

type subscription struct {
	qos      byte
	callback mqtt.MessageHandler
}

// MqttService provides methods for MQTT operations.
type MqttService struct {
	client         MQTTClient
	fileClient     file.FileOperations
	newClient      ClientFactory
	caCertPath     string
	connectTimeout time.Duration
	publishTimeout time.Duration
	subscriptions  cmap.ConcurrentMap[string, subscription]
	logger         zerolog.Logger
}

// NewMqttService creates a new MqttService instance. An empty caCertPath
// selects a plain TCP connection.
func NewMqttService(fileClient file.FileOperations, caCertPath string, connectTimeout time.Duration, logger zerolog.Logger) *MqttService {
	if connectTimeout <= 0 {
		connectTimeout = defaultTimeout
	}

	return &MqttService{
		fileClient:     fileClient,
		caCertPath:     caCertPath,
		connectTimeout: connectTimeout,
		publishTimeout: connectTimeout,
		subscriptions:  cmap.New[subscription](),
		newClient: func(opts *mqtt.ClientOptions) MQTTClient {
			return mqtt.NewClient(opts)
		},
		logger: logger.With().Str("component", "mqtt").Logger(),
	}
}

// SetPublishTimeout bounds how long Publish waits for the broker. It defaults
// to the connect timeout.
func (s *MqttService) SetPublishTimeout(d time.Duration) {
	if d > 0 {
		s.publishTimeout = d
	}
}

// SetClientFactory replaces the paho client constructor.
func (s *MqttService) SetClientFactory(f ClientFactory) {
	s.newClient = f
}

// Configure builds a new client for the given broker. It does not connect.
// Any previous client is disconnected first.
func (s *MqttService) Configure(cfg SessionConfig) error {
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(0)
	}

	opts := mqtt.NewClientOptions()
	opts.SetClientID(cfg.ClientID)
	opts.SetConnectTimeout(s.connectTimeout)
	// Reconnection is driven by the connectivity checks, not by paho.
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetCleanSession(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.logger.Warn().Err(err).Msg("MQTT connection lost")
	})

	scheme := "tcp"
	if s.caCertPath != "" {
		tlsConfig, err := s.tlsConfig()
		if err != nil {
			return err
		}
		opts.SetTLSConfig(tlsConfig)
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker, cfg.Port))

	if cfg.Username != "" && cfg.Password != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	s.client = s.newClient(opts)
	s.logger.Info().
		Str("broker", cfg.Broker).
		Int("port", cfg.Port).
		Str("client_id", cfg.ClientID).
		Msg("MQTT client configured")
	return nil
}

func (s *MqttService) tlsConfig() (*tls.Config, error) {
	caCert, err := s.fileClient.ReadFileRaw(s.caCertPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}

	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to append CA certificate")
	}
	return &tls.Config{RootCAs: caCertPool, MinVersion: tls.VersionTLS12}, nil
}

// Connect makes a single connection attempt and waits for its outcome.
func (s *MqttService) Connect() error {
	if s.client == nil {
		return ErrNotConfigured
	}
	if s.client.IsConnected() {
		return nil
	}
	return s.wait(s.client.Connect())
}

// IsConnected reports whether the session is up.
func (s *MqttService) IsConnected() bool {
	return s.client != nil && s.client.IsConnected()
}

// Publish sends a message to the specified topic.
func (s *MqttService) Publish(topic string, qos byte, retained bool, payload interface{}) error {
	if !s.IsConnected() {
		return ErrNotConnected
	}
	return s.waitFor(s.client.Publish(topic, qos, retained, payload), s.publishTimeout)
}

// Subscribe records the subscription and applies it when the session is up.
// Recorded subscriptions are re-applied by Resubscribe after a reconnect.
func (s *MqttService) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) error {
	s.subscriptions.Set(topic, subscription{qos: qos, callback: callback})
	if !s.IsConnected() {
		return nil
	}
	return s.wait(s.client.Subscribe(topic, qos, callback))
}

// Unsubscribe forgets the given topics and unsubscribes them when the session is up.
func (s *MqttService) Unsubscribe(topics ...string) error {
	for _, topic := range topics {
		s.subscriptions.Remove(topic)
	}
	if !s.IsConnected() || len(topics) == 0 {
		return nil
	}
	return s.wait(s.client.Unsubscribe(topics...))
}

// Resubscribe applies every recorded subscription to the current connection.
func (s *MqttService) Resubscribe() error {
	if !s.IsConnected() {
		return ErrNotConnected
	}

	var errs []error
	for item := range s.subscriptions.IterBuffered() {
		s.logger.Info().Str("topic", item.Key).Msg("Subscribing to topic")
		if err := s.wait(s.client.Subscribe(item.Key, item.Val.qos, item.Val.callback)); err != nil {
			errs = append(errs, fmt.Errorf("subscribe %s: %w", item.Key, err))
		}
	}
	return errors.Join(errs...)
}

// Disconnect gracefully disconnects the MQTT client.
func (s *MqttService) Disconnect(quiesce uint) {
	if s.client == nil {
		return
	}
	s.client.Disconnect(quiesce)
}

func (s *MqttService) wait(token mqtt.Token) error {
	return s.waitFor(token, s.connectTimeout)
}

func (s *MqttService) waitFor(token mqtt.Token, timeout time.Duration) error {
	if !token.WaitTimeout(timeout) {
		return ErrTimeout
	}
	return token.Error()
}
