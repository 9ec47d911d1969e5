package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/benmeehan/killswitch/internal/constants"
	"github.com/benmeehan/killswitch/internal/models"
	"github.com/benmeehan/killswitch/pkg/mqtt"
	"github.com/rs/zerolog"
)

// ErrSessionDown is returned when a publish is skipped because the session is not connected.
var ErrSessionDown = errors.New("mqtt session is down")

// StatusService publishes status snapshots and discovery packets.
type StatusService struct {
	session     mqtt.Session
	config      *models.DeviceConfig
	state       StateReader
	relay       RelayState
	deviceClass string
	netLED      Indicator
	now         func() time.Time
	logger      zerolog.Logger
}

// NewStatusService creates a StatusService. config is read on every publish
// so topic and hostname changes take effect immediately.
func NewStatusService(session mqtt.Session, config *models.DeviceConfig, state StateReader, relay RelayState,
	deviceClass string, netLED Indicator, logger zerolog.Logger) *StatusService {

	return &StatusService{
		session:     session,
		config:      config,
		state:       state,
		relay:       relay,
		deviceClass: deviceClass,
		netLED:      netLED,
		now:         time.Now,
		logger:      logger.With().Str("component", "status").Logger(),
	}
}

// SetClock replaces the time source.
func (s *StatusService) SetClock(now func() time.Time) {
	s.now = now
}

// Snapshot builds the current status payload.
func (s *StatusService) Snapshot() models.StatusPayload {
	return models.StatusPayload{
		ClientID:        s.config.Hostname,
		FirmwareVersion: constants.FirmwareVersion,
		SystemState:     s.state.State(),
		RelayActivation: models.ActivationString(s.relay.IsClosed()),
		LastUpdate:      FormatTimestamp(s.now(), s.config.ClockTimezone),
	}
}

// PublishStatus publishes a status snapshot to the status topic.
func (s *StatusService) PublishStatus() error {
	return s.publish(s.config.MQTTTopicStatus, "status", s.Snapshot())
}

// PublishDiscovery announces the device and its topics.
func (s *StatusService) PublishDiscovery() error {
	return s.publish(s.config.MQTTTopicDiscovery, "discovery", models.DiscoveryPayload{
		Name:         s.config.Hostname,
		DeviceClass:  s.deviceClass,
		StatusTopic:  s.config.MQTTTopicStatus,
		ControlTopic: s.config.MQTTTopicControl,
	})
}

func (s *StatusService) publish(topic, kind string, payload any) error {
	if !s.session.IsConnected() {
		s.logger.Debug().Str("kind", kind).Msg("Session down, skipping publish")
		return ErrSessionDown
	}

	s.netLED.On()
	defer s.netLED.Off()

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", kind, err)
	}

	s.logger.Info().Str("topic", topic).RawJSON("payload", data).Msgf("Publishing %s", kind)
	if err := s.session.Publish(topic, constants.StatusQOS, false, data); err != nil {
		s.logger.Error().Err(err).Str("topic", topic).Msgf("Failed to publish %s", kind)
		return fmt.Errorf("failed to publish %s: %w", kind, err)
	}
	return nil
}
