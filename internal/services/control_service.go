package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/benmeehan/killswitch/internal/constants"
	"github.com/benmeehan/killswitch/internal/models"
	"github.com/benmeehan/killswitch/internal/state_managers"
	"github.com/benmeehan/killswitch/pkg/mqtt"
	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// Reasons a control message is dropped.
var (
	ErrMalformedEnvelope = errors.New("malformed control message")
	ErrNotAddressed      = errors.New("control message does not contain client ID")
	ErrWrongTarget       = errors.New("control message not intended for this host")
	ErrMissingCommand    = errors.New("control message does not contain a control command")
	ErrUnknownCommand    = errors.New("unknown control command")
	ErrCommandIgnored    = errors.New("control command ignored")
)

// CommandApplier applies a validated command to the system state.
type CommandApplier interface {
	ApplyCommand(cmd models.ControlCommand) state_managers.Outcome
}

// ControlService receives control messages and routes them to the state machine.
type ControlService struct {
	session mqtt.Session
	config  *models.DeviceConfig
	machine CommandApplier
	status  StatusPublisher
	jobs    JobSubmitter
	topic   string
	logger  zerolog.Logger
}

// NewControlService creates a ControlService. Messages are routed on the
// goroutine that drains jobs.
func NewControlService(session mqtt.Session, config *models.DeviceConfig, machine CommandApplier,
	status StatusPublisher, jobs JobSubmitter, logger zerolog.Logger) *ControlService {

	return &ControlService{
		session: session,
		config:  config,
		machine: machine,
		status:  status,
		jobs:    jobs,
		logger:  logger.With().Str("component", "control").Logger(),
	}
}

// Start subscribes to the configured control topic.
func (cs *ControlService) Start() error {
	topic := cs.config.MQTTTopicControl
	if err := cs.session.Subscribe(topic, constants.ControlQOS, cs.HandleMessage); err != nil {
		cs.logger.Error().Err(err).Str("topic", topic).Msg("Failed to subscribe to control topic")
		return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}
	cs.topic = topic
	cs.logger.Info().Str("topic", topic).Msg("Subscribed to control topic")
	return nil
}

// Stop unsubscribes from the control topic.
func (cs *ControlService) Stop() error {
	if cs.topic == "" {
		return nil
	}
	topic := cs.topic
	cs.topic = ""
	if err := cs.session.Unsubscribe(topic); err != nil {
		cs.logger.Error().Err(err).Str("topic", topic).Msg("Failed to unsubscribe from control topic")
		return fmt.Errorf("failed to unsubscribe from %s: %w", topic, err)
	}
	cs.logger.Info().Str("topic", topic).Msg("Unsubscribed from control topic")
	return nil
}

// Topic returns the subscribed control topic, or "" when stopped.
func (cs *ControlService) Topic() string {
	return cs.topic
}

// HandleMessage is the MQTT callback. It runs on a paho goroutine, so it only
// queues the payload for the main loop.
func (cs *ControlService) HandleMessage(_ MQTT.Client, msg MQTT.Message) {
	payload := append([]byte(nil), msg.Payload()...)
	cs.logger.Info().Str("topic", msg.Topic()).Str("payload", string(payload)).Msg("Message arrived")

	if !cs.jobs.Submit(func() { _ = cs.Route(payload) }) {
		cs.logger.Warn().Msg("Job queue full, dropping control message")
	}
}

// Route validates a control message and applies its command. Validation
// stops at the first failure; a dropped message has no effect.
func (cs *ControlService) Route(payload []byte) error {
	cmd, err := cs.decode(payload)
	if err != nil {
		if errors.Is(err, ErrWrongTarget) {
			cs.logger.Debug().Err(err).Msg("Ignoring control message")
		} else {
			cs.logger.Warn().Err(err).Msg("Dropping control message")
		}
		return err
	}

	outcome := cs.machine.ApplyCommand(cmd)
	if outcome.ReportStatus {
		if err := cs.status.PublishStatus(); err != nil && !errors.Is(err, ErrSessionDown) {
			cs.logger.Error().Err(err).Msg("Failed to publish status")
		}
	}
	if !outcome.Accepted {
		return fmt.Errorf("%w: %s", ErrCommandIgnored, cmd)
	}
	return nil
}

func (cs *ControlService) decode(payload []byte) (models.ControlCommand, error) {
	if len(payload) > constants.MaxControlPayload {
		return 0, fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrMalformedEnvelope, len(payload), constants.MaxControlPayload)
	}

	var envelope models.ControlEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}

	if envelope.ClientID == nil {
		return 0, ErrNotAddressed
	}
	if !strings.EqualFold(*envelope.ClientID, cs.config.Hostname) {
		return 0, fmt.Errorf("%w: %s", ErrWrongTarget, *envelope.ClientID)
	}

	if envelope.Command == nil {
		return 0, ErrMissingCommand
	}
	raw := *envelope.Command
	if raw < 0 || raw > 255 || !models.ControlCommand(raw).Valid() {
		cs.logger.Warn().Int("command", raw).Msg("Unknown command")
		return 0, fmt.Errorf("%w: %d", ErrUnknownCommand, raw)
	}
	return models.ControlCommand(raw), nil
}
