package state_managers

import (
	"fmt"

	"github.com/benmeehan/killswitch/internal/models"
	"github.com/rs/zerolog"
)

// Effects are the side effects a control command can trigger without
// changing the system state.
type Effects interface {
	Reboot() error
	ToggleRelay()
}

// Outcome describes what ApplyCommand did.
type Outcome struct {
	// Accepted is true when the command passed the disabled guard and was applied.
	Accepted bool
	// ReportStatus is true when the caller must publish a status snapshot.
	ReportStatus bool
}

// SystemStateManager owns the device-wide SystemState. Every write goes
// through transition so the disabled guard cannot be bypassed.
type SystemStateManager struct {
	state            models.SystemState
	validTransitions map[models.SystemState][]models.SystemState
	effects          Effects
	onChange         func(from, to models.SystemState)
	logger           zerolog.Logger
}

// NewSystemStateManager returns a manager in the BOOTING state.
func NewSystemStateManager(effects Effects, logger zerolog.Logger) *SystemStateManager {
	return &SystemStateManager{
		state:   models.StateBooting,
		effects: effects,
		logger:  logger.With().Str("component", "system_state").Logger(),
		validTransitions: map[models.SystemState][]models.SystemState{
			models.StateBooting:  {models.StateNormal, models.StateDisabled},
			models.StateNormal:   {models.StateNormal, models.StateDisabled, models.StateUpdating},
			models.StateUpdating: {models.StateNormal, models.StateDisabled},
			models.StateDisabled: {models.StateNormal, models.StateDisabled},
		},
	}
}

// SetEffects replaces the side effect implementation.
func (m *SystemStateManager) SetEffects(effects Effects) {
	m.effects = effects
}

// OnChange registers a callback invoked after every state change.
func (m *SystemStateManager) OnChange(fn func(from, to models.SystemState)) {
	m.onChange = fn
}

// State returns the current system state.
func (m *SystemStateManager) State() models.SystemState {
	return m.state
}

// ApplyCommand applies a control command. While DISABLED only ENABLE is
// accepted. A REQUEST_STATUS received while DISABLED changes nothing but still
// asks the caller to report the current status.
func (m *SystemStateManager) ApplyCommand(cmd models.ControlCommand) Outcome {
	if m.state == models.StateDisabled && cmd != models.CommandEnable {
		m.logger.Warn().
			Str("command", cmd.String()).
			Msg("Ignoring command because the system is currently disabled")
		return Outcome{ReportStatus: cmd == models.CommandRequestStatus}
	}

	switch cmd {
	case models.CommandEnable:
		m.logger.Info().Msg("Enabling system")
		if err := m.transition(models.StateNormal); err != nil {
			m.logger.Error().Err(err).Msg("Failed to enable system")
			return Outcome{}
		}
	case models.CommandDisable:
		m.logger.Warn().Msg("Disabling system")
		if err := m.transition(models.StateDisabled); err != nil {
			m.logger.Error().Err(err).Msg("Failed to disable system")
			return Outcome{}
		}
	case models.CommandReboot:
		if m.effects != nil {
			if err := m.effects.Reboot(); err != nil {
				m.logger.Error().Err(err).Msg("Reboot failed")
			}
		}
	case models.CommandRequestStatus:
	case models.CommandActivate:
		if m.effects != nil {
			m.effects.ToggleRelay()
		}
	default:
		m.logger.Warn().Uint8("command", uint8(cmd)).Msg("Unknown command")
		return Outcome{}
	}

	return Outcome{Accepted: true, ReportStatus: true}
}

// CompleteBoot moves the device from BOOTING to NORMAL.
func (m *SystemStateManager) CompleteBoot() error {
	if m.state != models.StateBooting {
		return fmt.Errorf("boot already completed, state is %s", m.state)
	}
	return m.transition(models.StateNormal)
}

// BeginUpdate moves the device from NORMAL to UPDATING.
func (m *SystemStateManager) BeginUpdate() error {
	if m.state != models.StateNormal {
		return fmt.Errorf("cannot start update in state %s", m.state)
	}
	return m.transition(models.StateUpdating)
}

// EndUpdate moves the device from UPDATING back to NORMAL.
func (m *SystemStateManager) EndUpdate() error {
	if m.state != models.StateUpdating {
		return fmt.Errorf("no update in progress, state is %s", m.state)
	}
	return m.transition(models.StateNormal)
}

// EnterFailsafe disables the device while the operator console owns the input.
func (m *SystemStateManager) EnterFailsafe() error {
	return m.transition(models.StateDisabled)
}

// Resume returns the device to NORMAL after the operator leaves the console.
func (m *SystemStateManager) Resume() error {
	return m.transition(models.StateNormal)
}

func (m *SystemStateManager) transition(to models.SystemState) error {
	if !m.isValidTransition(m.state, to) {
		return fmt.Errorf("invalid state transition from %s to %s", m.state, to)
	}

	from := m.state
	m.state = to
	if from != to {
		m.logger.Info().Str("from", from.String()).Str("to", to.String()).Msg("System state changed")
		if m.onChange != nil {
			m.onChange(from, to)
		}
	}
	return nil
}

func (m *SystemStateManager) isValidTransition(from, to models.SystemState) bool {
	for _, state := range m.validTransitions[from] {
		if state == to {
			return true
		}
	}
	return false
}
