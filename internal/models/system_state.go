package models

import "strconv"

// SystemState is the device-wide operating state.
type SystemState uint8

const (
	StateBooting  SystemState = 0
	StateNormal   SystemState = 1
	StateUpdating SystemState = 2
	StateDisabled SystemState = 3
)

func (s SystemState) String() string {
	switch s {
	case StateBooting:
		return "BOOTING"
	case StateNormal:
		return "NORMAL"
	case StateUpdating:
		return "UPDATING"
	case StateDisabled:
		return "DISABLED"
	default:
		return "UNKNOWN(" + strconv.Itoa(int(s)) + ")"
	}
}

// ControlCommand is a command received from the remote control channel or
// issued by the local operator.
type ControlCommand uint8

const (
	CommandDisable       ControlCommand = 0
	CommandEnable        ControlCommand = 1
	CommandReboot        ControlCommand = 2
	CommandRequestStatus ControlCommand = 3
	CommandActivate      ControlCommand = 4
)

// Valid reports whether c is one of the known commands.
func (c ControlCommand) Valid() bool {
	return c <= CommandActivate
}

func (c ControlCommand) String() string {
	switch c {
	case CommandDisable:
		return "DISABLE"
	case CommandEnable:
		return "ENABLE"
	case CommandReboot:
		return "REBOOT"
	case CommandRequestStatus:
		return "REQUEST_STATUS"
	case CommandActivate:
		return "ACTIVATE"
	default:
		return "UNKNOWN(" + strconv.Itoa(int(c)) + ")"
	}
}
