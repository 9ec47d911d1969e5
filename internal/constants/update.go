package constants

// FirmwareVersion is the running firmware version. It is overridden at build time:
//
//	go build -ldflags "-X github.com/benmeehan/killswitch/internal/constants.FirmwareVersion=1.2.0"
//
//nolint:gochecknoglobals // set through ldflags
var FirmwareVersion = "1.0.0"

// UpdateSignal identifies which edge of a firmware update an external flasher reported.
type UpdateSignal string

const (
	UpdateSignalStart UpdateSignal = "start"
	UpdateSignalEnd   UpdateSignal = "end"
)
