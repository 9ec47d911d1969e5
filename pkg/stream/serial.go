package stream

import (
	"fmt"

	"github.com/tarm/serial"
)

// OpenSerial opens a serial device as the console stream.
func OpenSerial(device string, baud int) (*Port, error) {
	port, err := serial.OpenPort(&serial.Config{Name: device, Baud: baud})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", device, err)
	}
	return NewPort(port, port, port), nil
}
