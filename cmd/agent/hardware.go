package main

import (
	"github.com/benmeehan/killswitch/internal/utils"
	"github.com/benmeehan/killswitch/pkg/gpio"
	"github.com/benmeehan/killswitch/pkg/stream"
	"github.com/rs/zerolog"
)

type outputs struct {
	chip      *gpio.Chip
	relay     *gpio.Relay
	activeLED *gpio.LED
	netLED    *gpio.LED
}

// openOutputs requests the relay and LED lines. Without a configured chip the
// outputs are kept in memory, which is enough to run the agent on a workstation.
func openOutputs(config *utils.Config, logger zerolog.Logger) (*outputs, error) {
	if config.GPIO.Chip == "" {
		logger.Warn().Msg("No GPIO chip configured, using virtual outputs")
		return &outputs{
			relay:     gpio.NewVirtualRelay("killswitch", nil, logger),
			activeLED: gpio.NewVirtualLED("active", logger),
			netLED:    gpio.NewVirtualLED("net", logger),
		}, nil
	}

	chip, err := gpio.OpenChip(config.GPIO.Chip, logger)
	if err != nil {
		return nil, err
	}
	hw := &outputs{chip: chip}

	if hw.relay, err = chip.Relay("killswitch", config.GPIO.RelayPin, nil); err != nil {
		_ = chip.Close()
		return nil, err
	}
	if hw.activeLED, err = chip.LED("active", config.GPIO.ActiveLEDPin); err != nil {
		_ = chip.Close()
		return nil, err
	}
	if hw.netLED, err = chip.LED("net", config.GPIO.NetLEDPin); err != nil {
		_ = chip.Close()
		return nil, err
	}
	return hw, nil
}

func (o *outputs) Close() error {
	if o.chip == nil {
		return nil
	}
	return o.chip.Close()
}

// openConsole opens the serial console, or the local terminal when no device is set.
func openConsole(config *utils.Config) (*stream.Port, error) {
	if config.Console.Device == "" {
		return stream.OpenTerminal()
	}
	return stream.OpenSerial(config.Console.Device, config.Console.Baud)
}
