package gpio

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	gpiod "github.com/warthog618/go-gpiocdev"
)

// Chip owns the GPIO character device and every line requested from it.
type Chip struct {
	chip   *gpiod.Chip
	lines  []*gpiod.Line
	logger zerolog.Logger
	mu     sync.Mutex
}

// OpenChip opens the GPIO chip device, e.g. "gpiochip0".
func OpenChip(name string, logger zerolog.Logger) (*Chip, error) {
	chip, err := gpiod.NewChip(name)
	if err != nil {
		return nil, fmt.Errorf("open chip %s: %w", name, err)
	}
	return &Chip{
		chip:   chip,
		logger: logger.With().Str("component", "gpio").Logger(),
	}, nil
}

func (c *Chip) requestOutput(pin, initial int) (*gpiod.Line, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	line, err := c.chip.RequestLine(pin, gpiod.AsOutput(initial))
	if err != nil {
		return nil, fmt.Errorf("request output pin %d: %w", pin, err)
	}
	c.lines = append(c.lines, line)
	return line, nil
}

// Relay requests pin as the relay output, initially open.
func (c *Chip) Relay(name string, pin int, onChange func(closed bool)) (*Relay, error) {
	line, err := c.requestOutput(pin, 0)
	if err != nil {
		return nil, err
	}
	return newRelay(name, &lineOutput{line: line}, onChange, c.logger), nil
}

// LED requests pin as an indicator output, initially off.
func (c *Chip) LED(name string, pin int) (*LED, error) {
	line, err := c.requestOutput(pin, 0)
	if err != nil {
		return nil, err
	}
	return newLED(name, &lineOutput{line: line}, c.logger), nil
}

// Close releases all lines and the chip.
func (c *Chip) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for _, line := range c.lines {
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close line: %w", err))
		}
	}
	c.lines = nil

	if c.chip != nil {
		if err := c.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		c.chip = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}
	return nil
}

// output is a single digital output.
type output interface {
	SetValue(value int) error
}

type lineOutput struct {
	line *gpiod.Line
}

func (o *lineOutput) SetValue(value int) error {
	return o.line.SetValue(value)
}

// memoryOutput keeps the value in memory. Used when no GPIO chip is configured.
type memoryOutput struct {
	value int
}

func (o *memoryOutput) SetValue(value int) error {
	o.value = value
	return nil
}
