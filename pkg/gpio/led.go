package gpio

import (
	"sync"

	"github.com/rs/zerolog"
)

// LED is a status indicator. Drive failures are logged, never returned:
// an indicator must not interrupt the work it reports on.
type LED struct {
	name   string
	out    output
	on     bool
	logger zerolog.Logger
	mu     sync.Mutex
}

func newLED(name string, out output, logger zerolog.Logger) *LED {
	return &LED{
		name:   name,
		out:    out,
		logger: logger.With().Str("led", name).Logger(),
	}
}

// NewVirtualLED returns an LED that is not backed by hardware.
func NewVirtualLED(name string, logger zerolog.Logger) *LED {
	return newLED(name, &memoryOutput{}, logger)
}

func (l *LED) On()  { l.set(true) }
func (l *LED) Off() { l.set(false) }

// Toggle inverts the LED; repeated calls make it blink.
func (l *LED) Toggle() {
	l.mu.Lock()
	on := !l.on
	l.mu.Unlock()
	l.set(on)
}

// IsOn reports the last value driven.
func (l *LED) IsOn() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.on
}

func (l *LED) set(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	value := 0
	if on {
		value = 1
	}
	if err := l.out.SetValue(value); err != nil {
		l.logger.Debug().Err(err).Msg("Failed to drive LED")
		return
	}
	l.on = on
}
