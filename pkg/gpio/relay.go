package gpio

import (
	"sync"

	"github.com/rs/zerolog"
)

// Relay drives the killswitch relay contacts.
type Relay struct {
	name     string
	out      output
	onChange func(closed bool)
	closed   bool
	logger   zerolog.Logger
	mu       sync.Mutex
}

func newRelay(name string, out output, onChange func(closed bool), logger zerolog.Logger) *Relay {
	return &Relay{
		name:     name,
		out:      out,
		onChange: onChange,
		logger:   logger.With().Str("relay", name).Logger(),
	}
}

// NewVirtualRelay returns a relay that is not backed by hardware.
func NewVirtualRelay(name string, onChange func(closed bool), logger zerolog.Logger) *Relay {
	return newRelay(name, &memoryOutput{}, onChange, logger)
}

// SetOnChange replaces the callback run after the contacts change state.
func (r *Relay) SetOnChange(onChange func(closed bool)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = onChange
}

// Close closes the relay contacts.
func (r *Relay) Close() error {
	return r.set(true)
}

// Open opens the relay contacts.
func (r *Relay) Open() error {
	return r.set(false)
}

// Toggle flips the relay contacts.
func (r *Relay) Toggle() error {
	return r.set(!r.IsClosed())
}

// IsClosed reports whether the contacts are closed.
func (r *Relay) IsClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Relay) set(closed bool) error {
	r.mu.Lock()
	value := 0
	if closed {
		value = 1
	}
	if err := r.out.SetValue(value); err != nil {
		r.mu.Unlock()
		r.logger.Error().Err(err).Bool("closed", closed).Msg("Failed to drive relay")
		return err
	}
	changed := r.closed != closed
	r.closed = closed
	onChange := r.onChange
	r.mu.Unlock()

	r.logger.Debug().Bool("closed", closed).Msg("Relay set")
	if changed && onChange != nil {
		onChange(closed)
	}
	return nil
}
