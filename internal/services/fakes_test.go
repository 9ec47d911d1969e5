package services_test

import (
	"context"
	"strings"
	"time"

	"github.com/benmeehan/killswitch/internal/models"
	"github.com/benmeehan/killswitch/internal/state_managers"
)

type fakeLED struct {
	on      bool
	ons     int
	toggles int
}

func (l *fakeLED) Off() { l.on = false }

func (l *fakeLED) On() {
	l.on = true
	l.ons++
}

func (l *fakeLED) Toggle() {
	l.on = !l.on
	l.toggles++
}

type fakeRelay struct {
	closed bool
}

func (r *fakeRelay) IsClosed() bool { return r.closed }

type fakeState struct {
	state models.SystemState
}

func (s *fakeState) State() models.SystemState { return s.state }

type fakeStatus struct {
	status    int
	discovery int
	err       error
}

func (s *fakeStatus) PublishStatus() error {
	s.status++
	return s.err
}

func (s *fakeStatus) PublishDiscovery() error {
	s.discovery++
	return s.err
}

type fakeMachine struct {
	commands []models.ControlCommand
	outcome  state_managers.Outcome
}

func (m *fakeMachine) ApplyCommand(cmd models.ControlCommand) state_managers.Outcome {
	m.commands = append(m.commands, cmd)
	return m.outcome
}

// sleepRecorder stands in for time.Sleep.
type sleepRecorder struct {
	sleeps []time.Duration
}

func (s *sleepRecorder) Sleep(d time.Duration) { s.sleeps = append(s.sleeps, d) }

func (s *sleepRecorder) Total() time.Duration {
	var total time.Duration
	for _, d := range s.sleeps {
		total += d
	}
	return total
}

// fakeRunner answers external commands from a table keyed by the command line.
type fakeRunner struct {
	outputs  map[string]string
	errs     map[string]error
	commands []string
}

func (r *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	line := strings.Join(append([]string{name}, args...), " ")
	r.commands = append(r.commands, line)
	return []byte(r.outputs[line]), r.errs[line]
}
