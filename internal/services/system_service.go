package services

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/benmeehan/killswitch/internal/constants"
	"github.com/benmeehan/killswitch/pkg/network"
	"github.com/benmeehan/killswitch/pkg/watchdog"
	"github.com/rs/zerolog"
)

// ConfigRemover erases the stored device configuration.
type ConfigRemover interface {
	Remove() error
}

// SystemService performs the destructive operator actions: reboot and
// factory restore.
type SystemService struct {
	run         network.Runner
	timeout     time.Duration
	rebootDelay time.Duration
	sleep       func(time.Duration)
	watchdog    watchdog.Watchdog
	logger      zerolog.Logger
}

// NewSystemService creates a SystemService that reboots through systemctl.
func NewSystemService(run network.Runner, wd watchdog.Watchdog, logger zerolog.Logger) *SystemService {
	if run == nil {
		run = network.ExecRunner
	}
	if wd == nil {
		wd = watchdog.Nop{}
	}
	return &SystemService{
		run:         run,
		timeout:     constants.CommandTimeout,
		rebootDelay: constants.RebootDelay,
		sleep:       time.Sleep,
		watchdog:    wd,
		logger:      logger.With().Str("component", "system").Logger(),
	}
}

// SetSleeper replaces the function used for delays.
func (s *SystemService) SetSleeper(sleep func(time.Duration)) {
	s.sleep = sleep
}

// Reboot restarts the device after a short delay that lets log output flush.
func (s *SystemService) Reboot() error {
	s.logger.Warn().Msg("Rebooting")
	s.watchdog.Alive()
	s.sleep(s.rebootDelay)

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if output, err := s.run(ctx, "systemctl", "reboot"); err != nil {
		s.logger.Error().Err(err).Str("output", strings.TrimSpace(string(output))).Msg("Reboot failed")
		return fmt.Errorf("systemctl reboot: %w", err)
	}
	return nil
}

// FactoryRestore removes the stored configuration, counts down on w and reboots.
func (s *SystemService) FactoryRestore(store ConfigRemover, w io.Writer) error {
	fmt.Fprint(w, "INFO: Clearing current config... ")
	if err := store.Remove(); err != nil {
		fmt.Fprintln(w, "FAIL")
		return err
	}
	fmt.Fprintln(w, "DONE")

	fmt.Fprint(w, "INFO: Rebooting in ")
	for i := constants.FactoryRestoreCountdown; i >= 1; i-- {
		fmt.Fprintf(w, "%d ", i)
		s.watchdog.Alive()
		s.sleep(time.Second)
	}
	fmt.Fprintln(w)

	return s.Reboot()
}
