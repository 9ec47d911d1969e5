package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"sync"
	"syscall"

	"github.com/Masterminds/semver/v3"
	"github.com/benmeehan/killswitch/internal/constants"
	"github.com/benmeehan/killswitch/pkg/file"
	"github.com/rs/zerolog"
)

// ErrStaleVersion is returned when the staged firmware is not newer than the running one.
var ErrStaleVersion = errors.New("staged firmware is not newer than the running firmware")

// UpdateStateMachine is the part of the state machine driven by firmware updates.
type UpdateStateMachine interface {
	BeginUpdate() error
	EndUpdate() error
}

// UpdateService follows firmware updates performed by an external flasher.
// The flasher writes the staged version to a file and signals the agent with
// SIGUSR1 when it starts and SIGUSR2 when it is done.
type UpdateService struct {
	stagedVersionFile string
	fileClient        file.FileOperations
	current           *semver.Version
	staged            *semver.Version
	machine           UpdateStateMachine
	status            StatusPublisher
	jobs              JobSubmitter
	logger            zerolog.Logger

	signals chan os.Signal
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewUpdateService creates an UpdateService. currentVersion must be a valid
// semantic version.
func NewUpdateService(currentVersion, stagedVersionFile string, fileClient file.FileOperations,
	machine UpdateStateMachine, status StatusPublisher, jobs JobSubmitter, logger zerolog.Logger) (*UpdateService, error) {

	current, err := semver.NewVersion(currentVersion)
	if err != nil {
		return nil, fmt.Errorf("invalid firmware version %q: %w", currentVersion, err)
	}

	return &UpdateService{
		stagedVersionFile: stagedVersionFile,
		fileClient:        fileClient,
		current:           current,
		machine:           machine,
		status:            status,
		jobs:              jobs,
		logger:            logger.With().Str("component", "update").Logger(),
	}, nil
}

// Start installs the signal handlers.
func (u *UpdateService) Start() error {
	if runtime.GOOS != "linux" {
		return fmt.Errorf("update service is incompatible with %s", runtime.GOOS)
	}
	if u.ctx != nil {
		return errors.New("update service is already running")
	}

	u.ctx, u.cancel = context.WithCancel(context.Background())
	u.signals = make(chan os.Signal, 2)
	signal.Notify(u.signals, syscall.SIGUSR1, syscall.SIGUSR2)

	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		u.watch()
	}()

	u.logger.Info().Str("version", u.current.String()).Msg("Update service started")
	return nil
}

// Stop removes the signal handlers.
func (u *UpdateService) Stop() error {
	if u.ctx == nil {
		return errors.New("update service is not running")
	}

	signal.Stop(u.signals)
	u.cancel()
	u.wg.Wait()

	u.ctx = nil
	u.cancel = nil

	u.logger.Info().Msg("Update service stopped")
	return nil
}

func (u *UpdateService) watch() {
	for {
		select {
		case <-u.ctx.Done():
			return
		case sig := <-u.signals:
			update := constants.UpdateSignalEnd
			if sig == syscall.SIGUSR1 {
				update = constants.UpdateSignalStart
			}
			if !u.jobs.Submit(func() { _ = u.Handle(update) }) {
				u.logger.Warn().Str("signal", string(update)).Msg("Job queue full, dropping update signal")
			}
		}
	}
}

// Handle applies one edge of a firmware update.
func (u *UpdateService) Handle(sig constants.UpdateSignal) error {
	var err error
	switch sig {
	case constants.UpdateSignalStart:
		err = u.begin()
	case constants.UpdateSignalEnd:
		err = u.end()
	default:
		err = fmt.Errorf("unknown update signal %q", sig)
	}
	if err != nil {
		u.logger.Error().Err(err).Str("signal", string(sig)).Msg("Update signal rejected")
	}
	return err
}

func (u *UpdateService) begin() error {
	staged, err := u.readStagedVersion()
	if err != nil {
		return err
	}
	if !staged.GreaterThan(u.current) {
		return fmt.Errorf("%w: staged %s, running %s", ErrStaleVersion, staged, u.current)
	}
	if err := u.machine.BeginUpdate(); err != nil {
		return err
	}

	u.staged = staged
	u.logger.Warn().Str("from", u.current.String()).Str("to", staged.String()).Msg("Firmware update started")
	u.publish()
	return nil
}

func (u *UpdateService) end() error {
	if err := u.machine.EndUpdate(); err != nil {
		return err
	}

	to := ""
	if u.staged != nil {
		to = u.staged.String()
	}
	u.staged = nil
	u.logger.Info().Str("to", to).Msg("Firmware update finished")
	u.publish()
	return nil
}

// Staged returns the version being installed, or nil when no update runs.
func (u *UpdateService) Staged() *semver.Version {
	return u.staged
}

func (u *UpdateService) readStagedVersion() (*semver.Version, error) {
	raw, err := u.fileClient.ReadFile(u.stagedVersionFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read staged version: %w", err)
	}
	version, err := semver.NewVersion(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid staged version %q: %w", strings.TrimSpace(raw), err)
	}
	return version, nil
}

func (u *UpdateService) publish() {
	if err := u.status.PublishStatus(); err != nil && !errors.Is(err, ErrSessionDown) {
		u.logger.Error().Err(err).Msg("Failed to publish status")
	}
}
