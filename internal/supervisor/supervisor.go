package supervisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benmeehan/killswitch/internal/console"
	"github.com/benmeehan/killswitch/internal/constants"
	"github.com/benmeehan/killswitch/internal/models"
	"github.com/benmeehan/killswitch/internal/scheduler"
	"github.com/benmeehan/killswitch/internal/service_registry"
	"github.com/benmeehan/killswitch/internal/services"
	"github.com/benmeehan/killswitch/internal/state_managers"
	"github.com/benmeehan/killswitch/internal/utils"
	"github.com/benmeehan/killswitch/pkg/file"
	"github.com/benmeehan/killswitch/pkg/mqtt"
	"github.com/benmeehan/killswitch/pkg/network"
	"github.com/benmeehan/killswitch/pkg/stream"
	"github.com/benmeehan/killswitch/pkg/watchdog"
	"github.com/rs/zerolog"
)

const jobQueueSize = 64

// ConfigStore persists the device configuration.
type ConfigStore interface {
	Load() (models.DeviceConfig, state_managers.LoadResult)
	Save(cfg models.DeviceConfig) error
	Remove() error
}

// Relay is the killswitch relay.
type Relay interface {
	Open() error
	Toggle() error
	IsClosed() bool
}

// Options are the collaborators and settings of a Supervisor.
type Options struct {
	Store      ConfigStore
	Transport  network.Transport
	Session    mqtt.Session
	Console    stream.Stream
	Relay      Relay
	ActiveLED  services.Indicator
	NetLED     services.Indicator
	Watchdog   watchdog.Watchdog
	Runner     network.Runner
	FileClient file.FileOperations

	DeviceClass       string
	FirmwareVersion   string
	StagedVersionFile string

	WiFiInterval    time.Duration
	SessionInterval time.Duration
	ClockInterval   time.Duration
	MaxTries        int
	RetryDelay      time.Duration

	// Now and Sleep replace the wall clock; nil uses the time package.
	Now   func() time.Time
	Sleep func(time.Duration)
}

// Supervisor owns the device configuration and the system state, runs the
// boot sequence and drives the single-threaded main loop. Every change to
// either goes through it.
type Supervisor struct {
	config models.DeviceConfig

	store     ConfigStore
	machine   *state_managers.SystemStateManager
	jobs      *utils.JobQueue
	sched     *scheduler.Scheduler
	wifiTask  *scheduler.Task
	mqttTask  *scheduler.Task
	clockTask *scheduler.Task

	connectivity *services.ConnectivityService
	status       *services.StatusService
	control      *services.ControlService
	clock        *services.ClockService
	system       *services.SystemService
	update       *services.UpdateService
	registry     *service_registry.ServiceRegistry
	console      *console.Interpreter

	transport network.Transport
	session   mqtt.Session
	out       stream.Stream
	relay     Relay
	activeLED services.Indicator
	netLED    services.Indicator
	watchdog  watchdog.Watchdog
	sleep     func(time.Duration)
	logger    zerolog.Logger
}

// New wires a Supervisor. The device configuration is loaded by Boot.
func New(opts Options, logger zerolog.Logger) (*Supervisor, error) {
	if opts.Watchdog == nil {
		opts.Watchdog = watchdog.Nop{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}
	if opts.WiFiInterval <= 0 {
		opts.WiFiInterval = constants.DefaultWiFiCheckInterval
	}
	if opts.SessionInterval <= 0 {
		opts.SessionInterval = constants.DefaultMQTTCheckInterval
	}
	if opts.ClockInterval <= 0 {
		opts.ClockInterval = constants.DefaultClockSyncInterval
	}
	if opts.FirmwareVersion == "" {
		opts.FirmwareVersion = constants.FirmwareVersion
	}

	s := &Supervisor{
		store:     opts.Store,
		jobs:      utils.NewJobQueue(jobQueueSize),
		transport: opts.Transport,
		session:   opts.Session,
		out:       opts.Console,
		relay:     opts.Relay,
		activeLED: opts.ActiveLED,
		netLED:    opts.NetLED,
		watchdog:  opts.Watchdog,
		sleep:     opts.Sleep,
		logger:    logger.With().Str("component", "supervisor").Logger(),
	}

	s.machine = state_managers.NewSystemStateManager(s, logger)

	s.status = services.NewStatusService(opts.Session, &s.config, s.machine, opts.Relay, opts.DeviceClass, opts.NetLED, logger)
	s.status.SetClock(opts.Now)

	s.connectivity = services.NewConnectivityService(opts.Transport, opts.Session, &s.config, opts.Watchdog,
		opts.NetLED, opts.MaxTries, opts.RetryDelay, logger)
	s.connectivity.SetSleeper(opts.Sleep)
	s.connectivity.OnSessionUp(s.onSessionUp)

	s.control = services.NewControlService(opts.Session, &s.config, s.machine, s.status, s.jobs, logger)

	s.clock = services.NewClockService(opts.Runner, &s.config, opts.NetLED, logger)
	s.clock.SetClock(opts.Now)

	s.system = services.NewSystemService(opts.Runner, opts.Watchdog, logger)
	s.system.SetSleeper(opts.Sleep)

	update, err := services.NewUpdateService(opts.FirmwareVersion, opts.StagedVersionFile, opts.FileClient,
		s.machine, s.status, s.jobs, logger)
	if err != nil {
		return nil, err
	}
	s.update = update

	s.registry = service_registry.NewServiceRegistry(logger)
	s.registry.RegisterService("control", s.control)
	s.registry.RegisterService("update", s.update)

	s.sched = scheduler.New(opts.Now, logger)
	s.wifiTask = s.sched.AddTask("check_wifi", opts.WiFiInterval, func() { s.connectivity.CheckTransport() })
	s.mqttTask = s.sched.AddTask("check_mqtt", opts.SessionInterval, func() { s.connectivity.CheckSession() })
	s.clockTask = s.sched.AddTask("sync_clock", opts.ClockInterval, func() { s.clock.Sync() })

	s.console = console.NewInterpreter(opts.Console, s, opts.Watchdog, logger)

	return s, nil
}

// Boot runs the boot sequence and leaves the device in NORMAL.
func (s *Supervisor) Boot() error {
	s.println("")
	s.println("Cylence v%s booting...", constants.FirmwareVersion)

	// Outputs
	s.activeLED.On()
	s.netLED.On()
	if err := s.relay.Open(); err != nil {
		s.logger.Error().Err(err).Msg("Failed to open relay")
	}

	// Configuration
	cfg, result := s.store.Load()
	s.config = cfg
	s.logger.Info().
		Str("status", result.Status.String()).
		Strs("fallbacks", result.Fallbacks).
		Str("hostname", s.config.Hostname).
		Msg("Device configuration ready")

	// Transport
	s.ScanNetworks()
	s.println("INFO: Connecting to SSID: %s...", s.config.SSID)
	if s.connectivity.Connect() {
		s.PrintNetworkInfo()
	} else {
		s.println("ERROR: Failed to connect to WiFi!")
		s.println("WARN: Will attempt to reconnect at scheduled interval.")
	}
	s.connectivity.AnnounceHostname()

	// Session
	if err := s.registry.StartServices(); err != nil {
		return fmt.Errorf("failed to start services: %w", err)
	}
	s.connectivity.CheckSession()

	// Scheduler
	s.wifiTask.EnableDelayed(constants.WiFiCheckInitialDelay)
	s.mqttTask.EnableDelayed(constants.MQTTCheckInitialDelay)
	s.clockTask.Enable()

	// Console
	s.console.SetHostname(s.config.Hostname)
	s.console.SetMQTTSettings(s.config.MQTTSettings())

	if err := s.machine.CompleteBoot(); err != nil {
		return err
	}
	s.publishStatus()
	s.println("INFO: Boot sequence complete.")
	s.netLED.Off()
	s.activeLED.Off()
	return nil
}

// Run drives the main loop until ctx is cancelled, then shuts down.
func (s *Supervisor) Run(ctx context.Context) error {
	s.console.SetDone(ctx.Done())
	for {
		select {
		case <-ctx.Done():
			return s.Shutdown()
		default:
		}

		s.Step()
		s.sleep(constants.LoopIdle)
	}
}

// Step runs one turn of the main loop: liveness, console interrupt, due
// tasks, then work queued by other goroutines.
func (s *Supervisor) Step() {
	s.watchdog.Alive()
	s.console.CheckInterrupt()
	s.sched.Execute()
	s.jobs.RunPending()
}

// Shutdown stops the services and closes the session.
func (s *Supervisor) Shutdown() error {
	s.logger.Info().Msg("Shutting down")
	err := s.registry.StopServices()
	s.session.Disconnect(constants.DefaultDisconnectQuiesce)
	return err
}

// State returns the current system state.
func (s *Supervisor) State() models.SystemState {
	return s.machine.State()
}

// Config returns a copy of the device configuration.
func (s *Supervisor) Config() models.DeviceConfig {
	return s.config
}

// Jobs returns the queue drained by the main loop.
func (s *Supervisor) Jobs() *utils.JobQueue {
	return s.jobs
}

// OnRelayChange mirrors the relay contacts on the activation LED.
func (s *Supervisor) OnRelayChange(closed bool) {
	if closed {
		s.logger.Info().Msg("Killswitch activated")
		s.activeLED.On()
		return
	}
	s.logger.Info().Msg("Killswitch deactivated")
	s.activeLED.Off()
}

// ToggleRelay flips the killswitch relay.
func (s *Supervisor) ToggleRelay() {
	if err := s.relay.Toggle(); err != nil {
		s.logger.Error().Err(err).Msg("Failed to toggle relay")
	}
}

func (s *Supervisor) onSessionUp() {
	s.publishStatus()
	if err := s.status.PublishDiscovery(); err != nil && !errors.Is(err, services.ErrSessionDown) {
		s.logger.Error().Err(err).Msg("Failed to publish discovery packet")
	}
}

func (s *Supervisor) publishStatus() {
	if err := s.status.PublishStatus(); err != nil && !errors.Is(err, services.ErrSessionDown) {
		s.logger.Error().Err(err).Msg("Failed to publish status")
	}
}

func (s *Supervisor) println(format string, args ...any) {
	fmt.Fprintf(s.out, format+"\n", args...)
}
