package supervisor_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/benmeehan/killswitch/internal/mocks"
	"github.com/benmeehan/killswitch/internal/models"
	"github.com/benmeehan/killswitch/internal/state_managers"
	"github.com/benmeehan/killswitch/internal/supervisor"
	"github.com/benmeehan/killswitch/pkg/file"
	"github.com/benmeehan/killswitch/pkg/gpio"
	pkgmqtt "github.com/benmeehan/killswitch/pkg/mqtt"
	"github.com/benmeehan/killswitch/pkg/network"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hostname = "CYLENCE_test"

type scriptStream struct {
	in  []byte
	out bytes.Buffer
}

func (s *scriptStream) Write(b []byte) (int, error) { return s.out.Write(b) }
func (s *scriptStream) Buffered() int               { return len(s.in) }
func (s *scriptStream) Closed() bool                { return len(s.in) == 0 }
func (s *scriptStream) Type(input string)           { s.in = append(s.in, input...) }

func (s *scriptStream) ReadByte() (byte, error) {
	if len(s.in) == 0 {
		return 0, io.EOF
	}
	b := s.in[0]
	s.in = s.in[1:]
	return b, nil
}

func (s *scriptStream) Peek() (byte, bool) {
	if len(s.in) == 0 {
		return 0, false
	}
	return s.in[0], true
}

type fakeTransport struct {
	reachable bool
	connected bool
	applied   []network.Settings
	hostnames []string
	onScan    func()
}

func (f *fakeTransport) IsConnected() bool { return f.connected }

func (f *fakeTransport) Disconnect() error {
	f.connected = false
	return nil
}

func (f *fakeTransport) Connect(network.Settings) error {
	f.connected = f.reachable
	return nil
}

func (f *fakeTransport) Apply(settings network.Settings) error {
	f.applied = append(f.applied, settings)
	return nil
}

func (f *fakeTransport) Scan() ([]network.AccessPoint, error) {
	if f.onScan != nil {
		f.onScan()
	}
	return []network.AccessPoint{{SSID: "workshop", Signal: 72}}, nil
}

func (f *fakeTransport) Info() (network.Info, error) {
	return network.Info{Name: "wlan0", Addresses: []string{"192.168.0.238/24"}}, nil
}

func (f *fakeTransport) SetHostname(name string) error {
	f.hostnames = append(f.hostnames, name)
	return nil
}

type published struct {
	topic   string
	payload []byte
}

type fakeSession struct {
	reachable     bool
	connected     bool
	configs       []pkgmqtt.SessionConfig
	subscriptions map[string]mqtt.MessageHandler
	unsubscribed  []string
	published     []published
}

func newFakeSession(reachable bool) *fakeSession {
	return &fakeSession{reachable: reachable, subscriptions: map[string]mqtt.MessageHandler{}}
}

func (f *fakeSession) Configure(cfg pkgmqtt.SessionConfig) error {
	f.configs = append(f.configs, cfg)
	return nil
}

func (f *fakeSession) Connect() error {
	if !f.reachable {
		return errors.New("connection refused")
	}
	f.connected = true
	return nil
}

func (f *fakeSession) IsConnected() bool  { return f.connected }
func (f *fakeSession) Resubscribe() error { return nil }
func (f *fakeSession) Disconnect(uint)    { f.connected = false }

func (f *fakeSession) Publish(topic string, _ byte, _ bool, payload interface{}) error {
	f.published = append(f.published, published{topic: topic, payload: payload.([]byte)})
	return nil
}

func (f *fakeSession) Subscribe(topic string, _ byte, callback mqtt.MessageHandler) error {
	f.subscriptions[topic] = callback
	return nil
}

func (f *fakeSession) Unsubscribe(topics ...string) error {
	for _, topic := range topics {
		delete(f.subscriptions, topic)
	}
	f.unsubscribed = append(f.unsubscribed, topics...)
	return nil
}

func (f *fakeSession) deliver(t *testing.T, topic, payload string) {
	t.Helper()
	callback, ok := f.subscriptions[topic]
	require.True(t, ok, "no subscription for %s", topic)
	callback(nil, mocks.NewMockMessage(topic, []byte(payload)))
}

func (f *fakeSession) states(t *testing.T) []models.SystemState {
	t.Helper()
	var states []models.SystemState
	for _, p := range f.published {
		if p.topic != "cylence/status" {
			continue
		}
		var status models.StatusPayload
		require.NoError(t, json.Unmarshal(p.payload, &status))
		states = append(states, status.SystemState)
	}
	return states
}

type fakeRunner struct {
	commands []string
	failing  string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.commands = append(f.commands, strings.Join(append([]string{name}, args...), " "))
	if name == f.failing {
		return []byte("Failed to reboot: access denied"), errors.New("exit status 1")
	}
	if name == "timedatectl" {
		return []byte("yes\n"), nil
	}
	return nil, nil
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type fixture struct {
	sup       *supervisor.Supervisor
	store     *state_managers.DeviceConfigManager
	transport *fakeTransport
	session   *fakeSession
	console   *scriptStream
	relay     *gpio.Relay
	activeLED *gpio.LED
	runner    *fakeRunner
	clock     *fakeClock
}

func newFixture(t *testing.T, sessionReachable bool) *fixture {
	t.Helper()
	logger := zerolog.Nop()

	f := &fixture{
		store: state_managers.NewDeviceConfigManager(filepath.Join(t.TempDir(), "config.json"), 0, hostname,
			file.NewFileService(), logger),
		transport: &fakeTransport{reachable: true},
		session:   newFakeSession(sessionReachable),
		console:   &scriptStream{},
		relay:     gpio.NewVirtualRelay("killswitch", nil, logger),
		activeLED: gpio.NewVirtualLED("active", logger),
		runner:    &fakeRunner{},
		clock:     &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)},
	}

	sup, err := supervisor.New(supervisor.Options{
		Store:       f.store,
		Transport:   f.transport,
		Session:     f.session,
		Console:     f.console,
		Relay:       f.relay,
		ActiveLED:   f.activeLED,
		NetLED:      gpio.NewVirtualLED("net", logger),
		Runner:      f.runner.Run,
		FileClient:  file.NewFileService(),
		DeviceClass: "cylence",
		Now:         f.clock.Now,
		Sleep:       func(time.Duration) {},
	}, logger)
	require.NoError(t, err)
	f.relay.SetOnChange(sup.OnRelayChange)
	f.sup = sup

	require.NoError(t, sup.Boot())
	t.Cleanup(func() { _ = sup.Shutdown() })
	return f
}

func (f *fixture) control(t *testing.T, command int) {
	t.Helper()
	f.session.deliver(t, "cylence/control", `{"clientId":"cylence_test","command":`+strconv.Itoa(command)+`}`)
	f.sup.Step()
}

func TestBoot_DefaultsWithoutStoredConfig(t *testing.T) {
	// Setup & Execute
	f := newFixture(t, false)

	// Assert
	assert.Equal(t, models.StateNormal, f.sup.State())
	assert.Equal(t, hostname, f.sup.Config().Hostname)
	assert.Equal(t, "cylence/control", f.sup.Config().MQTTTopicControl)
	assert.Equal(t, []string{hostname}, f.transport.hostnames)
	assert.False(t, f.relay.IsClosed())
	assert.False(t, f.activeLED.IsOn())
	assert.Empty(t, f.session.published, "status is skipped while the session is down")
	assert.True(t, f.store.Exists())
	assert.Contains(t, f.console.out.String(), "INFO: Boot sequence complete.")
}

func TestBoot_SessionCheckPublishesStatusAndDiscoveryOnce(t *testing.T) {
	// Setup
	f := newFixture(t, false)
	f.session.reachable = true

	// Execute
	f.clock.Advance(time.Second)
	f.sup.Step()
	f.sup.Step()

	// Assert
	require.Len(t, f.session.published, 2)
	assert.Equal(t, "cylence/status", f.session.published[0].topic)
	assert.Equal(t, "redqueen/config", f.session.published[1].topic)
	assert.Equal(t, []models.SystemState{models.StateNormal}, f.session.states(t))

	require.NotEmpty(t, f.session.configs)
	assert.Equal(t, hostname, f.session.configs[len(f.session.configs)-1].ClientID)
	assert.Contains(t, f.runner.commands, "timedatectl show --property=NTPSynchronized --value")
}

func TestControl_MessagesRunOnTheMainLoop(t *testing.T) {
	// Setup
	f := newFixture(t, true)
	f.session.published = nil

	// Execute
	f.session.deliver(t, "cylence/control", `{"clientId":"cylence_test","command":4}`)

	// Assert
	assert.Equal(t, 1, f.sup.Jobs().Pending())
	assert.False(t, f.relay.IsClosed())

	f.sup.Step()

	assert.True(t, f.relay.IsClosed())
	assert.True(t, f.activeLED.IsOn())
	require.Len(t, f.session.published, 1)

	var status models.StatusPayload
	require.NoError(t, json.Unmarshal(f.session.published[0].payload, &status))
	assert.Equal(t, "ON", status.RelayActivation)
	assert.Equal(t, hostname, status.ClientID)
	assert.Equal(t, "Mon Jan  1 08:00:00 2024", status.LastUpdate)
}

func TestControl_DisabledDeviceOnlyReportsStatus(t *testing.T) {
	// Setup
	f := newFixture(t, true)
	f.session.published = nil

	// Execute
	f.control(t, int(models.CommandDisable))
	f.control(t, int(models.CommandRequestStatus))
	f.control(t, int(models.CommandActivate))

	// Assert
	assert.Equal(t, models.StateDisabled, f.sup.State())
	assert.False(t, f.relay.IsClosed())
	assert.Equal(t, []models.SystemState{models.StateDisabled, models.StateDisabled}, f.session.states(t))

	f.control(t, int(models.CommandEnable))
	assert.Equal(t, models.StateNormal, f.sup.State())
}

func TestControl_RebootRestartsTheSystem(t *testing.T) {
	// Setup
	f := newFixture(t, true)

	// Execute
	f.control(t, int(models.CommandReboot))

	// Assert
	assert.Contains(t, f.runner.commands, "systemctl reboot")
	assert.Equal(t, models.StateNormal, f.sup.State())
}

func TestInterrupt_FailsafeUntilResume(t *testing.T) {
	// Setup
	f := newFixture(t, true)
	f.session.published = nil
	f.console.Type("ie\n")

	// Execute
	f.sup.Step()

	// Assert
	out := f.console.out.String()
	assert.Contains(t, out, "ERROR: Entering failsafe (config) mode...")
	assert.Contains(t, out, "INFO: Resuming normal operation...")
	assert.Equal(t, []models.SystemState{models.StateDisabled, models.StateNormal}, f.session.states(t))
	assert.Equal(t, models.StateNormal, f.sup.State())
}

func TestControl_FailedRebootKeepsRunning(t *testing.T) {
	// Setup
	f := newFixture(t, true)
	f.runner.failing = "systemctl"

	// Execute
	f.control(t, int(models.CommandReboot))

	// Assert
	assert.Contains(t, f.runner.commands, "systemctl reboot")
	assert.Equal(t, models.StateNormal, f.sup.State())
}

func TestInterrupt_FailedRebootReturnsToMenu(t *testing.T) {
	// Setup
	f := newFixture(t, true)
	f.runner.failing = "systemctl"
	f.console.Type("ir\n")

	// Execute
	f.sup.Step()

	// Assert
	out := f.console.out.String()
	assert.Contains(t, out, "ERROR: Reboot failed: systemctl reboot: exit status 1")
	assert.Equal(t, 2, strings.Count(out, "= Command menu:"))
	assert.Equal(t, models.StateNormal, f.sup.State())

	f.transport.connected = false
	f.clock.Advance(10 * time.Minute)
	f.sup.Step()

	assert.True(t, f.transport.IsConnected(), "transport checks run again after the menu")
}

func TestInterrupt_ClosedInputResumes(t *testing.T) {
	// Setup
	f := newFixture(t, true)
	f.console.Type("i")

	// Execute
	f.sup.Step()

	// Assert
	assert.Equal(t, models.StateNormal, f.sup.State())
}

func TestConsole_HostnameDHCPAndSave(t *testing.T) {
	// Setup
	f := newFixture(t, true)
	f.console.Type("ic\nkiller\nd\nf\ne\n")

	// Execute
	f.sup.Step()

	// Assert
	cfg := f.sup.Config()
	assert.Equal(t, "killer", cfg.Hostname)
	assert.True(t, cfg.UseDHCP)
	// Saving reconnects the transport, which announces the hostname again.
	assert.Equal(t, []string{hostname, "killer", "killer"}, f.transport.hostnames)
	require.Len(t, f.transport.applied, 1)
	assert.True(t, f.transport.applied[0].UseDHCP)

	stored, result := f.store.Load()
	assert.Equal(t, state_managers.LoadOK, result.Status)
	assert.Equal(t, "killer", stored.Hostname)
	assert.True(t, stored.UseDHCP)
	assert.True(t, f.transport.IsConnected())
}

func TestConsole_MQTTSettingsMoveTheControlSubscription(t *testing.T) {
	// Setup
	f := newFixture(t, true)
	f.console.Type("im\nbroker.lan\n1883\nsite/control\n\n\n\ne\n")

	// Execute
	f.sup.Step()

	// Assert
	cfg := f.sup.Config()
	assert.Equal(t, "broker.lan", cfg.MQTTBroker)
	assert.Equal(t, 1883, cfg.MQTTPort)
	assert.Equal(t, "site/control", cfg.MQTTTopicControl)
	assert.Equal(t, "cylence/status", cfg.MQTTTopicStatus)

	assert.Equal(t, []string{"cylence/control"}, f.session.unsubscribed)
	assert.Contains(t, f.session.subscriptions, "site/control")

	last := f.session.configs[len(f.session.configs)-1]
	assert.Equal(t, "broker.lan", last.Broker)
	assert.Equal(t, 1883, last.Port)
	assert.Empty(t, last.Username)
}

func TestRun_StopsOnCancel(t *testing.T) {
	// Setup
	f := newFixture(t, true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Execute
	err := f.sup.Run(ctx)

	// Assert
	assert.NoError(t, err)
	assert.False(t, f.session.IsConnected())
}

func TestRun_ShutdownLeavesTheMenu(t *testing.T) {
	// Setup
	f := newFixture(t, true)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.transport.onScan = cancel
	f.console.Type("is\n")

	// Execute
	done := make(chan error, 1)
	go func() { done <- f.sup.Run(ctx) }()

	// Assert
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("menu did not stop on shutdown")
	}
	assert.Equal(t, models.StateDisabled, f.sup.State())
	assert.NotContains(t, f.console.out.String(), "INFO: Resuming normal operation...")
	assert.False(t, f.session.IsConnected())
}
