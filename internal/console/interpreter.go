package console

import (
	"errors"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/benmeehan/killswitch/internal/constants"
	"github.com/benmeehan/killswitch/internal/models"
	"github.com/benmeehan/killswitch/internal/utils"
	"github.com/benmeehan/killswitch/pkg/network"
	"github.com/benmeehan/killswitch/pkg/stream"
	"github.com/benmeehan/killswitch/pkg/watchdog"
	"github.com/rs/zerolog"
)

// ExitReason tells why EnterMenu returned.
type ExitReason int

const (
	// ExitResume means the operator resumed normal operation.
	ExitResume ExitReason = iota
	// ExitReboot means a reboot was requested.
	ExitReboot
	// ExitFactoryRestore means the configuration was erased and a reboot requested.
	ExitFactoryRestore
	// ExitInputClosed means the console stream ended.
	ExitInputClosed
	// ExitShutdown means the agent is stopping.
	ExitShutdown
)

func (r ExitReason) String() string {
	switch r {
	case ExitResume:
		return "resume"
	case ExitReboot:
		return "reboot"
	case ExitFactoryRestore:
		return "factory_restore"
	case ExitInputClosed:
		return "input_closed"
	case ExitShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

var (
	errInputClosed = errors.New("console input closed")
	errShutdown    = errors.New("console stopped for shutdown")
)

type menuState int

const (
	stateShowMenu menuState = iota
	stateAwaitCommand
	stateDispatch
)

const menu = `
==============================
= Command menu:              =
=                            =
= r: Reboot                  =
= c: Configure network       =
= m: Configure MQTT settings =
= s: Scan wireless networks  =
= n: Connect to new network  =
= w: Reconnect to WiFi       =
= e: Resume normal operation =
= g: Get network info        =
= f: Save config changes     =
= z: Restore default config  =
=                            =
==============================

Enter command choice (r/c/m/s/n/w/e/g/f/z): 
`

// Interpreter is the operator's recovery console. It is single threaded and
// blocks while the menu is active.
type Interpreter struct {
	stream       stream.Stream
	handlers     Handlers
	watchdog     watchdog.Watchdog
	pollInterval time.Duration
	done         <-chan struct{}
	logger       zerolog.Logger

	hostname   string
	mqtt       models.MQTTSettings
	modeSelect bool
}

// NewInterpreter creates a console on s. A nil handlers value ignores every command.
func NewInterpreter(s stream.Stream, handlers Handlers, wd watchdog.Watchdog, logger zerolog.Logger) *Interpreter {
	if handlers == nil {
		handlers = NopHandlers{}
	}
	if wd == nil {
		wd = watchdog.Nop{}
	}

	return &Interpreter{
		stream:       s,
		handlers:     handlers,
		watchdog:     wd,
		pollInterval: constants.InputPollInterval,
		logger:       logger.With().Str("component", "console").Logger(),
	}
}

// SetHandlers replaces the command handlers.
func (c *Interpreter) SetHandlers(handlers Handlers) {
	if handlers == nil {
		handlers = NopHandlers{}
	}
	c.handlers = handlers
}

// SetDone makes every input wait give up once done is closed.
func (c *Interpreter) SetDone(done <-chan struct{}) {
	c.done = done
}

// SetHostname sets the hostname shown by the network configuration prompt.
func (c *Interpreter) SetHostname(hostname string) {
	c.hostname = hostname
}

// SetMQTTSettings sets the values shown by the MQTT configuration prompts.
func (c *Interpreter) SetMQTTSettings(settings models.MQTTSettings) {
	c.mqtt = settings
}

// CheckInterrupt consumes one waiting input byte without blocking. If it is
// the interrupt key the Interrupt handler runs and true is returned.
func (c *Interpreter) CheckInterrupt() bool {
	if c.stream.Buffered() < 1 {
		return false
	}

	b, err := c.stream.ReadByte()
	if err != nil || b != constants.InterruptKey {
		return false
	}

	c.logger.Warn().Msg("Console interrupt received")
	c.handlers.Interrupt()
	return true
}

// EnterMenu runs the command menu until the operator resumes or reboots,
// restores defaults, the input ends or the agent shuts down.
func (c *Interpreter) EnterMenu() ExitReason {
	state := stateShowMenu
	var choice byte

	for {
		switch state {
		case stateShowMenu:
			c.modeSelect = false
			c.print(menu)
			state = stateAwaitCommand

		case stateAwaitCommand:
			b, err := c.readChoice()
			if err != nil {
				c.logger.Warn().Err(err).Msg("Console input ended")
				return exitFor(err)
			}
			choice = b
			state = stateDispatch

		case stateDispatch:
			next, reason, exit := c.dispatch(choice)
			if exit {
				c.logger.Info().Str("reason", reason.String()).Msg("Leaving console menu")
				return reason
			}
			state = next
		}
	}
}

func (c *Interpreter) dispatch(choice byte) (next menuState, reason ExitReason, exit bool) {
	if c.modeSelect {
		c.modeSelect = false
		switch choice {
		case 'd':
			c.handlers.SwitchToDHCP()
		case 't':
			c.configureStaticIP()
		default:
			c.println("WARN: Unrecognized network mode.")
		}
		return stateShowMenu, 0, false
	}

	switch choice {
	case 'r':
		if err := c.handlers.Reboot(); err != nil {
			c.logger.Error().Err(err).Msg("Reboot failed")
			c.println("ERROR: Reboot failed: %v", err)
			break
		}
		return 0, ExitReboot, true

	case 's':
		c.handlers.ScanNetworks()

	case 'c':
		if err := c.configureHostname(); err != nil {
			return 0, exitFor(err), true
		}
		c.println("Choose network mode (d = DHCP, t = Static):")
		c.modeSelect = true
		return stateAwaitCommand, 0, false

	case 'w':
		if c.handlers.Reconnect() {
			return 0, ExitResume, true
		}
		c.println("ERROR: Still no network connection.")

	case 'n':
		c.configureWiFiNetwork()

	case 'e':
		c.handlers.Resume()
		return 0, ExitResume, true

	case 'g':
		c.handlers.PrintNetworkInfo()

	case 'f':
		c.handlers.SaveConfig()

	case 'm':
		c.configureMQTT()

	case 'z':
		if c.confirmFactoryRestore() {
			if err := c.handlers.FactoryRestore(); err != nil {
				c.logger.Error().Err(err).Msg("Factory restore failed")
				c.println("ERROR: Factory restore failed: %v", err)
				break
			}
			return 0, ExitFactoryRestore, true
		}

	default:
		c.println("WARN: Unrecognized command.")
	}

	return stateShowMenu, 0, false
}

func (c *Interpreter) configureHostname() error {
	c.println("Current host name: %s", c.hostname)
	c.println("Set new host name: ")

	hostname, err := c.readLine(false)
	if err != nil {
		return err
	}
	hostname = strings.TrimSpace(hostname)
	if hostname == "" {
		c.println("Host name unchanged.")
		return nil
	}

	c.handlers.HostnameChanged(hostname)
	c.hostname = hostname
	return nil
}

func (c *Interpreter) configureStaticIP() {
	var addr network.Addressing
	addr.IP = c.promptAddress("Enter IP address: ", "New IP: ")
	addr.Gateway = c.promptAddress("Enter gateway: ", "New gateway: ")
	addr.SubnetMask = c.promptAddress("Enter subnet mask: ", "New subnet mask: ")
	addr.DNS = c.promptAddress("Enter DNS server: ", "New DNS server: ")
	if c.stopping() {
		return
	}

	c.handlers.SwitchToStatic(addr)
}

func (c *Interpreter) configureWiFiNetwork() {
	c.println("Enter new SSID: ")
	ssid, err := c.readLine(false)
	if err != nil {
		return
	}
	c.println("SSID = %s", ssid)

	c.println("Enter new password: ")
	password, err := c.readLine(true)
	if err != nil {
		return
	}
	c.println("Password = %s", strings.Repeat("*", len(password)))

	c.handlers.WiFiConfigured(ssid, password)
}

func (c *Interpreter) configureMQTT() {
	settings := c.mqtt

	settings.Broker = c.promptString("Current MQTT broker = %s", settings.Broker, "Enter MQTT broker address: ", "New broker = ")

	c.println("Current port = %d", settings.Port)
	c.println("Enter MQTT broker port:")
	if line, err := c.readLine(false); err == nil {
		port, convErr := strconv.Atoi(strings.TrimSpace(line))
		if convErr != nil || port < 1 || port > 65535 {
			c.println("WARN: Invalid port '%s', keeping %d.", line, settings.Port)
		} else {
			settings.Port = port
		}
	}
	c.println("New port = %d", settings.Port)

	settings.ControlTopic = c.promptString("Current control topic = %s", settings.ControlTopic, "Enter MQTT control topic:", "New control topic = ")
	settings.StatusTopic = c.promptString("Current status topic = %s", settings.StatusTopic, "Enter MQTT status topic:", "New status topic = ")

	c.println("Current username: %s", settings.Username)
	c.println("Enter new username, or just press enter to clear:")
	settings.Username, _ = c.readLine(false)
	c.println("New MQTT username = %s", settings.Username)

	c.println("Current password: %s", strings.Repeat("*", len(settings.Password)))
	c.println("Enter new password, or just press enter to clear:")
	settings.Password, _ = c.readLine(true)
	if c.stopping() {
		return
	}

	c.mqtt = settings
	c.handlers.MQTTConfigured(settings)
}

func (c *Interpreter) confirmFactoryRestore() bool {
	c.println("")
	c.println("Are you sure you wish to restore to factory defaults? (y/N)")

	answer, err := c.readLine(false)
	if err != nil {
		return false
	}
	if strings.ToLower(answer) != "y" {
		c.println("Factory restore cancelled.")
		return false
	}
	return true
}

// promptString shows the current value and reads a replacement. An empty
// answer keeps the current value.
func (c *Interpreter) promptString(currentFormat, current, prompt, resultPrefix string) string {
	c.println(currentFormat, current)
	c.println(prompt)

	value, err := c.readLine(false)
	if err != nil || value == "" {
		value = current
	}
	c.println("%s%s", resultPrefix, value)
	return value
}

func (c *Interpreter) promptAddress(prompt, resultPrefix string) netip.Addr {
	c.println(prompt)
	line, _ := c.readLine(false)

	addr, ok := utils.ParseDottedQuad(line)
	if !ok {
		c.println("WARN: Invalid address '%s', using %s.", line, addr)
	}
	c.println("%s%s", resultPrefix, addr)
	return addr
}

// readChoice waits for a menu choice. Line terminators and blanks left over
// from previous input are skipped, and a terminator right after the choice
// is consumed with it.
func (c *Interpreter) readChoice() (byte, error) {
	for {
		if err := c.waitForInput(); err != nil {
			return 0, err
		}
		b, err := c.stream.ReadByte()
		if err != nil {
			return 0, err
		}
		if isBlank(b) {
			continue
		}

		if next, ok := c.stream.Peek(); ok && (next == '\r' || next == '\n') {
			_, _ = c.stream.ReadByte()
		}
		return b, nil
	}
}

// readLine reads until a newline. Typed characters are echoed, or masked
// with '*' in password mode.
func (c *Interpreter) readLine(password bool) (string, error) {
	var line []byte
	for {
		if err := c.waitForInput(); err != nil {
			return string(line), err
		}
		b, err := c.stream.ReadByte()
		if err != nil {
			return string(line), err
		}

		switch b {
		case '\n':
			c.print("\n")
			return string(line), nil
		case '\r':
			continue
		case 0x08, 0x7f:
			if len(line) > 0 {
				line = line[:len(line)-1]
				c.print("\b \b")
			}
			continue
		}

		line = append(line, b)
		if password {
			c.print("*")
		} else {
			c.print(string(b))
		}
	}
}

// waitForInput blocks until a byte is available, asserting liveness while it waits.
func (c *Interpreter) waitForInput() error {
	for c.stream.Buffered() < 1 {
		if c.stopping() {
			return errShutdown
		}
		if c.stream.Closed() {
			return errInputClosed
		}
		c.watchdog.Alive()
		time.Sleep(c.pollInterval)
	}
	return nil
}

func (c *Interpreter) stopping() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func exitFor(err error) ExitReason {
	if errors.Is(err, errShutdown) {
		return ExitShutdown
	}
	return ExitInputClosed
}

func (c *Interpreter) print(text string) {
	_, _ = c.stream.Write([]byte(text))
}

func (c *Interpreter) println(format string, args ...any) {
	c.print(fmt.Sprintf(format, args...) + "\n")
}

func isBlank(b byte) bool {
	return b == '\r' || b == '\n' || b == ' ' || b == '\t'
}
