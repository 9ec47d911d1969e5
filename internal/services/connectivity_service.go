package services

import (
	"time"

	"github.com/benmeehan/killswitch/internal/constants"
	"github.com/benmeehan/killswitch/internal/models"
	"github.com/benmeehan/killswitch/pkg/mqtt"
	"github.com/benmeehan/killswitch/pkg/network"
	"github.com/benmeehan/killswitch/pkg/watchdog"
	"github.com/rs/zerolog"
)

// ConnectivityService keeps the wireless transport and the MQTT session up.
// Every attempt is bounded; a failed check is retried on the next tick.
type ConnectivityService struct {
	transport network.Transport
	session   mqtt.Session
	config    *models.DeviceConfig
	watchdog  watchdog.Watchdog
	netLED    Indicator

	maxTries    int
	retryDelay  time.Duration
	settleDelay time.Duration
	sleep       func(time.Duration)

	onSessionUp []func()
	logger      zerolog.Logger
}

// NewConnectivityService creates a ConnectivityService. Non-positive
// maxTries and retryDelay fall back to the defaults.
func NewConnectivityService(transport network.Transport, session mqtt.Session, config *models.DeviceConfig,
	wd watchdog.Watchdog, netLED Indicator, maxTries int, retryDelay time.Duration, logger zerolog.Logger) *ConnectivityService {

	if maxTries <= 0 {
		maxTries = constants.TransportMaxTries
	}
	if retryDelay <= 0 {
		retryDelay = constants.TransportRetryDelay
	}
	if wd == nil {
		wd = watchdog.Nop{}
	}

	return &ConnectivityService{
		transport:   transport,
		session:     session,
		config:      config,
		watchdog:    wd,
		netLED:      netLED,
		maxTries:    maxTries,
		retryDelay:  retryDelay,
		settleDelay: constants.TransportSettleDelay,
		sleep:       time.Sleep,
		logger:      logger.With().Str("component", "connectivity").Logger(),
	}
}

// SetSleeper replaces the function used to wait between attempts.
func (c *ConnectivityService) SetSleeper(sleep func(time.Duration)) {
	c.sleep = sleep
}

// OnSessionUp registers a hook run after every successful session (re)connect.
func (c *ConnectivityService) OnSessionUp(fn func()) {
	c.onSessionUp = append(c.onSessionUp, fn)
}

// Status returns the current link states.
func (c *ConnectivityService) Status() models.ConnectionStatus {
	return models.ConnectionStatus{
		TransportConnected: c.transport.IsConnected(),
		SessionConnected:   c.session.IsConnected(),
	}
}

// CheckTransport reconnects the transport if it is down. After a successful
// reconnect the hostname is re-announced and the session is checked.
func (c *ConnectivityService) CheckTransport() bool {
	c.logger.Info().Msg("Checking WiFi connectivity")
	if c.transport.IsConnected() {
		return true
	}

	c.logger.Warn().Msg("Lost connection, attempting reconnect")
	if !c.Connect() {
		return false
	}

	c.AnnounceHostname()
	c.CheckSession()
	return true
}

// ReconnectNow runs the transport check synchronously and reports the outcome.
func (c *ConnectivityService) ReconnectNow() bool {
	return c.CheckTransport()
}

// ResetTransport drops the current association and reconnects with the
// current settings.
func (c *ConnectivityService) ResetTransport() bool {
	if err := c.transport.Disconnect(); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to drop WiFi connection")
	}
	return c.CheckTransport()
}

// Connect requests association with the current settings and polls the link
// at most maxTries times, retryDelay apart.
func (c *ConnectivityService) Connect() bool {
	settings := c.config.NetworkSettings()
	defer c.netLED.Off()

	if err := c.transport.Disconnect(); err != nil {
		c.logger.Debug().Err(err).Msg("Disconnect before connect failed")
	}
	c.watchdog.Alive()
	c.sleep(c.settleDelay)

	c.logger.Info().Str("ssid", settings.SSID).Bool("dhcp", settings.UseDHCP).Msg("Connecting to WiFi")
	if err := c.transport.Connect(settings); err != nil {
		c.logger.Error().Err(err).Msg("Failed to request WiFi connection")
		return false
	}

	for try := 1; try <= c.maxTries; try++ {
		c.watchdog.Alive()
		c.netLED.Toggle()
		c.sleep(c.retryDelay)
		if c.transport.IsConnected() {
			c.logger.Info().Int("tries", try).Msg("WiFi connected")
			return true
		}
	}

	c.logger.Error().Int("tries", c.maxTries).Msg("Failed to connect to WiFi, will retry at scheduled interval")
	return false
}

// ApplyAddressing pushes the current DHCP or static settings to the active link.
func (c *ConnectivityService) ApplyAddressing() error {
	settings := c.config.NetworkSettings()
	if err := c.transport.Apply(settings); err != nil {
		c.logger.Error().Err(err).Msg("Failed to apply network settings")
		return err
	}
	c.logger.Info().Bool("dhcp", settings.UseDHCP).Msg("Network settings applied")
	return nil
}

// AnnounceHostname publishes the configured hostname on the local network.
func (c *ConnectivityService) AnnounceHostname() {
	if err := c.transport.SetHostname(c.config.Hostname); err != nil {
		c.logger.Warn().Err(err).Str("hostname", c.config.Hostname).Msg("Failed to announce hostname")
		return
	}
	c.logger.Info().Str("hostname", c.config.Hostname).Msg("Hostname announced")
}

// CheckSession reconnects the MQTT session once if the transport is up and the
// session is not. On success the subscriptions are restored and the
// session-up hooks run.
func (c *ConnectivityService) CheckSession() bool {
	c.logger.Info().Msg("Checking MQTT connection status")
	if !c.transport.IsConnected() {
		c.logger.Warn().Msg("WiFi is down, skipping MQTT check")
		return false
	}
	if c.session.IsConnected() {
		return true
	}

	c.netLED.On()
	defer c.netLED.Off()

	settings := c.config.MQTTSettings()
	c.logger.Info().
		Str("broker", settings.Broker).
		Int("port", settings.Port).
		Msg("Attempting to establish MQTT connection")

	cfg := mqtt.SessionConfig{
		Broker:   settings.Broker,
		Port:     settings.Port,
		ClientID: c.config.Hostname,
	}
	if settings.HasCredentials() {
		cfg.Username = settings.Username
		cfg.Password = settings.Password
	}
	if err := c.session.Configure(cfg); err != nil {
		c.logger.Error().Err(err).Msg("Failed to configure MQTT session")
		return false
	}

	c.watchdog.Alive()
	if err := c.session.Connect(); err != nil {
		c.logger.Error().Err(err).Msg("Failed to connect to MQTT broker, will retry at scheduled interval")
		return false
	}
	if err := c.session.Resubscribe(); err != nil {
		c.logger.Error().Err(err).Msg("Failed to restore subscriptions")
	}

	c.logger.Info().Msg("Successfully connected to MQTT broker")
	for _, fn := range c.onSessionUp {
		fn()
	}
	return true
}

// ResetSession drops the MQTT session and reconnects with the current settings.
func (c *ConnectivityService) ResetSession() bool {
	c.session.Disconnect(constants.DefaultDisconnectQuiesce)
	return c.CheckSession()
}
