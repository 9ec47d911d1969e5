package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/benmeehan/killswitch/internal/constants"
	"github.com/benmeehan/killswitch/internal/models"
	"github.com/benmeehan/killswitch/pkg/network"
	"github.com/rs/zerolog"
)

// LocalTime converts t to the fixed UTC offset given in hours.
func LocalTime(t time.Time, offsetHours int) time.Time {
	name := fmt.Sprintf("UTC%+d", offsetHours)
	return t.In(time.FixedZone(name, offsetHours*60*60))
}

// FormatTimestamp renders t in the device timezone using the asctime layout.
func FormatTimestamp(t time.Time, offsetHours int) string {
	return LocalTime(t, offsetHours).Format(time.ANSIC)
}

// ClockService checks that the OS clock is synchronised over NTP.
type ClockService struct {
	run     network.Runner
	timeout time.Duration
	config  *models.DeviceConfig
	netLED  Indicator
	now     func() time.Time
	logger  zerolog.Logger
}

// NewClockService creates a ClockService using timedatectl through run.
func NewClockService(run network.Runner, config *models.DeviceConfig, netLED Indicator, logger zerolog.Logger) *ClockService {
	if run == nil {
		run = network.ExecRunner
	}
	return &ClockService{
		run:     run,
		timeout: constants.CommandTimeout,
		config:  config,
		netLED:  netLED,
		now:     time.Now,
		logger:  logger.With().Str("component", "clock").Logger(),
	}
}

// SetClock replaces the time source.
func (c *ClockService) SetClock(now func() time.Time) {
	c.now = now
}

// Sync reports whether the clock is synchronised. An unsynchronised clock
// gets NTP switched on so the next check can succeed.
func (c *ClockService) Sync() bool {
	c.netLED.On()
	defer c.netLED.Off()

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	output, err := c.run(ctx, "timedatectl", "show", "--property=NTPSynchronized", "--value")
	if err != nil {
		c.logger.Error().Err(err).Str("output", strings.TrimSpace(string(output))).Msg("Failed to query clock state")
		return false
	}

	if strings.TrimSpace(string(output)) != "yes" {
		c.logger.Warn().Msg("Clock is not synchronised, enabling NTP")
		if out, err := c.run(ctx, "timedatectl", "set-ntp", "true"); err != nil {
			c.logger.Error().Err(err).Str("output", strings.TrimSpace(string(out))).Msg("Failed to enable NTP")
		}
		return false
	}

	c.logger.Info().
		Str("time", FormatTimestamp(c.now(), c.config.ClockTimezone)).
		Msg("Clock synchronised")
	return true
}
