package services_test

import (
	"errors"
	"testing"
	"time"

	"github.com/benmeehan/killswitch/internal/models"
	"github.com/benmeehan/killswitch/internal/services"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

const ntpQuery = "timedatectl show --property=NTPSynchronized --value"

func newClockService(runner *fakeRunner) (*services.ClockService, *fakeLED) {
	led := &fakeLED{}
	c := services.NewClockService(runner.Run, &models.DeviceConfig{ClockTimezone: -4}, led, zerolog.Nop())
	c.SetClock(func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) })
	return c, led
}

func TestClockService_Sync_Synchronised(t *testing.T) {
	// Setup
	runner := &fakeRunner{outputs: map[string]string{ntpQuery: "yes\n"}}
	c, led := newClockService(runner)

	// Execute
	ok := c.Sync()

	// Assert
	assert.True(t, ok)
	assert.Equal(t, []string{ntpQuery}, runner.commands)
	assert.Equal(t, 1, led.ons)
	assert.False(t, led.on)
}

func TestClockService_Sync_EnablesNTP(t *testing.T) {
	// Setup
	runner := &fakeRunner{outputs: map[string]string{ntpQuery: "no\n"}}
	c, _ := newClockService(runner)

	// Execute
	ok := c.Sync()

	// Assert
	assert.False(t, ok)
	assert.Equal(t, []string{ntpQuery, "timedatectl set-ntp true"}, runner.commands)
}

func TestClockService_Sync_QueryFails(t *testing.T) {
	// Setup
	runner := &fakeRunner{errs: map[string]error{ntpQuery: errors.New("executable file not found")}}
	c, _ := newClockService(runner)

	// Execute
	ok := c.Sync()

	// Assert
	assert.False(t, ok)
	assert.Equal(t, []string{ntpQuery}, runner.commands)
}
