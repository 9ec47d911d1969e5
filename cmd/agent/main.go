package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/benmeehan/killswitch/internal/constants"
	"github.com/benmeehan/killswitch/internal/state_managers"
	"github.com/benmeehan/killswitch/internal/supervisor"
	"github.com/benmeehan/killswitch/internal/utils"
	"github.com/benmeehan/killswitch/pkg/file"
	"github.com/benmeehan/killswitch/pkg/identity"
	"github.com/benmeehan/killswitch/pkg/mqtt"
	"github.com/benmeehan/killswitch/pkg/network"
	"github.com/benmeehan/killswitch/pkg/watchdog"
	"github.com/spf13/pflag"
)

func main() {
	configPath := pflag.StringP("config", "c", "configs/config.yaml", "path to the agent configuration file")
	debug := pflag.Bool("debug", false, "enable debug logging")
	pflag.Parse()

	// Initialize file operations handler
	fileClient := file.NewFileService()

	// Load configuration from file
	config, configErr := utils.LoadConfig(*configPath, fileClient)

	// Set up structured logging
	logger, err := utils.NewLogger(config.Logging.Level, config.Logging.Pretty, *debug)
	if err != nil {
		logger.Warn().Err(err).Str("level", config.Logging.Level).Msg("Invalid log level, using info")
	}
	if configErr != nil {
		logger.Warn().Err(configErr).Str("path", *configPath).Msg("Failed to load configuration, using defaults")
	}
	logger.Info().Str("version", constants.FirmwareVersion).Msg("Starting killswitch agent")

	// Initialize DeviceInfo
	deviceInfo := identity.NewDeviceInfo(config.Storage.IdentityFile, fileClient)
	if err := deviceInfo.LoadDeviceInfo(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to load device information")
	}
	defaultHostname := deviceInfo.DefaultHostname(config.Device.Name, constants.HostnameIDLength)
	logger.Info().Str("device_id", deviceInfo.GetDeviceID()).Str("default_hostname", defaultHostname).Msg("Device identity loaded")

	store := state_managers.NewDeviceConfigManager(config.Storage.ConfigFile, config.Storage.MaxConfigSize,
		defaultHostname, fileClient, logger)

	// Initialize the shared MQTT connection. It connects once the network is up.
	mqttClient := mqtt.NewMqttService(fileClient, config.MQTT.CACertificate, config.MQTT.ConnectTimeout, logger)
	mqttClient.SetPublishTimeout(constants.PublishTimeout)

	transport := network.NewNMCLITransport(config.Network.Interface, config.Network.Profile,
		config.Network.CommandTimeout, network.ExecRunner)

	console, err := openConsole(config)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open console")
	}
	defer console.Close()

	hw, err := openOutputs(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to set up GPIO outputs")
	}
	defer func() {
		if err := hw.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to release GPIO lines")
		}
	}()

	wd, err := watchdog.NewFromEnv(constants.WatchdogNotifyInterval)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to connect to systemd, running without watchdog")
		wd = watchdog.Nop{}
	}

	sup, err := supervisor.New(supervisor.Options{
		Store:             store,
		Transport:         transport,
		Session:           mqttClient,
		Console:           console,
		Relay:             hw.relay,
		ActiveLED:         hw.activeLED,
		NetLED:            hw.netLED,
		Watchdog:          wd,
		Runner:            network.ExecRunner,
		FileClient:        fileClient,
		DeviceClass:       config.Device.Class,
		StagedVersionFile: config.OTA.StagedVersionFile,
		WiFiInterval:      config.Network.CheckInterval,
		SessionInterval:   config.Session.CheckInterval,
		ClockInterval:     config.Clock.SyncInterval,
		MaxTries:          config.Network.MaxTries,
		RetryDelay:        config.Network.RetryDelay,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create supervisor")
	}
	hw.relay.SetOnChange(sup.OnRelayChange)

	if err := sup.Boot(); err != nil {
		logger.Fatal().Err(err).Msg("Boot failed")
	}
	if notifier, ok := wd.(*watchdog.Notifier); ok {
		if err := notifier.Ready(); err != nil {
			logger.Warn().Err(err).Msg("Failed to notify systemd")
		}
		defer notifier.Close()
	}

	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sup.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("Shutdown finished with errors")
		return
	}
	logger.Info().Msg("Shut down gracefully")
}
