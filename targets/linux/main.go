// Command matrix-device runs the display end of the link on a Linux board:
// it reads lines from the serial port, keeps the matrix, previews it on the
// terminal and persists it between restarts.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"matrixlink/config"
	"matrixlink/host/serial"
	"matrixlink/indicator"
	"matrixlink/logging"
	"matrixlink/protocol"
)

var (
	configPath = flag.String("config", "", "TOML configuration file")
	devicePath = flag.String("device", "", "Serial device path (overrides config)")
	baud       = flag.Int("baud", 0, "Baud rate (overrides config)")
	verbose    = flag.Bool("verbose", false, "Enable debug logging")
	noDisplay  = flag.Bool("no-display", false, "Disable the terminal preview")
)

func main() {
	flag.Parse()

	cfg := config.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadFile(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
	if *devicePath != "" {
		cfg.Serial.Device = *devicePath
	}
	if *baud != 0 {
		cfg.Serial.Baud = *baud
	}
	if *noDisplay {
		cfg.Display.Terminal = false
	}

	logOpts := logging.DefaultOptions()
	logOpts.Level = cfg.Log.Level
	logOpts.Timestamp = cfg.Log.Timestamp
	logOpts.NoColor = logOpts.NoColor || cfg.Log.NoColor
	if *verbose {
		logOpts.Level = "debug"
	}
	logger := logging.ConfigureRuntime("matrix-device", logOpts)

	var ind *indicator.Indicator
	if cfg.Indicator.Chip != "" {
		hold, err := cfg.IndicatorHold()
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid configuration")
		}
		ind, err = indicator.Open(cfg.Indicator.Chip, cfg.Indicator.Line, cfg.Indicator.ActiveLow, hold)
		if err != nil {
			logger.Warn().Err(err).Msg("indicator disabled")
		}
	}
	defer ind.Close()

	serialCfg := serial.DefaultConfig(cfg.Serial.Device)
	serialCfg.Baud = cfg.Serial.Baud
	serialCfg.ReadTimeout = cfg.Serial.ReadTimeoutMS

	port, err := serial.Open(serialCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open serial port")
	}
	defer port.Close()

	var display io.Writer
	if cfg.Display.Terminal {
		display = os.Stdout
	}
	dev, err := newDevice(cfg, logger, display, ind, port)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().
		Str("device", serialCfg.Device).
		Int("baud", serialCfg.Baud).
		Str("wire_format", protocol.Version).
		Msg("listening")
	err = dev.receiver.Serve(ctx, port)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("serve failed")
	}

	st := dev.receiver.Stats()
	logger.Info().
		Uint32("lines", st.Lines).
		Uint32("pixels", st.Records).
		Uint32("mismatches", st.Mismatches).
		Uint32("malformed", st.Malformed).
		Uint32("overflows", st.Overflows).
		Msg("shutting down")
}
