package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"matrixlink/config"
	"matrixlink/device"
	"matrixlink/host/link"
	"matrixlink/host/serial"
	"matrixlink/imaging"
	"matrixlink/logging"
	"matrixlink/matrix"
	"matrixlink/protocol"
)

var (
	configPath = flag.String("config", "", "TOML configuration file")
	devicePath = flag.String("device", "", "Serial device path (overrides config)")
	baud       = flag.Int("baud", 0, "Baud rate (overrides config)")
	mode       = flag.String("mode", "", "Send mode: rows, full or segments (overrides config)")
	verbose    = flag.Bool("verbose", false, "Enable debug logging")
	imagePath  = flag.String("image", "", "Send this image and exit")
	dryRun     = flag.Bool("dry-run", false, "Talk to an in-memory device instead of a serial port")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logOpts := logging.DefaultOptions()
	logOpts.Level = cfg.Log.Level
	logOpts.Timestamp = cfg.Log.Timestamp
	logOpts.NoColor = logOpts.NoColor || cfg.Log.NoColor
	if *verbose {
		logOpts.Level = "debug"
	}
	logger := logging.ConfigureRuntime("matrix-host", logOpts)

	sendMode, err := link.ParseMode(cfg.Link.Mode)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid send mode")
	}

	opts, err := linkOptions(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	var l *link.Link
	var remote *device.Receiver
	if *dryRun {
		var stop func()
		l, remote, stop, err = startDryRun(cfg, opts, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to start dry run")
		}
		defer stop()
		logger.Info().Msg("dry run: sending to an in-memory device")
	} else {
		serialCfg := serial.DefaultConfig(cfg.Serial.Device)
		serialCfg.Baud = cfg.Serial.Baud
		serialCfg.ReadTimeout = cfg.Serial.ReadTimeoutMS

		logger.Info().Str("device", serialCfg.Device).Int("baud", serialCfg.Baud).Msg("connecting")
		l, err = link.Open(serialCfg, opts)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect")
		}
	}
	defer l.Close()

	sh := newShell(matrix.New(), l, sendMode, os.Stdout)
	sh.remote = remote

	if *imagePath != "" {
		if err := sendImage(sh, *imagePath); err != nil {
			logger.Error().Err(err).Str("image", *imagePath).Msg("send failed")
			os.Exit(1)
		}
		return
	}

	fmt.Printf("Matrix Host - 16x16 display link, wire format %s\n", protocol.Version)
	fmt.Println("Enter commands (type 'help' for available commands, 'quit' to exit):")
	if err := sh.run(os.Stdin); err != nil {
		logger.Error().Err(err).Msg("error reading input")
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadFile(*configPath); err != nil {
			return nil, err
		}
	}

	if *devicePath != "" {
		cfg.Serial.Device = *devicePath
	}
	if *baud != 0 {
		cfg.Serial.Baud = *baud
	}
	if *mode != "" {
		cfg.Link.Mode = strings.ToLower(*mode)
	}
	return cfg, nil
}

func linkOptions(cfg *config.Config, logger zerolog.Logger) (link.Options, error) {
	codec, err := cfg.RecordCodec()
	if err != nil {
		return link.Options{}, err
	}
	timeout, err := cfg.ReplyTimeout()
	if err != nil {
		return link.Options{}, err
	}

	opts := link.DefaultOptions()
	opts.Codec = codec
	opts.Segments = cfg.SegmentCodec()
	opts.AwaitReplies = cfg.Link.AwaitReplies
	opts.ReplyTimeout = timeout
	opts.Retries = cfg.Link.Retries
	opts.Logger = logger
	return opts, nil
}

// startDryRun connects a link to a receiver over an in-memory pipe
func startDryRun(cfg *config.Config, opts link.Options, logger zerolog.Logger) (*link.Link, *device.Receiver, func(), error) {
	format, err := device.ParseFormat(cfg.Codec.Format)
	if err != nil {
		return nil, nil, nil, err
	}

	hostEnd, deviceEnd := serial.Pipe()
	rcv := device.NewReceiver(matrix.New(), device.Config{
		Codec:    opts.Codec,
		Segments: opts.Segments,
		Format:   format,
	}, deviceEnd)
	rcv.SetLogger(logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := rcv.Serve(ctx, deviceEnd); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("dry-run device stopped")
		}
	}()

	l := link.New(hostEnd, opts)
	stop := func() {
		l.Close()
		cancel()
		deviceEnd.Close()
		<-done
	}
	return l, rcv, stop, nil
}

func sendImage(sh *shell, path string) error {
	img, err := imaging.Load(path)
	if err != nil {
		return err
	}
	if _, err := imaging.Overlay(sh.matrix, img, 0, 0); err != nil {
		return err
	}
	res, err := sh.link.SendMatrix(sh.matrix, sh.mode)
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "Sent %s: %d pixels applied in %d lines\n", path, res.Applied, res.Attempts)
	return nil
}
