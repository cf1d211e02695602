package main

import (
	"errors"
	"io"
	"io/fs"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"

	"matrixlink/config"
	"matrixlink/device"
	"matrixlink/indicator"
	"matrixlink/matrix"
	"matrixlink/protocol"
	"matrixlink/snapshot"
)

// displayDevice ties the receiver to its outputs: terminal preview, snapshot
// file and error indicator
type displayDevice struct {
	receiver *device.Receiver
	matrix   *matrix.Matrix
	term     *matrix.TermDisplay
	ind      *indicator.Indicator
	log      zerolog.Logger

	snapshotPath  string
	snapshotLevel zstd.EncoderLevel
}

// newDevice builds the device from cfg. display may be nil to disable the
// preview; replies are written to reply
func newDevice(cfg *config.Config, logger zerolog.Logger, display io.Writer, ind *indicator.Indicator, reply io.Writer) (*displayDevice, error) {
	codec, err := cfg.RecordCodec()
	if err != nil {
		return nil, err
	}
	format, err := device.ParseFormat(cfg.Codec.Format)
	if err != nil {
		return nil, err
	}
	level, err := snapshot.ParseLevel(cfg.Snapshot.Level)
	if err != nil {
		return nil, err
	}

	d := &displayDevice{
		ind:           ind,
		log:           logger.With().Str("component", "device").Logger(),
		snapshotPath:  cfg.Snapshot.Path,
		snapshotLevel: level,
	}
	d.matrix = d.restore()

	if display != nil {
		d.term = matrix.NewTermDisplay(display, protocol.MatrixSize, protocol.MatrixSize)
		d.term.Home = cfg.Display.Home
		d.term.Plain = cfg.Display.Plain
	}

	d.receiver = device.NewReceiver(d.matrix, device.Config{
		Codec:    codec,
		Segments: cfg.SegmentCodec(),
		Format:   format,
	}, reply)
	d.receiver.SetLogger(logger)
	d.receiver.SetAppliedHandler(d.onApplied)
	d.receiver.SetErrorHandler(d.onError)

	d.render()
	return d, nil
}

// restore loads the last snapshot, falling back to a blank matrix
func (d *displayDevice) restore() *matrix.Matrix {
	if d.snapshotPath == "" {
		return matrix.New()
	}
	m, err := snapshot.Load(d.snapshotPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			d.log.Warn().Err(err).Str("path", d.snapshotPath).Msg("ignoring snapshot")
		}
		return matrix.New()
	}
	d.log.Info().Str("path", d.snapshotPath).Msg("restored snapshot")
	return m
}

func (d *displayDevice) onApplied(applied int) {
	d.log.Debug().Int("pixels", applied).Msg("applied")
	d.render()
	if d.snapshotPath != "" {
		if err := snapshot.Save(d.snapshotPath, d.matrix, d.snapshotLevel); err != nil {
			d.log.Error().Err(err).Msg("failed to save snapshot")
		}
	}
}

func (d *displayDevice) onError(err error) {
	d.log.Debug().Err(err).Msg("line rejected")
	d.ind.Flash()
}

func (d *displayDevice) render() {
	if d.term == nil {
		return
	}
	if err := matrix.Render(d.matrix, d.term); err != nil {
		d.log.Error().Err(err).Msg("render failed")
	}
}
