// Package device implements the display side of the link: it splits the
// incoming byte stream into lines, applies record frames or packed segments
// to a matrix and answers each line with a reply.
package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"matrixlink/matrix"
	"matrixlink/protocol"
)

// Format selects how incoming lines are interpreted
type Format int

const (
	FormatAuto     Format = iota // lines with a pixel separator are frames, others segments
	FormatRecords                // every line is a record frame
	FormatSegments               // every line is a packed segment
)

// ParseFormat accepts "auto", "records" and "segments"
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "auto", "":
		return FormatAuto, nil
	case "records", "record", "frames":
		return FormatRecords, nil
	case "segments", "segment":
		return FormatSegments, nil
	default:
		return 0, fmt.Errorf("device: unknown line format %q", s)
	}
}

// Config describes the wire layout the receiver expects
type Config struct {
	Codec    protocol.RecordCodec
	Segments protocol.SegmentCodec
	Format   Format
}

// DefaultConfig matches link.DefaultOptions
func DefaultConfig() Config {
	codec := protocol.DefaultRecordCodec()
	codec.Base = protocol.BaseHex
	codec.Checksum = true
	return Config{
		Codec:    codec,
		Segments: protocol.DefaultSegmentCodec(),
		Format:   FormatAuto,
	}
}

// AppliedHandler is called after a line changed the matrix
type AppliedHandler func(applied int)

// ErrorHandler is called for every line that failed in full or in part
type ErrorHandler func(err error)

// Stats holds receiver counters
type Stats struct {
	Lines      uint32 // lines handled
	Records    uint32 // pixels applied
	Mismatches uint32 // records or segments skipped on checksum mismatch
	Malformed  uint32 // lines stopped by a structural error
	Overflows  uint32 // lines dropped for exceeding MaxLineLength
}

// Receiver applies incoming lines to a matrix.
//
// Receive, HandleLine and Serve must be called from one goroutine; the
// handlers run on that goroutine too
type Receiver struct {
	matrix *matrix.Matrix
	cfg    Config
	reply  io.Writer
	log    zerolog.Logger

	discarding bool

	lines      uint32
	records    uint32
	mismatches uint32
	malformed  uint32
	overflows  uint32

	appliedHandler AppliedHandler
	errorHandler   ErrorHandler
}

// NewReceiver creates a receiver writing into m. Replies go to reply, which
// may be nil for a silent receiver
func NewReceiver(m *matrix.Matrix, cfg Config, reply io.Writer) *Receiver {
	return &Receiver{
		matrix: m,
		cfg:    cfg,
		reply:  reply,
		log:    zerolog.Nop(),
	}
}

// SetLogger sets the receiver's logger
func (r *Receiver) SetLogger(log zerolog.Logger) {
	r.log = log.With().Str("component", "receiver").Logger()
}

// SetAppliedHandler sets the callback run after pixels were applied
func (r *Receiver) SetAppliedHandler(h AppliedHandler) {
	r.appliedHandler = h
}

// SetErrorHandler sets the callback run for failed lines
func (r *Receiver) SetErrorHandler(h ErrorHandler) {
	r.errorHandler = h
}

// Matrix returns the matrix the receiver writes into
func (r *Receiver) Matrix() *matrix.Matrix {
	return r.matrix
}

// Receive handles every complete line in input and leaves a trailing partial
// line buffered. A partial line that reaches MaxLineLength is dropped along
// with the rest of that line
func (r *Receiver) Receive(input protocol.InputBuffer) {
	for {
		if r.discarding {
			data := input.Data()
			n := protocol.DiscardLine(input)
			if n == 0 || data[n-1] != protocol.FrameTerminator {
				return
			}
			r.discarding = false
			continue
		}

		line, ok := protocol.NextLine(input)
		if !ok {
			if input.Available() >= protocol.MaxLineLength {
				protocol.DiscardLine(input)
				r.discarding = true
				atomic.AddUint32(&r.overflows, 1)
				err := fmt.Errorf("%w: line exceeds %d bytes", protocol.ErrOversizedRecord, protocol.MaxLineLength)
				r.log.Warn().Err(err).Msg("dropping line")
				r.sendReply(protocol.Reply{Status: protocol.ReplyBad, Reason: protocol.Reason(err)})
				r.notifyError(err)
			}
			return
		}
		r.HandleLine(line)
	}
}

// HandleLine applies one line (without terminator) and writes the reply
func (r *Receiver) HandleLine(line []byte) protocol.Reply {
	atomic.AddUint32(&r.lines, 1)

	var reply protocol.Reply
	var err error
	if r.isSegment(line) {
		reply, err = r.applySegment(line)
	} else {
		reply, err = r.applyFrame(line)
	}

	if reply.Applied > 0 {
		atomic.AddUint32(&r.records, uint32(reply.Applied))
		if r.appliedHandler != nil {
			r.appliedHandler(reply.Applied)
		}
	}
	if err != nil {
		r.notifyError(err)
	}

	r.sendReply(reply)
	return reply
}

func (r *Receiver) isSegment(line []byte) bool {
	switch r.cfg.Format {
	case FormatSegments:
		return true
	case FormatRecords:
		return false
	default:
		return len(line) > 0 && !strings.ContainsRune(string(line), protocol.PixelSeparator)
	}
}

func (r *Receiver) applyFrame(line []byte) (protocol.Reply, error) {
	res, err := r.matrix.ApplyFrame(r.cfg.Codec, line)
	reply := ReplyFor(res, err)

	switch reply.Status {
	case protocol.ReplyChecksum:
		atomic.AddUint32(&r.mismatches, uint32(len(res.Mismatched)))
		r.log.Warn().Ints("records", res.Mismatched).Int("applied", res.Applied).Msg("checksum mismatch")
	case protocol.ReplyBad:
		atomic.AddUint32(&r.malformed, 1)
		r.log.Warn().Err(err).Int("applied", res.Applied).Msg("malformed frame")
	default:
		r.log.Debug().Int("applied", res.Applied).Msg("frame applied")
	}
	return reply, err
}

func (r *Receiver) applySegment(line []byte) (protocol.Reply, error) {
	n, err := r.matrix.ApplySegment(r.cfg.Segments, line)
	switch {
	case err == nil:
		r.log.Debug().Int("applied", n).Msg("segment applied")
		return protocol.Reply{Status: protocol.ReplyOK, Applied: n}, nil
	case errors.Is(err, protocol.ErrChecksumMismatch):
		atomic.AddUint32(&r.mismatches, 1)
		r.log.Warn().Err(err).Msg("segment discarded")
		return protocol.Reply{Status: protocol.ReplyChecksum, Indices: []int{0}}, err
	default:
		atomic.AddUint32(&r.malformed, 1)
		r.log.Warn().Err(err).Msg("malformed segment")
		return protocol.Reply{Status: protocol.ReplyBad, Reason: protocol.Reason(err)}, err
	}
}

// ReplyFor builds the reply line for the outcome of ApplyFrame
func ReplyFor(res matrix.ApplyResult, err error) protocol.Reply {
	switch {
	case err == nil:
		return protocol.Reply{Status: protocol.ReplyOK, Applied: res.Applied}
	case res.Failed < 0 && errors.Is(err, protocol.ErrChecksumMismatch):
		return protocol.Reply{Status: protocol.ReplyChecksum, Applied: res.Applied, Indices: res.Mismatched}
	default:
		index := res.Failed
		if index < 0 {
			index = 0
		}
		return protocol.Reply{Status: protocol.ReplyBad, Applied: res.Applied, Index: index, Reason: protocol.Reason(err)}
	}
}

func (r *Receiver) sendReply(reply protocol.Reply) {
	if r.reply == nil {
		return
	}
	if _, err := io.WriteString(r.reply, reply.String()+string(protocol.FrameTerminator)); err != nil {
		r.log.Error().Err(err).Msg("failed to write reply")
	}
}

func (r *Receiver) notifyError(err error) {
	if r.errorHandler != nil {
		r.errorHandler(err)
	}
}

// Serve reads from port until ctx is cancelled or the port is closed,
// handling lines as they complete
func (r *Receiver) Serve(ctx context.Context, port io.Reader) error {
	input := protocol.NewFifoBuffer(protocol.MaxLineLength + 1)
	buffer := make([]byte, 256)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := port.Read(buffer[:min(len(buffer), input.Free())])
		if n > 0 {
			input.Write(buffer[:n])
			r.Receive(input)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				// Serial read timeouts surface as io.EOF
				time.Sleep(10 * time.Millisecond)
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("device: read: %w", err)
		}
	}
}

// Stats returns a snapshot of the receiver counters
func (r *Receiver) Stats() Stats {
	return Stats{
		Lines:      atomic.LoadUint32(&r.lines),
		Records:    atomic.LoadUint32(&r.records),
		Mismatches: atomic.LoadUint32(&r.mismatches),
		Malformed:  atomic.LoadUint32(&r.malformed),
		Overflows:  atomic.LoadUint32(&r.overflows),
	}
}
