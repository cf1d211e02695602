// Package link drives a matrix display over a line-oriented serial port: it
// encodes pixels into frames or segments, waits for the device's reply line
// and resends what failed verification.
package link

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"matrixlink/host/serial"
	"matrixlink/matrix"
	"matrixlink/protocol"
)

var (
	ErrTimeout  = errors.New("link: reply timeout")
	ErrClosed   = errors.New("link: closed")
	ErrRejected = errors.New("link: frame rejected by device")
)

// Mode selects how a whole matrix is transmitted
type Mode int

const (
	ModeRows     Mode = iota // one record frame per row
	ModeFull                 // a single frame with every cell
	ModeSegments             // packed segment lines
)

// ParseMode accepts "rows", "full" and "segments"
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rows", "row", "":
		return ModeRows, nil
	case "full", "all":
		return ModeFull, nil
	case "segments", "segment":
		return ModeSegments, nil
	default:
		return 0, fmt.Errorf("link: unknown send mode %q", s)
	}
}

func (m Mode) String() string {
	switch m {
	case ModeFull:
		return "full"
	case ModeSegments:
		return "segments"
	default:
		return "rows"
	}
}

// Options configures a Link
type Options struct {
	Codec    protocol.RecordCodec
	Segments protocol.SegmentCodec

	// AwaitReplies makes every send wait for the device's reply line.
	// Receivers that never answer need it off
	AwaitReplies bool
	ReplyTimeout time.Duration
	// Retries is how many times records reported as mismatched are resent
	Retries int

	Logger zerolog.Logger
}

// DefaultOptions returns the options for a checksummed link that waits for
// replies
func DefaultOptions() Options {
	codec := protocol.DefaultRecordCodec()
	codec.Base = protocol.BaseHex
	codec.Checksum = true
	return Options{
		Codec:        codec,
		Segments:     protocol.DefaultSegmentCodec(),
		AwaitReplies: true,
		ReplyTimeout: 2 * time.Second,
		Retries:      3,
		Logger:       zerolog.Nop(),
	}
}

// Result summarises one send
type Result struct {
	Applied  int // records or pixels the device reported as applied
	Attempts int // lines written, resends included
}

func (r *Result) add(o Result) {
	r.Applied += o.Applied
	r.Attempts += o.Attempts
}

// Stats holds link counters
type Stats struct {
	LinesSent uint32
	Retries   uint32
	Timeouts  uint32
	Rejected  uint32
}

// Link is the host side of the display link
type Link struct {
	port io.ReadWriteCloser
	opts Options
	log  zerolog.Logger

	inputBuffer *protocol.FifoBuffer
	replyChan   chan protocol.Reply

	writeMutex sync.Mutex
	readMutex  sync.Mutex

	linesSent uint32
	retries   uint32
	timeouts  uint32
	rejected  uint32

	stopChan  chan struct{}
	doneChan  chan struct{}
	closeOnce sync.Once
}

// Open opens a serial port and starts a link on it
func Open(cfg *serial.Config, opts Options) (*Link, error) {
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("link: %w", err)
	}
	return New(port, opts), nil
}

// New starts a link on an open port. The link owns the port from now on
func New(port io.ReadWriteCloser, opts Options) *Link {
	l := &Link{
		port:        port,
		opts:        opts,
		log:         opts.Logger.With().Str("component", "link").Logger(),
		inputBuffer: protocol.NewFifoBuffer(protocol.MaxLineLength),
		replyChan:   make(chan protocol.Reply, 16),
		stopChan:    make(chan struct{}),
		doneChan:    make(chan struct{}),
	}

	go l.readLoop()

	return l
}

// Options returns the options the link was created with
func (l *Link) Options() Options {
	return l.opts
}

// SendPixels sends pixels as record frames, splitting them so no line exceeds
// the receiver's MaxLineLength. Records the device reports as mismatched are
// re-encoded and resent, up to Retries times
func (l *Link) SendPixels(pixels []protocol.Pixel) (Result, error) {
	if err := l.opts.Codec.Validate(); err != nil {
		return Result{}, fmt.Errorf("encode frame: %w", err)
	}

	var total Result
	per := l.opts.Codec.RecordsPerLine()
	for start := 0; ; start += per {
		end := min(start+per, len(pixels))
		res, err := l.sendFrame(pixels[start:end])
		total.add(res)
		if err != nil {
			if start > 0 {
				return total, fmt.Errorf("records from %d: %w", start, err)
			}
			return total, err
		}
		if end >= len(pixels) {
			return total, nil
		}
	}
}

// sendFrame sends one frame that fits a single line
func (l *Link) sendFrame(pixels []protocol.Pixel) (Result, error) {
	var res Result
	pending := pixels

	for attempt := 0; ; attempt++ {
		frame, err := l.opts.Codec.EncodeFrame(pending)
		if err != nil {
			return res, fmt.Errorf("encode frame: %w", err)
		}

		reply, err := l.exchange(frame)
		res.Attempts++
		if err != nil || !l.opts.AwaitReplies {
			return res, err
		}
		res.Applied += reply.Applied

		switch reply.Status {
		case protocol.ReplyOK:
			return res, nil

		case protocol.ReplyBad:
			atomic.AddUint32(&l.rejected, 1)
			return res, fmt.Errorf("%w: record %d: %s", ErrRejected, reply.Index, reply.Reason)

		case protocol.ReplyChecksum:
			if attempt >= l.opts.Retries {
				return res, fmt.Errorf("%w: records %v still failing after %d attempts",
					protocol.ErrChecksumMismatch, reply.Indices, attempt+1)
			}
			next := make([]protocol.Pixel, 0, len(reply.Indices))
			for _, i := range reply.Indices {
				if i >= 0 && i < len(pending) {
					next = append(next, pending[i])
				}
			}
			if len(next) == 0 {
				return res, fmt.Errorf("%w: reply indices %v outside frame of %d records",
					ErrRejected, reply.Indices, len(pending))
			}
			atomic.AddUint32(&l.retries, 1)
			l.log.Warn().Ints("records", reply.Indices).Int("attempt", attempt+1).Msg("checksum mismatch, resending")
			pending = next
		}
	}
}

// SendSegment sends one packed segment line, resending it while the device
// reports a mismatch
func (l *Link) SendSegment(pixels []protocol.Pixel) (Result, error) {
	line, err := l.opts.Segments.Encode(pixels)
	if err != nil {
		return Result{}, fmt.Errorf("encode segment: %w", err)
	}
	return l.sendSegmentLine(line + string(protocol.FrameTerminator))
}

func (l *Link) sendSegmentLine(line string) (Result, error) {
	var res Result
	for attempt := 0; ; attempt++ {
		reply, err := l.exchange(line)
		res.Attempts++
		if err != nil || !l.opts.AwaitReplies {
			return res, err
		}
		res.Applied += reply.Applied

		switch reply.Status {
		case protocol.ReplyOK:
			return res, nil
		case protocol.ReplyBad:
			atomic.AddUint32(&l.rejected, 1)
			return res, fmt.Errorf("%w: segment: %s", ErrRejected, reply.Reason)
		case protocol.ReplyChecksum:
			if attempt >= l.opts.Retries {
				return res, fmt.Errorf("%w: segment still failing after %d attempts",
					protocol.ErrChecksumMismatch, attempt+1)
			}
			atomic.AddUint32(&l.retries, 1)
			l.log.Warn().Int("attempt", attempt+1).Msg("segment checksum mismatch, resending")
		}
	}
}

// SendMatrix transmits the whole matrix in the given mode and stops at the
// first failed frame
func (l *Link) SendMatrix(m *matrix.Matrix, mode Mode) (Result, error) {
	var total Result

	switch mode {
	case ModeFull:
		return l.SendPixels(m.Pixels())

	case ModeSegments:
		lines, err := m.EncodeSegments(l.opts.Segments)
		if err != nil {
			return total, fmt.Errorf("encode segments: %w", err)
		}
		for i, line := range lines {
			res, err := l.sendSegmentLine(line)
			total.add(res)
			if err != nil {
				return total, fmt.Errorf("segment %d: %w", i, err)
			}
		}
		return total, nil

	default:
		for r := 0; r < m.Size(); r++ {
			row, err := m.Row(r)
			if err != nil {
				return total, err
			}
			res, err := l.SendPixels(row)
			total.add(res)
			if err != nil {
				return total, fmt.Errorf("row %d: %w", r, err)
			}
		}
		return total, nil
	}
}

// exchange writes one line and, when replies are awaited, returns the next
// reply line from the device
func (l *Link) exchange(line string) (protocol.Reply, error) {
	select {
	case <-l.stopChan:
		return protocol.Reply{}, ErrClosed
	default:
	}

	// Replies left over from an earlier timed-out exchange belong to it
	l.drainReplies()

	if err := l.writeLine(line); err != nil {
		return protocol.Reply{}, fmt.Errorf("write: %w", err)
	}
	if !l.opts.AwaitReplies {
		return protocol.Reply{}, nil
	}
	return l.waitForReply(l.opts.ReplyTimeout)
}

func (l *Link) writeLine(line string) error {
	l.writeMutex.Lock()
	defer l.writeMutex.Unlock()

	n, err := io.WriteString(l.port, line)
	if err != nil {
		return err
	}
	if n != len(line) {
		return fmt.Errorf("incomplete write: %d/%d bytes", n, len(line))
	}
	atomic.AddUint32(&l.linesSent, 1)
	l.log.Debug().Int("bytes", n).Msg("line sent")
	return nil
}

func (l *Link) waitForReply(timeout time.Duration) (protocol.Reply, error) {
	select {
	case reply := <-l.replyChan:
		l.log.Debug().Stringer("reply", reply).Msg("reply received")
		return reply, nil

	case <-time.After(timeout):
		atomic.AddUint32(&l.timeouts, 1)
		return protocol.Reply{}, fmt.Errorf("%w after %v", ErrTimeout, timeout)

	case <-l.stopChan:
		return protocol.Reply{}, ErrClosed
	}
}

func (l *Link) drainReplies() {
	for {
		select {
		case <-l.replyChan:
		default:
			return
		}
	}
}

// readLoop continuously reads from the port and queues reply lines
func (l *Link) readLoop() {
	defer close(l.doneChan)

	buffer := make([]byte, 256)

	for {
		select {
		case <-l.stopChan:
			return
		default:
		}

		n, err := l.port.Read(buffer)
		if n > 0 {
			if w := l.inputBuffer.Write(buffer[:n]); w < n {
				l.log.Warn().Int("dropped", n-w).Msg("input buffer full")
			}
			l.processReplies()
		}
		if err != nil {
			if errors.Is(err, io.ErrClosedPipe) || errors.Is(err, os.ErrClosed) {
				return
			}
			// Serial read timeouts surface as io.EOF; keep polling
			time.Sleep(10 * time.Millisecond)
		}
	}
}

// processReplies parses complete lines from the input buffer
func (l *Link) processReplies() {
	l.readMutex.Lock()
	defer l.readMutex.Unlock()

	for {
		line, ok := protocol.NextLine(l.inputBuffer)
		if !ok {
			if l.inputBuffer.Free() == 0 {
				l.inputBuffer.Reset()
			}
			return
		}
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}

		reply, err := protocol.ParseReply(string(line))
		if err != nil {
			l.log.Debug().Str("line", string(line)).Msg("ignoring non-reply line")
			continue
		}

		select {
		case l.replyChan <- reply:
		default:
			// Reply channel full, drop oldest
			select {
			case <-l.replyChan:
			default:
			}
			l.replyChan <- reply
		}
	}
}

// Stats returns a snapshot of the link counters
func (l *Link) Stats() Stats {
	return Stats{
		LinesSent: atomic.LoadUint32(&l.linesSent),
		Retries:   atomic.LoadUint32(&l.retries),
		Timeouts:  atomic.LoadUint32(&l.timeouts),
		Rejected:  atomic.LoadUint32(&l.rejected),
	}
}

// Close stops the read loop and closes the port
func (l *Link) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.stopChan)
		// Closing the port unblocks a pending Read
		err = l.port.Close()
		<-l.doneChan
	})
	return err
}
