package device

import (
	"bytes"
	"context"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"
	"time"

	"matrixlink/host/serial"
	"matrixlink/matrix"
	"matrixlink/protocol"
)

func newTestReceiver(t *testing.T) (*Receiver, *bytes.Buffer) {
	t.Helper()
	var replies bytes.Buffer
	return NewReceiver(matrix.New(), DefaultConfig(), &replies), &replies
}

func encodeFrame(t *testing.T, pixels ...protocol.Pixel) string {
	t.Helper()
	frame, err := DefaultConfig().Codec.EncodeFrame(pixels)
	if err != nil {
		t.Fatalf("EncodeFrame failed: %v", err)
	}
	return frame
}

func TestHandleFrameLine(t *testing.T) {
	r, replies := newTestReceiver(t)

	applied := 0
	r.SetAppliedHandler(func(n int) { applied += n })

	frame := encodeFrame(t,
		protocol.Pixel{Row: 1, Column: 2, Red: 0x10},
		protocol.Pixel{Row: 3, Column: 4, Blue: 0xff},
	)
	reply := r.HandleLine([]byte(strings.TrimSuffix(frame, "\n")))

	if reply.Status != protocol.ReplyOK || reply.Applied != 2 {
		t.Errorf("unexpected reply %+v", reply)
	}
	if replies.String() != "ok 2\n" {
		t.Errorf("unexpected reply line %q", replies.String())
	}
	if applied != 2 {
		t.Errorf("applied handler saw %d pixels", applied)
	}
	if p, _ := r.Matrix().Pixel(3, 4); p.Blue != 0xff {
		t.Errorf("cell (3, 4) = %v", p)
	}
}

func TestHandleLineMismatchAndMalformed(t *testing.T) {
	r, replies := newTestReceiver(t)

	var errs []error
	r.SetErrorHandler(func(err error) { errs = append(errs, err) })

	frame := []byte(encodeFrame(t,
		protocol.Pixel{Row: 0, Column: 0, Red: 1},
		protocol.Pixel{Row: 0, Column: 1, Red: 2},
	))
	frame[4] = 'f' // red of record 0
	r.HandleLine(bytes.TrimSuffix(frame, []byte{'\n'}))

	r.HandleLine([]byte("0001010101fb,00,"))

	want := "crc 1 0\nbad 1 1 truncated\n"
	if replies.String() != want {
		t.Errorf("expected %q, got %q", want, replies.String())
	}
	if len(errs) != 2 || !errors.Is(errs[0], protocol.ErrChecksumMismatch) || !errors.Is(errs[1], protocol.ErrTruncatedFrame) {
		t.Errorf("unexpected errors %v", errs)
	}

	stats := r.Stats()
	want2 := Stats{Lines: 2, Records: 2, Mismatches: 1, Malformed: 1}
	if stats != want2 {
		t.Errorf("expected %+v, got %+v", want2, stats)
	}
}

func TestHandleSegmentLine(t *testing.T) {
	r, replies := newTestReceiver(t)

	r.HandleLine([]byte("01ff66ff98"))
	r.HandleLine([]byte("01ff67ff98"))
	r.HandleLine([]byte("01ff66"))

	want := "ok 1\ncrc 0 0\nbad 0 0 truncated\n"
	if replies.String() != want {
		t.Errorf("expected %q, got %q", want, replies.String())
	}
	if p, _ := r.Matrix().Pixel(0, 1); p.Green != 0x66 {
		t.Errorf("cell (0, 1) = %v", p)
	}
}

func TestFormatSelection(t *testing.T) {
	r, _ := newTestReceiver(t)
	r.cfg.Format = FormatRecords
	if reply := r.HandleLine([]byte("01ff66ff98")); reply.Status != protocol.ReplyBad {
		t.Errorf("records format should reject a segment line, got %+v", reply)
	}

	r.cfg.Format = FormatSegments
	if reply := r.HandleLine([]byte("01ff66ff98")); reply.Status != protocol.ReplyOK {
		t.Errorf("segments format should accept a segment line, got %+v", reply)
	}

	if _, err := ParseFormat("bogus"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestReceiveSplitsLines(t *testing.T) {
	r, replies := newTestReceiver(t)

	stream := encodeFrame(t, protocol.Pixel{Row: 5, Column: 5, Red: 5}) +
		"01ff66ff98\r\n" +
		"0000" // partial
	input := protocol.NewSliceInputBuffer([]byte(stream))
	r.Receive(input)

	if replies.String() != "ok 1\nok 1\n" {
		t.Errorf("unexpected replies %q", replies.String())
	}
	if input.Available() != 4 {
		t.Errorf("partial line should stay buffered, %d bytes left", input.Available())
	}
}

func TestReceiveDropsOverlongLine(t *testing.T) {
	r, replies := newTestReceiver(t)

	input := protocol.NewFifoBuffer(protocol.MaxLineLength + 1)
	input.Write(bytes.Repeat([]byte("0"), protocol.MaxLineLength))
	r.Receive(input)

	if input.Available() != 0 {
		t.Fatalf("overlong data should be dropped, %d bytes left", input.Available())
	}
	if !strings.HasPrefix(replies.String(), "bad 0 0 oversized") {
		t.Errorf("unexpected reply %q", replies.String())
	}

	// The tail of the dropped line is discarded, the next line is handled
	input.Write([]byte("000\n01ff66ff98\n"))
	r.Receive(input)

	if !strings.HasSuffix(replies.String(), "ok 1\n") {
		t.Errorf("line after the overflow not handled: %q", replies.String())
	}
	if r.Stats().Overflows != 1 || r.Stats().Lines != 1 {
		t.Errorf("unexpected stats %+v", r.Stats())
	}
}

func TestReplyFor(t *testing.T) {
	testCases := []struct {
		res  matrix.ApplyResult
		err  error
		want protocol.Reply
	}{
		{matrix.ApplyResult{Applied: 3, Failed: -1}, nil, protocol.Reply{Status: protocol.ReplyOK, Applied: 3}},
		{
			matrix.ApplyResult{Applied: 1, Mismatched: []int{1, 2}, Failed: -1},
			protocol.ErrChecksumMismatch,
			protocol.Reply{Status: protocol.ReplyChecksum, Applied: 1, Indices: []int{1, 2}},
		},
		{
			matrix.ApplyResult{Applied: 1, Mismatched: []int{1}, Failed: 2},
			protocol.ErrOutOfRange,
			protocol.Reply{Status: protocol.ReplyBad, Applied: 1, Index: 2, Reason: "out-of-range"},
		},
		{
			matrix.ApplyResult{Failed: -1},
			protocol.ErrInvalidArgument,
			protocol.Reply{Status: protocol.ReplyBad, Reason: "invalid-argument"},
		},
	}

	for _, tc := range testCases {
		if got := ReplyFor(tc.res, tc.err); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("ReplyFor(%+v, %v) = %+v, want %+v", tc.res, tc.err, got, tc.want)
		}
	}
}

func TestServe(t *testing.T) {
	host, dev := serial.Pipe()
	defer host.Close()

	r := NewReceiver(matrix.New(), DefaultConfig(), dev)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Serve(ctx, dev) }()

	go host.Write([]byte("01ff66ff98\n"))

	reply := make([]byte, len("ok 1\n"))
	if _, err := io.ReadFull(host, reply); err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if string(reply) != "ok 1\n" {
		t.Errorf("unexpected reply %q", reply)
	}

	cancel()
	dev.Close()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
}
