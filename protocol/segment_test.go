package protocol

import (
	"errors"
	"testing"
)

func TestSegmentEncodeKnownVector(t *testing.T) {
	codec := DefaultSegmentCodec()

	line, err := codec.Encode([]Pixel{{Row: 0, Column: 1, Red: 0xff, Green: 0x66, Blue: 0xff}})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if line != "01ff66ff98" {
		t.Errorf("expected 01ff66ff98, got %q", line)
	}
}

func TestSegmentRoundTrip(t *testing.T) {
	codec := DefaultSegmentCodec()
	pixels := []Pixel{
		{Row: 3, Column: 0, Red: 10, Green: 20, Blue: 30},
		{Row: 3, Column: 1, Red: 255, Green: 0, Blue: 128},
		{Row: 3, Column: 2, Red: 0, Green: 0, Blue: 0},
		{Row: 15, Column: 15, Red: 1, Green: 1, Blue: 1},
	}

	line, err := codec.Encode(pixels)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if len(line) != len(pixels)*SegmentPixelBytes*2+2 {
		t.Errorf("unexpected segment length %d", len(line))
	}

	got, err := codec.Decode([]byte(line))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(got) != len(pixels) {
		t.Fatalf("expected %d pixels, got %d", len(pixels), len(got))
	}
	for i := range pixels {
		if got[i] != pixels[i] {
			t.Errorf("pixel %d: expected %v, got %v", i, pixels[i], got[i])
		}
	}
}

func TestSegmentDecodeMismatch(t *testing.T) {
	codec := DefaultSegmentCodec()

	pixels, err := codec.Decode([]byte("01ff67ff98"))
	if !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("expected ErrChecksumMismatch, got %v", err)
	}
	if len(pixels) != 1 || pixels[0].Green != 0x67 {
		t.Errorf("mismatch should still surface decoded values, got %v", pixels)
	}
}

func TestSegmentDecodeErrors(t *testing.T) {
	codec := DefaultSegmentCodec()

	testCases := []struct {
		name string
		line string
		want error
	}{
		{"empty", "", ErrTruncatedFrame},
		{"checksum only", "98", ErrTruncatedFrame},
		{"partial pixel", "01ff66ff0098", ErrTruncatedFrame},
		{"bad digit", "01fg66ff98", ErrInvalidCharacter},
		{"too many pixels", "0000000001000000020000000300000004000000ff", ErrOversizedRecord},
	}

	for _, tc := range testCases {
		_, err := codec.Decode([]byte(tc.line))
		if !errors.Is(err, tc.want) {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestSegmentEncodeErrors(t *testing.T) {
	codec := DefaultSegmentCodec()

	if _, err := codec.Encode(nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("empty segment: expected ErrInvalidArgument, got %v", err)
	}
	if _, err := codec.Encode(make([]Pixel, codec.Pixels+1)); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("oversized segment: expected ErrInvalidArgument, got %v", err)
	}
	if _, err := codec.Encode([]Pixel{{Row: 16}}); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("row 16: expected ErrOutOfRange, got %v", err)
	}
	bad := SegmentCodec{Pixels: 4, BlockSize: 6}
	if _, err := bad.Encode([]Pixel{{}}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("block size 6: expected ErrInvalidArgument, got %v", err)
	}
}

func TestSegmentWideChecksum(t *testing.T) {
	codec := SegmentCodec{Pixels: MatrixSize, BlockSize: 16}
	pixels := make([]Pixel, MatrixSize)
	for c := range pixels {
		pixels[c] = Pixel{Row: 9, Column: uint8(c), Red: uint8(c * 16), Green: 0x80, Blue: uint8(255 - c)}
	}

	line, err := codec.Encode(pixels)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if len(line) != MatrixSize*SegmentPixelBytes*2+4 {
		t.Errorf("unexpected segment length %d", len(line))
	}
	if _, err := codec.Decode([]byte(line)); err != nil {
		t.Errorf("Decode failed: %v", err)
	}
}
