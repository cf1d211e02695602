package protocol

import (
	"fmt"
)

// SegmentCodec encodes the packed hex layout used for partial-row updates.
//
// Each pixel takes four bytes: position (row<<4 | column), red, green, blue.
// The bytes are hex encoded and followed by a checksum over the hex string
// computed with BlockSize bits per block, written as BlockSize/4 hex digits
type SegmentCodec struct {
	Pixels    int // Pixels per segment, default a quarter row
	BlockSize int
}

// DefaultSegmentCodec returns the quarter-row layout with an 8-bit checksum
func DefaultSegmentCodec() SegmentCodec {
	return SegmentCodec{
		Pixels:    DefaultSegmentSize,
		BlockSize: DefaultBlockSize,
	}
}

// Validate checks the segment layout
func (s SegmentCodec) Validate() error {
	if s.Pixels <= 0 || s.Pixels > MatrixSize*MatrixSize {
		return fmt.Errorf("%w: %d pixels per segment", ErrInvalidArgument, s.Pixels)
	}
	if s.BlockSize <= 0 || s.BlockSize%NibbleBits != 0 {
		return fmt.Errorf("%w: segment block size %d", ErrInvalidArgument, s.BlockSize)
	}
	return nil
}

// checksumDigits is the trailer length in hex characters
func (s SegmentCodec) checksumDigits() int {
	return s.BlockSize / NibbleBits
}

// Encode packs pixels into one segment line body (no terminator)
func (s SegmentCodec) Encode(pixels []Pixel) (string, error) {
	if err := s.Validate(); err != nil {
		return "", err
	}
	if len(pixels) == 0 || len(pixels) > s.Pixels {
		return "", fmt.Errorf("%w: %d pixels for a %d pixel segment", ErrInvalidArgument, len(pixels), s.Pixels)
	}

	data := make([]byte, 0, len(pixels)*SegmentPixelBytes*2+s.checksumDigits())
	for _, p := range pixels {
		if !p.InBounds() {
			return "", fmt.Errorf("%w: (%d, %d)", ErrOutOfRange, p.Row, p.Column)
		}
		for _, b := range [SegmentPixelBytes]byte{p.Row<<4 | p.Column, p.Red, p.Green, p.Blue} {
			data = append(data, HexDigit(b>>4), HexDigit(b))
		}
	}

	sum, err := HexChecksum(string(data), s.checksumDigits())
	if err != nil {
		return "", err
	}
	return string(data) + sum, nil
}

// Decode unpacks a segment line body. A checksum mismatch returns the decoded
// pixels together with an error wrapping ErrChecksumMismatch
func (s SegmentCodec) Decode(line []byte) ([]Pixel, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	pixelChars := SegmentPixelBytes * 2
	digits := s.checksumDigits()
	if len(line) < pixelChars+digits {
		return nil, fmt.Errorf("%w: segment is %d bytes, need at least %d", ErrTruncatedFrame, len(line), pixelChars+digits)
	}
	dataLen := len(line) - digits
	if dataLen%pixelChars != 0 {
		return nil, fmt.Errorf("%w: segment data is %d bytes, not a multiple of %d", ErrTruncatedFrame, dataLen, pixelChars)
	}
	if dataLen/pixelChars > s.Pixels {
		return nil, fmt.Errorf("%w: %d pixels in a %d pixel segment", ErrOversizedRecord, dataLen/pixelChars, s.Pixels)
	}

	raw := make([]byte, dataLen/2)
	for i := range raw {
		hi, okHi := NibbleValue(line[2*i])
		lo, okLo := NibbleValue(line[2*i+1])
		if !okHi || !okLo {
			return nil, fmt.Errorf("%w: segment byte %d %q", ErrInvalidCharacter, i, line[2*i:2*i+2])
		}
		raw[i] = hi<<4 | lo
	}

	pixels := make([]Pixel, 0, len(raw)/SegmentPixelBytes)
	for i := 0; i < len(raw); i += SegmentPixelBytes {
		pixels = append(pixels, Pixel{
			Row:    raw[i] >> 4,
			Column: raw[i] & 0x0F,
			Red:    raw[i+1],
			Green:  raw[i+2],
			Blue:   raw[i+3],
		})
	}

	bits, err := HexToBinary(string(line))
	if err != nil {
		return nil, err
	}
	ok, err := Verify(bits, s.BlockSize)
	if err != nil {
		return nil, err
	}
	if !ok {
		return pixels, fmt.Errorf("%w: segment %q", ErrChecksumMismatch, line)
	}
	return pixels, nil
}
