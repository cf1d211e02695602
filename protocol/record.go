package protocol

import (
	"bytes"
	"fmt"
	"strings"
)

// Base is the numeric base of the two-digit record fields
type Base int

const (
	BaseDecimal Base = 10
	BaseHex     Base = 16
)

// ParseBase accepts "decimal"/"dec"/"10" and "hex"/"16"
func ParseBase(s string) (Base, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "decimal", "dec", "10":
		return BaseDecimal, nil
	case "hex", "hexadecimal", "16":
		return BaseHex, nil
	default:
		return 0, fmt.Errorf("%w: unknown base %q", ErrInvalidArgument, s)
	}
}

func (b Base) String() string {
	switch b {
	case BaseDecimal:
		return "decimal"
	case BaseHex:
		return "hex"
	default:
		return fmt.Sprintf("base(%d)", int(b))
	}
}

// TrailerFormat selects how the checksum block is written after a record body
type TrailerFormat int

const (
	TrailerHex    TrailerFormat = iota // BlockSize/4 hex characters
	TrailerBinary                      // BlockSize '0'/'1' characters
)

// ParseTrailer accepts "hex" and "binary"/"bin"
func ParseTrailer(s string) (TrailerFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hex":
		return TrailerHex, nil
	case "binary", "bin":
		return TrailerBinary, nil
	default:
		return 0, fmt.Errorf("%w: unknown trailer format %q", ErrInvalidArgument, s)
	}
}

func (t TrailerFormat) String() string {
	if t == TrailerBinary {
		return "binary"
	}
	return "hex"
}

// RecordCodec encodes and decodes fixed-width pixel records.
//
// A record is five two-digit fields (row, column, red, green, blue) in Base,
// optionally followed by a checksum trailer, and terminated by
// PixelSeparator. The checksum covers the binary expansion of the body
type RecordCodec struct {
	Base      Base
	Checksum  bool
	BlockSize int
	Trailer   TrailerFormat
}

// DefaultRecordCodec returns the plain decimal layout understood by the
// legacy display firmware
func DefaultRecordCodec() RecordCodec {
	return RecordCodec{
		Base:      BaseDecimal,
		BlockSize: DefaultBlockSize,
		Trailer:   TrailerHex,
	}
}

// Validate checks that the codec describes a usable layout
func (c RecordCodec) Validate() error {
	if c.Base != BaseDecimal && c.Base != BaseHex {
		return fmt.Errorf("%w: field base %d", ErrInvalidArgument, int(c.Base))
	}
	if !c.Checksum {
		return nil
	}
	if c.BlockSize <= 0 {
		return fmt.Errorf("%w: block size %d", ErrInvalidArgument, c.BlockSize)
	}
	switch c.Trailer {
	case TrailerHex:
		if c.BlockSize%NibbleBits != 0 {
			return fmt.Errorf("%w: hex trailer needs a block size divisible by %d, got %d", ErrInvalidArgument, NibbleBits, c.BlockSize)
		}
	case TrailerBinary:
	default:
		return fmt.Errorf("%w: trailer format %d", ErrInvalidArgument, int(c.Trailer))
	}
	if c.RecordsPerLine() < 1 {
		return fmt.Errorf("%w: record of %d bytes does not fit a %d byte line", ErrInvalidArgument, c.RecordLen(), MaxLineLength)
	}
	return nil
}

// TrailerLen returns the number of characters in the checksum trailer
func (c RecordCodec) TrailerLen() int {
	if !c.Checksum {
		return 0
	}
	if c.Trailer == TrailerBinary {
		return c.BlockSize
	}
	return c.BlockSize / NibbleBits
}

// RecordLen returns the encoded length of one record including its separator
func (c RecordCodec) RecordLen() int {
	return RecordBodyLen + c.TrailerLen() + 1
}

// RecordsPerLine returns how many records fit in one frame of at most
// MaxLineLength bytes, terminator included
func (c RecordCodec) RecordsPerLine() int {
	return (MaxLineLength - 1) / c.RecordLen()
}

// EncodeBody renders the five fields of p without trailer or separator
func (c RecordCodec) EncodeBody(p Pixel) (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}
	if !p.InBounds() {
		return "", fmt.Errorf("%w: (%d, %d)", ErrOutOfRange, p.Row, p.Column)
	}

	base := int(c.Base)
	fields := [FieldCount]uint8{p.Row, p.Column, p.Red, p.Green, p.Blue}
	body := make([]byte, 0, RecordBodyLen)
	for i, v := range fields {
		if int(v) >= base*base {
			return "", fmt.Errorf("%w: %s value %d in %s", ErrFieldOverflow, fieldNames[i], v, c.Base)
		}
		body = append(body, HexDigit(byte(int(v)/base)), HexDigit(byte(int(v)%base)))
	}
	return string(body), nil
}

// ComputeTrailer computes the checksum trailer for an encoded record body
func (c RecordCodec) ComputeTrailer(body string) (string, error) {
	bits, err := HexToBinary(body)
	if err != nil {
		return "", err
	}
	sum, err := Checksum(bits, c.BlockSize)
	if err != nil {
		return "", err
	}
	if c.Trailer == TrailerBinary {
		return sum, nil
	}
	if c.BlockSize%NibbleBits != 0 {
		return "", fmt.Errorf("%w: hex trailer needs a block size divisible by %d", ErrInvalidArgument, NibbleBits)
	}
	return BinaryToHex(sum)
}

// EncodePixel returns the complete record for p, separator included
func (c RecordCodec) EncodePixel(p Pixel) (string, error) {
	out, err := c.AppendPixel(nil, p)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// AppendPixel appends the record for p to dst
func (c RecordCodec) AppendPixel(dst []byte, p Pixel) ([]byte, error) {
	body, err := c.EncodeBody(p)
	if err != nil {
		return dst, err
	}
	dst = append(dst, body...)
	if c.Checksum {
		trailer, err := c.ComputeTrailer(body)
		if err != nil {
			return dst, err
		}
		dst = append(dst, trailer...)
	}
	return append(dst, PixelSeparator), nil
}

// EncodeFrame encodes pixels as one frame terminated by FrameTerminator
func (c RecordCodec) EncodeFrame(pixels []Pixel) (string, error) {
	out := make([]byte, 0, len(pixels)*c.RecordLen()+1)
	for _, p := range pixels {
		var err error
		out, err = c.AppendPixel(out, p)
		if err != nil {
			return "", err
		}
	}
	return string(append(out, FrameTerminator)), nil
}

// DecodeRecord reads one record from the front of stream and returns the
// decoded pixel together with the bytes following its separator.
//
// Structural failures return a zero Pixel. A checksum mismatch returns the
// decoded Pixel alongside an error wrapping ErrChecksumMismatch so the caller
// can decide whether to use or discard it
func (c RecordCodec) DecodeRecord(stream []byte) (Pixel, []byte, error) {
	if err := c.Validate(); err != nil {
		return Pixel{}, stream, err
	}

	end := bytes.IndexByte(stream, PixelSeparator)
	if end < 0 {
		return Pixel{}, nil, fmt.Errorf("%w: no pixel separator in %d bytes", ErrTruncatedFrame, len(stream))
	}
	record, rest := stream[:end], stream[end+1:]

	if len(record) < RecordBodyLen {
		return Pixel{}, rest, fmt.Errorf("%w: record %q is %d bytes, need %d", ErrTruncatedFrame, record, len(record), RecordBodyLen)
	}

	body := record[:RecordBodyLen]
	p, err := c.parseBody(body)
	if err != nil {
		return Pixel{}, rest, err
	}
	if !c.Checksum {
		return p, rest, nil
	}

	trailer := record[RecordBodyLen:]
	if want := c.TrailerLen(); len(trailer) < want {
		return Pixel{}, rest, fmt.Errorf("%w: trailer is %d bytes, need %d", ErrTruncatedFrame, len(trailer), want)
	} else if len(trailer) > want {
		return Pixel{}, rest, fmt.Errorf("%w: trailer is %d bytes, need %d", ErrOversizedRecord, len(trailer), want)
	}

	bodyBits, err := HexToBinary(string(body))
	if err != nil {
		return Pixel{}, rest, err
	}
	trailerBits := string(trailer)
	if c.Trailer == TrailerHex {
		trailerBits, err = HexToBinary(trailerBits)
		if err != nil {
			return Pixel{}, rest, err
		}
	}

	ok, err := Verify(bodyBits+trailerBits, c.BlockSize)
	if err != nil {
		return Pixel{}, rest, err
	}
	if !ok {
		return p, rest, fmt.Errorf("%w: record %q", ErrChecksumMismatch, record)
	}
	return p, rest, nil
}

var fieldNames = [FieldCount]string{"row", "column", "red", "green", "blue"}

func (c RecordCodec) parseBody(body []byte) (Pixel, error) {
	var values [FieldCount]uint8
	base := byte(c.Base)
	for i := range values {
		pos := i * FieldWidth
		hi, okHi := NibbleValue(body[pos])
		lo, okLo := NibbleValue(body[pos+1])
		if !okHi || hi >= base {
			return Pixel{}, fmt.Errorf("%w: %q in %s field", ErrInvalidCharacter, body[pos], fieldNames[i])
		}
		if !okLo || lo >= base {
			return Pixel{}, fmt.Errorf("%w: %q in %s field", ErrInvalidCharacter, body[pos+1], fieldNames[i])
		}
		values[i] = hi*base + lo
	}

	p := Pixel{
		Row:    values[0],
		Column: values[1],
		Red:    values[2],
		Green:  values[3],
		Blue:   values[4],
	}
	if !p.InBounds() {
		return Pixel{}, fmt.Errorf("%w: (%d, %d)", ErrOutOfRange, p.Row, p.Column)
	}
	return p, nil
}
