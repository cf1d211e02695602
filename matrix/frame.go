package matrix

import (
	"bytes"
	"errors"
	"fmt"

	"matrixlink/protocol"
)

// ApplyResult describes what a frame did to the matrix
type ApplyResult struct {
	Applied    int   // records written into the matrix
	Mismatched []int // indices of records skipped on checksum mismatch
	Failed     int   // index of the record that stopped the frame, -1 if none
}

// ApplyFrame decodes every record in frame and writes each pixel's colour into
// the matrix. A trailing FrameTerminator is optional.
//
// Records are applied as they are decoded. A structural error stops the frame
// and is returned wrapped with the record index; records before it stay
// applied. Records failing checksum verification are skipped, later records
// are still processed, and the returned error wraps
// protocol.ErrChecksumMismatch
func (m *Matrix) ApplyFrame(codec protocol.RecordCodec, frame []byte) (ApplyResult, error) {
	res := ApplyResult{Failed: -1}
	if err := codec.Validate(); err != nil {
		return res, err
	}

	stream := trimTerminator(frame)
	for index := 0; len(stream) > 0; index++ {
		p, rest, err := codec.DecodeRecord(stream)
		stream = rest

		switch {
		case err == nil:
			if err := m.Set(p); err != nil {
				res.Failed = index
				return res, fmt.Errorf("record %d: %w", index, err)
			}
			res.Applied++
		case errors.Is(err, protocol.ErrChecksumMismatch):
			res.Mismatched = append(res.Mismatched, index)
		default:
			res.Failed = index
			return res, fmt.Errorf("record %d: %w", index, err)
		}
	}

	if len(res.Mismatched) > 0 {
		return res, fmt.Errorf("%w: records %v", protocol.ErrChecksumMismatch, res.Mismatched)
	}
	return res, nil
}

// ApplySegment decodes one segment line and applies it. A segment that fails
// verification is discarded as a whole
func (m *Matrix) ApplySegment(codec protocol.SegmentCodec, line []byte) (int, error) {
	pixels, err := codec.Decode(trimTerminator(line))
	if err != nil {
		return 0, err
	}
	for _, p := range pixels {
		if err := m.Set(p); err != nil {
			return 0, err
		}
	}
	return len(pixels), nil
}

// EncodeMatrix emits one record per cell in row-major order as a single frame
func (m *Matrix) EncodeMatrix(codec protocol.RecordCodec) (string, error) {
	return codec.EncodeFrame(m.Pixels())
}

// EncodeRow emits one frame holding the records of a single row
func (m *Matrix) EncodeRow(codec protocol.RecordCodec, row int) (string, error) {
	pixels, err := m.Row(row)
	if err != nil {
		return "", err
	}
	return codec.EncodeFrame(pixels)
}

// EncodeRows emits one frame per row, top to bottom
func (m *Matrix) EncodeRows(codec protocol.RecordCodec) ([]string, error) {
	frames := make([]string, 0, protocol.MatrixSize)
	for r := 0; r < protocol.MatrixSize; r++ {
		frame, err := m.EncodeRow(codec, r)
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

// EncodeSegments splits the matrix row-major into segment lines, each
// terminated by FrameTerminator
func (m *Matrix) EncodeSegments(codec protocol.SegmentCodec) ([]string, error) {
	if err := codec.Validate(); err != nil {
		return nil, err
	}
	pixels := m.Pixels()
	lines := make([]string, 0, (len(pixels)+codec.Pixels-1)/codec.Pixels)
	for start := 0; start < len(pixels); start += codec.Pixels {
		end := min(start+codec.Pixels, len(pixels))
		line, err := codec.Encode(pixels[start:end])
		if err != nil {
			return nil, err
		}
		lines = append(lines, line+string(protocol.FrameTerminator))
	}
	return lines, nil
}

func trimTerminator(b []byte) []byte {
	b = bytes.TrimSuffix(b, []byte{protocol.FrameTerminator})
	return bytes.TrimSuffix(b, []byte{'\r'})
}
