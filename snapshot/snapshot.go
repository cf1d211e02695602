// Package snapshot persists a matrix as a zstd-compressed, checksummed record
// frame so a display can restore its last picture after a restart.
package snapshot

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"matrixlink/matrix"
	"matrixlink/protocol"
)

var ErrCorrupt = errors.New("snapshot: corrupt")

// Codec is the record layout stored in snapshots
var Codec = protocol.RecordCodec{
	Base:      protocol.BaseHex,
	Checksum:  true,
	BlockSize: 16,
	Trailer:   protocol.TrailerHex,
}

// maxFrameSize bounds the decompressed size
const maxFrameSize = protocol.MatrixSize*protocol.MatrixSize*(protocol.RecordBodyLen+5) + 1

// ParseLevel maps "fastest", "default", "better" and "best" to a zstd level
func ParseLevel(s string) (zstd.EncoderLevel, error) {
	ok, level := zstd.EncoderLevelFromString(s)
	if !ok {
		return 0, fmt.Errorf("snapshot: unknown compression level %q", s)
	}
	return level, nil
}

// Encode writes m to w
func Encode(w io.Writer, m *matrix.Matrix, level zstd.EncoderLevel) error {
	frame, err := m.EncodeMatrix(Codec)
	if err != nil {
		return fmt.Errorf("snapshot: encode: %w", err)
	}

	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(level))
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	if _, err := io.WriteString(enc, frame); err != nil {
		enc.Close()
		return fmt.Errorf("snapshot: write: %w", err)
	}
	return enc.Close()
}

// Decode reads a snapshot from r. Every cell must appear exactly once and
// verify
func Decode(r io.Reader) (*matrix.Matrix, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	defer dec.Close()

	frame, err := io.ReadAll(io.LimitReader(dec, maxFrameSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if len(frame) > maxFrameSize {
		return nil, fmt.Errorf("%w: frame exceeds %d bytes", ErrCorrupt, maxFrameSize)
	}

	m := matrix.New()
	var seen [protocol.MatrixSize][protocol.MatrixSize]bool
	count := 0

	rest := bytes.TrimRight(frame, "\r\n")
	for i := 0; len(rest) > 0; i++ {
		p, next, err := Codec.DecodeRecord(rest)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %w", ErrCorrupt, i, err)
		}
		if seen[p.Row][p.Column] {
			return nil, fmt.Errorf("%w: record %d: cell (%d, %d) repeated", ErrCorrupt, i, p.Row, p.Column)
		}
		seen[p.Row][p.Column] = true
		count++
		if err := m.Set(p); err != nil {
			return nil, fmt.Errorf("%w: record %d: %w", ErrCorrupt, i, err)
		}
		rest = next
	}

	if want := protocol.MatrixSize * protocol.MatrixSize; count != want {
		return nil, fmt.Errorf("%w: %d of %d cells", ErrCorrupt, count, want)
	}
	return m, nil
}

// Save writes m to path, replacing any previous snapshot atomically
func Save(path string, m *matrix.Matrix, level zstd.EncoderLevel) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := Encode(tmp, m, level); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	return nil
}

// Load reads the snapshot at path
func Load(path string) (*matrix.Matrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	defer f.Close()
	return Decode(f)
}
