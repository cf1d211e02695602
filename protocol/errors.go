package protocol

import "errors"

var (
	ErrInvalidCharacter = errors.New("protocol: invalid character")
	ErrInvalidArgument  = errors.New("protocol: invalid argument")
	ErrTruncatedFrame   = errors.New("protocol: truncated frame")
	ErrChecksumMismatch = errors.New("protocol: checksum mismatch")
	ErrOutOfRange       = errors.New("protocol: position out of range")
	ErrFieldOverflow    = errors.New("protocol: value does not fit field")
	ErrOversizedRecord  = errors.New("protocol: record longer than declared layout")
)

// IsStructural reports whether err aborts decoding of a record, as opposed to
// a checksum mismatch which still carries decoded values
func IsStructural(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrChecksumMismatch)
}
