// Package protocol implements the matrixlink wire format: the hex/binary
// nibble codec, the one's-complement block checksum and the pixel record and
// segment codecs used to move a 16x16 RGB matrix over a serial line.
package protocol

// Version represents the matrixlink wire format version
const Version = "0.1.0"

// Grid constants
const (
	MatrixSize = 16 // Rows and columns of the display grid
)

// Separators
const (
	PixelSeparator  = ',' // Terminates one pixel record
	FrameTerminator = '\n'
	ByteSeparator   = '.' // Reserved, never valid inside a field
)

// Record layout
const (
	FieldWidth    = 2 // Digits per field
	FieldCount    = 5 // row, column, red, green, blue
	RecordBodyLen = FieldWidth * FieldCount
)

// Checksum defaults
const (
	DefaultBlockSize   = 8 // One-byte trailer, as sent by the phone app
	NibbleBits         = 4
	MaxLineLength      = 8192 // Longest line a receiver buffers before resync
	SegmentPixelBytes  = 4    // position, red, green, blue
	DefaultSegmentSize = MatrixSize / 4
)
