package serial

import (
	"io"
	"net"
)

// Port represents a serial port interface
// This abstraction allows for different implementations:
// - Native serial (using github.com/tarm/serial)
// - In-memory pipe (for tests and dry runs)
type Port interface {
	io.ReadWriteCloser

	// Flush discards any data buffered but not yet transmitted or read
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/rfcomm0", "/dev/ttyUSB0", "COM3")
	Device string

	// Baud rate (HC-05 style Bluetooth bridges default to 9600)
	Baud int

	// Read timeout in milliseconds (0 = blocking)
	ReadTimeout int
}

// DefaultConfig returns the default configuration for the display link
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        9600,
		ReadTimeout: 100,
	}
}

// pipePort adapts one end of a net.Pipe to Port
type pipePort struct {
	net.Conn
}

func (p pipePort) Flush() error {
	return nil
}

// Pipe returns two connected in-memory ports. Writes on one end block until
// the other end reads them
func Pipe() (Port, Port) {
	a, b := net.Pipe()
	return pipePort{a}, pipePort{b}
}
