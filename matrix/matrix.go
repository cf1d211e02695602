// Package matrix holds the 16x16 pixel grid that frames are decoded into and
// encoded from.
//
// A Matrix has a single writer. Callers that share one between goroutines
// must serialise access themselves.
package matrix

import (
	"fmt"
	"strings"

	"matrixlink/protocol"
)

// Matrix is an owned grid of pixels, zeroed at construction and never resized
type Matrix struct {
	cells [protocol.MatrixSize][protocol.MatrixSize]protocol.Pixel
}

// New creates a matrix with every channel zeroed
func New() *Matrix {
	m := &Matrix{}
	for r := range m.cells {
		for c := range m.cells[r] {
			m.cells[r][c] = protocol.Pixel{Row: uint8(r), Column: uint8(c)}
		}
	}
	return m
}

// Size returns the number of rows (and columns)
func (m *Matrix) Size() int {
	return protocol.MatrixSize
}

func checkBounds(row, col int) error {
	if row < 0 || row >= protocol.MatrixSize || col < 0 || col >= protocol.MatrixSize {
		return fmt.Errorf("%w: (%d, %d)", protocol.ErrOutOfRange, row, col)
	}
	return nil
}

// Pixel returns the cell at (row, col)
func (m *Matrix) Pixel(row, col int) (protocol.Pixel, error) {
	if err := checkBounds(row, col); err != nil {
		return protocol.Pixel{}, err
	}
	return m.cells[row][col], nil
}

// SetColor overwrites the colour channels of one cell
func (m *Matrix) SetColor(row, col int, red, green, blue uint8) error {
	if err := checkBounds(row, col); err != nil {
		return err
	}
	cell := &m.cells[row][col]
	cell.Red, cell.Green, cell.Blue = red, green, blue
	return nil
}

// Set copies the colour of p into the cell at p's position
func (m *Matrix) Set(p protocol.Pixel) error {
	return m.SetColor(int(p.Row), int(p.Column), p.Red, p.Green, p.Blue)
}

// Fill sets every cell to one colour
func (m *Matrix) Fill(red, green, blue uint8) {
	for r := range m.cells {
		for c := range m.cells[r] {
			cell := &m.cells[r][c]
			cell.Red, cell.Green, cell.Blue = red, green, blue
		}
	}
}

// Clear turns every cell off
func (m *Matrix) Clear() {
	m.Fill(0, 0, 0)
}

// Row returns a copy of one row
func (m *Matrix) Row(row int) ([]protocol.Pixel, error) {
	if err := checkBounds(row, 0); err != nil {
		return nil, err
	}
	out := make([]protocol.Pixel, protocol.MatrixSize)
	copy(out, m.cells[row][:])
	return out, nil
}

// Pixels returns a row-major copy of every cell
func (m *Matrix) Pixels() []protocol.Pixel {
	out := make([]protocol.Pixel, 0, protocol.MatrixSize*protocol.MatrixSize)
	for r := range m.cells {
		out = append(out, m.cells[r][:]...)
	}
	return out
}

// Equal reports whether both matrices hold the same colours
func (m *Matrix) Equal(other *Matrix) bool {
	return m.cells == other.cells
}

// String renders one line per row with each cell as rrggbb
func (m *Matrix) String() string {
	var b strings.Builder
	for r := range m.cells {
		for c, p := range m.cells[r] {
			if c > 0 {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "%02x%02x%02x", p.Red, p.Green, p.Blue)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
