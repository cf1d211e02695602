package protocol

import (
	"fmt"
	"image/color"
)

// Pixel is one cell of the display grid
type Pixel struct {
	Row    uint8
	Column uint8
	Red    uint8
	Green  uint8
	Blue   uint8
}

// InBounds reports whether the pixel position lies inside the grid
func (p Pixel) InBounds() bool {
	return p.Row < MatrixSize && p.Column < MatrixSize
}

// RGBA returns the pixel colour as an opaque color.RGBA
func (p Pixel) RGBA() color.RGBA {
	return color.RGBA{R: p.Red, G: p.Green, B: p.Blue, A: 0xFF}
}

func (p Pixel) String() string {
	return fmt.Sprintf("(%d, %d): %d %d %d", p.Row, p.Column, p.Red, p.Green, p.Blue)
}
