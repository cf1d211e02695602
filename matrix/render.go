package matrix

import (
	"fmt"
	"image/color"
	"io"
	"strings"

	"tinygo.org/x/drivers"
)

// Render copies the matrix into a display buffer and flushes it. Cells
// outside the display are skipped
func Render(m *Matrix, d drivers.Displayer) error {
	w, h := d.Size()
	for r := range m.cells {
		if int16(r) >= h {
			break
		}
		for c, p := range m.cells[r] {
			if int16(c) >= w {
				break
			}
			d.SetPixel(int16(c), int16(r), p.RGBA())
		}
	}
	return d.Display()
}

// TermDisplay is a drivers.Displayer that draws the grid on a terminal using
// 24-bit ANSI background colours, two columns per cell
type TermDisplay struct {
	out    io.Writer
	width  int16
	height int16
	buf    []color.RGBA

	// Home moves the cursor to the top-left corner before each frame so
	// successive frames overwrite each other
	Home bool
	// Plain disables escape sequences and prints rrggbb values instead
	Plain bool
}

// NewTermDisplay creates a terminal display of the given size
func NewTermDisplay(out io.Writer, width, height int16) *TermDisplay {
	return &TermDisplay{
		out:    out,
		width:  width,
		height: height,
		buf:    make([]color.RGBA, int(width)*int(height)),
	}
}

func (t *TermDisplay) Size() (x, y int16) {
	return t.width, t.height
}

func (t *TermDisplay) SetPixel(x, y int16, c color.RGBA) {
	if x < 0 || y < 0 || x >= t.width || y >= t.height {
		return
	}
	t.buf[int(y)*int(t.width)+int(x)] = c
}

// At returns the buffered colour at (x, y)
func (t *TermDisplay) At(x, y int16) color.RGBA {
	if x < 0 || y < 0 || x >= t.width || y >= t.height {
		return color.RGBA{}
	}
	return t.buf[int(y)*int(t.width)+int(x)]
}

func (t *TermDisplay) Display() error {
	var b strings.Builder
	if t.Home && !t.Plain {
		b.WriteString("\x1b[H")
	}
	for y := int16(0); y < t.height; y++ {
		for x := int16(0); x < t.width; x++ {
			c := t.buf[int(y)*int(t.width)+int(x)]
			if t.Plain {
				if x > 0 {
					b.WriteByte(' ')
				}
				fmt.Fprintf(&b, "%02x%02x%02x", c.R, c.G, c.B)
				continue
			}
			fmt.Fprintf(&b, "\x1b[48;2;%d;%d;%dm  ", c.R, c.G, c.B)
		}
		if !t.Plain {
			b.WriteString("\x1b[0m")
		}
		b.WriteByte('\n')
	}
	_, err := io.WriteString(t.out, b.String())
	return err
}
