// Package imaging loads pictures and overlays them onto a matrix.
//
// SVG files are rasterised at the grid size. PNG, JPEG, GIF and BMP files
// larger than the grid are scaled down to fit, keeping their aspect ratio.
package imaging

import (
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/gift"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	_ "golang.org/x/image/bmp"

	"matrixlink/matrix"
	"matrixlink/protocol"
)

// Load opens and decodes the image at path
func Load(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("imaging: %w", err)
	}
	defer f.Close()
	return Decode(f, path)
}

// Decode reads an image; name only selects SVG handling by extension
func Decode(r io.Reader, name string) (image.Image, error) {
	if strings.EqualFold(filepath.Ext(name), ".svg") {
		return RasterizeSVG(r, protocol.MatrixSize, protocol.MatrixSize)
	}
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("imaging: decode %s: %w", name, err)
	}
	return Fit(img, protocol.MatrixSize), nil
}

// RasterizeSVG renders an SVG document into a w x h image
func RasterizeSVG(r io.Reader, w, h int) (image.Image, error) {
	icon, err := oksvg.ReadIconStream(r, oksvg.WarnErrorMode)
	if err != nil {
		return nil, fmt.Errorf("imaging: parse svg: %w", err)
	}
	icon.SetTarget(0, 0, float64(w), float64(h))

	rgba := image.NewRGBA(image.Rect(0, 0, w, h))
	scanner := rasterx.NewScannerGV(w, h, rgba, rgba.Bounds())
	icon.Draw(rasterx.NewDasher(w, h, scanner), 1)
	return rgba, nil
}

// Fit scales img down so neither side exceeds size. Smaller images are
// returned unchanged
func Fit(img image.Image, size int) image.Image {
	b := img.Bounds()
	if b.Dx() <= size && b.Dy() <= size {
		return img
	}
	g := gift.New(gift.ResizeToFit(size, size, gift.BoxResampling))
	dst := image.NewRGBA(g.Bounds(b))
	g.Draw(dst, img)
	return dst
}

// Overlay copies img onto m with its top-left corner at (row, col). Parts
// falling outside the grid and fully transparent pixels are skipped. It
// returns the number of cells written
func Overlay(m *matrix.Matrix, img image.Image, row, col int) (int, error) {
	if row < 0 || row >= m.Size() || col < 0 || col >= m.Size() {
		return 0, fmt.Errorf("imaging: overlay origin: %w", protocol.ErrOutOfRange)
	}

	src := image.NewNRGBA(img.Bounds())
	draw.Draw(src, src.Bounds(), img, img.Bounds().Min, draw.Src)
	b := src.Bounds()

	written := 0
	for y := 0; y < b.Dy() && row+y < m.Size(); y++ {
		for x := 0; x < b.Dx() && col+x < m.Size(); x++ {
			c := src.NRGBAAt(b.Min.X+x, b.Min.Y+y)
			if c.A == 0 {
				continue
			}
			if err := m.SetColor(row+y, col+x, c.R, c.G, c.B); err != nil {
				return written, err
			}
			written++
		}
	}
	return written, nil
}

// Snapshot renders the matrix as an image, one pixel per cell
func Snapshot(m *matrix.Matrix) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, m.Size(), m.Size()))
	for _, p := range m.Pixels() {
		img.SetRGBA(int(p.Column), int(p.Row), p.RGBA())
	}
	return img
}
