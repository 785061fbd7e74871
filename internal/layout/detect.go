// Package layout finds the ink of each page and derives the shared canvas size.
package layout

import (
	"bytes"
	"errors"
	"image"
	"image/color"

	"github.com/dunamismax/staffcut/internal/domain"
)

// ErrDegenerateImage means no column or no row of the image has any variation.
var ErrDegenerateImage = errors.New("image has no non-uniform row or column")

// Detect returns the smallest box enclosing the non-uniform content of img.
//
// A column counts as ink when any of its pixels differs from that column's own
// pixel in row 0; rows are compared against their own pixel in column 0. The
// reference is per line, not a single border sample.
func Detect(img image.Image) (domain.BoundingBox, error) {
	g := newGrid(img)
	if g.w == 0 || g.h == 0 {
		return domain.BoundingBox{}, ErrDegenerateImage
	}

	x1, x2, y1, y2 := -1, -1, -1, -1
	for x := 0; x < g.w; x++ {
		if !g.columnUniform(x) {
			x1 = x
			break
		}
	}
	for x := g.w - 1; x >= 0; x-- {
		if !g.columnUniform(x) {
			x2 = x
			break
		}
	}
	for y := 0; y < g.h; y++ {
		if !g.rowUniform(y) {
			y1 = y
			break
		}
	}
	for y := g.h - 1; y >= 0; y-- {
		if !g.rowUniform(y) {
			y2 = y
			break
		}
	}

	if x1 < 0 || x2 < 0 || y1 < 0 || y2 < 0 {
		return domain.BoundingBox{}, ErrDegenerateImage
	}
	return domain.BoundingBox{X1: x1, Y1: y1, X2: x2, Y2: y2}, nil
}

// grid compares pixels by their stored samples. Images with a flat Pix
// buffer are compared byte-wise; everything else falls back to At.
type grid struct {
	img    image.Image
	min    image.Point
	w, h   int
	pix    []byte
	stride int
	bpp    int
}

func newGrid(img image.Image) grid {
	b := img.Bounds()
	g := grid{img: img, min: b.Min, w: b.Dx(), h: b.Dy()}

	switch m := img.(type) {
	case *image.Gray:
		g.pix, g.stride, g.bpp = m.Pix[m.PixOffset(b.Min.X, b.Min.Y):], m.Stride, 1
	case *image.Gray16:
		g.pix, g.stride, g.bpp = m.Pix[m.PixOffset(b.Min.X, b.Min.Y):], m.Stride, 2
	case *image.Alpha:
		g.pix, g.stride, g.bpp = m.Pix[m.PixOffset(b.Min.X, b.Min.Y):], m.Stride, 1
	case *image.Paletted:
		g.pix, g.stride, g.bpp = m.Pix[m.PixOffset(b.Min.X, b.Min.Y):], m.Stride, 1
	case *image.NRGBA:
		g.pix, g.stride, g.bpp = m.Pix[m.PixOffset(b.Min.X, b.Min.Y):], m.Stride, 4
	case *image.RGBA:
		g.pix, g.stride, g.bpp = m.Pix[m.PixOffset(b.Min.X, b.Min.Y):], m.Stride, 4
	case *image.NRGBA64:
		g.pix, g.stride, g.bpp = m.Pix[m.PixOffset(b.Min.X, b.Min.Y):], m.Stride, 8
	case *image.RGBA64:
		g.pix, g.stride, g.bpp = m.Pix[m.PixOffset(b.Min.X, b.Min.Y):], m.Stride, 8
	}
	if g.w == 0 || g.h == 0 {
		g.pix = nil
	}
	return g
}

func (g grid) same(x0, y0, x1, y1 int) bool {
	if g.pix != nil {
		i := y0*g.stride + x0*g.bpp
		j := y1*g.stride + x1*g.bpp
		return bytes.Equal(g.pix[i:i+g.bpp], g.pix[j:j+g.bpp])
	}
	return sameColor(
		g.img.At(g.min.X+x0, g.min.Y+y0),
		g.img.At(g.min.X+x1, g.min.Y+y1),
	)
}

func (g grid) columnUniform(x int) bool {
	for y := 1; y < g.h; y++ {
		if !g.same(x, 0, x, y) {
			return false
		}
	}
	return true
}

func (g grid) rowUniform(y int) bool {
	for x := 1; x < g.w; x++ {
		if !g.same(0, y, x, y) {
			return false
		}
	}
	return true
}

func sameColor(a, b color.Color) bool {
	ar, ag, ab, aa := a.RGBA()
	br, bg, bb, ba := b.RGBA()
	return ar == br && ag == bg && ab == bb && aa == ba
}
