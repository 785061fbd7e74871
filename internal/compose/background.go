// Package compose builds the shared background and the per-page cutouts.
package compose

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/vector"

	"github.com/dunamismax/staffcut/internal/domain"
)

// kappa places cubic control points so a quarter curve approximates a circle.
const kappa = 0.5522847498

// Background returns an extent-sized canvas holding one filled rounded
// rectangle that spans the whole canvas. The radius is clamped to half the
// shorter side; zero or less draws square corners.
func Background(extent domain.Extent, radius float64, fill color.Color) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, extent.W, extent.H))
	if extent.Empty() {
		return dst
	}

	w, h := float32(extent.W), float32(extent.H)
	r := float32(math.Max(0, math.Min(radius, math.Min(float64(extent.W), float64(extent.H))/2)))

	z := vector.NewRasterizer(extent.W, extent.H)
	if r == 0 {
		z.MoveTo(0, 0)
		z.LineTo(w, 0)
		z.LineTo(w, h)
		z.LineTo(0, h)
		z.ClosePath()
	} else {
		k := r * kappa
		z.MoveTo(r, 0)
		z.LineTo(w-r, 0)
		z.CubeTo(w-r+k, 0, w, r-k, w, r)
		z.LineTo(w, h-r)
		z.CubeTo(w, h-r+k, w-r+k, h, w-r, h)
		z.LineTo(r, h)
		z.CubeTo(r-k, h, 0, h-r+k, 0, h-r)
		z.LineTo(0, r)
		z.CubeTo(0, r-k, r-k, 0, r, 0)
		z.ClosePath()
	}

	z.Draw(dst, dst.Bounds(), image.NewUniform(fill), image.Point{})
	return dst
}
