package compose

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	"github.com/dunamismax/staffcut/internal/domain"
	"github.com/dunamismax/staffcut/internal/layout"
)

var (
	ErrBoxOutsideImage  = errors.New("bounding box does not fit the image")
	ErrBoxExceedsExtent = errors.New("bounding box is larger than the extent")
)

// Normalize turns a page into a transparent cutout: luminance becomes alpha,
// the page is cropped to box and pasted centered on an extent-sized canvas.
// Dark ink is assumed; light ink on a dark page inverts the wrong way.
func Normalize(img image.Image, box domain.BoundingBox, extent domain.Extent) (*image.NRGBA, error) {
	b := img.Bounds()
	size := box.Size()
	rect := image.Rect(box.X1, box.Y1, box.X2, box.Y2)

	if size.W < 0 || size.H < 0 || box.X1 < 0 || box.Y1 < 0 || box.X2 > b.Dx() || box.Y2 > b.Dy() {
		return nil, fmt.Errorf("%w: box %s image %dx%d", ErrBoxOutsideImage, box, b.Dx(), b.Dy())
	}
	if size.W > extent.W || size.H > extent.H {
		return nil, fmt.Errorf("%w: box %s extent %s", ErrBoxExceedsExtent, size, extent)
	}

	cropped := imaging.Crop(LuminanceMask(img), rect)
	canvas := imaging.New(extent.W, extent.H, color.NRGBA{})
	return imaging.Paste(canvas, cropped, layout.CenterOffset(extent, size)), nil
}

// LuminanceMask keeps the colors of img and replaces alpha with its inverted
// grayscale, so dark pixels become opaque and light pixels transparent.
func LuminanceMask(img image.Image) *image.NRGBA {
	out := imaging.Clone(img)
	mask := imaging.Invert(imaging.Grayscale(out))
	for i := 3; i < len(out.Pix); i += 4 {
		out.Pix[i] = mask.Pix[i-3]
	}
	return out
}
