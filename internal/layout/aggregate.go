package layout

import (
	"errors"
	"fmt"
	"image"

	"github.com/dunamismax/staffcut/internal/domain"
)

var (
	ErrEmptyBatch  = errors.New("no bounding boxes to aggregate")
	ErrEmptyExtent = errors.New("aggregate extent has a zero dimension")
)

// Aggregate maximizes width and height independently over every box, so the
// result need not match any single box.
func Aggregate(boxes map[string]domain.BoundingBox) (domain.Extent, error) {
	if len(boxes) == 0 {
		return domain.Extent{}, ErrEmptyBatch
	}

	var extent domain.Extent
	for _, box := range boxes {
		size := box.Size()
		if size.W > extent.W {
			extent.W = size.W
		}
		if size.H > extent.H {
			extent.H = size.H
		}
	}
	if extent.Empty() {
		return domain.Extent{}, fmt.Errorf("%w: %s", ErrEmptyExtent, extent)
	}
	return extent, nil
}

// CenterOffset is where a size-by-size crop lands on an extent canvas:
// extent/2 - size/2 per component, truncated toward zero.
func CenterOffset(extent, size domain.Extent) image.Point {
	return image.Pt(
		int(float64(extent.W)/2-float64(size.W)/2),
		int(float64(extent.H)/2-float64(size.H)/2),
	)
}
