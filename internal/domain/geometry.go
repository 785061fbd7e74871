package domain

import "fmt"

// Extent is a width/height pair in pixels.
type Extent struct {
	W int `json:"width"`
	H int `json:"height"`
}

func (e Extent) String() string {
	return fmt.Sprintf("%dx%d", e.W, e.H)
}

// Empty reports whether either dimension is zero or negative.
func (e Extent) Empty() bool {
	return e.W <= 0 || e.H <= 0
}

// BoundingBox is the box enclosing the ink of one image, in zero-based pixel
// indices of that image. X2 and Y2 are the last non-uniform column and row.
type BoundingBox struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Size is (X2-X1, Y2-Y1).
func (b BoundingBox) Size() Extent {
	return Extent{W: b.X2 - b.X1, H: b.Y2 - b.Y1}
}

func (b BoundingBox) String() string {
	return fmt.Sprintf("(%d,%d)-(%d,%d)", b.X1, b.Y1, b.X2, b.Y2)
}
