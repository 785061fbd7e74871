package layout

import (
	"errors"
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/dunamismax/staffcut/internal/domain"
)

func TestDetectReturnsInkCorners(t *testing.T) {
	img := pageWithInk(100, 100, image.Rect(20, 20, 61, 61))

	box, err := Detect(img)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	want := domain.BoundingBox{X1: 20, Y1: 20, X2: 60, Y2: 60}
	if box != want {
		t.Fatalf("expected %s, got %s", want, box)
	}
	if size := box.Size(); size != (domain.Extent{W: 40, H: 40}) {
		t.Fatalf("expected size 40x40, got %s", size)
	}
}

func TestDetectOnGrayPage(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 64, 32))
	for i := range img.Pix {
		img.Pix[i] = 250
	}
	img.SetGray(10, 5, color.Gray{Y: 3})
	img.SetGray(40, 20, color.Gray{Y: 90})

	box, err := Detect(img)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	want := domain.BoundingBox{X1: 10, Y1: 5, X2: 40, Y2: 20}
	if box != want {
		t.Fatalf("expected %s, got %s", want, box)
	}
}

func TestDetectUsesImageIndexSpace(t *testing.T) {
	page := pageWithInk(100, 100, image.Rect(30, 40, 51, 61))
	sub := page.SubImage(image.Rect(10, 10, 90, 90))

	box, err := Detect(sub)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	want := domain.BoundingBox{X1: 20, Y1: 30, X2: 40, Y2: 50}
	if box != want {
		t.Fatalf("expected %s, got %s", want, box)
	}
}

func TestDetectFallsBackToAtForOtherModels(t *testing.T) {
	img := image.NewCMYK(image.Rect(0, 0, 30, 30))
	for y := 12; y <= 18; y++ {
		for x := 5; x <= 25; x++ {
			img.SetCMYK(x, y, color.CMYK{K: 200})
		}
	}

	box, err := Detect(img)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	want := domain.BoundingBox{X1: 5, Y1: 12, X2: 25, Y2: 18}
	if box != want {
		t.Fatalf("expected %s, got %s", want, box)
	}
}

func TestDetectUniformImageIsDegenerate(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 50, 50))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	if _, err := Detect(img); !errors.Is(err, ErrDegenerateImage) {
		t.Fatalf("expected ErrDegenerateImage, got %v", err)
	}
}

func TestDetectColumnsUniformIsDegenerate(t *testing.T) {
	// Every column is a single color, so no column qualifies even though rows vary.
	img := image.NewNRGBA(image.Rect(0, 0, 20, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 20; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 10), G: 0, B: 0, A: 255})
		}
	}

	if _, err := Detect(img); !errors.Is(err, ErrDegenerateImage) {
		t.Fatalf("expected ErrDegenerateImage, got %v", err)
	}
}

func TestDetectComparesEachLineToItself(t *testing.T) {
	// A solid stripe in the border is uniform as a column, but it breaks every row.
	img := pageWithInk(60, 40, image.Rect(30, 10, 41, 21))
	for y := 0; y < 40; y++ {
		img.SetNRGBA(3, y, color.NRGBA{R: 200, A: 255})
	}

	box, err := Detect(img)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	want := domain.BoundingBox{X1: 30, Y1: 0, X2: 40, Y2: 39}
	if box != want {
		t.Fatalf("expected %s, got %s", want, box)
	}
}

func TestDetectEmptyImage(t *testing.T) {
	if _, err := Detect(image.NewGray(image.Rect(0, 0, 0, 0))); !errors.Is(err, ErrDegenerateImage) {
		t.Fatalf("expected ErrDegenerateImage, got %v", err)
	}
}

func TestAggregateIsComponentwiseMax(t *testing.T) {
	extent, err := Aggregate(map[string]domain.BoundingBox{
		"tall.png": {X1: 0, Y1: 0, X2: 10, Y2: 50},
		"wide.png": {X1: 5, Y1: 5, X2: 45, Y2: 10},
	})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if extent != (domain.Extent{W: 40, H: 50}) {
		t.Fatalf("expected 40x50, got %s", extent)
	}
}

func TestAggregateScenario(t *testing.T) {
	extent, err := Aggregate(map[string]domain.BoundingBox{
		"a.png": {X1: 20, Y1: 20, X2: 60, Y2: 60},
		"b.png": {X1: 10, Y1: 10, X2: 90, Y2: 50},
	})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if extent != (domain.Extent{W: 80, H: 40}) {
		t.Fatalf("expected 80x40, got %s", extent)
	}
}

func TestAggregateEmpty(t *testing.T) {
	if _, err := Aggregate(nil); !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("expected ErrEmptyBatch, got %v", err)
	}

	_, err := Aggregate(map[string]domain.BoundingBox{"dot.png": {X1: 4, Y1: 4, X2: 4, Y2: 4}})
	if !errors.Is(err, ErrEmptyExtent) {
		t.Fatalf("expected ErrEmptyExtent, got %v", err)
	}
}

func TestCenterOffset(t *testing.T) {
	extent := domain.Extent{W: 80, H: 40}

	if got := CenterOffset(extent, extent); got != (image.Point{}) {
		t.Fatalf("expected zero offset for a full-size crop, got %v", got)
	}
	if got := CenterOffset(extent, domain.Extent{W: 40, H: 40}); got != image.Pt(20, 0) {
		t.Fatalf("expected (20,0), got %v", got)
	}
	// 81/2 - 40/2 = 20.5, truncated.
	if got := CenterOffset(domain.Extent{W: 81, H: 41}, domain.Extent{W: 40, H: 39}); got != image.Pt(20, 1) {
		t.Fatalf("expected (20,1), got %v", got)
	}
}

func pageWithInk(w, h int, ink image.Rectangle) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(img, ink, image.NewUniform(color.Black), image.Point{}, draw.Src)
	return img
}
