package pipeline

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"testing"

	xwebp "golang.org/x/image/webp"
)

func TestFormatForName(t *testing.T) {
	cases := map[string]string{
		"page.png":  formatPNG,
		"PAGE.PNG":  formatPNG,
		"page.webp": formatWebP,
		"page.tif":  formatTIFF,
		"page.tiff": formatTIFF,
		"page.bmp":  formatBMP,
		"page.gif":  formatGIF,
	}
	for name, want := range cases {
		got, err := formatForName(name)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if got != want {
			t.Fatalf("%s: expected %s, got %s", name, want, got)
		}
	}

	if _, err := formatForName("page.jpeg"); !errors.Is(err, ErrNoAlphaFormat) {
		t.Fatalf("expected ErrNoAlphaFormat, got %v", err)
	}
	if _, err := formatForName("page.svg"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestStdlibCodecPreservesAlpha(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 2))
	pixels := []color.NRGBA{
		{R: 10, G: 20, B: 30, A: 255},
		{R: 200, G: 100, B: 50, A: 128},
		{R: 0, G: 0, B: 0, A: 1},
		{R: 255, G: 255, B: 255, A: 64},
	}
	for y := 0; y < 2; y++ {
		for x, c := range pixels {
			img.SetNRGBA(x, y, c)
		}
	}

	codec := stdlibCodec{}
	for _, format := range []string{formatPNG, formatTIFF, formatWebP} {
		data, err := codec.Encode(img, format)
		if err != nil {
			t.Fatalf("%s: encode: %v", format, err)
		}
		decoded, err := codec.Decode(data)
		if err != nil {
			t.Fatalf("%s: decode: %v", format, err)
		}
		if got := decoded.Bounds(); got.Dx() != 4 || got.Dy() != 2 {
			t.Fatalf("%s: expected 4x2, got %v", format, got)
		}
		for x, want := range pixels {
			got := color.NRGBAModel.Convert(decoded.At(decoded.Bounds().Min.X+x, decoded.Bounds().Min.Y+1)).(color.NRGBA)
			if got != want {
				t.Fatalf("%s: pixel %d expected %+v, got %+v", format, x, want, got)
			}
		}
	}
}

func TestStdlibCodecWebPKeepsStraightColor(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 200, G: 100, B: 50, A: 128})
	img.SetNRGBA(1, 0, color.NRGBA{R: 12, G: 34, B: 56, A: 235})

	data, err := (stdlibCodec{}).Encode(img, formatWebP)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := xwebp.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode with x/image: %v", err)
	}
	for x := 0; x < 2; x++ {
		want := img.NRGBAAt(x, 0)
		got := color.NRGBAModel.Convert(decoded.At(x, 0)).(color.NRGBA)
		if got != want {
			t.Fatalf("pixel %d: expected %+v, got %+v", x, want, got)
		}
	}
}

func TestStdlibCodecRejectsGarbage(t *testing.T) {
	if _, err := (stdlibCodec{}).Decode([]byte("definitely not pixels")); err == nil {
		t.Fatal("expected decode error")
	}
	if _, err := (stdlibCodec{}).Encode(image.NewNRGBA(image.Rect(0, 0, 1, 1)), "jpeg"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}
