package pipeline

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	xwebp "golang.org/x/image/webp"
)

type stdlibCodec struct{}

func (stdlibCodec) Decode(data []byte) (image.Image, error) {
	// chai2010 labels straight-alpha pixels as *image.RGBA; x/image returns NRGBA.
	if isWebP(data) {
		img, err := xwebp.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decode source image: %w", err)
		}
		return img, nil
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode source image: %w", err)
	}
	return img, nil
}

func (stdlibCodec) Encode(img image.Image, format string) ([]byte, error) {
	if format == formatWebP {
		data, err := encodeWebP(img)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", format, err)
		}
		return data, nil
	}

	var buf bytes.Buffer
	var err error
	switch format {
	case formatPNG:
		err = imaging.Encode(&buf, img, imaging.PNG, imaging.PNGCompressionLevel(png.DefaultCompression))
	case formatTIFF:
		err = imaging.Encode(&buf, img, imaging.TIFF)
	case formatBMP:
		err = imaging.Encode(&buf, img, imaging.BMP)
	case formatGIF:
		err = imaging.Encode(&buf, img, imaging.GIF)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", format, err)
	}
	return buf.Bytes(), nil
}

// encodeWebP writes lossless webp. libwebp reads straight alpha, so the
// NRGBA bytes go in under an RGBA header to skip chai2010's premultiply.
func encodeWebP(img image.Image) ([]byte, error) {
	nrgba := imaging.Clone(img)
	straight := &image.RGBA{Pix: nrgba.Pix, Stride: nrgba.Stride, Rect: nrgba.Rect}
	return webp.EncodeExactLosslessRGBA(straight)
}

func isWebP(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP"
}
