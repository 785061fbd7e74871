//go:build govips && cgo

package pipeline

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/davidbyttow/govips/v2/vips"
)

// govipsCodec lets libvips read anything it supports (HEIF, JPEG 2000, ...)
// and write the cutouts; pixel work stays on image.Image.
type govipsCodec struct {
	std stdlibCodec
}

func (c govipsCodec) Decode(data []byte) (image.Image, error) {
	if vips.DetermineImageType(data) == vips.ImageTypePNG {
		return c.std.Decode(data)
	}

	ref, err := vips.NewImageFromBuffer(data)
	if err != nil {
		return nil, fmt.Errorf("decode source image: %w", err)
	}
	defer ref.Close()

	raw, _, err := ref.ExportPng(vips.NewPngExportParams())
	if err != nil {
		return nil, fmt.Errorf("convert source image: %w", err)
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode converted image: %w", err)
	}
	return img, nil
}

func (c govipsCodec) Encode(img image.Image, format string) ([]byte, error) {
	raw, err := c.std.Encode(img, formatPNG)
	if err != nil {
		return nil, err
	}

	ref, err := vips.NewImageFromBuffer(raw)
	if err != nil {
		return nil, fmt.Errorf("load encoded image: %w", err)
	}
	defer ref.Close()

	switch format {
	case formatPNG:
		data, _, err := ref.ExportPng(vips.NewPngExportParams())
		if err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
		return data, nil
	case formatWebP:
		params := vips.NewWebpExportParams()
		params.Lossless = true
		data, _, err := ref.ExportWebp(params)
		if err != nil {
			return nil, fmt.Errorf("encode webp: %w", err)
		}
		return data, nil
	case formatTIFF:
		data, _, err := ref.ExportTiff(vips.NewTiffExportParams())
		if err != nil {
			return nil, fmt.Errorf("encode tiff: %w", err)
		}
		return data, nil
	default:
		return c.std.Encode(img, format)
	}
}
