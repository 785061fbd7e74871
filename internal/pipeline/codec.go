package pipeline

import (
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"strings"
)

const (
	formatPNG  = "png"
	formatWebP = "webp"
	formatTIFF = "tiff"
	formatBMP  = "bmp"
	formatGIF  = "gif"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported output format")
	ErrNoAlphaFormat     = errors.New("output format cannot store transparency")
)

// Codec turns stored bytes into pixels and back.
type Codec interface {
	Decode(data []byte) (image.Image, error)
	Encode(img image.Image, format string) ([]byte, error)
}

// formatForName picks the encoding from the output file extension.
func formatForName(name string) (string, error) {
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".png":
		return formatPNG, nil
	case ".webp":
		return formatWebP, nil
	case ".tif", ".tiff":
		return formatTIFF, nil
	case ".bmp":
		return formatBMP, nil
	case ".gif":
		return formatGIF, nil
	case ".jpg", ".jpeg":
		return "", fmt.Errorf("%w: %s", ErrNoAlphaFormat, ext)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

func contentTypeForFormat(format string) string {
	switch format {
	case formatWebP:
		return "image/webp"
	case formatTIFF:
		return "image/tiff"
	case formatBMP:
		return "image/bmp"
	case formatGIF:
		return "image/gif"
	default:
		return "image/png"
	}
}
