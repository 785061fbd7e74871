package compose

import (
	"errors"
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"golang.org/x/image/colornames"
)

var ErrInvalidColor = errors.New("invalid color")

// ParseColor accepts a color name ("white", "SteelBlue"), a hex form (#rgb,
// #rgba, #rrggbb, #rrggbbaa) or rgb(r,g,b) / rgba(r,g,b,a) with 0-255 components.
func ParseColor(value string) (color.Color, error) {
	s := strings.ToLower(strings.TrimSpace(value))
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidColor)
	}

	if c, ok := colornames.Map[s]; ok {
		return c, nil
	}
	if strings.HasPrefix(s, "#") {
		return parseHex(value, s[1:])
	}
	if strings.HasPrefix(s, "rgb(") || strings.HasPrefix(s, "rgba(") {
		return parseFunctional(value, s)
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidColor, value)
}

func parseHex(value, digits string) (color.Color, error) {
	switch len(digits) {
	case 3, 4:
		var expanded strings.Builder
		for _, d := range digits {
			expanded.WriteRune(d)
			expanded.WriteRune(d)
		}
		digits = expanded.String()
	case 6, 8:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidColor, value)
	}

	v, err := strconv.ParseUint(digits, 16, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidColor, value)
	}
	if len(digits) == 6 {
		v = v<<8 | 0xff
	}
	return color.NRGBA{
		R: uint8(v >> 24),
		G: uint8(v >> 16),
		B: uint8(v >> 8),
		A: uint8(v),
	}, nil
}

func parseFunctional(value, s string) (color.Color, error) {
	open := strings.IndexByte(s, '(')
	if !strings.HasSuffix(s, ")") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidColor, value)
	}
	name := s[:open]
	parts := strings.Split(s[open+1:len(s)-1], ",")

	want := 3
	if name == "rgba" {
		want = 4
	}
	if len(parts) != want {
		return nil, fmt.Errorf("%w: %q expects %d components", ErrInvalidColor, value, want)
	}

	values := [4]uint8{0, 0, 0, 255}
	for i, part := range parts {
		n, err := strconv.ParseUint(strings.TrimSpace(part), 10, 8)
		if err != nil {
			return nil, fmt.Errorf("%w: %q component %d", ErrInvalidColor, value, i+1)
		}
		values[i] = uint8(n)
	}
	return color.NRGBA{R: values[0], G: values[1], B: values[2], A: values[3]}, nil
}
