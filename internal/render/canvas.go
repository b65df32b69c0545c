package render

import (
	"image"
	"image/color"
	"image/draw"
	"strconv"
	"strings"
)

// NewCanvas allocates a frame buffer filled with the background color.
// Every export allocates a fresh canvas; canvases are never pooled.
func NewCanvas(width, height int, background color.RGBA) *image.RGBA {
	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	Clear(canvas, background)
	return canvas
}

// Clear fills the whole canvas with a solid color.
func Clear(canvas *image.RGBA, c color.RGBA) {
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
}

// ParseHexColor parses "#rgb", "#rrggbb" and "#rrggbbaa" strings. Invalid or
// empty input falls back to the provided default so a malformed project
// color never aborts a frame.
func ParseHexColor(s string, fallback color.RGBA) color.RGBA {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")

	switch len(s) {
	case 3:
		expanded := make([]byte, 6)
		for i := 0; i < 3; i++ {
			expanded[i*2] = s[i]
			expanded[i*2+1] = s[i]
		}
		s = string(expanded)
	case 6, 8:
	default:
		return fallback
	}

	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return fallback
	}

	if len(s) == 8 {
		return color.RGBA{
			R: uint8(v >> 24),
			G: uint8(v >> 16),
			B: uint8(v >> 8),
			A: uint8(v),
		}
	}
	return color.RGBA{
		R: uint8(v >> 16),
		G: uint8(v >> 8),
		B: uint8(v),
		A: 255,
	}
}
