package render

import (
	"image"
	"image/color"
	"image/draw"
	"log"
	"math"
	"sync"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/f64"
	"golang.org/x/image/math/fixed"

	"clipstudio/internal/timeline"
)

// Text elements keep a minimum rendered size so captions stay legible at
// low quality presets.
const (
	minFontSize    = 32.0
	referenceW     = 1920.0
	referenceH     = 1080.0
	textBoxPadding = 12
)

// textRasterizer renders text elements with an opentype face, falling back
// to a built-in bitmap face when no font data is available.
type textRasterizer struct {
	font *opentype.Font

	mu    sync.Mutex
	faces map[int]font.Face
}

func newTextRasterizer(fontData []byte) *textRasterizer {
	tr := &textRasterizer{faces: make(map[int]font.Face)}

	if len(fontData) > 0 {
		f, err := opentype.Parse(fontData)
		if err != nil {
			log.Printf("[Render] failed to parse font, using bitmap fallback: %v", err)
		} else {
			tr.font = f
		}
	}
	return tr
}

// face returns a cached face for the given pixel size.
func (tr *textRasterizer) face(px float64) font.Face {
	if tr.font == nil {
		return basicfont.Face7x13
	}

	size := int(px + 0.5)
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if f, ok := tr.faces[size]; ok {
		return f
	}
	f, err := opentype.NewFace(tr.font, &opentype.FaceOptions{
		Size:    float64(size),
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return basicfont.Face7x13
	}
	tr.faces[size] = f
	return f
}

// ScaledFontSize maps an element's configured font size to canvas pixels:
// proportional to the canvas relative to a 1920x1080 reference, doubled,
// with a legibility floor.
func ScaledFontSize(base float64, canvasW, canvasH int) float64 {
	scale := math.Min(float64(canvasW)/referenceW, float64(canvasH)/referenceH)
	size := base * scale * 2
	if size < minFontSize {
		size = minFontSize
	}
	return size
}

// draw renders one text element: optional padded background box, black
// stroke for contrast, then the fill color, honoring opacity and rotation.
func (tr *textRasterizer) draw(canvas *image.RGBA, el *timeline.Element) error {
	if el.Content == "" {
		return nil
	}

	cw := canvas.Bounds().Dx()
	ch := canvas.Bounds().Dy()

	size := ScaledFontSize(el.FontSize, cw, ch)
	face := tr.face(size)
	metrics := face.Metrics()

	d := &font.Drawer{Face: face}
	textW := d.MeasureString(el.Content).Ceil()
	ascent := metrics.Ascent.Ceil()
	descent := metrics.Descent.Ceil()

	bw := textW + 2*textBoxPadding
	bh := ascent + descent + 2*textBoxPadding
	block := image.NewRGBA(image.Rect(0, 0, bw, bh))

	if el.BackgroundColor != "" {
		bg := ParseHexColor(el.BackgroundColor, color.RGBA{})
		draw.Draw(block, block.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
	}

	baseline := fixed.P(textBoxPadding, textBoxPadding+ascent)

	// Stroke pass: offset draws in black around the glyphs for contrast
	// against arbitrary backgrounds.
	stroke := &font.Drawer{
		Dst:  block,
		Src:  image.NewUniform(color.RGBA{A: 255}),
		Face: face,
	}
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			stroke.Dot = fixed.Point26_6{
				X: baseline.X + fixed.I(dx),
				Y: baseline.Y + fixed.I(dy),
			}
			stroke.DrawString(el.Content)
		}
	}

	fill := &font.Drawer{
		Dst:  block,
		Src:  image.NewUniform(ParseHexColor(el.Color, color.RGBA{R: 255, G: 255, B: 255, A: 255})),
		Face: face,
		Dot:  baseline,
	}
	fill.DrawString(el.Content)

	if opacity := el.EffectiveOpacity(); opacity < 1 {
		applyAlpha(block, opacity)
	}

	// Element position is relative to canvas center.
	cx := float64(cw)/2 + el.X
	cy := float64(ch)/2 + el.Y

	if el.Rotation == 0 {
		origin := image.Pt(int(cx)-bw/2, int(cy)-bh/2)
		draw.Draw(canvas, image.Rectangle{Min: origin, Max: origin.Add(image.Pt(bw, bh))},
			block, image.Point{}, draw.Over)
		return nil
	}

	theta := el.Rotation * math.Pi / 180
	sin, cos := math.Sin(theta), math.Cos(theta)
	hw, hh := float64(bw)/2, float64(bh)/2

	// Rotate the block about its center, then translate the center to
	// (cx, cy). Canvas y grows downward, so positive angles turn clockwise
	// like the source timeline editor.
	m := f64.Aff3{
		cos, -sin, cx - cos*hw + sin*hh,
		sin, cos, cy - sin*hw - cos*hh,
	}
	xdraw.ApproxBiLinear.Transform(canvas, m, block, block.Bounds(), xdraw.Over, nil)
	return nil
}

// drawLabel renders a small centered caption, used by placeholder panels.
func (tr *textRasterizer) drawLabel(canvas *image.RGBA, text string, cx, cy int) {
	face := tr.face(minFontSize)
	d := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(color.RGBA{R: 230, G: 230, B: 230, A: 255}),
		Face: face,
	}
	w := d.MeasureString(text).Ceil()
	ascent := face.Metrics().Ascent.Ceil()
	d.Dot = fixed.P(cx-w/2, cy+ascent/2)
	d.DrawString(text)
}

// applyAlpha scales a premultiplied RGBA block by a uniform opacity.
func applyAlpha(img *image.RGBA, opacity float64) {
	if opacity >= 1 {
		return
	}
	if opacity < 0 {
		opacity = 0
	}
	for i := range img.Pix {
		img.Pix[i] = uint8(float64(img.Pix[i])*opacity + 0.5)
	}
}
