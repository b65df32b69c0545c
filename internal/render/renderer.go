package render

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"log"

	xdraw "golang.org/x/image/draw"

	"clipstudio/internal/media"
	"clipstudio/internal/timeline"
)

// Renderer rasterizes one composited frame at a time onto a canvas. It is
// owned exclusively by the render loop for the duration of one export.
type Renderer struct {
	text *textRasterizer
	logf func(format string, args ...interface{})
}

// NewRenderer creates a renderer. fontData may be nil; text elements then
// fall back to a built-in bitmap face.
func NewRenderer(fontData []byte) *Renderer {
	return &Renderer{
		text: newTextRasterizer(fontData),
		logf: log.Printf,
	}
}

// SetLogf overrides the renderer's log sink.
func (r *Renderer) SetLogf(logf func(string, ...interface{})) {
	if logf != nil {
		r.logf = logf
	}
}

// Frame draws one composited frame: background fill, media elements in
// ascending track order, then text elements on top of their track layer.
// A failing element is logged and skipped; it never aborts the frame.
func (r *Renderer) Frame(ctx context.Context, canvas *image.RGBA, active []timeline.ActiveElement, t float64, handles map[string]*media.Handle, background color.RGBA) {
	Clear(canvas, background)

	timeline.SortByTrackOrder(active)

	for _, ae := range active {
		if err := r.drawElement(ctx, canvas, ae, t, handles); err != nil {
			r.logf("[Render] element %s at t=%.3f: %v - skipped", ae.Element.ID, t, err)
		}
	}
}

// drawElement dispatches on the element union. Panics from pathological
// inputs are converted to errors so one bad element cannot abort the export.
func (r *Renderer) drawElement(ctx context.Context, canvas *image.RGBA, ae timeline.ActiveElement, t float64, handles map[string]*media.Handle) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("draw panic: %v", rec)
		}
	}()

	switch ae.Element.Type {
	case timeline.ElementTypeMedia:
		return r.drawMedia(ctx, canvas, ae, t, handles)
	case timeline.ElementTypeText:
		return r.text.draw(canvas, ae.Element)
	default:
		// Unknown kinds are defensively skipped, not mis-rendered.
		return fmt.Errorf("unknown element type %q", ae.Element.Type)
	}
}

func (r *Renderer) drawMedia(ctx context.Context, canvas *image.RGBA, ae timeline.ActiveElement, t float64, handles map[string]*media.Handle) error {
	el := ae.Element

	// Missing references and the placeholder sentinel still render a
	// visual marker rather than disappearing from the composition.
	if ae.Item == nil {
		r.drawPlaceholder(canvas, el)
		return nil
	}

	handle := handles[ae.Item.ID]
	if handle == nil || !handle.Ready() {
		// Preload marked the slot unusable; skip without error.
		return nil
	}

	var src image.Image
	switch handle.Kind {
	case media.HandleImage:
		src = handle.Image
	case media.HandleVideo:
		local := el.LocalTime(t, handle.Duration)
		frame, err := handle.FrameAt(ctx, local)
		if err != nil {
			return fmt.Errorf("video seek: %w", err)
		}
		src = frame
	}
	if src == nil {
		return nil
	}

	bounds := src.Bounds()
	dstRect := FitRect(bounds.Dx(), bounds.Dy(), canvas.Bounds().Dx(), canvas.Bounds().Dy())
	if dstRect.Empty() {
		return nil
	}

	scaled := image.NewRGBA(image.Rect(0, 0, dstRect.Dx(), dstRect.Dy()))
	xdraw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), src, bounds, xdraw.Src, nil)

	alpha := uint8(el.EffectiveOpacity()*255 + 0.5)
	mask := image.NewUniform(color.Alpha{A: alpha})
	draw.DrawMask(canvas, dstRect, scaled, image.Point{}, mask, image.Point{}, draw.Over)
	return nil
}

// Placeholder panel proportions relative to the canvas.
const (
	placeholderWidthRatio  = 0.4
	placeholderHeightRatio = 0.3
)

// drawPlaceholder renders a fixed panel plus the element's display name for
// clips whose media cannot be resolved.
func (r *Renderer) drawPlaceholder(canvas *image.RGBA, el *timeline.Element) {
	cw := canvas.Bounds().Dx()
	ch := canvas.Bounds().Dy()

	w := int(float64(cw) * placeholderWidthRatio)
	h := int(float64(ch) * placeholderHeightRatio)
	x := (cw - w) / 2
	y := (ch - h) / 2
	panel := image.Rect(x, y, x+w, y+h)

	fill := color.RGBA{R: 45, G: 45, B: 48, A: 255}
	border := color.RGBA{R: 120, G: 120, B: 125, A: 255}

	draw.Draw(canvas, panel, image.NewUniform(fill), image.Point{}, draw.Over)
	strokeRect(canvas, panel, border, 2)

	name := el.Name
	if name == "" {
		name = "Missing media"
	}
	r.text.drawLabel(canvas, name, cw/2, ch/2)
}

// strokeRect draws a rectangular border of the given thickness.
func strokeRect(canvas *image.RGBA, rect image.Rectangle, c color.RGBA, thickness int) {
	u := image.NewUniform(c)
	top := image.Rect(rect.Min.X, rect.Min.Y, rect.Max.X, rect.Min.Y+thickness)
	bottom := image.Rect(rect.Min.X, rect.Max.Y-thickness, rect.Max.X, rect.Max.Y)
	left := image.Rect(rect.Min.X, rect.Min.Y, rect.Min.X+thickness, rect.Max.Y)
	right := image.Rect(rect.Max.X-thickness, rect.Min.Y, rect.Max.X, rect.Max.Y)
	for _, edge := range []image.Rectangle{top, bottom, left, right} {
		draw.Draw(canvas, edge, u, image.Point{}, draw.Over)
	}
}
