package render

import (
	"context"
	"image"
	"image/color"
	"testing"

	"clipstudio/internal/media"
	"clipstudio/internal/timeline"
)

func TestFitRect(t *testing.T) {
	tests := []struct {
		name                   string
		srcW, srcH, dstW, dstH int
		want                   image.Rectangle
	}{
		{"landscape into hd, width bound", 1280, 720, 1920, 1080, image.Rect(0, 0, 1920, 1080)},
		{"square into hd, height bound", 1000, 1000, 1920, 1080, image.Rect(420, 0, 1500, 1080)},
		{"portrait into hd", 1080, 1920, 1920, 1080, image.Rect(656, 0, 1264, 1080)},
		{"upscale small image", 100, 50, 1920, 1080, image.Rect(0, 60, 1920, 1020)},
		{"exact fit", 854, 480, 854, 480, image.Rect(0, 0, 854, 480)},
		{"zero source", 0, 720, 1920, 1080, image.Rectangle{}},
		{"zero canvas", 1280, 720, 0, 0, image.Rectangle{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := FitRect(tc.srcW, tc.srcH, tc.dstW, tc.dstH)
			if got != tc.want {
				t.Errorf("FitRect(%d,%d,%d,%d) = %v, want %v",
					tc.srcW, tc.srcH, tc.dstW, tc.dstH, got, tc.want)
			}
		})
	}
}

func TestFitRectNeverOverflows(t *testing.T) {
	cases := [][4]int{
		{1279, 721, 1920, 1080},
		{3, 7, 854, 480},
		{4096, 2160, 1280, 720},
		{1, 10000, 640, 360},
	}
	for _, c := range cases {
		r := FitRect(c[0], c[1], c[2], c[3])
		canvas := image.Rect(0, 0, c[2], c[3])
		if !r.In(canvas) {
			t.Errorf("FitRect(%v) = %v escapes canvas %v", c, r, canvas)
		}
	}
}

func TestParseHexColor(t *testing.T) {
	fallback := color.RGBA{R: 1, G: 2, B: 3, A: 255}
	tests := []struct {
		in   string
		want color.RGBA
	}{
		{"#000000", color.RGBA{A: 255}},
		{"#ffffff", color.RGBA{R: 255, G: 255, B: 255, A: 255}},
		{"#FF8000", color.RGBA{R: 255, G: 128, A: 255}},
		{"#abc", color.RGBA{R: 0xaa, G: 0xbb, B: 0xcc, A: 255}},
		{"#11223344", color.RGBA{R: 0x11, G: 0x22, B: 0x33, A: 0x44}},
		{"  #ffffff  ", color.RGBA{R: 255, G: 255, B: 255, A: 255}},
		{"", fallback},
		{"#xyz", fallback},
		{"#12345", fallback},
		{"red", fallback},
	}
	for _, tc := range tests {
		if got := ParseHexColor(tc.in, fallback); got != tc.want {
			t.Errorf("ParseHexColor(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestScaledFontSize(t *testing.T) {
	tests := []struct {
		base float64
		w, h int
		want float64
	}{
		{24, 1920, 1080, 48},
		{24, 854, 480, 32},  // scaled below the floor
		{48, 3840, 2160, 192},
		{0, 1920, 1080, 32}, // zero size still renders legibly
	}
	for _, tc := range tests {
		if got := ScaledFontSize(tc.base, tc.w, tc.h); got != tc.want {
			t.Errorf("ScaledFontSize(%v, %d, %d) = %v, want %v", tc.base, tc.w, tc.h, got, tc.want)
		}
	}
}

func TestFrameBackgroundFill(t *testing.T) {
	r := NewRenderer(nil)
	r.SetLogf(func(string, ...interface{}) {})
	canvas := NewCanvas(64, 36, color.RGBA{A: 255})

	bg := color.RGBA{R: 10, G: 20, B: 30, A: 255}
	r.Frame(context.Background(), canvas, nil, 0, nil, bg)

	if got := canvas.RGBAAt(0, 0); got != bg {
		t.Errorf("corner = %v, want background %v", got, bg)
	}
	if got := canvas.RGBAAt(32, 18); got != bg {
		t.Errorf("center = %v, want background %v", got, bg)
	}
}

func TestFrameLayeringOrder(t *testing.T) {
	// Two opaque full-canvas images on tracks 0 and 1; track 1 must win.
	red := image.NewRGBA(image.Rect(0, 0, 64, 36))
	Clear(red, color.RGBA{R: 255, A: 255})
	blue := image.NewRGBA(image.Rect(0, 0, 64, 36))
	Clear(blue, color.RGBA{B: 255, A: 255})

	handles := map[string]*media.Handle{
		"red":  media.NewImageHandle(red),
		"blue": media.NewImageHandle(blue),
	}

	lower := timeline.Track{ID: "t0", Type: timeline.TrackTypeMedia, Order: 0}
	upper := timeline.Track{ID: "t1", Type: timeline.TrackTypeMedia, Order: 1}

	// Deliberately supplied upper-first to prove the renderer sorts.
	active := []timeline.ActiveElement{
		{
			Element: &timeline.Element{ID: "e1", Type: timeline.ElementTypeMedia, MediaID: "blue", Duration: 5, Opacity: 1},
			Track:   &upper,
			Item:    &timeline.MediaItem{ID: "blue", Type: timeline.MediaTypeImage},
		},
		{
			Element: &timeline.Element{ID: "e0", Type: timeline.ElementTypeMedia, MediaID: "red", Duration: 5, Opacity: 1},
			Track:   &lower,
			Item:    &timeline.MediaItem{ID: "red", Type: timeline.MediaTypeImage},
		},
	}

	r := NewRenderer(nil)
	r.SetLogf(func(string, ...interface{}) {})
	canvas := NewCanvas(64, 36, color.RGBA{A: 255})
	r.Frame(context.Background(), canvas, active, 1, handles, color.RGBA{A: 255})

	got := canvas.RGBAAt(32, 18)
	if got.B < 200 || got.R > 50 {
		t.Errorf("center = %v, want the higher track's blue on top", got)
	}
}

func TestFramePlaceholderForMissingMedia(t *testing.T) {
	track := timeline.Track{ID: "t0", Type: timeline.TrackTypeMedia, Order: 0}
	active := []timeline.ActiveElement{
		{
			Element: &timeline.Element{
				ID: "e0", Type: timeline.ElementTypeMedia,
				MediaID: timeline.PlaceholderMediaID, Name: "clip.mp4",
				Duration: 5, Opacity: 1,
			},
			Track: &track,
			Item:  nil,
		},
	}

	r := NewRenderer(nil)
	r.SetLogf(func(string, ...interface{}) {})
	bg := color.RGBA{A: 255}
	canvas := NewCanvas(200, 100, bg)
	r.Frame(context.Background(), canvas, active, 1, nil, bg)

	// The placeholder panel covers the canvas center.
	if got := canvas.RGBAAt(100, 52); got == bg {
		t.Errorf("expected a placeholder panel at the canvas center, got background")
	}
	// Corners stay background.
	if got := canvas.RGBAAt(2, 2); got != bg {
		t.Errorf("corner = %v, want untouched background", got)
	}
}

func TestFrameSkipsUnreadyHandle(t *testing.T) {
	h := media.NewImageHandle(image.NewRGBA(image.Rect(0, 0, 8, 8)))
	h.Close()

	track := timeline.Track{ID: "t0", Type: timeline.TrackTypeMedia, Order: 0}
	active := []timeline.ActiveElement{
		{
			Element: &timeline.Element{ID: "e0", Type: timeline.ElementTypeMedia, MediaID: "m", Duration: 5, Opacity: 1},
			Track:   &track,
			Item:    &timeline.MediaItem{ID: "m", Type: timeline.MediaTypeImage},
		},
	}

	r := NewRenderer(nil)
	r.SetLogf(func(string, ...interface{}) {})
	bg := color.RGBA{R: 7, G: 7, B: 7, A: 255}
	canvas := NewCanvas(32, 32, bg)
	r.Frame(context.Background(), canvas, active, 1, map[string]*media.Handle{"m": h}, bg)

	if got := canvas.RGBAAt(16, 16); got != bg {
		t.Errorf("closed handle should be skipped, center = %v", got)
	}
}

func TestFrameOpacityBlending(t *testing.T) {
	white := image.NewRGBA(image.Rect(0, 0, 64, 36))
	Clear(white, color.RGBA{R: 255, G: 255, B: 255, A: 255})

	track := timeline.Track{ID: "t0", Type: timeline.TrackTypeMedia, Order: 0}
	active := []timeline.ActiveElement{
		{
			Element: &timeline.Element{ID: "e0", Type: timeline.ElementTypeMedia, MediaID: "w", Duration: 5, Opacity: 0.5},
			Track:   &track,
			Item:    &timeline.MediaItem{ID: "w", Type: timeline.MediaTypeImage},
		},
	}

	r := NewRenderer(nil)
	r.SetLogf(func(string, ...interface{}) {})
	canvas := NewCanvas(64, 36, color.RGBA{A: 255})
	r.Frame(context.Background(), canvas, active, 1, map[string]*media.Handle{"w": media.NewImageHandle(white)}, color.RGBA{A: 255})

	got := canvas.RGBAAt(32, 18)
	if got.R < 100 || got.R > 155 {
		t.Errorf("half-opacity white over black should land near mid-gray, got %v", got)
	}
}

func TestTextElementDraws(t *testing.T) {
	track := timeline.Track{ID: "t0", Type: timeline.TrackTypeText, Order: 0}
	active := []timeline.ActiveElement{
		{
			Element: &timeline.Element{
				ID: "txt", Type: timeline.ElementTypeText,
				Content: "Hello", Color: "#ffffff", FontSize: 24,
				Duration: 5, Opacity: 1,
			},
			Track: &track,
		},
	}

	r := NewRenderer(nil)
	r.SetLogf(func(string, ...interface{}) {})
	bg := color.RGBA{A: 255}
	canvas := NewCanvas(320, 180, bg)
	r.Frame(context.Background(), canvas, active, 1, nil, bg)

	changed := false
	for y := 60; y < 120 && !changed; y++ {
		for x := 100; x < 220; x++ {
			if canvas.RGBAAt(x, y) != bg {
				changed = true
				break
			}
		}
	}
	if !changed {
		t.Error("text element should leave marks near the canvas center")
	}
}
