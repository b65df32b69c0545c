package media

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"clipstudio/internal/timeline"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestPreloadAllNullTolerance(t *testing.T) {
	good := pngBytes(t, 64, 48)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/good.png":
			w.Write(good)
		case "/broken.png":
			w.Write([]byte("not an image"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	items := []timeline.MediaItem{
		{ID: "a", Type: timeline.MediaTypeImage, URL: srv.URL + "/good.png", Name: "good"},
		{ID: "b", Type: timeline.MediaTypeImage, URL: srv.URL + "/missing.png", Name: "404"},
		{ID: "c", Type: timeline.MediaTypeImage, URL: srv.URL + "/broken.png", Name: "corrupt"},
	}

	p := NewPreloader("", "")
	p.SetLogf(func(string, ...interface{}) {})

	handles := p.PreloadAll(context.Background(), items)
	if len(handles) != 3 {
		t.Fatalf("expected a slot per item, got %d", len(handles))
	}

	if h := handles["a"]; h == nil || !h.Ready() {
		t.Errorf("good image should produce a ready handle")
	} else if h.Width != 64 || h.Height != 48 {
		t.Errorf("handle dims = %dx%d, want 64x48", h.Width, h.Height)
	}
	if handles["b"] != nil {
		t.Errorf("404 item should resolve to nil, not abort the batch")
	}
	if handles["c"] != nil {
		t.Errorf("corrupt item should resolve to nil")
	}
}

func TestPreloadVideoWithoutDecoder(t *testing.T) {
	p := NewPreloader("", "")
	p.SetLogf(func(string, ...interface{}) {})

	handles := p.PreloadAll(context.Background(), []timeline.MediaItem{
		{ID: "v", Type: timeline.MediaTypeVideo, URL: "/tmp/does-not-matter.mp4"},
	})
	if handles["v"] != nil {
		t.Errorf("video without ffprobe should resolve to nil")
	}
}

func TestPreloadAudioHasNoVisualHandle(t *testing.T) {
	p := NewPreloader("", "")
	handles := p.PreloadAll(context.Background(), []timeline.MediaItem{
		{ID: "s", Type: timeline.MediaTypeAudio, URL: "/tmp/song.mp3"},
	})
	if handles["s"] != nil {
		t.Errorf("audio items should not produce a visual handle")
	}
}

func TestPreloadLocalFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/still.png"
	if err := os.WriteFile(path, pngBytes(t, 10, 10), 0644); err != nil {
		t.Fatal(err)
	}

	p := NewPreloader("", "")
	handles := p.PreloadAll(context.Background(), []timeline.MediaItem{
		{ID: "f", Type: timeline.MediaTypeImage, URL: path},
	})
	if h := handles["f"]; h == nil || h.Width != 10 {
		t.Fatalf("local file should load, got %+v", handles["f"])
	}
}

func TestHandleClose(t *testing.T) {
	h := NewImageHandle(image.NewRGBA(image.Rect(0, 0, 4, 4)))
	if !h.Ready() {
		t.Fatal("fresh image handle should be ready")
	}
	h.Close()
	if h.Ready() {
		t.Error("closed handle should not report ready")
	}
	// Closing nil and double-closing must be safe.
	var nilHandle *Handle
	nilHandle.Close()
	h.Close()
}
