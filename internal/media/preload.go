package media

import (
	"context"
	"fmt"
	"image"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"clipstudio/internal/timeline"

	// Image codecs beyond the stdlib set; media libraries routinely
	// contain webp, bmp and tiff stills.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// Per-item preload budgets. Images fully decode; videos only need metadata.
const (
	ImageTimeout = 3 * time.Second
	VideoTimeout = 5 * time.Second
)

// Preloader loads every media item referenced by a project into a handle
// table. One item's failure never blocks the others: a failed or timed-out
// slot resolves to nil and rendering skips it.
type Preloader struct {
	ffmpegPath  string
	ffprobePath string
	httpClient  *http.Client
	logf        func(format string, args ...interface{})
}

// NewPreloader creates a preloader. The ffmpeg/ffprobe paths may be empty;
// video items then resolve to nil while images still load in-process.
func NewPreloader(ffmpegPath, ffprobePath string) *Preloader {
	return &Preloader{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		httpClient:  &http.Client{},
		logf:        log.Printf,
	}
}

// SetLogf overrides the preloader's log sink.
func (p *Preloader) SetLogf(logf func(string, ...interface{})) {
	if logf != nil {
		p.logf = logf
	}
}

// PreloadAll resolves every item to a handle or nil. The returned table has
// one entry per input item; the call itself never fails.
func (p *Preloader) PreloadAll(ctx context.Context, items []timeline.MediaItem) map[string]*Handle {
	handles := make(map[string]*Handle, len(items))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, item := range items {
		wg.Add(1)
		go func(item timeline.MediaItem) {
			defer wg.Done()
			handle, err := p.preloadOne(ctx, item)
			if err != nil {
				p.logf("[Preload] %s (%s): %v - slot disabled", item.Name, item.ID, err)
				handle = nil
			}
			mu.Lock()
			handles[item.ID] = handle
			mu.Unlock()
		}(item)
	}

	wg.Wait()
	return handles
}

// ReleaseAll closes every non-nil handle in the table.
func ReleaseAll(handles map[string]*Handle) {
	for _, h := range handles {
		h.Close()
	}
}

func (p *Preloader) preloadOne(ctx context.Context, item timeline.MediaItem) (*Handle, error) {
	switch item.Type {
	case timeline.MediaTypeImage:
		ctx, cancel := context.WithTimeout(ctx, ImageTimeout)
		defer cancel()
		return p.loadImage(ctx, item.URL)

	case timeline.MediaTypeVideo:
		ctx, cancel := context.WithTimeout(ctx, VideoTimeout)
		defer cancel()
		return p.loadVideo(ctx, item.URL)

	case timeline.MediaTypeAudio:
		// Audio items are decoded by the mixer, not rasterized; no visual
		// handle is needed.
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown media type %q", item.Type)
	}
}

// loadImage fetches and fully decodes an image.
func (p *Preloader) loadImage(ctx context.Context, url string) (*Handle, error) {
	r, err := p.open(ctx, url)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	type decoded struct {
		img image.Image
		err error
	}
	done := make(chan decoded, 1)
	go func() {
		img, _, err := image.Decode(r)
		done <- decoded{img, err}
	}()

	select {
	case d := <-done:
		if d.err != nil {
			return nil, fmt.Errorf("image decode failed: %w", d.err)
		}
		return NewImageHandle(d.img), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("image load timed out: %w", ctx.Err())
	}
}

// loadVideo probes only metadata: intrinsic dimensions, duration and
// seekability, not a full decode.
func (p *Preloader) loadVideo(ctx context.Context, url string) (*Handle, error) {
	if p.ffprobePath == "" {
		return nil, fmt.Errorf("no ffprobe available for video metadata")
	}

	probe, err := Probe(ctx, p.ffprobePath, url)
	if err != nil {
		return nil, err
	}
	if !probe.HasVideo {
		return nil, fmt.Errorf("no video stream in %s", url)
	}
	return NewVideoHandle(url, p.ffmpegPath, probe)
}

// open resolves a media URL to a byte stream. Items carry either http(s)
// URLs or local file paths.
func (p *Preloader) open(ctx context.Context, url string) (io.ReadCloser, error) {
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := p.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch failed: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("fetch returned status %d", resp.StatusCode)
		}
		return resp.Body, nil
	}

	path := strings.TrimPrefix(url, "file://")
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open failed: %w", err)
	}
	return f, nil
}
