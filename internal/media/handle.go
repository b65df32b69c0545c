package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"math"
	"os/exec"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// frameCacheSize bounds the number of decoded video frames kept per handle.
// Render passes revisit nearby timestamps, so a small cache absorbs most
// repeat seeks without holding a whole clip in memory.
const frameCacheSize = 32

// frameKeyQuantum groups nearby seek times into one cache slot (100ms).
const frameKeyQuantum = 0.1

// HandleKind discriminates the preloaded handle union.
type HandleKind int

const (
	HandleImage HandleKind = iota
	HandleVideo
)

// Handle is a decodable, seekable in-memory reference to one preloaded media
// item. Image handles hold the decoded pixels; video handles hold probed
// metadata plus a frame extractor.
type Handle struct {
	Kind     HandleKind
	Width    int
	Height   int
	Duration float64

	// Image variant
	Image image.Image

	// Video variant
	source     string
	ffmpegPath string
	hasAudio   bool
	ready      bool
	frames     *lru.Cache[int64, image.Image]
}

// NewImageHandle wraps a decoded image.
func NewImageHandle(img image.Image) *Handle {
	b := img.Bounds()
	return &Handle{
		Kind:   HandleImage,
		Width:  b.Dx(),
		Height: b.Dy(),
		Image:  img,
	}
}

// NewVideoHandle wraps probed video metadata with a lazy frame extractor.
func NewVideoHandle(source, ffmpegPath string, probe *ProbeResult) (*Handle, error) {
	frames, err := lru.New[int64, image.Image](frameCacheSize)
	if err != nil {
		return nil, err
	}
	return &Handle{
		Kind:       HandleVideo,
		Width:      probe.Width,
		Height:     probe.Height,
		Duration:   probe.Duration,
		source:     source,
		ffmpegPath: ffmpegPath,
		hasAudio:   probe.HasAudio,
		ready:      ffmpegPath != "" && probe.HasVideo,
		frames:     frames,
	}, nil
}

// Ready reports whether the handle can serve seeks. An image handle is
// always ready; a video handle is ready when its probe succeeded and a
// decoder is available.
func (h *Handle) Ready() bool {
	if h == nil {
		return false
	}
	if h.Kind == HandleImage {
		return h.Image != nil
	}
	return h.ready
}

// HasAudio reports whether a video handle carries an embedded audio track.
func (h *Handle) HasAudio() bool {
	return h != nil && h.Kind == HandleVideo && h.hasAudio
}

// FrameAt seeks the video to the given local time and decodes one frame.
// Times are quantized to 100ms so consecutive render ticks inside the same
// quantum hit the cache instead of spawning a decoder per tick.
func (h *Handle) FrameAt(ctx context.Context, t float64) (image.Image, error) {
	if h.Kind != HandleVideo {
		return h.Image, nil
	}
	if !h.ready {
		return nil, fmt.Errorf("video handle not ready")
	}

	if t < 0 {
		t = 0
	}
	if h.Duration > 0 && t > h.Duration {
		t = h.Duration
	}

	key := int64(math.Floor(t / frameKeyQuantum))
	if img, ok := h.frames.Get(key); ok {
		return img, nil
	}

	img, err := h.extractFrame(ctx, t)
	if err != nil {
		return nil, err
	}
	h.frames.Add(key, img)
	return img, nil
}

// extractFrame pulls a single frame as PNG from ffmpeg's stdout.
func (h *Handle) extractFrame(ctx context.Context, t float64) (image.Image, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	args := []string{
		"-ss", fmt.Sprintf("%.3f", t),
		"-i", h.source,
		"-frames:v", "1",
		"-f", "image2",
		"-c:v", "png",
		"-",
	}

	cmd := exec.CommandContext(ctx, h.ffmpegPath, args...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("frame extraction at %.3fs failed: %w", t, err)
	}

	img, _, err := image.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("failed to decode extracted frame: %w", err)
	}
	return img, nil
}

// Close releases the handle's cached frames. Handles hold no OS resources
// between seeks, so release is a cache purge; it exists so every acquisition
// site can pair the handle with a guaranteed release.
func (h *Handle) Close() {
	if h == nil {
		return
	}
	if h.frames != nil {
		h.frames.Purge()
	}
	h.Image = nil
	h.ready = false
}
