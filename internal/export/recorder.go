package export

import (
	"context"
	"fmt"
	"image/color"
	"log"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"clipstudio/internal/audio"
	"clipstudio/internal/config"
	"clipstudio/internal/media"
	"clipstudio/internal/render"
	"clipstudio/internal/timeline"
	"clipstudio/internal/utils/naming"
)

// State tracks the recorder through one export pass.
type State int32

const (
	StateIdle State = iota
	StatePreloading
	StateRecording
	StateStopping
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreloading:
		return "preloading"
	case StateRecording:
		return "recording"
	case StateStopping:
		return "stopping"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

const (
	// DefaultFrameCap bounds export length so a runaway duration cannot
	// spin the encoder forever.
	DefaultFrameCap = 600

	// DefaultFrameDelay paces frame submission so the encoder's input
	// queue never grows without bound.
	DefaultFrameDelay = 50 * time.Millisecond

	// DefaultWatchdog is a hard ceiling on the whole recording pass,
	// including finalize. When it elapses the pass fails no matter how
	// many frames were delivered.
	DefaultWatchdog = 20 * time.Second
)

// Progress is a coarse progress report for UI consumption.
type Progress struct {
	Phase       string  `json:"phase"`
	FramesTotal int     `json:"framesTotal"`
	FramesDone  int     `json:"framesDone"`
	Percent     float64 `json:"percent"`
}

// ProgressCallback receives progress updates during an export.
type ProgressCallback func(Progress)

// Job is one export request: a timeline snapshot plus output settings.
// The snapshot is owned by the recorder for the duration of the pass and
// must not be mutated while Record runs.
type Job struct {
	ProjectName     string
	Duration        float64
	BackgroundColor string
	Tracks          []timeline.Track
	Items           []timeline.MediaItem
	Settings        config.ProjectSettings
	OutputDir       string

	// FontData is optional TTF/OTF bytes for text elements.
	FontData []byte
}

// Recorder runs the frame-by-frame export pass: preload, mix, render and
// encode. One Recorder handles one export at a time.
type Recorder struct {
	ffmpegPath  string
	ffprobePath string

	frameCap   int
	frameDelay time.Duration
	watchdog   time.Duration

	onProgress ProgressCallback
	logf       func(format string, args ...interface{})

	state int32

	// newEncoder is swapped in tests to observe frames without ffmpeg.
	newEncoder func(opts encoderOptions) (encoder, error)
}

func NewRecorder(ffmpegPath, ffprobePath string) *Recorder {
	r := &Recorder{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		frameCap:    DefaultFrameCap,
		frameDelay:  DefaultFrameDelay,
		watchdog:    DefaultWatchdog,
		logf:        log.Printf,
	}
	r.newEncoder = r.defaultEncoder
	return r
}

// SetProgressCallback registers a progress sink. Pass nil to disable.
func (r *Recorder) SetProgressCallback(cb ProgressCallback) {
	r.onProgress = cb
}

// SetLogf overrides the recorder's log sink.
func (r *Recorder) SetLogf(logf func(string, ...interface{})) {
	if logf != nil {
		r.logf = logf
	}
}

// State returns the recorder's current state.
func (r *Recorder) State() State {
	return State(atomic.LoadInt32(&r.state))
}

func (r *Recorder) setState(s State) {
	atomic.StoreInt32(&r.state, int32(s))
	r.logf("[Export] state -> %s", s)
}

func (r *Recorder) emit(p Progress) {
	if r.onProgress != nil {
		r.onProgress(p)
	}
}

// defaultEncoder prefers live ffmpeg encoding and degrades to Motion JPEG
// when no external decoder is installed.
func (r *Recorder) defaultEncoder(opts encoderOptions) (encoder, error) {
	if opts.FFmpegPath != "" {
		return newFFmpegEncoder(opts)
	}
	r.logf("[Export] ffmpeg not available, falling back to MJPEG AVI")
	return newMJPEGEncoder(opts)
}

// outputExt matches the encoder defaultEncoder will pick.
func (r *Recorder) outputExt() string {
	if r.ffmpegPath != "" {
		return "webm"
	}
	return "avi"
}

// Record runs one full export pass and returns the output file path.
func (r *Recorder) Record(ctx context.Context, job Job) (string, error) {
	if err := job.Settings.Validate(); err != nil {
		return r.fail(fmt.Errorf("invalid settings: %w", err))
	}

	duration := job.Duration
	if duration <= 0 {
		duration = timeline.TotalDuration(job.Tracks)
	}
	if duration <= 0 {
		return r.fail(fmt.Errorf("timeline is empty"))
	}

	if err := os.MkdirAll(job.OutputDir, 0755); err != nil {
		return r.fail(fmt.Errorf("create output dir: %w", err))
	}

	r.setState(StatePreloading)
	r.emit(Progress{Phase: "preloading"})

	pre := media.NewPreloader(r.ffmpegPath, r.ffprobePath)
	pre.SetLogf(r.logf)
	handles := pre.PreloadAll(ctx, timeline.ReferencedItems(job.Tracks, job.Items))
	defer media.ReleaseAll(handles)

	audioPath, cleanupAudio := r.prepareAudio(ctx, job, duration, handles)
	defer cleanupAudio()

	width, height := job.Settings.Dimensions()
	outputPath := filepath.Join(job.OutputDir, naming.ExportFilename(job.ProjectName, r.outputExt()))

	enc, err := r.newEncoder(encoderOptions{
		Width:       width,
		Height:      height,
		FPS:         job.Settings.FPS,
		BitrateKbps: job.Settings.CustomBitrate,
		AudioPath:   audioPath,
		OutputPath:  outputPath,
		FFmpegPath:  r.ffmpegPath,
		logf:        r.logf,
	})
	if err != nil {
		return r.fail(fmt.Errorf("create encoder: %w", err))
	}

	total := int(math.Ceil(duration * float64(job.Settings.FPS)))
	if total > r.frameCap {
		r.logf("[Export] frame count %d exceeds cap, truncating to %d", total, r.frameCap)
		total = r.frameCap
	}
	if total < 1 {
		total = 1
	}

	renderer := render.NewRenderer(job.FontData)
	renderer.SetLogf(r.logf)
	background := render.ParseHexColor(job.BackgroundColor, color.RGBA{A: 255})
	canvas := render.NewCanvas(width, height, background)

	r.setState(StateRecording)
	r.logf("[Export] recording %d frames at %d fps (%dx%d)", total, job.Settings.FPS, width, height)

	// The watchdog is a hard ceiling on the whole pass: armed once, never
	// reset. When it fires the encoder is killed, which also unblocks any
	// stalled pipe write.
	wdFired := make(chan struct{})
	wd := time.AfterFunc(r.watchdog, func() {
		r.logf("[Export] watchdog fired, killing encoder")
		enc.kill()
		close(wdFired)
	})
	defer wd.Stop()

	for i := 0; i < total; i++ {
		select {
		case <-ctx.Done():
			enc.kill()
			return r.fail(fmt.Errorf("export canceled: %w", ctx.Err()))
		case <-wdFired:
			return r.fail(fmt.Errorf("watchdog timeout after %s", r.watchdog))
		default:
		}

		t := float64(i) / float64(job.Settings.FPS)
		active := timeline.ActiveElementsAt(t, job.Tracks, job.Items)
		renderer.Frame(ctx, canvas, active, t, handles, background)

		if err := enc.addFrame(canvas); err != nil {
			enc.kill()
			return r.fail(fmt.Errorf("frame %d: %w", i, err))
		}

		r.emit(Progress{
			Phase:       "recording",
			FramesTotal: total,
			FramesDone:  i + 1,
			Percent:     float64(i+1) / float64(total) * 95,
		})

		if r.frameDelay > 0 && i < total-1 {
			select {
			case <-ctx.Done():
			case <-time.After(r.frameDelay):
			}
		}
	}

	r.setState(StateStopping)
	r.emit(Progress{Phase: "finalizing", FramesTotal: total, FramesDone: total, Percent: 97})

	done := make(chan error, 1)
	go func() { done <- enc.finish() }()

	select {
	case err := <-done:
		if err != nil {
			return r.fail(fmt.Errorf("finalize: %w", err))
		}
	case <-wdFired:
		return r.fail(fmt.Errorf("watchdog timeout after %s", r.watchdog))
	}

	r.setState(StateDone)
	r.emit(Progress{Phase: "done", FramesTotal: total, FramesDone: total, Percent: 100})
	return enc.path(), nil
}

func (r *Recorder) fail(err error) (string, error) {
	r.setState(StateFailed)
	r.logf("[Export] %v", err)
	return "", err
}

// prepareAudio builds the mix and stages it as a temp WAV for the encoder.
// Any failure degrades to a video-only export rather than aborting.
func (r *Recorder) prepareAudio(ctx context.Context, job Job, duration float64, handles map[string]*media.Handle) (string, func()) {
	noop := func() {}

	sources := audio.DiscoverSources(job.Tracks, timeline.ItemIndex(job.Items), handles)
	if len(sources) == 0 || r.ffmpegPath == "" {
		return "", noop
	}

	mixer := audio.NewMixer(r.ffmpegPath)
	mixer.SetLogf(r.logf)
	mix, err := mixer.BuildMix(ctx, sources, duration)
	if err != nil {
		r.logf("[Export] audio mix failed, continuing video-only: %v", err)
		return "", noop
	}
	if mix == nil || mix.Connected == 0 {
		r.logf("[Export] no audio sources connected, exporting video-only")
		return "", noop
	}

	path := filepath.Join(os.TempDir(), fmt.Sprintf("clipstudio_mix_%d.wav", time.Now().UnixNano()))
	if err := audio.WriteWAVFile(path, mix); err != nil {
		r.logf("[Export] staging audio mix failed, continuing video-only: %v", err)
		return "", noop
	}

	r.logf("[Export] audio mix staged: %d/%d sources, %.2fs", mix.Connected, mix.Attempted, mix.Duration())
	return path, func() { os.Remove(path) }
}
