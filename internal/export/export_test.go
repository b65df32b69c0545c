package export

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"clipstudio/internal/config"
	"clipstudio/internal/timeline"
)

type fakeEncoder struct {
	opts      encoderOptions
	frames    int
	failFrame int // fail on this frame number, 0 = never
	finishErr error
	killed    bool
}

func (f *fakeEncoder) addFrame(img image.Image) error {
	f.frames++
	if f.failFrame > 0 && f.frames >= f.failFrame {
		return errors.New("encoder rejected frame")
	}
	return nil
}

func (f *fakeEncoder) finish() error { return f.finishErr }
func (f *fakeEncoder) kill()         { f.killed = true }
func (f *fakeEncoder) path() string  { return f.opts.OutputPath }

func testSettings() config.ProjectSettings {
	return config.ProjectSettings{
		FPS:           30,
		Quality:       config.Quality480p,
		CustomBitrate: 2000,
	}
}

func quietRecorder(t *testing.T) (*Recorder, *fakeEncoder) {
	t.Helper()
	r := NewRecorder("", "")
	r.SetLogf(func(string, ...interface{}) {})
	r.frameDelay = 0

	fake := &fakeEncoder{}
	r.newEncoder = func(opts encoderOptions) (encoder, error) {
		fake.opts = opts
		return fake, nil
	}
	return r, fake
}

func TestRecorderFrameCount(t *testing.T) {
	r, fake := quietRecorder(t)

	job := Job{
		ProjectName: "count",
		Duration:    2,
		Settings:    testSettings(),
		OutputDir:   t.TempDir(),
	}
	path, err := r.Record(context.Background(), job)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if fake.frames != 60 {
		t.Errorf("frames = %d, want 2s * 30fps = 60", fake.frames)
	}
	if path != fake.opts.OutputPath {
		t.Errorf("returned path %q, want encoder output %q", path, fake.opts.OutputPath)
	}
	if r.State() != StateDone {
		t.Errorf("state = %s, want done", r.State())
	}
}

func TestRecorderFrameCap(t *testing.T) {
	r, fake := quietRecorder(t)

	job := Job{
		ProjectName: "long",
		Duration:    200, // 200s * 30fps = 6000 frames uncapped
		Settings:    testSettings(),
		OutputDir:   t.TempDir(),
	}
	if _, err := r.Record(context.Background(), job); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if fake.frames != DefaultFrameCap {
		t.Errorf("frames = %d, want cap %d", fake.frames, DefaultFrameCap)
	}
}

func TestRecorderVideoOnlyWithoutAudio(t *testing.T) {
	r, fake := quietRecorder(t)

	job := Job{
		ProjectName: "silent",
		Duration:    1,
		Settings:    testSettings(),
		OutputDir:   t.TempDir(),
	}
	if _, err := r.Record(context.Background(), job); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if fake.opts.AudioPath != "" {
		t.Errorf("no audio sources should mean no audio path, got %q", fake.opts.AudioPath)
	}
}

func TestRecorderDurationFromTimeline(t *testing.T) {
	r, fake := quietRecorder(t)

	job := Job{
		ProjectName: "implicit",
		Settings:    testSettings(),
		OutputDir:   t.TempDir(),
		Tracks: []timeline.Track{
			{
				ID: "t0", Type: timeline.TrackTypeText, Order: 0,
				Elements: []timeline.Element{
					{ID: "e0", Type: timeline.ElementTypeText, Content: "hi", StartTime: 1, Duration: 2, Opacity: 1},
				},
			},
		},
	}
	if _, err := r.Record(context.Background(), job); err != nil {
		t.Fatalf("Record: %v", err)
	}
	// Last element ends at t=3: 3s * 30fps.
	if fake.frames != 90 {
		t.Errorf("frames = %d, want 90 from inferred duration", fake.frames)
	}
}

func TestRecorderFailsOnEmptyTimeline(t *testing.T) {
	r, _ := quietRecorder(t)

	_, err := r.Record(context.Background(), Job{
		ProjectName: "empty",
		Settings:    testSettings(),
		OutputDir:   t.TempDir(),
	})
	if err == nil {
		t.Fatal("empty timeline should fail the render tier")
	}
	if r.State() != StateFailed {
		t.Errorf("state = %s, want failed", r.State())
	}
}

func TestRecorderEncoderFailure(t *testing.T) {
	r, fake := quietRecorder(t)
	fake.failFrame = 5

	_, err := r.Record(context.Background(), Job{
		ProjectName: "broken",
		Duration:    2,
		Settings:    testSettings(),
		OutputDir:   t.TempDir(),
	})
	if err == nil {
		t.Fatal("encoder failure should fail the pass")
	}
	if !fake.killed {
		t.Error("failed encoder should be killed")
	}
	if r.State() != StateFailed {
		t.Errorf("state = %s, want failed", r.State())
	}
}

func TestRecorderWatchdogBoundsWholePass(t *testing.T) {
	r, fake := quietRecorder(t)
	r.watchdog = 30 * time.Millisecond
	r.frameDelay = 5 * time.Millisecond

	_, err := r.Record(context.Background(), Job{
		ProjectName: "stalled",
		Duration:    20, // 600 frames at 5ms pacing far outlives the watchdog
		Settings:    testSettings(),
		OutputDir:   t.TempDir(),
	})
	if err == nil {
		t.Fatal("a pass that outlives the watchdog must fail")
	}
	if !strings.Contains(err.Error(), "watchdog") {
		t.Errorf("err = %v, want watchdog timeout", err)
	}
	if !fake.killed {
		t.Error("watchdog must kill the encoder")
	}
	if r.State() != StateFailed {
		t.Errorf("state = %s, want failed", r.State())
	}
}

func TestRecorderProgressMonotonic(t *testing.T) {
	r, _ := quietRecorder(t)

	var last float64 = -1
	r.SetProgressCallback(func(p Progress) {
		if p.Percent < last {
			t.Errorf("progress went backwards: %.2f after %.2f", p.Percent, last)
		}
		last = p.Percent
	})

	if _, err := r.Record(context.Background(), Job{
		ProjectName: "progress",
		Duration:    1,
		Settings:    testSettings(),
		OutputDir:   t.TempDir(),
	}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if last != 100 {
		t.Errorf("final progress = %.2f, want 100", last)
	}
}

func quietOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	o := NewOrchestrator("", "")
	o.SetLogf(func(string, ...interface{}) {})
	o.recorder.frameDelay = 0
	return o
}

func TestExportVideoHappyPath(t *testing.T) {
	o := quietOrchestrator(t)
	o.renderTier = func(ctx context.Context, job Job) (string, error) {
		return "/out/movie.webm", nil
	}

	res, err := o.ExportVideo(context.Background(), Job{ProjectName: "p", Duration: 1, Settings: testSettings()})
	if err != nil {
		t.Fatalf("ExportVideo: %v", err)
	}
	if res.Tier != TierVideo || res.OutputPath != "/out/movie.webm" {
		t.Errorf("result = %+v, want video tier", res)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("happy path should carry no warnings, got %v", res.Warnings)
	}
}

func TestExportVideoFallsBackToStill(t *testing.T) {
	o := quietOrchestrator(t)
	o.renderTier = func(ctx context.Context, job Job) (string, error) {
		return "", errors.New("recorder exploded")
	}
	o.stillTier = func(ctx context.Context, job Job) (string, error) {
		return "/out/frame.png", nil
	}

	res, err := o.ExportVideo(context.Background(), Job{ProjectName: "p", Duration: 1, Settings: testSettings()})
	if err != nil {
		t.Fatalf("ExportVideo: %v", err)
	}
	if res.Tier != TierStill {
		t.Errorf("tier = %s, want still", res.Tier)
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "recorder exploded") {
		t.Errorf("warnings = %v, want the render failure recorded", res.Warnings)
	}
}

func TestExportVideoCascadeTerminatesAtReport(t *testing.T) {
	o := quietOrchestrator(t)
	boom := func(ctx context.Context, job Job) (string, error) {
		return "", errors.New("always fails")
	}
	o.renderTier = boom
	o.stillTier = boom

	dir := t.TempDir()
	res, err := o.ExportVideo(context.Background(), Job{
		ProjectName: "Doomed Project",
		Duration:    3,
		Settings:    testSettings(),
		OutputDir:   dir,
	})
	if err != nil {
		t.Fatalf("cascade must terminate with an artifact, got error: %v", err)
	}
	if res.Tier != TierReport {
		t.Fatalf("tier = %s, want report", res.Tier)
	}
	if filepath.Base(res.OutputPath) != "Doomed_Project.txt" {
		t.Errorf("report filename = %s, want sanitized project name", filepath.Base(res.OutputPath))
	}

	body, err := os.ReadFile(res.OutputPath)
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	text := string(body)
	for _, want := range []string{"Doomed Project", "3.00s", "30 fps", "always fails"} {
		if !strings.Contains(text, want) {
			t.Errorf("report missing %q:\n%s", want, text)
		}
	}
	if len(res.Warnings) != 2 {
		t.Errorf("warnings = %d, want one per failed tier", len(res.Warnings))
	}
}

func TestExportVideoAllTiersFail(t *testing.T) {
	o := quietOrchestrator(t)
	boom := func(ctx context.Context, job Job) (string, error) {
		return "", errors.New("no")
	}
	o.renderTier = boom
	o.stillTier = boom
	o.reportTier = func(job Job, reasons []string) (string, error) {
		return "", errors.New("disk on fire")
	}

	_, err := o.ExportVideo(context.Background(), Job{ProjectName: "p", Settings: testSettings()})
	if err == nil {
		t.Fatal("only a total tier wipeout may surface an error")
	}
}

func TestStillFrameTier(t *testing.T) {
	o := quietOrchestrator(t)

	dir := t.TempDir()
	path, err := o.runStillFrame(context.Background(), Job{
		ProjectName:     "Mid Frame",
		Duration:        4,
		BackgroundColor: "#222222",
		Settings:        testSettings(),
		OutputDir:       dir,
	})
	if err != nil {
		t.Fatalf("runStillFrame: %v", err)
	}
	if filepath.Base(path) != "Mid_Frame.png" {
		t.Errorf("still filename = %s", filepath.Base(path))
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	cfg, format, err := image.DecodeConfig(f)
	if err != nil || format != "png" {
		t.Fatalf("still should be a decodable png, format=%q err=%v", format, err)
	}
	if cfg.Width != 854 || cfg.Height != 480 {
		t.Errorf("still dims = %dx%d, want 854x480", cfg.Width, cfg.Height)
	}
}

func TestTierAndStateStrings(t *testing.T) {
	for tier, want := range map[Tier]string{TierVideo: "video", TierStill: "still", TierReport: "report"} {
		if tier.String() != want {
			t.Errorf("Tier(%d) = %s, want %s", tier, tier, want)
		}
	}
	if got := fmt.Sprint(StateRecording); got != "recording" {
		t.Errorf("state string = %s", got)
	}
}
