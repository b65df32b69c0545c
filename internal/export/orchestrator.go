package export

import (
	"context"
	"fmt"
	"image/color"
	"image/png"
	"log"
	"os"
	"path/filepath"
	"time"

	"clipstudio/internal/media"
	"clipstudio/internal/render"
	"clipstudio/internal/timeline"
	"clipstudio/internal/utils/naming"
)

// Tier identifies which export strategy produced the artifact.
type Tier int

const (
	TierVideo Tier = iota
	TierStill
	TierReport
)

func (t Tier) String() string {
	switch t {
	case TierVideo:
		return "video"
	case TierStill:
		return "still"
	case TierReport:
		return "report"
	}
	return "unknown"
}

// renderTimeout bounds the full-render tier. The render loop races this
// deadline; losing the race drops to the still-frame tier.
const renderTimeout = 15 * time.Second

// Result is the artifact of one export call. Warnings record why higher
// tiers were skipped.
type Result struct {
	Tier       Tier     `json:"tier"`
	OutputPath string   `json:"outputPath"`
	Warnings   []string `json:"warnings,omitempty"`
}

// Orchestrator runs the fallback-tier state machine around the recorder.
// An export call always delivers a file; tiers degrade from full video to
// a single still frame to a plain-text report, and only when every tier
// fails does the call return an error.
type Orchestrator struct {
	recorder      *Recorder
	renderTimeout time.Duration
	logf          func(format string, args ...interface{})

	// Tier implementations, swapped in tests to drive the cascade.
	renderTier func(ctx context.Context, job Job) (string, error)
	stillTier  func(ctx context.Context, job Job) (string, error)
	reportTier func(job Job, reasons []string) (string, error)
}

func NewOrchestrator(ffmpegPath, ffprobePath string) *Orchestrator {
	o := &Orchestrator{
		recorder:      NewRecorder(ffmpegPath, ffprobePath),
		renderTimeout: renderTimeout,
		logf:          log.Printf,
	}
	o.renderTier = o.runFullRender
	o.stillTier = o.runStillFrame
	o.reportTier = o.runReport
	return o
}

// SetProgressCallback forwards progress to the recorder.
func (o *Orchestrator) SetProgressCallback(cb ProgressCallback) {
	o.recorder.SetProgressCallback(cb)
}

// SetLogf overrides the log sink for the orchestrator and its recorder.
func (o *Orchestrator) SetLogf(logf func(string, ...interface{})) {
	if logf != nil {
		o.logf = logf
		o.recorder.SetLogf(logf)
	}
}

// RecorderState exposes the recorder state for UI polling.
func (o *Orchestrator) RecorderState() State {
	return o.recorder.State()
}

// ExportVideo runs the tier cascade. It returns an error only when all
// three tiers fail, which requires the filesystem itself to be broken.
func (o *Orchestrator) ExportVideo(ctx context.Context, job Job) (*Result, error) {
	var warnings []string

	renderCtx, cancel := context.WithTimeout(ctx, o.renderTimeout)
	path, err := o.renderTier(renderCtx, job)
	cancel()
	if err == nil {
		return &Result{Tier: TierVideo, OutputPath: path}, nil
	}
	warnings = append(warnings, fmt.Sprintf("full render failed: %v", err))
	o.logf("[Export] full render failed, falling back to still frame: %v", err)

	path, err = o.stillTier(ctx, job)
	if err == nil {
		return &Result{Tier: TierStill, OutputPath: path, Warnings: warnings}, nil
	}
	warnings = append(warnings, fmt.Sprintf("still frame failed: %v", err))
	o.logf("[Export] still frame failed, falling back to text report: %v", err)

	path, err = o.reportTier(job, warnings)
	if err != nil {
		return nil, fmt.Errorf("all export tiers failed, last: %w", err)
	}
	return &Result{Tier: TierReport, OutputPath: path, Warnings: warnings}, nil
}

func (o *Orchestrator) runFullRender(ctx context.Context, job Job) (string, error) {
	return o.recorder.Record(ctx, job)
}

// runStillFrame renders one frame at the timeline midpoint and writes it as
// PNG. It reuses the preloader so the still shows real media, but tolerates
// total preload failure: a background-only frame is still a valid artifact.
func (o *Orchestrator) runStillFrame(ctx context.Context, job Job) (string, error) {
	duration := job.Duration
	if duration <= 0 {
		duration = timeline.TotalDuration(job.Tracks)
	}
	t := duration / 2

	if err := os.MkdirAll(job.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	pre := media.NewPreloader(o.recorder.ffmpegPath, o.recorder.ffprobePath)
	pre.SetLogf(o.logf)
	handles := pre.PreloadAll(ctx, timeline.ReferencedItems(job.Tracks, job.Items))
	defer media.ReleaseAll(handles)

	width, height := job.Settings.Dimensions()
	background := render.ParseHexColor(job.BackgroundColor, color.RGBA{A: 255})
	canvas := render.NewCanvas(width, height, background)

	renderer := render.NewRenderer(job.FontData)
	renderer.SetLogf(o.logf)
	active := timeline.ActiveElementsAt(t, job.Tracks, job.Items)
	renderer.Frame(ctx, canvas, active, t, handles, background)

	path := filepath.Join(job.OutputDir, naming.ExportFilename(job.ProjectName, "png"))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create still: %w", err)
	}
	defer f.Close()

	if err := png.Encode(f, canvas); err != nil {
		return "", fmt.Errorf("encode still: %w", err)
	}
	o.logf("[Export] still frame written at t=%.3fs: %s", t, path)
	return path, nil
}

func (o *Orchestrator) runReport(job Job, reasons []string) (string, error) {
	if err := os.MkdirAll(job.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(job.OutputDir, naming.ExportFilename(job.ProjectName, "txt"))
	if err := os.WriteFile(path, []byte(BuildReport(job, reasons)), 0644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	o.logf("[Export] emergency report written: %s", path)
	return path, nil
}
