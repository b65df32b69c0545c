package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"sync"

	"github.com/google/uuid"
	"github.com/posthog/posthog-go"
	wailsRuntime "github.com/wailsapp/wails/v2/pkg/runtime"

	"clipstudio/internal/config"
	"clipstudio/internal/export"
	"clipstudio/internal/media"
	"clipstudio/internal/project"
	"clipstudio/internal/taskqueue"
	"clipstudio/internal/timeline"
)

// Linker flags
var (
	PostHogKey  string
	PostHogHost string
	AppVersion  string = "0.0.0-dev"
)

// App is the Wails backend: it owns settings, the project store, the export
// engine and the background task queue, and exposes them to the frontend.
type App struct {
	ctx      context.Context
	settings *config.UserSettings
	projects *project.Store

	ffmpegPath  string
	ffprobePath string
	fontData    []byte

	taskQueue *taskqueue.QueueManager
	phClient  posthog.Client
	devMode   bool

	mu            sync.Mutex
	exportRunning bool
	lastState     export.State
}

// NewApp creates a new App application struct
func NewApp() *App {
	settings, err := config.LoadSettings()
	if err != nil {
		log.Printf("Failed to load settings, using defaults: %v", err)
		settings = config.DefaultSettings()
	}
	log.Printf("Settings loaded from: %s", config.GetSettingsPath())

	// Anonymous install ID for analytics, generated once.
	if settings.InstallID == "" {
		settings.InstallID = uuid.NewString()
		if err := config.SaveSettings(settings); err != nil {
			log.Printf("Failed to persist install ID: %v", err)
		}
	}

	ffmpegPath, ok := media.FindFFmpeg()
	if !ok {
		log.Printf("ffmpeg not found, exports will fall back to MJPEG AVI")
	} else {
		log.Printf("ffmpeg found at %s", ffmpegPath)
	}
	ffprobePath, _ := media.FindFFprobe()

	var phClient posthog.Client
	if PostHogKey != "" {
		client, err := posthog.NewWithConfig(PostHogKey, posthog.Config{Endpoint: PostHogHost})
		if err != nil {
			log.Printf("Failed to initialize PostHog: %v", err)
		} else {
			phClient = client
		}
	}

	homeDir, _ := os.UserHomeDir()
	baseDir := filepath.Join(homeDir, ".clipstudio")
	taskQueue := taskqueue.NewQueueManager(filepath.Join(baseDir, "queue"))
	projects := project.NewStore(filepath.Join(baseDir, "projects"))

	return &App{
		settings:    settings,
		projects:    projects,
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		fontData:    loadFontData(),
		taskQueue:   taskQueue,
		phClient:    phClient,
	}
}

// loadFontData looks for a usable TTF in common system locations. Exports
// work without one; text then renders with a built-in bitmap face.
func loadFontData() []byte {
	var candidates []string
	switch goruntime.GOOS {
	case "darwin":
		candidates = []string{
			"/System/Library/Fonts/Supplemental/Arial.ttf",
			"/Library/Fonts/Arial.ttf",
		}
	case "windows":
		candidates = []string{
			`C:\Windows\Fonts\arial.ttf`,
			`C:\Windows\Fonts\segoeui.ttf`,
		}
	default:
		candidates = []string{
			"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
			"/usr/share/fonts/TTF/DejaVuSans.ttf",
			"/usr/share/fonts/truetype/liberation/LiberationSans-Regular.ttf",
		}
	}
	for _, path := range candidates {
		if data, err := os.ReadFile(path); err == nil {
			log.Printf("Text font loaded from %s", path)
			return data
		}
	}
	log.Printf("No system font found, text uses bitmap fallback")
	return nil
}

// startup is called when the app starts
func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	os.MkdirAll(a.settings.ExportPath, 0755)

	a.taskQueue.SetExecutor(a)
	a.taskQueue.SetCallbacks(
		func(status taskqueue.QueueStatus) {
			wailsRuntime.EventsEmit(ctx, "task-queue-update", status)
		},
		func(taskID string, progress export.Progress) {
			wailsRuntime.EventsEmit(ctx, "task-progress", map[string]interface{}{
				"taskId":   taskID,
				"progress": progress,
			})
		},
		func(taskID string, success bool, err error) {
			errStr := ""
			if err != nil {
				errStr = err.Error()
			}
			wailsRuntime.EventsEmit(ctx, "task-complete", map[string]interface{}{
				"taskId":  taskID,
				"success": success,
				"error":   errStr,
			})
		},
		func(title, message, notifType string) {
			wailsRuntime.EventsEmit(ctx, "system-notification", map[string]interface{}{
				"title":   title,
				"message": message,
				"type":    notifType,
			})
		},
	)

	a.TrackEvent("app_started", map[string]interface{}{
		"version": AppVersion,
		"os":      goruntime.GOOS,
		"arch":    goruntime.GOARCH,
		"ffmpeg":  a.ffmpegPath != "",
	})
}

// TrackEvent sends an analytics event keyed by the anonymous install ID.
func (a *App) TrackEvent(event string, props map[string]interface{}) {
	if a.phClient == nil {
		return
	}
	a.phClient.Enqueue(posthog.Capture{
		DistinctId: a.settings.InstallID,
		Event:      event,
		Properties: props,
	})
}

// Shutdown cleans up resources
func (a *App) Shutdown(ctx context.Context) {
	if a.taskQueue != nil {
		a.taskQueue.Close()
	}
	if a.phClient != nil {
		a.phClient.Close()
	}
}

// GetAppVersion returns the current application version
func (a *App) GetAppVersion() string {
	return AppVersion
}

// CheckFFmpeg reports whether a real encoder is available.
func (a *App) CheckFFmpeg() bool {
	return a.ffmpegPath != ""
}

func (a *App) emitLog(message string) {
	if a.ctx != nil {
		wailsRuntime.EventsEmit(a.ctx, "log", message)
	}
}

func (a *App) emitExportProgress(progress export.Progress) {
	if a.ctx != nil {
		wailsRuntime.EventsEmit(a.ctx, "export-progress", progress)
	}
}

// -- Project bindings --

// ListProjects returns all stored projects, newest first.
func (a *App) ListProjects() ([]*project.Project, error) {
	return a.projects.List()
}

// GetProject loads one project by ID.
func (a *App) GetProject(id string) (*project.Project, error) {
	return a.projects.Load(id)
}

// CreateProject creates and persists a new empty project using the user's
// default export settings.
func (a *App) CreateProject(name string) (*project.Project, error) {
	p := project.NewProject(name)
	p.Settings = config.ProjectSettings{
		FPS:           a.settings.DefaultFPS,
		Quality:       a.settings.DefaultQuality,
		CustomBitrate: a.settings.DefaultBitrate,
	}
	if err := a.projects.Save(p); err != nil {
		return nil, err
	}
	a.TrackEvent("project_created", nil)
	return p, nil
}

// SaveProject persists a project snapshot from the editor.
func (a *App) SaveProject(p *project.Project) error {
	if p == nil {
		return fmt.Errorf("nil project")
	}
	return a.projects.Save(p)
}

// DeleteProject removes a project.
func (a *App) DeleteProject(id string) error {
	return a.projects.Delete(id)
}

// -- Export bindings --

// jobForProject assembles the export job for one project.
func (a *App) jobForProject(p *project.Project) export.Job {
	duration := p.Duration
	if duration <= 0 {
		duration = timeline.TotalDuration(p.Tracks)
	}
	return export.Job{
		ProjectName:     p.Name,
		Duration:        duration,
		BackgroundColor: p.BackgroundColor,
		Tracks:          p.Tracks,
		Items:           p.MediaItems,
		Settings:        p.Settings,
		OutputDir:       a.settings.ExportPath,
		FontData:        a.fontData,
	}
}

// ExportProject runs a foreground export of one project and returns the
// delivered artifact. The fallback tiers guarantee a file; only a broken
// filesystem surfaces an error.
func (a *App) ExportProject(projectID string) (*export.Result, error) {
	a.mu.Lock()
	if a.exportRunning {
		a.mu.Unlock()
		return nil, fmt.Errorf("an export is already running")
	}
	a.exportRunning = true
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.exportRunning = false
		a.mu.Unlock()
	}()

	p, err := a.projects.Load(projectID)
	if err != nil {
		return nil, err
	}

	orch := export.NewOrchestrator(a.ffmpegPath, a.ffprobePath)
	orch.SetLogf(func(format string, args ...interface{}) {
		msg := fmt.Sprintf(format, args...)
		log.Print(msg)
		a.emitLog(msg)
	})
	orch.SetProgressCallback(func(progress export.Progress) {
		a.mu.Lock()
		a.lastState = orch.RecorderState()
		a.mu.Unlock()
		a.emitExportProgress(progress)
	})

	result, err := orch.ExportVideo(a.ctx, a.jobForProject(p))
	if err != nil {
		a.TrackEvent("export_failed", map[string]interface{}{"project": projectID})
		return nil, err
	}

	a.TrackEvent("export_completed", map[string]interface{}{
		"tier":    result.Tier.String(),
		"quality": p.Settings.Quality,
		"fps":     p.Settings.FPS,
	})

	if a.settings.AutoOpenExportDir {
		a.OpenExportFolder()
	}
	return result, nil
}

// GetExportState reports the most recent recorder state for UI polling.
func (a *App) GetExportState() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastState.String()
}

// ExecuteExportTask runs one queued task. Called by the queue worker.
func (a *App) ExecuteExportTask(ctx context.Context, task *taskqueue.ExportTask, progress chan<- export.Progress) error {
	p, err := a.projects.Load(task.ProjectID)
	if err != nil {
		return fmt.Errorf("resolve project: %w", err)
	}

	// Task settings override whatever the project currently carries.
	p.Settings = task.Settings

	orch := export.NewOrchestrator(a.ffmpegPath, a.ffprobePath)
	orch.SetLogf(func(format string, args ...interface{}) {
		log.Printf(format, args...)
	})
	orch.SetProgressCallback(func(pr export.Progress) {
		select {
		case progress <- pr:
		default:
		}
	})

	result, err := orch.ExportVideo(ctx, a.jobForProject(p))
	if err != nil {
		return err
	}

	task.Tier = result.Tier.String()
	task.OutputPath = result.OutputPath
	return nil
}

// -- Task queue bindings --

// AddExportTask queues a background export for a project.
func (a *App) AddExportTask(projectID string, settings config.ProjectSettings) (string, error) {
	if err := settings.Validate(); err != nil {
		return "", err
	}
	p, err := a.projects.Load(projectID)
	if err != nil {
		return "", err
	}

	task := taskqueue.NewExportTask(p.Name, projectID, settings)
	if err := a.taskQueue.AddTask(task); err != nil {
		return "", err
	}
	a.TrackEvent("export_queued", nil)
	return task.ID, nil
}

// GetTaskQueue returns all tasks in queue order.
func (a *App) GetTaskQueue() []*taskqueue.ExportTask {
	return a.taskQueue.GetAllTasks()
}

// GetTask returns a single task.
func (a *App) GetTask(id string) (*taskqueue.ExportTask, error) {
	return a.taskQueue.GetTask(id)
}

// DeleteTask removes a task.
func (a *App) DeleteTask(id string) error {
	return a.taskQueue.DeleteTask(id)
}

// StartTaskQueue begins processing queued exports.
func (a *App) StartTaskQueue() error {
	return a.taskQueue.StartQueue()
}

// PauseTaskQueue pauses after the current task.
func (a *App) PauseTaskQueue() error {
	return a.taskQueue.PauseQueue()
}

// StopTaskQueue stops immediately, cancelling the current task.
func (a *App) StopTaskQueue() {
	a.taskQueue.StopQueue()
}

// CancelTask cancels one task.
func (a *App) CancelTask(id string) error {
	return a.taskQueue.CancelTask(id)
}

// ReorderTask moves a task within the queue.
func (a *App) ReorderTask(id string, newIndex int) error {
	return a.taskQueue.ReorderTask(id, newIndex)
}

// GetTaskQueueStatus returns the live queue summary.
func (a *App) GetTaskQueueStatus() taskqueue.QueueStatus {
	return a.taskQueue.GetStatus()
}

// ClearCompletedTasks removes finished tasks.
func (a *App) ClearCompletedTasks() {
	a.taskQueue.ClearCompleted()
}

// -- Filesystem bindings --

// OpenExportFolder reveals the export directory in the system file manager.
func (a *App) OpenExportFolder() error {
	return a.OpenFolder(a.settings.ExportPath)
}

// OpenFolder reveals an arbitrary directory in the system file manager.
func (a *App) OpenFolder(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("folder does not exist: %s", path)
	}
	switch goruntime.GOOS {
	case "darwin":
		return exec.Command("open", path).Start()
	case "windows":
		return exec.Command("explorer", path).Start()
	default:
		return exec.Command("xdg-open", path).Start()
	}
}

// SelectExportFolder opens a native directory picker and persists the choice.
func (a *App) SelectExportFolder() (string, error) {
	dir, err := wailsRuntime.OpenDirectoryDialog(a.ctx, wailsRuntime.OpenDialogOptions{
		Title:            "Select Export Folder",
		DefaultDirectory: a.settings.ExportPath,
	})
	if err != nil || dir == "" {
		return a.settings.ExportPath, err
	}

	a.settings.ExportPath = dir
	if err := config.SaveSettings(a.settings); err != nil {
		return dir, err
	}
	return dir, nil
}
