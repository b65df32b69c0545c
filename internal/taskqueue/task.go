package taskqueue

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"clipstudio/internal/config"
	"clipstudio/internal/export"
)

// TaskStatus represents the current status of a task
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// ExportTask is one queued export request. The project is referenced by ID
// and resolved at execution time so edits made while the task waits are
// picked up when it runs.
type ExportTask struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Status      TaskStatus `json:"status"`
	Priority    int        `json:"priority"` // higher runs earlier
	CreatedAt   string     `json:"createdAt"`
	StartedAt   string     `json:"startedAt,omitempty"`
	CompletedAt string     `json:"completedAt,omitempty"`

	ProjectID string                 `json:"projectId"`
	Settings  config.ProjectSettings `json:"settings"`

	Progress export.Progress `json:"progress"`

	// Tier records which export strategy delivered the artifact.
	Tier       string `json:"tier,omitempty"`
	OutputPath string `json:"outputPath,omitempty"`
	Error      string `json:"error,omitempty"`
}

// NewExportTask creates a pending task for one project.
func NewExportTask(name, projectID string, settings config.ProjectSettings) *ExportTask {
	return &ExportTask{
		ID:        uuid.NewString(),
		Name:      name,
		Status:    TaskStatusPending,
		CreatedAt: time.Now().Format(time.RFC3339),
		ProjectID: projectID,
		Settings:  settings,
	}
}

// SaveToFile persists the task as JSON under dir.
func (t *ExportTask) SaveToFile(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create task directory: %w", err)
	}

	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	path := filepath.Join(dir, t.ID+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write task file: %w", err)
	}
	return nil
}

// LoadFromFile loads a task from a JSON file.
func LoadFromFile(path string) (*ExportTask, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read task file: %w", err)
	}

	var task ExportTask
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	return &task, nil
}

// DeleteFile removes the task file from disk.
func (t *ExportTask) DeleteFile(dir string) error {
	return os.Remove(filepath.Join(dir, t.ID+".json"))
}

// MarkStarted marks the task as started.
func (t *ExportTask) MarkStarted() {
	t.StartedAt = time.Now().Format(time.RFC3339)
	t.Status = TaskStatusRunning
}

// MarkCompleted marks the task as completed with its delivered artifact.
func (t *ExportTask) MarkCompleted(tier, outputPath string) {
	t.CompletedAt = time.Now().Format(time.RFC3339)
	t.Status = TaskStatusCompleted
	t.Tier = tier
	t.OutputPath = outputPath
	t.Progress.Percent = 100
}

// MarkFailed marks the task as failed with an error.
func (t *ExportTask) MarkFailed(err error) {
	t.CompletedAt = time.Now().Format(time.RFC3339)
	t.Status = TaskStatusFailed
	if err != nil {
		t.Error = err.Error()
	}
}

// MarkCancelled marks the task as cancelled.
func (t *ExportTask) MarkCancelled() {
	t.CompletedAt = time.Now().Format(time.RFC3339)
	t.Status = TaskStatusCancelled
}

// Finished reports whether the task reached a terminal status.
func (t *ExportTask) Finished() bool {
	switch t.Status {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	}
	return false
}
