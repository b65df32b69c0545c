package taskqueue

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"

	json "github.com/goccy/go-json"

	"clipstudio/internal/export"
)

// QueueState is the persisted part of the queue: task order and pause flag.
// The running flag is saved for diagnostics but never restored; the user
// starts processing explicitly after launch.
type QueueState struct {
	TaskOrder []string `json:"taskOrder"`
	IsRunning bool     `json:"isRunning"`
	IsPaused  bool     `json:"isPaused"`
}

// QueueStatus is the live queue summary emitted to the UI.
type QueueStatus struct {
	IsRunning      bool   `json:"isRunning"`
	IsPaused       bool   `json:"isPaused"`
	CurrentTaskID  string `json:"currentTaskID"`
	TotalTasks     int    `json:"totalTasks"`
	CompletedTasks int    `json:"completedTasks"`
	PendingTasks   int    `json:"pendingTasks"`
}

// TaskExecutor runs one export task. Implemented by the app, which resolves
// the project and drives the export orchestrator.
type TaskExecutor interface {
	ExecuteExportTask(ctx context.Context, task *ExportTask, progress chan<- export.Progress) error
}

// QueueManager owns the persistent export queue: ordering, persistence and
// the background worker that feeds tasks to the executor one at a time.
type QueueManager struct {
	tasks       map[string]*ExportTask
	taskOrder   []string
	mu          sync.RWMutex
	storagePath string

	isRunning   bool
	isPaused    bool
	currentTask *ExportTask

	stopWorker chan struct{}
	taskAdded  chan struct{}

	ctx        context.Context
	cancelFunc context.CancelFunc

	executor TaskExecutor

	onQueueUpdate  func(status QueueStatus)
	onTaskProgress func(taskID string, progress export.Progress)
	onTaskComplete func(taskID string, success bool, err error)
	onNotification func(title, message, notifType string)

	workerWg sync.WaitGroup
}

// NewQueueManager creates a queue manager and restores persisted tasks.
func NewQueueManager(storagePath string) *QueueManager {
	ctx, cancel := context.WithCancel(context.Background())

	qm := &QueueManager{
		tasks:       make(map[string]*ExportTask),
		taskOrder:   make([]string, 0),
		storagePath: storagePath,
		stopWorker:  make(chan struct{}),
		taskAdded:   make(chan struct{}, 1),
		ctx:         ctx,
		cancelFunc:  cancel,
	}

	if err := qm.loadState(); err != nil {
		log.Printf("[TaskQueue] Failed to load queue state: %v", err)
	}
	return qm
}

// SetExecutor sets the task executor.
func (qm *QueueManager) SetExecutor(executor TaskExecutor) {
	qm.executor = executor
}

// SetCallbacks sets event callbacks.
func (qm *QueueManager) SetCallbacks(
	onQueueUpdate func(QueueStatus),
	onTaskProgress func(string, export.Progress),
	onTaskComplete func(string, bool, error),
	onNotification func(string, string, string),
) {
	qm.onQueueUpdate = onQueueUpdate
	qm.onTaskProgress = onTaskProgress
	qm.onTaskComplete = onTaskComplete
	qm.onNotification = onNotification
}

func (qm *QueueManager) getStoragePaths() (queueFile, tasksDir string) {
	queueFile = filepath.Join(qm.storagePath, "queue.json")
	tasksDir = filepath.Join(qm.storagePath, "tasks")
	return
}

func (qm *QueueManager) loadState() error {
	queueFile, tasksDir := qm.getStoragePaths()

	if data, err := os.ReadFile(queueFile); err == nil {
		var state QueueState
		if err := json.Unmarshal(data, &state); err == nil {
			qm.taskOrder = state.TaskOrder
			qm.isPaused = state.IsPaused
		}
	}

	if entries, err := os.ReadDir(tasksDir); err == nil {
		for _, entry := range entries {
			if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
				continue
			}
			task, err := LoadFromFile(filepath.Join(tasksDir, entry.Name()))
			if err != nil {
				log.Printf("[TaskQueue] Failed to load task %s: %v", entry.Name(), err)
				continue
			}
			// A task that was mid-run when the app quit goes back to
			// pending; its export never finished.
			if task.Status == TaskStatusRunning {
				task.Status = TaskStatusPending
			}
			qm.tasks[task.ID] = task
		}
	}

	validOrder := make([]string, 0, len(qm.taskOrder))
	for _, id := range qm.taskOrder {
		if _, exists := qm.tasks[id]; exists {
			validOrder = append(validOrder, id)
		}
	}
	qm.taskOrder = validOrder

	for id := range qm.tasks {
		found := false
		for _, orderID := range qm.taskOrder {
			if orderID == id {
				found = true
				break
			}
		}
		if !found {
			qm.taskOrder = append(qm.taskOrder, id)
		}
	}

	log.Printf("[TaskQueue] Loaded %d tasks from disk", len(qm.tasks))
	return nil
}

func (qm *QueueManager) saveState() error {
	queueFile, _ := qm.getStoragePaths()

	if err := os.MkdirAll(filepath.Dir(queueFile), 0755); err != nil {
		return fmt.Errorf("failed to create queue directory: %w", err)
	}

	state := QueueState{
		TaskOrder: qm.taskOrder,
		IsRunning: qm.isRunning,
		IsPaused:  qm.isPaused,
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal queue state: %w", err)
	}
	if err := os.WriteFile(queueFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write queue state: %w", err)
	}
	return nil
}

func (qm *QueueManager) saveTask(task *ExportTask) error {
	_, tasksDir := qm.getStoragePaths()
	return task.SaveToFile(tasksDir)
}

// AddTask appends a task to the queue and persists it.
func (qm *QueueManager) AddTask(task *ExportTask) error {
	qm.mu.Lock()
	qm.tasks[task.ID] = task
	qm.taskOrder = append(qm.taskOrder, task.ID)

	if err := qm.saveTask(task); err != nil {
		qm.mu.Unlock()
		return err
	}
	if err := qm.saveState(); err != nil {
		qm.mu.Unlock()
		return err
	}
	qm.mu.Unlock()

	qm.emitQueueUpdate()

	select {
	case qm.taskAdded <- struct{}{}:
	default:
	}

	log.Printf("[TaskQueue] Added task: %s (%s)", task.Name, task.ID)
	return nil
}

// GetTask returns a task by ID.
func (qm *QueueManager) GetTask(id string) (*ExportTask, error) {
	qm.mu.RLock()
	defer qm.mu.RUnlock()

	task, exists := qm.tasks[id]
	if !exists {
		return nil, fmt.Errorf("task not found: %s", id)
	}
	return task, nil
}

// GetAllTasks returns all tasks in queue order.
func (qm *QueueManager) GetAllTasks() []*ExportTask {
	qm.mu.RLock()
	defer qm.mu.RUnlock()

	result := make([]*ExportTask, 0, len(qm.taskOrder))
	for _, id := range qm.taskOrder {
		if task, exists := qm.tasks[id]; exists {
			result = append(result, task)
		}
	}
	return result
}

// DeleteTask removes a task from the queue and disk.
func (qm *QueueManager) DeleteTask(id string) error {
	qm.mu.Lock()
	task, exists := qm.tasks[id]
	if !exists {
		qm.mu.Unlock()
		return fmt.Errorf("task not found: %s", id)
	}
	if task.Status == TaskStatusRunning {
		qm.mu.Unlock()
		return fmt.Errorf("cannot delete running task - cancel it first")
	}

	newOrder := make([]string, 0, len(qm.taskOrder)-1)
	for _, taskID := range qm.taskOrder {
		if taskID != id {
			newOrder = append(newOrder, taskID)
		}
	}
	qm.taskOrder = newOrder
	delete(qm.tasks, id)

	_, tasksDir := qm.getStoragePaths()
	task.DeleteFile(tasksDir)
	qm.saveState()
	qm.mu.Unlock()

	qm.emitQueueUpdate()
	log.Printf("[TaskQueue] Deleted task: %s", id)
	return nil
}

// ReorderTask moves a task to a new position in the queue.
func (qm *QueueManager) ReorderTask(id string, newIndex int) error {
	qm.mu.Lock()
	currentIndex := -1
	for i, taskID := range qm.taskOrder {
		if taskID == id {
			currentIndex = i
			break
		}
	}
	if currentIndex == -1 {
		qm.mu.Unlock()
		return fmt.Errorf("task not found: %s", id)
	}

	if newIndex < 0 {
		newIndex = 0
	}
	if newIndex >= len(qm.taskOrder) {
		newIndex = len(qm.taskOrder) - 1
	}

	newOrder := make([]string, 0, len(qm.taskOrder))
	for i, taskID := range qm.taskOrder {
		if i != currentIndex {
			newOrder = append(newOrder, taskID)
		}
	}

	finalOrder := make([]string, 0, len(qm.taskOrder))
	for i, taskID := range newOrder {
		if i == newIndex {
			finalOrder = append(finalOrder, id)
		}
		finalOrder = append(finalOrder, taskID)
	}
	if newIndex >= len(newOrder) {
		finalOrder = append(finalOrder, id)
	}
	qm.taskOrder = finalOrder

	qm.saveState()
	qm.mu.Unlock()

	qm.emitQueueUpdate()
	return nil
}

// CancelTask cancels a running or pending task.
func (qm *QueueManager) CancelTask(id string) error {
	qm.mu.Lock()
	task, exists := qm.tasks[id]
	if !exists {
		qm.mu.Unlock()
		return fmt.Errorf("task not found: %s", id)
	}
	if task.Finished() {
		qm.mu.Unlock()
		return fmt.Errorf("task already finished")
	}

	task.MarkCancelled()

	if qm.currentTask != nil && qm.currentTask.ID == id {
		qm.cancelFunc()
		qm.ctx, qm.cancelFunc = context.WithCancel(context.Background())
	}

	qm.saveTask(task)
	qm.mu.Unlock()

	qm.emitQueueUpdate()
	log.Printf("[TaskQueue] Cancelled task: %s", id)
	return nil
}

// StartQueue begins processing tasks.
func (qm *QueueManager) StartQueue() error {
	qm.mu.Lock()
	if qm.isRunning && !qm.isPaused {
		qm.mu.Unlock()
		return fmt.Errorf("queue is already running")
	}
	qm.isRunning = true
	qm.isPaused = false
	qm.saveState()
	qm.mu.Unlock()

	qm.workerWg.Add(1)
	go qm.worker()

	qm.emitQueueUpdate()
	log.Printf("[TaskQueue] Queue started")
	return nil
}

// PauseQueue pauses the queue after the current task completes.
func (qm *QueueManager) PauseQueue() error {
	qm.mu.Lock()
	if !qm.isRunning {
		qm.mu.Unlock()
		return fmt.Errorf("queue is not running")
	}
	qm.isPaused = true
	qm.saveState()
	qm.mu.Unlock()

	qm.emitQueueUpdate()
	log.Printf("[TaskQueue] Queue paused (will stop after current task)")
	return nil
}

// StopQueue stops the queue immediately, cancelling the current task.
func (qm *QueueManager) StopQueue() {
	qm.mu.Lock()
	qm.isRunning = false
	qm.isPaused = false
	qm.saveState()
	qm.mu.Unlock()

	qm.cancelFunc()
	qm.mu.Lock()
	qm.ctx, qm.cancelFunc = context.WithCancel(context.Background())
	qm.mu.Unlock()

	select {
	case qm.stopWorker <- struct{}{}:
	default:
	}

	qm.emitQueueUpdate()
	log.Printf("[TaskQueue] Queue stopped")
}

// GetStatus returns the current queue status.
func (qm *QueueManager) GetStatus() QueueStatus {
	qm.mu.RLock()
	defer qm.mu.RUnlock()

	completed := 0
	pending := 0
	for _, task := range qm.tasks {
		switch task.Status {
		case TaskStatusCompleted:
			completed++
		case TaskStatusPending:
			pending++
		}
	}

	currentTaskID := ""
	if qm.currentTask != nil {
		currentTaskID = qm.currentTask.ID
	}

	return QueueStatus{
		IsRunning:      qm.isRunning,
		IsPaused:       qm.isPaused,
		CurrentTaskID:  currentTaskID,
		TotalTasks:     len(qm.tasks),
		CompletedTasks: completed,
		PendingTasks:   pending,
	}
}

// worker processes tasks one at a time until the queue drains or stops.
func (qm *QueueManager) worker() {
	defer qm.workerWg.Done()
	log.Printf("[TaskQueue] Worker started")
	defer log.Printf("[TaskQueue] Worker stopped")

	for {
		select {
		case <-qm.stopWorker:
			return
		default:
		}

		qm.mu.Lock()
		if !qm.isRunning || qm.isPaused {
			qm.mu.Unlock()
			return
		}

		// Highest priority pending task wins; queue order breaks ties.
		var nextTask *ExportTask
		for _, id := range qm.taskOrder {
			task := qm.tasks[id]
			if task.Status == TaskStatusPending {
				if nextTask == nil || task.Priority > nextTask.Priority {
					nextTask = task
				}
			}
		}

		if nextTask == nil {
			qm.isRunning = false
			qm.saveState()
			completed := 0
			for _, t := range qm.tasks {
				if t.Status == TaskStatusCompleted {
					completed++
				}
			}
			qm.mu.Unlock()

			if qm.onNotification != nil {
				qm.onNotification("Export Queue Complete",
					fmt.Sprintf("%d tasks finished", completed), "success")
			}
			qm.emitQueueUpdate()
			return
		}

		qm.currentTask = nextTask
		nextTask.MarkStarted()
		qm.saveTask(nextTask)
		taskCtx := qm.ctx
		qm.mu.Unlock()

		qm.emitQueueUpdate()
		log.Printf("[TaskQueue] Executing task: %s (%s)", nextTask.Name, nextTask.ID)

		progressChan := make(chan export.Progress, 10)
		progressDone := make(chan struct{})
		go func() {
			defer close(progressDone)
			for progress := range progressChan {
				qm.mu.Lock()
				nextTask.Progress = progress
				qm.saveTask(nextTask)
				qm.mu.Unlock()

				if qm.onTaskProgress != nil {
					qm.onTaskProgress(nextTask.ID, progress)
				}
			}
		}()

		var execErr error
		if qm.executor != nil {
			execErr = qm.executor.ExecuteExportTask(taskCtx, nextTask, progressChan)
		} else {
			execErr = fmt.Errorf("no executor configured")
		}
		close(progressChan)
		<-progressDone

		qm.mu.Lock()
		if execErr != nil {
			if taskCtx.Err() != nil {
				nextTask.MarkCancelled()
			} else {
				nextTask.MarkFailed(execErr)
				log.Printf("[TaskQueue] Task failed: %s - %v", nextTask.ID, execErr)
				if qm.onNotification != nil {
					qm.onNotification("Export Failed",
						fmt.Sprintf("Task '%s' failed: %v", nextTask.Name, execErr), "error")
				}
			}
		} else if !nextTask.Finished() {
			// The executor fills Tier and OutputPath before returning.
			nextTask.MarkCompleted(nextTask.Tier, nextTask.OutputPath)
			log.Printf("[TaskQueue] Task completed: %s", nextTask.ID)
		}
		qm.saveTask(nextTask)
		qm.currentTask = nil
		qm.ctx, qm.cancelFunc = context.WithCancel(context.Background())
		qm.mu.Unlock()

		if qm.onTaskComplete != nil {
			qm.onTaskComplete(nextTask.ID, execErr == nil, execErr)
		}
		qm.emitQueueUpdate()
	}
}

// emitQueueUpdate pushes a fresh status snapshot to the UI callback. It
// takes qm.mu through GetStatus, so callers must not hold the lock.
func (qm *QueueManager) emitQueueUpdate() {
	if qm.onQueueUpdate != nil {
		qm.onQueueUpdate(qm.GetStatus())
	}
}

// SortByPriority reorders pending tasks by priority, higher first.
func (qm *QueueManager) SortByPriority() {
	qm.mu.Lock()
	pendingTasks := make([]*ExportTask, 0)
	nonPendingOrder := make([]string, 0)
	for _, id := range qm.taskOrder {
		task := qm.tasks[id]
		if task.Status == TaskStatusPending {
			pendingTasks = append(pendingTasks, task)
		} else {
			nonPendingOrder = append(nonPendingOrder, id)
		}
	}

	sort.SliceStable(pendingTasks, func(i, j int) bool {
		return pendingTasks[i].Priority > pendingTasks[j].Priority
	})

	newOrder := nonPendingOrder
	for _, task := range pendingTasks {
		newOrder = append(newOrder, task.ID)
	}
	qm.taskOrder = newOrder

	qm.saveState()
	qm.mu.Unlock()

	qm.emitQueueUpdate()
}

// ClearCompleted removes all finished tasks from the queue and disk.
func (qm *QueueManager) ClearCompleted() {
	qm.mu.Lock()
	_, tasksDir := qm.getStoragePaths()

	newOrder := make([]string, 0)
	for _, id := range qm.taskOrder {
		task := qm.tasks[id]
		if task.Finished() {
			task.DeleteFile(tasksDir)
			delete(qm.tasks, id)
		} else {
			newOrder = append(newOrder, id)
		}
	}
	qm.taskOrder = newOrder

	qm.saveState()
	qm.mu.Unlock()

	qm.emitQueueUpdate()
	log.Printf("[TaskQueue] Cleared finished tasks")
}

// Close shuts down the queue manager and waits for the worker to exit.
func (qm *QueueManager) Close() {
	qm.StopQueue()
	qm.workerWg.Wait()
}
