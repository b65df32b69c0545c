package audio

import (
	"context"
	"log"
	"sort"
	"sync"
)

// Scheduler orders mix operations on a shared logical clock. Each task is
// registered with the timeline offset it contributes at; Run executes them
// in ascending offset order. Offsets are logical positions in the mix, not
// wall-clock delays, so the whole plan runs as fast as decoding allows and
// tests can drive it without sleeping.
type Scheduler struct {
	mu       sync.Mutex
	tasks    []scheduledTask
	canceled bool
	logf     func(format string, args ...interface{})
}

type scheduledTask struct {
	offset float64
	seq    int
	name   string
	fn     func(offset float64) error
}

func NewScheduler() *Scheduler {
	return &Scheduler{logf: log.Printf}
}

// SetLogf overrides the scheduler's log sink.
func (s *Scheduler) SetLogf(logf func(string, ...interface{})) {
	if logf != nil {
		s.logf = logf
	}
}

// At registers fn to run at the given timeline offset in seconds.
func (s *Scheduler) At(offset float64, name string, fn func(offset float64) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, scheduledTask{
		offset: offset,
		seq:    len(s.tasks),
		name:   name,
		fn:     fn,
	})
}

// Len reports the number of registered tasks.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Cancel stops Run before its next task. Already-running tasks finish.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	s.canceled = true
	s.mu.Unlock()
}

// Run executes all registered tasks in offset order. Equal offsets keep
// registration order. A failing task is logged and skipped so one bad
// source never silences the whole mix. Run returns early only when the
// context is done or Cancel was called.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	tasks := make([]scheduledTask, len(s.tasks))
	copy(tasks, s.tasks)
	s.canceled = false
	s.mu.Unlock()

	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].offset != tasks[j].offset {
			return tasks[i].offset < tasks[j].offset
		}
		return tasks[i].seq < tasks[j].seq
	})

	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.mu.Lock()
		canceled := s.canceled
		s.mu.Unlock()
		if canceled {
			return context.Canceled
		}

		if err := task.fn(task.offset); err != nil {
			s.logf("[Audio] task %s at %.3fs: %v - skipped", task.name, task.offset, err)
		}
	}
	return nil
}
