package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Task is a named function run on a cron schedule.
type Task struct {
	ID   string                          // unique identifier
	Spec string                          // cron expression or descriptor ("@every 5m")
	Run  func(ctx context.Context) error // invoked on each tick
}

// CronEngine abstracts the cron scheduler for testability.
// The real implementation wraps robfig/cron/v3.
type CronEngine interface {
	AddFunc(spec string, cmd func()) (int, error)
	Remove(id int)
	Start()
	Stop()
}

// Option is a functional option for configuring a Scheduler.
type Option func(*Scheduler)

// WithLogger sets a structured logger for the Scheduler. If l is nil it is
// ignored and the default slog logger is used.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// Sentinel errors for validation.
var (
	ErrEmptyTaskID   = errors.New("scheduler: task ID must not be empty")
	ErrEmptySpec     = errors.New("scheduler: cron spec must not be empty")
	ErrNilRun        = errors.New("scheduler: task Run must not be nil")
	ErrDuplicateTask = errors.New("scheduler: task with this ID already exists")
)

type taskEntry struct {
	task    Task
	entryID int
}

// Scheduler runs Tasks on their cron schedules.
type Scheduler struct {
	engine CronEngine
	logger *slog.Logger
	mu     sync.RWMutex
	tasks  map[string]taskEntry
}

// NewScheduler creates a Scheduler on engine, which must not be nil.
func NewScheduler(engine CronEngine, opts ...Option) *Scheduler {
	if engine == nil {
		panic("scheduler: engine must not be nil")
	}
	s := &Scheduler{
		engine: engine,
		tasks:  make(map[string]taskEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

// Add registers a task. It fails on an invalid task, a duplicate ID, or a
// spec the engine rejects.
func (s *Scheduler) Add(task Task) error {
	switch {
	case task.ID == "":
		return ErrEmptyTaskID
	case task.Spec == "":
		return ErrEmptySpec
	case task.Run == nil:
		return ErrNilRun
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[task.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, task.ID)
	}

	captured := task
	entryID, err := s.engine.AddFunc(task.Spec, func() {
		s.log().Debug("task fired", "task_id", captured.ID, "spec", captured.Spec)
		if runErr := captured.Run(context.Background()); runErr != nil {
			s.log().Warn("task failed", "task_id", captured.ID, "error", runErr)
		}
	})
	if err != nil {
		return fmt.Errorf("scheduler: failed to register task %q: %w", task.ID, err)
	}

	s.tasks[task.ID] = taskEntry{task: task, entryID: entryID}
	s.log().Info("task registered", "task_id", task.ID, "spec", task.Spec)
	return nil
}

// Remove unregisters a task by ID.
func (s *Scheduler) Remove(id string) error {
	if id == "" {
		return ErrEmptyTaskID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.tasks[id]
	if !exists {
		return fmt.Errorf("scheduler: task %q not found", id)
	}
	s.engine.Remove(entry.entryID)
	delete(s.tasks, id)
	s.log().Info("task removed", "task_id", id)
	return nil
}

// IDs returns the registered task IDs in sorted order.
func (s *Scheduler) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.tasks))
	for id := range s.tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Start begins the cron scheduler.
func (s *Scheduler) Start() { s.engine.Start() }

// Stop halts the cron scheduler.
func (s *Scheduler) Stop() { s.engine.Stop() }
