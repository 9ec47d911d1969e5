package scheduler

import (
	"time"

	"github.com/rs/zerolog"
)

// Task is a periodic job polled by the Scheduler.
type Task struct {
	name     string
	interval time.Duration
	run      func()
	enabled  bool
	next     time.Time
	sched    *Scheduler
}

// Name returns the task name.
func (t *Task) Name() string { return t.name }

// Enabled reports whether the task is armed.
func (t *Task) Enabled() bool { return t.enabled }

// Enable arms the task to run on the next round.
func (t *Task) Enable() {
	t.EnableDelayed(0)
}

// EnableDelayed arms the task to first run after d.
func (t *Task) EnableDelayed(d time.Duration) {
	t.enabled = true
	t.next = t.sched.now().Add(d)
}

// Disable disarms the task.
func (t *Task) Disable() {
	t.enabled = false
}

// Scheduler runs periodic tasks cooperatively: a task is never preempted and
// two tasks never run at the same time.
type Scheduler struct {
	tasks     []*Task
	now       func() time.Time
	suspended bool
	logger    zerolog.Logger
}

// New creates a scheduler using the given clock. A nil clock uses time.Now.
func New(now func() time.Time, logger zerolog.Logger) *Scheduler {
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		now:    now,
		logger: logger.With().Str("component", "scheduler").Logger(),
	}
}

// AddTask registers a disabled task.
func (s *Scheduler) AddTask(name string, interval time.Duration, run func()) *Task {
	t := &Task{
		name:     name,
		interval: interval,
		run:      run,
		sched:    s,
	}
	s.tasks = append(s.tasks, t)
	return t
}

// Execute runs one round: every enabled task that is due runs once, in
// registration order. It returns the number of tasks run.
func (s *Scheduler) Execute() int {
	if s.suspended {
		return 0
	}

	ran := 0
	for _, t := range s.tasks {
		if !t.enabled || s.now().Before(t.next) {
			continue
		}
		t.next = s.now().Add(t.interval)
		s.logger.Debug().Str("task", t.name).Msg("Running task")
		t.run()
		ran++

		// A task may suspend the scheduler, e.g. by entering the console.
		if s.suspended {
			break
		}
	}
	return ran
}

// DisableAll suspends the scheduler and disarms every task. Nothing runs
// until EnableAll.
func (s *Scheduler) DisableAll() {
	s.suspended = true
	for _, t := range s.tasks {
		t.Disable()
	}
	s.logger.Info().Msg("All tasks disabled")
}

// EnableAll resumes the scheduler and arms every task to run on the next round.
func (s *Scheduler) EnableAll() {
	s.suspended = false
	for _, t := range s.tasks {
		t.Enable()
	}
	s.logger.Info().Msg("All tasks enabled")
}

// Suspended reports whether DisableAll is in effect.
func (s *Scheduler) Suspended() bool {
	return s.suspended
}
