// Package scheduler triggers the agent's recurring passes on fixed intervals.
// A pass that is still running when its next trigger fires is skipped.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrUnknownTask is returned for a task name that was never added.
var ErrUnknownTask = errors.New("unknown task")

// Logger is the structured logger the scheduler reports through.
type Logger interface {
	Error(msg string, context ...interface{})
	Info(msg string, context ...interface{})
	Debug(msg string, context ...interface{})
}

// TaskFunc runs one pass. ctx is canceled when the scheduler stops.
type TaskFunc func(ctx context.Context) error

// Task is a named recurring pass.
type Task struct {
	Name     string
	Interval time.Duration
	Run      TaskFunc
}

type entry struct {
	task    Task
	job     cron.Job
	entryID cron.EntryID
	lastRun time.Time
	lastErr error
}

// Scheduler runs Tasks on constant-delay schedules.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]*entry
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	log     Logger
	started bool

	// OnComplete, when set, is called after every pass.
	OnComplete func(name string, took time.Duration, err error)
}

// New creates a stopped scheduler.
func New(log Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    cron.New(cron.WithLogger(cronLogger{log})),
		entries: make(map[string]*entry),
		ctx:     ctx,
		cancel:  cancel,
		log:     log,
	}
}

// Add registers a task. Intervals are rounded down to whole seconds with a
// one second minimum.
func (s *Scheduler) Add(t Task) error {
	if t.Name == "" || t.Run == nil {
		return fmt.Errorf("task needs a name and a func")
	}
	if t.Interval <= 0 {
		return fmt.Errorf("task %s: interval must be positive", t.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[t.Name]; exists {
		return fmt.Errorf("task %s already added", t.Name)
	}

	e := &entry{task: t}
	e.job = cron.NewChain(cron.SkipIfStillRunning(cronLogger{s.log})).Then(cron.FuncJob(func() { s.runEntry(e) }))
	e.entryID = s.cron.Schedule(cron.Every(t.Interval), e.job)
	s.entries[t.Name] = e
	s.log.Debug("Task scheduled", "task", t.Name, "interval", t.Interval)
	return nil
}

func (s *Scheduler) runEntry(e *entry) {
	if s.ctx.Err() != nil {
		return
	}
	start := time.Now()
	err := e.task.Run(s.ctx)
	took := time.Since(start)

	s.mu.Lock()
	e.lastRun = start
	e.lastErr = err
	s.mu.Unlock()

	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Error("Task failed", "task", e.task.Name, "duration", took.Round(time.Millisecond), "error", err)
	} else {
		s.log.Debug("Task finished", "task", e.task.Name, "duration", took.Round(time.Millisecond))
	}
	if s.OnComplete != nil {
		s.OnComplete(e.task.Name, took, err)
	}
}

// Start begins firing schedules.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.cron.Start()
	s.log.Info("Scheduler started", "tasks", len(s.entries))
}

// RunNow triggers a task immediately on its own goroutine. The trigger is
// dropped if the task is already running.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		e.job.Run()
	}()
	return nil
}

// Reschedule changes a task's interval. A run in progress is not affected.
func (s *Scheduler) Reschedule(name string, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("task %s: interval must be positive", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	if e.task.Interval == interval {
		return nil
	}
	s.cron.Remove(e.entryID)
	e.task.Interval = interval
	e.entryID = s.cron.Schedule(cron.Every(interval), e.job)
	s.log.Info("Task rescheduled", "task", name, "interval", interval)
	return nil
}

// Interval returns the current interval of a task.
func (s *Scheduler) Interval(name string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok {
		return 0, false
	}
	return e.task.Interval, true
}

// RunResult is the outcome of a task's most recent pass.
type RunResult struct {
	StartedAt time.Time
	Err       error
}

// LastRun reports the most recent pass of a task. StartedAt is zero before
// the first pass finishes.
func (s *Scheduler) LastRun(name string) (RunResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok {
		return RunResult{}, false
	}
	return RunResult{StartedAt: e.lastRun, Err: e.lastErr}, true
}

// Stop cancels the task context and waits for running passes to return, or
// for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	cronDone := s.cron.Stop()

	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// cronLogger adapts Logger to cron.Logger.
type cronLogger struct {
	l Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	if msg == "skip" {
		c.l.Info("Skipping task trigger, previous run still active")
		return
	}
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
