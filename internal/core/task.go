package core

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"rover/internal/logging"
)

// TaskBody is one invocation of a periodic task.
type TaskBody func()

// Task is the lifecycle shared by every task host.
type Task interface {
	Name() string
	Start(priority int) error
	Stop() error
	WaitForShutdown()
}

type taskHost struct {
	name     string
	priority int
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
	logger   *logging.Logger
}

func (h *taskHost) Name() string { return h.name }

// Priority returns the priority passed to the last Start.
func (h *taskHost) Priority() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.priority
}

func (h *taskHost) IsRunning() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}

func (h *taskHost) start(priority int, loop func(ctx context.Context)) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return fmt.Errorf("task %s is already running", h.name)
	}

	h.ctx, h.cancel = context.WithCancel(context.Background())
	h.priority = priority
	h.running = true

	h.wg.Add(1)
	go func(ctx context.Context) {
		defer h.wg.Done()
		loop(ctx)
	}(h.ctx)

	return nil
}

// Stop clears the continue flag. The loop observes it before its next
// invocation; an invocation already in progress runs to completion.
func (h *taskHost) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return fmt.Errorf("task %s is not running", h.name)
	}

	h.cancel()
	h.running = false
	return nil
}

// WaitForShutdown blocks until the loop goroutine has returned.
func (h *taskHost) WaitForShutdown() {
	h.wg.Wait()
}

// invoke runs fn, turning a panic into a log entry so the loop keeps going.
func (h *taskHost) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("Task body panicked",
				"task", h.name,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	fn()
}

// PeriodicTask calls its body once per period on a dedicated goroutine.
type PeriodicTask struct {
	taskHost
	period      time.Duration
	body        TaskBody
	invocations atomic.Uint64
}

func NewPeriodicTask(name string, period time.Duration, body TaskBody) *PeriodicTask {
	return &PeriodicTask{
		taskHost: taskHost{
			name:   name,
			logger: logging.GetLogger("task"),
		},
		period: period,
		body:   body,
	}
}

func (t *PeriodicTask) Period() time.Duration { return t.period }

// Invocations returns how many times the body has run.
func (t *PeriodicTask) Invocations() uint64 {
	return t.invocations.Load()
}

func (t *PeriodicTask) Start(priority int) error {
	if t.period <= 0 {
		return fmt.Errorf("task %s: period must be positive, got %v", t.name, t.period)
	}
	if err := t.start(priority, t.run); err != nil {
		return err
	}

	t.logger.Info("Periodic task started",
		"task", t.name,
		"period", t.period,
		"priority", priority)
	return nil
}

func (t *PeriodicTask) run(ctx context.Context) {
	ticker := time.NewTicker(t.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.logger.Debug("Periodic task exited", "task", t.name, "invocations", t.Invocations())
			return
		case <-ticker.C:
			// Stop may land while the tick was pending.
			if ctx.Err() != nil {
				continue
			}
			t.invoke(t.body)
			t.invocations.Add(1)
		}
	}
}

// RunnableTask hosts a loop that paces itself, such as a blocking dequeue.
// The loop must return once ctx is done.
type RunnableTask struct {
	taskHost
	run func(ctx context.Context)
}

func NewRunnableTask(name string, run func(ctx context.Context)) *RunnableTask {
	return &RunnableTask{
		taskHost: taskHost{
			name:   name,
			logger: logging.GetLogger("task"),
		},
		run: run,
	}
}

func (t *RunnableTask) Start(priority int) error {
	if err := t.start(priority, t.loop); err != nil {
		return err
	}

	t.logger.Info("Runnable task started", "task", t.name, "priority", priority)
	return nil
}

func (t *RunnableTask) loop(ctx context.Context) {
	for ctx.Err() == nil {
		t.invoke(func() { t.run(ctx) })
	}
	t.logger.Debug("Runnable task exited", "task", t.name)
}
