package rover

import (
	"fmt"
	"sync"
	"time"

	"rover/internal/core"
	"rover/internal/hal"
	"rover/internal/logging"
)

const DefaultLinePeriod = 50 * time.Millisecond

// lineStopDebounce is how many all-high cycles are absorbed before a stop
// while following; the stop goes out on the cycle after.
const lineStopDebounce = 2

type LineOption func(*LineTracker)

// WithLinePeriod overrides the sensing period.
func WithLinePeriod(period time.Duration) LineOption {
	return func(l *LineTracker) {
		l.period = period
	}
}

// LineTracker reads three reflective line sensors and steers the robot along
// a dark line by placing direction words on the motor queue.
type LineTracker struct {
	controlQueue *core.CommandQueue
	motorQueue   *core.CommandQueue
	left         hal.DigitalInput
	center       hal.DigitalInput
	right        hal.DigitalInput
	period       time.Duration
	task         *core.PeriodicTask
	errs         *errorLimiter
	logger       *logging.Logger

	mu        sync.Mutex
	active    bool
	following bool
	stopCount int
}

func NewLineTracker(controlQueue, motorQueue *core.CommandQueue, left, center, right hal.DigitalInput, opts ...LineOption) *LineTracker {
	l := &LineTracker{
		controlQueue: controlQueue,
		motorQueue:   motorQueue,
		left:         left,
		center:       center,
		right:        right,
		period:       DefaultLinePeriod,
		logger:       logging.GetLogger("line_tracker"),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.errs = newErrorLimiter(l.logger, time.Second)
	l.task = core.NewPeriodicTask("line_tracker", l.period, l.TaskMethod)
	return l
}

func (l *LineTracker) TaskMethod() {
	if l.controlQueue.HasItem() {
		l.applyControl(l.controlQueue.Dequeue())
	}

	l.mu.Lock()
	active := l.active
	l.mu.Unlock()
	if !active {
		return
	}

	left, center, right, err := l.read()
	if err != nil {
		l.errs.Report("Failed to read line sensors", err)
		return
	}

	if code, ok := l.decide(left, center, right); ok {
		l.motorQueue.Enqueue(core.MotorDirection(code))
	}
}

func (l *LineTracker) applyControl(w core.Word) {
	ctrl, err := core.DecodeLineControl(w)
	if err != nil {
		l.logger.Debug("Dropped line control word", "word", w, "error", err)
		return
	}

	l.mu.Lock()
	switch ctrl {
	case core.StartLineSensing:
		l.active = true
	case core.StopLineSensing:
		l.active = false
	case core.EnableLineFollowing:
		l.following = true
	case core.DisableLineFollowing:
		l.following = false
	}
	l.mu.Unlock()

	l.logger.Info("Line tracker control", "command", ctrl)
}

func (l *LineTracker) read() (left, center, right hal.Level, err error) {
	if left, err = l.left.Get(); err != nil {
		return 0, 0, 0, fmt.Errorf("left sensor: %w", err)
	}
	if center, err = l.center.Get(); err != nil {
		return 0, 0, 0, fmt.Errorf("center sensor: %w", err)
	}
	if right, err = l.right.Get(); err != nil {
		return 0, 0, 0, fmt.Errorf("right sensor: %w", err)
	}
	return left, center, right, nil
}

// decide maps one sensor sample to a motion. A high sensor sits over the line.
func (l *LineTracker) decide(left, center, right hal.Level) (core.MotionCode, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	allHigh := left == hal.High && center == hal.High && right == hal.High

	if !l.following {
		if allHigh {
			return core.MotionStop, true
		}
		return 0, false
	}

	switch {
	case allHigh:
		if l.stopCount == lineStopDebounce {
			return core.MotionStop, true
		}
		l.stopCount++
		return 0, false
	case left == hal.Low && right == hal.Low && center == hal.High:
		l.stopCount = 0
		return core.MotionForward, true
	case left == hal.High && right == hal.Low:
		l.stopCount = 0
		return core.MotionLeft, true
	case left == hal.Low && right == hal.High:
		l.stopCount = 0
		return core.MotionRight, true
	}
	return 0, false
}

func (l *LineTracker) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

func (l *LineTracker) FollowingEnabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.following
}

func (l *LineTracker) Start(priority int) error { return l.task.Start(priority) }
func (l *LineTracker) Stop() error              { return l.task.Stop() }
func (l *LineTracker) WaitForShutdown()         { l.task.WaitForShutdown() }
