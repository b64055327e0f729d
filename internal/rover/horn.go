package rover

import (
	"sync"
	"time"

	"rover/internal/core"
	"rover/internal/hal"
	"rover/internal/logging"
)

const (
	DefaultHornPeriod = 100 * time.Millisecond

	// hornStep is how far the pulse counter advances per invocation.
	hornStep = 125
)

type HornOption func(*HornSignaler)

// WithHornPeriod overrides the task period.
func WithHornPeriod(period time.Duration) HornOption {
	return func(h *HornSignaler) {
		h.period = period
	}
}

// HornState is a snapshot of the horn.
type HornState struct {
	Level   hal.Level
	Length  int
	Period  int
	Counter int
}

// HornSignaler drives the buzzer pin from horn queue words: steady on, off,
// or a repeating pulse.
type HornSignaler struct {
	queue  *core.CommandQueue
	pin    hal.DigitalOutput
	period time.Duration
	task   *core.PeriodicTask
	errs   *errorLimiter
	logger *logging.Logger

	mu      sync.Mutex
	level   hal.Level
	length  int
	repeat  int
	counter int
}

// NewHornSignaler drives pin low before returning.
func NewHornSignaler(queue *core.CommandQueue, pin hal.DigitalOutput, opts ...HornOption) *HornSignaler {
	h := &HornSignaler{
		queue:  queue,
		pin:    pin,
		period: DefaultHornPeriod,
		repeat: 1,
		logger: logging.GetLogger("horn"),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.errs = newErrorLimiter(h.logger, time.Second)
	h.setPin(hal.Low)
	h.task = core.NewPeriodicTask("horn", h.period, h.TaskMethod)
	return h
}

func (h *HornSignaler) TaskMethod() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.queue.HasItem() {
		w := h.queue.Dequeue()
		cmd, err := core.DecodeHorn(w)
		if err != nil {
			h.logger.Debug("Dropped horn word", "word", w, "error", err)
		}

		switch c := cmd.(type) {
		case core.HornMute:
			h.length, h.repeat = 0, 1
			h.setPinLocked(hal.Low)
		case core.HornSound:
			h.length, h.repeat = 0, 1
			h.setPinLocked(hal.High)
		case core.HornPulse:
			h.counter = 0
			h.length, h.repeat = c.Length, c.Period
		}
	}

	if h.length > 0 {
		h.pulseLocked()
	}
}

func (h *HornSignaler) pulseLocked() {
	switch {
	case h.counter == 0:
		h.setPinLocked(hal.High)
	case h.counter >= h.repeat:
		h.counter = -hornStep
	case h.counter >= h.length:
		h.setPinLocked(hal.Low)
	}
	h.counter += hornStep
}

func (h *HornSignaler) setPin(level hal.Level) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.setPinLocked(level)
}

func (h *HornSignaler) setPinLocked(level hal.Level) {
	h.level = level
	h.errs.Report("Failed to drive horn pin", h.pin.Set(level))
}

func (h *HornSignaler) State() HornState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return HornState{
		Level:   h.level,
		Length:  h.length,
		Period:  h.repeat,
		Counter: h.counter,
	}
}

func (h *HornSignaler) Start(priority int) error { return h.task.Start(priority) }

// Stop halts the task and silences the horn.
func (h *HornSignaler) Stop() error {
	if err := h.task.Stop(); err != nil {
		return err
	}
	h.task.WaitForShutdown()
	h.setPin(hal.Low)
	return nil
}

func (h *HornSignaler) WaitForShutdown() { h.task.WaitForShutdown() }
