// Package sim provides in-memory hardware for tests and the simulator: pins
// that record every level written, an ultrasonic echo model and a PWM board.
package sim

import (
	"fmt"
	"sync"

	"rover/internal/hal"
)

// Pin is a simulated GPIO line usable as both output and input.
type Pin struct {
	number int

	mu        sync.Mutex
	level     hal.Level
	history   []hal.Level
	listeners []func(prev, next hal.Level)
	err       error
}

func NewPin(number int) *Pin {
	return &Pin{number: number}
}

func (p *Pin) Number() int { return p.number }

func (p *Pin) Set(level hal.Level) error {
	p.mu.Lock()
	if p.err != nil {
		err := p.err
		p.mu.Unlock()
		return fmt.Errorf("pin %d: %w", p.number, err)
	}
	prev := p.level
	p.level = level
	p.history = append(p.history, level)
	listeners := make([]func(prev, next hal.Level), len(p.listeners))
	copy(listeners, p.listeners)
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(prev, level)
	}
	return nil
}

func (p *Pin) Get() (hal.Level, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return hal.Low, fmt.Errorf("pin %d: %w", p.number, p.err)
	}
	return p.level, nil
}

// Level returns the current level without going through the fault path.
func (p *Pin) Level() hal.Level {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level
}

// Drive forces the level seen by readers, as external hardware would.
// It is not recorded in the history and does not notify listeners.
func (p *Pin) Drive(level hal.Level) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.level = level
}

// History returns every level written through Set, oldest first.
func (p *Pin) History() []hal.Level {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]hal.Level, len(p.history))
	copy(out, p.history)
	return out
}

func (p *Pin) ClearHistory() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history = nil
}

// SetError makes subsequent Set and Get calls fail with err. Pass nil to heal.
func (p *Pin) SetError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// OnChange registers fn to run after every Set.
func (p *Pin) OnChange(fn func(prev, next hal.Level)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}
