package sim

import (
	"sync"

	"rover/internal/hal"
)

// PWM is a simulated PWM board recording the last duty of every channel.
type PWM struct {
	mu        sync.Mutex
	duty      map[hal.Channel]int
	frequency int
	writes    int
	err       error
}

func NewPWM() *PWM {
	return &PWM{duty: make(map[hal.Channel]int)}
}

func (p *PWM) SetDutyCycle(ch hal.Channel, value int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.duty[ch] = value
	p.writes++
	return nil
}

func (p *PWM) SetFrequency(hz int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.frequency = hz
	return nil
}

func (p *PWM) Duty(ch hal.Channel) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duty[ch]
}

func (p *PWM) Frequency() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frequency
}

// Writes counts successful duty writes.
func (p *PWM) Writes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writes
}

// SetError makes every following write fail with err. Pass nil to heal.
func (p *PWM) SetError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}
