package sim

import (
	"fmt"
	"sync"
	"time"

	"rover/internal/hal"
)

// Board is a simulated controller board implementing hal.PinFactory.
type Board struct {
	clock func() time.Time

	mu     sync.Mutex
	pins   map[int]*Pin
	echoes map[int]*EchoSensor
}

func NewBoard() *Board {
	return &Board{
		clock:  time.Now,
		pins:   make(map[int]*Pin),
		echoes: make(map[int]*EchoSensor),
	}
}

// Pin returns the simulated pin with the given number, creating it if needed.
func (b *Board) Pin(number int) *Pin {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pinLocked(number)
}

func (b *Board) pinLocked(number int) *Pin {
	p, ok := b.pins[number]
	if !ok {
		p = NewPin(number)
		b.pins[number] = p
	}
	return p
}

// AttachEcho wires an echo sensor on echoPin to fire from triggerPin.
func (b *Board) AttachEcho(triggerPin, echoPin int) *EchoSensor {
	b.mu.Lock()
	defer b.mu.Unlock()

	if s, ok := b.echoes[echoPin]; ok {
		return s
	}
	s := NewEchoSensor(b.clock)
	s.Attach(b.pinLocked(triggerPin))
	b.echoes[echoPin] = s
	return s
}

// Echo returns the sensor attached to echoPin, if any.
func (b *Board) Echo(echoPin int) (*EchoSensor, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.echoes[echoPin]
	return s, ok
}

// SetLevel drives an input pin from outside, such as a line sensor.
func (b *Board) SetLevel(number int, level hal.Level) {
	b.Pin(number).Drive(level)
}

func (b *Board) Output(pin int) (hal.DigitalOutput, error) {
	return b.Pin(pin), nil
}

func (b *Board) Input(pin int) (hal.DigitalInput, error) {
	return b.Pin(pin), nil
}

func (b *Board) EdgeInput(pin int) (hal.EdgeInput, error) {
	s, ok := b.Echo(pin)
	if !ok {
		return nil, fmt.Errorf("no echo sensor attached to pin %d", pin)
	}
	return s, nil
}
