package sim

import (
	"sync"
	"time"

	"rover/internal/hal"
)

// EchoMode selects which edges the simulated sensor produces after a trigger.
type EchoMode int

const (
	EchoBoth EchoMode = iota
	EchoNone
	EchoRisingOnly
)

const speedOfSoundMMPerSecond = 344000

// EchoDuration is the echo pulse width an ideal sensor reports for mm.
// It is rounded up so the ranger's truncating conversion yields mm again.
func EchoDuration(mm int) time.Duration {
	ns := (int64(mm)*2*int64(time.Second) + speedOfSoundMMPerSecond - 1) / speedOfSoundMMPerSecond
	return time.Duration(ns)
}

// EchoSensor models an HC-SR04 style ranger. A high-to-low transition on
// the trigger pin queues a rising and a falling echo edge separated by the
// configured pulse width.
type EchoSensor struct {
	clock func() time.Time

	mu       sync.Mutex
	mode     EchoMode
	width    time.Duration
	pending  []edge
	rising   hal.Timestamp
	falling  hal.Timestamp
	triggers int
}

type edge struct {
	rising bool
	at     hal.Timestamp
}

func NewEchoSensor(clock func() time.Time) *EchoSensor {
	if clock == nil {
		clock = time.Now
	}
	return &EchoSensor{clock: clock, mode: EchoNone}
}

// Attach makes trigger's falling edge fire the sensor.
func (s *EchoSensor) Attach(trigger *Pin) {
	trigger.OnChange(func(prev, next hal.Level) {
		if prev == hal.High && next == hal.Low {
			s.fire()
		}
	})
}

// SetDistance makes every following measurement report mm.
func (s *EchoSensor) SetDistance(mm int) {
	s.SetEchoWidth(EchoDuration(mm))
}

// SetEchoWidth sets the raw echo pulse width, allowing out-of-range readings.
func (s *EchoSensor) SetEchoWidth(width time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.width = width
	s.mode = EchoBoth
}

func (s *EchoSensor) SetMode(mode EchoMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
}

// Triggers counts how many trigger pulses the sensor has seen.
func (s *EchoSensor) Triggers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.triggers
}

func (s *EchoSensor) fire() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.triggers++
	s.pending = s.pending[:0]
	if s.mode == EchoNone {
		return
	}

	start := s.clock()
	s.pending = append(s.pending, edge{rising: true, at: hal.TimestampFrom(start)})
	if s.mode == EchoBoth {
		s.pending = append(s.pending, edge{rising: false, at: hal.TimestampFrom(start.Add(s.width))})
	}
}

// WaitForEdge consumes the next queued edge. With none queued it reports
// ErrEdgeTimeout straight away instead of sleeping for timeout.
func (s *EchoSensor) WaitForEdge(timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		return hal.ErrEdgeTimeout
	}

	e := s.pending[0]
	s.pending = s.pending[1:]
	if e.rising {
		s.rising = e.at
	} else {
		s.falling = e.at
	}
	return nil
}

func (s *EchoSensor) RisingTimestamp() hal.Timestamp {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rising
}

func (s *EchoSensor) FallingTimestamp() hal.Timestamp {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.falling
}
