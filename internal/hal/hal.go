// Package hal is the hardware abstraction the rover components are written
// against: digital pins, edge-timestamped inputs and a shared PWM driver.
// Concrete drivers live in internal/hal/sim and internal/hardware.
package hal

import (
	"errors"
	"time"
)

// ErrEdgeTimeout is returned by EdgeInput.WaitForEdge when no edge arrived in time.
var ErrEdgeTimeout = errors.New("timed out waiting for edge")

// Level is the logic level of a digital pin.
type Level int

const (
	Low  Level = 0
	High Level = 1
)

func (l Level) String() string {
	if l == High {
		return "high"
	}
	return "low"
}

// Channel is an output channel of a PWM driver.
type Channel int

// Timestamp is an edge capture time in whole seconds plus nanoseconds.
type Timestamp struct {
	Sec  int64
	Nsec int64
}

// TimestampFrom converts a wall-clock time.
func TimestampFrom(t time.Time) Timestamp {
	return Timestamp{Sec: t.Unix(), Nsec: int64(t.Nanosecond())}
}

// Sub returns t - u, borrowing a second when the nanosecond field underflows.
func (t Timestamp) Sub(u Timestamp) Timestamp {
	d := Timestamp{Sec: t.Sec - u.Sec, Nsec: t.Nsec - u.Nsec}
	if d.Nsec < 0 {
		d.Sec--
		d.Nsec += int64(time.Second)
	}
	return d
}

func (t Timestamp) Seconds() float64 {
	return float64(t.Sec) + float64(t.Nsec)/1e9
}

func (t Timestamp) Duration() time.Duration {
	return time.Duration(t.Sec)*time.Second + time.Duration(t.Nsec)
}

type DigitalOutput interface {
	Set(level Level) error
}

type DigitalInput interface {
	Get() (Level, error)
}

// EdgeInput is an input armed for both edges. Each successful WaitForEdge
// refreshes the timestamp of the edge it observed.
type EdgeInput interface {
	WaitForEdge(timeout time.Duration) error
	RisingTimestamp() Timestamp
	FallingTimestamp() Timestamp
}

// PWMDriver is a multi-channel PWM board. Implementations must be safe for
// concurrent use; all four motor actuators share one handle.
type PWMDriver interface {
	SetDutyCycle(ch Channel, value int) error
	SetFrequency(hz int) error
}

// PinFactory hands out pin handles by number.
type PinFactory interface {
	Output(pin int) (DigitalOutput, error)
	Input(pin int) (DigitalInput, error)
	EdgeInput(pin int) (EdgeInput, error)
}
