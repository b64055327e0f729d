package rover

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"rover/internal/core"
	"rover/internal/hal"
	"rover/internal/logging"
)

const (
	// MaxValidDistance is the far end of the sensor's usable envelope in mm.
	MaxValidDistance = 2000
	// NoReading is the min sentinel after a reset; it is also the current
	// distance before the first valid measurement.
	NoReading = 2500

	speedOfSoundMetresPerSecond = 344

	DefaultEdgeTimeout  = 10 * time.Millisecond
	DefaultTriggerPulse = 10 * time.Microsecond
)

// ErrOutOfRange marks a measurement discarded as an artifact.
var ErrOutOfRange = errors.New("distance out of range")

// DistanceReader is the view of the ranger the collision guard needs.
type DistanceReader interface {
	CurrentDistance() int
}

// RangerStats is a consistent copy of the ranger's statistics.
type RangerStats struct {
	Current        int    `json:"current"`
	Min            int    `json:"min"`
	Max            int    `json:"max"`
	Average        int    `json:"average"`
	Sum            int64  `json:"sum"`
	ReadCount      uint64 `json:"read_count"`
	ValidReadCount uint64 `json:"valid_read_count"`
	DistanceCount  uint64 `json:"distance_count"`
}

// DistanceRanger measures distance with an ultrasonic trigger/echo pair.
type DistanceRanger struct {
	trigger      hal.DigitalOutput
	echo         hal.EdgeInput
	edgeTimeout  time.Duration
	triggerPulse time.Duration
	task         *core.PeriodicTask
	errs         *errorLimiter
	logger       *logging.Logger

	mu             sync.Mutex
	current        int
	min            int
	max            int
	sum            int64
	readCount      uint64
	validReadCount uint64
	distanceCount  uint64
}

type RangerOption func(*DistanceRanger)

// WithEdgeTimeout bounds each echo edge wait.
func WithEdgeTimeout(d time.Duration) RangerOption {
	return func(r *DistanceRanger) {
		if d > 0 {
			r.edgeTimeout = d
		}
	}
}

// WithTriggerPulse sets how long the trigger is held high.
func WithTriggerPulse(d time.Duration) RangerOption {
	return func(r *DistanceRanger) {
		if d > 0 {
			r.triggerPulse = d
		}
	}
}

func NewDistanceRanger(name string, trigger hal.DigitalOutput, echo hal.EdgeInput, period time.Duration, opts ...RangerOption) *DistanceRanger {
	r := &DistanceRanger{
		trigger:      trigger,
		echo:         echo,
		edgeTimeout:  DefaultEdgeTimeout,
		triggerPulse: DefaultTriggerPulse,
		current:      NoReading,
		logger:       logging.GetLogger("distance_ranger"),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.errs = newErrorLimiter(r.logger, time.Second)
	r.ResetDistanceRanges()

	r.task = core.NewPeriodicTask(name, period, r.TaskMethod)
	return r
}

// TaskMethod takes one measurement. Misses and artifacts only skip the cycle.
func (r *DistanceRanger) TaskMethod() {
	_, err := r.Measure()
	switch {
	case err == nil, errors.Is(err, hal.ErrEdgeTimeout), errors.Is(err, ErrOutOfRange):
	default:
		r.errs.Report("Distance measurement failed", err)
	}
}

// Measure runs one trigger/echo cycle and returns the distance in mm.
func (r *DistanceRanger) Measure() (int, error) {
	r.mu.Lock()
	r.readCount++
	r.mu.Unlock()

	if err := r.trigger.Set(hal.High); err != nil {
		return 0, fmt.Errorf("trigger high: %w", err)
	}
	time.Sleep(r.triggerPulse)
	if err := r.trigger.Set(hal.Low); err != nil {
		return 0, fmt.Errorf("trigger low: %w", err)
	}

	// The falling edge is waited for even when the rising wait failed.
	riseErr := r.echo.WaitForEdge(r.edgeTimeout)
	var start hal.Timestamp
	if riseErr == nil {
		start = r.echo.RisingTimestamp()
	}
	fallErr := r.echo.WaitForEdge(r.edgeTimeout)
	var end hal.Timestamp
	if fallErr == nil {
		end = r.echo.FallingTimestamp()
	}

	if riseErr != nil {
		return 0, fmt.Errorf("rising edge: %w", riseErr)
	}
	if fallErr != nil {
		return 0, fmt.Errorf("falling edge: %w", fallErr)
	}

	distance := DistanceFromEcho(end.Sub(start))
	if distance < 0 || distance > MaxValidDistance {
		return distance, fmt.Errorf("%w: %d mm", ErrOutOfRange, distance)
	}

	r.record(distance)
	return distance, nil
}

// DistanceFromEcho converts an echo pulse width to mm, truncating.
func DistanceFromEcho(elapsed hal.Timestamp) int {
	return int(1000 * speedOfSoundMetresPerSecond * (elapsed.Seconds() / 2))
}

func (r *DistanceRanger) record(distance int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.current = distance
	r.distanceCount++
	r.validReadCount++
	r.sum += int64(distance)

	if distance > r.max {
		r.max = distance
	}
	if distance < r.min {
		r.min = distance
	}
}

// ResetDistanceRanges restarts the statistics. The current reading is kept.
func (r *DistanceRanger) ResetDistanceRanges() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.min = NoReading
	r.max = 0
	r.sum = 0
	r.readCount = 0
	r.validReadCount = 0
	r.distanceCount = 0
}

func (r *DistanceRanger) CurrentDistance() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

func (r *DistanceRanger) MinDistance() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.min
}

func (r *DistanceRanger) MaxDistance() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.max
}

// AverageDistance is sum / count in integer arithmetic, or 0 with no readings.
func (r *DistanceRanger) AverageDistance() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.averageLocked()
}

func (r *DistanceRanger) averageLocked() int {
	if r.distanceCount == 0 {
		return 0
	}
	return int(r.sum / int64(r.distanceCount))
}

func (r *DistanceRanger) ReadCount() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readCount
}

func (r *DistanceRanger) ValidReadCount() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.validReadCount
}

func (r *DistanceRanger) DistanceCount() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.distanceCount
}

func (r *DistanceRanger) Snapshot() RangerStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return RangerStats{
		Current:        r.current,
		Min:            r.min,
		Max:            r.max,
		Average:        r.averageLocked(),
		Sum:            r.sum,
		ReadCount:      r.readCount,
		ValidReadCount: r.validReadCount,
		DistanceCount:  r.distanceCount,
	}
}

func (r *DistanceRanger) Start(priority int) error { return r.task.Start(priority) }
func (r *DistanceRanger) Stop() error              { return r.task.Stop() }
func (r *DistanceRanger) WaitForShutdown()         { r.task.WaitForShutdown() }
