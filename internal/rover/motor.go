// Package rover contains the control components of the robot: motor
// actuators, the distance ranger, collision guard, line tracker, horn and the
// robot controller that ties them together through command queues.
package rover

import (
	"fmt"
	"sync"
	"time"

	"rover/internal/core"
	"rover/internal/hal"
	"rover/internal/logging"
	"rover/pkg/types"
)

// Actuator is what the robot controller needs from a wheel motor.
type Actuator interface {
	SetSpeed(speed int)
	SetDirection(dir types.Direction)
	Speed() int
	Direction() types.Direction
	Start(priority int) error
	Stop() error
	WaitForShutdown()
}

// MotorActuator drives one H-bridge through two PWM channels, one per
// rotation sense. Settings are applied to the hardware by its own periodic
// task.
type MotorActuator struct {
	name    string
	driver  hal.PWMDriver
	forward hal.Channel
	reverse hal.Channel
	task    *core.PeriodicTask
	errs    *errorLimiter
	logger  *logging.Logger

	mu        sync.Mutex
	speed     int
	direction types.Direction
}

// NewMotorActuator binds a motor to a shared PWM driver handle.
func NewMotorActuator(name string, driver hal.PWMDriver, forward, reverse hal.Channel, period time.Duration) *MotorActuator {
	m := &MotorActuator{
		name:    name,
		driver:  driver,
		forward: forward,
		reverse: reverse,
		logger:  logging.GetLogger("motor").With("motor", name),
	}
	m.errs = newErrorLimiter(m.logger, time.Second)
	m.task = core.NewPeriodicTask(name, period, func() {
		m.errs.Report("Failed to write motor output", m.TaskMethod())
	})
	return m
}

func (m *MotorActuator) Name() string { return m.name }

func (m *MotorActuator) SetSpeed(speed int) {
	if speed < 0 {
		speed = 0
	} else if speed > core.MaxDuty {
		speed = core.MaxDuty
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.speed = speed
}

func (m *MotorActuator) SetDirection(dir types.Direction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.direction = dir
}

func (m *MotorActuator) Speed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.speed
}

func (m *MotorActuator) Direction() types.Direction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.direction
}

// TaskMethod writes the current setting to the two channels. Only one
// channel is ever non-zero.
func (m *MotorActuator) TaskMethod() error {
	m.mu.Lock()
	speed, dir := m.speed, m.direction
	m.mu.Unlock()

	var fwd, rev int
	switch dir {
	case types.Forward:
		fwd = speed
	case types.Reverse:
		rev = speed
	}

	if err := m.driver.SetDutyCycle(m.forward, fwd); err != nil {
		return fmt.Errorf("motor %s forward channel %d: %w", m.name, m.forward, err)
	}
	if err := m.driver.SetDutyCycle(m.reverse, rev); err != nil {
		return fmt.Errorf("motor %s reverse channel %d: %w", m.name, m.reverse, err)
	}
	return nil
}

func (m *MotorActuator) Start(priority int) error {
	return m.task.Start(priority)
}

// Stop halts the task, then leaves the motor in neutral.
func (m *MotorActuator) Stop() error {
	if m.task.IsRunning() {
		if err := m.task.Stop(); err != nil {
			return err
		}
		m.task.WaitForShutdown()
	}

	m.SetDirection(types.Neutral)
	if err := m.TaskMethod(); err != nil {
		return fmt.Errorf("failed to neutralise motor: %w", err)
	}
	return nil
}

func (m *MotorActuator) WaitForShutdown() {
	m.task.WaitForShutdown()
}

// Invocations reports how often the periodic task has run.
func (m *MotorActuator) Invocations() uint64 {
	return m.task.Invocations()
}
