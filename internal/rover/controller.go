package rover

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"rover/internal/core"
	"rover/internal/logging"
	"rover/pkg/types"
)

const (
	// InitialSpeed is applied when the controller is built.
	InitialSpeed = 50

	DefaultMotorPriority = 25
)

// Wheels holds the four motor actuators indexed by types.Wheel.
type Wheels [4]Actuator

// motionPlan is the per-wheel direction set and horn word for one motion code.
type motionPlan struct {
	frontLeft, frontRight, rearLeft, rearRight types.Direction
	horn                                       core.Word
}

var reversePulse = core.HornPulseWord(600, 300)

var motionPlans = map[core.MotionCode]motionPlan{
	core.MotionForward:      {types.Forward, types.Forward, types.Forward, types.Forward, core.HornMuteWord},
	core.MotionReverse:      {types.Reverse, types.Reverse, types.Reverse, types.Reverse, reversePulse},
	core.MotionLeft:         {types.Reverse, types.Forward, types.Reverse, types.Forward, core.HornMuteWord},
	core.MotionForwardLeft:  {types.Forward, types.Forward, types.Neutral, types.Forward, core.HornMuteWord},
	core.MotionReverseLeft:  {types.Neutral, types.Reverse, types.Reverse, types.Reverse, reversePulse},
	core.MotionRight:        {types.Forward, types.Reverse, types.Forward, types.Reverse, core.HornMuteWord},
	core.MotionForwardRight: {types.Forward, types.Forward, types.Forward, types.Neutral, core.HornMuteWord},
	core.MotionReverseRight: {types.Reverse, types.Neutral, types.Reverse, types.Reverse, reversePulse},
	core.MotionStop:         {types.Neutral, types.Neutral, types.Neutral, types.Neutral, core.HornMuteWord},
}

type ControllerOption func(*RobotController)

// WithSpeedHandler replaces the plain speed strategy.
func WithSpeedHandler(h SpeedCommandHandler) ControllerOption {
	return func(c *RobotController) {
		if h != nil {
			c.speedHandler = h
		}
	}
}

// WithMotorPriority sets the priority the actuators are started with.
func WithMotorPriority(priority int) ControllerOption {
	return func(c *RobotController) {
		c.motorPriority = priority
	}
}

// WheelState is one wheel in a ControllerState.
type WheelState struct {
	Direction types.Direction
	Speed     int
}

// ControllerState is a snapshot of the controller and its wheels.
type ControllerState struct {
	Speed    int
	Steering int
	Wheels   [4]WheelState
}

// RobotController consumes drive words from its command queue and converts
// them into per-wheel direction and speed settings.
type RobotController struct {
	queue         *core.CommandQueue
	hornQueue     *core.CommandQueue
	motors        Wheels
	speedHandler  SpeedCommandHandler
	motorPriority int
	loop          *core.RunnableTask
	logger        *logging.Logger

	mu       sync.Mutex
	speed    int
	steering int
	dropped  uint64
}

// NewRobotController wires the four actuators and applies InitialSpeed
// directly, bypassing the speed strategy.
func NewRobotController(queue, hornQueue *core.CommandQueue, motors Wheels, opts ...ControllerOption) *RobotController {
	c := &RobotController{
		queue:         queue,
		hornQueue:     hornQueue,
		motors:        motors,
		speedHandler:  PlainSpeed{},
		motorPriority: DefaultMotorPriority,
		logger:        logging.GetLogger("robot_controller"),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.loop = core.NewRunnableTask("robot_controller", c.run)
	c.applySpeed(InitialSpeed)
	return c
}

func (c *RobotController) run(ctx context.Context) {
	w, err := c.queue.DequeueContext(ctx)
	if err != nil {
		return
	}
	c.Dispatch(w)
}

// Dispatch applies one command word. Words of other classes are dropped.
func (c *RobotController) Dispatch(w core.Word) {
	cmd, err := core.DecodeDrive(w)
	if err != nil {
		c.mu.Lock()
		c.dropped++
		c.mu.Unlock()
		c.logger.Debug("Dropped command word", "word", w, "error", err)
		return
	}

	switch cmd := cmd.(type) {
	case core.MotionCommand:
		c.ProcessMotion(cmd.Code)
	case core.SpeedCommand:
		c.ProcessSpeed(cmd.Duty)
	case core.SteeringCommand:
		c.ProcessSteering(cmd.Level)
	}
}

// ProcessMotion sets every wheel's direction for code and signals the horn.
// Unknown codes change nothing.
func (c *RobotController) ProcessMotion(code core.MotionCode) {
	plan, ok := motionPlans[code]
	if !ok {
		c.logger.Debug("Unknown motion code", "code", code)
		return
	}

	c.motors[types.FrontLeft].SetDirection(plan.frontLeft)
	c.motors[types.FrontRight].SetDirection(plan.frontRight)
	c.motors[types.RearLeft].SetDirection(plan.rearLeft)
	c.motors[types.RearRight].SetDirection(plan.rearRight)

	if c.hornQueue != nil {
		c.hornQueue.Enqueue(plan.horn)
	}
	c.logger.Debug("Motion applied", "motion", code)
}

// ProcessSpeed runs a speed value through the configured speed strategy.
func (c *RobotController) ProcessSpeed(value int) {
	c.speedHandler.ProcessSpeed(value, c.applySpeed)
}

// applySpeed stores value and pushes the steered per-wheel speeds.
func (c *RobotController) applySpeed(value int) {
	if value < 0 {
		value = 0
	} else if value > core.MaxDuty {
		value = core.MaxDuty
	}

	c.mu.Lock()
	c.speed = value
	steering := c.steering
	c.mu.Unlock()

	left, right := WheelSpeeds(value, steering)
	for _, w := range types.AllWheels() {
		if w.IsLeft() {
			c.motors[w].SetSpeed(left)
		} else {
			c.motors[w].SetSpeed(right)
		}
	}
}

// WheelSpeeds splits speed between the two sides. Negative steering slows
// the left side, positive the right, truncating toward zero.
func WheelSpeeds(speed, steering int) (left, right int) {
	switch {
	case steering < 0:
		return speed * (100 + steering) / 100, speed
	case steering > 0:
		return speed, speed * (100 - steering) / 100
	default:
		return speed, speed
	}
}

// ProcessSteering sets the steering bias from a 0..200 level (100 is
// straight) and reapplies the current speed.
func (c *RobotController) ProcessSteering(level int) {
	if level < 0 {
		level = 0
	} else if level > core.MaxSteeringLevel {
		level = core.MaxSteeringLevel
	}

	c.mu.Lock()
	c.steering = level - 100
	speed := c.speed
	c.mu.Unlock()

	c.ProcessSpeed(speed)
}

// Start launches the actuators, then the dispatch loop.
func (c *RobotController) Start(priority int) error {
	for _, w := range types.AllWheels() {
		if err := c.motors[w].Start(c.motorPriority); err != nil {
			return fmt.Errorf("failed to start %s motor: %w", w, err)
		}
	}
	if err := c.loop.Start(priority); err != nil {
		return fmt.Errorf("failed to start dispatch loop: %w", err)
	}
	return nil
}

// Stop ends the dispatch loop and leaves every wheel in neutral.
func (c *RobotController) Stop() error {
	var errs []error

	if c.loop.IsRunning() {
		if err := c.loop.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, w := range types.AllWheels() {
		if err := c.motors[w].Stop(); err != nil {
			errs = append(errs, fmt.Errorf("%s motor: %w", w, err))
		}
	}

	return errors.Join(errs...)
}

func (c *RobotController) WaitForShutdown() {
	for _, w := range types.AllWheels() {
		c.motors[w].WaitForShutdown()
	}
	c.loop.WaitForShutdown()
}

func (c *RobotController) Snapshot() ControllerState {
	c.mu.Lock()
	state := ControllerState{Speed: c.speed, Steering: c.steering}
	c.mu.Unlock()

	for _, w := range types.AllWheels() {
		state.Wheels[w] = WheelState{
			Direction: c.motors[w].Direction(),
			Speed:     c.motors[w].Speed(),
		}
	}
	return state
}

// Dropped counts words discarded for an unknown class.
func (c *RobotController) Dropped() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}
