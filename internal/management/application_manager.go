package management

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"rover/internal/console"
	"rover/internal/core"
	"rover/internal/hal"
	"rover/internal/logging"
	"rover/internal/rover"
	"rover/pkg/types"
)

// DefaultStatsInterval is how often ranger statistics are journaled.
const DefaultStatsInterval = time.Second

// component is a periodic or runnable task owner started by priority.
type component interface {
	Start(priority int) error
	Stop() error
	WaitForShutdown()
}

type scheduled struct {
	name     string
	priority int
	comp     component
}

// Status is a point-in-time view of every rover component.
type Status struct {
	Controller rover.ControllerState
	Ranger     rover.RangerStats
	Guard      *rover.GuardState
	Horn       rover.HornState
	LineActive bool
	Following  bool
	Console    console.RouterStats
	Dropped    uint64
}

// ApplicationManager builds the queues and control tasks from the
// infrastructure and runs them in priority order.
type ApplicationManager struct {
	infrastructure *InfrastructureManager

	commandQueue *core.CommandQueue
	hornQueue    *core.CommandQueue
	lineQueue    *core.CommandQueue

	motors     rover.Wheels
	ranger     *rover.DistanceRanger
	guard      *rover.CollisionGuard
	line       *rover.LineTracker
	horn       *rover.HornSignaler
	controller *rover.RobotController
	router     *console.Router
	console    *console.Console
	stats      *core.PeriodicTask

	components []scheduled
	started    []scheduled

	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *logging.Logger
}

// NewApplicationManager wires every component. The infrastructure must be started.
func NewApplicationManager(infrastructure *InfrastructureManager, systemConfig types.SystemConfig) (*ApplicationManager, error) {
	am := &ApplicationManager{
		infrastructure: infrastructure,
		commandQueue:   core.NewCommandQueue(),
		hornQueue:      core.NewCommandQueue(),
		lineQueue:      core.NewCommandQueue(),
		logger:         logging.GetLogger("application"),
	}

	pins := infrastructure.Pins()
	driver := infrastructure.PWM()
	if pins == nil || driver == nil {
		return nil, fmt.Errorf("infrastructure is not started")
	}
	tasks := systemConfig.Tasks

	// 1. 电机
	for _, w := range types.AllWheels() {
		ch := systemConfig.Motors.Channels(w)
		am.motors[w] = rover.NewMotorActuator(w.String()+"_motor", driver,
			hal.Channel(ch.Forward), hal.Channel(ch.Reverse), tasks.Motor.Period)
	}

	// 2. 测距
	trigger, err := pins.Output(systemConfig.Pins.Trigger)
	if err != nil {
		return nil, fmt.Errorf("failed to open trigger pin: %w", err)
	}
	echo, err := pins.EdgeInput(systemConfig.Pins.Echo)
	if err != nil {
		return nil, fmt.Errorf("failed to open echo pin: %w", err)
	}
	am.ranger = rover.NewDistanceRanger("distance_ranger", trigger, echo, tasks.Distance.Period,
		rover.WithEdgeTimeout(systemConfig.Ranger.EdgeTimeout),
		rover.WithTriggerPulse(systemConfig.Ranger.TriggerPulse))

	// 3. 防撞
	var speedHandler rover.SpeedCommandHandler = rover.PlainSpeed{}
	if systemConfig.Collision.Enabled {
		opts := []rover.GuardOption{rover.WithGuardPeriod(tasks.Collision.Period)}
		if j := infrastructure.Journal(); j != nil {
			opts = append(opts, rover.WithEpisodeRecorder(j))
		}
		am.guard = rover.NewCollisionGuard(am.commandQueue, am.hornQueue, am.ranger,
			systemConfig.Collision.MinimumDistance, opts...)
		speedHandler = rover.CollisionSensingSpeed{Guard: am.guard}
	}

	// 4. 循线
	left, err := pins.Input(systemConfig.Pins.LineLeft)
	if err != nil {
		return nil, fmt.Errorf("failed to open left line pin: %w", err)
	}
	center, err := pins.Input(systemConfig.Pins.LineCenter)
	if err != nil {
		return nil, fmt.Errorf("failed to open center line pin: %w", err)
	}
	right, err := pins.Input(systemConfig.Pins.LineRight)
	if err != nil {
		return nil, fmt.Errorf("failed to open right line pin: %w", err)
	}
	am.line = rover.NewLineTracker(am.lineQueue, am.commandQueue, left, center, right,
		rover.WithLinePeriod(tasks.LineTracker.Period))

	// 5. 喇叭
	hornPin, err := pins.Output(systemConfig.Pins.Horn)
	if err != nil {
		return nil, fmt.Errorf("failed to open horn pin: %w", err)
	}
	am.horn = rover.NewHornSignaler(am.hornQueue, hornPin, rover.WithHornPeriod(tasks.Horn.Period))

	// 6. 控制器
	am.controller = rover.NewRobotController(am.commandQueue, am.hornQueue, am.motors,
		rover.WithSpeedHandler(speedHandler),
		rover.WithMotorPriority(tasks.Motor.Priority))

	// 7. 命令入口
	am.router = console.NewRouter(am.commandQueue, am.lineQueue, am.hornQueue)
	if r := infrastructure.ConsoleInput(); r != nil {
		am.console = console.New(r, am.router)
	}

	am.components = []scheduled{
		{"robot_controller", tasks.Controller.Priority, am.controller},
	}
	if am.guard != nil {
		am.components = append(am.components, scheduled{"collision_guard", tasks.Collision.Priority, am.guard})
	}
	am.components = append(am.components,
		scheduled{"distance_ranger", tasks.Distance.Priority, am.ranger},
		scheduled{"line_tracker", tasks.LineTracker.Priority, am.line},
		scheduled{"horn", tasks.Horn.Priority, am.horn},
	)
	if j := infrastructure.Journal(); j != nil {
		am.stats = core.NewPeriodicTask("journal_stats", DefaultStatsInterval, func() {
			j.RecordStats(am.ranger.Snapshot())
		})
		am.components = append(am.components, scheduled{"journal_stats", 0, am.stats})
	}
	sortByPriority(am.components)

	am.logger.Info("ApplicationManager created",
		"components", len(am.components), "collision", systemConfig.Collision.Enabled,
		"console", am.console != nil)
	return am, nil
}

// sortByPriority orders components highest priority first, keeping the
// declared order for ties.
func sortByPriority(list []scheduled) {
	for i := 1; i < len(list); i++ {
		for j := i; j > 0 && list[j].priority > list[j-1].priority; j-- {
			list[j], list[j-1] = list[j-1], list[j]
		}
	}
}

// Start launches components highest priority first. A failure stops
// whatever already started.
func (am *ApplicationManager) Start(ctx context.Context) error {
	if am.cancel != nil {
		return fmt.Errorf("application is already running")
	}
	am.logger.Info("Starting application layer")

	for _, c := range am.components {
		if err := c.comp.Start(c.priority); err != nil {
			am.stopStarted()
			return fmt.Errorf("failed to start %s: %w", c.name, err)
		}
		am.started = append(am.started, c)
		am.logger.Debug("Component started", "component", c.name, "priority", c.priority)
	}

	runCtx, cancel := context.WithCancel(ctx)
	am.cancel = cancel
	if am.console != nil {
		am.wg.Add(1)
		go func() {
			defer am.wg.Done()
			if err := am.console.Run(runCtx); err != nil {
				am.logger.Error("Console stopped", "error", err)
			}
		}()
	}

	am.logger.Info("Application layer started successfully")
	return nil
}

func (am *ApplicationManager) stopStarted() []error {
	var errs []error
	for i := len(am.started) - 1; i >= 0; i-- {
		c := am.started[i]
		if err := c.comp.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("%s stop error: %w", c.name, err))
		}
	}
	for i := len(am.started) - 1; i >= 0; i-- {
		am.started[i].comp.WaitForShutdown()
	}
	am.started = nil
	return errs
}

// Stop halts components in reverse start order. The controller stops last
// and leaves every wheel in neutral.
func (am *ApplicationManager) Stop() error {
	if am.cancel == nil {
		return fmt.Errorf("application is not running")
	}
	am.logger.Info("Stopping application layer")

	am.cancel()
	am.wg.Wait()
	am.cancel = nil

	if errs := am.stopStarted(); len(errs) > 0 {
		return fmt.Errorf("application stop errors: %w", errors.Join(errs...))
	}

	am.logger.Info("Application layer stopped successfully")
	return nil
}

// ApplyConfig applies the runtime-adjustable settings of a reloaded config.
func (am *ApplicationManager) ApplyConfig(config types.SystemConfig) {
	if am.guard != nil && config.Collision.MinimumDistance > 0 {
		am.guard.SetMinimumAcceptableDistance(config.Collision.MinimumDistance)
		am.logger.Info("Collision threshold updated", "minimum_distance", config.Collision.MinimumDistance)
	}
}

// Submit routes a command word as if it had arrived on the console.
func (am *ApplicationManager) Submit(w core.Word) error {
	return am.router.Route(w)
}

func (am *ApplicationManager) Controller() *rover.RobotController { return am.controller }
func (am *ApplicationManager) Ranger() *rover.DistanceRanger       { return am.ranger }
func (am *ApplicationManager) Guard() *rover.CollisionGuard        { return am.guard }
func (am *ApplicationManager) Line() *rover.LineTracker            { return am.line }
func (am *ApplicationManager) Horn() *rover.HornSignaler           { return am.horn }
func (am *ApplicationManager) Router() *console.Router             { return am.router }

// Status 获取系统状态
func (am *ApplicationManager) Status() Status {
	s := Status{
		Controller: am.controller.Snapshot(),
		Ranger:     am.ranger.Snapshot(),
		Horn:       am.horn.State(),
		LineActive: am.line.Active(),
		Following:  am.line.FollowingEnabled(),
		Console:    am.router.Stats(),
		Dropped:    am.controller.Dropped(),
	}
	if am.guard != nil {
		gs := am.guard.State()
		s.Guard = &gs
	}
	return s
}
