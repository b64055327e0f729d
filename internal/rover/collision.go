package rover

import (
	"sync"
	"time"

	"rover/internal/core"
	"rover/internal/logging"
)

const (
	// DefaultMinimumDistance is the closest acceptable obstacle distance in mm.
	DefaultMinimumDistance = 150
	DefaultCollisionPeriod = 10 * time.Millisecond
)

// Episode is one run of consecutive too-close readings that stopped the robot.
type Episode struct {
	StartedAt time.Time
	EndedAt   time.Time
	Threshold int
	ClosestMM int
	Readings  int
}

// EpisodeRecorder is told when a collision episode opens and closes.
// Implementations must not block.
type EpisodeRecorder interface {
	EpisodeStarted(ep Episode)
	EpisodeEnded(ep Episode)
}

type GuardOption func(*CollisionGuard)

func WithEpisodeRecorder(r EpisodeRecorder) GuardOption {
	return func(g *CollisionGuard) {
		g.recorder = r
	}
}

// WithGuardPeriod overrides the evaluation period.
func WithGuardPeriod(period time.Duration) GuardOption {
	return func(g *CollisionGuard) {
		g.period = period
	}
}

// WithClock replaces time.Now for episode timestamps.
func WithClock(now func() time.Time) GuardOption {
	return func(g *CollisionGuard) {
		g.now = now
	}
}

// GuardState is a snapshot of the collision guard.
type GuardState struct {
	MinimumDistance int
	ViolationCount  int
	Alerting        bool
	Stops           uint64
}

// CollisionGuard stops the robot and sounds the horn when the ranger reports
// an obstacle closer than the minimum distance on consecutive cycles.
type CollisionGuard struct {
	motorQueue *core.CommandQueue
	hornQueue  *core.CommandQueue
	reader     DistanceReader
	recorder   EpisodeRecorder
	now        func() time.Time
	period     time.Duration
	task       *core.PeriodicTask
	logger     *logging.Logger

	mu       sync.Mutex
	minimum  int
	count    int
	alerting bool
	stops    uint64
	episode  *Episode
}

func NewCollisionGuard(motorQueue, hornQueue *core.CommandQueue, reader DistanceReader, minimum int, opts ...GuardOption) *CollisionGuard {
	g := &CollisionGuard{
		motorQueue: motorQueue,
		hornQueue:  hornQueue,
		reader:     reader,
		now:        time.Now,
		period:     DefaultCollisionPeriod,
		minimum:    DefaultMinimumDistance,
		logger:     logging.GetLogger("collision_guard"),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.SetMinimumAcceptableDistance(minimum)
	g.task = core.NewPeriodicTask("collision_guard", g.period, g.TaskMethod)
	return g
}

// SetMinimumAcceptableDistance changes the threshold. Non-positive values
// are ignored.
func (g *CollisionGuard) SetMinimumAcceptableDistance(mm int) {
	if mm <= 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.minimum = mm
}

func (g *CollisionGuard) MinimumAcceptableDistance() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.minimum
}

// TaskMethod evaluates one reading.
//
// The second consecutive violation stops the motors and sounds the horn, the
// third marks the guard as alerting. The horn is muted once readings recover
// while alerting. Counts beyond three issue nothing, so each episode yields
// exactly one stop.
func (g *CollisionGuard) TaskMethod() {
	distance := g.reader.CurrentDistance()

	var started, ended *Episode

	g.mu.Lock()
	if distance < g.minimum {
		g.count++
	} else {
		g.count = 0
	}

	switch {
	case g.count == 2:
		g.hornQueue.Enqueue(core.HornSoundWord)
		g.motorQueue.Enqueue(core.MotorDirection(core.MotionStop))
		g.stops++
		g.episode = &Episode{StartedAt: g.now(), Threshold: g.minimum, ClosestMM: distance, Readings: 2}
		ep := *g.episode
		started = &ep
	case g.count == 3:
		g.hornQueue.Enqueue(core.HornSoundWord)
		g.alerting = true
	case g.count <= 1 && g.alerting:
		g.hornQueue.Enqueue(core.HornMuteWord)
		g.alerting = false
	}

	if g.episode != nil && started == nil {
		if g.count == 0 {
			g.episode.EndedAt = g.now()
			ep := *g.episode
			ended = &ep
			g.episode = nil
		} else {
			g.episode.Readings++
			if distance < g.episode.ClosestMM {
				g.episode.ClosestMM = distance
			}
		}
	}
	g.mu.Unlock()

	if started != nil {
		g.logger.Warn("Obstacle too close, stopping",
			"distance_mm", distance, "minimum_mm", started.Threshold)
		if g.recorder != nil {
			g.recorder.EpisodeStarted(*started)
		}
	}
	if ended != nil {
		g.logger.Info("Obstacle cleared",
			"closest_mm", ended.ClosestMM, "duration", ended.EndedAt.Sub(ended.StartedAt))
		if g.recorder != nil {
			g.recorder.EpisodeEnded(*ended)
		}
	}
}

func (g *CollisionGuard) State() GuardState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return GuardState{
		MinimumDistance: g.minimum,
		ViolationCount:  g.count,
		Alerting:        g.alerting,
		Stops:           g.stops,
	}
}

func (g *CollisionGuard) Start(priority int) error { return g.task.Start(priority) }
func (g *CollisionGuard) Stop() error              { return g.task.Stop() }
func (g *CollisionGuard) WaitForShutdown()         { g.task.WaitForShutdown() }
