package rover

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rover/internal/core"
)

type fakeReader struct {
	mu       sync.Mutex
	distance int
}

func (f *fakeReader) set(mm int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.distance = mm
}

func (f *fakeReader) CurrentDistance() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.distance
}

type fakeRecorder struct {
	mu      sync.Mutex
	started []Episode
	ended   []Episode
}

func (f *fakeRecorder) EpisodeStarted(ep Episode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, ep)
}

func (f *fakeRecorder) EpisodeEnded(ep Episode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = append(f.ended, ep)
}

func drain(q *core.CommandQueue) []core.Word {
	var out []core.Word
	for q.HasItem() {
		out = append(out, q.Dequeue())
	}
	return out
}

func newTestGuard(opts ...GuardOption) (*CollisionGuard, *fakeReader, *core.CommandQueue, *core.CommandQueue) {
	motors, horn := core.NewCommandQueue(), core.NewCommandQueue()
	reader := &fakeReader{distance: NoReading}
	return NewCollisionGuard(motors, horn, reader, 150, opts...), reader, motors, horn
}

func TestCollisionGuard_OneStopPerEpisode(t *testing.T) {
	g, reader, motors, horn := newTestGuard()

	reader.set(100)
	g.TaskMethod()
	assert.Empty(t, drain(motors), "first violation is tolerated")
	assert.Empty(t, drain(horn))

	g.TaskMethod()
	assert.Equal(t, []core.Word{core.MotorDirection(core.MotionStop)}, drain(motors))
	assert.Equal(t, []core.Word{core.HornSoundWord}, drain(horn))

	g.TaskMethod()
	assert.Empty(t, drain(motors))
	assert.Equal(t, []core.Word{core.HornSoundWord}, drain(horn))
	assert.True(t, g.State().Alerting)

	for i := 0; i < 10; i++ {
		g.TaskMethod()
	}
	assert.Empty(t, drain(motors))
	assert.Empty(t, drain(horn))

	reader.set(400)
	g.TaskMethod()
	assert.Equal(t, []core.Word{core.HornMuteWord}, drain(horn))
	assert.Empty(t, drain(motors))

	state := g.State()
	assert.False(t, state.Alerting)
	assert.Equal(t, 0, state.ViolationCount)
	assert.Equal(t, uint64(1), state.Stops)
}

func TestCollisionGuard_SingleViolationIgnored(t *testing.T) {
	g, reader, motors, horn := newTestGuard()

	reader.set(100)
	g.TaskMethod()
	reader.set(300)
	g.TaskMethod()
	reader.set(100)
	g.TaskMethod()

	assert.Empty(t, drain(motors))
	assert.Empty(t, drain(horn))
}

func TestCollisionGuard_NoStopAtStartup(t *testing.T) {
	g, _, motors, _ := newTestGuard()
	for i := 0; i < 5; i++ {
		g.TaskMethod()
	}
	assert.Empty(t, drain(motors))
}

func TestCollisionGuard_Threshold(t *testing.T) {
	g, reader, motors, _ := newTestGuard()

	g.SetMinimumAcceptableDistance(0)
	g.SetMinimumAcceptableDistance(-10)
	assert.Equal(t, 150, g.MinimumAcceptableDistance())

	g.SetMinimumAcceptableDistance(500)
	reader.set(450)
	g.TaskMethod()
	g.TaskMethod()
	assert.Len(t, drain(motors), 1)

	t.Run("reading equal to minimum is acceptable", func(t *testing.T) {
		g, reader, motors, _ := newTestGuard()
		reader.set(150)
		g.TaskMethod()
		g.TaskMethod()
		assert.Empty(t, drain(motors))
	})
}

func TestCollisionGuard_EpisodeRecorded(t *testing.T) {
	rec := &fakeRecorder{}
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	g, reader, _, _ := newTestGuard(
		WithEpisodeRecorder(rec),
		WithClock(func() time.Time {
			clock = clock.Add(10 * time.Millisecond)
			return clock
		}),
	)

	for _, mm := range []int{120, 110, 90, 130} {
		reader.set(mm)
		g.TaskMethod()
	}
	require.Len(t, rec.started, 1)
	assert.Equal(t, 2, rec.started[0].Readings)
	assert.Equal(t, 150, rec.started[0].Threshold)
	assert.Empty(t, rec.ended)

	reader.set(600)
	g.TaskMethod()

	require.Len(t, rec.ended, 1)
	ep := rec.ended[0]
	assert.Equal(t, 4, ep.Readings)
	assert.Equal(t, 90, ep.ClosestMM)
	assert.True(t, ep.EndedAt.After(ep.StartedAt))
}

func TestCollisionGuard_PeriodicTask(t *testing.T) {
	g, reader, motors, _ := newTestGuard(WithGuardPeriod(time.Millisecond))
	reader.set(50)

	require.NoError(t, g.Start(35))
	require.Eventually(t, motors.HasItem, time.Second, time.Millisecond)
	require.NoError(t, g.Stop())
	g.WaitForShutdown()

	assert.Equal(t, []core.Word{core.MotorDirection(core.MotionStop)}, drain(motors))
}
