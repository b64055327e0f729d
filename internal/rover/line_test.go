package rover

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"rover/internal/core"
	"rover/internal/hal"
	"rover/internal/hal/sim"
)

type lineRig struct {
	tracker *LineTracker
	board   *sim.Board
	control *core.CommandQueue
	motors  *core.CommandQueue
}

func newLineRig() lineRig {
	board := sim.NewBoard()
	control, motors := core.NewCommandQueue(), core.NewCommandQueue()
	tracker := NewLineTracker(control, motors, board.Pin(5), board.Pin(6), board.Pin(13))
	return lineRig{tracker: tracker, board: board, control: control, motors: motors}
}

func (r lineRig) sense(left, center, right hal.Level) []core.Word {
	r.board.SetLevel(5, left)
	r.board.SetLevel(6, center)
	r.board.SetLevel(13, right)
	r.tracker.TaskMethod()
	return drain(r.motors)
}

func (r lineRig) apply(c core.LineControl) {
	r.control.Enqueue(c.Word())
	r.tracker.TaskMethod()
	drain(r.motors)
}

const (
	lo = hal.Low
	hi = hal.High
)

func motorWord(code core.MotionCode) []core.Word {
	return []core.Word{core.MotorDirection(code)}
}

func TestLineTracker_InactiveDoesNothing(t *testing.T) {
	rig := newLineRig()
	assert.Empty(t, rig.sense(hi, hi, hi))
	assert.False(t, rig.tracker.Active())
}

func TestLineTracker_SensingOnlyStopsOnAllHigh(t *testing.T) {
	rig := newLineRig()
	rig.apply(core.StartLineSensing)
	assert.True(t, rig.tracker.Active())
	assert.False(t, rig.tracker.FollowingEnabled())

	assert.Empty(t, rig.sense(lo, hi, lo))
	assert.Empty(t, rig.sense(hi, lo, lo))
	assert.Equal(t, motorWord(core.MotionStop), rig.sense(hi, hi, hi))
	assert.Equal(t, motorWord(core.MotionStop), rig.sense(hi, hi, hi))
}

func TestLineTracker_FollowingDecisions(t *testing.T) {
	rig := newLineRig()
	rig.apply(core.StartLineSensing)
	rig.apply(core.EnableLineFollowing)

	tests := []struct {
		name                string
		left, center, right hal.Level
		want                []core.Word
	}{
		{"centred", lo, hi, lo, motorWord(core.MotionForward)},
		{"drifted right", hi, lo, lo, motorWord(core.MotionLeft)},
		{"drifted right on centre", hi, hi, lo, motorWord(core.MotionLeft)},
		{"drifted left", lo, lo, hi, motorWord(core.MotionRight)},
		{"drifted left on centre", lo, hi, hi, motorWord(core.MotionRight)},
		{"line lost", lo, lo, lo, nil},
		{"outer sensors only", hi, lo, hi, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rig.sense(tt.left, tt.center, tt.right))
		})
	}
}

func TestLineTracker_StopDebounce(t *testing.T) {
	rig := newLineRig()
	rig.apply(core.StartLineSensing)
	rig.apply(core.EnableLineFollowing)

	assert.Empty(t, rig.sense(hi, hi, hi))
	assert.Empty(t, rig.sense(hi, hi, hi))
	assert.Equal(t, motorWord(core.MotionStop), rig.sense(hi, hi, hi))
	assert.Equal(t, motorWord(core.MotionStop), rig.sense(hi, hi, hi))

	// A line reading resets the debounce.
	assert.Equal(t, motorWord(core.MotionForward), rig.sense(lo, hi, lo))
	assert.Empty(t, rig.sense(hi, hi, hi))
	assert.Empty(t, rig.sense(hi, hi, hi))
	assert.Equal(t, motorWord(core.MotionStop), rig.sense(hi, hi, hi))
}

func TestLineTracker_OneControlWordPerCycle(t *testing.T) {
	rig := newLineRig()
	rig.control.Enqueue(core.StartLineSensing.Word())
	rig.control.Enqueue(core.EnableLineFollowing.Word())

	// Only sensing is on during the first cycle, so all-high stops at once.
	assert.Equal(t, motorWord(core.MotionStop), rig.sense(hi, hi, hi))
	assert.False(t, rig.tracker.FollowingEnabled())

	rig.sense(lo, lo, lo)
	assert.True(t, rig.tracker.FollowingEnabled())
}

func TestLineTracker_StopAndDisable(t *testing.T) {
	rig := newLineRig()
	rig.apply(core.StartLineSensing)
	rig.apply(core.EnableLineFollowing)
	rig.apply(core.DisableLineFollowing)
	assert.False(t, rig.tracker.FollowingEnabled())
	assert.Empty(t, rig.sense(lo, hi, lo))

	rig.apply(core.StopLineSensing)
	assert.False(t, rig.tracker.Active())
	assert.Empty(t, rig.sense(hi, hi, hi))

	rig.control.Enqueue(core.Speed(10))
	rig.tracker.TaskMethod()
	assert.False(t, rig.tracker.Active(), "foreign words are dropped")
}
