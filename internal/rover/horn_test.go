package rover

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rover/internal/core"
	"rover/internal/hal"
	"rover/internal/hal/sim"
)

func TestHornSignaler_StartsLow(t *testing.T) {
	pin := sim.NewPin(18)
	pin.Drive(hal.High)

	NewHornSignaler(core.NewCommandQueue(), pin)
	assert.Equal(t, hal.Low, pin.Level())
	assert.Equal(t, []hal.Level{hal.Low}, pin.History())
}

func TestHornSignaler_SoundAndMute(t *testing.T) {
	q := core.NewCommandQueue()
	pin := sim.NewPin(18)
	h := NewHornSignaler(q, pin)

	q.Enqueue(core.HornSoundWord)
	h.TaskMethod()
	assert.Equal(t, hal.High, pin.Level())

	h.TaskMethod()
	assert.Equal(t, hal.High, pin.Level(), "steady until told otherwise")

	q.Enqueue(core.HornMuteWord)
	h.TaskMethod()
	assert.Equal(t, hal.Low, pin.Level())
}

func TestHornSignaler_PulseSequence(t *testing.T) {
	q := core.NewCommandQueue()
	pin := sim.NewPin(18)
	h := NewHornSignaler(q, pin)

	q.Enqueue(core.HornPulseWord(600, 300))

	var levels []hal.Level
	for i := 0; i < 20; i++ {
		h.TaskMethod()
		levels = append(levels, pin.Level())
	}

	state := h.State()
	assert.Equal(t, 600, state.Length)
	assert.Equal(t, 2123, state.Period)

	// High while the counter is below 600, low until it passes 2123, then
	// the cycle restarts.
	for i := 0; i < 5; i++ {
		assert.Equal(t, hal.High, levels[i], "cycle %d", i+1)
	}
	for i := 5; i < 18; i++ {
		assert.Equal(t, hal.Low, levels[i], "cycle %d", i+1)
	}
	assert.Equal(t, hal.High, levels[18])
	assert.Equal(t, hal.High, levels[19])
}

func TestHornSignaler_MuteEndsPulse(t *testing.T) {
	q := core.NewCommandQueue()
	pin := sim.NewPin(18)
	h := NewHornSignaler(q, pin)

	q.Enqueue(core.HornPulseWord(600, 300))
	h.TaskMethod()
	require.Equal(t, hal.High, pin.Level())

	q.Enqueue(core.HornMuteWord)
	for i := 0; i < 30; i++ {
		h.TaskMethod()
		assert.Equal(t, hal.Low, pin.Level())
	}
	assert.Equal(t, 0, h.State().Length)
}

func TestHornSignaler_StopSilences(t *testing.T) {
	q := core.NewCommandQueue()
	pin := sim.NewPin(18)
	h := NewHornSignaler(q, pin, WithHornPeriod(time.Millisecond))

	require.NoError(t, h.Start(10))
	q.Enqueue(core.HornSoundWord)
	require.Eventually(t, func() bool { return pin.Level() == hal.High }, time.Second, time.Millisecond)

	require.NoError(t, h.Stop())
	assert.Equal(t, hal.Low, pin.Level())
}
