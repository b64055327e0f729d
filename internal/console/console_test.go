package console

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rover/internal/core"
)

func TestConsole_RunUntilEOF(t *testing.T) {
	commands, lines, horn := core.NewCommandQueue(), core.NewCommandQueue(), core.NewCommandQueue()
	input := strings.Join([]string{
		"# warm up",
		"0x40000200",
		"0x20000001",
		"not a word",
		"0x80000001",
		"0xB0000000",
		"0x30000000",
	}, "\n")

	c := New(strings.NewReader(input), NewRouter(commands, lines, horn))
	require.NoError(t, c.Run(context.Background()))

	assert.Equal(t, core.Speed(0x200), commands.Dequeue())
	assert.Equal(t, core.Motion(core.MotionForward), commands.Dequeue())
	assert.Equal(t, core.StartLineSensing.Word(), lines.Dequeue())
	assert.Equal(t, core.HornSoundWord, horn.Dequeue())
	assert.False(t, commands.HasItem())
}

func TestConsole_CancelClosesReader(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	commands := core.NewCommandQueue()
	c := New(pr, NewRouter(commands, nil, nil))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	_, err := pw.Write([]byte("0x40000010\n"))
	require.NoError(t, err)
	require.Eventually(t, commands.HasItem, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("console did not stop on cancel")
	}
}
