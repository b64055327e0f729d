package bridge

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rover/internal/hal"
)

// fakeDevice plays the microcontroller end of the link.
type fakeDevice struct {
	conn net.Conn

	mu     sync.Mutex
	frames []Frame
	levels map[byte]byte
	mute   bool
}

func newFakeDevice(conn net.Conn) *fakeDevice {
	d := &fakeDevice{conn: conn, levels: make(map[byte]byte)}
	go d.serve()
	return d
}

func (d *fakeDevice) serve() {
	dec := NewDecoder(d.conn)
	for {
		f, err := dec.Decode()
		if err != nil {
			return
		}
		d.mu.Lock()
		d.frames = append(d.frames, f)
		level, mute := d.levels[f.Pin], d.mute
		d.mu.Unlock()

		if f.Op == OpReadRequest && !mute {
			d.send(Frame{Op: OpReadReply, Pin: f.Pin, Value: []byte{level}})
		}
	}
}

func (d *fakeDevice) send(f Frame) {
	data, err := f.Encode()
	if err != nil {
		panic(err)
	}
	d.conn.Write(data)
}

func (d *fakeDevice) setLevel(pin, level byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.levels[pin] = level
}

func (d *fakeDevice) received() []Frame {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Frame(nil), d.frames...)
}

func newTestBridge(t *testing.T) (*Bridge, *fakeDevice) {
	t.Helper()
	host, device := net.Pipe()
	b := New(host, 100*time.Millisecond)
	d := newFakeDevice(device)
	t.Cleanup(func() {
		b.Close()
		device.Close()
	})
	return b, d
}

func TestBridge_OutputWritesFrames(t *testing.T) {
	b, d := newTestBridge(t)

	out, err := b.Output(18)
	require.NoError(t, err)
	require.NoError(t, out.Set(hal.High))
	require.NoError(t, out.Set(hal.Low))

	require.Eventually(t, func() bool { return len(d.received()) == 3 }, time.Second, time.Millisecond)
	frames := d.received()
	assert.Equal(t, Frame{Op: OpConfigOutput, Pin: 18}, frames[0])
	assert.Equal(t, Frame{Op: OpWrite, Pin: 18, Value: []byte{1}}, frames[1])
	assert.Equal(t, Frame{Op: OpWrite, Pin: 18, Value: []byte{0}}, frames[2])
}

func TestBridge_InputReadsLevel(t *testing.T) {
	b, d := newTestBridge(t)
	d.setLevel(5, 1)

	in, err := b.Input(5)
	require.NoError(t, err)

	level, err := in.Get()
	require.NoError(t, err)
	assert.Equal(t, hal.High, level)

	d.setLevel(5, 0)
	level, err = in.Get()
	require.NoError(t, err)
	assert.Equal(t, hal.Low, level)
}

func TestBridge_ReadTimeout(t *testing.T) {
	b, d := newTestBridge(t)
	d.mu.Lock()
	d.mute = true
	d.mu.Unlock()

	in, err := b.Input(6)
	require.NoError(t, err)

	_, err = in.Get()
	require.Error(t, err)
	assert.Equal(t, uint64(1), b.Stats().Failures)
}

func TestBridge_EdgeEvents(t *testing.T) {
	b, d := newTestBridge(t)

	echo, err := b.EdgeInput(24)
	require.NoError(t, err)
	assert.ErrorIs(t, echo.WaitForEdge(5*time.Millisecond), hal.ErrEdgeTimeout)

	d.send(EdgeEventFrame(24, EdgeRising, 100, 999_000_000))
	d.send(EdgeEventFrame(24, EdgeFalling, 101, 4_813_954))

	require.NoError(t, echo.WaitForEdge(time.Second))
	require.NoError(t, echo.WaitForEdge(time.Second))
	assert.Equal(t, hal.Timestamp{Sec: 100, Nsec: 999_000_000}, echo.RisingTimestamp())
	assert.Equal(t, hal.Timestamp{Sec: 101, Nsec: 4_813_954}, echo.FallingTimestamp())

	elapsed := echo.FallingTimestamp().Sub(echo.RisingTimestamp())
	assert.Equal(t, hal.Timestamp{Sec: 0, Nsec: 5_813_954}, elapsed)
}

func TestBridge_ClosedRejectsWrites(t *testing.T) {
	host, device := net.Pipe()
	defer device.Close()
	newFakeDevice(device)

	b := New(host, 0)
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	_, err := b.Output(1)
	assert.ErrorIs(t, err, ErrClosed)
}
