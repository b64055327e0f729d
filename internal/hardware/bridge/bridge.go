// Package bridge talks to a microcontroller that exposes its GPIO lines over
// a serial link, so the rover can run on hosts without native pins.
package bridge

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"rover/internal/hal"
	"rover/internal/hardware/comm"
	"rover/internal/logging"
	"rover/pkg/types"

	"github.com/jacobsa/go-serial/serial"
)

const (
	DefaultReplyTimeout = 50 * time.Millisecond
	edgeBacklog         = 16
)

var ErrClosed = errors.New("bridge closed")

// Bridge implements hal.PinFactory over a serial GPIO bridge. Frames are
// written under a lock; a reader goroutine routes read replies and edge
// events back to the pin handles.
type Bridge struct {
	port         io.ReadWriteCloser
	replyTimeout time.Duration
	link         *comm.Link
	logger       *logging.Logger

	writeMu sync.Mutex
	readMu  sync.Mutex

	mu      sync.Mutex
	replies map[byte]chan hal.Level
	edges   map[byte]*edgeInput
	closed  bool

	done chan struct{}
}

// Open opens the serial port described by config.
func Open(config types.BridgeConfig) (*Bridge, error) {
	options := serial.OpenOptions{
		PortName:        config.PortName,
		BaudRate:        uint(config.BaudRate),
		DataBits:        uint(config.DataBits),
		StopBits:        uint(config.StopBits),
		MinimumReadSize: 1,
	}

	switch config.Parity {
	case "E", "e":
		options.ParityMode = serial.PARITY_EVEN
	case "O", "o":
		options.ParityMode = serial.PARITY_ODD
	default:
		options.ParityMode = serial.PARITY_NONE
	}

	port, err := serial.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", config.PortName, err)
	}

	b := New(port, config.ReplyTimeout)
	b.logger.Info("GPIO bridge connected", "port", config.PortName, "baud_rate", config.BaudRate)
	return b, nil
}

// New runs the bridge protocol over an open port.
func New(port io.ReadWriteCloser, replyTimeout time.Duration) *Bridge {
	if replyTimeout <= 0 {
		replyTimeout = DefaultReplyTimeout
	}

	b := &Bridge{
		port:         port,
		replyTimeout: replyTimeout,
		link:         comm.NewLink("bridge", comm.ConnectionConfig{Timeout: replyTimeout}),
		logger:       logging.GetLogger("bridge"),
		replies:      make(map[byte]chan hal.Level),
		edges:        make(map[byte]*edgeInput),
		done:         make(chan struct{}),
	}
	b.link.SetStatus(comm.StatusConnected)

	go b.readLoop()
	return b
}

func (b *Bridge) send(f Frame) error {
	data, err := f.Encode()
	if err != nil {
		return err
	}

	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrClosed
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	if _, err := b.port.Write(data); err != nil {
		return b.link.HandleWithError(fmt.Errorf("write %s: %w", f, err))
	}
	return nil
}

func (b *Bridge) readLoop() {
	defer close(b.done)

	dec := NewDecoder(b.port)
	for {
		f, err := dec.Decode()
		if err != nil {
			if errors.Is(err, ErrBadCRC) || errors.Is(err, ErrUnknownOp) {
				b.link.HandleWithError(err)
				b.logger.Warn("Discarded bridge frame", "error", err)
				continue
			}
			b.mu.Lock()
			closed := b.closed
			b.mu.Unlock()
			if !closed {
				b.link.SetStatus(comm.StatusError)
				b.link.HandleWithError(err)
				b.logger.Error("Bridge reader stopped", "error", err)
			}
			return
		}
		b.dispatch(f)
	}
}

func (b *Bridge) dispatch(f Frame) {
	switch f.Op {
	case OpReadReply:
		b.mu.Lock()
		ch, ok := b.replies[f.Pin]
		delete(b.replies, f.Pin)
		b.mu.Unlock()
		if !ok {
			b.logger.Debug("Unsolicited read reply", "pin", f.Pin)
			return
		}
		level := hal.Low
		if f.Value[0] != 0 {
			level = hal.High
		}
		ch <- level

	case OpEdgeEvent:
		edge, sec, nsec, err := ParseEdgeEvent(f)
		if err != nil {
			return
		}
		b.mu.Lock()
		in, ok := b.edges[f.Pin]
		b.mu.Unlock()
		if !ok {
			return
		}
		in.deliver(edgeEvent{
			rising: edge == EdgeRising,
			at:     hal.Timestamp{Sec: int64(sec), Nsec: int64(nsec)},
		})

	default:
		b.logger.Debug("Ignored bridge frame", "frame", f)
	}
}

func (b *Bridge) Output(pin int) (hal.DigitalOutput, error) {
	p, err := pinByte(pin)
	if err != nil {
		return nil, err
	}
	if err := b.send(Frame{Op: OpConfigOutput, Pin: p}); err != nil {
		return nil, err
	}
	return &outputPin{bridge: b, pin: p}, nil
}

func (b *Bridge) Input(pin int) (hal.DigitalInput, error) {
	p, err := pinByte(pin)
	if err != nil {
		return nil, err
	}
	if err := b.send(Frame{Op: OpConfigInput, Pin: p}); err != nil {
		return nil, err
	}
	return &inputPin{bridge: b, pin: p}, nil
}

func (b *Bridge) EdgeInput(pin int) (hal.EdgeInput, error) {
	p, err := pinByte(pin)
	if err != nil {
		return nil, err
	}

	in := &edgeInput{events: make(chan edgeEvent, edgeBacklog)}
	b.mu.Lock()
	b.edges[p] = in
	b.mu.Unlock()

	if err := b.send(Frame{Op: OpConfigInput, Pin: p}); err != nil {
		return nil, err
	}
	if err := b.send(Frame{Op: OpArmEdges, Pin: p}); err != nil {
		return nil, err
	}
	return in, nil
}

// read asks the bridge for a pin level and waits for the reply.
func (b *Bridge) read(pin byte) (hal.Level, error) {
	b.readMu.Lock()
	defer b.readMu.Unlock()

	ch := make(chan hal.Level, 1)
	b.mu.Lock()
	b.replies[pin] = ch
	b.mu.Unlock()

	if err := b.send(Frame{Op: OpReadRequest, Pin: pin}); err != nil {
		b.dropReply(pin)
		return hal.Low, err
	}

	timer := time.NewTimer(b.replyTimeout)
	defer timer.Stop()

	select {
	case level := <-ch:
		return level, nil
	case <-timer.C:
		b.dropReply(pin)
		return hal.Low, b.link.HandleWithError(fmt.Errorf("read pin %d: no reply within %v", pin, b.replyTimeout))
	case <-b.done:
		return hal.Low, ErrClosed
	}
}

func (b *Bridge) dropReply(pin byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.replies, pin)
}

func (b *Bridge) Stats() comm.Stats {
	return b.link.Stats()
}

// Close shuts the port and waits for the reader to exit.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	err := b.port.Close()
	<-b.done
	b.link.SetStatus(comm.StatusDisconnected)
	return err
}

func pinByte(pin int) (byte, error) {
	if pin < 0 || pin > 0xFF {
		return 0, fmt.Errorf("pin %d out of range", pin)
	}
	return byte(pin), nil
}

type outputPin struct {
	bridge *Bridge
	pin    byte
}

func (p *outputPin) Set(level hal.Level) error {
	var v byte
	if level == hal.High {
		v = 1
	}
	return p.bridge.send(Frame{Op: OpWrite, Pin: p.pin, Value: []byte{v}})
}

type inputPin struct {
	bridge *Bridge
	pin    byte
}

func (p *inputPin) Get() (hal.Level, error) {
	return p.bridge.read(p.pin)
}

type edgeEvent struct {
	rising bool
	at     hal.Timestamp
}

type edgeInput struct {
	events chan edgeEvent

	mu      sync.Mutex
	rising  hal.Timestamp
	falling hal.Timestamp
}

// deliver queues an event, dropping it when nobody has drained the backlog.
func (e *edgeInput) deliver(ev edgeEvent) {
	select {
	case e.events <- ev:
	default:
	}
}

func (e *edgeInput) WaitForEdge(timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ev := <-e.events:
		e.mu.Lock()
		if ev.rising {
			e.rising = ev.at
		} else {
			e.falling = ev.at
		}
		e.mu.Unlock()
		return nil
	case <-timer.C:
		return hal.ErrEdgeTimeout
	}
}

func (e *edgeInput) RisingTimestamp() hal.Timestamp {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rising
}

func (e *edgeInput) FallingTimestamp() hal.Timestamp {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.falling
}
