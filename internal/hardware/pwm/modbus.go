// Package pwm drives a Modbus PWM board that exposes one holding register
// per output channel plus a frequency register.
package pwm

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"rover/internal/core"
	"rover/internal/hal"
	"rover/internal/hardware/comm"
	"rover/internal/logging"
	"rover/pkg/types"

	"github.com/goburrow/modbus"
)

// ModbusDriver implements hal.PWMDriver over Modbus holding registers. It is
// safe for concurrent use; writes are serialised on the bus.
type ModbusDriver struct {
	client modbus.Client
	closer io.Closer
	config types.ModbusConfig
	link   *comm.Link
	logger *logging.Logger

	mu        sync.Mutex
	written   map[hal.Channel]int
	frequency int
}

// NewModbusDriver wraps an already connected client.
func NewModbusDriver(client modbus.Client, config types.ModbusConfig) *ModbusDriver {
	link := comm.NewLink("pwm", comm.ConnectionConfig{
		Timeout:       config.Timeout,
		RetryCount:    config.RetryCount,
		RetryInterval: config.RetryInterval,
	})
	link.SetStatus(comm.StatusConnected)

	return &ModbusDriver{
		client:  client,
		config:  config,
		link:    link,
		written: make(map[hal.Channel]int),
		logger:  logging.GetLogger("pwm"),
	}
}

// Dial opens an RTU or TCP connection to the board.
func Dial(config types.ModbusConfig) (*ModbusDriver, error) {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = time.Second
	}

	var (
		handler modbus.ClientHandler
		closer  io.Closer
	)

	switch config.Type {
	case "tcp":
		h := modbus.NewTCPClientHandler(fmt.Sprintf("%s:%d", config.Address, config.Port))
		h.Timeout = timeout
		h.SlaveId = config.SlaveID
		if err := h.Connect(); err != nil {
			return nil, fmt.Errorf("failed to connect TCP Modbus %s: %w", config.Address, err)
		}
		handler, closer = h, h
	case "rtu", "":
		h := modbus.NewRTUClientHandler(config.Address)
		h.BaudRate = config.BaudRate
		h.DataBits = config.DataBits
		h.StopBits = config.StopBits
		h.Parity = config.Parity
		h.SlaveId = config.SlaveID
		h.Timeout = timeout
		if err := h.Connect(); err != nil {
			return nil, fmt.Errorf("failed to connect RTU Modbus %s: %w", config.Address, err)
		}
		handler, closer = h, h
	default:
		return nil, fmt.Errorf("unsupported Modbus type: %s", config.Type)
	}

	d := NewModbusDriver(modbus.NewClient(handler), config)
	d.closer = closer
	d.logger.Info("Modbus PWM board connected",
		"type", config.Type, "address", config.Address, "slave_id", config.SlaveID)
	return d, nil
}

// SetDutyCycle writes value, clamped to 0..4095, to the channel's register.
// A value equal to the last one written is not sent again.
func (d *ModbusDriver) SetDutyCycle(ch hal.Channel, value int) error {
	if ch < 0 {
		return fmt.Errorf("invalid PWM channel %d", ch)
	}
	value = clampDuty(value)

	d.mu.Lock()
	defer d.mu.Unlock()

	if last, ok := d.written[ch]; ok && last == value {
		return nil
	}

	address := d.config.DutyRegisterBase + uint16(ch)
	err := d.link.RetryWithTimeout(context.Background(), func() error {
		_, err := d.client.WriteSingleRegister(address, uint16(value))
		return err
	})
	if err != nil {
		delete(d.written, ch)
		d.link.SetStatus(comm.StatusError)
		return fmt.Errorf("write duty register %d: %w", address, err)
	}

	d.written[ch] = value
	d.link.SetStatus(comm.StatusConnected)
	return nil
}

func (d *ModbusDriver) SetFrequency(hz int) error {
	if hz <= 0 || hz > 0xFFFF {
		return fmt.Errorf("invalid PWM frequency %d", hz)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	err := d.link.RetryWithTimeout(context.Background(), func() error {
		_, err := d.client.WriteSingleRegister(d.config.FrequencyRegister, uint16(hz))
		return err
	})
	if err != nil {
		d.link.SetStatus(comm.StatusError)
		return fmt.Errorf("write frequency register %d: %w", d.config.FrequencyRegister, err)
	}

	d.frequency = hz
	d.logger.Info("PWM frequency set", "hz", hz)
	return nil
}

// Duty returns the last value successfully written to ch.
func (d *ModbusDriver) Duty(ch hal.Channel) (int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.written[ch]
	return v, ok
}

func (d *ModbusDriver) Stats() comm.Stats {
	return d.link.Stats()
}

// Close releases the connection if the driver opened it.
func (d *ModbusDriver) Close() error {
	d.link.SetStatus(comm.StatusDisconnected)
	if d.closer == nil {
		return nil
	}
	return d.closer.Close()
}

func clampDuty(v int) int {
	if v < 0 {
		return 0
	}
	if v > core.MaxDuty {
		return core.MaxDuty
	}
	return v
}
