// Package types defines the data structures shared across the rover control
// system: wheel and direction enums plus the YAML configuration tree that
// every manager and component is built from.
package types

import (
	"fmt"
	"time"

	"rover/internal/logging"
)

// Direction is the rotation sense of a single wheel.
type Direction int

const (
	Reverse Direction = -1
	Neutral Direction = 0
	Forward Direction = 1
)

func (d Direction) String() string {
	switch d {
	case Reverse:
		return "reverse"
	case Neutral:
		return "neutral"
	case Forward:
		return "forward"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// Wheel identifies one of the four drive motors.
type Wheel int

const (
	FrontLeft Wheel = iota
	RearLeft
	FrontRight
	RearRight
)

// AllWheels returns the wheels in controller order.
func AllWheels() []Wheel {
	return []Wheel{FrontLeft, RearLeft, FrontRight, RearRight}
}

func (w Wheel) String() string {
	switch w {
	case FrontLeft:
		return "front_left"
	case RearLeft:
		return "rear_left"
	case FrontRight:
		return "front_right"
	case RearRight:
		return "rear_right"
	default:
		return fmt.Sprintf("wheel(%d)", int(w))
	}
}

// IsLeft reports whether the wheel is on the left side of the chassis.
func (w Wheel) IsLeft() bool {
	return w == FrontLeft || w == RearLeft
}

// Hardware driver names accepted in configuration.
const (
	DriverSim    = "sim"
	DriverModbus = "modbus"
	DriverBridge = "bridge"
)

type SystemConfig struct {
	Logging   logging.Config  `yaml:"logging"`
	Hardware  HardwareConfig  `yaml:"hardware"`
	Pins      PinConfig       `yaml:"pins"`
	Motors    MotorsConfig    `yaml:"motors"`
	Tasks     TasksConfig     `yaml:"tasks"`
	Ranger    RangerConfig    `yaml:"ranger"`
	Collision CollisionConfig `yaml:"collision"`
	Console   ConsoleConfig   `yaml:"console"`
	Journal   JournalConfig   `yaml:"journal"`
}

type HardwareConfig struct {
	PWM PWMConfig `yaml:"pwm"`
	IO  IOConfig  `yaml:"io"`
}

type PWMConfig struct {
	Driver      string       `yaml:"driver"`
	FrequencyHz int          `yaml:"frequency_hz"`
	Modbus      ModbusConfig `yaml:"modbus"`
}

// ModbusConfig describes the link to a Modbus motor driver board that exposes
// one holding register per PWM channel.
type ModbusConfig struct {
	Type              string        `yaml:"type"` // "rtu" or "tcp"
	Address           string        `yaml:"address"`
	Port              int           `yaml:"port"`
	BaudRate          int           `yaml:"baud_rate"`
	DataBits          int           `yaml:"data_bits"`
	StopBits          int           `yaml:"stop_bits"`
	Parity            string        `yaml:"parity"`
	SlaveID           byte          `yaml:"slave_id"`
	Timeout           time.Duration `yaml:"timeout"`
	RetryCount        int           `yaml:"retry_count"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	FrequencyRegister uint16        `yaml:"frequency_register"`
	DutyRegisterBase  uint16        `yaml:"duty_register_base"`
}

type IOConfig struct {
	Driver string       `yaml:"driver"`
	Bridge BridgeConfig `yaml:"bridge"`
}

// BridgeConfig describes the serial GPIO bridge microcontroller.
type BridgeConfig struct {
	PortName     string        `yaml:"port_name"`
	BaudRate     int           `yaml:"baud_rate"`
	DataBits     int           `yaml:"data_bits"`
	StopBits     int           `yaml:"stop_bits"`
	Parity       string        `yaml:"parity"`
	ReplyTimeout time.Duration `yaml:"reply_timeout"`
}

type PinConfig struct {
	Trigger    int `yaml:"trigger"`
	Echo       int `yaml:"echo"`
	Horn       int `yaml:"horn"`
	LineLeft   int `yaml:"line_left"`
	LineCenter int `yaml:"line_center"`
	LineRight  int `yaml:"line_right"`
}

// All returns every configured pin keyed by its role.
func (p PinConfig) All() map[string]int {
	return map[string]int{
		"trigger":     p.Trigger,
		"echo":        p.Echo,
		"horn":        p.Horn,
		"line_left":   p.LineLeft,
		"line_center": p.LineCenter,
		"line_right":  p.LineRight,
	}
}

type MotorChannels struct {
	Forward int `yaml:"forward"`
	Reverse int `yaml:"reverse"`
}

type MotorsConfig struct {
	FrontLeft  MotorChannels `yaml:"front_left"`
	RearLeft   MotorChannels `yaml:"rear_left"`
	FrontRight MotorChannels `yaml:"front_right"`
	RearRight  MotorChannels `yaml:"rear_right"`
}

// Channels returns the channel pair of a wheel.
func (m MotorsConfig) Channels(w Wheel) MotorChannels {
	switch w {
	case FrontLeft:
		return m.FrontLeft
	case RearLeft:
		return m.RearLeft
	case FrontRight:
		return m.FrontRight
	default:
		return m.RearRight
	}
}

type TaskConfig struct {
	Period   time.Duration `yaml:"period"`
	Priority int           `yaml:"priority"`
}

type TasksConfig struct {
	Horn        TaskConfig `yaml:"horn"`
	Motor       TaskConfig `yaml:"motor"`
	Collision   TaskConfig `yaml:"collision"`
	LineTracker TaskConfig `yaml:"line_tracker"`
	Distance    TaskConfig `yaml:"distance"`
	Controller  TaskConfig `yaml:"controller"`
}

type RangerConfig struct {
	EdgeTimeout  time.Duration `yaml:"edge_timeout"`
	TriggerPulse time.Duration `yaml:"trigger_pulse"`
}

type CollisionConfig struct {
	Enabled         bool `yaml:"enabled"`
	MinimumDistance int  `yaml:"minimum_distance"`
}

type ConsoleConfig struct {
	Enabled  bool   `yaml:"enabled"`
	PortName string `yaml:"port_name"`
	BaudRate int    `yaml:"baud_rate"`
}

type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}
