package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"rover/internal/logging"
	"rover/pkg/types"
)

// Task timing defaults, in the order tasks are started by priority.
var defaultTasks = types.TasksConfig{
	Controller:  types.TaskConfig{Priority: 40},
	Collision:   types.TaskConfig{Period: 10 * time.Millisecond, Priority: 35},
	Distance:    types.TaskConfig{Period: 20 * time.Millisecond, Priority: 30},
	Motor:       types.TaskConfig{Period: 24 * time.Millisecond, Priority: 25},
	LineTracker: types.TaskConfig{Period: 50 * time.Millisecond, Priority: 15},
	Horn:        types.TaskConfig{Period: 100 * time.Millisecond, Priority: 10},
}

const (
	DefaultPWMFrequency    = 200
	DefaultMinimumDistance = 150
	DefaultEdgeTimeout     = 10 * time.Millisecond
	DefaultTriggerPulse    = 10 * time.Microsecond
)

func DefaultConfig() types.SystemConfig {
	return types.SystemConfig{
		Logging: *logging.DefaultConfig(),
		Hardware: types.HardwareConfig{
			PWM: types.PWMConfig{
				Driver:      types.DriverSim,
				FrequencyHz: DefaultPWMFrequency,
				Modbus: types.ModbusConfig{
					Type:              "rtu",
					Address:           "/dev/ttyUSB1",
					Port:              502,
					BaudRate:          115200,
					DataBits:          8,
					StopBits:          1,
					Parity:            "N",
					SlaveID:           1,
					Timeout:           100 * time.Millisecond,
					RetryCount:        2,
					RetryInterval:     5 * time.Millisecond,
					FrequencyRegister: 0,
					DutyRegisterBase:  1,
				},
			},
			IO: types.IOConfig{
				Driver: types.DriverSim,
				Bridge: types.BridgeConfig{
					PortName:     "/dev/ttyACM0",
					BaudRate:     115200,
					DataBits:     8,
					StopBits:     1,
					Parity:       "N",
					ReplyTimeout: 50 * time.Millisecond,
				},
			},
		},
		Pins: types.PinConfig{
			Trigger:    23,
			Echo:       24,
			Horn:       18,
			LineLeft:   5,
			LineCenter: 6,
			LineRight:  13,
		},
		Motors: types.MotorsConfig{
			FrontLeft:  types.MotorChannels{Forward: 0, Reverse: 1},
			RearLeft:   types.MotorChannels{Forward: 2, Reverse: 3},
			FrontRight: types.MotorChannels{Forward: 4, Reverse: 5},
			RearRight:  types.MotorChannels{Forward: 6, Reverse: 7},
		},
		Tasks: defaultTasks,
		Ranger: types.RangerConfig{
			EdgeTimeout:  DefaultEdgeTimeout,
			TriggerPulse: DefaultTriggerPulse,
		},
		Collision: types.CollisionConfig{
			Enabled:         true,
			MinimumDistance: DefaultMinimumDistance,
		},
		Console: types.ConsoleConfig{
			Enabled:  false,
			PortName: "/dev/ttyUSB0",
			BaudRate: 115200,
		},
		Journal: types.JournalConfig{
			Enabled: false,
			Path:    "data/rover.db",
		},
	}
}

// Validate fills zero values with defaults and rejects configurations the
// rover cannot run with.
func Validate(config *types.SystemConfig) error {
	var errs []error

	switch config.Hardware.PWM.Driver {
	case "":
		config.Hardware.PWM.Driver = types.DriverSim
	case types.DriverSim:
	case types.DriverModbus:
		if config.Hardware.PWM.Modbus.Address == "" {
			errs = append(errs, errors.New("hardware.pwm.modbus.address is required"))
		}
		switch strings.ToLower(config.Hardware.PWM.Modbus.Type) {
		case "rtu", "tcp":
		default:
			errs = append(errs, fmt.Errorf("hardware.pwm.modbus.type %q must be rtu or tcp", config.Hardware.PWM.Modbus.Type))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown pwm driver %q", config.Hardware.PWM.Driver))
	}

	switch config.Hardware.IO.Driver {
	case "":
		config.Hardware.IO.Driver = types.DriverSim
	case types.DriverSim:
	case types.DriverBridge:
		if config.Hardware.IO.Bridge.PortName == "" {
			errs = append(errs, errors.New("hardware.io.bridge.port_name is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown io driver %q", config.Hardware.IO.Driver))
	}

	if config.Hardware.PWM.FrequencyHz == 0 {
		config.Hardware.PWM.FrequencyHz = DefaultPWMFrequency
	} else if config.Hardware.PWM.FrequencyHz < 0 {
		errs = append(errs, fmt.Errorf("pwm frequency must be positive, got %d", config.Hardware.PWM.FrequencyHz))
	}

	errs = append(errs, validatePins(config.Pins)...)
	errs = append(errs, validateMotors(config.Motors)...)
	errs = append(errs, validateTasks(&config.Tasks)...)

	if config.Ranger.EdgeTimeout == 0 {
		config.Ranger.EdgeTimeout = DefaultEdgeTimeout
	}
	if config.Ranger.TriggerPulse == 0 {
		config.Ranger.TriggerPulse = DefaultTriggerPulse
	}
	if config.Ranger.EdgeTimeout < 0 || config.Ranger.TriggerPulse < 0 {
		errs = append(errs, errors.New("ranger timings must be positive"))
	}

	if config.Collision.MinimumDistance == 0 {
		config.Collision.MinimumDistance = DefaultMinimumDistance
	} else if config.Collision.MinimumDistance < 0 {
		errs = append(errs, fmt.Errorf("collision.minimum_distance must be positive, got %d", config.Collision.MinimumDistance))
	}

	if config.Console.Enabled && config.Console.PortName == "" {
		errs = append(errs, errors.New("console.port_name is required when the console is enabled"))
	}
	if config.Console.BaudRate <= 0 {
		config.Console.BaudRate = 115200
	}
	if config.Journal.Enabled && config.Journal.Path == "" {
		errs = append(errs, errors.New("journal.path is required when the journal is enabled"))
	}

	return errors.Join(errs...)
}

func validatePins(pins types.PinConfig) []error {
	var errs []error
	seen := make(map[int]string)
	for _, role := range []string{"trigger", "echo", "horn", "line_left", "line_center", "line_right"} {
		pin := pins.All()[role]
		if pin < 0 {
			errs = append(errs, fmt.Errorf("pin %s must not be negative, got %d", role, pin))
			continue
		}
		if other, dup := seen[pin]; dup {
			errs = append(errs, fmt.Errorf("pin %d assigned to both %s and %s", pin, other, role))
			continue
		}
		seen[pin] = role
	}
	return errs
}

func validateMotors(motors types.MotorsConfig) []error {
	var errs []error
	seen := make(map[int]string)
	for _, w := range types.AllWheels() {
		ch := motors.Channels(w)
		for _, c := range []struct {
			name    string
			channel int
		}{{w.String() + ".forward", ch.Forward}, {w.String() + ".reverse", ch.Reverse}} {
			if c.channel < 0 {
				errs = append(errs, fmt.Errorf("motor channel %s must not be negative", c.name))
				continue
			}
			if other, dup := seen[c.channel]; dup {
				errs = append(errs, fmt.Errorf("pwm channel %d assigned to both %s and %s", c.channel, other, c.name))
				continue
			}
			seen[c.channel] = c.name
		}
	}
	return errs
}

func validateTasks(tasks *types.TasksConfig) []error {
	var errs []error
	periodic := []struct {
		name string
		task *types.TaskConfig
		def  types.TaskConfig
	}{
		{"horn", &tasks.Horn, defaultTasks.Horn},
		{"motor", &tasks.Motor, defaultTasks.Motor},
		{"collision", &tasks.Collision, defaultTasks.Collision},
		{"line_tracker", &tasks.LineTracker, defaultTasks.LineTracker},
		{"distance", &tasks.Distance, defaultTasks.Distance},
	}
	for _, p := range periodic {
		if p.task.Period == 0 {
			p.task.Period = p.def.Period
		} else if p.task.Period < 0 {
			errs = append(errs, fmt.Errorf("tasks.%s.period must be positive, got %v", p.name, p.task.Period))
		}
		if p.task.Priority == 0 {
			p.task.Priority = p.def.Priority
		}
	}
	if tasks.Controller.Priority == 0 {
		tasks.Controller.Priority = defaultTasks.Controller.Priority
	}
	return errs
}
