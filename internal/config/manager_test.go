package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"rover/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, Validate(&cfg))

	assert.Equal(t, types.DriverSim, cfg.Hardware.PWM.Driver)
	assert.Equal(t, types.DriverSim, cfg.Hardware.IO.Driver)
	assert.Equal(t, 200, cfg.Hardware.PWM.FrequencyHz)
	assert.Equal(t, 150, cfg.Collision.MinimumDistance)
	assert.Equal(t, 24*time.Millisecond, cfg.Tasks.Motor.Period)
	assert.Equal(t, 10*time.Millisecond, cfg.Tasks.Collision.Period)
	assert.Equal(t, 20*time.Millisecond, cfg.Tasks.Distance.Period)
	assert.Equal(t, 50*time.Millisecond, cfg.Tasks.LineTracker.Period)
	assert.Equal(t, 100*time.Millisecond, cfg.Tasks.Horn.Period)
	assert.Equal(t, types.MotorChannels{Forward: 0, Reverse: 1}, cfg.Motors.Channels(types.FrontLeft))
	assert.Equal(t, types.MotorChannels{Forward: 6, Reverse: 7}, cfg.Motors.Channels(types.RearRight))
}

func TestParse_PartialKeepsDefaults(t *testing.T) {
	data := []byte(`
pins:
  horn: 12
tasks:
  motor:
    period: 30ms
collision:
  minimum_distance: 200
`)
	cfg, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.Pins.Horn)
	assert.Equal(t, 23, cfg.Pins.Trigger)
	assert.Equal(t, 30*time.Millisecond, cfg.Tasks.Motor.Period)
	assert.Equal(t, 25, cfg.Tasks.Motor.Priority)
	assert.Equal(t, 200, cfg.Collision.MinimumDistance)
	assert.True(t, cfg.Collision.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestParse_ZeroValuesFilled(t *testing.T) {
	data := []byte(`
hardware:
  pwm:
    driver: ""
    frequency_hz: 0
tasks:
  horn:
    period: 0s
    priority: 0
`)
	cfg, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, types.DriverSim, cfg.Hardware.PWM.Driver)
	assert.Equal(t, DefaultPWMFrequency, cfg.Hardware.PWM.FrequencyHz)
	assert.Equal(t, 100*time.Millisecond, cfg.Tasks.Horn.Period)
	assert.Equal(t, 10, cfg.Tasks.Horn.Priority)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"malformed", "pins: [", "failed to parse"},
		{"duplicate pin", "pins:\n  horn: 23\n", "assigned to both trigger and horn"},
		{"negative pin", "pins:\n  echo: -1\n", "must not be negative"},
		{"unknown pwm driver", "hardware:\n  pwm:\n    driver: i2c\n", `unknown pwm driver "i2c"`},
		{"unknown io driver", "hardware:\n  io:\n    driver: gpiod\n", `unknown io driver "gpiod"`},
		{"bad modbus type", "hardware:\n  pwm:\n    driver: modbus\n    modbus:\n      type: ascii\n", "must be rtu or tcp"},
		{"negative period", "tasks:\n  motor:\n    period: -5ms\n", "tasks.motor.period must be positive"},
		{"duplicate channel", "motors:\n  rear_right:\n    forward: 0\n", "pwm channel 0 assigned to both"},
		{"negative minimum", "collision:\n  minimum_distance: -10\n", "minimum_distance must be positive"},
		{"console without port", "console:\n  enabled: true\n  port_name: \"\"\n", "console.port_name is required"},
		{"journal without path", "journal:\n  enabled: true\n  path: \"\"\n", "journal.path is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestConfigManager_SetAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "rover.yaml")

	cm := NewConfigManager(path)
	cfg := DefaultConfig()
	cfg.Collision.MinimumDistance = 220
	cfg.Tasks.Horn.Period = 80 * time.Millisecond
	require.NoError(t, cm.SetConfig(cfg))
	assert.FileExists(t, path)

	loaded := NewConfigManager("")
	require.NoError(t, loaded.LoadConfig(path))
	assert.Equal(t, path, loaded.GetConfigPath())
	assert.Equal(t, 220, loaded.GetConfig().Collision.MinimumDistance)
	assert.Equal(t, 80*time.Millisecond, loaded.GetConfig().Tasks.Horn.Period)
}

func TestConfigManager_SetConfigRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rover.yaml")
	cm := NewConfigManager(path)

	cfg := DefaultConfig()
	cfg.Pins.Echo = cfg.Pins.Trigger
	require.Error(t, cm.SetConfig(cfg))
	assert.NoFileExists(t, path)
	assert.Equal(t, 24, cm.GetConfig().Pins.Echo)
}

func TestConfigManager_LoadMissingFile(t *testing.T) {
	cm := NewConfigManager(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, cm.Reload())
}

func TestConfigManager_SetConfigNotifiesWatchers(t *testing.T) {
	cm := NewConfigManager(filepath.Join(t.TempDir(), "rover.yaml"))

	got := make(chan types.SystemConfig, 1)
	cm.WatchChanges(func(cfg types.SystemConfig) { got <- cfg })

	cfg := DefaultConfig()
	cfg.Logging.Level = "debug"
	require.NoError(t, cm.SetConfig(cfg))

	select {
	case c := <-got:
		assert.Equal(t, "debug", c.Logging.Level)
	case <-time.After(time.Second):
		t.Fatal("watcher was not notified")
	}
}

func TestConfigManager_WatchReloadsModifiedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rover.yaml")
	cm := NewConfigManager(path)
	cm.pollInterval = 10 * time.Millisecond
	require.NoError(t, cm.CreateDefaultConfig())

	got := make(chan types.SystemConfig, 4)
	cm.WatchChanges(func(cfg types.SystemConfig) { got <- cfg })
	require.NoError(t, cm.StartWatching(context.Background()))
	defer cm.StopWatching()

	assert.Error(t, cm.StartWatching(context.Background()))

	require.NoError(t, os.WriteFile(path, []byte("collision:\n  minimum_distance: 300\n"), 0644))
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, future, future))

	require.Eventually(t, func() bool {
		return cm.GetConfig().Collision.MinimumDistance == 300
	}, 2*time.Second, 10*time.Millisecond)

	select {
	case c := <-got:
		assert.Equal(t, 300, c.Collision.MinimumDistance)
	case <-time.After(time.Second):
		t.Fatal("watcher was not notified")
	}
}

func TestConfigManager_InvalidRevisionSkipped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rover.yaml")
	cm := NewConfigManager(path)
	cm.pollInterval = 10 * time.Millisecond
	require.NoError(t, cm.CreateDefaultConfig())
	require.NoError(t, cm.StartWatching(context.Background()))

	require.NoError(t, os.WriteFile(path, []byte("pins:\n  horn: 24\n"), 0644))
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, future, future))

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, cm.StopWatching())
	assert.Error(t, cm.StopWatching())

	assert.Equal(t, 18, cm.GetConfig().Pins.Horn)
}

func TestConfigManager_Export(t *testing.T) {
	dir := t.TempDir()
	cm := NewConfigManager(filepath.Join(dir, "rover.yaml"))

	out := filepath.Join(dir, "export.yaml")
	require.NoError(t, cm.ExportConfig(out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	cfg, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Pins, cfg.Pins)
}
