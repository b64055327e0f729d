// Package config loads the rover's YAML configuration, fills defaults,
// validates it and watches the file for changes at runtime.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"rover/internal/logging"
	"rover/pkg/types"

	"gopkg.in/yaml.v3"
)

type ConfigManager struct {
	config       types.SystemConfig
	configPath   string
	configLock   sync.RWMutex
	watchers     []func(types.SystemConfig)
	watchersLock sync.RWMutex
	lastModified time.Time
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	watching     bool
	pollInterval time.Duration
	logger       *logging.Logger
}

func NewConfigManager(configPath string) *ConfigManager {
	return &ConfigManager{
		config:       DefaultConfig(),
		configPath:   configPath,
		watchers:     make([]func(types.SystemConfig), 0),
		pollInterval: time.Second,
		logger:       logging.GetLogger("config_manager"),
	}
}

// LoadConfig reads path (or the current path when empty). Keys missing from
// the file keep their default values.
func (cm *ConfigManager) LoadConfig(path string) error {
	cm.configLock.Lock()
	defer cm.configLock.Unlock()

	if path != "" {
		cm.configPath = path
	}

	info, err := os.Stat(cm.configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	data, err := os.ReadFile(cm.configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	config, err := Parse(data)
	if err != nil {
		return err
	}

	cm.config = config
	cm.lastModified = info.ModTime()

	cm.logger.Info("Configuration loaded", "config_path", cm.configPath)
	return nil
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (types.SystemConfig, error) {
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return types.SystemConfig{}, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := Validate(&config); err != nil {
		return types.SystemConfig{}, fmt.Errorf("config validation failed: %w", err)
	}
	return config, nil
}

func (cm *ConfigManager) Reload() error {
	return cm.LoadConfig("")
}

func (cm *ConfigManager) GetConfig() types.SystemConfig {
	cm.configLock.RLock()
	defer cm.configLock.RUnlock()
	return cm.config
}

// SetConfig validates config, writes it to the config path and notifies
// watchers.
func (cm *ConfigManager) SetConfig(config types.SystemConfig) error {
	if err := Validate(&config); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	cm.configLock.Lock()
	if dir := filepath.Dir(cm.configPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			cm.configLock.Unlock()
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(cm.configPath, data, 0644); err != nil {
		cm.configLock.Unlock()
		return fmt.Errorf("failed to write config file: %w", err)
	}
	cm.config = config
	if info, err := os.Stat(cm.configPath); err == nil {
		cm.lastModified = info.ModTime()
	}
	cm.configLock.Unlock()

	cm.notifyWatchers()
	cm.logger.Info("Configuration updated and saved", "config_path", cm.configPath)
	return nil
}

// WatchChanges registers callback to run, on its own goroutine, after every
// successful reload.
func (cm *ConfigManager) WatchChanges(callback func(types.SystemConfig)) {
	cm.watchersLock.Lock()
	defer cm.watchersLock.Unlock()

	cm.watchers = append(cm.watchers, callback)
}

func (cm *ConfigManager) StartWatching(ctx context.Context) error {
	cm.configLock.Lock()
	defer cm.configLock.Unlock()

	if cm.watching {
		return fmt.Errorf("config watcher is already running")
	}

	cm.ctx, cm.cancel = context.WithCancel(ctx)
	cm.watching = true

	cm.wg.Add(1)
	go cm.watchFile(cm.ctx)

	cm.logger.Info("Started watching config file", "config_path", cm.configPath)
	return nil
}

func (cm *ConfigManager) StopWatching() error {
	cm.configLock.Lock()
	if !cm.watching {
		cm.configLock.Unlock()
		return fmt.Errorf("config watcher is not running")
	}
	cm.cancel()
	cm.watching = false
	cm.configLock.Unlock()

	cm.wg.Wait()
	cm.logger.Info("Stopped watching config file")
	return nil
}

func (cm *ConfigManager) watchFile(ctx context.Context) {
	defer cm.wg.Done()

	ticker := time.NewTicker(cm.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cm.checkFileChanges()
		}
	}
}

func (cm *ConfigManager) checkFileChanges() {
	cm.configLock.RLock()
	path, last := cm.configPath, cm.lastModified
	cm.configLock.RUnlock()

	info, err := os.Stat(path)
	if err != nil {
		if !os.IsNotExist(err) {
			cm.logger.Error("Error checking config file", "error", err)
		}
		return
	}

	if info.ModTime().After(last) {
		cm.logger.Info("Config file modified, reloading...")
		if err := cm.Reload(); err != nil {
			cm.logger.Error("Failed to reload config", "error", err)
			// Skip this revision until the file changes again.
			cm.configLock.Lock()
			cm.lastModified = info.ModTime()
			cm.configLock.Unlock()
			return
		}
		cm.notifyWatchers()
	}
}

func (cm *ConfigManager) notifyWatchers() {
	cm.watchersLock.RLock()
	watchers := make([]func(types.SystemConfig), len(cm.watchers))
	copy(watchers, cm.watchers)
	cm.watchersLock.RUnlock()

	config := cm.GetConfig()
	for _, watcher := range watchers {
		go watcher(config)
	}
}

// CreateDefaultConfig writes the default configuration to the config path.
func (cm *ConfigManager) CreateDefaultConfig() error {
	return cm.SetConfig(DefaultConfig())
}

func (cm *ConfigManager) GetConfigPath() string {
	cm.configLock.RLock()
	defer cm.configLock.RUnlock()
	return cm.configPath
}

func (cm *ConfigManager) ExportConfig(path string) error {
	data, err := yaml.Marshal(cm.GetConfig())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write export file: %w", err)
	}

	cm.logger.Info("Configuration exported", "path", path)
	return nil
}
