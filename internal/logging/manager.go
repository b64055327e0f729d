package logging

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	defaultManager *Manager
	once           sync.Once
)

// Manager hands out one logger per module. All module loggers share the root
// handler, so a level change reaches every component at once.
type Manager struct {
	mu      sync.RWMutex
	root    *Logger
	loggers map[string]*Logger
	config  *Config
}

// NewManager 创建新的日志管理器
func NewManager(config *Config) (*Manager, error) {
	if config == nil {
		config = DefaultConfig()
	}

	root, err := NewLogger(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create root logger: %w", err)
	}

	return &Manager{
		root:    root,
		loggers: map[string]*Logger{"default": root},
		config:  config,
	}, nil
}

// GetManager 获取全局日志管理器实例
func GetManager() *Manager {
	once.Do(func() {
		defaultManager, _ = NewManager(DefaultConfig())
	})
	return defaultManager
}

// GetLogger 获取指定名称的日志器
func (m *Manager) GetLogger(name string) *Logger {
	m.mu.RLock()
	logger, exists := m.loggers[name]
	m.mu.RUnlock()
	if exists {
		return logger
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if logger, exists := m.loggers[name]; exists {
		return logger
	}

	logger = m.root.With("module", name)
	m.loggers[name] = logger
	return logger
}

// Configure replaces the root output. Loggers already handed out keep their
// old handler; call it before components are built.
func (m *Manager) Configure(config *Config) error {
	if config == nil {
		return errors.New("config cannot be nil")
	}

	root, err := NewLogger(config)
	if err != nil {
		return fmt.Errorf("failed to configure logging: %w", err)
	}

	m.mu.Lock()
	old := m.root
	m.root = root
	m.config = config
	m.loggers = map[string]*Logger{"default": root}
	m.mu.Unlock()

	return old.Close()
}

// UpdateConfig applies the hot-reloadable part of a new configuration (the level).
func (m *Manager) UpdateConfig(config *Config) error {
	if config == nil {
		return errors.New("config cannot be nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.config.Level = config.Level
	m.root.UpdateLevel(config.Level)
	m.root.Info("Log level updated", "level", config.Level)
	return nil
}

// GetLoggerNames 获取所有日志器名称
func (m *Manager) GetLoggerNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.loggers))
	for name := range m.loggers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close 关闭日志管理器
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.root.Close()
}

// GetLogger returns a module logger from the global manager.
func GetLogger(name string) *Logger {
	return GetManager().GetLogger(name)
}

// Default 获取默认日志器
func Default() *Logger {
	return GetLogger("default")
}

func Debug(msg string, args ...any) { Default().Debug(msg, args...) }
func Info(msg string, args ...any)  { Default().Info(msg, args...) }
func Warn(msg string, args ...any)  { Default().Warn(msg, args...) }
func Error(msg string, args ...any) { Default().Error(msg, args...) }
