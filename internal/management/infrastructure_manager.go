package management

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"rover/internal/config"
	"rover/internal/console"
	"rover/internal/hal"
	"rover/internal/hal/sim"
	"rover/internal/hardware/bridge"
	"rover/internal/hardware/pwm"
	"rover/internal/journal"
	"rover/internal/logging"
	"rover/pkg/types"
)

// InfraOption customises an InfrastructureManager.
type InfraOption func(*InfrastructureManager)

// WithBoard supplies the simulated board used for every "sim" driver.
func WithBoard(board *sim.Board) InfraOption {
	return func(im *InfrastructureManager) {
		im.board = board
	}
}

// WithConsoleInput feeds the console from r instead of opening its serial port.
func WithConsoleInput(r io.Reader) InfraOption {
	return func(im *InfrastructureManager) {
		im.consoleInput = r
	}
}

// InfrastructureManager owns the infrastructure layer: configuration,
// resource claims, hardware drivers, the journal and the console port.
type InfrastructureManager struct {
	configManager *config.ConfigManager
	resources     *hal.ResourceManager
	board         *sim.Board

	pwmDriver    hal.PWMDriver
	pins         hal.PinFactory
	journal      *journal.Journal
	consoleInput io.Reader

	closers []namedCloser
	claimed []hal.Claim
	started bool
	logger  *logging.Logger
}

type namedCloser struct {
	name   string
	closer io.Closer
}

// LoadOrCreateConfig loads configPath, writing the defaults there when the
// file cannot be loaded.
func LoadOrCreateConfig(configPath string) (*config.ConfigManager, error) {
	logger := logging.GetLogger("infrastructure")

	configManager := config.NewConfigManager(configPath)
	if err := configManager.LoadConfig(""); err != nil {
		logger.Warn("Failed to load config", "error", err, "path", configPath)
		logger.Info("Creating default configuration...")
		if err := configManager.CreateDefaultConfig(); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}
	return configManager, nil
}

// NewInfrastructureManager 创建基础设施管理器
func NewInfrastructureManager(configManager *config.ConfigManager, opts ...InfraOption) *InfrastructureManager {
	im := &InfrastructureManager{
		configManager: configManager,
		resources:     hal.NewResourceManager(),
		logger:        logging.GetLogger("infrastructure"),
	}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

func (im *InfrastructureManager) GetConfigManager() *config.ConfigManager {
	return im.configManager
}

func (im *InfrastructureManager) GetSystemConfig() types.SystemConfig {
	return im.configManager.GetConfig()
}

func (im *InfrastructureManager) GetResourceManager() *hal.ResourceManager {
	return im.resources
}

// PWM returns the shared PWM driver. Valid after Start.
func (im *InfrastructureManager) PWM() hal.PWMDriver { return im.pwmDriver }

// Pins returns the pin factory. Valid after Start.
func (im *InfrastructureManager) Pins() hal.PinFactory { return im.pins }

// Journal returns the journal, or nil when it is disabled.
func (im *InfrastructureManager) Journal() *journal.Journal { return im.journal }

// ConsoleInput returns the console line source, or nil when it is disabled.
func (im *InfrastructureManager) ConsoleInput() io.Reader { return im.consoleInput }

// Board returns the simulated board, if one is in use.
func (im *InfrastructureManager) Board() *sim.Board { return im.board }

// Start 启动基础设施层
func (im *InfrastructureManager) Start(ctx context.Context) error {
	if im.started {
		return fmt.Errorf("infrastructure is already running")
	}

	cfg := im.configManager.GetConfig()
	im.logger.Info("Starting infrastructure layer",
		"pwm_driver", cfg.Hardware.PWM.Driver, "io_driver", cfg.Hardware.IO.Driver)

	steps := []struct {
		name string
		fn   func(types.SystemConfig) error
	}{
		{"claim resources", im.claimResources},
		{"open pwm driver", im.openPWM},
		{"open pin factory", im.openPins},
		{"open journal", im.openJournal},
		{"open console", im.openConsole},
	}
	for _, step := range steps {
		if err := step.fn(cfg); err != nil {
			im.closeAll()
			im.releaseClaims()
			return fmt.Errorf("failed to %s: %w", step.name, err)
		}
	}

	// 启动配置监听
	if err := im.configManager.StartWatching(ctx); err != nil {
		im.logger.Warn("Failed to start config watcher", "error", err)
	}

	im.started = true
	im.logger.Info("Infrastructure layer started successfully")
	return nil
}

func (im *InfrastructureManager) claimResources(cfg types.SystemConfig) error {
	for role, pin := range cfg.Pins.All() {
		if err := im.claim(hal.KindPin, role, strconv.Itoa(pin)); err != nil {
			return err
		}
	}

	for _, w := range types.AllWheels() {
		ch := cfg.Motors.Channels(w)
		if err := im.claim(hal.KindPWMChannel, w.String()+"_motor",
			strconv.Itoa(ch.Forward), strconv.Itoa(ch.Reverse)); err != nil {
			return err
		}
	}

	if cfg.Hardware.PWM.Driver == types.DriverModbus && cfg.Hardware.PWM.Modbus.Type != "tcp" {
		if err := im.claim(hal.KindSerialPort, "pwm", cfg.Hardware.PWM.Modbus.Address); err != nil {
			return err
		}
	}
	if cfg.Hardware.IO.Driver == types.DriverBridge {
		if err := im.claim(hal.KindSerialPort, "bridge", cfg.Hardware.IO.Bridge.PortName); err != nil {
			return err
		}
	}
	if cfg.Console.Enabled && im.consoleInput == nil {
		if err := im.claim(hal.KindSerialPort, "console", cfg.Console.PortName); err != nil {
			return err
		}
	}
	return nil
}

// claim takes ids of one kind for owner and remembers them for releaseClaims.
func (im *InfrastructureManager) claim(kind, owner string, ids ...string) error {
	if err := im.resources.ClaimAll(kind, ids, owner); err != nil {
		return err
	}
	for _, id := range ids {
		im.claimed = append(im.claimed, hal.Claim{Kind: kind, ID: id, Owner: owner})
	}
	return nil
}

// releaseClaims returns this manager's claims in reverse order. Anything
// still held afterwards was claimed elsewhere and is force released.
func (im *InfrastructureManager) releaseClaims() {
	for i := len(im.claimed) - 1; i >= 0; i-- {
		c := im.claimed[i]
		if err := im.resources.Release(c.Kind, c.ID); err != nil {
			im.logger.Warn("Failed to release resource", "kind", c.Kind, "id", c.ID, "error", err)
		}
	}
	im.claimed = nil
	im.resources.ReleaseAll()
}

func (im *InfrastructureManager) simBoard() *sim.Board {
	if im.board == nil {
		im.board = sim.NewBoard()
	}
	return im.board
}

func (im *InfrastructureManager) openPWM(cfg types.SystemConfig) error {
	switch cfg.Hardware.PWM.Driver {
	case types.DriverModbus:
		driver, err := pwm.Dial(cfg.Hardware.PWM.Modbus)
		if err != nil {
			return err
		}
		im.pwmDriver = driver
		im.closers = append(im.closers, namedCloser{"pwm", driver})
	default:
		im.simBoard()
		im.pwmDriver = sim.NewPWM()
	}

	if err := im.pwmDriver.SetFrequency(cfg.Hardware.PWM.FrequencyHz); err != nil {
		return fmt.Errorf("failed to set pwm frequency: %w", err)
	}
	return nil
}

func (im *InfrastructureManager) openPins(cfg types.SystemConfig) error {
	switch cfg.Hardware.IO.Driver {
	case types.DriverBridge:
		b, err := bridge.Open(cfg.Hardware.IO.Bridge)
		if err != nil {
			return err
		}
		im.pins = b
		im.closers = append(im.closers, namedCloser{"bridge", b})
	default:
		board := im.simBoard()
		board.AttachEcho(cfg.Pins.Trigger, cfg.Pins.Echo)
		im.pins = board
	}
	return nil
}

func (im *InfrastructureManager) openJournal(cfg types.SystemConfig) error {
	if !cfg.Journal.Enabled {
		return nil
	}
	j, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		return err
	}
	im.journal = j
	im.closers = append(im.closers, namedCloser{"journal", j})
	return nil
}

func (im *InfrastructureManager) openConsole(cfg types.SystemConfig) error {
	if !cfg.Console.Enabled || im.consoleInput != nil {
		return nil
	}
	port, err := console.OpenPort(cfg.Console)
	if err != nil {
		return err
	}
	im.consoleInput = port
	im.closers = append(im.closers, namedCloser{"console", port})
	return nil
}

// closeAll closes opened handles in reverse order and returns their errors.
func (im *InfrastructureManager) closeAll() []error {
	var errs []error
	for i := len(im.closers) - 1; i >= 0; i-- {
		c := im.closers[i]
		if err := c.closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s close error: %w", c.name, err))
		}
	}
	im.closers = nil
	return errs
}

// Stop 停止基础设施层
func (im *InfrastructureManager) Stop() error {
	if !im.started {
		return fmt.Errorf("infrastructure is not running")
	}
	im.logger.Info("Stopping infrastructure layer")

	// 停止顺序与启动相反
	var errs []error

	if err := im.configManager.StopWatching(); err != nil {
		errs = append(errs, fmt.Errorf("config watcher stop error: %w", err))
	}
	errs = append(errs, im.closeAll()...)
	im.releaseClaims()
	im.started = false

	if len(errs) > 0 {
		return fmt.Errorf("infrastructure stop errors: %v", errs)
	}

	im.logger.Info("Infrastructure layer stopped successfully")
	return nil
}

// WatchConfigChanges 监听配置变化
func (im *InfrastructureManager) WatchConfigChanges(callback func(types.SystemConfig)) {
	im.configManager.WatchChanges(func(cfg types.SystemConfig) {
		im.logger.Info("Configuration changed, updating infrastructure...")
		if err := logging.GetManager().UpdateConfig(&cfg.Logging); err != nil {
			im.logger.Warn("Failed to update log level", "error", err)
		}
		callback(cfg)
	})
}
