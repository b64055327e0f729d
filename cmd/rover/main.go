// Command rover runs the wheeled-robot control core: it loads the YAML
// configuration, opens the hardware drivers and runs the controller,
// collision guard, ranger, line tracker and horn tasks until SIGINT or
// SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rover/internal/logging"
	"rover/internal/management"
	"rover/pkg/types"
)

type RoverSystem struct {
	infrastructure *management.InfrastructureManager
	application    *management.ApplicationManager
	ctx            context.Context
	cancel         context.CancelFunc
	running        bool
}

func NewRoverSystem(configPath string) (*RoverSystem, error) {
	// 1. 加载配置文件, 失败时写入默认配置
	configManager, err := management.LoadOrCreateConfig(configPath)
	if err != nil {
		return nil, err
	}

	// 2. 按配置初始化日志
	systemConfig := configManager.GetConfig()
	if err := logging.GetManager().Configure(&systemConfig.Logging); err != nil {
		log.Printf("Warning: failed to configure logging: %v", err)
	}

	// 3. 创建基础设施层
	return &RoverSystem{
		infrastructure: management.NewInfrastructureManager(configManager),
	}, nil
}

func (rs *RoverSystem) Start() error {
	if rs.running {
		return fmt.Errorf("system is already running")
	}

	rs.ctx, rs.cancel = context.WithCancel(context.Background())

	log.Println("Starting rover control system...")

	// 1. 启动基础设施层 (配置监听、驱动、日志存储)
	if err := rs.infrastructure.Start(rs.ctx); err != nil {
		rs.cancel()
		return fmt.Errorf("failed to start infrastructure layer: %w", err)
	}

	// 2. 创建并启动应用层
	application, err := management.NewApplicationManager(rs.infrastructure, rs.infrastructure.GetSystemConfig())
	if err != nil {
		rs.stopInfrastructure()
		return fmt.Errorf("failed to create application manager: %w", err)
	}
	if err := application.Start(rs.ctx); err != nil {
		rs.stopInfrastructure()
		return fmt.Errorf("failed to start application layer: %w", err)
	}
	rs.application = application

	// 3. 设置配置监听
	rs.infrastructure.WatchConfigChanges(func(config types.SystemConfig) {
		log.Println("Configuration changed, updating system...")
		rs.application.ApplyConfig(config)
	})

	rs.running = true
	log.Println("Rover control system started successfully")

	rs.printSystemInfo()
	return nil
}

func (rs *RoverSystem) stopInfrastructure() {
	rs.cancel()
	if err := rs.infrastructure.Stop(); err != nil {
		log.Printf("Error stopping infrastructure layer: %v", err)
	}
}

func (rs *RoverSystem) Stop() error {
	if !rs.running {
		return fmt.Errorf("system is not running")
	}

	log.Println("Stopping rover control system...")

	// 停止顺序: 应用层 -> 基础设施层 (与启动相反)
	var errs []error

	if rs.application != nil {
		log.Println("Stopping application layer...")
		if err := rs.application.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("application layer stop error: %w", err))
		}
	}

	if rs.cancel != nil {
		rs.cancel()
	}

	log.Println("Stopping infrastructure layer...")
	if err := rs.infrastructure.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("infrastructure layer stop error: %w", err))
	}

	rs.running = false
	if len(errs) > 0 {
		return fmt.Errorf("errors during system shutdown: %v", errs)
	}

	log.Println("Rover control system stopped")
	return nil
}

func (rs *RoverSystem) printSystemInfo() {
	config := rs.infrastructure.GetSystemConfig()

	fmt.Println("==========================================")
	fmt.Println("  Rover Control System")
	fmt.Println("==========================================")
	fmt.Printf("  PWM Driver: %s (%d Hz)\n", config.Hardware.PWM.Driver, config.Hardware.PWM.FrequencyHz)
	fmt.Printf("  IO Driver: %s\n", config.Hardware.IO.Driver)
	fmt.Printf("  Collision Guard: %v (min %d mm)\n", config.Collision.Enabled, config.Collision.MinimumDistance)
	fmt.Printf("  Console: %v %s\n", config.Console.Enabled, config.Console.PortName)
	fmt.Printf("  Journal: %v %s\n", config.Journal.Enabled, config.Journal.Path)
	fmt.Println("==========================================")

	for _, w := range types.AllWheels() {
		ch := config.Motors.Channels(w)
		fmt.Printf("  Motor %s: forward ch%d, reverse ch%d\n", w, ch.Forward, ch.Reverse)
	}
	for role, pin := range config.Pins.All() {
		fmt.Printf("  Pin %s: %d\n", role, pin)
	}

	fmt.Println("==========================================")
}

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "Path to configuration file")
	)

	flag.Parse()

	fmt.Println("Rover Control System - Starting up...")

	system, err := NewRoverSystem(*configPath)
	if err != nil {
		log.Fatalf("Failed to create rover control system: %v", err)
	}

	if err := system.Start(); err != nil {
		log.Fatalf("Failed to start rover control system: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan

	fmt.Println("\nReceived shutdown signal...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := system.Stop(); err != nil {
			log.Printf("Error during shutdown: %v", err)
			return
		}
		log.Println("Graceful shutdown completed successfully")
	}()

	select {
	case <-done:
		fmt.Println("Rover control system shutdown complete")
	case <-shutdownCtx.Done():
		log.Println("Shutdown timeout reached, forcing exit")
		os.Exit(1)
	}
}
