// Command simulator runs the rover control core against a simulated board.
// It replays a YAML scenario of command words, obstacle distances and line
// sensor levels, or forwards command words typed on stdin.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli"

	"rover/internal/config"
	"rover/internal/hal"
	"rover/internal/hal/sim"
	"rover/internal/logging"
	"rover/internal/management"
	"rover/pkg/types"
)

type Simulator struct {
	board          *sim.Board
	infrastructure *management.InfrastructureManager
	application    *management.ApplicationManager
	cancel         context.CancelFunc
	running        bool
	logger         *logging.Logger
}

// simulatedConfig loads configPath (or the defaults) and forces every
// hardware driver onto the simulated board.
func simulatedConfig(configPath string) (types.SystemConfig, error) {
	cfg := config.DefaultConfig()
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if cfg, err = config.Parse(data); err != nil {
			return cfg, err
		}
	}

	cfg.Hardware.PWM.Driver = types.DriverSim
	cfg.Hardware.IO.Driver = types.DriverSim
	cfg.Console.Enabled = false
	return cfg, nil
}

func NewSimulator(cfg types.SystemConfig, workDir string, stdin bool) (*Simulator, error) {
	configManager := config.NewConfigManager(filepath.Join(workDir, "simulator.yaml"))
	if err := configManager.SetConfig(cfg); err != nil {
		return nil, fmt.Errorf("failed to write simulator config: %w", err)
	}

	board := sim.NewBoard()
	opts := []management.InfraOption{management.WithBoard(board)}
	if stdin {
		opts = append(opts, management.WithConsoleInput(os.Stdin))
	}

	return &Simulator{
		board:          board,
		infrastructure: management.NewInfrastructureManager(configManager, opts...),
		logger:         logging.GetLogger("simulator"),
	}, nil
}

func (s *Simulator) Start() error {
	if s.running {
		return fmt.Errorf("simulator is already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	if err := s.infrastructure.Start(ctx); err != nil {
		cancel()
		return fmt.Errorf("failed to start infrastructure layer: %w", err)
	}

	application, err := management.NewApplicationManager(s.infrastructure, s.infrastructure.GetSystemConfig())
	if err == nil {
		err = application.Start(ctx)
	}
	if err != nil {
		cancel()
		if stopErr := s.infrastructure.Stop(); stopErr != nil {
			s.logger.Error("Failed to stop infrastructure", "error", stopErr)
		}
		return fmt.Errorf("failed to start application layer: %w", err)
	}
	s.application = application

	s.running = true
	s.logger.Info("Simulator started")
	return nil
}

func (s *Simulator) Stop() error {
	if !s.running {
		return fmt.Errorf("simulator is not running")
	}

	var errs []error
	if err := s.application.Stop(); err != nil {
		errs = append(errs, err)
	}
	s.cancel()
	if err := s.infrastructure.Stop(); err != nil {
		errs = append(errs, err)
	}
	s.running = false

	if len(errs) > 0 {
		return fmt.Errorf("simulator stop errors: %v", errs)
	}
	s.logger.Info("Simulator stopped")
	return nil
}

func (s *Simulator) printStatus(label string) {
	st := s.application.Status()
	cfg := s.infrastructure.GetSystemConfig()

	fmt.Printf("---- %s ----\n", label)
	fmt.Printf("  speed=%d steering=%d dropped=%d\n", st.Controller.Speed, st.Controller.Steering, st.Dropped)
	for _, w := range types.AllWheels() {
		ws := st.Controller.Wheels[w]
		fmt.Printf("  %-12s %-8s %4d\n", w, ws.Direction, ws.Speed)
	}
	if pwm, ok := s.infrastructure.PWM().(*sim.PWM); ok {
		for _, w := range types.AllWheels() {
			ch := cfg.Motors.Channels(w)
			fmt.Printf("  pwm %-12s fwd=%4d rev=%4d\n", w, pwm.Duty(hal.Channel(ch.Forward)), pwm.Duty(hal.Channel(ch.Reverse)))
		}
	}
	fmt.Printf("  ranger current=%d min=%d max=%d avg=%d reads=%d valid=%d\n",
		st.Ranger.Current, st.Ranger.Min, st.Ranger.Max, st.Ranger.Average,
		st.Ranger.ReadCount, st.Ranger.ValidReadCount)
	if st.Guard != nil {
		fmt.Printf("  guard min=%d count=%d alerting=%v stops=%d\n",
			st.Guard.MinimumDistance, st.Guard.ViolationCount, st.Guard.Alerting, st.Guard.Stops)
	}
	fmt.Printf("  horn level=%s length=%d period=%d\n", st.Horn.Level, st.Horn.Length, st.Horn.Period)
	fmt.Printf("  line active=%v following=%v\n", st.LineActive, st.Following)
}

func main() {
	app := cli.NewApp()
	app.Name = "simulator"
	app.Usage = "run the rover control core on a simulated board"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config",
			Usage: "rover configuration file (defaults when empty)",
		},
		cli.StringFlag{
			Name:  "scenario",
			Usage: "YAML scenario to replay (built-in demo when empty)",
		},
		cli.BoolFlag{
			Name:  "stdin",
			Usage: "read command words from stdin until interrupted",
		},
		cli.StringFlag{
			Name:  "log-level",
			Value: "info",
			Usage: "debug, info, warn or error",
		},
	}
	app.Action = func(c *cli.Context) error {
		logConfig := logging.DefaultConfig()
		logConfig.Level = c.String("log-level")
		if err := logging.GetManager().Configure(logConfig); err != nil {
			return err
		}

		cfg, err := simulatedConfig(c.String("config"))
		if err != nil {
			return err
		}
		cfg.Logging = *logConfig

		workDir, err := os.MkdirTemp("", "rover-sim-")
		if err != nil {
			return err
		}
		defer os.RemoveAll(workDir)
		if cfg.Journal.Enabled {
			cfg.Journal.Path = filepath.Join(workDir, "journal.db")
		}

		sc := demoScenario
		if path := c.String("scenario"); path != "" {
			if sc, err = LoadScenario(path); err != nil {
				return err
			}
		}

		s, err := NewSimulator(cfg, workDir, c.Bool("stdin"))
		if err != nil {
			return err
		}
		if err := s.Start(); err != nil {
			return err
		}

		if c.Bool("stdin") {
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			<-sigChan
		} else if err := sc.Run(s); err != nil {
			s.Stop()
			return err
		}

		s.printStatus("final")
		return s.Stop()
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
