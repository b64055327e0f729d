package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"rover/internal/console"
	"rover/internal/hal"
	"rover/internal/hal/sim"
)

// Step is one scenario action. Exactly one of its fields is expected to be
// set; Wait may accompany any of them and is applied afterwards.
type Step struct {
	Command  string        `yaml:"command"`
	Distance *int          `yaml:"distance"`
	NoEcho   bool          `yaml:"no_echo"`
	Line     []int         `yaml:"line"`
	Wait     time.Duration `yaml:"wait"`
	Status   string        `yaml:"status"`
}

type Scenario struct {
	Name  string `yaml:"name"`
	Steps []Step `yaml:"steps"`
}

func LoadScenario(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("failed to read scenario: %w", err)
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return Scenario{}, fmt.Errorf("failed to parse scenario: %w", err)
	}
	return sc, nil
}

// Run applies each step to the simulator in order.
func (sc Scenario) Run(s *Simulator) error {
	s.logger.Info("Running scenario", "name", sc.Name, "steps", len(sc.Steps))

	cfg := s.infrastructure.GetSystemConfig()
	echo, ok := s.board.Echo(cfg.Pins.Echo)
	if !ok {
		return fmt.Errorf("no echo sensor on pin %d", cfg.Pins.Echo)
	}

	for i, step := range sc.Steps {
		switch {
		case step.Command != "":
			w, ok, err := console.ParseWord(step.Command)
			if err != nil {
				return fmt.Errorf("step %d: %w", i, err)
			}
			if ok {
				if err := s.application.Submit(w); err != nil {
					s.logger.Warn("Command dropped", "step", i, "word", w, "error", err)
				}
			}
		case step.Distance != nil:
			echo.SetDistance(*step.Distance)
		case step.NoEcho:
			echo.SetMode(sim.EchoNone)
		case len(step.Line) > 0:
			if len(step.Line) != 3 {
				return fmt.Errorf("step %d: line needs three levels, got %d", i, len(step.Line))
			}
			pins := []int{cfg.Pins.LineLeft, cfg.Pins.LineCenter, cfg.Pins.LineRight}
			for j, v := range step.Line {
				level := hal.Low
				if v != 0 {
					level = hal.High
				}
				s.board.SetLevel(pins[j], level)
			}
		case step.Status != "":
			s.printStatus(step.Status)
		}

		if step.Wait > 0 {
			time.Sleep(step.Wait)
		}
	}
	return nil
}

func intPtr(v int) *int { return &v }

// demoScenario drives forward, meets an obstacle, backs away and follows a
// short stretch of line.
var demoScenario = Scenario{
	Name: "demo",
	Steps: []Step{
		{Distance: intPtr(800)},
		{Command: "0x40000400", Wait: 100 * time.Millisecond},
		{Command: "0x20000001", Wait: 200 * time.Millisecond},
		{Status: "driving forward"},
		{Distance: intPtr(120), Wait: 200 * time.Millisecond},
		{Status: "obstacle"},
		{Command: "0x20000002", Wait: 100 * time.Millisecond},
		{Distance: intPtr(900), Wait: 300 * time.Millisecond},
		{Status: "reversing"},
		{Command: "0x20000010"},
		{Command: "0x80000001"},
		{Command: "0x80000003", Wait: 100 * time.Millisecond},
		{Line: []int{0, 1, 0}, Wait: 150 * time.Millisecond},
		{Line: []int{1, 0, 0}, Wait: 150 * time.Millisecond},
		{Status: "line following"},
		{Line: []int{1, 1, 1}, Wait: 300 * time.Millisecond},
		{Command: "0x80000002", Wait: 100 * time.Millisecond},
	},
}
