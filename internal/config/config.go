// Package config loads the experiment configuration: recipe location,
// cycle count, method parameters, valve ports, per-cycle reagents, and
// flowcell sections.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Method parameter defaults, matching the instrument's stock method
// files.
const (
	DefaultFlushVolume    = 2000 // uL
	DefaultFlushSpeed     = 700  // uL/min
	DefaultReagentSpeed   = 40   // uL/min
	DefaultBarrelsPerLane = 8
	DefaultLaserPower     = 100 // percent
)

// Experiment identifies the run and its outputs.
type Experiment struct {
	Name          string `yaml:"name"`
	Recipe        string `yaml:"recipe"`
	Cycles        int    `yaml:"cycles"`
	SavePath      string `yaml:"save_path"`
	LogPath       string `yaml:"log_path"`
	ImagePath     string `yaml:"image_path"`
	FirstFlowcell string `yaml:"first_flowcell"`
}

// Method holds method-specific fluidics and optics parameters.
type Method struct {
	FirstPort        string   `yaml:"first_port"`
	VariableReagents []string `yaml:"variable_reagents"`
	FlushVolume      int      `yaml:"flush_volume"`
	FlushSpeed       int      `yaml:"flush_speed"`
	ReagentSpeed     int      `yaml:"reagent_speed"`
	BarrelsPerLane   int      `yaml:"barrels_per_lane"`
	LaserPower       int      `yaml:"laser_power"`

	// ObjectiveFocus selects the fine-focus policy per section:
	// "refine" (default) refines every cycle, "never" skips fine focus,
	// and a number is a fixed cached objective position.
	ObjectiveFocus string `yaml:"objective_focus"`

	// ZStart, when set, seeds the coarse focus cache for every section
	// instead of running rough autofocus on the first pass.
	ZStart *[3]int `yaml:"z_start"`
}

// CycleReagent assigns a reagent to a variable name for one cycle.
type CycleReagent struct {
	Variable string `yaml:"variable"`
	Cycle    int    `yaml:"cycle"`
	Reagent  string `yaml:"reagent"`
}

// Section places a named imaging region on a flowcell. Declaration
// order is the imaging order.
type Section struct {
	Name     string     `yaml:"name"`
	Flowcell string     `yaml:"flowcell"`
	Coords   [4]float64 `yaml:"coords"`
}

// Config is the full experiment configuration.
type Config struct {
	Experiment    Experiment     `yaml:"experiment"`
	Method        Method         `yaml:"method"`
	Valve         map[int]string `yaml:"valve"`
	CycleReagents []CycleReagent `yaml:"cycle_reagents"`
	Sections      []Section      `yaml:"sections"`

	// MetricsListen, when set, serves prometheus metrics during the run.
	MetricsListen string `yaml:"metrics_listen"`
}

// Load reads and validates a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Experiment.LogPath == "" {
		c.Experiment.LogPath = "logs"
	}
	if c.Experiment.ImagePath == "" {
		c.Experiment.ImagePath = "images"
	}
	if c.Method.FlushVolume == 0 {
		c.Method.FlushVolume = DefaultFlushVolume
	}
	if c.Method.FlushSpeed == 0 {
		c.Method.FlushSpeed = DefaultFlushSpeed
	}
	if c.Method.ReagentSpeed == 0 {
		c.Method.ReagentSpeed = DefaultReagentSpeed
	}
	if c.Method.BarrelsPerLane == 0 {
		c.Method.BarrelsPerLane = DefaultBarrelsPerLane
	}
	if c.Method.LaserPower == 0 {
		c.Method.LaserPower = DefaultLaserPower
	}
}

func (c *Config) validate() error {
	if c.Experiment.Name == "" {
		return fmt.Errorf("experiment name is required")
	}
	if c.Experiment.Recipe == "" {
		return fmt.Errorf("experiment recipe is required")
	}
	if c.Experiment.Cycles < 1 {
		return fmt.Errorf("experiment cycles must be at least 1, got %d", c.Experiment.Cycles)
	}
	if len(c.Sections) == 0 {
		return fmt.Errorf("at least one section is required")
	}

	seen := map[string]bool{}
	positions := map[string]bool{}
	for _, s := range c.Sections {
		if s.Name == "" {
			return fmt.Errorf("section without a name")
		}
		if seen[s.Name] {
			return fmt.Errorf("section %q duplicated, check section names", s.Name)
		}
		seen[s.Name] = true
		if s.Flowcell != "A" && s.Flowcell != "B" {
			return fmt.Errorf("section %q must be on flowcell A or B, got %q", s.Name, s.Flowcell)
		}
		positions[s.Flowcell] = true
	}

	if len(positions) > 1 {
		if c.Experiment.FirstFlowcell == "" {
			c.Experiment.FirstFlowcell = "A"
		}
		if !positions[c.Experiment.FirstFlowcell] {
			return fmt.Errorf("first flowcell %q does not exist", c.Experiment.FirstFlowcell)
		}
	}
	return nil
}

// RecipePath resolves the recipe location relative to the config file's
// directory when it is not absolute.
func (c *Config) RecipePath(configPath string) string {
	if filepath.IsAbs(c.Experiment.Recipe) {
		return c.Experiment.Recipe
	}
	return filepath.Join(filepath.Dir(configPath), c.Experiment.Recipe)
}

// SaveDir is the per-run output directory.
func (c *Config) SaveDir() string {
	return filepath.Join(c.Experiment.SavePath, c.Experiment.Name)
}

// LogDir is the per-run log directory.
func (c *Config) LogDir() string {
	return filepath.Join(c.SaveDir(), c.Experiment.LogPath)
}

// ImageDir is the per-run image directory.
func (c *Config) ImageDir() string {
	return filepath.Join(c.SaveDir(), c.Experiment.ImagePath)
}

// SaveCopy writes the effective configuration next to the run logs so
// the run is reproducible from its outputs.
func (c *Config) SaveCopy(dir string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), data, 0644); err != nil {
		return fmt.Errorf("failed to save config copy: %w", err)
	}
	return nil
}
