// Package config provides configuration loading and access for the crowd
// navigation runtime.
package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all navigation configuration parameters.
type Config struct {
	Field      FieldConfig      `yaml:"field"`
	Physics    PhysicsConfig    `yaml:"physics"`
	Navigation NavigationConfig `yaml:"navigation"`
	Avoidance  AvoidanceConfig  `yaml:"avoidance"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// FieldConfig sizes the navigation grid.
type FieldConfig struct {
	Width    int     `yaml:"width"`
	Height   int     `yaml:"height"`
	CellSize float64 `yaml:"cell_size"`
}

// PhysicsConfig holds simulation stepping parameters.
type PhysicsConfig struct {
	DT float64 `yaml:"dt"`
}

// NavigationConfig holds flow-field build parameters.
type NavigationConfig struct {
	AgentHeight  float64 `yaml:"agent_height"`  // obstacles outside [0, this] are ignored
	AsyncBuild   bool    `yaml:"async_build"`   // build flow fields on the worker pool
	BuildWorkers int     `yaml:"build_workers"` // 0 = GOMAXPROCS
}

// AvoidanceConfig holds local-avoidance tuning.
type AvoidanceConfig struct {
	AgentNeighborhood   float64 `yaml:"agent_neighborhood"`    // neighbor radius, multiples of agent diameter
	TimeHorizon         float64 `yaml:"time_horizon"`          // seconds, agent-agent
	ObstacleTimeHorizon float64 `yaml:"obstacle_time_horizon"` // seconds, static geometry
}

// TelemetryConfig holds stats output parameters.
type TelemetryConfig struct {
	StatsWindow float64 `yaml:"stats_window"` // seconds per stats window
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	DT32          float32
	CellSize32    float32
	WorldW32      float32 // field extent in world units
	WorldH32      float32
	AgentHeight32 float32
}

var global *Config

// Init loads the configuration into the package global.
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.computeDerived()

	return cfg, nil
}

func (c *Config) computeDerived() {
	c.Derived.DT32 = float32(c.Physics.DT)
	c.Derived.CellSize32 = float32(c.Field.CellSize)
	c.Derived.WorldW32 = float32(c.Field.Width) * c.Derived.CellSize32
	c.Derived.WorldH32 = float32(c.Field.Height) * c.Derived.CellSize32
	c.Derived.AgentHeight32 = float32(c.Navigation.AgentHeight)
}

// WriteYAML saves the configuration to a file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
