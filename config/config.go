// Package config provides configuration loading and access for the
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

// Config holds all navigation runtime parameters.
type Config struct {
	Pathfinder PathfinderConfig `yaml:"pathfinder"`
	Agent      AgentConfig      `yaml:"agent"`
	Behavior   BehaviorConfig   `yaml:"behavior"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Viewer     ViewerConfig     `yaml:"viewer"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// PathfinderConfig holds query-engine parameters.
type PathfinderConfig struct {
	MaxSearchNodes int     `yaml:"max_search_nodes"` // node budget per path query
	ExtentX        float64 `yaml:"extent_x"`         // default search box half-extents
	ExtentY        float64 `yaml:"extent_y"`
	ExtentZ        float64 `yaml:"extent_z"`
}

// AgentConfig holds steering defaults applied to spawned agents.
type AgentConfig struct {
	MaxSpeed         float64 `yaml:"max_speed"`
	Acceleration     float64 `yaml:"acceleration"`
	Deceleration     float64 `yaml:"deceleration"`
	CornerThreshold  float64 `yaml:"corner_threshold"`  // corner advance distance
	StoppingDistance float64 `yaml:"stopping_distance"` // final waypoint acceptance
	RepathInterval   float64 `yaml:"repath_interval"`   // 0 disables automatic repath
}

// BehaviorConfig holds behavior-layer tuning.
type BehaviorConfig struct {
	WanderRetryDelay  float64 `yaml:"wander_retry_delay"`  // retry after a failed wander sample
	PatrolFailedDelay float64 `yaml:"patrol_failed_delay"` // delay before skipping a bad patrol point
	FleeFallbackScale float64 `yaml:"flee_fallback_scale"` // fallback radius fraction of flee distance
	FleeMaxAttempts   int     `yaml:"flee_max_attempts"`   // failed fallbacks before a forced move
	FleeSnapRadius    float64 `yaml:"flee_snap_radius"`    // mesh snap radius for flee targets
}

// TelemetryConfig holds stats-collection parameters.
type TelemetryConfig struct {
	Enabled     bool    `yaml:"enabled"`
	StatsWindow float64 `yaml:"stats_window"` // seconds per aggregation window
	OutputDir   string  `yaml:"output_dir"`
}

// ViewerConfig holds display settings.
type ViewerConfig struct {
	Width     int     `yaml:"width"`
	Height    int     `yaml:"height"`
	TargetFPS int     `yaml:"target_fps"`
	Scale     float64 `yaml:"scale"` // pixels per world unit
}

// DerivedConfig holds values computed from the loaded configuration.
type DerivedConfig struct {
	ExtentX32 float32
	ExtentY32 float32
	ExtentZ32 float32
	Scale32   float32
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded
// defaults if path is empty. Must be called before Cfg().
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

// Load loads configuration from a YAML file, merging with embedded
// defaults. If path is empty, only embedded defaults are used.
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
		// Unmarshal into the same struct - only overwrites fields
		// present in the file.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.computeDerived()
	return cfg, nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived.ExtentX32 = float32(c.Pathfinder.ExtentX)
	c.Derived.ExtentY32 = float32(c.Pathfinder.ExtentY)
	c.Derived.ExtentZ32 = float32(c.Pathfinder.ExtentZ)
	if c.Viewer.Scale <= 0 {
		c.Viewer.Scale = 20
	}
	c.Derived.Scale32 = float32(c.Viewer.Scale)
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
