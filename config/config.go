// Package config provides configuration loading and access for the trail renderer.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ErrInvalid is returned when a loaded configuration fails validation.
var ErrInvalid = errors.New("invalid config")

// Grid modes.
const (
	ModeFull    = "full"
	ModeReduced = "reduced"
)

// Precision choices for the particle state store.
const (
	PrecisionAuto    = "auto"
	PrecisionFloat32 = "float32"
	PrecisionFloat16 = "float16"
)

// Blend modes for trail splats.
const (
	BlendAdditive = "additive"
	BlendReplace  = "replace"
)

// Config holds all configuration parameters.
type Config struct {
	Screen     ScreenConfig     `yaml:"screen"`
	Particles  ParticlesConfig  `yaml:"particles"`
	Simulation SimulationConfig `yaml:"simulation"`
	Trail      TrailConfig      `yaml:"trail"`
	Palette    PaletteConfig    `yaml:"palette"`
	Camera     CameraConfig     `yaml:"camera"`
	GPU        GPUConfig        `yaml:"gpu"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Stream     StreamConfig     `yaml:"stream"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// ScreenConfig holds display settings.
type ScreenConfig struct {
	Width     int    `yaml:"width"`
	Height    int    `yaml:"height"`
	TargetFPS int    `yaml:"target_fps"`
	Title     string `yaml:"title"`
}

// GridConfig is a particle grid resolution.
type GridConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// ParticlesConfig selects the particle grid size.
// Full and reduced replace the separate desktop and mobile setups.
type ParticlesConfig struct {
	Mode    string     `yaml:"mode"` // full | reduced
	Full    GridConfig `yaml:"full"`
	Reduced GridConfig `yaml:"reduced"`
}

// SimulationConfig holds per-particle update parameters.
// Positions live in unit-sphere space.
type SimulationConfig struct {
	AgeWrap           float64 `yaml:"age_wrap"`           // Age counter wraps modulo this
	MaxDrift          float64 `yaml:"max_drift"`          // Upper bound on per-step displacement
	DriftStrength     float64 `yaml:"drift_strength"`     // Noise displacement scale
	NoiseScale        float64 `yaml:"noise_scale"`        // Spatial frequency of the drift field
	NoiseSpeed        float64 `yaml:"noise_speed"`        // Temporal frequency of the drift field
	InfluenceRadius   float64 `yaml:"influence_radius"`   // Pointer influence distance
	InfluenceStrength float64 `yaml:"influence_strength"` // >0 repels, <0 attracts
	Respawn           bool    `yaml:"respawn"`            // Reset to origin when age wraps
	RadiusMin         float64 `yaml:"radius_min"`         // Shell inner radius for the initial distribution
	RadiusJitter      float64 `yaml:"radius_jitter"`      // Added random radius range
	Workers           int     `yaml:"workers"`            // 0 = GOMAXPROCS
}

// TrailConfig holds trail buffer parameters.
type TrailConfig struct {
	Width          int     `yaml:"width"`
	Height         int     `yaml:"height"`
	FadeDelta      int     `yaml:"fade_delta"`      // Per-frame subtraction in 0..255 units
	PointSize      float64 `yaml:"point_size"`      // Splat diameter in pixels
	Blend          string  `yaml:"blend"`           // additive | replace
	FollowViewport bool    `yaml:"follow_viewport"` // Derive trail size from the window
	ViewportScale  float64 `yaml:"viewport_scale"`  // Trail width = viewport width * this
}

// PaletteConfig holds color settings.
type PaletteConfig struct {
	Period     float64 `yaml:"period"`      // Color cycle period in time units
	ColorCycle bool    `yaml:"color_cycle"` // Initial state of the color toggle
	TimeScale  float64 `yaml:"time_scale"`  // Time units per millisecond
}

// CameraConfig holds compositor camera and sphere settings.
type CameraConfig struct {
	Distance      float64 `yaml:"distance"`
	FOV           float64 `yaml:"fov"` // vertical, degrees
	Near          float64 `yaml:"near"`
	Far           float64 `yaml:"far"`
	SphereRadius  float64 `yaml:"sphere_radius"`
	RotationSpeed float64 `yaml:"rotation_speed"` // radians per time unit about Y
	SphereRings   int     `yaml:"sphere_rings"`
	SphereSlices  int     `yaml:"sphere_slices"`
	ShowPoints    bool    `yaml:"show_points"`
	PointScale    float64 `yaml:"point_scale"` // Debug points are drawn at position * this
}

// GPUConfig holds buffer precision settings.
type GPUConfig struct {
	Precision      string `yaml:"precision"`        // auto | float32 | float16
	FloatTextures  bool   `yaml:"float_textures"`   // Full-precision storage available
	MaxBufferBytes int64  `yaml:"max_buffer_bytes"` // Budget for all pipeline buffers, 0 = unlimited
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	StatsWindow         int `yaml:"stats_window"` // Frames between stats records
	PerfCollectorWindow int `yaml:"perf_collector_window"`
}

// StreamConfig holds websocket streaming settings.
type StreamConfig struct {
	Addr         string        `yaml:"addr"`          // Empty disables streaming
	Interval     int           `yaml:"interval"`      // Frames between broadcasts
	Width        int           `yaml:"width"`         // Downscaled frame width
	WriteTimeout time.Duration `yaml:"write_timeout"` // A viewer slower than this per frame is dropped
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	GridWidth  int
	GridHeight int
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Default returns a fresh copy of the embedded defaults.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults are broken: %v", err))
	}
	return cfg
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

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.computeDerived()

	return cfg, nil
}

// Validate checks value ranges. Startup parameters are fixed afterwards.
func (c *Config) Validate() error {
	switch c.Particles.Mode {
	case ModeFull, ModeReduced:
	default:
		return fmt.Errorf("%w: particles.mode %q", ErrInvalid, c.Particles.Mode)
	}
	for name, g := range map[string]GridConfig{"full": c.Particles.Full, "reduced": c.Particles.Reduced} {
		if g.Width <= 0 || g.Height <= 0 {
			return fmt.Errorf("%w: particles.%s grid %dx%d", ErrInvalid, name, g.Width, g.Height)
		}
	}
	if c.Simulation.AgeWrap <= 0 {
		return fmt.Errorf("%w: simulation.age_wrap must be positive", ErrInvalid)
	}
	if c.Simulation.MaxDrift < 0 {
		return fmt.Errorf("%w: simulation.max_drift must not be negative", ErrInvalid)
	}
	if c.Trail.Width <= 0 || c.Trail.Height <= 0 {
		return fmt.Errorf("%w: trail size %dx%d", ErrInvalid, c.Trail.Width, c.Trail.Height)
	}
	if c.Trail.FadeDelta < 1 || c.Trail.FadeDelta > 255 {
		return fmt.Errorf("%w: trail.fade_delta %d not in [1, 255]", ErrInvalid, c.Trail.FadeDelta)
	}
	switch c.Trail.Blend {
	case BlendAdditive, BlendReplace:
	default:
		return fmt.Errorf("%w: trail.blend %q", ErrInvalid, c.Trail.Blend)
	}
	switch c.GPU.Precision {
	case PrecisionAuto, PrecisionFloat32, PrecisionFloat16:
	default:
		return fmt.Errorf("%w: gpu.precision %q", ErrInvalid, c.GPU.Precision)
	}
	if c.Palette.Period <= 0 {
		return fmt.Errorf("%w: palette.period must be positive", ErrInvalid)
	}
	if err := c.Camera.validate(); err != nil {
		return err
	}
	return nil
}

func (c CameraConfig) validate() error {
	if c.SphereRadius <= 0 {
		return fmt.Errorf("%w: camera.sphere_radius must be positive", ErrInvalid)
	}
	if c.SphereRings < 3 || c.SphereSlices < 3 {
		return fmt.Errorf("%w: camera sphere mesh %dx%d needs at least 3 rings and 3 slices",
			ErrInvalid, c.SphereRings, c.SphereSlices)
	}
	if c.FOV <= 0 || c.FOV >= 180 {
		return fmt.Errorf("%w: camera.fov %v not in (0, 180)", ErrInvalid, c.FOV)
	}
	if c.Distance <= 0 {
		return fmt.Errorf("%w: camera.distance must be positive", ErrInvalid)
	}
	if c.Near <= 0 || c.Far <= c.Near {
		return fmt.Errorf("%w: camera clip planes near=%v far=%v", ErrInvalid, c.Near, c.Far)
	}
	return nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	grid := c.Particles.Full
	if c.Particles.Mode == ModeReduced {
		grid = c.Particles.Reduced
	}
	c.Derived.GridWidth = grid.Width
	c.Derived.GridHeight = grid.Height

	if c.Telemetry.StatsWindow < 1 {
		c.Telemetry.StatsWindow = 60
	}
	if c.Stream.Interval < 1 {
		c.Stream.Interval = 1
	}
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
