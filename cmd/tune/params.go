package main

import (
	"math"

	"github.com/pthm-cable/orbtrail/config"
)

// ParamSpec defines a single tunable parameter.
type ParamSpec struct {
	Name    string  // Human-readable name
	Path    string  // Config path for logging
	Min     float64 // Lower bound
	Max     float64 // Upper bound
	Default float64 // Default value
}

// ParamVector holds the set of all tunable parameters.
type ParamVector struct {
	Specs []ParamSpec
}

// NewParamVector creates the standard set of tunable parameters. Defaults are
// read from base so a tuning run starts from the config being refined.
func NewParamVector(base *config.Config) *ParamVector {
	pv := &ParamVector{
		Specs: []ParamSpec{
			// Drift
			{Name: "drift_strength", Path: "simulation.drift_strength", Min: 0.0005, Max: 0.02},
			{Name: "noise_scale", Path: "simulation.noise_scale", Min: 0.2, Max: 6.0},
			{Name: "noise_speed", Path: "simulation.noise_speed", Min: 0.0, Max: 3.0},
			// Trail
			{Name: "fade_delta", Path: "trail.fade_delta", Min: 1, Max: 32},
			{Name: "point_size", Path: "trail.point_size", Min: 1, Max: 4},
		},
	}
	defaults := pv.ExtractFromConfig(base)
	for i := range pv.Specs {
		pv.Specs[i].Default = defaults[i]
	}
	return pv
}

// Dim returns the number of parameters.
func (pv *ParamVector) Dim() int {
	return len(pv.Specs)
}

// DefaultVector returns the default parameter values as a slice.
func (pv *ParamVector) DefaultVector() []float64 {
	v := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		v[i] = spec.Default
	}
	return v
}

// Normalize converts raw parameter values to [0,1] range.
func (pv *ParamVector) Normalize(raw []float64) []float64 {
	normalized := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		normalized[i] = (raw[i] - spec.Min) / (spec.Max - spec.Min)
	}
	return normalized
}

// Denormalize converts [0,1] values back to raw parameter values.
func (pv *ParamVector) Denormalize(normalized []float64) []float64 {
	raw := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		raw[i] = spec.Min + normalized[i]*(spec.Max-spec.Min)
	}
	return raw
}

// Clamp ensures all values are within bounds.
func (pv *ParamVector) Clamp(v []float64) []float64 {
	clamped := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		clamped[i] = math.Max(spec.Min, math.Min(spec.Max, v[i]))
	}
	return clamped
}

// ApplyToConfig applies parameter values to a Config struct.
// Order must match Specs order.
func (pv *ParamVector) ApplyToConfig(cfg *config.Config, values []float64) {
	clamped := pv.Clamp(values)

	cfg.Simulation.DriftStrength = clamped[0]
	cfg.Simulation.NoiseScale = clamped[1]
	cfg.Simulation.NoiseSpeed = clamped[2]
	cfg.Trail.FadeDelta = int(math.Round(clamped[3]))
	cfg.Trail.PointSize = math.Round(clamped[4])

	// Keep the per-step bound above the drift it has to admit
	if cfg.Simulation.MaxDrift < cfg.Simulation.DriftStrength {
		cfg.Simulation.MaxDrift = cfg.Simulation.DriftStrength
	}
}

// ExtractFromConfig extracts current parameter values from a Config struct.
func (pv *ParamVector) ExtractFromConfig(cfg *config.Config) []float64 {
	return []float64{
		cfg.Simulation.DriftStrength,
		cfg.Simulation.NoiseScale,
		cfg.Simulation.NoiseSpeed,
		float64(cfg.Trail.FadeDelta),
		cfg.Trail.PointSize,
	}
}
