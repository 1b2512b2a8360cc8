package main

import (
	"math"
	"sync"

	"github.com/pthm-cable/orbtrail/config"
	"github.com/pthm-cable/orbtrail/particles"
	"github.com/pthm-cable/orbtrail/pipeline"
	"github.com/pthm-cable/orbtrail/telemetry"
)

// Targets is the look a tuning run aims for.
type Targets struct {
	Coverage  float64 // Fraction of lit trail pixels
	Intensity float64 // Mean intensity of lit pixels, 0..255
}

// FitnessEvaluator runs headless pipelines and scores the trail they leave.
type FitnessEvaluator struct {
	params     *ParamVector
	frames     int
	seeds      []int64
	baseConfig *config.Config
	targets    Targets

	mu       sync.Mutex
	lastMean telemetry.FrameStats // averaged over seeds, most recent Evaluate
}

// NewFitnessEvaluator creates a new evaluator.
func NewFitnessEvaluator(params *ParamVector, frames int, seeds []int64, baseCfg *config.Config, targets Targets) *FitnessEvaluator {
	return &FitnessEvaluator{
		params:     params,
		frames:     frames,
		seeds:      seeds,
		baseConfig: baseCfg,
		targets:    targets,
	}
}

// LastStats returns the seed-averaged trail stats from the most recent evaluation.
func (fe *FitnessEvaluator) LastStats() telemetry.FrameStats {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastMean
}

// seedResult holds the result from one seed evaluation.
type seedResult struct {
	stats telemetry.FrameStats
	err   error
}

// Evaluate computes fitness for a raw parameter vector (lower = better).
// Fitness is the squared relative distance from the targets, averaged over seeds.
// A run that fails or leaves non-finite particles scores +Inf.
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	cfg := fe.copyConfig()
	fe.params.ApplyToConfig(cfg, x)

	results := make([]seedResult, len(fe.seeds))
	var wg sync.WaitGroup
	for i, seed := range fe.seeds {
		wg.Add(1)
		go func(i int, seed int64) {
			defer wg.Done()
			stats, err := fe.runOnce(cfg, seed)
			results[i] = seedResult{stats: stats, err: err}
		}(i, seed)
	}
	wg.Wait()

	var mean telemetry.FrameStats
	for _, r := range results {
		if r.err != nil || r.stats.Invalid > 0 {
			return math.Inf(1)
		}
		mean.TrailCoverage += r.stats.TrailCoverage
		mean.TrailIntensity += r.stats.TrailIntensity
		mean.RadiusMean += r.stats.RadiusMean
	}
	n := float64(len(results))
	mean.TrailCoverage /= n
	mean.TrailIntensity /= n
	mean.RadiusMean /= n

	fe.mu.Lock()
	fe.lastMean = mean
	fe.mu.Unlock()

	return fe.score(mean)
}

func (fe *FitnessEvaluator) score(s telemetry.FrameStats) float64 {
	dc := (s.TrailCoverage - fe.targets.Coverage) / math.Max(fe.targets.Coverage, 1e-3)
	di := (s.TrailIntensity - fe.targets.Intensity) / math.Max(fe.targets.Intensity, 1)
	return dc*dc + di*di
}

// runOnce runs one pipeline for fe.frames frames and samples the final trail.
func (fe *FitnessEvaluator) runOnce(cfg *config.Config, seed int64) (telemetry.FrameStats, error) {
	pipe, err := pipeline.New(pipeline.Options{
		Config:    cfg,
		Seed:      seed,
		Precision: particles.Float32,
	})
	if err != nil {
		return telemetry.FrameStats{}, err
	}
	defer pipe.Close()

	dt := 1000 / float64(max(cfg.Screen.TargetFPS, 1)) * cfg.Palette.TimeScale
	var t float64
	for i := 0; i < fe.frames; i++ {
		t += dt
		if err := pipe.Step(t); err != nil {
			return telemetry.FrameStats{}, err
		}
	}
	return telemetry.ComputeFrameStats(pipe.FrameIndex()-1, t, pipe.State(), pipe.Trail()), nil
}

// copyConfig returns an independent copy of the base config. Config holds
// only value fields so a struct copy is deep.
func (fe *FitnessEvaluator) copyConfig() *config.Config {
	cfg := *fe.baseConfig
	return &cfg
}
