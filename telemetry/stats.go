package telemetry

import (
	"log/slog"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/orbtrail/particles"
	"github.com/pthm-cable/orbtrail/trail"
)

// FrameStats is a snapshot of the particle field and trail at the end of a
// stats window, plus the interaction counts seen during the window.
type FrameStats struct {
	WindowStart uint64  `csv:"-"`
	Frame       uint64  `csv:"frame"`
	SimTime     float64 `csv:"sim_time"`
	Particles   int     `csv:"particles"`
	ColorCycle  bool    `csv:"color_cycle"`
	Pointer     bool    `csv:"pointer"`

	// Interaction during the window
	PointerFrames int `csv:"pointer_frames"`
	Toggles       int `csv:"toggles"`
	Resizes       int `csv:"resizes"`

	// Age distribution
	AgeMean float64 `csv:"age_mean"`
	AgeStd  float64 `csv:"age_std"`
	AgeP10  float64 `csv:"age_p10"`
	AgeP50  float64 `csv:"age_p50"`
	AgeP90  float64 `csv:"age_p90"`

	// Shell radius
	RadiusMean float64 `csv:"radius_mean"`
	RadiusMin  float64 `csv:"radius_min"`
	RadiusMax  float64 `csv:"radius_max"`

	// Non-finite records found in the state buffer
	Invalid int `csv:"invalid"`

	// Trail occupancy
	TrailCoverage  float64 `csv:"trail_coverage"`  // Fraction of lit pixels
	TrailIntensity float64 `csv:"trail_intensity"` // Mean intensity of lit pixels, 0..255
}

// ComputeFrameStats samples the state and trail buffers. tr may be nil.
func ComputeFrameStats(frame uint64, t float64, state *particles.Buffer, tr *trail.Buffer) FrameStats {
	s := FrameStats{Frame: frame, SimTime: t, Particles: state.Len()}

	ages := make([]float64, 0, state.Len())
	radii := make([]float64, 0, state.Len())
	for i := 0; i < state.Len(); i++ {
		pos, age := state.At(i)
		r := r3.Norm(pos)
		if math.IsNaN(r) || math.IsInf(r, 0) || math.IsNaN(age) || math.IsInf(age, 0) {
			s.Invalid++
			continue
		}
		ages = append(ages, age)
		radii = append(radii, r)
	}

	if len(ages) > 0 {
		s.AgeMean, s.AgeStd = stat.PopMeanStdDev(ages, nil)
		sort.Float64s(ages)
		s.AgeP10 = Percentile(ages, 0.10)
		s.AgeP50 = Percentile(ages, 0.50)
		s.AgeP90 = Percentile(ages, 0.90)

		s.RadiusMean = stat.Mean(radii, nil)
		s.RadiusMin = floats.Min(radii)
		s.RadiusMax = floats.Max(radii)
	}

	if tr != nil {
		s.TrailCoverage, s.TrailIntensity = TrailOccupancy(tr)
	}
	return s
}

// TrailOccupancy returns the fraction of pixels with nonzero intensity and the
// mean intensity over those pixels.
func TrailOccupancy(tr *trail.Buffer) (coverage, mean float64) {
	w, h := tr.Width(), tr.Height()
	if w == 0 || h == 0 {
		return 0, 0
	}
	var lit, sum int
	for y := 0; y < h; y++ {
		row := tr.Pix[y*tr.Stride : y*tr.Stride+w*4]
		for i := 0; i < len(row); i += 4 {
			v := max(row[i], row[i+1], row[i+2])
			if v > 0 {
				lit++
				sum += int(v)
			}
		}
	}
	coverage = float64(lit) / float64(w*h)
	if lit > 0 {
		mean = float64(sum) / float64(lit)
	}
	return coverage, mean
}

// Percentile returns the p-th quantile of a sorted slice, linearly
// interpolated between samples. p is clamped to [0, 1]. Returns 0 if the slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	return stat.Quantile(math.Max(0, math.Min(1, p)), stat.LinInterp, sorted, nil)
}

// LogValue implements slog.LogValuer for structured logging.
func (s FrameStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("window_start", s.WindowStart),
		slog.Uint64("frame", s.Frame),
		slog.Float64("sim_time", s.SimTime),
		slog.Int("particles", s.Particles),
		slog.Bool("color_cycle", s.ColorCycle),
		slog.Bool("pointer", s.Pointer),
		slog.Int("pointer_frames", s.PointerFrames),
		slog.Int("toggles", s.Toggles),
		slog.Int("resizes", s.Resizes),
		slog.Float64("age_mean", s.AgeMean),
		slog.Float64("age_std", s.AgeStd),
		slog.Float64("age_p50", s.AgeP50),
		slog.Float64("radius_mean", s.RadiusMean),
		slog.Float64("radius_min", s.RadiusMin),
		slog.Float64("radius_max", s.RadiusMax),
		slog.Int("invalid", s.Invalid),
		slog.Float64("trail_coverage", s.TrailCoverage),
		slog.Float64("trail_intensity", s.TrailIntensity),
	)
}

// LogStats logs the frame stats using slog.
func (s FrameStats) LogStats() {
	slog.Info("stats", "frame", s)
}
