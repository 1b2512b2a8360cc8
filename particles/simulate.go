package particles

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/orbtrail/config"
)

// parallelThreshold is the minimum particle count to split a pass across goroutines.
// Below this, single-threaded is faster due to goroutine overhead.
const parallelThreshold = 4096

// ErrAliased is returned when a pass is asked to read and write the same buffer.
var ErrAliased = errors.New("source and destination buffers alias")

// Simulator advances the particle state store by one frame.
type Simulator struct {
	cfg     config.SimulationConfig
	field   *DriftField
	workers int
}

// NewSimulator creates a simulator. seed drives the drift noise.
func NewSimulator(cfg config.SimulationConfig, seed int64) *Simulator {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Simulator{
		cfg:     cfg,
		field:   NewDriftField(seed, cfg.NoiseScale, cfg.NoiseSpeed),
		workers: workers,
	}
}

// Field exposes the drift field for previews.
func (s *Simulator) Field() *DriftField {
	return s.field
}

// Config returns the simulation parameters.
func (s *Simulator) Config() config.SimulationConfig {
	return s.cfg
}

// Advance reads prev and fully overwrites dst. origin holds the initial
// distribution used for respawn and for repairing non-finite records.
// Every write has completed when Advance returns.
//
// A particle moves at most MaxDrift per call, except when its age wraps with
// Respawn set: it then jumps back to its origin record.
func (s *Simulator) Advance(prev, dst, origin *Buffer, ptr Pointer, t float64) error {
	if prev == dst {
		return fmt.Errorf("simulate %s: %w", dst.Name, ErrAliased)
	}
	if prev.Width != dst.Width || prev.Height != dst.Height ||
		origin.Width != dst.Width || origin.Height != dst.Height {
		return fmt.Errorf("simulate %s -> %s: size mismatch", prev.Name, dst.Name)
	}

	n := prev.Len()
	if n < parallelThreshold || s.workers == 1 {
		s.step(prev, dst, origin, ptr, t, 0, n)
		return nil
	}

	chunk := (n + s.workers - 1) / s.workers
	var wg sync.WaitGroup
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			s.step(prev, dst, origin, ptr, t, start, end)
		}(start, end)
	}
	wg.Wait()
	return nil
}

// step updates particles in [start, end).
func (s *Simulator) step(prev, dst, origin *Buffer, ptr Pointer, t float64, start, end int) {
	cfg := &s.cfg
	for i := start; i < end; i++ {
		p, age := prev.At(i)
		if !finiteVec(p) || math.IsNaN(age) || math.IsInf(age, 0) {
			p, age = origin.At(i)
		}

		p = s.displace(p, ptr, t)

		age++
		wrapped := age >= cfg.AgeWrap
		age = wrapAge(dst, age, cfg.AgeWrap)
		if wrapped && cfg.Respawn {
			p, _ = origin.At(i)
		}

		dst.Set(i, p, age)
	}
}

// displace moves p tangentially to its shell. The move is clamped to MaxDrift
// and re-projected onto p's radius, which never lengthens it.
func (s *Simulator) displace(p r3.Vec, ptr Pointer, t float64) r3.Vec {
	cfg := &s.cfg
	r := r3.Norm(p)
	if r == 0 {
		return p
	}
	radial := r3.Scale(1/r, p)

	delta := r3.Scale(cfg.DriftStrength, s.field.At(p, t))

	if ptr.Valid && cfg.InfluenceRadius > 0 {
		away := r3.Sub(p, ptr.Pos)
		dist := r3.Norm(away)
		if dist > 0 && dist < cfg.InfluenceRadius {
			falloff := 1 - dist/cfg.InfluenceRadius
			delta = r3.Add(delta, r3.Scale(cfg.InfluenceStrength*falloff/dist, away))
		}
	}

	// Tangential only
	delta = r3.Sub(delta, r3.Scale(r3.Dot(delta, radial), radial))

	if d := r3.Norm(delta); d > cfg.MaxDrift {
		if cfg.MaxDrift == 0 {
			return p
		}
		delta = r3.Scale(cfg.MaxDrift/d, delta)
	}

	np := r3.Add(p, delta)
	return r3.Scale(r/r3.Norm(np), np)
}

func finiteVec(v r3.Vec) bool {
	for _, c := range [3]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}
