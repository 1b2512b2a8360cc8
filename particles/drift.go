package particles

import (
	"github.com/ojrac/opensimplex-go"
	"gonum.org/v1/gonum/spatial/r3"
)

// Channel offsets decorrelate the three noise components.
var driftOffsets = [3]r3.Vec{
	{X: 0, Y: 0, Z: 0},
	{X: 31.416, Y: -17.3, Z: 5.7},
	{X: -9.1, Y: 43.2, Z: 27.9},
}

// DriftField is a time-varying 3D vector field built from 4D OpenSimplex noise.
// Safe for concurrent reads.
type DriftField struct {
	noise opensimplex.Noise
	scale float64
	speed float64
}

// NewDriftField creates a drift field.
func NewDriftField(seed int64, scale, speed float64) *DriftField {
	return &DriftField{
		noise: opensimplex.New(seed),
		scale: scale,
		speed: speed,
	}
}

// At returns the field vector at p and time t. Components are in [-1, 1].
func (f *DriftField) At(p r3.Vec, t float64) r3.Vec {
	q := r3.Scale(f.scale, p)
	w := t * f.speed
	var out [3]float64
	for c, off := range driftOffsets {
		s := r3.Add(q, off)
		out[c] = f.noise.Eval4(s.X, s.Y, s.Z, w)
	}
	return r3.Vec{X: out[0], Y: out[1], Z: out[2]}
}

// SetScale changes the spatial frequency.
func (f *DriftField) SetScale(scale float64) {
	f.scale = scale
}

// SetSpeed changes the temporal frequency.
func (f *DriftField) SetSpeed(speed float64) {
	f.speed = speed
}
