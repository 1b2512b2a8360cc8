package particles

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/spatial/r3"
)

// SeedParams controls the initial shell distribution.
type SeedParams struct {
	RadiusMin    float64
	RadiusJitter float64
	AgeWrap      float64
}

// Seed fills dst with points roughly uniform on a spherical shell. Each particle
// gets an independent radius jitter and a random initial age.
func Seed(dst *Buffer, rng *rand.Rand, p SeedParams) {
	for i := 0; i < dst.Len(); i++ {
		phi := rng.Float64() * 2 * math.Pi
		cosTheta := rng.Float64()*2 - 1
		sinTheta := math.Sqrt(1 - cosTheta*cosTheta)
		r := p.RadiusMin + p.RadiusJitter*rng.Float64()

		pos := r3.Vec{
			X: r * sinTheta * math.Cos(phi),
			Y: r * sinTheta * math.Sin(phi),
			Z: r * cosTheta,
		}
		dst.Set(i, pos, wrapAge(dst, rng.Float64()*p.AgeWrap, p.AgeWrap))
	}
}

// wrapAge folds age into [0, wrap) after storage rounding.
func wrapAge(b *Buffer, age, wrap float64) float64 {
	age = math.Mod(age, wrap)
	if age < 0 {
		age += wrap
	}
	if b.Quantize(age) >= wrap {
		return 0
	}
	return age
}
