package trail

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Azimuth returns the angle of v around the Y axis in (-pi, pi].
func Azimuth(v r3.Vec) float64 {
	return math.Atan2(v.Z, -v.X)
}

// Inclination returns the elevation of v in [-pi/2, pi/2]. +Y maps to -pi/2.
func Inclination(v r3.Vec) float64 {
	return math.Atan2(-v.Y, math.Hypot(v.X, v.Z))
}

// UV maps a direction to normalized texture coordinates in [0, 1].
// The mapping is continuous except at the azimuth seam (u = 0 / u = 1).
func UV(v r3.Vec) (u, w float64) {
	return Azimuth(v)/(2*math.Pi) + 0.5, Inclination(v)/math.Pi + 0.5
}

// ToPixel maps a direction to continuous pixel coordinates in a w×h buffer.
// x wraps into [0, w) and y clamps into [0, h). ok is false for zero-length or
// non-finite input.
func ToPixel(v r3.Vec, w, h int) (x, y float64, ok bool) {
	if !finite(v) || (v.X == 0 && v.Y == 0 && v.Z == 0) {
		return 0, 0, false
	}
	u, t := UV(v)
	fw, fh := float64(w), float64(h)

	x = math.Mod(u*fw, fw)
	if x < 0 {
		x += fw
	}
	y = t * fh
	if y >= fh {
		y = math.Nextafter(fh, 0)
	}
	if y < 0 {
		y = 0
	}
	return x, y, true
}

// Direction is the inverse mapping: the unit vector for texture coordinates (u, w).
func Direction(u, w float64) r3.Vec {
	az := (u - 0.5) * 2 * math.Pi
	inc := (w - 0.5) * math.Pi
	c := math.Cos(inc)
	return r3.Vec{
		X: -c * math.Cos(az),
		Y: -math.Sin(inc),
		Z: c * math.Sin(az),
	}
}

func finite(v r3.Vec) bool {
	for _, c := range [3]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}
