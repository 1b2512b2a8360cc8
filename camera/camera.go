// Package camera provides the perspective camera that views the trail sphere.
package camera

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/orbtrail/config"
)

// Camera is a pinhole perspective camera.
// Screen coordinates have the origin at the top-left, y pointing down.
type Camera struct {
	Position r3.Vec
	Target   r3.Vec
	Up       r3.Vec

	// Vertical field of view in degrees
	FOV float64

	// Viewport dimensions (screen size)
	ViewportW, ViewportH float64

	home r3.Vec
}

// maxElevation keeps orbiting short of the poles, where Up and the view
// direction would become parallel.
const maxElevation = 85 * math.Pi / 180

// New creates a camera on the +Z axis looking at the origin.
func New(cfg config.CameraConfig, viewportW, viewportH float64) *Camera {
	pos := r3.Vec{Z: cfg.Distance}
	return &Camera{
		Position:  pos,
		Up:        r3.Vec{Y: 1},
		FOV:       cfg.FOV,
		ViewportW: viewportW,
		ViewportH: viewportH,
		home:      pos,
	}
}

// Aspect returns the viewport width over height.
func (c *Camera) Aspect() float64 {
	if c.ViewportH <= 0 {
		return 1
	}
	return c.ViewportW / c.ViewportH
}

// basis returns the camera's forward, right and up unit vectors.
func (c *Camera) basis() (fwd, right, up r3.Vec) {
	fwd = r3.Unit(r3.Sub(c.Target, c.Position))
	right = r3.Unit(r3.Cross(fwd, c.Up))
	up = r3.Cross(right, fwd)
	return fwd, right, up
}

func (c *Camera) tanHalfFOV() float64 {
	return math.Tan(c.FOV * math.Pi / 360)
}

// Ray returns the world-space ray through screen point (sx, sy).
// The direction is unit length.
func (c *Camera) Ray(sx, sy float64) (origin, dir r3.Vec) {
	fwd, right, up := c.basis()
	th := c.tanHalfFOV()
	nx := (2*sx/c.ViewportW - 1) * th * c.Aspect()
	ny := (1 - 2*sy/c.ViewportH) * th
	dir = r3.Unit(r3.Add(fwd, r3.Add(r3.Scale(nx, right), r3.Scale(ny, up))))
	return c.Position, dir
}

// WorldToScreen projects a world point to screen coordinates.
// ok is false for points on or behind the camera plane.
func (c *Camera) WorldToScreen(p r3.Vec) (sx, sy float64, ok bool) {
	fwd, right, up := c.basis()
	d := r3.Sub(p, c.Position)
	z := r3.Dot(d, fwd)
	if z <= 0 {
		return 0, 0, false
	}
	th := c.tanHalfFOV()
	nx := r3.Dot(d, right) / (z * th * c.Aspect())
	ny := r3.Dot(d, up) / (z * th)
	sx = (nx + 1) / 2 * c.ViewportW
	sy = (1 - ny) / 2 * c.ViewportH
	return sx, sy, true
}

// Resize updates viewport dimensions.
func (c *Camera) Resize(viewportW, viewportH float64) {
	c.ViewportW = viewportW
	c.ViewportH = viewportH
}

// Distance returns the distance from the camera to its target.
func (c *Camera) Distance() float64 {
	return r3.Norm(r3.Sub(c.Position, c.Target))
}

// Orbit moves the camera around its target at a fixed distance. yaw turns
// about the world Y axis and pitch raises the camera, both in radians.
// Elevation is clamped short of the poles.
func (c *Camera) Orbit(yaw, pitch float64) {
	off := r3.Sub(c.Position, c.Target)
	r := r3.Norm(off)
	if r == 0 {
		return
	}
	az := math.Atan2(off.X, off.Z) + yaw
	el := clamp(math.Asin(clamp(off.Y/r, -1, 1))+pitch, -maxElevation, maxElevation)
	ce := math.Cos(el)
	c.Position = r3.Add(c.Target, r3.Vec{
		X: r * ce * math.Sin(az),
		Y: r * math.Sin(el),
		Z: r * ce * math.Cos(az),
	})
}

// Reset returns the camera to its initial position.
func (c *Camera) Reset() {
	c.Position = c.home
	c.Target = r3.Vec{}
	c.Up = r3.Vec{Y: 1}
}

// IntersectSphere returns the nearest positive distance along a unit ray to a
// sphere centered at the origin. From inside the sphere this is the far wall.
func IntersectSphere(origin, dir r3.Vec, radius float64) (float64, bool) {
	b := r3.Dot(origin, dir)
	cc := r3.Dot(origin, origin) - radius*radius
	disc := b*b - cc
	if disc < 0 {
		return 0, false
	}
	sq := math.Sqrt(disc)
	if t := -b - sq; t > 0 {
		return t, true
	}
	if t := -b + sq; t > 0 {
		return t, true
	}
	return 0, false
}

// RotateY rotates v by angle radians about the +Y axis (right-handed).
func RotateY(v r3.Vec, angle float64) r3.Vec {
	s, c := math.Sincos(angle)
	return r3.Vec{
		X: v.X*c + v.Z*s,
		Y: v.Y,
		Z: -v.X*s + v.Z*c,
	}
}

// clamp restricts a value to a range.
func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
