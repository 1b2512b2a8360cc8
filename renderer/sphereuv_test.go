package renderer

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/orbtrail/trail"
)

// zPoleSphere builds a non-indexed unit sphere triangle list the way raylib's
// GenMeshSphere lays it out: a parametric grid with the poles on ±Z. The
// texcoords it returns are the grid parameters, which do not follow the trail
// mapping.
func zPoleSphere(stacks, slices int) (vertices, texcoords []float32) {
	point := func(i, j int) [5]float32 {
		phi := float64(i) / float64(stacks) * math.Pi
		theta := float64(j) / float64(slices) * 2 * math.Pi
		return [5]float32{
			float32(math.Cos(theta) * math.Sin(phi)),
			float32(math.Sin(theta) * math.Sin(phi)),
			float32(math.Cos(phi)),
			float32(i) / float32(stacks),
			float32(j) / float32(slices),
		}
	}
	add := func(p [5]float32) {
		vertices = append(vertices, p[0], p[1], p[2])
		texcoords = append(texcoords, p[3], p[4])
	}
	for i := 0; i < stacks; i++ {
		for j := 0; j < slices; j++ {
			a, b := point(i, j), point(i+1, j)
			c, d := point(i+1, j+1), point(i, j+1)
			add(a)
			add(b)
			add(c)
			add(c)
			add(d)
			add(a)
		}
	}
	return vertices, texcoords
}

func vertexAt(vertices []float32, i int) r3.Vec {
	return r3.Vec{X: float64(vertices[i*3]), Y: float64(vertices[i*3+1]), Z: float64(vertices[i*3+2])}
}

func isYPole(v r3.Vec) bool {
	return math.Hypot(v.X, v.Z) <= 1e-6*r3.Norm(v)
}

func TestSphereTexcoordsFollowTrailMapping(t *testing.T) {
	vertices, texcoords := zPoleSphere(32, 64)
	sphereTexcoords(vertices, texcoords)

	mismatched := 0
	for i := 0; i < len(vertices)/3; i++ {
		v := vertexAt(vertices, i)
		if isYPole(v) {
			continue
		}
		wantU, wantW := trail.UV(v)
		u := math.Mod(float64(texcoords[i*2]), 1)
		du := math.Abs(u - wantU)
		du = math.Min(du, 1-du)
		if du > 1e-5 || math.Abs(float64(texcoords[i*2+1])-wantW) > 1e-5 {
			mismatched++
		}
	}
	if mismatched > 0 {
		t.Errorf("%d vertices sample a different texel than the projection writes", mismatched)
	}
}

func TestSphereTexcoordsKnownVertices(t *testing.T) {
	s := math.Sqrt2 / 2
	vertices := []float32{
		float32(s), 0, float32(s),
		0, 0, 1,
		0, 1, 0,
	}
	texcoords := make([]float32, 6)
	sphereTexcoords(vertices, texcoords)

	if math.Abs(float64(texcoords[0])-0.875) > 1e-6 || math.Abs(float64(texcoords[1])-0.5) > 1e-6 {
		t.Errorf("(0.707, 0, 0.707) -> (%v, %v), want (0.875, 0.5)", texcoords[0], texcoords[1])
	}
	if math.Abs(float64(texcoords[2])-0.75) > 1e-6 || math.Abs(float64(texcoords[3])-0.5) > 1e-6 {
		t.Errorf("(0, 0, 1) -> (%v, %v), want (0.75, 0.5)", texcoords[2], texcoords[3])
	}
	// The pole takes the mean u of its neighbours and the top row.
	if math.Abs(float64(texcoords[4])-0.8125) > 1e-6 || texcoords[5] != 0 {
		t.Errorf("(0, 1, 0) -> (%v, %v), want (0.8125, 0)", texcoords[4], texcoords[5])
	}
}

func TestSphereTexcoordsNoSeamWrap(t *testing.T) {
	vertices, texcoords := zPoleSphere(32, 64)
	sphereTexcoords(vertices, texcoords)

	for tri := 0; tri < len(vertices)/9; tri++ {
		lo, hi := math.Inf(1), math.Inf(-1)
		for k := 0; k < 3; k++ {
			i := tri*3 + k
			if isYPole(vertexAt(vertices, i)) {
				continue
			}
			u := float64(texcoords[i*2])
			lo, hi = math.Min(lo, u), math.Max(hi, u)
		}
		if hi-lo > 0.5 {
			t.Fatalf("triangle %d spans u [%v, %v]; it would sample the texture backwards", tri, lo, hi)
		}
	}
}

// Away from the poles, the texel sampled at a triangle's center is the texel
// the projection writes for that direction.
func TestSphereTexcoordsInterpolateToProjectedTexel(t *testing.T) {
	const tw, th = 256, 128
	vertices, texcoords := zPoleSphere(64, 128)
	sphereTexcoords(vertices, texcoords)

	for tri := 0; tri < len(vertices)/9; tri++ {
		var center r3.Vec
		var u, w float64
		for k := 0; k < 3; k++ {
			i := tri*3 + k
			center = r3.Add(center, vertexAt(vertices, i))
			u += float64(texcoords[i*2]) / 3
			w += float64(texcoords[i*2+1]) / 3
		}
		if r3.Norm(center) < 1e-9 {
			continue
		}
		if _, cw := trail.UV(center); cw < 1.0/6 || cw > 5.0/6 {
			continue
		}

		px, py, ok := trail.ToPixel(center, tw, th)
		if !ok {
			t.Fatalf("triangle %d: center %v did not project", tri, center)
		}
		sx := math.Mod(u*tw, tw)
		dx := math.Abs(sx - px)
		dx = math.Min(dx, tw-dx)
		if dx > 1.5 || math.Abs(w*th-py) > 1.5 {
			t.Fatalf("triangle %d samples (%.1f, %.1f), projection writes (%.1f, %.1f)", tri, sx, w*th, px, py)
		}
	}
}
