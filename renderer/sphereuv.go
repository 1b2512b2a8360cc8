package renderer

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/orbtrail/trail"
)

// sphereTexcoords fills texcoords for a non-indexed triangle list so every
// vertex samples the trail texel the projection writes for its direction.
// vertices holds xyz triples, texcoords uv pairs, three vertices per triangle.
//
// Triangles straddling the azimuth seam get their low u values shifted up by
// one; the texture wraps, so they sample across the seam instead of the whole
// image backwards. A vertex on a pole has no azimuth and takes the mean u of
// the other two.
func sphereTexcoords(vertices, texcoords []float32) {
	n := len(vertices) / 3
	for tri := 0; tri+3 <= n; tri += 3 {
		var u, w [3]float64
		var pole [3]bool
		for k := 0; k < 3; k++ {
			i := (tri + k) * 3
			v := r3.Vec{X: float64(vertices[i]), Y: float64(vertices[i+1]), Z: float64(vertices[i+2])}
			u[k], w[k] = trail.UV(v)
			pole[k] = math.Hypot(v.X, v.Z) <= 1e-6*r3.Norm(v)
		}

		// Seam: bring every u within half a turn of the largest one.
		hi := math.Inf(-1)
		for k := 0; k < 3; k++ {
			if !pole[k] && u[k] > hi {
				hi = u[k]
			}
		}
		for k := 0; k < 3; k++ {
			if !pole[k] && hi-u[k] > 0.5 {
				u[k]++
			}
		}

		for k := 0; k < 3; k++ {
			if !pole[k] {
				continue
			}
			var sum float64
			var cnt int
			for j := 0; j < 3; j++ {
				if !pole[j] {
					sum += u[j]
					cnt++
				}
			}
			if cnt > 0 {
				u[k] = sum / float64(cnt)
			}
		}

		for k := 0; k < 3; k++ {
			texcoords[(tri+k)*2] = float32(u[k])
			texcoords[(tri+k)*2+1] = float32(w[k])
		}
	}
}
