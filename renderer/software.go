package renderer

import (
	"image"
	"image/color"
	"runtime"
	"sync"

	"golang.org/x/image/draw"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/orbtrail/camera"
	"github.com/pthm-cable/orbtrail/config"
	"github.com/pthm-cable/orbtrail/particles"
	"github.com/pthm-cable/orbtrail/pipeline"
	"github.com/pthm-cable/orbtrail/trail"
)

// SoftwareRenderer ray-casts the trail sphere on the CPU. It produces the same
// view as SphereRenderer without a window, for headless runs, snapshots and
// the frame stream.
type SoftwareRenderer struct {
	cfg     config.CameraConfig
	cam     *camera.Camera
	img     *image.RGBA
	workers int

	// OnFrame, if set, is called with the rendered image after every composite.
	OnFrame func(img *image.RGBA, f pipeline.Frame)
}

// NewSoftwareRenderer creates a renderer producing width×height images.
func NewSoftwareRenderer(cfg config.CameraConfig, width, height int) *SoftwareRenderer {
	return &SoftwareRenderer{
		cfg:     cfg,
		cam:     camera.New(cfg, float64(width), float64(height)),
		img:     image.NewRGBA(image.Rect(0, 0, width, height)),
		workers: runtime.GOMAXPROCS(0),
	}
}

// Camera returns the view camera.
func (r *SoftwareRenderer) Camera() *camera.Camera {
	return r.cam
}

// Image returns the most recently rendered frame. It is reused between frames.
func (r *SoftwareRenderer) Image() *image.RGBA {
	return r.img
}

// Resize changes the output size.
func (r *SoftwareRenderer) Resize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	if b := r.img.Bounds(); b.Dx() == width && b.Dy() == height {
		return
	}
	r.img = image.NewRGBA(image.Rect(0, 0, width, height))
	r.cam.Resize(float64(width), float64(height))
}

// Composite implements pipeline.Compositor.
func (r *SoftwareRenderer) Composite(tr *trail.Buffer, f pipeline.Frame) error {
	if f.Viewport.Width > 0 && f.Viewport.Height > 0 {
		r.Resize(f.Viewport.Width, f.Viewport.Height)
	}
	r.Render(tr, f.State, f.Time)
	if r.OnFrame != nil {
		r.OnFrame(r.img, f)
	}
	return nil
}

// Render draws the sphere textured with tr at time t. state may be nil.
func (r *SoftwareRenderer) Render(tr *trail.Buffer, state *particles.Buffer, t float64) *image.RGBA {
	draw.Draw(r.img, r.img.Bounds(), image.Black, image.Point{}, draw.Src)

	angle := r.cfg.RotationSpeed * t
	w, h := r.img.Bounds().Dx(), r.img.Bounds().Dy()
	tw, th := tr.Width(), tr.Height()

	rows(h, r.workers, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := 0; x < w; x++ {
				origin, dir := r.cam.Ray(float64(x)+0.5, float64(y)+0.5)
				d, ok := camera.IntersectSphere(origin, dir, r.cfg.SphereRadius)
				if !ok {
					continue
				}
				hit := r3.Add(origin, r3.Scale(d, dir))
				tx, ty, ok := trail.ToPixel(camera.RotateY(hit, -angle), tw, th)
				if !ok {
					continue
				}
				c := tr.RGBAAt(int(tx), int(ty))
				c.A = 255
				r.img.SetRGBA(x, y, c)
			}
		}
	})

	if r.cfg.ShowPoints && state != nil {
		eachPoint(state, r.cfg.PointScale, angle, func(p r3.Vec) {
			sx, sy, ok := r.cam.WorldToScreen(p)
			if !ok {
				return
			}
			r.img.SetRGBA(int(sx), int(sy), color.RGBA{R: 255, G: 255, B: 255, A: 255})
		})
	}
	return r.img
}

// eachPoint calls fn with the world position of every particle: scaled by
// scale and rotated with the sphere.
func eachPoint(state *particles.Buffer, scale, angle float64, fn func(p r3.Vec)) {
	for i := 0; i < state.Len(); i++ {
		pos, _ := state.At(i)
		fn(camera.RotateY(r3.Scale(scale, pos), angle))
	}
}

// rows splits [0, n) across workers and waits for all of them.
func rows(n, workers int, fn func(y0, y1 int)) {
	if workers <= 1 || n < 2*workers {
		fn(0, n)
		return
	}
	chunk := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for y0 := 0; y0 < n; y0 += chunk {
		wg.Add(1)
		go func(y0, y1 int) {
			defer wg.Done()
			fn(y0, y1)
		}(y0, min(y0+chunk, n))
	}
	wg.Wait()
}
