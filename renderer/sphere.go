package renderer

import (
	"image/color"
	"math"
	"unsafe"

	rl "github.com/gen2brain/raylib-go/raylib"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/orbtrail/camera"
	"github.com/pthm-cable/orbtrail/config"
	"github.com/pthm-cable/orbtrail/pipeline"
	"github.com/pthm-cable/orbtrail/trail"
)

// SphereRenderer draws the latest trail buffer as the texture of a slowly
// rotating sphere, viewed from inside. It is the windowed compositor.
type SphereRenderer struct {
	cfg   config.CameraConfig
	cam   *camera.Camera
	model rl.Model

	// Trail texture
	trailTex   rl.Texture2D
	texW, texH int
	pixels     []color.RGBA

	initialized bool
}

// NewSphereRenderer creates a sphere renderer.
func NewSphereRenderer(cfg config.CameraConfig) *SphereRenderer {
	return &SphereRenderer{
		cfg: cfg,
		cam: camera.New(cfg, 0, 0),
	}
}

// Init creates GPU resources (must be called after raylib window is created).
func (r *SphereRenderer) Init(trailW, trailH int) {
	if r.initialized {
		return
	}
	rl.SetClipPlanes(r.cfg.Near, r.cfg.Far)

	mesh := rl.GenMeshSphere(float32(r.cfg.SphereRadius), r.cfg.SphereRings, r.cfg.SphereSlices)
	remapTexcoords(mesh)
	r.model = rl.LoadModelFromMesh(mesh)
	r.loadTexture(trailW, trailH)
	r.initialized = true
}

func (r *SphereRenderer) loadTexture(w, h int) {
	img := rl.GenImageColor(w, h, rl.Black)
	r.trailTex = rl.LoadTextureFromImage(img)
	rl.SetTextureFilter(r.trailTex, rl.FilterBilinear)
	rl.SetTextureWrap(r.trailTex, rl.WrapRepeat)
	rl.UnloadImage(img)

	rl.SetMaterialTexture(r.model.Materials, rl.MapDiffuse, r.trailTex)
	r.texW, r.texH = w, h
	r.pixels = make([]color.RGBA, w*h)
}

// remapTexcoords replaces the generated sphere's texture coordinates with
// the trail mapping and re-uploads them. The mesh is a non-indexed triangle
// list owned by raylib.
func remapTexcoords(mesh rl.Mesh) {
	n := int(mesh.VertexCount)
	if n == 0 || mesh.Vertices == nil || mesh.Texcoords == nil {
		return
	}
	vertices := unsafe.Slice(mesh.Vertices, n*3)
	texcoords := unsafe.Slice(mesh.Texcoords, n*2)
	sphereTexcoords(vertices, texcoords)
	rl.UpdateMeshBuffer(mesh, 1, unsafe.Slice((*byte)(unsafe.Pointer(&texcoords[0])), len(texcoords)*4), 0)
}

// Camera returns the orbit camera used for drawing and picking.
func (r *SphereRenderer) Camera() *camera.Camera {
	return r.cam
}

// rlCamera converts the orbit camera for raylib.
func (r *SphereRenderer) rlCamera() rl.Camera3D {
	return rl.NewCamera3D(toVector3(r.cam.Position), toVector3(r.cam.Target), toVector3(r.cam.Up),
		float32(r.cam.FOV), rl.CameraPerspective)
}

func toVector3(v r3.Vec) rl.Vector3 {
	return rl.NewVector3(float32(v.X), float32(v.Y), float32(v.Z))
}

// Angle returns the sphere rotation about Y at time t, in radians.
func (r *SphereRenderer) Angle(t float64) float64 {
	return r.cfg.RotationSpeed * t
}

// upload copies the trail image into the GPU texture, recreating the
// texture when the trail was resized.
func (r *SphereRenderer) upload(tr *trail.Buffer) {
	w, h := tr.Width(), tr.Height()
	if w != r.texW || h != r.texH {
		rl.UnloadTexture(r.trailTex)
		r.loadTexture(w, h)
	}
	for y := 0; y < h; y++ {
		row := tr.Pix[y*tr.Stride : y*tr.Stride+w*4]
		dst := r.pixels[y*w : (y+1)*w]
		for x := range dst {
			i := x * 4
			dst[x] = color.RGBA{R: row[i], G: row[i+1], B: row[i+2], A: 255}
		}
	}
	rl.UpdateTexture(r.trailTex, r.pixels)
}

// Composite uploads the trail and draws the sphere. Call between
// rl.BeginDrawing and rl.EndDrawing.
func (r *SphereRenderer) Composite(tr *trail.Buffer, f pipeline.Frame) error {
	if !r.initialized {
		r.Init(tr.Width(), tr.Height())
	}
	r.upload(tr)

	angle := r.Angle(f.Time)
	rl.ClearBackground(rl.Black)
	rl.BeginMode3D(r.rlCamera())
	rl.DisableBackfaceCulling()
	rl.DrawModelEx(r.model, rl.Vector3{}, rl.NewVector3(0, 1, 0),
		float32(angle*180/math.Pi), rl.NewVector3(1, 1, 1), rl.White)
	rl.EnableBackfaceCulling()

	if r.cfg.ShowPoints && f.State != nil {
		eachPoint(f.State, r.cfg.PointScale, angle, func(p r3.Vec) {
			rl.DrawPoint3D(toVector3(p), rl.White)
		})
	}
	rl.EndMode3D()
	return nil
}

// PointerOnSphere casts the mouse ray against the sphere and returns the hit
// in particle space: rotated back into the sphere's frame and divided by its
// radius.
func (r *SphereRenderer) PointerOnSphere(mouse rl.Vector2, t float64) (r3.Vec, bool) {
	ray := rl.GetScreenToWorldRay(mouse, r.rlCamera())
	hit := rl.GetRayCollisionSphere(ray, rl.Vector3{}, float32(r.cfg.SphereRadius))
	if !hit.Hit {
		return r3.Vec{}, false
	}
	world := r3.Vec{X: float64(hit.Point.X), Y: float64(hit.Point.Y), Z: float64(hit.Point.Z)}
	local := camera.RotateY(world, -r.Angle(t))
	return r3.Scale(1/r.cfg.SphereRadius, local), true
}

// Unload frees GPU resources.
func (r *SphereRenderer) Unload() {
	if !r.initialized {
		return
	}
	rl.UnloadTexture(r.trailTex)
	rl.UnloadModel(r.model)
	r.initialized = false
}
