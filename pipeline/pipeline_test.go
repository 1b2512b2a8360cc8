package pipeline

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/orbtrail/config"
	"github.com/pthm-cable/orbtrail/particles"
	"github.com/pthm-cable/orbtrail/trail"
)

// testConfig returns a 4x4 grid with a 16x8 trail.
func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Derived.GridWidth = 4
	cfg.Derived.GridHeight = 4
	cfg.Trail.Width = 16
	cfg.Trail.Height = 8
	cfg.Simulation.Workers = 1
	cfg.Simulation.Respawn = false
	cfg.GPU.MaxBufferBytes = 0
	return cfg
}

type recorder struct {
	frames []Frame
}

func (r *recorder) Composite(_ *trail.Buffer, f Frame) error {
	r.frames = append(r.frames, f)
	return nil
}

func newTestContext(t *testing.T, cfg *config.Config, opts Options) *Context {
	t.Helper()
	opts.Config = cfg
	if opts.Seed == 0 {
		opts.Seed = 7
	}
	c, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestEachPassReadsLastWrite(t *testing.T) {
	var events []StageEvent
	c := newTestContext(t, testConfig(), Options{
		Observer: ObserverFunc(func(ev StageEvent) { events = append(events, ev) }),
	})

	const frames = 6
	for i := 0; i < frames; i++ {
		if err := c.Step(float64(i) * 0.01); err != nil {
			t.Fatalf("Step %d: %v", i, err)
		}
	}
	if len(events) != frames*4 {
		t.Fatalf("got %d events, want %d", len(events), frames*4)
	}

	byStage := func(frame int, s Stage) StageEvent {
		ev := events[frame*4+int(s)]
		if ev.Stage != s || ev.Frame != uint64(frame) {
			t.Fatalf("event %d is %s/frame %d, want %s/frame %d", frame*4+int(s), ev.Stage, ev.Frame, s, frame)
		}
		return ev
	}

	for k := 0; k < frames; k++ {
		sim := byStage(k, StageSimulate)
		fade := byStage(k, StageFade)
		proj := byStage(k, StageProject)
		comp := byStage(k, StageComposite)

		if sim.Read == sim.Write || fade.Read == fade.Write {
			t.Errorf("frame %d: a pass reads the buffer it writes", k)
		}
		if proj.Read != sim.Write {
			t.Errorf("frame %d: project read %s, simulate wrote %s", k, proj.Read, sim.Write)
		}
		if proj.Write != fade.Write {
			t.Errorf("frame %d: project wrote %s, fade wrote %s", k, proj.Write, fade.Write)
		}
		if comp.Read != proj.Write {
			t.Errorf("frame %d: composite read %s, project wrote %s", k, comp.Read, proj.Write)
		}
		if k == 0 {
			continue
		}
		if prev := byStage(k-1, StageSimulate); sim.Read != prev.Write {
			t.Errorf("frame %d: simulate read %s, frame %d wrote %s", k, sim.Read, k-1, prev.Write)
		}
		if prev := byStage(k-1, StageProject); fade.Read != prev.Write {
			t.Errorf("frame %d: fade read %s, frame %d wrote %s", k, fade.Read, k-1, prev.Write)
		}
	}
}

func TestStageOrder(t *testing.T) {
	c := newTestContext(t, testConfig(), Options{})

	if err := c.Simulate(); !errors.Is(err, ErrStageOrder) {
		t.Fatalf("Simulate before BeginFrame: got %v, want ErrStageOrder", err)
	}
	if err := c.BeginFrame(0); err != nil {
		t.Fatalf("BeginFrame: %v", err)
	}
	if err := c.BeginFrame(0); !errors.Is(err, ErrStageOrder) {
		t.Errorf("second BeginFrame: got %v, want ErrStageOrder", err)
	}
	if err := c.Fade(); !errors.Is(err, ErrStageOrder) {
		t.Errorf("Fade before Simulate: got %v, want ErrStageOrder", err)
	}
	if err := c.Simulate(); err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if err := c.Project(); !errors.Is(err, ErrStageOrder) {
		t.Errorf("Project before Fade: got %v, want ErrStageOrder", err)
	}
	if err := c.Composite(); !errors.Is(err, ErrStageOrder) {
		t.Errorf("Composite before Project: got %v, want ErrStageOrder", err)
	}
	if err := c.Fade(); err != nil {
		t.Fatalf("Fade: %v", err)
	}
	if err := c.Project(); err != nil {
		t.Fatalf("Project: %v", err)
	}
	if err := c.Composite(); err != nil {
		t.Fatalf("Composite: %v", err)
	}
	if got := c.FrameIndex(); got != 1 {
		t.Errorf("FrameIndex = %d, want 1", got)
	}
	if err := c.Step(0.1); err != nil {
		t.Errorf("Step after a manual frame: %v", err)
	}
}

func TestFrameScenario(t *testing.T) {
	cfg := testConfig()
	c := newTestContext(t, cfg, Options{})
	wrap := cfg.Simulation.AgeWrap

	for frame := 0; frame < 5; frame++ {
		tm := float64(frame) * 0.05
		if err := c.BeginFrame(tm); err != nil {
			t.Fatalf("BeginFrame: %v", err)
		}

		before := snapshotState(c.State())
		if err := c.Simulate(); err != nil {
			t.Fatalf("Simulate: %v", err)
		}
		after := c.State()
		for i := 0; i < after.Len(); i++ {
			p0, a0 := before[i].pos, before[i].age
			p1, a1 := after.At(i)

			want := math.Mod(a0+1, wrap)
			d := math.Abs(a1 - want)
			if d = math.Min(d, wrap-d); d > 1e-3 {
				t.Errorf("frame %d particle %d: age %v -> %v, want %v", frame, i, a0, a1, want)
			}
			if move := r3.Norm(r3.Sub(p1, p0)); move > cfg.Simulation.MaxDrift+1e-5 {
				t.Errorf("frame %d particle %d: moved %v > %v", frame, i, move, cfg.Simulation.MaxDrift)
			}
		}

		if err := c.Fade(); err != nil {
			t.Fatalf("Fade: %v", err)
		}
		target := c.TrailTarget()
		baseline := make([]uint8, len(target.Pix))
		copy(baseline, target.Pix)

		if err := c.Project(); err != nil {
			t.Fatalf("Project: %v", err)
		}
		out := c.Trail()
		if out != target {
			t.Fatalf("frame %d: published trail %s, projected into %s", frame, out.Name, target.Name)
		}
		for i := 0; i < after.Len(); i++ {
			pos, _ := after.At(i)
			x, y, ok := trail.ToPixel(pos, out.Width(), out.Height())
			if !ok {
				t.Fatalf("particle %d at %v did not project", i, pos)
			}
			px, py := int(x), int(y)
			off := out.PixOffset(px, py)
			was := max(baseline[off], baseline[off+1], baseline[off+2])
			if got := out.IntensityAt(px, py); got <= was {
				t.Errorf("frame %d particle %d: intensity at (%d,%d) %d, baseline %d", frame, i, px, py, got, was)
			}
		}

		if err := c.Composite(); err != nil {
			t.Fatalf("Composite: %v", err)
		}
	}
}

func TestRespawnReturnsToOrigin(t *testing.T) {
	cfg := testConfig()
	cfg.Simulation.Respawn = true
	cfg.Simulation.AgeWrap = 4
	c := newTestContext(t, cfg, Options{})
	wrap := cfg.Simulation.AgeWrap

	respawned := 0
	for frame := 0; frame < 6; frame++ {
		if err := c.BeginFrame(float64(frame) * 0.05); err != nil {
			t.Fatalf("BeginFrame: %v", err)
		}
		before := snapshotState(c.State())
		if err := c.Simulate(); err != nil {
			t.Fatalf("Simulate: %v", err)
		}
		after, origin := c.State(), c.Origin()
		for i := 0; i < after.Len(); i++ {
			p0, a0 := before[i].pos, before[i].age
			p1, _ := after.At(i)

			if a0+1 >= wrap {
				home, _ := origin.At(i)
				if d := r3.Norm(r3.Sub(p1, home)); d > 1e-3 {
					t.Errorf("frame %d particle %d: wrapped to %v, %v from its origin %v", frame, i, p1, d, home)
				}
				respawned++
				continue
			}
			if move := r3.Norm(r3.Sub(p1, p0)); move > cfg.Simulation.MaxDrift+1e-5 {
				t.Errorf("frame %d particle %d: moved %v > %v without wrapping", frame, i, move, cfg.Simulation.MaxDrift)
			}
		}
		if err := c.Fade(); err != nil {
			t.Fatalf("Fade: %v", err)
		}
		if err := c.Project(); err != nil {
			t.Fatalf("Project: %v", err)
		}
		if err := c.Composite(); err != nil {
			t.Fatalf("Composite: %v", err)
		}
	}
	if respawned == 0 {
		t.Error("no particle wrapped its age")
	}
}

func TestPointerSnapshottedOncePerFrame(t *testing.T) {
	rec := &recorder{}
	c := newTestContext(t, testConfig(), Options{Compositor: rec})

	c.Interaction().Set(r3.Vec{X: 1})
	if err := c.BeginFrame(0); err != nil {
		t.Fatal(err)
	}
	c.Interaction().Clear()
	for _, run := range []func() error{c.Simulate, c.Fade, c.Project, c.Composite} {
		if err := run(); err != nil {
			t.Fatal(err)
		}
	}
	if err := c.Step(0.01); err != nil {
		t.Fatal(err)
	}

	if len(rec.frames) != 2 {
		t.Fatalf("composited %d frames, want 2", len(rec.frames))
	}
	if !rec.frames[0].Pointer.Valid || rec.frames[0].Pointer.Pos.X != 1 {
		t.Errorf("frame 0 pointer = %+v, want the value set before BeginFrame", rec.frames[0].Pointer)
	}
	if rec.frames[1].Pointer.Valid {
		t.Errorf("frame 1 pointer = %+v, want cleared", rec.frames[1].Pointer)
	}
}

func TestColorToggleAppliesNextFrame(t *testing.T) {
	rec := &recorder{}
	c := newTestContext(t, testConfig(), Options{Compositor: rec})

	if err := c.BeginFrame(0); err != nil {
		t.Fatal(err)
	}
	if got := c.ToggleColorCycle(); !got {
		t.Fatalf("ToggleColorCycle = false, want true")
	}
	for _, run := range []func() error{c.Simulate, c.Fade, c.Project, c.Composite} {
		if err := run(); err != nil {
			t.Fatal(err)
		}
	}
	if err := c.Step(0.01); err != nil {
		t.Fatal(err)
	}

	if rec.frames[0].ColorCycle {
		t.Error("frame 0 saw the toggle issued mid-frame")
	}
	if !rec.frames[1].ColorCycle {
		t.Error("frame 1 did not see the toggle")
	}
}

func TestResizeFollowsViewport(t *testing.T) {
	cfg := testConfig()
	cfg.Trail.FollowViewport = true
	cfg.Trail.ViewportScale = 0.5
	c := newTestContext(t, cfg, Options{Viewport: Size{Width: 32, Height: 16}})

	if got := c.TrailSize(); got != (Size{Width: 16, Height: 8}) {
		t.Fatalf("initial trail size = %+v, want 16x8", got)
	}
	live := c.LiveBuffers()

	c.RequestResize(48, 20)
	c.RequestResize(64, 30)
	if got := c.TrailSize(); got != (Size{Width: 16, Height: 8}) {
		t.Errorf("resize applied before the next frame: %+v", got)
	}
	if err := c.Step(0); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if got := c.TrailSize(); got != (Size{Width: 32, Height: 16}) {
		t.Errorf("trail size = %+v, want 32x16", got)
	}
	if got := c.Viewport(); got != (Size{Width: 64, Height: 30}) {
		t.Errorf("viewport = %+v, want the last request", got)
	}

	for i := 0; i < 3; i++ {
		c.RequestResize(64, 30)
		if err := c.Step(float64(i)); err != nil {
			t.Fatalf("Step: %v", err)
		}
	}
	if got := c.LiveBuffers(); got != live {
		t.Errorf("LiveBuffers = %d after repeated resize, want %d", got, live)
	}
	if got := c.TrailSize(); got != (Size{Width: 32, Height: 16}) {
		t.Errorf("trail size drifted to %+v", got)
	}
}

func TestResizeFixedTrail(t *testing.T) {
	c := newTestContext(t, testConfig(), Options{Viewport: Size{Width: 100, Height: 50}})
	live, bytes := c.LiveBuffers(), c.LiveBytes()

	c.RequestResize(640, 480)
	if err := c.Step(0); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if got := c.TrailSize(); got != (Size{Width: 16, Height: 8}) {
		t.Errorf("fixed trail resized to %+v", got)
	}
	if c.LiveBuffers() != live || c.LiveBytes() != bytes {
		t.Errorf("allocation changed: %d/%d, want %d/%d", c.LiveBuffers(), c.LiveBytes(), live, bytes)
	}
}

func TestTrailSizeFor(t *testing.T) {
	fixed := config.TrailConfig{Width: 4096, Height: 2048}
	follow := config.TrailConfig{Width: 4096, Height: 2048, FollowViewport: true, ViewportScale: 2}

	tests := []struct {
		name     string
		cfg      config.TrailConfig
		viewport Size
		want     Size
	}{
		{"fixed", fixed, Size{1280, 720}, Size{4096, 2048}},
		{"follow", follow, Size{1280, 720}, Size{2560, 1280}},
		{"follow odd width", config.TrailConfig{FollowViewport: true, ViewportScale: 1}, Size{101, 60}, Size{102, 51}},
		{"follow without viewport", follow, Size{}, Size{4096, 2048}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TrailSizeFor(tt.cfg, tt.viewport); got != tt.want {
				t.Errorf("TrailSizeFor = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestAllocationBudget(t *testing.T) {
	// 3 state buffers of 4x4 = 768 bytes, 2 trail buffers of 16x8 = 1024 bytes
	cfg := testConfig()
	cfg.GPU.MaxBufferBytes = 1000
	if _, err := New(Options{Config: cfg, Seed: 1}); !errors.Is(err, ErrAllocation) {
		t.Fatalf("New over budget: got %v, want ErrAllocation", err)
	}

	cfg = testConfig()
	cfg.GPU.MaxBufferBytes = 1792
	cfg.Trail.FollowViewport = true
	cfg.Trail.ViewportScale = 1
	c := newTestContext(t, cfg, Options{Viewport: Size{Width: 16, Height: 8}})
	if got := c.LiveBytes(); got != 1792 {
		t.Fatalf("LiveBytes = %d, want 1792", got)
	}

	c.RequestResize(64, 32)
	if err := c.Step(0); !errors.Is(err, ErrAllocation) {
		t.Fatalf("Step after oversized resize: got %v, want ErrAllocation", err)
	}
	if err := c.Step(0); !errors.Is(err, ErrClosed) {
		t.Errorf("Step after failed allocation: got %v, want ErrClosed", err)
	}
}

func TestClose(t *testing.T) {
	c, err := New(Options{Config: testConfig(), Seed: 3})
	if err != nil {
		t.Fatal(err)
	}
	if got := c.LiveBuffers(); got != 5 {
		t.Errorf("LiveBuffers = %d, want 5", got)
	}
	c.Close()
	c.Close()
	if got := c.LiveBuffers(); got != 0 {
		t.Errorf("LiveBuffers after Close = %d, want 0", got)
	}
	if err := c.Step(0); !errors.Is(err, ErrClosed) {
		t.Errorf("Step after Close: got %v, want ErrClosed", err)
	}
}

type record struct {
	pos r3.Vec
	age float64
}

func snapshotState(b *particles.Buffer) []record {
	out := make([]record, b.Len())
	for i := range out {
		out[i].pos, out[i].age = b.At(i)
	}
	return out
}
