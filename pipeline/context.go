// Package pipeline owns every buffer of the feedback renderer and runs the
// per-frame passes in their fixed order: simulate, fade, project, composite.
//
// Each pass is also exposed on its own so a driver (or a test) can interleave
// inspection. The frame state machine rejects any pass issued out of order.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pthm-cable/orbtrail/config"
	"github.com/pthm-cable/orbtrail/particles"
	"github.com/pthm-cable/orbtrail/pingpong"
	"github.com/pthm-cable/orbtrail/trail"
)

var (
	// ErrStageOrder is returned when a pass is issued before its predecessor.
	ErrStageOrder = errors.New("pipeline stage out of order")
	// ErrAllocation is returned when a buffer cannot be created.
	ErrAllocation = errors.New("buffer allocation failed")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("pipeline closed")
)

// Frame is the per-frame snapshot handed to the compositor.
type Frame struct {
	Index      uint64
	Time       float64
	ColorCycle bool
	Pointer    particles.Pointer
	State      *particles.Buffer
	Viewport   Size
}

// Compositor draws the latest trail buffer. It must not modify it.
type Compositor interface {
	Composite(tr *trail.Buffer, f Frame) error
}

// Options configures a pipeline context.
type Options struct {
	Config     *config.Config
	Seed       int64
	Precision  particles.Precision
	Viewport   Size
	Compositor Compositor // optional
	Observer   Observer   // optional
	Timer      PhaseTimer // optional
}

// Context is the single simulation instance. All buffers are owned here.
type Context struct {
	mu sync.Mutex

	cfg        *config.Config
	sim        *particles.Simulator
	proj       *trail.Projector
	compositor Compositor
	observer   Observer
	timer      PhaseTimer
	alloc      allocator

	origin *particles.Buffer
	state  *pingpong.Pair[*particles.Buffer]
	trails *pingpong.Pair[*trail.Buffer]

	interaction particles.Interaction
	colorCycle  atomic.Bool

	pendingMu sync.Mutex
	pending   *Size
	viewport  Size
	trailGen  int

	phase  phase
	frame  Frame
	index  uint64
	closed bool
}

// New allocates every buffer and seeds the state store. Any allocation failure
// is fatal for the caller; nothing is left allocated.
func New(opts Options) (*Context, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("pipeline: nil config")
	}

	c := &Context{
		cfg:        cfg,
		sim:        particles.NewSimulator(cfg.Simulation, opts.Seed),
		proj:       trail.NewProjector(cfg.Trail, trail.NewPalette(cfg.Simulation.AgeWrap, cfg.Palette.Period)),
		compositor: opts.Compositor,
		observer:   opts.Observer,
		timer:      opts.Timer,
		alloc:      allocator{limit: cfg.GPU.MaxBufferBytes},
		viewport:   opts.Viewport,
	}
	c.colorCycle.Store(cfg.Palette.ColorCycle)

	w, h := cfg.Derived.GridWidth, cfg.Derived.GridHeight
	var err error
	var a, b *particles.Buffer
	if c.origin, err = c.alloc.state("state-origin", w, h, opts.Precision); err != nil {
		return nil, err
	}
	if a, err = c.alloc.state("state-0", w, h, opts.Precision); err != nil {
		c.release()
		return nil, err
	}
	if b, err = c.alloc.state("state-1", w, h, opts.Precision); err != nil {
		c.alloc.releaseState(a)
		c.release()
		return nil, err
	}

	particles.Seed(c.origin, rand.New(rand.NewSource(opts.Seed)), particles.SeedParams{
		RadiusMin:    cfg.Simulation.RadiusMin,
		RadiusJitter: cfg.Simulation.RadiusJitter,
		AgeWrap:      cfg.Simulation.AgeWrap,
	})
	c.state = pingpong.New(a, b)
	if err := a.CopyFrom(c.origin); err != nil {
		c.release()
		return nil, err
	}

	ts := TrailSizeFor(cfg.Trail, c.viewport)
	pair, err := c.alloc.trailPair(c.trailGen, ts.Width, ts.Height)
	if err != nil {
		c.release()
		return nil, err
	}
	c.trails = pingpong.New(pair[0], pair[1])

	slog.Info("pipeline ready",
		"grid", fmt.Sprintf("%dx%d", w, h),
		"trail", fmt.Sprintf("%dx%d", ts.Width, ts.Height),
		"precision", opts.Precision,
		"live_buffers", c.alloc.live,
		"bytes", c.alloc.bytes,
	)
	return c, nil
}

// Step runs one complete frame at time t.
func (c *Context) Step(t float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.beginFrame(t); err != nil {
		return err
	}
	if c.timer != nil {
		c.timer.StartTick()
		defer c.timer.EndTick()
	}
	for _, run := range []func() error{c.simulate, c.fade, c.project, c.composite} {
		if err := run(); err != nil {
			return err
		}
	}
	return nil
}

// BeginFrame applies any pending resize and snapshots the pointer and toggles.
func (c *Context) BeginFrame(t float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.beginFrame(t)
}

// Simulate runs the simulation pass.
func (c *Context) Simulate() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.simulate()
}

// Fade runs the fade pass.
func (c *Context) Fade() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fade()
}

// Project runs the projection pass.
func (c *Context) Project() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.project()
}

// Composite runs the compositor and ends the frame.
func (c *Context) Composite() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.composite()
}

func (c *Context) beginFrame(t float64) error {
	if c.closed {
		return ErrClosed
	}
	if c.phase != phaseIdle {
		return fmt.Errorf("%w: frame %d still in progress", ErrStageOrder, c.index)
	}
	if err := c.applyPendingResize(); err != nil {
		return err
	}
	c.frame = Frame{
		Index:      c.index,
		Time:       t,
		ColorCycle: c.colorCycle.Load(),
		Pointer:    c.interaction.Snapshot(),
		Viewport:   c.viewport,
	}
	c.phase = phaseBegun
	return nil
}

// enter checks the state machine and starts the phase timer.
func (c *Context) enter(s Stage) error {
	if c.closed {
		return ErrClosed
	}
	if c.phase != expects[s] {
		return fmt.Errorf("%w: %s issued in phase %d", ErrStageOrder, s, c.phase)
	}
	if c.timer != nil {
		c.timer.StartPhase(s.String())
	}
	return nil
}

// abort drops the current frame after a failed pass.
func (c *Context) abort(s Stage, err error) error {
	c.phase = phaseIdle
	return fmt.Errorf("frame %d %s: %w", c.index, s, err)
}

func (c *Context) emit(s Stage, read, write string, start time.Time) {
	if c.observer == nil {
		return
	}
	c.observer.OnStage(StageEvent{
		Frame:    c.index,
		Stage:    s,
		Read:     read,
		Write:    write,
		Duration: time.Since(start),
	})
}

func (c *Context) simulate() error {
	if err := c.enter(StageSimulate); err != nil {
		return err
	}
	start := time.Now()
	var read, write string
	err := c.state.Advance(func(src, dst *particles.Buffer) error {
		read, write = src.Name, dst.Name
		return c.sim.Advance(src, dst, c.origin, c.frame.Pointer, c.frame.Time)
	})
	if err != nil {
		return c.abort(StageSimulate, err)
	}
	c.frame.State = c.state.Current()
	c.phase = phaseSimulated
	c.emit(StageSimulate, read, write, start)
	return nil
}

func (c *Context) fade() error {
	if err := c.enter(StageFade); err != nil {
		return err
	}
	start := time.Now()
	src, dst := c.trails.Current(), c.trails.Previous()
	if err := trail.Fade(src, dst, uint8(c.cfg.Trail.FadeDelta), c.cfg.Simulation.Workers); err != nil {
		return c.abort(StageFade, err)
	}
	c.phase = phaseFaded
	c.emit(StageFade, src.Name, dst.Name, start)
	return nil
}

// project splats into the target the fade pass just wrote, then publishes it.
func (c *Context) project() error {
	if err := c.enter(StageProject); err != nil {
		return err
	}
	start := time.Now()
	state, dst := c.state.Current(), c.trails.Previous()
	c.proj.Project(state, dst, c.frame.Time, c.frame.ColorCycle)
	c.trails.Swap()
	c.phase = phaseProjected
	c.emit(StageProject, state.Name, dst.Name, start)
	return nil
}

func (c *Context) composite() error {
	if err := c.enter(StageComposite); err != nil {
		return err
	}
	start := time.Now()
	tr := c.trails.Current()
	if c.compositor != nil {
		if err := c.compositor.Composite(tr, c.frame); err != nil {
			return c.abort(StageComposite, err)
		}
	}
	c.phase = phaseIdle
	c.emit(StageComposite, tr.Name, "", start)
	c.index++
	return nil
}

// Interaction returns the pointer hand-off written by input handling.
func (c *Context) Interaction() *particles.Interaction {
	return &c.interaction
}

// SetColorCycle sets the cosmetic color-cycle mode for the next frame.
func (c *Context) SetColorCycle(on bool) {
	c.colorCycle.Store(on)
}

// ToggleColorCycle flips the color-cycle mode and returns the new value.
func (c *Context) ToggleColorCycle() bool {
	for {
		old := c.colorCycle.Load()
		if c.colorCycle.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

// ColorCycle reports the color-cycle mode.
func (c *Context) ColorCycle() bool {
	return c.colorCycle.Load()
}

// State returns the most recently written state buffer.
func (c *Context) State() *particles.Buffer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Current()
}

// Origin returns the initial distribution.
func (c *Context) Origin() *particles.Buffer {
	return c.origin
}

// Trail returns the most recently completed trail buffer.
func (c *Context) Trail() *trail.Buffer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.trails.Current()
}

// TrailTarget returns the trail buffer the current frame writes into.
// Between Fade and Project it holds the faded baseline.
func (c *Context) TrailTarget() *trail.Buffer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.trails.Previous()
}

// Simulator returns the simulation stage.
func (c *Context) Simulator() *particles.Simulator {
	return c.sim
}

// Config returns the configuration the context was built with.
func (c *Context) Config() *config.Config {
	return c.cfg
}

// LastFrame returns the snapshot of the current or most recent frame.
func (c *Context) LastFrame() Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frame
}

// FrameIndex returns the number of completed frames.
func (c *Context) FrameIndex() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index
}

// LiveBuffers returns the number of allocated buffers.
func (c *Context) LiveBuffers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alloc.live
}

// LiveBytes returns the bytes held by allocated buffers.
func (c *Context) LiveBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alloc.bytes
}

// Close waits for an in-flight frame and releases every buffer.
func (c *Context) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.release()
	c.closed = true
	slog.Info("pipeline closed", "frames", c.index)
}

func (c *Context) release() {
	c.alloc.releaseState(c.origin)
	c.origin = nil
	if c.state != nil {
		for _, b := range c.state.Slots() {
			c.alloc.releaseState(b)
		}
	}
	if c.trails != nil {
		for _, b := range c.trails.Slots() {
			c.alloc.releaseTrail(b)
		}
	}
}
