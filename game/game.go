// Package game drives the trail pipeline: frame clock, input, telemetry and
// the windowed or headless compositor.
package game

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/pthm-cable/orbtrail/camera"
	"github.com/pthm-cable/orbtrail/config"
	"github.com/pthm-cable/orbtrail/particles"
	"github.com/pthm-cable/orbtrail/pipeline"
	"github.com/pthm-cable/orbtrail/renderer"
	"github.com/pthm-cable/orbtrail/stream"
	"github.com/pthm-cable/orbtrail/telemetry"
)

// Options configures a game instance.
type Options struct {
	Seed          int64
	LogStats      bool   // Output stats via slog
	OutputDir     string // Directory for CSV logs, config and snapshots
	Headless      bool   // No window; frames are rendered in software when needed
	SnapshotEvery int    // Headless: save a PNG every N frames (0 = off)
	StreamAddr    string // Serve frames over websocket on this address
}

// Game holds the pipeline and everything that feeds or observes it.
type Game struct {
	cfg  *config.Config
	pipe *pipeline.Context

	// Compositors
	sphere   *renderer.SphereRenderer   // windowed only
	software *renderer.SoftwareRenderer // headless output and stream

	// Telemetry
	perfCollector *telemetry.PerfCollector
	collector     *telemetry.Collector
	outputManager *telemetry.OutputManager
	logStats      bool

	hub *stream.Hub

	// State
	headless      bool
	paused        bool
	simTime       float64 // time units fed to the pipeline
	snapshotEvery int

	// Window dimensions
	screenWidth, screenHeight int
}

// NewGameWithOptions creates the pipeline and its collaborators. The raylib
// window must already exist unless opts.Headless is set.
func NewGameWithOptions(opts Options) (*Game, error) {
	cfg := config.Cfg()

	g := &Game{
		cfg:           cfg,
		perfCollector: telemetry.NewPerfCollector(cfg.Telemetry.PerfCollectorWindow),
		collector:     telemetry.NewCollector(cfg.Telemetry.StatsWindow),
		logStats:      opts.LogStats,
		headless:      opts.Headless,
		snapshotEvery: opts.SnapshotEvery,
		screenWidth:   cfg.Screen.Width,
		screenHeight:  cfg.Screen.Height,
	}

	precision, err := particles.ResolvePrecision(cfg.GPU.Precision, cfg.GPU.FloatTextures)
	if err != nil {
		return nil, err
	}

	om, err := telemetry.NewOutputManager(opts.OutputDir)
	if err != nil {
		return nil, err
	}
	g.outputManager = om
	if err := om.WriteConfig(cfg); err != nil {
		slog.Error("failed to write config", "error", err)
	}

	streaming := opts.StreamAddr != ""
	if opts.Headless || streaming {
		g.software = renderer.NewSoftwareRenderer(cfg.Camera, cfg.Screen.Width, cfg.Screen.Height)
		g.software.OnFrame = g.onSoftwareFrame
	}

	var comps []pipeline.Compositor
	if !opts.Headless {
		g.sphere = renderer.NewSphereRenderer(cfg.Camera)
		comps = append(comps, g.sphere)
	}
	if g.software != nil {
		comps = append(comps, &gatedCompositor{next: g.software, want: g.wantSoftwareFrame})
	}

	g.pipe, err = pipeline.New(pipeline.Options{
		Config:     cfg,
		Seed:       opts.Seed,
		Precision:  precision,
		Viewport:   pipeline.Size{Width: cfg.Screen.Width, Height: cfg.Screen.Height},
		Compositor: chain(comps),
		Timer:      g.perfCollector,
	})
	if err != nil {
		om.Close()
		return nil, fmt.Errorf("creating pipeline: %w", err)
	}

	if streaming {
		g.hub = stream.NewHub(cfg.Stream, g.pipe)
		if err := g.hub.Start(opts.StreamAddr); err != nil {
			g.pipe.Close()
			om.Close()
			return nil, err
		}
	}
	return g, nil
}

// Pipeline returns the pipeline context.
func (g *Game) Pipeline() *pipeline.Context {
	return g.pipe
}

// Frame returns the number of completed frames.
func (g *Game) Frame() uint64 {
	return g.pipe.FrameIndex()
}

// SimTime returns the current pipeline time.
func (g *Game) SimTime() float64 {
	return g.simTime
}

// advance moves the frame clock by dtMs wall milliseconds.
func (g *Game) advance(dtMs float64) {
	g.simTime += dtMs * g.cfg.Palette.TimeScale
}

// step runs one pipeline frame and the telemetry that follows it.
func (g *Game) step() error {
	if err := g.pipe.Step(g.simTime); err != nil {
		return err
	}
	if g.pipe.LastFrame().Pointer.Valid {
		g.collector.RecordPointer()
	}
	g.flushTelemetry()
	return nil
}

// UpdateHeadless runs one frame on a fixed clock of 1/TargetFPS seconds.
func (g *Game) UpdateHeadless() error {
	fps := g.cfg.Screen.TargetFPS
	if fps <= 0 {
		fps = 60
	}
	g.advance(1000 / float64(fps))
	return g.step()
}

// orbit turns every view camera by the same amount so streamed frames match
// the window.
func (g *Game) orbit(yaw, pitch float64) {
	for _, cam := range g.cameras() {
		cam.Orbit(yaw, pitch)
	}
}

// resetView returns every view camera to its starting position.
func (g *Game) resetView() {
	for _, cam := range g.cameras() {
		cam.Reset()
	}
}

func (g *Game) cameras() []*camera.Camera {
	var cams []*camera.Camera
	if g.sphere != nil {
		cams = append(cams, g.sphere.Camera())
	}
	if g.software != nil {
		cams = append(cams, g.software.Camera())
	}
	return cams
}

// wantSoftwareFrame reports whether the software renderer has a consumer for
// frame f.
func (g *Game) wantSoftwareFrame(f pipeline.Frame) bool {
	if g.snapshotEvery > 0 && g.outputManager != nil && f.Index%uint64(g.snapshotEvery) == 0 {
		return true
	}
	if g.hub != nil && g.hub.Clients() > 0 && f.Index%uint64(g.cfg.Stream.Interval) == 0 {
		return true
	}
	return false
}

func (g *Game) onSoftwareFrame(img *image.RGBA, f pipeline.Frame) {
	if g.hub != nil {
		g.hub.Publish(img, f)
	}
	if g.snapshotEvery > 0 && f.Index%uint64(g.snapshotEvery) == 0 {
		path, err := g.outputManager.WriteImage(fmt.Sprintf("frame_%06d.png", f.Index), img)
		if err != nil {
			slog.Error("failed to write snapshot", "frame", f.Index, "error", err)
		} else if path != "" {
			slog.Debug("snapshot saved", "path", path)
		}
	}
}

// Unload releases all resources.
func (g *Game) Unload() {
	if g.hub != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := g.hub.Shutdown(ctx); err != nil {
			slog.Warn("stream shutdown", "error", err)
		}
		cancel()
	}
	if g.sphere != nil {
		g.sphere.Unload()
	}
	g.pipe.Close()
	if err := g.outputManager.Close(); err != nil {
		slog.Error("failed to close output", "error", err)
	}
}
