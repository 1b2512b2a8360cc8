// Snapshot tool - runs the pipeline headless for a number of frames and writes
// the composited view and the raw trail buffer to PNG files for inspection.
//
// Usage: go run ./cmd/snapshot -frames 300 -out view.png -trail-out trail.png
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/pthm-cable/orbtrail/config"
	"github.com/pthm-cable/orbtrail/particles"
	"github.com/pthm-cable/orbtrail/pipeline"
	"github.com/pthm-cable/orbtrail/renderer"
	"github.com/pthm-cable/orbtrail/telemetry"
)

func main() {
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	outPath := flag.String("out", "view.png", "Output PNG path for the composited view")
	trailOut := flag.String("trail-out", "", "Output PNG path for the raw trail buffer (empty = skip)")
	width := flag.Int("width", 1280, "Render width")
	height := flag.Int("height", 720, "Render height")
	frames := flag.Int("frames", 300, "Frames to run before capturing")
	seed := flag.Int64("seed", 1, "RNG seed")
	points := flag.Bool("points", false, "Overlay particle debug points")
	flag.Parse()

	if err := config.Init(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Cfg()
	cfg.Camera.ShowPoints = *points

	precision, err := particles.ResolvePrecision(cfg.GPU.Precision, cfg.GPU.FloatTextures)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to resolve precision: %v\n", err)
		os.Exit(1)
	}

	pipe, err := pipeline.New(pipeline.Options{
		Config:    cfg,
		Seed:      *seed,
		Precision: precision,
		Viewport:  pipeline.Size{Width: *width, Height: *height},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create pipeline: %v\n", err)
		os.Exit(1)
	}
	defer pipe.Close()

	dt := 1000 / float64(max(cfg.Screen.TargetFPS, 1)) * cfg.Palette.TimeScale
	var t float64
	for i := 0; i < *frames; i++ {
		t += dt
		if err := pipe.Step(t); err != nil {
			fmt.Fprintf(os.Stderr, "Frame %d failed: %v\n", i, err)
			os.Exit(1)
		}
	}

	sw := renderer.NewSoftwareRenderer(cfg.Camera, *width, *height)
	img := sw.Render(pipe.Trail(), pipe.State(), t)
	if err := telemetry.SavePNG(*outPath, img); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to export image: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("View rendered to: %s (%dx%d, %d frames)\n", *outPath, *width, *height, *frames)

	if *trailOut != "" {
		tr := pipe.Trail()
		if err := telemetry.SavePNG(*trailOut, tr.RGBA); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to export trail: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Trail written to: %s (%dx%d)\n", *trailOut, tr.Width(), tr.Height())
	}
}
