package main

import (
	"flag"
	"log/slog"
	"os"
	"time"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/orbtrail/config"
	"github.com/pthm-cable/orbtrail/game"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	headless := flag.Bool("headless", false, "Run without a window; frames are rendered in software")
	logStats := flag.Bool("log-stats", false, "Output stats via slog")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs, config snapshot and PNG frames")
	seed := flag.Int64("seed", 0, "RNG seed (0 = time-based)")
	maxFrames := flag.Uint64("max-frames", 0, "Stop after N frames (0 = unlimited)")
	snapshotEvery := flag.Int("snapshot-every", 0, "Save a PNG every N frames to the output directory (0 = off)")
	serve := flag.String("serve", "", "Stream frames over websocket on this address (overrides stream.addr)")

	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Initialize config before anything else
	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()

	rngSeed := *seed
	if rngSeed == 0 {
		rngSeed = time.Now().UnixNano()
	}

	streamAddr := cfg.Stream.Addr
	if *serve != "" {
		streamAddr = *serve
	}

	opts := game.Options{
		Seed:          rngSeed,
		LogStats:      *logStats,
		OutputDir:     *outputDir,
		Headless:      *headless,
		SnapshotEvery: *snapshotEvery,
		StreamAddr:    streamAddr,
	}

	if *headless {
		os.Exit(runHeadless(opts, *maxFrames))
	}
	os.Exit(runWindowed(opts, *maxFrames))
}

func runHeadless(opts game.Options, maxFrames uint64) int {
	g, err := game.NewGameWithOptions(opts)
	if err != nil {
		slog.Error("failed to start", "error", err)
		return 1
	}
	defer g.Unload()

	slog.Info("starting headless run",
		"seed", opts.Seed,
		"max_frames", maxFrames,
		"stream", opts.StreamAddr,
	)

	for maxFrames == 0 || g.Frame() < maxFrames {
		if err := g.UpdateHeadless(); err != nil {
			slog.Error("frame failed", "frame", g.Frame(), "error", err)
			return 1
		}
	}
	slog.Info("max frames reached", "frame", g.Frame())
	return 0
}

func runWindowed(opts game.Options, maxFrames uint64) int {
	cfg := config.Cfg()

	rl.SetConfigFlags(rl.FlagWindowResizable | rl.FlagMsaa4xHint)
	rl.InitWindow(int32(cfg.Screen.Width), int32(cfg.Screen.Height), cfg.Screen.Title)
	defer rl.CloseWindow()

	rl.SetTargetFPS(int32(cfg.Screen.TargetFPS))

	g, err := game.NewGameWithOptions(opts)
	if err != nil {
		slog.Error("failed to start", "error", err)
		return 1
	}
	defer g.Unload()

	if err := g.Run(maxFrames); err != nil {
		slog.Error("frame failed", "frame", g.Frame(), "error", err)
		return 1
	}
	return 0
}
