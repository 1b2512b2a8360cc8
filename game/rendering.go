package game

import (
	"fmt"
	"log/slog"

	gui "github.com/gen2brain/raylib-go/raygui"
	rl "github.com/gen2brain/raylib-go/raylib"
)

// Update handles input and advances the frame clock by the last frame time.
func (g *Game) Update() {
	g.handleInput()
	if !g.paused {
		g.advance(float64(rl.GetFrameTime()) * 1000)
	}
}

// Draw runs one pipeline frame, whose composite pass draws the sphere, then
// the HUD on top.
func (g *Game) Draw() error {
	g.perfCollector.RecordFrame()

	rl.BeginDrawing()
	defer rl.EndDrawing()

	if g.paused {
		// Redraw the last published trail without advancing the pipeline.
		if err := g.sphere.Composite(g.pipe.Trail(), g.pipe.LastFrame()); err != nil {
			return err
		}
	} else if err := g.step(); err != nil {
		return err
	}

	g.drawHUD()
	return nil
}

// drawHUD draws the color toggle and status text.
func (g *Game) drawHUD() {
	label := "Color"
	if g.pipe.ColorCycle() {
		label = "Red"
	}
	if gui.Button(rl.Rectangle{X: 10, Y: 10, Width: 80, Height: 28}, label) {
		g.toggleColor()
	}

	ts := g.pipe.TrailSize()
	rl.DrawText(fmt.Sprintf("FPS: %d  Frame: %d", rl.GetFPS(), g.Frame()), 100, 10, 20, rl.White)
	rl.DrawText(fmt.Sprintf("Trail: %dx%d  [C] color  [Space] pause  [Drag] orbit  [R] reset view", ts.Width, ts.Height), 100, 34, 16, rl.Gray)
	if g.paused {
		rl.DrawText("PAUSED", 10, 60, 20, rl.Yellow)
	}
}

// Run drives the windowed loop until the window closes or maxFrames frames
// have completed (0 = unlimited).
func (g *Game) Run(maxFrames uint64) error {
	for !rl.WindowShouldClose() {
		g.Update()
		if err := g.Draw(); err != nil {
			return err
		}
		if maxFrames > 0 && g.Frame() >= maxFrames {
			slog.Info("max frames reached", "frame", g.Frame())
			break
		}
	}
	return nil
}
