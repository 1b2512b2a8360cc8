package game

import (
	"log/slog"

	rl "github.com/gen2brain/raylib-go/raylib"
)

// handleInput processes keyboard and mouse input.
func (g *Game) handleInput() {
	// Window resize propagation
	g.handleResize()

	// Fullscreen toggle
	if rl.IsKeyPressed(rl.KeyF11) {
		rl.ToggleFullscreen()
	}

	if rl.IsKeyPressed(rl.KeySpace) {
		g.paused = !g.paused
	}

	if rl.IsKeyPressed(rl.KeyC) {
		g.toggleColor()
	}

	if rl.IsKeyPressed(rl.KeyR) {
		g.resetView()
	}

	g.handleOrbit()
	g.handlePointer()
}

// orbitSpeed is radians of camera rotation per pixel of mouse drag.
const orbitSpeed = 0.005

// handleOrbit rotates the view around the sphere while the left button is
// dragged. Zoom and pan are not offered.
func (g *Game) handleOrbit() {
	if !rl.IsMouseButtonDown(rl.MouseButtonLeft) {
		return
	}
	d := rl.GetMouseDelta()
	if d.X == 0 && d.Y == 0 {
		return
	}
	g.orbit(-float64(d.X)*orbitSpeed, float64(d.Y)*orbitSpeed)
}

// toggleColor flips the color cycle. It applies from the next frame.
func (g *Game) toggleColor() {
	on := g.pipe.ToggleColorCycle()
	g.collector.RecordToggle()
	slog.Info("color cycle toggled", "enabled", on)
}

// handleResize checks for window resize and queues it for the next frame.
func (g *Game) handleResize() {
	if !rl.IsWindowResized() {
		return
	}
	w, h := rl.GetScreenWidth(), rl.GetScreenHeight()
	if w == g.screenWidth && h == g.screenHeight {
		return
	}
	g.screenWidth = w
	g.screenHeight = h

	g.pipe.RequestResize(w, h)
	g.collector.RecordResize()
}

// handlePointer resolves the mouse against the sphere and hands the result to
// the pipeline. A pointer off the sphere clears the interaction.
func (g *Game) handlePointer() {
	in := g.pipe.Interaction()
	if !rl.IsCursorOnScreen() {
		in.Clear()
		return
	}
	pos, ok := g.sphere.PointerOnSphere(rl.GetMousePosition(), g.simTime)
	if !ok {
		in.Clear()
		return
	}
	in.Set(pos)
}
