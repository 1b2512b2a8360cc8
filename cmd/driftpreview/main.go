// Drift field preview tool - interactive view of the particle drift field and
// the trail it produces, with sliders for the noise parameters.
//
// Usage: go run ./cmd/driftpreview
package main

import (
	"fmt"
	"image/color"
	"log/slog"
	"os"

	gui "github.com/gen2brain/raylib-go/raygui"
	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/orbtrail/config"
	"github.com/pthm-cable/orbtrail/particles"
	"github.com/pthm-cable/orbtrail/pipeline"
	"github.com/pthm-cable/orbtrail/trail"
)

const (
	windowWidth  = 1000
	windowHeight = 720
	previewW     = 512
	previewH     = 256
	fieldW       = 256
	fieldH       = 128
	panelX       = previewW + 30
	panelWidth   = windowWidth - panelX - 20
)

func main() {
	if err := config.Init(""); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()
	cfg.Particles.Mode = config.ModeReduced
	cfg.Derived.GridWidth = cfg.Particles.Reduced.Width
	cfg.Derived.GridHeight = cfg.Particles.Reduced.Height
	cfg.Trail.Width, cfg.Trail.Height = previewW, previewH
	cfg.Trail.FollowViewport = false

	rl.InitWindow(windowWidth, windowHeight, "Drift Field Preview")
	defer rl.CloseWindow()
	rl.SetTargetFPS(30)

	pipe, err := pipeline.New(pipeline.Options{
		Config:    cfg,
		Seed:      12345,
		Precision: particles.Float32,
	})
	if err != nil {
		slog.Error("failed to create pipeline", "error", err)
		os.Exit(1)
	}
	defer pipe.Close()

	field := pipe.Simulator().Field()
	scale := float32(cfg.Simulation.NoiseScale)
	speed := float32(cfg.Simulation.NoiseSpeed)

	fieldTex := newTexture(fieldW, fieldH)
	defer rl.UnloadTexture(fieldTex)
	trailTex := newTexture(previewW, previewH)
	defer rl.UnloadTexture(trailTex)

	fieldPixels := make([]color.RGBA, fieldW*fieldH)
	trailPixels := make([]color.RGBA, previewW*previewH)

	var simTime float64
	running := true

	for !rl.WindowShouldClose() {
		if running {
			simTime += float64(rl.GetFrameTime()) * 1000 * cfg.Palette.TimeScale
			if err := pipe.Step(simTime); err != nil {
				slog.Error("frame failed", "error", err)
				return
			}
		}

		renderField(fieldPixels, field, simTime)
		rl.UpdateTexture(fieldTex, fieldPixels)
		copyTrail(trailPixels, pipe.Trail())
		rl.UpdateTexture(trailTex, trailPixels)

		rl.BeginDrawing()
		rl.ClearBackground(rl.RayWhite)

		// Field on top, trail below
		rl.DrawTexturePro(fieldTex,
			rl.Rectangle{Width: fieldW, Height: fieldH},
			rl.Rectangle{X: 10, Y: 10, Width: previewW, Height: previewH},
			rl.Vector2{}, 0, rl.White)
		rl.DrawRectangleLines(10, 10, previewW, previewH, rl.DarkGray)
		rl.DrawTexture(trailTex, 10, previewH+20, rl.White)
		rl.DrawRectangleLines(10, previewH+20, previewW, previewH, rl.DarkGray)

		statsY := int32(2*previewH + 30)
		rl.DrawText(fmt.Sprintf("Frame: %d  Time: %.3f", pipe.FrameIndex(), simTime), 15, statsY, 16, rl.DarkGray)

		y := float32(10)
		rl.DrawText("Drift Field Parameters", panelX, int32(y), 20, rl.DarkGray)
		y += 35

		rl.DrawText("Noise scale (spatial frequency)", panelX, int32(y), 14, rl.Gray)
		y += 18
		newScale := gui.SliderBar(rl.Rectangle{X: panelX, Y: y, Width: panelWidth - 80, Height: 20}, "0.1", "8.0", scale, 0.1, 8)
		rl.DrawText(fmt.Sprintf("%.2f", scale), int32(panelX+panelWidth-70), int32(y+2), 16, rl.DarkGray)
		if newScale != scale {
			scale = newScale
			field.SetScale(float64(scale))
		}
		y += 35

		rl.DrawText("Noise speed (temporal frequency)", panelX, int32(y), 14, rl.Gray)
		y += 18
		newSpeed := gui.SliderBar(rl.Rectangle{X: panelX, Y: y, Width: panelWidth - 80, Height: 20}, "0", "5.0", speed, 0, 5)
		rl.DrawText(fmt.Sprintf("%.2f", speed), int32(panelX+panelWidth-70), int32(y+2), 16, rl.DarkGray)
		if newSpeed != speed {
			speed = newSpeed
			field.SetSpeed(float64(speed))
		}
		y += 45

		if gui.Button(rl.Rectangle{X: panelX, Y: y, Width: 120, Height: 30}, toggleText(running, "Pause", "Run")) {
			running = !running
		}
		if gui.Button(rl.Rectangle{X: panelX + 130, Y: y, Width: 120, Height: 30}, toggleText(pipe.ColorCycle(), "Red", "Color")) {
			pipe.ToggleColorCycle()
		}

		rl.EndDrawing()
	}
}

func toggleText(cond bool, ifTrue, ifFalse string) string {
	if cond {
		return ifTrue
	}
	return ifFalse
}

func newTexture(w, h int) rl.Texture2D {
	img := rl.GenImageColor(w, h, rl.Black)
	tex := rl.LoadTextureFromImage(img)
	rl.UnloadImage(img)
	return tex
}

// renderField maps each field component to a color channel over the
// equirectangular layout used by the trail buffers.
func renderField(pixels []color.RGBA, field *particles.DriftField, t float64) {
	for y := 0; y < fieldH; y++ {
		w := (float64(y) + 0.5) / fieldH
		for x := 0; x < fieldW; x++ {
			u := (float64(x) + 0.5) / fieldW
			v := field.At(trail.Direction(u, w), t)
			pixels[y*fieldW+x] = color.RGBA{
				R: toByte(v.X),
				G: toByte(v.Y),
				B: toByte(v.Z),
				A: 255,
			}
		}
	}
}

func toByte(c float64) uint8 {
	v := (c*0.5 + 0.5) * 255
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

func copyTrail(pixels []color.RGBA, tr *trail.Buffer) {
	if tr == nil || tr.Width() != previewW || tr.Height() != previewH {
		return
	}
	for y := 0; y < previewH; y++ {
		row := tr.Pix[y*tr.Stride:]
		for x := 0; x < previewW; x++ {
			i := x * 4
			pixels[y*previewW+x] = color.RGBA{R: row[i], G: row[i+1], B: row[i+2], A: 255}
		}
	}
}
