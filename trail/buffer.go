// Package trail implements the trail store and the two passes that write it:
// Fade attenuates last frame's image into the write target, then the Projector
// splats every particle onto the same target.
//
// A trail buffer is the sphere surface unwrapped by azimuth (x) and inclination (y).
package trail

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"runtime"
	"sync"
)

// ErrAliased is returned when a pass would read the buffer it is writing.
var ErrAliased = errors.New("source and destination trail buffers alias")

// Buffer is an RGBA8 trail image.
type Buffer struct {
	Name string
	*image.RGBA
}

// NewBuffer allocates a cleared trail buffer.
func NewBuffer(name string, width, height int) (*Buffer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("trail buffer %s: invalid size %dx%d", name, width, height)
	}
	return &Buffer{
		Name: name,
		RGBA: image.NewRGBA(image.Rect(0, 0, width, height)),
	}, nil
}

// Width returns the buffer width in pixels.
func (b *Buffer) Width() int {
	return b.Rect.Dx()
}

// Height returns the buffer height in pixels.
func (b *Buffer) Height() int {
	return b.Rect.Dy()
}

// Clear zeroes every pixel.
func (b *Buffer) Clear() {
	clear(b.Pix)
}

// Intensity is the brightest color channel of a pixel.
func Intensity(c color.RGBA) uint8 {
	return max(c.R, c.G, c.B)
}

// IntensityAt returns the intensity of pixel (x, y).
func (b *Buffer) IntensityAt(x, y int) uint8 {
	return Intensity(b.RGBAAt(x, y))
}

// sameSize reports whether two buffers have identical dimensions.
func sameSize(a, b *Buffer) bool {
	return a.Rect.Dx() == b.Rect.Dx() && a.Rect.Dy() == b.Rect.Dy()
}

// parallelRows splits [0, rows) across workers and waits for all of them.
func parallelRows(rows, workers int, fn func(y0, y1 int)) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers == 1 || rows < 2*workers {
		fn(0, rows)
		return
	}
	chunk := (rows + workers - 1) / workers
	var wg sync.WaitGroup
	for y0 := 0; y0 < rows; y0 += chunk {
		y1 := min(y0+chunk, rows)
		wg.Add(1)
		go func(y0, y1 int) {
			defer wg.Done()
			fn(y0, y1)
		}(y0, y1)
	}
	wg.Wait()
}
