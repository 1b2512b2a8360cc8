// Package particles implements the particle state store and the simulation stage.
//
// Particles are not a dynamic collection. Each one is a cell of a fixed W×H grid
// carrying four float channels: x, y, z (unit-sphere space) and an age counter.
package particles

import (
	"fmt"

	"github.com/x448/float16"
	"gonum.org/v1/gonum/spatial/r3"
)

// Channels per particle record.
const Channels = 4

// Precision is the storage precision of a state buffer.
type Precision int

const (
	Float32 Precision = iota
	Float16
)

func (p Precision) String() string {
	if p == Float16 {
		return "float16"
	}
	return "float32"
}

// Buffer is a W×H grid of particle records stored as a flat RGBA float slice.
type Buffer struct {
	Name      string
	Width     int
	Height    int
	Data      []float32
	precision Precision
}

// NewBuffer allocates a zeroed buffer.
func NewBuffer(name string, width, height int, precision Precision) (*Buffer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("state buffer %s: invalid size %dx%d", name, width, height)
	}
	return &Buffer{
		Name:      name,
		Width:     width,
		Height:    height,
		Data:      make([]float32, width*height*Channels),
		precision: precision,
	}, nil
}

// Len returns the number of particles.
func (b *Buffer) Len() int {
	return b.Width * b.Height
}

// Precision returns the storage precision.
func (b *Buffer) Precision() Precision {
	return b.precision
}

// Index returns the particle index for a grid cell.
func (b *Buffer) Index(col, row int) int {
	return row*b.Width + col
}

// At returns the position and age of particle i.
func (b *Buffer) At(i int) (r3.Vec, float64) {
	d := b.Data[i*Channels : i*Channels+Channels : i*Channels+Channels]
	return r3.Vec{X: float64(d[0]), Y: float64(d[1]), Z: float64(d[2])}, float64(d[3])
}

// Set writes particle i, rounding through the buffer's storage precision.
func (b *Buffer) Set(i int, pos r3.Vec, age float64) {
	d := b.Data[i*Channels : i*Channels+Channels : i*Channels+Channels]
	d[0] = b.store(pos.X)
	d[1] = b.store(pos.Y)
	d[2] = b.store(pos.Z)
	d[3] = b.store(age)
}

// Quantize returns v as it would read back after Set.
func (b *Buffer) Quantize(v float64) float64 {
	return float64(b.store(v))
}

func (b *Buffer) store(v float64) float32 {
	f := float32(v)
	if b.precision == Float16 {
		return float16.Fromfloat32(f).Float32()
	}
	return f
}

// CopyFrom copies src into b. Sizes must match.
func (b *Buffer) CopyFrom(src *Buffer) error {
	if src.Width != b.Width || src.Height != b.Height {
		return fmt.Errorf("copy %s -> %s: size mismatch %dx%d vs %dx%d",
			src.Name, b.Name, src.Width, src.Height, b.Width, b.Height)
	}
	if src.precision == b.precision {
		copy(b.Data, src.Data)
		return nil
	}
	for i, v := range src.Data {
		b.Data[i] = b.store(float64(v))
	}
	return nil
}
