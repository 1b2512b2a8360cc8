package particles

import (
	"sync"

	"gonum.org/v1/gonum/spatial/r3"
)

// Pointer is an optional interaction point in particle space.
// The zero value means no interaction.
type Pointer struct {
	Pos   r3.Vec
	Valid bool
}

// Interaction is the hand-off between input handling (single writer) and the
// frame loop (single reader). The frame loop takes one Snapshot per frame.
type Interaction struct {
	mu  sync.Mutex
	cur Pointer
}

// Set records a resolved pointer position.
func (in *Interaction) Set(pos r3.Vec) {
	in.mu.Lock()
	in.cur = Pointer{Pos: pos, Valid: true}
	in.mu.Unlock()
}

// Clear marks that the pointer is not over the sphere.
func (in *Interaction) Clear() {
	in.mu.Lock()
	in.cur = Pointer{}
	in.mu.Unlock()
}

// Snapshot returns the latest pointer state.
func (in *Interaction) Snapshot() Pointer {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.cur
}
