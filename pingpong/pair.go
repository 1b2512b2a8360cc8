// Package pingpong provides the double-buffer pair used by every feedback stage.
//
// A Pair holds two equally-shaped resources. One is Current (last written, safe to
// read), the other is Previous (the next write target). Roles flip in exactly one
// place, Swap, so a writer can never read the slot it is writing.
package pingpong

// Pair is a two-slot ping-pong buffer.
type Pair[T any] struct {
	slots [2]T
	cur   int
	gen   uint64
}

// New creates a pair. a starts as Current, b as Previous.
func New[T any](a, b T) *Pair[T] {
	return &Pair[T]{slots: [2]T{a, b}}
}

// Current returns the most recently written slot.
func (p *Pair[T]) Current() T {
	return p.slots[p.cur]
}

// Previous returns the slot that is not current. It is the write target for the
// next generation.
func (p *Pair[T]) Previous() T {
	return p.slots[p.cur^1]
}

// CurrentIndex returns the slot index (0 or 1) of Current.
func (p *Pair[T]) CurrentIndex() int {
	return p.cur
}

// Generation returns the number of completed swaps.
func (p *Pair[T]) Generation() uint64 {
	return p.gen
}

// Swap makes Previous the new Current.
func (p *Pair[T]) Swap() {
	p.cur ^= 1
	p.gen++
}

// Advance runs fn with Current as source and Previous as destination, then swaps.
// The swap only happens when fn succeeds, so a failed write never becomes readable.
func (p *Pair[T]) Advance(fn func(src, dst T) error) error {
	if err := fn(p.slots[p.cur], p.slots[p.cur^1]); err != nil {
		return err
	}
	p.Swap()
	return nil
}

// Slots returns both slots in index order. Used for release and inspection.
func (p *Pair[T]) Slots() [2]T {
	return p.slots
}

// Replace installs new slots, resets Current to slot 0 and returns the old slots
// so the caller can release them.
func (p *Pair[T]) Replace(a, b T) [2]T {
	old := p.slots
	p.slots = [2]T{a, b}
	p.cur = 0
	return old
}
