package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/pthm-cable/orbtrail/particles"
	"github.com/pthm-cable/orbtrail/trail"
)

// allocator creates and releases pipeline buffers against a byte budget.
type allocator struct {
	limit int64 // 0 = unlimited
	live  int
	bytes int64
}

func (a *allocator) reserve(name string, n int64) error {
	if a.limit > 0 && a.bytes+n > a.limit {
		return fmt.Errorf("%w: %s needs %d bytes, %d of %d in use",
			ErrAllocation, name, n, a.bytes, a.limit)
	}
	a.live++
	a.bytes += n
	return nil
}

func (a *allocator) free(n int64) {
	a.live--
	a.bytes -= n
}

func stateBytes(w, h int) int64 {
	return int64(w) * int64(h) * particles.Channels * 4
}

func trailBytes(w, h int) int64 {
	return int64(w) * int64(h) * 4
}

func (a *allocator) state(name string, w, h int, p particles.Precision) (*particles.Buffer, error) {
	if err := a.reserve(name, stateBytes(w, h)); err != nil {
		return nil, err
	}
	b, err := particles.NewBuffer(name, w, h, p)
	if err != nil {
		a.free(stateBytes(w, h))
		return nil, fmt.Errorf("%w: %v", ErrAllocation, err)
	}
	return b, nil
}

func (a *allocator) trail(name string, w, h int) (*trail.Buffer, error) {
	if err := a.reserve(name, trailBytes(w, h)); err != nil {
		return nil, err
	}
	b, err := trail.NewBuffer(name, w, h)
	if err != nil {
		a.free(trailBytes(w, h))
		return nil, fmt.Errorf("%w: %v", ErrAllocation, err)
	}
	return b, nil
}

// trailPair allocates both trail slots or neither.
func (a *allocator) trailPair(gen, w, h int) ([2]*trail.Buffer, error) {
	var out [2]*trail.Buffer
	for i := range out {
		b, err := a.trail(fmt.Sprintf("trail-%d.%d", gen, i), w, h)
		if err != nil {
			for _, prev := range out[:i] {
				a.releaseTrail(prev)
			}
			return out, err
		}
		out[i] = b
	}
	slog.Debug("allocated trail pair", "width", w, "height", h, "live_buffers", a.live)
	return out, nil
}

func (a *allocator) releaseState(b *particles.Buffer) {
	if b == nil {
		return
	}
	a.free(stateBytes(b.Width, b.Height))
	b.Data = nil
}

func (a *allocator) releaseTrail(b *trail.Buffer) {
	if b == nil || b.RGBA == nil {
		return
	}
	a.free(trailBytes(b.Width(), b.Height()))
	b.RGBA = nil
}
