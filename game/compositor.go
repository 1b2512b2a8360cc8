package game

import (
	"github.com/pthm-cable/orbtrail/pipeline"
	"github.com/pthm-cable/orbtrail/trail"
)

// compositors runs several compositors in order and stops at the first error.
type compositors []pipeline.Compositor

func (cs compositors) Composite(tr *trail.Buffer, f pipeline.Frame) error {
	for _, c := range cs {
		if err := c.Composite(tr, f); err != nil {
			return err
		}
	}
	return nil
}

// chain returns nil for no compositors, the compositor itself for one, and a
// sequence otherwise.
func chain(cs []pipeline.Compositor) pipeline.Compositor {
	switch len(cs) {
	case 0:
		return nil
	case 1:
		return cs[0]
	}
	return compositors(cs)
}

// gatedCompositor skips frames nobody consumes.
type gatedCompositor struct {
	next pipeline.Compositor
	want func(f pipeline.Frame) bool
}

func (g *gatedCompositor) Composite(tr *trail.Buffer, f pipeline.Frame) error {
	if !g.want(f) {
		return nil
	}
	return g.next.Composite(tr, f)
}
