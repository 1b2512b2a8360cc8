package pipeline

import (
	"image"
	"log/slog"
	"math"

	"golang.org/x/image/draw"

	"github.com/pthm-cable/orbtrail/config"
)

// Size is a width and height in pixels.
type Size struct {
	Width  int
	Height int
}

// TrailSizeFor returns the trail buffer size for a viewport. The configured
// size is used unless follow_viewport is set, in which case the width tracks
// the viewport and the height keeps the 2:1 equirectangular aspect.
func TrailSizeFor(cfg config.TrailConfig, viewport Size) Size {
	if !cfg.FollowViewport || viewport.Width <= 0 {
		return Size{Width: cfg.Width, Height: cfg.Height}
	}
	scale := cfg.ViewportScale
	if scale <= 0 {
		scale = 1
	}
	w := int(math.Round(float64(viewport.Width) * scale))
	if w < 2 {
		w = 2
	}
	w += w & 1
	return Size{Width: w, Height: w / 2}
}

// RequestResize records a new viewport size. It is applied at the start of the
// next frame, never in the middle of one. Repeated requests collapse to the last.
func (c *Context) RequestResize(width, height int) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	c.pending = &Size{Width: width, Height: height}
}

// Viewport returns the viewport size the current frame renders for.
func (c *Context) Viewport() Size {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewport
}

// TrailSize returns the size of the trail buffers.
func (c *Context) TrailSize() Size {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return Size{}
	}
	cur := c.trails.Current()
	return Size{Width: cur.Width(), Height: cur.Height()}
}

// applyPendingResize runs with c.mu held and the frame idle.
func (c *Context) applyPendingResize() error {
	c.pendingMu.Lock()
	req := c.pending
	c.pending = nil
	c.pendingMu.Unlock()
	if req == nil || *req == c.viewport {
		return nil
	}

	c.viewport = *req
	want := TrailSizeFor(c.cfg.Trail, c.viewport)
	cur := c.trails.Current()
	if want.Width == cur.Width() && want.Height == cur.Height() {
		slog.Debug("viewport resized", "width", req.Width, "height", req.Height)
		return nil
	}

	// Release first so the budget can hold the replacement.
	old := image.NewRGBA(cur.Rect)
	copy(old.Pix, cur.Pix)
	for _, b := range c.trails.Slots() {
		c.alloc.releaseTrail(b)
	}

	c.trailGen++
	pair, err := c.alloc.trailPair(c.trailGen, want.Width, want.Height)
	if err != nil {
		// Both slots are gone; the context cannot render another frame.
		c.release()
		c.closed = true
		return err
	}
	draw.BiLinear.Scale(pair[0].RGBA, pair[0].Bounds(), old, old.Bounds(), draw.Src, nil)
	c.trails.Replace(pair[0], pair[1])

	slog.Info("trail resized",
		"viewport", *req,
		"width", want.Width,
		"height", want.Height,
		"live_buffers", c.alloc.live,
	)
	return nil
}
