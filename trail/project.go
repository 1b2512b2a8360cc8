package trail

import (
	"image/color"
	"math"

	"github.com/pthm-cable/orbtrail/config"
	"github.com/pthm-cable/orbtrail/particles"
)

// Projector splats particles into a trail buffer.
type Projector struct {
	palette   *Palette
	pointSize float64
	additive  bool
}

// NewProjector creates a projector from trail settings.
func NewProjector(cfg config.TrailConfig, palette *Palette) *Projector {
	return &Projector{
		palette:   palette,
		pointSize: math.Max(cfg.PointSize, 1),
		additive:  cfg.Blend != config.BlendReplace,
	}
}

// Project splats every particle of state into dst and returns the splat count.
// Only touched pixels change. Particles at the origin or with non-finite
// positions are skipped.
func (p *Projector) Project(state *particles.Buffer, dst *Buffer, t float64, cycle bool) int {
	w, h := dst.Width(), dst.Height()
	splats := 0
	for i := 0; i < state.Len(); i++ {
		pos, age := state.At(i)
		x, y, ok := ToPixel(pos, w, h)
		if !ok {
			continue
		}
		p.splat(dst, x, y, p.palette.Color(age, t, cycle))
		splats++
	}
	return splats
}

// splat draws a disc of diameter pointSize centered at (cx, cy). The pixel
// containing the center is always covered. x wraps, y is clipped.
func (p *Projector) splat(dst *Buffer, cx, cy float64, c color.RGBA) {
	w, h := dst.Width(), dst.Height()
	px, py := int(cx), int(cy)
	p.blend(dst, px, py, c)

	r := p.pointSize / 2
	if r <= 0.5 {
		return
	}
	reach := int(math.Ceil(r))
	for dy := -reach; dy <= reach; dy++ {
		y := py + dy
		if y < 0 || y >= h {
			continue
		}
		for dx := -reach; dx <= reach; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			// Distance from splat center to the pixel center
			ox := float64(px+dx) + 0.5 - cx
			oy := float64(y) + 0.5 - cy
			if ox*ox+oy*oy > r*r {
				continue
			}
			x := ((px+dx)%w + w) % w
			p.blend(dst, x, y, c)
		}
	}
}

func (p *Projector) blend(dst *Buffer, x, y int, c color.RGBA) {
	i := dst.PixOffset(x, y)
	px := dst.Pix[i : i+4 : i+4]
	if !p.additive {
		px[0], px[1], px[2], px[3] = c.R, c.G, c.B, c.A
		return
	}
	px[0] = addSat(px[0], c.R)
	px[1] = addSat(px[1], c.G)
	px[2] = addSat(px[2], c.B)
	px[3] = 255
}

func addSat(a, b uint8) uint8 {
	if s := uint16(a) + uint16(b); s < 255 {
		return uint8(s)
	}
	return 255
}
