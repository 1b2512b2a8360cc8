package trail

import (
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// gradient blends from young to old as a particle ages.
type gradient struct {
	young, old colorful.Color
}

func rgb(r, g, b float64) colorful.Color {
	return colorful.Color{R: r / 255, G: g / 255, B: b / 255}
}

// Palette gradients: amber to red, mint to forest, sky to deep blue.
var (
	gradientRed   = gradient{young: rgb(255, 193, 0), old: rgb(255, 0, 0)}
	gradientGreen = gradient{young: rgb(240, 255, 218), old: rgb(35, 77, 32)}
	gradientBlue  = gradient{young: rgb(113, 199, 236), old: rgb(0, 80, 115)}
)

func (g gradient) at(k float64) colorful.Color {
	return g.young.BlendRgb(g.old, k)
}

// Palette colors particles by age and, when cycling, by time.
type Palette struct {
	ageWrap float64
	period  float64
}

// NewPalette creates a palette. Ages are normalized by ageWrap; the color cycle
// repeats every period time units.
func NewPalette(ageWrap, period float64) *Palette {
	return &Palette{ageWrap: ageWrap, period: period}
}

// Color returns the splat color for a particle.
// With cycle off only the red gradient is used. With cycle on, time mod period
// is split in thirds blending red to green, green to blue, then blue to red.
func (p *Palette) Color(age, t float64, cycle bool) color.RGBA {
	life := math.Min(math.Max(age/p.ageWrap, 0), 1)
	k := 1 - life

	red := gradientRed.at(k)
	if !cycle {
		return toRGBA(red)
	}
	green := gradientGreen.at(k)
	blue := gradientBlue.at(k)

	third := p.period / 3
	phase := math.Mod(t, p.period)
	if phase < 0 {
		phase += p.period
	}

	var c colorful.Color
	switch {
	case phase < third:
		c = red.BlendRgb(green, phase/third)
	case phase < 2*third:
		c = green.BlendRgb(blue, (phase-third)/third)
	default:
		c = blue.BlendRgb(red, (phase-2*third)/third)
	}
	return toRGBA(c)
}

func toRGBA(c colorful.Color) color.RGBA {
	r, g, b := c.Clamped().RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}
