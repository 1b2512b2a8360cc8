package trail

import "fmt"

// Fade copies src into dst with every channel reduced by delta, clamped at zero.
// Brightness never increases, and a channel of value v reaches zero after
// ceil(v/delta) consecutive fades.
func Fade(src, dst *Buffer, delta uint8, workers int) error {
	if src == dst {
		return fmt.Errorf("fade %s: %w", dst.Name, ErrAliased)
	}
	if !sameSize(src, dst) {
		return fmt.Errorf("fade %s -> %s: size mismatch", src.Name, dst.Name)
	}

	rowBytes := src.Rect.Dx() * 4
	parallelRows(src.Rect.Dy(), workers, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			s := src.Pix[y*src.Stride : y*src.Stride+rowBytes]
			d := dst.Pix[y*dst.Stride : y*dst.Stride+rowBytes]
			for i, v := range s {
				if v > delta {
					d[i] = v - delta
				} else {
					d[i] = 0
				}
			}
		}
	})
	return nil
}

// FramesToClear returns how many fades bring a channel of value v to zero.
func FramesToClear(v, delta uint8) int {
	if delta == 0 {
		return -1
	}
	return (int(v) + int(delta) - 1) / int(delta)
}
