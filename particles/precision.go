package particles

import (
	"fmt"
	"log/slog"

	"github.com/pthm-cable/orbtrail/config"
)

// ResolvePrecision picks the storage precision once at startup.
// "auto" prefers float32 and falls back to float16 when full-precision storage is
// unavailable. Requesting float32 without support also falls back, with a warning.
func ResolvePrecision(requested string, floatSupported bool) (Precision, error) {
	switch requested {
	case config.PrecisionFloat16:
		return Float16, nil
	case config.PrecisionFloat32, config.PrecisionAuto, "":
		if floatSupported {
			return Float32, nil
		}
		if requested == config.PrecisionFloat32 {
			slog.Warn("float32 state buffers unsupported, falling back", "precision", Float16)
		} else {
			slog.Info("using reduced precision state buffers", "precision", Float16)
		}
		return Float16, nil
	default:
		return Float32, fmt.Errorf("unknown precision %q", requested)
	}
}
