package game

import (
	"log/slog"

	"github.com/pthm-cable/orbtrail/telemetry"
)

// flushTelemetry checks if the stats window should be flushed.
func (g *Game) flushTelemetry() {
	frame := g.pipe.FrameIndex() - 1
	if !g.collector.ShouldFlush(frame) {
		return
	}

	last := g.pipe.LastFrame()
	stats := telemetry.ComputeFrameStats(frame, last.Time, g.pipe.State(), g.pipe.Trail())
	stats.ColorCycle = last.ColorCycle
	stats.Pointer = last.Pointer.Valid
	g.collector.Flush(frame, &stats)
	perfStats := g.perfCollector.Stats()

	// Log stats if enabled (console output)
	if g.logStats {
		stats.LogStats()
		perfStats.LogStats()
	}

	// Write to CSV if output manager is enabled
	if g.outputManager != nil {
		if err := g.outputManager.WriteFrame(stats); err != nil {
			slog.Error("failed to write frame stats", "error", err)
		}
		if err := g.outputManager.WritePerf(perfStats, frame); err != nil {
			slog.Error("failed to write perf", "error", err)
		}
	}
}
