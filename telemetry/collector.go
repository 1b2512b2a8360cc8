package telemetry

// Collector counts interaction events within a window of frames and decides
// when a stats record is due.
type Collector struct {
	windowFrames uint64

	// Current window tracking
	windowStart uint64

	// Event counters for current window
	pointerFrames int
	toggles       int
	resizes       int
}

// NewCollector creates a collector that closes a window every windowFrames frames.
func NewCollector(windowFrames int) *Collector {
	if windowFrames < 1 {
		windowFrames = 1
	}
	return &Collector{windowFrames: uint64(windowFrames)}
}

// RecordPointer records one frame in which the pointer was over the sphere.
func (c *Collector) RecordPointer() {
	c.pointerFrames++
}

// RecordToggle records a color-cycle toggle.
func (c *Collector) RecordToggle() {
	c.toggles++
}

// RecordResize records a viewport resize request.
func (c *Collector) RecordResize() {
	c.resizes++
}

// ShouldFlush reports whether the window ends with frame.
func (c *Collector) ShouldFlush(frame uint64) bool {
	return frame+1-c.windowStart >= c.windowFrames
}

// Flush copies the window counters into stats and starts a new window after frame.
func (c *Collector) Flush(frame uint64, stats *FrameStats) {
	stats.WindowStart = c.windowStart
	stats.PointerFrames = c.pointerFrames
	stats.Toggles = c.toggles
	stats.Resizes = c.resizes

	c.windowStart = frame + 1
	c.pointerFrames = 0
	c.toggles = 0
	c.resizes = 0
}
