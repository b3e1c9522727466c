package sim

import "time"

// Clock is a monotonic millisecond time source. It allows hosts to swap the
// engine's virtual clock for wall time when driving modules outside a
// simulation (e.g. interactive runs), and tests to inject fixed times.
type Clock interface {
	// NowMS returns milliseconds since an arbitrary epoch. Non-decreasing
	// across calls.
	NowMS() uint64
}

// VirtualClock is the engine-owned simulated clock. It only moves when the
// engine dequeues an event.
type VirtualClock struct {
	nowMS uint64
}

// NowMS returns the current simulated time.
func (c *VirtualClock) NowMS() uint64 { return c.nowMS }

// advance moves the clock forward. Time never moves backward; an event
// timestamped in the past (impossible with a well-formed queue) is clamped.
func (c *VirtualClock) advance(toMS uint64) {
	if toMS > c.nowMS {
		c.nowMS = toMS
	}
}

// WallClock implements Clock using the real monotonic clock, measured from
// its creation.
type WallClock struct {
	start time.Time
}

// NewWallClock creates a wall clock starting at zero.
func NewWallClock() *WallClock {
	return &WallClock{start: time.Now()}
}

// NowMS returns milliseconds elapsed since the clock was created.
func (c *WallClock) NowMS() uint64 {
	return uint64(time.Since(c.start) / time.Millisecond)
}
