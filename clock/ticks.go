// Package clock provides the host-time services used by the GPU and the
// compositor: the GPU tick counter derived from wall time and an event loop
// for deadline-driven work such as the single-core vsync clock.
package clock

import "time"

// The GPU tick clock runs at 614.4 MHz, which works out to 384 ticks for
// every 625 host nanoseconds.
const (
	gpuTicksNum   = 384
	gpuTicksDen   = 625
	fastTickShift = 8
)

// A TickSource converts wall-clock time to GPU ticks.
type TickSource struct {
	start    time.Time
	fastMode bool
}

// NewTickSource creates a TickSource that counts from now.
func NewTickSource() *TickSource {
	return &TickSource{start: time.Now()}
}

// NewFastTickSource creates a TickSource whose tick count is divided by 256.
// Some titles spin on the tick counter; the reduced rate keeps them from
// out-running the rest of the emulation.
func NewFastTickSource() *TickSource {
	return &TickSource{start: time.Now(), fastMode: true}
}

// GetTicks returns the number of GPU ticks elapsed since the source was
// created.
func (t *TickSource) GetTicks() uint64 {
	return t.TicksAt(time.Now())
}

// TicksAt converts an absolute host time to GPU ticks.
func (t *TickSource) TicksAt(now time.Time) uint64 {
	ns := uint64(now.Sub(t.start).Nanoseconds())

	ticks := ns / gpuTicksDen * gpuTicksNum
	ticks += ns % gpuTicksDen * gpuTicksNum / gpuTicksDen

	if t.fastMode {
		ticks >>= fastTickShift
	}

	return ticks
}

// Nanoseconds returns the host nanoseconds elapsed since the source was
// created.
func (t *TickSource) Nanoseconds() uint64 {
	return uint64(time.Since(t.start).Nanoseconds())
}
