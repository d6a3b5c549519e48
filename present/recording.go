package present

import "sync"

// NullRasterizer is a Rasterizer that does nothing. The headless CLI and
// most tests use it.
type NullRasterizer struct{}

// FlushRegion does nothing.
func (NullRasterizer) FlushRegion(addr, size uint64) {}

// InvalidateRegion does nothing.
func (NullRasterizer) InvalidateRegion(addr, size uint64) {}

// FlushAndInvalidateRegion does nothing.
func (NullRasterizer) FlushAndInvalidateRegion(addr, size uint64) {}

// FlushCommands does nothing.
func (NullRasterizer) FlushCommands() {}

// A RecordingRenderer remembers every frame it is asked to present. Tests
// and the replay CLI inspect it instead of a real backend.
type RecordingRenderer struct {
	mu         sync.Mutex
	rasterizer Rasterizer
	frames     []FramebufferConfig
	repeats    int
}

// NewRecordingRenderer creates a RecordingRenderer backed by a
// NullRasterizer.
func NewRecordingRenderer() *RecordingRenderer {
	return &RecordingRenderer{rasterizer: NullRasterizer{}}
}

// SwapBuffers records the presented frame.
func (r *RecordingRenderer) SwapBuffers(fb *FramebufferConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if fb == nil {
		r.repeats++
		return
	}

	r.frames = append(r.frames, *fb)
}

// Rasterizer returns the backend rasterizer.
func (r *RecordingRenderer) Rasterizer() Rasterizer {
	return r.rasterizer
}

// Frames returns a copy of all frames presented so far.
func (r *RecordingRenderer) Frames() []FramebufferConfig {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]FramebufferConfig(nil), r.frames...)
}

// Repeats returns how many times the previous frame was re-presented.
func (r *RecordingRenderer) Repeats() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.repeats
}

// FrameCount returns the number of distinct frames presented.
func (r *RecordingRenderer) FrameCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.frames)
}
