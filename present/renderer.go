// Package present defines the interface between the GPU core and the
// renderer backend. The core never touches a graphics API: it hands finished
// frames to a Renderer and keeps caches coherent through a Rasterizer.
package present

// PixelFormat enumerates the guest framebuffer formats the display engine
// can scan out.
type PixelFormat uint32

// Framebuffer pixel formats, as programmed through the display service.
const (
	PixelFormatABGR8  PixelFormat = 1
	PixelFormatRGB565 PixelFormat = 4
	PixelFormatBGRA8  PixelFormat = 5
	PixelFormatRGBA4  PixelFormat = 7
)

// Transform describes how a buffer is rotated or flipped before scan-out.
// The values follow the Android native-window transform flags the guest
// surface compositor uses.
type Transform uint32

// Transform flags. They can be combined.
const (
	TransformNone     Transform = 0
	TransformFlipH    Transform = 0x01
	TransformFlipV    Transform = 0x02
	TransformRot90    Transform = 0x04
	TransformRot180             = TransformFlipH | TransformFlipV
	TransformRot270             = TransformRot90 | TransformRot180
)

// Rect is a crop rectangle in buffer coordinates.
type Rect struct {
	Left   int32
	Top    int32
	Right  int32
	Bottom int32
}

// FramebufferConfig describes one frame handed to the renderer.
type FramebufferConfig struct {
	Address        uint64
	Offset         uint32
	Width          uint32
	Height         uint32
	Stride         uint32
	PixelFormat    PixelFormat
	TransformFlags Transform
	CropRect       Rect
}

// A Rasterizer keeps host-side caches coherent with guest memory. The GPU
// core calls it around block reads and writes and before presenting.
type Rasterizer interface {
	// FlushRegion writes back any cached data overlapping the region.
	FlushRegion(addr, size uint64)

	// InvalidateRegion drops any cached data overlapping the region.
	InvalidateRegion(addr, size uint64)

	// FlushAndInvalidateRegion combines the two operations.
	FlushAndInvalidateRegion(addr, size uint64)

	// FlushCommands submits any batched host API work.
	FlushCommands()
}

// A Renderer presents finished frames to the screen.
type Renderer interface {
	// SwapBuffers presents a frame. A nil framebuffer repeats the previous
	// one.
	SwapBuffers(fb *FramebufferConfig)

	// Rasterizer returns the cache-coherency interface of the backend.
	Rasterizer() Rasterizer
}
