package nvdrv

import (
	"fmt"

	"github.com/nxsim/nxsim/gpu"
	"github.com/nxsim/nxsim/nvmap"
	"github.com/nxsim/nxsim/present"
)

// DispDevice is /dev/nvdisp_disp0. It exposes no ioctls; the compositor
// drives it through Flip, which resolves the buffer handle and hands the
// frame to the GPU.
type DispDevice struct {
	gpu       *gpu.GPU
	container *nvmap.Container
}

// NewDispDevice creates the node.
func NewDispDevice(g *gpu.GPU, container *nvmap.Container) *DispDevice {
	return &DispDevice{gpu: g, container: container}
}

// Name returns the node path.
func (d *DispDevice) Name() string {
	return "/dev/nvdisp_disp0"
}

// Ioctl1 always reports NotImplemented; the node has no commands.
func (d *DispDevice) Ioctl1(cmd Command, input, output []byte) Result {
	return ResultNotImplemented
}

// Ioctl2 always reports NotImplemented.
func (d *DispDevice) Ioctl2(cmd Command, input, inlineInput, output []byte) Result {
	return ResultNotImplemented
}

// Ioctl3 always reports NotImplemented.
func (d *DispDevice) Ioctl3(cmd Command, input, output, inlineOutput []byte) Result {
	return ResultNotImplemented
}

// Flip presents one composed buffer. The address handed to the renderer
// is the buffer's mapped GPU address when one exists, else its CPU
// backing, so software renderers work without a DMA mapping.
func (d *DispDevice) Flip(
	bufferHandle uint32,
	offset uint64,
	format uint32,
	width, height, stride uint32,
	transform present.Transform,
	crop present.Rect,
) error {
	obj, err := d.container.GetObject(bufferHandle)
	if err != nil {
		return fmt.Errorf("flip of unknown buffer %d: %w", bufferHandle, err)
	}

	addr := obj.DMAMapAddr
	if addr == 0 {
		addr = obj.CPUAddr
	}

	d.gpu.SwapBuffers(&present.FramebufferConfig{
		Address:        addr,
		Offset:         uint32(offset),
		Width:          width,
		Height:         height,
		Stride:         stride,
		PixelFormat:    present.PixelFormat(format),
		TransformFlags: transform,
		CropRect:       crop,
	})

	return nil
}
