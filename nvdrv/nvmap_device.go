package nvdrv

import (
	"log"

	"github.com/nxsim/nxsim/nvmap"
)

// /dev/nvmap commands.
const (
	IocNvmapCreate = 0x1
	IocNvmapFromID = 0x3
	IocNvmapAlloc  = 0x4
	IocNvmapFree   = 0x5
	IocNvmapParam  = 0x9
	IocNvmapGetID  = 0xE
)

// Parameter sizes, in bytes.
const (
	NvmapCreateSize = 8
	NvmapFromIDSize = 8
	NvmapAllocSize  = 32
	NvmapFreeSize   = 24
	NvmapParamSize  = 12
	NvmapGetIDSize  = 8
)

// NvmapDevice is /dev/nvmap, the guest's buffer-object table.
type NvmapDevice struct {
	container *nvmap.Container
}

// NewNvmapDevice creates the node over the shared handle table.
func NewNvmapDevice(container *nvmap.Container) *NvmapDevice {
	return &NvmapDevice{container: container}
}

// Name returns the node path.
func (d *NvmapDevice) Name() string {
	return "/dev/nvmap"
}

// Ioctl1 handles the plain entry point.
func (d *NvmapDevice) Ioctl1(cmd Command, input, output []byte) Result {
	if cmd.Group() != GroupNvmap {
		return ResultNotImplemented
	}

	switch cmd.Cmd() {
	case IocNvmapCreate:
		return d.create(input, output)
	case IocNvmapFromID:
		return d.fromID(input, output)
	case IocNvmapAlloc:
		return d.alloc(input, output)
	case IocNvmapFree:
		return d.free(input, output)
	case IocNvmapParam:
		return d.param(input, output)
	case IocNvmapGetID:
		return d.getID(input, output)
	}

	log.Printf("error: nvmap: unimplemented ioctl 0x%X", cmd.Cmd())
	return ResultNotImplemented
}

// Ioctl2 is not used by this node.
func (d *NvmapDevice) Ioctl2(cmd Command, input, inlineInput, output []byte) Result {
	return ResultNotImplemented
}

// Ioctl3 is not used by this node.
func (d *NvmapDevice) Ioctl3(cmd Command, input, output, inlineOutput []byte) Result {
	return ResultNotImplemented
}

// create: in {u32 size}, out {u32 handle} at offset 4.
func (d *NvmapDevice) create(input, output []byte) Result {
	if len(input) < NvmapCreateSize || len(output) < NvmapCreateSize {
		return ResultInvalidSize
	}

	size := get32(input, 0)
	handle, err := d.container.Create(uint64(size))
	if err != nil {
		return resultFromNvmapError(err)
	}

	copy(output, input[:NvmapCreateSize])
	put32(output, 4, handle)
	return ResultSuccess
}

// fromID: in {u32 id}, out {u32 handle} at offset 4.
func (d *NvmapDevice) fromID(input, output []byte) Result {
	if len(input) < NvmapFromIDSize || len(output) < NvmapFromIDSize {
		return ResultInvalidSize
	}

	handle, err := d.container.FromID(get32(input, 0))
	if err != nil {
		return resultFromNvmapError(err)
	}

	copy(output, input[:NvmapFromIDSize])
	put32(output, 4, handle)
	return ResultSuccess
}

// alloc: {u32 handle, u32 heap_mask, u32 flags, u32 align, u8 kind,
// u8 pad[7], u64 addr}.
func (d *NvmapDevice) alloc(input, output []byte) Result {
	if len(input) < NvmapAllocSize {
		return ResultInvalidSize
	}

	handle := get32(input, 0)
	flags := get32(input, 8)
	align := get32(input, 12)
	kind := input[16]
	addr := get64(input, 24)

	if err := d.container.Alloc(handle, addr, align, flags, kind); err != nil {
		return resultFromNvmapError(err)
	}

	copy(output, input[:min(len(input), len(output))])
	return ResultSuccess
}

// free: in {u32 handle, u32 pad}, out {u64 addr, u32 size, u32 flags}.
// The refcount-not-zero case reports address 0 so the caller keeps the
// backing memory alive.
func (d *NvmapDevice) free(input, output []byte) Result {
	if len(input) < 8 || len(output) < 16 {
		return ResultInvalidSize
	}

	handle := get32(input, 0)
	addr, size, freed, err := d.container.Free(handle)
	if err != nil {
		return resultFromNvmapError(err)
	}

	if freed {
		put64(output, 0, addr)
	} else {
		put64(output, 0, 0)
	}
	put32(output, 8, uint32(size))
	put32(output, 12, 0)
	return ResultSuccess
}

// param: in {u32 handle, u32 param}, out result at offset 8.
func (d *NvmapDevice) param(input, output []byte) Result {
	if len(input) < 8 || len(output) < NvmapParamSize {
		return ResultInvalidSize
	}

	handle := get32(input, 0)
	kind := nvmap.ParamKind(get32(input, 4))

	v, err := d.container.Param(handle, kind)
	if err != nil {
		return resultFromNvmapError(err)
	}

	copy(output, input[:8])
	put32(output, 8, v)
	return ResultSuccess
}

// getID: in {u32 handle} at offset 4, out {u32 id} at offset 0.
func (d *NvmapDevice) getID(input, output []byte) Result {
	if len(input) < NvmapGetIDSize || len(output) < NvmapGetIDSize {
		return ResultInvalidSize
	}

	id, err := d.container.GetID(get32(input, 4))
	if err != nil {
		return resultFromNvmapError(err)
	}

	copy(output, input[:NvmapGetIDSize])
	put32(output, 0, id)
	return ResultSuccess
}
