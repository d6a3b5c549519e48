package nvdrv

import (
	"log"
	"sync"

	"github.com/nxsim/nxsim/gmmu"
	"github.com/nxsim/nxsim/nvmap"
)

// /dev/nvhost-as-gpu commands.
const (
	IocAsBindChannel  = 0x01
	IocAsAllocSpace   = 0x02
	IocAsFreeSpace    = 0x03
	IocAsUnmapBuffer  = 0x05
	IocAsMapBufferEx  = 0x06
	IocAsGetVARegions = 0x08
	IocAsAllocAsEx    = 0x09
	IocAsRemap        = 0x14
)

// Parameter sizes, in bytes. MapBufferEx and VaRegion layouts are part of
// the guest interface and unit-tested against these.
const (
	AsAllocSpaceSize   = 24
	AsFreeSpaceSize    = 16
	AsUnmapBufferSize  = 8
	AsMapBufferExSize  = 40
	AsVaRegionSize     = 24
	AsGetVARegionsSize = 16 + 2*AsVaRegionSize
	AsAllocAsExSize    = 40
	AsRemapEntrySize   = 20
)

// MapBufferEx flags.
const (
	asFlagFixedOffset = 1 << 0
	asFlagRemap       = 1 << 8
)

// bigPageBits is the shift Remap entries express offsets and sizes in.
const bigPageBits = 16

// AsDevice is /dev/nvhost-as-gpu, the per-channel GPU address-space
// bookkeeping node.
type AsDevice struct {
	memory    *gmmu.Manager
	container *nvmap.Container

	mu       sync.Mutex
	mappings map[uint64]uint64
}

// NewAsDevice creates the node over the channel's address space.
func NewAsDevice(memory *gmmu.Manager, container *nvmap.Container) *AsDevice {
	return &AsDevice{
		memory:    memory,
		container: container,
		mappings:  make(map[uint64]uint64),
	}
}

// Name returns the node path.
func (d *AsDevice) Name() string {
	return "/dev/nvhost-as-gpu"
}

// Ioctl1 handles the plain entry point.
func (d *AsDevice) Ioctl1(cmd Command, input, output []byte) Result {
	if cmd.Group() != GroupNvhostAsGPU {
		return ResultNotImplemented
	}

	switch cmd.Cmd() {
	case IocAsBindChannel:
		return ResultSuccess
	case IocAsAllocSpace:
		return d.allocSpace(input, output)
	case IocAsFreeSpace:
		return d.freeSpace(input)
	case IocAsUnmapBuffer:
		return d.unmapBuffer(input)
	case IocAsMapBufferEx:
		return d.mapBufferEx(input, output)
	case IocAsGetVARegions:
		return d.getVARegions(input, output)
	case IocAsAllocAsEx:
		return d.allocAsEx(input)
	case IocAsRemap:
		return d.remap(input)
	}

	log.Printf("error: nvhost-as-gpu: unimplemented ioctl 0x%X", cmd.Cmd())
	return ResultNotImplemented
}

// Ioctl2 is not used by this node.
func (d *AsDevice) Ioctl2(cmd Command, input, inlineInput, output []byte) Result {
	return ResultNotImplemented
}

// Ioctl3 is not used by this node.
func (d *AsDevice) Ioctl3(cmd Command, input, output, inlineOutput []byte) Result {
	return ResultNotImplemented
}

// allocSpace: {u32 pages, u32 page_size, u32 flags, u32 pad, u64 offset}.
// The offset field is in/out: fixed-offset requests pass it in, others
// receive the chosen address.
func (d *AsDevice) allocSpace(input, output []byte) Result {
	if len(input) < AsAllocSpaceSize || len(output) < AsAllocSpaceSize {
		return ResultInvalidSize
	}

	pages := get32(input, 0)
	pageSize := get32(input, 4)
	flags := get32(input, 8)
	size := uint64(pages) * uint64(pageSize)

	var offset uint64
	if flags&asFlagFixedOffset != 0 {
		offset = get64(input, 16)
		if err := d.memory.AllocAtFixed(offset, size); err != nil {
			return ResultInsufficientMemory
		}
	} else {
		var err error
		offset, err = d.memory.Allocate(size, uint64(pageSize))
		if err != nil {
			return ResultInsufficientMemory
		}
	}

	copy(output, input[:AsAllocSpaceSize])
	put64(output, 16, offset)
	return ResultSuccess
}

// freeSpace: {u64 offset, u32 pages, u32 page_size}.
func (d *AsDevice) freeSpace(input []byte) Result {
	if len(input) < AsFreeSpaceSize {
		return ResultInvalidSize
	}

	offset := get64(input, 0)
	size := uint64(get32(input, 8)) * uint64(get32(input, 12))

	if err := d.memory.Free(offset, size); err != nil {
		return ResultInvalidAddress
	}
	return ResultSuccess
}

// unmapBuffer: {u64 offset}.
func (d *AsDevice) unmapBuffer(input []byte) Result {
	if len(input) < AsUnmapBufferSize {
		return ResultInvalidSize
	}

	offset := get64(input, 0)

	d.mu.Lock()
	size, ok := d.mappings[offset]
	delete(d.mappings, offset)
	d.mu.Unlock()

	if !ok {
		log.Printf("error: nvhost-as-gpu: unmap of unknown offset 0x%X", offset)
		return ResultInvalidAddress
	}

	if err := d.memory.Unmap(offset, size); err != nil {
		return ResultInvalidAddress
	}
	return ResultSuccess
}

// mapBufferEx: {u32 flags, u32 kind, u32 nvmap_handle, u32 page_size,
// u64 buffer_offset, u64 mapping_size, u64 offset}. The offset field is
// in/out.
func (d *AsDevice) mapBufferEx(input, output []byte) Result {
	if len(input) < AsMapBufferExSize || len(output) < AsMapBufferExSize {
		return ResultInvalidSize
	}

	flags := get32(input, 0)
	handle := get32(input, 8)
	bufferOffset := get64(input, 16)
	mappingSize := get64(input, 24)
	offset := get64(input, 32)

	obj, err := d.container.GetObject(handle)
	if err != nil {
		return resultFromNvmapError(err)
	}
	if mappingSize == 0 {
		mappingSize = obj.Size
	}

	cpuAddr := obj.CPUAddr + bufferOffset

	if flags&asFlagFixedOffset != 0 {
		if mapped := d.memory.Map(cpuAddr, offset, mappingSize); mapped == 0 {
			return ResultInvalidAddress
		}
	} else {
		offset, err = d.memory.MapAllocate(cpuAddr, mappingSize, gmmu.PageSize)
		if err != nil {
			return ResultInsufficientMemory
		}
	}

	obj.DMAMapAddr = offset

	d.mu.Lock()
	d.mappings[offset] = mappingSize
	d.mu.Unlock()

	copy(output, input[:AsMapBufferExSize])
	put64(output, 32, offset)
	return ResultSuccess
}

// getVARegions: {u64 buf_addr, u32 buf_size, u32 pad} followed by two
// regions {u64 offset, u32 page_size, u32 pad, u64 pages}.
func (d *AsDevice) getVARegions(input, output []byte) Result {
	if len(input) < 16 || len(output) < AsGetVARegionsSize {
		return ResultInvalidSize
	}

	copy(output, input[:16])
	put32(output, 8, 2*AsVaRegionSize)

	// Small-page region.
	put64(output, 16, gmmu.LowRegionStart)
	put32(output, 24, uint32(gmmu.PageSize))
	put64(output, 32, (gmmu.MainRegionStart-gmmu.LowRegionStart)/gmmu.PageSize)

	// Big-page region.
	put64(output, 16+AsVaRegionSize, gmmu.MainRegionStart)
	put32(output, 24+AsVaRegionSize, 1<<bigPageBits)
	put64(output, 32+AsVaRegionSize,
		(gmmu.AddressSpaceSize-gmmu.MainRegionStart)>>bigPageBits)

	return ResultSuccess
}

// allocAsEx: {u32 flags, s32 as_fd, u32 big_page_size, u32 pad,
// u64 va_range_start, u64 va_range_end, u64 va_range_split}. The address
// space is created with the channel, so the call only validates.
func (d *AsDevice) allocAsEx(input []byte) Result {
	if len(input) < AsAllocAsExSize {
		return ResultInvalidSize
	}

	bigPageSize := get32(input, 8)
	if bigPageSize != 0 && bigPageSize != 1<<bigPageBits {
		log.Printf("error: nvhost-as-gpu: unsupported big page size 0x%X",
			bigPageSize)
		return ResultBadValue
	}
	return ResultSuccess
}

// remap: an array of {u16 flags, u16 kind, u32 nvmap_handle,
// u32 map_offset, u32 offset, u32 pages}, offsets and sizes in 64 KiB
// big pages.
func (d *AsDevice) remap(input []byte) Result {
	if len(input)%AsRemapEntrySize != 0 {
		return ResultInvalidSize
	}

	for off := 0; off < len(input); off += AsRemapEntrySize {
		handle := get32(input, off+4)
		mapOffset := uint64(get32(input, off+8)) << bigPageBits
		offset := uint64(get32(input, off+12)) << bigPageBits
		size := uint64(get32(input, off+16)) << bigPageBits

		obj, err := d.container.GetObject(handle)
		if err != nil {
			return resultFromNvmapError(err)
		}

		if mapped := d.memory.Map(obj.CPUAddr+mapOffset, offset, size); mapped == 0 {
			return ResultInvalidAddress
		}

		d.mu.Lock()
		d.mappings[offset] = size
		d.mu.Unlock()
	}

	return ResultSuccess
}
