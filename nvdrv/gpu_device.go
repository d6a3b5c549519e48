package nvdrv

import (
	"log"
	"sync"

	"github.com/nxsim/nxsim/gpfifo"
	"github.com/nxsim/nxsim/gpu"
	"github.com/nxsim/nxsim/nvsync"
)

// /dev/nvhost-gpu commands.
const (
	IocGpuSetNvmapFD       = 0x01
	IocGpuSetTimeout       = 0x03
	IocGpuSubmitGPFIFO     = 0x08
	IocGpuAllocObjCtx      = 0x09
	IocGpuZCullBind        = 0x0B
	IocGpuSetErrorNotifier = 0x0C
	IocGpuSetPriority      = 0x0D
	IocGpuAllocGPFIFOEx2   = 0x1A
	IocGpuSubmitGPFIFOKick = 0x1B
	IocGpuSetTimeslice     = 0x1D
)

// Parameter sizes, in bytes.
const (
	GpuSubmitGPFIFOSize   = 24
	GpuAllocObjCtxSize    = 16
	GpuAllocGPFIFOEx2Size = 32
)

// SubmitGPFIFO flags.
const (
	submitFlagFenceWait      = 1 << 0
	submitFlagFenceIncrement = 1 << 1
	submitFlagIncrementValue = 1 << 8
)

// GpuChannelDevice is /dev/nvhost-gpu, one submission channel. Each
// channel owns a syncpoint that fences its submissions.
type GpuChannelDevice struct {
	gpu        *gpu.GPU
	syncpoints *nvsync.SyncpointManager

	mu             sync.Mutex
	channelSyncpt  uint32
	nvmapFD        uint32
	timeout        uint32
	channelTimeout uint32
}

// NewGpuChannelDevice creates the channel node. The channel syncpoint is
// allocated lazily on the first AllocGPFIFOEx2 or submission.
func NewGpuChannelDevice(g *gpu.GPU, syncpoints *nvsync.SyncpointManager) *GpuChannelDevice {
	return &GpuChannelDevice{
		gpu:           g,
		syncpoints:    syncpoints,
		channelSyncpt: nvsync.NoSyncpoint,
	}
}

// Name returns the node path.
func (d *GpuChannelDevice) Name() string {
	return "/dev/nvhost-gpu"
}

// ChannelSyncpoint returns the channel's fence syncpoint, allocating it on
// first use.
func (d *GpuChannelDevice) ChannelSyncpoint() (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.channelSyncptLocked()
}

func (d *GpuChannelDevice) channelSyncptLocked() (uint32, error) {
	if d.channelSyncpt != nvsync.NoSyncpoint {
		return d.channelSyncpt, nil
	}

	id, err := d.syncpoints.Allocate()
	if err != nil {
		return nvsync.NoSyncpoint, err
	}
	d.channelSyncpt = id
	return id, nil
}

// Ioctl1 handles the plain entry point.
func (d *GpuChannelDevice) Ioctl1(cmd Command, input, output []byte) Result {
	if cmd.Group() != GroupNvhostGPU {
		return ResultNotImplemented
	}

	switch cmd.Cmd() {
	case IocGpuSetNvmapFD:
		return d.setNvmapFD(input)
	case IocGpuSetTimeout:
		return d.setTimeout(input)
	case IocGpuSubmitGPFIFO:
		return d.submitGPFIFO(input, nil, output)
	case IocGpuAllocObjCtx:
		return d.allocObjCtx(input, output)
	case IocGpuZCullBind, IocGpuSetErrorNotifier, IocGpuSetPriority,
		IocGpuSetTimeslice:
		return ResultSuccess
	case IocGpuAllocGPFIFOEx2:
		return d.allocGPFIFOEx2(input, output)
	}

	log.Printf("error: nvhost-gpu: unimplemented ioctl 0x%X", cmd.Cmd())
	return ResultNotImplemented
}

// Ioctl2 handles the kickoff submission, whose entries arrive in the
// inline input buffer instead of guest memory.
func (d *GpuChannelDevice) Ioctl2(cmd Command, input, inlineInput, output []byte) Result {
	if cmd.Group() != GroupNvhostGPU {
		return ResultNotImplemented
	}

	if cmd.Cmd() == IocGpuSubmitGPFIFOKick {
		return d.submitGPFIFO(input, inlineInput, output)
	}

	log.Printf("error: nvhost-gpu: unimplemented ioctl2 0x%X", cmd.Cmd())
	return ResultNotImplemented
}

// Ioctl3 is not used by this node.
func (d *GpuChannelDevice) Ioctl3(cmd Command, input, output, inlineOutput []byte) Result {
	return ResultNotImplemented
}

func (d *GpuChannelDevice) setNvmapFD(input []byte) Result {
	if len(input) < 4 {
		return ResultInvalidSize
	}

	d.mu.Lock()
	d.nvmapFD = get32(input, 0)
	d.mu.Unlock()
	return ResultSuccess
}

func (d *GpuChannelDevice) setTimeout(input []byte) Result {
	if len(input) < 4 {
		return ResultInvalidSize
	}

	d.mu.Lock()
	d.timeout = get32(input, 0)
	d.mu.Unlock()
	return ResultSuccess
}

// submitGPFIFO: {u64 address, u32 num_entries, u32 flags, fence{u32 id,
// u32 value}} followed by num_entries u64 command-list words, either
// inline (kickoff) or at the address in guest memory. The fence field is
// in/out: wait flags consume it, increment flags return the new channel
// fence in it.
func (d *GpuChannelDevice) submitGPFIFO(input, inlineInput, output []byte) Result {
	if len(input) < GpuSubmitGPFIFOSize || len(output) < GpuSubmitGPFIFOSize {
		return ResultInvalidSize
	}

	address := get64(input, 0)
	numEntries := get32(input, 8)
	flags := get32(input, 12)
	fenceID := get32(input, 16)
	fenceValue := get32(input, 20)

	if flags&submitFlagFenceWait != 0 {
		if !d.syncpoints.IsExpired(fenceID, fenceValue) {
			d.gpu.WaitFence(fenceID, fenceValue)
		}
	}

	list := make(gpfifo.CommandList, 0, numEntries)
	switch {
	case inlineInput != nil:
		if uint32(len(inlineInput)) < numEntries*8 {
			return ResultInvalidSize
		}
		for i := uint32(0); i < numEntries; i++ {
			list = append(list,
				gpfifo.CommandListHeader(get64(inlineInput, int(i)*8)))
		}
	default:
		buf := make([]byte, numEntries*8)
		d.gpu.Memory().ReadBlockUnsafe(address, buf)
		for i := uint32(0); i < numEntries; i++ {
			list = append(list, gpfifo.CommandListHeader(get64(buf, int(i)*8)))
		}
	}

	d.gpu.PushGPUEntries(list)

	copy(output, input[:GpuSubmitGPFIFOSize])

	d.mu.Lock()
	syncpt, err := d.channelSyncptLocked()
	d.mu.Unlock()
	if err != nil {
		return ResultResourceError
	}

	if flags&submitFlagFenceIncrement != 0 {
		d.gpu.IncrementSyncpoint(syncpt)
	}
	outValue := d.syncpoints.GetSyncpointMax(syncpt)

	put32(output, 16, syncpt)
	put32(output, 20, outValue)
	return ResultSuccess
}

// allocObjCtx: {u32 class_num, u32 flags, u64 obj_id}.
func (d *GpuChannelDevice) allocObjCtx(input, output []byte) Result {
	if len(input) < 8 || len(output) < GpuAllocObjCtxSize {
		return ResultInvalidSize
	}

	copy(output, input[:8])
	put64(output, 8, 0)
	return ResultSuccess
}

// allocGPFIFOEx2: {u32 num_entries, u32 num_jobs, u32 flags, fence{u32,
// u32}, u32 reserved[3]}. Returns the channel fence.
func (d *GpuChannelDevice) allocGPFIFOEx2(input, output []byte) Result {
	if len(input) < 12 || len(output) < GpuAllocGPFIFOEx2Size {
		return ResultInvalidSize
	}

	d.mu.Lock()
	syncpt, err := d.channelSyncptLocked()
	d.mu.Unlock()
	if err != nil {
		return ResultResourceError
	}

	copy(output, input[:min(len(input), GpuAllocGPFIFOEx2Size)])
	put32(output, 12, syncpt)
	put32(output, 16, d.syncpoints.GetSyncpointMax(syncpt))
	return ResultSuccess
}
