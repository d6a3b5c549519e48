package nvdrv

import (
	"log"
	"sync"
	"time"

	"github.com/nxsim/nxsim/gpu"
	"github.com/nxsim/nxsim/nvsync"
)

// /dev/nvhost-ctrl commands.
const (
	IocCtrlSyncptRead      = 0x14
	IocCtrlSyncptIncr      = 0x15
	IocCtrlSyncptWait      = 0x16
	IocCtrlSyncptWaitEx    = 0x19
	IocCtrlSyncptReadMax   = 0x1A
	IocCtrlGetConfig       = 0x1B
	IocCtrlEventWait       = 0x1D
	IocCtrlEventRegister   = 0x1F
	IocCtrlEventUnregister = 0x20
)

// CtrlDevice is /dev/nvhost-ctrl, the host-side syncpoint and event node.
type CtrlDevice struct {
	gpu        *gpu.GPU
	syncpoints *nvsync.SyncpointManager

	mu     sync.Mutex
	events map[uint32]bool
}

// NewCtrlDevice creates the node.
func NewCtrlDevice(g *gpu.GPU, syncpoints *nvsync.SyncpointManager) *CtrlDevice {
	return &CtrlDevice{
		gpu:        g,
		syncpoints: syncpoints,
		events:     make(map[uint32]bool),
	}
}

// Name returns the node path.
func (d *CtrlDevice) Name() string {
	return "/dev/nvhost-ctrl"
}

// Ioctl1 handles the plain entry point.
func (d *CtrlDevice) Ioctl1(cmd Command, input, output []byte) Result {
	if cmd.Group() != GroupNvhostCtrl {
		return ResultNotImplemented
	}

	switch cmd.Cmd() {
	case IocCtrlSyncptRead:
		return d.syncptRead(input, output)
	case IocCtrlSyncptIncr:
		return d.syncptIncr(input)
	case IocCtrlSyncptWait:
		return d.syncptWait(input, output, false)
	case IocCtrlSyncptWaitEx:
		return d.syncptWait(input, output, true)
	case IocCtrlSyncptReadMax:
		return d.syncptReadMax(input, output)
	case IocCtrlGetConfig:
		return ResultNotSupported
	case IocCtrlEventWait:
		return d.eventWait(input, output)
	case IocCtrlEventRegister:
		return d.eventRegister(input)
	case IocCtrlEventUnregister:
		return d.eventUnregister(input)
	}

	log.Printf("error: nvhost-ctrl: unimplemented ioctl 0x%X", cmd.Cmd())
	return ResultNotImplemented
}

// Ioctl2 is not used by this node.
func (d *CtrlDevice) Ioctl2(cmd Command, input, inlineInput, output []byte) Result {
	return ResultNotImplemented
}

// Ioctl3 is not used by this node.
func (d *CtrlDevice) Ioctl3(cmd Command, input, output, inlineOutput []byte) Result {
	return ResultNotImplemented
}

// syncptRead: {u32 id, u32 value}.
func (d *CtrlDevice) syncptRead(input, output []byte) Result {
	if len(input) < 4 || len(output) < 8 {
		return ResultInvalidSize
	}

	id := get32(input, 0)
	if id >= nvsync.NumSyncpoints {
		return ResultBadParameter
	}

	put32(output, 0, id)
	put32(output, 4, d.syncpoints.RefreshMin(id))
	return ResultSuccess
}

// syncptIncr: {u32 id}.
func (d *CtrlDevice) syncptIncr(input []byte) Result {
	if len(input) < 4 {
		return ResultInvalidSize
	}

	id := get32(input, 0)
	if id >= nvsync.NumSyncpoints {
		return ResultBadParameter
	}

	d.gpu.IncrementSyncpoint(id)
	return ResultSuccess
}

// syncptWait: {u32 id, u32 thresh, s32 timeout_ms} and, for the Ex form,
// a u32 value the reached counter is written to.
func (d *CtrlDevice) syncptWait(input, output []byte, ex bool) Result {
	if len(input) < 12 {
		return ResultInvalidSize
	}
	if ex && len(output) < 16 {
		return ResultInvalidSize
	}

	id := get32(input, 0)
	thresh := get32(input, 4)
	timeoutMS := int32(get32(input, 8))

	if id >= nvsync.NumSyncpoints {
		return ResultBadParameter
	}

	writeValue := func() {
		if ex {
			copy(output, input[:12])
			put32(output, 12, d.syncpoints.RefreshMin(id))
		}
	}

	if d.syncpoints.IsExpired(id, thresh) {
		writeValue()
		return ResultSuccess
	}
	if timeoutMS == 0 {
		return ResultTimeout
	}

	timeout := time.Duration(timeoutMS) * time.Millisecond
	if timeoutMS < 0 {
		// Negative timeouts wait indefinitely.
		timeout = 24 * time.Hour
	}

	if !d.gpu.WaitFenceTimeout(id, thresh, timeout) {
		return ResultTimeout
	}

	writeValue()
	return ResultSuccess
}

// syncptReadMax: {u32 id, u32 value}.
func (d *CtrlDevice) syncptReadMax(input, output []byte) Result {
	if len(input) < 4 || len(output) < 8 {
		return ResultInvalidSize
	}

	id := get32(input, 0)
	if id >= nvsync.NumSyncpoints {
		return ResultBadParameter
	}

	put32(output, 0, id)
	put32(output, 4, d.syncpoints.GetSyncpointMax(id))
	return ResultSuccess
}

// eventWait: {u32 id, u32 thresh, s32 timeout_ms, u32 value}. The wait is
// serviced synchronously against the GPU-side counter.
func (d *CtrlDevice) eventWait(input, output []byte) Result {
	if len(input) < 12 || len(output) < 16 {
		return ResultInvalidSize
	}

	id := get32(input, 0)
	thresh := get32(input, 4)
	timeoutMS := int32(get32(input, 8))

	if id >= nvsync.NumSyncpoints {
		return ResultBadParameter
	}

	copy(output, input[:12])

	if d.syncpoints.IsExpired(id, thresh) {
		put32(output, 12, d.syncpoints.RefreshMin(id))
		return ResultSuccess
	}
	if timeoutMS == 0 {
		return ResultTimeout
	}

	if !d.gpu.WaitFenceTimeout(id, thresh,
		time.Duration(timeoutMS)*time.Millisecond) {
		return ResultTimeout
	}

	put32(output, 12, d.syncpoints.RefreshMin(id))
	return ResultSuccess
}

// eventRegister: {u32 user_event_id}.
func (d *CtrlDevice) eventRegister(input []byte) Result {
	if len(input) < 4 {
		return ResultInvalidSize
	}

	id := get32(input, 0)

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.events[id] {
		return ResultBusy
	}
	d.events[id] = true
	return ResultSuccess
}

// eventUnregister: {u32 user_event_id}.
func (d *CtrlDevice) eventUnregister(input []byte) Result {
	if len(input) < 4 {
		return ResultInvalidSize
	}

	id := get32(input, 0)

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.events[id] {
		return ResultBadParameter
	}
	delete(d.events, id)
	return ResultSuccess
}
