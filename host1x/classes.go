package host1x

import (
	"log"

	"github.com/nxsim/nxsim/nvsync"
)

// Host1x control-class methods.
const (
	MethodWaitSyncpt         = 0x08
	MethodLoadSyncptPayload32 = 0x4E
	MethodWaitSyncpt32       = 0x50
)

// ControlCall is one recorded control-class method.
type ControlCall struct {
	Method uint32
	Value  uint32
}

// Control is the Host1x control class: syncpoint waits on the channel
// timeline.
type Control struct {
	syncpoints *nvsync.SyncpointManager

	payload uint32
	calls   []ControlCall
}

// NewControl creates the control class over the syncpoint table.
func NewControl(syncpoints *nvsync.SyncpointManager) *Control {
	return &Control{syncpoints: syncpoints}
}

// ProcessMethod executes one control-class method.
func (c *Control) ProcessMethod(method, value uint32) {
	c.calls = append(c.calls, ControlCall{Method: method, Value: value})

	switch method {
	case MethodWaitSyncpt:
		id := value & 0xFF
		threshold := value >> 8
		c.wait(id, threshold)
	case MethodLoadSyncptPayload32:
		c.payload = value
	case MethodWaitSyncpt32:
		c.wait(value&0xFF, c.payload)
	default:
		log.Printf("error: unknown Host1x control method %#x", method)
	}
}

// Calls returns every method the class has executed, in order.
func (c *Control) Calls() []ControlCall {
	return c.calls
}

// wait checks the syncpoint against the threshold. The video pipeline runs
// synchronously here, so an unexpired wait is a stream bug worth logging
// rather than something to block on.
func (c *Control) wait(id, threshold uint32) {
	if c.syncpoints == nil {
		return
	}

	if !c.syncpoints.IsExpired(id, threshold) {
		log.Printf("error: Host1x wait on unexpired syncpoint %d threshold %d",
			id, threshold)
	}
}

// NVDEC method registers.
const (
	NvdecMethodSetCodecID = 0x80
	NvdecMethodExecute    = 0xC0

	nvdecRegCount = 0x200
)

// NvdecProcessor is the video-decoder class front-end. Bitstream decoding
// itself is the external ffmpeg collaborator; the processor latches method
// state and counts decode kicks.
type NvdecProcessor struct {
	regs     [nvdecRegCount]uint32
	codecID  uint32
	executes int
	onFrame  func()
}

// NewNvdecProcessor creates an NvdecProcessor.
func NewNvdecProcessor() *NvdecProcessor {
	return &NvdecProcessor{}
}

// OnFrame registers a callback fired at every Execute.
func (p *NvdecProcessor) OnFrame(f func()) {
	p.onFrame = f
}

// ProcessMethod executes one NVDEC method.
func (p *NvdecProcessor) ProcessMethod(method, argument uint32) {
	if method >= nvdecRegCount {
		log.Printf("error: NVDEC method %#x out of range", method)
		return
	}

	p.regs[method] = argument

	switch method {
	case NvdecMethodSetCodecID:
		p.codecID = argument
	case NvdecMethodExecute:
		p.executes++
		if p.onFrame != nil {
			p.onFrame()
		}
	}
}

// CodecID returns the last programmed codec id.
func (p *NvdecProcessor) CodecID() uint32 {
	return p.codecID
}

// Executes returns the number of decode kicks seen.
func (p *NvdecProcessor) Executes() int {
	return p.executes
}

// Reg reads one method register.
func (p *NvdecProcessor) Reg(method uint32) uint32 {
	return p.regs[method]
}

// VIC method registers.
const (
	VicMethodExecute              = 0xA1
	VicMethodSetConfigStructOffset = 0xA5
	VicMethodSetOutputSurfaceLumaOffset = 0xA8

	vicRegCount = 0x200
)

// VicProcessor is the video-image-composition class front-end.
type VicProcessor struct {
	regs     [vicRegCount]uint32
	executes int
	onFrame  func()
}

// NewVicProcessor creates a VicProcessor.
func NewVicProcessor() *VicProcessor {
	return &VicProcessor{}
}

// OnFrame registers a callback fired at every Execute.
func (p *VicProcessor) OnFrame(f func()) {
	p.onFrame = f
}

// ProcessMethod executes one VIC method.
func (p *VicProcessor) ProcessMethod(method, argument uint32) {
	if method >= vicRegCount {
		log.Printf("error: VIC method %#x out of range", method)
		return
	}

	p.regs[method] = argument

	if method == VicMethodExecute {
		p.executes++
		if p.onFrame != nil {
			p.onFrame()
		}
	}
}

// Executes returns the number of composition kicks seen.
func (p *VicProcessor) Executes() int {
	return p.executes
}

// Reg reads one method register.
func (p *VicProcessor) Reg(method uint32) uint32 {
	return p.regs[method]
}
