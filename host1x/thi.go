package host1x

// THI (Tegra Host Interface) register offsets, in words. Every Host1x
// client engine fronts its method port with this block.
const (
	ThiIncSyncpt      = 0x00
	ThiIncSyncptError = 0x02
	ThiCtxSwitchIncSyncpt = 0x03
	ThiCtxSwitch      = 0x08
	ThiCtxSyncptEOF   = 0x0A
	ThiMethod0        = 0x10
	ThiMethod1        = 0x11
	ThiIntStatus      = 0x1E
	ThiIntMask        = 0x1F

	thiRegCount = 0x20
)

// A ClassProcessor consumes the methods a THI channel forwards through
// SetMethod1.
type ClassProcessor interface {
	ProcessMethod(method, argument uint32)
}

// A ThiChannel is the THI register block in front of one client engine.
type ThiChannel struct {
	class     ClassID
	regs      [thiRegCount]uint32
	processor ClassProcessor
}

// NewThiChannel creates a ThiChannel for a class.
func NewThiChannel(class ClassID, processor ClassProcessor) *ThiChannel {
	return &ThiChannel{class: class, processor: processor}
}

// Class returns the client class behind the channel.
func (c *ThiChannel) Class() ClassID {
	return c.class
}

// Processor returns the class processor.
func (c *ThiChannel) Processor() ClassProcessor {
	return c.processor
}

// Reg reads one THI register.
func (c *ThiChannel) Reg(offset uint32) uint32 {
	if offset >= thiRegCount {
		return 0
	}
	return c.regs[offset]
}

// StateWrite latches one THI register. Writes past the block are dropped;
// the hardware ignores them too.
func (c *ThiChannel) StateWrite(offset, value uint32) {
	if offset >= thiRegCount {
		return
	}
	c.regs[offset] = value
}
