package engines

import (
	"log"

	"github.com/nxsim/nxsim/gmmu"
)

const maxwellDMARegCount = 0x800

// MaxwellDMA register offsets.
const (
	maxwellDMALaunch       = 0xC0
	maxwellDMAOffsetInHi   = 0x100
	maxwellDMAOffsetInLo   = 0x101
	maxwellDMAOffsetOutHi  = 0x102
	maxwellDMAOffsetOutLo  = 0x103
	maxwellDMAPitchIn      = 0x104
	maxwellDMAPitchOut     = 0x105
	maxwellDMALineLengthIn = 0x106
	maxwellDMALineCount    = 0x107
)

// launchDMA argument fields.
const (
	launchDMASrcLinear = 1 << 7
	launchDMADstLinear = 1 << 8
)

// MaxwellDMA is the copy engine. Linear copies are performed immediately
// through the memory manager; tiled layouts are left to the renderer and
// only logged.
type MaxwellDMA struct {
	memory *gmmu.Manager

	regs      [maxwellDMARegCount]uint32
	copyCount int
}

// NewMaxwellDMA creates a MaxwellDMA engine over the channel's memory
// manager.
func NewMaxwellDMA(memory *gmmu.Manager) *MaxwellDMA {
	return &MaxwellDMA{memory: memory}
}

// Reg reads one register.
func (e *MaxwellDMA) Reg(method uint32) uint32 {
	return e.regs[method]
}

// CopyCount returns the number of copies performed so far.
func (e *MaxwellDMA) CopyCount() int {
	return e.copyCount
}

// CallMethod processes one copy-engine method.
func (e *MaxwellDMA) CallMethod(method, argument uint32, isLast bool) {
	if method >= maxwellDMARegCount {
		log.Printf("error: MaxwellDMA method %#x out of range", method)
		return
	}

	e.regs[method] = argument

	if method == maxwellDMALaunch {
		e.launch(argument)
	}
}

// CallMultiMethod processes a run of arguments for the same method.
func (e *MaxwellDMA) CallMultiMethod(method uint32, arguments []uint32, methodsPending uint32) {
	for i, arg := range arguments {
		e.CallMethod(method, arg, i == len(arguments)-1)
	}
}

func (e *MaxwellDMA) launch(arg uint32) {
	if arg&launchDMASrcLinear == 0 || arg&launchDMADstLinear == 0 {
		log.Printf("error: MaxwellDMA tiled copy not handled here, launch %#x", arg)
		return
	}

	src := uint64(e.regs[maxwellDMAOffsetInHi])<<32 | uint64(e.regs[maxwellDMAOffsetInLo])
	dst := uint64(e.regs[maxwellDMAOffsetOutHi])<<32 | uint64(e.regs[maxwellDMAOffsetOutLo])
	lineLength := uint64(e.regs[maxwellDMALineLengthIn])
	lineCount := uint64(e.regs[maxwellDMALineCount])
	if lineCount == 0 {
		lineCount = 1
	}

	pitchIn := uint64(e.regs[maxwellDMAPitchIn])
	pitchOut := uint64(e.regs[maxwellDMAPitchOut])
	if pitchIn == 0 {
		pitchIn = lineLength
	}
	if pitchOut == 0 {
		pitchOut = lineLength
	}

	for line := uint64(0); line < lineCount; line++ {
		e.memory.CopyBlock(dst+line*pitchOut, src+line*pitchIn, lineLength)
	}

	e.copyCount++
}
