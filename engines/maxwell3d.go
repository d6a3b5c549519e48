package engines

import (
	"log"

	"github.com/nxsim/nxsim/gmmu"
)

// Maxwell3D register file size, in 32-bit registers.
const maxwell3DRegCount = 0xE00

// Distilled Maxwell3D register offsets.
const (
	maxwell3DMacroUploadAddress = 0x45
	maxwell3DMacroUploadData    = 0x47
	maxwell3DMacroBind          = 0x48
	maxwell3DDrawEnd            = 0x585
	maxwell3DDrawBegin          = 0x586
	maxwell3DCBAddressHigh      = 0x8E0
	maxwell3DCBAddressLow       = 0x8E1
	maxwell3DCBPos              = 0x8E3
	maxwell3DCBData             = 0x8E4
	maxwell3DCBDataEnd          = 0x8F3
)

// Maxwell3D is the 3D rasterization front-end. It latches the register
// file, stores uploaded macros, and streams constant-buffer uploads to GPU
// memory.
type Maxwell3D struct {
	memory *gmmu.Manager

	regs       [maxwell3DRegCount]uint32
	macroMem   map[uint32][]uint32
	macroPos   uint32
	drawCount  int
	notifyDraw func()
}

// NewMaxwell3D creates a Maxwell3D engine over the channel's memory manager.
func NewMaxwell3D(memory *gmmu.Manager) *Maxwell3D {
	return &Maxwell3D{
		memory:   memory,
		macroMem: make(map[uint32][]uint32),
	}
}

// Reg reads one register.
func (e *Maxwell3D) Reg(method uint32) uint32 {
	return e.regs[method]
}

// DrawCount returns the number of draws retired so far.
func (e *Maxwell3D) DrawCount() int {
	return e.drawCount
}

// OnDraw registers a callback fired when a draw retires.
func (e *Maxwell3D) OnDraw(f func()) {
	e.notifyDraw = f
}

// CallMethod processes one 3D method.
func (e *Maxwell3D) CallMethod(method, argument uint32, isLast bool) {
	if method >= maxwell3DRegCount {
		log.Printf("error: Maxwell3D method %#x out of range", method)
		return
	}

	e.regs[method] = argument

	switch method {
	case maxwell3DMacroUploadAddress:
		e.macroPos = argument
		e.macroMem[argument] = nil
	case maxwell3DMacroUploadData:
		e.macroMem[e.macroPos] = append(e.macroMem[e.macroPos], argument)
	case maxwell3DDrawEnd:
		e.drawCount++
		if e.notifyDraw != nil {
			e.notifyDraw()
		}
	default:
		if method >= maxwell3DCBData && method < maxwell3DCBDataEnd {
			e.uploadConstBuffer([]uint32{argument})
		}
	}
}

// CallMultiMethod streams a run of arguments for one method. Constant-buffer
// uploads take this path so a vertex-constant stream lands in one block
// write.
func (e *Maxwell3D) CallMultiMethod(method uint32, arguments []uint32, methodsPending uint32) {
	if method >= maxwell3DCBData && method < maxwell3DCBDataEnd {
		e.uploadConstBuffer(arguments)
		return
	}

	for i, arg := range arguments {
		e.CallMethod(method, arg, i == len(arguments)-1)
	}
}

func (e *Maxwell3D) uploadConstBuffer(words []uint32) {
	addr := uint64(e.regs[maxwell3DCBAddressHigh])<<32 |
		uint64(e.regs[maxwell3DCBAddressLow])
	pos := uint64(e.regs[maxwell3DCBPos])

	buf := make([]byte, len(words)*4)
	for i, w := range words {
		buf[i*4] = byte(w)
		buf[i*4+1] = byte(w >> 8)
		buf[i*4+2] = byte(w >> 16)
		buf[i*4+3] = byte(w >> 24)
	}

	e.memory.WriteBlock(addr+pos, buf)
	e.regs[maxwell3DCBPos] = uint32(pos) + uint32(len(buf))
}

// Macro returns the uploaded macro code at the given upload position.
func (e *Maxwell3D) Macro(pos uint32) []uint32 {
	return e.macroMem[pos]
}
