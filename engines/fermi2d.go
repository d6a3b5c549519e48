package engines

import "log"

const fermi2DRegCount = 0x258

// Distilled Fermi2D register offsets.
const (
	fermi2DDstFormat  = 0x80
	fermi2DSrcFormat  = 0x8C
	fermi2DBlitDstX   = 0x22C
	fermi2DBlitDstY   = 0x22D
	fermi2DBlitDstW   = 0x22E
	fermi2DBlitDstH   = 0x22F
	fermi2DBlitSrcYHi = 0x23A
	fermi2DBlitSrcYLo = 0x23B
)

// Fermi2D is the 2D blit engine. The actual pixel transfer is the
// renderer's job; the engine latches the blit state and notifies when a
// blit is kicked off.
type Fermi2D struct {
	regs       [fermi2DRegCount]uint32
	blitCount  int
	notifyBlit func()
}

// NewFermi2D creates a Fermi2D engine.
func NewFermi2D() *Fermi2D {
	return &Fermi2D{}
}

// Reg reads one register.
func (e *Fermi2D) Reg(method uint32) uint32 {
	return e.regs[method]
}

// BlitCount returns the number of blits kicked so far.
func (e *Fermi2D) BlitCount() int {
	return e.blitCount
}

// OnBlit registers a callback fired when a blit is kicked.
func (e *Fermi2D) OnBlit(f func()) {
	e.notifyBlit = f
}

// CallMethod processes one 2D method. Writing the low word of the blit
// source Y coordinate fires the blit.
func (e *Fermi2D) CallMethod(method, argument uint32, isLast bool) {
	if method >= fermi2DRegCount {
		log.Printf("error: Fermi2D method %#x out of range", method)
		return
	}

	e.regs[method] = argument

	if method == fermi2DBlitSrcYLo {
		e.blitCount++
		if e.notifyBlit != nil {
			e.notifyBlit()
		}
	}
}

// CallMultiMethod processes a run of arguments for the same method.
func (e *Fermi2D) CallMultiMethod(method uint32, arguments []uint32, methodsPending uint32) {
	for i, arg := range arguments {
		e.CallMethod(method, arg, i == len(arguments)-1)
	}
}
