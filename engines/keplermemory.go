package engines

import (
	"log"

	"github.com/nxsim/nxsim/gmmu"
)

const keplerMemoryRegCount = 0x80

// KeplerMemory register offsets.
const (
	keplerMemoryLineLengthIn = 0x60
	keplerMemoryLineCount    = 0x61
	keplerMemoryDestHi       = 0x62
	keplerMemoryDestLo       = 0x63
	keplerMemoryExec         = 0x6C
	keplerMemoryData         = 0x6D
)

// KeplerMemory is the inline-to-memory engine: the guest pushes data words
// through the FIFO and the engine writes them to the programmed destination.
type KeplerMemory struct {
	memory *gmmu.Manager

	regs      [keplerMemoryRegCount]uint32
	writeAddr uint64
}

// NewKeplerMemory creates a KeplerMemory engine over the channel's memory
// manager.
func NewKeplerMemory(memory *gmmu.Manager) *KeplerMemory {
	return &KeplerMemory{memory: memory}
}

// Reg reads one register.
func (e *KeplerMemory) Reg(method uint32) uint32 {
	return e.regs[method]
}

// CallMethod processes one inline-to-memory method. Exec latches the
// destination; each Data word is written and advances the cursor.
func (e *KeplerMemory) CallMethod(method, argument uint32, isLast bool) {
	if method >= keplerMemoryRegCount {
		log.Printf("error: KeplerMemory method %#x out of range", method)
		return
	}

	e.regs[method] = argument

	switch method {
	case keplerMemoryExec:
		e.writeAddr = uint64(e.regs[keplerMemoryDestHi])<<32 |
			uint64(e.regs[keplerMemoryDestLo])
	case keplerMemoryData:
		buf := [4]byte{
			byte(argument),
			byte(argument >> 8),
			byte(argument >> 16),
			byte(argument >> 24),
		}
		e.memory.WriteBlock(e.writeAddr, buf[:])
		e.writeAddr += 4
	}
}

// CallMultiMethod processes a run of arguments for the same method. Data
// runs are coalesced into one block write.
func (e *KeplerMemory) CallMultiMethod(method uint32, arguments []uint32, methodsPending uint32) {
	if method == keplerMemoryData {
		buf := make([]byte, len(arguments)*4)
		for i, w := range arguments {
			buf[i*4] = byte(w)
			buf[i*4+1] = byte(w >> 8)
			buf[i*4+2] = byte(w >> 16)
			buf[i*4+3] = byte(w >> 24)
		}
		e.memory.WriteBlock(e.writeAddr, buf)
		e.writeAddr += uint64(len(buf))
		return
	}

	for i, arg := range arguments {
		e.CallMethod(method, arg, i == len(arguments)-1)
	}
}
