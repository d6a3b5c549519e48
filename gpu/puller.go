package gpu

import (
	"log"

	"github.com/nxsim/nxsim/engines"
)

// Puller methods, the methods below NonPullerMethods that the FIFO handles
// itself instead of forwarding to an engine.
const (
	methodBindObject        = 0x00
	methodNop               = 0x02
	methodSemaphoreAddrHigh = 0x04
	methodSemaphoreAddrLow  = 0x05
	methodSemaphoreSequence = 0x06
	methodSemaphoreTrigger  = 0x07
	methodNotifyIntr        = 0x08
	methodWrcacheFlush      = 0x09
	methodUnk28             = 0x0A
	methodUnkCacheFlush     = 0x0D
	methodRefCnt            = 0x14
	methodSemaphoreAcquire  = 0x1A
	methodSemaphoreRelease  = 0x1B
	methodFenceValue        = 0x1C
	methodFenceAction       = 0x1D
	methodWaitForInterrupt  = 0x1E
	methodUnk7C             = 0x1F
	methodYield             = 0x20

	// NonPullerMethods is the first method offset routed to engines.
	NonPullerMethods = 0x40
)

// Semaphore trigger operations, encoded in the low nibble of the
// SemaphoreTrigger argument.
const (
	semaphoreOpAcquireEqual  = 0x1
	semaphoreOpWriteLong     = 0x2
	semaphoreOpAcquireGequal = 0x4
	semaphoreOpAcquireMask   = 0x8
)

// Fence actions, encoded in the low nibble of the FenceAction argument.
// The syncpoint ID sits in bits 8..15.
const (
	FenceOpAcquire   = 0
	FenceOpIncrement = 1
)

// BuildFenceAction packs a FenceAction argument word.
func BuildFenceAction(op, syncpointID uint32) uint32 {
	return op&0xF | syncpointID<<8
}

type pullerRegs struct {
	semaphoreAddrHigh uint32
	semaphoreAddrLow  uint32
	semaphoreSequence uint32
	acquireSource     bool
	acquireActive     bool
	acquireMode       bool
	acquireValue      uint32
	fenceValue        uint32
	refCnt            uint32
}

func (r *pullerRegs) semaphoreAddress() uint64 {
	return uint64(r.semaphoreAddrHigh)<<32 | uint64(r.semaphoreAddrLow)
}

func (g *GPU) processBufferMethod(method, subChannel, argument uint32) {
	switch method {
	case methodBindObject:
		g.bindEngine(subChannel, argument)
	case methodNop, methodNotifyIntr, methodWrcacheFlush, methodUnk28,
		methodUnkCacheFlush, methodUnk7C, methodYield:
	case methodSemaphoreAddrHigh:
		g.regs.semaphoreAddrHigh = argument
	case methodSemaphoreAddrLow:
		g.regs.semaphoreAddrLow = argument
	case methodSemaphoreSequence:
		g.regs.semaphoreSequence = argument
	case methodSemaphoreTrigger:
		g.processSemaphoreTrigger(argument & 0xF)
	case methodRefCnt:
		g.regs.refCnt = argument
	case methodSemaphoreAcquire:
		g.processSemaphoreAcquire(argument)
	case methodSemaphoreRelease:
		g.processSemaphoreRelease(argument)
	case methodFenceValue:
		g.regs.fenceValue = argument
	case methodFenceAction:
		g.processFenceAction(argument)
	case methodWaitForInterrupt:
		// Waits are resolved by the fence protocol instead.
	default:
		log.Printf("error: unhandled puller method 0x%02X", method)
	}
}

func (g *GPU) bindEngine(subChannel, classID uint32) {
	if subChannel >= NumSubChannels {
		log.Panicf("subchannel %d out of range", subChannel)
	}

	g.bound[subChannel] = engineIDFromClass(classID)
}

func engineIDFromClass(classID uint32) engines.EngineID {
	id := engines.EngineID(classID)

	switch id {
	case engines.EngineFermi2D, engines.EngineMaxwell3D,
		engines.EngineKeplerCompute, engines.EngineMaxwellDMA,
		engines.EngineKeplerInlineToMemory:
		return id
	}

	log.Printf("error: binding unknown engine class 0x%X", classID)
	return id
}

func (g *GPU) processFenceAction(argument uint32) {
	op := argument & 0xF
	syncpointID := argument >> 8 & 0xFF

	switch op {
	case FenceOpAcquire:
		g.WaitFence(syncpointID, g.regs.fenceValue)
	case FenceOpIncrement:
		g.IncrementSyncpoint(syncpointID)
	default:
		log.Printf("error: unhandled fence action %d", op)
	}
}

func (g *GPU) processSemaphoreTrigger(op uint32) {
	switch op {
	case semaphoreOpWriteLong:
		g.writeSemaphoreResult(uint64(g.regs.semaphoreSequence))
	case semaphoreOpAcquireEqual, semaphoreOpAcquireGequal, semaphoreOpAcquireMask:
		word, err := g.memory.ReadUint32(g.regs.semaphoreAddress())
		if err != nil {
			log.Printf("error: semaphore acquire at unmapped address 0x%X",
				g.regs.semaphoreAddress())
			return
		}
		if !semaphoreSatisfied(op, word, g.regs.semaphoreSequence) {
			// The acquire would stall the FIFO on hardware. Engines run
			// synchronously here so the release it waits for has already
			// landed or never will; record the armed state and move on.
			g.regs.acquireActive = true
			g.regs.acquireValue = g.regs.semaphoreSequence
			g.regs.acquireMode = op == semaphoreOpAcquireGequal
			g.regs.acquireSource = op == semaphoreOpAcquireMask
		}
	default:
		log.Printf("error: unhandled semaphore trigger op %d", op)
	}
}

func semaphoreSatisfied(op, word, sequence uint32) bool {
	switch op {
	case semaphoreOpAcquireEqual:
		return word == sequence
	case semaphoreOpAcquireGequal:
		return int32(word-sequence) >= 0
	case semaphoreOpAcquireMask:
		return word&sequence != 0
	}
	return false
}

// writeSemaphoreResult stores the 16-byte semaphore record at the current
// semaphore address: the sequence, a zero pad word, and the 64-bit
// timestamp in GPU ticks.
func (g *GPU) writeSemaphoreResult(value uint64) {
	addr := g.regs.semaphoreAddress()

	if err := g.memory.WriteUint64(addr, value); err != nil {
		log.Printf("error: semaphore write at unmapped address 0x%X", addr)
		return
	}
	if err := g.memory.WriteUint64(addr+8, g.GetTicks()); err != nil {
		log.Printf("error: semaphore write at unmapped address 0x%X", addr+8)
	}
}

func (g *GPU) processSemaphoreAcquire(value uint32) {
	word, err := g.memory.ReadUint32(g.regs.semaphoreAddress())
	if err != nil {
		log.Printf("error: semaphore acquire at unmapped address 0x%X",
			g.regs.semaphoreAddress())
		return
	}
	if word != value {
		g.regs.acquireActive = true
		g.regs.acquireValue = value
		g.regs.acquireMode = false
		g.regs.acquireSource = false
	}
}

func (g *GPU) processSemaphoreRelease(value uint32) {
	if err := g.memory.WriteUint32(g.regs.semaphoreAddress(), value); err != nil {
		log.Printf("error: semaphore release at unmapped address 0x%X",
			g.regs.semaphoreAddress())
	}
}
