package gpfifo

import (
	"github.com/nxsim/nxsim/gmmu"
	"github.com/nxsim/nxsim/hooking"
)

// HookPosDispatchStart marks when the pusher starts walking a command list.
var HookPosDispatchStart = &hooking.HookPos{Name: "Gpfifo Dispatch Start"}

// HookPosDispatchEnd marks when the pusher finishes a command list.
var HookPosDispatchEnd = &hooking.HookPos{Name: "Gpfifo Dispatch End"}

// A Processor consumes decoded methods. Methods below the puller threshold
// are control-register writes handled by the GPU itself; the rest go to the
// engine bound to the subchannel.
type Processor interface {
	CallMethod(method, subChannel, argument uint32, isLast bool)
	CallMultiMethod(method, subChannel uint32, arguments []uint32, methodsPending uint32)
}

type dmaState struct {
	method          uint32
	subChannel      uint32
	methodCount     uint32
	nonIncrementing bool
	incrementOnce   bool
}

// Pusher walks guest command lists and turns them into processor calls.
type Pusher struct {
	hooking.HookableBase

	name      string
	memory    *gmmu.Manager
	processor Processor

	pushbuffer []CommandList
	state      dmaState
}

// NewPusher creates a Pusher that reads command buffers through memory and
// feeds decoded methods into processor.
func NewPusher(name string, memory *gmmu.Manager, processor Processor) *Pusher {
	return &Pusher{
		name:      name,
		memory:    memory,
		processor: processor,
	}
}

// Name returns the name of the pusher.
func (p *Pusher) Name() string {
	return p.name
}

// Push queues a command list for dispatch.
func (p *Pusher) Push(list CommandList) {
	p.pushbuffer = append(p.pushbuffer, list)
}

// DispatchCalls drains the queued command lists in order.
func (p *Pusher) DispatchCalls() {
	for len(p.pushbuffer) > 0 {
		list := p.pushbuffer[0]
		p.pushbuffer = p.pushbuffer[1:]

		p.InvokeHook(hooking.HookCtx{
			Domain: p, Pos: HookPosDispatchStart, Item: list,
		})

		for _, entry := range list {
			p.dispatchEntry(entry)
		}

		p.InvokeHook(hooking.HookCtx{
			Domain: p, Pos: HookPosDispatchEnd, Item: list,
		})
	}
}

func (p *Pusher) dispatchEntry(entry CommandListHeader) {
	size := entry.Size()
	if size == 0 {
		return
	}

	buf := make([]byte, size*4)
	p.memory.ReadBlockUnsafe(entry.Addr(), buf)

	words := make([]uint32, size)
	for i := range words {
		words[i] = uint32(buf[i*4]) |
			uint32(buf[i*4+1])<<8 |
			uint32(buf[i*4+2])<<16 |
			uint32(buf[i*4+3])<<24
	}

	p.ProcessCommands(words)
}

// ProcessCommands decodes a prefetched stream of command words. Exported so
// the channel device can submit inline (kickoff) buffers directly.
func (p *Pusher) ProcessCommands(words []uint32) {
	for i := 0; i < len(words); i++ {
		if p.state.methodCount > 0 {
			i += p.consumeArguments(words[i:]) - 1
			continue
		}

		p.decodeHeader(CommandHeader(words[i]))
	}
}

// consumeArguments feeds pending data words to the processor and returns
// how many words were consumed.
func (p *Pusher) consumeArguments(words []uint32) int {
	s := &p.state

	if s.nonIncrementing {
		// A fixed-method run becomes a single multi-call so buffer uploads
		// stay in one piece.
		n := int(s.methodCount)
		if n > len(words) {
			n = len(words)
		}

		p.processor.CallMultiMethod(s.method, s.subChannel, words[:n], s.methodCount)
		s.methodCount -= uint32(n)
		return n
	}

	p.processor.CallMethod(s.method, s.subChannel, words[0], s.methodCount == 1)
	s.method++
	s.methodCount--

	if s.incrementOnce {
		// Only the first argument advances the method.
		s.nonIncrementing = true
		s.incrementOnce = false
	}

	return 1
}

func (p *Pusher) decodeHeader(h CommandHeader) {
	switch h.Mode() {
	case ModeIncreasing, ModeIncreasingOld:
		p.state = dmaState{
			method:      h.Method(),
			subChannel:  h.SubChannel(),
			methodCount: h.ArgCount(),
		}
	case ModeNonIncreasing, ModeNonIncreasingOld:
		p.state = dmaState{
			method:          h.Method(),
			subChannel:      h.SubChannel(),
			methodCount:     h.ArgCount(),
			nonIncrementing: true,
		}
	case ModeIncreaseOnce:
		p.state = dmaState{
			method:        h.Method(),
			subChannel:    h.SubChannel(),
			methodCount:   h.ArgCount(),
			incrementOnce: true,
		}
	case ModeInline:
		p.processor.CallMethod(h.Method(), h.SubChannel(), h.InlineData(), true)
	}
}
