// Package host1x implements the channel-DMA command path used by the video
// engines: the CDMA pusher with its submission-mode decoder, the THI
// register blocks, and the Host1x/NVDEC/VIC class processors.
package host1x

import (
	"log"

	"github.com/nxsim/nxsim/nvsync"
)

// SubmissionMode is the encoding mode of one CDMA header.
type SubmissionMode uint32

// CDMA submission modes.
const (
	ModeSetClass       SubmissionMode = 0
	ModeIncrementing   SubmissionMode = 1
	ModeNonIncrementing SubmissionMode = 2
	ModeMask           SubmissionMode = 3
	ModeImmediate      SubmissionMode = 4
	ModeRestart        SubmissionMode = 5
	ModeGather         SubmissionMode = 6
)

// ClassID identifies a Host1x client class.
type ClassID uint32

// Host1x client classes.
const (
	ClassHost1x ClassID = 0x01
	ClassVic    ClassID = 0x5D
	ClassNvDec  ClassID = 0xF0
)

// A Header is one 32-bit CDMA command word.
//
// bits  0-15  value (count, mask, or immediate data)
// bits 16-27  method offset
// bits 28-31  submission mode
//
// SetClass headers subdivide the value field into a 6-bit offset mask and a
// 10-bit class id.
type Header uint32

// Value returns the 16-bit value field.
func (h Header) Value() uint32 {
	return uint32(h) & 0xFFFF
}

// MethodOffset returns the 12-bit method offset.
func (h Header) MethodOffset() uint32 {
	return (uint32(h) >> 16) & 0xFFF
}

// Mode returns the submission mode.
func (h Header) Mode() SubmissionMode {
	return SubmissionMode(uint32(h) >> 28)
}

// OffsetMask returns the 6-bit mask of a SetClass header.
func (h Header) OffsetMask() uint32 {
	return uint32(h) & 0x3F
}

// Class returns the class id of a SetClass header.
func (h Header) Class() ClassID {
	return ClassID((uint32(h) >> 6) & 0x3FF)
}

// MakeHeader packs a CDMA header.
func MakeHeader(mode SubmissionMode, offset, value uint32) Header {
	return Header(value&0xFFFF | (offset&0xFFF)<<16 | uint32(mode)<<28)
}

// MakeSetClassHeader packs a SetClass header.
func MakeSetClassHeader(class ClassID, offset, mask uint32) Header {
	return Header(mask&0x3F | uint32(class&0x3FF)<<6 | (offset&0xFFF)<<16 |
		uint32(ModeSetClass)<<28)
}

type chState struct {
	currentClass ClassID
	offset       uint32
	count        uint32
	mask         uint32
	incrementing bool
}

// CDMAPusher decodes the channel command stream and routes methods to the
// class processors.
type CDMAPusher struct {
	deferred *nvsync.DeferredManager

	host1x *Control
	nvdec  *ThiChannel
	vic    *ThiChannel

	state   chState
	pending []uint32 // when-done handles to signal at batch end
}

// NewCDMAPusher creates a CDMAPusher over the deferred-increment manager.
func NewCDMAPusher(deferred *nvsync.DeferredManager, syncpoints *nvsync.SyncpointManager) *CDMAPusher {
	return &CDMAPusher{
		deferred: deferred,
		host1x:   NewControl(syncpoints),
		nvdec:    NewThiChannel(ClassNvDec, NewNvdecProcessor()),
		vic:      NewThiChannel(ClassVic, NewVicProcessor()),
	}
}

// Host1x returns the Host1x control class.
func (p *CDMAPusher) Host1x() *Control {
	return p.host1x
}

// Nvdec returns the NVDEC THI channel.
func (p *CDMAPusher) Nvdec() *ThiChannel {
	return p.nvdec
}

// Vic returns the VIC THI channel.
func (p *CDMAPusher) Vic() *ThiChannel {
	return p.vic
}

// ProcessEntries decodes one submitted batch of command words. Engine work
// triggered by the batch completes before the call returns, so gated
// syncpoint increments are signalled at the end.
func (p *CDMAPusher) ProcessEntries(words []uint32) {
	for _, word := range words {
		p.step(word)
	}

	for _, handle := range p.pending {
		p.deferred.SignalDone(handle)
	}
	p.pending = p.pending[:0]
}

func (p *CDMAPusher) step(word uint32) {
	s := &p.state

	if s.mask != 0 {
		lowBit := uint32(0)
		for s.mask&(1<<lowBit) == 0 {
			lowBit++
		}
		s.mask &^= 1 << lowBit

		p.executeCommand(s.offset+lowBit, word)
		return
	}

	if s.count > 0 {
		p.executeCommand(s.offset, word)
		s.count--
		if s.incrementing {
			s.offset++
		}
		return
	}

	h := Header(word)
	switch h.Mode() {
	case ModeSetClass:
		s.offset = h.MethodOffset()
		s.currentClass = h.Class()
		s.mask = h.OffsetMask()
	case ModeIncrementing, ModeNonIncrementing:
		s.offset = h.MethodOffset()
		s.count = h.Value()
		s.incrementing = h.Mode() == ModeIncrementing
	case ModeMask:
		s.offset = h.MethodOffset()
		s.mask = h.Value()
	case ModeImmediate:
		p.executeCommand(h.MethodOffset(), uint32(h)&0xFFF)
	case ModeRestart, ModeGather:
		log.Printf("error: unhandled CDMA submission mode %d", h.Mode())
	}
}

func (p *CDMAPusher) executeCommand(offset, value uint32) {
	switch p.state.currentClass {
	case ClassHost1x:
		p.host1x.ProcessMethod(offset, value)
	case ClassNvDec:
		p.thiWrite(p.nvdec, offset, value)
	case ClassVic:
		p.thiWrite(p.vic, offset, value)
	default:
		log.Printf("error: CDMA method %#x for unknown class %#x",
			offset, uint32(p.state.currentClass))
	}
}

func (p *CDMAPusher) thiWrite(ch *ThiChannel, offset, value uint32) {
	ch.StateWrite(offset, value)

	switch offset {
	case ThiIncSyncpt:
		id := value & 0xFF
		cond := (value >> 8) & 0xFF

		if cond == syncptCondImmediate {
			p.deferred.Increment(id)
			return
		}

		handle := p.deferred.IncrementWhenDone(uint32(ch.Class()), id)
		p.pending = append(p.pending, handle)
	case ThiMethod1:
		ch.Processor().ProcessMethod(ch.Reg(ThiMethod0), value)
	}
}

// Syncpoint increment conditions carried in the THI IncSyncpt value.
const (
	syncptCondImmediate = 0
	syncptCondOpDone    = 1
)
