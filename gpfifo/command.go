// Package gpfifo implements the GPU command FIFO front-end: the wire format
// of guest command lists and the DMA pusher that walks them, decoding
// method/argument pairs into processor calls.
package gpfifo

// SubmissionMode is the encoding mode of one command header.
type SubmissionMode uint32

// Submission modes. The Old variants are legacy encodings with the same
// semantics as their modern counterparts.
const (
	ModeIncreasingOld    SubmissionMode = 0
	ModeIncreasing       SubmissionMode = 1
	ModeNonIncreasingOld SubmissionMode = 2
	ModeNonIncreasing    SubmissionMode = 3
	ModeInline           SubmissionMode = 4
	ModeIncreaseOnce     SubmissionMode = 5
)

// A CommandHeader is one 32-bit word introducing a method run.
//
// bits  0-12  method
// bits 13-15  subchannel
// bits 16-28  argument count, or the inline argument
// bits 29-31  submission mode
type CommandHeader uint32

// Method returns the 13-bit method number.
func (h CommandHeader) Method() uint32 {
	return uint32(h) & 0x1FFF
}

// SubChannel returns the 3-bit subchannel.
func (h CommandHeader) SubChannel() uint32 {
	return (uint32(h) >> 13) & 0x7
}

// ArgCount returns the 13-bit argument count.
func (h CommandHeader) ArgCount() uint32 {
	return (uint32(h) >> 16) & 0x1FFF
}

// InlineData returns the 13-bit inline argument of an Inline-mode header.
func (h CommandHeader) InlineData() uint32 {
	return (uint32(h) >> 16) & 0x1FFF
}

// Mode returns the submission mode.
func (h CommandHeader) Mode() SubmissionMode {
	return SubmissionMode(uint32(h) >> 29)
}

// MakeCommandHeader packs a command header.
func MakeCommandHeader(method, count, subChannel uint32, mode SubmissionMode) CommandHeader {
	return CommandHeader(method&0x1FFF |
		(subChannel&0x7)<<13 |
		(count&0x1FFF)<<16 |
		uint32(mode)<<29)
}

// A CommandListHeader is one 64-bit entry of a GPFIFO submission.
//
// bits  0-39  GPU virtual address of the command buffer
// bit     41  non-main flag
// bits 42-62  size in words
type CommandListHeader uint64

// Addr returns the 40-bit GPU virtual address.
func (h CommandListHeader) Addr() uint64 {
	return uint64(h) & 0xFF_FFFF_FFFF
}

// IsNonMain reports the non-main flag.
func (h CommandListHeader) IsNonMain() bool {
	return uint64(h)>>41&1 != 0
}

// Size returns the command buffer size in 32-bit words.
func (h CommandListHeader) Size() uint64 {
	return uint64(h) >> 42 & 0x1FFFFF
}

// MakeCommandListHeader packs a command list entry.
func MakeCommandListHeader(addr uint64, size uint64, nonMain bool) CommandListHeader {
	h := addr & 0xFF_FFFF_FFFF
	if nonMain {
		h |= 1 << 41
	}
	h |= (size & 0x1FFFFF) << 42
	return CommandListHeader(h)
}

// A CommandList is an ordered sequence of command buffer references handed
// over in one submission.
type CommandList []CommandListHeader
