package nvdrv

// A Command is a packed ioctl command word.
//
// bits  0-7   command number within the group
// bits  8-15  device group
// bits 16-29  parameter length
// bit     30  has inline input
// bit     31  has inline output
type Command uint32

// Cmd returns the command number.
func (c Command) Cmd() uint32 {
	return uint32(c) & 0xFF
}

// Group returns the device group.
func (c Command) Group() uint32 {
	return uint32(c) >> 8 & 0xFF
}

// Length returns the declared parameter length.
func (c Command) Length() uint32 {
	return uint32(c) >> 16 & 0x3FFF
}

// IsIn reports whether the command carries input parameters.
func (c Command) IsIn() bool {
	return uint32(c)>>30&1 != 0
}

// IsOut reports whether the command carries output parameters.
func (c Command) IsOut() bool {
	return uint32(c)>>31&1 != 0
}

// MakeCommand packs a command word.
func MakeCommand(group, cmd, length uint32, in, out bool) Command {
	w := cmd&0xFF | (group&0xFF)<<8 | (length&0x3FFF)<<16
	if in {
		w |= 1 << 30
	}
	if out {
		w |= 1 << 31
	}
	return Command(w)
}

// Device groups.
const (
	GroupNvhostCtrl  = 0x00
	GroupNvmap       = 0x01
	GroupNvhostAsGPU = 'A'
	GroupNvhostGPU   = 'H'
)
