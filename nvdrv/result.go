// Package nvdrv implements the kernel-visible driver surface: the named
// device nodes, their ioctl entry points, and the bit-exact parameter
// structs the guest exchanges with them.
package nvdrv

import "github.com/nxsim/nxsim/nvmap"

// Result is the closed set of status codes the ioctl layer returns. The
// values are part of the guest interface.
type Result uint32

// Result codes.
const (
	ResultSuccess            Result = 0x0
	ResultNotImplemented     Result = 0x1
	ResultNotSupported       Result = 0x2
	ResultNotInitialized     Result = 0x3
	ResultBadParameter       Result = 0x4
	ResultTimeout            Result = 0x5
	ResultInsufficientMemory Result = 0x6
	ResultReadOnlyAttribute  Result = 0x7
	ResultInvalidState       Result = 0x8
	ResultInvalidAddress     Result = 0x9
	ResultInvalidSize        Result = 0xA
	ResultBadValue           Result = 0xB
	ResultAlreadyAllocated   Result = 0xD
	ResultBusy               Result = 0xE
	ResultResourceError      Result = 0xF
	ResultCountMismatch       Result = 0x10
	ResultOverflow            Result = 0x11
	ResultFileOperationFailed Result = 0x30003
)

func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "Success"
	case ResultNotImplemented:
		return "NotImplemented"
	case ResultNotSupported:
		return "NotSupported"
	case ResultNotInitialized:
		return "NotInitialized"
	case ResultBadParameter:
		return "BadParameter"
	case ResultTimeout:
		return "Timeout"
	case ResultInsufficientMemory:
		return "InsufficientMemory"
	case ResultReadOnlyAttribute:
		return "ReadOnlyAttribute"
	case ResultInvalidState:
		return "InvalidState"
	case ResultInvalidAddress:
		return "InvalidAddress"
	case ResultInvalidSize:
		return "InvalidSize"
	case ResultBadValue:
		return "BadValue"
	case ResultAlreadyAllocated:
		return "AlreadyAllocated"
	case ResultBusy:
		return "Busy"
	case ResultResourceError:
		return "ResourceError"
	case ResultCountMismatch:
		return "CountMismatch"
	case ResultOverflow:
		return "Overflow"
	case ResultFileOperationFailed:
		return "FileOperationFailed"
	}
	return "Unknown"
}

// resultFromNvmapError translates the handle table's errors into guest
// result codes.
func resultFromNvmapError(err error) Result {
	switch err {
	case nil:
		return ResultSuccess
	case nvmap.ErrZeroSize, nvmap.ErrZeroHandle:
		return ResultBadValue
	case nvmap.ErrBadAlignment:
		return ResultBadValue
	case nvmap.ErrNotFound:
		return ResultBadParameter
	case nvmap.ErrAlreadyAlloced:
		return ResultInsufficientMemory
	case nvmap.ErrNotAllocated:
		return ResultBadParameter
	}
	return ResultBadParameter
}
