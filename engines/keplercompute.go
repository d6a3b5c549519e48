package engines

import "log"

const keplerComputeRegCount = 0x1000

// Distilled KeplerCompute register offsets.
const (
	keplerComputeLaunchDescLo = 0xAD
	keplerComputeLaunch       = 0xAF
)

// KeplerCompute is the compute front-end. It latches the launch descriptor
// pointer and notifies when a grid is launched.
type KeplerCompute struct {
	regs         [keplerComputeRegCount]uint32
	launchCount  int
	notifyLaunch func()
}

// NewKeplerCompute creates a KeplerCompute engine.
func NewKeplerCompute() *KeplerCompute {
	return &KeplerCompute{}
}

// Reg reads one register.
func (e *KeplerCompute) Reg(method uint32) uint32 {
	return e.regs[method]
}

// LaunchCount returns the number of grids launched so far.
func (e *KeplerCompute) LaunchCount() int {
	return e.launchCount
}

// OnLaunch registers a callback fired when a grid is launched.
func (e *KeplerCompute) OnLaunch(f func()) {
	e.notifyLaunch = f
}

// CallMethod processes one compute method.
func (e *KeplerCompute) CallMethod(method, argument uint32, isLast bool) {
	if method >= keplerComputeRegCount {
		log.Printf("error: KeplerCompute method %#x out of range", method)
		return
	}

	e.regs[method] = argument

	if method == keplerComputeLaunch {
		e.launchCount++
		if e.notifyLaunch != nil {
			e.notifyLaunch()
		}
	}
}

// CallMultiMethod processes a run of arguments for the same method.
func (e *KeplerCompute) CallMultiMethod(method uint32, arguments []uint32, methodsPending uint32) {
	for i, arg := range arguments {
		e.CallMethod(method, arg, i == len(arguments)-1)
	}
}
