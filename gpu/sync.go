package gpu

import (
	"time"

	"github.com/nxsim/nxsim/nvsync"
)

// WaitFence blocks until the GPU-side counter of the syncpoint reaches the
// value. A syncpoint ID of NoSyncpoint and a value of zero are both
// treated as already signalled. ShutDown releases all waiters.
func (g *GPU) WaitFence(syncpointID, value uint32) {
	if syncpointID == nvsync.NoSyncpoint || value == 0 {
		return
	}
	if syncpointID >= nvsync.NumSyncpoints {
		return
	}

	// Without the async worker, the submission behind the fence has
	// already completed inline, so the counter is as far along as it will
	// ever get and blocking could only deadlock the caller.
	if !g.async {
		return
	}

	g.syncMu.Lock()
	defer g.syncMu.Unlock()

	for !g.shuttingDown && !fenceReached(g.syncpoints[syncpointID], value) {
		g.syncCV.Wait()
	}
}

// WaitFenceTimeout is WaitFence with a deadline. It reports whether the
// fence was reached before the timeout expired or shutdown began.
func (g *GPU) WaitFenceTimeout(syncpointID, value uint32, timeout time.Duration) bool {
	if syncpointID == nvsync.NoSyncpoint || value == 0 {
		return true
	}
	if syncpointID >= nvsync.NumSyncpoints {
		return true
	}

	deadline := time.Now().Add(timeout)
	timer := time.AfterFunc(timeout, func() {
		// Taking the lock orders the wakeup after the waiter's deadline
		// check, so the broadcast cannot slip into the gap before Wait.
		g.syncMu.Lock()
		g.syncMu.Unlock() //nolint:staticcheck
		g.syncCV.Broadcast()
	})
	defer timer.Stop()

	g.syncMu.Lock()
	defer g.syncMu.Unlock()

	for {
		if fenceReached(g.syncpoints[syncpointID], value) {
			return true
		}
		if g.shuttingDown || !time.Now().Before(deadline) {
			return false
		}
		g.syncCV.Wait()
	}
}

// fenceReached reports whether counter has passed value, tolerating 32-bit
// wraparound the same way the expiry check on the driver side does.
func fenceReached(counter, value uint32) bool {
	return counter-value < 0x80000000
}

// IncrementSyncpoint advances the GPU-side counter of the syncpoint, wakes
// fence waiters, and fires any interrupt whose threshold is now reached.
// The driver-visible min retires with the counter, and max catches up for
// increments that were never reserved, so expiry checks stay coherent
// between the two views.
func (g *GPU) IncrementSyncpoint(syncpointID uint32) {
	if syncpointID >= nvsync.NumSyncpoints {
		return
	}

	g.syncpointManager.IncrementSyncpoint(syncpointID)

	g.syncMu.Lock()
	g.syncpoints[syncpointID]++
	value := g.syncpoints[syncpointID]

	var fired []uint32
	remaining := g.interrupts[syncpointID][:0]
	for _, threshold := range g.interrupts[syncpointID] {
		if fenceReached(value, threshold) {
			fired = append(fired, threshold)
		} else {
			remaining = append(remaining, threshold)
		}
	}
	g.interrupts[syncpointID] = remaining
	handler := g.onInterrupt
	g.syncMu.Unlock()

	g.syncCV.Broadcast()

	if handler != nil {
		for _, threshold := range fired {
			handler(syncpointID, threshold)
		}
	}
}

// SyncpointValue returns the GPU-side counter of the syncpoint.
func (g *GPU) SyncpointValue(syncpointID uint32) uint32 {
	if syncpointID >= nvsync.NumSyncpoints {
		return 0
	}

	g.syncMu.Lock()
	defer g.syncMu.Unlock()

	return g.syncpoints[syncpointID]
}

// RegisterSyncptInterrupt arms an interrupt that fires once the syncpoint
// counter reaches the value. It reports false when the same pair is
// already armed.
func (g *GPU) RegisterSyncptInterrupt(syncpointID, value uint32) bool {
	if syncpointID >= nvsync.NumSyncpoints {
		return false
	}

	g.syncMu.Lock()
	defer g.syncMu.Unlock()

	for _, threshold := range g.interrupts[syncpointID] {
		if threshold == value {
			return false
		}
	}

	g.interrupts[syncpointID] = append(g.interrupts[syncpointID], value)
	return true
}

// CancelSyncptInterrupt disarms the first matching interrupt in
// registration order. It reports whether one was found.
func (g *GPU) CancelSyncptInterrupt(syncpointID, value uint32) bool {
	if syncpointID >= nvsync.NumSyncpoints {
		return false
	}

	g.syncMu.Lock()
	defer g.syncMu.Unlock()

	for i, threshold := range g.interrupts[syncpointID] {
		if threshold == value {
			g.interrupts[syncpointID] = append(
				g.interrupts[syncpointID][:i],
				g.interrupts[syncpointID][i+1:]...)
			return true
		}
	}

	return false
}
