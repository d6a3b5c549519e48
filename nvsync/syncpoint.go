// Package nvsync implements the syncpoint table and the deferred-increment
// ordering engine. Syncpoints are the 32-bit counters every fence in the
// system is built on.
package nvsync

import (
	"fmt"
	"sync/atomic"
)

// NumSyncpoints is the number of hardware syncpoint slots.
const NumSyncpoints = 192

// NoSyncpoint is the reserved id that turns a wait into a no-op.
const NoSyncpoint = ^uint32(0)

type syncpoint struct {
	min       atomic.Uint32
	max       atomic.Uint32
	allocated atomic.Bool
}

// SyncpointManager owns the fixed array of syncpoint counters. All accesses
// are atomic; slots are allocated on demand and never freed.
type SyncpointManager struct {
	syncpoints [NumSyncpoints]syncpoint
}

// NewSyncpointManager creates a SyncpointManager with all slots free.
func NewSyncpointManager() *SyncpointManager {
	return &SyncpointManager{}
}

// Allocate returns the lowest free slot and marks it allocated.
func (m *SyncpointManager) Allocate() (uint32, error) {
	for id := uint32(0); id < NumSyncpoints; id++ {
		if m.syncpoints[id].allocated.CompareAndSwap(false, true) {
			return id, nil
		}
	}

	return 0, fmt.Errorf("all %d syncpoints are allocated", NumSyncpoints)
}

// IsAllocated reports whether the slot has been handed out.
func (m *SyncpointManager) IsAllocated(id uint32) bool {
	return m.syncpoints[id].allocated.Load()
}

// IncreaseMax atomically adds amount to the max value of the syncpoint and
// returns the post-increment value.
func (m *SyncpointManager) IncreaseMax(id uint32, amount uint32) uint32 {
	return m.syncpoints[id].max.Add(amount)
}

// IncrementMin signals one completion on the syncpoint and returns the new
// min value.
func (m *SyncpointManager) IncrementMin(id uint32) uint32 {
	return m.syncpoints[id].min.Add(1)
}

// RefreshMin reads the current min value. Callers use it after the host
// signals completion.
func (m *SyncpointManager) RefreshMin(id uint32) uint32 {
	return m.syncpoints[id].min.Load()
}

// GetSyncpointMax reads the current max value.
func (m *SyncpointManager) GetSyncpointMax(id uint32) uint32 {
	return m.syncpoints[id].max.Load()
}

// IncrementSyncpoint retires one increment: min advances, and max is raised
// along when the increment was never reserved at submission time. It
// satisfies Incrementer so a SyncpointManager can be the sink of a
// DeferredManager directly.
func (m *SyncpointManager) IncrementSyncpoint(id uint32) {
	sp := &m.syncpoints[id]
	min := sp.min.Add(1)

	for {
		max := sp.max.Load()
		if max-min < 0x80000000 {
			return
		}
		if sp.max.CompareAndSwap(max, min) {
			return
		}
	}
}

// IsExpired reports whether the syncpoint has passed value. The comparison
// is wrap-safe: it holds as long as the distance between min and max fits in
// 2^31.
func (m *SyncpointManager) IsExpired(id uint32, value uint32) bool {
	sp := &m.syncpoints[id]
	min := sp.min.Load()
	max := sp.max.Load()

	return max-value >= min-value
}
