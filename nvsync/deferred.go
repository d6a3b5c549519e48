package nvsync

import "sync"

// An Incrementer applies a retired increment to a syncpoint. The GPU
// top-level satisfies this so retired increments also wake fence waiters and
// fire host interrupts.
type Incrementer interface {
	IncrementSyncpoint(id uint32)
}

type deferredIncrement struct {
	handle   uint32
	classID  uint32
	syncptID uint32
	complete bool
}

// DeferredManager queues syncpoint increments that are gated on engine
// completion. Increments are applied in enqueue order no matter what order
// the completion signals arrive in.
type DeferredManager struct {
	mu         sync.Mutex
	queue      []deferredIncrement
	nextHandle uint32
	sink       Incrementer
	syncpoints *SyncpointManager
}

// NewDeferredManager creates a DeferredManager that reserves max values at
// enqueue time and applies retired increments through sink.
func NewDeferredManager(sink Incrementer, syncpoints *SyncpointManager) *DeferredManager {
	return &DeferredManager{sink: sink, syncpoints: syncpoints}
}

// Increment enqueues an increment that is already complete and drains the
// queue.
func (d *DeferredManager) Increment(id uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.syncpoints.IncreaseMax(id, 1)
	d.queue = append(d.queue, deferredIncrement{
		handle:   d.allocateHandle(),
		syncptID: id,
		complete: true,
	})
	d.drain()
}

// IncrementWhenDone enqueues an increment gated on a later SignalDone call
// and returns the handle to signal with.
func (d *DeferredManager) IncrementWhenDone(classID, id uint32) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.syncpoints.IncreaseMax(id, 1)

	handle := d.allocateHandle()
	d.queue = append(d.queue, deferredIncrement{
		handle:   handle,
		classID:  classID,
		syncptID: id,
	})

	return handle
}

// SignalDone marks the increment with the given handle complete and drains
// the queue. Signals for unknown handles are ignored.
func (d *DeferredManager) SignalDone(handle uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i := range d.queue {
		if d.queue[i].handle == handle {
			d.queue[i].complete = true
			break
		}
	}

	d.drain()
}

// Pending returns the number of increments that have not been applied yet.
func (d *DeferredManager) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.queue)
}

// drain applies completed increments from the head of the queue. Stopping at
// the first incomplete record is what preserves submission order.
func (d *DeferredManager) drain() {
	for len(d.queue) > 0 && d.queue[0].complete {
		d.sink.IncrementSyncpoint(d.queue[0].syncptID)
		d.queue = d.queue[1:]
	}
}

func (d *DeferredManager) allocateHandle() uint32 {
	d.nextHandle++
	return d.nextHandle
}
