// Package nvflinger implements the display compositor: the display and
// layer registry, the producer-consumer buffer queues behind each layer,
// and the vsync clock that drives composition.
package nvflinger

import (
	"fmt"
	"sync"

	"github.com/nxsim/nxsim/nvsync"
	"github.com/nxsim/nxsim/present"
)

// NumBufferSlots is the number of slots one queue manages.
const NumBufferSlots = 0x40

// BufferStatus is the state of one slot in the queue's state machine.
type BufferStatus int

// Slot states. A slot cycles Free, Dequeued, Queued, Acquired, Free.
const (
	BufferFree BufferStatus = iota
	BufferDequeued
	BufferQueued
	BufferAcquired
)

func (s BufferStatus) String() string {
	switch s {
	case BufferFree:
		return "Free"
	case BufferDequeued:
		return "Dequeued"
	case BufferQueued:
		return "Queued"
	case BufferAcquired:
		return "Acquired"
	}
	return "Unknown"
}

// An IGBPBuffer is the guest-side descriptor of one graphics buffer.
type IGBPBuffer struct {
	Magic          uint32
	Width          uint32
	Height         uint32
	Stride         uint32
	Format         uint32
	Usage          uint32
	Index          uint32
	NvmapHandle    uint32
	Offset         uint32
	ExternalFormat uint32
}

// A Buffer is one slot of a queue together with the guest state attached
// to it by QueueBuffer.
type Buffer struct {
	Slot         uint32
	Status       BufferStatus
	IGBP         IGBPBuffer
	Transform    present.Transform
	CropRect     present.Rect
	SwapInterval uint32
	MultiFence   nvsync.MultiFence
}

// Query slot identifiers for BufferQueue.Query.
const (
	QueryWidth  = 0
	QueryHeight = 1
	QueryFormat = 2
)

// A BufferQueue hands buffers between the producing guest and the
// consuming compositor. The producer dequeues, fills, and queues; the
// consumer acquires, presents, and releases.
type BufferQueue struct {
	id      uint32
	layerID uint64

	mu sync.Mutex
	cv *sync.Cond

	buffers       []Buffer
	queueSequence []uint32
	freeBuffers   []uint32
	connected     bool
}

// NewBufferQueue creates an empty queue.
func NewBufferQueue(id uint32, layerID uint64) *BufferQueue {
	q := &BufferQueue{
		id:      id,
		layerID: layerID,
	}
	q.cv = sync.NewCond(&q.mu)
	return q
}

// ID returns the queue's identifier, the value the guest refers to it by.
func (q *BufferQueue) ID() uint32 {
	return q.id
}

// LayerID returns the owning layer.
func (q *BufferQueue) LayerID() uint64 {
	return q.layerID
}

// Connect marks the producer side attached.
func (q *BufferQueue) Connect() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.connected = true
}

// Disconnect detaches the producer, clears all queue state, and wakes
// blocked dequeuers so they can observe the disconnect.
func (q *BufferQueue) Disconnect() {
	q.mu.Lock()
	q.connected = false
	q.queueSequence = nil
	q.freeBuffers = q.freeBuffers[:0]
	for i := range q.buffers {
		q.buffers[i].Status = BufferFree
		q.freeBuffers = append(q.freeBuffers, q.buffers[i].Slot)
	}
	q.mu.Unlock()

	q.cv.Broadcast()
}

// IsConnected reports whether a producer is attached.
func (q *BufferQueue) IsConnected() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.connected
}

// SetPreallocatedBuffer installs the guest descriptor for a slot and marks
// it Free.
func (q *BufferQueue) SetPreallocatedBuffer(slot uint32, igbp IGBPBuffer) error {
	if slot >= NumBufferSlots {
		return fmt.Errorf("slot %d out of range", slot)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.buffers {
		if q.buffers[i].Slot == slot {
			q.buffers[i].IGBP = igbp
			q.buffers[i].Status = BufferFree
			return nil
		}
	}

	q.buffers = append(q.buffers, Buffer{
		Slot:   slot,
		Status: BufferFree,
		IGBP:   igbp,
	})
	q.freeBuffers = append(q.freeBuffers, slot)

	return nil
}

// TryDequeueBuffer hands the producer a free slot whose descriptor matches
// the requested dimensions. It returns false when no such slot is free.
func (q *BufferQueue) TryDequeueBuffer(width, height uint32) (uint32, nvsync.MultiFence, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.dequeueLocked(width, height)
}

// DequeueBuffer blocks until a matching free slot is available or the
// producer disconnects. The second return is the fence the producer must
// wait on before writing to the buffer.
func (q *BufferQueue) DequeueBuffer(width, height uint32) (uint32, nvsync.MultiFence, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		slot, fence, ok := q.dequeueLocked(width, height)
		if ok {
			return slot, fence, true
		}
		if !q.connected {
			return 0, nvsync.MultiFence{}, false
		}
		q.cv.Wait()
	}
}

func (q *BufferQueue) dequeueLocked(width, height uint32) (uint32, nvsync.MultiFence, bool) {
	for i, slot := range q.freeBuffers {
		b := q.bufferLocked(slot)
		if b == nil || b.Status != BufferFree {
			continue
		}
		if b.IGBP.Width != width || b.IGBP.Height != height {
			continue
		}

		b.Status = BufferDequeued
		q.freeBuffers = append(q.freeBuffers[:i], q.freeBuffers[i+1:]...)
		return slot, b.MultiFence, true
	}

	return 0, nvsync.MultiFence{}, false
}

// RequestBuffer returns the descriptor of a dequeued slot.
func (q *BufferQueue) RequestBuffer(slot uint32) (IGBPBuffer, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	b := q.bufferLocked(slot)
	if b == nil || b.Status != BufferDequeued {
		return IGBPBuffer{}, fmt.Errorf("slot %d is not dequeued", slot)
	}

	return b.IGBP, nil
}

// QueueBuffer submits a filled slot for composition, appending it to the
// FIFO the consumer drains.
func (q *BufferQueue) QueueBuffer(
	slot uint32,
	transform present.Transform,
	crop present.Rect,
	swapInterval uint32,
	fence nvsync.MultiFence,
) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	b := q.bufferLocked(slot)
	if b == nil || b.Status != BufferDequeued {
		return fmt.Errorf("slot %d is not dequeued", slot)
	}

	b.Status = BufferQueued
	b.Transform = transform
	b.CropRect = crop
	b.SwapInterval = swapInterval
	b.MultiFence = fence
	q.queueSequence = append(q.queueSequence, slot)

	return nil
}

// CancelBuffer returns a dequeued slot unfilled.
func (q *BufferQueue) CancelBuffer(slot uint32, fence nvsync.MultiFence) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	b := q.bufferLocked(slot)
	if b == nil || b.Status != BufferDequeued {
		return fmt.Errorf("slot %d is not dequeued", slot)
	}

	b.Status = BufferFree
	b.MultiFence = fence
	q.freeBuffers = append(q.freeBuffers, slot)
	q.cv.Broadcast()

	return nil
}

// AcquireBuffer hands the consumer the oldest queued slot. It returns
// false when nothing is queued.
func (q *BufferQueue) AcquireBuffer() (*Buffer, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.queueSequence) > 0 {
		slot := q.queueSequence[0]
		q.queueSequence = q.queueSequence[1:]

		b := q.bufferLocked(slot)
		if b == nil || b.Status != BufferQueued {
			continue
		}

		b.Status = BufferAcquired
		return b, true
	}

	return nil, false
}

// ReleaseBuffer returns an acquired slot to the free list and wakes
// blocked dequeuers.
func (q *BufferQueue) ReleaseBuffer(slot uint32) error {
	q.mu.Lock()

	b := q.bufferLocked(slot)
	if b == nil || b.Status != BufferAcquired {
		q.mu.Unlock()
		return fmt.Errorf("slot %d is not acquired", slot)
	}

	b.Status = BufferFree
	q.freeBuffers = append(q.freeBuffers, slot)
	q.mu.Unlock()

	q.cv.Broadcast()
	return nil
}

// Query reports a property of the primary buffer.
func (q *BufferQueue) Query(what int) (int32, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.buffers) == 0 {
		return 0, fmt.Errorf("queue %d has no buffers", q.id)
	}

	igbp := q.buffers[0].IGBP
	switch what {
	case QueryWidth:
		return int32(igbp.Width), nil
	case QueryHeight:
		return int32(igbp.Height), nil
	case QueryFormat:
		return int32(igbp.Format), nil
	}

	return 0, fmt.Errorf("unknown query %d", what)
}

// SlotStatus returns the state of a slot, mainly for tests and the
// monitoring server.
func (q *BufferQueue) SlotStatus(slot uint32) (BufferStatus, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	b := q.bufferLocked(slot)
	if b == nil {
		return BufferFree, false
	}
	return b.Status, true
}

// QueuedCount returns the length of the pending FIFO.
func (q *BufferQueue) QueuedCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.queueSequence)
}

func (q *BufferQueue) bufferLocked(slot uint32) *Buffer {
	for i := range q.buffers {
		if q.buffers[i].Slot == slot {
			return &q.buffers[i]
		}
	}
	return nil
}
