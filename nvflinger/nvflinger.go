package nvflinger

import (
	"fmt"
	"sync"
	"time"

	"github.com/nxsim/nxsim/clock"
	"github.com/nxsim/nxsim/hooking"
	"github.com/nxsim/nxsim/present"
)

// HookPosFrame marks the composition of one frame. The hook item is the
// composed Buffer.
var HookPosFrame = &hooking.HookPos{Name: "NVFlinger Frame"}

// A FenceWaiter blocks until a syncpoint fence is signalled.
type FenceWaiter interface {
	WaitFence(syncpointID, value uint32)
}

// A Flipper presents one composed buffer. The display device implements
// it by resolving the handle to guest memory and handing the frame to the
// renderer.
type Flipper interface {
	Flip(
		bufferHandle uint32,
		offset uint64,
		format uint32,
		width, height, stride uint32,
		transform present.Transform,
		crop present.Rect,
	) error
}

// displayNames are the five fixed outputs, in display-id order.
var displayNames = []string{"Default", "External", "Edid", "Internal", "Null"}

// NVFlinger owns the displays and drives composition off the vsync clock.
type NVFlinger struct {
	hooking.HookableBase

	gpu  FenceWaiter
	disp Flipper

	mu                sync.Mutex
	displays          []*Display
	bufferQueues      []*BufferQueue
	nextLayerID       uint64
	nextBufferQueueID uint32
	swapInterval      uint32
	fpsCap            uint32

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewNVFlinger creates the compositor with the five fixed displays.
func NewNVFlinger(gpu FenceWaiter, disp Flipper) *NVFlinger {
	n := &NVFlinger{
		gpu:               gpu,
		disp:              disp,
		nextLayerID:       1,
		nextBufferQueueID: 1,
		swapInterval:      1,
		fpsCap:            1,
	}

	for i, name := range displayNames {
		n.displays = append(n.displays, NewDisplay(uint64(i), name))
	}

	return n
}

// Name returns the compositor's hookable name.
func (n *NVFlinger) Name() string {
	return "NVFlinger"
}

// OpenDisplay returns the id of the named display.
func (n *NVFlinger) OpenDisplay(name string) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, d := range n.displays {
		if d.Name == name {
			return d.ID, nil
		}
	}

	return 0, fmt.Errorf("no display named %q", name)
}

// CreateLayer adds a layer with a fresh buffer queue to the display and
// returns the layer id.
func (n *NVFlinger) CreateLayer(displayID uint64) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	d := n.findDisplayLocked(displayID)
	if d == nil {
		return 0, fmt.Errorf("no display with id %d", displayID)
	}

	layerID := n.nextLayerID
	n.nextLayerID++

	queue := NewBufferQueue(n.nextBufferQueueID, layerID)
	n.nextBufferQueueID++
	n.bufferQueues = append(n.bufferQueues, queue)

	d.AddLayer(NewLayer(layerID, queue))

	return layerID, nil
}

// CloseLayer removes the layer from whichever display holds it.
func (n *NVFlinger) CloseLayer(layerID uint64) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, d := range n.displays {
		if d.RemoveLayer(layerID) {
			return true
		}
	}
	return false
}

// FindBufferQueueID returns the queue id behind the layer.
func (n *NVFlinger) FindBufferQueueID(displayID, layerID uint64) (uint32, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	d := n.findDisplayLocked(displayID)
	if d == nil {
		return 0, fmt.Errorf("no display with id %d", displayID)
	}

	l := d.FindLayer(layerID)
	if l == nil {
		return 0, fmt.Errorf("no layer with id %d", layerID)
	}

	return l.BufferQueue().ID(), nil
}

// FindBufferQueue returns the queue with the id, or nil.
func (n *NVFlinger) FindBufferQueue(id uint32) *BufferQueue {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, q := range n.bufferQueues {
		if q.ID() == id {
			return q
		}
	}
	return nil
}

// Displays returns the display list for the monitoring server.
func (n *NVFlinger) Displays() []*Display {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make([]*Display, len(n.displays))
	copy(out, n.displays)
	return out
}

func (n *NVFlinger) findDisplayLocked(id uint64) *Display {
	for _, d := range n.displays {
		if d.ID == id {
			return d
		}
	}
	return nil
}

// SetFPSCap sets the frame-rate multiplier applied to the vsync period.
// The default of 1 paces composition at the display rate.
func (n *NVFlinger) SetFPSCap(cap uint32) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if cap == 0 {
		cap = 1
	}
	n.fpsCap = cap
}

// GetNextTicks returns the nanoseconds until the next composition, scaled
// by the swap interval the last composed frame asked for.
func (n *NVFlinger) GetNextTicks() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()

	return int64(1_000_000_000*(uint64(1)<<n.swapInterval)) /
		int64(120*n.fpsCap)
}

// Compose runs one composition pass over every display: acquire the first
// layer's oldest queued buffer, wait its fences, present it, release it.
func (n *NVFlinger) Compose() {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, d := range n.displays {
		if d.NumLayers() == 0 {
			continue
		}

		layer := d.layers[0]
		queue := layer.BufferQueue()

		buf, ok := queue.AcquireBuffer()
		if !ok {
			continue
		}

		// WaitFence blocks, so the compositor lock cannot be held across
		// it: the producer needs the lock to queue the increment that
		// signals the fence.
		fences := buf.MultiFence
		n.mu.Unlock()
		for i := uint32(0); i < fences.NumFences && i < 4; i++ {
			f := fences.Fences[i]
			if f.ID < 0 {
				continue
			}
			n.gpu.WaitFence(uint32(f.ID), f.Value)
		}
		n.mu.Lock()

		igbp := buf.IGBP
		err := n.disp.Flip(
			igbp.NvmapHandle, uint64(igbp.Offset), igbp.Format,
			igbp.Width, igbp.Height, igbp.Stride,
			buf.Transform, buf.CropRect,
		)
		if err == nil {
			n.swapInterval = buf.SwapInterval
		}

		if n.NumHooks() > 0 {
			n.InvokeHook(hooking.HookCtx{
				Domain: n,
				Pos:    HookPosFrame,
				Item:   buf,
			})
		}

		_ = queue.ReleaseBuffer(buf.Slot)
	}
}

// StartVSync launches the dedicated compositor goroutine. Each iteration
// composes, then sleeps until the next vsync deadline, carrying oversleep
// into the next period so the frame clock does not drift.
func (n *NVFlinger) StartVSync() {
	n.stop = make(chan struct{})
	n.wg.Add(1)

	go func() {
		defer n.wg.Done()

		var residual int64
		timer := time.NewTimer(0)
		if !timer.Stop() {
			<-timer.C
		}

		for {
			start := time.Now()
			n.Compose()

			delay := n.GetNextTicks() - time.Since(start).Nanoseconds() - residual
			if delay < 0 {
				residual = -delay
				continue
			}

			timer.Reset(time.Duration(delay))
			before := time.Now()
			select {
			case <-n.stop:
				timer.Stop()
				return
			case <-timer.C:
				residual = time.Since(before).Nanoseconds() - delay
			}
		}
	}()
}

// StopVSync stops the compositor goroutine and waits for it to exit.
func (n *NVFlinger) StopVSync() {
	if n.stop == nil {
		return
	}
	close(n.stop)
	n.wg.Wait()
	n.stop = nil
}

// composeEvent is the single-core frame clock: a timer event that
// composes and rearms itself.
type composeEvent struct {
	clock.EventBase
	flinger *NVFlinger
	loop    *clock.EventLoop
}

type composeHandler struct{}

func (composeHandler) Handle(e clock.Event) error {
	evt := e.(*composeEvent)
	evt.flinger.Compose()

	next := &composeEvent{
		EventBase: clock.NewEventBase(
			e.Deadline()+uint64(evt.flinger.GetNextTicks()), composeHandler{}),
		flinger: evt.flinger,
		loop:    evt.loop,
	}
	evt.loop.Schedule(next)

	return nil
}

// AttachEventLoop arms the periodic composition event on the loop,
// replacing the vsync goroutine for single-core operation. The caller
// drives the loop with RunUntil.
func (n *NVFlinger) AttachEventLoop(loop *clock.EventLoop, now uint64) {
	loop.Schedule(&composeEvent{
		EventBase: clock.NewEventBase(now+uint64(n.GetNextTicks()), composeHandler{}),
		flinger:   n,
		loop:      loop,
	})
}

type nullWaiter struct{}

func (nullWaiter) WaitFence(syncpointID, value uint32) {}

// NullFenceWaiter returns a FenceWaiter that never blocks. Tests and
// headless replay use it when no GPU is attached.
func NullFenceWaiter() FenceWaiter {
	return nullWaiter{}
}
