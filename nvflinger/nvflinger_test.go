package nvflinger

import (
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nxsim/nxsim/clock"
	"github.com/nxsim/nxsim/nvsync"
	"github.com/nxsim/nxsim/present"
)

type recordedFlip struct {
	handle    uint32
	width     uint32
	height    uint32
	transform present.Transform
}

type recordingFlipper struct {
	mu    sync.Mutex
	flips []recordedFlip
}

func (f *recordingFlipper) Flip(
	bufferHandle uint32,
	offset uint64,
	format uint32,
	width, height, stride uint32,
	transform present.Transform,
	crop present.Rect,
) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.flips = append(f.flips, recordedFlip{
		handle:    bufferHandle,
		width:     width,
		height:    height,
		transform: transform,
	})
	return nil
}

func (f *recordingFlipper) Flips() []recordedFlip {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]recordedFlip, len(f.flips))
	copy(out, f.flips)
	return out
}

type recordingWaiter struct {
	mu    sync.Mutex
	waits [][2]uint32
}

func (w *recordingWaiter) WaitFence(syncpointID, value uint32) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.waits = append(w.waits, [2]uint32{syncpointID, value})
}

var _ = Describe("NVFlinger", func() {
	var (
		flipper *recordingFlipper
		waiter  *recordingWaiter
		n       *NVFlinger
	)

	BeforeEach(func() {
		flipper = &recordingFlipper{}
		waiter = &recordingWaiter{}
		n = NewNVFlinger(waiter, flipper)
	})

	It("should expose the five fixed displays", func() {
		for _, name := range []string{
			"Default", "External", "Edid", "Internal", "Null",
		} {
			_, err := n.OpenDisplay(name)
			Expect(err).ToNot(HaveOccurred())
		}

		_, err := n.OpenDisplay("Bogus")
		Expect(err).To(HaveOccurred())
	})

	It("should create a layer with its own buffer queue", func() {
		displayID, _ := n.OpenDisplay("Default")
		layerID, err := n.CreateLayer(displayID)
		Expect(err).ToNot(HaveOccurred())

		queueID, err := n.FindBufferQueueID(displayID, layerID)
		Expect(err).ToNot(HaveOccurred())
		Expect(n.FindBufferQueue(queueID)).ToNot(BeNil())
	})

	Context("composition", func() {
		var queue *BufferQueue

		queueOneFrame := func(swapInterval uint32, fence nvsync.MultiFence) {
			slot, _, ok := queue.TryDequeueBuffer(1280, 720)
			Expect(ok).To(BeTrue())
			Expect(queue.QueueBuffer(slot, present.TransformFlipV,
				present.Rect{Right: 1280, Bottom: 720},
				swapInterval, fence)).To(Succeed())
		}

		BeforeEach(func() {
			displayID, _ := n.OpenDisplay("Default")
			layerID, _ := n.CreateLayer(displayID)
			queueID, _ := n.FindBufferQueueID(displayID, layerID)
			queue = n.FindBufferQueue(queueID)
			queue.Connect()

			Expect(queue.SetPreallocatedBuffer(0, IGBPBuffer{
				Width:       1280,
				Height:      720,
				Stride:      1280,
				Format:      uint32(present.PixelFormatABGR8),
				NvmapHandle: 42,
			})).To(Succeed())
		})

		It("should present an acquired buffer and release its slot", func() {
			queueOneFrame(0, nvsync.MultiFence{})

			n.Compose()

			flips := flipper.Flips()
			Expect(flips).To(HaveLen(1))
			Expect(flips[0].handle).To(Equal(uint32(42)))
			Expect(flips[0].width).To(Equal(uint32(1280)))
			Expect(flips[0].transform).To(Equal(present.TransformFlipV))

			status, _ := queue.SlotStatus(0)
			Expect(status).To(Equal(BufferFree))
			Expect(queue.QueuedCount()).To(BeZero())
		})

		It("should wait the buffer's fences before presenting", func() {
			fence := nvsync.MultiFence{NumFences: 2}
			fence.Fences[0] = nvsync.Fence{ID: 5, Value: 10}
			fence.Fences[1] = nvsync.Fence{ID: -1, Value: 99}
			queueOneFrame(0, fence)

			n.Compose()

			Expect(waiter.waits).To(Equal([][2]uint32{{5, 10}}))
		})

		It("should do nothing when no buffer is queued", func() {
			n.Compose()
			Expect(flipper.Flips()).To(BeEmpty())
		})

		It("should adopt the swap interval of the composed frame", func() {
			Expect(n.GetNextTicks()).To(Equal(int64(2_000_000_000) / 120))

			queueOneFrame(0, nvsync.MultiFence{})
			n.Compose()
			Expect(n.GetNextTicks()).To(Equal(int64(1_000_000_000) / 120))

			queueOneFrame(2, nvsync.MultiFence{})
			n.Compose()
			Expect(n.GetNextTicks()).To(Equal(int64(4_000_000_000) / 120))
		})

		It("should compose from the vsync goroutine", func() {
			queueOneFrame(0, nvsync.MultiFence{})

			n.StartVSync()
			defer n.StopVSync()

			Eventually(func() int {
				return len(flipper.Flips())
			}).Should(Equal(1))
		})

		It("should compose from a rearming timer event", func() {
			loop := clock.NewEventLoop()
			n.AttachEventLoop(loop, 0)

			queueOneFrame(0, nvsync.MultiFence{})

			period := uint64(n.GetNextTicks())
			loop.RunUntil(period)
			Expect(flipper.Flips()).To(HaveLen(1))

			// The event rearms itself for the next period.
			Expect(loop.Pending()).To(Equal(1))

			queueOneFrame(1, nvsync.MultiFence{})
			loop.RunUntil(period * 4)
			Expect(flipper.Flips()).To(HaveLen(2))
		})
	})
})
