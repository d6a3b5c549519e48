package nvflinger

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nxsim/nxsim/nvsync"
	"github.com/nxsim/nxsim/present"
)

var _ = Describe("BufferQueue", func() {
	var (
		q    *BufferQueue
		igbp IGBPBuffer
	)

	BeforeEach(func() {
		q = NewBufferQueue(1, 1)
		q.Connect()

		igbp = IGBPBuffer{
			Width:       1280,
			Height:      720,
			Stride:      1280,
			Format:      uint32(present.PixelFormatBGRA8),
			NvmapHandle: 7,
		}
		Expect(q.SetPreallocatedBuffer(0, igbp)).To(Succeed())
	})

	It("should walk slot 0 through the full cycle", func() {
		status, _ := q.SlotStatus(0)
		Expect(status).To(Equal(BufferFree))

		slot, _, ok := q.TryDequeueBuffer(1280, 720)
		Expect(ok).To(BeTrue())
		Expect(slot).To(Equal(uint32(0)))
		status, _ = q.SlotStatus(0)
		Expect(status).To(Equal(BufferDequeued))

		desc, err := q.RequestBuffer(slot)
		Expect(err).ToNot(HaveOccurred())
		Expect(desc.NvmapHandle).To(Equal(uint32(7)))

		err = q.QueueBuffer(slot, 0, present.Rect{Right: 1280, Bottom: 720},
			0, nvsync.MultiFence{})
		Expect(err).ToNot(HaveOccurred())
		status, _ = q.SlotStatus(0)
		Expect(status).To(Equal(BufferQueued))

		buf, ok := q.AcquireBuffer()
		Expect(ok).To(BeTrue())
		Expect(buf.Slot).To(Equal(uint32(0)))
		Expect(buf.SwapInterval).To(Equal(uint32(0)))
		status, _ = q.SlotStatus(0)
		Expect(status).To(Equal(BufferAcquired))

		Expect(q.ReleaseBuffer(buf.Slot)).To(Succeed())
		status, _ = q.SlotStatus(0)
		Expect(status).To(Equal(BufferFree))
		Expect(q.QueuedCount()).To(BeZero())
	})

	It("should not hand out a slot twice", func() {
		_, _, ok := q.TryDequeueBuffer(1280, 720)
		Expect(ok).To(BeTrue())

		_, _, ok = q.TryDequeueBuffer(1280, 720)
		Expect(ok).To(BeFalse())
	})

	It("should skip free slots with mismatched dimensions", func() {
		_, _, ok := q.TryDequeueBuffer(1920, 1080)
		Expect(ok).To(BeFalse())
	})

	It("should keep the queued FIFO in submission order", func() {
		Expect(q.SetPreallocatedBuffer(1, igbp)).To(Succeed())

		s0, _, _ := q.TryDequeueBuffer(1280, 720)
		s1, _, _ := q.TryDequeueBuffer(1280, 720)
		Expect(q.QueueBuffer(s1, 0, present.Rect{}, 1, nvsync.MultiFence{})).
			To(Succeed())
		Expect(q.QueueBuffer(s0, 0, present.Rect{}, 1, nvsync.MultiFence{})).
			To(Succeed())

		first, _ := q.AcquireBuffer()
		second, _ := q.AcquireBuffer()
		Expect(first.Slot).To(Equal(s1))
		Expect(second.Slot).To(Equal(s0))
	})

	It("should return a cancelled slot to the free list", func() {
		slot, _, _ := q.TryDequeueBuffer(1280, 720)
		Expect(q.CancelBuffer(slot, nvsync.MultiFence{})).To(Succeed())

		again, _, ok := q.TryDequeueBuffer(1280, 720)
		Expect(ok).To(BeTrue())
		Expect(again).To(Equal(slot))
	})

	It("should reject out-of-order transitions", func() {
		Expect(q.QueueBuffer(0, 0, present.Rect{}, 0, nvsync.MultiFence{})).
			ToNot(Succeed())
		Expect(q.ReleaseBuffer(0)).ToNot(Succeed())
		_, err := q.RequestBuffer(0)
		Expect(err).To(HaveOccurred())
	})

	It("should unblock a dequeuer when a buffer is released", func() {
		slot, _, _ := q.TryDequeueBuffer(1280, 720)
		Expect(q.QueueBuffer(slot, 0, present.Rect{}, 0, nvsync.MultiFence{})).
			To(Succeed())
		buf, _ := q.AcquireBuffer()

		got := make(chan uint32)
		go func() {
			s, _, ok := q.DequeueBuffer(1280, 720)
			Expect(ok).To(BeTrue())
			got <- s
		}()

		Consistently(got).ShouldNot(Receive())

		Expect(q.ReleaseBuffer(buf.Slot)).To(Succeed())
		Eventually(got).Should(Receive(Equal(slot)))
	})

	It("should unblock a dequeuer on disconnect", func() {
		slot, _, _ := q.TryDequeueBuffer(1280, 720)
		Expect(q.QueueBuffer(slot, 0, present.Rect{}, 0, nvsync.MultiFence{})).
			To(Succeed())
		_, _ = q.AcquireBuffer()

		done := make(chan bool)
		go func() {
			_, _, ok := q.DequeueBuffer(1280, 720)
			done <- ok
		}()

		q.Disconnect()
		Eventually(done).Should(Receive(BeFalse()))
	})

	It("should make a held slot dequeueable again after a reconnect", func() {
		slot, _, ok := q.TryDequeueBuffer(1280, 720)
		Expect(ok).To(BeTrue())

		q.Disconnect()
		q.Connect()
		Expect(q.SetPreallocatedBuffer(slot, igbp)).To(Succeed())

		again, _, ok := q.TryDequeueBuffer(1280, 720)
		Expect(ok).To(BeTrue())
		Expect(again).To(Equal(slot))
	})

	It("should answer queries from the primary buffer", func() {
		w, err := q.Query(QueryWidth)
		Expect(err).ToNot(HaveOccurred())
		Expect(w).To(Equal(int32(1280)))

		h, _ := q.Query(QueryHeight)
		Expect(h).To(Equal(int32(720)))

		f, _ := q.Query(QueryFormat)
		Expect(f).To(Equal(int32(present.PixelFormatBGRA8)))
	})
})
