package nvsync

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type recordingSink struct {
	calls []uint32
}

func (s *recordingSink) IncrementSyncpoint(id uint32) {
	s.calls = append(s.calls, id)
}

var _ = Describe("DeferredManager", func() {
	var (
		sink *recordingSink
		d    *DeferredManager
	)

	BeforeEach(func() {
		sink = &recordingSink{}
		d = NewDeferredManager(sink, NewSyncpointManager())
	})

	It("should apply an already-complete increment immediately", func() {
		d.Increment(9)

		Expect(sink.calls).To(Equal([]uint32{9}))
		Expect(d.Pending()).To(Equal(0))
	})

	It("should hold an increment until its handle is signalled", func() {
		h := d.IncrementWhenDone(0x1, 5)

		Expect(sink.calls).To(BeEmpty())
		Expect(d.Pending()).To(Equal(1))

		d.SignalDone(h)
		Expect(sink.calls).To(Equal([]uint32{5}))
	})

	It("should apply increments in enqueue order regardless of signal order", func() {
		h1 := d.IncrementWhenDone(0x1, 7)
		h2 := d.IncrementWhenDone(0x1, 7)
		h3 := d.IncrementWhenDone(0x1, 7)

		d.SignalDone(h2)
		Expect(sink.calls).To(BeEmpty())

		d.SignalDone(h3)
		Expect(sink.calls).To(BeEmpty())

		// h1 unblocks the head; h2 and h3 drain in the same pass.
		d.SignalDone(h1)
		Expect(sink.calls).To(Equal([]uint32{7, 7, 7}))
		Expect(d.Pending()).To(Equal(0))
	})

	It("should drive a syncpoint manager to the expected value", func() {
		m := NewSyncpointManager()
		dm := NewDeferredManager(m, m)

		h1 := dm.IncrementWhenDone(0x1, 7)
		h2 := dm.IncrementWhenDone(0x1, 7)
		h3 := dm.IncrementWhenDone(0x1, 7)

		// The max values are reserved at enqueue time; min only advances
		// as the increments retire in order.
		Expect(m.GetSyncpointMax(7)).To(Equal(uint32(3)))
		Expect(m.RefreshMin(7)).To(Equal(uint32(0)))
		Expect(m.IsExpired(7, 1)).To(BeFalse())

		dm.SignalDone(h2)
		dm.SignalDone(h3)
		Expect(m.RefreshMin(7)).To(Equal(uint32(0)))

		dm.SignalDone(h1)
		Expect(m.GetSyncpointMax(7)).To(Equal(uint32(3)))
		Expect(m.RefreshMin(7)).To(Equal(uint32(3)))
		Expect(m.IsExpired(7, 3)).To(BeTrue())
	})

	It("should interleave complete and gated increments correctly", func() {
		h := d.IncrementWhenDone(0x1, 2)
		d.Increment(3)

		// The gated head blocks the complete one behind it.
		Expect(sink.calls).To(BeEmpty())

		d.SignalDone(h)
		Expect(sink.calls).To(Equal([]uint32{2, 3}))
	})

	It("should ignore signals for unknown handles", func() {
		d.SignalDone(0xBEEF)
		Expect(sink.calls).To(BeEmpty())
	})
})
