package nvsync

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("SyncpointManager", func() {
	var m *SyncpointManager

	BeforeEach(func() {
		m = NewSyncpointManager()
	})

	It("should allocate the lowest free slot", func() {
		id0, err := m.Allocate()
		Expect(err).ToNot(HaveOccurred())
		Expect(id0).To(Equal(uint32(0)))

		id1, err := m.Allocate()
		Expect(err).ToNot(HaveOccurred())
		Expect(id1).To(Equal(uint32(1)))

		Expect(m.IsAllocated(id0)).To(BeTrue())
		Expect(m.IsAllocated(2)).To(BeFalse())
	})

	It("should fail to allocate when all slots are taken", func() {
		for i := 0; i < NumSyncpoints; i++ {
			_, err := m.Allocate()
			Expect(err).ToNot(HaveOccurred())
		}

		_, err := m.Allocate()
		Expect(err).To(HaveOccurred())
	})

	It("should return the post-increment max", func() {
		Expect(m.IncreaseMax(3, 5)).To(Equal(uint32(5)))
		Expect(m.IncreaseMax(3, 2)).To(Equal(uint32(7)))
		Expect(m.GetSyncpointMax(3)).To(Equal(uint32(7)))
	})

	It("should track min separately from max", func() {
		m.IncreaseMax(4, 2)
		Expect(m.RefreshMin(4)).To(Equal(uint32(0)))
		Expect(m.IncrementMin(4)).To(Equal(uint32(1)))
		Expect(m.RefreshMin(4)).To(Equal(uint32(1)))
	})

	It("should report expiry once min passes a value", func() {
		m.IncreaseMax(1, 3)

		Expect(m.IsExpired(1, 0)).To(BeTrue())
		Expect(m.IsExpired(1, 1)).To(BeFalse())

		m.IncrementMin(1)
		Expect(m.IsExpired(1, 1)).To(BeTrue())
		Expect(m.IsExpired(1, 3)).To(BeFalse())
	})

	It("should retire increments, raising max only when unreserved", func() {
		m.IncrementSyncpoint(6)
		m.IncrementSyncpoint(6)

		Expect(m.RefreshMin(6)).To(Equal(uint32(2)))
		Expect(m.GetSyncpointMax(6)).To(Equal(uint32(2)))
		Expect(m.IsExpired(6, 2)).To(BeTrue())

		m.IncreaseMax(6, 3)
		m.IncrementSyncpoint(6)

		// The reservation already covers this retirement.
		Expect(m.RefreshMin(6)).To(Equal(uint32(3)))
		Expect(m.GetSyncpointMax(6)).To(Equal(uint32(5)))
		Expect(m.IsExpired(6, 3)).To(BeTrue())
		Expect(m.IsExpired(6, 4)).To(BeFalse())
	})

	It("should stay correct across 32-bit wrap", func() {
		// Park min and max just below the wrap point, then step over it.
		m.syncpoints[2].max.Store(0xFFFFFFFE)
		m.syncpoints[2].min.Store(0xFFFFFFFE)

		Expect(m.GetSyncpointMax(2)).To(Equal(uint32(0xFFFFFFFE)))
		Expect(m.IsExpired(2, 0xFFFFFFFE)).To(BeTrue())

		m.IncreaseMax(2, 4) // max wraps to 2
		Expect(m.IsExpired(2, 1)).To(BeFalse())

		m.syncpoints[2].min.Add(3) // min wraps to 1
		Expect(m.IsExpired(2, 1)).To(BeTrue())
		Expect(m.IsExpired(2, 2)).To(BeFalse())
	})
})
