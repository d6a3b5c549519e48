package gpu

import (
	"encoding/binary"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nxsim/nxsim/engines"
	"github.com/nxsim/nxsim/gmmu"
	"github.com/nxsim/nxsim/gpfifo"
	"github.com/nxsim/nxsim/nvsync"
	"github.com/nxsim/nxsim/present"
)

func newSyncGPU() (*GPU, *gmmu.FlatMemory) {
	host := gmmu.NewFlatMemory(64 << 20)
	mem := gmmu.NewManager(host)
	return New(Config{
		Memory:   mem,
		Renderer: present.NewRecordingRenderer(),
	}), host
}

func newAsyncGPU() *GPU {
	mem := gmmu.NewManager(gmmu.NewFlatMemory(64 << 20))
	return New(Config{
		Memory:   mem,
		Renderer: present.NewRecordingRenderer(),
		Async:    true,
	})
}

// writeCommandBuffer stores the words at guest memory offset cpuAddr and
// maps them into the GPU address space, returning a one-entry command
// list pointing at them.
func writeCommandBuffer(
	g *GPU, cpuAddr, gpuAddr uint64, words []uint32,
) gpfifo.CommandList {
	buf := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[4*i:], w)
	}

	mapped := g.Memory().Map(cpuAddr, gpuAddr, uint64(len(buf)))
	Expect(mapped).To(Equal(gpuAddr))
	g.Memory().WriteBlockUnsafe(gpuAddr, buf)

	return gpfifo.CommandList{
		gpfifo.MakeCommandListHeader(gpuAddr, uint64(len(words)), false),
	}
}

var _ = Describe("GPU", func() {
	var (
		g *GPU
	)

	BeforeEach(func() {
		g, _ = newSyncGPU()
	})

	Context("method routing", func() {
		It("should route engine methods to the bound subchannel", func() {
			g.CallMethod(methodBindObject, 2, uint32(engines.EngineMaxwell3D), false)
			g.CallMethod(0x200, 2, 0x1234, true)

			Expect(g.Maxwell3D().Reg(0x200)).To(Equal(uint32(0x1234)))
		})

		It("should rebind a subchannel to a different engine", func() {
			g.CallMethod(methodBindObject, 0, uint32(engines.EngineFermi2D), false)
			g.CallMethod(methodBindObject, 0, uint32(engines.EngineKeplerCompute), false)
			g.CallMethod(0x100, 0, 7, true)

			Expect(g.KeplerCompute().Reg(0x100)).To(Equal(uint32(7)))
			Expect(g.Fermi2D().Reg(0x100)).To(Equal(uint32(0)))
		})

		It("should stream multi-method runs to one register", func() {
			g.CallMethod(methodBindObject, 1, uint32(engines.EngineMaxwell3D), false)
			g.CallMultiMethod(0x300, 1, []uint32{1, 2, 3}, 3)

			Expect(g.Maxwell3D().Reg(0x300)).To(Equal(uint32(3)))
			Expect(g.Maxwell3D().Reg(0x301)).To(Equal(uint32(0)))
			Expect(g.Maxwell3D().Reg(0x302)).To(Equal(uint32(0)))
		})
	})

	Context("semaphores", func() {
		const semAddr = uint64(0x1_0000_0000)

		BeforeEach(func() {
			Expect(g.Memory().Map(0x4000, semAddr, 0x1000)).
				To(Equal(semAddr))
		})

		setSemaphoreAddress := func(addr uint64) {
			g.CallMethod(methodSemaphoreAddrHigh, 0, uint32(addr>>32), false)
			g.CallMethod(methodSemaphoreAddrLow, 0, uint32(addr), false)
		}

		It("should write the 16-byte record on WriteLong", func() {
			setSemaphoreAddress(semAddr)
			g.CallMethod(methodSemaphoreSequence, 0, 0xDEADBEEF, false)
			g.CallMethod(methodSemaphoreTrigger, 0, semaphoreOpWriteLong, true)

			var rec [16]byte
			g.Memory().ReadBlockUnsafe(semAddr, rec[:])

			Expect(binary.LittleEndian.Uint32(rec[0:4])).
				To(Equal(uint32(0xDEADBEEF)))
			Expect(binary.LittleEndian.Uint32(rec[4:8])).
				To(Equal(uint32(0)))
		})

		It("should write the release value", func() {
			setSemaphoreAddress(semAddr)
			g.CallMethod(methodSemaphoreRelease, 0, 42, true)

			v, err := g.Memory().ReadUint32(semAddr)
			Expect(err).ToNot(HaveOccurred())
			Expect(v).To(Equal(uint32(42)))
		})

		It("should pass an AcquireGequal across 32-bit wrap", func() {
			setSemaphoreAddress(semAddr)
			Expect(g.Memory().WriteUint32(semAddr, 2)).To(Succeed())

			g.CallMethod(methodSemaphoreSequence, 0, 0xFFFFFFF0, false)
			g.CallMethod(methodSemaphoreTrigger, 0, semaphoreOpAcquireGequal, true)

			Expect(g.regs.acquireActive).To(BeFalse())
		})
	})

	Context("fences", func() {
		It("should treat value zero and the null syncpoint as signalled", func() {
			done := make(chan struct{})
			go func() {
				g.WaitFence(3, 0)
				g.WaitFence(nvsync.NoSyncpoint, 99)
				close(done)
			}()
			Eventually(done).Should(BeClosed())
		})

		It("should not block in sync mode, where submissions are inline", func() {
			done := make(chan struct{})
			go func() {
				g.WaitFence(5, 1)
				close(done)
			}()
			Eventually(done).Should(BeClosed())
		})

		It("should release a waiter once the counter reaches the value", func() {
			a := newAsyncGPU()
			defer a.ShutDown()

			done := make(chan struct{})
			go func() {
				a.WaitFence(5, 3)
				close(done)
			}()

			a.IncrementSyncpoint(5)
			a.IncrementSyncpoint(5)
			Consistently(done).ShouldNot(BeClosed())

			a.IncrementSyncpoint(5)
			Eventually(done).Should(BeClosed())
		})

		It("should release all waiters on shutdown", func() {
			a := newAsyncGPU()

			var wg sync.WaitGroup
			for i := 0; i < 4; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					a.WaitFence(1, 1000)
				}()
			}

			done := make(chan struct{})
			go func() {
				wg.Wait()
				close(done)
			}()

			a.ShutDown()
			Eventually(done).Should(BeClosed())
		})

		It("should mirror increments into the driver-side counters", func() {
			g.IncrementSyncpoint(7)
			g.IncrementSyncpoint(7)

			Expect(g.SyncpointManager().GetSyncpointMax(7)).
				To(Equal(uint32(2)))
			Expect(g.SyncpointManager().RefreshMin(7)).
				To(Equal(uint32(2)))
			Expect(g.SyncpointManager().IsExpired(7, 2)).To(BeTrue())
		})
	})

	Context("syncpoint interrupts", func() {
		It("should fire a registered interrupt when the value is reached", func() {
			var fired [][2]uint32
			g.SetInterruptHandler(func(id, value uint32) {
				fired = append(fired, [2]uint32{id, value})
			})

			Expect(g.RegisterSyncptInterrupt(4, 2)).To(BeTrue())

			g.IncrementSyncpoint(4)
			Expect(fired).To(BeEmpty())

			g.IncrementSyncpoint(4)
			Expect(fired).To(Equal([][2]uint32{{4, 2}}))

			g.IncrementSyncpoint(4)
			Expect(fired).To(HaveLen(1))
		})

		It("should reject a duplicate registration", func() {
			Expect(g.RegisterSyncptInterrupt(4, 2)).To(BeTrue())
			Expect(g.RegisterSyncptInterrupt(4, 2)).To(BeFalse())
		})

		It("should cancel an armed interrupt", func() {
			var fired int
			g.SetInterruptHandler(func(id, value uint32) { fired++ })

			Expect(g.RegisterSyncptInterrupt(4, 1)).To(BeTrue())
			Expect(g.CancelSyncptInterrupt(4, 1)).To(BeTrue())
			Expect(g.CancelSyncptInterrupt(4, 1)).To(BeFalse())

			g.IncrementSyncpoint(4)
			Expect(fired).To(BeZero())
		})
	})

	Context("flush requests", func() {
		It("should publish the fence after TickWork", func() {
			f1 := g.RequestFlush(0x1000, 0x100)
			f2 := g.RequestFlush(0x2000, 0x100)
			Expect(f2).To(Equal(f1 + 1))
			Expect(g.CurrentFlushRequestFence()).To(BeZero())

			g.TickWork()
			Expect(g.CurrentFlushRequestFence()).To(Equal(f2))
		})
	})

	Context("command list dispatch", func() {
		It("should execute a mapped command list inline", func() {
			words := []uint32{
				uint32(gpfifo.MakeCommandHeader(
					methodBindObject, 1, 3, gpfifo.ModeIncreasing)),
				uint32(engines.EngineMaxwell3D),
				uint32(gpfifo.MakeCommandHeader(
					0x6C0, 1, 3, gpfifo.ModeIncreasing)),
				0xCAFE,
			}
			list := writeCommandBuffer(g, 0x8000, 0x2_0000_0000, words)

			g.PushGPUEntries(list)

			Expect(g.Maxwell3D().Reg(0x6C0)).To(Equal(uint32(0xCAFE)))
		})
	})
})

var _ = Describe("GPU with async worker", func() {
	var (
		g *GPU
	)

	BeforeEach(func() {
		host := gmmu.NewFlatMemory(64 << 20)
		g = New(Config{
			Memory:   gmmu.NewManager(host),
			Renderer: present.NewRecordingRenderer(),
			Async:    true,
		})
	})

	AfterEach(func() {
		g.ShutDown()
	})

	It("should dispatch a submission on the worker", func() {
		words := []uint32{
			uint32(gpfifo.MakeCommandHeader(
				methodBindObject, 1, 0, gpfifo.ModeIncreasing)),
			uint32(engines.EngineFermi2D),
			uint32(gpfifo.MakeCommandHeader(
				0x80, 1, 0, gpfifo.ModeIncreasing)),
			5,
		}
		list := writeCommandBuffer(g, 0x8000, 0x2_0000_0000, words)

		g.PushGPUEntries(list)
		g.WaitIdle()

		Expect(g.Fermi2D().Reg(0x80)).To(Equal(uint32(5)))
	})

	It("should block a submitted fence acquire until the host increments", func() {
		const syncpt = 12

		words := []uint32{
			uint32(gpfifo.MakeCommandHeader(
				methodFenceValue, 1, 0, gpfifo.ModeIncreasing)),
			10,
			uint32(gpfifo.MakeCommandHeader(
				methodFenceAction, 1, 0, gpfifo.ModeIncreasing)),
			BuildFenceAction(FenceOpAcquire, syncpt),
			uint32(gpfifo.MakeCommandHeader(
				0x80, 1, 0, gpfifo.ModeIncreasing)),
			0xAB,
		}
		list := writeCommandBuffer(g, 0x8000, 0x2_0000_0000, words)
		g.CallMethod(methodBindObject, 0, uint32(engines.EngineFermi2D), false)

		g.PushGPUEntries(list)

		idle := make(chan struct{})
		go func() {
			g.WaitIdle()
			close(idle)
		}()

		Consistently(idle).ShouldNot(BeClosed())
		Expect(g.Fermi2D().Reg(0x80)).To(Equal(uint32(0)))

		for i := 0; i < 10; i++ {
			g.IncrementSyncpoint(syncpt)
		}

		Eventually(idle).Should(BeClosed())
		Expect(g.Fermi2D().Reg(0x80)).To(Equal(uint32(0xAB)))
	})

	It("should forward swaps through the worker in order", func() {
		renderer := present.NewRecordingRenderer()
		host := gmmu.NewFlatMemory(1 << 20)
		g2 := New(Config{
			Memory:   gmmu.NewManager(host),
			Renderer: renderer,
			Async:    true,
		})
		defer g2.ShutDown()

		g2.SwapBuffers(&present.FramebufferConfig{Width: 1280, Height: 720})
		g2.SwapBuffers(nil)
		g2.WaitIdle()

		Expect(renderer.FrameCount()).To(Equal(1))
		Expect(renderer.Repeats()).To(Equal(1))
	})
})
