package services

import (
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/nxsim/nxsim/nvdrv"
	"github.com/nxsim/nxsim/present"
)

var _ = Describe("Emulation", func() {
	var emulation *Emulation

	BeforeEach(func() {
		emulation = MakeBuilder().
			WithoutMonitoring().
			WithOutputFileName("test_emulation").
			Build()
	})

	AfterEach(func() {
		emulation.Terminate()
		os.Remove("test_emulation.sqlite3")
	})

	It("should wire all device nodes into the driver", func() {
		names := []string{
			"/dev/nvhost-ctrl",
			"/dev/nvmap",
			"/dev/nvhost-as-gpu",
			"/dev/nvhost-gpu",
			"/dev/nvdisp_disp0",
		}

		for _, name := range names {
			fd, result := emulation.Driver().Open(name)
			Expect(result).To(Equal(nvdrv.ResultSuccess))
			Expect(fd).NotTo(BeZero())
		}
	})

	It("should share one syncpoint manager between GPU and devices", func() {
		id, err := emulation.GPU().SyncpointManager().Allocate()
		Expect(err).NotTo(HaveOccurred())

		emulation.GPU().IncrementSyncpoint(id)

		max := emulation.GPU().SyncpointManager().GetSyncpointMax(id)
		Expect(max).To(Equal(uint32(1)))
	})

	It("should register components by name", func() {
		emulation.RegisterComponent(emulation.GPU().DmaPusher())

		Expect(emulation.GetComponentByName("GPU.DmaPusher")).
			To(Equal(emulation.GPU().DmaPusher()))
		Expect(emulation.Components()).To(HaveLen(1))
		Expect(emulation.GetComponentByName("nope")).To(BeNil())
	})

	It("should reject duplicate components", func() {
		emulation.RegisterComponent(emulation.GPU().DmaPusher())

		Expect(func() {
			emulation.RegisterComponent(emulation.GPU().DmaPusher())
		}).To(Panic())
	})

	It("should record dispatched command lists in the trace", func() {
		tracer := emulation.GetVisTracer()
		tracer.EnableTracing()

		emulation.GPU().PushCommandBuffer([]uint32{})
		emulation.GPU().DmaPusher().Push(nil)
		emulation.GPU().DmaPusher().DispatchCalls()

		tracer.StopTracing()
	})
})

var _ = Describe("Builder", func() {
	It("should reject a monitor port without monitoring", func() {
		Expect(func() {
			MakeBuilder().
				WithoutMonitoring().
				WithMonitorPort(8080).
				Build()
		}).To(Panic())
	})

	It("should pass frames to a custom renderer", func() {
		mockCtrl := gomock.NewController(GinkgoT())
		defer mockCtrl.Finish()

		rasterizer := present.NewMockRasterizer(mockCtrl)
		rasterizer.EXPECT().FlushCommands().AnyTimes()

		renderer := present.NewMockRenderer(mockCtrl)
		renderer.EXPECT().Rasterizer().Return(rasterizer).AnyTimes()
		renderer.EXPECT().SwapBuffers(gomock.Nil())

		emulation := MakeBuilder().
			WithoutMonitoring().
			WithRenderer(renderer).
			WithOutputFileName("test_builder").
			Build()
		defer os.Remove("test_builder.sqlite3")
		defer emulation.Terminate()

		emulation.GPU().SwapBuffers(nil)
	})
})
