package tracing

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nxsim/nxsim/gpfifo"
	"github.com/nxsim/nxsim/hooking"
)

type recordingTracer struct {
	started []Task
	stepped []Task
	ended   []Task
}

func (t *recordingTracer) StartTask(task Task) {
	t.started = append(t.started, task)
}

func (t *recordingTracer) StepTask(task Task) {
	t.stepped = append(t.stepped, task)
}

func (t *recordingTracer) EndTask(task Task) {
	t.ended = append(t.ended, task)
}

type stubTicks struct {
	now uint64
}

func (s *stubTicks) GetTicks() uint64 {
	return s.now
}

type testDomain struct {
	hooking.HookableBase
	name string
}

func (d *testDomain) Name() string {
	return d.name
}

var _ = Describe("Trace API", func() {
	var (
		domain *testDomain
		tracer *recordingTracer
	)

	BeforeEach(func() {
		domain = &testDomain{name: "GPU.DmaPusher"}
		tracer = &recordingTracer{}
		CollectTrace(domain, tracer)
	})

	It("should forward task events to the tracer", func() {
		StartTask("t1", "", domain, "command_list", "dispatch", nil)
		AddTaskStep("t1", domain, "decoded")
		EndTask("t1", domain)

		Expect(tracer.started).To(HaveLen(1))
		Expect(tracer.started[0].Kind).To(Equal("command_list"))
		Expect(tracer.started[0].Location).To(Equal("GPU.DmaPusher"))
		Expect(tracer.stepped).To(HaveLen(1))
		Expect(tracer.ended).To(HaveLen(1))
		Expect(tracer.ended[0].ID).To(Equal("t1"))
	})

	It("should panic on tasks without a kind", func() {
		Expect(func() {
			StartTask("t1", "", domain, "", "dispatch", nil)
		}).To(Panic())
	})
})

var _ = Describe("TotalTimeTracer", func() {
	It("should accumulate task ticks", func() {
		ticks := &stubTicks{}
		tracer := NewTotalTimeTracer(ticks, nil)

		ticks.now = 100
		tracer.StartTask(Task{ID: "a"})
		ticks.now = 160
		tracer.EndTask(Task{ID: "a"})

		ticks.now = 200
		tracer.StartTask(Task{ID: "b"})
		ticks.now = 240
		tracer.EndTask(Task{ID: "b"})

		Expect(tracer.TotalTicks()).To(Equal(uint64(100)))
	})

	It("should ignore unmatched ends", func() {
		tracer := NewTotalTimeTracer(&stubTicks{}, nil)

		tracer.EndTask(Task{ID: "nope"})

		Expect(tracer.TotalTicks()).To(Equal(uint64(0)))
	})

	It("should honor the filter", func() {
		ticks := &stubTicks{}
		tracer := NewTotalTimeTracer(ticks, func(t Task) bool {
			return t.Kind == "frame"
		})

		tracer.StartTask(Task{ID: "a", Kind: "command_list"})
		ticks.now = 50
		tracer.EndTask(Task{ID: "a"})

		Expect(tracer.TotalTicks()).To(Equal(uint64(0)))
	})
})

var _ = Describe("AverageTimeTracer", func() {
	It("should average task ticks", func() {
		ticks := &stubTicks{}
		tracer := NewAverageTimeTracer(ticks, nil)

		tracer.StartTask(Task{ID: "a"})
		ticks.now = 10
		tracer.EndTask(Task{ID: "a"})

		tracer.StartTask(Task{ID: "b"})
		ticks.now = 40
		tracer.EndTask(Task{ID: "b"})

		Expect(tracer.TotalCount()).To(Equal(uint64(2)))
		Expect(tracer.AverageTicks()).To(Equal(20.0))
	})
})

var _ = Describe("CommandTracer", func() {
	It("should report one task per dispatched command list", func() {
		pusher := gpfifo.NewPusher("GPU.DmaPusher", nil, nil)
		tracer := &recordingTracer{}
		CollectCommandTrace(pusher, tracer)

		pusher.Push(gpfifo.CommandList{})
		pusher.Push(gpfifo.CommandList{})
		pusher.DispatchCalls()

		Expect(tracer.started).To(HaveLen(2))
		Expect(tracer.ended).To(HaveLen(2))
		Expect(tracer.started[0].ID).NotTo(BeEmpty())
		Expect(tracer.started[0].ID).To(Equal(tracer.ended[0].ID))
		Expect(tracer.started[0].Location).To(Equal("GPU.DmaPusher"))
	})
})
