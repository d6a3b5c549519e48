package analysis

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nxsim/nxsim/hooking"
	"github.com/nxsim/nxsim/nvflinger"
	"github.com/nxsim/nxsim/queueing"
)

type stubTicks struct {
	now uint64
}

func (s *stubTicks) GetTicks() uint64 {
	return s.now
}

type capturingLogger struct {
	entries []PerfAnalyzerEntry
}

func (l *capturingLogger) AddDataEntry(entry PerfAnalyzerEntry) {
	l.entries = append(l.entries, entry)
}

var _ = Describe("BufferAnalyzer", func() {
	var (
		ticks    *stubTicks
		logger   *capturingLogger
		buf      queueing.Buffer
		analyzer *BufferAnalyzer
	)

	BeforeEach(func() {
		ticks = &stubTicks{}
		logger = &capturingLogger{}
		buf = queueing.NewBuffer("GPU.SubmissionQueue", 8)

		analyzer = MakeBufferAnalyzerBuilder().
			WithTickTeller(ticks).
			WithPerfLogger(logger).
			WithBuffer(buf).
			WithPeriod(100).
			Build()
		buf.AcceptHook(analyzer)
	})

	It("should report the average queue level per period", func() {
		ticks.now = 0
		buf.Push(1)

		ticks.now = 50
		buf.Push(2)

		ticks.now = 120
		buf.Pop()

		Expect(logger.entries).To(HaveLen(1))
		entry := logger.entries[0]
		Expect(entry.StartTicks).To(Equal(uint64(0)))
		Expect(entry.EndTicks).To(Equal(uint64(100)))
		Expect(entry.What).To(Equal("queue_level"))
		// Level 0 for 0 ticks, 1 for 50 ticks, 2 for 50 ticks.
		Expect(entry.Value).To(BeNumerically("~", 1.5, 0.01))
	})

	It("should emit one entry per elapsed period", func() {
		ticks.now = 10
		buf.Push(1)

		ticks.now = 350
		buf.Push(2)

		Expect(logger.entries).To(HaveLen(3))
		Expect(logger.entries[1].StartTicks).To(Equal(uint64(100)))
		Expect(logger.entries[2].Value).To(BeNumerically("~", 1.0, 0.01))
	})
})

var _ = Describe("FrameAnalyzer", func() {
	var (
		ticks    *stubTicks
		logger   *capturingLogger
		analyzer *FrameAnalyzer
	)

	BeforeEach(func() {
		ticks = &stubTicks{}
		logger = &capturingLogger{}

		analyzer = MakeFrameAnalyzerBuilder().
			WithTickTeller(ticks).
			WithPerfLogger(logger).
			WithPeriod(ticksPerSecond).
			Build()
	})

	frame := func() {
		analyzer.Func(hooking.HookCtx{Pos: nvflinger.HookPosFrame})
	}

	It("should report the frame rate per period", func() {
		for i := 0; i < 60; i++ {
			ticks.now = uint64(i) * ticksPerSecond / 60
			frame()
		}

		ticks.now = ticksPerSecond
		frame()

		Expect(logger.entries).To(HaveLen(1))
		Expect(logger.entries[0].What).To(Equal("frame_rate"))
		Expect(logger.entries[0].Unit).To(Equal("fps"))
		Expect(logger.entries[0].Value).To(BeNumerically("~", 60.0, 0.01))
	})

	It("should ignore hooks at other positions", func() {
		analyzer.Func(hooking.HookCtx{Pos: nvflinger.HookPosFrame})
		analyzer.Func(hooking.HookCtx{Pos: queueing.HookPosBufPush})

		ticks.now = ticksPerSecond
		frame()

		Expect(logger.entries[0].Value).To(BeNumerically("~", 1.0, 0.01))
	})
})
