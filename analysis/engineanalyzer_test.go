package analysis

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nxsim/nxsim/engines"
	"github.com/nxsim/nxsim/gpu"
	"github.com/nxsim/nxsim/hooking"
	"github.com/nxsim/nxsim/queueing"
)

var _ = Describe("EngineAnalyzer", func() {
	var (
		ticks    *stubTicks
		logger   *capturingLogger
		analyzer *EngineAnalyzer
	)

	BeforeEach(func() {
		ticks = &stubTicks{}
		logger = &capturingLogger{}

		analyzer = MakeEngineAnalyzerBuilder().
			WithTickTeller(ticks).
			WithPerfLogger(logger).
			WithPeriod(ticksPerSecond).
			Build()
	})

	method := func(id engines.EngineID) {
		analyzer.Func(hooking.HookCtx{
			Pos:    gpu.HookPosMethodCall,
			Detail: id,
		})
	}

	It("should report the method rate per engine per period", func() {
		for i := 0; i < 100; i++ {
			method(engines.EngineMaxwell3D)
		}
		method(engines.EngineMaxwellDMA)

		ticks.now = ticksPerSecond
		method(engines.EngineMaxwell3D)

		Expect(logger.entries).To(HaveLen(2))

		rates := make(map[string]float64)
		for _, entry := range logger.entries {
			Expect(entry.What).To(Equal("method_rate"))
			Expect(entry.Unit).To(Equal("methods/s"))
			rates[entry.Where] = entry.Value
		}
		Expect(rates["GPU.Maxwell3D"]).To(BeNumerically("~", 100.0, 0.01))
		Expect(rates["GPU.MaxwellDMA"]).To(BeNumerically("~", 1.0, 0.01))
	})

	It("should ignore hooks at other positions", func() {
		analyzer.Func(hooking.HookCtx{Pos: queueing.HookPosBufPush})

		ticks.now = ticksPerSecond
		method(engines.EngineMaxwell3D)

		Expect(logger.entries).To(BeEmpty())
	})
})
