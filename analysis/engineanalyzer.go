package analysis

import (
	"github.com/nxsim/nxsim/engines"
	"github.com/nxsim/nxsim/gpu"
	"github.com/nxsim/nxsim/hooking"
	"github.com/nxsim/nxsim/tracing"
)

// EngineAnalyzer records how many methods each engine class receives, one
// entry per engine per analysis period.
type EngineAnalyzer struct {
	PerfLogger
	tracing.TickTeller

	period uint64

	periodStart  uint64
	methodCounts map[engines.EngineID]uint64
}

// Func counts routed methods.
func (a *EngineAnalyzer) Func(ctx hooking.HookCtx) {
	if ctx.Pos != gpu.HookPosMethodCall {
		return
	}

	now := a.GetTicks()

	for now >= a.periodStart+a.period {
		a.closePeriod()
	}

	a.methodCounts[ctx.Detail.(engines.EngineID)]++
}

// closePeriod summarizes one full period and advances the period window.
func (a *EngineAnalyzer) closePeriod() {
	periodEnd := a.periodStart + a.period

	for id, count := range a.methodCounts {
		rate := float64(count) * ticksPerSecond / float64(a.period)

		a.AddDataEntry(PerfAnalyzerEntry{
			StartTicks: a.periodStart,
			EndTicks:   periodEnd,
			Where:      "GPU." + id.String(),
			What:       "method_rate",
			Value:      rate,
			Unit:       "methods/s",
		})

		delete(a.methodCounts, id)
	}

	a.periodStart = periodEnd
}

// EngineAnalyzerBuilder builds an EngineAnalyzer.
type EngineAnalyzerBuilder struct {
	perfLogger PerfLogger
	tickTeller tracing.TickTeller
	period     uint64
}

// MakeEngineAnalyzerBuilder creates a new EngineAnalyzerBuilder.
func MakeEngineAnalyzerBuilder() EngineAnalyzerBuilder {
	return EngineAnalyzerBuilder{period: 61440000}
}

// WithPerfLogger sets the logger that stores the entries.
func (b EngineAnalyzerBuilder) WithPerfLogger(
	l PerfLogger,
) EngineAnalyzerBuilder {
	b.perfLogger = l
	return b
}

// WithTickTeller sets the tick source used for timestamps.
func (b EngineAnalyzerBuilder) WithTickTeller(
	t tracing.TickTeller,
) EngineAnalyzerBuilder {
	b.tickTeller = t
	return b
}

// WithPeriod sets the analysis period in GPU ticks.
func (b EngineAnalyzerBuilder) WithPeriod(period uint64) EngineAnalyzerBuilder {
	b.period = period
	return b
}

// Build creates an EngineAnalyzer.
func (b EngineAnalyzerBuilder) Build() *EngineAnalyzer {
	if b.perfLogger == nil || b.tickTeller == nil {
		panic("engine analyzer requires a logger and a tick teller")
	}

	return &EngineAnalyzer{
		PerfLogger:   b.perfLogger,
		TickTeller:   b.tickTeller,
		period:       b.period,
		methodCounts: make(map[engines.EngineID]uint64),
	}
}
