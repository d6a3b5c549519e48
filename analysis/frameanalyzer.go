package analysis

import (
	"github.com/nxsim/nxsim/hooking"
	"github.com/nxsim/nxsim/nvflinger"
	"github.com/nxsim/nxsim/tracing"
)

// ticksPerSecond is the rate of the 614.4 MHz GPU tick clock.
const ticksPerSecond = 614400000

// FrameAnalyzer records the frame rate of the compositor, one entry per
// analysis period.
type FrameAnalyzer struct {
	PerfLogger
	tracing.TickTeller

	period uint64

	periodStart uint64
	frameCount  uint64
}

// Func counts presented frames.
func (a *FrameAnalyzer) Func(ctx hooking.HookCtx) {
	if ctx.Pos != nvflinger.HookPosFrame {
		return
	}

	now := a.GetTicks()

	for now >= a.periodStart+a.period {
		a.closePeriod()
	}

	a.frameCount++
}

// closePeriod summarizes one full period and advances the period window.
func (a *FrameAnalyzer) closePeriod() {
	periodEnd := a.periodStart + a.period

	fps := float64(a.frameCount) * ticksPerSecond / float64(a.period)

	a.AddDataEntry(PerfAnalyzerEntry{
		StartTicks: a.periodStart,
		EndTicks:   periodEnd,
		Where:      "NVFlinger",
		What:       "frame_rate",
		Value:      fps,
		Unit:       "fps",
	})

	a.frameCount = 0
	a.periodStart = periodEnd
}

// FrameAnalyzerBuilder builds a FrameAnalyzer.
type FrameAnalyzerBuilder struct {
	perfLogger PerfLogger
	tickTeller tracing.TickTeller
	period     uint64
}

// MakeFrameAnalyzerBuilder creates a new FrameAnalyzerBuilder.
func MakeFrameAnalyzerBuilder() FrameAnalyzerBuilder {
	return FrameAnalyzerBuilder{period: 61440000}
}

// WithPerfLogger sets the logger that stores the entries.
func (b FrameAnalyzerBuilder) WithPerfLogger(
	l PerfLogger,
) FrameAnalyzerBuilder {
	b.perfLogger = l
	return b
}

// WithTickTeller sets the tick source used for timestamps.
func (b FrameAnalyzerBuilder) WithTickTeller(
	t tracing.TickTeller,
) FrameAnalyzerBuilder {
	b.tickTeller = t
	return b
}

// WithPeriod sets the analysis period in GPU ticks.
func (b FrameAnalyzerBuilder) WithPeriod(period uint64) FrameAnalyzerBuilder {
	b.period = period
	return b
}

// Build creates a FrameAnalyzer.
func (b FrameAnalyzerBuilder) Build() *FrameAnalyzer {
	if b.perfLogger == nil || b.tickTeller == nil {
		panic("frame analyzer requires a logger and a tick teller")
	}

	return &FrameAnalyzer{
		PerfLogger: b.perfLogger,
		TickTeller: b.tickTeller,
		period:     b.period,
	}
}
