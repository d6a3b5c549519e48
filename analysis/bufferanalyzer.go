package analysis

import (
	"github.com/nxsim/nxsim/hooking"
	"github.com/nxsim/nxsim/queueing"
	"github.com/nxsim/nxsim/tracing"
)

// BufferAnalyzer records the time-weighted average fill level of a queue,
// one entry per analysis period.
type BufferAnalyzer struct {
	PerfLogger
	tracing.TickTeller

	buf    queueing.Buffer
	period uint64

	periodStart        uint64
	lastTicks          uint64
	lastBufLevel       int
	bufLevelToDuration map[int]uint64
}

// Func records a buffer level change.
func (b *BufferAnalyzer) Func(ctx hooking.HookCtx) {
	if ctx.Pos != queueing.HookPosBufPush && ctx.Pos != queueing.HookPosBufPop {
		return
	}

	now := b.GetTicks()

	for now >= b.periodStart+b.period {
		b.closePeriod()
	}

	b.bufLevelToDuration[b.lastBufLevel] += now - b.lastTicks
	b.lastBufLevel = b.buf.Size()
	b.lastTicks = now
}

// closePeriod summarizes one full period and advances the period window.
func (b *BufferAnalyzer) closePeriod() {
	periodEnd := b.periodStart + b.period

	b.bufLevelToDuration[b.lastBufLevel] += periodEnd - b.lastTicks

	sumLevel := 0.0
	sumDuration := 0.0
	for level, duration := range b.bufLevelToDuration {
		sumLevel += float64(level) * float64(duration)
		sumDuration += float64(duration)
	}

	avgLevel := 0.0
	if sumDuration > 0 {
		avgLevel = sumLevel / sumDuration
	}

	b.AddDataEntry(PerfAnalyzerEntry{
		StartTicks: b.periodStart,
		EndTicks:   periodEnd,
		Where:      b.buf.Name(),
		What:       "queue_level",
		Value:      avgLevel,
		Unit:       "entries",
	})

	b.bufLevelToDuration = make(map[int]uint64)
	b.periodStart = periodEnd
	b.lastTicks = periodEnd
}

// BufferAnalyzerBuilder builds a BufferAnalyzer.
type BufferAnalyzerBuilder struct {
	perfLogger PerfLogger
	tickTeller tracing.TickTeller
	buf        queueing.Buffer
	period     uint64
}

// MakeBufferAnalyzerBuilder creates a new BufferAnalyzerBuilder.
func MakeBufferAnalyzerBuilder() BufferAnalyzerBuilder {
	return BufferAnalyzerBuilder{period: 61440000}
}

// WithPerfLogger sets the logger that stores the entries.
func (b BufferAnalyzerBuilder) WithPerfLogger(
	l PerfLogger,
) BufferAnalyzerBuilder {
	b.perfLogger = l
	return b
}

// WithTickTeller sets the tick source used for timestamps.
func (b BufferAnalyzerBuilder) WithTickTeller(
	t tracing.TickTeller,
) BufferAnalyzerBuilder {
	b.tickTeller = t
	return b
}

// WithBuffer sets the queue to analyze.
func (b BufferAnalyzerBuilder) WithBuffer(
	buf queueing.Buffer,
) BufferAnalyzerBuilder {
	b.buf = buf
	return b
}

// WithPeriod sets the analysis period in GPU ticks.
func (b BufferAnalyzerBuilder) WithPeriod(period uint64) BufferAnalyzerBuilder {
	b.period = period
	return b
}

// Build creates a BufferAnalyzer.
func (b BufferAnalyzerBuilder) Build() *BufferAnalyzer {
	if b.perfLogger == nil || b.tickTeller == nil || b.buf == nil {
		panic("buffer analyzer requires a logger, a tick teller, and a buffer")
	}

	return &BufferAnalyzer{
		PerfLogger:         b.perfLogger,
		TickTeller:         b.tickTeller,
		buf:                b.buf,
		period:             b.period,
		bufLevelToDuration: make(map[int]uint64),
	}
}
