// Package analysis derives performance metrics, such as frame rates and
// queue levels, from the hooks of a running emulation, and stores them
// through the datarecording backend.
package analysis

import (
	"github.com/tebeka/atexit"

	"github.com/nxsim/nxsim/datarecording"
	"github.com/nxsim/nxsim/gpu"
	"github.com/nxsim/nxsim/nvflinger"
	"github.com/nxsim/nxsim/queueing"
	"github.com/nxsim/nxsim/tracing"
)

// PerfAnalyzerEntry is a single entry in the performance database.
type PerfAnalyzerEntry struct {
	StartTicks uint64
	EndTicks   uint64
	Where      string
	What       string
	Value      float64
	Unit       string
}

// PerfLogger is the interface that provides the service that can record
// performance data entries.
type PerfLogger interface {
	AddDataEntry(entry PerfAnalyzerEntry)
}

// PerfAnalyzer reports performance metrics of a running emulation. It
// aggregates per analysis period and writes one entry per metric per period.
type PerfAnalyzer struct {
	period     uint64
	tickTeller tracing.TickTeller
	backend    datarecording.DataRecorder
}

// AddDataEntry adds a data entry to the performance database.
func (p *PerfAnalyzer) AddDataEntry(entry PerfAnalyzerEntry) {
	p.backend.InsertData("perf", entry)
}

// RegisterBuffer registers a queue whose fill level is tracked.
func (p *PerfAnalyzer) RegisterBuffer(buf queueing.Buffer) {
	bufferAnalyzer := MakeBufferAnalyzerBuilder().
		WithTickTeller(p.tickTeller).
		WithPerfLogger(p).
		WithBuffer(buf).
		WithPeriod(p.period).
		Build()

	buf.AcceptHook(bufferAnalyzer)
}

// RegisterGPU registers the GPU whose per-engine method rates are tracked.
func (p *PerfAnalyzer) RegisterGPU(g *gpu.GPU) {
	engineAnalyzer := MakeEngineAnalyzerBuilder().
		WithTickTeller(p.tickTeller).
		WithPerfLogger(p).
		WithPeriod(p.period).
		Build()

	g.AcceptHook(engineAnalyzer)
}

// RegisterNVFlinger registers the compositor whose frame rate is tracked.
func (p *PerfAnalyzer) RegisterNVFlinger(f *nvflinger.NVFlinger) {
	frameAnalyzer := MakeFrameAnalyzerBuilder().
		WithTickTeller(p.tickTeller).
		WithPerfLogger(p).
		WithPeriod(p.period).
		Build()

	f.AcceptHook(frameAnalyzer)
}

// PerfAnalyzerBuilder builds a PerfAnalyzer.
type PerfAnalyzerBuilder struct {
	period     uint64
	tickTeller tracing.TickTeller
	backend    datarecording.DataRecorder
}

// MakePerfAnalyzerBuilder creates a new PerfAnalyzerBuilder.
func MakePerfAnalyzerBuilder() PerfAnalyzerBuilder {
	return PerfAnalyzerBuilder{
		// One period of the 614.4 MHz tick clock is roughly 100 ms.
		period: 61440000,
	}
}

// WithPeriod sets the analysis period in GPU ticks.
func (b PerfAnalyzerBuilder) WithPeriod(period uint64) PerfAnalyzerBuilder {
	b.period = period
	return b
}

// WithTickTeller sets the tick source used for timestamps.
func (b PerfAnalyzerBuilder) WithTickTeller(
	t tracing.TickTeller,
) PerfAnalyzerBuilder {
	b.tickTeller = t
	return b
}

// WithDataRecorder sets the backend that stores the entries.
func (b PerfAnalyzerBuilder) WithDataRecorder(
	r datarecording.DataRecorder,
) PerfAnalyzerBuilder {
	b.backend = r
	return b
}

// Build creates a PerfAnalyzer.
func (b PerfAnalyzerBuilder) Build() *PerfAnalyzer {
	if b.tickTeller == nil {
		panic("perf analyzer requires a tick teller")
	}

	if b.backend == nil {
		panic("perf analyzer requires a data recorder")
	}

	b.backend.CreateTable("perf", PerfAnalyzerEntry{})

	p := &PerfAnalyzer{
		period:     b.period,
		tickTeller: b.tickTeller,
		backend:    b.backend,
	}

	atexit.Register(func() { p.backend.Flush() })

	return p
}
