package services

import (
	"github.com/rs/xid"

	"github.com/nxsim/nxsim/analysis"
	"github.com/nxsim/nxsim/datarecording"
	"github.com/nxsim/nxsim/gmmu"
	"github.com/nxsim/nxsim/gpu"
	"github.com/nxsim/nxsim/monitoring"
	"github.com/nxsim/nxsim/nvdrv"
	"github.com/nxsim/nxsim/nvflinger"
	"github.com/nxsim/nxsim/nvmap"
	"github.com/nxsim/nxsim/present"
	"github.com/nxsim/nxsim/tracing"
)

// Builder can be used to build an emulation.
type Builder struct {
	renderer       present.Renderer
	memorySize     uint64
	asyncGPU       bool
	fastTicks      bool
	analysisOn     bool
	monitorOn      bool
	monitorPort    int
	outputFileName string
}

// MakeBuilder creates a new builder.
func MakeBuilder() Builder {
	return Builder{
		memorySize: 256 << 20,
		monitorOn:  true,
	}
}

// WithRenderer sets the renderer backend that presents frames.
func (b Builder) WithRenderer(r present.Renderer) Builder {
	b.renderer = r
	return b
}

// WithMemorySize sets the size of the emulated guest memory.
func (b Builder) WithMemorySize(size uint64) Builder {
	b.memorySize = size
	return b
}

// WithAsyncGPU moves command-list dispatch onto a worker goroutine.
func (b Builder) WithAsyncGPU() Builder {
	b.asyncGPU = true
	return b
}

// WithFastTicks divides the GPU tick clock by 256.
func (b Builder) WithFastTicks() Builder {
	b.fastTicks = true
	return b
}

// WithPerfAnalysis enables the periodic performance analyzers. They record
// queue levels, frame rates, and per-engine method rates into the output
// database.
func (b Builder) WithPerfAnalysis() Builder {
	b.analysisOn = true
	return b
}

// WithoutMonitoring disables the monitoring server.
func (b Builder) WithoutMonitoring() Builder {
	b.monitorOn = false
	return b
}

// WithMonitorPort sets the port number for the monitoring server.
func (b Builder) WithMonitorPort(port int) Builder {
	b.monitorPort = port
	return b
}

// WithOutputFileName sets the custom output file name for the data recorder.
func (b Builder) WithOutputFileName(filename string) Builder {
	b.outputFileName = filename
	return b
}

func (b Builder) parametersMustBeValid() {
	if !b.monitorOn && b.monitorPort != 0 {
		panic("monitor port cannot be set when monitoring is disabled")
	}
}

// Build builds the emulation.
func (b Builder) Build() *Emulation {
	b.parametersMustBeValid()

	e := &Emulation{
		compNameIndex: make(map[string]int),
	}

	e.id = xid.New().String()

	outputPath := b.outputFileName
	if outputPath == "" {
		outputPath = "nxsim_" + e.id
	}
	e.dataRecorder = datarecording.New(outputPath)

	renderer := b.renderer
	if renderer == nil {
		renderer = present.NewRecordingRenderer()
	}

	e.memory = gmmu.NewManager(gmmu.NewFlatMemory(b.memorySize))
	e.gpu = gpu.New(gpu.Config{
		Memory:    e.memory,
		Renderer:  renderer,
		Async:     b.asyncGPU,
		FastTicks: b.fastTicks,
	})

	e.container = nvmap.NewContainer()

	dispDevice := nvdrv.NewDispDevice(e.gpu, e.container)

	e.driver = nvdrv.NewDriver()
	e.driver.Register(nvdrv.NewCtrlDevice(e.gpu, e.gpu.SyncpointManager()))
	e.driver.Register(nvdrv.NewNvmapDevice(e.container))
	e.driver.Register(nvdrv.NewAsDevice(e.memory, e.container))
	e.driver.Register(
		nvdrv.NewGpuChannelDevice(e.gpu, e.gpu.SyncpointManager()))
	e.driver.Register(dispDevice)

	e.flinger = nvflinger.NewNVFlinger(e.gpu, dispDevice)

	e.visTracer = tracing.NewDBTracer(e.gpu, e.dataRecorder)
	tracing.CollectCommandTrace(e.gpu.DmaPusher(), e.visTracer)

	if b.analysisOn {
		perfAnalyzer := analysis.MakePerfAnalyzerBuilder().
			WithTickTeller(e.gpu).
			WithDataRecorder(e.dataRecorder).
			Build()
		perfAnalyzer.RegisterGPU(e.gpu)
		perfAnalyzer.RegisterNVFlinger(e.flinger)
		if q := e.gpu.SubmissionQueue(); q != nil {
			perfAnalyzer.RegisterBuffer(q)
		}
	}

	if b.monitorOn {
		e.monitor = monitoring.NewMonitor()
		if b.monitorPort > 0 {
			e.monitor.WithPortNumber(b.monitorPort)
		}
		e.monitor.RegisterGPU(e.gpu)
		e.monitor.RegisterNVFlinger(e.flinger)
		e.monitorPort = e.monitor.StartServer()
	}

	return e
}
