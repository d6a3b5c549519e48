// Package services assembles the full HLE stack: the GPU, the memory
// containers, the driver device nodes, and the compositor, together with the
// recording and monitoring facilities that observe them.
package services

import (
	"github.com/nxsim/nxsim/datarecording"
	"github.com/nxsim/nxsim/gmmu"
	"github.com/nxsim/nxsim/gpu"
	"github.com/nxsim/nxsim/hooking"
	"github.com/nxsim/nxsim/monitoring"
	"github.com/nxsim/nxsim/nvdrv"
	"github.com/nxsim/nxsim/nvflinger"
	"github.com/nxsim/nxsim/nvmap"
	"github.com/nxsim/nxsim/tracing"
)

// An Emulation holds one fully wired HLE stack.
type Emulation struct {
	id string

	memory    *gmmu.Manager
	gpu       *gpu.GPU
	container *nvmap.Container
	driver    *nvdrv.Driver
	flinger   *nvflinger.NVFlinger

	dataRecorder datarecording.DataRecorder
	monitor      *monitoring.Monitor
	monitorPort  int
	visTracer    *tracing.DBTracer

	components    []hooking.Named
	compNameIndex map[string]int
}

// ID returns the unique ID of the emulation.
func (e *Emulation) ID() string {
	return e.id
}

// Memory returns the GPU memory manager.
func (e *Emulation) Memory() *gmmu.Manager {
	return e.memory
}

// GPU returns the GPU.
func (e *Emulation) GPU() *gpu.GPU {
	return e.gpu
}

// Container returns the nvmap handle container.
func (e *Emulation) Container() *nvmap.Container {
	return e.container
}

// Driver returns the driver that dispatches ioctls to the device nodes.
func (e *Emulation) Driver() *nvdrv.Driver {
	return e.driver
}

// NVFlinger returns the surface compositor.
func (e *Emulation) NVFlinger() *nvflinger.NVFlinger {
	return e.flinger
}

// GetDataRecorder returns the data recorder used in the emulation.
func (e *Emulation) GetDataRecorder() datarecording.DataRecorder {
	return e.dataRecorder
}

// GetMonitor returns the monitor used in the emulation. It is nil when
// monitoring is disabled.
func (e *Emulation) GetMonitor() *monitoring.Monitor {
	return e.monitor
}

// GetMonitorPort returns the port the monitoring server listens on. It is 0
// when monitoring is disabled.
func (e *Emulation) GetMonitorPort() int {
	return e.monitorPort
}

// GetVisTracer returns the tracer that records command and frame tasks.
func (e *Emulation) GetVisTracer() *tracing.DBTracer {
	return e.visTracer
}

// RegisterComponent registers a named component with the emulation.
func (e *Emulation) RegisterComponent(c hooking.Named) {
	compName := c.Name()
	if _, ok := e.compNameIndex[compName]; ok {
		panic("component " + compName + " already registered")
	}

	e.components = append(e.components, c)
	e.compNameIndex[compName] = len(e.components) - 1

	if e.monitor != nil {
		e.monitor.RegisterComponent(c)
	}
}

// GetComponentByName returns the component with the given name.
func (e *Emulation) GetComponentByName(name string) hooking.Named {
	index, ok := e.compNameIndex[name]
	if !ok {
		return nil
	}

	return e.components[index]
}

// Components returns all registered components.
func (e *Emulation) Components() []hooking.Named {
	return e.components
}

// Terminate stops the compositor and the GPU and flushes the recordings.
func (e *Emulation) Terminate() {
	e.flinger.StopVSync()
	e.gpu.ShutDown()

	if e.visTracer != nil {
		e.visTracer.Terminate()
	}

	e.dataRecorder.Flush()
}
