// Package gpu implements the GPU top level: method routing between the
// puller and the engines, fence and interrupt protocols, the async
// submission worker, and the handoff to the renderer.
package gpu

import (
	"log"
	"sync"

	"github.com/nxsim/nxsim/clock"
	"github.com/nxsim/nxsim/engines"
	"github.com/nxsim/nxsim/gmmu"
	"github.com/nxsim/nxsim/gpfifo"
	"github.com/nxsim/nxsim/hooking"
	"github.com/nxsim/nxsim/host1x"
	"github.com/nxsim/nxsim/nvsync"
	"github.com/nxsim/nxsim/present"
	"github.com/nxsim/nxsim/queueing"
)

// NumSubChannels is the number of FIFO subchannels engines can be bound to.
const NumSubChannels = 8

// HookPosMethodCall marks the routing of one method to a bound engine. The
// hook item is the method number and the detail is the engine class.
var HookPosMethodCall = &hooking.HookPos{Name: "GPU Method Call"}

// A GPU owns the engines, the pushers, the syncpoint state, and the
// renderer handle of one channel.
type GPU struct {
	hooking.HookableBase

	memory   *gmmu.Manager
	renderer present.Renderer
	ticks    *clock.TickSource

	maxwell3d     *engines.Maxwell3D
	fermi2d       *engines.Fermi2D
	keplerCompute *engines.KeplerCompute
	maxwellDMA    *engines.MaxwellDMA
	keplerMemory  *engines.KeplerMemory

	bound [NumSubChannels]engines.EngineID
	regs  pullerRegs

	dmaPusher *gpfifo.Pusher

	cdmaMu     sync.Mutex
	cdmaPusher *host1x.CDMAPusher
	deferred   *nvsync.DeferredManager
	syncpointManager *nvsync.SyncpointManager

	// sync state: GPU-side syncpoint counters, fence waiters, interrupts.
	syncMu       sync.Mutex
	syncCV       *sync.Cond
	syncpoints   [nvsync.NumSyncpoints]uint32
	interrupts   [nvsync.NumSyncpoints][]uint32
	shuttingDown bool
	onInterrupt  func(syncptID, value uint32)

	// flush requests from the CPU side.
	flushMu           sync.Mutex
	flushRequests     []flushRequest
	lastFlushFence    uint64
	currentFlushFence uint64

	async  bool
	worker *worker
}

type flushRequest struct {
	fence uint64
	addr  uint64
	size  uint64
}

// Config carries the construction options of a GPU.
type Config struct {
	Memory     *gmmu.Manager
	Renderer   present.Renderer
	Syncpoints *nvsync.SyncpointManager

	// Async moves command-list dispatch to a worker goroutine.
	Async bool

	// FastTicks divides the tick clock by 256.
	FastTicks bool
}

// New creates a GPU.
func New(cfg Config) *GPU {
	g := &GPU{
		memory:           cfg.Memory,
		renderer:         cfg.Renderer,
		async:            cfg.Async,
		syncpointManager: cfg.Syncpoints,
	}

	if cfg.FastTicks {
		g.ticks = clock.NewFastTickSource()
	} else {
		g.ticks = clock.NewTickSource()
	}

	if g.syncpointManager == nil {
		g.syncpointManager = nvsync.NewSyncpointManager()
	}

	g.syncCV = sync.NewCond(&g.syncMu)

	g.maxwell3d = engines.NewMaxwell3D(g.memory)
	g.fermi2d = engines.NewFermi2D()
	g.keplerCompute = engines.NewKeplerCompute()
	g.maxwellDMA = engines.NewMaxwellDMA(g.memory)
	g.keplerMemory = engines.NewKeplerMemory(g.memory)

	g.dmaPusher = gpfifo.NewPusher("GPU.DmaPusher", g.memory, g)
	g.deferred = nvsync.NewDeferredManager(g, g.syncpointManager)

	if g.memory != nil && g.renderer != nil {
		g.memory.SetRasterizer(g.renderer.Rasterizer())
	}

	if g.async {
		g.worker = newWorker(g)
	}

	return g
}

// Memory returns the channel's memory manager.
func (g *GPU) Memory() *gmmu.Manager {
	return g.memory
}

// Maxwell3D returns the 3D engine.
func (g *GPU) Maxwell3D() *engines.Maxwell3D {
	return g.maxwell3d
}

// Fermi2D returns the 2D blit engine.
func (g *GPU) Fermi2D() *engines.Fermi2D {
	return g.fermi2d
}

// KeplerCompute returns the compute engine.
func (g *GPU) KeplerCompute() *engines.KeplerCompute {
	return g.keplerCompute
}

// MaxwellDMA returns the copy engine.
func (g *GPU) MaxwellDMA() *engines.MaxwellDMA {
	return g.maxwellDMA
}

// DmaPusher returns the command-list pusher, mainly so tracers can hook it.
func (g *GPU) DmaPusher() *gpfifo.Pusher {
	return g.dmaPusher
}

// SyncpointManager returns the driver-side syncpoint table shared with the
// device nodes.
func (g *GPU) SyncpointManager() *nvsync.SyncpointManager {
	return g.syncpointManager
}

// SubmissionQueue returns the async submission queue for hooks and
// monitoring, or nil in sync mode.
func (g *GPU) SubmissionQueue() queueing.Buffer {
	if g.worker == nil {
		return nil
	}
	return g.worker.Queue()
}

// SetInterruptHandler registers the host interrupt sink. It is called
// without any GPU lock held.
func (g *GPU) SetInterruptHandler(f func(syncptID, value uint32)) {
	g.syncMu.Lock()
	g.onInterrupt = f
	g.syncMu.Unlock()
}

// PushGPUEntries hands a command list to the execution engine. In async
// mode the worker picks it up; in sync mode it is dispatched inline.
func (g *GPU) PushGPUEntries(list gpfifo.CommandList) {
	if g.async {
		g.worker.submit(workSubmitList{list: list})
		return
	}

	g.dmaPusher.Push(list)
	g.dmaPusher.DispatchCalls()
}

// PushCommandBuffer hands a channel command buffer to the CDMA pusher,
// instantiating it on first use.
func (g *GPU) PushCommandBuffer(words []uint32) {
	g.cdmaMu.Lock()
	if g.cdmaPusher == nil {
		g.cdmaPusher = host1x.NewCDMAPusher(g.deferred, g.syncpointManager)
	}
	pusher := g.cdmaPusher
	g.cdmaMu.Unlock()

	pusher.ProcessEntries(words)
}

// CDMAPusher returns the channel-DMA pusher, instantiating it on first use.
func (g *GPU) CDMAPusher() *host1x.CDMAPusher {
	g.cdmaMu.Lock()
	defer g.cdmaMu.Unlock()

	if g.cdmaPusher == nil {
		g.cdmaPusher = host1x.NewCDMAPusher(g.deferred, g.syncpointManager)
	}

	return g.cdmaPusher
}

// SwapBuffers forwards a finished frame to the renderer. In async mode the
// handoff happens on the worker so it stays ordered with submissions.
func (g *GPU) SwapBuffers(fb *present.FramebufferConfig) {
	if g.async {
		g.worker.submit(workSwapBuffers{fb: fb})
		return
	}

	g.swapBuffers(fb)
}

func (g *GPU) swapBuffers(fb *present.FramebufferConfig) {
	if g.renderer == nil {
		return
	}

	g.renderer.Rasterizer().FlushCommands()
	g.renderer.SwapBuffers(fb)
}

// FlushRegion forwards to the rasterizer.
func (g *GPU) FlushRegion(addr, size uint64) {
	if g.renderer != nil {
		g.renderer.Rasterizer().FlushRegion(addr, size)
	}
}

// InvalidateRegion forwards to the rasterizer.
func (g *GPU) InvalidateRegion(addr, size uint64) {
	if g.renderer != nil {
		g.renderer.Rasterizer().InvalidateRegion(addr, size)
	}
}

// FlushAndInvalidateRegion forwards to the rasterizer.
func (g *GPU) FlushAndInvalidateRegion(addr, size uint64) {
	if g.renderer != nil {
		g.renderer.Rasterizer().FlushAndInvalidateRegion(addr, size)
	}
}

// RequestFlush enqueues a CPU-driven flush of the region and returns its
// fence. The caller may assume the region is flushed once
// CurrentFlushRequestFence has reached the returned value.
func (g *GPU) RequestFlush(addr, size uint64) uint64 {
	g.flushMu.Lock()
	defer g.flushMu.Unlock()

	g.lastFlushFence++
	g.flushRequests = append(g.flushRequests, flushRequest{
		fence: g.lastFlushFence,
		addr:  addr,
		size:  size,
	})

	return g.lastFlushFence
}

// TickWork drains pending flush requests and publishes the fence.
func (g *GPU) TickWork() {
	g.flushMu.Lock()
	defer g.flushMu.Unlock()

	for len(g.flushRequests) > 0 {
		req := g.flushRequests[0]
		g.flushRequests = g.flushRequests[1:]

		g.flushMu.Unlock()
		g.FlushRegion(req.addr, req.size)
		g.flushMu.Lock()

		g.currentFlushFence = req.fence
	}
}

// CurrentFlushRequestFence returns the fence of the last completed flush.
func (g *GPU) CurrentFlushRequestFence() uint64 {
	g.flushMu.Lock()
	defer g.flushMu.Unlock()

	return g.currentFlushFence
}

// GetTicks returns the GPU tick counter.
func (g *GPU) GetTicks() uint64 {
	return g.ticks.GetTicks()
}

// WaitIdle blocks until every submission handed to the worker so far has
// been processed. In sync mode it returns immediately.
func (g *GPU) WaitIdle() {
	if g.async {
		g.worker.waitIdle()
	}
}

// ShutDown releases all fence waiters and stops the worker.
func (g *GPU) ShutDown() {
	g.syncMu.Lock()
	g.shuttingDown = true
	g.syncMu.Unlock()
	g.syncCV.Broadcast()

	if g.async {
		g.worker.stop()
	}
}

// CallMethod routes one decoded method: puller methods are handled
// internally, everything else goes to the engine bound to the subchannel.
func (g *GPU) CallMethod(method, subChannel, argument uint32, isLast bool) {
	if method < NonPullerMethods {
		g.processBufferMethod(method, subChannel, argument)
		return
	}

	engine := g.engineFor(subChannel)
	if engine == nil {
		return
	}

	g.InvokeHook(hooking.HookCtx{
		Domain: g, Pos: HookPosMethodCall,
		Item: method, Detail: g.bound[subChannel],
	})

	engine.CallMethod(method, argument, isLast)
}

// CallMultiMethod routes a run of arguments for one method.
func (g *GPU) CallMultiMethod(method, subChannel uint32, arguments []uint32, methodsPending uint32) {
	if method < NonPullerMethods {
		for _, arg := range arguments {
			g.processBufferMethod(method, subChannel, arg)
		}
		return
	}

	engine := g.engineFor(subChannel)
	if engine == nil {
		return
	}

	g.InvokeHook(hooking.HookCtx{
		Domain: g, Pos: HookPosMethodCall,
		Item: method, Detail: g.bound[subChannel],
	})

	engine.CallMultiMethod(method, arguments, methodsPending)
}

func (g *GPU) engineFor(subChannel uint32) engines.Engine {
	if subChannel >= NumSubChannels {
		log.Panicf("subchannel %d out of range", subChannel)
	}

	switch g.bound[subChannel] {
	case engines.EngineMaxwell3D:
		return g.maxwell3d
	case engines.EngineFermi2D:
		return g.fermi2d
	case engines.EngineKeplerCompute:
		return g.keplerCompute
	case engines.EngineMaxwellDMA:
		return g.maxwellDMA
	case engines.EngineKeplerInlineToMemory:
		return g.keplerMemory
	}

	log.Printf("error: no engine bound to subchannel %d", subChannel)
	return nil
}
