package gpu

import (
	"sync"

	"github.com/nxsim/nxsim/gpfifo"
	"github.com/nxsim/nxsim/present"
	"github.com/nxsim/nxsim/queueing"
)

// submissionQueueCapacity bounds the number of work items in flight. The
// guest stalls on a full queue, which matches being FIFO-bound on
// hardware.
const submissionQueueCapacity = 512

type workSubmitList struct {
	list gpfifo.CommandList
}

type workSwapBuffers struct {
	fb *present.FramebufferConfig
}

type workSync struct {
	done chan struct{}
}

// worker drains the submission queue on its own goroutine so the
// guest-facing side never blocks on dispatch.
type worker struct {
	gpu *GPU

	mu      sync.Mutex
	cv      *sync.Cond
	queue   queueing.Buffer
	stopped bool

	wg sync.WaitGroup
}

func newWorker(g *GPU) *worker {
	w := &worker{
		gpu:   g,
		queue: queueing.NewBuffer(g.dmaPusher.Name()+".SubmissionQueue", submissionQueueCapacity),
	}
	w.cv = sync.NewCond(&w.mu)

	w.wg.Add(1)
	go w.run()

	return w
}

// Queue exposes the submission queue for hooks and monitoring.
func (w *worker) Queue() queueing.Buffer {
	return w.queue
}

func (w *worker) submit(item interface{}) {
	w.mu.Lock()
	for !w.stopped && !w.queue.CanPush() {
		w.cv.Wait()
	}
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.queue.Push(item)
	w.mu.Unlock()

	w.cv.Broadcast()
}

// waitIdle blocks until every item submitted before the call has been
// processed.
func (w *worker) waitIdle() {
	done := make(chan struct{})
	w.submit(workSync{done: done})
	<-done
}

func (w *worker) stop() {
	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()
	w.cv.Broadcast()

	w.wg.Wait()
}

func (w *worker) run() {
	defer w.wg.Done()

	for {
		w.mu.Lock()
		for !w.stopped && w.queue.Size() == 0 {
			w.cv.Wait()
		}
		if w.stopped {
			w.drainSyncsLocked()
			w.mu.Unlock()
			return
		}
		item := w.queue.Pop()
		w.mu.Unlock()

		w.cv.Broadcast()
		w.process(item)
	}
}

// drainSyncsLocked releases waitIdle callers stuck behind a stop.
func (w *worker) drainSyncsLocked() {
	for w.queue.Size() > 0 {
		if s, ok := w.queue.Pop().(workSync); ok {
			close(s.done)
		}
	}
}

func (w *worker) process(item interface{}) {
	switch it := item.(type) {
	case workSubmitList:
		w.gpu.dmaPusher.Push(it.list)
		w.gpu.dmaPusher.DispatchCalls()
	case workSwapBuffers:
		w.gpu.swapBuffers(it.fb)
	case workSync:
		close(it.done)
	}
}
