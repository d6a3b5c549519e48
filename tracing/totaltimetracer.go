package tracing

import "sync"

// TotalTimeTracer collects the total ticks spent on a certain type of task.
// If the execution of two tasks overlaps, the overlapped ticks are counted
// twice.
type TotalTimeTracer struct {
	tickTeller    TickTeller
	filter        TaskFilter
	lock          sync.Mutex
	totalTicks    uint64
	inflightTasks map[string]Task
}

// NewTotalTimeTracer creates a new TotalTimeTracer.
func NewTotalTimeTracer(
	tickTeller TickTeller,
	filter TaskFilter,
) *TotalTimeTracer {
	return &TotalTimeTracer{
		tickTeller:    tickTeller,
		filter:        filter,
		inflightTasks: make(map[string]Task),
	}
}

// TotalTicks returns the total ticks spent on the traced tasks.
func (t *TotalTimeTracer) TotalTicks() uint64 {
	t.lock.Lock()
	ticks := t.totalTicks
	t.lock.Unlock()
	return ticks
}

// StartTask records the task start time.
func (t *TotalTimeTracer) StartTask(task Task) {
	task.StartTicks = t.tickTeller.GetTicks()

	if t.filter != nil && !t.filter(task) {
		return
	}

	t.lock.Lock()
	t.inflightTasks[task.ID] = task
	t.lock.Unlock()
}

// StepTask does nothing.
func (t *TotalTimeTracer) StepTask(_ Task) {
}

// EndTask records the end of the task.
func (t *TotalTimeTracer) EndTask(task Task) {
	task.EndTicks = t.tickTeller.GetTicks()

	t.lock.Lock()
	originalTask, ok := t.inflightTasks[task.ID]
	if !ok {
		t.lock.Unlock()
		return
	}

	t.totalTicks += task.EndTicks - originalTask.StartTicks
	delete(t.inflightTasks, task.ID)
	t.lock.Unlock()
}
