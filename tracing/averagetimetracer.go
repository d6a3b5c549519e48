package tracing

import "sync"

// AverageTimeTracer collects the average ticks spent on a certain type of
// task.
type AverageTimeTracer struct {
	tickTeller    TickTeller
	filter        TaskFilter
	lock          sync.Mutex
	averageTicks  float64
	inflightTasks map[string]Task
	taskCount     uint64
}

// NewAverageTimeTracer creates a new AverageTimeTracer.
func NewAverageTimeTracer(
	tickTeller TickTeller,
	filter TaskFilter,
) *AverageTimeTracer {
	return &AverageTimeTracer{
		tickTeller:    tickTeller,
		filter:        filter,
		inflightTasks: make(map[string]Task),
	}
}

// AverageTicks returns the average ticks spent per traced task.
func (t *AverageTimeTracer) AverageTicks() float64 {
	t.lock.Lock()
	ticks := t.averageTicks
	t.lock.Unlock()
	return ticks
}

// TotalCount returns the total number of completed tasks.
func (t *AverageTimeTracer) TotalCount() uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.taskCount
}

// StartTask records the task start time.
func (t *AverageTimeTracer) StartTask(task Task) {
	task.StartTicks = t.tickTeller.GetTicks()

	if t.filter != nil && !t.filter(task) {
		return
	}

	t.lock.Lock()
	t.inflightTasks[task.ID] = task
	t.lock.Unlock()
}

// StepTask does nothing.
func (t *AverageTimeTracer) StepTask(_ Task) {
}

// EndTask records the end of the task.
func (t *AverageTimeTracer) EndTask(task Task) {
	task.EndTicks = t.tickTeller.GetTicks()

	t.lock.Lock()
	originalTask, ok := t.inflightTasks[task.ID]
	if !ok {
		t.lock.Unlock()
		return
	}

	taskTicks := float64(task.EndTicks - originalTask.StartTicks)
	t.averageTicks =
		(t.averageTicks*float64(t.taskCount) + taskTicks) /
			float64(t.taskCount+1)
	delete(t.inflightTasks, task.ID)
	t.taskCount++
	t.lock.Unlock()
}
