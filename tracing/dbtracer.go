package tracing

import (
	"fmt"
	"sync"

	"github.com/tebeka/atexit"

	"github.com/nxsim/nxsim/datarecording"
)

type taskTableEntry struct {
	ID         string
	ParentID   string
	Kind       string
	What       string
	Location   string
	StartTicks uint64
	EndTicks   uint64
}

type traceIndexEntry struct {
	TableName    string
	SessionStart uint64
	SessionEnd   uint64
}

// DBTracer stores tasks into a database through a DataRecorder backend.
// Tracing is session-based: each EnableTracing call opens a fresh table, and
// StopTracing closes it and records the session in the index table.
type DBTracer struct {
	mu         sync.Mutex
	tickTeller TickTeller
	backend    datarecording.DataRecorder

	tracingTasks map[string]Task
	isTracing    bool

	traceCount       int
	currentTableName string
	sessionStart     uint64
}

// NewDBTracer creates a DBTracer that timestamps tasks with the tick teller
// and writes them through the data recorder.
func NewDBTracer(
	tickTeller TickTeller,
	dataRecorder datarecording.DataRecorder,
) *DBTracer {
	dataRecorder.CreateTable("trace", traceIndexEntry{})

	t := &DBTracer{
		tickTeller:   tickTeller,
		backend:      dataRecorder,
		tracingTasks: make(map[string]Task),
	}

	atexit.Register(func() { t.Terminate() })

	return t
}

// IsTracing reports whether a tracing session is open.
func (t *DBTracer) IsTracing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.isTracing
}

// EnableTracing opens a new tracing session.
func (t *DBTracer) EnableTracing() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.tracingTasks = make(map[string]Task)

	t.isTracing = true
	t.traceCount++
	t.sessionStart = t.tickTeller.GetTicks()
	t.currentTableName = fmt.Sprintf("trace%d", t.traceCount)
	t.backend.CreateTable(t.currentTableName, taskTableEntry{})
}

// StopTracing closes the tracing session. Tasks still in flight are written
// with the session end as their end time.
func (t *DBTracer) StopTracing() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.isTracing = false
	sessionEnd := t.tickTeller.GetTicks()

	t.backend.InsertData("trace", traceIndexEntry{
		TableName:    t.currentTableName,
		SessionStart: t.sessionStart,
		SessionEnd:   sessionEnd,
	})

	for _, task := range t.tracingTasks {
		task.EndTicks = sessionEnd
		t.writeTask(task)
	}

	t.tracingTasks = make(map[string]Task)
	t.backend.Flush()
}

// StartTask marks the start of a task.
func (t *DBTracer) StartTask(task Task) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.startingTaskMustBeValid(task)

	task.StartTicks = t.tickTeller.GetTicks()
	t.tracingTasks[task.ID] = task
}

func (t *DBTracer) startingTaskMustBeValid(task Task) {
	if task.ID == "" {
		panic("task ID must be set")
	}

	if task.Kind == "" {
		panic("task kind must be set")
	}

	if task.What == "" {
		panic("task what must be set")
	}

	if task.Location == "" {
		panic("task location must be set")
	}
}

// StepTask does nothing for now.
func (t *DBTracer) StepTask(_ Task) {
}

// EndTask marks the end of a task.
func (t *DBTracer) EndTask(task Task) {
	t.mu.Lock()
	defer t.mu.Unlock()

	originalTask, ok := t.tracingTasks[task.ID]
	if !ok {
		return
	}

	originalTask.EndTicks = t.tickTeller.GetTicks()

	if t.isTracing && t.currentTableName != "" {
		t.writeTask(originalTask)
	}

	delete(t.tracingTasks, task.ID)
}

// Terminate flushes the backend and drops in-flight tasks.
func (t *DBTracer) Terminate() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.tracingTasks = nil
	t.backend.Flush()
}

func (t *DBTracer) writeTask(task Task) {
	t.backend.InsertData(t.currentTableName, taskTableEntry{
		ID:         task.ID,
		ParentID:   task.ParentID,
		Kind:       task.Kind,
		What:       task.What,
		Location:   task.Location,
		StartTicks: task.StartTicks,
		EndTicks:   task.EndTicks,
	})
}
