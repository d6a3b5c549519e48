package tracing

// A TaskStep represents a milestone in the processing of a task.
type TaskStep struct {
	Ticks uint64 `json:"ticks"`
	What  string `json:"what"`
}

// A Task is a unit of work being traced, such as the dispatch of one command
// list or the composition of one frame.
type Task struct {
	ID         string     `json:"id"`
	ParentID   string     `json:"parent_id"`
	Kind       string     `json:"kind"`
	What       string     `json:"what"`
	Location   string     `json:"location"`
	StartTicks uint64     `json:"start_ticks"`
	EndTicks   uint64     `json:"end_ticks"`
	Steps      []TaskStep `json:"steps"`
	Detail     any        `json:"-"`
}

// TaskFilter is a function that can filter interesting tasks. If this
// function returns true, the task is considered useful.
type TaskFilter func(t Task) bool
