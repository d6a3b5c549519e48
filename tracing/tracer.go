package tracing

// A Tracer can collect task traces.
type Tracer interface {
	StartTask(task Task)
	StepTask(task Task)
	EndTask(task Task)
}

// A TickTeller reports the current GPU tick count. Tracers use it to
// timestamp tasks.
type TickTeller interface {
	GetTicks() uint64
}
