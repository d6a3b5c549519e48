package engines

// A MethodCall is one recorded engine call.
type MethodCall struct {
	Method    uint32
	Argument  uint32
	IsLast    bool
	Arguments []uint32 // set for multi-method calls
}

// RecorderEngine is an Engine that records every call. It exists to
// simplify the unit tests of the pusher and the GPU top level.
type RecorderEngine struct {
	Calls []MethodCall
}

// NewRecorderEngine returns a new RecorderEngine.
func NewRecorderEngine() *RecorderEngine {
	return &RecorderEngine{}
}

// CallMethod records the call.
func (e *RecorderEngine) CallMethod(method, argument uint32, isLast bool) {
	e.Calls = append(e.Calls, MethodCall{
		Method:   method,
		Argument: argument,
		IsLast:   isLast,
	})
}

// CallMultiMethod records the call.
func (e *RecorderEngine) CallMultiMethod(method uint32, arguments []uint32, methodsPending uint32) {
	e.Calls = append(e.Calls, MethodCall{
		Method:    method,
		Arguments: append([]uint32(nil), arguments...),
	})
}

// Methods returns the plain method numbers of all recorded calls.
func (e *RecorderEngine) Methods() []uint32 {
	methods := make([]uint32, len(e.Calls))
	for i, c := range e.Calls {
		methods[i] = c.Method
	}
	return methods
}
