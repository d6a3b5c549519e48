// Package engines implements the functional units behind the eight FIFO
// subchannels: the 3D and 2D rasterization front-ends, compute, the copy
// engine, and inline-to-memory uploads. The engines here latch register
// state and perform the memory-visible side effects; pixel work belongs to
// the renderer backend.
package engines

// EngineID identifies an engine class. The values are the hardware class
// ids the guest driver binds subchannels with.
type EngineID uint32

// Engine class ids.
const (
	EngineFermi2D              EngineID = 0x902D
	EngineMaxwell3D            EngineID = 0xB197
	EngineKeplerCompute        EngineID = 0xB1C0
	EngineMaxwellDMA           EngineID = 0xB0B5
	EngineKeplerInlineToMemory EngineID = 0xA140
)

func (id EngineID) String() string {
	switch id {
	case EngineFermi2D:
		return "Fermi2D"
	case EngineMaxwell3D:
		return "Maxwell3D"
	case EngineKeplerCompute:
		return "KeplerCompute"
	case EngineMaxwellDMA:
		return "MaxwellDMA"
	case EngineKeplerInlineToMemory:
		return "KeplerInlineToMemory"
	}
	return "Unknown"
}

// An Engine consumes decoded methods from the command pusher.
type Engine interface {
	// CallMethod processes one method. isLast reports whether this is the
	// final call of the current batch, which some registers use to trigger
	// work.
	CallMethod(method, argument uint32, isLast bool)

	// CallMultiMethod processes a run of arguments for the same method.
	// methodsPending is the number of arguments the pusher still holds for
	// this method, counting the ones passed here.
	CallMultiMethod(method uint32, arguments []uint32, methodsPending uint32)
}
