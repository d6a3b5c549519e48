package gpfifo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nxsim/nxsim/gmmu"
)

type call struct {
	method     uint32
	subChannel uint32
	argument   uint32
	isLast     bool
	arguments  []uint32
	pending    uint32
}

type recorderProcessor struct {
	calls []call
}

func (r *recorderProcessor) CallMethod(method, subChannel, argument uint32, isLast bool) {
	r.calls = append(r.calls, call{
		method:     method,
		subChannel: subChannel,
		argument:   argument,
		isLast:     isLast,
	})
}

func (r *recorderProcessor) CallMultiMethod(
	method, subChannel uint32,
	arguments []uint32,
	pending uint32,
) {
	r.calls = append(r.calls, call{
		method:     method,
		subChannel: subChannel,
		arguments:  append([]uint32(nil), arguments...),
		pending:    pending,
	})
}

func newPusher(t *testing.T) (*Pusher, *recorderProcessor) {
	t.Helper()

	rec := &recorderProcessor{}
	host := gmmu.NewFlatMemory(1 << 20)
	return NewPusher("Pusher", gmmu.NewManager(host), rec), rec
}

func TestIncrementingRunAdvancesMethod(t *testing.T) {
	p, rec := newPusher(t)

	p.ProcessCommands([]uint32{
		uint32(MakeCommandHeader(0x100, 4, 2, ModeIncreasing)),
		0xA, 0xB, 0xC, 0xD,
	})

	require.Len(t, rec.calls, 4)
	for i, c := range rec.calls {
		assert.Equal(t, uint32(0x100+i), c.method)
		assert.Equal(t, uint32(2), c.subChannel)
		assert.Equal(t, i == 3, c.isLast)
	}
	assert.Equal(t, uint32(0xA), rec.calls[0].argument)
	assert.Equal(t, uint32(0xD), rec.calls[3].argument)
}

func TestLegacyIncrementingModeBehavesTheSame(t *testing.T) {
	p, rec := newPusher(t)

	p.ProcessCommands([]uint32{
		uint32(MakeCommandHeader(0x40, 2, 0, ModeIncreasingOld)),
		1, 2,
	})

	require.Len(t, rec.calls, 2)
	assert.Equal(t, uint32(0x40), rec.calls[0].method)
	assert.Equal(t, uint32(0x41), rec.calls[1].method)
}

func TestNonIncrementingRunBecomesOneMultiCall(t *testing.T) {
	p, rec := newPusher(t)

	p.ProcessCommands([]uint32{
		uint32(MakeCommandHeader(0x6D, 3, 1, ModeNonIncreasing)),
		0x10, 0x20, 0x30,
	})

	require.Len(t, rec.calls, 1)
	c := rec.calls[0]
	assert.Equal(t, uint32(0x6D), c.method)
	assert.Equal(t, uint32(1), c.subChannel)
	assert.Equal(t, []uint32{0x10, 0x20, 0x30}, c.arguments)
	assert.Equal(t, uint32(3), c.pending)
}

func TestIncreaseOnceAdvancesAfterFirstArgument(t *testing.T) {
	p, rec := newPusher(t)

	p.ProcessCommands([]uint32{
		uint32(MakeCommandHeader(0x6C, 3, 0, ModeIncreaseOnce)),
		0x1, 0x2, 0x3,
	})

	require.Len(t, rec.calls, 2)
	assert.Equal(t, uint32(0x6C), rec.calls[0].method)
	assert.Equal(t, uint32(0x1), rec.calls[0].argument)

	// The remaining run stays at the advanced method.
	assert.Equal(t, uint32(0x6D), rec.calls[1].method)
	assert.Equal(t, []uint32{0x2, 0x3}, rec.calls[1].arguments)
}

func TestInlineHeaderCarriesItsArgument(t *testing.T) {
	p, rec := newPusher(t)

	p.ProcessCommands([]uint32{
		uint32(MakeCommandHeader(0x20, 0x123, 3, ModeInline)),
	})

	require.Len(t, rec.calls, 1)
	assert.Equal(t, uint32(0x20), rec.calls[0].method)
	assert.Equal(t, uint32(3), rec.calls[0].subChannel)
	assert.Equal(t, uint32(0x123), rec.calls[0].argument)
	assert.True(t, rec.calls[0].isLast)
}

func TestRunSpanningTwoHeaders(t *testing.T) {
	p, rec := newPusher(t)

	p.ProcessCommands([]uint32{
		uint32(MakeCommandHeader(0x100, 1, 0, ModeIncreasing)), 0xAA,
		uint32(MakeCommandHeader(0x200, 1, 1, ModeIncreasing)), 0xBB,
	})

	require.Len(t, rec.calls, 2)
	assert.Equal(t, uint32(0x100), rec.calls[0].method)
	assert.Equal(t, uint32(0x200), rec.calls[1].method)
	assert.Equal(t, uint32(1), rec.calls[1].subChannel)
}

func TestDispatchCallsReadsCommandBufferFromMemory(t *testing.T) {
	rec := &recorderProcessor{}
	host := gmmu.NewFlatMemory(1 << 20)
	memory := gmmu.NewManager(host)
	p := NewPusher("Pusher", memory, rec)

	gpuAddr, err := memory.MapAllocate(0x4000, 0x1000, gmmu.PageSize)
	require.NoError(t, err)

	words := []uint32{
		uint32(MakeCommandHeader(0x180, 2, 0, ModeIncreasing)),
		0x1111, 0x2222,
	}
	buf := make([]byte, len(words)*4)
	for i, w := range words {
		buf[i*4] = byte(w)
		buf[i*4+1] = byte(w >> 8)
		buf[i*4+2] = byte(w >> 16)
		buf[i*4+3] = byte(w >> 24)
	}
	host.WriteBlock(0x4000, buf)

	p.Push(CommandList{MakeCommandListHeader(gpuAddr, uint64(len(words)), false)})
	p.DispatchCalls()

	require.Len(t, rec.calls, 2)
	assert.Equal(t, uint32(0x180), rec.calls[0].method)
	assert.Equal(t, uint32(0x1111), rec.calls[0].argument)
	assert.Equal(t, uint32(0x181), rec.calls[1].method)
}

func TestCommandListHeaderPacking(t *testing.T) {
	h := MakeCommandListHeader(0xAB_CDEF_1234, 0x1F0, true)

	assert.Equal(t, uint64(0xAB_CDEF_1234), h.Addr())
	assert.Equal(t, uint64(0x1F0), h.Size())
	assert.True(t, h.IsNonMain())

	h = MakeCommandListHeader(0x1000, 3, false)
	assert.False(t, h.IsNonMain())
	assert.Equal(t, uint64(3), h.Size())
}
