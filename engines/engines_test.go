package engines

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nxsim/nxsim/gmmu"
)

func newMemory(t *testing.T) (*gmmu.Manager, *gmmu.FlatMemory) {
	t.Helper()

	host := gmmu.NewFlatMemory(1 << 20)
	return gmmu.NewManager(host), host
}

func TestMaxwell3DLatchesRegisters(t *testing.T) {
	m, _ := newMemory(t)
	e := NewMaxwell3D(m)

	e.CallMethod(0x200, 0x1234, true)
	assert.Equal(t, uint32(0x1234), e.Reg(0x200))
}

func TestMaxwell3DCountsDraws(t *testing.T) {
	m, _ := newMemory(t)
	e := NewMaxwell3D(m)

	notified := 0
	e.OnDraw(func() { notified++ })

	e.CallMethod(maxwell3DDrawBegin, 1, true)
	e.CallMethod(maxwell3DDrawEnd, 0, true)
	e.CallMethod(maxwell3DDrawBegin, 1, true)
	e.CallMethod(maxwell3DDrawEnd, 0, true)

	assert.Equal(t, 2, e.DrawCount())
	assert.Equal(t, 2, notified)
}

func TestMaxwell3DConstBufferUpload(t *testing.T) {
	m, host := newMemory(t)
	e := NewMaxwell3D(m)

	gpuAddr := m.Map(0x8000, 0x100000, 0x1000)
	require.NotZero(t, gpuAddr)

	e.CallMethod(maxwell3DCBAddressHigh, 0, true)
	e.CallMethod(maxwell3DCBAddressLow, uint32(gpuAddr), true)
	e.CallMethod(maxwell3DCBPos, 0x10, true)
	e.CallMultiMethod(maxwell3DCBData, []uint32{0x11111111, 0x22222222}, 2)

	buf := make([]byte, 8)
	host.ReadBlock(0x8010, buf)
	assert.Equal(t, []byte{0x11, 0x11, 0x11, 0x11, 0x22, 0x22, 0x22, 0x22}, buf)

	// The upload cursor advanced.
	assert.Equal(t, uint32(0x18), e.Reg(maxwell3DCBPos))
}

func TestMaxwell3DMacroUpload(t *testing.T) {
	m, _ := newMemory(t)
	e := NewMaxwell3D(m)

	e.CallMethod(maxwell3DMacroUploadAddress, 4, true)
	e.CallMethod(maxwell3DMacroUploadData, 0xA, true)
	e.CallMethod(maxwell3DMacroUploadData, 0xB, true)

	assert.Equal(t, []uint32{0xA, 0xB}, e.Macro(4))
}

func TestFermi2DBlitKick(t *testing.T) {
	e := NewFermi2D()

	e.CallMethod(fermi2DBlitDstX, 10, true)
	assert.Zero(t, e.BlitCount())

	e.CallMethod(fermi2DBlitSrcYLo, 0, true)
	assert.Equal(t, 1, e.BlitCount())
}

func TestKeplerComputeLaunch(t *testing.T) {
	e := NewKeplerCompute()

	e.CallMethod(keplerComputeLaunchDescLo, 0x40, true)
	e.CallMethod(keplerComputeLaunch, 1, true)

	assert.Equal(t, 1, e.LaunchCount())
}

func TestMaxwellDMALinearCopy(t *testing.T) {
	m, host := newMemory(t)
	e := NewMaxwellDMA(m)

	require.NotZero(t, m.Map(0x1000, 0x10000, 0x1000))
	require.NotZero(t, m.Map(0x2000, 0x20000, 0x1000))

	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	host.WriteBlock(0x1000, payload)

	e.CallMethod(maxwellDMAOffsetInHi, 0, true)
	e.CallMethod(maxwellDMAOffsetInLo, 0x10000, true)
	e.CallMethod(maxwellDMAOffsetOutHi, 0, true)
	e.CallMethod(maxwellDMAOffsetOutLo, 0x20000, true)
	e.CallMethod(maxwellDMALineLengthIn, 4, true)
	e.CallMethod(maxwellDMALineCount, 1, true)
	e.CallMethod(maxwellDMALaunch, launchDMASrcLinear|launchDMADstLinear, true)

	got := make([]byte, 4)
	host.ReadBlock(0x2000, got)
	assert.Equal(t, payload, got)
	assert.Equal(t, 1, e.CopyCount())
}

func TestKeplerMemoryInlineWrite(t *testing.T) {
	m, host := newMemory(t)
	e := NewKeplerMemory(m)

	require.NotZero(t, m.Map(0x3000, 0x30000, 0x1000))

	e.CallMethod(keplerMemoryDestHi, 0, true)
	e.CallMethod(keplerMemoryDestLo, 0x30000, true)
	e.CallMethod(keplerMemoryExec, 0, true)
	e.CallMultiMethod(keplerMemoryData, []uint32{0x04030201, 0x08070605}, 2)

	got := make([]byte, 8)
	host.ReadBlock(0x3000, got)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, got)
}
