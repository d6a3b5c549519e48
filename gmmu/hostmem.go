package gmmu

// HostMemory is the guest CPU address space the GPU maps pages from. The
// emulator core provides the real implementation; tests and the CLI use
// FlatMemory.
type HostMemory interface {
	ReadBlock(cpuAddr uint64, dst []byte)
	WriteBlock(cpuAddr uint64, src []byte)
}

// FlatMemory is a HostMemory backed by a single slice starting at address 0.
type FlatMemory struct {
	data []byte
}

// NewFlatMemory creates a FlatMemory of the given size.
func NewFlatMemory(size uint64) *FlatMemory {
	return &FlatMemory{data: make([]byte, size)}
}

// ReadBlock copies memory at cpuAddr into dst. Reads beyond the backing
// slice yield zeros.
func (m *FlatMemory) ReadBlock(cpuAddr uint64, dst []byte) {
	for i := range dst {
		dst[i] = 0
	}

	if cpuAddr >= uint64(len(m.data)) {
		return
	}

	copy(dst, m.data[cpuAddr:])
}

// WriteBlock copies src into memory at cpuAddr. Writes beyond the backing
// slice are dropped.
func (m *FlatMemory) WriteBlock(cpuAddr uint64, src []byte) {
	if cpuAddr >= uint64(len(m.data)) {
		return
	}

	copy(m.data[cpuAddr:], src)
}

// Size returns the size of the backing slice.
func (m *FlatMemory) Size() uint64 {
	return uint64(len(m.data))
}
