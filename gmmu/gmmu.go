// Package gmmu implements the GPU memory manager: a sparse 40-bit GPU
// virtual address space that guest CPU pages are mapped into. It keeps two
// ordered range sets, one for reserved allocations and one for live
// mappings, and routes block accesses through the host memory behind the
// active mapping.
package gmmu

import (
	"fmt"
	"sort"
	"sync"

	"github.com/nxsim/nxsim/present"
)

// Address-space geometry. The low region serves engines that only take
// 32-bit pointers; everything else allocates from the main region.
const (
	AddressSpaceBits = 40
	AddressSpaceSize = uint64(1) << AddressSpaceBits

	LowRegionStart  = uint64(1) << 16
	MainRegionStart = uint64(1) << 32

	PageBits = 12
	PageSize = uint64(1) << PageBits
	PageMask = PageSize - 1
)

type allocation struct {
	gpuAddr uint64
	size    uint64
}

type mapping struct {
	gpuAddr uint64
	size    uint64
	cpuAddr uint64
}

// HostRange is one contiguous CPU-side piece of a GPU virtual range.
type HostRange struct {
	CPUAddr uint64
	Size    uint64
}

// Manager owns the GPU virtual address space of one channel.
type Manager struct {
	mu          sync.RWMutex
	allocations []allocation // sorted by gpuAddr, non-overlapping
	mappings    []mapping    // sorted by gpuAddr, non-overlapping
	host        HostMemory
	rasterizer  present.Rasterizer
}

// NewManager creates a Manager over the given host memory.
func NewManager(host HostMemory) *Manager {
	return &Manager{host: host}
}

// SetRasterizer attaches the rasterizer used for cache coherency on safe
// block accesses. The rasterizer is created after the memory manager, hence
// the late binding.
func (m *Manager) SetRasterizer(r present.Rasterizer) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rasterizer = r
}

// AllocAtFixed reserves an allocation range starting at gpuAddr. It fails if
// the range overlaps an existing allocation or leaves the address space.
func (m *Manager) AllocAtFixed(gpuAddr, size uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.allocAtLocked(gpuAddr, size)
}

// Allocate reserves the lowest aligned free range of the main region and
// returns its address.
func (m *Manager) Allocate(size, align uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.allocateInRegionLocked(size, align, MainRegionStart, AddressSpaceSize)
}

// AllocateLow reserves the lowest aligned free range of the low region, so
// the result fits in 32 bits.
func (m *Manager) AllocateLow(size, align uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.allocateInRegionLocked(size, align, LowRegionStart, uint64(1)<<32)
}

// Map attaches the CPU range starting at cpuAddr to gpuAddr. The GPU range
// must not overlap an existing mapping. It returns the GPU address, or 0 on
// failure.
func (m *Manager) Map(cpuAddr, gpuAddr, size uint64) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.mapLocked(cpuAddr, gpuAddr, size)
}

// MapAllocate reserves a main-region range and maps cpuAddr into it.
func (m *Manager) MapAllocate(cpuAddr, size, align uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	gpuAddr, err := m.allocateInRegionLocked(size, align, MainRegionStart, AddressSpaceSize)
	if err != nil {
		return 0, err
	}

	if m.mapLocked(cpuAddr, gpuAddr, size) == 0 {
		return 0, fmt.Errorf("mapping %#x bytes at allocated address %#x failed", size, gpuAddr)
	}

	return gpuAddr, nil
}

// MapAllocate32 reserves a low-region range and maps cpuAddr into it. The
// video engines take 32-bit pointers, so the result is always below 1<<32.
func (m *Manager) MapAllocate32(cpuAddr, size uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	gpuAddr, err := m.allocateInRegionLocked(size, PageSize, LowRegionStart, uint64(1)<<32)
	if err != nil {
		return 0, err
	}

	if m.mapLocked(cpuAddr, gpuAddr, size) == 0 {
		return 0, fmt.Errorf("mapping %#x bytes at allocated address %#x failed", size, gpuAddr)
	}

	return gpuAddr, nil
}

// Unmap releases the mapping at gpuAddr. The range must exactly match a
// previous Map call.
func (m *Manager) Unmap(gpuAddr, size uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.findMappingLocked(gpuAddr)
	if i < 0 || m.mappings[i].gpuAddr != gpuAddr || m.mappings[i].size != size {
		return fmt.Errorf("no mapping of size %#x at gpu address %#x", size, gpuAddr)
	}

	m.mappings = append(m.mappings[:i], m.mappings[i+1:]...)
	return nil
}

// Free releases the allocation range starting at gpuAddr, along with any
// mappings inside it.
func (m *Manager) Free(gpuAddr, size uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.allocations {
		if m.allocations[i].gpuAddr == gpuAddr && m.allocations[i].size == size {
			m.allocations = append(m.allocations[:i], m.allocations[i+1:]...)
			m.removeMappingsInLocked(gpuAddr, size)
			return nil
		}
	}

	return fmt.Errorf("no allocation of size %#x at gpu address %#x", size, gpuAddr)
}

// GpuToCpuAddress translates one GPU address through the active mapping.
func (m *Manager) GpuToCpuAddress(gpuAddr uint64) (uint64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i := m.findMappingLocked(gpuAddr)
	if i < 0 {
		return 0, false
	}

	mp := m.mappings[i]
	return mp.cpuAddr + (gpuAddr - mp.gpuAddr), true
}

// IsBlockContinuous reports whether the whole range is covered by a single
// mapping, so a single CPU range backs it.
func (m *Manager) IsBlockContinuous(gpuAddr, size uint64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i := m.findMappingLocked(gpuAddr)
	if i < 0 {
		return false
	}

	mp := m.mappings[i]
	return gpuAddr+size <= mp.gpuAddr+mp.size
}

// GetSubmappedRange returns the CPU ranges covering [gpuAddr, gpuAddr+size).
// Unmapped holes are skipped.
func (m *Manager) GetSubmappedRange(gpuAddr, size uint64) []HostRange {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []HostRange

	end := gpuAddr + size
	for _, mp := range m.mappings {
		if mp.gpuAddr+mp.size <= gpuAddr || mp.gpuAddr >= end {
			continue
		}

		start := max64(gpuAddr, mp.gpuAddr)
		stop := min64(end, mp.gpuAddr+mp.size)
		result = append(result, HostRange{
			CPUAddr: mp.cpuAddr + (start - mp.gpuAddr),
			Size:    stop - start,
		})
	}

	return result
}

func (m *Manager) allocAtLocked(gpuAddr, size uint64) error {
	if size == 0 || gpuAddr+size > AddressSpaceSize {
		return fmt.Errorf("allocation %#x+%#x outside the address space", gpuAddr, size)
	}

	i := sort.Search(len(m.allocations), func(i int) bool {
		return m.allocations[i].gpuAddr+m.allocations[i].size > gpuAddr
	})
	if i < len(m.allocations) && m.allocations[i].gpuAddr < gpuAddr+size {
		return fmt.Errorf("allocation %#x+%#x overlaps existing range at %#x",
			gpuAddr, size, m.allocations[i].gpuAddr)
	}

	m.allocations = append(m.allocations, allocation{})
	copy(m.allocations[i+1:], m.allocations[i:])
	m.allocations[i] = allocation{gpuAddr: gpuAddr, size: size}

	return nil
}

func (m *Manager) allocateInRegionLocked(
	size, align, regionStart, regionEnd uint64,
) (uint64, error) {
	if size == 0 {
		return 0, fmt.Errorf("zero-size allocation")
	}

	if align < PageSize {
		align = PageSize
	}

	candidate := alignUp(regionStart, align)
	for _, a := range m.allocations {
		if a.gpuAddr+a.size <= candidate {
			continue
		}

		if a.gpuAddr >= candidate+size {
			break
		}

		candidate = alignUp(a.gpuAddr+a.size, align)
	}

	if candidate+size > regionEnd {
		return 0, fmt.Errorf("no free range of size %#x in region [%#x, %#x)",
			size, regionStart, regionEnd)
	}

	if err := m.allocAtLocked(candidate, size); err != nil {
		return 0, err
	}

	return candidate, nil
}

func (m *Manager) mapLocked(cpuAddr, gpuAddr, size uint64) uint64 {
	if size == 0 || gpuAddr == 0 || gpuAddr+size > AddressSpaceSize {
		return 0
	}

	i := sort.Search(len(m.mappings), func(i int) bool {
		return m.mappings[i].gpuAddr+m.mappings[i].size > gpuAddr
	})
	if i < len(m.mappings) && m.mappings[i].gpuAddr < gpuAddr+size {
		return 0
	}

	m.mappings = append(m.mappings, mapping{})
	copy(m.mappings[i+1:], m.mappings[i:])
	m.mappings[i] = mapping{gpuAddr: gpuAddr, size: size, cpuAddr: cpuAddr}

	return gpuAddr
}

// findMappingLocked returns the index of the mapping containing gpuAddr, or
// -1 when the address is unmapped.
func (m *Manager) findMappingLocked(gpuAddr uint64) int {
	i := sort.Search(len(m.mappings), func(i int) bool {
		return m.mappings[i].gpuAddr+m.mappings[i].size > gpuAddr
	})
	if i == len(m.mappings) || m.mappings[i].gpuAddr > gpuAddr {
		return -1
	}

	return i
}

func (m *Manager) removeMappingsInLocked(gpuAddr, size uint64) {
	end := gpuAddr + size
	kept := m.mappings[:0]
	for _, mp := range m.mappings {
		if mp.gpuAddr >= gpuAddr && mp.gpuAddr+mp.size <= end {
			continue
		}
		kept = append(kept, mp)
	}
	m.mappings = kept
}

func alignUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}

func max64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
